package kcp

import (
	"errors"
	"fmt"
	"os"

	"github.com/edgeflare/kcp/pkg/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	cfgFile  string
	logLevel string
	retries  uint64
	cfg      *config.Config
	logger   = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:           "kcp",
	Short:         "kcp manages Kafka topics and their access rules for platform projects",
	Long:          `kcp keeps a PostgreSQL registry of topic ownership, sharing and ACLs in step with a Zookeeper-coordinated Kafka cluster`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if logger, err = newLogger(logLevel); err != nil {
			return err
		}
		if cfg, err = config.Load(cfgFile); err != nil {
			return err
		}
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		versionFlag, _ := cmd.Flags().GetBool("version")
		if versionFlag {
			fmt.Println(config.Version)
			return
		}

		// If no subcommand is provided, print help
		cmd.Help()
	},
}

func Main() {
	err := rootCmd.Execute()
	_ = logger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/kcp.yaml)")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "L", "info", "log at this level (debug, info, warn, error, none)")
	rootCmd.PersistentFlags().Uint64Var(&retries, "retry", 0, "retry up to this many times while the cluster is unavailable")
	rootCmd.Flags().BoolP("version", "v", false, "Print the version number")

	rootCmd.AddCommand(brokersCmd, defaultsCmd, reconcileCmd, topicCmd, aclCmd)
}

// newLogger builds a production logger writing to stderr, keeping stdout for
// command output.
func newLogger(level string) (*zap.Logger, error) {
	if level == "none" {
		return zap.NewNop(), nil
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.OutputPaths = []string{"stderr"}
	return zc.Build()
}

// errUsage marks errors in command line arguments.
var errUsage = errors.New("usage")
