package kcp

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/edgeflare/kcp/pkg/controlplane"
	"github.com/edgeflare/kcp/pkg/kafka"
	"github.com/edgeflare/kcp/pkg/metrics"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var brokersCmd = &cobra.Command{
	Use:   "brokers",
	Short: "List the live broker endpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, false)
		if err != nil {
			return err
		}
		defer a.Close()

		brokers, err := withRetry(ctx, func() ([]kafka.BrokerEndpoint, error) { return a.cp.Brokers(ctx) })
		if err != nil {
			return err
		}
		return printJSON(brokers)
	},
}

var defaultsCmd = &cobra.Command{
	Use:   "defaults",
	Short: "Show topic defaults and the live broker count",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, false)
		if err != nil {
			return err
		}
		defer a.Close()

		d, err := withRetry(ctx, func() (controlplane.Defaults, error) { return a.cp.TopicDefaults(ctx) })
		if err != nil {
			return err
		}
		return printJSON(d)
	},
}

var (
	reconcileInterval time.Duration
	metricsAddr       string
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Report topics present only on the cluster or only in the registry",
	Long: `Compare registry and cluster and print the drift. Nothing is changed.
With --interval the comparison repeats and is exported as the kcp_registry_drift_topics metric.`,
	RunE: runReconcile,
}

func init() {
	reconcileCmd.Flags().DurationVar(&reconcileInterval, "interval", 0, "repeat every interval until interrupted (0 runs once)")
	reconcileCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "metrics listen address when repeating (default metrics.addr)")
}

func runReconcile(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	once := func() (controlplane.Drift, error) {
		return withRetry(ctx, func() (controlplane.Drift, error) { return a.cp.Reconcile(ctx) })
	}

	if reconcileInterval <= 0 {
		drift, err := once()
		if err != nil {
			return err
		}
		return printJSON(drift)
	}

	var wg sync.WaitGroup
	addr := metricsAddr
	if addr == "" {
		addr = cfg.Metrics.Addr
	}
	metrics.StartPrometheusServer(ctx, &wg, &metrics.PromServerOpts{Addr: addr, Logger: logger.Named("metrics")})

	ticker := time.NewTicker(reconcileInterval)
	defer ticker.Stop()
	for {
		if _, err := once(); err != nil && ctx.Err() == nil {
			logger.Error("reconcile failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			logger.Info("Received termination signal, shutting down gracefully...")
			wg.Wait()
			return nil
		case <-ticker.C:
		}
	}
}
