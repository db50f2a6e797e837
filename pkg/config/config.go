package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/edgeflare/kcp/pkg/kafka"
	"github.com/edgeflare/kcp/pkg/notify"
	"github.com/edgeflare/kcp/pkg/zk"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Version is set at build time.
var Version = "dev"

// Config holds application-wide configuration
type Config struct {
	Zookeeper zk.Config      `mapstructure:"zookeeper"`
	Kafka     kafka.Config   `mapstructure:"kafka"`
	Registry  RegistryConfig `mapstructure:"registry"`
	NATS      notify.Config  `mapstructure:"nats"`
	Metrics   MetricsConfig  `mapstructure:"metrics"`
}

type RegistryConfig struct {
	ConnString string `mapstructure:"connString"`
	// Migrate creates the registry tables on startup.
	Migrate bool `mapstructure:"migrate"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// setDefaults registers every key, so AutomaticEnv can override keys absent
// from the config file.
func setDefaults(v *viper.Viper) {
	k := kafka.DefaultConfig()

	v.SetDefault("zookeeper.servers", []string{"localhost:2181"})
	v.SetDefault("zookeeper.chroot", "")

	v.SetDefault("kafka.version", k.Version)
	v.SetDefault("kafka.listener", k.Listener)
	v.SetDefault("kafka.metadataClient", k.MetadataClient)
	v.SetDefault("kafka.defaultPartitions", k.DefaultPartitions)
	v.SetDefault("kafka.defaultReplicationFactor", k.DefaultReplicationFactor)
	v.SetDefault("kafka.sasl.enable", false)
	v.SetDefault("kafka.sasl.username", "")
	v.SetDefault("kafka.sasl.password", "")
	v.SetDefault("kafka.sasl.algorithm", k.SASL.Algorithm)
	v.SetDefault("kafka.tls.enable", false)
	v.SetDefault("kafka.tls.certFile", "")
	v.SetDefault("kafka.tls.keyFile", "")
	v.SetDefault("kafka.tls.caFile", "")
	v.SetDefault("kafka.tls.skipVerify", false)

	v.SetDefault("registry.connString", "")
	v.SetDefault("registry.migrate", false)

	v.SetDefault("nats.servers", []string{})
	v.SetDefault("nats.subjectPrefix", "kcp")
	v.SetDefault("nats.stream", "")
	v.SetDefault("nats.username", "")
	v.SetDefault("nats.password", "")

	v.SetDefault("metrics.addr", ":9100")
}

// Load reads config from file or environment. Environment variables are
// prefixed KCP_ with dots as underscores, e.g. KCP_REGISTRY_CONNSTRING.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("kcp")
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config"))
		}
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("KCP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)))
	if err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail deep inside a request.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Zookeeper.Servers) == 0 {
		errs = append(errs, errors.New("zookeeper.servers is empty"))
	}
	if c.Kafka.DefaultPartitions < 1 {
		errs = append(errs, fmt.Errorf("kafka.defaultPartitions must be at least 1, got %d", c.Kafka.DefaultPartitions))
	}
	if c.Kafka.DefaultReplicationFactor < 1 {
		errs = append(errs, fmt.Errorf("kafka.defaultReplicationFactor must be at least 1, got %d", c.Kafka.DefaultReplicationFactor))
	}
	switch c.Kafka.MetadataClient {
	case kafka.MetadataClientSarama, kafka.MetadataClientKafkaGo:
	default:
		errs = append(errs, fmt.Errorf("kafka.metadataClient %q is not one of %q, %q",
			c.Kafka.MetadataClient, kafka.MetadataClientSarama, kafka.MetadataClientKafkaGo))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
