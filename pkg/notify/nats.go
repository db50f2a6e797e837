package notify

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Config represents NATS configuration
type Config struct {
	Servers       []string `mapstructure:"servers"`
	SubjectPrefix string   `mapstructure:"subjectPrefix"`
	// Stream, when set, makes events durable in a JetStream stream of that name.
	Stream   string `mapstructure:"stream"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	TLS      struct {
		Enabled  bool   `mapstructure:"enabled"`
		CertFile string `mapstructure:"certFile"`
		KeyFile  string `mapstructure:"keyFile"`
		CAFile   string `mapstructure:"caFile"`
	} `mapstructure:"tls"`
}

// Enabled reports whether any server is configured.
func (c Config) Enabled() bool {
	return len(c.Servers) > 0
}

var errConnNotInitialized = errors.New("NATS connection not initialized")

// NATSNotifier publishes events to NATS, through JetStream when a stream is
// configured.
type NATSNotifier struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	prefix string
	logger *zap.Logger
}

// NewNATSNotifier connects to the first reachable server.
func NewNATSNotifier(cfg Config, logger *zap.Logger) (*NATSNotifier, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(cfg.Servers) == 0 {
		cfg.Servers = []string{nats.DefaultURL}
	}
	n := &NATSNotifier{prefix: cmp.Or(cfg.SubjectPrefix, "kcp"), logger: logger}

	var err error
	for _, server := range cfg.Servers {
		n.nc, err = nats.Connect(server, defaultOptions(cfg)...)
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("connect to NATS server: %w", err)
	}

	if cfg.Stream != "" {
		if n.js, err = n.nc.JetStream(); err != nil {
			n.nc.Close()
			return nil, fmt.Errorf("create JetStream context: %w", err)
		}
		if err := n.ensureStream(cfg.Stream); err != nil {
			n.nc.Close()
			return nil, fmt.Errorf("ensure stream: %w", err)
		}
	}
	return n, nil
}

// Subject returns the subject events of kind are published on.
func (n *NATSNotifier) Subject(kind Kind) string {
	return subject(n.prefix, kind)
}

func subject(prefix string, kind Kind) string {
	return prefix + "." + string(kind)
}

func (n *NATSNotifier) Notify(ctx context.Context, e Event) error {
	if n.nc == nil {
		return errConnNotInitialized
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	subj := n.Subject(e.Kind)
	if n.js != nil {
		_, err = n.js.Publish(subj, data, nats.Context(ctx), nats.MsgId(e.ID))
	} else {
		err = n.nc.Publish(subj, data)
	}
	if err != nil {
		return fmt.Errorf("publish %s: %w", subj, err)
	}
	n.logger.Debug("event published", zap.String("subject", subj), zap.String("id", e.ID))
	return nil
}

// Close drains pending publishes and closes the connection.
func (n *NATSNotifier) Close() error {
	if n.nc == nil {
		return nil
	}
	return n.nc.Drain()
}

func (n *NATSNotifier) ensureStream(name string) error {
	config := &nats.StreamConfig{
		Name:     name,
		Subjects: []string{n.prefix + ".>"},
		Storage:  nats.FileStorage,
		Replicas: 1,
	}

	stream, err := n.js.StreamInfo(name)
	if err == nil {
		if !streamConfigEqual(stream.Config, *config) {
			if _, err = n.js.UpdateStream(config); err != nil {
				return fmt.Errorf("update stream: %w", err)
			}
			n.logger.Info("Updated stream", zap.String("stream", name))
		}
		return nil
	}

	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("get stream info: %w", err)
	}

	if _, err := n.js.AddStream(config); err != nil {
		return fmt.Errorf("create stream: %w", err)
	}
	n.logger.Info("Created stream", zap.String("stream", name))
	return nil
}

func streamConfigEqual(a, b nats.StreamConfig) bool {
	if a.Name != b.Name || a.Storage != b.Storage || a.Replicas != b.Replicas {
		return false
	}
	if len(a.Subjects) != len(b.Subjects) {
		return false
	}
	for i := range a.Subjects {
		if a.Subjects[i] != b.Subjects[i] {
			return false
		}
	}
	return true
}

func defaultOptions(c Config) []nats.Option {
	opts := []nats.Option{
		nats.Name("kcp"),
		nats.Timeout(5 * time.Second),
		nats.PingInterval(10 * time.Second),
		nats.MaxPingsOutstanding(3),
		nats.MaxReconnects(-1),
	}

	if c.Username != "" && c.Password != "" {
		opts = append(opts, nats.UserInfo(c.Username, c.Password))
	}

	if c.TLS.Enabled {
		if c.TLS.CAFile != "" {
			opts = append(opts, nats.RootCAs(c.TLS.CAFile))
		}
		if c.TLS.CertFile != "" && c.TLS.KeyFile != "" {
			opts = append(opts, nats.ClientCert(c.TLS.CertFile, c.TLS.KeyFile))
		}
	}

	return opts
}
