package kcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/edgeflare/kcp/pkg/controlplane"
	"github.com/edgeflare/kcp/pkg/kafka"
	"github.com/edgeflare/kcp/pkg/notify"
	pgxutil "github.com/edgeflare/kcp/pkg/pgx"
	"github.com/edgeflare/kcp/pkg/registry"
	"github.com/edgeflare/kcp/pkg/zk"
	"go.uber.org/zap"
)

// app holds the wired control plane and what must be released after the command.
type app struct {
	cp      *controlplane.ControlPlane
	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// newApp wires the control plane from cfg. Commands that only talk to the
// cluster pass withRegistry=false and need no database.
func newApp(ctx context.Context, withRegistry bool) (*app, error) {
	a := &app{}

	coord := zk.NewCoordinator(cfg.Zookeeper, logger.Named("zk"))
	directory := kafka.NewBrokerDirectory(coord, cfg.Kafka.Listener, logger.Named("brokers"))
	admin := kafka.NewClusterAdmin(coord, logger.Named("admin"))

	client, err := kafka.NewMetadataClient(cfg.Kafka)
	if err != nil {
		return nil, err
	}
	reader := kafka.NewMetadataReader(directory, client, logger.Named("metadata"))

	opts := controlplane.Options{
		DefaultPartitions:        cfg.Kafka.DefaultPartitions,
		DefaultReplicationFactor: cfg.Kafka.DefaultReplicationFactor,
		Logger:                   logger.Named("controlplane"),
	}

	var topics controlplane.Topics
	var acls controlplane.ACLs
	if withRegistry {
		if cfg.Registry.ConnString == "" {
			return nil, errors.New("registry.connString is not set (KCP_REGISTRY_CONNSTRING)")
		}
		pool, err := pgxutil.NewPool(ctx, pgxutil.Pool{ConnString: cfg.Registry.ConnString})
		if err != nil {
			return nil, fmt.Errorf("connect registry: %w", err)
		}
		a.closers = append(a.closers, pool.Close)

		store := registry.NewPGStore(pool, logger.Named("registry"))
		if cfg.Registry.Migrate {
			if err := store.Migrate(ctx); err != nil {
				a.Close()
				return nil, err
			}
		}
		topics = registry.NewTopicRegistry(store, logger.Named("registry"))
		acls = registry.NewACLRegistry(store, registry.NewPGPrincipalResolver(pool), logger.Named("registry"))

		if cfg.NATS.Enabled() {
			notifier, err := notify.NewNATSNotifier(cfg.NATS, logger.Named("notify"))
			if err != nil {
				a.Close()
				return nil, err
			}
			a.closers = append(a.closers, func() {
				if err := notifier.Close(); err != nil {
					logger.Warn("closing NATS connection", zap.Error(err))
				}
			})
			opts.Notifier = notifier
		}
	}

	a.cp = controlplane.New(admin, directory, reader, topics, acls, opts)
	return a, nil
}
