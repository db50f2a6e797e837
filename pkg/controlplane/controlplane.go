// Package controlplane keeps the topic registry and the Kafka cluster in step.
//
// Each request runs synchronously through a fixed sequence of states. Creation
// goes validating, creating_on_cluster, persisting_registry, done. Deletion
// goes validating, deleting_on_cluster, removing_registry, done. Any state may
// exit to failed with the originating error. The registry is only written
// after the cluster accepted the command. Nothing compensates for a crash
// between the two steps; Reconcile reports the resulting drift.
package controlplane

import (
	"cmp"
	"context"
	"time"

	"github.com/edgeflare/kcp/pkg/kafka"
	"github.com/edgeflare/kcp/pkg/metrics"
	"github.com/edgeflare/kcp/pkg/notify"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ClusterAdmin issues topic commands to the cluster.
type ClusterAdmin interface {
	CreateTopic(ctx context.Context, name string, partitions int32, replicationFactor int16) error
	DeleteTopic(ctx context.Context, name string) error
	ListTopics(ctx context.Context) ([]string, error)
	ListDeletions(ctx context.Context) ([]string, error)
}

// Brokers discovers the live brokers.
type Brokers interface {
	ListBrokers(ctx context.Context) ([]kafka.BrokerEndpoint, error)
	BrokerCount(ctx context.Context) (int, error)
}

// TopicDescriber reads live partition status.
type TopicDescriber interface {
	DescribeTopic(ctx context.Context, topic string) ([]kafka.PartitionStatus, error)
}

var (
	_ ClusterAdmin   = (*kafka.ClusterAdmin)(nil)
	_ Brokers        = (*kafka.BrokerDirectory)(nil)
	_ TopicDescriber = (*kafka.MetadataReader)(nil)
)

type State string

const (
	StateValidating         State = "validating"
	StateCreatingOnCluster  State = "creating_on_cluster"
	StatePersistingRegistry State = "persisting_registry"
	StateDeletingOnCluster  State = "deleting_on_cluster"
	StateRemovingRegistry   State = "removing_registry"
	StateDone               State = "done"
	StateFailed             State = "failed"
)

type Options struct {
	// DefaultPartitions and DefaultReplicationFactor replace zero values in
	// create requests. Both default to 1.
	DefaultPartitions        int32
	DefaultReplicationFactor int16
	Notifier                 notify.Notifier
	Logger                   *zap.Logger
}

type ControlPlane struct {
	admin    ClusterAdmin
	brokers  Brokers
	reader   TopicDescriber
	topics   Topics
	acls     ACLs
	notifier notify.Notifier
	logger   *zap.Logger

	defaultPartitions        int32
	defaultReplicationFactor int16
}

// New wires a ControlPlane. topics and acls are usually *registry.TopicRegistry
// and *registry.ACLRegistry over the same store.
func New(admin ClusterAdmin, brokers Brokers, reader TopicDescriber, topics Topics, acls ACLs, opts Options) *ControlPlane {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	var notifier notify.Notifier = notify.Nop{}
	if opts.Notifier != nil {
		notifier = opts.Notifier
	}
	return &ControlPlane{
		admin:                    admin,
		brokers:                  brokers,
		reader:                   reader,
		topics:                   topics,
		acls:                     acls,
		notifier:                 notifier,
		logger:                   logger,
		defaultPartitions:        cmp.Or(opts.DefaultPartitions, 1),
		defaultReplicationFactor: cmp.Or(opts.DefaultReplicationFactor, 1),
	}
}

// operation tracks one request: its id, its current state, and its outcome.
type operation struct {
	id     string
	name   string
	start  time.Time
	logger *zap.Logger
}

func (c *ControlPlane) begin(name string, fields ...zap.Field) *operation {
	id := uuid.NewString()
	fields = append([]zap.Field{zap.String("op", name), zap.String("opId", id)}, fields...)
	return &operation{
		id:     id,
		name:   name,
		start:  time.Now(),
		logger: c.logger.With(fields...),
	}
}

func (o *operation) enter(s State) {
	o.logger.Debug("state", zap.String("state", string(s)))
}

// end records the outcome and returns err unchanged.
func (o *operation) end(err error) error {
	metrics.Operations.WithLabelValues(o.name, Kind(err)).Inc()
	metrics.OperationDuration.WithLabelValues(o.name).Observe(time.Since(o.start).Seconds())
	if err != nil {
		o.logger.Info("state",
			zap.String("state", string(StateFailed)),
			zap.String("kind", Kind(err)),
			zap.Error(err))
		return err
	}
	o.logger.Info("state", zap.String("state", string(StateDone)), zap.Duration("took", time.Since(o.start)))
	return nil
}

// publish sends e; a failure is logged and otherwise ignored.
func (c *ControlPlane) publish(ctx context.Context, o *operation, e notify.Event) {
	e.OperationID = o.id
	if err := c.notifier.Notify(ctx, e); err != nil {
		o.logger.Warn("event publish failed", zap.String("event", string(e.Kind)), zap.Error(err))
	}
}
