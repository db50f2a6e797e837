package controlplane

import (
	"context"
	"slices"

	"github.com/edgeflare/kcp/pkg/kafka"
	"github.com/edgeflare/kcp/pkg/metrics"
	"go.uber.org/zap"
)

type Defaults struct {
	Partitions        int32 `json:"partitions"`
	ReplicationFactor int16 `json:"replicationFactor"`
	BrokerCount       int   `json:"brokerCount"`
}

// Drift lists topics known to only one side.
type Drift struct {
	// Orphaned topics exist on the cluster without a registry row.
	Orphaned []string `json:"orphaned"`
	// Missing topics are registered but absent from the cluster.
	Missing []string `json:"missing"`
	// Deleting topics are marked for deletion and not yet gone.
	Deleting []string `json:"deleting"`
}

// Empty reports whether registry and cluster agree.
func (d Drift) Empty() bool {
	return len(d.Orphaned) == 0 && len(d.Missing) == 0
}

// Brokers returns the live broker endpoints.
func (c *ControlPlane) Brokers(ctx context.Context) ([]kafka.BrokerEndpoint, error) {
	op := c.begin("list_brokers")

	brokers, err := c.brokers.ListBrokers(ctx)
	if err != nil {
		return nil, op.end(err)
	}
	return brokers, op.end(nil)
}

// TopicDefaults returns the values a create request falls back to, and the
// number of live brokers bounding the replication factor.
func (c *ControlPlane) TopicDefaults(ctx context.Context) (Defaults, error) {
	op := c.begin("topic_defaults")

	n, err := c.brokers.BrokerCount(ctx)
	if err != nil {
		return Defaults{}, op.end(err)
	}
	return Defaults{
		Partitions:        c.defaultPartitions,
		ReplicationFactor: c.defaultReplicationFactor,
		BrokerCount:       n,
	}, op.end(nil)
}

// Reconcile compares registry and cluster without changing either. Internal
// topics are ignored, and topics awaiting deletion are never orphaned.
func (c *ControlPlane) Reconcile(ctx context.Context) (Drift, error) {
	op := c.begin("reconcile")

	onCluster, err := c.admin.ListTopics(ctx)
	if err != nil {
		return Drift{}, op.end(err)
	}
	deleting, err := c.admin.ListDeletions(ctx)
	if err != nil {
		return Drift{}, op.end(err)
	}
	registered, err := c.topics.ListAll(ctx)
	if err != nil {
		return Drift{}, op.end(err)
	}

	known := make(map[string]bool, len(registered))
	for _, t := range registered {
		known[t.Name] = true
	}
	live := make(map[string]bool, len(onCluster))
	for _, name := range onCluster {
		live[name] = true
	}

	drift := Drift{Orphaned: []string{}, Missing: []string{}, Deleting: deleting}
	for _, name := range onCluster {
		if known[name] || kafka.IsInternalTopic(name) || slices.Contains(deleting, name) {
			continue
		}
		drift.Orphaned = append(drift.Orphaned, name)
	}
	for _, t := range registered {
		if !live[t.Name] {
			drift.Missing = append(drift.Missing, t.Name)
		}
	}

	metrics.RegistryDrift.WithLabelValues("orphaned").Set(float64(len(drift.Orphaned)))
	metrics.RegistryDrift.WithLabelValues("missing").Set(float64(len(drift.Missing)))
	if !drift.Empty() {
		op.logger.Warn("registry and cluster disagree",
			zap.Strings("orphaned", drift.Orphaned),
			zap.Strings("missing", drift.Missing))
	}
	return drift, op.end(nil)
}
