package kafka

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/edgeflare/kcp/pkg/metrics"
	"go.uber.org/zap"
)

// PartitionStatus is the live state of one partition, assembled per query.
type PartitionStatus struct {
	ID             int32    `json:"id"`
	Leader         string   `json:"leader"`
	Replicas       []string `json:"replicas"`
	InSyncReplicas []string `json:"inSyncReplicas"`
}

// UnderReplicated reports whether some replica has fallen out of the ISR.
func (p PartitionStatus) UnderReplicated() bool {
	return len(p.InSyncReplicas) < len(p.Replicas)
}

// BrokerMetadataClient fetches topic metadata from a single broker over a
// connection it opens and closes itself. A topic the broker does not know
// yields no partitions and no error.
type BrokerMetadataClient interface {
	TopicMetadata(ctx context.Context, broker BrokerEndpoint, topic string) ([]PartitionStatus, error)
}

// NewMetadataClient picks the BrokerMetadataClient named by cfg.MetadataClient.
func NewMetadataClient(cfg Config) (BrokerMetadataClient, error) {
	switch cfg.MetadataClient {
	case "", MetadataClientSarama:
		return NewSaramaMetadataClient(cfg)
	case MetadataClientKafkaGo:
		return NewKafkaGoMetadataClient(cfg)
	default:
		return nil, fmt.Errorf("unknown metadata client %q", cfg.MetadataClient)
	}
}

// MetadataReader derives partition status by asking every live broker directly.
type MetadataReader struct {
	brokers BrokerLister
	client  BrokerMetadataClient
	logger  *zap.Logger
}

func NewMetadataReader(brokers BrokerLister, client BrokerMetadataClient, logger *zap.Logger) *MetadataReader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MetadataReader{brokers: brokers, client: client, logger: logger}
}

// DescribeTopic returns the partitions of topic ordered by partition id.
//
// An unreachable broker is skipped; any surviving broker can describe the
// topic. When every broker fails the call fails with ErrClusterUnavailable.
// When at least one broker answered but no partition was reported the topic
// does not exist: ErrTopicNotFound.
func (r *MetadataReader) DescribeTopic(ctx context.Context, topic string) ([]PartitionStatus, error) {
	endpoints, err := r.brokers.ListBrokers(ctx)
	if err != nil {
		return nil, err
	}
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("describe topic %q: %w: no brokers registered", topic, ErrClusterUnavailable)
	}

	merged := make(map[int32]PartitionStatus)
	var failures []error
	answered := 0

	for _, endpoint := range endpoints {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		partitions, err := r.client.TopicMetadata(ctx, endpoint, topic)
		if err != nil {
			err = fmt.Errorf("broker %s: %w: %w", endpoint.Addr(), ErrBrokerUnreachable, err)
			r.logger.Warn("broker metadata request failed",
				zap.String("broker", endpoint.Addr()),
				zap.String("topic", topic),
				zap.Error(err))
			metrics.BrokerUnreachable.WithLabelValues(endpoint.Addr()).Inc()
			failures = append(failures, err)
			continue
		}

		answered++
		for _, p := range partitions {
			merged[p.ID] = p
		}
	}

	if answered == 0 {
		return nil, fmt.Errorf("describe topic %q: %w: %w", topic, ErrClusterUnavailable, errors.Join(failures...))
	}
	if len(merged) == 0 {
		return nil, fmt.Errorf("describe topic %q: %w", topic, ErrTopicNotFound)
	}

	result := make([]PartitionStatus, 0, len(merged))
	for _, p := range merged {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })

	r.logger.Debug("topic described",
		zap.String("topic", topic),
		zap.Int("partitions", len(result)),
		zap.Int("brokersAnswered", answered),
		zap.Int("brokersFailed", len(failures)))
	return result, nil
}
