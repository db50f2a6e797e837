package kafka

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/IBM/sarama"
)

// SaramaMetadataClient sends Metadata requests with github.com/IBM/sarama.
type SaramaMetadataClient struct {
	config *sarama.Config
}

func NewSaramaMetadataClient(cfg Config) (*SaramaMetadataClient, error) {
	conf, err := cfg.ToSaramaConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to create sarama config: %w", err)
	}
	return &SaramaMetadataClient{config: conf}, nil
}

// TopicMetadata opens a dedicated connection to endpoint, requests metadata for
// topic only, and closes the connection before returning.
func (c *SaramaMetadataClient) TopicMetadata(ctx context.Context, endpoint BrokerEndpoint, topic string) ([]PartitionStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	broker := sarama.NewBroker(endpoint.Addr())
	if err := broker.Open(c.config); err != nil {
		return nil, fmt.Errorf("failed to open broker connection: %w", err)
	}
	defer broker.Close()

	req := sarama.NewMetadataRequest(c.config.Version, []string{topic})
	req.AllowAutoTopicCreation = false

	resp, err := broker.GetMetadata(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get metadata: %w", err)
	}

	return partitionsFromSarama(resp, topic)
}

func partitionsFromSarama(resp *sarama.MetadataResponse, topic string) ([]PartitionStatus, error) {
	hosts := make(map[int32]string, len(resp.Brokers))
	for _, b := range resp.Brokers {
		hosts[b.ID()] = hostOf(b.Addr())
	}

	var partitions []PartitionStatus
	for _, t := range resp.Topics {
		if t.Name != topic {
			continue
		}
		if errors.Is(t.Err, sarama.ErrUnknownTopicOrPartition) {
			return nil, nil
		}
		if t.Err != sarama.ErrNoError && !errors.Is(t.Err, sarama.ErrLeaderNotAvailable) {
			return nil, fmt.Errorf("topic %q metadata: %w", topic, t.Err)
		}

		for _, p := range t.Partitions {
			partitions = append(partitions, PartitionStatus{
				ID:             p.ID,
				Leader:         hosts[p.Leader],
				Replicas:       resolveHosts(hosts, p.Replicas),
				InSyncReplicas: resolveHosts(hosts, p.Isr),
			})
		}
	}
	return partitions, nil
}

// resolveHosts maps broker ids to hosts. Ids missing from the broker list
// (brokers that are down) are kept as their numeric id.
func resolveHosts(hosts map[int32]string, ids []int32) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if h, ok := hosts[id]; ok {
			out = append(out, h)
			continue
		}
		out = append(out, fmt.Sprintf("%d", id))
	}
	return out
}

func hostOf(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
