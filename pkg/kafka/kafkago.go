package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"
)

// KafkaGoMetadataClient reads partition metadata with github.com/segmentio/kafka-go.
type KafkaGoMetadataClient struct {
	dialer *kafkago.Dialer
}

func NewKafkaGoMetadataClient(cfg Config) (*KafkaGoMetadataClient, error) {
	dialer := &kafkago.Dialer{
		ClientID: "kcp",
		Timeout:  ConnectTimeout,
	}

	if cfg.TLS.Enable {
		tlsConfig, err := createTLSConfiguration(cfg.TLS)
		if err != nil {
			return nil, err
		}
		dialer.TLS = tlsConfig
	}

	mechanism, err := cfg.saslMechanism()
	if err != nil {
		return nil, err
	}
	if mechanism != nil {
		dialer.SASLMechanism = mechanism
	}

	return &KafkaGoMetadataClient{dialer: dialer}, nil
}

// TopicMetadata dials endpoint, reads the partitions of topic and hangs up.
func (c *KafkaGoMetadataClient) TopicMetadata(ctx context.Context, endpoint BrokerEndpoint, topic string) ([]PartitionStatus, error) {
	conn, err := c.dialer.DialContext(ctx, "tcp", endpoint.Addr())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(ReadTimeout)); err != nil {
		return nil, fmt.Errorf("failed to set deadline: %w", err)
	}

	partitions, err := conn.ReadPartitions(topic)
	if errors.Is(err, kafkago.UnknownTopicOrPartition) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read partitions: %w", err)
	}

	result := make([]PartitionStatus, 0, len(partitions))
	for _, p := range partitions {
		if p.Topic != topic {
			continue
		}
		result = append(result, PartitionStatus{
			ID:             int32(p.ID),
			Leader:         p.Leader.Host,
			Replicas:       brokerHosts(p.Replicas),
			InSyncReplicas: brokerHosts(p.Isr),
		})
	}
	return result, nil
}

func brokerHosts(brokers []kafkago.Broker) []string {
	hosts := make([]string, 0, len(brokers))
	for _, b := range brokers {
		hosts = append(hosts, b.Host)
	}
	return hosts
}
