// Package kafkatest provides a kafka.BrokerMetadataClient that answers from a
// zktest.Coordinator, so metadata reflects whatever ClusterAdmin wrote.
package kafkatest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/edgeflare/kcp/pkg/kafka"
	"github.com/edgeflare/kcp/pkg/zk"
	"github.com/edgeflare/kcp/pkg/zk/zktest"
)

var ErrConnectionRefused = errors.New("connection refused")

// MetadataClient serves partition metadata from the topic assignments stored in
// the fake coordinator. The first replica is the leader; every replica is in sync.
type MetadataClient struct {
	coord *zktest.Coordinator

	mu          sync.Mutex
	unreachable map[string]bool
	calls       []string
}

var _ kafka.BrokerMetadataClient = (*MetadataClient)(nil)

func NewMetadataClient(coord *zktest.Coordinator) *MetadataClient {
	return &MetadataClient{coord: coord, unreachable: map[string]bool{}}
}

// SetUnreachable makes requests to addr (host:port) fail.
func (c *MetadataClient) SetUnreachable(addr string, v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unreachable[addr] = v
}

// Calls returns the broker addresses contacted so far.
func (c *MetadataClient) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

func (c *MetadataClient) TopicMetadata(ctx context.Context, endpoint kafka.BrokerEndpoint, topic string) ([]kafka.PartitionStatus, error) {
	c.mu.Lock()
	c.calls = append(c.calls, endpoint.Addr())
	down := c.unreachable[endpoint.Addr()]
	c.mu.Unlock()

	if down {
		return nil, fmt.Errorf("dial %s: %w", endpoint.Addr(), ErrConnectionRefused)
	}

	data, ok := c.coord.Data(zk.TopicPath(topic))
	if !ok {
		return nil, nil
	}

	var assignment struct {
		Partitions map[string][]int32 `json:"partitions"`
	}
	if err := json.Unmarshal(data, &assignment); err != nil {
		return nil, err
	}

	partitions := make([]kafka.PartitionStatus, 0, len(assignment.Partitions))
	for id, replicas := range assignment.Partitions {
		pid, err := strconv.Atoi(id)
		if err != nil {
			return nil, err
		}
		hosts := make([]string, 0, len(replicas))
		for _, r := range replicas {
			hosts = append(hosts, c.host(r))
		}
		p := kafka.PartitionStatus{
			ID:             int32(pid),
			Replicas:       hosts,
			InSyncReplicas: append([]string(nil), hosts...),
		}
		if len(hosts) > 0 {
			p.Leader = hosts[0]
		}
		partitions = append(partitions, p)
	}
	return partitions, nil
}

func (c *MetadataClient) host(id int32) string {
	data, ok := c.coord.Data(zk.BrokerPath(id))
	if !ok {
		return strconv.Itoa(int(id))
	}
	var reg struct {
		Host string `json:"host"`
	}
	if err := json.Unmarshal(data, &reg); err != nil || reg.Host == "" {
		return strconv.Itoa(int(id))
	}
	return reg.Host
}
