package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"strconv"

	"github.com/edgeflare/kcp/pkg/zk"
	"go.uber.org/zap"
)

// ClusterAdmin issues topic create/delete commands through Zookeeper, the way
// the Kafka controller expects them: a partition assignment znode for creation,
// a marker under /admin/delete_topics for deletion.
type ClusterAdmin struct {
	coord  zk.Coordinator
	logger *zap.Logger
	intn   func(n int) int
}

// NewClusterAdmin returns a ClusterAdmin using coord for every command.
func NewClusterAdmin(coord zk.Coordinator, logger *zap.Logger) *ClusterAdmin {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClusterAdmin{coord: coord, logger: logger, intn: rand.IntN}
}

type topicAssignment struct {
	Version    int                `json:"version"`
	Partitions map[string][]int32 `json:"partitions"`
}

type topicConfig struct {
	Version int               `json:"version"`
	Config  map[string]string `json:"config"`
}

// CreateTopic creates name with the given layout. The broker count check and the
// existence check run against the cluster in the same session, right before the
// assignment is written. The sequence is not atomic: a concurrent creator may
// still win, in which case ErrTopicAlreadyExists is returned.
func (a *ClusterAdmin) CreateTopic(ctx context.Context, name string, partitions int32, replicationFactor int16) error {
	if partitions < 1 {
		return fmt.Errorf("%w: partitions must be at least 1, got %d", ErrInvalidTopic, partitions)
	}
	if replicationFactor < 1 {
		return fmt.Errorf("%w: replication factor must be at least 1, got %d", ErrInvalidTopic, replicationFactor)
	}

	sess, err := a.coord.Open(ctx)
	if err != nil {
		return clusterError("create topic", err)
	}
	defer sess.Close()

	brokers, err := brokerIDs(sess)
	if err != nil {
		return clusterError("create topic", err)
	}
	if int(replicationFactor) > len(brokers) {
		return fmt.Errorf("create topic %q: %w: replication factor %d, %d brokers",
			name, ErrInsufficientBrokers, replicationFactor, len(brokers))
	}

	exists, err := sess.Exists(zk.TopicPath(name))
	if err != nil {
		return clusterError("create topic", err)
	}
	if exists {
		return fmt.Errorf("create topic %q: %w", name, ErrTopicAlreadyExists)
	}

	assignment := assignReplicas(brokers, partitions, int(replicationFactor), a.intn(len(brokers)), a.intn(len(brokers)))

	cfgData, err := json.Marshal(topicConfig{Version: 1, Config: map[string]string{}})
	if err != nil {
		return fmt.Errorf("create topic %q: %w", name, err)
	}
	assignData, err := json.Marshal(topicAssignment{Version: 1, Partitions: assignment})
	if err != nil {
		return fmt.Errorf("create topic %q: %w", name, err)
	}

	// config first: the controller reads it as soon as the assignment appears
	if err := sess.Create(zk.TopicConfigZnode(name), cfgData); err != nil && !errors.Is(err, zk.ErrNodeExists) {
		return clusterError("create topic", err)
	}
	if err := sess.Create(zk.TopicPath(name), assignData); err != nil {
		if errors.Is(err, zk.ErrNodeExists) {
			return fmt.Errorf("create topic %q: %w", name, ErrTopicAlreadyExists)
		}
		return clusterError("create topic", err)
	}

	a.logger.Info("Topic created",
		zap.String("topic", name),
		zap.Int32("partitions", partitions),
		zap.Int16("replicationFactor", replicationFactor))
	return nil
}

// DeleteTopic marks name for asynchronous deletion by the controller.
// A topic the cluster does not know about is left alone and reported as success.
func (a *ClusterAdmin) DeleteTopic(ctx context.Context, name string) error {
	sess, err := a.coord.Open(ctx)
	if err != nil {
		return clusterError("delete topic", err)
	}
	defer sess.Close()

	marked, err := sess.Exists(zk.DeleteTopicPath(name))
	if err != nil {
		return clusterError("delete topic", err)
	}
	if marked {
		return fmt.Errorf("delete topic %q: %w", name, ErrDeletionInProgress)
	}

	exists, err := sess.Exists(zk.TopicPath(name))
	if err != nil {
		return clusterError("delete topic", err)
	}
	if !exists {
		a.logger.Warn("Topic absent from cluster, nothing to delete", zap.String("topic", name))
		return nil
	}

	if err := sess.Create(zk.DeleteTopicPath(name), nil); err != nil {
		if errors.Is(err, zk.ErrNodeExists) {
			return fmt.Errorf("delete topic %q: %w", name, ErrDeletionInProgress)
		}
		return clusterError("delete topic", err)
	}

	a.logger.Info("Topic marked for deletion", zap.String("topic", name))
	return nil
}

// ListTopics returns every topic known to the cluster, sorted.
func (a *ClusterAdmin) ListTopics(ctx context.Context) ([]string, error) {
	sess, err := a.coord.Open(ctx)
	if err != nil {
		return nil, clusterError("list topics", err)
	}
	defer sess.Close()

	topics, err := sess.Children(zk.BrokerTopicsPath)
	if errors.Is(err, zk.ErrNoNode) {
		return []string{}, nil
	}
	if err != nil {
		return nil, clusterError("list topics", err)
	}
	sort.Strings(topics)
	return topics, nil
}

// ListDeletions returns the topics marked for deletion that the controller has
// not finished removing yet, sorted.
func (a *ClusterAdmin) ListDeletions(ctx context.Context) ([]string, error) {
	sess, err := a.coord.Open(ctx)
	if err != nil {
		return nil, clusterError("list deletions", err)
	}
	defer sess.Close()

	topics, err := sess.Children(zk.DeleteTopicsPath)
	if errors.Is(err, zk.ErrNoNode) {
		return []string{}, nil
	}
	if err != nil {
		return nil, clusterError("list deletions", err)
	}
	sort.Strings(topics)
	return topics, nil
}

// assignReplicas spreads partition replicas over brokers round robin, starting
// at startIndex and shifting followers by replicaShift, the way Kafka does it
// when racks are not considered. brokers must be sorted and non-empty, and
// replicationFactor must not exceed len(brokers).
func assignReplicas(brokers []int32, partitions int32, replicationFactor, startIndex, replicaShift int) map[string][]int32 {
	n := len(brokers)
	assignment := make(map[string][]int32, partitions)

	for p := 0; p < int(partitions); p++ {
		if p > 0 && p%n == 0 {
			replicaShift++
		}
		first := (p + startIndex) % n
		replicas := make([]int32, 0, replicationFactor)
		replicas = append(replicas, brokers[first])
		for j := 0; j < replicationFactor-1; j++ {
			replicas = append(replicas, brokers[replicaIndex(first, replicaShift, j, n)])
		}
		assignment[strconv.Itoa(p)] = replicas
	}
	return assignment
}

func replicaIndex(first, shift, j, n int) int {
	return (first + 1 + (shift+j)%(n-1)) % n
}
