package controlplane

import (
	"context"
	"errors"
	"fmt"

	"github.com/edgeflare/kcp/pkg/kafka"
	"github.com/edgeflare/kcp/pkg/notify"
	"github.com/edgeflare/kcp/pkg/registry"
	"go.uber.org/zap"
)

// TopicRequest asks for a new topic. Zero Partitions or ReplicationFactor
// take the configured defaults.
type TopicRequest struct {
	Name              string `json:"name"`
	Partitions        int32  `json:"partitions"`
	ReplicationFactor int16  `json:"replicationFactor"`
}

type ProjectTopics struct {
	Owned  []registry.Topic      `json:"owned"`
	Shared []registry.TopicShare `json:"shared"`
}

type TopicDescription struct {
	Topic      registry.Topic          `json:"topic"`
	Shared     bool                    `json:"shared"`
	Partitions []kafka.PartitionStatus `json:"partitions"`
}

// CreateTopic creates the topic on the cluster, then records projectID as its
// owner. A failure leaves no registry row behind.
func (c *ControlPlane) CreateTopic(ctx context.Context, projectID registry.ProjectID, req TopicRequest) (registry.Topic, error) {
	op := c.begin("create_topic", zap.String("topic", req.Name), zap.Int32("project", int32(projectID)))

	op.enter(StateValidating)
	topic, err := c.validateCreate(ctx, projectID, req)
	if err != nil {
		return registry.Topic{}, op.end(err)
	}

	op.enter(StateCreatingOnCluster)
	if err := c.admin.CreateTopic(ctx, topic.Name, topic.Partitions, topic.ReplicationFactor); err != nil {
		return registry.Topic{}, op.end(err)
	}

	op.enter(StatePersistingRegistry)
	if err := c.topics.RegisterTopic(ctx, topic); err != nil {
		op.logger.Error("topic exists on cluster without registry row", zap.Error(err))
		return registry.Topic{}, op.end(err)
	}

	c.publish(ctx, op, notify.NewEvent(notify.TopicCreated, int32(projectID), topic.Name))
	return topic, op.end(nil)
}

func (c *ControlPlane) validateCreate(ctx context.Context, projectID registry.ProjectID, req TopicRequest) (registry.Topic, error) {
	t := registry.Topic{
		Name:              req.Name,
		ProjectID:         projectID,
		Partitions:        req.Partitions,
		ReplicationFactor: req.ReplicationFactor,
	}
	if t.Partitions == 0 {
		t.Partitions = c.defaultPartitions
	}
	if t.ReplicationFactor == 0 {
		t.ReplicationFactor = c.defaultReplicationFactor
	}

	if err := kafka.ValidateTopicName(t.Name); err != nil {
		return t, err
	}
	if t.Partitions < 1 {
		return t, fmt.Errorf("%w: partitions must be at least 1, got %d", kafka.ErrInvalidTopic, t.Partitions)
	}
	if t.ReplicationFactor < 1 {
		return t, fmt.Errorf("%w: replication factor must be at least 1, got %d", kafka.ErrInvalidTopic, t.ReplicationFactor)
	}

	_, err := c.topics.FindOwningProjects(ctx, t.Name)
	switch {
	case err == nil:
		return t, fmt.Errorf("create topic %q: %w: %w", t.Name, kafka.ErrTopicAlreadyExists, registry.ErrDuplicateTopic)
	case !errors.Is(err, registry.ErrTopicNotRegistered):
		return t, err
	}

	brokers, err := c.brokers.BrokerCount(ctx)
	if err != nil {
		return t, err
	}
	if int(t.ReplicationFactor) > brokers {
		return t, fmt.Errorf("create topic %q: %w: replication factor %d, %d brokers",
			t.Name, kafka.ErrInsufficientBrokers, t.ReplicationFactor, brokers)
	}
	return t, nil
}

// DeleteTopic marks the topic for deletion on the cluster, then drops its
// registry row with every share and ACL rule. Only the owner may delete.
func (c *ControlPlane) DeleteTopic(ctx context.Context, projectID registry.ProjectID, name string) error {
	op := c.begin("delete_topic", zap.String("topic", name), zap.Int32("project", int32(projectID)))

	op.enter(StateValidating)
	_, shared, err := c.topics.Lookup(ctx, projectID, name)
	switch {
	case errors.Is(err, registry.ErrTopicNotRegistered):
		return op.end(fmt.Errorf("delete topic %q: %w: %w", name, registry.ErrTopicNotOwned, err))
	case err != nil:
		return op.end(err)
	case shared:
		return op.end(fmt.Errorf("delete topic %q: shared with project %d: %w", name, projectID, registry.ErrTopicNotOwned))
	}

	op.enter(StateDeletingOnCluster)
	if err := c.admin.DeleteTopic(ctx, name); err != nil {
		return op.end(err)
	}

	op.enter(StateRemovingRegistry)
	if err := c.topics.UnregisterTopic(ctx, projectID, name); err != nil {
		op.logger.Error("topic marked for deletion but registry row kept", zap.Error(err))
		return op.end(err)
	}

	c.publish(ctx, op, notify.NewEvent(notify.TopicDeleted, int32(projectID), name))
	return op.end(nil)
}

// ListTopics returns the topics projectID owns and those shared with it.
func (c *ControlPlane) ListTopics(ctx context.Context, projectID registry.ProjectID) (ProjectTopics, error) {
	op := c.begin("list_topics", zap.Int32("project", int32(projectID)))

	owned, err := c.topics.ListTopicsOwned(ctx, projectID)
	if err != nil {
		return ProjectTopics{}, op.end(err)
	}
	shared, err := c.topics.ListTopicsShared(ctx, projectID)
	if err != nil {
		return ProjectTopics{}, op.end(err)
	}
	return ProjectTopics{Owned: owned, Shared: shared}, op.end(nil)
}

// DescribeTopic returns the registry record of a topic owned by or shared
// with projectID together with its live partition status.
func (c *ControlPlane) DescribeTopic(ctx context.Context, projectID registry.ProjectID, name string) (TopicDescription, error) {
	op := c.begin("describe_topic", zap.String("topic", name), zap.Int32("project", int32(projectID)))

	topic, shared, err := c.topics.Lookup(ctx, projectID, name)
	if err != nil {
		return TopicDescription{}, op.end(err)
	}
	partitions, err := c.reader.DescribeTopic(ctx, name)
	if err != nil {
		return TopicDescription{}, op.end(err)
	}
	return TopicDescription{Topic: topic, Shared: shared, Partitions: partitions}, op.end(nil)
}

func (c *ControlPlane) ShareTopic(ctx context.Context, owner registry.ProjectID, name string, target registry.ProjectID) error {
	op := c.begin("share_topic", zap.String("topic", name),
		zap.Int32("project", int32(owner)), zap.Int32("target", int32(target)))

	if err := c.topics.ShareTopic(ctx, owner, name, target); err != nil {
		return op.end(err)
	}
	e := notify.NewEvent(notify.TopicShared, int32(owner), name)
	e.TargetProject = int32(target)
	c.publish(ctx, op, e)
	return op.end(nil)
}

// UnshareTopic revokes target's access to name and removes target's ACL rules
// on it. When owner is given it must be the topic's owner.
func (c *ControlPlane) UnshareTopic(ctx context.Context, name string, target registry.ProjectID, owner ...registry.ProjectID) error {
	op := c.begin("unshare_topic", zap.String("topic", name), zap.Int32("target", int32(target)))

	if err := c.topics.UnshareTopic(ctx, name, target, owner...); err != nil {
		return op.end(err)
	}
	var projectID int32
	if len(owner) > 0 {
		projectID = int32(owner[0])
	}
	e := notify.NewEvent(notify.TopicUnshared, projectID, name)
	e.TargetProject = int32(target)
	c.publish(ctx, op, e)
	return op.end(nil)
}

// SharedWith lists the projects name is shared with. Only the owner may ask.
func (c *ControlPlane) SharedWith(ctx context.Context, owner registry.ProjectID, name string) ([]registry.ProjectID, error) {
	op := c.begin("shared_with", zap.String("topic", name), zap.Int32("project", int32(owner)))

	projects, err := c.topics.SharedWith(ctx, name, owner)
	if err != nil {
		return nil, op.end(err)
	}
	return projects, op.end(nil)
}
