package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// TopicRegistry records which project owns each topic and which projects a
// topic is shared with.
type TopicRegistry struct {
	store  Store
	logger *zap.Logger
}

func NewTopicRegistry(store Store, logger *zap.Logger) *TopicRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TopicRegistry{store: store, logger: logger}
}

func (r *TopicRegistry) ListTopicsOwned(ctx context.Context, projectID ProjectID) ([]Topic, error) {
	topics, err := r.store.TopicsByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list owned topics of project %d: %w", projectID, err)
	}
	sort.Slice(topics, func(i, j int) bool { return topics[i].Name < topics[j].Name })
	return topics, nil
}

// ListTopicsShared returns the topics other projects share with projectID.
func (r *TopicRegistry) ListTopicsShared(ctx context.Context, projectID ProjectID) ([]TopicShare, error) {
	shares, err := r.store.SharesByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list shared topics of project %d: %w", projectID, err)
	}
	sort.Slice(shares, func(i, j int) bool { return shares[i].TopicName < shares[j].TopicName })
	return shares, nil
}

// FindOwningProjects returns every project holding name: the owner first, then
// the projects it is shared with. A name nobody holds fails with
// ErrTopicNotRegistered, which marks it orphaned or foreign.
func (r *TopicRegistry) FindOwningProjects(ctx context.Context, name string) ([]ProjectID, error) {
	t, err := r.store.GetTopic(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("find projects of topic %q: %w", name, err)
	}
	shares, err := r.store.SharesByTopic(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("find projects of topic %q: %w", name, err)
	}
	sort.Slice(shares, func(i, j int) bool { return shares[i].ProjectID < shares[j].ProjectID })

	projects := make([]ProjectID, 0, len(shares)+1)
	projects = append(projects, t.ProjectID)
	for _, s := range shares {
		projects = append(projects, s.ProjectID)
	}
	return projects, nil
}

// RegisterTopic records t as owned by t.ProjectID. A name registered by any
// project fails with ErrDuplicateTopic.
func (r *TopicRegistry) RegisterTopic(ctx context.Context, t Topic) error {
	if err := r.store.InsertTopic(ctx, t); err != nil {
		return fmt.Errorf("register topic %q: %w", t.Name, err)
	}
	r.logger.Debug("topic registered", zap.String("topic", t.Name), zap.Int32("project", int32(t.ProjectID)))
	return nil
}

// UnregisterTopic removes the topic owned by projectID along with its shares
// and ACL rules.
func (r *TopicRegistry) UnregisterTopic(ctx context.Context, projectID ProjectID, name string) error {
	if err := r.store.DeleteTopic(ctx, projectID, name); err != nil {
		return fmt.Errorf("unregister topic %q: %w", name, err)
	}
	r.logger.Debug("topic unregistered", zap.String("topic", name), zap.Int32("project", int32(projectID)))
	return nil
}

// ShareTopic grants target access to name, which owner must own.
func (r *TopicRegistry) ShareTopic(ctx context.Context, owner ProjectID, name string, target ProjectID) error {
	if owner == target {
		return fmt.Errorf("share topic %q: %w", name, ErrSelfShare)
	}
	t, err := r.store.GetTopic(ctx, name)
	if err != nil {
		return fmt.Errorf("share topic %q: %w", name, err)
	}
	if t.ProjectID != owner {
		return fmt.Errorf("share topic %q: %w", name, ErrTopicNotOwned)
	}
	if t.ProjectID == target {
		return fmt.Errorf("share topic %q: %w", name, ErrSelfShare)
	}

	if err := r.store.InsertShare(ctx, TopicShare{TopicName: name, OwnerProjectID: owner, ProjectID: target}); err != nil {
		return fmt.Errorf("share topic %q with project %d: %w", name, target, err)
	}
	return nil
}

// UnshareTopic revokes target's share of name together with target's ACL rules
// on it. When owner is given it must match the share's owner.
func (r *TopicRegistry) UnshareTopic(ctx context.Context, name string, target ProjectID, owner ...ProjectID) error {
	share, err := r.store.GetShare(ctx, name, target)
	if err != nil {
		return fmt.Errorf("unshare topic %q from project %d: %w", name, target, err)
	}
	if len(owner) > 0 && share.OwnerProjectID != owner[0] {
		return fmt.Errorf("unshare topic %q from project %d: %w", name, target, ErrShareNotFound)
	}
	if err := r.store.DeleteShare(ctx, name, target); err != nil {
		return fmt.Errorf("unshare topic %q from project %d: %w", name, target, err)
	}
	return nil
}

// SharedWith lists the projects name is shared with. Only the owner may ask.
func (r *TopicRegistry) SharedWith(ctx context.Context, name string, owner ProjectID) ([]ProjectID, error) {
	t, err := r.store.GetTopic(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("list shares of topic %q: %w", name, err)
	}
	if t.ProjectID != owner {
		return nil, fmt.Errorf("list shares of topic %q: %w", name, ErrTopicNotOwned)
	}
	shares, err := r.store.SharesByTopic(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("list shares of topic %q: %w", name, err)
	}
	projects := make([]ProjectID, 0, len(shares))
	for _, s := range shares {
		projects = append(projects, s.ProjectID)
	}
	sort.Slice(projects, func(i, j int) bool { return projects[i] < projects[j] })
	return projects, nil
}

// Lookup resolves name from projectID's point of view; shared reports whether
// projectID reaches it through a share. A topic that exists but is neither
// owned by nor shared with projectID fails with ErrTopicNotOwned.
func (r *TopicRegistry) Lookup(ctx context.Context, projectID ProjectID, name string) (t Topic, shared bool, err error) {
	t, err = r.store.GetTopic(ctx, name)
	if err != nil {
		return Topic{}, false, fmt.Errorf("lookup topic %q: %w", name, err)
	}
	if t.ProjectID == projectID {
		return t, false, nil
	}
	_, err = r.store.GetShare(ctx, name, projectID)
	if errors.Is(err, ErrShareNotFound) {
		return Topic{}, false, fmt.Errorf("lookup topic %q: %w", name, ErrTopicNotOwned)
	}
	if err != nil {
		return Topic{}, false, fmt.Errorf("lookup topic %q: %w", name, err)
	}
	return t, true, nil
}

// ListAll returns every registered topic, sorted by name.
func (r *TopicRegistry) ListAll(ctx context.Context) ([]Topic, error) {
	topics, err := r.store.AllTopics(ctx)
	if err != nil {
		return nil, fmt.Errorf("list registered topics: %w", err)
	}
	sort.Slice(topics, func(i, j int) bool { return topics[i].Name < topics[j].Name })
	return topics, nil
}
