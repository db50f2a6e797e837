package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// ACLRegistry keeps the access rules of registered topics. A project may manage
// rules on topics it owns or that are shared with it.
type ACLRegistry struct {
	store      Store
	topics     *TopicRegistry
	principals PrincipalResolver
	logger     *zap.Logger
}

func NewACLRegistry(store Store, principals PrincipalResolver, logger *zap.Logger) *ACLRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ACLRegistry{
		store:      store,
		topics:     NewTopicRegistry(store, logger),
		principals: principals,
		logger:     logger,
	}
}

// ListAcls returns the rules on name ordered by id. It fails with
// ErrTopicNotRegistered when name is neither owned by nor shared with projectID.
func (r *ACLRegistry) ListAcls(ctx context.Context, name string, projectID ProjectID) ([]AclRule, error) {
	if _, _, err := r.topics.Lookup(ctx, projectID, name); err != nil {
		if errors.Is(err, ErrTopicNotOwned) {
			err = fmt.Errorf("topic %q for project %d: %w", name, projectID, ErrTopicNotRegistered)
		}
		return nil, fmt.Errorf("list acls: %w", err)
	}
	rules, err := r.store.AclsByTopic(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("list acls of topic %q: %w", name, err)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
	return rules, nil
}

// resolve validates spec and fills rule from it.
func (r *ACLRegistry) resolve(ctx context.Context, rule AclRule, spec AclSpec) (AclRule, error) {
	spec, err := spec.Normalize()
	if err != nil {
		return AclRule{}, err
	}
	username, err := r.principals.ResolveUsername(ctx, spec.PrincipalEmail)
	if err != nil {
		return AclRule{}, fmt.Errorf("resolve %q: %w", spec.PrincipalEmail, err)
	}
	rule.Principal = username
	rule.Permission = spec.Permission
	rule.Operation = spec.Operation
	rule.Host = spec.Host
	rule.Role = spec.Role
	return rule, nil
}

// AddAcl stores a new rule on name. The topic must be owned by or shared with
// projectID, else ErrTopicNotOwned, also when name is not registered at all.
func (r *ACLRegistry) AddAcl(ctx context.Context, name string, projectID ProjectID, spec AclSpec) (AclRule, error) {
	if _, _, err := r.topics.Lookup(ctx, projectID, name); err != nil {
		if errors.Is(err, ErrTopicNotRegistered) {
			err = fmt.Errorf("%w: %w", ErrTopicNotOwned, err)
		}
		return AclRule{}, fmt.Errorf("add acl: %w", err)
	}
	rule, err := r.resolve(ctx, AclRule{TopicName: name, ProjectID: projectID}, spec)
	if err != nil {
		return AclRule{}, fmt.Errorf("add acl on topic %q: %w", name, err)
	}
	rule, err = r.store.InsertAcl(ctx, rule)
	if err != nil {
		return AclRule{}, fmt.Errorf("add acl on topic %q: %w", name, err)
	}
	r.logger.Debug("acl added", zap.String("topic", name), zap.Int64("id", rule.ID), zap.String("principal", rule.Principal))
	return rule, nil
}

// UpdateAcl replaces rule id with the values of spec. The rule keeps its id,
// topic and project; the store swaps the row in one transaction.
func (r *ACLRegistry) UpdateAcl(ctx context.Context, id int64, spec AclSpec) (AclRule, error) {
	current, err := r.store.GetAcl(ctx, id)
	if err != nil {
		return AclRule{}, fmt.Errorf("update acl %d: %w", id, err)
	}
	rule, err := r.resolve(ctx, AclRule{ID: id, TopicName: current.TopicName, ProjectID: current.ProjectID}, spec)
	if err != nil {
		return AclRule{}, fmt.Errorf("update acl %d: %w", id, err)
	}
	if err := r.store.ReplaceAcl(ctx, rule); err != nil {
		return AclRule{}, fmt.Errorf("update acl %d: %w", id, err)
	}
	return rule, nil
}

// GetAcl returns rule id.
func (r *ACLRegistry) GetAcl(ctx context.Context, id int64) (AclRule, error) {
	rule, err := r.store.GetAcl(ctx, id)
	if err != nil {
		return AclRule{}, fmt.Errorf("get acl %d: %w", id, err)
	}
	return rule, nil
}

// RemoveAcl deletes rule id, which must belong to name.
func (r *ACLRegistry) RemoveAcl(ctx context.Context, name string, id int64) error {
	rule, err := r.store.GetAcl(ctx, id)
	if err != nil {
		return fmt.Errorf("remove acl %d: %w", id, err)
	}
	if rule.TopicName != name {
		return fmt.Errorf("remove acl %d from topic %q: %w", id, name, ErrAclTopicMismatch)
	}
	if err := r.store.DeleteAcl(ctx, id); err != nil {
		return fmt.Errorf("remove acl %d: %w", id, err)
	}
	return nil
}
