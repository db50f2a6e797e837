package controlplane

import (
	"context"
	"errors"
	"fmt"

	"github.com/edgeflare/kcp/pkg/notify"
	"github.com/edgeflare/kcp/pkg/registry"
	"go.uber.org/zap"
)

func (c *ControlPlane) ListAcls(ctx context.Context, projectID registry.ProjectID, name string) ([]registry.AclRule, error) {
	op := c.begin("list_acls", zap.String("topic", name), zap.Int32("project", int32(projectID)))

	rules, err := c.acls.ListAcls(ctx, name, projectID)
	if err != nil {
		return nil, op.end(err)
	}
	return rules, op.end(nil)
}

// AddAcl adds a rule on a topic owned by or shared with projectID.
func (c *ControlPlane) AddAcl(ctx context.Context, projectID registry.ProjectID, name string, spec registry.AclSpec) (registry.AclRule, error) {
	op := c.begin("add_acl", zap.String("topic", name), zap.Int32("project", int32(projectID)))

	rule, err := c.acls.AddAcl(ctx, name, projectID, spec)
	if err != nil {
		return registry.AclRule{}, op.end(err)
	}
	e := notify.NewEvent(notify.AclAdded, int32(projectID), name)
	e.AclID = rule.ID
	c.publish(ctx, op, e)
	return rule, op.end(nil)
}

// aclInScope checks that rule id sits on name and that projectID may manage
// name's rules.
func (c *ControlPlane) aclInScope(ctx context.Context, projectID registry.ProjectID, name string, id int64) error {
	if _, _, err := c.topics.Lookup(ctx, projectID, name); err != nil {
		if errors.Is(err, registry.ErrTopicNotRegistered) {
			return fmt.Errorf("%w: %w", registry.ErrTopicNotOwned, err)
		}
		return err
	}
	rule, err := c.acls.GetAcl(ctx, id)
	if err != nil {
		return err
	}
	if rule.TopicName != name {
		return fmt.Errorf("acl %d is not on topic %q: %w", id, name, registry.ErrAclTopicMismatch)
	}
	return nil
}

// UpdateAcl replaces the values of rule id, keeping its id.
func (c *ControlPlane) UpdateAcl(ctx context.Context, projectID registry.ProjectID, name string, id int64, spec registry.AclSpec) (registry.AclRule, error) {
	op := c.begin("update_acl", zap.String("topic", name), zap.Int32("project", int32(projectID)), zap.Int64("acl", id))

	if err := c.aclInScope(ctx, projectID, name, id); err != nil {
		return registry.AclRule{}, op.end(err)
	}
	rule, err := c.acls.UpdateAcl(ctx, id, spec)
	if err != nil {
		return registry.AclRule{}, op.end(err)
	}
	e := notify.NewEvent(notify.AclUpdated, int32(projectID), name)
	e.AclID = id
	c.publish(ctx, op, e)
	return rule, op.end(nil)
}

func (c *ControlPlane) RemoveAcl(ctx context.Context, projectID registry.ProjectID, name string, id int64) error {
	op := c.begin("remove_acl", zap.String("topic", name), zap.Int32("project", int32(projectID)), zap.Int64("acl", id))

	if err := c.aclInScope(ctx, projectID, name, id); err != nil {
		return op.end(err)
	}
	if err := c.acls.RemoveAcl(ctx, name, id); err != nil {
		return op.end(err)
	}
	e := notify.NewEvent(notify.AclRemoved, int32(projectID), name)
	e.AclID = id
	c.publish(ctx, op, e)
	return op.end(nil)
}
