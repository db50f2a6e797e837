package registry_test

import (
	"context"
	"testing"

	"github.com/edgeflare/kcp/pkg/registry"
	"github.com/edgeflare/kcp/pkg/registry/registrytest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type aclFixture struct {
	topics *registry.TopicRegistry
	acls   *registry.ACLRegistry
}

func newACLFixture(t *testing.T) aclFixture {
	t.Helper()
	store := registrytest.NewStore()
	f := aclFixture{
		topics: registry.NewTopicRegistry(store, nil),
		acls: registry.NewACLRegistry(store, registrytest.Principals{
			"ann@example.com": "ann",
			"bob@example.com": "bob",
		}, nil),
	}
	register(t, f.topics, projectP, "clicks")
	register(t, f.topics, projectP, "views")
	require.NoError(t, f.topics.ShareTopic(context.Background(), projectP, "clicks", projectQ))
	return f
}

var readSpec = registry.AclSpec{
	PrincipalEmail: "ann@example.com",
	Permission:     registry.PermissionAllow,
	Operation:      registry.OperationRead,
}

func TestAddAcl(t *testing.T) {
	ctx := context.Background()
	f := newACLFixture(t)

	rule, err := f.acls.AddAcl(ctx, "clicks", projectP, readSpec)
	require.NoError(t, err)
	assert.NotZero(t, rule.ID)
	assert.Equal(t, "ann", rule.Principal)
	assert.Equal(t, registry.HostAny, rule.Host)
	assert.Equal(t, registry.RoleAny, rule.Role)

	t.Run("shared project may add", func(t *testing.T) {
		rule, err := f.acls.AddAcl(ctx, "clicks", projectQ, readSpec)
		require.NoError(t, err)
		assert.Equal(t, projectQ, rule.ProjectID)
	})

	t.Run("foreign project", func(t *testing.T) {
		_, err := f.acls.AddAcl(ctx, "views", projectQ, readSpec)
		assert.ErrorIs(t, err, registry.ErrTopicNotOwned)
	})

	t.Run("unregistered topic", func(t *testing.T) {
		_, err := f.acls.AddAcl(ctx, "never-created", projectP, readSpec)
		assert.ErrorIs(t, err, registry.ErrTopicNotOwned)
		assert.ErrorIs(t, err, registry.ErrTopicNotRegistered)
	})

	t.Run("unknown principal", func(t *testing.T) {
		spec := readSpec
		spec.PrincipalEmail = "eve@example.com"
		_, err := f.acls.AddAcl(ctx, "clicks", projectP, spec)
		assert.ErrorIs(t, err, registry.ErrPrincipalNotFound)
	})

	t.Run("invalid values", func(t *testing.T) {
		spec := readSpec
		spec.Operation = "produce"
		_, err := f.acls.AddAcl(ctx, "clicks", projectP, spec)
		assert.ErrorIs(t, err, registry.ErrInvalidAcl)
	})
}

func TestListAcls(t *testing.T) {
	ctx := context.Background()
	f := newACLFixture(t)

	first, err := f.acls.AddAcl(ctx, "clicks", projectP, readSpec)
	require.NoError(t, err)
	second, err := f.acls.AddAcl(ctx, "clicks", projectQ, readSpec)
	require.NoError(t, err)
	_, err = f.acls.AddAcl(ctx, "views", projectP, readSpec)
	require.NoError(t, err)

	rules, err := f.acls.ListAcls(ctx, "clicks", projectQ)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, first.ID, rules[0].ID)
	assert.Equal(t, second.ID, rules[1].ID)

	_, err = f.acls.ListAcls(ctx, "views", projectQ)
	assert.ErrorIs(t, err, registry.ErrTopicNotRegistered)
	_, err = f.acls.ListAcls(ctx, "missing", projectP)
	assert.ErrorIs(t, err, registry.ErrTopicNotRegistered)
}

func TestUpdateAclReplaces(t *testing.T) {
	ctx := context.Background()
	f := newACLFixture(t)

	rule, err := f.acls.AddAcl(ctx, "clicks", projectP, readSpec)
	require.NoError(t, err)

	updated, err := f.acls.UpdateAcl(ctx, rule.ID, registry.AclSpec{
		PrincipalEmail: "bob@example.com",
		Permission:     registry.PermissionDeny,
		Operation:      registry.OperationWrite,
		Host:           "10.0.0.1",
		Role:           "data scientist",
	})
	require.NoError(t, err)
	assert.Equal(t, rule.ID, updated.ID)

	rules, err := f.acls.ListAcls(ctx, "clicks", projectP)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, registry.AclRule{
		ID:         rule.ID,
		TopicName:  "clicks",
		ProjectID:  projectP,
		Principal:  "bob",
		Permission: registry.PermissionDeny,
		Operation:  registry.OperationWrite,
		Host:       "10.0.0.1",
		Role:       registry.RoleDataScientist,
	}, rules[0])

	_, err = f.acls.UpdateAcl(ctx, 999, readSpec)
	assert.ErrorIs(t, err, registry.ErrAclNotFound)
}

func TestRemoveAcl(t *testing.T) {
	ctx := context.Background()
	f := newACLFixture(t)

	rule, err := f.acls.AddAcl(ctx, "clicks", projectP, readSpec)
	require.NoError(t, err)

	assert.ErrorIs(t, f.acls.RemoveAcl(ctx, "views", rule.ID), registry.ErrAclTopicMismatch)
	require.NoError(t, f.acls.RemoveAcl(ctx, "clicks", rule.ID))
	assert.ErrorIs(t, f.acls.RemoveAcl(ctx, "clicks", rule.ID), registry.ErrAclNotFound)
}

func TestUnshareDropsConsumerAcls(t *testing.T) {
	ctx := context.Background()
	f := newACLFixture(t)

	owner, err := f.acls.AddAcl(ctx, "clicks", projectP, readSpec)
	require.NoError(t, err)
	_, err = f.acls.AddAcl(ctx, "clicks", projectQ, readSpec)
	require.NoError(t, err)

	require.NoError(t, f.topics.UnshareTopic(ctx, "clicks", projectQ))

	rules, err := f.acls.ListAcls(ctx, "clicks", projectP)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, owner.ID, rules[0].ID)
}
