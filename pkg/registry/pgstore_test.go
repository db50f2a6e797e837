package registry_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/edgeflare/kcp/internal/testutil/pgtest"
	"github.com/edgeflare/kcp/pkg/registry"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newPGStore migrates a fresh schema on TEST_DATABASE and points the
// connection's search_path at it.
func newPGStore(t *testing.T) (*registry.PGStore, *pgx.Conn) {
	t.Helper()
	ctx := context.Background()
	conn := pgtest.Connect(ctx, t)

	schema := fmt.Sprintf("kcp_test_%d", time.Now().UnixNano())
	_, err := conn.Exec(ctx, `CREATE SCHEMA `+schema)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = conn.Exec(context.Background(), `DROP SCHEMA `+schema+` CASCADE`)
	})
	_, err = conn.Exec(ctx, `SET search_path TO `+schema)
	require.NoError(t, err)
	_, err = conn.Exec(ctx, `CREATE TABLE users (email TEXT PRIMARY KEY, username TEXT NOT NULL)`)
	require.NoError(t, err)
	_, err = conn.Exec(ctx, `INSERT INTO users VALUES ('ann@example.com', 'ann')`)
	require.NoError(t, err)

	store := registry.NewPGStore(conn, nil)
	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, store.Migrate(ctx), "migrate is idempotent")
	return store, conn
}

func TestPGStoreTopics(t *testing.T) {
	ctx := context.Background()
	store, _ := newPGStore(t)
	topics := registry.NewTopicRegistry(store, nil)

	register(t, topics, projectP, "clicks")
	err := topics.RegisterTopic(ctx, registry.Topic{Name: "clicks", ProjectID: projectQ, Partitions: 1, ReplicationFactor: 1})
	assert.ErrorIs(t, err, registry.ErrDuplicateTopic)

	owned, err := topics.ListTopicsOwned(ctx, projectP)
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, int32(3), owned[0].Partitions)
	assert.Equal(t, int16(2), owned[0].ReplicationFactor)

	require.NoError(t, topics.ShareTopic(ctx, projectP, "clicks", projectQ))
	assert.ErrorIs(t, topics.ShareTopic(ctx, projectP, "clicks", projectQ), registry.ErrAlreadyShared)

	_, shared, err := topics.Lookup(ctx, projectQ, "clicks")
	require.NoError(t, err)
	assert.True(t, shared)

	require.NoError(t, topics.UnshareTopic(ctx, "clicks", projectQ, projectP))
	assert.ErrorIs(t, topics.UnshareTopic(ctx, "clicks", projectQ), registry.ErrShareNotFound)

	assert.ErrorIs(t, topics.UnregisterTopic(ctx, projectQ, "clicks"), registry.ErrTopicNotOwned)
	require.NoError(t, topics.UnregisterTopic(ctx, projectP, "clicks"))

	all, err := topics.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestPGStoreAcls(t *testing.T) {
	ctx := context.Background()
	store, conn := newPGStore(t)
	topics := registry.NewTopicRegistry(store, nil)
	acls := registry.NewACLRegistry(store, registry.NewPGPrincipalResolver(conn), nil)

	register(t, topics, projectP, "clicks")

	rule, err := acls.AddAcl(ctx, "clicks", projectP, readSpec)
	require.NoError(t, err)
	assert.Equal(t, "ann", rule.Principal)

	spec := readSpec
	spec.PrincipalEmail = "nobody@example.com"
	_, err = acls.AddAcl(ctx, "clicks", projectP, spec)
	assert.ErrorIs(t, err, registry.ErrPrincipalNotFound)

	spec = readSpec
	spec.Operation = registry.OperationWrite
	_, err = acls.UpdateAcl(ctx, rule.ID, spec)
	require.NoError(t, err)

	rules, err := acls.ListAcls(ctx, "clicks", projectP)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, rule.ID, rules[0].ID)
	assert.Equal(t, registry.OperationWrite, rules[0].Operation)

	require.NoError(t, acls.RemoveAcl(ctx, "clicks", rule.ID))
	assert.ErrorIs(t, acls.RemoveAcl(ctx, "clicks", rule.ID), registry.ErrAclNotFound)
}
