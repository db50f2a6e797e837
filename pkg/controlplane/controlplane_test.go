package controlplane

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/edgeflare/kcp/pkg/kafka"
	"github.com/edgeflare/kcp/pkg/kafka/kafkatest"
	"github.com/edgeflare/kcp/pkg/notify"
	"github.com/edgeflare/kcp/pkg/registry"
	"github.com/edgeflare/kcp/pkg/registry/registrytest"
	"github.com/edgeflare/kcp/pkg/zk"
	"github.com/edgeflare/kcp/pkg/zk/zktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const (
	projectP registry.ProjectID = 10
	projectQ registry.ProjectID = 20
)

// countingAdmin records which cluster commands were issued.
type countingAdmin struct {
	*kafka.ClusterAdmin
	mu    sync.Mutex
	calls []string
}

func (a *countingAdmin) record(call string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, call)
}

func (a *countingAdmin) Calls() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.calls...)
}

func (a *countingAdmin) CreateTopic(ctx context.Context, name string, partitions int32, rf int16) error {
	a.record("create " + name)
	return a.ClusterAdmin.CreateTopic(ctx, name, partitions, rf)
}

func (a *countingAdmin) DeleteTopic(ctx context.Context, name string) error {
	a.record("delete " + name)
	return a.ClusterAdmin.DeleteTopic(ctx, name)
}

type fixture struct {
	cp       *ControlPlane
	coord    *zktest.Coordinator
	admin    *countingAdmin
	metadata *kafkatest.MetadataClient
	store    *registrytest.Store
	events   *notify.Recorder
	logs     *observer.ObservedLogs
}

func newFixture(t *testing.T, brokers int) *fixture {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	coord := zktest.New()
	for i := 1; i <= brokers; i++ {
		coord.AddBroker(int32(i), fmt.Sprintf("kafka%d", i), 9092)
	}
	admin := &countingAdmin{ClusterAdmin: kafka.NewClusterAdmin(coord, logger)}
	directory := kafka.NewBrokerDirectory(coord, "", logger)
	metadata := kafkatest.NewMetadataClient(coord)
	reader := kafka.NewMetadataReader(directory, metadata, logger)

	store := registrytest.NewStore()
	principals := registrytest.Principals{"ann@example.com": "ann", "bob@example.com": "bob"}
	events := &notify.Recorder{}

	cp := New(admin, directory, reader,
		registry.NewTopicRegistry(store, logger),
		registry.NewACLRegistry(store, principals, logger),
		Options{DefaultPartitions: 2, DefaultReplicationFactor: 1, Notifier: events, Logger: logger})

	return &fixture{cp: cp, coord: coord, admin: admin, metadata: metadata, store: store, events: events, logs: logs}
}

// create registers name with three single-replica partitions, which any
// fixture size can host.
func (f *fixture) create(t *testing.T, project registry.ProjectID, name string) {
	t.Helper()
	_, err := f.cp.CreateTopic(context.Background(), project, TopicRequest{Name: name, Partitions: 3, ReplicationFactor: 1})
	require.NoError(t, err)
}

func TestCreateThenDescribe(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 4)

	topic, err := f.cp.CreateTopic(ctx, projectP, TopicRequest{Name: "clicks", Partitions: 3, ReplicationFactor: 2})
	require.NoError(t, err)
	assert.Equal(t, projectP, topic.ProjectID)

	desc, err := f.cp.DescribeTopic(ctx, projectP, "clicks")
	require.NoError(t, err)
	assert.False(t, desc.Shared)
	require.Len(t, desc.Partitions, 3)
	for i, p := range desc.Partitions {
		assert.Equal(t, int32(i), p.ID)
		assert.Len(t, p.Replicas, 2)
		assert.NotEmpty(t, p.Leader)
		assert.False(t, p.UnderReplicated())
	}

	assert.Equal(t, []notify.Kind{notify.TopicCreated}, f.events.Kinds())
}

func TestCreatePartitionCountMatches(t *testing.T) {
	ctx := context.Background()
	for _, tc := range []struct {
		brokers    int
		partitions int32
		rf         int16
	}{
		{1, 1, 1},
		{3, 7, 3},
		{4, 12, 2},
		{5, 1, 5},
	} {
		t.Run(fmt.Sprintf("%d brokers %d partitions rf %d", tc.brokers, tc.partitions, tc.rf), func(t *testing.T) {
			f := newFixture(t, tc.brokers)
			_, err := f.cp.CreateTopic(ctx, projectP, TopicRequest{Name: "t", Partitions: tc.partitions, ReplicationFactor: tc.rf})
			require.NoError(t, err)

			desc, err := f.cp.DescribeTopic(ctx, projectP, "t")
			require.NoError(t, err)
			assert.Len(t, desc.Partitions, int(tc.partitions))
		})
	}
}

func TestCreateAppliesDefaults(t *testing.T) {
	f := newFixture(t, 1)
	topic, err := f.cp.CreateTopic(context.Background(), projectP, TopicRequest{Name: "defaults"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), topic.Partitions)
	assert.Equal(t, int16(1), topic.ReplicationFactor)
}

func TestCreateTwice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 4)
	f.create(t, projectP, "clicks")

	_, err := f.cp.CreateTopic(ctx, projectP, TopicRequest{Name: "clicks", Partitions: 3, ReplicationFactor: 2})
	assert.ErrorIs(t, err, kafka.ErrTopicAlreadyExists)
	assert.ErrorIs(t, err, registry.ErrDuplicateTopic)
	assert.Equal(t, "topic_already_exists", Kind(err))
	assert.Equal(t, 1, f.store.TopicCount())
	assert.Equal(t, []string{"create clicks"}, f.admin.Calls())

	_, err = f.cp.CreateTopic(ctx, projectQ, TopicRequest{Name: "clicks", Partitions: 1, ReplicationFactor: 1})
	assert.ErrorIs(t, err, kafka.ErrTopicAlreadyExists, "names are unique across projects")
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name    string
		req     TopicRequest
		wantErr error
	}{
		{"illegal name", TopicRequest{Name: "bad name", Partitions: 1, ReplicationFactor: 1}, kafka.ErrInvalidTopic},
		{"dot", TopicRequest{Name: ".", Partitions: 1, ReplicationFactor: 1}, kafka.ErrInvalidTopic},
		{"negative partitions", TopicRequest{Name: "t", Partitions: -1, ReplicationFactor: 1}, kafka.ErrInvalidTopic},
		{"negative replication", TopicRequest{Name: "t", Partitions: 1, ReplicationFactor: -2}, kafka.ErrInvalidTopic},
		{"too few brokers", TopicRequest{Name: "t", Partitions: 1, ReplicationFactor: 3}, kafka.ErrInsufficientBrokers},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 2)
			_, err := f.cp.CreateTopic(ctx, projectP, tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, f.admin.Calls(), "validation failures never reach the cluster")
			assert.Zero(t, f.store.TopicCount())
		})
	}
}

func TestCreateClusterFailureLeavesNoRow(t *testing.T) {
	ctx := context.Background()

	t.Run("topic already on cluster", func(t *testing.T) {
		f := newFixture(t, 2)
		f.coord.Put(zk.TopicPath("legacy"), []byte(`{"version":1,"partitions":{"0":[1]}}`))

		_, err := f.cp.CreateTopic(ctx, projectP, TopicRequest{Name: "legacy", Partitions: 1, ReplicationFactor: 1})
		assert.ErrorIs(t, err, kafka.ErrTopicAlreadyExists)
		assert.Zero(t, f.store.TopicCount())
		assert.Empty(t, f.events.Kinds())
	})

	t.Run("coordination down", func(t *testing.T) {
		f := newFixture(t, 2)
		f.coord.SetUnavailable(true)

		_, err := f.cp.CreateTopic(ctx, projectP, TopicRequest{Name: "clicks", Partitions: 1, ReplicationFactor: 1})
		assert.ErrorIs(t, err, kafka.ErrClusterUnavailable)
		assert.Equal(t, "cluster_unavailable", Kind(err))
		assert.Zero(t, f.store.TopicCount())
	})
}

func TestCreateRegistryFailureAfterCluster(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)

	boom := errors.New("registry down")
	cp := New(f.admin, kafka.NewBrokerDirectory(f.coord, "", nil), nil,
		failingRegister{Topics: registry.NewTopicRegistry(f.store, nil), err: boom}, nil, Options{})

	_, err := cp.CreateTopic(ctx, projectP, TopicRequest{Name: "orphan", Partitions: 1, ReplicationFactor: 1})
	assert.ErrorIs(t, err, boom)

	drift, err := cp.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"orphan"}, drift.Orphaned)
}

type failingRegister struct {
	Topics
	err error
}

func (f failingRegister) RegisterTopic(context.Context, registry.Topic) error {
	return f.err
}

func TestDeleteTopic(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2)
	_, err := f.cp.CreateTopic(ctx, projectP, TopicRequest{Name: "clicks", Partitions: 1, ReplicationFactor: 1})
	require.NoError(t, err)
	require.NoError(t, f.cp.ShareTopic(ctx, projectP, "clicks", projectQ))

	t.Run("shared project may not delete", func(t *testing.T) {
		err := f.cp.DeleteTopic(ctx, projectQ, "clicks")
		assert.ErrorIs(t, err, registry.ErrTopicNotOwned)
	})

	require.NoError(t, f.cp.DeleteTopic(ctx, projectP, "clicks"))
	_, marked := f.coord.Data(zk.DeleteTopicPath("clicks"))
	assert.True(t, marked)
	assert.Zero(t, f.store.TopicCount())

	topics, err := f.cp.ListTopics(ctx, projectQ)
	require.NoError(t, err)
	assert.Empty(t, topics.Shared, "shares go with the topic")

	assert.Equal(t, []notify.Kind{notify.TopicCreated, notify.TopicShared, notify.TopicDeleted}, f.events.Kinds())
}

func TestDeleteNeverRegistered(t *testing.T) {
	f := newFixture(t, 2)
	err := f.cp.DeleteTopic(context.Background(), projectP, "ghost")
	assert.ErrorIs(t, err, registry.ErrTopicNotOwned)
	assert.Empty(t, f.admin.Calls(), "no cluster call is attempted")
}

func TestDeleteInProgressKeepsRow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)
	f.create(t, projectP, "clicks")
	f.coord.Put(zk.DeleteTopicPath("clicks"), nil)

	err := f.cp.DeleteTopic(ctx, projectP, "clicks")
	assert.ErrorIs(t, err, kafka.ErrDeletionInProgress)
	assert.Equal(t, 1, f.store.TopicCount())
}

func TestDeleteAbsentFromCluster(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)
	f.create(t, projectP, "clicks")
	f.coord.Remove(zk.TopicPath("clicks"))

	require.NoError(t, f.cp.DeleteTopic(ctx, projectP, "clicks"))
	assert.Zero(t, f.store.TopicCount())
}

func TestDescribeScope(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 4)
	f.create(t, projectP, "clicks")

	_, err := f.cp.DescribeTopic(ctx, projectQ, "clicks")
	assert.ErrorIs(t, err, registry.ErrTopicNotOwned)
	assert.Empty(t, f.metadata.Calls(), "scope is checked before brokers are asked")

	require.NoError(t, f.cp.ShareTopic(ctx, projectP, "clicks", projectQ))
	desc, err := f.cp.DescribeTopic(ctx, projectQ, "clicks")
	require.NoError(t, err)
	assert.True(t, desc.Shared)
	assert.Len(t, desc.Partitions, 3)
}

func TestDescribeAllBrokersUnreachable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 4)
	f.create(t, projectP, "clicks")
	for i := 1; i <= 4; i++ {
		f.metadata.SetUnreachable(fmt.Sprintf("kafka%d:9092", i), true)
	}

	desc, err := f.cp.DescribeTopic(ctx, projectP, "clicks")
	assert.ErrorIs(t, err, kafka.ErrClusterUnavailable)
	assert.Empty(t, desc.Partitions)
	assert.Equal(t, "cluster_unavailable", Kind(err))
}

func TestDescribeSurvivesOneBroker(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 4)
	f.create(t, projectP, "clicks")
	for i := 1; i <= 3; i++ {
		f.metadata.SetUnreachable(fmt.Sprintf("kafka%d:9092", i), true)
	}

	desc, err := f.cp.DescribeTopic(ctx, projectP, "clicks")
	require.NoError(t, err)
	assert.Len(t, desc.Partitions, 3)
}

func TestShareAndUnshare(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2)
	f.create(t, projectP, "clicks")

	assert.ErrorIs(t, f.cp.ShareTopic(ctx, projectP, "clicks", projectP), registry.ErrSelfShare)
	assert.ErrorIs(t, f.cp.ShareTopic(ctx, projectQ, "ghost", projectQ), registry.ErrSelfShare)
	assert.ErrorIs(t, f.cp.ShareTopic(ctx, projectQ, "clicks", 30), registry.ErrTopicNotOwned)

	require.NoError(t, f.cp.ShareTopic(ctx, projectP, "clicks", projectQ))
	assert.ErrorIs(t, f.cp.ShareTopic(ctx, projectP, "clicks", projectQ), registry.ErrAlreadyShared)

	shared, err := f.cp.SharedWith(ctx, projectP, "clicks")
	require.NoError(t, err)
	assert.Equal(t, []registry.ProjectID{projectQ}, shared)

	topics, err := f.cp.ListTopics(ctx, projectQ)
	require.NoError(t, err)
	assert.Empty(t, topics.Owned)
	require.Len(t, topics.Shared, 1)
	assert.Equal(t, projectP, topics.Shared[0].OwnerProjectID)

	require.NoError(t, f.cp.UnshareTopic(ctx, "clicks", projectQ, projectP))
	assert.ErrorIs(t, f.cp.UnshareTopic(ctx, "clicks", projectQ), registry.ErrShareNotFound)

	events := f.events.Events()
	last := events[len(events)-1]
	assert.Equal(t, notify.TopicUnshared, last.Kind)
	assert.Equal(t, int32(projectQ), last.TargetProject)
	assert.NotEmpty(t, last.OperationID)
}

func TestNotifierFailureDoesNotFail(t *testing.T) {
	f := newFixture(t, 1)
	f.events.Err = errors.New("nats down")

	_, err := f.cp.CreateTopic(context.Background(), projectP, TopicRequest{Name: "clicks"})
	require.NoError(t, err)
	assert.Equal(t, 1, f.logs.FilterMessage("event publish failed").Len())
}

func TestStatesAreLogged(t *testing.T) {
	f := newFixture(t, 1)
	_, err := f.cp.CreateTopic(context.Background(), projectP, TopicRequest{Name: "clicks"})
	require.NoError(t, err)

	var states []string
	var opIDs = map[string]bool{}
	for _, entry := range f.logs.FilterMessage("state").FilterField(zap.String("op", "create_topic")).All() {
		states = append(states, entry.ContextMap()["state"].(string))
		opIDs[entry.ContextMap()["opId"].(string)] = true
	}
	assert.Equal(t, []string{"validating", "creating_on_cluster", "persisting_registry", "done"}, states)
	assert.Len(t, opIDs, 1)

	f.logs.TakeAll()
	require.Error(t, f.cp.DeleteTopic(context.Background(), projectQ, "clicks"))
	states = nil
	for _, entry := range f.logs.FilterMessage("state").All() {
		states = append(states, entry.ContextMap()["state"].(string))
	}
	assert.Equal(t, []string{"validating", "failed"}, states)
}

func TestTopicDefaults(t *testing.T) {
	f := newFixture(t, 3)
	d, err := f.cp.TopicDefaults(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Defaults{Partitions: 2, ReplicationFactor: 1, BrokerCount: 3}, d)

	f.coord.SetUnavailable(true)
	_, err = f.cp.TopicDefaults(context.Background())
	assert.ErrorIs(t, err, kafka.ErrClusterUnavailable)
}

func TestBrokers(t *testing.T) {
	f := newFixture(t, 2)
	brokers, err := f.cp.Brokers(context.Background())
	require.NoError(t, err)
	require.Len(t, brokers, 2)
	assert.Equal(t, "kafka1:9092", brokers[0].Addr())
}

func TestReconcile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2)
	f.create(t, projectP, "clicks")
	f.create(t, projectP, "views")
	f.create(t, projectP, "gone")

	f.coord.Put(zk.TopicPath("__consumer_offsets"), []byte(`{"version":1,"partitions":{"0":[1]}}`))
	f.coord.Put(zk.TopicPath("legacy"), []byte(`{"version":1,"partitions":{"0":[1]}}`))
	f.coord.Remove(zk.TopicPath("gone"))
	require.NoError(t, f.cp.DeleteTopic(ctx, projectP, "views"))

	drift, err := f.cp.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"legacy"}, drift.Orphaned)
	assert.Equal(t, []string{"gone"}, drift.Missing)
	assert.Equal(t, []string{"views"}, drift.Deleting)
	assert.False(t, drift.Empty())
}
