package cluster

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/solidb/pkg/storage"
	"github.com/cuemby/solidb/pkg/types"
)

// pickFreeAddr finds an ephemeral TCP port and immediately releases it so
// raft's transport can bind it; a test-only convenience, not a production
// port-allocation strategy.
func pickFreeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func newTestEngine(t *testing.T) *storage.Engine {
	t.Helper()
	e, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func TestShardForIsDeterministic(t *testing.T) {
	a := ShardFor("doc-1", 8)
	b := ShardFor("doc-1", 8)
	assert.Equal(t, a, b)
	assert.GreaterOrEqual(t, a, 0)
	assert.Less(t, a, 8)
}

func TestShardForDistributesAcrossShards(t *testing.T) {
	seen := map[int]bool{}
	for i := 0; i < 500; i++ {
		seen[ShardFor(string(rune('a'+i%26))+string(rune(i)), 4)] = true
	}
	assert.Greater(t, len(seen), 1)
}

func TestShardTablesGetMissing(t *testing.T) {
	tables := NewShardTables(newTestEngine(t))
	_, ok, err := tables.Get("app", "docs")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestShardTablesPutAndGet(t *testing.T) {
	tables := NewShardTables(newTestEngine(t))
	table := &types.ShardTable{
		Database: "app", Collection: "docs", Version: 1,
		Shards: []types.ShardAssignment{{ShardID: 0, Primary: "n1", Replicas: []string{"n2"}}},
	}
	require.NoError(t, tables.Put(table))

	got, ok, err := tables.Get("app", "docs")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(1), got.Version)
	assert.Equal(t, "n1", got.Shards[0].Primary)
}

func TestShardTablesPutRejectsNonIncreasingVersion(t *testing.T) {
	tables := NewShardTables(newTestEngine(t))
	table := &types.ShardTable{Database: "app", Collection: "docs", Version: 2, Shards: []types.ShardAssignment{{ShardID: 0, Primary: "n1"}}}
	require.NoError(t, tables.Put(table))

	stale := &types.ShardTable{Database: "app", Collection: "docs", Version: 2, Shards: []types.ShardAssignment{{ShardID: 0, Primary: "n2"}}}
	err := tables.Put(stale)
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidArgument, types.KindOf(err))
}

func TestShardTablesRouteKeyUnavailableWithoutTable(t *testing.T) {
	tables := NewShardTables(newTestEngine(t))
	_, err := tables.RouteKey("app", "docs", "k1")
	require.Error(t, err)
	assert.Equal(t, types.ErrUnavailable, types.KindOf(err))
}

func TestShardTablesRouteKeyReturnsAssignment(t *testing.T) {
	tables := NewShardTables(newTestEngine(t))
	table := &types.ShardTable{
		Database: "app", Collection: "docs", Version: 1,
		Shards: []types.ShardAssignment{
			{ShardID: 0, Primary: "n1"},
			{ShardID: 1, Primary: "n2"},
		},
	}
	require.NoError(t, tables.Put(table))

	key := "some-document-key"
	want := ShardFor(key, 2)
	assignment, err := tables.RouteKey("app", "docs", key)
	require.NoError(t, err)
	if want == 0 {
		assert.Equal(t, "n1", assignment.Primary)
	} else {
		assert.Equal(t, "n2", assignment.Primary)
	}
}

func TestMembershipHeartbeatRegistersAndMarksActive(t *testing.T) {
	now := time.Unix(1000, 0)
	m := NewMembership("n1", "127.0.0.1:8000", "127.0.0.1:9000", now)

	m.Heartbeat("n2", "127.0.0.1:8001", "127.0.0.1:9001", now)
	mem, ok := m.Get("n2")
	require.True(t, ok)
	assert.Equal(t, types.NodeActive, mem.Status)
}

func TestMembershipTickTransitionsLifecycle(t *testing.T) {
	start := time.Unix(1000, 0)
	m := NewMembership("n1", "a", "b", start)
	m.Heartbeat("n2", "a2", "b2", start)

	m.Tick(start.Add(2 * time.Second))
	mem, _ := m.Get("n2")
	assert.Equal(t, types.NodeActive, mem.Status)

	m.Tick(start.Add(4 * time.Second))
	mem, _ = m.Get("n2")
	assert.Equal(t, types.NodeSuspected, mem.Status)

	m.Tick(start.Add(11 * time.Second))
	mem, _ = m.Get("n2")
	assert.Equal(t, types.NodeDead, mem.Status)
}

func TestMembershipHeartbeatRevivesDeadMember(t *testing.T) {
	start := time.Unix(1000, 0)
	m := NewMembership("n1", "a", "b", start)
	m.Heartbeat("n2", "a2", "b2", start)
	m.Tick(start.Add(11 * time.Second))
	mem, _ := m.Get("n2")
	require.Equal(t, types.NodeDead, mem.Status)

	m.Heartbeat("n2", "a2", "b2", start.Add(12*time.Second))
	mem, _ = m.Get("n2")
	assert.Equal(t, types.NodeActive, mem.Status)
}

func TestMembershipNeverTransitionsLocalNode(t *testing.T) {
	start := time.Unix(1000, 0)
	m := NewMembership("n1", "a", "b", start)
	m.Tick(start.Add(time.Hour))
	mem, _ := m.Get("n1")
	assert.Equal(t, types.NodeActive, mem.Status)
}

func TestMembershipMembersSnapshot(t *testing.T) {
	start := time.Unix(1000, 0)
	m := NewMembership("n1", "a", "b", start)
	m.Heartbeat("n2", "a2", "b2", start)
	m.Heartbeat("n3", "a3", "b3", start)
	assert.Len(t, m.Members(), 3)
}

func TestCoordinatorBootstrapElectsSelfLeader(t *testing.T) {
	dataDir := t.TempDir()
	tables := NewShardTables(newTestEngine(t))
	coord := NewCoordinator("n1", "127.0.0.1:0", dataDir, tables)

	// NewTCPTransport requires a concrete port; bind to an ephemeral one.
	addr := pickFreeAddr(t)
	coord.bindAddr = addr
	require.NoError(t, coord.Bootstrap())
	t.Cleanup(func() { coord.Shutdown() })

	require.Eventually(t, coord.IsLeader, 5*time.Second, 20*time.Millisecond)
}

func TestCoordinatorSetShardTableAppliesThroughRaft(t *testing.T) {
	dataDir := t.TempDir()
	engine := newTestEngine(t)
	tables := NewShardTables(engine)
	coord := NewCoordinator("n1", pickFreeAddr(t), dataDir, tables)
	require.NoError(t, coord.Bootstrap())
	t.Cleanup(func() { coord.Shutdown() })
	require.Eventually(t, coord.IsLeader, 5*time.Second, 20*time.Millisecond)

	table := &types.ShardTable{
		Database: "app", Collection: "docs",
		Shards: []types.ShardAssignment{{ShardID: 0, Primary: "n1"}},
	}
	require.NoError(t, coord.SetShardTable(table))

	got, ok, err := tables.Get("app", "docs")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(1), got.Version)
}
