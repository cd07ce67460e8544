package replicator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/solidb/pkg/storage"
	"github.com/cuemby/solidb/pkg/types"
)

func newTestEngine(t *testing.T) *storage.Engine {
	t.Helper()
	e, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

type fakeClient struct {
	mu      sync.Mutex
	entries []*types.LogEntry
	calls   int
	failN   int // fail the first failN calls
}

func (f *fakeClient) Sync(ctx context.Context, afterSeq uint64, limit int) ([]*types.LogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failN {
		return nil, errors.New("simulated transport failure")
	}
	var out []*types.LogEntry
	for _, e := range f.entries {
		if e.Sequence > afterSeq {
			out = append(out, e)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

type recordingApplier struct {
	mu      sync.Mutex
	applied []*types.LogEntry
	failAll bool
}

func (a *recordingApplier) Apply(entry *types.LogEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failAll {
		return errors.New("simulated apply failure")
	}
	a.applied = append(a.applied, entry)
	return nil
}

func (a *recordingApplier) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.applied)
}

func TestDedupSeenFalseForNewOrigin(t *testing.T) {
	d := NewDedup(newTestEngine(t))
	seen, err := d.Seen(&types.LogEntry{OriginNode: "n2", OriginSequence: 1})
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestDedupMarkAppliedAdvancesWatermark(t *testing.T) {
	d := NewDedup(newTestEngine(t))
	require.NoError(t, d.MarkApplied("n2", 5))

	last, err := d.LastApplied("n2")
	require.NoError(t, err)
	assert.Equal(t, uint64(5), last)

	seen, err := d.Seen(&types.LogEntry{OriginNode: "n2", OriginSequence: 5})
	require.NoError(t, err)
	assert.True(t, seen)

	seen, err = d.Seen(&types.LogEntry{OriginNode: "n2", OriginSequence: 6})
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestPeerTailOnceAppliesNewEntries(t *testing.T) {
	client := &fakeClient{entries: []*types.LogEntry{
		{Sequence: 1, OriginNode: "n2", OriginSequence: 1, Key: "k1"},
		{Sequence: 2, OriginNode: "n2", OriginSequence: 2, Key: "k2"},
	}}
	applier := &recordingApplier{}
	dedup := NewDedup(newTestEngine(t))
	peer := NewPeer("n2", client, applier, dedup)

	advanced, err := peer.tailOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, advanced)
	assert.Equal(t, 2, applier.count())
	assert.Equal(t, uint64(2), peer.lastAckedSeq)
}

func TestPeerTailOnceSkipsAlreadyAppliedEntries(t *testing.T) {
	client := &fakeClient{entries: []*types.LogEntry{
		{Sequence: 1, OriginNode: "n2", OriginSequence: 1, Key: "k1"},
	}}
	applier := &recordingApplier{}
	dedup := NewDedup(newTestEngine(t))
	require.NoError(t, dedup.MarkApplied("n2", 1))

	peer := NewPeer("n2", client, applier, dedup)
	_, err := peer.tailOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, applier.count())
}

func TestPeerQuarantinesAfterRepeatedApplyFailures(t *testing.T) {
	client := &fakeClient{entries: []*types.LogEntry{
		{Sequence: 1, OriginNode: "n2", OriginSequence: 1, Key: "k1"},
	}}
	applier := &recordingApplier{failAll: true}
	dedup := NewDedup(newTestEngine(t))
	peer := NewPeer("n2", client, applier, dedup)
	peer.quarantineAfter = 2

	for i := 0; i < 2; i++ {
		_, err := peer.tailOnce(context.Background())
		require.Error(t, err)
	}
	assert.True(t, peer.Quarantined())

	peer.Unquarantine()
	assert.False(t, peer.Quarantined())
}

func TestPeerRunStopsOnContextCancel(t *testing.T) {
	client := &fakeClient{}
	applier := &recordingApplier{}
	dedup := NewDedup(newTestEngine(t))
	peer := NewPeer("n2", client, applier, dedup)
	peer.pollInterval = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		peer.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after context cancel")
	}
}

func TestManagerAddPeerIsIdempotent(t *testing.T) {
	m := NewManager()
	dedup := NewDedup(newTestEngine(t))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p1 := m.AddPeer(ctx, "n2", &fakeClient{}, &recordingApplier{}, dedup)
	p2 := m.AddPeer(ctx, "n2", &fakeClient{}, &recordingApplier{}, dedup)
	assert.Same(t, p1, p2)

	_, ok := m.Peer("n2")
	assert.True(t, ok)
	m.RemovePeer("n2")
	_, ok = m.Peer("n2")
	assert.False(t, ok)
}

func TestNextBackoffCapsAtMax(t *testing.T) {
	d := nextBackoff(20*time.Second, 2.0, 30*time.Second)
	assert.Equal(t, 30*time.Second, d)
}

func TestJitterStaysWithinBounds(t *testing.T) {
	base := 100 * time.Millisecond
	for i := 0; i < 20; i++ {
		j := jitter(base, 0.2)
		assert.GreaterOrEqual(t, j, 80*time.Millisecond)
		assert.LessOrEqual(t, j, 120*time.Millisecond)
	}
}
