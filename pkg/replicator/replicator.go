package replicator

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/cuemby/solidb/pkg/log"
	"github.com/cuemby/solidb/pkg/metrics"
	"github.com/cuemby/solidb/pkg/types"
)

// Backoff defaults for peer RPC failures (spec §4.10 "exponential
// backoff"); jitter avoids every peer's tailer retrying in lockstep.
const (
	DefaultBackoffBase     = 200 * time.Millisecond
	DefaultBackoffMax      = 30 * time.Second
	DefaultBackoffFactor   = 2.0
	DefaultBackoffJitter   = 0.2
	DefaultQuarantineAfter = 5
	DefaultTailLimit       = 256
	DefaultPollInterval    = time.Second
)

// PeerClient fetches log entries from one remote node, implemented in
// production by pkg/transport's binary RPC client and by a fake in
// tests. Sync mirrors the original's SyncRequest/SyncResponse exchange
// (original_source/src/cluster/transport.rs).
type PeerClient interface {
	Sync(ctx context.Context, afterSeq uint64, limit int) ([]*types.LogEntry, error)
}

// Applier durably applies one replicated log entry to local storage. It
// must be safe to call twice with the same entry only after Dedup has
// already filtered repeats — Applier itself does not need to re-check.
type Applier interface {
	Apply(entry *types.LogEntry) error
}

// Peer tails one remote node's replication log and applies each new
// entry in order, backing off on transport failure and quarantining
// itself after repeated apply failures (spec §4.10).
type Peer struct {
	nodeID  string
	client  PeerClient
	applier Applier
	dedup   *Dedup

	pollInterval    time.Duration
	backoffBase     time.Duration
	backoffMax      time.Duration
	backoffFactor   float64
	quarantineAfter int

	mu                  sync.Mutex
	lastAckedSeq        uint64
	quarantined         bool
	consecutiveFailures int
}

// NewPeer constructs a Peer for nodeID. It starts from sequence zero: no
// last-applied sequence is read back, so a restarted replicator re-tails
// the peer's log from the first entry, and dedup skips entries it has
// already applied.
func NewPeer(nodeID string, client PeerClient, applier Applier, dedup *Dedup) *Peer {
	return &Peer{
		nodeID:          nodeID,
		client:          client,
		applier:         applier,
		dedup:           dedup,
		pollInterval:    DefaultPollInterval,
		backoffBase:     DefaultBackoffBase,
		backoffMax:      DefaultBackoffMax,
		backoffFactor:   DefaultBackoffFactor,
		quarantineAfter: DefaultQuarantineAfter,
	}
}

// Quarantined reports whether this peer has been excluded from tailing
// after too many consecutive apply failures.
func (p *Peer) Quarantined() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.quarantined
}

// Unquarantine clears a peer's quarantine, letting Run resume tailing it
// (an operator action, not automatic — a peer that keeps failing apply
// needs investigation, not an infinite retry).
func (p *Peer) Unquarantine() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.quarantined = false
	p.consecutiveFailures = 0
}

// Run tails this peer until ctx is cancelled, sleeping pollInterval
// between successful syncs and an exponentially backed-off, jittered
// delay after a transport failure.
func (p *Peer) Run(ctx context.Context) {
	backoff := p.backoffBase
	for {
		if ctx.Err() != nil {
			return
		}
		if p.Quarantined() {
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.pollInterval):
				continue
			}
		}

		advanced, err := p.tailOnce(ctx)
		if err != nil {
			log.Errorf("replicator: sync with %s failed: %v", p.nodeID, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(jitter(backoff, DefaultBackoffJitter)):
			}
			backoff = nextBackoff(backoff, p.backoffFactor, p.backoffMax)
			continue
		}
		backoff = p.backoffBase

		wait := p.pollInterval
		if advanced {
			wait = 0
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// tailOnce fetches and applies one batch of entries, returning whether
// any entry advanced the local watermark (so Run can immediately poll
// again instead of sleeping a full interval while a peer is catching
// up).
func (p *Peer) tailOnce(ctx context.Context) (bool, error) {
	p.mu.Lock()
	afterSeq := p.lastAckedSeq
	p.mu.Unlock()

	entries, err := p.client.Sync(ctx, afterSeq, DefaultTailLimit)
	if err != nil {
		return false, err
	}
	if len(entries) == 0 {
		return false, nil
	}

	advanced := false
	for _, entry := range entries {
		timer := metrics.NewTimer()
		err := p.applyOne(entry)
		timer.ObserveDuration(metrics.ReplicationApplyDuration)
		if err != nil {
			p.recordFailure()
			return advanced, err
		}
		p.mu.Lock()
		p.lastAckedSeq = entry.Sequence
		p.mu.Unlock()
		lag := time.Since(time.UnixMilli(entry.Timestamp)).Seconds()
		if lag < 0 {
			lag = 0
		}
		metrics.ReplicationLagSeconds.WithLabelValues(p.nodeID).Set(lag)
		advanced = true
	}
	p.recordSuccess()
	return advanced, nil
}

func (p *Peer) applyOne(entry *types.LogEntry) error {
	seen, err := p.dedup.Seen(entry)
	if err != nil {
		return err
	}
	if seen {
		return nil
	}
	if err := p.applier.Apply(entry); err != nil {
		return err
	}
	return p.dedup.MarkApplied(entry.OriginNode, entry.OriginSequence)
}

func (p *Peer) recordFailure() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.consecutiveFailures++
	if p.consecutiveFailures >= p.quarantineAfter {
		p.quarantined = true
	}
}

func (p *Peer) recordSuccess() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.consecutiveFailures = 0
}

func nextBackoff(cur time.Duration, factor float64, max time.Duration) time.Duration {
	next := time.Duration(float64(cur) * factor)
	if next > max {
		return max
	}
	return next
}

func jitter(d time.Duration, frac float64) time.Duration {
	if frac <= 0 {
		return d
	}
	delta := float64(d) * frac
	offset := (rand.Float64()*2 - 1) * delta
	return time.Duration(float64(d) + offset)
}

// Manager owns one Peer per known remote node, for the replicator's
// wiring into the cluster's membership list.
type Manager struct {
	mu    sync.Mutex
	peers map[string]*Peer
}

func NewManager() *Manager {
	return &Manager{peers: map[string]*Peer{}}
}

// AddPeer registers and starts tailing nodeID; calling it again for an
// already-registered node is a no-op.
func (m *Manager) AddPeer(ctx context.Context, nodeID string, client PeerClient, applier Applier, dedup *Dedup) *Peer {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.peers[nodeID]; ok {
		return existing
	}
	peer := NewPeer(nodeID, client, applier, dedup)
	m.peers[nodeID] = peer
	go peer.Run(ctx)
	return peer
}

// Peer returns the Peer for nodeID, if registered.
func (m *Manager) Peer(nodeID string) (*Peer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.peers[nodeID]
	return p, ok
}

// RemovePeer stops tracking nodeID; callers must have already cancelled
// its Run context.
func (m *Manager) RemovePeer(nodeID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.peers, nodeID)
}
