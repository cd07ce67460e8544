package cluster

import (
	"sync"
	"time"

	"github.com/cuemby/solidb/pkg/types"
)

// Default health-monitor timings (spec §4.9).
const (
	DefaultHeartbeatInterval  = time.Second
	DefaultSuspicionThreshold = 3 * time.Second
	DefaultFailureThreshold   = 10 * time.Second
)

// Membership tracks every known cluster member's last heartbeat and
// derived status. It is protected by a reader-writer lock: Get and
// Members take the read lock; heartbeat receipt takes a brief write on a
// single member, and the health monitor's Tick holds the write lock for
// its whole pass over the map, since it updates statuses in place (spec
// §8 "Cluster state is protected by a reader-writer lock").
type Membership struct {
	mu          sync.RWMutex
	localNodeID string
	members     map[string]*types.ClusterMember

	suspicionThreshold time.Duration
	failureThreshold   time.Duration
}

// NewMembership creates a Membership for localNodeID, registering the
// local node itself as Active.
func NewMembership(localNodeID, bindAddr, publicAddr string, now time.Time) *Membership {
	m := &Membership{
		localNodeID:        localNodeID,
		members:            make(map[string]*types.ClusterMember),
		suspicionThreshold: DefaultSuspicionThreshold,
		failureThreshold:   DefaultFailureThreshold,
	}
	m.members[localNodeID] = &types.ClusterMember{
		NodeID:        localNodeID,
		BindAddr:      bindAddr,
		PublicAddr:    publicAddr,
		StartedAt:     now.UnixMilli(),
		LastHeartbeat: now.UnixMilli(),
		Status:        types.NodeActive,
	}
	return m
}

// Heartbeat records receipt of a heartbeat from nodeID, registering it if
// unseen and returning it to Active regardless of its prior status (spec
// §4.9 "any receipt returns to Active"). Called by the transport layer,
// never by the health monitor itself.
func (m *Membership) Heartbeat(nodeID, bindAddr, publicAddr string, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mem, ok := m.members[nodeID]
	if !ok {
		mem = &types.ClusterMember{
			NodeID:    nodeID,
			StartedAt: now.UnixMilli(),
		}
		m.members[nodeID] = mem
	}
	if bindAddr != "" {
		mem.BindAddr = bindAddr
	}
	if publicAddr != "" {
		mem.PublicAddr = publicAddr
	}
	mem.LastHeartbeat = now.UnixMilli()
	mem.Status = types.NodeActive
}

// Get returns a copy of a member's current state.
func (m *Membership) Get(nodeID string) (types.ClusterMember, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mem, ok := m.members[nodeID]
	if !ok {
		return types.ClusterMember{}, false
	}
	return *mem, true
}

// Members returns a snapshot of every known member.
func (m *Membership) Members() []types.ClusterMember {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.ClusterMember, 0, len(m.members))
	for _, mem := range m.members {
		out = append(out, *mem)
	}
	return out
}

// Tick re-evaluates every non-local member's status against its elapsed
// time since last heartbeat: Active -> Suspected past suspicionThreshold,
// any status -> Dead past failureThreshold (spec §4.9). It never contacts
// a remote node, only inspects locally-updated timestamps.
func (m *Membership) Tick(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	nowMs := now.UnixMilli()
	for id, mem := range m.members {
		if id == m.localNodeID {
			continue
		}
		elapsed := time.Duration(nowMs-mem.LastHeartbeat) * time.Millisecond
		switch {
		case elapsed > m.failureThreshold:
			mem.Status = types.NodeDead
		case elapsed > m.suspicionThreshold:
			if mem.Status == types.NodeActive {
				mem.Status = types.NodeSuspected
			}
		}
	}
}

// StartHealthMonitor runs Tick on a fixed interval until stop is
// closed, the only goroutine that transitions members out of
// Active (spec §4.9 "a health monitor task runs on a fixed tick").
func (m *Membership) StartHealthMonitor(stop <-chan struct{}, interval time.Duration, nowFn func() time.Time) {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				m.Tick(nowFn())
			}
		}
	}()
}
