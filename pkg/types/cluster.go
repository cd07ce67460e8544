package types

// NodeStatus reflects a cluster member's observed liveness (spec §4.9):
// a member is Suspected after 3s without a heartbeat and Dead after 10s.
type NodeStatus string

const (
	NodeActive    NodeStatus = "active"
	NodeSuspected NodeStatus = "suspected"
	NodeDead      NodeStatus = "dead"
)

// ClusterMember is one node's membership record as tracked by the health
// monitor. The monitor never contacts remote nodes directly: it only
// inspects LastHeartbeat against the local clock.
type ClusterMember struct {
	NodeID        string     `json:"node_id"`
	BindAddr      string     `json:"bind_addr"`
	PublicAddr    string     `json:"public_addr"`
	StartedAt     int64      `json:"started_at"`
	LastHeartbeat int64      `json:"last_heartbeat"`
	Status        NodeStatus `json:"status"`
}

// ShardAssignment names the primary and ordered replica set for one shard
// of a sharded collection (spec §3, §4.9).
type ShardAssignment struct {
	ShardID  int      `json:"shard_id"`
	Primary  string   `json:"primary"`
	Replicas []string `json:"replicas"`
}

// ShardTable is the versioned routing table for a collection. Version
// starts at 1 and goes up by one each time the coordinator replaces the
// table, so followers can detect staleness without a separate epoch
// counter.
type ShardTable struct {
	Database   string            `json:"database"`
	Collection string            `json:"collection"`
	Version    uint64            `json:"version"`
	Shards     []ShardAssignment `json:"shards"`
}

// ShardFor returns the assignment whose ShardID is shardID; it does no
// key hashing (spec §4.9).
func (t *ShardTable) ShardFor(shardID int) (ShardAssignment, bool) {
	for _, s := range t.Shards {
		if s.ShardID == shardID {
			return s, true
		}
	}
	return ShardAssignment{}, false
}
