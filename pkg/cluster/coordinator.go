package cluster

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"

	"github.com/cuemby/solidb/pkg/types"
)

// Command is the single raft-log command kind the coordinator applies:
// setting a collection's shard table. Mirrors the shape of the teacher's
// manager.Command (Op + raw JSON data) but SoliDB only ever needs the one
// operation, since shard assignment is the cluster plane's only piece of
// raft-replicated state (spec §4.9).
type Command struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"data"`
}

const opSetShardTable = "set_shard_table"

// fsm applies committed shard-table commands to a ShardTables store.
type fsm struct {
	tables *ShardTables
}

func (f *fsm) Apply(log *raft.Log) interface{} {
	var cmd Command
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		return fmt.Errorf("unmarshal command: %w", err)
	}
	switch cmd.Op {
	case opSetShardTable:
		var table types.ShardTable
		if err := json.Unmarshal(cmd.Data, &table); err != nil {
			return err
		}
		return f.tables.Put(&table)
	default:
		return fmt.Errorf("unknown command op %q", cmd.Op)
	}
}

func (f *fsm) Snapshot() (raft.FSMSnapshot, error) {
	return &fsmSnapshot{}, nil
}

func (f *fsm) Restore(rc io.ReadCloser) error {
	defer rc.Close()
	var tables []types.ShardTable
	if err := json.NewDecoder(rc).Decode(&tables); err != nil && err != io.EOF {
		return err
	}
	for i := range tables {
		if err := f.tables.Put(&tables[i]); err != nil {
			return err
		}
	}
	return nil
}

// fsmSnapshot is a no-op: the coordinator's state (the shard table) lives
// in the shared storage engine, not in raft's own log, so there is
// nothing additional to persist on snapshot. Raft still calls Snapshot
// periodically to truncate its own log; an empty snapshot is sufficient
// because Restore replays from an empty set and subsequent Apply calls
// rebuild the current table from the (still-present) raft log tail.
type fsmSnapshot struct{}

func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	if err := json.NewEncoder(sink).Encode([]types.ShardTable{}); err != nil {
		sink.Cancel()
		return err
	}
	return sink.Close()
}

func (s *fsmSnapshot) Release() {}

// Coordinator wraps hashicorp/raft to give shard-table updates a single
// elected writer and a monotonically advancing applied index, grounded on
// the teacher's pkg/manager.Manager (Bootstrap/Join/Apply/IsLeader shape)
// with every container/service/task command collapsed to the one
// set-shard-table command above.
type Coordinator struct {
	nodeID   string
	bindAddr string
	dataDir  string

	raft   *raft.Raft
	fsm    *fsm
	tables *ShardTables
}

// NewCoordinator constructs a Coordinator; callers must still call
// Bootstrap (first node) or Join (subsequent nodes) before Apply works.
func NewCoordinator(nodeID, bindAddr, dataDir string, tables *ShardTables) *Coordinator {
	return &Coordinator{
		nodeID:   nodeID,
		bindAddr: bindAddr,
		dataDir:  dataDir,
		fsm:      &fsm{tables: tables},
		tables:   tables,
	}
}

func (c *Coordinator) raftConfig() (*raft.Config, *raft.NetworkTransport, raft.SnapshotStore, raft.LogStore, raft.StableStore, error) {
	config := raft.DefaultConfig()
	config.LocalID = raft.ServerID(c.nodeID)

	// Tuned for sub-10s failover on a LAN/edge deployment, matching the
	// teacher's own override of the conservative WAN-oriented defaults.
	config.HeartbeatTimeout = 500 * time.Millisecond
	config.ElectionTimeout = 500 * time.Millisecond
	config.CommitTimeout = 50 * time.Millisecond
	config.LeaderLeaseTimeout = 250 * time.Millisecond

	addr, err := net.ResolveTCPAddr("tcp", c.bindAddr)
	if err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("resolve bind address: %w", err)
	}
	transport, err := raft.NewTCPTransport(c.bindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("create raft transport: %w", err)
	}
	snapshotStore, err := raft.NewFileSnapshotStore(c.dataDir, 2, os.Stderr)
	if err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("create snapshot store: %w", err)
	}
	logStore, err := raftboltdb.NewBoltStore(filepath.Join(c.dataDir, "raft-log.db"))
	if err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("create raft log store: %w", err)
	}
	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(c.dataDir, "raft-stable.db"))
	if err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("create raft stable store: %w", err)
	}
	return config, transport, snapshotStore, logStore, stableStore, nil
}

// Bootstrap initializes a brand-new single-node raft cluster with this
// node as its only member.
func (c *Coordinator) Bootstrap() error {
	config, transport, snapshotStore, logStore, stableStore, err := c.raftConfig()
	if err != nil {
		return err
	}
	r, err := raft.NewRaft(config, c.fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return fmt.Errorf("create raft: %w", err)
	}
	c.raft = r

	future := r.BootstrapCluster(raft.Configuration{
		Servers: []raft.Server{{ID: config.LocalID, Address: transport.LocalAddr()}},
	})
	return future.Error()
}

// Join starts this node's raft instance without bootstrapping a new
// cluster; the caller is expected to have this node added as a voter by
// the existing leader (out of scope here, per the spec's note that
// "election is out of scope here").
func (c *Coordinator) Join() error {
	config, transport, snapshotStore, logStore, stableStore, err := c.raftConfig()
	if err != nil {
		return err
	}
	r, err := raft.NewRaft(config, c.fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return fmt.Errorf("create raft: %w", err)
	}
	c.raft = r
	return nil
}

// AddVoter adds a peer node to the raft configuration; only the leader
// may call this successfully.
func (c *Coordinator) AddVoter(nodeID, addr string) error {
	if c.raft == nil {
		return fmt.Errorf("raft not initialized")
	}
	future := c.raft.AddVoter(raft.ServerID(nodeID), raft.ServerAddress(addr), 0, 10*time.Second)
	return future.Error()
}

// IsLeader reports whether this node currently holds raft leadership.
func (c *Coordinator) IsLeader() bool {
	return c.raft != nil && c.raft.State() == raft.Leader
}

// LeaderAddr returns the bind address of the current raft leader, or ""
// if unknown.
func (c *Coordinator) LeaderAddr() string {
	if c.raft == nil {
		return ""
	}
	return string(c.raft.Leader())
}

// SetShardTable replicates a new shard table through raft, bumping its
// Version to one past the table currently on record (spec §4.9
// "monotonically versioned"). Only the leader can make progress; a
// follower's Apply returns raft.ErrNotLeader.
func (c *Coordinator) SetShardTable(table *types.ShardTable) error {
	if c.raft == nil {
		return fmt.Errorf("raft not initialized")
	}
	current, ok, err := c.tables.Get(table.Database, table.Collection)
	if err != nil {
		return err
	}
	if ok {
		table.Version = current.Version + 1
	} else if table.Version == 0 {
		table.Version = 1
	}

	data, err := json.Marshal(table)
	if err != nil {
		return err
	}
	cmdData, err := json.Marshal(Command{Op: opSetShardTable, Data: data})
	if err != nil {
		return err
	}
	future := c.raft.Apply(cmdData, 5*time.Second)
	if err := future.Error(); err != nil {
		return err
	}
	if resp := future.Response(); resp != nil {
		if err, ok := resp.(error); ok && err != nil {
			return err
		}
	}
	return nil
}

// Shutdown releases the underlying raft instance.
func (c *Coordinator) Shutdown() error {
	if c.raft == nil {
		return nil
	}
	return c.raft.Shutdown().Error()
}
