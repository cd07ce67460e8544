package cluster

import (
	"encoding/json"

	"github.com/cespare/xxhash/v2"
	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/solidb/pkg/storage"
	"github.com/cuemby/solidb/pkg/types"
)

// ShardFor routes key to a shard id in [0, numShards) using a
// non-cryptographic hash stable across nodes and releases (spec §4.9
// "shard_id = hash64(k) mod N"), grounded on
// original_source/src/sharding/assignment.rs's route_key.
func ShardFor(key string, numShards int) int {
	if numShards <= 0 {
		return 0
	}
	h := xxhash.Sum64String(key)
	return int(h % uint64(numShards))
}

// ShardTables persists each collection's types.ShardTable in the storage
// engine's reserved "shards" bucket, keyed by "<database>\x00<collection>"
// (mirrors original_source/src/sharding/table.rs's ShardTable, stored here
// instead of held only in process memory so a restarted node recovers its
// last-known assignment before the coordinator catches it up).
type ShardTables struct {
	engine *storage.Engine
}

func NewShardTables(e *storage.Engine) *ShardTables {
	return &ShardTables{engine: e}
}

func shardTableKey(database, collection string) []byte {
	return []byte(database + "\x00" + collection)
}

// Get returns the persisted shard table for a collection, or ok=false if
// none has been assigned yet (spec §3 "Missing from the map => shard is
// unassigned").
func (s *ShardTables) Get(database, collection string) (*types.ShardTable, bool, error) {
	var out *types.ShardTable
	err := s.engine.Tx(false, func(tx *bolt.Tx) error {
		b := tx.Bucket(storage.ShardsBucket())
		v := b.Get(shardTableKey(database, collection))
		if v == nil {
			return nil
		}
		var t types.ShardTable
		if err := json.Unmarshal(v, &t); err != nil {
			return err
		}
		out = &t
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, out != nil, nil
}

// Put persists table, rejecting the write if table.Version does not
// exceed the currently stored version (spec §4.9 "monotonically
// versioned" — callers bump Version themselves, Put just enforces it).
func (s *ShardTables) Put(table *types.ShardTable) error {
	return s.engine.Tx(true, func(tx *bolt.Tx) error {
		b := tx.Bucket(storage.ShardsBucket())
		key := shardTableKey(table.Database, table.Collection)
		if existing := b.Get(key); existing != nil {
			var cur types.ShardTable
			if err := json.Unmarshal(existing, &cur); err != nil {
				return err
			}
			if table.Version <= cur.Version {
				return types.NewError(types.ErrInvalidArgument,
					"shard table version %d does not exceed current version %d", table.Version, cur.Version)
			}
		}
		data, err := json.Marshal(table)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
}

// RouteKey routes a document key within a collection to its shard
// assignment, returning ErrUnavailable if the collection has no shard
// table yet or the routed shard has no primary (spec §7 "Unavailable (no
// primary for shard)").
func (s *ShardTables) RouteKey(database, collection, key string) (types.ShardAssignment, error) {
	table, ok, err := s.Get(database, collection)
	if err != nil {
		return types.ShardAssignment{}, err
	}
	if !ok || len(table.Shards) == 0 {
		return types.ShardAssignment{}, types.NewError(types.ErrUnavailable, "no shard table for %s/%s", database, collection)
	}
	shardID := ShardFor(key, len(table.Shards))
	assignment, ok := table.ShardFor(shardID)
	if !ok || assignment.Primary == "" {
		return types.ShardAssignment{}, types.NewError(types.ErrUnavailable, "no primary assigned for shard %d of %s/%s", shardID, database, collection)
	}
	return assignment, nil
}
