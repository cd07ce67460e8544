package replog

import (
	"encoding/json"
	"sync"

	"github.com/cuemby/solidb/pkg/codec"
	"github.com/cuemby/solidb/pkg/storage"
	"github.com/cuemby/solidb/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var seqCounterKey = []byte("_sequence")

// Log is the append-only replication log for one node. A transaction
// commit appends its mutations here after their storage writes; the
// replicator tails this log outward to peers and applies
// incoming peers' logs inbound, deduplicating by (origin_node,
// origin_sequence) (spec §4.10 "Replication loops").
type Log struct {
	engine *storage.Engine
	nodeID string

	mu  sync.Mutex
	seq uint64
}

// Open loads the log's persisted sequence counter from engine's repl
// bucket and returns a ready-to-append Log.
func Open(engine *storage.Engine, nodeID string) (*Log, error) {
	l := &Log{engine: engine, nodeID: nodeID}
	err := engine.Tx(false, func(tx *bolt.Tx) error {
		b := tx.Bucket(storage.ReplBucket())
		v := b.Get(seqCounterKey)
		if v != nil {
			l.seq = codec.DecodeSequence(v)
		}
		return nil
	})
	return l, err
}

// Append assigns the next sequence number to entry, stamps OriginNode and
// OriginSequence when the entry didn't already carry them (a locally
// originated write), and persists it durably (spec §4.5 "strictly
// monotone sequence").
func (l *Log) Append(entry *types.LogEntry, now int64) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	entry.Sequence = l.seq
	if entry.OriginNode == "" {
		entry.OriginNode = l.nodeID
	}
	if entry.OriginSequence == 0 {
		entry.OriginSequence = l.seq
	}
	entry.Timestamp = now

	data, err := json.Marshal(entry)
	if err != nil {
		l.seq--
		return 0, err
	}

	err = l.engine.Tx(true, func(tx *bolt.Tx) error {
		b := tx.Bucket(storage.ReplBucket())
		if err := b.Put(codec.EncodeSequence(l.seq), data); err != nil {
			return err
		}
		return b.Put(seqCounterKey, codec.EncodeSequence(l.seq))
	})
	if err != nil {
		l.seq--
		return 0, err
	}
	return l.seq, nil
}

// AppendBatch appends multiple entries as a single transaction, assigning
// contiguous sequence numbers (mirrors the original's append_batch, used
// when a multi-document write must land in the log atomically).
func (l *Log) AppendBatch(entries []*types.LogEntry, now int64) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	start := l.seq
	err := l.engine.Tx(true, func(tx *bolt.Tx) error {
		b := tx.Bucket(storage.ReplBucket())
		seq := start
		for _, entry := range entries {
			seq++
			entry.Sequence = seq
			if entry.OriginNode == "" {
				entry.OriginNode = l.nodeID
			}
			if entry.OriginSequence == 0 {
				entry.OriginSequence = seq
			}
			entry.Timestamp = now
			data, err := json.Marshal(entry)
			if err != nil {
				return err
			}
			if err := b.Put(codec.EncodeSequence(seq), data); err != nil {
				return err
			}
		}
		return b.Put(seqCounterKey, codec.EncodeSequence(seq))
	})
	if err != nil {
		return 0, err
	}
	l.seq = start + uint64(len(entries))
	return l.seq, nil
}

// Tail returns up to limit entries with sequence > afterSeq, in sequence
// order (spec §4.5 "tail(after_seq, limit)").
func (l *Log) Tail(afterSeq uint64, limit int) ([]*types.LogEntry, error) {
	var out []*types.LogEntry
	err := l.engine.Tx(false, func(tx *bolt.Tx) error {
		b := tx.Bucket(storage.ReplBucket())
		c := b.Cursor()
		start := codec.EncodeSequence(afterSeq + 1)
		for k, v := c.Seek(start); k != nil; k, v = c.Next() {
			if len(out) >= limit {
				break
			}
			if len(k) != 8 {
				continue // skip the non-sequence seqCounterKey entry
			}
			var entry types.LogEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			out = append(out, &entry)
		}
		return nil
	})
	return out, err
}

// CurrentSequence returns the last assigned sequence number.
func (l *Log) CurrentSequence() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq
}
