package replicator

import (
	"encoding/binary"

	"github.com/cuemby/solidb/pkg/storage"
	"github.com/cuemby/solidb/pkg/types"
)

// systemDatabase and dedupCollection name the storage Engine bucket this
// package privately uses to remember, per origin node, the highest
// origin_sequence already applied — the same Engine the document store
// and every other subsystem shares (spec's storage substrate has no
// per-package database, only per-concern bucket naming).
const (
	systemDatabase  = "_system"
	dedupCollection = "repldedup"
)

// Dedup tracks the last-applied origin_sequence per origin node so a
// re-delivered entry (retry after a dropped connection, a peer re-tailing
// from an earlier ack) is recognized and skipped rather than re-applied
// (spec §4.10 "(origin_node, origin_sequence) dedup").
type Dedup struct {
	engine *storage.Engine
}

func NewDedup(e *storage.Engine) *Dedup {
	return &Dedup{engine: e}
}

// Seen reports whether entry's origin_sequence is at or behind the
// highest one already applied for its origin node.
func (d *Dedup) Seen(entry *types.LogEntry) (bool, error) {
	last, err := d.LastApplied(entry.OriginNode)
	if err != nil {
		return false, err
	}
	return entry.OriginSequence <= last, nil
}

// LastApplied returns the highest origin_sequence applied so far for
// originNode, or 0 if none has been applied yet.
func (d *Dedup) LastApplied(originNode string) (uint64, error) {
	data, err := d.engine.Get(systemDatabase, dedupCollection, []byte(originNode))
	if err != nil || data == nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(data), nil
}

// MarkApplied records originSeq as applied for originNode, advancing the
// stored watermark; callers must only call this after the corresponding
// write has durably landed.
func (d *Dedup) MarkApplied(originNode string, originSeq uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], originSeq)
	return d.engine.Put(systemDatabase, dedupCollection, []byte(originNode), buf[:])
}
