package txn

import (
	"sync"
	"time"

	"github.com/cuemby/solidb/pkg/replog"
	"github.com/cuemby/solidb/pkg/storage"
	"github.com/cuemby/solidb/pkg/types"
)

// Manager begins and commits transactions against one database's
// Documents and replication log (spec §4.12). Commit is serialized by a
// single mutex: bbolt already serializes writes at the storage layer, and
// serializing commit here is what makes the Serializable conflict check
// ("no other transaction committed a conflicting write between this
// transaction's reads and its commit") correct without a more elaborate
// MVCC scheme.
type Manager struct {
	mu        sync.Mutex
	documents *storage.Documents
	log       *replog.Log
	nowFn     func() time.Time
}

func NewManager(documents *storage.Documents, log *replog.Log) *Manager {
	return &Manager{documents: documents, log: log, nowFn: time.Now}
}

// Begin starts a new transaction at the given isolation level.
func (m *Manager) Begin(isolation types.IsolationLevel) *Transaction {
	return newTransaction(m, isolation)
}

// Autocommit applies fn as a trivial single-statement ReadCommitted
// transaction (spec §4.12 "Autocommit (no explicit begin) treats each
// statement as a trivial transaction").
func (m *Manager) Autocommit(fn func(t *Transaction) error) error {
	t := m.Begin(types.ReadCommitted)
	if err := fn(t); err != nil {
		t.Rollback()
		return err
	}
	return t.Commit()
}

// commit validates (for Serializable), applies every buffered op through
// storage.Documents, and appends one replication-log segment covering
// the whole transaction.
func (m *Manager) commit(t *Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t.isolation == types.Serializable {
		if err := m.checkConflicts(t); err != nil {
			return err
		}
	}

	entries := make([]*types.LogEntry, 0, len(t.ops))
	for _, op := range t.ops {
		entry, err := m.applyOp(op)
		if err != nil {
			return err
		}
		entries = append(entries, entry)
	}
	if len(entries) == 0 {
		return nil
	}
	_, err := m.log.AppendBatch(entries, m.nowFn().UnixMilli())
	return err
}

// checkConflicts reports SerializationConflict if any key this
// transaction read now holds a revision different from the one observed
// at read time (spec §4.12).
func (m *Manager) checkConflicts(t *Transaction) error {
	for ok, rev := range t.readRevs {
		current, err := m.documents.Get(ok.collection, ok.key)
		if types.KindOf(err) == types.ErrNotFound {
			if rev != "" {
				return types.NewError(types.ErrSerializationConflict, "document %q in %q was deleted since read", ok.key, ok.collection)
			}
			continue
		}
		if err != nil {
			return err
		}
		if current.Rev() != rev {
			return types.NewError(types.ErrSerializationConflict, "document %q in %q was modified since read", ok.key, ok.collection)
		}
	}
	return nil
}

func (m *Manager) applyOp(op bufferedOp) (*types.LogEntry, error) {
	switch op.kind {
	case opInsert:
		doc, err := m.documents.Insert(op.collection, op.fields)
		if err != nil {
			return nil, err
		}
		return logEntry(op.collection, op.key, types.OpInsert, doc), nil
	case opUpdate:
		doc, err := m.documents.Update(op.collection, op.key, op.patch, op.expectedRev)
		if err != nil {
			return nil, err
		}
		return logEntry(op.collection, op.key, types.OpUpdate, doc), nil
	case opReplace:
		doc, err := m.documents.Replace(op.collection, op.key, op.fields, op.expectedRev)
		if err != nil {
			return nil, err
		}
		return logEntry(op.collection, op.key, types.OpUpdate, doc), nil
	case opDelete:
		if err := m.documents.Delete(op.collection, op.key, op.expectedRev); err != nil {
			return nil, err
		}
		return &types.LogEntry{Collection: op.collection, Key: op.key, Operation: types.OpDelete}, nil
	default:
		return nil, types.NewError(types.ErrInternal, "unknown buffered op kind %d", op.kind)
	}
}

func logEntry(collection, key string, op types.Operation, doc *types.Document) *types.LogEntry {
	payload, _ := doc.Value().MarshalJSON()
	return &types.LogEntry{Collection: collection, Key: key, Operation: op, Payload: payload}
}
