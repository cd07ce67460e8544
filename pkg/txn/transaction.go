package txn

import (
	"github.com/google/uuid"

	"github.com/cuemby/solidb/pkg/types"
)

type opKind int

const (
	opInsert opKind = iota
	opUpdate
	opReplace
	opDelete
)

type bufferedOp struct {
	kind        opKind
	collection  string
	key         string
	fields      *types.Object // insert/replace
	patch       *types.Object // update
	expectedRev string
}

type overlayKey struct {
	collection string
	key        string
}

// Transaction is a single BeginTransaction session (spec §4.12). Use
// Manager.Begin to create one; Get/Insert/Update/Replace/Delete stage
// reads and writes locally until Commit or Rollback.
type Transaction struct {
	manager    *Manager
	isolation  types.IsolationLevel
	ops        []bufferedOp
	overlay    map[overlayKey]*types.Object // nil value = staged delete
	snapshot   map[overlayKey]*types.Document
	readRevs   map[overlayKey]string
	done       bool
}

func newTransaction(m *Manager, isolation types.IsolationLevel) *Transaction {
	return &Transaction{
		manager:   m,
		isolation: isolation,
		overlay:   map[overlayKey]*types.Object{},
		snapshot:  map[overlayKey]*types.Document{},
		readRevs:  map[overlayKey]string{},
	}
}

// Get reads a document, honoring read-your-writes from this transaction's
// own staged ops, and isolation semantics for committed data: ReadCommitted
// always re-reads current storage, RepeatableRead/Serializable reuse the
// first read's snapshot for the rest of the transaction's lifetime.
func (t *Transaction) Get(collection, key string) (*types.Document, error) {
	ok := overlayKey{collection, key}
	if fields, staged := t.overlay[ok]; staged {
		if fields == nil {
			return nil, types.NewError(types.ErrNotFound, "document %q not found in %q", key, collection)
		}
		return types.NewDocument(fields), nil
	}

	if t.isolation != types.ReadCommitted {
		if doc, ok2 := t.snapshot[ok]; ok2 {
			return doc, nil
		}
	}

	doc, err := t.manager.documents.Get(collection, key)
	if err != nil {
		return nil, err
	}
	t.readRevs[ok] = doc.Rev()
	if t.isolation != types.ReadCommitted {
		t.snapshot[ok] = doc
	}
	return doc, nil
}

// Insert stages a document creation, assigning its key immediately (so
// same-transaction reads see it) but not writing to storage until Commit.
func (t *Transaction) Insert(collection string, fields *types.Object) (*types.Document, error) {
	key := ""
	if v, ok := fields.Get(types.FieldKey); ok && v.Kind() == types.KindString {
		key = v.AsString()
	} else {
		key = uuid.New().String()
	}
	ok := overlayKey{collection, key}
	if _, staged := t.overlay[ok]; staged {
		return nil, types.NewError(types.ErrDuplicateKey, "document %q already staged in %q", key, collection)
	}
	if _, err := t.Get(collection, key); err == nil {
		return nil, types.NewError(types.ErrDuplicateKey, "document %q already exists in %q", key, collection)
	}

	fields.Set(types.FieldKey, types.String(key))
	fields.Set(types.FieldID, types.String(collection+"/"+key))
	t.overlay[ok] = fields
	t.ops = append(t.ops, bufferedOp{kind: opInsert, collection: collection, key: key, fields: fields})
	return types.NewDocument(fields), nil
}

// Update stages a merge-patch write, matching storage.Documents.Update's
// merge semantics (spec §4.1) without touching storage until Commit.
func (t *Transaction) Update(collection, key string, patch *types.Object, expectedRev string) error {
	if _, err := t.Get(collection, key); err != nil {
		return err
	}
	t.ops = append(t.ops, bufferedOp{kind: opUpdate, collection: collection, key: key, patch: patch, expectedRev: expectedRev})
	t.overlay[overlayKey{collection, key}] = mergeForOverlay(t, collection, key, patch)
	return nil
}

// Replace stages a wholesale field replacement.
func (t *Transaction) Replace(collection, key string, fields *types.Object, expectedRev string) error {
	if _, err := t.Get(collection, key); err != nil {
		return err
	}
	fields.Set(types.FieldKey, types.String(key))
	fields.Set(types.FieldID, types.String(collection+"/"+key))
	t.ops = append(t.ops, bufferedOp{kind: opReplace, collection: collection, key: key, fields: fields, expectedRev: expectedRev})
	t.overlay[overlayKey{collection, key}] = fields
	return nil
}

// Delete stages a document removal.
func (t *Transaction) Delete(collection, key, expectedRev string) error {
	if _, err := t.Get(collection, key); err != nil {
		return err
	}
	t.ops = append(t.ops, bufferedOp{kind: opDelete, collection: collection, key: key, expectedRev: expectedRev})
	t.overlay[overlayKey{collection, key}] = nil
	return nil
}

func mergeForOverlay(t *Transaction, collection, key string, patch *types.Object) *types.Object {
	current, _ := t.Get(collection, key)
	base := types.NewObject()
	if current != nil {
		base = current.Fields.Clone()
	}
	out := base.Clone()
	for _, k := range patch.Keys() {
		pv, _ := patch.Get(k)
		if pv.IsNull() {
			out.Delete(k)
			continue
		}
		if pv.Kind() == types.KindObject {
			if bv, ok := out.Get(k); ok && bv.Kind() == types.KindObject {
				out.Set(k, types.ObjectVal(mergeForOverlayObjects(bv.AsObject(), pv.AsObject())))
				continue
			}
		}
		out.Set(k, pv)
	}
	return out
}

func mergeForOverlayObjects(base, patch *types.Object) *types.Object {
	out := base.Clone()
	for _, k := range patch.Keys() {
		pv, _ := patch.Get(k)
		if pv.IsNull() {
			out.Delete(k)
			continue
		}
		if pv.Kind() == types.KindObject {
			if bv, ok := out.Get(k); ok && bv.Kind() == types.KindObject {
				out.Set(k, types.ObjectVal(mergeForOverlayObjects(bv.AsObject(), pv.AsObject())))
				continue
			}
		}
		out.Set(k, pv)
	}
	return out
}

// Commit applies every buffered operation atomically and appends one
// replication log segment for the whole transaction (spec §4.12
// "Commit applies the buffered write batch atomically and appends one
// log segment covering all operations in sequence"). Serializable
// transactions additionally fail with SerializationConflict if any key
// they read now holds a revision different from the one observed at
// read time.
func (t *Transaction) Commit() error {
	if t.done {
		return types.NewError(types.ErrInternal, "transaction already finished")
	}
	t.done = true
	return t.manager.commit(t)
}

// Rollback discards every buffered operation; it is always safe to call,
// including after a failed Commit.
func (t *Transaction) Rollback() {
	t.done = true
	t.ops = nil
	t.overlay = nil
}
