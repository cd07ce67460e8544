package storage

import (
	"github.com/cuemby/solidb/pkg/types"
	"github.com/google/uuid"
)

// Documents is the CRUD layer over Engine for document and edge
// collections. It is replication-agnostic and writes no log entry itself:
// a transaction manager commit applies its writes through Documents, then
// builds the corresponding replication log entries and appends them to
// the replog. Callers that use Documents directly write no log entry.
type Documents struct {
	engine   *Engine
	catalog  *Catalog
	database string
	nodeID   string
}

func NewDocuments(e *Engine, c *Catalog, database, nodeID string) *Documents {
	return &Documents{engine: e, catalog: c, database: database, nodeID: nodeID}
}

func newRevision() string { return uuid.New().String() }

// Insert creates a new document, assigning _key when absent and always
// stamping a fresh _rev (spec §4.1 "Insert"). Returns DuplicateKey if the
// key already exists.
func (d *Documents) Insert(collection string, fields *types.Object) (*types.Document, error) {
	key := ""
	if v, ok := fields.Get(types.FieldKey); ok && v.Kind() == types.KindString {
		key = v.AsString()
	} else {
		key = uuid.New().String()
	}

	existing, err := d.engine.Get(d.database, collection, []byte(key))
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, types.NewError(types.ErrDuplicateKey, "document %q already exists in %q", key, collection)
	}

	fields.Set(types.FieldKey, types.String(key))
	fields.Set(types.FieldID, types.String(collection+"/"+key))
	fields.Set(types.FieldRev, types.String(newRevision()))
	doc := types.NewDocument(fields)

	raw, err := doc.Value().MarshalJSON()
	if err != nil {
		return nil, err
	}
	if err := d.engine.Put(d.database, collection, []byte(key), raw); err != nil {
		return nil, err
	}
	return doc, nil
}

// Get fetches a document by key, returning NotFound if absent.
func (d *Documents) Get(collection, key string) (*types.Document, error) {
	raw, err := d.engine.Get(d.database, collection, []byte(key))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, types.NewError(types.ErrNotFound, "document %q not found in %q", key, collection)
	}
	obj, err := types.FromObjectOrdered(raw)
	if err != nil {
		return nil, err
	}
	return types.NewDocument(obj), nil
}

// mergePatch recursively merges patch into base: object fields are merged
// key-by-key, a patch value of null deletes the target field, and any
// other value (including arrays) replaces the target wholesale (spec §4.1
// "Update": "a JSON-merge-patch style recursive merge").
func mergePatch(base, patch *types.Object) *types.Object {
	out := base.Clone()
	for _, k := range patch.Keys() {
		pv, _ := patch.Get(k)
		if pv.IsNull() {
			out.Delete(k)
			continue
		}
		if pv.Kind() == types.KindObject {
			if bv, ok := out.Get(k); ok && bv.Kind() == types.KindObject {
				out.Set(k, types.ObjectVal(mergePatch(bv.AsObject(), pv.AsObject())))
				continue
			}
		}
		out.Set(k, pv)
	}
	return out
}

// Update applies a merge-patch to an existing document (spec §4.1
// "Update"). If expectedRev is non-empty it must match the stored
// revision or RevisionConflict is returned (spec §4.1 "optimistic
// concurrency via _rev").
func (d *Documents) Update(collection, key string, patch *types.Object, expectedRev string) (*types.Document, error) {
	current, err := d.Get(collection, key)
	if err != nil {
		return nil, err
	}
	if expectedRev != "" && current.Rev() != expectedRev {
		return nil, types.NewError(types.ErrRevisionConflict, "document %q has revision %q, expected %q", key, current.Rev(), expectedRev)
	}

	merged := mergePatch(current.Fields, patch)
	merged.Set(types.FieldKey, types.String(key))
	merged.Set(types.FieldID, types.String(collection+"/"+key))
	merged.Set(types.FieldRev, types.String(newRevision()))
	doc := types.NewDocument(merged)

	raw, err := doc.Value().MarshalJSON()
	if err != nil {
		return nil, err
	}
	if err := d.engine.Put(d.database, collection, []byte(key), raw); err != nil {
		return nil, err
	}
	return doc, nil
}

// Replace overwrites a document's fields wholesale, keeping only the
// reserved attributes it must carry, and stamps a new revision.
func (d *Documents) Replace(collection, key string, fields *types.Object, expectedRev string) (*types.Document, error) {
	current, err := d.Get(collection, key)
	if err != nil {
		return nil, err
	}
	if expectedRev != "" && current.Rev() != expectedRev {
		return nil, types.NewError(types.ErrRevisionConflict, "document %q has revision %q, expected %q", key, current.Rev(), expectedRev)
	}
	fields.Set(types.FieldKey, types.String(key))
	fields.Set(types.FieldID, types.String(collection+"/"+key))
	fields.Set(types.FieldRev, types.String(newRevision()))
	doc := types.NewDocument(fields)

	raw, err := doc.Value().MarshalJSON()
	if err != nil {
		return nil, err
	}
	if err := d.engine.Put(d.database, collection, []byte(key), raw); err != nil {
		return nil, err
	}
	return doc, nil
}

// Delete removes a document, optionally checking its revision first.
func (d *Documents) Delete(collection, key, expectedRev string) error {
	if expectedRev != "" {
		current, err := d.Get(collection, key)
		if err != nil {
			return err
		}
		if current.Rev() != expectedRev {
			return types.NewError(types.ErrRevisionConflict, "document %q has revision %q, expected %q", key, current.Rev(), expectedRev)
		}
	}
	return d.engine.Delete(d.database, collection, []byte(key))
}

// Scan walks every document in a collection in key order. The SDBQL
// executor uses it for every FOR over a collection, and index backfill
// uses it to index existing documents.
func (d *Documents) Scan(collection string, fn func(*types.Document) error) error {
	return d.engine.ForEach(d.database, collection, func(k, v []byte) error {
		obj, err := types.FromObjectOrdered(v)
		if err != nil {
			return err
		}
		return fn(types.NewDocument(obj))
	})
}
