package index

import (
	"github.com/cuemby/solidb/pkg/codec"
	"github.com/cuemby/solidb/pkg/storage"
	"github.com/cuemby/solidb/pkg/types"
)

// Hash is an exact-match index: it maps an encoded field value (or tuple
// of values, for compound indexes) to the set of document keys holding
// it. Lookups are O(1) bucket gets rather than a range scan (spec §4.3
// "hash: equality only").
type Hash struct {
	engine     *Engine
	database   string
	collection string
	name       string
	fields     []string
	unique     bool
}

// Engine is the narrow storage facade index implementations need; it is
// satisfied by *storage.Engine and lets this package avoid importing
// bbolt directly.
type Engine = storage.Engine

func bucketName(kind, database, collection, name string) string {
	return kind + ":" + database + ":" + collection + ":" + name
}

func NewHash(e *storage.Engine, database, collection, name string, fields []string, unique bool) *Hash {
	return &Hash{engine: e, database: database, collection: collection, name: name, fields: fields, unique: unique}
}

func (h *Hash) bucket() string { return bucketName("hash", h.database, h.collection, h.name) }

func (h *Hash) key(doc *types.Document) ([]byte, bool) {
	vals := make([]types.Value, 0, len(h.fields))
	for _, f := range h.fields {
		v, ok := fieldValue(doc, f)
		if !ok {
			return nil, false // sparse: documents missing the field are not indexed
		}
		vals = append(vals, v)
	}
	return codec.EncodeValues(vals...), true
}

// postingKey combines the field-value key with the document key so
// non-unique indexes can hold multiple postings per value.
func postingKey(valueKey []byte, docKey string) []byte {
	out := make([]byte, 0, len(valueKey)+1+len(docKey))
	out = append(out, valueKey...)
	out = append(out, 0x00)
	out = append(out, docKey...)
	return out
}

func (h *Hash) OnInsert(doc *types.Document) error {
	vk, ok := h.key(doc)
	if !ok {
		return nil
	}
	if h.unique {
		existing, err := h.engine.Get(h.database, h.bucket(), vk)
		if err != nil {
			return err
		}
		if existing != nil {
			return types.NewError(types.ErrDuplicateKey, "unique index %q violated by key %q", h.name, doc.Key())
		}
		return h.engine.Put(h.database, h.bucket(), vk, []byte(doc.Key()))
	}
	return h.engine.Put(h.database, h.bucket(), postingKey(vk, doc.Key()), []byte(doc.Key()))
}

func (h *Hash) OnDelete(doc *types.Document) error {
	vk, ok := h.key(doc)
	if !ok {
		return nil
	}
	if h.unique {
		return h.engine.Delete(h.database, h.bucket(), vk)
	}
	return h.engine.Delete(h.database, h.bucket(), postingKey(vk, doc.Key()))
}

func (h *Hash) OnUpdate(old, new *types.Document) error {
	if err := h.OnDelete(old); err != nil {
		return err
	}
	return h.OnInsert(new)
}

// Lookup returns the document keys matching an exact value tuple.
func (h *Hash) Lookup(values ...types.Value) ([]string, error) {
	vk := codec.EncodeValues(values...)
	if h.unique {
		v, err := h.engine.Get(h.database, h.bucket(), vk)
		if err != nil || v == nil {
			return nil, err
		}
		return []string{string(v)}, nil
	}
	var keys []string
	prefix := append(append([]byte{}, vk...), 0x00)
	err := h.engine.Range(h.database, h.bucket(), prefix, append(append([]byte{}, prefix...), 0xff), func(k, v []byte) error {
		keys = append(keys, string(v))
		return nil
	})
	return keys, err
}
