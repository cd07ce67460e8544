package index

import (
	"github.com/cuemby/solidb/pkg/codec"
	"github.com/cuemby/solidb/pkg/storage"
	"github.com/cuemby/solidb/pkg/types"
)

// Persistent is an ordered index supporting both equality and range
// filters (spec §4.3 "persistent: equality and range"). It reuses the
// binary-comparable codec encoding so a plain bucket cursor scan already
// yields documents in value order.
type Persistent struct {
	engine     *storage.Engine
	database   string
	collection string
	name       string
	fields     []string
	unique     bool
}

func NewPersistent(e *storage.Engine, database, collection, name string, fields []string, unique bool) *Persistent {
	return &Persistent{engine: e, database: database, collection: collection, name: name, fields: fields, unique: unique}
}

func (p *Persistent) bucket() string { return bucketName("persistent", p.database, p.collection, p.name) }

func (p *Persistent) key(doc *types.Document) ([]byte, bool) {
	vals := make([]types.Value, 0, len(p.fields))
	for _, f := range p.fields {
		v, ok := fieldValue(doc, f)
		if !ok {
			return nil, false
		}
		vals = append(vals, v)
	}
	return codec.EncodeValues(vals...), true
}

func (p *Persistent) OnInsert(doc *types.Document) error {
	vk, ok := p.key(doc)
	if !ok {
		return nil
	}
	if p.unique {
		existing, err := p.engine.Get(p.database, p.bucket(), vk)
		if err != nil {
			return err
		}
		if existing != nil {
			return types.NewError(types.ErrDuplicateKey, "unique index %q violated by key %q", p.name, doc.Key())
		}
		return p.engine.Put(p.database, p.bucket(), vk, []byte(doc.Key()))
	}
	return p.engine.Put(p.database, p.bucket(), postingKey(vk, doc.Key()), []byte(doc.Key()))
}

func (p *Persistent) OnDelete(doc *types.Document) error {
	vk, ok := p.key(doc)
	if !ok {
		return nil
	}
	if p.unique {
		return p.engine.Delete(p.database, p.bucket(), vk)
	}
	return p.engine.Delete(p.database, p.bucket(), postingKey(vk, doc.Key()))
}

func (p *Persistent) OnUpdate(old, new *types.Document) error {
	if err := p.OnDelete(old); err != nil {
		return err
	}
	return p.OnInsert(new)
}

// Range returns document keys with an indexed value in [lo, hi]. A nil lo
// starts from the beginning; a nil hi scans to the end. Passing the same
// non-nil lo and hi value implements equality lookup.
func (p *Persistent) Range(lo, hi *types.Value) ([]string, error) {
	var start, end []byte
	if lo != nil {
		start = codec.EncodeValue(*lo)
	}
	if hi != nil {
		end = append(codec.EncodeValue(*hi), 0xff)
	}
	var keys []string
	err := p.engine.Range(p.database, p.bucket(), start, end, func(k, v []byte) error {
		keys = append(keys, string(v))
		return nil
	})
	return keys, err
}
