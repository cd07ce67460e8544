package index

import (
	"encoding/json"

	bloomfilter "github.com/bits-and-blooms/bloom/v3"

	"github.com/cuemby/solidb/pkg/storage"
	"github.com/cuemby/solidb/pkg/types"
)

// Bloom maintains a probabilistic membership filter over an indexed
// field's values (spec §4.3 "bloom: fingerprint probe"). It never
// produces false negatives, so a negative Probe conclusively rules out a
// plan needing to scan the collection for that value; a positive Probe
// only narrows — callers must still confirm against the real data.
type Bloom struct {
	engine     *storage.Engine
	database   string
	collection string
	name       string
	field      string

	filter *bloomfilter.BloomFilter
}

const bloomMetaKey = "filter"

func NewBloom(e *storage.Engine, database, collection, name, field string, expectedN uint, falsePositiveRate float64) (*Bloom, error) {
	b := &Bloom{engine: e, database: database, collection: collection, name: name, field: field}
	bucket := b.bucket()
	data, err := e.Get(database, bucket, []byte(bloomMetaKey))
	if err != nil {
		return nil, err
	}
	if data != nil {
		f := &bloomfilter.BloomFilter{}
		if err := json.Unmarshal(data, f); err != nil {
			return nil, err
		}
		b.filter = f
		return b, nil
	}
	b.filter = bloomfilter.NewWithEstimates(expectedN, falsePositiveRate)
	return b, b.persist()
}

func (b *Bloom) bucket() string { return bucketName("bloom", b.database, b.collection, b.name) }

func (b *Bloom) persist() error {
	data, err := json.Marshal(b.filter)
	if err != nil {
		return err
	}
	return b.engine.Put(b.database, b.bucket(), []byte(bloomMetaKey), data)
}

func (b *Bloom) add(doc *types.Document) error {
	v, ok := fieldValue(doc, b.field)
	if !ok {
		return nil
	}
	b.filter.Add([]byte(v.String()))
	return b.persist()
}

func (b *Bloom) OnInsert(doc *types.Document) error { return b.add(doc) }
func (b *Bloom) OnUpdate(old, new *types.Document) error { return b.add(new) }

// OnDelete is a no-op: bloom filters cannot support removal without a
// counting variant, which the spec does not ask for. A stale bit only
// ever causes an extra false-positive scan, never an incorrect result.
func (b *Bloom) OnDelete(*types.Document) error { return nil }

// Probe reports whether value might be present (true) or is definitely
// absent (false).
func (b *Bloom) Probe(v types.Value) bool {
	return b.filter.Test([]byte(v.String()))
}
