package index

import (
	"testing"

	"github.com/cuemby/solidb/pkg/storage"
	"github.com/cuemby/solidb/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *storage.Engine {
	t.Helper()
	e, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func docWith(key, field string, v types.Value) *types.Document {
	o := types.NewObject()
	o.Set(types.FieldKey, types.String(key))
	o.Set(field, v)
	return types.NewDocument(o)
}

func TestHashIndexUniqueLookup(t *testing.T) {
	e := newTestEngine(t)
	h := NewHash(e, "app", "users", "by_email", []string{"email"}, true)

	d1 := docWith("k1", "email", types.String("a@x.com"))
	require.NoError(t, h.OnInsert(d1))

	keys, err := h.Lookup(types.String("a@x.com"))
	require.NoError(t, err)
	assert.Equal(t, []string{"k1"}, keys)

	d2 := docWith("k2", "email", types.String("a@x.com"))
	err = h.OnInsert(d2)
	require.Error(t, err)
	assert.Equal(t, types.ErrDuplicateKey, types.KindOf(err))
}

func TestHashIndexNonUniqueMultipleKeys(t *testing.T) {
	e := newTestEngine(t)
	h := NewHash(e, "app", "users", "by_country", []string{"country"}, false)

	require.NoError(t, h.OnInsert(docWith("k1", "country", types.String("US"))))
	require.NoError(t, h.OnInsert(docWith("k2", "country", types.String("US"))))

	keys, err := h.Lookup(types.String("US"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"k1", "k2"}, keys)
}

func TestPersistentIndexRange(t *testing.T) {
	e := newTestEngine(t)
	p := NewPersistent(e, "app", "events", "by_ts", []string{"ts"}, false)

	for i, key := range []string{"a", "b", "c", "d"} {
		require.NoError(t, p.OnInsert(docWith(key, "ts", types.Int(int64(i)))))
	}

	lo := types.Int(1)
	hi := types.Int(3)
	keys, err := p.Range(&lo, &hi)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c", "d"}, keys)
}

func TestFulltextSearchMatchesTokens(t *testing.T) {
	e := newTestEngine(t)
	ft := NewFulltext(e, "app", "articles", "by_body", []string{"body"}, 2)

	require.NoError(t, ft.OnInsert(docWith("a1", "body", types.String("The quick brown fox"))))
	require.NoError(t, ft.OnInsert(docWith("a2", "body", types.String("Lazy dogs sleep"))))

	scores, err := ft.Search("quick fox")
	require.NoError(t, err)
	assert.Equal(t, 2, scores["a1"])
	assert.Zero(t, scores["a2"])
}

func TestBloomProbeNoFalseNegatives(t *testing.T) {
	e := newTestEngine(t)
	b, err := NewBloom(e, "app", "users", "by_id", "ext_id", 1000, 0.01)
	require.NoError(t, err)

	require.NoError(t, b.OnInsert(docWith("k1", "ext_id", types.String("ext-123"))))
	assert.True(t, b.Probe(types.String("ext-123")))
}

func TestGeoNearReturnsClosestFirst(t *testing.T) {
	e := newTestEngine(t)
	g := NewGeo(e, "app", "places", "by_loc", "lat", "lon")

	near := types.NewObject()
	near.Set(types.FieldKey, types.String("near"))
	near.Set("lat", types.Float(40.7128))
	near.Set("lon", types.Float(-74.0060))
	require.NoError(t, g.OnInsert(types.NewDocument(near)))

	far := types.NewObject()
	far.Set(types.FieldKey, types.String("far"))
	far.Set("lat", types.Float(34.0522))
	far.Set("lon", types.Float(-118.2437))
	require.NoError(t, g.OnInsert(types.NewDocument(far)))

	hits, err := g.Near(40.7, -74.0, 2)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "near", hits[0])
}

func TestVectorSearchFindsNearest(t *testing.T) {
	e := newTestEngine(t)
	params := types.HNSWParams{Dimension: 2, Metric: types.DistanceL2, M: 8, EfConstruction: 32, EfSearch: 16}
	v, err := NewVector(e, "app", "docs", "by_vec", params)
	require.NoError(t, err)

	require.NoError(t, v.Insert("a", []float32{0, 0}))
	require.NoError(t, v.Insert("b", []float32{10, 10}))
	require.NoError(t, v.Insert("c", []float32{0.1, 0.1}))

	results := v.Search([]float32{0, 0}, 2)
	assert.Contains(t, results, "a")
}

func TestTTLSweepDeletesExpired(t *testing.T) {
	e := newTestEngine(t)
	cat := storage.NewCatalog(e)
	_, err := cat.CreateDatabase("app")
	require.NoError(t, err)
	docs := storage.NewDocuments(e, cat, "app", "node-1")

	old := types.NewObject()
	old.Set("created", types.Int(0))
	doc, err := docs.Insert("sessions", old)
	require.NoError(t, err)

	ttl := NewTTL(e, docs, "app", "sessions", "created", 60)
	n, err := ttl.Sweep(1000)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = docs.Get("sessions", doc.Key())
	require.Error(t, err)
}
