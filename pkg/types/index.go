package types

// IndexKind enumerates the secondary index families (spec §3/§4.3).
type IndexKind string

const (
	IndexHash       IndexKind = "hash"
	IndexPersistent IndexKind = "persistent"
	IndexFulltext   IndexKind = "fulltext"
	IndexGeo        IndexKind = "geo"
	IndexTTL        IndexKind = "ttl"
	IndexBloom      IndexKind = "bloom"
	IndexVector     IndexKind = "vector"
)

// DistanceMetric enumerates vector-index distance functions.
type DistanceMetric string

const (
	DistanceCosine       DistanceMetric = "cosine"
	DistanceL2           DistanceMetric = "l2"
	DistanceInnerProduct DistanceMetric = "inner-product"
)

// HNSWParams carries the graph construction/search parameters for a
// vector index (spec §3, §4.3).
type HNSWParams struct {
	Dimension      int            `json:"dimension"`
	Metric         DistanceMetric `json:"metric"`
	M              int            `json:"m"`
	EfConstruction int            `json:"ef_construction"`
	EfSearch       int            `json:"ef_search"`
	Quantization   string         `json:"quantization,omitempty"` // "", "scalar", "product"
}

// IndexStatus tracks backfill progress (spec §3 "Lifecycles").
type IndexStatus string

const (
	IndexBuilding IndexStatus = "building"
	IndexReady    IndexStatus = "ready"
)

// Index is the persisted descriptor of one secondary index.
type Index struct {
	Name     string    `json:"name"`
	Kind     IndexKind `json:"kind"`
	Fields   []string  `json:"fields"`
	Unique   bool      `json:"unique"`
	Sparse   bool      `json:"sparse"`
	Status   IndexStatus `json:"status"`

	// Fulltext
	MinTokenLength int `json:"min_token_length,omitempty"`

	// TTL
	ExpireAfterSeconds int64 `json:"expire_after_seconds,omitempty"`

	// Vector
	HNSW *HNSWParams `json:"hnsw,omitempty"`
}
