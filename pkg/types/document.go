package types

// Reserved document attribute names (spec §3).
const (
	FieldKey  = "_key"
	FieldID   = "_id"
	FieldRev  = "_rev"
	FieldFrom = "_from"
	FieldTo   = "_to"
)

// Document is an opaque JSON object plus the reserved attributes SoliDB
// manages on its behalf. Field is the ordered object so that RETURN d
// echoes attribute order back to the caller.
type Document struct {
	Fields *Object
}

func NewDocument(o *Object) *Document {
	if o == nil {
		o = NewObject()
	}
	return &Document{Fields: o}
}

func (d *Document) Key() string  { return stringField(d.Fields, FieldKey) }
func (d *Document) ID() string   { return stringField(d.Fields, FieldID) }
func (d *Document) Rev() string  { return stringField(d.Fields, FieldRev) }
func (d *Document) From() string { return stringField(d.Fields, FieldFrom) }
func (d *Document) To() string   { return stringField(d.Fields, FieldTo) }

func stringField(o *Object, name string) string {
	v, ok := o.Get(name)
	if !ok || v.Kind() != KindString {
		return ""
	}
	return v.AsString()
}

// Clone returns a deep copy so callers can mutate without aliasing cached
// or stored copies.
func (d *Document) Clone() *Document {
	return &Document{Fields: d.Fields.Clone()}
}

func (d *Document) Value() Value { return ObjectVal(d.Fields) }

// CollectionKind enumerates the four collection shapes (spec §3).
type CollectionKind string

const (
	CollectionDocument CollectionKind = "document"
	CollectionEdge     CollectionKind = "edge"
	CollectionBlob     CollectionKind = "blob"
	CollectionColumnar CollectionKind = "columnar"
)

// SchemaMode controls how strictly a collection's JSON schema is enforced.
type SchemaMode string

const (
	SchemaOff    SchemaMode = "off"
	SchemaLax    SchemaMode = "lax"
	SchemaStrict SchemaMode = "strict"
)

// ShardConfig describes how a collection is partitioned and replicated.
type ShardConfig struct {
	NumShards         int    `json:"num_shards"`
	ReplicationFactor int    `json:"replication_factor"`
	ShardKey          string `json:"shard_key"`
}

// ColumnDef describes one typed column of a columnar collection.
type ColumnDef struct {
	Name        string `json:"name"`
	Type        string `json:"type"` // "int", "float", "string", "bool"
	Compression string `json:"compression"` // "none" | "lz4"
}

// Collection is a named, typed container of documents.
type Collection struct {
	Name       string         `json:"name"`
	Kind       CollectionKind `json:"kind"`
	SchemaMode SchemaMode     `json:"schema_mode"`
	Schema     *Object        `json:"schema,omitempty"`
	Shards     ShardConfig    `json:"shards"`
	Indexes    []*Index       `json:"indexes,omitempty"`
	Columns    []ColumnDef    `json:"columns,omitempty"`
}

// Database is a named set of collections with its own keyspace prefix.
type Database struct {
	Name        string                 `json:"name"`
	Collections map[string]*Collection `json:"collections"`
}

// SystemDatabase is the pseudo-database holding administrative
// collections (spec §3).
const SystemDatabase = "_system"

// Administrative collection names under _system.
const (
	SystemUsers       = "_users"
	SystemServices    = "_services"
	SystemScripts     = "_scripts"
	SystemSlowQueries = "_slow_queries"
	SystemViews       = "_views"
)
