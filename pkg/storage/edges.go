package storage

import (
	"strings"

	"github.com/cuemby/solidb/pkg/types"
)

// Edges maintains the symmetric from/to adjacency indexes that back graph
// traversal over an edge collection (spec §3 "edge collections carry
// _from/_to", §4.6 "Graph traversal"). Each edge is stored once in the
// collection's document bucket by Documents; this type additionally
// indexes it under "edgeidx:<database>:<collection>" buckets keyed by
// "<from>\x00<edgeKey>" and "<to>\x00<edgeKey>" so both directions can be
// range-scanned without touching the document body.
type Edges struct {
	engine     *Engine
	database   string
	collection string
}

func NewEdges(e *Engine, database, collection string) *Edges {
	return &Edges{engine: e, database: database, collection: collection}
}

func (g *Edges) fromBucket() string { return "edgeidx:" + g.database + ":" + g.collection + ":from" }
func (g *Edges) toBucket() string   { return "edgeidx:" + g.database + ":" + g.collection + ":to" }

// Index records an edge's adjacency entries after the edge document has
// been written (spec §4.1 "Insert" on an edge collection also updates the
// from/to index).
func (g *Edges) Index(edgeKey, from, to string) error {
	if err := g.engine.Put(g.database, g.fromBucket(), []byte(from+"\x00"+edgeKey), []byte(to)); err != nil {
		return err
	}
	return g.engine.Put(g.database, g.toBucket(), []byte(to+"\x00"+edgeKey), []byte(from))
}

// Unindex removes an edge's adjacency entries (spec §4.1 "Delete" on an
// edge collection).
func (g *Edges) Unindex(edgeKey, from, to string) error {
	if err := g.engine.Delete(g.database, g.fromBucket(), []byte(from+"\x00"+edgeKey)); err != nil {
		return err
	}
	return g.engine.Delete(g.database, g.toBucket(), []byte(to+"\x00"+edgeKey))
}

// Outbound returns the edge keys and target vertex ids for every edge
// leaving vertexID (spec §4.6: BFS expands via Outbound/Inbound per the
// traversal direction requested).
func (g *Edges) Outbound(vertexID string) ([]string, []string, error) {
	return g.scan(g.fromBucket(), vertexID)
}

// Inbound returns the edge keys and source vertex ids for every edge
// arriving at vertexID.
func (g *Edges) Inbound(vertexID string) ([]string, []string, error) {
	return g.scan(g.toBucket(), vertexID)
}

func (g *Edges) scan(bucket, vertexID string) ([]string, []string, error) {
	prefix := vertexID + "\x00"
	var edgeKeys, others []string
	err := g.engine.Range(g.database, bucket, []byte(prefix), []byte(prefix+"\xff"), func(k, v []byte) error {
		rest := strings.TrimPrefix(string(k), prefix)
		edgeKeys = append(edgeKeys, rest)
		others = append(others, string(v))
		return nil
	})
	return edgeKeys, others, err
}
