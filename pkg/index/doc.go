/*
Package index implements SoliDB's secondary index families: hash,
persistent (ordered/range), fulltext, geo, TTL, bloom and vector (HNSW).

Every index kind shares the same maintenance contract: a Maintainer is
notified of a document's old and new field values and updates its own
bucket(s) in the shared storage.Engine, contributing its writes to the
same transaction as the document write itself so an index can never drift
from the data it describes (spec §4.3 "index maintenance hooks").
Fulltext, geo and vector indexes additionally expose a query-side Search
method the SDBQL executor's plan rewriter calls when a filter matches
their shape.
*/
package index

import "github.com/cuemby/solidb/pkg/types"

// Maintainer is implemented by every index kind so the document write
// path can update all of a collection's indexes uniformly.
type Maintainer interface {
	// OnInsert is called after a new document is written.
	OnInsert(doc *types.Document) error
	// OnUpdate is called after an existing document is overwritten; old
	// is the previous version so the index can remove stale entries.
	OnUpdate(old, new *types.Document) error
	// OnDelete is called after a document is removed.
	OnDelete(doc *types.Document) error
}

func fieldValue(doc *types.Document, field string) (types.Value, bool) {
	return doc.Fields.Get(field)
}
