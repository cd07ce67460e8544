/*
Package storage is SoliDB's embedded, transactional key/value substrate and
the document store built on top of it.

BoltDB (bbolt) provides the ordered, ACID, single-file engine; this package
adds the document semantics the rest of SoliDB depends on: revision
stamping, duplicate-key and not-found detection, merge-patch updates, edge
adjacency indexes, and blob chunking. Every other storage-backed subsystem
(secondary indexes, columnar chunks, the replication log, the shard table)
is a thin layer over the same Engine rather than a second embedded
database, so a single bbolt file backs one node's entire dataset.

# Bucket layout

Buckets are named "<database>\x00<collection>" for document data, with a
handful of fixed system buckets for metadata that does not belong to any
one collection:

	_meta               database definitions (JSON), each holding its
	                    collections and their index descriptors
	repl                replication log entries, keyed by sequence
	shards              shard table snapshots

Column families other packages need are written through the same Engine
under a database, so their buckets are also named "<database>\x00<name>",
with names of each package's own convention:
"<kind>:<db>:<collection>:<index>" for secondary indexes (kind being
hash, persistent, geo, vector and so on), "col:<collection>" for
columnar chunks (keyed by chunk index) and "blob:<db>:<collection>" for
blob data. They share the Engine's transaction and durability model.

# Transactions

Reads use db.View, writes use db.Update, exactly as bbolt intends: a
single writer at a time, consistent snapshot reads concurrent with it.
Operations that must take effect atomically together — a document write
plus its index entries plus its replication log entry — are expressed as
one Engine.Update call so they commit or roll back as a unit.
*/
package storage
