/*
Package types defines the core data structures shared across SoliDB.

It holds the dynamic JSON value representation, the document/collection/
database model, index descriptors, replication log entries, shard
assignments and cluster member state, plus the tagged error kinds returned
across package boundaries. Nothing in this package touches storage, the
network, or SDBQL evaluation — it is the vocabulary every other package
imports.
*/
package types
