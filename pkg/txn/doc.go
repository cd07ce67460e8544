/*
Package txn implements SoliDB's transaction manager: BeginTransaction
sessions over ReadCommitted, RepeatableRead and Serializable isolation,
buffering writes until Commit applies them as one batch and appends one
replication log segment covering the whole transaction (spec §4.12).

ReadCommitted always re-reads the current stored value. RepeatableRead
caches the first read of each key for the lifetime of the transaction, so
later reads of the same key return the snapshot taken at first access
even if another transaction commits a change in between. Serializable
behaves like RepeatableRead and additionally tracks every key read; at
commit, if any of those keys now holds a different revision than the one
observed at read time, the transaction fails with SerializationConflict
rather than applying its buffered writes.

Every transaction also keeps a local overlay of its own uncommitted
writes, so a transaction observes its own inserts/updates/deletes before
they are durable (read-your-writes) regardless of isolation level.
*/
package txn
