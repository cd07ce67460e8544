/*
Package replog implements SoliDB's append-only replication log: a
strictly monotone sequence of LogEntry records that the replicator tails
to bring replicas up to date (spec §4.5, §4.10).

It is grounded on the original implementation's RocksDB-backed log
(replication/log.rs): fixed-width zero-padded sequence keys so iteration
order matches sequence order, a persisted last-sequence counter, and a
tail(after_seq, limit) read path. Here the backing store is the shared
bbolt Engine instead of a second embedded database, keyed with
codec.EncodeSequence instead of a formatted decimal string.
*/
package replog
