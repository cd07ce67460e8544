/*
Package cache provides the two in-memory caches SoliDB layers in front of
the storage engine: a per-document LRU invalidated by collection prefix on
write, and a query-result TTL cache keyed by a hash of the query text and
its bind variables.

Both are thin wrappers around hashicorp/golang-lru so invalidation and key
construction stay in one place instead of scattered across the document
store and the SDBQL executor.
*/
package cache
