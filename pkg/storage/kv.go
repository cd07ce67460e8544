package storage

import (
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

// Fixed system buckets (spec §4.1, §3 "system databases").
var (
	bucketMeta   = []byte("_meta")
	bucketRepl   = []byte("repl")
	bucketShards = []byte("shards")
)

// Engine is the single bbolt-backed key/value substrate shared by the
// document store, secondary indexes, the columnar layer, the replication
// log and the shard table.
type Engine struct {
	db *bolt.DB
}

// Open opens (creating if necessary) the node's data file under dataDir.
func Open(dataDir string) (*Engine, error) {
	dbPath := filepath.Join(dataDir, "solidb.db")
	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open data file: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketMeta, bucketRepl, bucketShards} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, err
	}
	return &Engine{db: db}, nil
}

func (e *Engine) Close() error { return e.db.Close() }

// collectionBucketName derives the flat bucket name for a document
// collection (spec §3: documents live under "<database>/<collection>").
func collectionBucketName(database, collection string) []byte {
	return []byte(database + "\x00" + collection)
}

// EnsureCollectionBucket creates the bucket backing a collection's
// documents if it does not already exist.
func (e *Engine) EnsureCollectionBucket(database, collection string) error {
	return e.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(collectionBucketName(database, collection))
		return err
	})
}

// DropCollectionBucket deletes a collection's document bucket entirely
// (spec §4.2 "DeleteCollection", "TruncateCollection" recreates it empty).
func (e *Engine) DropCollectionBucket(database, collection string) error {
	return e.db.Update(func(tx *bolt.Tx) error {
		name := collectionBucketName(database, collection)
		if tx.Bucket(name) == nil {
			return nil
		}
		return tx.DeleteBucket(name)
	})
}

// TruncateCollectionBucket removes all documents while keeping the
// collection registered.
func (e *Engine) TruncateCollectionBucket(database, collection string) error {
	return e.db.Update(func(tx *bolt.Tx) error {
		name := collectionBucketName(database, collection)
		if tx.Bucket(name) != nil {
			if err := tx.DeleteBucket(name); err != nil {
				return err
			}
		}
		_, err := tx.CreateBucketIfNotExists(name)
		return err
	})
}

// Get reads a single key out of a collection's bucket. The returned slice
// is a copy and safe to retain after the transaction closes.
func (e *Engine) Get(database, collection string, key []byte) ([]byte, error) {
	var out []byte
	err := e.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(collectionBucketName(database, collection))
		if b == nil {
			return nil
		}
		if v := b.Get(key); v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	return out, err
}

// Put writes a single key into a collection's bucket, creating the bucket
// on first use.
func (e *Engine) Put(database, collection string, key, value []byte) error {
	return e.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(collectionBucketName(database, collection))
		if err != nil {
			return err
		}
		return b.Put(key, value)
	})
}

// Delete removes a single key from a collection's bucket; absent keys are
// a no-op (idempotent deletes, matching the teacher's store convention).
func (e *Engine) Delete(database, collection string, key []byte) error {
	return e.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(collectionBucketName(database, collection))
		if b == nil {
			return nil
		}
		return b.Delete(key)
	})
}

// ForEach iterates every key/value pair of a collection's bucket in
// ascending key order, stopping early if fn returns an error.
func (e *Engine) ForEach(database, collection string, fn func(key, value []byte) error) error {
	return e.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(collectionBucketName(database, collection))
		if b == nil {
			return nil
		}
		return b.ForEach(fn)
	})
}

// Range iterates keys in [start, end) order, or to the end of the bucket
// when end is nil — used by range/persistent index scans.
func (e *Engine) Range(database, collection string, start, end []byte, fn func(key, value []byte) error) error {
	return e.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(collectionBucketName(database, collection))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Seek(start); k != nil; k, v = c.Next() {
			if end != nil && string(k) >= string(end) {
				break
			}
			if err := fn(k, v); err != nil {
				return err
			}
		}
		return nil
	})
}

// Update runs fn inside a single read/write transaction over the bucket
// named database/collection, creating it if absent. Callers use this to
// make a document write and its index/log side effects atomic.
func (e *Engine) Update(database, collection string, fn func(b *bolt.Bucket) error) error {
	return e.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(collectionBucketName(database, collection))
		if err != nil {
			return err
		}
		return fn(b)
	})
}

// Tx gives privileged callers (the transaction manager, the replog) a raw
// bbolt transaction when they must coordinate writes across more than one
// bucket atomically.
func (e *Engine) Tx(writable bool, fn func(tx *bolt.Tx) error) error {
	if writable {
		return e.db.Update(fn)
	}
	return e.db.View(fn)
}

// MetaBucket, ReplBucket and ShardsBucket name the fixed system buckets so
// other packages in this module can address them through Tx without
// re-declaring the byte slices.
func MetaBucket() []byte   { return bucketMeta }
func ReplBucket() []byte   { return bucketRepl }
func ShardsBucket() []byte { return bucketShards }
