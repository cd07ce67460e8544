package storage

import (
	"encoding/json"

	"github.com/cuemby/solidb/pkg/types"
	bolt "go.etcd.io/bbolt"
)

// Catalog manages database and collection definitions in the fixed _meta
// bucket (spec §3, §4.1 "CreateDatabase"/"CreateCollection").
type Catalog struct {
	engine *Engine
}

func NewCatalog(e *Engine) *Catalog { return &Catalog{engine: e} }

func databaseMetaKey(name string) []byte { return []byte("db:" + name) }

// CreateDatabase registers a new, empty database.
func (c *Catalog) CreateDatabase(name string) (*types.Database, error) {
	db := &types.Database{Name: name, Collections: map[string]*types.Collection{}}
	err := c.engine.Tx(true, func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMeta)
		key := databaseMetaKey(name)
		if b.Get(key) != nil {
			return types.NewError(types.ErrDuplicateKey, "database %q already exists", name)
		}
		data, err := json.Marshal(db)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
	if err != nil {
		return nil, err
	}
	return db, nil
}

// GetDatabase looks up a database's definition.
func (c *Catalog) GetDatabase(name string) (*types.Database, error) {
	var db types.Database
	found := false
	err := c.engine.Tx(false, func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMeta)
		data := b.Get(databaseMetaKey(name))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &db)
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, types.NewError(types.ErrNotFound, "database %q not found", name)
	}
	return &db, nil
}

// DeleteDatabase removes a database's definition. It does not itself drop
// the collection buckets; callers iterate db.Collections and call
// DropCollectionBucket for each (spec §4.1 "DeleteDatabase" cascades to
// every collection's data).
func (c *Catalog) DeleteDatabase(name string) error {
	return c.engine.Tx(true, func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMeta).Delete(databaseMetaKey(name))
	})
}

// ListDatabases returns every registered database.
func (c *Catalog) ListDatabases() ([]*types.Database, error) {
	var out []*types.Database
	err := c.engine.Tx(false, func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMeta)
		return b.ForEach(func(k, v []byte) error {
			if len(k) < 3 || string(k[:3]) != "db:" {
				return nil
			}
			var db types.Database
			if err := json.Unmarshal(v, &db); err != nil {
				return err
			}
			out = append(out, &db)
			return nil
		})
	})
	return out, err
}

// CreateCollection registers a collection under an existing database and
// creates its document bucket.
func (c *Catalog) CreateCollection(database string, col *types.Collection) error {
	return c.engine.Tx(true, func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMeta)
		key := databaseMetaKey(database)
		data := b.Get(key)
		if data == nil {
			return types.NewError(types.ErrNotFound, "database %q not found", database)
		}
		var db types.Database
		if err := json.Unmarshal(data, &db); err != nil {
			return err
		}
		if db.Collections == nil {
			db.Collections = map[string]*types.Collection{}
		}
		if _, exists := db.Collections[col.Name]; exists {
			return types.NewError(types.ErrDuplicateKey, "collection %q already exists", col.Name)
		}
		db.Collections[col.Name] = col
		out, err := json.Marshal(db)
		if err != nil {
			return err
		}
		if err := b.Put(key, out); err != nil {
			return err
		}
		_, err = tx.CreateBucketIfNotExists(collectionBucketName(database, col.Name))
		return err
	})
}

// GetCollection looks up one collection's definition.
func (c *Catalog) GetCollection(database, name string) (*types.Collection, error) {
	db, err := c.GetDatabase(database)
	if err != nil {
		return nil, err
	}
	col, ok := db.Collections[name]
	if !ok {
		return nil, types.NewError(types.ErrNotFound, "collection %q not found", name)
	}
	return col, nil
}

// UpdateCollection persists changes to a collection's definition (new
// indexes, schema changes).
func (c *Catalog) UpdateCollection(database string, col *types.Collection) error {
	return c.engine.Tx(true, func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMeta)
		key := databaseMetaKey(database)
		data := b.Get(key)
		if data == nil {
			return types.NewError(types.ErrNotFound, "database %q not found", database)
		}
		var db types.Database
		if err := json.Unmarshal(data, &db); err != nil {
			return err
		}
		if _, exists := db.Collections[col.Name]; !exists {
			return types.NewError(types.ErrNotFound, "collection %q not found", col.Name)
		}
		db.Collections[col.Name] = col
		out, err := json.Marshal(db)
		if err != nil {
			return err
		}
		return b.Put(key, out)
	})
}

// DeleteCollection removes a collection's definition and drops its
// document bucket.
func (c *Catalog) DeleteCollection(database, name string) error {
	err := c.engine.Tx(true, func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMeta)
		key := databaseMetaKey(database)
		data := b.Get(key)
		if data == nil {
			return types.NewError(types.ErrNotFound, "database %q not found", database)
		}
		var db types.Database
		if err := json.Unmarshal(data, &db); err != nil {
			return err
		}
		if _, exists := db.Collections[name]; !exists {
			return types.NewError(types.ErrNotFound, "collection %q not found", name)
		}
		delete(db.Collections, name)
		out, err := json.Marshal(db)
		if err != nil {
			return err
		}
		return b.Put(key, out)
	})
	if err != nil {
		return err
	}
	return c.engine.DropCollectionBucket(database, name)
}
