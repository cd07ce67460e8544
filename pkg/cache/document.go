package cache

import (
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/cuemby/solidb/pkg/types"
)

// DocumentCache caches recently read documents keyed by "<collection>/<key>".
// A write to any document in a collection invalidates every cached entry
// for that collection (spec §4.4 "invalidated by collection-prefix on
// write") rather than tracking per-key dependencies, trading a slightly
// larger invalidation blast radius for a cache with no staleness window.
type DocumentCache struct {
	mu  sync.RWMutex
	lru *lru.Cache[string, *types.Document]
}

func NewDocumentCache(size int) (*DocumentCache, error) {
	l, err := lru.New[string, *types.Document](size)
	if err != nil {
		return nil, err
	}
	return &DocumentCache{lru: l}, nil
}

func cacheKey(collection, key string) string { return collection + "/" + key }

func (c *DocumentCache) Get(collection, key string) (*types.Document, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lru.Get(cacheKey(collection, key))
}

func (c *DocumentCache) Put(collection, key string, doc *types.Document) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(cacheKey(collection, key), doc)
}

// InvalidateCollection drops every cached document belonging to
// collection. golang-lru has no prefix-scan primitive, so this walks the
// current key set once; the cache is sized for hot working sets, not for
// millions of entries, so this stays cheap in practice.
func (c *DocumentCache) InvalidateCollection(collection string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prefix := collection + "/"
	for _, k := range c.lru.Keys() {
		if strings.HasPrefix(k, prefix) {
			c.lru.Remove(k)
		}
	}
}

func (c *DocumentCache) InvalidateKey(collection, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(cacheKey(collection, key))
}
