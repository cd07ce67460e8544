package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"time"

	expirable "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/cuemby/solidb/pkg/types"
)

// QueryCache caches SDBQL result sets keyed by a hash of the query text
// and its sorted bind variables, with a fixed TTL per entry (spec §4.8
// "query result cache keyed by hash of (query text, sorted bind vars)").
type QueryCache struct {
	ttl     time.Duration
	cache   *expirable.LRU[string, []types.Value]
	conservative bool // invalidate everything on any write, rather than nothing
}

// NewQueryCache builds a cache holding up to size entries for ttl each.
// conservative selects the spec's safer invalidation strategy: any write
// anywhere clears the whole cache rather than leaving stale results
// reachable until they expire naturally.
func NewQueryCache(size int, ttl time.Duration, conservative bool) *QueryCache {
	return &QueryCache{
		ttl:          ttl,
		cache:        expirable.NewLRU[string, []types.Value](size, nil, ttl),
		conservative: conservative,
	}
}

// Key hashes the query text together with its bind variables in
// deterministic (sorted-by-name) order so identical queries with
// differently-ordered bind maps share a cache entry.
func Key(queryText string, binds map[string]types.Value) string {
	names := make([]string, 0, len(binds))
	for k := range binds {
		names = append(names, k)
	}
	sort.Strings(names)

	h := sha256.New()
	h.Write([]byte(queryText))
	for _, n := range names {
		h.Write([]byte{0})
		h.Write([]byte(n))
		h.Write([]byte{0})
		h.Write([]byte(binds[n].String()))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (c *QueryCache) Get(key string) ([]types.Value, bool) {
	return c.cache.Get(key)
}

func (c *QueryCache) Put(key string, rows []types.Value) {
	c.cache.Add(key, rows)
}

// OnWrite is called after any mutating operation commits. Under the
// conservative policy it drops the entire cache; otherwise it is a no-op
// and stale entries are left to expire on their own TTL.
func (c *QueryCache) OnWrite() {
	if c.conservative {
		c.cache.Purge()
	}
}
