package cache

import (
	"testing"
	"time"

	"github.com/cuemby/solidb/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentCachePutGetInvalidate(t *testing.T) {
	c, err := NewDocumentCache(10)
	require.NoError(t, err)

	doc := types.NewDocument(types.NewObject())
	c.Put("users", "alice", doc)

	got, ok := c.Get("users", "alice")
	require.True(t, ok)
	assert.Same(t, doc, got)

	c.Put("accounts", "a1", types.NewDocument(types.NewObject()))
	c.InvalidateCollection("users")

	_, ok = c.Get("users", "alice")
	assert.False(t, ok)
	_, ok = c.Get("accounts", "a1")
	assert.True(t, ok)
}

func TestQueryCacheKeyOrderIndependent(t *testing.T) {
	binds1 := map[string]types.Value{"a": types.Int(1), "b": types.String("x")}
	binds2 := map[string]types.Value{"b": types.String("x"), "a": types.Int(1)}
	assert.Equal(t, Key("FOR d IN c RETURN d", binds1), Key("FOR d IN c RETURN d", binds2))
}

func TestQueryCacheConservativeInvalidation(t *testing.T) {
	c := NewQueryCache(10, time.Minute, true)
	key := Key("q", nil)
	c.Put(key, []types.Value{types.Int(1)})

	_, ok := c.Get(key)
	require.True(t, ok)

	c.OnWrite()
	_, ok = c.Get(key)
	assert.False(t, ok)
}
