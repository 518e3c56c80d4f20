package trie

import (
	"testing"

	"github.com/corestate/mpt/types"
	"github.com/stretchr/testify/require"
)

func hashFromByte(b byte) types.Hash {
	var h types.Hash
	h[31] = b
	return h
}

func TestNodeCacheGetPutRoundTrip(t *testing.T) {
	c := NewNodeCache(1024)
	h := hashFromByte(1)
	_, ok := c.Get(h)
	require.False(t, ok)

	c.Put(h, []byte("encoded-node"))
	got, ok := c.Get(h)
	require.True(t, ok)
	require.Equal(t, []byte("encoded-node"), got)

	stats := c.Stats()
	require.Equal(t, uint64(1), stats.Hits)
	require.Equal(t, uint64(1), stats.Misses)
	require.Equal(t, 1, stats.EntryCount)
}

func TestNodeCacheEvictsLeastRecentlyUsed(t *testing.T) {
	entrySize := len("0123456789")
	c := NewNodeCache(entrySize * 2)

	c.Put(hashFromByte(1), []byte("0123456789"))
	c.Put(hashFromByte(2), []byte("0123456789"))
	// Touch entry 1 so entry 2 becomes the least recently used.
	_, ok := c.Get(hashFromByte(1))
	require.True(t, ok)

	c.Put(hashFromByte(3), []byte("0123456789"))

	_, ok = c.Get(hashFromByte(2))
	require.False(t, ok, "entry 2 should have been evicted as the least recently used")
	_, ok = c.Get(hashFromByte(1))
	require.True(t, ok, "entry 1 was touched and should survive")
	_, ok = c.Get(hashFromByte(3))
	require.True(t, ok, "entry 3 was just inserted and should survive")

	require.Equal(t, uint64(1), c.Stats().Evictions)
}

func TestNodeCacheZeroBudgetIsUnbounded(t *testing.T) {
	c := NewNodeCache(0)
	for i := byte(1); i <= 50; i++ {
		c.Put(hashFromByte(i), []byte("0123456789"))
	}
	require.Equal(t, 50, c.Len())
	require.Equal(t, uint64(0), c.Stats().Evictions)
}

func TestNodeCacheHitRate(t *testing.T) {
	c := NewNodeCache(1024)
	require.Equal(t, float64(0), c.HitRate())

	c.Put(hashFromByte(1), []byte("v"))
	c.Get(hashFromByte(1))
	c.Get(hashFromByte(2))
	require.InDelta(t, 0.5, c.HitRate(), 0.0001)
}

func TestNodeCacheDelete(t *testing.T) {
	c := NewNodeCache(1024)
	h := hashFromByte(1)
	c.Put(h, []byte("v"))
	c.Delete(h)
	_, ok := c.Get(h)
	require.False(t, ok)
	require.Equal(t, 0, c.Len())
}
