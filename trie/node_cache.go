package trie

import (
	"sync"
	"sync/atomic"

	"github.com/corestate/mpt/metrics"
	"github.com/corestate/mpt/types"
)

// averageNodeSize estimates the typical encoded size of a trie node. The
// cache does not consult it: eviction is always driven by actual byte size.
const averageNodeSize = 384

// NodeCache is the process-wide node cache: a thread-safe LRU keyed by
// content hash, holding the RLP encoding of sealed nodes only. Dirty nodes
// are never cached (invariant 2) -- a dirty node's encoding isn't stable,
// so caching it would serve stale bytes the moment the node mutates again.
type NodeCache struct {
	mu      sync.RWMutex
	entries map[types.Hash]*cacheEntry
	head    *cacheEntry
	tail    *cacheEntry
	maxSize uint64
	curSize uint64

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

type cacheEntry struct {
	hash types.Hash
	data []byte
	prev *cacheEntry
	next *cacheEntry
	size uint64
}

// NewNodeCache returns a cache bounded to budgetBytes of encoded node data.
func NewNodeCache(budgetBytes int) *NodeCache {
	if budgetBytes < 0 {
		budgetBytes = 0
	}
	return &NodeCache{
		entries: make(map[types.Hash]*cacheEntry),
		maxSize: uint64(budgetBytes),
	}
}

// Get returns a copy of the cached encoding for hash, recycling the entry
// to the front of the LRU list on a hit.
func (c *NodeCache) Get(hash types.Hash) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[hash]
	if !ok {
		c.misses.Add(1)
		metrics.CacheMisses.Inc()
		return nil, false
	}
	c.hits.Add(1)
	metrics.CacheHits.Inc()
	c.moveToFrontLocked(entry)

	cp := make([]byte, len(entry.data))
	copy(cp, entry.data)
	return cp, true
}

// Put inserts or refreshes the encoding for a sealed node, evicting the
// least-recently-used entries as needed to stay within the byte budget.
func (c *NodeCache) Put(hash types.Hash, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)
	dataSize := uint64(len(dataCopy))

	if existing, ok := c.entries[hash]; ok {
		c.curSize -= existing.size
		existing.data = dataCopy
		existing.size = dataSize
		c.curSize += dataSize
		c.moveToFrontLocked(existing)
		return
	}

	for c.maxSize > 0 && c.curSize+dataSize > c.maxSize && c.tail != nil {
		c.evictTailLocked()
	}

	entry := &cacheEntry{hash: hash, data: dataCopy, size: dataSize}
	c.entries[hash] = entry
	c.curSize += dataSize
	c.pushFrontLocked(entry)
	metrics.ObserveCacheSize(c.curSize)
}

// Delete removes hash's entry, if present.
func (c *NodeCache) Delete(hash types.Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[hash]
	if !ok {
		return
	}
	c.removeLocked(entry)
	delete(c.entries, hash)
	c.curSize -= entry.size
}

// Len returns the number of cached entries.
func (c *NodeCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Size returns the total byte size of cached node data.
func (c *NodeCache) Size() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.curSize
}

// CacheStats is a point-in-time snapshot of cache performance counters.
type CacheStats struct {
	Hits        uint64
	Misses      uint64
	Evictions   uint64
	CurrentSize uint64
	EntryCount  int
}

// Stats returns a snapshot of the cache's performance counters.
func (c *NodeCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return CacheStats{
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Evictions:   c.evictions.Load(),
		CurrentSize: c.curSize,
		EntryCount:  len(c.entries),
	}
}

// HitRate returns hits/(hits+misses), or 0 if there have been no lookups.
func (c *NodeCache) HitRate() float64 {
	hits := c.hits.Load()
	misses := c.misses.Load()
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

func (c *NodeCache) pushFrontLocked(entry *cacheEntry) {
	entry.prev = nil
	entry.next = c.head
	if c.head != nil {
		c.head.prev = entry
	}
	c.head = entry
	if c.tail == nil {
		c.tail = entry
	}
}

func (c *NodeCache) moveToFrontLocked(entry *cacheEntry) {
	if entry == c.head {
		return
	}
	c.removeLocked(entry)
	c.pushFrontLocked(entry)
}

func (c *NodeCache) removeLocked(entry *cacheEntry) {
	if entry.prev != nil {
		entry.prev.next = entry.next
	} else {
		c.head = entry.next
	}
	if entry.next != nil {
		entry.next.prev = entry.prev
	} else {
		c.tail = entry.prev
	}
	entry.prev = nil
	entry.next = nil
}

func (c *NodeCache) evictTailLocked() {
	if c.tail == nil {
		return
	}
	evicted := c.tail
	c.removeLocked(evicted)
	delete(c.entries, evicted.hash)
	c.curSize -= evicted.size
	c.evictions.Add(1)
	metrics.CacheEvictions.Inc()
	metrics.ObserveCacheSize(c.curSize)
}
