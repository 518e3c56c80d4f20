package metrics

// Standard metrics for the trie engine, all registered against
// DefaultRegistry so a caller never has to wire a metrics sink through the
// constructor just to observe commit and cache behavior.
var (
	// NodesCommitted counts sealed nodes written to the backing store.
	NodesCommitted = DefaultRegistry.Counter("trie.nodes_committed")

	// BytesFlushed counts encoded node bytes written to the backing store.
	BytesFlushed = DefaultRegistry.Counter("trie.bytes_flushed")

	// CommitsTotal counts completed Commit calls, successful or not.
	CommitsTotal = DefaultRegistry.Counter("trie.commits_total")

	// CommitErrors counts Commit calls that returned an error.
	CommitErrors = DefaultRegistry.Counter("trie.commit_errors")

	// CommitDuration observes wall-clock nanoseconds per Commit call.
	CommitDuration = DefaultRegistry.Histogram("trie.commit_duration_ns")

	// CacheHits and CacheMisses track NodeCache lookups.
	CacheHits   = DefaultRegistry.Counter("trie.cache_hits")
	CacheMisses = DefaultRegistry.Counter("trie.cache_misses")

	// CacheEvictions counts entries evicted to respect the cache's byte
	// budget.
	CacheEvictions = DefaultRegistry.Counter("trie.cache_evictions")

	// CacheSize is the current byte size of cached node data.
	CacheSize = DefaultRegistry.Gauge("trie.cache_size_bytes")

	// DirtyNodes is registered for the number of uncommitted nodes
	// reachable from a trie's current root; nothing in the trie package
	// sets it, so it reads zero unless a caller updates it.
	DirtyNodes = DefaultRegistry.Gauge("trie.dirty_nodes")

	// FlushRate tracks the throughput of bytes flushed to the backing
	// store per Drain call, as 1-, 5-, and 15-minute moving averages.
	FlushRate = DefaultRegistry.Meter("trie.flush_bytes_per_sec")
)

// ObserveCacheSize updates the cache size gauge from a point-in-time
// sample. Hit/miss/eviction counts are cumulative and belong to the cache
// itself (NodeCache.Stats); this only tracks the one value a gauge fits.
func ObserveCacheSize(currentSize uint64) {
	CacheSize.Set(int64(currentSize))
}
