package trie

import (
	"sync"

	"github.com/corestate/mpt/ethdb"
	"github.com/corestate/mpt/metrics"
	"github.com/corestate/mpt/types"
)

// nodeKey returns the backing-store key for a node: its 32-byte content
// hash.
func nodeKey(hash types.Hash) []byte {
	return append(make([]byte, 0, types.HashLength), hash.Bytes()...)
}

// Committer consumes the (block height, node) pairs the commit
// pipeline produces in post-order, one call per sealed node that reached a
// real content hash (an inlined node is never committed standalone; it is
// embedded in its parent's encoding and travels with it).
type Committer interface {
	Commit(blockHeight uint64, n node) error
}

// Drainer is implemented by committers that batch writes instead of
// applying them inline; the commit pipeline drains after submitting every
// node of a pass.
type Drainer interface {
	Drain() error
}

// NullCommitter rejects every node with ErrCommitsDisabled. It is the
// committer for a trie that must never persist anything.
type NullCommitter struct{}

// Commit implements Committer.
func (NullCommitter) Commit(blockHeight uint64, n node) error { return ErrCommitsDisabled }

// PassThroughCommitter writes each node straight to the backing store as it
// is submitted, with no queueing or batching. It is the simplest real
// committer: correct, but one store round trip per node.
type PassThroughCommitter struct {
	Store ethdb.KeyValueStore
}

// Commit implements Committer.
func (c *PassThroughCommitter) Commit(blockHeight uint64, n node) error {
	a := n.nodeAttrs()
	if a.hash == nil {
		return nil
	}
	return c.Store.Put(nodeKey(types.BytesToHash(a.hash)), a.encoded)
}

// QueueCommitter is the production committer: it queues nodes as they are
// submitted, deduplicates against both an in-flight dedup set and the node
// cache (the find_cached fast path -- a node already known durable doesn't
// need to be written again, only reference-counted), and writes the queue
// to the backing store as a single batch on Drain.
//
// Reference counts here are distinct from a node object's own refs field
// (node.go): this is the backing-store-level count of how many committed
// roots reference a given stored hash, the basis for garbage collection
// once a root is no longer reachable from any retained history.
type QueueCommitter struct {
	mu       sync.Mutex
	store    ethdb.KeyValueStore
	cache    *NodeCache
	refs     map[types.Hash]int64
	queue    []queuedNode
	draining bool

	nodesWritten int64
	bytesFlushed int64
}

type queuedNode struct {
	blockHeight uint64
	hash        types.Hash
	encoded     []byte
}

// NewQueueCommitter returns a committer writing to store and consulting
// cache for the find_cached fast path. cache may be nil.
func NewQueueCommitter(store ethdb.KeyValueStore, cache *NodeCache) *QueueCommitter {
	return &QueueCommitter{
		store: store,
		cache: cache,
		refs:  make(map[types.Hash]int64),
	}
}

// Commit implements Committer.
func (c *QueueCommitter) Commit(blockHeight uint64, n node) error {
	a := n.nodeAttrs()
	if a.hash == nil {
		return nil
	}
	hash := types.BytesToHash(a.hash)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, known := c.refs[hash]; known {
		c.refs[hash]++
		return nil
	}
	if c.cache != nil {
		if _, hit := c.cache.Get(hash); hit {
			c.refs[hash] = 1
			return nil
		}
	}

	c.refs[hash] = 1
	c.queue = append(c.queue, queuedNode{
		blockHeight: blockHeight,
		hash:        hash,
		encoded:     append([]byte(nil), a.encoded...),
	})
	return nil
}

// Drain flushes the queue to the backing store as one batch. It returns
// ErrCommitRace if a concurrent Drain is already in progress; the commit
// pipeline's single-writer discipline means this should never legitimately
// happen, so observing it indicates a scheduling bug upstream.
func (c *QueueCommitter) Drain() error {
	c.mu.Lock()
	if c.draining {
		c.mu.Unlock()
		return ErrCommitRace
	}
	c.draining = true
	pending := c.queue
	c.queue = nil
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.draining = false
		c.mu.Unlock()
	}()

	if len(pending) == 0 {
		return nil
	}

	batch := c.store.NewBatch()
	var flushed int64
	for _, qn := range pending {
		if err := batch.Put(nodeKey(qn.hash), qn.encoded); err != nil {
			return err
		}
		flushed += int64(len(qn.encoded))
		if c.cache != nil {
			c.cache.Put(qn.hash, qn.encoded)
		}
	}
	if err := batch.Write(); err != nil {
		return err
	}

	c.mu.Lock()
	c.nodesWritten += int64(len(pending))
	c.bytesFlushed += flushed
	c.mu.Unlock()

	metrics.NodesCommitted.Add(int64(len(pending)))
	metrics.BytesFlushed.Add(flushed)
	metrics.FlushRate.Mark(flushed)
	return nil
}

// Dereference drops one reference from hash, the counterpart to the
// implicit reference Commit grants on first sight of a hash. It returns
// ErrRefCountUnderflow if hash carries no reference to drop.
func (c *QueueCommitter) Dereference(hash types.Hash) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.refs[hash]
	if !ok || n <= 0 {
		return ErrRefCountUnderflow
	}
	c.refs[hash] = n - 1
	return nil
}

// RefCount reports how many committed roots currently reference hash.
func (c *QueueCommitter) RefCount(hash types.Hash) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refs[hash]
}

// UnreferencedNodes returns the hashes currently holding no reference --
// candidates for deletion by a garbage collection pass. The engine itself
// never deletes nodes; that policy lives with whatever embeds it.
func (c *QueueCommitter) UnreferencedNodes() []types.Hash {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []types.Hash
	for h, n := range c.refs {
		if n == 0 {
			out = append(out, h)
		}
	}
	return out
}

// Metrics returns the committer's lifetime write counters.
func (c *QueueCommitter) Metrics() (nodesWritten, bytesFlushed int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nodesWritten, c.bytesFlushed
}

// Node resolves hash for the trie engine: the in-flight queue first (a node
// committed earlier in the same pass but not yet drained), then the node
// cache, then the backing store. Returns a *NodeMissingError if hash is
// absent everywhere.
func (c *QueueCommitter) Node(hash types.Hash) ([]byte, error) {
	c.mu.Lock()
	for _, qn := range c.queue {
		if qn.hash == hash {
			c.mu.Unlock()
			return qn.encoded, nil
		}
	}
	c.mu.Unlock()

	if c.cache != nil {
		if data, ok := c.cache.Get(hash); ok {
			return data, nil
		}
	}

	data, err := c.store.Get(nodeKey(hash))
	if err != nil {
		if err == ethdb.ErrNotFound {
			return nil, &NodeMissingError{Hash: hash}
		}
		return nil, err
	}
	if c.cache != nil {
		c.cache.Put(hash, data)
	}
	return data, nil
}
