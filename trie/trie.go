package trie

import (
	"errors"
	"sync"
	"time"

	"github.com/corestate/mpt/log"
	"github.com/corestate/mpt/metrics"
	"github.com/corestate/mpt/types"
	"golang.org/x/sync/errgroup"
)

// ErrKeyNotFound is returned by Get for an absent key, and used internally
// by the mutation algorithm to signal a delete of an absent key up to
// Delete's ignore_missing_delete handling. It is a plain lookup outcome,
// not one of the engine's fatal or recoverable error conditions.
var ErrKeyNotFound = errors.New("trie: key not found")

// parallelBranchThreshold is the minimum number of dirty children a root
// branch must have before Commit fans its children out across goroutines
// instead of committing them one at a time.
const parallelBranchThreshold = 4

// stackNibbleThreshold is the nibble-path length (64 nibbles = a 32-byte
// key) above which the traversal path buffer is drawn from a pool instead
// of allocated fresh per call.
const stackNibbleThreshold = 64

var nibblePool = sync.Pool{
	New: func() interface{} { return make([]byte, 0, 128) },
}

// nodeReader resolves a node's encoding by content hash, the shape both
// Committer implementations with a Node method and a plain backing-store
// wrapper can satisfy.
type nodeReader interface {
	Node(hash types.Hash) ([]byte, error)
}

// Trie is the core engine: a persistent, hash-addressed, radix-16
// authenticated key/value tree. A zero-value Trie is not usable; construct
// one with New.
type Trie struct {
	cfg       Config
	reader    nodeReader
	committer Committer
	logger    *log.Logger

	muRoot sync.RWMutex
	root   node

	mu      sync.Mutex // guards writing/readers, the mutation/read overlap guard
	writing bool
	readers int
}

// New constructs a Trie reading missing nodes from reader and, on Commit,
// writing sealed nodes to committer. Either may be nil for a trie that
// never needs to resolve or persist nodes (a purely in-memory scratch
// trie). With a nil reader, resolving an *unknownNode fails with a
// *NodeMissingError; with a nil committer, Commit still hashes and seals
// the dirty nodes and returns the root hash, but persists nothing.
func New(reader nodeReader, committer Committer, opts ...Option) *Trie {
	return &Trie{
		cfg:       newConfig(opts...),
		reader:    reader,
		committer: committer,
		logger:    log.Default().Module("trie"),
	}
}

// acquireRootForMutation marks the trie as being written to, returning
// ErrConcurrentMutation if another mutation (Set, Delete, Commit, or
// SetRootHash) is already in flight, or if a Get is currently reading the
// same root.
func (t *Trie) acquireRootForMutation() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.writing || t.readers > 0 {
		return ErrConcurrentMutation
	}
	t.writing = true
	return nil
}

func (t *Trie) releaseRootForMutation() {
	t.mu.Lock()
	t.writing = false
	t.mu.Unlock()
}

// acquireRootForRead registers an in-flight Get, returning
// ErrConcurrentMutation if a mutation is already in progress.
func (t *Trie) acquireRootForRead() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.writing {
		return ErrConcurrentMutation
	}
	t.readers++
	return nil
}

func (t *Trie) releaseRootForRead() {
	t.mu.Lock()
	t.readers--
	t.mu.Unlock()
}

// Get returns the value stored at key, or ErrKeyNotFound if key is absent.
// Resolving a hash reference that exists in neither the node cache nor the
// backing store surfaces a *NodeMissingError instead. Get fails with
// ErrConcurrentMutation if it overlaps a Set, Delete, Commit, or
// SetRootHash against the same trie.
func (t *Trie) Get(key []byte) ([]byte, error) {
	if err := t.acquireRootForRead(); err != nil {
		return nil, err
	}
	defer t.releaseRootForRead()

	t.muRoot.RLock()
	root := t.root
	t.muRoot.RUnlock()
	return t.get(root, bytesToNibbles(key))
}

func (t *Trie) get(n node, path []byte) ([]byte, error) {
	switch cur := n.(type) {
	case nil:
		return nil, ErrKeyNotFound

	case *leafNode:
		if bytesEqual(cur.path, path) {
			return cur.value, nil
		}
		return nil, ErrKeyNotFound

	case *extensionNode:
		if len(path) < len(cur.path) || !bytesEqual(path[:len(cur.path)], cur.path) {
			return nil, ErrKeyNotFound
		}
		child, err := t.resolveNode(cur.child)
		if err != nil {
			return nil, err
		}
		return t.get(child, path[len(cur.path):])

	case *branchNode:
		if len(path) == 0 {
			if cur.value == nil {
				return nil, ErrKeyNotFound
			}
			return cur.value, nil
		}
		child := cur.getChild(int(path[0]))
		if child == nil {
			return nil, ErrKeyNotFound
		}
		resolved, err := t.resolveNode(child)
		if err != nil {
			return nil, err
		}
		return t.get(resolved, path[1:])

	case *unknownNode:
		resolved, err := t.resolveNode(cur)
		if err != nil {
			return nil, err
		}
		return t.get(resolved, path)

	default:
		return nil, &InvariantViolationError{Context: "get: unrecognized node type"}
	}
}

// Set inserts or updates key with value. An empty value is treated as a
// request to delete key, matching the convention that a trie has no
// separate representation for "present with empty value" versus "absent".
func (t *Trie) Set(key, value []byte) error {
	if len(value) == 0 {
		return t.Delete(key)
	}
	if err := t.acquireRootForMutation(); err != nil {
		return err
	}
	defer t.releaseRootForMutation()

	path := acquirePath(key)
	defer releasePath(key, path)

	t.muRoot.Lock()
	defer t.muRoot.Unlock()
	newRoot, err := t.mutate(t.root, path, value)
	if err != nil {
		return err
	}
	t.root = newRoot
	return nil
}

// Delete removes key from the trie. If key is absent, the outcome depends
// on the trie's IgnoreMissingDelete configuration: true (the default)
// makes this a no-op, false returns ErrMissingForDelete.
func (t *Trie) Delete(key []byte) error {
	if err := t.acquireRootForMutation(); err != nil {
		return err
	}
	defer t.releaseRootForMutation()

	path := acquirePath(key)
	defer releasePath(key, path)

	t.muRoot.Lock()
	defer t.muRoot.Unlock()
	newRoot, err := t.mutate(t.root, path, nil)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			if t.cfg.IgnoreMissingDelete {
				return nil
			}
			return ErrMissingForDelete
		}
		return err
	}
	t.root = newRoot
	return nil
}

// mutate is the traversal core shared by Set (value != nil) and Delete
// (value == nil). It returns the replacement for n, cloning sealed nodes
// before touching them (copy-on-write) and leaving clean, untouched
// subtrees completely unshared-from, so structurally identical neighbors
// continue to share storage.
func (t *Trie) mutate(n node, path, value []byte) (node, error) {
	switch cur := n.(type) {
	case nil:
		if value == nil {
			return nil, ErrKeyNotFound
		}
		return newLeaf(append([]byte(nil), path...), value), nil

	case *unknownNode:
		resolved, err := t.resolveNode(cur)
		if err != nil {
			return nil, err
		}
		return t.mutate(resolved, path, value)

	case *leafNode:
		return t.mutateLeaf(cur, path, value)

	case *extensionNode:
		return t.mutateExtension(cur, path, value)

	case *branchNode:
		return t.mutateBranch(cur, path, value)

	default:
		return nil, &InvariantViolationError{Context: "mutate: unrecognized node type"}
	}
}

func (t *Trie) mutateLeaf(cur *leafNode, path, value []byte) (node, error) {
	match := prefixLen(path, cur.path)
	if match == len(cur.path) && match == len(path) {
		if value == nil {
			return nil, nil
		}
		if bytesEqual(cur.value, value) {
			return cur, nil
		}
		return newLeaf(append([]byte(nil), cur.path...), value), nil
	}
	if value == nil {
		return nil, ErrKeyNotFound
	}

	branch := newBranch()
	if match == len(cur.path) {
		branch.value = cur.value
	} else {
		oldChild, err := t.mutate(nil, cur.path[match+1:], cur.value)
		if err != nil {
			return nil, err
		}
		if err := branch.setChild(int(cur.path[match]), oldChild); err != nil {
			return nil, err
		}
	}
	if match == len(path) {
		branch.value = value
	} else {
		newChild, err := t.mutate(nil, path[match+1:], value)
		if err != nil {
			return nil, err
		}
		if err := branch.setChild(int(path[match]), newChild); err != nil {
			return nil, err
		}
	}
	if match > 0 {
		return newExtension(append([]byte(nil), path[:match]...), branch), nil
	}
	return branch, nil
}

func (t *Trie) mutateExtension(cur *extensionNode, path, value []byte) (node, error) {
	match := prefixLen(path, cur.path)
	if match < len(cur.path) {
		if value == nil {
			return nil, ErrKeyNotFound
		}

		branch := newBranch()
		if match == len(cur.path)-1 {
			if err := branch.setChild(int(cur.path[match]), cur.child); err != nil {
				return nil, err
			}
		} else {
			tail := newExtension(append([]byte(nil), cur.path[match+1:]...), cur.child)
			if err := branch.setChild(int(cur.path[match]), tail); err != nil {
				return nil, err
			}
		}
		if match == len(path) {
			branch.value = value
		} else {
			newChild, err := t.mutate(nil, path[match+1:], value)
			if err != nil {
				return nil, err
			}
			if err := branch.setChild(int(path[match]), newChild); err != nil {
				return nil, err
			}
		}
		if match > 0 {
			return newExtension(append([]byte(nil), path[:match]...), branch), nil
		}
		return branch, nil
	}

	newChild, err := t.mutate(cur.child, path[match:], value)
	if err != nil {
		return nil, err
	}
	if newChild == nil {
		return nil, nil
	}
	return t.connectExtension(cur, newChild)
}

func (t *Trie) mutateBranch(cur *branchNode, path, value []byte) (node, error) {
	if len(path) == 0 {
		if value == nil {
			if cur.value == nil {
				return nil, ErrKeyNotFound
			}
			wasValid := cur.isValidWithOneLess()
			nb := cur
			if cur.a.sealed {
				nb = cur.clone()
			}
			nb.value = nil
			if wasValid {
				return nb, nil
			}
			return t.connectBranch(nb)
		}
		if bytesEqual(cur.value, value) {
			return cur, nil
		}
		nb := cur
		if cur.a.sealed {
			nb = cur.clone()
		}
		nb.value = value
		return nb, nil
	}

	slot := int(path[0])
	child := cur.getChild(slot)
	newChild, err := t.mutate(child, path[1:], value)
	if err != nil {
		return nil, err
	}
	if newChild == child {
		return cur, nil
	}
	wasValid := newChild != nil || cur.isValidWithOneLess()
	nb := cur
	if cur.a.sealed {
		nb = cur.clone()
	}
	if err := nb.setChild(slot, newChild); err != nil {
		return nil, err
	}
	if wasValid {
		return nb, nil
	}
	return t.connectBranch(nb)
}

// connectBranch re-establishes invariant 3 (a branch has at least two
// children, or one child and a value) after a child or value was just
// cleared. A branch with two or more occupants, or one child plus a value,
// needs no change. One bare child collapses by folding the branch's slot
// nibble into that child. No occupants at all, with a value, degrades to a
// leaf whose path is whatever remains (empty if this branch is the root of
// its own key). No occupants and no value means the branch itself vanishes.
func (t *Trie) connectBranch(b *branchNode) (node, error) {
	count := b.countChildren()
	if count >= 2 {
		return b, nil
	}
	if count == 1 && b.value != nil {
		return b, nil
	}
	if count == 0 {
		if b.value == nil {
			return nil, nil
		}
		return newLeaf(nil, b.value), nil
	}

	slot, child := b.singleRemainingChild(-1)
	if child == nil {
		return nil, &InvariantViolationError{Context: "connectBranch: expected exactly one remaining child"}
	}
	resolved, err := t.resolveNode(child)
	if err != nil {
		return nil, err
	}
	return t.foldNibble(byte(slot), resolved)
}

// connectExtension re-establishes invariant 4 (an extension's child is
// always a branch) after the child subtree was rewritten. A branch child
// keeps the extension as-is (cloning it first if sealed). A leaf or
// extension child means the child itself collapsed during the recursive
// mutation; in either case this extension must merge with it instead of
// wrapping it, since an extension-over-leaf or extension-over-extension
// shape is never valid.
func (t *Trie) connectExtension(cur *extensionNode, newChild node) (node, error) {
	resolved, err := t.resolveNode(newChild)
	if err != nil {
		return nil, err
	}
	switch c := resolved.(type) {
	case *branchNode:
		if c == cur.child {
			return cur, nil
		}
		next := cur
		if cur.a.sealed {
			next = cur.clone()
		}
		if next.child != c {
			if err := decRef(next.child); err != nil {
				return nil, err
			}
			incRef(c)
			next.child = c
		}
		return next, nil

	case *extensionNode:
		merged := append(append([]byte(nil), cur.path...), c.path...)
		e := newExtension(merged, c.child)
		if err := decRef(c.child); err != nil {
			return nil, err
		}
		return e, nil

	case *leafNode:
		merged := append(append([]byte(nil), cur.path...), c.path...)
		return newLeaf(merged, c.value), nil

	default:
		return nil, &InvariantViolationError{Context: "connectExtension: unrecognized child shape"}
	}
}

// foldNibble prepends the nibble consumed to reach n (a branch slot index)
// into n's own path representation, or wraps n in a one-nibble extension
// if n carries no path of its own to extend.
func (t *Trie) foldNibble(nibble byte, n node) (node, error) {
	switch cur := n.(type) {
	case *leafNode:
		merged := append([]byte{nibble}, cur.path...)
		return newLeaf(merged, cur.value), nil
	case *extensionNode:
		merged := append([]byte{nibble}, cur.path...)
		e := newExtension(merged, cur.child)
		if err := decRef(cur.child); err != nil {
			return nil, err
		}
		return e, nil
	case *branchNode:
		return newExtension([]byte{nibble}, cur), nil
	default:
		return nil, &InvariantViolationError{Context: "foldNibble: unrecognized node shape"}
	}
}

// resolveNode materializes n if it is an *unknownNode placeholder,
// otherwise returns n unchanged.
func (t *Trie) resolveNode(n node) (node, error) {
	u, ok := n.(*unknownNode)
	if !ok {
		return n, nil
	}
	if t.reader == nil {
		hash := types.BytesToHash(u.a.hash)
		return nil, &NodeMissingError{Hash: hash}
	}
	hash := types.BytesToHash(u.a.hash)
	data, err := t.reader.Node(hash)
	if err != nil {
		return nil, err
	}
	return decodeNode(hash, data)
}

// RootHash returns the trie's current content hash, computing it (and
// caching the result on in-memory nodes) if needed. An empty trie returns
// EmptyRootHash.
func (t *Trie) RootHash() (types.Hash, error) {
	return t.UpdateRootHash()
}

// UpdateRootHash recomputes the root hash from the current in-memory tree
// without committing anything to the backing store: nodes are hashed and
// the hash is cached on their attrs, but dirty nodes stay dirty and
// uncommitted until a real Commit.
func (t *Trie) UpdateRootHash() (types.Hash, error) {
	if err := t.acquireRootForMutation(); err != nil {
		return types.Hash{}, err
	}
	defer t.releaseRootForMutation()

	t.muRoot.RLock()
	root := t.root
	t.muRoot.RUnlock()

	if root == nil {
		return types.EmptyRootHash, nil
	}
	h, err := resolveHash(root, true)
	if err != nil {
		return types.Hash{}, err
	}
	return types.BytesToHash(h), nil
}

// SetRootHash discards the trie's in-memory view (including any pending,
// uncommitted mutations) and points it at the committed tree identified by
// hash through an unresolved placeholder; every node, the root included, is
// resolved lazily from the reader as traversal demands it. Passing
// EmptyRootHash or the zero hash resets the trie to empty.
func (t *Trie) SetRootHash(hash types.Hash) error {
	if err := t.acquireRootForMutation(); err != nil {
		return err
	}
	defer t.releaseRootForMutation()

	if hash == types.EmptyRootHash || hash.IsZero() {
		t.muRoot.Lock()
		t.root = nil
		t.muRoot.Unlock()
		return nil
	}

	t.muRoot.Lock()
	t.root = newUnknown(hash)
	t.muRoot.Unlock()
	return nil
}

// Commit persists every dirty node reachable from
// the root, bottom-up, through the trie's Committer, and returns the root
// hash. An empty tree or an already-clean tree short-circuits without
// touching the committer. When ParallelBranches is enabled and the root is a
// branch with at least parallelBranchThreshold dirty children, each dirty
// child subtree commits on its
// own goroutine; a failure in any of them is reported as an
// AggregatedCommitError collecting every branch's error, not just the
// first.
func (t *Trie) Commit(blockHeight uint64) (types.Hash, error) {
	if !t.cfg.AllowCommits {
		return types.Hash{}, ErrCommitsDisabled
	}
	if err := t.acquireRootForMutation(); err != nil {
		return types.Hash{}, err
	}
	defer t.releaseRootForMutation()

	t.muRoot.Lock()
	defer t.muRoot.Unlock()

	start := time.Now()
	var err error
	defer func() {
		metrics.CommitsTotal.Inc()
		metrics.CommitDuration.Observe(float64(time.Since(start).Nanoseconds()))
		if err != nil {
			metrics.CommitErrors.Inc()
		}
	}()

	if t.root == nil {
		return types.EmptyRootHash, nil
	}
	if !t.root.nodeAttrs().dirty {
		if h := t.root.nodeAttrs().hash; h != nil {
			return types.BytesToHash(h), nil
		}
	}

	if err = t.commitNode(t.root, blockHeight, true); err != nil {
		return types.Hash{}, err
	}
	if drainer, ok := t.committer.(Drainer); ok {
		if err = drainer.Drain(); err != nil {
			return types.Hash{}, err
		}
	}

	h := t.root.nodeAttrs().hash
	if h == nil {
		h, err = resolveHash(t.root, true)
		if err != nil {
			return types.Hash{}, err
		}
	}
	return types.BytesToHash(h), nil
}

func (t *Trie) commitNode(n node, blockHeight uint64, isRoot bool) error {
	a := n.nodeAttrs()
	if !a.dirty {
		return nil
	}

	switch cur := n.(type) {
	case *leafNode:
		// no children to recurse into

	case *extensionNode:
		if err := t.commitNode(cur.child, blockHeight, false); err != nil {
			return err
		}

	case *branchNode:
		if isRoot && t.cfg.ParallelBranches && countDirtyChildren(cur) >= parallelBranchThreshold {
			if err := t.commitBranchParallel(cur, blockHeight); err != nil {
				return err
			}
		} else {
			for i := 0; i < 16; i++ {
				if !cur.isChildDirty(i) {
					continue
				}
				if err := t.commitNode(cur.getChild(i), blockHeight, false); err != nil {
					return err
				}
			}
		}

	default:
		return &InvariantViolationError{Context: "commitNode: unrecognized node type"}
	}

	if _, err := resolveHash(n, isRoot); err != nil {
		return err
	}
	a.seal()
	if t.committer == nil {
		return nil
	}
	return t.committer.Commit(blockHeight, n)
}

func (t *Trie) commitBranchParallel(b *branchNode, blockHeight uint64) error {
	var mu sync.Mutex
	var errs []error

	g := new(errgroup.Group)
	for i := 0; i < 16; i++ {
		if !b.isChildDirty(i) {
			continue
		}
		i := i
		g.Go(func() error {
			if err := t.commitNode(b.getChild(i), blockHeight, false); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return err
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(errs) > 0 {
		t.logger.Warn("parallel branch commit failed", "errors", len(errs))
		return &AggregatedCommitError{Errors: errs}
	}
	return nil
}

func countDirtyChildren(b *branchNode) int {
	n := 0
	for i := 0; i < 16; i++ {
		if b.isChildDirty(i) {
			n++
		}
	}
	return n
}

// acquirePath returns key's nibble path, drawing the backing array from a
// pool once the path would exceed stackNibbleThreshold nibbles -- a plain
// allocation is cheap and GC-friendly for ordinary keys, but a pooled
// buffer avoids repeated large allocations for unusually long keys.
func acquirePath(key []byte) []byte {
	n := len(key) * 2
	if n <= stackNibbleThreshold {
		return bytesToNibbles(key)
	}
	buf := nibblePool.Get().([]byte)
	if cap(buf) < n {
		buf = make([]byte, 0, n)
	}
	buf = buf[:0]
	for _, b := range key {
		buf = append(buf, b>>4, b&0x0f)
	}
	return buf
}

func releasePath(key []byte, path []byte) {
	if len(key)*2 > stackNibbleThreshold {
		nibblePool.Put(path[:0])
	}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
