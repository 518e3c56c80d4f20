package trie

import "github.com/corestate/mpt/types"

// node is the interface implemented by all four trie node variants.
// Every variant carries a shared attrs block: a cached hash, the serialized
// encoding, a reference count, and the dirty/sealed flags that gate
// mutation and copy-on-write.
type node interface {
	nodeAttrs() *attrs
}

// attrs holds the bookkeeping shared by every node variant.
//
//   - hash is the content hash once computed; stable after sealing (nil
//     until resolveHash runs).
//   - encoded is the serialized form; present iff hash has been computed or
//     the node was loaded from storage.
//   - refs is the reference count used to decide whether a node may be
//     mutated in place (dirty, refs can be anything during construction) or
//     must be cloned first (sealed).
//   - dirty is true iff the node has been mutated since it was last sealed.
//   - sealed is true iff further mutation is forbidden; implies dirty=false.
type attrs struct {
	hash    []byte
	encoded []byte
	refs    int32
	dirty   bool
	sealed  bool
}

func (a *attrs) isDirty() bool  { return a.dirty }
func (a *attrs) isSealed() bool { return a.sealed }

// seal marks a node's attrs sealed, forbidding further in-place mutation.
func (a *attrs) seal() {
	a.sealed = true
	a.dirty = false
}

// leafNode is a terminal mapping: the key whose nibble form equals the
// concatenation of all ancestor path fragments and path. value is always
// non-empty (an empty value is represented by the key's absence, per set's
// delete-on-empty-value contract).
type leafNode struct {
	a     attrs
	path  []byte // nibble path, no terminator nibble
	value []byte
}

// extensionNode is a shared non-terminal path segment with exactly one
// child. Invariant 4: child is always a *branchNode or an unresolved
// *unknownNode that will resolve to one; never a leaf or another extension.
type extensionNode struct {
	a     attrs
	path  []byte // nibble path, non-empty
	child node
}

// branchNode is a 16-way node. Each children slot is nil (empty), or a
// concrete node, or an *unknownNode placeholder pending resolution. value
// holds the terminator value for the key that ends exactly at this branch,
// or nil if no key terminates here.
type branchNode struct {
	a        attrs
	children [16]node
	value    []byte
}

// unknownNode is a placeholder for a not-yet-materialized node identified
// only by its content hash. It is always sealed (it cannot be mutated) and
// carries no children of its own; resolveBody replaces it with the decoded
// concrete node.
type unknownNode struct {
	a attrs
}

func (n *leafNode) nodeAttrs() *attrs      { return &n.a }
func (n *extensionNode) nodeAttrs() *attrs { return &n.a }
func (n *branchNode) nodeAttrs() *attrs    { return &n.a }
func (n *unknownNode) nodeAttrs() *attrs   { return &n.a }

// newLeaf constructs a dirty, unsealed leaf node with refs=0 (the mutation
// algorithm's construction path; see the node lifecycle in the data model).
func newLeaf(path, value []byte) *leafNode {
	return &leafNode{a: attrs{dirty: true}, path: path, value: value}
}

// newExtension constructs a dirty extension node and takes ownership of one
// reference to child.
func newExtension(path []byte, child node) *extensionNode {
	incRef(child)
	return &extensionNode{a: attrs{dirty: true}, path: path, child: child}
}

// newBranch constructs an empty dirty branch node.
func newBranch() *branchNode {
	return &branchNode{a: attrs{dirty: true}}
}

// newUnknown constructs a placeholder for the node identified by hash. It is
// born sealed: a reference to unmaterialized content cannot be mutated.
func newUnknown(hash types.Hash) *unknownNode {
	u := &unknownNode{a: attrs{hash: append([]byte(nil), hash.Bytes()...)}}
	u.a.seal()
	return u
}

// clone returns a copy of n with refs reset to 0, dirty, unsealed, and its
// cached hash/encoding cleared -- the copy-on-write primitive required
// before mutating any sealed node (clone_with in the spec's node object
// API). Children are shared by reference, not deep-copied.
func (n *leafNode) clone() *leafNode {
	cp := &leafNode{a: attrs{dirty: true}, path: n.path, value: n.value}
	return cp
}

func (n *extensionNode) clone() *extensionNode {
	cp := &extensionNode{a: attrs{dirty: true}, path: n.path, child: n.child}
	return cp
}

func (n *branchNode) clone() *branchNode {
	cp := &branchNode{a: attrs{dirty: true}, children: n.children, value: n.value}
	return cp
}

// getChild returns the child at nibble slot i, or nil if empty.
func (n *branchNode) getChild(i int) node { return n.children[i] }

// setChild installs child at nibble slot i, adjusting reference counts: the
// previous occupant (if any) loses a reference, the new occupant gains one.
// Callers clone a sealed branch before calling setChild; a call on a sealed
// branch returns ErrSealedMutation and leaves the branch unchanged.
func (n *branchNode) setChild(i int, child node) error {
	if n.a.sealed {
		return ErrSealedMutation
	}
	old := n.children[i]
	if old == child {
		return nil
	}
	if err := decRef(old); err != nil {
		return err
	}
	incRef(child)
	n.children[i] = child
	return nil
}

// isChildNull reports whether slot i is empty.
func (n *branchNode) isChildNull(i int) bool { return n.children[i] == nil }

// isChildDirty reports whether the child at slot i is a dirty in-memory
// node (as opposed to empty, sealed, or an unresolved placeholder).
func (n *branchNode) isChildDirty(i int) bool {
	c := n.children[i]
	return c != nil && c.nodeAttrs().isDirty()
}

// countChildren returns the number of non-nil children slots.
func (n *branchNode) countChildren() int {
	count := 0
	for _, c := range n.children {
		if c != nil {
			count++
		}
	}
	return count
}

// isValidWithOneLess reports whether the branch would remain a valid branch
// (at least two non-empty children, or one child and a non-empty value) if
// one more of its children were removed. A branch left with a value and no
// children is not valid: connectBranch turns it into a leaf. It is used by
// the mutation algorithm to decide whether clearing a child requires
// collapsing the branch.
func (n *branchNode) isValidWithOneLess() bool {
	remaining := n.countChildren() - 1
	if remaining >= 2 {
		return true
	}
	if remaining >= 1 && n.value != nil {
		return true
	}
	return false
}

// singleRemainingChild returns the (slot, child) pair of the lone non-nil
// child left after the given slot is excluded. Callers only invoke this once
// isValidWithOneLess() is false and n.value is nil, so exactly one such
// child is guaranteed to exist.
func (n *branchNode) singleRemainingChild(excludeSlot int) (int, node) {
	for i, c := range n.children {
		if i == excludeSlot || c == nil {
			continue
		}
		return i, c
	}
	return -1, nil
}

// incRef increments n's reference count. A nil node is a no-op (empty
// slots carry no reference).
func incRef(n node) {
	if n == nil {
		return
	}
	n.nodeAttrs().refs++
}

// decRef decrements n's reference count, returning ErrRefCountUnderflow if
// it would go negative -- a fatal bookkeeping error per the spec's
// ownership discipline.
func decRef(n node) error {
	if n == nil {
		return nil
	}
	a := n.nodeAttrs()
	if a.refs == 0 {
		return ErrRefCountUnderflow
	}
	a.refs--
	return nil
}
