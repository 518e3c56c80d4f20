package trie

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCloneResetsDirtySealedAndRefs(t *testing.T) {
	leaf := newLeaf([]byte{0x1}, []byte("v"))
	leaf.a.refs = 3
	leaf.a.seal()

	clone := leaf.clone()
	require.True(t, clone.a.dirty)
	require.False(t, clone.a.sealed)
	require.Equal(t, int32(0), clone.a.refs)
	require.Equal(t, leaf.path, clone.path)
	require.Equal(t, leaf.value, clone.value)
}

func TestIncDecRef(t *testing.T) {
	leaf := newLeaf([]byte{0x1}, []byte("v"))
	incRef(leaf)
	incRef(leaf)
	require.Equal(t, int32(2), leaf.a.refs)

	require.NoError(t, decRef(leaf))
	require.Equal(t, int32(1), leaf.a.refs)

	require.NoError(t, decRef(leaf))
	require.Equal(t, int32(0), leaf.a.refs)

	err := decRef(leaf)
	require.ErrorIs(t, err, ErrRefCountUnderflow)
}

func TestDecRefNilIsNoOp(t *testing.T) {
	require.NoError(t, decRef(nil))
	incRef(nil) // must not panic
}

func TestBranchSetChildAdjustsRefs(t *testing.T) {
	branch := newBranch()
	a := newLeaf([]byte{0x1}, []byte("a"))
	b := newLeaf([]byte{0x2}, []byte("b"))

	require.NoError(t, branch.setChild(0x0, a))
	require.Equal(t, int32(1), a.a.refs)

	require.NoError(t, branch.setChild(0x0, b))
	require.Equal(t, int32(0), a.a.refs, "replaced child should lose its reference")
	require.Equal(t, int32(1), b.a.refs)
}

func TestBranchSetChildRejectsSealed(t *testing.T) {
	branch := newBranch()
	branch.a.seal()
	err := branch.setChild(0x0, newLeaf([]byte{0x1}, []byte("a")))
	require.ErrorIs(t, err, ErrSealedMutation)
}

func TestBranchIsValidWithOneLess(t *testing.T) {
	// Exactly two children, no value: removing one leaves one bare child
	// and no value, which is not a valid branch on its own (must fold).
	twoChildren := newBranch()
	require.NoError(t, twoChildren.setChild(0x1, newLeaf([]byte{0x1}, []byte("a"))))
	require.NoError(t, twoChildren.setChild(0x2, newLeaf([]byte{0x1}, []byte("b"))))
	require.False(t, twoChildren.isValidWithOneLess())

	// Three children: removing one still leaves two, which is valid.
	threeChildren := newBranch()
	require.NoError(t, threeChildren.setChild(0x1, newLeaf([]byte{0x1}, []byte("a"))))
	require.NoError(t, threeChildren.setChild(0x2, newLeaf([]byte{0x1}, []byte("b"))))
	require.NoError(t, threeChildren.setChild(0x3, newLeaf([]byte{0x1}, []byte("c"))))
	require.True(t, threeChildren.isValidWithOneLess())

	// One child plus a value: removing the child leaves the value alone,
	// which is not a valid branch (it collapses to a leaf).
	childPlusValue := newBranch()
	childPlusValue.value = []byte("v")
	require.NoError(t, childPlusValue.setChild(0x1, newLeaf([]byte{0x1}, []byte("a"))))
	require.False(t, childPlusValue.isValidWithOneLess())
}

func TestSingleRemainingChild(t *testing.T) {
	branch := newBranch()
	leaf := newLeaf([]byte{0x1}, []byte("a"))
	require.NoError(t, branch.setChild(0x5, leaf))

	slot, child := branch.singleRemainingChild(-1)
	require.Equal(t, 5, slot)
	require.Equal(t, node(leaf), child)
}
