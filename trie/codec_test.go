package trie

import (
	"testing"

	"github.com/corestate/mpt/types"
	"github.com/stretchr/testify/require"
)

// Invariant 5: decode(encode(n)) reproduces n's structure, and hash(encode(n))
// is stable across repeated calls.
func TestDecodeEncodeFixedPointLeaf(t *testing.T) {
	leaf := newLeaf([]byte{0x1, 0x2, 0x3}, []byte("payload"))
	enc, err := encodeNode(leaf)
	require.NoError(t, err)

	decoded, err := decodeNode(types.Hash{}, enc)
	require.NoError(t, err)
	dl, ok := decoded.(*leafNode)
	require.True(t, ok)
	require.Equal(t, leaf.path, dl.path)
	require.Equal(t, leaf.value, dl.value)

	h1, err := resolveHash(leaf, true)
	require.NoError(t, err)
	h2, err := resolveHash(leaf, true)
	require.NoError(t, err)
	require.Equal(t, h1, h2)
}

func TestDecodeEncodeFixedPointBranch(t *testing.T) {
	branch := newBranch()
	branch.value = []byte("root-value")
	leafChild := newLeaf([]byte{0x5}, []byte("five"))
	require.NoError(t, branch.setChild(0x3, leafChild))

	enc, err := encodeNode(branch)
	require.NoError(t, err)

	decoded, err := decodeNode(types.Hash{}, enc)
	require.NoError(t, err)
	db, ok := decoded.(*branchNode)
	require.True(t, ok)
	require.Equal(t, branch.value, db.value)
	require.NotNil(t, db.getChild(0x3))
}

func TestDecodeEncodeFixedPointExtension(t *testing.T) {
	branch := newBranch()
	branch.value = []byte("v")
	leafChild := newLeaf([]byte{0x1}, []byte("leaf-one"))
	require.NoError(t, branch.setChild(0x1, leafChild))
	anotherLeaf := newLeaf([]byte{0x2}, []byte("leaf-two"))
	require.NoError(t, branch.setChild(0x2, anotherLeaf))

	ext := newExtension([]byte{0xa, 0xb}, branch)
	enc, err := encodeNode(ext)
	require.NoError(t, err)

	decoded, err := decodeNode(types.Hash{}, enc)
	require.NoError(t, err)
	de, ok := decoded.(*extensionNode)
	require.True(t, ok)
	require.Equal(t, ext.path, de.path)
}

// Invariant 6: a node whose encoding reaches 32 bytes is referenced by hash
// from its parent; a strictly smaller node is embedded inline.
func TestInliningThreshold(t *testing.T) {
	small := newLeaf([]byte{0x1}, []byte("x"))
	smallEnc, err := encodeNode(small)
	require.NoError(t, err)
	require.Less(t, len(smallEnc), inlineThreshold)

	ref, err := encodeChildSlot(small)
	require.NoError(t, err)
	require.Equal(t, smallEnc, ref, "a sub-threshold child must be embedded raw, not hashed")

	large := newLeaf([]byte{0x1, 0x2, 0x3, 0x4}, []byte("a value long enough to push this leaf's RLP encoding past the thirty-two byte inlining threshold"))
	largeEnc, err := encodeNode(large)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(largeEnc), inlineThreshold)

	ref, err = encodeChildSlot(large)
	require.NoError(t, err)
	require.Len(t, ref, 33, "a hash reference is a 32-byte string item (1-byte RLP string prefix + 32 bytes)")
}

// A root is always addressed by hash, even when its own encoding would
// otherwise qualify for inlining.
func TestRootAlwaysHashed(t *testing.T) {
	small := newLeaf([]byte{0x1}, []byte("x"))
	h, err := resolveHash(small, true)
	require.NoError(t, err)
	require.Len(t, h, 32)
}
