package trie

import (
	"testing"

	"github.com/corestate/mpt/ethdb"
	"github.com/corestate/mpt/types"
	"github.com/stretchr/testify/require"
)

func TestNullCommitterRejects(t *testing.T) {
	leaf := newLeaf([]byte{0x1}, []byte("v"))
	_, err := resolveHash(leaf, true)
	require.NoError(t, err)
	require.ErrorIs(t, NullCommitter{}.Commit(1, leaf), ErrCommitsDisabled)
}

func TestPassThroughCommitterWritesImmediately(t *testing.T) {
	store := ethdb.NewMemoryDB()
	c := &PassThroughCommitter{Store: store}

	leaf := newLeaf([]byte{0x1, 0x2, 0x3, 0x4}, []byte("a value long enough to push this leaf well past the inlining threshold for this test"))
	h, err := resolveHash(leaf, true)
	require.NoError(t, err)
	leaf.a.seal()

	require.NoError(t, c.Commit(1, leaf))

	got, err := store.Get(nodeKey(types.BytesToHash(h)))
	require.NoError(t, err)
	require.Equal(t, leaf.a.encoded, got)
}

func TestQueueCommitterDedupesViaRefs(t *testing.T) {
	store := ethdb.NewMemoryDB()
	qc := NewQueueCommitter(store, nil)

	leaf := newLeaf([]byte{0x1, 0x2, 0x3, 0x4}, []byte("a value long enough to push this leaf well past the inlining threshold for this test"))
	h, err := resolveHash(leaf, true)
	require.NoError(t, err)
	leaf.a.seal()
	hash := types.BytesToHash(h)

	require.NoError(t, qc.Commit(1, leaf))
	require.NoError(t, qc.Commit(1, leaf))
	require.Equal(t, int64(2), qc.RefCount(hash))

	require.NoError(t, qc.Drain())
	nodesWritten, _ := qc.Metrics()
	require.Equal(t, int64(1), nodesWritten, "the second Commit of the same hash should not queue a duplicate write")

	data, err := qc.Node(hash)
	require.NoError(t, err)
	require.Equal(t, leaf.a.encoded, data)
}

func TestQueueCommitterFindCachedFastPath(t *testing.T) {
	store := ethdb.NewMemoryDB()
	cache := NewNodeCache(0)
	qc := NewQueueCommitter(store, cache)

	leaf := newLeaf([]byte{0x1, 0x2, 0x3, 0x4}, []byte("a value long enough to push this leaf well past the inlining threshold for this test"))
	h, err := resolveHash(leaf, true)
	require.NoError(t, err)
	leaf.a.seal()
	hash := types.BytesToHash(h)

	cache.Put(hash, leaf.a.encoded)

	require.NoError(t, qc.Commit(1, leaf))
	require.NoError(t, qc.Drain())
	nodesWritten, _ := qc.Metrics()
	require.Equal(t, int64(0), nodesWritten, "a node already present in the cache should not be written again")
	require.Equal(t, int64(1), qc.RefCount(hash))
}

func TestQueueCommitterDereferenceAndUnreferenced(t *testing.T) {
	store := ethdb.NewMemoryDB()
	qc := NewQueueCommitter(store, nil)

	leaf := newLeaf([]byte{0x1, 0x2, 0x3, 0x4}, []byte("a value long enough to push this leaf well past the inlining threshold for this test"))
	h, err := resolveHash(leaf, true)
	require.NoError(t, err)
	leaf.a.seal()
	hash := types.BytesToHash(h)

	require.NoError(t, qc.Commit(1, leaf))
	require.NoError(t, qc.Drain())

	require.Empty(t, qc.UnreferencedNodes())

	require.NoError(t, qc.Dereference(hash))
	require.Equal(t, []types.Hash{hash}, qc.UnreferencedNodes())

	err = qc.Dereference(hash)
	require.ErrorIs(t, err, ErrRefCountUnderflow)
}

func TestQueueCommitterNodeMissing(t *testing.T) {
	store := ethdb.NewMemoryDB()
	qc := NewQueueCommitter(store, nil)

	_, err := qc.Node(hashFromByte(0xff))
	var missing *NodeMissingError
	require.ErrorAs(t, err, &missing)
}

func TestQueueCommitterDrainRaceGuard(t *testing.T) {
	store := ethdb.NewMemoryDB()
	qc := NewQueueCommitter(store, nil)
	qc.draining = true
	err := qc.Drain()
	require.ErrorIs(t, err, ErrCommitRace)
}
