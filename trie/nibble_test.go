package trie

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHexPrefixRoundTripEvenLeaf(t *testing.T) {
	path := []byte{0x1, 0x2, 0x3, 0x4}
	enc := hexPrefixEncode(path, true)
	got, isLeaf, err := hexPrefixDecode(enc)
	require.NoError(t, err)
	require.True(t, isLeaf)
	require.Equal(t, path, got)
}

func TestHexPrefixRoundTripOddExtension(t *testing.T) {
	path := []byte{0xa, 0xb, 0xc}
	enc := hexPrefixEncode(path, false)
	got, isLeaf, err := hexPrefixDecode(enc)
	require.NoError(t, err)
	require.False(t, isLeaf)
	require.Equal(t, path, got)
}

func TestHexPrefixRoundTripEmptyPath(t *testing.T) {
	enc := hexPrefixEncode(nil, true)
	got, isLeaf, err := hexPrefixDecode(enc)
	require.NoError(t, err)
	require.True(t, isLeaf)
	require.Empty(t, got)
}

func TestHexPrefixDecodeRejectsReservedBits(t *testing.T) {
	_, _, err := hexPrefixDecode([]byte{0xff})
	require.Error(t, err)
	require.ErrorIs(t, err, ErrMalformedPath)
}

func TestBytesNibblesRoundTrip(t *testing.T) {
	key := []byte{0xab, 0xcd, 0xef}
	nibbles := bytesToNibbles(key)
	require.Equal(t, []byte{0xa, 0xb, 0xc, 0xd, 0xe, 0xf}, nibbles)
	require.Equal(t, key, nibblesToBytes(nibbles))
}

func TestPrefixLen(t *testing.T) {
	require.Equal(t, 2, prefixLen([]byte{1, 2, 3}, []byte{1, 2, 4}))
	require.Equal(t, 3, prefixLen([]byte{1, 2, 3}, []byte{1, 2, 3}))
	require.Equal(t, 0, prefixLen([]byte{1}, []byte{2}))
}
