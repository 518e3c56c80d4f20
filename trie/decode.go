package trie

import "github.com/corestate/mpt/types"

// decodeNode materializes the node encoded in enc, which was read from the
// backing store under hash (the zero hash for an inlined child decoded as
// part of its parent -- it has no addressable hash of its own). A decoded
// node is sealed and clean: it came from storage, not from a pending
// mutation.
func decodeNode(hash types.Hash, enc []byte) (node, error) {
	items, err := splitRLPList(enc)
	if err != nil {
		return nil, &MalformedNodeError{Hash: hash, Err: err}
	}

	switch len(items) {
	case 2:
		return decodeShort(hash, enc, items)
	case 17:
		return decodeBranch(hash, enc, items)
	default:
		return nil, &MalformedNodeError{Hash: hash, Err: ErrMalformedNode}
	}
}

func decodeShort(hash types.Hash, enc []byte, items [][]byte) (node, error) {
	keyContent, _, err := rlpItemContent(items[0])
	if err != nil {
		return nil, &MalformedNodeError{Hash: hash, Err: err}
	}
	path, isLeaf, err := hexPrefixDecode(keyContent)
	if err != nil {
		return nil, &MalformedNodeError{Hash: hash, Err: err}
	}

	if isLeaf {
		valContent, _, err := rlpItemContent(items[1])
		if err != nil {
			return nil, &MalformedNodeError{Hash: hash, Err: err}
		}
		n := &leafNode{
			a:     attrs{encoded: append([]byte(nil), enc...)},
			path:  path,
			value: append([]byte(nil), valContent...),
		}
		n.a.seal()
		return n, nil
	}

	child, err := decodeChildSlot(items[1])
	if err != nil {
		return nil, &MalformedNodeError{Hash: hash, Err: err}
	}
	n := &extensionNode{
		a:     attrs{encoded: append([]byte(nil), enc...)},
		path:  path,
		child: child,
	}
	incRef(child)
	n.a.seal()
	return n, nil
}

func decodeBranch(hash types.Hash, enc []byte, items [][]byte) (node, error) {
	n := &branchNode{a: attrs{encoded: append([]byte(nil), enc...)}}
	for i := 0; i < 16; i++ {
		child, err := decodeChildSlot(items[i])
		if err != nil {
			return nil, &MalformedNodeError{Hash: hash, Err: err}
		}
		if child != nil {
			n.children[i] = child
			incRef(child)
		}
	}
	valContent, _, err := rlpItemContent(items[16])
	if err != nil {
		return nil, &MalformedNodeError{Hash: hash, Err: err}
	}
	if len(valContent) > 0 {
		n.value = append([]byte(nil), valContent...)
	}
	n.a.seal()
	return n, nil
}

// decodeChildSlot interprets one of a parent's 16 (or 2, for an extension)
// child item spans: an empty string is an empty slot, a 32-byte string is a
// hash reference materialized as an *unknownNode, and a nested list is an
// inlined child decoded in place.
func decodeChildSlot(item []byte) (node, error) {
	content, isList, err := rlpItemContent(item)
	if err != nil {
		return nil, err
	}
	if !isList {
		switch len(content) {
		case 0:
			return nil, nil
		case 32:
			return unknownFromBytes(content), nil
		default:
			return nil, ErrMalformedNode
		}
	}
	return decodeNode(types.Hash{}, item)
}

func unknownFromBytes(hash []byte) *unknownNode {
	u := &unknownNode{a: attrs{hash: append([]byte(nil), hash...)}}
	u.a.seal()
	return u
}

// --- low-level RLP item splitting ---
//
// The rlp package (the byte codec collaborator, C-external) encodes and
// decodes Go values via reflection; node decoding needs something it
// doesn't provide, raw byte spans of a list's immediate items, including
// the full header+content span of nested lists, so an inlined child can be
// re-decoded from its own bytes without first reassembling a wrapper value.
// This is plain RLP header arithmetic, not a second codec.

const (
	rlpString = iota
	rlpList
)

// rlpItemInfo parses the header of the RLP item starting at data[0],
// returning its kind, the offset of its content within data, and the
// content's length.
func rlpItemInfo(data []byte) (kind, contentStart, contentLen int, err error) {
	if len(data) == 0 {
		return 0, 0, 0, ErrMalformedNode
	}
	b := data[0]
	switch {
	case b < 0x80:
		return rlpString, 0, 1, nil
	case b < 0xb8:
		n := int(b - 0x80)
		if len(data) < 1+n {
			return 0, 0, 0, ErrMalformedNode
		}
		return rlpString, 1, n, nil
	case b < 0xc0:
		lenOfLen := int(b - 0xb7)
		if len(data) < 1+lenOfLen {
			return 0, 0, 0, ErrMalformedNode
		}
		n := rlpBigEndianInt(data[1 : 1+lenOfLen])
		if len(data) < 1+lenOfLen+n {
			return 0, 0, 0, ErrMalformedNode
		}
		return rlpString, 1 + lenOfLen, n, nil
	case b < 0xf8:
		n := int(b - 0xc0)
		if len(data) < 1+n {
			return 0, 0, 0, ErrMalformedNode
		}
		return rlpList, 1, n, nil
	default:
		lenOfLen := int(b - 0xf7)
		if len(data) < 1+lenOfLen {
			return 0, 0, 0, ErrMalformedNode
		}
		n := rlpBigEndianInt(data[1 : 1+lenOfLen])
		if len(data) < 1+lenOfLen+n {
			return 0, 0, 0, ErrMalformedNode
		}
		return rlpList, 1 + lenOfLen, n, nil
	}
}

func rlpBigEndianInt(b []byte) int {
	n := 0
	for _, c := range b {
		n = n<<8 | int(c)
	}
	return n
}

// rlpItemContent returns an item's content bytes and whether it is a list.
func rlpItemContent(item []byte) ([]byte, bool, error) {
	kind, start, n, err := rlpItemInfo(item)
	if err != nil {
		return nil, false, err
	}
	return item[start : start+n], kind == rlpList, nil
}

// rlpItemSpan returns the length of the full item (header+content) at the
// start of data.
func rlpItemSpan(data []byte) (int, error) {
	_, start, n, err := rlpItemInfo(data)
	if err != nil {
		return 0, err
	}
	return start + n, nil
}

// splitRLPList returns the raw header+content spans of enc's immediate list
// items. enc must be a single RLP-encoded list.
func splitRLPList(enc []byte) ([][]byte, error) {
	kind, start, n, err := rlpItemInfo(enc)
	if err != nil {
		return nil, err
	}
	if kind != rlpList {
		return nil, ErrMalformedNode
	}
	payload := enc[start : start+n]

	var items [][]byte
	rest := payload
	for len(rest) > 0 {
		span, err := rlpItemSpan(rest)
		if err != nil {
			return nil, err
		}
		items = append(items, rest[:span])
		rest = rest[span:]
	}
	return items, nil
}
