package trie

import (
	"github.com/corestate/mpt/crypto"
	"github.com/corestate/mpt/rlp"
)

// Node codec: serializes the four node variants to the RLP wire form
// the backing store persists, and computes the content hash nodes are
// addressed by. A leaf or extension encodes as a 2-item RLP list (hex-prefix
// path, value-or-child-reference); a branch encodes as a 17-item RLP list
// (16 child references, terminator value-or-empty).
//
// A child reference is either the child's 32-byte hash, RLP-string-wrapped,
// or -- when the child's own encoding is shorter than 32 bytes -- the raw
// encoding embedded directly in the parent's payload. This mandatory
// inlining threshold keeps small subtrees (e.g. short-lived test fixtures)
// from paying a hash-and-fetch round trip for a node that fits in a few
// dozen bytes.
const inlineThreshold = 32

// resolveHash computes (and caches on n's attrs) the reference by which n's
// parent should address it: a content hash if the encoding reaches the
// inline threshold or n is the tree root, or the raw encoding itself
// otherwise. Calling resolveHash on a node already resolved and clean is a
// cache hit, except that isRoot=true always forces the 32-byte hash form
// even if a prior non-root resolution left it inlined.
func resolveHash(n node, isRoot bool) ([]byte, error) {
	if n == nil {
		return []byte{0x80}, nil
	}
	if un, ok := n.(*unknownNode); ok {
		return un.a.hash, nil
	}

	a := n.nodeAttrs()
	if !a.dirty && a.encoded != nil {
		if !isRoot && len(a.encoded) < inlineThreshold {
			return a.encoded, nil
		}
		if a.hash != nil {
			return a.hash, nil
		}
	}

	enc, err := encodeNode(n)
	if err != nil {
		return nil, err
	}
	a.encoded = enc

	if isRoot || len(enc) >= inlineThreshold {
		h := crypto.Keccak256(enc)
		a.hash = h
		return h, nil
	}
	a.hash = nil
	return enc, nil
}

// encodeNode produces n's RLP encoding, recursively resolving child
// references along the way. n must be a concrete, materialized node; an
// *unknownNode has nothing to encode and is an invariant violation here.
func encodeNode(n node) ([]byte, error) {
	switch t := n.(type) {
	case *leafNode:
		return encodeLeaf(t)
	case *extensionNode:
		return encodeExtension(t)
	case *branchNode:
		return encodeBranch(t)
	case *unknownNode:
		return nil, &InvariantViolationError{Context: "encodeNode called on an unresolved placeholder"}
	default:
		return nil, &InvariantViolationError{Context: "encodeNode called on an unrecognized node type"}
	}
}

func encodeLeaf(n *leafNode) ([]byte, error) {
	keyEnc, err := rlp.EncodeToBytes(hexPrefixEncode(n.path, true))
	if err != nil {
		return nil, err
	}
	valEnc, err := rlp.EncodeToBytes(n.value)
	if err != nil {
		return nil, err
	}
	payload := append(keyEnc, valEnc...)
	return rlp.WrapList(payload), nil
}

func encodeExtension(n *extensionNode) ([]byte, error) {
	keyEnc, err := rlp.EncodeToBytes(hexPrefixEncode(n.path, false))
	if err != nil {
		return nil, err
	}
	childRef, err := encodeChildSlot(n.child)
	if err != nil {
		return nil, err
	}
	payload := append(keyEnc, childRef...)
	return rlp.WrapList(payload), nil
}

func encodeBranch(n *branchNode) ([]byte, error) {
	var payload []byte
	for i := 0; i < 16; i++ {
		ref, err := encodeChildSlot(n.children[i])
		if err != nil {
			return nil, err
		}
		payload = append(payload, ref...)
	}
	if n.value == nil {
		payload = append(payload, 0x80)
	} else {
		valEnc, err := rlp.EncodeToBytes(n.value)
		if err != nil {
			return nil, err
		}
		payload = append(payload, valEnc...)
	}
	return rlp.WrapList(payload), nil
}

// encodeChildSlot returns the bytes a parent embeds for child: an empty
// string item for a nil slot, the raw (already RLP-encoded) bytes for an
// inlined child, or an RLP-string-wrapped 32-byte hash otherwise.
func encodeChildSlot(child node) ([]byte, error) {
	if child == nil {
		return []byte{0x80}, nil
	}
	ref, err := resolveHash(child, false)
	if err != nil {
		return nil, err
	}
	if len(ref) == 32 {
		return rlp.EncodeToBytes(ref)
	}
	return ref, nil
}
