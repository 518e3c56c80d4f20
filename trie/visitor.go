package trie

import (
	"errors"

	"github.com/corestate/mpt/rlp"
	"github.com/corestate/mpt/types"
)

// Visitor framework: a depth-first, read-only walk over a committed
// tree driven entirely by callbacks. Unlike Get/Set, a visitor never
// surfaces a resolve failure as an error return from Accept -- a missing
// node is reported to VisitMissingNode and the walk continues past it, so
// a caller auditing a partially-pruned history can still see as much of
// the tree as is actually present.
type Visitor interface {
	// VisitTree is called once, before any node callback, with the root
	// hash the walk was asked to traverse.
	VisitTree(rootHash types.Hash) error

	// VisitBranch is called for every branch node encountered, in
	// pre-order (before its children). path is the nibble path from the
	// root to this branch; value is the branch's own terminator value,
	// or nil if no key terminates here.
	VisitBranch(path []byte, value []byte) error

	// VisitExtension is called for every extension node, in pre-order.
	// sharedPath is the extension's own nibble segment.
	VisitExtension(path []byte, sharedPath []byte) error

	// VisitLeaf is called for every leaf node. fullPath is the complete
	// nibble path from the root to this leaf (the key, in nibble form).
	// account is non-nil only when Accept was called with
	// expectAccounts=true and value decoded as a valid account record.
	VisitLeaf(fullPath []byte, value []byte, account *types.Account) error

	// VisitMissingNode is called in place of descending into a node the
	// reader could not resolve.
	VisitMissingNode(path []byte, hash types.Hash) error
}

// Accept walks the tree committed at rootHash, invoking visitor's
// callbacks in depth-first, pre-order, low-to-high-nibble order. It reads
// nodes through t's reader rather than t's own in-memory root, so it can
// walk any historical root the backing store still has, not just the
// trie's current state.
func (t *Trie) Accept(visitor Visitor, rootHash types.Hash, expectAccounts bool) error {
	if err := visitor.VisitTree(rootHash); err != nil {
		return err
	}
	if rootHash == types.EmptyRootHash || rootHash.IsZero() {
		return nil
	}
	if t.reader == nil {
		return visitor.VisitMissingNode(nil, rootHash)
	}

	data, err := t.reader.Node(rootHash)
	if err != nil {
		var missing *NodeMissingError
		if errors.As(err, &missing) {
			return visitor.VisitMissingNode(nil, rootHash)
		}
		return err
	}
	root, err := decodeNode(rootHash, data)
	if err != nil {
		return err
	}
	return t.acceptNode(visitor, root, nil, expectAccounts)
}

func (t *Trie) acceptNode(visitor Visitor, n node, path []byte, expectAccounts bool) error {
	switch cur := n.(type) {
	case nil:
		return nil

	case *unknownNode:
		resolved, err := t.resolveNode(cur)
		if err != nil {
			var missing *NodeMissingError
			if errors.As(err, &missing) {
				return visitor.VisitMissingNode(path, missing.Hash)
			}
			return err
		}
		return t.acceptNode(visitor, resolved, path, expectAccounts)

	case *leafNode:
		fullPath := append(append([]byte(nil), path...), cur.path...)
		var account *types.Account
		if expectAccounts {
			var a types.Account
			if err := rlp.DecodeBytes(cur.value, &a); err == nil {
				account = &a
			}
		}
		return visitor.VisitLeaf(fullPath, cur.value, account)

	case *extensionNode:
		if err := visitor.VisitExtension(path, cur.path); err != nil {
			return err
		}
		childPath := append(append([]byte(nil), path...), cur.path...)
		return t.acceptNode(visitor, cur.child, childPath, expectAccounts)

	case *branchNode:
		if err := visitor.VisitBranch(path, cur.value); err != nil {
			return err
		}
		for i := 0; i < 16; i++ {
			child := cur.getChild(i)
			if child == nil {
				continue
			}
			childPath := append(append([]byte(nil), path...), byte(i))
			if err := t.acceptNode(visitor, child, childPath, expectAccounts); err != nil {
				return err
			}
		}
		return nil

	default:
		return &InvariantViolationError{Context: "accept: unrecognized node type"}
	}
}
