package trie

import (
	"errors"
	"fmt"

	"github.com/corestate/mpt/types"
)

// Sentinel errors the engine raises. Callers should compare with errors.Is;
// the typed wrappers below (NodeMissingError, AggregatedCommitError, ...) carry
// diagnostic context and unwrap to these sentinels.
var (
	// ErrNodeMissing is returned when a node referenced by hash is absent
	// from both the node cache and the backing store.
	ErrNodeMissing = errors.New("trie: node missing from cache and store")

	// ErrMalformedNode is returned when a node's serialized form cannot be
	// decoded.
	ErrMalformedNode = errors.New("trie: malformed node encoding")

	// ErrMalformedPath is returned when a hex-prefix path has a reserved
	// flag combination.
	ErrMalformedPath = errors.New("trie: malformed hex-prefix path")

	// ErrCommitsDisabled is returned when Commit is called on a trie opened
	// read-only (AllowCommits: false).
	ErrCommitsDisabled = errors.New("trie: commits are disabled on this trie")

	// ErrConcurrentMutation is returned when a mutation overlaps another
	// operation against the same root.
	ErrConcurrentMutation = errors.New("trie: concurrent mutation of the same root")

	// ErrRefCountUnderflow is a fatal programming error: a node's reference
	// count would go negative.
	ErrRefCountUnderflow = errors.New("trie: reference count underflow")

	// ErrSealedMutation is a fatal programming error: an attempt was made to
	// mutate a sealed node in place instead of cloning it.
	ErrSealedMutation = errors.New("trie: mutation of a sealed node")

	// ErrInvariantViolation is a fatal programming error: the tree reached a
	// shape the algorithm guarantees should be unreachable.
	ErrInvariantViolation = errors.New("trie: invariant violation")

	// ErrMissingForDelete is returned deleting a key that is not present
	// when the caller asked IgnoreMissingDelete=false.
	ErrMissingForDelete = errors.New("trie: delete of a key not present in the trie")

	// ErrCommitRace is returned if the committer queue is drained while
	// another drain of it is still in progress.
	ErrCommitRace = errors.New("trie: committer queue drained concurrently")
)

// NodeMissingError reports a node hash absent from cache and store.
type NodeMissingError struct {
	Hash types.Hash
	Path []byte // nibble path at which resolution was attempted
}

func (e *NodeMissingError) Error() string {
	return fmt.Sprintf("trie: node %x missing at path %x", e.Hash, e.Path)
}

func (e *NodeMissingError) Unwrap() error { return ErrNodeMissing }

// MalformedNodeError reports a node whose encoding could not be decoded.
type MalformedNodeError struct {
	Hash types.Hash
	Err  error
}

func (e *MalformedNodeError) Error() string {
	return fmt.Sprintf("trie: malformed node %x: %v", e.Hash, e.Err)
}

func (e *MalformedNodeError) Unwrap() error { return ErrMalformedNode }

// InvariantViolationError carries diagnostic context for a fatal invariant
// failure, so callers and logs can see exactly what shape was encountered.
type InvariantViolationError struct {
	Context string
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("trie: invariant violation: %s", e.Context)
}

func (e *InvariantViolationError) Unwrap() error { return ErrInvariantViolation }

// AggregatedCommitError collects the errors produced by a parallel branch
// commit fan-out. At least one of Errors is always non-nil.
type AggregatedCommitError struct {
	Errors []error
}

func (e *AggregatedCommitError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("trie: commit failed: %v", e.Errors[0])
	}
	return fmt.Sprintf("trie: commit failed with %d errors, first: %v", len(e.Errors), e.Errors[0])
}

// Unwrap exposes the first error so errors.Is/As can still match through an
// aggregate, matching the common Go convention for multi-errors prior to the
// stdlib's errors.Join in call sites that only care about the first cause.
func (e *AggregatedCommitError) Unwrap() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e.Errors[0]
}
