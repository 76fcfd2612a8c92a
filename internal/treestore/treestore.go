// Package treestore defines the content-addressed tree store contract
// (CATS): a deduplicating store/load pair over treenode.HashedNode,
// satisfied by the in-memory backend (treestore/memstore) and the
// bbolt-backed on-disk backend (treestore/boltstore).
package treestore

import (
	"errors"
	"fmt"

	"github.com/mamazu/astraea/internal/digest"
	"github.com/mamazu/astraea/internal/treenode"
)

// ErrTreeNotFound is returned when realizing a DelayedNode whose digest
// has no backing record, or whose backing record is corrupt.
var ErrTreeNotFound = errors.New("treestore: tree not found")

// StoreErrorKind distinguishes the ways a store operation can fail.
type StoreErrorKind int

const (
	// StoreIO means the underlying medium (disk, network) failed.
	StoreIO StoreErrorKind = iota
	// StoreUnrepresentable means the caller asked for something that
	// cannot be expressed as a tree node (e.g. zero segments).
	StoreUnrepresentable
)

// StoreError is returned by Store.StoreNode.
type StoreError struct {
	Kind  StoreErrorKind
	Cause error
}

func (e *StoreError) Error() string {
	switch e.Kind {
	case StoreUnrepresentable:
		return "treestore: unrepresentable"
	default:
		if e.Cause != nil {
			return fmt.Sprintf("treestore: io error: %v", e.Cause)
		}
		return "treestore: io error"
	}
}

func (e *StoreError) Unwrap() error {
	return e.Cause
}

// ErrUnrepresentable is a ready-made StoreError for callers that need to
// reject an illegal operation without wrapping an underlying cause.
var ErrUnrepresentable = &StoreError{Kind: StoreUnrepresentable}

// DelayedNode is a pending load that may still fail. Realizing it
// (calling Resolve) yields a HashedNode or ErrTreeNotFound.
type DelayedNode struct {
	resolve func() (treenode.HashedNode, error)
}

// NewDelayedNode wraps a resolve function as a DelayedNode.
func NewDelayedNode(resolve func() (treenode.HashedNode, error)) DelayedNode {
	return DelayedNode{resolve: resolve}
}

// Resolve realizes the delayed load.
func (d DelayedNode) Resolve() (treenode.HashedNode, error) {
	return d.resolve()
}

// Store persists hashed nodes, deduplicating by digest.
type Store interface {
	// StoreNode persists hashed, returning its digest. Storing the
	// same node twice is idempotent and causes no duplication.
	StoreNode(hashed treenode.HashedNode) (digest.Digest, error)
}

// Loader retrieves nodes by digest.
type Loader interface {
	// LoadNode returns a DelayedNode for d, or (DelayedNode{}, false)
	// if the backend has no record of d at all.
	LoadNode(d digest.Digest) (DelayedNode, bool)
}

// StoreLoader combines Store and Loader, the contract most callers need.
type StoreLoader interface {
	Store
	Loader
}
