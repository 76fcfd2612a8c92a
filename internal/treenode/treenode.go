// Package treenode implements the sole persistence unit of astraea: a
// bounded inline blob plus an ordered list of child digests, along with
// its canonical encoding and content digest.
package treenode

import (
	"encoding/binary"
	"fmt"

	"github.com/mamazu/astraea/internal/digest"
)

// MaxBlobLength is the largest number of bytes a node's inline blob may
// carry.
const MaxBlobLength = 64000

// MaxChildren is the largest number of child digests a node may carry.
const MaxChildren = 1000

// SizeErrorKind distinguishes the two ways a node can violate its bounds.
type SizeErrorKind int

const (
	// BlobTooLong means the blob exceeded MaxBlobLength.
	BlobTooLong SizeErrorKind = iota
	// TooManyChildren means the children list exceeded MaxChildren.
	TooManyChildren
)

func (k SizeErrorKind) String() string {
	switch k {
	case BlobTooLong:
		return "BlobTooLong"
	case TooManyChildren:
		return "TooManyChildren"
	default:
		return "unknown size error"
	}
}

// SizeError reports that a node could not be constructed because one of
// its bounds was violated.
type SizeError struct {
	Kind SizeErrorKind
}

func (e *SizeError) Error() string {
	return e.Kind.String()
}

// Node is the immutable persistence primitive: an ordered byte sequence
// plus an ordered sequence of child digests.
type Node struct {
	blob     []byte
	children []digest.Digest
}

// New constructs a Node, enforcing the blob and children-count bounds.
// The returned Node owns copies of blob and children.
func New(blob []byte, children []digest.Digest) (*Node, error) {
	if len(blob) > MaxBlobLength {
		return nil, &SizeError{Kind: BlobTooLong}
	}
	if len(children) > MaxChildren {
		return nil, &SizeError{Kind: TooManyChildren}
	}
	n := &Node{
		blob:     append([]byte(nil), blob...),
		children: append([]digest.Digest(nil), children...),
	}
	return n, nil
}

// Empty returns the canonical empty node: no blob, no children.
func Empty() *Node {
	n, err := New(nil, nil)
	if err != nil {
		panic(fmt.Sprintf("treenode: Empty should always construct: %v", err))
	}
	return n
}

// Blob returns the node's inline byte payload. Callers must not mutate
// the returned slice.
func (n *Node) Blob() []byte {
	return n.blob
}

// Children returns the node's ordered child digests. Callers must not
// mutate the returned slice.
func (n *Node) Children() []digest.Digest {
	return n.children
}

// CanonicalEncode produces the bit-exact byte sequence that is hashed to
// produce the node's digest:
//
//	be_u64(len(blob)) ‖ blob ‖ be_u64(len(children)) ‖ concat(children)
func (n *Node) CanonicalEncode() []byte {
	out := make([]byte, 0, 8+len(n.blob)+8+len(n.children)*digest.Size)
	var lenBuf [8]byte

	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(n.blob)))
	out = append(out, lenBuf[:]...)
	out = append(out, n.blob...)

	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(n.children)))
	out = append(out, lenBuf[:]...)
	for _, child := range n.children {
		out = append(out, child.ToBytes()...)
	}
	return out
}

// Digest computes the node's content digest: SHA3-512 of its canonical
// encoding.
func (n *Node) Digest() digest.Digest {
	return digest.Hash(n.CanonicalEncode())
}

// HashedNode pairs a Node with its digest, computed once at construction.
type HashedNode struct {
	node   *Node
	digest digest.Digest
}

// HashedFrom pairs node with a freshly computed digest.
func HashedFrom(node *Node) HashedNode {
	return HashedNode{node: node, digest: node.Digest()}
}

// Node returns the wrapped node.
func (h HashedNode) Node() *Node {
	return h.node
}

// Digest returns the node's precomputed digest.
func (h HashedNode) Digest() digest.Digest {
	return h.digest
}
