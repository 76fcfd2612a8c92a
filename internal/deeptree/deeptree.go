// Package deeptree provides an eagerly materialized view of a tree: every
// descendant is loaded (or stored) up front rather than left as a
// DelayedNode. It is meant for small trees, fixtures, and tests, where
// working with fully-realized Go values is more convenient than chasing
// digests through a treestore.Loader one level at a time.
//
// Grounded on astraea/src/deep_tree.rs (DeepTree::deserialize/serialize)
// and, for the store/load split idiom, internal/fsmerkle/storage.go.
package deeptree

import (
	"fmt"

	"github.com/mamazu/astraea/internal/digest"
	"github.com/mamazu/astraea/internal/treenode"
	"github.com/mamazu/astraea/internal/treestore"
)

// Tree is a fully materialized node: its blob plus every descendant,
// recursively, as Tree values rather than digests.
type Tree struct {
	blob       []byte
	references []Tree
}

// New builds a Tree from a blob and its already-materialized children.
func New(blob []byte, references []Tree) Tree {
	refs := make([]Tree, len(references))
	copy(refs, references)
	return Tree{blob: append([]byte(nil), blob...), references: refs}
}

// Empty is the tree with no blob and no children.
func Empty() Tree {
	return Tree{}
}

// FromString builds a leaf tree whose blob is the UTF-8 encoding of s.
func FromString(s string) Tree {
	return Tree{blob: []byte(s)}
}

// Blob returns the node's own content, excluding its descendants.
func (t Tree) Blob() []byte {
	return append([]byte(nil), t.blob...)
}

// References returns the tree's immediate children.
func (t Tree) References() []Tree {
	return t.references
}

// Deserialize walks root and every descendant eagerly, realizing a
// complete Tree. It fails with treestore.ErrTreeNotFound (wrapped) if any
// node along the way is missing or fails to resolve.
func Deserialize(root digest.Digest, loader treestore.Loader) (Tree, error) {
	delayed, ok := loader.LoadNode(root)
	if !ok {
		return Tree{}, fmt.Errorf("deeptree: %w: %s", treestore.ErrTreeNotFound, root)
	}
	hashed, err := delayed.Resolve()
	if err != nil {
		return Tree{}, fmt.Errorf("deeptree: resolving %s: %w", root, err)
	}

	node := hashed.Node()
	references := make([]Tree, 0, len(node.Children()))
	for _, child := range node.Children() {
		childTree, err := Deserialize(child, loader)
		if err != nil {
			return Tree{}, err
		}
		references = append(references, childTree)
	}
	return Tree{blob: node.Blob(), references: references}, nil
}

// Serialize stores t and every descendant, children before parents, and
// returns the digest of the root. Storing is idempotent, so re-serializing
// an already-stored tree costs a lookup per node, not a rewrite.
func Serialize(t Tree, store treestore.Store) (digest.Digest, error) {
	children := make([]digest.Digest, 0, len(t.references))
	for _, reference := range t.references {
		childDigest, err := Serialize(reference, store)
		if err != nil {
			return digest.Digest{}, err
		}
		children = append(children, childDigest)
	}

	node, err := treenode.New(t.blob, children)
	if err != nil {
		return digest.Digest{}, fmt.Errorf("deeptree: %w", err)
	}
	d, err := store.StoreNode(treenode.HashedFrom(node))
	if err != nil {
		return digest.Digest{}, fmt.Errorf("deeptree: storing node: %w", err)
	}
	return d, nil
}
