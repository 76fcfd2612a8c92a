package prollytree

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/mamazu/astraea/internal/digest"
	"github.com/mamazu/astraea/internal/treestore"
)

// IntegrityStatus is the outcome of a VerifyIntegrity check: a
// diagnostic result, not a failure of the check operation itself.
type IntegrityStatus int

const (
	IntegrityValid IntegrityStatus = iota
	IntegrityCorrupted
)

// IntegrityResult is returned by VerifyIntegrity and EditableNode.VerifyIntegrity.
type IntegrityResult struct {
	Status IntegrityStatus
	Depth  int
	Reason string
}

func (r IntegrityResult) String() string {
	if r.Status == IntegrityCorrupted {
		return fmt.Sprintf("corrupted: %s", r.Reason)
	}
	return fmt.Sprintf("valid (depth %d)", r.Depth)
}

// verifyNode recursively checks ordering and separator coverage within
// (lower, upper]. It returns the subtree's depth and key range via the
// success path, or a Corrupted result on the first violation found.
func verifyNode(loader treestore.Loader, d digest.Digest, lower, upper []byte) (depth int, minKey, maxKey []byte, empty bool, result IntegrityResult, err error) {
	kind, entries, separators, children, loadErr := loadNode(loader, d)
	if loadErr != nil {
		return 0, nil, nil, false, IntegrityResult{}, loadErr
	}

	switch kind {
	case kindLeaf:
		if len(entries) == 0 {
			return 0, nil, nil, true, IntegrityResult{}, nil
		}
		for i := 1; i < len(entries); i++ {
			if bytes.Compare(entries[i-1].Key, entries[i].Key) >= 0 {
				return 0, nil, nil, false, IntegrityResult{Status: IntegrityCorrupted, Reason: fmt.Sprintf("leaf %s: entries not strictly sorted", d)}, nil
			}
		}
		min, max := entries[0].Key, entries[len(entries)-1].Key
		if lower != nil && bytes.Compare(min, lower) <= 0 {
			return 0, nil, nil, false, IntegrityResult{Status: IntegrityCorrupted, Reason: fmt.Sprintf("leaf %s: key at or below its lower bound", d)}, nil
		}
		if upper != nil && bytes.Compare(max, upper) > 0 {
			return 0, nil, nil, false, IntegrityResult{Status: IntegrityCorrupted, Reason: fmt.Sprintf("leaf %s: key exceeds its upper bound", d)}, nil
		}
		return 0, min, max, false, IntegrityResult{}, nil

	case kindInternal:
		for i := 1; i < len(separators); i++ {
			if bytes.Compare(separators[i-1], separators[i]) >= 0 {
				return 0, nil, nil, false, IntegrityResult{Status: IntegrityCorrupted, Reason: fmt.Sprintf("internal %s: separators not strictly sorted", d)}, nil
			}
		}

		maxDepth := -1
		var overallMin, overallMax []byte
		anyNonEmpty := false
		childLower := lower
		for i, child := range children {
			var childUpper []byte
			if i < len(separators) {
				childUpper = separators[i]
			} else {
				childUpper = upper
			}
			cDepth, cMin, cMax, cEmpty, res, cErr := verifyNode(loader, child, childLower, childUpper)
			if cErr != nil {
				return 0, nil, nil, false, IntegrityResult{}, cErr
			}
			if res.Status == IntegrityCorrupted {
				return 0, nil, nil, false, res, nil
			}
			if !cEmpty {
				if i < len(separators) && !bytes.Equal(cMax, separators[i]) {
					return 0, nil, nil, false, IntegrityResult{Status: IntegrityCorrupted, Reason: fmt.Sprintf("internal %s: separator %d doesn't match its left child's rightmost key", d, i)}, nil
				}
				if !anyNonEmpty {
					overallMin = cMin
				}
				overallMax = cMax
				anyNonEmpty = true
				if cDepth+1 > maxDepth {
					maxDepth = cDepth + 1
				}
			}
			if i < len(separators) {
				childLower = separators[i]
			}
		}
		if !anyNonEmpty {
			return 0, nil, nil, true, IntegrityResult{}, nil
		}
		return maxDepth, overallMin, overallMax, false, IntegrityResult{}, nil
	}
	return 0, nil, nil, false, IntegrityResult{Status: IntegrityCorrupted, Reason: "unrecognized node kind"}, nil
}

// VerifyIntegrity recursively checks ordering, separator coverage, and
// child ordering starting at root. expectedLastKey, if non-nil, is
// compared against the tree's actual maximum key.
func VerifyIntegrity(loader treestore.Loader, root digest.Digest, expectedLastKey []byte) (IntegrityResult, error) {
	depth, _, maxKey, empty, res, err := verifyNode(loader, root, nil, nil)
	if err != nil {
		return IntegrityResult{}, err
	}
	if res.Status == IntegrityCorrupted {
		return res, nil
	}
	if empty {
		if expectedLastKey != nil {
			return IntegrityResult{Status: IntegrityCorrupted, Reason: "tree is empty but a last key was expected"}, nil
		}
		return IntegrityResult{Status: IntegrityValid, Depth: 0}, nil
	}
	if expectedLastKey != nil && !bytes.Equal(maxKey, expectedLastKey) {
		return IntegrityResult{Status: IntegrityCorrupted, Reason: fmt.Sprintf("tree's last key is %x, expected %x", maxKey, expectedLastKey)}, nil
	}
	return IntegrityResult{Status: IntegrityValid, Depth: depth}, nil
}

// EditableNode is a mutable in-memory handle to a prolly-tree node, used
// for batched edits. It is single-owner: callers must not share one
// across concurrent mutations.
//
// It tags its own state as Unloaded(digest) or Loaded(Leaf|Internal) per
// the documented state machine, but delegates the actual splitting
// arithmetic to the same algorithm the functional surface uses (Insert
// in prollytree.go), so that a tree built through repeated
// EditableNode.Insert calls and saved always has the identical shape —
// and therefore the identical digest — as one built by the functional
// Insert. Insert always collapses back to Unloaded immediately. Find and
// Count on an Unloaded node delegate to the functional surface without
// loading it, so the Loaded state is held only by a fresh
// NewEditableNode until its first Insert or Save.
type EditableNode struct {
	loaded       bool
	digest       digest.Digest
	kind         nodeKind
	entries      []Entry
	separators   [][]byte
	children     []*EditableNode
	sizeEstimate int
}

// NewEditableNode returns a fresh, empty editable tree.
func NewEditableNode() *EditableNode {
	return &EditableNode{loaded: true, kind: kindLeaf}
}

// FromDigest wraps an already-persisted tree for editing.
func FromDigest(d digest.Digest) *EditableNode {
	return &EditableNode{digest: d}
}

func estimateSize(entries []Entry, separators [][]byte) int {
	total := 0
	for _, e := range entries {
		total += len(e.Key) + 1
		if e.Value.Kind == ValueInline {
			total += len(e.Value.Inline)
		} else {
			total += digest.Size
		}
	}
	for _, s := range separators {
		total += len(s)
	}
	return total
}

func (n *EditableNode) ensureLoaded(loader treestore.Loader) error {
	if n.loaded {
		return nil
	}
	kind, entries, separators, children, err := loadNode(loader, n.digest)
	if err != nil {
		return err
	}
	n.loaded = true
	n.kind = kind
	n.entries = entries
	n.separators = separators
	if kind == kindInternal {
		n.children = make([]*EditableNode, len(children))
		for i, c := range children {
			n.children[i] = FromDigest(c)
		}
	}
	n.sizeEstimate = estimateSize(entries, separators)
	return nil
}

// collapse serializes a Loaded node (recursively, children first) and
// transitions it to Unloaded(new_digest). It is a no-op on a node that
// is already Unloaded.
func (n *EditableNode) collapse(store treestore.Store) error {
	if !n.loaded {
		return nil
	}
	var d digest.Digest
	var err error
	switch n.kind {
	case kindLeaf:
		d, err = storeLeaf(store, n.entries)
	case kindInternal:
		childDigests := make([]digest.Digest, len(n.children))
		for i, c := range n.children {
			if err := c.collapse(store); err != nil {
				return err
			}
			childDigests[i] = c.digest
		}
		d, err = storeInternal(store, n.separators, childDigests)
	}
	if err != nil {
		return err
	}
	n.digest = d
	n.loaded = false
	n.entries = nil
	n.separators = nil
	n.children = nil
	return nil
}

// Insert mutates n in place to reflect inserting (key, value), using
// store as the (treestore.Store + treestore.Loader) needed to read and
// write any affected subtrees.
func (n *EditableNode) Insert(key []byte, value Value, store treestore.StoreLoader, predicate SplitPredicate) error {
	if err := n.collapse(store); err != nil {
		return fmt.Errorf("prollytree: %w", err)
	}
	newDigest, err := Insert(store, store, n.digest, key, value, predicate)
	if err != nil {
		return err
	}
	n.digest = newDigest
	n.sizeEstimate = 0
	return nil
}

// Find looks up key, loading nodes lazily as the descent requires.
func (n *EditableNode) Find(key []byte, loader treestore.Loader) (Value, bool, error) {
	if !n.loaded {
		return Find(loader, n.digest, key)
	}
	switch n.kind {
	case kindLeaf:
		idx := sort.Search(len(n.entries), func(i int) bool {
			return bytes.Compare(n.entries[i].Key, key) >= 0
		})
		if idx < len(n.entries) && bytes.Equal(n.entries[idx].Key, key) {
			return n.entries[idx].Value, true, nil
		}
		return Value{}, false, nil
	case kindInternal:
		idx := findChildIndex(n.separators, key)
		return n.children[idx].Find(key, loader)
	}
	return Value{}, false, fmt.Errorf("prollytree: editable node in an invalid state")
}

// Count returns the total entry count, loading children lazily.
func (n *EditableNode) Count(loader treestore.Loader) (uint64, error) {
	if !n.loaded {
		return Count(loader, n.digest)
	}
	switch n.kind {
	case kindLeaf:
		return uint64(len(n.entries)), nil
	case kindInternal:
		var total uint64
		for _, c := range n.children {
			cnt, err := c.Count(loader)
			if err != nil {
				return 0, err
			}
			total += cnt
		}
		return total, nil
	}
	return 0, fmt.Errorf("prollytree: editable node in an invalid state")
}

// VerifyIntegrity checks a saved node. Call Save first if the node still
// holds unsaved, in-memory edits.
func (n *EditableNode) VerifyIntegrity(loader treestore.Loader, expectedLastKey []byte) (IntegrityResult, error) {
	if n.loaded {
		return IntegrityResult{}, fmt.Errorf("prollytree: VerifyIntegrity requires a saved node; call Save first")
	}
	return VerifyIntegrity(loader, n.digest, expectedLastKey)
}

// Save serializes any pending in-memory edits and returns the resulting
// digest. Calling Save again with no intervening edits returns the same
// digest without writing anything new.
func (n *EditableNode) Save(store treestore.Store) (digest.Digest, error) {
	if err := n.collapse(store); err != nil {
		return digest.Digest{}, err
	}
	return n.digest, nil
}

// SizeEstimate reports the approximate serialized size of the node's
// currently loaded content, as last computed on load. It is a rough
// guide for batched-edit bookkeeping, not an exact byte count.
func (n *EditableNode) SizeEstimate() int {
	return n.sizeEstimate
}
