package prollytree

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/mamazu/astraea/internal/digest"
	"github.com/mamazu/astraea/internal/treestore"
)

// NewTree stores the canonical empty leaf and returns its digest.
func NewTree(store treestore.Store) (digest.Digest, error) {
	return storeLeaf(store, nil)
}

func insertSorted(entries []Entry, key []byte, value Value) []Entry {
	idx := sort.Search(len(entries), func(i int) bool {
		return bytes.Compare(entries[i].Key, key) >= 0
	})
	result := make([]Entry, 0, len(entries)+1)
	result = append(result, entries[:idx]...)
	if idx < len(entries) && bytes.Equal(entries[idx].Key, key) {
		result = append(result, Entry{Key: key, Value: value})
		result = append(result, entries[idx+1:]...)
	} else {
		result = append(result, Entry{Key: append([]byte(nil), key...), Value: value})
		result = append(result, entries[idx:]...)
	}
	return result
}

func findChildIndex(separators [][]byte, key []byte) int {
	return sort.Search(len(separators), func(i int) bool {
		return bytes.Compare(key, separators[i]) <= 0
	})
}

// Find descends by separator comparison and binary-searches the target
// leaf. It returns (value, true) if key is present.
func Find(loader treestore.Loader, root digest.Digest, key []byte) (Value, bool, error) {
	kind, entries, separators, children, err := loadNode(loader, root)
	if err != nil {
		return Value{}, false, err
	}
	switch kind {
	case kindLeaf:
		idx := sort.Search(len(entries), func(i int) bool {
			return bytes.Compare(entries[i].Key, key) >= 0
		})
		if idx < len(entries) && bytes.Equal(entries[idx].Key, key) {
			return entries[idx].Value, true, nil
		}
		return Value{}, false, nil
	case kindInternal:
		idx := findChildIndex(separators, key)
		return Find(loader, children[idx], key)
	}
	return Value{}, false, fmt.Errorf("prollytree: unreachable node kind")
}

// Count returns the total number of entries reachable from root.
func Count(loader treestore.Loader, root digest.Digest) (uint64, error) {
	kind, entries, _, children, err := loadNode(loader, root)
	if err != nil {
		return 0, err
	}
	if kind == kindLeaf {
		return uint64(len(entries)), nil
	}
	var total uint64
	for _, child := range children {
		n, err := Count(loader, child)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// insertInto descends to the target leaf, inserts (key, value), and
// re-splits every level it touches on the way back up. It returns the
// one-or-more sibling digests the caller's slot must now hold, plus the
// separators needed between them.
func insertInto(loader treestore.Loader, store treestore.Store, root digest.Digest, key []byte, value Value, predicate SplitPredicate) ([]digest.Digest, [][]byte, error) {
	kind, entries, separators, children, err := loadNode(loader, root)
	if err != nil {
		return nil, nil, err
	}

	switch kind {
	case kindLeaf:
		newEntries := insertSorted(entries, key, value)
		ends := computeRunEnds(len(newEntries), func(i int) bool {
			return predicate(newEntries[i].Key)
		})
		if len(ends) == 1 {
			d, err := storeLeaf(store, newEntries)
			if err != nil {
				return nil, nil, err
			}
			return []digest.Digest{d}, nil, nil
		}

		var siblings []digest.Digest
		var separatorsOut [][]byte
		start := 0
		for runIdx, end := range ends {
			run := newEntries[start : end+1]
			d, err := storeLeaf(store, run)
			if err != nil {
				return nil, nil, err
			}
			siblings = append(siblings, d)
			if runIdx < len(ends)-1 {
				separatorsOut = append(separatorsOut, run[len(run)-1].Key)
			}
			start = end + 1
		}
		return siblings, separatorsOut, nil

	case kindInternal:
		idx := findChildIndex(separators, key)
		childSiblings, childSeparators, err := insertInto(loader, store, children[idx], key, value, predicate)
		if err != nil {
			return nil, nil, err
		}

		var newChildren []digest.Digest
		var newSeparators [][]byte
		newChildren = append(newChildren, children[:idx]...)
		newSeparators = append(newSeparators, separators[:idx]...)
		newChildren = append(newChildren, childSiblings...)
		newSeparators = append(newSeparators, childSeparators...)
		if idx < len(separators) {
			newSeparators = append(newSeparators, separators[idx])
			newChildren = append(newChildren, children[idx+1:]...)
			newSeparators = append(newSeparators, separators[idx+1:]...)
		}

		return buildNodeLevel(store, newSeparators, newChildren, predicate)
	}
	return nil, nil, fmt.Errorf("prollytree: unreachable node kind")
}

// Insert performs a functional update of the tree rooted at root: it
// returns the digest of a new root, leaving the original tree (and
// every digest reachable from it) untouched and still reachable.
func Insert(loader treestore.Loader, store treestore.Store, root digest.Digest, key []byte, value Value, predicate SplitPredicate) (digest.Digest, error) {
	siblings, separators, err := insertInto(loader, store, root, key, value, predicate)
	if err != nil {
		return digest.Digest{}, err
	}
	for len(siblings) > 1 {
		siblings, separators, err = buildNodeLevel(store, separators, siblings, predicate)
		if err != nil {
			return digest.Digest{}, err
		}
	}
	return siblings[0], nil
}
