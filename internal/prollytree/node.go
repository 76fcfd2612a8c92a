// Package prollytree implements a sorted key-value index whose leaf and
// internal node boundaries are determined purely by a deterministic
// split predicate evaluated per key, rather than by insertion order or a
// fixed fanout. Two trees holding the same key-value pairs always have
// the same shape, and therefore the same root digest, regardless of the
// order entries were inserted in.
//
// Canonical encoding, in the style of internal/hamtdir/hamtdir.go's
// marker-byte-plus-uvarint scheme:
//   - Leaf:     0x00 | uvarint(entryCount) | (uvarint(keyLen) key valueKind [uvarint(valueLen) value])*
//   - Internal: 0x01 | uvarint(separatorCount) | (uvarint(len) separator)*
//
// A leaf's children (in treenode terms) are the digests of any
// ValueReference entries, in order; an internal node's children are its
// separators.len()+1 subtrees.
//
// The splitting algorithm itself (4.7's insertion procedure) has no
// equivalent in the reference sources this module is grounded on —
// sorted_tree.rs's prolly_tree.rs leaves it as an unimplemented branch —
// so it is built directly from the documented behavior: split after a
// key when the predicate fires, propagate the rightmost key of every
// non-final run as a separator, and apply the same rule one level up
// when a parent's separator list itself spans more than one run.
package prollytree

import (
	"encoding/binary"
	"fmt"

	"github.com/mamazu/astraea/internal/digest"
	"github.com/mamazu/astraea/internal/treenode"
	"github.com/mamazu/astraea/internal/treestore"
)

const (
	markerLeaf     byte = 0x00
	markerInternal byte = 0x01
)

// ValueKind distinguishes an entry value stored inline from one stored
// as a reference to another tree node.
type ValueKind uint8

const (
	ValueInline ValueKind = iota
	ValueReference
)

// Value is a prolly-tree leaf value: either bytes stored directly in the
// leaf's blob, or a digest referencing content stored elsewhere.
type Value struct {
	Kind      ValueKind
	Inline    []byte
	Reference digest.Digest
}

// InlineValue builds a Value whose content lives directly in the leaf.
func InlineValue(b []byte) Value {
	return Value{Kind: ValueInline, Inline: append([]byte(nil), b...)}
}

// ReferenceValue builds a Value that points at content stored under d.
func ReferenceValue(d digest.Digest) Value {
	return Value{Kind: ValueReference, Reference: d}
}

// Entry is a single sorted key-value pair in a leaf.
type Entry struct {
	Key   []byte
	Value Value
}

// SplitPredicate decides whether a leaf or separator run must end right
// after key. It must be deterministic and depend only on key.
type SplitPredicate func(key []byte) bool

// DefaultAverageLeafSize is the target average entry count per leaf for
// DefaultSplitPredicate.
const DefaultAverageLeafSize = 64

// DefaultSplitPredicate returns the standard hash-based split predicate,
// tuned for an average leaf size of DefaultAverageLeafSize.
func DefaultSplitPredicate() SplitPredicate {
	return NewHashSplitPredicate(DefaultAverageLeafSize)
}

// NewHashSplitPredicate builds a split predicate that fires with
// probability 1/averageRunLength, derived from the binding tree digest
// hash of the key's bytes. It is deterministic, uniform, and stable
// across processes, since it depends only on the key's content.
func NewHashSplitPredicate(averageRunLength int) SplitPredicate {
	n := uint64(averageRunLength)
	if n == 0 {
		n = 1
	}
	return func(key []byte) bool {
		h := digest.Hash(key)
		raw := h.ToBytes()
		v := binary.BigEndian.Uint64(raw[:8])
		return v%n == 0
	}
}

type nodeKind int

const (
	kindLeaf nodeKind = iota
	kindInternal
)

func encodeLeaf(entries []Entry) ([]byte, []digest.Digest) {
	buf := []byte{markerLeaf}
	buf = binary.AppendUvarint(buf, uint64(len(entries)))
	var children []digest.Digest
	for _, e := range entries {
		buf = binary.AppendUvarint(buf, uint64(len(e.Key)))
		buf = append(buf, e.Key...)
		buf = append(buf, byte(e.Value.Kind))
		switch e.Value.Kind {
		case ValueInline:
			buf = binary.AppendUvarint(buf, uint64(len(e.Value.Inline)))
			buf = append(buf, e.Value.Inline...)
		case ValueReference:
			children = append(children, e.Value.Reference)
		}
	}
	return buf, children
}

func decodeLeaf(blob []byte, children []digest.Digest) ([]Entry, error) {
	if len(blob) == 0 || blob[0] != markerLeaf {
		return nil, fmt.Errorf("prollytree: blob is not a leaf node")
	}
	pos := 1
	count, n, err := readUvarint(blob, pos)
	if err != nil {
		return nil, err
	}
	pos += n

	entries := make([]Entry, 0, count)
	childIdx := 0
	for i := uint64(0); i < count; i++ {
		keyLen, n, err := readUvarint(blob, pos)
		if err != nil {
			return nil, err
		}
		pos += n
		if pos+int(keyLen) > len(blob) {
			return nil, fmt.Errorf("prollytree: leaf entry key runs past end of blob")
		}
		key := append([]byte(nil), blob[pos:pos+int(keyLen)]...)
		pos += int(keyLen)

		if pos >= len(blob) {
			return nil, fmt.Errorf("prollytree: leaf entry missing value kind byte")
		}
		kind := ValueKind(blob[pos])
		pos++

		switch kind {
		case ValueInline:
			valLen, n, err := readUvarint(blob, pos)
			if err != nil {
				return nil, err
			}
			pos += n
			if pos+int(valLen) > len(blob) {
				return nil, fmt.Errorf("prollytree: leaf entry value runs past end of blob")
			}
			value := append([]byte(nil), blob[pos:pos+int(valLen)]...)
			pos += int(valLen)
			entries = append(entries, Entry{Key: key, Value: InlineValue(value)})
		case ValueReference:
			if childIdx >= len(children) {
				return nil, fmt.Errorf("prollytree: leaf references more children than it was stored with")
			}
			entries = append(entries, Entry{Key: key, Value: ReferenceValue(children[childIdx])})
			childIdx++
		default:
			return nil, fmt.Errorf("prollytree: unknown value kind %d", kind)
		}
	}
	if childIdx != len(children) {
		return nil, fmt.Errorf("prollytree: leaf was stored with more children than it references")
	}
	if pos != len(blob) {
		return nil, fmt.Errorf("prollytree: trailing bytes after leaf entries")
	}
	return entries, nil
}

func encodeInternal(separators [][]byte) []byte {
	buf := []byte{markerInternal}
	buf = binary.AppendUvarint(buf, uint64(len(separators)))
	for _, s := range separators {
		buf = binary.AppendUvarint(buf, uint64(len(s)))
		buf = append(buf, s...)
	}
	return buf
}

func decodeInternal(blob []byte, children []digest.Digest) ([][]byte, error) {
	if len(blob) == 0 || blob[0] != markerInternal {
		return nil, fmt.Errorf("prollytree: blob is not an internal node")
	}
	pos := 1
	count, n, err := readUvarint(blob, pos)
	if err != nil {
		return nil, err
	}
	pos += n

	separators := make([][]byte, 0, count)
	for i := uint64(0); i < count; i++ {
		sepLen, n, err := readUvarint(blob, pos)
		if err != nil {
			return nil, err
		}
		pos += n
		if pos+int(sepLen) > len(blob) {
			return nil, fmt.Errorf("prollytree: separator runs past end of blob")
		}
		separators = append(separators, append([]byte(nil), blob[pos:pos+int(sepLen)]...))
		pos += int(sepLen)
	}
	if pos != len(blob) {
		return nil, fmt.Errorf("prollytree: trailing bytes after separators")
	}
	if len(children) != len(separators)+1 {
		return nil, fmt.Errorf("prollytree: internal node has %d children but %d separators", len(children), len(separators))
	}
	return separators, nil
}

func readUvarint(buf []byte, pos int) (uint64, int, error) {
	v, n := binary.Uvarint(buf[pos:])
	if n <= 0 {
		return 0, 0, fmt.Errorf("prollytree: malformed uvarint at offset %d", pos)
	}
	return v, n, nil
}

func storeLeaf(store treestore.Store, entries []Entry) (digest.Digest, error) {
	blob, children := encodeLeaf(entries)
	node, err := treenode.New(blob, children)
	if err != nil {
		return digest.Digest{}, fmt.Errorf("prollytree: %w", err)
	}
	d, err := store.StoreNode(treenode.HashedFrom(node))
	if err != nil {
		return digest.Digest{}, fmt.Errorf("prollytree: storing leaf: %w", err)
	}
	return d, nil
}

func storeInternal(store treestore.Store, separators [][]byte, children []digest.Digest) (digest.Digest, error) {
	blob := encodeInternal(separators)
	node, err := treenode.New(blob, children)
	if err != nil {
		return digest.Digest{}, fmt.Errorf("prollytree: %w", err)
	}
	d, err := store.StoreNode(treenode.HashedFrom(node))
	if err != nil {
		return digest.Digest{}, fmt.Errorf("prollytree: storing internal node: %w", err)
	}
	return d, nil
}

func loadNode(loader treestore.Loader, d digest.Digest) (nodeKind, []Entry, [][]byte, []digest.Digest, error) {
	delayed, ok := loader.LoadNode(d)
	if !ok {
		return 0, nil, nil, nil, fmt.Errorf("prollytree: %w: %s", treestore.ErrTreeNotFound, d)
	}
	hashed, err := delayed.Resolve()
	if err != nil {
		return 0, nil, nil, nil, fmt.Errorf("prollytree: resolving %s: %w", d, err)
	}
	node := hashed.Node()
	if len(node.Blob()) == 0 {
		return 0, nil, nil, nil, fmt.Errorf("prollytree: %s: empty node is not a valid leaf or internal node", d)
	}
	switch node.Blob()[0] {
	case markerLeaf:
		entries, err := decodeLeaf(node.Blob(), node.Children())
		if err != nil {
			return 0, nil, nil, nil, fmt.Errorf("prollytree: %s: %w", d, err)
		}
		return kindLeaf, entries, nil, node.Children(), nil
	case markerInternal:
		separators, err := decodeInternal(node.Blob(), node.Children())
		if err != nil {
			return 0, nil, nil, nil, fmt.Errorf("prollytree: %s: %w", d, err)
		}
		return kindInternal, nil, separators, node.Children(), nil
	default:
		return 0, nil, nil, nil, fmt.Errorf("prollytree: %s: unrecognized node marker 0x%02x", d, node.Blob()[0])
	}
}

// computeRunEnds partitions [0, numItems) into runs using shouldSplitAfter,
// which is only ever queried for i in [0, numItems-2]; the final run
// always extends to numItems-1 regardless of what the predicate says
// about the last item, since there is nothing after it to split from.
func computeRunEnds(numItems int, shouldSplitAfter func(i int) bool) []int {
	var ends []int
	for i := 0; i < numItems-1; i++ {
		if shouldSplitAfter(i) {
			ends = append(ends, i)
		}
	}
	if len(ends) == 0 || ends[len(ends)-1] != numItems-1 {
		ends = append(ends, numItems-1)
	}
	return ends
}

// buildNodeLevel stores children under separators as a single internal
// node, or, if the separators span more than one run under predicate,
// splits into sibling internal nodes and returns the separators needed
// to reference them from one level up.
func buildNodeLevel(store treestore.Store, separators [][]byte, children []digest.Digest, predicate SplitPredicate) ([]digest.Digest, [][]byte, error) {
	ends := computeRunEnds(len(children), func(i int) bool {
		if i >= len(separators) {
			return false
		}
		return predicate(separators[i])
	})
	if len(ends) == 1 {
		d, err := storeInternal(store, separators, children)
		if err != nil {
			return nil, nil, err
		}
		return []digest.Digest{d}, nil, nil
	}

	var siblings []digest.Digest
	var outSeparators [][]byte
	start := 0
	for runIdx, end := range ends {
		runChildren := children[start : end+1]
		var runSeparators [][]byte
		if end > start {
			runSeparators = separators[start:end]
		}
		d, err := storeInternal(store, runSeparators, runChildren)
		if err != nil {
			return nil, nil, err
		}
		siblings = append(siblings, d)
		if runIdx < len(ends)-1 {
			outSeparators = append(outSeparators, separators[end])
		}
		start = end + 1
	}
	return siblings, outSeparators, nil
}
