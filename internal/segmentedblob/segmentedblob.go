// Package segmentedblob encodes an arbitrarily long byte sequence as a
// balanced tree of leaf segments, each no larger than
// treenode.MaxBlobLength, with a configurable branching factor.
//
// Canonical encoding of an internal node's blob:
//   - be_u64(size_in_bytes)
//
// its children are either leaf segment digests directly, or, once the
// total size exceeds what direct children can address, digests of
// further segmented-blob subtrees. Size accounting (size_in_bytes) lets
// Load tell the two cases apart without an extra marker byte.
//
// Grounded on dogbox_tree_editor/src/segmented_blob.rs
// (save_segmented_blob_impl / load_segmented_blob); encoding style
// (doc-commented layout, Builder-less free functions) follows
// internal/filechunk/filechunk.go.
package segmentedblob

import (
	"encoding/binary"
	"fmt"

	"github.com/mamazu/astraea/internal/digest"
	"github.com/mamazu/astraea/internal/treenode"
	"github.com/mamazu/astraea/internal/treestore"
)

func encodeInfo(sizeInBytes uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], sizeInBytes)
	return buf[:]
}

func decodeInfo(blob []byte) (uint64, error) {
	if len(blob) != 8 {
		return 0, fmt.Errorf("segmentedblob: malformed size header (%d bytes)", len(blob))
	}
	return binary.BigEndian.Uint64(blob), nil
}

// Save builds a segmented-blob tree over segments (each already stored
// elsewhere, e.g. as leaf blob nodes) and returns its root digest.
// totalSizeInBytes is the sum of the plaintext sizes the segments cover;
// maxChildrenPerTree bounds how many children any one internal node gets
// (must be between 2 and treenode.MaxChildren).
//
// A single segment is returned as-is, with no wrapping node. Zero
// segments is an error: there is no digest that can represent "nothing".
func Save(segments []digest.Digest, totalSizeInBytes uint64, maxChildrenPerTree int, store treestore.Store) (digest.Digest, error) {
	if maxChildrenPerTree < 2 || maxChildrenPerTree > treenode.MaxChildren {
		return digest.Digest{}, fmt.Errorf("segmentedblob: maxChildrenPerTree out of range: %d", maxChildrenPerTree)
	}
	return save(segments, uint64(treenode.MaxBlobLength), totalSizeInBytes, maxChildrenPerTree, store)
}

func save(segments []digest.Digest, segmentCapacity uint64, totalSizeInBytes uint64, maxChildrenPerTree int, store treestore.Store) (digest.Digest, error) {
	switch len(segments) {
	case 0:
		return digest.Digest{}, treestore.ErrUnrepresentable
	case 1:
		return segments[0], nil
	}

	if len(segments) > maxChildrenPerTree {
		var chunks []digest.Digest
		remaining := totalSizeInBytes
		for start := 0; start < len(segments); start += maxChildrenPerTree {
			end := start + maxChildrenPerTree
			if end > len(segments) {
				end = len(segments)
			}
			chunk := segments[start:end]

			capacity := uint64(len(chunk)) * segmentCapacity
			chunkSize := remaining
			if capacity < remaining {
				chunkSize = capacity
			}
			remaining -= chunkSize

			chunkDigest, err := save(chunk, segmentCapacity, chunkSize, maxChildrenPerTree, store)
			if err != nil {
				return digest.Digest{}, err
			}
			chunks = append(chunks, chunkDigest)
		}
		return save(chunks, segmentCapacity*uint64(maxChildrenPerTree), totalSizeInBytes, maxChildrenPerTree, store)
	}

	node, err := treenode.New(encodeInfo(totalSizeInBytes), segments)
	if err != nil {
		return digest.Digest{}, fmt.Errorf("segmentedblob: %w", err)
	}
	d, err := store.StoreNode(treenode.HashedFrom(node))
	if err != nil {
		return digest.Digest{}, fmt.Errorf("segmentedblob: storing node: %w", err)
	}
	return d, nil
}

// Load walks the segmented-blob tree rooted at d and returns its leaf
// segment digests in order, plus the total plaintext size they cover.
func Load(d digest.Digest, loader treestore.Loader) ([]digest.Digest, uint64, error) {
	delayed, ok := loader.LoadNode(d)
	if !ok {
		return nil, 0, fmt.Errorf("segmentedblob: %w: %s", treestore.ErrTreeNotFound, d)
	}
	hashed, err := delayed.Resolve()
	if err != nil {
		return nil, 0, fmt.Errorf("segmentedblob: resolving %s: %w", d, err)
	}
	node := hashed.Node()

	if len(node.Children()) == 0 {
		return []digest.Digest{d}, uint64(len(node.Blob())), nil
	}

	sizeInBytes, err := decodeInfo(node.Blob())
	if err != nil {
		return nil, 0, fmt.Errorf("segmentedblob: %s: %w", d, err)
	}

	capacity := uint64(len(node.Children())) * uint64(treenode.MaxBlobLength)
	if sizeInBytes <= capacity {
		return node.Children(), sizeInBytes, nil
	}

	remaining := sizeInBytes
	var allSegments []digest.Digest
	for _, segmentDigest := range node.Children() {
		if remaining == 0 {
			return nil, 0, fmt.Errorf("segmentedblob: %s: more segments than needed for its declared size", d)
		}
		if remaining <= uint64(treenode.MaxBlobLength) {
			allSegments = append(allSegments, segmentDigest)
			remaining = 0
			continue
		}
		loadedSegments, segmentSize, err := Load(segmentDigest, loader)
		if err != nil {
			return nil, 0, err
		}
		allSegments = append(allSegments, loadedSegments...)
		if segmentSize > remaining {
			return nil, 0, fmt.Errorf("segmentedblob: %s: segment sizes exceed declared total", d)
		}
		remaining -= segmentSize
	}
	if remaining > 0 {
		return nil, 0, fmt.Errorf("segmentedblob: %s: fewer segments than needed for its declared size", d)
	}
	return allSegments, sizeInBytes, nil
}
