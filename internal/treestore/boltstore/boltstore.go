// Package boltstore implements the on-disk treestore backend: a
// three-table schema (trees, references, meta) laid out as
// go.etcd.io/bbolt buckets rather than SQL tables, plus a fourth bucket
// (blake3_tags) holding a secondary integrity tag per node, with bbolt's
// Update/View transactions providing the begin/commit semantics a SQL
// transaction would.
//
// Grounded on internal/store/kv.go (bucket layout, transaction shape)
// and internal/objects/object.go (zstd compression of stored payloads).
package boltstore

import (
	"encoding/binary"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"go.etcd.io/bbolt"
	"lukechampine.com/blake3"

	"github.com/mamazu/astraea/internal/digest"
	"github.com/mamazu/astraea/internal/treenode"
	"github.com/mamazu/astraea/internal/treestore"
)

var (
	bucketTrees      = []byte("trees")
	bucketReferences = []byte("references")
	bucketMeta       = []byte("meta")
	bucketBlake3Tags = []byte("blake3_tags")

	metaKeySchemaVersion = []byte("schema_version")
)

const schemaVersion = 1

// Store is the bbolt-backed treestore.StoreLoader. A single file holds
// the entire logical store; no auxiliary files are required.
type Store struct {
	db *bbolt.DB
}

// Open opens (creating if necessary) a bbolt-backed store at path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o666, nil)
	if err != nil {
		return nil, fmt.Errorf("boltstore: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range [][]byte{bucketTrees, bucketReferences, bucketMeta, bucketBlake3Tags} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		meta := tx.Bucket(bucketMeta)
		if meta.Get(metaKeySchemaVersion) == nil {
			var v [8]byte
			binary.BigEndian.PutUint64(v[:], schemaVersion)
			if err := meta.Put(metaKeySchemaVersion, v[:]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("boltstore: initializing schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

func referenceKey(parent digest.Digest, position int) []byte {
	key := make([]byte, digest.Size+4)
	copy(key, parent.ToBytes())
	binary.BigEndian.PutUint32(key[digest.Size:], uint32(position))
	return key
}

// StoreNode implements treestore.Store. It is idempotent: if the digest
// is already present, the transaction only checks existence and returns,
// without re-encoding or re-writing any bytes.
func (s *Store) StoreNode(hashed treenode.HashedNode) (digest.Digest, error) {
	d := hashed.Digest()
	err := s.db.Update(func(tx *bbolt.Tx) error {
		trees := tx.Bucket(bucketTrees)
		if trees.Get(d.ToBytes()) != nil {
			return nil
		}

		node := hashed.Node()
		compressed, err := zstd.NewWriter(nil)
		if err != nil {
			return fmt.Errorf("building zstd encoder: %w", err)
		}
		defer compressed.Close()
		blobBytes := compressed.EncodeAll(node.Blob(), nil)

		if err := trees.Put(d.ToBytes(), blobBytes); err != nil {
			return err
		}

		tag := blake3.Sum256(node.CanonicalEncode())
		if err := tx.Bucket(bucketBlake3Tags).Put(d.ToBytes(), tag[:]); err != nil {
			return err
		}

		references := tx.Bucket(bucketReferences)
		for i, child := range node.Children() {
			if err := references.Put(referenceKey(d, i), child.ToBytes()); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return digest.Digest{}, &treestore.StoreError{Kind: treestore.StoreIO, Cause: err}
	}
	return d, nil
}

// LoadNode implements treestore.Loader. Resolving the returned
// DelayedNode re-reads the row (and its ordered children), decompresses
// the blob, recomputes the node's digest, and rejects the result as
// treestore.ErrTreeNotFound if the recomputed digest doesn't match the
// key it was looked up under — this is how on-disk corruption surfaces.
func (s *Store) LoadNode(d digest.Digest) (treestore.DelayedNode, bool) {
	exists := false
	_ = s.db.View(func(tx *bbolt.Tx) error {
		exists = tx.Bucket(bucketTrees).Get(d.ToBytes()) != nil
		return nil
	})
	if !exists {
		return treestore.DelayedNode{}, false
	}

	return treestore.NewDelayedNode(func() (treenode.HashedNode, error) {
		var blob []byte
		var tag []byte
		var children []digest.Digest

		err := s.db.View(func(tx *bbolt.Tx) error {
			compressed := tx.Bucket(bucketTrees).Get(d.ToBytes())
			if compressed == nil {
				return treestore.ErrTreeNotFound
			}
			decoder, err := zstd.NewReader(nil)
			if err != nil {
				return fmt.Errorf("building zstd decoder: %w", err)
			}
			defer decoder.Close()
			decoded, err := decoder.DecodeAll(compressed, nil)
			if err != nil {
				return fmt.Errorf("%w: zstd payload corrupt: %v", treestore.ErrTreeNotFound, err)
			}
			blob = decoded

			if stored := tx.Bucket(bucketBlake3Tags).Get(d.ToBytes()); stored != nil {
				tag = append([]byte(nil), stored...)
			}

			cursor := tx.Bucket(bucketReferences).Cursor()
			prefix := d.ToBytes()
			for k, v := cursor.Seek(prefix); k != nil && len(k) == len(prefix)+4; k, v = cursor.Next() {
				if string(k[:len(prefix)]) != string(prefix) {
					break
				}
				childDigest, err := digest.FromBytes(v)
				if err != nil {
					return fmt.Errorf("%w: malformed child reference: %v", treestore.ErrTreeNotFound, err)
				}
				children = append(children, childDigest)
			}
			return nil
		})
		if err != nil {
			return treenode.HashedNode{}, err
		}

		node, err := treenode.New(blob, children)
		if err != nil {
			return treenode.HashedNode{}, fmt.Errorf("%w: stored node violates bounds: %v", treestore.ErrTreeNotFound, err)
		}

		if tag != nil {
			recomputed := blake3.Sum256(node.CanonicalEncode())
			if string(recomputed[:]) != string(tag) {
				return treenode.HashedNode{}, fmt.Errorf("%w: blake3 integrity tag mismatch for %s", treestore.ErrTreeNotFound, d)
			}
		}

		hashed := treenode.HashedFrom(node)
		if hashed.Digest() != d {
			return treenode.HashedNode{}, fmt.Errorf("%w: digest mismatch for %s", treestore.ErrTreeNotFound, d)
		}
		return hashed, nil
	}), true
}

// NumberOfTrees returns the number of distinct nodes currently persisted.
// Useful in tests asserting dedup and post-order durability.
func (s *Store) NumberOfTrees() int {
	count := 0
	_ = s.db.View(func(tx *bbolt.Tx) error {
		count = tx.Bucket(bucketTrees).Stats().KeyN
		return nil
	})
	return count
}
