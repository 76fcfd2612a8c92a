// Package memstore implements an in-memory treestore.Store backend: a
// mapping from digest to hashed node, protected by a mutex.
package memstore

import (
	"sync"

	"github.com/mamazu/astraea/internal/digest"
	"github.com/mamazu/astraea/internal/treenode"
	"github.com/mamazu/astraea/internal/treestore"
)

// Store is an in-memory, concurrency-safe treestore.StoreLoader.
type Store struct {
	mu    sync.RWMutex
	nodes map[digest.Digest]treenode.HashedNode
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		nodes: make(map[digest.Digest]treenode.HashedNode),
	}
}

// StoreNode implements treestore.Store. Storing the same node twice is a
// no-op on the second call: the backend already has a record under that
// digest.
func (s *Store) StoreNode(hashed treenode.HashedNode) (digest.Digest, error) {
	d := hashed.Digest()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.nodes[d]; !exists {
		s.nodes[d] = hashed
	}
	return d, nil
}

// LoadNode implements treestore.Loader.
func (s *Store) LoadNode(d digest.Digest) (treestore.DelayedNode, bool) {
	s.mu.RLock()
	hashed, exists := s.nodes[d]
	s.mu.RUnlock()
	if !exists {
		return treestore.DelayedNode{}, false
	}
	return treestore.NewDelayedNode(func() (treenode.HashedNode, error) {
		return hashed, nil
	}), true
}

// Len returns the number of distinct nodes currently stored. Useful for
// dedup and post-order-durability assertions in tests.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}
