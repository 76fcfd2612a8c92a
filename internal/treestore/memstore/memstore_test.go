package memstore

import (
	"testing"

	"github.com/mamazu/astraea/internal/treenode"
)

func TestStoreAndLoad(t *testing.T) {
	s := New()
	n, err := treenode.New([]byte("payload"), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	hashed := treenode.HashedFrom(n)

	d, err := s.StoreNode(hashed)
	if err != nil {
		t.Fatalf("StoreNode failed: %v", err)
	}
	if d != hashed.Digest() {
		t.Fatalf("StoreNode should return the node's digest")
	}

	delayed, ok := s.LoadNode(d)
	if !ok {
		t.Fatal("LoadNode should find a stored node")
	}
	loaded, err := delayed.Resolve()
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if string(loaded.Node().Blob()) != "payload" {
		t.Errorf("loaded node blob = %q, want %q", loaded.Node().Blob(), "payload")
	}
}

func TestLoadMissingReturnsFalse(t *testing.T) {
	s := New()
	n := treenode.Empty()
	if _, ok := s.LoadNode(n.Digest()); ok {
		t.Error("LoadNode should report false for a digest never stored")
	}
}

func TestStoreIsDeduplicating(t *testing.T) {
	s := New()
	hashed := treenode.HashedFrom(treenode.Empty())

	if _, err := s.StoreNode(hashed); err != nil {
		t.Fatalf("StoreNode failed: %v", err)
	}
	if _, err := s.StoreNode(hashed); err != nil {
		t.Fatalf("StoreNode failed: %v", err)
	}
	if got := s.Len(); got != 1 {
		t.Errorf("storing the same node twice should leave exactly 1 entry, got %d", got)
	}
}

func TestStoreConcurrentAccess(t *testing.T) {
	s := New()
	hashed := treenode.HashedFrom(treenode.Empty())
	done := make(chan struct{}, 10)

	for i := 0; i < 5; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			if _, err := s.StoreNode(hashed); err != nil {
				t.Errorf("concurrent StoreNode failed: %v", err)
			}
		}()
	}
	for i := 0; i < 5; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			s.LoadNode(hashed.Digest())
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}
	if got := s.Len(); got != 1 {
		t.Errorf("concurrent stores of the same node should still leave exactly 1 entry, got %d", got)
	}
}
