package deeptree

import (
	"testing"

	"github.com/mamazu/astraea/internal/treestore/memstore"
)

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	store := memstore.New()
	tree := New([]byte("root"), []Tree{
		FromString("left"),
		New([]byte("right"), []Tree{FromString("grandchild")}),
	})

	root, err := Serialize(tree, store)
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}

	loaded, err := Deserialize(root, store)
	if err != nil {
		t.Fatalf("Deserialize failed: %v", err)
	}

	if string(loaded.Blob()) != "root" {
		t.Errorf("root blob = %q, want %q", loaded.Blob(), "root")
	}
	if len(loaded.References()) != 2 {
		t.Fatalf("expected 2 references, got %d", len(loaded.References()))
	}
	if string(loaded.References()[0].Blob()) != "left" {
		t.Errorf("first reference blob = %q, want %q", loaded.References()[0].Blob(), "left")
	}
	right := loaded.References()[1]
	if string(right.Blob()) != "right" {
		t.Errorf("second reference blob = %q, want %q", right.Blob(), "right")
	}
	if len(right.References()) != 1 || string(right.References()[0].Blob()) != "grandchild" {
		t.Errorf("grandchild not preserved: %+v", right.References())
	}
}

func TestSerializeIsDeterministic(t *testing.T) {
	store := memstore.New()
	tree := New([]byte("a"), []Tree{FromString("b"), FromString("c")})

	first, err := Serialize(tree, store)
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}
	second, err := Serialize(tree, store)
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}
	if first != second {
		t.Errorf("serializing the same tree twice produced different digests: %s vs %s", first, second)
	}
	if store.Len() != 3 {
		t.Errorf("expected 3 distinct stored nodes (root, b, c), got %d", store.Len())
	}
}

func TestDeserializeMissingNodeFails(t *testing.T) {
	store := memstore.New()
	empty := Empty()
	root, err := Serialize(empty, store)
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}

	other := memstore.New()
	if _, err := Deserialize(root, other); err == nil {
		t.Fatal("Deserialize against a store lacking the root should fail")
	}
}
