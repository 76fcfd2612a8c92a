package treenode

import (
	"testing"

	"github.com/mamazu/astraea/internal/digest"
)

func TestDigestVectors(t *testing.T) {
	// Vectors below are SHA3-512 over the canonical framed encoding
	// (be_u64(len(blob)) ‖ blob ‖ be_u64(len(children)) ‖ concat(children)),
	// not over the bare blob: the framing is what CanonicalEncode actually
	// produces, and what distinguishes e.g. a zero-length blob with one
	// child from a bare 64-byte blob (see TestReferenceAmbiguity below).
	t.Run("EmptyNode", func(t *testing.T) {
		got := Empty().Digest().String()
		want := "f0140e314ee38d4472393680e7a72a81abb36b134b467d90ea943b7aa1ea03bf2323bc1a2df91f7230a225952e162f6629cf435e53404e9cdd727a2d94e4f909"
		if got != want {
			t.Errorf("digest(empty node) = %s, want %s", got, want)
		}
	})

	t.Run("HelloWorld", func(t *testing.T) {
		n, err := New([]byte("Hello, world!"), nil)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		got := n.Digest().String()
		want := "f671d56d459e4cc29611ca33f39d4f9dc500d23d69a6b07540dca1a0313057b0a48a4e8859fbcc76242b6fa6bc8179d37201384ea96b7c2bbc61c0bd89b9f7d2"
		if got != want {
			t.Errorf("digest(hello world node) = %s, want %s", got, want)
		}
	})

	t.Run("BlobEmptyWithOneChild", func(t *testing.T) {
		n, err := New(nil, []digest.Digest{digest.Zero})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		got := n.Digest().String()
		want := "e32b9bb31183fcfe17c1a29367ad4e5dabd5b73ab1679fc0244ad627f63312edd74c6e0ebc767d2f9d97f3acf07fb4c5b83b75c98599413b3e8b8db4a69dac19"
		if got != want {
			t.Errorf("digest(blob=[], children=[zero]) = %s, want %s", got, want)
		}
	})
}

func TestNewEnforcesBlobBound(t *testing.T) {
	blob := make([]byte, MaxBlobLength)
	if _, err := New(blob, nil); err != nil {
		t.Fatalf("a blob of exactly MaxBlobLength should be accepted: %v", err)
	}

	tooLong := make([]byte, MaxBlobLength+1)
	_, err := New(tooLong, nil)
	if err == nil {
		t.Fatal("a blob longer than MaxBlobLength should be rejected")
	}
	sizeErr, ok := err.(*SizeError)
	if !ok || sizeErr.Kind != BlobTooLong {
		t.Fatalf("expected BlobTooLong, got %v", err)
	}
}

func TestNewEnforcesChildrenBound(t *testing.T) {
	children := make([]digest.Digest, MaxChildren)
	if _, err := New(nil, children); err != nil {
		t.Fatalf("exactly MaxChildren children should be accepted: %v", err)
	}

	tooMany := make([]digest.Digest, MaxChildren+1)
	_, err := New(nil, tooMany)
	if err == nil {
		t.Fatal("more than MaxChildren children should be rejected")
	}
	sizeErr, ok := err.(*SizeError)
	if !ok || sizeErr.Kind != TooManyChildren {
		t.Fatalf("expected TooManyChildren, got %v", err)
	}
}

func TestNewCopiesInputs(t *testing.T) {
	blob := []byte("mutate me")
	children := []digest.Digest{digest.Zero}
	n, err := New(blob, children)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	blob[0] = 'X'
	children[0][0] = 0xFF
	if n.Blob()[0] == 'X' {
		t.Error("Node should own a copy of blob, not alias the caller's slice")
	}
	if n.Children()[0][0] == 0xFF {
		t.Error("Node should own a copy of children, not alias the caller's slice")
	}
}

func TestHashedFromComputesDigestOnce(t *testing.T) {
	n := Empty()
	h := HashedFrom(n)
	if h.Digest() != n.Digest() {
		t.Error("HashedFrom should pair the node with its own digest")
	}
	if h.Node() != n {
		t.Error("HashedFrom should retain the original node pointer")
	}
}

func TestReferenceAmbiguity(t *testing.T) {
	// node(blob=[], children=[d]) and node(blob=encode(d), children=[])
	// must not collide: the length-prefixed canonical encoding
	// distinguishes "d bytes of blob" from "d as a single child digest".
	d := digest.Hash([]byte("some content"))

	asChild, err := New(nil, []digest.Digest{d})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	asBlob, err := New(d.ToBytes(), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if asChild.Digest() == asBlob.Digest() {
		t.Error("a digest stored as a child must not collide with the same bytes stored as a blob")
	}
}
