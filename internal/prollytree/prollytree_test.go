package prollytree

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/mamazu/astraea/internal/digest"
	"github.com/mamazu/astraea/internal/treestore"
	"github.com/mamazu/astraea/internal/treestore/memstore"
)

func keyFor(i int) []byte {
	return []byte(fmt.Sprintf("key-%04d", i))
}

func buildTree(t *testing.T, store treestore.StoreLoader, order []int, predicate SplitPredicate) digest.Digest {
	t.Helper()
	root, err := NewTree(store)
	if err != nil {
		t.Fatalf("NewTree failed: %v", err)
	}
	for _, i := range order {
		root, err = Insert(store, store, root, keyFor(i), InlineValue([]byte(fmt.Sprintf("value-%d", i))), predicate)
		if err != nil {
			t.Fatalf("Insert(%d) failed: %v", i, err)
		}
	}
	return root
}

func TestShapeIsIndependentOfInsertionOrder(t *testing.T) {
	predicate := NewHashSplitPredicate(8)

	ordered := make([]int, 200)
	for i := range ordered {
		ordered[i] = i
	}
	shuffled := append([]int(nil), ordered...)
	rand.New(rand.NewSource(1)).Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	storeA := memstore.New()
	rootA := buildTree(t, storeA, ordered, predicate)

	storeB := memstore.New()
	rootB := buildTree(t, storeB, shuffled, predicate)

	if rootA != rootB {
		t.Fatalf("root digests differ between insertion orders: %s vs %s", rootA, rootB)
	}

	countA, err := Count(storeA, rootA)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if countA != 200 {
		t.Fatalf("Count = %d, want 200", countA)
	}
}

func TestFindAfterInsert(t *testing.T) {
	store := memstore.New()
	predicate := NewHashSplitPredicate(8)
	root := buildTree(t, store, []int{5, 1, 9, 3, 7, 2, 8, 0, 6, 4}, predicate)

	for i := 0; i < 10; i++ {
		value, ok, err := Find(store, root, keyFor(i))
		if err != nil {
			t.Fatalf("Find(%d) failed: %v", i, err)
		}
		if !ok {
			t.Fatalf("Find(%d): key not found", i)
		}
		want := fmt.Sprintf("value-%d", i)
		if string(value.Inline) != want {
			t.Errorf("Find(%d) = %q, want %q", i, value.Inline, want)
		}
	}

	_, ok, err := Find(store, root, []byte("key-9999"))
	if err != nil {
		t.Fatalf("Find of missing key failed: %v", err)
	}
	if ok {
		t.Error("Find of missing key returned true")
	}
}

func TestInsertReplacesExistingKey(t *testing.T) {
	store := memstore.New()
	predicate := NewHashSplitPredicate(8)
	root, err := NewTree(store)
	if err != nil {
		t.Fatalf("NewTree failed: %v", err)
	}
	root, err = Insert(store, store, root, keyFor(1), InlineValue([]byte("first")), predicate)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	root, err = Insert(store, store, root, keyFor(1), InlineValue([]byte("second")), predicate)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	count, err := Count(store, root)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("Count = %d, want 1 after replacing a single key", count)
	}

	value, ok, err := Find(store, root, keyFor(1))
	if err != nil || !ok {
		t.Fatalf("Find failed: ok=%v err=%v", ok, err)
	}
	want := InlineValue([]byte("second"))
	if diff := cmp.Diff(want, value); diff != "" {
		t.Errorf("Find returned unexpected value (-want +got):\n%s", diff)
	}
}

func TestBoundaryCounts(t *testing.T) {
	predicate := NewHashSplitPredicate(4)
	for _, n := range []int{0, 1, 4, 5, 40} {
		n := n
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			store := memstore.New()
			order := make([]int, n)
			for i := range order {
				order[i] = i
			}
			root := buildTree(t, store, order, predicate)
			count, err := Count(store, root)
			if err != nil {
				t.Fatalf("Count failed: %v", err)
			}
			if count != uint64(n) {
				t.Errorf("Count = %d, want %d", count, n)
			}
			result, err := VerifyIntegrity(store, root, nil)
			if err != nil {
				t.Fatalf("VerifyIntegrity failed: %v", err)
			}
			if result.Status != IntegrityValid {
				t.Errorf("VerifyIntegrity = %v, want valid", result)
			}
		})
	}
}

func TestVerifyIntegrityDetectsCorruption(t *testing.T) {
	store := memstore.New()

	// A leaf stored with its entries deliberately out of order: this
	// could never result from Insert, but it is byte-representable, and
	// VerifyIntegrity must still catch it.
	badLeaf, err := storeLeaf(store, []Entry{
		{Key: keyFor(5), Value: InlineValue([]byte("five"))},
		{Key: keyFor(1), Value: InlineValue([]byte("one"))},
	})
	if err != nil {
		t.Fatalf("storeLeaf failed: %v", err)
	}

	result, err := VerifyIntegrity(store, badLeaf, nil)
	if err != nil {
		t.Fatalf("VerifyIntegrity failed: %v", err)
	}
	if result.Status != IntegrityCorrupted {
		t.Fatalf("VerifyIntegrity = %v, want corrupted", result)
	}
}

func TestVerifyIntegrityDetectsSeparatorMismatch(t *testing.T) {
	store := memstore.New()

	leftLeaf, err := storeLeaf(store, []Entry{{Key: keyFor(1), Value: InlineValue([]byte("one"))}})
	if err != nil {
		t.Fatalf("storeLeaf failed: %v", err)
	}
	rightLeaf, err := storeLeaf(store, []Entry{{Key: keyFor(9), Value: InlineValue([]byte("nine"))}})
	if err != nil {
		t.Fatalf("storeLeaf failed: %v", err)
	}

	// The separator should equal the left child's rightmost key
	// (key-0001), not an unrelated value.
	root, err := storeInternal(store, [][]byte{keyFor(3)}, []digest.Digest{leftLeaf, rightLeaf})
	if err != nil {
		t.Fatalf("storeInternal failed: %v", err)
	}

	result, err := VerifyIntegrity(store, root, nil)
	if err != nil {
		t.Fatalf("VerifyIntegrity failed: %v", err)
	}
	if result.Status != IntegrityCorrupted {
		t.Fatalf("VerifyIntegrity = %v, want corrupted", result)
	}
}

func TestEditableNodeSequentialInsertMatchesFunctionalSurface(t *testing.T) {
	predicate := NewHashSplitPredicate(8)

	storeFn := memstore.New()
	var rootFn digest.Digest
	var err error
	rootFn, err = NewTree(storeFn)
	if err != nil {
		t.Fatalf("NewTree failed: %v", err)
	}
	for i := 0; i < 150; i++ {
		rootFn, err = Insert(storeFn, storeFn, rootFn, keyFor(i), InlineValue([]byte(fmt.Sprintf("v%d", i))), predicate)
		if err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	storeEd := memstore.New()
	node := NewEditableNode()
	for i := 0; i < 150; i++ {
		if err := node.Insert(keyFor(i), InlineValue([]byte(fmt.Sprintf("v%d", i))), storeEd, predicate); err != nil {
			t.Fatalf("EditableNode.Insert failed: %v", err)
		}
	}
	rootEd, err := node.Save(storeEd)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if rootFn != rootEd {
		t.Fatalf("EditableNode root %s differs from functional-surface root %s", rootEd, rootFn)
	}

	count, err := node.Count(storeEd)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 150 {
		t.Fatalf("Count = %d, want 150", count)
	}

	result, err := node.VerifyIntegrity(storeEd, keyFor(149))
	if err != nil {
		t.Fatalf("VerifyIntegrity failed: %v", err)
	}
	if result.Status != IntegrityValid {
		t.Fatalf("VerifyIntegrity = %v, want valid", result)
	}
}

func TestReferenceValueRoundTrip(t *testing.T) {
	store := memstore.New()
	predicate := NewHashSplitPredicate(8)

	target := digest.Hash([]byte("directory fan-out target"))

	root, err := NewTree(store)
	if err != nil {
		t.Fatalf("NewTree failed: %v", err)
	}
	root, err = Insert(store, store, root, keyFor(1), ReferenceValue(target), predicate)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	root, err = Insert(store, store, root, keyFor(2), InlineValue([]byte("plain leaf value")), predicate)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	value, ok, err := Find(store, root, keyFor(1))
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if !ok {
		t.Fatal("Find: reference entry not found")
	}
	want := ReferenceValue(target)
	if diff := cmp.Diff(want, value); diff != "" {
		t.Errorf("Find returned unexpected value (-want +got):\n%s", diff)
	}

	result, err := VerifyIntegrity(store, root, nil)
	if err != nil {
		t.Fatalf("VerifyIntegrity failed: %v", err)
	}
	if result.Status != IntegrityValid {
		t.Errorf("VerifyIntegrity = %v, want valid", result)
	}
}

func TestEditableNodeFindReflectsUnsavedEdits(t *testing.T) {
	store := memstore.New()
	predicate := NewHashSplitPredicate(8)
	node := NewEditableNode()

	if err := node.Insert(keyFor(1), InlineValue([]byte("one")), store, predicate); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	value, ok, err := node.Find(keyFor(1), store)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if !ok {
		t.Fatal("Find: key not found after insert")
	}
	if string(value.Inline) != "one" {
		t.Errorf("Find = %q, want %q", value.Inline, "one")
	}

	_, ok, err = node.Find(keyFor(2), store)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if ok {
		t.Error("Find of never-inserted key returned true")
	}
}
