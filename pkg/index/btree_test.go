package index

import "testing"

// TestBTreeOrderFourSplitScenario reproduces the canonical order-4 example:
// inserting keys 10, 20, 30, 40 in order splits the root leaf once the
// fourth key lands, promoting 30 into a fresh internal root with two
// two-key leaves underneath.
func TestBTreeOrderFourSplitScenario(t *testing.T) {
	bt := NewBTree(4)
	for _, kv := range []struct {
		key int64
		val string
	}{
		{10, "a"}, {20, "b"}, {30, "c"}, {40, "d"},
	} {
		if err := bt.Insert(kv.key, kv.val); err != nil {
			t.Fatalf("insert %d: %v", kv.key, err)
		}
	}

	if got := bt.root.keys; len(got) != 1 || got[0] != 30 {
		t.Fatalf("expected root keys [30], got %v", got)
	}
	if len(bt.root.children) != 2 {
		t.Fatalf("expected root to have 2 children, got %d", len(bt.root.children))
	}

	left, right := bt.root.children[0], bt.root.children[1]
	if !left.isLeaf || !right.isLeaf {
		t.Fatal("expected both children of the root to be leaves")
	}
	if got := left.keys; len(got) != 2 || got[0] != 10 || got[1] != 20 {
		t.Fatalf("expected left leaf keys [10,20], got %v", got)
	}
	if got := right.keys; len(got) != 2 || got[0] != 30 || got[1] != 40 {
		t.Fatalf("expected right leaf keys [30,40], got %v", got)
	}

	inOrder := bt.InOrder()
	wantKeys := []int64{10, 20, 30, 40}
	wantVals := []string{"a", "b", "c", "d"}
	if len(inOrder) != 4 {
		t.Fatalf("expected 4 entries in order, got %d", len(inOrder))
	}
	for i, e := range inOrder {
		if e.Key != wantKeys[i] || e.Value.(string) != wantVals[i] {
			t.Fatalf("entry %d: expected (%d,%s), got (%d,%v)", i, wantKeys[i], wantVals[i], e.Key, e.Value)
		}
	}

	ranged := bt.RangeSearch(15, 30)
	if len(ranged) != 2 {
		t.Fatalf("expected 2 entries in range_search(15,30), got %v", ranged)
	}
	if ranged[0].Key != 20 || ranged[0].Value.(string) != "b" {
		t.Fatalf("expected first ranged entry (20,b), got (%d,%v)", ranged[0].Key, ranged[0].Value)
	}
	if ranged[1].Key != 30 || ranged[1].Value.(string) != "c" {
		t.Fatalf("expected second ranged entry (30,c), got (%d,%v)", ranged[1].Key, ranged[1].Value)
	}
}

// TestBTreeSearchAndDelete exercises the point-lookup path the primary-key
// Index relies on for Locate/DeleteEntry.
func TestBTreeSearchAndDelete(t *testing.T) {
	bt := NewBTree(4)
	if err := bt.Insert(5, int64(100)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := bt.Insert(5, int64(200)); err == nil {
		t.Fatal("expected duplicate key insert to fail")
	}

	v, ok := bt.Search(5)
	if !ok || v.(int64) != 100 {
		t.Fatalf("expected (100,true), got (%v,%v)", v, ok)
	}

	if err := bt.Delete(5); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := bt.Search(5); ok {
		t.Fatal("expected key to be gone after delete")
	}
	if err := bt.Delete(5); err == nil {
		t.Fatal("expected deleting a missing key to fail")
	}
}
