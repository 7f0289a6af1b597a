package index

import "testing"

func TestIndexPrimaryKeyIsUniqueAndIndexedByDefault(t *testing.T) {
	idx := NewIndex(0)
	if !idx.HasColumn(0) {
		t.Fatal("expected primary key column to be indexed by default")
	}
	if err := idx.InsertEntry(1, 0, 100); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := idx.InsertEntry(2, 0, 100); err == nil {
		t.Fatal("expected duplicate primary key value to fail")
	}
}

func TestIndexLocateReturnsPostings(t *testing.T) {
	idx := NewIndex(0)
	idx.InsertEntry(1, 0, 100)
	idx.InsertEntry(2, 0, 200)

	rids := idx.Locate(0, 100)
	if len(rids) != 1 || rids[0] != 1 {
		t.Fatalf("expected [1], got %v", rids)
	}
	if got := idx.Locate(0, 999); got != nil {
		t.Fatalf("expected nil for missing value, got %v", got)
	}
}

func TestIndexNonIndexedColumnIsANoOp(t *testing.T) {
	idx := NewIndex(0)
	if idx.HasColumn(1) {
		t.Fatal("expected column 1 to be unindexed before CreateIndex")
	}
	if err := idx.InsertEntry(1, 1, 50); err != nil {
		t.Fatalf("expected insert on unindexed column to be a silent no-op: %v", err)
	}
	if got := idx.Locate(1, 50); got != nil {
		t.Fatalf("expected Locate on unindexed column to return nil, got %v", got)
	}
}

func TestIndexCreateIndexBackfillsFromEntries(t *testing.T) {
	idx := NewIndex(0)
	entries := map[int64]int64{1: 90, 2: 80, 3: 90}
	if err := idx.CreateIndex(1, entries); err != nil {
		t.Fatalf("create index: %v", err)
	}

	rids := idx.Locate(1, 90)
	if len(rids) != 2 {
		t.Fatalf("expected 2 postings for value 90, got %v", rids)
	}

	if err := idx.CreateIndex(1, entries); err == nil {
		t.Fatal("expected re-creating an existing index to fail")
	}
}

func TestIndexUpdateEntryMovesRIDBetweenPostings(t *testing.T) {
	idx := NewIndex(0)
	idx.CreateIndex(1, map[int64]int64{1: 90})

	if err := idx.UpdateEntry(1, 1, 90, 95); err != nil {
		t.Fatalf("update entry: %v", err)
	}
	if got := idx.Locate(1, 90); got != nil {
		t.Fatalf("expected old value to be cleared, got %v", got)
	}
	if got := idx.Locate(1, 95); len(got) != 1 || got[0] != 1 {
		t.Fatalf("expected rid 1 under new value 95, got %v", got)
	}
}

func TestIndexUpdateEntryIsNoOpForPrimaryKey(t *testing.T) {
	idx := NewIndex(0)
	idx.InsertEntry(1, 0, 100)
	if err := idx.UpdateEntry(1, 0, 100, 200); err != nil {
		t.Fatalf("update entry on key column: %v", err)
	}
	if got := idx.Locate(0, 100); len(got) != 1 {
		t.Fatalf("expected primary key posting to be untouched, got %v", got)
	}
}

func TestIndexDeleteEntryRemovesRID(t *testing.T) {
	idx := NewIndex(0)
	idx.InsertEntry(1, 0, 100)
	if err := idx.DeleteEntry(1, 0, 100); err != nil {
		t.Fatalf("delete entry: %v", err)
	}
	if got := idx.Locate(0, 100); got != nil {
		t.Fatalf("expected posting list to be empty, got %v", got)
	}
}

func TestIndexLocateRangeSpansMultipleValues(t *testing.T) {
	idx := NewIndex(0)
	for i := int64(1); i <= 5; i++ {
		idx.InsertEntry(i, 0, i*10)
	}
	rids := idx.LocateRange(0, 20, 40)
	if len(rids) != 3 {
		t.Fatalf("expected 3 rids in range [20,40], got %v", rids)
	}
}

func TestIndexDropIndexRejectsPrimaryKey(t *testing.T) {
	idx := NewIndex(0)
	if err := idx.DropIndex(0); err == nil {
		t.Fatal("expected dropping the primary key index to fail")
	}
}

func TestIndexDropIndexRemovesColumn(t *testing.T) {
	idx := NewIndex(0)
	idx.CreateIndex(1, map[int64]int64{1: 10})
	if err := idx.DropIndex(1); err != nil {
		t.Fatalf("drop index: %v", err)
	}
	if idx.HasColumn(1) {
		t.Fatal("expected column 1 to be unindexed after DropIndex")
	}
	if err := idx.DropIndex(1); err == nil {
		t.Fatal("expected dropping an already-dropped index to fail")
	}
}
