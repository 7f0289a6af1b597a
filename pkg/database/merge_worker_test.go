package database

import "testing"

func TestMergeRangeFoldsTailChainIntoFreshBaseGeneration(t *testing.T) {
	tbl := newTestTable(t, 2, 0)
	if err := tbl.Insert(nil, []int64{1, 100}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	for _, v := range []int64{110, 120, 130} {
		val := v
		if err := tbl.Update(nil, 1, []*int64{nil, &val}); err != nil {
			t.Fatalf("update to %d: %v", v, err)
		}
	}

	watermark, err := tbl.mergeRange(0)
	if err != nil {
		t.Fatalf("merge range: %v", err)
	}
	if watermark == 0 {
		t.Fatal("expected a nonzero watermark after folding tail updates")
	}

	rows, err := tbl.Select(nil, 1, 0, nil)
	if err != nil {
		t.Fatalf("select after merge: %v", err)
	}
	if got := rows[0].Columns[1]; got != 130 {
		t.Fatalf("expected merged row to read latest value 130, got %d", got)
	}

	tbl.mu.RLock()
	locs := tbl.directory[0]
	indirection, err := tbl.readCellLocked(locs[ColIndirection])
	tbl.mu.RUnlock()
	if err != nil {
		t.Fatalf("read indirection: %v", err)
	}
	if indirection != 0 {
		t.Fatalf("expected merged base row to start a fresh chain (indirection 0), got %d", indirection)
	}
}

func TestMergeRangeSkipsDeletedRows(t *testing.T) {
	tbl := newTestTable(t, 2, 0)
	if err := tbl.Insert(nil, []int64{1, 10}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := tbl.Insert(nil, []int64{2, 20}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := tbl.Delete(nil, 1); err != nil {
		t.Fatalf("delete: %v", err)
	}

	val := int64(25)
	if err := tbl.Update(nil, 2, []*int64{nil, &val}); err != nil {
		t.Fatalf("update: %v", err)
	}

	watermark, err := tbl.mergeRange(0)
	if err != nil {
		t.Fatalf("merge range: %v", err)
	}
	if watermark == 0 {
		t.Fatal("expected a nonzero watermark")
	}

	tbl.mu.RLock()
	deletedPageNo := tbl.directory[0][ColRID].Page.PageNo
	tbl.mu.RUnlock()
	if deletedPageNo != 0 {
		t.Fatalf("expected deleted row to stay on its original base page, got page %d", deletedPageNo)
	}

	rows, err := tbl.Select(nil, 2, 0, nil)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(rows) != 1 || rows[0].Columns[1] != 25 {
		t.Fatalf("expected surviving row updated to 25, got %v", rows)
	}
}

func TestMaybeEnqueueMergeRespectsThreshold(t *testing.T) {
	tbl := newTestTable(t, 2, 0)
	mw := NewMergeWorker(tbl, 3)
	defer mw.Shutdown()
	tbl.AttachMergeWorker(mw)

	if err := tbl.Insert(nil, []int64{1, 1}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	for i := int64(2); i <= 4; i++ {
		if err := tbl.Update(nil, 1, []*int64{nil, &i}); err != nil {
			t.Fatalf("update: %v", err)
		}
		if i < 4 {
			if _, queued := mw.queue.Pop(); queued {
				t.Fatalf("range queued at tail depth %d, below threshold 3", i-1)
			}
		}
	}

	rows, err := tbl.Select(nil, 1, 0, nil)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if got := rows[0].Columns[1]; got != 4 {
		t.Fatalf("expected latest value 4 regardless of merge timing, got %d", got)
	}
}
