package index

import (
	"fmt"
	"sync"
)

const defaultKeyTreeOrder = 64

// columnIndex is a single secondary column's value->[]RID posting map,
// created on demand via CreateIndex.
type columnIndex struct {
	postings map[int64][]int64
}

// Index is a table's collection of column indexes: the primary key column
// is backed by an ordered BTree so that range scans over it (Sum/SumVersion
// always range over the key column) walk leaves in key order instead of
// scanning every posting, and any other user column may additionally be
// indexed on demand via CreateIndex with a plain hash posting map. Only
// live base RIDs are ever posted; tails are never indexed.
type Index struct {
	mu      sync.RWMutex
	keyCol  int
	keyTree *BTree
	columns map[int]*columnIndex
}

// NewIndex creates an Index with its primary-key column already present
// and indexed uniquely.
func NewIndex(keyCol int) *Index {
	return &Index{
		keyCol:  keyCol,
		keyTree: NewBTree(defaultKeyTreeOrder),
		columns: make(map[int]*columnIndex),
	}
}

// HasColumn reports whether col currently has an index. The primary-key
// column always does.
func (idx *Index) HasColumn(col int) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if col == idx.keyCol {
		return true
	}
	_, ok := idx.columns[col]
	return ok
}

// Locate returns the base RIDs whose latest value on col is v. Returns nil
// if col isn't indexed or v has no postings.
func (idx *Index) Locate(col int, v int64) []int64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if col == idx.keyCol {
		rid, ok := idx.keyTree.Search(v)
		if !ok {
			return nil
		}
		return []int64{rid.(int64)}
	}
	ci, ok := idx.columns[col]
	if !ok {
		return nil
	}
	return append([]int64(nil), ci.postings[v]...)
}

// LocateRange returns the base RIDs for every value in [lo, hi] on col. For
// the primary-key column the result is in ascending key order, via the
// BTree's leaf chain; for a secondary column the order is unspecified.
func (idx *Index) LocateRange(col int, lo, hi int64) []int64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if col == idx.keyCol {
		entries := idx.keyTree.RangeSearch(lo, hi)
		out := make([]int64, 0, len(entries))
		for _, e := range entries {
			out = append(out, e.Value.(int64))
		}
		return out
	}
	ci, ok := idx.columns[col]
	if !ok {
		return nil
	}
	var out []int64
	for v, rids := range ci.postings {
		if v >= lo && v <= hi {
			out = append(out, rids...)
		}
	}
	return out
}

// InsertEntry records rid's value v on col, if col is indexed. The
// primary-key column enforces uniqueness through the BTree's own
// duplicate-key check.
func (idx *Index) InsertEntry(rid int64, col int, v int64) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if col == idx.keyCol {
		if err := idx.keyTree.Insert(v, rid); err != nil {
			return fmt.Errorf("%w: column %d value %d", err, col, v)
		}
		return nil
	}
	ci, ok := idx.columns[col]
	if !ok {
		return nil
	}
	ci.postings[v] = append(ci.postings[v], rid)
	return nil
}

// UpdateEntry moves rid from old's posting list to new's on col. It is a
// no-op for the primary-key column, which is immutable after insert.
func (idx *Index) UpdateEntry(rid int64, col int, oldVal, newVal int64) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if col == idx.keyCol || oldVal == newVal {
		return nil
	}
	ci, ok := idx.columns[col]
	if !ok {
		return nil
	}
	removeRID(ci.postings, oldVal, rid)
	ci.postings[newVal] = append(ci.postings[newVal], rid)
	return nil
}

// DeleteEntry removes rid from v's posting list on col, used both for PK
// removal on logical delete and for general column cleanup.
func (idx *Index) DeleteEntry(rid int64, col int, v int64) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if col == idx.keyCol {
		_ = idx.keyTree.Delete(v)
		return nil
	}
	ci, ok := idx.columns[col]
	if !ok {
		return nil
	}
	removeRID(ci.postings, v, rid)
	return nil
}

// CreateIndex populates a fresh posting map for col from entries (base RID
// -> latest materialized value), failing if col already has one. The
// primary-key column always already has one (its BTree).
func (idx *Index) CreateIndex(col int, entries map[int64]int64) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if col == idx.keyCol {
		return fmt.Errorf("%w: column %d", ErrColumnAlreadyIndexed, col)
	}
	if _, exists := idx.columns[col]; exists {
		return fmt.Errorf("%w: column %d", ErrColumnAlreadyIndexed, col)
	}
	ci := &columnIndex{postings: make(map[int64][]int64, len(entries))}
	for rid, v := range entries {
		ci.postings[v] = append(ci.postings[v], rid)
	}
	idx.columns[col] = ci
	return nil
}

// DropIndex clears col's posting map. The primary-key column can never be
// dropped.
func (idx *Index) DropIndex(col int) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if col == idx.keyCol {
		return ErrCannotDropKeyIndex
	}
	if _, exists := idx.columns[col]; !exists {
		return fmt.Errorf("%w: column %d", ErrColumnNotIndexed, col)
	}
	delete(idx.columns, col)
	return nil
}

func removeRID(postings map[int64][]int64, v, rid int64) {
	rids, exists := postings[v]
	if !exists {
		return
	}
	filtered := rids[:0]
	for _, r := range rids {
		if r != rid {
			filtered = append(filtered, r)
		}
	}
	if len(filtered) == 0 {
		delete(postings, v)
	} else {
		postings[v] = filtered
	}
}
