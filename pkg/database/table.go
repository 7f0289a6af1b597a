package database

import (
	"fmt"
	"sync"
	"time"

	"github.com/lstore/lstore/pkg/index"
	"github.com/lstore/lstore/pkg/mvcc"
	"github.com/lstore/lstore/pkg/storage"
)

// cellLoc pins one physical-column cell to the page and slot holding it.
type cellLoc struct {
	Page storage.PageID
	Slot int
}

// Record is a materialized row returned by Select/SelectVersion: its rid
// plus whichever user columns the caller's projection mask selected.
type Record struct {
	RID     int64
	Columns []int64
}

// Table is a column-oriented, version-chained collection of fixed-width
// int64 rows. Every physical column (MetaColumns version-chain columns
// followed by the user schema) lives in its own stream of fixed-capacity
// pages; a row's cells across all physical columns always share a page
// number and slot. tbl.mu is the table's single latch: it guards the
// directory, the row counters, the tombstone set, and the merge
// generation table. It does not guard page contents, which the buffer
// pool's own pin/dirty bookkeeping protects.
type Table struct {
	name       string
	numColumns int
	keyIndex   int
	config     *Config

	bufferPool *storage.BufferPool
	lockMgr    *mvcc.LockManager
	index      *index.Index

	mu               sync.RWMutex
	baseCount        int64
	tailCount        int64
	directory        map[int64][]cellLoc
	deleted          map[int64]struct{}
	mergeGenerations map[int]int
	merge            *MergeWorker
}

// AttachMergeWorker wires mw to receive post-update merge candidates.
// Called once by the owning Database after construction.
func (tbl *Table) AttachMergeWorker(mw *MergeWorker) {
	tbl.mu.Lock()
	defer tbl.mu.Unlock()
	tbl.merge = mw
}

// NewTable creates an empty table. lockMgr is this table's own lock
// manager: RIDs are table-scoped, so locks are scoped the same way.
func NewTable(name string, numColumns, keyIndex int, bufferPool *storage.BufferPool, config *Config) *Table {
	return &Table{
		name:             name,
		numColumns:       numColumns,
		keyIndex:         keyIndex,
		config:           config,
		bufferPool:       bufferPool,
		lockMgr:          mvcc.NewLockManager(),
		index:            index.NewIndex(keyIndex),
		directory:        make(map[int64][]cellLoc),
		deleted:          make(map[int64]struct{}),
		mergeGenerations: make(map[int]int),
	}
}

// Name returns the table's name.
func (tbl *Table) Name() string { return tbl.name }

// NumColumns returns the table's user column count.
func (tbl *Table) NumColumns() int { return tbl.numColumns }

// KeyIndex returns the user column index used as the primary key.
func (tbl *Table) KeyIndex() int { return tbl.keyIndex }

func currentMillis() int64 { return time.Now().UnixMilli() }

func physCol(userCol int) int { return MetaColumns + userCol }

// Insert appends a fresh base row. The primary-key column must be unique
// among live rows.
func (tbl *Table) Insert(txn *mvcc.Transaction, values []int64) error {
	if len(values) != tbl.numColumns {
		return fmt.Errorf("%w: want %d got %d", ErrInvalidColumnCount, tbl.numColumns, len(values))
	}

	tbl.mu.Lock()
	defer tbl.mu.Unlock()

	if existing := tbl.index.Locate(tbl.keyIndex, values[tbl.keyIndex]); len(existing) > 0 {
		return fmt.Errorf("%w: value %d", ErrDuplicateKey, values[tbl.keyIndex])
	}

	rid := tbl.baseCount
	pageNo := int(rid / int64(tbl.config.RecordsPerPage))

	row := make([]int64, MetaColumns+tbl.numColumns)
	row[ColIndirection] = 0
	row[ColRID] = rid
	row[ColTimestamp] = currentMillis()
	row[ColSchema] = 0
	copy(row[MetaColumns:], values)

	locs := make([]cellLoc, len(row))
	for col, v := range row {
		loc, err := tbl.appendCellLocked(col, pageNo, true, v)
		if err != nil {
			return fmt.Errorf("insert: %w", err)
		}
		locs[col] = loc
	}
	tbl.directory[rid] = locs
	tbl.baseCount++

	if err := tbl.index.InsertEntry(rid, tbl.keyIndex, values[tbl.keyIndex]); err != nil {
		return fmt.Errorf("insert: %w", err)
	}
	for col := 0; col < tbl.numColumns; col++ {
		if col == tbl.keyIndex {
			continue
		}
		_ = tbl.index.InsertEntry(rid, col, values[col])
	}

	if txn != nil {
		txn.LogInsert(tbl, rid)
	}
	return nil
}

// Update changes the columns named in updates (nil entries leave a column
// unchanged) for the row whose primary-key value is key, appending a
// cumulative tail record. A no-op diff still succeeds without writing a
// tail.
func (tbl *Table) Update(txn *mvcc.Transaction, key int64, updates []*int64) error {
	if len(updates) != tbl.numColumns {
		return fmt.Errorf("%w: want %d got %d", ErrInvalidColumnCount, tbl.numColumns, len(updates))
	}

	rid, err := tbl.locateOneLive(key)
	if err != nil {
		return err
	}

	if err := tbl.acquireExclusive(txn, rid); err != nil {
		return err
	}

	tbl.mu.Lock()
	defer tbl.mu.Unlock()

	locs, ok := tbl.directory[rid]
	if !ok {
		return ErrRowNotFound
	}

	currentVals, err := tbl.materializeLatestLocked(rid)
	if err != nil {
		return err
	}
	prevIndirection, err := tbl.readCellLocked(locs[ColIndirection])
	if err != nil {
		return err
	}

	newVals := append([]int64(nil), currentVals...)
	var bitmask int64
	for col, u := range updates {
		if u == nil {
			continue
		}
		if *u != currentVals[col] {
			newVals[col] = *u
			bitmask |= 1 << uint(col)
		}
	}
	if bitmask == 0 {
		return nil
	}

	tailRID := tbl.config.TailRIDStart + tbl.tailCount
	pageNo := int(tbl.tailCount / int64(tbl.config.RecordsPerPage))

	row := make([]int64, MetaColumns+tbl.numColumns)
	row[ColIndirection] = prevIndirection
	row[ColRID] = tailRID
	row[ColTimestamp] = currentMillis()
	row[ColSchema] = bitmask
	copy(row[MetaColumns:], newVals)

	tailLocs := make([]cellLoc, len(row))
	for col, v := range row {
		loc, err := tbl.appendCellLocked(col, pageNo, false, v)
		if err != nil {
			return fmt.Errorf("update: %w", err)
		}
		tailLocs[col] = loc
	}
	tbl.directory[tailRID] = tailLocs

	if err := tbl.overwriteCellLocked(locs[ColIndirection], tailRID); err != nil {
		return fmt.Errorf("update: %w", err)
	}

	for col := 0; col < tbl.numColumns; col++ {
		if col == tbl.keyIndex {
			continue
		}
		if bitmask&(1<<uint(col)) != 0 {
			tbl.index.UpdateEntry(rid, col, currentVals[col], newVals[col])
		}
	}
	tbl.tailCount++

	if txn != nil {
		txn.LogUpdate(tbl, rid, prevIndirection, currentVals)
	}

	if tbl.merge != nil {
		depth := tbl.tailChainDepthLocked(tailRID)
		basePageNo := int(rid / int64(tbl.config.RecordsPerPage))
		tbl.merge.MaybeEnqueueMerge(basePageNo, depth)
	}
	return nil
}

// tailChainDepthLocked counts the tail records reachable from headTailRID.
// Callers must hold tbl.mu.
func (tbl *Table) tailChainDepthLocked(headTailRID int64) int {
	depth := 0
	cur := headTailRID
	for cur != 0 {
		depth++
		locs, ok := tbl.directory[cur]
		if !ok {
			break
		}
		prev, err := tbl.readCellLocked(locs[ColIndirection])
		if err != nil {
			break
		}
		cur = prev
	}
	return depth
}

// Increment adds one to column col of the row whose primary-key value is
// key.
func (tbl *Table) Increment(txn *mvcc.Transaction, key int64, col int) error {
	if col < 0 || col >= tbl.numColumns {
		return ErrInvalidColumn
	}
	rid, err := tbl.locateOneLive(key)
	if err != nil {
		return err
	}

	tbl.mu.RLock()
	vals, err := tbl.materializeLatestLocked(rid)
	tbl.mu.RUnlock()
	if err != nil {
		return err
	}

	updates := make([]*int64, tbl.numColumns)
	next := vals[col] + 1
	updates[col] = &next
	return tbl.Update(txn, key, updates)
}

// Delete logically removes the row whose primary-key value is key. Base
// and tail pages are left untouched; the row is simply tombstoned and
// dropped from the primary-key index.
func (tbl *Table) Delete(txn *mvcc.Transaction, key int64) error {
	rid, err := tbl.locateOneLive(key)
	if err != nil {
		return err
	}

	if err := tbl.acquireExclusive(txn, rid); err != nil {
		return err
	}

	tbl.mu.Lock()
	tbl.deleted[rid] = struct{}{}
	_ = tbl.index.DeleteEntry(rid, tbl.keyIndex, key)
	tbl.mu.Unlock()

	if txn != nil {
		txn.LogDelete(tbl, rid)
	}
	return nil
}

// Select returns the latest version of every live row whose column keyCol
// equals key, projected through mask (nil mask returns every user column).
// Rows are found through the index: keyCol must be the primary-key column
// or a column indexed with CreateIndex, and any other column yields no rows.
func (tbl *Table) Select(txn *mvcc.Transaction, key int64, keyCol int, mask []bool) ([]Record, error) {
	if keyCol < 0 || keyCol >= tbl.numColumns {
		return nil, ErrInvalidColumn
	}
	rids := tbl.index.Locate(keyCol, key)
	return tbl.materializeRIDs(txn, rids, func(rid int64) ([]int64, error) {
		tbl.mu.RLock()
		defer tbl.mu.RUnlock()
		return tbl.materializeLatestLocked(rid)
	}, mask)
}

// SelectVersion is Select at a relative version: 0 is the latest row, -k
// steps back k tail updates, clamped at the base row.
func (tbl *Table) SelectVersion(txn *mvcc.Transaction, key int64, keyCol int, mask []bool, relativeVersion int) ([]Record, error) {
	if keyCol < 0 || keyCol >= tbl.numColumns {
		return nil, ErrInvalidColumn
	}
	rids := tbl.index.Locate(keyCol, key)
	return tbl.materializeRIDs(txn, rids, func(rid int64) ([]int64, error) {
		tbl.mu.RLock()
		defer tbl.mu.RUnlock()
		return tbl.composeVersionLocked(rid, relativeVersion)
	}, mask)
}

// Sum adds column col across every live row whose primary-key value falls
// in [lo, hi].
func (tbl *Table) Sum(txn *mvcc.Transaction, lo, hi int64, col int) (int64, error) {
	if col < 0 || col >= tbl.numColumns {
		return 0, ErrInvalidColumn
	}
	rids := tbl.index.LocateRange(tbl.keyIndex, lo, hi)
	var sum int64
	for _, rid := range rids {
		tbl.mu.RLock()
		_, isDeleted := tbl.deleted[rid]
		tbl.mu.RUnlock()
		if isDeleted {
			continue
		}
		if err := tbl.acquireShared(txn, rid); err != nil {
			return 0, err
		}
		tbl.mu.RLock()
		vals, err := tbl.materializeLatestLocked(rid)
		tbl.mu.RUnlock()
		if err != nil {
			continue
		}
		sum += vals[col]
	}
	return sum, nil
}

// SumVersion is Sum at a relative version, identical semantics to
// SelectVersion.
func (tbl *Table) SumVersion(txn *mvcc.Transaction, lo, hi int64, col int, relativeVersion int) (int64, error) {
	if col < 0 || col >= tbl.numColumns {
		return 0, ErrInvalidColumn
	}
	rids := tbl.index.LocateRange(tbl.keyIndex, lo, hi)
	var sum int64
	for _, rid := range rids {
		tbl.mu.RLock()
		_, isDeleted := tbl.deleted[rid]
		tbl.mu.RUnlock()
		if isDeleted {
			continue
		}
		if err := tbl.acquireShared(txn, rid); err != nil {
			return 0, err
		}
		tbl.mu.RLock()
		vals, err := tbl.composeVersionLocked(rid, relativeVersion)
		tbl.mu.RUnlock()
		if err != nil {
			continue
		}
		sum += vals[col]
	}
	return sum, nil
}

// CreateIndex builds a posting map for col from every live row's current
// value.
func (tbl *Table) CreateIndex(col int) error {
	if col < 0 || col >= tbl.numColumns {
		return ErrInvalidColumn
	}
	tbl.mu.Lock()
	defer tbl.mu.Unlock()

	entries := make(map[int64]int64)
	for rid := range tbl.directory {
		if rid >= tbl.config.TailRIDStart {
			continue
		}
		if _, isDeleted := tbl.deleted[rid]; isDeleted {
			continue
		}
		vals, err := tbl.materializeLatestLocked(rid)
		if err != nil {
			continue
		}
		entries[rid] = vals[col]
	}
	return tbl.index.CreateIndex(col, entries)
}

// DropIndex removes col's posting map. The primary-key column can never
// be dropped.
func (tbl *Table) DropIndex(col int) error {
	tbl.mu.Lock()
	defer tbl.mu.Unlock()
	return tbl.index.DropIndex(col)
}

// Recover rebuilds the directory, row counters, and primary-key index by
// scanning every page file belonging to this table. It assumes every base
// RID found on disk is live: the tombstone set is in-memory only and does
// not survive a restart, matching the engine's no-durability-guarantee
// scope.
func (tbl *Table) Recover(pageStore *storage.PageStore) error {
	tbl.mu.Lock()
	defer tbl.mu.Unlock()

	ids, err := pageStore.ListPageFiles(tbl.name)
	if err != nil {
		return fmt.Errorf("recover %s: %w", tbl.name, err)
	}

	type stripeKey struct {
		PageNo int
		IsBase bool
	}
	ridPages := map[stripeKey]storage.PageID{}
	for _, id := range ids {
		if id.Column == ColRID {
			ridPages[stripeKey{id.PageNo, id.IsBase}] = id
		}
	}

	tbl.directory = make(map[int64][]cellLoc)
	tbl.deleted = make(map[int64]struct{})
	var maxBase int64 = -1
	var maxTailOffset int64 = -1

	for sk, pid := range ridPages {
		page, err := pageStore.LoadPage(pid)
		if err != nil {
			return fmt.Errorf("recover %s: load %s: %w", tbl.name, pid, err)
		}
		for slot := 0; slot < page.NumRecords(); slot++ {
			ridVal, err := page.Read(slot)
			if err != nil {
				return fmt.Errorf("recover %s: %w", tbl.name, err)
			}
			locs := make([]cellLoc, MetaColumns+tbl.numColumns)
			for col := range locs {
				locs[col] = cellLoc{Page: storage.NewPageID(tbl.name, col, sk.PageNo, sk.IsBase), Slot: slot}
			}
			tbl.directory[ridVal] = locs
			if sk.IsBase {
				if ridVal > maxBase {
					maxBase = ridVal
				}
			} else if offset := ridVal - tbl.config.TailRIDStart; offset > maxTailOffset {
				maxTailOffset = offset
			}
		}
	}

	tbl.baseCount = maxBase + 1
	tbl.tailCount = maxTailOffset + 1

	tbl.index = index.NewIndex(tbl.keyIndex)
	for rid := range tbl.directory {
		if rid >= tbl.config.TailRIDStart {
			continue
		}
		vals, err := tbl.materializeLatestLocked(rid)
		if err != nil {
			continue
		}
		_ = tbl.index.InsertEntry(rid, tbl.keyIndex, vals[tbl.keyIndex])
	}
	return nil
}

// UndoInsert implements mvcc.RollbackTarget.
func (tbl *Table) UndoInsert(rid int64) error {
	tbl.mu.Lock()
	defer tbl.mu.Unlock()

	vals, err := tbl.materializeLatestLocked(rid)
	if err == nil {
		tbl.index.DeleteEntry(rid, tbl.keyIndex, vals[tbl.keyIndex])
		for col := 0; col < tbl.numColumns; col++ {
			if col != tbl.keyIndex {
				tbl.index.DeleteEntry(rid, col, vals[col])
			}
		}
	}
	tbl.deleted[rid] = struct{}{}
	return nil
}

// UndoUpdate implements mvcc.RollbackTarget.
func (tbl *Table) UndoUpdate(rid int64, prevIndirection int64, prevUserValues []int64) error {
	tbl.mu.Lock()
	defer tbl.mu.Unlock()

	currentVals, err := tbl.materializeLatestLocked(rid)
	if err != nil {
		return err
	}

	locs := tbl.directory[rid]
	if err := tbl.overwriteCellLocked(locs[ColIndirection], prevIndirection); err != nil {
		return err
	}

	for col := 0; col < tbl.numColumns; col++ {
		if col == tbl.keyIndex {
			continue
		}
		if currentVals[col] != prevUserValues[col] {
			tbl.index.UpdateEntry(rid, col, currentVals[col], prevUserValues[col])
		}
	}
	return nil
}

// UndoDelete implements mvcc.RollbackTarget.
func (tbl *Table) UndoDelete(rid int64) error {
	tbl.mu.Lock()
	defer tbl.mu.Unlock()

	delete(tbl.deleted, rid)
	vals, err := tbl.materializeLatestLocked(rid)
	if err != nil {
		return err
	}
	return tbl.index.InsertEntry(rid, tbl.keyIndex, vals[tbl.keyIndex])
}

// locateOneLive resolves key through the primary-key index and rejects a
// tombstoned row.
func (tbl *Table) locateOneLive(key int64) (int64, error) {
	rids := tbl.index.Locate(tbl.keyIndex, key)
	if len(rids) == 0 {
		return 0, ErrRowNotFound
	}
	rid := rids[0]
	tbl.mu.RLock()
	_, isDeleted := tbl.deleted[rid]
	tbl.mu.RUnlock()
	if isDeleted {
		return 0, ErrRowDeleted
	}
	return rid, nil
}

func (tbl *Table) acquireExclusive(txn *mvcc.Transaction, rid int64) error {
	if txn == nil {
		return nil
	}
	txn.Track(tbl.lockMgr)
	return tbl.lockMgr.AcquireExclusive(txn.ID(), rid)
}

func (tbl *Table) acquireShared(txn *mvcc.Transaction, rid int64) error {
	if txn == nil {
		return nil
	}
	txn.Track(tbl.lockMgr)
	return tbl.lockMgr.AcquireShared(txn.ID(), rid)
}

func (tbl *Table) materializeRIDs(txn *mvcc.Transaction, rids []int64, read func(int64) ([]int64, error), mask []bool) ([]Record, error) {
	var out []Record
	for _, rid := range rids {
		tbl.mu.RLock()
		_, isDeleted := tbl.deleted[rid]
		tbl.mu.RUnlock()
		if isDeleted {
			continue
		}
		if err := tbl.acquireShared(txn, rid); err != nil {
			return nil, err
		}
		vals, err := read(rid)
		if err != nil {
			continue
		}
		out = append(out, Record{RID: rid, Columns: project(vals, mask)})
	}
	return out, nil
}

func project(vals []int64, mask []bool) []int64 {
	if mask == nil {
		return append([]int64(nil), vals...)
	}
	out := make([]int64, 0, len(vals))
	for i, v := range vals {
		if i < len(mask) && mask[i] {
			out = append(out, v)
		}
	}
	return out
}

// materializeLatestLocked reads the newest user-column snapshot for rid: a
// single page read when a tail exists, since tails are cumulative.
// Callers must hold tbl.mu (read or write).
func (tbl *Table) materializeLatestLocked(rid int64) ([]int64, error) {
	locs, ok := tbl.directory[rid]
	if !ok {
		return nil, ErrRowNotFound
	}
	indirection, err := tbl.readCellLocked(locs[ColIndirection])
	if err != nil {
		return nil, err
	}
	if indirection == 0 {
		return tbl.readUserValuesLocked(locs)
	}
	tailLocs, ok := tbl.directory[indirection]
	if !ok {
		return nil, fmt.Errorf("%w: tail rid %d missing from directory", ErrInvariantViolation, indirection)
	}
	return tbl.readUserValuesLocked(tailLocs)
}

// composeVersionLocked walks the tail chain from the newest version back
// to rv = max(0, -relativeVersion) steps before it, then continues
// merging older tails' changed columns into a scaffold seeded from the
// base row until every column is filled or the chain is exhausted.
// Callers must hold tbl.mu (read or write).
func (tbl *Table) composeVersionLocked(rid int64, relativeVersion int) ([]int64, error) {
	locs, ok := tbl.directory[rid]
	if !ok {
		return nil, ErrRowNotFound
	}
	baseVals, err := tbl.readUserValuesLocked(locs)
	if err != nil {
		return nil, err
	}
	head, err := tbl.readCellLocked(locs[ColIndirection])
	if err != nil {
		return nil, err
	}

	type tailInfo struct {
		schema int64
		values []int64
	}
	var chain []tailInfo
	cur := head
	for cur != 0 {
		tLocs, ok := tbl.directory[cur]
		if !ok {
			return nil, fmt.Errorf("%w: tail rid %d missing from directory", ErrInvariantViolation, cur)
		}
		schema, err := tbl.readCellLocked(tLocs[ColSchema])
		if err != nil {
			return nil, err
		}
		vals, err := tbl.readUserValuesLocked(tLocs)
		if err != nil {
			return nil, err
		}
		chain = append(chain, tailInfo{schema: schema, values: vals})
		prev, err := tbl.readCellLocked(tLocs[ColIndirection])
		if err != nil {
			return nil, err
		}
		cur = prev
	}

	rv := -relativeVersion
	if rv < 0 {
		rv = 0
	}
	if rv >= len(chain) {
		return baseVals, nil
	}

	scaffold := append([]int64(nil), baseVals...)
	filled := make([]bool, tbl.numColumns)
	remaining := tbl.numColumns
	for idx := rv; idx < len(chain) && remaining > 0; idx++ {
		t := chain[idx]
		for col := 0; col < tbl.numColumns; col++ {
			if filled[col] || t.schema&(1<<uint(col)) == 0 {
				continue
			}
			scaffold[col] = t.values[col]
			filled[col] = true
			remaining--
		}
	}
	return scaffold, nil
}

func (tbl *Table) readUserValuesLocked(locs []cellLoc) ([]int64, error) {
	vals := make([]int64, tbl.numColumns)
	for col := 0; col < tbl.numColumns; col++ {
		v, err := tbl.readCellLocked(locs[physCol(col)])
		if err != nil {
			return nil, err
		}
		vals[col] = v
	}
	return vals, nil
}

func (tbl *Table) readCellLocked(loc cellLoc) (int64, error) {
	page, err := tbl.bufferPool.Get(loc.Page)
	if err != nil {
		return 0, err
	}
	return page.Read(loc.Slot)
}

func (tbl *Table) appendCellLocked(col, pageNo int, isBase bool, v int64) (cellLoc, error) {
	pid := storage.NewPageID(tbl.name, col, pageNo, isBase)
	page, err := tbl.bufferPool.Get(pid)
	if err != nil {
		return cellLoc{}, err
	}
	if err := tbl.bufferPool.Pin(pid); err != nil {
		return cellLoc{}, err
	}
	slot, err := page.Append(v)
	if err != nil {
		tbl.bufferPool.Unpin(pid, false)
		return cellLoc{}, err
	}
	tbl.bufferPool.MarkDirty(pid)
	tbl.bufferPool.Unpin(pid, true)
	return cellLoc{Page: pid, Slot: slot}, nil
}

func (tbl *Table) overwriteCellLocked(loc cellLoc, v int64) error {
	page, err := tbl.bufferPool.Get(loc.Page)
	if err != nil {
		return err
	}
	if err := tbl.bufferPool.Pin(loc.Page); err != nil {
		return err
	}
	if err := page.Overwrite(loc.Slot, v); err != nil {
		tbl.bufferPool.Unpin(loc.Page, false)
		return err
	}
	tbl.bufferPool.MarkDirty(loc.Page)
	return tbl.bufferPool.Unpin(loc.Page, true)
}
