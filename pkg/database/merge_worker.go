package database

import (
	"fmt"
	"log"
	"sync"

	"github.com/lstore/lstore/pkg/concurrent"
)

// MergeWorker runs history-preserving background consolidation for one
// table. Unlike an in-place compaction, a merge never mutates an existing
// base page: it writes a fresh generation of base pages holding every
// live row's current snapshot, then atomically swaps the table directory
// to point at them. Older generations are left on disk, unreferenced but
// intact, so a reader mid-scan never observes a torn page.
type MergeWorker struct {
	tbl       *Table
	pool      *WorkerPool
	queue     *concurrent.PageQueue
	threshold int

	mu         sync.Mutex
	inFlight   map[int]struct{}
	watermarks map[int]int64
}

// NewMergeWorker creates a merge worker for tbl. A range is queued for
// consolidation once its tail chain length reaches threshold.
func NewMergeWorker(tbl *Table, threshold int) *MergeWorker {
	return &MergeWorker{
		tbl:        tbl,
		pool:       NewWorkerPool(&WorkerPoolConfig{NumWorkers: 1, QueueSize: 256}),
		queue:      concurrent.NewPageQueue(),
		threshold:  threshold,
		inFlight:   make(map[int]struct{}),
		watermarks: make(map[int]int64),
	}
}

// Enqueue schedules pageNo's base range for consolidation. Duplicate
// enqueues of a range already in flight are collapsed.
func (mw *MergeWorker) Enqueue(pageNo int) {
	mw.queue.Push(pageNo)
	mw.pool.SubmitFunc(mw.processNext)
}

func (mw *MergeWorker) processNext() error {
	pageNo, ok := mw.queue.Pop()
	if !ok {
		return nil
	}

	mw.mu.Lock()
	if _, busy := mw.inFlight[pageNo]; busy {
		mw.mu.Unlock()
		return nil
	}
	mw.inFlight[pageNo] = struct{}{}
	mw.mu.Unlock()

	defer func() {
		mw.mu.Lock()
		delete(mw.inFlight, pageNo)
		mw.mu.Unlock()
	}()

	watermark, err := mw.tbl.mergeRange(pageNo)
	if err != nil {
		log.Printf("merge: table %s range %d: %v", mw.tbl.name, pageNo, err)
		return fmt.Errorf("merge range %d: %w", pageNo, err)
	}
	if watermark > 0 {
		mw.mu.Lock()
		mw.watermarks[pageNo] = watermark
		mw.mu.Unlock()
	}
	return nil
}

// Watermark returns the timestamp, in epoch milliseconds, of the newest
// tail update folded into pageNo's range by the last completed merge.
func (mw *MergeWorker) Watermark(pageNo int) int64 {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	return mw.watermarks[pageNo]
}

// Shutdown stops the worker's goroutine, letting any in-flight merge
// finish first.
func (mw *MergeWorker) Shutdown() {
	mw.pool.Shutdown()
}

// mergeRange rebuilds a fresh base-page generation for every live row in
// [pageNo*C, pageNo*C+C-1], folding each row's latest tail-chain
// snapshot into the new base page and atomically repointing the
// directory at it. It returns the watermark (newest folded tail
// timestamp) for the range, or 0 if nothing needed merging.
func (tbl *Table) mergeRange(pageNo int) (int64, error) {
	lo := int64(pageNo) * int64(tbl.config.RecordsPerPage)
	hi := lo + int64(tbl.config.RecordsPerPage) - 1

	type snapshot struct {
		rid    int64
		values []int64
	}

	tbl.mu.RLock()
	var rows []snapshot
	var watermark int64
	for rid := lo; rid <= hi && rid < tbl.baseCount; rid++ {
		locs, ok := tbl.directory[rid]
		if !ok {
			continue
		}
		if _, isDeleted := tbl.deleted[rid]; isDeleted {
			continue
		}
		vals, err := tbl.materializeLatestLocked(rid)
		if err != nil {
			tbl.mu.RUnlock()
			return 0, err
		}
		rows = append(rows, snapshot{rid: rid, values: vals})

		indirection, err := tbl.readCellLocked(locs[ColIndirection])
		if err != nil {
			tbl.mu.RUnlock()
			return 0, err
		}
		if indirection != 0 {
			tailLocs := tbl.directory[indirection]
			ts, err := tbl.readCellLocked(tailLocs[ColTimestamp])
			if err == nil && ts > watermark {
				watermark = ts
			}
		}
	}
	tbl.mu.RUnlock()

	if len(rows) == 0 {
		return 0, nil
	}

	freshPageNo := tbl.nextMergeGeneration(pageNo)

	newLocs := make(map[int64][]cellLoc, len(rows))
	for _, r := range rows {
		row := make([]int64, MetaColumns+tbl.numColumns)
		row[ColIndirection] = 0
		row[ColRID] = r.rid
		row[ColTimestamp] = currentMillis()
		row[ColSchema] = 0
		copy(row[MetaColumns:], r.values)

		locs := make([]cellLoc, len(row))
		for col, v := range row {
			loc, err := tbl.appendCellLocked(col, freshPageNo, true, v)
			if err != nil {
				return 0, fmt.Errorf("merge: %w", err)
			}
			locs[col] = loc
		}
		newLocs[r.rid] = locs
	}

	tbl.mu.Lock()
	for rid, locs := range newLocs {
		tbl.directory[rid] = locs
	}
	tbl.mu.Unlock()

	return watermark, nil
}

// nextMergeGeneration hands out a fresh page number for origPageNo's Nth
// merge, offset into a page-number band no live insert stream will ever
// reach, so merged generations never collide with each other or with the
// range's original base page.
func (tbl *Table) nextMergeGeneration(origPageNo int) int {
	tbl.mu.Lock()
	defer tbl.mu.Unlock()
	gen := tbl.mergeGenerations[origPageNo] + 1
	tbl.mergeGenerations[origPageNo] = gen
	return mergeGenerationPageSpace*gen + origPageNo
}

// MaybeEnqueueMerge schedules pageNo for consolidation if its live tail
// chain depth looks likely to have crossed the configured threshold.
// Tables call this after an update lands a new tail record.
func (mw *MergeWorker) MaybeEnqueueMerge(pageNo, tailChainDepth int) {
	if tailChainDepth >= mw.threshold {
		mw.Enqueue(pageNo)
	}
}
