package storage

import (
	"fmt"
	"sync"
)

// Loader is the page source a BufferPool falls back to on a miss: the
// on-disk representation, or in tests a fake standing in for it.
type Loader interface {
	LoadPage(id PageID) (*Page, error)
	StorePage(p *Page) error
}

// frame is a buffer-pool slot holding a resident page plus the metadata the
// eviction policy and write-back path need.
type frame struct {
	page       *Page
	pinCount   int
	dirty      bool
	lastAccess uint64
}

// BufferPool is a process-wide cache of at most Capacity resident pages,
// keyed by PageID, evicted by a two-pass LRU policy that never touches a
// pinned frame.
type BufferPool struct {
	mu       sync.Mutex
	capacity int
	frames   map[PageID]*frame
	loader   Loader
	clock    uint64

	hits      uint64
	misses    uint64
	evictions uint64
}

// NewBufferPool creates a pool holding at most capacity resident frames,
// backed by loader for misses and write-back.
func NewBufferPool(capacity int, loader Loader) *BufferPool {
	if capacity <= 0 {
		capacity = 1
	}
	return &BufferPool{
		capacity: capacity,
		frames:   make(map[PageID]*frame, capacity),
		loader:   loader,
	}
}

// Get returns the page for id, loading it from the loader on a miss and
// evicting a frame first if the pool is at capacity. The caller must Pin
// before mutating the returned page and Unpin/MarkDirty per the usual
// discipline.
func (bp *BufferPool) Get(id PageID) (*Page, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	if f, ok := bp.frames[id]; ok {
		bp.hits++
		bp.clock++
		f.lastAccess = bp.clock
		return f.page, nil
	}

	bp.misses++
	if len(bp.frames) >= bp.capacity {
		if err := bp.evictLocked(); err != nil {
			return nil, err
		}
	}

	page, err := bp.loader.LoadPage(id)
	if err != nil {
		return nil, fmt.Errorf("buffer pool: load %s: %w", id, err)
	}

	bp.clock++
	bp.frames[id] = &frame{page: page, lastAccess: bp.clock}
	return page, nil
}

// Pin increments id's pin count, preventing its eviction. The frame must
// already be resident (i.e. obtained via Get).
func (bp *BufferPool) Pin(id PageID) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	f, ok := bp.frames[id]
	if !ok {
		return fmt.Errorf("buffer pool: pin: %s not resident", id)
	}
	f.pinCount++
	return nil
}

// Unpin decrements id's pin count. isDirty, if true, is OR'd into the
// frame's dirty flag, mirroring the fetch/unpin(dirty) idiom for callers
// that don't call MarkDirty separately.
func (bp *BufferPool) Unpin(id PageID, isDirty bool) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	f, ok := bp.frames[id]
	if !ok {
		return fmt.Errorf("buffer pool: unpin: %s not resident", id)
	}
	if f.pinCount > 0 {
		f.pinCount--
	}
	if isDirty {
		f.dirty = true
	}
	return nil
}

// MarkDirty flags id's frame as holding unwritten changes. It must be
// called after any mutation and before the matching Unpin.
func (bp *BufferPool) MarkDirty(id PageID) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	f, ok := bp.frames[id]
	if !ok {
		return fmt.Errorf("buffer pool: mark dirty: %s not resident", id)
	}
	f.dirty = true
	return nil
}

// evictLocked runs the two-pass eviction policy. Callers must hold bp.mu.
//
// Pass 1 prefers an unpinned, clean frame (no write-back needed). Pass 2
// falls back to any unpinned frame, writing it back first if dirty. If
// every frame is pinned, ErrAllFramesPinned is returned and nothing is
// evicted.
func (bp *BufferPool) evictLocked() error {
	var cleanVictim PageID
	foundClean := false
	var cleanAccess uint64

	var anyVictim PageID
	foundAny := false
	var anyAccess uint64

	for id, f := range bp.frames {
		if f.pinCount != 0 {
			continue
		}
		if !foundAny || f.lastAccess < anyAccess {
			anyVictim, anyAccess, foundAny = id, f.lastAccess, true
		}
		if !f.dirty {
			if !foundClean || f.lastAccess < cleanAccess {
				cleanVictim, cleanAccess, foundClean = id, f.lastAccess, true
			}
		}
	}

	if foundClean {
		delete(bp.frames, cleanVictim)
		bp.evictions++
		return nil
	}

	if !foundAny {
		return ErrAllFramesPinned
	}

	f := bp.frames[anyVictim]
	if err := bp.loader.StorePage(f.page); err != nil {
		return fmt.Errorf("buffer pool: write back %s: %w", anyVictim, err)
	}
	delete(bp.frames, anyVictim)
	bp.evictions++
	return nil
}

// FlushAll writes every dirty frame back through the loader and clears
// their dirty flags.
func (bp *BufferPool) FlushAll() error {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	for id, f := range bp.frames {
		if !f.dirty {
			continue
		}
		if err := bp.loader.StorePage(f.page); err != nil {
			return fmt.Errorf("buffer pool: flush %s: %w", id, err)
		}
		f.dirty = false
	}
	return nil
}

// EvictAll flushes and then discards every resident frame, regardless of
// pin state. Used at database close when config.FlushOnClose is set.
func (bp *BufferPool) EvictAll() error {
	if err := bp.FlushAll(); err != nil {
		return err
	}
	bp.DiscardAll()
	return nil
}

// DiscardAll drops every resident frame without writing dirty ones back.
// Used at database close when config.FlushOnClose is false, so unflushed
// writes since the last explicit flush are lost rather than persisted.
func (bp *BufferPool) DiscardAll() {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	bp.frames = make(map[PageID]*frame, bp.capacity)
}

// Stats returns counters useful for tests and diagnostics.
func (bp *BufferPool) Stats() map[string]interface{} {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return map[string]interface{}{
		"resident":  len(bp.frames),
		"capacity":  bp.capacity,
		"hits":      bp.hits,
		"misses":    bp.misses,
		"evictions": bp.evictions,
	}
}
