package mvcc

import (
	"fmt"
	"sync"
)

// TxnID identifies a transaction. Zero is never a valid id, which lets
// lockEntry use it as the "no exclusive holder" sentinel.
type TxnID uint64

// lockEntry is the per-RID lock state: the set of shared holders and the
// sole exclusive holder, if any.
type lockEntry struct {
	shared    map[TxnID]struct{}
	exclusive TxnID
}

// LockManager implements no-wait strict two-phase locking over RIDs. A
// single mutex guards the whole table; conflicts never block, they fail
// immediately with ErrLockConflict and the caller aborts.
type LockManager struct {
	mu      sync.Mutex
	entries map[int64]*lockEntry
}

// NewLockManager creates an empty LockManager.
func NewLockManager() *LockManager {
	return &LockManager{entries: make(map[int64]*lockEntry)}
}

// AcquireShared grants a shared lock on rid to txn if no other transaction
// holds it exclusively. Idempotent for the same holder.
func (lm *LockManager) AcquireShared(txn TxnID, rid int64) error {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	e := lm.entries[rid]
	if e != nil && e.exclusive != 0 && e.exclusive != txn {
		return fmt.Errorf("%w: rid %d held exclusive by txn %d", ErrLockConflict, rid, e.exclusive)
	}
	if e == nil {
		e = &lockEntry{shared: make(map[TxnID]struct{})}
		lm.entries[rid] = e
	}
	e.shared[txn] = struct{}{}
	return nil
}

// AcquireExclusive grants an exclusive lock on rid to txn if no locks are
// held, or if txn is the sole shared holder (an upgrade). Any other
// configuration fails immediately with ErrLockConflict.
func (lm *LockManager) AcquireExclusive(txn TxnID, rid int64) error {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	e := lm.entries[rid]
	if e == nil {
		e = &lockEntry{shared: make(map[TxnID]struct{})}
		lm.entries[rid] = e
	}

	if e.exclusive != 0 {
		if e.exclusive == txn {
			return nil
		}
		return fmt.Errorf("%w: rid %d held exclusive by txn %d", ErrLockConflict, rid, e.exclusive)
	}

	for holder := range e.shared {
		if holder != txn {
			return fmt.Errorf("%w: rid %d held shared by txn %d", ErrLockConflict, rid, holder)
		}
	}

	delete(e.shared, txn)
	e.exclusive = txn
	return nil
}

// ReleaseAll drops txn from every entry's shared set, clears its exclusive
// hold, and removes any entry left with no holders.
func (lm *LockManager) ReleaseAll(txn TxnID) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	for rid, e := range lm.entries {
		delete(e.shared, txn)
		if e.exclusive == txn {
			e.exclusive = 0
		}
		if e.exclusive == 0 && len(e.shared) == 0 {
			delete(lm.entries, rid)
		}
	}
}
