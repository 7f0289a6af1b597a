package mvcc

import (
	"sync"
	"sync/atomic"
)

// RollbackTarget is implemented by a table so that a Transaction can undo
// the table's own mutations on abort without the mvcc package knowing
// anything about pages, columns, or indexes.
type RollbackTarget interface {
	// UndoInsert marks rid as deleted and strips it from the primary-key
	// index, reversing an insert performed earlier in the same transaction.
	UndoInsert(rid int64) error
	// UndoUpdate restores rid's INDIRECTION to prevIndirection and
	// rewrites its latest user-column snapshot to prevUserValues.
	UndoUpdate(rid int64, prevIndirection int64, prevUserValues []int64) error
	// UndoDelete clears rid's tombstone and re-adds its primary-key entry.
	UndoDelete(rid int64) error
}

// Operation is a single deferred step of a transaction: a query-façade call
// closed over its arguments, invoked with the transaction so it can acquire
// locks and log rollback entries.
type Operation func(txn *Transaction) error

type insertUndo struct {
	target RollbackTarget
	rid    int64
}

type updateUndo struct {
	target          RollbackTarget
	rid             int64
	prevIndirection int64
	prevUserValues  []int64
}

type deleteUndo struct {
	target RollbackTarget
	rid    int64
}

// IDGenerator hands out unique, monotonically increasing transaction ids.
// It is owned by whichever Database constructs transactions rather than
// living as a free package-level global shared across unrelated databases.
type IDGenerator struct {
	value uint64
}

// NewIDGenerator creates a fresh generator starting at 1.
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{}
}

// Next returns the next transaction id.
func (g *IDGenerator) Next() TxnID {
	return TxnID(atomic.AddUint64(&g.value, 1))
}

// Transaction holds an ordered list of deferred operations plus the three
// rollback logs (inserted, updated, deleted) needed to undo them on abort.
// Every table a transaction touches owns its own LockManager; the
// transaction tracks each one it acquires a lock through so commit/abort
// can release every lock it holds, across every table.
type Transaction struct {
	id TxnID

	mu           sync.Mutex
	ops          []Operation
	inserted     []insertUndo
	updated      []updateUndo
	deleted      []deleteUndo
	lockManagers map[*LockManager]struct{}
	active       bool
}

// NewTransaction creates a transaction under id.
func NewTransaction(id TxnID) *Transaction {
	return &Transaction{id: id, lockManagers: make(map[*LockManager]struct{}), active: true}
}

// ID returns the transaction's unique id.
func (t *Transaction) ID() TxnID {
	return t.id
}

// Track records that the transaction acquired a lock through lm, so it is
// released on commit or abort. Tables call this before every acquire.
func (t *Transaction) Track(lm *LockManager) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lockManagers[lm] = struct{}{}
}

// AddOperation appends a deferred operation to the transaction's op list.
// Operations run in submission order.
func (t *Transaction) AddOperation(op Operation) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ops = append(t.ops, op)
}

// LogInsert records that rid was inserted by target during this
// transaction, to be undone on abort.
func (t *Transaction) LogInsert(target RollbackTarget, rid int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inserted = append(t.inserted, insertUndo{target: target, rid: rid})
}

// LogUpdate records rid's pre-update INDIRECTION and user-column snapshot
// so an abort can restore them.
func (t *Transaction) LogUpdate(target RollbackTarget, rid int64, prevIndirection int64, prevUserValues []int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.updated = append(t.updated, updateUndo{
		target:          target,
		rid:             rid,
		prevIndirection: prevIndirection,
		prevUserValues:  append([]int64(nil), prevUserValues...),
	})
}

// LogDelete records that rid was tombstoned by target during this
// transaction, to be undone on abort.
func (t *Transaction) LogDelete(target RollbackTarget, rid int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.deleted = append(t.deleted, deleteUndo{target: target, rid: rid})
}

// Run executes every deferred operation in submission order. Any operation
// returning an error — in particular ErrLockConflict — aborts the whole
// transaction and undoes every effect logged so far; Run reports whether
// the transaction committed.
func (t *Transaction) Run() bool {
	for _, op := range t.ops {
		if err := op(t); err != nil {
			t.abort()
			return false
		}
	}
	t.commit()
	return true
}

func (t *Transaction) commit() {
	t.mu.Lock()
	t.active = false
	t.mu.Unlock()
	t.releaseLocks()
}

func (t *Transaction) abort() {
	t.mu.Lock()
	deleted := t.deleted
	updated := t.updated
	inserted := t.inserted
	t.active = false
	t.mu.Unlock()

	for i := len(deleted) - 1; i >= 0; i-- {
		u := deleted[i]
		_ = u.target.UndoDelete(u.rid)
	}
	for i := len(updated) - 1; i >= 0; i-- {
		u := updated[i]
		_ = u.target.UndoUpdate(u.rid, u.prevIndirection, u.prevUserValues)
	}
	for i := len(inserted) - 1; i >= 0; i-- {
		u := inserted[i]
		_ = u.target.UndoInsert(u.rid)
	}

	t.releaseLocks()
}

func (t *Transaction) releaseLocks() {
	t.mu.Lock()
	lms := make([]*LockManager, 0, len(t.lockManagers))
	for lm := range t.lockManagers {
		lms = append(lms, lm)
	}
	t.mu.Unlock()
	for _, lm := range lms {
		lm.ReleaseAll(t.id)
	}
}

// IsActive reports whether the transaction has neither committed nor
// aborted yet.
func (t *Transaction) IsActive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// Reset clears the rollback logs and reactivates the transaction so a
// TransactionWorker can retry the same operation list after an abort. The
// operation list itself is left untouched: operations are written to
// re-derive current state on every attempt.
func (t *Transaction) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inserted = nil
	t.updated = nil
	t.deleted = nil
	t.active = true
}
