package mvcc

import "errors"

var (
	// ErrLockConflict is raised immediately by the no-wait LockManager on any
	// conflicting acquisition; it always aborts the calling transaction.
	ErrLockConflict = errors.New("mvcc: lock conflict")

	// ErrTransactionNotActive names operating on a transaction that has
	// already committed or aborted. Nothing in this package returns it:
	// Run does not check whether the transaction is still active.
	ErrTransactionNotActive = errors.New("mvcc: transaction not active")

	// ErrRetriesExhausted names a transaction that fails to commit within a
	// TransactionWorker's retry cap. The worker does not return it; it
	// reports that outcome as false in Results and logs it.
	ErrRetriesExhausted = errors.New("mvcc: retry cap exhausted")
)
