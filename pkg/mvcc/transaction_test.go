package mvcc

import "testing"

type fakeRollbackTarget struct {
	insertUndone     int
	insertUndoneRIDs []int64
	updateUndone     []int64
	deleteUndone     []int64
}

func (f *fakeRollbackTarget) UndoInsert(rid int64) error {
	f.insertUndone++
	f.insertUndoneRIDs = append(f.insertUndoneRIDs, rid)
	return nil
}

func (f *fakeRollbackTarget) UndoUpdate(rid int64, prevIndirection int64, prevUserValues []int64) error {
	f.updateUndone = append(f.updateUndone, rid)
	return nil
}

func (f *fakeRollbackTarget) UndoDelete(rid int64) error {
	f.deleteUndone = append(f.deleteUndone, rid)
	return nil
}

func TestTransactionTracksMultipleLockManagers(t *testing.T) {
	gen := NewIDGenerator()
	txn := NewTransaction(gen.Next())

	lmA := NewLockManager()
	lmB := NewLockManager()

	if err := lmA.AcquireShared(txn.ID(), 1); err != nil {
		t.Fatalf("acquire on lmA: %v", err)
	}
	txn.Track(lmA)
	if err := lmB.AcquireExclusive(txn.ID(), 2); err != nil {
		t.Fatalf("acquire on lmB: %v", err)
	}
	txn.Track(lmB)

	txn.commit()

	if err := lmA.AcquireExclusive(99, 1); err != nil {
		t.Fatalf("lmA lock should be released after commit: %v", err)
	}
	if err := lmB.AcquireExclusive(99, 2); err != nil {
		t.Fatalf("lmB lock should be released after commit: %v", err)
	}
}

func TestTransactionRunCommitsWhenAllOperationsSucceed(t *testing.T) {
	gen := NewIDGenerator()
	txn := NewTransaction(gen.Next())
	var ran []int
	txn.AddOperation(func(txn *Transaction) error {
		ran = append(ran, 1)
		return nil
	})
	txn.AddOperation(func(txn *Transaction) error {
		ran = append(ran, 2)
		return nil
	})

	if ok := txn.Run(); !ok {
		t.Fatal("expected Run to report commit")
	}
	if len(ran) != 2 || ran[0] != 1 || ran[1] != 2 {
		t.Fatalf("expected operations to run in submission order, got %v", ran)
	}
	if txn.IsActive() {
		t.Fatal("expected transaction to be inactive after commit")
	}
}

func TestTransactionAbortUndoesInReverseOrder(t *testing.T) {
	gen := NewIDGenerator()
	txn := NewTransaction(gen.Next())
	target := &fakeRollbackTarget{}

	txn.AddOperation(func(txn *Transaction) error {
		txn.LogInsert(target, 10)
		txn.LogInsert(target, 11)
		return ErrLockConflict
	})

	if ok := txn.Run(); ok {
		t.Fatal("expected Run to report abort")
	}
	if target.insertUndone != 2 {
		t.Fatalf("expected both inserts undone, got %d", target.insertUndone)
	}
	if got := target.insertUndoneRIDs; len(got) != 2 || got[0] != 11 || got[1] != 10 {
		t.Fatalf("expected inserts undone newest first [11 10], got %v", got)
	}
	if txn.IsActive() {
		t.Fatal("expected transaction to be inactive after abort")
	}
}

func TestTransactionResetReactivatesForRetry(t *testing.T) {
	gen := NewIDGenerator()
	txn := NewTransaction(gen.Next())
	target := &fakeRollbackTarget{}
	txn.LogDelete(target, 5)
	txn.abort()

	if txn.IsActive() {
		t.Fatal("expected aborted transaction to be inactive")
	}
	txn.Reset()
	if !txn.IsActive() {
		t.Fatal("expected Reset to reactivate the transaction")
	}
}
