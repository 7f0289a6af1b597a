package mvcc

import (
	"log"
	"math/rand"
	"sync"
	"time"
)

// DefaultMaxRetries bounds how many times a TransactionWorker retries a
// transaction that aborts before giving up on it.
const DefaultMaxRetries = 100

// TransactionWorker owns a batch of transactions and a goroutine that runs
// each to completion, retrying aborts with bounded exponential backoff and
// jitter. Run launches the goroutine; Join awaits it.
type TransactionWorker struct {
	maxRetries int

	mu          sync.Mutex
	txns        []*Transaction
	results     []bool
	commitCount int

	done chan struct{}
}

// NewTransactionWorker creates a worker with the given retry cap (0 means
// DefaultMaxRetries).
func NewTransactionWorker(maxRetries int) *TransactionWorker {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &TransactionWorker{maxRetries: maxRetries}
}

// AddTransaction queues txn to run when Run is called.
func (w *TransactionWorker) AddTransaction(txn *Transaction) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.txns = append(w.txns, txn)
}

// Run launches a goroutine that executes every queued transaction in
// order, retrying each on abort up to the retry cap.
func (w *TransactionWorker) Run() {
	w.mu.Lock()
	txns := append([]*Transaction(nil), w.txns...)
	w.done = make(chan struct{})
	w.mu.Unlock()

	go func() {
		defer close(w.done)
		for _, txn := range txns {
			committed := w.runWithRetry(txn)
			w.mu.Lock()
			w.results = append(w.results, committed)
			if committed {
				w.commitCount++
			}
			w.mu.Unlock()
		}
	}()
}

// Join blocks until the goroutine launched by Run has processed every
// queued transaction.
func (w *TransactionWorker) Join() {
	w.mu.Lock()
	done := w.done
	w.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (w *TransactionWorker) runWithRetry(txn *Transaction) bool {
	for retry := 0; retry < w.maxRetries; retry++ {
		if txn.Run() {
			return true
		}
		txn.Reset()
		time.Sleep(retryDelay(retry))
	}
	log.Printf("mvcc: txn %d gave up after %d attempts", txn.ID(), w.maxRetries)
	return false
}

// retryDelay implements delay = 0.001 * min(2^retry, 10) seconds plus up to
// 1ms of jitter: the step doubles from 1ms and is capped at 10ms.
func retryDelay(retry int) time.Duration {
	step := 10
	if retry < 4 {
		step = 1 << uint(retry)
	}
	seconds := 0.001*float64(step) + rand.Float64()*0.001
	return time.Duration(seconds * float64(time.Second))
}

// Results returns each transaction's commit outcome, in submission order.
func (w *TransactionWorker) Results() []bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]bool(nil), w.results...)
}

// CommitCount returns how many queued transactions ultimately committed.
func (w *TransactionWorker) CommitCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.commitCount
}
