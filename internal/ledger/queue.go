package ledger

import (
	"BrokerLedger/internal/txn"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Queue is the pending-transaction buffer for the round in progress.
// Many submitters append concurrently; the single round-processing goroutine
// drains it once per round. Critical sections never perform I/O.
type Queue struct {
	mu      sync.Mutex
	pending []txn.Transaction
}

func NewQueue() *Queue {
	return &Queue{
		pending: make([]txn.Transaction, 0, 256),
	}
}

// Submit appends tx to the current buffer and returns it as the caller's handle.
func (q *Queue) Submit(tx txn.Transaction) txn.Transaction {
	q.mu.Lock()
	q.pending = append(q.pending, tx)
	q.mu.Unlock()
	return tx
}

// DrainAll swaps out the buffer in one critical section and returns its
// contents in submission order. A Submit racing with DrainAll lands either in
// the returned slice or in the fresh buffer, never both.
func (q *Queue) DrainAll() []txn.Transaction {
	q.mu.Lock()
	drained := q.pending
	q.pending = make([]txn.Transaction, 0, cap(drained))
	q.mu.Unlock()
	return drained
}

// PeekNetLoad sums the signed quantity of undrained CONSUME and PRODUCE tariff
// transactions owned by participant. Only meaningful before the round's drain;
// afterwards it returns zero.
func (q *Queue) PeekNetLoad(participant uuid.UUID) decimal.Decimal {
	q.mu.Lock()
	defer q.mu.Unlock()

	netLoad := decimal.Zero
	for _, tx := range q.pending {
		ttx, ok := tx.(*txn.TariffTransaction)
		if !ok || ttx.Owner() != participant {
			continue
		}
		if ttx.TxType.IsEnergy() {
			netLoad = netLoad.Add(ttx.Quantity)
		}
	}
	return netLoad
}

// PendingTariff returns a snapshot of the undrained tariff transactions.
func (q *Queue) PendingTariff() []*txn.TariffTransaction {
	q.mu.Lock()
	defer q.mu.Unlock()

	result := make([]*txn.TariffTransaction, 0)
	for _, tx := range q.pending {
		if ttx, ok := tx.(*txn.TariffTransaction); ok {
			result = append(result, ttx)
		}
	}
	return result
}

// Len returns the number of buffered transactions.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
