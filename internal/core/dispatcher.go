package core

import (
	"BrokerLedger/internal/observability"
	"BrokerLedger/internal/state"
	"BrokerLedger/internal/txn"
	"fmt"

	"github.com/shopspring/decimal"
)

// settleable is a transaction that is also echoed back to its owner.
type settleable interface {
	txn.Transaction
	Message
}

// dispatcher applies per-variant settlement rules to drained transactions.
// Runs only on the round-processing goroutine.
type dispatcher struct {
	store     *state.Store
	directory state.Directory
	metrics   *observability.Metrics
}

func newDispatcher(store *state.Store, directory state.Directory, metrics *observability.Metrics) *dispatcher {
	return &dispatcher{
		store:     store,
		directory: directory,
		metrics:   metrics,
	}
}

// settle applies tx and returns the cash it moved. An error wrapping
// ErrUnknownParticipant skips this transaction only; a *ProcessingError
// means the variant has no rule and the pass must stop.
func (d *dispatcher) settle(tx txn.Transaction, out *Outbox, report *AggregateReport) (decimal.Decimal, error) {
	switch t := tx.(type) {
	case *txn.TariffTransaction:
		if err := d.echo(t, out); err != nil {
			return decimal.Zero, err
		}
		if err := d.store.Deposit(t.Owner(), t.Charge); err != nil {
			return decimal.Zero, err
		}
		switch t.TxType {
		case txn.TariffConsume:
			// Consumption arrives negative; the report carries it positive
			report.addConsumption(t.Quantity.Neg())
		case txn.TariffProduce:
			report.addProduction(t.Quantity)
		}
		return t.Charge, nil

	case *txn.DistributionTransaction:
		return d.settleCharge(t, t.Charge, out)

	case *txn.BalancingTransaction:
		return d.settleCharge(t, t.Charge, out)

	case *txn.MarketTransaction:
		if err := d.echo(t, out); err != nil {
			return decimal.Zero, err
		}
		delta := marketCashDelta(t.Price, t.Quantity)
		if err := d.store.Deposit(t.Owner(), delta); err != nil {
			return decimal.Zero, err
		}
		pos, created, err := d.store.ApplyMarketTrade(t.Owner(), t.Timeslot, t.Quantity)
		if err != nil {
			return delta, err
		}
		if created {
			// Only the first sighting of a position is reported
			out.Append(t.Owner(), pos)
			if d.metrics != nil {
				d.metrics.PositionsOpened.Inc()
			}
		}
		return delta, nil

	case nil:
		return decimal.Zero, &ProcessingError{TypeName: "<nil>"}

	default:
		// BankTransaction lands here too: it is generated, never settled
		return decimal.Zero, &ProcessingError{
			TxID:     tx.TxID(),
			Kind:     tx.Kind(),
			TypeName: fmt.Sprintf("%T", tx),
		}
	}
}

func (d *dispatcher) settleCharge(tx settleable, charge decimal.Decimal, out *Outbox) (decimal.Decimal, error) {
	if err := d.echo(tx, out); err != nil {
		return decimal.Zero, err
	}
	if err := d.store.Deposit(tx.Owner(), charge); err != nil {
		return decimal.Zero, err
	}
	return charge, nil
}

// echo queues the transaction itself for its owner ahead of any side effect.
func (d *dispatcher) echo(tx settleable, out *Outbox) error {
	if _, ok := d.directory.Lookup(tx.Owner()); !ok {
		return fmt.Errorf("%w: %s owned by %s", ErrUnknownParticipant, tx.MessageType(), tx.Owner())
	}
	out.Append(tx.Owner(), tx)
	return nil
}

// marketCashDelta moves price*|quantity|: buying (quantity > 0) costs cash,
// selling (quantity < 0) earns it.
func marketCashDelta(price, quantity decimal.Decimal) decimal.Decimal {
	amount := price.Mul(quantity.Abs())
	if quantity.IsPositive() {
		return amount.Neg()
	}
	return amount
}
