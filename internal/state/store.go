package state

import (
	"BrokerLedger/internal/txn"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrUnknownParticipant is returned when a participant is absent from the directory.
var ErrUnknownParticipant = errors.New("unknown participant")

// Directory supplies the set of registered participants.
type Directory interface {
	Lookup(id uuid.UUID) (txn.Participant, bool)
	List() []txn.Participant
}

// PartialState flags a settlement pass that aborted after applying some effects.
type PartialState struct {
	Round    int64
	FailedAt time.Time
	Cause    string
}

// Store holds cash and market positions. Mutations come only from the
// round-processing goroutine; the lock exists for concurrent query readers.
type Store struct {
	mu        sync.RWMutex
	directory Directory
	cash      map[uuid.UUID]*CashPosition
	positions map[PositionKey]*MarketPosition
	partial   *PartialState
}

func NewStore(directory Directory) *Store {
	return &Store{
		directory: directory,
		cash:      make(map[uuid.UUID]*CashPosition),
		positions: make(map[PositionKey]*MarketPosition),
	}
}

// cashFor returns the participant's cash position, creating it on first use.
// Caller holds the write lock.
func (s *Store) cashFor(participant uuid.UUID) (*CashPosition, error) {
	if _, ok := s.directory.Lookup(participant); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownParticipant, participant)
	}
	cash := s.cash[participant]
	if cash == nil {
		cash = &CashPosition{ParticipantID: participant, Balance: decimal.Zero}
		s.cash[participant] = cash
	}
	return cash, nil
}

// Deposit adds amount (signed) to the participant's cash balance.
func (s *Store) Deposit(participant uuid.UUID, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cash, err := s.cashFor(participant)
	if err != nil {
		return err
	}
	cash.deposit(amount)
	return nil
}

// Balance returns the participant's current cash balance.
func (s *Store) Balance(participant uuid.UUID) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.directory.Lookup(participant); !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnknownParticipant, participant)
	}
	if cash := s.cash[participant]; cash != nil {
		return cash.Balance, nil
	}
	return decimal.Zero, nil
}

// CashSnapshot copies the participant's cash position.
func (s *Store) CashSnapshot(participant uuid.UUID) (CashSnapshot, error) {
	balance, err := s.Balance(participant)
	if err != nil {
		return CashSnapshot{}, err
	}
	return CashSnapshot{ParticipantID: participant, Balance: balance}, nil
}

// ApplyMarketTrade accumulates quantity into the (participant, timeslot)
// position. created is true when this call opened the position.
func (s *Store) ApplyMarketTrade(participant uuid.UUID, timeslot txn.Timeslot, quantity decimal.Decimal) (*MarketPosition, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.directory.Lookup(participant); !ok {
		return nil, false, fmt.Errorf("%w: %s", ErrUnknownParticipant, participant)
	}

	key := PositionKey{ParticipantID: participant, Timeslot: timeslot.Serial}
	if pos := s.positions[key]; pos != nil {
		pos.updateBalance(quantity)
		return pos, false, nil
	}

	pos := &MarketPosition{
		ID:             uuid.New(),
		ParticipantID:  participant,
		Timeslot:       timeslot,
		OverallBalance: quantity,
	}
	s.positions[key] = pos
	return pos, true, nil
}

// MarketBalance returns the overall balance for (participant, timeslot).
func (s *Store) MarketBalance(participant uuid.UUID, timeslot int) (decimal.Decimal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pos := s.positions[PositionKey{ParticipantID: participant, Timeslot: timeslot}]
	if pos == nil {
		return decimal.Zero, false
	}
	return pos.OverallBalance, true
}

// PositionCount returns the number of live market positions.
func (s *Store) PositionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.positions)
}

// PruneTimeslotsBefore drops market positions for timeslots older than serial.
// Called by the scheduler once a timeslot is no longer referenced.
func (s *Store) PruneTimeslotsBefore(serial int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key := range s.positions {
		if key.Timeslot < serial {
			delete(s.positions, key)
			removed++
		}
	}
	return removed
}

// TotalCash sums every participant's balance (conservation checks).
func (s *Store) TotalCash() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := decimal.Zero
	for _, cash := range s.cash {
		total = total.Add(cash.Balance)
	}
	return total
}

// MarkPartial flags the store as partially applied by a failed round.
// The flag stays until AcknowledgePartial.
func (s *Store) MarkPartial(round int64, at time.Time, cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.partial = &PartialState{Round: round, FailedAt: at, Cause: cause.Error()}
}

// Partial returns the outstanding partial-application flag, if any.
func (s *Store) Partial() (PartialState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.partial == nil {
		return PartialState{}, false
	}
	return *s.partial, true
}

// AcknowledgePartial clears the flag after external reconciliation.
func (s *Store) AcknowledgePartial() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.partial = nil
}
