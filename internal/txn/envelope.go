package txn

import (
	"time"

	"github.com/google/uuid"
)

// Kind discriminator for transaction payloads
type Kind int32

const (
	KindUnknown Kind = iota
	KindMarket
	KindTariff
	KindDistribution
	KindBalancing
	KindBank
)

func (k Kind) String() string {
	switch k {
	case KindMarket:
		return "MarketTransaction"
	case KindTariff:
		return "TariffTransaction"
	case KindDistribution:
		return "DistributionTransaction"
	case KindBalancing:
		return "BalancingTransaction"
	case KindBank:
		return "BankTransaction"
	default:
		return "Unknown"
	}
}

// Transaction is the interface all settlement payloads implement.
// The set is closed: the unexported marker keeps foreign packages from
// declaring their own variants without embedding Header.
type Transaction interface {
	// TxID returns the unique transaction id
	TxID() uuid.UUID

	// Owner returns the participant the transaction belongs to
	Owner() uuid.UUID

	// PostedAt returns the simulated time the transaction was created
	PostedAt() time.Time

	// Kind returns the discriminator
	Kind() Kind

	transaction()
}

// Header carries the fields common to every transaction.
// Immutable once the transaction is created.
type Header struct {
	ID            uuid.UUID `json:"id"`
	ParticipantID uuid.UUID `json:"participant_id"`
	Timestamp     time.Time `json:"timestamp"` // Simulated time, NOT wall-clock
}

// NewHeader stamps a fresh transaction id.
func NewHeader(participant uuid.UUID, at time.Time) Header {
	return Header{
		ID:            uuid.New(),
		ParticipantID: participant,
		Timestamp:     at,
	}
}

func (h Header) TxID() uuid.UUID {
	return h.ID
}

func (h Header) Owner() uuid.UUID {
	return h.ParticipantID
}

func (h Header) PostedAt() time.Time {
	return h.Timestamp
}

func (h Header) transaction() {}
