package state

import (
	"BrokerLedger/internal/txn"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MarketPosition tracks a participant's accumulated net traded quantity
// for one timeslot. Positive = net importer.
type MarketPosition struct {
	ID             uuid.UUID       `json:"id"`
	ParticipantID  uuid.UUID       `json:"participant_id"`
	Timeslot       txn.Timeslot    `json:"timeslot"`
	OverallBalance decimal.Decimal `json:"overall_balance"`
}

// MessageType identifies the record on the wire.
func (p *MarketPosition) MessageType() string {
	return "MarketPosition"
}

func (p *MarketPosition) updateBalance(quantity decimal.Decimal) {
	p.OverallBalance = p.OverallBalance.Add(quantity)
}

// PositionKey identifies a market position.
type PositionKey struct {
	ParticipantID uuid.UUID
	Timeslot      int
}
