package state

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CashPosition is a participant's single cash balance. Only the settlement
// engine mutates it.
type CashPosition struct {
	ParticipantID uuid.UUID
	Balance       decimal.Decimal
}

func (c *CashPosition) deposit(amount decimal.Decimal) {
	c.Balance = c.Balance.Add(amount)
}

// CashSnapshot is the immutable copy of a CashPosition sent to participants.
type CashSnapshot struct {
	ParticipantID uuid.UUID       `json:"participant_id"`
	Balance       decimal.Decimal `json:"balance"`
}

func (c CashSnapshot) MessageType() string {
	return "CashPosition"
}
