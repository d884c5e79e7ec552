package txn

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BankTransaction records an interest payment. Generated by the settlement
// engine only; participants never submit it.
type BankTransaction struct {
	Header
	Amount decimal.Decimal `json:"amount"`
}

// NewBankTransaction creates an interest record for a participant.
func NewBankTransaction(participant uuid.UUID, amount decimal.Decimal, at time.Time) *BankTransaction {
	return &BankTransaction{
		Header: NewHeader(participant, at),
		Amount: amount,
	}
}

func (b *BankTransaction) Kind() Kind {
	return KindBank
}

func (b *BankTransaction) MessageType() string {
	return KindBank.String()
}
