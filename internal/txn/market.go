package txn

import "github.com/shopspring/decimal"

// MarketTransaction records a cleared wholesale trade for one timeslot.
// Quantity is signed: negative = sold/exported, positive = bought/imported.
type MarketTransaction struct {
	Header
	Timeslot Timeslot        `json:"timeslot"`
	Price    decimal.Decimal `json:"price"`    // Unit price, always applied to |Quantity|
	Quantity decimal.Decimal `json:"quantity"` // MWh
}

func (m *MarketTransaction) Kind() Kind {
	return KindMarket
}

func (m *MarketTransaction) MessageType() string {
	return KindMarket.String()
}
