package txn

import "github.com/shopspring/decimal"

// DistributionTransaction is the grid-use fee charged for transported energy.
type DistributionTransaction struct {
	Header
	Quantity decimal.Decimal `json:"quantity"`
	Charge   decimal.Decimal `json:"charge"`
}

func (d *DistributionTransaction) Kind() Kind {
	return KindDistribution
}

func (d *DistributionTransaction) MessageType() string {
	return KindDistribution.String()
}

// BalancingTransaction settles a broker's imbalance for a timeslot.
type BalancingTransaction struct {
	Header
	Quantity decimal.Decimal `json:"quantity"`
	Charge   decimal.Decimal `json:"charge"`
}

func (b *BalancingTransaction) Kind() Kind {
	return KindBalancing
}

func (b *BalancingTransaction) MessageType() string {
	return KindBalancing.String()
}
