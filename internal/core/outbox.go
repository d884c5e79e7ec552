package core

import (
	"BrokerLedger/internal/txn"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Message is anything delivered to participants at the end of a round.
type Message interface {
	MessageType() string
}

// Outbox collects per-participant messages during one settlement pass.
// Participants are kept in registration order so flush order is stable.
// Only the round-processing goroutine touches it.
type Outbox struct {
	order   []uuid.UUID
	entries map[uuid.UUID][]Message
}

func newOutbox(participants []txn.Participant) *Outbox {
	o := &Outbox{
		order:   make([]uuid.UUID, 0, len(participants)),
		entries: make(map[uuid.UUID][]Message, len(participants)),
	}
	for _, p := range participants {
		o.ensure(p.ID)
	}
	return o
}

func (o *Outbox) ensure(participant uuid.UUID) {
	if _, ok := o.entries[participant]; ok {
		return
	}
	o.order = append(o.order, participant)
	o.entries[participant] = nil
}

// Append adds msg to the end of the participant's sequence.
func (o *Outbox) Append(participant uuid.UUID, msg Message) {
	o.ensure(participant)
	o.entries[participant] = append(o.entries[participant], msg)
}

// Messages returns the participant's sequence in append order.
func (o *Outbox) Messages(participant uuid.UUID) []Message {
	return o.entries[participant]
}

// Participants returns every participant with an entry, in insertion order.
func (o *Outbox) Participants() []uuid.UUID {
	return o.order
}

// AggregateReport totals the energy reported through CONSUME and PRODUCE
// tariff transactions in one round. Both totals are non-negative under the
// usual sign conventions.
type AggregateReport struct {
	Consumption decimal.Decimal `json:"total_consumption"`
	Production  decimal.Decimal `json:"total_production"`
}

func newAggregateReport() *AggregateReport {
	return &AggregateReport{
		Consumption: decimal.Zero,
		Production:  decimal.Zero,
	}
}

func (r *AggregateReport) MessageType() string {
	return "DistributionReport"
}

func (r *AggregateReport) addConsumption(quantity decimal.Decimal) {
	r.Consumption = r.Consumption.Add(quantity)
}

func (r *AggregateReport) addProduction(quantity decimal.Decimal) {
	r.Production = r.Production.Add(quantity)
}

// IsEmpty reports whether nothing was accumulated.
func (r *AggregateReport) IsEmpty() bool {
	return r.Consumption.IsZero() && r.Production.IsZero()
}
