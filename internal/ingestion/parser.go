package ingestion

import (
	"BrokerLedger/internal/core"
	"BrokerLedger/internal/txn"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Submitter is the engine's submission API.
type Submitter interface {
	AddMarketTransaction(participant uuid.UUID, timeslot txn.Timeslot, quantity, price decimal.Decimal) (*txn.MarketTransaction, error)
	AddTariffTransaction(txType txn.TariffType, tariff *txn.Tariff, customer *txn.CustomerInfo, customerCount int, quantity, charge decimal.Decimal) (*txn.TariffTransaction, error)
	AddDistributionTransaction(participant uuid.UUID, quantity, charge decimal.Decimal) (*txn.DistributionTransaction, error)
	AddBalancingTransaction(participant uuid.UUID, quantity, charge decimal.Decimal) (*txn.BalancingTransaction, error)
}

// Submission is a parsed request ready to hand to a Submitter.
type Submission interface {
	// Key is the caller-supplied submission id, empty if none
	Key() string
	Apply(s Submitter) (txn.Transaction, error)
}

// Submission kinds as they appear in subjects and HTTP paths.
const (
	KindMarket       = "market"
	KindTariff       = "tariff"
	KindDistribution = "distribution"
	KindBalancing    = "balancing"
)

// ParseSubmission decodes a JSON submission of the given kind. Every failure
// wraps core.ErrMalformedSubmission.
func ParseSubmission(kind string, data []byte) (Submission, error) {
	var (
		sub Submission
		err error
	)
	switch kind {
	case KindMarket:
		sub, err = parseMarket(data)
	case KindTariff:
		sub, err = parseTariff(data)
	case KindDistribution:
		sub, err = parseCharge(data, false)
	case KindBalancing:
		sub, err = parseCharge(data, true)
	default:
		return nil, fmt.Errorf("%w: unknown submission kind %q", core.ErrMalformedSubmission, kind)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", core.ErrMalformedSubmission, kind, err)
	}
	return sub, nil
}

// --- JSON wire formats ---
// Field names use snake_case to match participant agents.
// Amounts accept JSON strings or numbers.

type marketJSON struct {
	SubmissionID  string          `json:"submission_id"`
	ParticipantID string          `json:"participant_id"`
	Timeslot      timeslotJSON    `json:"timeslot"`
	Quantity      decimal.Decimal `json:"quantity"`
	Price         decimal.Decimal `json:"price"`
}

type timeslotJSON struct {
	Serial    *int      `json:"serial"`
	StartTime time.Time `json:"start_time"`
}

type MarketSubmission struct {
	ID          string
	Participant uuid.UUID
	Timeslot    txn.Timeslot
	Quantity    decimal.Decimal
	Price       decimal.Decimal
}

func parseMarket(data []byte) (*MarketSubmission, error) {
	var j marketJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, err
	}
	participant, err := uuid.Parse(j.ParticipantID)
	if err != nil {
		return nil, fmt.Errorf("parse participant_id: %w", err)
	}
	if j.Timeslot.Serial == nil {
		return nil, fmt.Errorf("timeslot.serial required")
	}
	return &MarketSubmission{
		ID:          j.SubmissionID,
		Participant: participant,
		Timeslot:    txn.Timeslot{Serial: *j.Timeslot.Serial, StartTime: j.Timeslot.StartTime},
		Quantity:    j.Quantity,
		Price:       j.Price,
	}, nil
}

func (m *MarketSubmission) Key() string {
	return m.ID
}

func (m *MarketSubmission) Apply(s Submitter) (txn.Transaction, error) {
	tx, err := s.AddMarketTransaction(m.Participant, m.Timeslot, m.Quantity, m.Price)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

type tariffJSON struct {
	SubmissionID  string          `json:"submission_id"`
	TxType        string          `json:"tx_type"`
	Tariff        *tariffRefJSON  `json:"tariff"`
	Customer      *customerJSON   `json:"customer"`
	CustomerCount int             `json:"customer_count"`
	Quantity      decimal.Decimal `json:"quantity"`
	Charge        decimal.Decimal `json:"charge"`
}

type tariffRefJSON struct {
	SpecID   int64  `json:"spec_id"`
	BrokerID string `json:"broker_id"`
}

type customerJSON struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Population int    `json:"population"`
}

type TariffSubmission struct {
	ID            string
	TxType        txn.TariffType
	Tariff        txn.Tariff
	Customer      *txn.CustomerInfo
	CustomerCount int
	Quantity      decimal.Decimal
	Charge        decimal.Decimal
}

func parseTariff(data []byte) (*TariffSubmission, error) {
	var j tariffJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, err
	}
	txType, ok := txn.ParseTariffType(j.TxType)
	if !ok {
		return nil, fmt.Errorf("unknown tx_type %q", j.TxType)
	}
	if j.Tariff == nil {
		return nil, fmt.Errorf("tariff required")
	}
	broker, err := uuid.Parse(j.Tariff.BrokerID)
	if err != nil {
		return nil, fmt.Errorf("parse tariff.broker_id: %w", err)
	}

	sub := &TariffSubmission{
		ID:            j.SubmissionID,
		TxType:        txType,
		Tariff:        txn.Tariff{SpecID: j.Tariff.SpecID, BrokerID: broker},
		CustomerCount: j.CustomerCount,
		Quantity:      j.Quantity,
		Charge:        j.Charge,
	}
	if j.Customer != nil {
		sub.Customer = &txn.CustomerInfo{
			ID:         j.Customer.ID,
			Name:       j.Customer.Name,
			Population: j.Customer.Population,
		}
	}
	return sub, nil
}

func (t *TariffSubmission) Key() string {
	return t.ID
}

func (t *TariffSubmission) Apply(s Submitter) (txn.Transaction, error) {
	tariff := t.Tariff
	tx, err := s.AddTariffTransaction(t.TxType, &tariff, t.Customer, t.CustomerCount, t.Quantity, t.Charge)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

type chargeJSON struct {
	SubmissionID  string          `json:"submission_id"`
	ParticipantID string          `json:"participant_id"`
	Quantity      decimal.Decimal `json:"quantity"`
	Charge        decimal.Decimal `json:"charge"`
}

// ChargeSubmission is a distribution or balancing charge.
type ChargeSubmission struct {
	ID          string
	Balancing   bool
	Participant uuid.UUID
	Quantity    decimal.Decimal
	Charge      decimal.Decimal
}

func parseCharge(data []byte, balancing bool) (*ChargeSubmission, error) {
	var j chargeJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, err
	}
	participant, err := uuid.Parse(j.ParticipantID)
	if err != nil {
		return nil, fmt.Errorf("parse participant_id: %w", err)
	}
	return &ChargeSubmission{
		ID:          j.SubmissionID,
		Balancing:   balancing,
		Participant: participant,
		Quantity:    j.Quantity,
		Charge:      j.Charge,
	}, nil
}

func (c *ChargeSubmission) Key() string {
	return c.ID
}

func (c *ChargeSubmission) Apply(s Submitter) (txn.Transaction, error) {
	if c.Balancing {
		tx, err := s.AddBalancingTransaction(c.Participant, c.Quantity, c.Charge)
		if err != nil {
			return nil, err
		}
		return tx, nil
	}
	tx, err := s.AddDistributionTransaction(c.Participant, c.Quantity, c.Charge)
	if err != nil {
		return nil, err
	}
	return tx, nil
}
