package ingestion_test

import (
	"BrokerLedger/internal/core"
	"BrokerLedger/internal/ingestion"
	"BrokerLedger/internal/txn"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSubmitter captures Submission API calls.
type recordingSubmitter struct {
	market       []*txn.MarketTransaction
	tariff       []*txn.TariffTransaction
	distribution []*txn.DistributionTransaction
	balancing    []*txn.BalancingTransaction
	err          error
}

func (r *recordingSubmitter) AddMarketTransaction(participant uuid.UUID, timeslot txn.Timeslot, quantity, price decimal.Decimal) (*txn.MarketTransaction, error) {
	if r.err != nil {
		return nil, r.err
	}
	tx := &txn.MarketTransaction{Header: txn.NewHeader(participant, time.Time{}), Timeslot: timeslot, Quantity: quantity, Price: price}
	r.market = append(r.market, tx)
	return tx, nil
}

func (r *recordingSubmitter) AddTariffTransaction(txType txn.TariffType, tariff *txn.Tariff, customer *txn.CustomerInfo, customerCount int, quantity, charge decimal.Decimal) (*txn.TariffTransaction, error) {
	if r.err != nil {
		return nil, r.err
	}
	tx := &txn.TariffTransaction{
		Header:        txn.NewHeader(tariff.BrokerID, time.Time{}),
		TxType:        txType,
		Customer:      customer,
		CustomerCount: customerCount,
		Quantity:      quantity,
		Charge:        charge,
	}
	r.tariff = append(r.tariff, tx)
	return tx, nil
}

func (r *recordingSubmitter) AddDistributionTransaction(participant uuid.UUID, quantity, charge decimal.Decimal) (*txn.DistributionTransaction, error) {
	if r.err != nil {
		return nil, r.err
	}
	tx := &txn.DistributionTransaction{Header: txn.NewHeader(participant, time.Time{}), Quantity: quantity, Charge: charge}
	r.distribution = append(r.distribution, tx)
	return tx, nil
}

func (r *recordingSubmitter) AddBalancingTransaction(participant uuid.UUID, quantity, charge decimal.Decimal) (*txn.BalancingTransaction, error) {
	if r.err != nil {
		return nil, r.err
	}
	tx := &txn.BalancingTransaction{Header: txn.NewHeader(participant, time.Time{}), Quantity: quantity, Charge: charge}
	r.balancing = append(r.balancing, tx)
	return tx, nil
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

const participantID = "550e8400-e29b-41d4-a716-446655440000"

func TestParseMarket(t *testing.T) {
	data := mustJSON(t, map[string]any{
		"submission_id":  "m-1",
		"participant_id": participantID,
		"timeslot":       map[string]any{"serial": 361, "start_time": "2026-03-02T13:00:00Z"},
		"quantity":       "-10",
		"price":          2.5,
	})

	sub, err := ingestion.ParseSubmission(ingestion.KindMarket, data)
	require.NoError(t, err)
	assert.Equal(t, "m-1", sub.Key())

	rec := &recordingSubmitter{}
	tx, err := sub.Apply(rec)
	require.NoError(t, err)
	require.Len(t, rec.market, 1)
	assert.Same(t, rec.market[0], tx)

	mtx := rec.market[0]
	assert.Equal(t, uuid.MustParse(participantID), mtx.Owner())
	assert.Equal(t, 361, mtx.Timeslot.Serial)
	assert.Equal(t, time.Date(2026, 3, 2, 13, 0, 0, 0, time.UTC), mtx.Timeslot.StartTime)
	assert.True(t, mtx.Quantity.Equal(decimal.NewFromInt(-10)))
	assert.True(t, mtx.Price.Equal(decimal.RequireFromString("2.5")))
}

func TestParseMarket_MissingSerial(t *testing.T) {
	data := mustJSON(t, map[string]any{
		"participant_id": participantID,
		"quantity":       "1",
		"price":          "1",
	})
	_, err := ingestion.ParseSubmission(ingestion.KindMarket, data)
	assert.ErrorIs(t, err, core.ErrMalformedSubmission)
}

func TestParseTariff(t *testing.T) {
	data := mustJSON(t, map[string]any{
		"tx_type":        "CONSUME",
		"tariff":         map[string]any{"spec_id": 12, "broker_id": participantID},
		"customer":       map[string]any{"id": 4, "name": "suburb", "population": 3000},
		"customer_count": 150,
		"quantity":       "-42.5",
		"charge":         "-8.5",
	})

	sub, err := ingestion.ParseSubmission(ingestion.KindTariff, data)
	require.NoError(t, err)
	assert.Empty(t, sub.Key())

	ts, ok := sub.(*ingestion.TariffSubmission)
	require.True(t, ok)
	assert.Equal(t, txn.TariffConsume, ts.TxType)
	assert.Equal(t, int64(12), ts.Tariff.SpecID)
	require.NotNil(t, ts.Customer)
	assert.Equal(t, "suburb", ts.Customer.Name)

	rec := &recordingSubmitter{}
	_, err = sub.Apply(rec)
	require.NoError(t, err)
	require.Len(t, rec.tariff, 1)
	assert.Equal(t, 150, rec.tariff[0].CustomerCount)
	assert.True(t, rec.tariff[0].Charge.Equal(decimal.RequireFromString("-8.5")))
}

func TestParseTariff_Invalid(t *testing.T) {
	cases := map[string]map[string]any{
		"unknown type":   {"tx_type": "BOGUS", "tariff": map[string]any{"spec_id": 1, "broker_id": participantID}},
		"missing type":   {"tariff": map[string]any{"spec_id": 1, "broker_id": participantID}},
		"missing tariff": {"tx_type": "PRODUCE"},
		"bad broker":     {"tx_type": "PRODUCE", "tariff": map[string]any{"spec_id": 1, "broker_id": "x"}},
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ingestion.ParseSubmission(ingestion.KindTariff, mustJSON(t, payload))
			assert.ErrorIs(t, err, core.ErrMalformedSubmission)
		})
	}
}

func TestParseCharges(t *testing.T) {
	data := mustJSON(t, map[string]any{
		"participant_id": participantID,
		"quantity":       "7",
		"charge":         "-1.4",
	})

	rec := &recordingSubmitter{}

	dist, err := ingestion.ParseSubmission(ingestion.KindDistribution, data)
	require.NoError(t, err)
	_, err = dist.Apply(rec)
	require.NoError(t, err)

	bal, err := ingestion.ParseSubmission(ingestion.KindBalancing, data)
	require.NoError(t, err)
	_, err = bal.Apply(rec)
	require.NoError(t, err)

	assert.Len(t, rec.distribution, 1)
	assert.Len(t, rec.balancing, 1)
	assert.True(t, rec.balancing[0].Charge.Equal(decimal.RequireFromString("-1.4")))
}

func TestParseSubmission_Rejects(t *testing.T) {
	_, err := ingestion.ParseSubmission("bank", []byte(`{}`))
	assert.ErrorIs(t, err, core.ErrMalformedSubmission)

	_, err = ingestion.ParseSubmission(ingestion.KindDistribution, []byte(`{not json`))
	assert.ErrorIs(t, err, core.ErrMalformedSubmission)

	_, err = ingestion.ParseSubmission(ingestion.KindDistribution, []byte(`{"participant_id":"nope"}`))
	assert.ErrorIs(t, err, core.ErrMalformedSubmission)
}

func TestApply_ErrorReturnsNilTransaction(t *testing.T) {
	sub, err := ingestion.ParseSubmission(ingestion.KindBalancing, mustJSON(t, map[string]any{
		"participant_id": participantID,
		"charge":         "1",
	}))
	require.NoError(t, err)

	tx, err := sub.Apply(&recordingSubmitter{err: core.ErrMalformedSubmission})
	assert.Error(t, err)
	assert.Nil(t, tx)
}

// --- Handler ---

func TestKindFromSubject(t *testing.T) {
	kind, err := ingestion.KindFromSubject("ledger.submit.tariff.alpha")
	require.NoError(t, err)
	assert.Equal(t, "tariff", kind)

	_, err = ingestion.KindFromSubject("perp.trades.x")
	assert.ErrorIs(t, err, core.ErrMalformedSubmission)
}

func TestHandler_Outcomes(t *testing.T) {
	rec := &recordingSubmitter{}
	h := ingestion.NewHandler(rec, ingestion.NewDedupCache(16), zerolog.Nop())
	payload := mustJSON(t, map[string]any{"participant_id": participantID, "charge": "-2"})

	outcome, err := h.Handle("ledger.submit.distribution.alpha", payload, "msg-1")
	require.NoError(t, err)
	assert.Equal(t, ingestion.OutcomeAck, outcome)

	// Redelivery of the same message id is acknowledged but not resubmitted
	outcome, err = h.Handle("ledger.submit.distribution.alpha", payload, "msg-1")
	require.NoError(t, err)
	assert.Equal(t, ingestion.OutcomeAck, outcome)
	assert.Len(t, rec.distribution, 1)

	outcome, _ = h.Handle("ledger.submit.distribution.alpha", []byte(`{bad`), "msg-2")
	assert.Equal(t, ingestion.OutcomeTerminate, outcome)

	rec.err = core.ErrMalformedSubmission
	outcome, _ = h.Handle("ledger.submit.distribution.alpha", payload, "msg-3")
	assert.Equal(t, ingestion.OutcomeTerminate, outcome)

	rec.err = errors.New("transient")
	outcome, _ = h.Handle("ledger.submit.distribution.alpha", payload, "msg-4")
	assert.Equal(t, ingestion.OutcomeRetry, outcome)

	// A failed submission is not remembered, so the retry goes through
	rec.err = nil
	outcome, err = h.Handle("ledger.submit.distribution.alpha", payload, "msg-4")
	require.NoError(t, err)
	assert.Equal(t, ingestion.OutcomeAck, outcome)
	assert.Len(t, rec.distribution, 2)
}

func TestDedupCache_EvictsLeastRecentlyUsed(t *testing.T) {
	d := ingestion.NewDedupCache(2)
	d.Add("a")
	d.Add("b")
	assert.True(t, d.Seen("a")) // promotes a

	d.Add("c") // evicts b

	assert.True(t, d.Seen("a"))
	assert.False(t, d.Seen("b"))
	assert.True(t, d.Seen("c"))
	assert.Equal(t, 2, d.Size())
	assert.Equal(t, int64(1), d.Evictions())
}
