package server_test

import (
	"BrokerLedger/internal/core"
	"BrokerLedger/internal/directory"
	"BrokerLedger/internal/observability"
	"BrokerLedger/internal/server"
	"BrokerLedger/internal/simclock"
	"BrokerLedger/internal/txn"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)

type nopTransport struct{}

func (nopTransport) SendToParticipant(context.Context, txn.Participant, []core.Message) error {
	return nil
}

func (nopTransport) Broadcast(context.Context, core.Message) error {
	return nil
}

type fixture struct {
	engine  *core.Engine
	metrics *observability.Metrics
	broker  txn.Participant
	srv     *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := directory.NewStatic()
	broker := txn.Participant{ID: uuid.New(), Username: "alpha"}
	require.NoError(t, dir.Register(broker))
	dir.Publish(txn.TariffSpec{ID: 7, BrokerID: broker.ID, PowerType: "CONSUMPTION"})

	clock := simclock.NewClock(start, time.Hour)
	metrics := observability.NewMetricsWith(prometheus.NewRegistry())
	engine := core.NewEngine(core.Config{
		Directory: dir,
		Catalog:   dir,
		Clock:     clock,
		Timeslots: clock,
		Transport: nopTransport{},
		Metrics:   metrics,
		Logger:    zerolog.Nop(),
	})
	rate := 0.10
	require.NoError(t, engine.Configure(0.04, 0.12, &rate, nil))

	health := observability.NewHealthChecker()
	health.SetReady(true)
	srv := server.New(":0", ":0", server.NewGateway(engine, metrics, zerolog.Nop()), health, zerolog.Nop())
	handler, err := srv.Handler()
	require.NoError(t, err)

	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return &fixture{engine: engine, metrics: metrics, broker: broker, srv: ts}
}

func (f *fixture) get(t *testing.T, path string, out any) int {
	t.Helper()
	resp, err := http.Get(f.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (f *fixture) post(t *testing.T, path, body string, out any) int {
	t.Helper()
	resp, err := http.Post(f.srv.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

// --- Tests ---

func TestGateway_SubmitDistributionThenSettle(t *testing.T) {
	f := newFixture(t)

	var accepted map[string]any
	body := fmt.Sprintf(`{"participant_id":%q,"quantity":"10","charge":"-2.5"}`, f.broker.ID)
	code := f.post(t, "/v1/submit/distribution", body, &accepted)
	require.Equal(t, http.StatusAccepted, code)
	assert.Equal(t, f.broker.ID.String(), accepted["participant_id"])

	var st map[string]any
	require.Equal(t, http.StatusOK, f.get(t, "/v1/engine/state", &st))
	assert.EqualValues(t, 1, st["pending"])
	assert.Equal(t, "Idle", st["phase"])

	_, err := f.engine.RunSettlementRound(context.Background(), start)
	require.NoError(t, err)

	var cash struct {
		Balance decimal.Decimal `json:"balance"`
	}
	require.Equal(t, http.StatusOK, f.get(t, "/v1/participants/"+f.broker.ID.String()+"/cash", &cash))
	assert.True(t, cash.Balance.Equal(decimal.RequireFromString("-2.5")), "got %s", cash.Balance)
}

func TestGateway_MarketPositionReflectsSubmission(t *testing.T) {
	f := newFixture(t)

	body := fmt.Sprintf(`{"participant_id":%q,"timeslot":{"serial":0},"quantity":"5","price":"-30"}`, f.broker.ID)
	require.Equal(t, http.StatusAccepted, f.post(t, "/v1/submit/market", body, nil))

	_, err := f.engine.RunSettlementRound(context.Background(), start)
	require.NoError(t, err)

	var pos struct {
		MarketPosition decimal.Decimal `json:"market_position"`
	}
	require.Equal(t, http.StatusOK, f.get(t, "/v1/participants/"+f.broker.ID.String()+"/market-position", &pos))
	assert.True(t, pos.MarketPosition.Equal(decimal.NewFromInt(5)), "got %s", pos.MarketPosition)
}

func TestGateway_PendingTariffAndNetLoad(t *testing.T) {
	f := newFixture(t)

	body := fmt.Sprintf(`{"tx_type":"CONSUME","tariff":{"spec_id":7,"broker_id":%q},"customer_count":3,"quantity":"-12","charge":"1.2"}`, f.broker.ID)
	require.Equal(t, http.StatusAccepted, f.post(t, "/v1/submit/tariff", body, nil))

	var pending struct {
		Count int `json:"count"`
	}
	require.Equal(t, http.StatusOK, f.get(t, "/v1/pending/tariff", &pending))
	assert.Equal(t, 1, pending.Count)

	var load struct {
		NetLoad decimal.Decimal `json:"net_load"`
	}
	require.Equal(t, http.StatusOK, f.get(t, "/v1/participants/"+f.broker.ID.String()+"/net-load", &load))
	assert.True(t, load.NetLoad.Equal(decimal.NewFromInt(-12)), "got %s", load.NetLoad)
}

func TestGateway_MalformedSubmission(t *testing.T) {
	f := newFixture(t)

	var body map[string]string
	assert.Equal(t, http.StatusBadRequest, f.post(t, "/v1/submit/distribution", `{"participant_id":"nope"}`, &body))
	assert.NotEmpty(t, body["error"])

	assert.Equal(t, http.StatusBadRequest, f.post(t, "/v1/submit/weather", `{}`, nil))
	assert.Equal(t, 0, f.engine.PendingCount())
}

func TestGateway_UnknownTariffSpecRejected(t *testing.T) {
	f := newFixture(t)

	body := fmt.Sprintf(`{"tx_type":"SIGNUP","tariff":{"spec_id":99,"broker_id":%q},"customer_count":1,"quantity":"0","charge":"0"}`, f.broker.ID)
	assert.Equal(t, http.StatusBadRequest, f.post(t, "/v1/submit/tariff", body, nil))
}

func TestGateway_CashUnknownParticipant(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusNotFound, f.get(t, "/v1/participants/"+uuid.NewString()+"/cash", nil))
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/v1/participants/not-a-uuid/cash", nil))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.QueryErrors.WithLabelValues("cash", "404")))
}

func TestGateway_AcknowledgeWithoutPartial(t *testing.T) {
	f := newFixture(t)

	var body map[string]any
	require.Equal(t, http.StatusOK, f.post(t, "/v1/engine/acknowledge-partial", "", &body))
	assert.Equal(t, false, body["acknowledged"])
}

func TestGateway_HealthEndpoints(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusOK, f.get(t, "/healthz", nil))
	assert.Equal(t, http.StatusOK, f.get(t, "/readyz", nil))
}
