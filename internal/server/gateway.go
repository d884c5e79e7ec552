package server

import (
	"BrokerLedger/internal/core"
	"BrokerLedger/internal/ingestion"
	"BrokerLedger/internal/observability"
	"BrokerLedger/internal/state"
	"BrokerLedger/internal/txn"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const maxSubmissionBytes = 64 << 10

// Engine is what the gateway reads from and submits to.
type Engine interface {
	ingestion.Submitter
	GetCurrentNetLoad(participant uuid.UUID) decimal.Decimal
	GetCurrentMarketPosition(participant uuid.UUID) decimal.Decimal
	GetCashBalance(participant uuid.UUID) (decimal.Decimal, error)
	GetPendingTariffTransactions() []*txn.TariffTransaction
	PendingCount() int
	Phase() core.Phase
	Round() int64
	BankInterest() decimal.Decimal
	PartialState() (state.PartialState, bool)
	AcknowledgePartial()
}

// Gateway serves the query and submission API as HTTP/JSON routes on a
// grpc-gateway ServeMux.
type Gateway struct {
	engine  Engine
	metrics *observability.Metrics
	logger  zerolog.Logger
}

func NewGateway(engine Engine, metrics *observability.Metrics, logger zerolog.Logger) *Gateway {
	return &Gateway{
		engine:  engine,
		metrics: metrics,
		logger:  logger.With().Str("module", "gateway").Logger(),
	}
}

type route struct {
	method  string
	pattern string
	name    string
	handler runtime.HandlerFunc
}

// Mux registers every route on a fresh ServeMux.
func (g *Gateway) Mux() (*runtime.ServeMux, error) {
	mux := runtime.NewServeMux()
	routes := []route{
		{http.MethodGet, "/v1/participants/{id}/net-load", "net_load", g.netLoad},
		{http.MethodGet, "/v1/participants/{id}/market-position", "market_position", g.marketPosition},
		{http.MethodGet, "/v1/participants/{id}/cash", "cash", g.cash},
		{http.MethodGet, "/v1/pending/tariff", "pending_tariff", g.pendingTariff},
		{http.MethodPost, "/v1/submit/{kind}", "submit", g.submit},
		{http.MethodGet, "/v1/engine/state", "engine_state", g.engineState},
		{http.MethodPost, "/v1/engine/acknowledge-partial", "acknowledge_partial", g.acknowledgePartial},
	}
	for _, rt := range routes {
		if err := mux.HandlePath(rt.method, rt.pattern, g.instrument(rt.name, rt.handler)); err != nil {
			return nil, fmt.Errorf("register %s %s: %w", rt.method, rt.pattern, err)
		}
	}
	return mux, nil
}

func (g *Gateway) instrument(name string, h runtime.HandlerFunc) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, params map[string]string) {
		if g.metrics != nil {
			g.metrics.QueryRequests.WithLabelValues(name).Inc()
		}
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r, params)
		if rec.status >= http.StatusBadRequest && g.metrics != nil {
			g.metrics.QueryErrors.WithLabelValues(name, strconv.Itoa(rec.status)).Inc()
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// --- Queries ---

type netLoadResponse struct {
	ParticipantID uuid.UUID       `json:"participant_id"`
	NetLoad       decimal.Decimal `json:"net_load"`
}

func (g *Gateway) netLoad(w http.ResponseWriter, r *http.Request, params map[string]string) {
	id, ok := g.participantParam(w, params)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, netLoadResponse{ParticipantID: id, NetLoad: g.engine.GetCurrentNetLoad(id)})
}

type marketPositionResponse struct {
	ParticipantID  uuid.UUID       `json:"participant_id"`
	MarketPosition decimal.Decimal `json:"market_position"`
}

func (g *Gateway) marketPosition(w http.ResponseWriter, r *http.Request, params map[string]string) {
	id, ok := g.participantParam(w, params)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, marketPositionResponse{ParticipantID: id, MarketPosition: g.engine.GetCurrentMarketPosition(id)})
}

type cashResponse struct {
	ParticipantID uuid.UUID       `json:"participant_id"`
	Balance       decimal.Decimal `json:"balance"`
}

func (g *Gateway) cash(w http.ResponseWriter, r *http.Request, params map[string]string) {
	id, ok := g.participantParam(w, params)
	if !ok {
		return
	}
	balance, err := g.engine.GetCashBalance(id)
	if errors.Is(err, core.ErrUnknownParticipant) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, cashResponse{ParticipantID: id, Balance: balance})
}

type pendingTariffResponse struct {
	Count        int                      `json:"count"`
	Transactions []*txn.TariffTransaction `json:"transactions"`
}

func (g *Gateway) pendingTariff(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	pending := g.engine.GetPendingTariffTransactions()
	writeJSON(w, http.StatusOK, pendingTariffResponse{Count: len(pending), Transactions: pending})
}

type engineStateResponse struct {
	Phase        string              `json:"phase"`
	Round        int64               `json:"round"`
	Pending      int                 `json:"pending"`
	BankInterest decimal.Decimal     `json:"bank_interest"`
	Partial      *state.PartialState `json:"partial"`
}

func (g *Gateway) engineState(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	resp := engineStateResponse{
		Phase:        g.engine.Phase().String(),
		Round:        g.engine.Round(),
		Pending:      g.engine.PendingCount(),
		BankInterest: g.engine.BankInterest(),
	}
	if partial, ok := g.engine.PartialState(); ok {
		resp.Partial = &partial
	}
	writeJSON(w, http.StatusOK, resp)
}

func (g *Gateway) acknowledgePartial(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	partial, ok := g.engine.PartialState()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"acknowledged": false})
		return
	}
	g.engine.AcknowledgePartial()
	g.logger.Info().Int64("round", partial.Round).Str("cause", partial.Cause).Msg("partial round acknowledged")
	writeJSON(w, http.StatusOK, map[string]any{"acknowledged": true, "round": partial.Round})
}

// --- Submissions ---

type submitResponse struct {
	ID            uuid.UUID `json:"id"`
	Kind          string    `json:"kind"`
	ParticipantID uuid.UUID `json:"participant_id"`
}

func (g *Gateway) submit(w http.ResponseWriter, r *http.Request, params map[string]string) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxSubmissionBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sub, err := ingestion.ParseSubmission(params["kind"], body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	tx, err := sub.Apply(g.engine)
	if errors.Is(err, core.ErrMalformedSubmission) {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusAccepted, submitResponse{
		ID:            tx.TxID(),
		Kind:          tx.Kind().String(),
		ParticipantID: tx.Owner(),
	})
}

// --- Helpers ---

func (g *Gateway) participantParam(w http.ResponseWriter, params map[string]string) (uuid.UUID, bool) {
	id, err := uuid.Parse(params["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid participant id: %w", err))
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
