package core

import (
	"BrokerLedger/internal/ledger"
	"BrokerLedger/internal/observability"
	"BrokerLedger/internal/seed"
	"BrokerLedger/internal/state"
	"BrokerLedger/internal/txn"
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// TimeService supplies the simulated clock used to stamp submissions.
type TimeService interface {
	CurrentTime() time.Time
}

// TimeslotRepo resolves the timeslot the simulation is currently in.
type TimeslotRepo interface {
	CurrentTimeslot() (txn.Timeslot, bool)
}

// TariffCatalog is a read-only lookup of published tariff specifications.
type TariffCatalog interface {
	FindSpecification(id int64) (*txn.TariffSpec, bool)
}

// Phase is the settlement engine's position in a round.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseDraining
	PhaseSettling
	PhaseAccruing
	PhaseReporting
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "Idle"
	case PhaseDraining:
		return "Draining"
	case PhaseSettling:
		return "Settling"
	case PhaseAccruing:
		return "Accruing"
	case PhaseReporting:
		return "Reporting"
	default:
		return "Unknown"
	}
}

// Config wires the engine's collaborators. Metrics may be nil.
type Config struct {
	Directory   state.Directory
	Catalog     TariffCatalog
	Clock       TimeService
	Timeslots   TimeslotRepo
	Transport   Transport
	Metrics     *observability.Metrics
	Logger      zerolog.Logger
	AccrualHour int
}

// RoundSummary describes one completed (or aborted) settlement pass.
type RoundSummary struct {
	Round            int64
	Time             time.Time
	Drained          int
	Settled          int
	Skipped          int
	CashDelta        decimal.Decimal // Charges plus market cash moved by settled transactions
	InterestApplied  bool
	InterestTotal    decimal.Decimal
	Conserved        bool // Total cash moved by exactly CashDelta + InterestTotal
	Delivered        int
	DeliveryFailures []error
	Report           *AggregateReport
}

// Engine is the settlement core: submissions go into the queue from any
// goroutine; one scheduler goroutine calls RunSettlementRound per round.
type Engine struct {
	queue      *ledger.Queue
	store      *state.Store
	directory  state.Directory
	catalog    TariffCatalog
	clock      TimeService
	timeslots  TimeslotRepo
	dispatcher *dispatcher
	interest   *interestAccrual
	router     *router
	metrics    *observability.Metrics
	logger     zerolog.Logger

	phase atomic.Int32
	round atomic.Int64
}

func NewEngine(cfg Config) *Engine {
	store := state.NewStore(cfg.Directory)
	logger := cfg.Logger.With().Str("module", "settlement").Logger()

	return &Engine{
		queue:      ledger.NewQueue(),
		store:      store,
		directory:  cfg.Directory,
		catalog:    cfg.Catalog,
		clock:      cfg.Clock,
		timeslots:  cfg.Timeslots,
		dispatcher: newDispatcher(store, cfg.Directory, cfg.Metrics),
		interest:   newInterestAccrual(cfg.AccrualHour),
		router: &router{
			transport: cfg.Transport,
			directory: cfg.Directory,
			store:     store,
			metrics:   cfg.Metrics,
			logger:    logger,
		},
		metrics: cfg.Metrics,
		logger:  logger,
	}
}

// Configure resolves and freezes the annual bank interest rate. It must be
// called once before the first round.
func (e *Engine) Configure(minRate, maxRate float64, override *float64, src seed.Source) error {
	rate, err := e.interest.configure(minRate, maxRate, override, src)
	if err != nil {
		return err
	}
	e.logger.Info().
		Str("bank_interest", rate.String()).
		Float64("min", minRate).
		Float64("max", maxRate).
		Bool("override", override != nil).
		Msg("bank interest configured")
	if e.metrics != nil {
		e.metrics.BankInterestRate.Set(rate.InexactFloat64())
	}
	return nil
}

// BankInterest returns the resolved annual rate (zero before Configure).
func (e *Engine) BankInterest() decimal.Decimal {
	rate, _, _ := e.interest.rates()
	return rate
}

func (e *Engine) MinInterest() float64 {
	_, minRate, _ := e.interest.rates()
	return minRate
}

func (e *Engine) MaxInterest() float64 {
	_, _, maxRate := e.interest.rates()
	return maxRate
}

// --- Submission API ---

// AddMarketTransaction queues a cleared trade. Quantity is signed:
// negative sold, positive bought.
func (e *Engine) AddMarketTransaction(participant uuid.UUID, timeslot txn.Timeslot, quantity, price decimal.Decimal) (*txn.MarketTransaction, error) {
	if participant == uuid.Nil {
		return nil, e.reject(txn.KindMarket, malformed("market transaction without participant"))
	}
	if timeslot.Serial < 0 {
		return nil, e.reject(txn.KindMarket, malformed("invalid timeslot serial %d", timeslot.Serial))
	}
	mtx := &txn.MarketTransaction{
		Header:   txn.NewHeader(participant, e.clock.CurrentTime()),
		Timeslot: timeslot,
		Price:    price,
		Quantity: quantity,
	}
	e.submit(mtx)
	return mtx, nil
}

// AddTariffTransaction queues a tariff event. The transaction belongs to the
// tariff's broker and carries the specification resolved from the catalog.
func (e *Engine) AddTariffTransaction(
	txType txn.TariffType,
	tariff *txn.Tariff,
	customer *txn.CustomerInfo,
	customerCount int,
	quantity, charge decimal.Decimal,
) (*txn.TariffTransaction, error) {
	if tariff == nil {
		return nil, e.reject(txn.KindTariff, malformed("tariff transaction without tariff"))
	}
	if tariff.BrokerID == uuid.Nil {
		return nil, e.reject(txn.KindTariff, malformed("tariff %d has no broker", tariff.SpecID))
	}
	if txType.String() == "UNKNOWN" {
		return nil, e.reject(txn.KindTariff, malformed("unknown tariff transaction type %d", txType))
	}
	if customerCount < 0 {
		return nil, e.reject(txn.KindTariff, malformed("negative customer count %d", customerCount))
	}
	spec, ok := e.catalog.FindSpecification(tariff.SpecID)
	if !ok {
		return nil, e.reject(txn.KindTariff, malformed("unknown tariff specification %d", tariff.SpecID))
	}

	ttx := &txn.TariffTransaction{
		Header:        txn.NewHeader(tariff.BrokerID, e.clock.CurrentTime()),
		TxType:        txType,
		Spec:          spec,
		Customer:      customer,
		CustomerCount: customerCount,
		Quantity:      quantity,
		Charge:        charge,
	}
	e.submit(ttx)
	return ttx, nil
}

// AddDistributionTransaction queues a grid-use fee.
func (e *Engine) AddDistributionTransaction(participant uuid.UUID, quantity, charge decimal.Decimal) (*txn.DistributionTransaction, error) {
	if participant == uuid.Nil {
		return nil, e.reject(txn.KindDistribution, malformed("distribution transaction without participant"))
	}
	dtx := &txn.DistributionTransaction{
		Header:   txn.NewHeader(participant, e.clock.CurrentTime()),
		Quantity: quantity,
		Charge:   charge,
	}
	e.submit(dtx)
	return dtx, nil
}

// AddBalancingTransaction queues an imbalance settlement.
func (e *Engine) AddBalancingTransaction(participant uuid.UUID, quantity, charge decimal.Decimal) (*txn.BalancingTransaction, error) {
	if participant == uuid.Nil {
		return nil, e.reject(txn.KindBalancing, malformed("balancing transaction without participant"))
	}
	btx := &txn.BalancingTransaction{
		Header:   txn.NewHeader(participant, e.clock.CurrentTime()),
		Quantity: quantity,
		Charge:   charge,
	}
	e.submit(btx)
	return btx, nil
}

func (e *Engine) submit(tx txn.Transaction) {
	e.queue.Submit(tx)
	if e.metrics != nil {
		e.metrics.Submissions.WithLabelValues(tx.Kind().String()).Inc()
	}
}

func (e *Engine) reject(kind txn.Kind, err error) error {
	if e.metrics != nil {
		e.metrics.SubmissionsRejected.WithLabelValues(kind.String()).Inc()
	}
	e.logger.Debug().Err(err).Str("kind", kind.String()).Msg("submission rejected")
	return err
}

// --- Query API ---

// GetCurrentNetLoad sums the participant's undrained CONSUME/PRODUCE
// quantities. Only meaningful before the round's drain; zero afterwards.
func (e *Engine) GetCurrentNetLoad(participant uuid.UUID) decimal.Decimal {
	netLoad := e.queue.PeekNetLoad(participant)
	e.logger.Debug().Stringer("participant", participant).Str("net_load", netLoad.String()).Msg("net load")
	return netLoad
}

// GetCurrentMarketPosition returns the settled overall balance for the
// current timeslot, zero when there is none.
func (e *Engine) GetCurrentMarketPosition(participant uuid.UUID) decimal.Decimal {
	current, ok := e.timeslots.CurrentTimeslot()
	if !ok {
		e.logger.Debug().Msg("no current timeslot")
		return decimal.Zero
	}
	balance, found := e.store.MarketBalance(participant, current.Serial)
	if !found {
		e.logger.Debug().Int("timeslot", current.Serial).Stringer("participant", participant).Msg("no market position")
		return decimal.Zero
	}
	return balance
}

// GetPendingTariffTransactions snapshots the undrained tariff transactions.
func (e *Engine) GetPendingTariffTransactions() []*txn.TariffTransaction {
	return e.queue.PendingTariff()
}

// PendingCount returns the number of undrained transactions.
func (e *Engine) PendingCount() int {
	return e.queue.Len()
}

// GetCashBalance returns the participant's settled cash balance.
func (e *Engine) GetCashBalance(participant uuid.UUID) (decimal.Decimal, error) {
	return e.store.Balance(participant)
}

func (e *Engine) Phase() Phase {
	return Phase(e.phase.Load())
}

// Round returns the number of the last round invoked.
func (e *Engine) Round() int64 {
	return e.round.Load()
}

// PartialState reports an unacknowledged partially-applied round.
func (e *Engine) PartialState() (state.PartialState, bool) {
	return e.store.Partial()
}

// AcknowledgePartial clears the partial flag once reconciled externally.
func (e *Engine) AcknowledgePartial() {
	e.store.AcknowledgePartial()
	if e.metrics != nil {
		e.metrics.PartialApplied.Set(0)
	}
}

// PruneTimeslotsBefore drops market positions older than serial.
func (e *Engine) PruneTimeslotsBefore(serial int) int {
	return e.store.PruneTimeslotsBefore(serial)
}

// TotalCash sums all participants' cash balances.
func (e *Engine) TotalCash() decimal.Decimal {
	return e.store.TotalCash()
}

// --- Round ---

// RunSettlementRound drains the queue, settles every transaction in
// submission order, accrues interest when currentTime is the accrual
// instant, then flushes outboxes and broadcasts the aggregate report.
//
// A second call while a round is running returns ErrRoundInProgress. On a
// *ProcessingError the pass stops, the store is flagged partially applied,
// and the summary so far is returned with the error.
func (e *Engine) RunSettlementRound(ctx context.Context, currentTime time.Time) (*RoundSummary, error) {
	if !e.phase.CompareAndSwap(int32(PhaseIdle), int32(PhaseDraining)) {
		e.roundFailed("reentrant")
		return nil, ErrRoundInProgress
	}
	defer e.setPhase(PhaseIdle)

	if !e.interest.isConfigured() {
		e.roundFailed("not_configured")
		return nil, ErrNotConfigured
	}

	start := time.Now()
	round := e.round.Add(1)
	if e.metrics != nil {
		e.metrics.RoundSequence.Set(float64(round))
	}

	// Draining
	drained := e.queue.DrainAll()
	if e.metrics != nil {
		e.metrics.PendingDepth.Set(float64(len(drained)))
	}

	summary := &RoundSummary{
		Round:         round,
		Time:          currentTime,
		Drained:       len(drained),
		CashDelta:     decimal.Zero,
		InterestTotal: decimal.Zero,
		Report:        newAggregateReport(),
	}
	out := newOutbox(e.directory.List())
	conservation := ledger.BeginConservation(e.store.TotalCash())

	// Settling
	e.setPhase(PhaseSettling)
	for _, tx := range drained {
		delta, err := e.dispatcher.settle(tx, out, summary.Report)
		if err != nil {
			var perr *ProcessingError
			if errors.As(err, &perr) {
				return summary, e.abort(round, currentTime, err)
			}
			summary.Skipped++
			summary.CashDelta = summary.CashDelta.Add(delta)
			e.skipped(tx, err)
			continue
		}
		summary.Settled++
		summary.CashDelta = summary.CashDelta.Add(delta)
		if e.metrics != nil {
			e.metrics.TxSettled.WithLabelValues(tx.Kind().String()).Inc()
		}
	}

	// Accruing
	e.setPhase(PhaseAccruing)
	summary.InterestTotal, summary.InterestApplied = e.accrue(currentTime, out)
	if err := conservation.Verify(e.store.TotalCash(), summary.CashDelta, summary.InterestTotal); err != nil {
		e.logger.Error().Err(err).Int64("round", round).Msg("conservation check failed")
	} else {
		summary.Conserved = true
	}

	// Reporting
	e.setPhase(PhaseReporting)
	summary.Delivered, summary.DeliveryFailures = e.router.flush(ctx, out, summary.Report)

	if e.metrics != nil {
		e.metrics.RoundsSettled.Inc()
		e.metrics.RoundDuration.Observe(time.Since(start).Seconds())
	}
	e.logger.Info().
		Int64("round", round).
		Time("sim_time", currentTime).
		Int("drained", summary.Drained).
		Int("settled", summary.Settled).
		Int("skipped", summary.Skipped).
		Str("cash_delta", summary.CashDelta.String()).
		Bool("interest", summary.InterestApplied).
		Str("consumption", summary.Report.Consumption.String()).
		Str("production", summary.Report.Production.String()).
		Int("delivery_failures", len(summary.DeliveryFailures)).
		Msg("settlement round complete")

	return summary, nil
}

// accrue posts interest on every registered participant's balance when
// currentTime is an accrual instant not yet accrued.
func (e *Engine) accrue(currentTime time.Time, out *Outbox) (decimal.Decimal, bool) {
	instant, due := e.interest.due(currentTime)
	if !due {
		return decimal.Zero, false
	}

	total := decimal.Zero
	for _, p := range e.directory.List() {
		balance, err := e.store.Balance(p.ID)
		if err != nil {
			e.logger.Warn().Err(err).Stringer("participant", p.ID).Msg("interest skipped")
			continue
		}
		amount := balance.Mul(e.interest.dailyRate(balance))
		if err := e.store.Deposit(p.ID, amount); err != nil {
			e.logger.Warn().Err(err).Stringer("participant", p.ID).Msg("interest skipped")
			continue
		}
		out.Append(p.ID, txn.NewBankTransaction(p.ID, amount, currentTime))
		total = total.Add(amount)

		if e.metrics != nil {
			e.metrics.InterestAccruals.Inc()
		}
	}
	e.interest.markAccrued(instant)

	if e.metrics != nil {
		e.metrics.InterestNet.Set(total.InexactFloat64())
	}
	e.logger.Info().Time("instant", instant).Str("total", total.String()).Msg("interest accrued")
	return total, true
}

func (e *Engine) abort(round int64, at time.Time, err error) error {
	e.store.MarkPartial(round, at, err)
	e.roundFailed("processing_error")
	if e.metrics != nil {
		e.metrics.PartialApplied.Set(1)
	}
	e.logger.Error().Err(err).Int64("round", round).Msg("settlement pass aborted, store partially applied")
	return fmt.Errorf("round %d: %w", round, err)
}

func (e *Engine) skipped(tx txn.Transaction, err error) {
	e.logger.Error().
		Err(err).
		Stringer("tx", tx.TxID()).
		Str("kind", tx.Kind().String()).
		Stringer("participant", tx.Owner()).
		Msg("transaction skipped")
	if e.metrics != nil {
		reason := "error"
		if errors.Is(err, ErrUnknownParticipant) {
			reason = "unknown_participant"
		}
		e.metrics.TxSkipped.WithLabelValues(tx.Kind().String(), reason).Inc()
	}
}

func (e *Engine) roundFailed(reason string) {
	if e.metrics != nil {
		e.metrics.RoundsFailed.WithLabelValues(reason).Inc()
	}
}

func (e *Engine) setPhase(p Phase) {
	e.phase.Store(int32(p))
}
