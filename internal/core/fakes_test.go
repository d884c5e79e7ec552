package core_test

import (
	"BrokerLedger/internal/core"
	"BrokerLedger/internal/seed"
	"BrokerLedger/internal/txn"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Test helpers ---

var (
	midnight = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	midday   = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
)

type fakeDirectory struct {
	participants []txn.Participant
}

func newFakeDirectory(names ...string) *fakeDirectory {
	d := &fakeDirectory{}
	for _, name := range names {
		d.participants = append(d.participants, txn.Participant{ID: uuid.New(), Username: name})
	}
	return d
}

func (d *fakeDirectory) Lookup(id uuid.UUID) (txn.Participant, bool) {
	for _, p := range d.participants {
		if p.ID == id {
			return p, true
		}
	}
	return txn.Participant{}, false
}

func (d *fakeDirectory) List() []txn.Participant {
	return d.participants
}

func (d *fakeDirectory) id(i int) uuid.UUID {
	return d.participants[i].ID
}

type fakeCatalog map[int64]*txn.TariffSpec

func (c fakeCatalog) FindSpecification(id int64) (*txn.TariffSpec, bool) {
	spec, ok := c[id]
	return spec, ok
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) CurrentTime() time.Time {
	return c.now
}

type fakeTimeslots struct {
	current txn.Timeslot
	ok      bool
}

func (f *fakeTimeslots) CurrentTimeslot() (txn.Timeslot, bool) {
	return f.current, f.ok
}

// recordingTransport captures deliveries; participants in failFor error out.
type recordingTransport struct {
	mu         sync.Mutex
	sent       map[uuid.UUID][][]core.Message
	broadcasts []core.Message
	failFor    map[uuid.UUID]bool
	block      chan struct{}
	entered    chan struct{}
}

func newRecordingTransport() *recordingTransport {
	return &recordingTransport{
		sent:    make(map[uuid.UUID][][]core.Message),
		failFor: make(map[uuid.UUID]bool),
	}
}

func (t *recordingTransport) SendToParticipant(ctx context.Context, participant txn.Participant, messages []core.Message) error {
	if t.block != nil {
		t.entered <- struct{}{}
		<-t.block
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failFor[participant.ID] {
		return errors.New("connection refused")
	}
	copied := append([]core.Message(nil), messages...)
	t.sent[participant.ID] = append(t.sent[participant.ID], copied)
	return nil
}

func (t *recordingTransport) Broadcast(ctx context.Context, msg core.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.broadcasts = append(t.broadcasts, msg)
	return nil
}

func (t *recordingTransport) last(participant uuid.UUID) []core.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	batches := t.sent[participant]
	if len(batches) == 0 {
		return nil
	}
	return batches[len(batches)-1]
}

func (t *recordingTransport) lastReport() *core.AggregateReport {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.broadcasts) == 0 {
		return nil
	}
	return t.broadcasts[len(t.broadcasts)-1].(*core.AggregateReport)
}

type harness struct {
	engine    *core.Engine
	dir       *fakeDirectory
	catalog   fakeCatalog
	clock     *fakeClock
	timeslots *fakeTimeslots
	transport *recordingTransport
}

func newHarness(t *testing.T, names ...string) *harness {
	t.Helper()
	if len(names) == 0 {
		names = []string{"alpha", "beta"}
	}
	h := &harness{
		dir:       newFakeDirectory(names...),
		catalog:   fakeCatalog{},
		clock:     &fakeClock{now: midday},
		timeslots: &fakeTimeslots{},
		transport: newRecordingTransport(),
	}
	h.engine = core.NewEngine(core.Config{
		Directory:   h.dir,
		Catalog:     h.catalog,
		Clock:       h.clock,
		Timeslots:   h.timeslots,
		Transport:   h.transport,
		Logger:      zerolog.Nop(),
		AccrualHour: 0,
	})
	rate := 0.10
	require.NoError(t, h.engine.Configure(0.04, 0.12, &rate, nil))
	return h
}

// publishTariff registers a spec owned by broker and returns its tariff.
func (h *harness) publishTariff(id int64, broker uuid.UUID) *txn.Tariff {
	h.catalog[id] = &txn.TariffSpec{ID: id, BrokerID: broker, PowerType: "CONSUMPTION"}
	return &txn.Tariff{SpecID: id, BrokerID: broker}
}

func (h *harness) run(t *testing.T, at time.Time) *core.RoundSummary {
	t.Helper()
	summary, err := h.engine.RunSettlementRound(context.Background(), at)
	require.NoError(t, err)
	require.NotNil(t, summary)
	return summary
}

func (h *harness) cash(t *testing.T, participant uuid.UUID) decimal.Decimal {
	t.Helper()
	balance, err := h.engine.GetCashBalance(participant)
	require.NoError(t, err)
	return balance
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDecimal(t *testing.T, expected string, actual decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, dec(expected).Equal(actual), "expected %s, got %s %v", expected, actual, msgAndArgs)
}

func messageTypes(msgs []core.Message) []string {
	types := make([]string, 0, len(msgs))
	for _, m := range msgs {
		types = append(types, m.MessageType())
	}
	return types
}

// staticSeed satisfies seed.Source for rate-draw tests.
type staticSeed int64

func (s staticSeed) Seed(component string, id int64, purpose string) int64 {
	return int64(s)
}

var _ seed.Source = staticSeed(0)
