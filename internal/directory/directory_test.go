package directory_test

import (
	"BrokerLedger/internal/config"
	"BrokerLedger/internal/directory"
	"BrokerLedger/internal/testutil"
	"BrokerLedger/internal/txn"
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatic_RegistrationOrderAndLookup(t *testing.T) {
	s := directory.NewStatic()
	a := txn.Participant{ID: uuid.New(), Username: "alpha"}
	b := txn.Participant{ID: uuid.New(), Username: "beta"}

	require.NoError(t, s.Register(b))
	require.NoError(t, s.Register(a))

	assert.Equal(t, []txn.Participant{b, a}, s.List())
	got, ok := s.Lookup(a.ID)
	require.True(t, ok)
	assert.Equal(t, "alpha", got.Username)

	_, ok = s.Lookup(uuid.New())
	assert.False(t, ok)
}

func TestStatic_RejectsDuplicates(t *testing.T) {
	s := directory.NewStatic()
	p := txn.Participant{ID: uuid.New(), Username: "alpha"}
	require.NoError(t, s.Register(p))

	assert.Error(t, s.Register(p))
	assert.Error(t, s.Register(txn.Participant{ID: uuid.New(), Username: "alpha"}))
	assert.Len(t, s.List(), 1)
}

func TestStatic_ListIsACopy(t *testing.T) {
	s := directory.NewStatic()
	require.NoError(t, s.Register(txn.Participant{ID: uuid.New(), Username: "alpha"}))

	list := s.List()
	list[0].Username = "mutated"

	assert.Equal(t, "alpha", s.List()[0].Username)
}

func TestFromConfig(t *testing.T) {
	broker := uuid.New()
	s, err := directory.FromConfig(
		[]config.ParticipantConfig{{ID: broker.String(), Username: "alpha"}},
		[]config.TariffConfig{{ID: 5, BrokerID: broker.String(), PowerType: "PRODUCTION"}},
	)
	require.NoError(t, err)

	_, ok := s.Lookup(broker)
	assert.True(t, ok)
	spec, ok := s.FindSpecification(5)
	require.True(t, ok)
	assert.Equal(t, broker, spec.BrokerID)
	assert.Equal(t, "PRODUCTION", spec.PowerType)

	_, ok = s.FindSpecification(6)
	assert.False(t, ok)
}

func TestFromConfig_BadID(t *testing.T) {
	_, err := directory.FromConfig([]config.ParticipantConfig{{ID: "nope", Username: "alpha"}}, nil)
	assert.Error(t, err)

	_, err = directory.FromConfig(nil, []config.TariffConfig{{ID: 1, BrokerID: "nope"}})
	assert.Error(t, err)
}

// --- Postgres (integration) ---

func TestPostgres_RefreshLoadsDirectory(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	pg := directory.NewPostgres(db, zerolog.Nop())
	a := txn.Participant{ID: uuid.New(), Username: "alpha"}
	b := txn.Participant{ID: uuid.New(), Username: "beta"}
	require.NoError(t, pg.RegisterParticipant(ctx, a))
	require.NoError(t, pg.RegisterParticipant(ctx, b))
	require.NoError(t, pg.PublishSpec(ctx, txn.TariffSpec{ID: 77, BrokerID: b.ID, PowerType: "CONSUMPTION"}))

	// Nothing visible before Refresh
	assert.Empty(t, pg.List())

	require.NoError(t, pg.Refresh(ctx))

	assert.Equal(t, []txn.Participant{a, b}, pg.List())
	spec, ok := pg.FindSpecification(77)
	require.True(t, ok)
	assert.Equal(t, b.ID, spec.BrokerID)
}
