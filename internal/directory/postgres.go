package directory

import (
	"BrokerLedger/internal/txn"
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Postgres serves the directory and catalog from memory, loaded from the
// directory schema by Refresh. Reads never touch the database.
type Postgres struct {
	db     *sql.DB
	cache  *Static
	logger zerolog.Logger
}

func NewPostgres(db *sql.DB, logger zerolog.Logger) *Postgres {
	return &Postgres{
		db:     db,
		cache:  NewStatic(),
		logger: logger.With().Str("module", "directory").Logger(),
	}
}

// Refresh reloads participants (in registration order) and tariff
// specifications.
func (p *Postgres) Refresh(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	participants, err := p.loadParticipants(ctx)
	if err != nil {
		return fmt.Errorf("load participants: %w", err)
	}
	specs, err := p.loadSpecs(ctx)
	if err != nil {
		return fmt.Errorf("load tariff specs: %w", err)
	}

	p.cache.replace(participants, specs)
	p.logger.Info().
		Int("participants", len(participants)).
		Int("tariff_specs", len(specs)).
		Msg("directory refreshed")
	return nil
}

func (p *Postgres) loadParticipants(ctx context.Context) ([]txn.Participant, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT participant_id, username
		FROM directory.participants
		ORDER BY registered_seq
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var participants []txn.Participant
	for rows.Next() {
		var participant txn.Participant
		if err := rows.Scan(&participant.ID, &participant.Username); err != nil {
			return nil, err
		}
		participants = append(participants, participant)
	}
	return participants, rows.Err()
}

func (p *Postgres) loadSpecs(ctx context.Context) (map[int64]*txn.TariffSpec, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT spec_id, broker_id, power_type
		FROM directory.tariff_specs
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	specs := make(map[int64]*txn.TariffSpec)
	for rows.Next() {
		spec := &txn.TariffSpec{}
		if err := rows.Scan(&spec.ID, &spec.BrokerID, &spec.PowerType); err != nil {
			return nil, err
		}
		specs[spec.ID] = spec
	}
	return specs, rows.Err()
}

// RegisterParticipant upserts a participant row. Call Refresh to observe it.
func (p *Postgres) RegisterParticipant(ctx context.Context, participant txn.Participant) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO directory.participants (participant_id, username)
		VALUES ($1, $2)
		ON CONFLICT (participant_id) DO UPDATE SET username = EXCLUDED.username
	`, participant.ID, participant.Username)
	if err != nil {
		return fmt.Errorf("register participant %s: %w", participant.Username, err)
	}
	return nil
}

// PublishSpec upserts a tariff specification row. Call Refresh to observe it.
func (p *Postgres) PublishSpec(ctx context.Context, spec txn.TariffSpec) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO directory.tariff_specs (spec_id, broker_id, power_type)
		VALUES ($1, $2, $3)
		ON CONFLICT (spec_id) DO UPDATE
		SET broker_id = EXCLUDED.broker_id, power_type = EXCLUDED.power_type
	`, spec.ID, spec.BrokerID, spec.PowerType)
	if err != nil {
		return fmt.Errorf("publish tariff spec %d: %w", spec.ID, err)
	}
	return nil
}

func (p *Postgres) Lookup(id uuid.UUID) (txn.Participant, bool) {
	return p.cache.Lookup(id)
}

func (p *Postgres) List() []txn.Participant {
	return p.cache.List()
}

func (p *Postgres) FindSpecification(id int64) (*txn.TariffSpec, bool) {
	return p.cache.FindSpecification(id)
}
