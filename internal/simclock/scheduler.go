package simclock

import (
	"BrokerLedger/internal/core"
	"context"
	"time"

	"github.com/rs/zerolog"
)

// RoundRunner is the part of the settlement engine the scheduler drives.
type RoundRunner interface {
	RunSettlementRound(ctx context.Context, currentTime time.Time) (*core.RoundSummary, error)
	PruneTimeslotsBefore(serial int) int
}

// Scheduler triggers one settlement round per tick, then advances the
// simulated clock by one timeslot.
type Scheduler struct {
	runner    RoundRunner
	clock     *Clock
	tick      time.Duration
	retention int
	logger    zerolog.Logger
}

func NewScheduler(runner RoundRunner, clock *Clock, tick time.Duration, retention int, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		runner:    runner,
		clock:     clock,
		tick:      tick,
		retention: retention,
		logger:    logger.With().Str("module", "scheduler").Logger(),
	}
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Step(ctx)
		}
	}
}

// Step runs one round at the current simulated time, prunes positions that
// fell out of the retention window and advances the clock. The clock
// advances even when the round fails so the simulation keeps moving.
func (s *Scheduler) Step(ctx context.Context) (*core.RoundSummary, error) {
	at := s.clock.CurrentTime()
	summary, err := s.runner.RunSettlementRound(ctx, at)
	if err != nil {
		s.logger.Error().Err(err).Time("sim_time", at).Msg("settlement round failed")
	} else if s.retention > 0 {
		if current, ok := s.clock.CurrentTimeslot(); ok {
			if pruned := s.runner.PruneTimeslotsBefore(current.Serial - s.retention); pruned > 0 {
				s.logger.Debug().Int("pruned", pruned).Msg("pruned stale market positions")
			}
		}
	}
	s.clock.Advance()
	return summary, err
}
