package core

import (
	"BrokerLedger/internal/observability"
	"BrokerLedger/internal/state"
	"BrokerLedger/internal/txn"
	"context"
	"errors"

	"github.com/rs/zerolog"
)

// Transport delivers round results. Implementations are best-effort and
// must not block on slow participants.
type Transport interface {
	SendToParticipant(ctx context.Context, participant txn.Participant, messages []Message) error
	Broadcast(ctx context.Context, msg Message) error
}

// router flushes a round's outbox, then broadcasts the aggregate report.
type router struct {
	transport Transport
	directory state.Directory
	store     *state.Store
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

// flush returns the number of messages handed to the transport and the
// delivery errors, none of which stop the remaining deliveries.
func (r *router) flush(ctx context.Context, out *Outbox, report *AggregateReport) (int, []error) {
	delivered := 0
	var failures []error

	for _, id := range out.Participants() {
		messages := out.Messages(id)
		if len(messages) == 0 {
			continue
		}

		participant, ok := r.directory.Lookup(id)
		if !ok {
			failures = append(failures, r.failed(&DeliveryError{Participant: id, Channel: "participant", Err: ErrUnknownParticipant}))
			continue
		}

		snapshot, err := r.store.CashSnapshot(id)
		if err != nil {
			failures = append(failures, r.failed(&DeliveryError{Participant: id, Channel: "participant", Err: err}))
			continue
		}
		messages = append(messages, snapshot)

		if err := r.transport.SendToParticipant(ctx, participant, messages); err != nil {
			failures = append(failures, r.failed(&DeliveryError{Participant: id, Channel: "participant", Err: err}))
			continue
		}
		delivered += len(messages)
		r.logger.Debug().
			Str("participant", participant.Username).
			Int("messages", len(messages)).
			Msg("sent round messages")
	}

	if err := r.transport.Broadcast(ctx, report); err != nil {
		failures = append(failures, r.failed(&DeliveryError{Channel: "broadcast", Err: err}))
	} else {
		delivered++
	}

	if r.metrics != nil {
		r.metrics.MessagesDelivered.Add(float64(delivered))
	}
	return delivered, failures
}

func (r *router) failed(err *DeliveryError) error {
	r.logger.Warn().
		Err(err.Err).
		Str("channel", err.Channel).
		Stringer("participant", err.Participant).
		Bool("context_done", errors.Is(err.Err, context.Canceled) || errors.Is(err.Err, context.DeadlineExceeded)).
		Msg("delivery failed")
	if r.metrics != nil {
		r.metrics.DeliveryFailures.WithLabelValues(err.Channel).Inc()
	}
	return err
}
