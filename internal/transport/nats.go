package transport

import (
	"BrokerLedger/internal/core"
	"BrokerLedger/internal/txn"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

const (
	StreamName       = "BROKER_LEDGER_OUT"
	ParticipantRoot  = "ledger.participant"
	BroadcastSubject = "ledger.broadcast"
)

// AsyncPublisher is the slice of jetstream.JetStream the transport needs.
type AsyncPublisher interface {
	PublishAsync(subject string, payload []byte, opts ...jetstream.PublishOpt) (jetstream.PubAckFuture, error)
}

// NATSTransport delivers round results over JetStream. Publishes are async:
// a slow or absent participant consumer never stalls the round.
type NATSTransport struct {
	js     AsyncPublisher
	now    func() time.Time
	logger zerolog.Logger
}

func NewNATSTransport(js AsyncPublisher, logger zerolog.Logger) *NATSTransport {
	return &NATSTransport{
		js:     js,
		now:    time.Now,
		logger: logger.With().Str("module", "transport").Logger(),
	}
}

// ParticipantSubject is the subject a participant's batches land on.
func ParticipantSubject(id uuid.UUID) string {
	return fmt.Sprintf("%s.%s", ParticipantRoot, id)
}

func (t *NATSTransport) SendToParticipant(ctx context.Context, participant txn.Participant, messages []core.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	batch := newBatch(participant.ID, participant.Username, messages, t.now())
	data, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}

	if _, err := t.js.PublishAsync(ParticipantSubject(participant.ID), data, jetstream.WithMsgID(batch.ID.String())); err != nil {
		return fmt.Errorf("publish to %s: %w", participant.Username, err)
	}
	t.logger.Debug().
		Str("participant", participant.Username).
		Int("messages", len(messages)).
		Msg("batch published")
	return nil
}

func (t *NATSTransport) Broadcast(ctx context.Context, msg core.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b := Broadcast{
		ID:       uuid.New(),
		SentAt:   t.now(),
		Envelope: Envelope{Type: msg.MessageType(), Payload: msg},
	}
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshal broadcast: %w", err)
	}
	if _, err := t.js.PublishAsync(BroadcastSubject, data, jetstream.WithMsgID(b.ID.String())); err != nil {
		return fmt.Errorf("publish broadcast: %w", err)
	}
	return nil
}

// EnsureStream creates the outbound stream.
func EnsureStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{ParticipantRoot + ".>", BroadcastSubject},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create outbound stream: %w", err)
	}
	return nil
}

// Connect establishes a NATS connection and returns a JetStream context.
func Connect(url string, logger zerolog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info().Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
