package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

const SubmitStream = "BROKER_LEDGER_SUBMIT"

// SubjectConfig maps a submission subject to its durable consumer.
type SubjectConfig struct {
	Subject      string
	ConsumerName string
}

// DefaultSubjects returns one consumer per submission kind.
func DefaultSubjects() []SubjectConfig {
	return []SubjectConfig{
		{Subject: "ledger.submit.market.>", ConsumerName: "ledger-submit-market"},
		{Subject: "ledger.submit.tariff.>", ConsumerName: "ledger-submit-tariff"},
		{Subject: "ledger.submit.distribution.>", ConsumerName: "ledger-submit-distribution"},
		{Subject: "ledger.submit.balancing.>", ConsumerName: "ledger-submit-balancing"},
	}
}

// NATSSubscriber feeds JetStream submission messages to a Handler.
// Submissions are concurrent-safe, so callbacks submit directly.
type NATSSubscriber struct {
	js        jetstream.JetStream
	handler   *Handler
	consumers []jetstream.ConsumeContext
	logger    zerolog.Logger
}

func NewNATSSubscriber(js jetstream.JetStream, handler *Handler, logger zerolog.Logger) *NATSSubscriber {
	return &NATSSubscriber{
		js:      js,
		handler: handler,
		logger:  logger.With().Str("module", "nats_subscriber").Logger(),
	}
}

// Subscribe creates durable consumers for all configured subjects.
// Consumers use explicit ACK, max_deliver=5, ack_wait=30s.
func (ns *NATSSubscriber) Subscribe(ctx context.Context, subjects []SubjectConfig) error {
	for _, cfg := range subjects {
		consumer, err := ns.js.CreateOrUpdateConsumer(ctx, SubmitStream, jetstream.ConsumerConfig{
			Durable:       cfg.ConsumerName,
			FilterSubject: cfg.Subject,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       30 * time.Second,
			MaxDeliver:    5,
			DeliverPolicy: jetstream.DeliverAllPolicy,
		})
		if err != nil {
			return fmt.Errorf("create consumer %s: %w", cfg.ConsumerName, err)
		}

		consumeCtx, err := consumer.Consume(ns.onMessage)
		if err != nil {
			return fmt.Errorf("consume %s: %w", cfg.ConsumerName, err)
		}

		ns.consumers = append(ns.consumers, consumeCtx)
		ns.logger.Info().Str("subject", cfg.Subject).Str("consumer", cfg.ConsumerName).Msg("subscribed")
	}
	return nil
}

func (ns *NATSSubscriber) onMessage(msg jetstream.Msg) {
	msgID := ""
	if headers := msg.Headers(); headers != nil {
		msgID = headers.Get(nats.MsgIdHdr)
	}

	outcome, err := ns.handler.Handle(msg.Subject(), msg.Data(), msgID)
	switch outcome {
	case OutcomeAck:
		err = msg.Ack()
	case OutcomeTerminate:
		err = msg.Term()
	case OutcomeRetry:
		ns.logger.Warn().Err(err).Str("subject", msg.Subject()).Msg("submission will be redelivered")
		err = msg.Nak()
	}
	if err != nil {
		ns.logger.Warn().Err(err).Str("subject", msg.Subject()).Msg("message settle failed")
	}
}

// EnsureStream creates the submission stream if it doesn't exist.
func EnsureStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      SubmitStream,
		Subjects:  []string{"ledger.submit.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.WorkQueuePolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", SubmitStream, err)
	}
	return nil
}

// Stop gracefully stops all consumers.
func (ns *NATSSubscriber) Stop() {
	for _, cc := range ns.consumers {
		cc.Stop()
	}
	ns.logger.Info().Msg("NATS subscribers stopped")
}
