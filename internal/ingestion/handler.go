package ingestion

import (
	"BrokerLedger/internal/core"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// Outcome tells the NATS consumer how to settle a message.
type Outcome int

const (
	OutcomeAck       Outcome = iota // accepted or duplicate
	OutcomeTerminate                // malformed, never retry
	OutcomeRetry                    // transient, redeliver
)

// Handler turns raw submission messages into Submission API calls.
type Handler struct {
	submitter Submitter
	dedup     *DedupCache
	logger    zerolog.Logger
}

func NewHandler(submitter Submitter, dedup *DedupCache, logger zerolog.Logger) *Handler {
	return &Handler{
		submitter: submitter,
		dedup:     dedup,
		logger:    logger.With().Str("module", "ingestion").Logger(),
	}
}

// KindFromSubject extracts the kind from "ledger.submit.<kind>[.<...>]".
func KindFromSubject(subject string) (string, error) {
	parts := strings.Split(subject, ".")
	if len(parts) < 3 || parts[0] != "ledger" || parts[1] != "submit" {
		return "", fmt.Errorf("%w: unexpected subject %q", core.ErrMalformedSubmission, subject)
	}
	return parts[2], nil
}

// Handle parses and submits one message. msgID is the transport-level id
// used for dedup when the payload carries no submission_id.
func (h *Handler) Handle(subject string, data []byte, msgID string) (Outcome, error) {
	kind, err := KindFromSubject(subject)
	if err != nil {
		return OutcomeTerminate, err
	}
	sub, err := ParseSubmission(kind, data)
	if err != nil {
		h.logger.Warn().Err(err).Str("subject", subject).Msg("malformed submission dropped")
		return OutcomeTerminate, err
	}

	key := sub.Key()
	if key == "" {
		key = msgID
	}
	if key != "" && h.dedup != nil && h.dedup.Seen(kind+":"+key) {
		h.logger.Debug().Str("key", key).Msg("duplicate submission acknowledged")
		return OutcomeAck, nil
	}

	tx, err := sub.Apply(h.submitter)
	if err != nil {
		if errors.Is(err, core.ErrMalformedSubmission) {
			h.logger.Warn().Err(err).Str("subject", subject).Msg("submission rejected")
			return OutcomeTerminate, err
		}
		return OutcomeRetry, err
	}

	if key != "" && h.dedup != nil {
		h.dedup.Add(kind + ":" + key)
	}
	h.logger.Debug().
		Stringer("tx", tx.TxID()).
		Str("kind", tx.Kind().String()).
		Stringer("participant", tx.Owner()).
		Msg("submission accepted")
	return OutcomeAck, nil
}
