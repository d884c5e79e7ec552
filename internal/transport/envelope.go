package transport

import (
	"BrokerLedger/internal/core"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Envelope wraps one message with its wire type name.
type Envelope struct {
	Type    string       `json:"type"`
	Payload core.Message `json:"payload"`
}

// Batch is the ordered set of round messages for one participant, published
// as a single NATS message so ordering survives delivery.
type Batch struct {
	ID          uuid.UUID  `json:"id"`
	Participant uuid.UUID  `json:"participant_id"`
	Username    string     `json:"username"`
	SentAt      time.Time  `json:"sent_at"`
	Messages    []Envelope `json:"messages"`
}

func newBatch(participant uuid.UUID, username string, messages []core.Message, at time.Time) Batch {
	envelopes := make([]Envelope, 0, len(messages))
	for _, m := range messages {
		envelopes = append(envelopes, Envelope{Type: m.MessageType(), Payload: m})
	}
	return Batch{
		ID:          uuid.New(),
		Participant: participant,
		Username:    username,
		SentAt:      at,
		Messages:    envelopes,
	}
}

// Broadcast is a message sent to every participant.
type Broadcast struct {
	ID       uuid.UUID `json:"id"`
	SentAt   time.Time `json:"sent_at"`
	Envelope Envelope  `json:"message"`
}

// DecodedEnvelope is the receiving side of Envelope: payload left raw for
// the consumer to decode by Type.
type DecodedEnvelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// DecodedBatch mirrors Batch for consumers.
type DecodedBatch struct {
	ID          uuid.UUID         `json:"id"`
	Participant uuid.UUID         `json:"participant_id"`
	Username    string            `json:"username"`
	SentAt      time.Time         `json:"sent_at"`
	Messages    []DecodedEnvelope `json:"messages"`
}

// DecodeBatch parses a published participant batch.
func DecodeBatch(data []byte) (*DecodedBatch, error) {
	var b DecodedBatch
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, err
	}
	return &b, nil
}
