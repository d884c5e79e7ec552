package core

import (
	"BrokerLedger/internal/state"
	"BrokerLedger/internal/txn"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrMalformedSubmission rejects a submission before it reaches the queue.
	ErrMalformedSubmission = errors.New("malformed submission")

	// ErrUnknownParticipant marks a drained transaction whose owner is not
	// registered. The transaction is skipped; the round continues.
	ErrUnknownParticipant = state.ErrUnknownParticipant

	ErrProcessing        = errors.New("processing error")
	ErrDeliveryFailure   = errors.New("delivery failure")
	ErrRoundInProgress   = errors.New("settlement round already in progress")
	ErrNotConfigured     = errors.New("interest rate not configured")
	ErrAlreadyConfigured = errors.New("interest rate already configured")
)

// ProcessingError reports a transaction variant the dispatcher does not
// handle. It aborts the settlement pass.
type ProcessingError struct {
	TxID     uuid.UUID
	Kind     txn.Kind
	TypeName string
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("processing error: no settlement rule for %s (kind=%s, tx=%s)", e.TypeName, e.Kind, e.TxID)
}

func (e *ProcessingError) Unwrap() error {
	return ErrProcessing
}

// DeliveryError wraps a transport failure for one participant or the broadcast.
type DeliveryError struct {
	Participant uuid.UUID // uuid.Nil for broadcast
	Channel     string
	Err         error
}

func (e *DeliveryError) Error() string {
	if e.Participant == uuid.Nil {
		return fmt.Sprintf("delivery failure on %s: %v", e.Channel, e.Err)
	}
	return fmt.Sprintf("delivery failure on %s to %s: %v", e.Channel, e.Participant, e.Err)
}

func (e *DeliveryError) Unwrap() []error {
	return []error{ErrDeliveryFailure, e.Err}
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedSubmission, fmt.Sprintf(format, args...))
}
