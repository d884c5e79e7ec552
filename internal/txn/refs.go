package txn

import (
	"time"

	"github.com/google/uuid"
)

// Participant is a broker known to the participant directory.
type Participant struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
}

// Timeslot is a discrete simulation time bucket. Serial numbers start at 0.
type Timeslot struct {
	Serial    int       `json:"serial"`
	StartTime time.Time `json:"start_time"`
}

// TariffSpec is the published, read-only specification behind a tariff.
type TariffSpec struct {
	ID        int64     `json:"id"`
	BrokerID  uuid.UUID `json:"broker_id"`
	PowerType string    `json:"power_type"`
}

// Tariff is a live tariff instance offered by a broker. It may be stale;
// the catalog is consulted for the authoritative specification.
type Tariff struct {
	SpecID   int64     `json:"spec_id"`
	BrokerID uuid.UUID `json:"broker_id"`
}

// CustomerInfo describes the customer segment a tariff transaction refers to.
type CustomerInfo struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Population int    `json:"population"`
}
