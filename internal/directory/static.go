package directory

import (
	"BrokerLedger/internal/config"
	"BrokerLedger/internal/txn"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Static is an in-memory participant directory and tariff catalog.
// Registration order is preserved by List.
type Static struct {
	mu           sync.RWMutex
	participants []txn.Participant
	index        map[uuid.UUID]int
	specs        map[int64]*txn.TariffSpec
}

func NewStatic() *Static {
	return &Static{
		index: make(map[uuid.UUID]int),
		specs: make(map[int64]*txn.TariffSpec),
	}
}

// FromConfig builds a Static directory from the configured participant and
// tariff lists.
func FromConfig(participants []config.ParticipantConfig, tariffs []config.TariffConfig) (*Static, error) {
	s := NewStatic()
	for _, pc := range participants {
		id, err := uuid.Parse(pc.ID)
		if err != nil {
			return nil, fmt.Errorf("participant %q: %w", pc.Username, err)
		}
		if err := s.Register(txn.Participant{ID: id, Username: pc.Username}); err != nil {
			return nil, err
		}
	}
	for _, tc := range tariffs {
		broker, err := uuid.Parse(tc.BrokerID)
		if err != nil {
			return nil, fmt.Errorf("tariff %d broker: %w", tc.ID, err)
		}
		s.Publish(txn.TariffSpec{ID: tc.ID, BrokerID: broker, PowerType: tc.PowerType})
	}
	return s, nil
}

// Register adds a participant. Usernames must be unique.
func (s *Static) Register(p txn.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.index[p.ID]; exists {
		return fmt.Errorf("participant %s already registered", p.ID)
	}
	for _, existing := range s.participants {
		if existing.Username == p.Username {
			return fmt.Errorf("username %q already registered", p.Username)
		}
	}
	s.index[p.ID] = len(s.participants)
	s.participants = append(s.participants, p)
	return nil
}

// Publish adds or replaces a tariff specification.
func (s *Static) Publish(spec txn.TariffSpec) {
	s.mu.Lock()
	s.specs[spec.ID] = &spec
	s.mu.Unlock()
}

func (s *Static) Lookup(id uuid.UUID) (txn.Participant, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.index[id]
	if !ok {
		return txn.Participant{}, false
	}
	return s.participants[i], true
}

// List returns a copy of the participants in registration order.
func (s *Static) List() []txn.Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]txn.Participant(nil), s.participants...)
}

func (s *Static) FindSpecification(id int64) (*txn.TariffSpec, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	spec, ok := s.specs[id]
	return spec, ok
}

// replace swaps the full contents, keeping the given order.
func (s *Static) replace(participants []txn.Participant, specs map[int64]*txn.TariffSpec) {
	index := make(map[uuid.UUID]int, len(participants))
	for i, p := range participants {
		index[p.ID] = i
	}

	s.mu.Lock()
	s.participants = participants
	s.index = index
	s.specs = specs
	s.mu.Unlock()
}
