package fieldaudit

import (
	"context"
	"sync"
	"time"

	id "medledger/pkg/domain"
)

// InMemoryStore keeps field changes in insertion order. Tests and local
// development only.
type InMemoryStore struct {
	mu      sync.RWMutex
	changes []FieldChange
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Insert(_ context.Context, c FieldChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changes = append(s.changes, c)
	return nil
}

func (s *InMemoryStore) ListByConsultation(_ context.Context, consultationID id.ConsultationID) ([]FieldChange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []FieldChange
	for _, c := range s.changes {
		if c.ConsultationID == consultationID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *InMemoryStore) ListSince(_ context.Context, tenantID id.TenantID, since time.Time) ([]FieldChange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []FieldChange
	for _, c := range s.changes {
		if c.TenantID == tenantID && !c.ChangedAt.Before(since) {
			out = append(out, c)
		}
	}
	return out, nil
}
