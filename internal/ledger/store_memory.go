package ledger

import (
	"context"
	"sort"
	"sync"

	id "medledger/pkg/domain"
	"medledger/pkg/platform/sentinel"
)

// InMemoryStore keeps per-tenant chains in position order. Used by tests and
// local development; the production store lives in store/postgres.
type InMemoryStore struct {
	mu     sync.RWMutex
	chains map[id.TenantID][]AuditEvent
}

// NewInMemoryStore creates an empty in-memory ledger.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{chains: make(map[id.TenantID][]AuditEvent)}
}

func (s *InMemoryStore) Insert(_ context.Context, e AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	chain := s.chains[e.TenantID]
	for i := range chain {
		if chain[i].Position == e.Position {
			return sentinel.ErrDuplicatePosition
		}
	}
	chain = append(chain, e)
	sort.SliceStable(chain, func(i, j int) bool { return chain[i].Position < chain[j].Position })
	s.chains[e.TenantID] = chain
	return nil
}

func (s *InMemoryStore) LatestLink(_ context.Context, tenantID id.TenantID) (Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chain := s.chains[tenantID]
	if len(chain) == 0 {
		return Link{}, sentinel.ErrNotFound
	}
	last := chain[len(chain)-1]
	return Link{Position: last.Position, ChainHash: last.ChainHash}, nil
}

func (s *InMemoryStore) Get(_ context.Context, tenantID id.TenantID, eventID id.EventID) (AuditEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.chains[tenantID] {
		if e.ID == eventID {
			return e, nil
		}
	}
	return AuditEvent{}, sentinel.ErrNotFound
}

func (s *InMemoryStore) Scan(ctx context.Context, tenantID id.TenantID, w Window, fn func(AuditEvent) error) error {
	s.mu.RLock()
	chain := append([]AuditEvent{}, s.chains[tenantID]...)
	s.mu.RUnlock()

	minPos, maxPos, ok := positionRange(chain, w)
	if !ok {
		return nil
	}

	for _, e := range chain {
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.Position < minPos || e.Position > maxPos {
			continue
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

// positionRange resolves a timestamp window to a contiguous position range so
// that a clock-skewed entry inside the range is never skipped. chain must be
// position-ordered.
func positionRange(chain []AuditEvent, w Window) (int64, int64, bool) {
	if len(chain) == 0 {
		return 0, 0, false
	}
	minPos := chain[0].Position
	maxPos := chain[len(chain)-1].Position

	if w.From != nil {
		found := false
		for i := range chain {
			if !chain[i].SequenceTimestamp.Before(*w.From) {
				minPos = chain[i].Position
				found = true
				break
			}
		}
		if !found {
			return 0, 0, false
		}
	}
	if w.To != nil {
		found := false
		for i := len(chain) - 1; i >= 0; i-- {
			if !chain[i].SequenceTimestamp.After(*w.To) {
				maxPos = chain[i].Position
				found = true
				break
			}
		}
		if !found {
			return 0, 0, false
		}
	}
	if minPos > maxPos {
		return 0, 0, false
	}
	return minPos, maxPos, true
}

func (s *InMemoryStore) List(_ context.Context, tenantID id.TenantID, f Filter) ([]AuditEvent, error) {
	f.Normalize()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []AuditEvent
	skipped := 0
	for _, e := range s.chains[tenantID] {
		if !matchesFilter(e, f) {
			continue
		}
		if skipped < f.Offset {
			skipped++
			continue
		}
		out = append(out, e)
		if len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

func (s *InMemoryStore) Count(_ context.Context, tenantID id.TenantID, f CountFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, e := range s.chains[tenantID] {
		if f.EventType != "" && e.EventType != f.EventType {
			continue
		}
		if f.Since != nil && e.SequenceTimestamp.Before(*f.Since) {
			continue
		}
		if f.Until != nil && e.SequenceTimestamp.After(*f.Until) {
			continue
		}
		n++
	}
	return n, nil
}

func matchesFilter(e AuditEvent, f Filter) bool {
	if f.EventType != "" && e.EventType != f.EventType {
		return false
	}
	if f.ResourceType != "" && e.ResourceType != f.ResourceType {
		return false
	}
	if f.ActorUserID != "" && (e.ActorUserID == nil || e.ActorUserID.String() != f.ActorUserID) {
		return false
	}
	return f.Window.Contains(e.SequenceTimestamp)
}

// tamper replaces the entry at a position without touching anything else.
// Test hook for integrity scenarios; the Store interface has no mutation on
// purpose.
func (s *InMemoryStore) tamper(tenantID id.TenantID, position int64, mutate func(*AuditEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	chain := s.chains[tenantID]
	for i := range chain {
		if chain[i].Position == position {
			mutate(&chain[i])
			return
		}
	}
}

// remove deletes the entry at a position. Test hook for chain-gap scenarios.
func (s *InMemoryStore) remove(tenantID id.TenantID, position int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	chain := s.chains[tenantID]
	for i := range chain {
		if chain[i].Position == position {
			s.chains[tenantID] = append(chain[:i], chain[i+1:]...)
			return
		}
	}
}
