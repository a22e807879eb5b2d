// Package tenantdir resolves per-tenant configuration the ledger needs,
// currently the timezone whose midnight bounds the dashboard's day buckets.
package tenantdir

import (
	"context"
	"sync"
	"time"

	id "medledger/pkg/domain"
)

// Directory looks up tenant settings.
type Directory interface {
	Timezone(ctx context.Context, tenantID id.TenantID) (*time.Location, error)
}

// Static is a fixed in-memory directory. Tenants without an entry fall back
// to the default location.
type Static struct {
	mu       sync.RWMutex
	zones    map[id.TenantID]*time.Location
	fallback *time.Location
}

// NewStatic creates a Static directory with the given fallback. A nil
// fallback means UTC.
func NewStatic(fallback *time.Location) *Static {
	if fallback == nil {
		fallback = time.UTC
	}
	return &Static{
		zones:    make(map[id.TenantID]*time.Location),
		fallback: fallback,
	}
}

// SetTimezone registers a tenant's timezone.
func (s *Static) SetTimezone(tenantID id.TenantID, loc *time.Location) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zones[tenantID] = loc
}

func (s *Static) Timezone(_ context.Context, tenantID id.TenantID) (*time.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if loc, ok := s.zones[tenantID]; ok && loc != nil {
		return loc, nil
	}
	return s.fallback, nil
}
