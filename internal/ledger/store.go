package ledger

import (
	"context"
	"time"

	id "medledger/pkg/domain"
)

// Link is the tail of a tenant's chain as read by the append writer.
type Link struct {
	Position  int64
	ChainHash string
}

// Window bounds a scan by sequence timestamp. Nil endpoints are unbounded.
type Window struct {
	From *time.Time
	To   *time.Time
}

// Contains reports whether t falls inside the window (inclusive bounds).
func (w Window) Contains(t time.Time) bool {
	if w.From != nil && t.Before(*w.From) {
		return false
	}
	if w.To != nil && t.After(*w.To) {
		return false
	}
	return true
}

// Filter narrows the dashboard's paginated listing.
type Filter struct {
	EventType    EventType
	ResourceType string
	ActorUserID  string
	Window       Window
	Limit        int
	Offset       int
}

// Normalize applies sane defaults and bounds.
func (f *Filter) Normalize() {
	if f.Limit <= 0 || f.Limit > 1000 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}

// CountFilter selects entries for a single aggregate count.
type CountFilter struct {
	EventType EventType
	Since     *time.Time
	Until     *time.Time
}

// Store is the ordered, append-only ledger table. Implementations must make
// Insert atomic (an entry is either fully present with its hashes or absent)
// and must reject a second entry at an occupied (tenant, position) slot with
// sentinel.ErrDuplicatePosition, since that uniqueness guard is what keeps the
// chain linear under concurrent writers.
type Store interface {
	// Insert persists one immutable entry.
	Insert(ctx context.Context, e AuditEvent) error

	// LatestLink returns the tail of the tenant's chain. Returns
	// sentinel.ErrNotFound when the tenant has no entries yet.
	LatestLink(ctx context.Context, tenantID id.TenantID) (Link, error)

	// Get returns one entry by id, scoped to the tenant. Returns
	// sentinel.ErrNotFound when no such entry exists.
	Get(ctx context.Context, tenantID id.TenantID, eventID id.EventID) (AuditEvent, error)

	// Scan streams the tenant's entries oldest-first (position order). The
	// window is resolved to a contiguous position range first: from the lowest
	// position at or after w.From to the highest at or before w.To. Ordering
	// is by position, not timestamp, so an entry whose wall clock fell outside
	// the window must still be scanned when its position sits inside the
	// range; skipping it would make its successor's linkage look broken.
	// Scan stops and returns fn's error if fn fails, and respects ctx
	// cancellation between entries.
	Scan(ctx context.Context, tenantID id.TenantID, w Window, fn func(AuditEvent) error) error

	// List returns one page of entries for the dashboard, oldest-first.
	List(ctx context.Context, tenantID id.TenantID, f Filter) ([]AuditEvent, error)

	// Count returns the number of entries matching the filter.
	Count(ctx context.Context, tenantID id.TenantID, f CountFilter) (int64, error)
}
