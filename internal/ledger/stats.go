package ledger

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	id "medledger/pkg/domain"
	dErrors "medledger/pkg/domain-errors"
)

// TimezoneResolver supplies the tenant's configured timezone. Day boundaries
// for the dashboard are midnight-to-midnight in that zone, not UTC, to match
// operator expectations.
type TimezoneResolver interface {
	Timezone(ctx context.Context, tenantID id.TenantID) (*time.Location, error)
}

// StatsCache is an optional read-through cache so dashboard polling does not
// hammer the store. A miss returns ok=false; Set is best-effort.
type StatsCache interface {
	Get(ctx context.Context, tenantID id.TenantID) (Stats, bool)
	Set(ctx context.Context, tenantID id.TenantID, s Stats)
}

// Aggregator produces dashboard counts over a tenant's ledger. Pure read
// side; no hashing involved.
type Aggregator struct {
	store Store
	tz    TimezoneResolver
	cache StatsCache
	clock func() time.Time
}

// AggregatorOption configures the Aggregator.
type AggregatorOption func(*Aggregator)

// WithStatsCache enables read-through caching of stats results.
func WithStatsCache(c StatsCache) AggregatorOption {
	return func(g *Aggregator) {
		g.cache = c
	}
}

// WithStatsClock overrides wall-clock time for tests.
func WithStatsClock(clock func() time.Time) AggregatorOption {
	return func(g *Aggregator) {
		g.clock = clock
	}
}

// NewAggregator creates an Aggregator. tz may be nil, in which case UTC
// boundaries are used for every tenant.
func NewAggregator(store Store, tz TimezoneResolver, opts ...AggregatorOption) *Aggregator {
	g := &Aggregator{
		store: store,
		tz:    tz,
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Stats computes the dashboard aggregate for the tenant as of invocation
// time. "Today" is the current local day in the tenant's timezone; "last 7
// days" is the trailing window of seven local days including today. The five
// counts run concurrently against the store.
func (g *Aggregator) Stats(ctx context.Context, tenantID id.TenantID) (Stats, error) {
	if tenantID.IsNil() {
		return Stats{}, dErrors.New(dErrors.CodeValidation, "tenant ID is required")
	}

	if g.cache != nil {
		if s, ok := g.cache.Get(ctx, tenantID); ok {
			return s, nil
		}
	}

	loc := time.UTC
	if g.tz != nil {
		l, err := g.tz.Timezone(ctx, tenantID)
		if err != nil {
			return Stats{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "resolve tenant timezone failed")
		}
		if l != nil {
			loc = l
		}
	}

	now := g.clock().In(loc)
	startOfToday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	startOfWindow := startOfToday.AddDate(0, 0, -6)

	var s Stats
	eg, egCtx := errgroup.WithContext(ctx)
	count := func(dst *int64, f CountFilter) {
		eg.Go(func() error {
			n, err := g.store.Count(egCtx, tenantID, f)
			if err != nil {
				return err
			}
			*dst = n
			return nil
		})
	}

	count(&s.TotalLogs, CountFilter{})
	count(&s.LogsToday, CountFilter{Since: &startOfToday})
	count(&s.LogsLast7Days, CountFilter{Since: &startOfWindow})
	count(&s.SecurityEvents, CountFilter{EventType: EventSecurityEvent})
	count(&s.Exports, CountFilter{EventType: EventExport})

	if err := eg.Wait(); err != nil {
		return Stats{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "ledger count failed")
	}

	if g.cache != nil {
		g.cache.Set(ctx, tenantID, s)
	}
	return s, nil
}
