package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	id "medledger/pkg/domain"
)

type AggregatorSuite struct {
	suite.Suite

	ctx      context.Context
	store    *InMemoryStore
	appender *Appender
	tenantID id.TenantID
	zone     *time.Location
}

func TestAggregatorSuite(t *testing.T) {
	suite.Run(t, new(AggregatorSuite))
}

func (s *AggregatorSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = NewInMemoryStore()
	s.appender = NewAppender(s.store)
	s.tenantID = id.TenantID(uuid.New())
	// Fixed offset so the test does not depend on the host's tzdata.
	s.zone = time.FixedZone("UTC+3", 3*60*60)
}

func (s *AggregatorSuite) append(eventType EventType, at time.Time) {
	_, err := s.appender.Append(s.ctx, s.tenantID, Fields{
		EventType: eventType,
		Action:    "RECORDED",
		Timestamp: at,
	})
	s.Require().NoError(err)
}

func (s *AggregatorSuite) aggregator(now time.Time, opts ...AggregatorOption) *Aggregator {
	opts = append(opts, WithStatsClock(func() time.Time { return now }))
	return NewAggregator(s.store, staticZone{s.zone}, opts...)
}

func (s *AggregatorSuite) TestCountsByType() {
	now := time.Date(2026, 6, 10, 12, 0, 0, 0, s.zone)
	s.append(EventUserAction, now.Add(-time.Hour))
	s.append(EventSecurityEvent, now.Add(-2*time.Hour))
	s.append(EventSecurityEvent, now.Add(-3*time.Hour))
	s.append(EventExport, now.Add(-4*time.Hour))

	got, err := s.aggregator(now).Stats(s.ctx, s.tenantID)
	s.Require().NoError(err)

	s.Equal(Stats{
		TotalLogs:      4,
		LogsToday:      4,
		LogsLast7Days:  4,
		SecurityEvents: 2,
		Exports:        1,
	}, got)
}

func (s *AggregatorSuite) TestTodayBoundaryIsTenantLocalMidnight() {
	now := time.Date(2026, 6, 10, 9, 0, 0, 0, s.zone)

	// One second before local midnight is yesterday; one second after is today.
	s.append(EventUserAction, time.Date(2026, 6, 9, 23, 59, 59, 0, s.zone))
	s.append(EventUserAction, time.Date(2026, 6, 10, 0, 0, 1, 0, s.zone))

	got, err := s.aggregator(now).Stats(s.ctx, s.tenantID)
	s.Require().NoError(err)

	s.Equal(int64(2), got.TotalLogs)
	s.Equal(int64(1), got.LogsToday)
}

func (s *AggregatorSuite) TestSevenDayWindowIncludesToday() {
	now := time.Date(2026, 6, 10, 9, 0, 0, 0, s.zone)

	s.append(EventUserAction, time.Date(2026, 6, 3, 23, 59, 59, 0, s.zone)) // day -7, outside
	s.append(EventUserAction, time.Date(2026, 6, 4, 0, 0, 1, 0, s.zone))   // day -6, inside
	s.append(EventUserAction, time.Date(2026, 6, 10, 8, 0, 0, 0, s.zone))  // today

	got, err := s.aggregator(now).Stats(s.ctx, s.tenantID)
	s.Require().NoError(err)

	s.Equal(int64(3), got.TotalLogs)
	s.Equal(int64(2), got.LogsLast7Days)
	s.Equal(int64(1), got.LogsToday)
}

func (s *AggregatorSuite) TestEmptyLedgerAllZero() {
	now := time.Date(2026, 6, 10, 9, 0, 0, 0, s.zone)

	got, err := s.aggregator(now).Stats(s.ctx, s.tenantID)
	s.Require().NoError(err)
	s.Equal(Stats{}, got)
}

func (s *AggregatorSuite) TestCacheHitSkipsStore() {
	now := time.Date(2026, 6, 10, 9, 0, 0, 0, s.zone)
	cached := Stats{TotalLogs: 42}
	c := &fakeCache{stats: cached, hit: true}

	got, err := s.aggregator(now, WithStatsCache(c)).Stats(s.ctx, s.tenantID)
	s.Require().NoError(err)
	s.Equal(cached, got)
}

func (s *AggregatorSuite) TestCacheMissPopulatesCache() {
	now := time.Date(2026, 6, 10, 9, 0, 0, 0, s.zone)
	s.append(EventUserAction, now.Add(-time.Hour))
	c := &fakeCache{}

	got, err := s.aggregator(now, WithStatsCache(c)).Stats(s.ctx, s.tenantID)
	s.Require().NoError(err)
	s.Equal(int64(1), got.TotalLogs)
	s.True(c.setCalled)
	s.Equal(got, c.stats)
}

type staticZone struct {
	loc *time.Location
}

func (z staticZone) Timezone(context.Context, id.TenantID) (*time.Location, error) {
	return z.loc, nil
}

type fakeCache struct {
	stats     Stats
	hit       bool
	setCalled bool
}

func (c *fakeCache) Get(context.Context, id.TenantID) (Stats, bool) {
	return c.stats, c.hit
}

func (c *fakeCache) Set(_ context.Context, _ id.TenantID, s Stats) {
	c.stats = s
	c.setCalled = true
}
