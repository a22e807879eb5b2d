package ledger

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	ledgermetrics "medledger/internal/ledger/metrics"
	id "medledger/pkg/domain"
	dErrors "medledger/pkg/domain-errors"
	"medledger/pkg/platform/keymutex"
	"medledger/pkg/platform/sentinel"
)

// defaultMaxRetries bounds re-reads after losing the race for the chain tail.
const defaultMaxRetries = 3

// Appender is the single entry point for writing to a tenant's chain. It
// serializes the read-latest/build/insert critical section per tenant with a
// keyed mutex; the store's (tenant, position) uniqueness guard backstops
// multi-instance deployments, where the in-process lock alone is not enough.
type Appender struct {
	store      Store
	locks      *keymutex.KeyMutex
	clock      func() time.Time
	logger     *slog.Logger
	metrics    *ledgermetrics.Metrics
	tracer     trace.Tracer
	maxRetries int
}

// AppenderOption configures the Appender.
type AppenderOption func(*Appender)

// WithClock overrides wall-clock time for tests.
func WithClock(clock func() time.Time) AppenderOption {
	return func(a *Appender) {
		a.clock = clock
	}
}

// WithAppenderLogger sets a logger for retry diagnostics.
func WithAppenderLogger(logger *slog.Logger) AppenderOption {
	return func(a *Appender) {
		a.logger = logger
	}
}

// WithAppenderMetrics sets the metrics collector.
func WithAppenderMetrics(m *ledgermetrics.Metrics) AppenderOption {
	return func(a *Appender) {
		a.metrics = m
	}
}

// WithMaxRetries bounds the conflict retry budget.
func WithMaxRetries(n int) AppenderOption {
	return func(a *Appender) {
		if n > 0 {
			a.maxRetries = n
		}
	}
}

// NewAppender creates an Appender over the given store.
func NewAppender(store Store, opts ...AppenderOption) *Appender {
	a := &Appender{
		store:      store,
		locks:      keymutex.New(),
		clock:      time.Now,
		tracer:     otel.Tracer("medledger/ledger"),
		maxRetries: defaultMaxRetries,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Append validates the fields, links a new entry to the tenant's chain tail,
// and persists it. Exactly one immutable row per successful call.
//
// Only a lost race for the tail is retried; validation failures are returned
// immediately and storage failures surface as CodeUnavailable.
func (a *Appender) Append(ctx context.Context, tenantID id.TenantID, f Fields) (AuditEvent, error) {
	ctx, span := a.tracer.Start(ctx, "ledger.Append",
		trace.WithAttributes(
			attribute.String("tenant_id", tenantID.String()),
			attribute.String("event_type", string(f.EventType)),
		))
	start := a.clock()
	e, err := a.append(ctx, tenantID, f)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
	if a.metrics != nil {
		a.metrics.ObserveAppend(time.Since(start), err)
	}
	return e, err
}

func (a *Appender) append(ctx context.Context, tenantID id.TenantID, f Fields) (AuditEvent, error) {
	if f.Timestamp.IsZero() {
		f.Timestamp = a.clock().UTC()
	}

	// Validate before taking the lock so malformed input never contends.
	if err := validateFields(tenantID, 1, GenesisHash, f); err != nil {
		return AuditEvent{}, err
	}

	key := tenantID.String()
	a.locks.Lock(key)
	defer a.locks.Unlock(key)

	var lastErr error
	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return AuditEvent{}, dErrors.Wrap(err, dErrors.CodeTimeout, "append cancelled")
		}

		tail, err := a.latestLink(ctx, tenantID)
		if err != nil {
			return AuditEvent{}, err
		}

		e, err := Build(tenantID, tail.Position+1, tail.ChainHash, f)
		if err != nil {
			return AuditEvent{}, err
		}

		err = a.store.Insert(ctx, e)
		if err == nil {
			return e, nil
		}
		if !errors.Is(err, sentinel.ErrDuplicatePosition) {
			return AuditEvent{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "ledger insert failed")
		}

		// Another writer won the race; re-read the new tail and relink.
		lastErr = err
		if a.metrics != nil {
			a.metrics.IncAppendConflicts()
		}
		if a.logger != nil {
			a.logger.WarnContext(ctx, "lost race for chain tail, retrying",
				"tenant_id", tenantID,
				"attempt", attempt+1,
			)
		}
	}

	return AuditEvent{}, dErrors.Wrap(lastErr, dErrors.CodeWriteConflict,
		"write conflict on chain tail persisted past retry budget")
}

// latestLink reads the tenant's tail, mapping an empty chain to genesis.
func (a *Appender) latestLink(ctx context.Context, tenantID id.TenantID) (Link, error) {
	tail, err := a.store.LatestLink(ctx, tenantID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return Link{Position: 0, ChainHash: GenesisHash}, nil
		}
		return Link{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "read chain tail failed")
	}
	return tail, nil
}
