package fieldaudit

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	id "medledger/pkg/domain"
	dErrors "medledger/pkg/domain-errors"
)

// DefaultReviewWindow is the trailing window the compliance review covers
// when the caller does not specify one.
const DefaultReviewWindow = 24 * time.Hour

// Service records field changes and serves the RBAC review read side.
type Service struct {
	store  Store
	clock  func() time.Time
	logger *slog.Logger
}

// ServiceOption configures the Service.
type ServiceOption func(*Service)

// WithClock overrides wall-clock time for tests.
func WithClock(clock func() time.Time) ServiceOption {
	return func(s *Service) {
		s.clock = clock
	}
}

// WithLogger sets a logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService creates a Service over the given store.
func NewService(store Store, opts ...ServiceOption) *Service {
	s := &Service{store: store, clock: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record classifies and persists one field change. Invoked synchronously by
// the application whenever a protected field is written; validation failures
// are returned before any write.
func (s *Service) Record(ctx context.Context, c Change) error {
	if err := validateChange(c); err != nil {
		return err
	}

	fc := FieldChange{
		ID:                id.EventID(uuid.New()),
		TenantID:          c.TenantID,
		ConsultationID:    c.ConsultationID,
		FieldName:         c.FieldName,
		OldValue:          c.OldValue,
		NewValue:          c.NewValue,
		ChangedBy:         c.ChangedBy,
		ChangedByRole:     c.ChangedByRole,
		IsMedicalDecision: IsMedicalDecision(c.FieldName),
		ChangedAt:         s.clock().UTC(),
	}

	if err := s.store.Insert(ctx, fc); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "insert field change failed")
	}

	if s.logger != nil && fc.IsMedicalDecision && fc.ChangedByRole != RolePhysician {
		s.logger.WarnContext(ctx, "medical-decision field changed by non-physician",
			"tenant_id", fc.TenantID,
			"consultation_id", fc.ConsultationID,
			"field", fc.FieldName,
			"role", fc.ChangedByRole,
		)
	}
	return nil
}

func validateChange(c Change) error {
	switch {
	case c.TenantID.IsNil():
		return dErrors.New(dErrors.CodeValidation, "tenant ID is required")
	case c.ConsultationID.IsNil():
		return dErrors.New(dErrors.CodeValidation, "consultation ID is required")
	case strings.TrimSpace(c.FieldName) == "":
		return dErrors.New(dErrors.CodeValidation, "field name is required")
	case c.ChangedBy.IsNil():
		return dErrors.New(dErrors.CodeValidation, "changed_by is required")
	case c.ChangedByRole == "":
		return dErrors.New(dErrors.CodeValidation, "changed_by_role is required")
	}
	return nil
}

// ListByConsultation returns a consultation's recorded changes, oldest first.
func (s *Service) ListByConsultation(ctx context.Context, consultationID id.ConsultationID) ([]FieldChange, error) {
	if consultationID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "consultation ID is required")
	}
	changes, err := s.store.ListByConsultation(ctx, consultationID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "list field changes failed")
	}
	return changes, nil
}

// Review groups a tenant's changes by actor role over the trailing window
// and flags medical-decision edits made by non-physician roles.
func (s *Service) Review(ctx context.Context, tenantID id.TenantID, window time.Duration) (Review, error) {
	if tenantID.IsNil() {
		return Review{}, dErrors.New(dErrors.CodeValidation, "tenant ID is required")
	}
	if window <= 0 {
		window = DefaultReviewWindow
	}

	end := s.clock().UTC()
	start := end.Add(-window)

	changes, err := s.store.ListSince(ctx, tenantID, start)
	if err != nil {
		return Review{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "list field changes failed")
	}

	byRole := make(map[Role]*RoleActivity)
	review := Review{WindowStart: start, WindowEnd: end}
	for _, c := range changes {
		act, ok := byRole[c.ChangedByRole]
		if !ok {
			act = &RoleActivity{Role: c.ChangedByRole}
			byRole[c.ChangedByRole] = act
		}
		act.Changes++
		if c.IsMedicalDecision {
			act.MedicalDecisions++
			if c.ChangedByRole != RolePhysician {
				review.Flagged = append(review.Flagged, c)
			}
		}
	}

	for _, act := range byRole {
		review.ByRole = append(review.ByRole, *act)
	}
	sort.Slice(review.ByRole, func(i, j int) bool {
		return review.ByRole[i].Role < review.ByRole[j].Role
	})
	return review, nil
}
