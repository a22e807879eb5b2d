package fieldaudit

import (
	"context"
	"time"

	id "medledger/pkg/domain"
)

// Store persists field changes. Write-once: implementations expose no update
// or delete.
type Store interface {
	Insert(ctx context.Context, c FieldChange) error

	// ListByConsultation returns a consultation's changes, oldest first.
	ListByConsultation(ctx context.Context, consultationID id.ConsultationID) ([]FieldChange, error)

	// ListSince returns a tenant's changes with ChangedAt >= since, oldest
	// first. Feeds the RBAC review window.
	ListSince(ctx context.Context, tenantID id.TenantID, since time.Time) ([]FieldChange, error)
}
