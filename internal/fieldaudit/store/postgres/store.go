// Package postgres implements the field-change audit store over PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"medledger/internal/fieldaudit"
	id "medledger/pkg/domain"
)

// Store implements fieldaudit.Store using PostgreSQL.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL field-change store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const changeColumns = `
	id, tenant_id, consultation_id, field_name, old_value, new_value,
	changed_by, changed_by_role, is_medical_decision, changed_at`

func (s *Store) Insert(ctx context.Context, c fieldaudit.FieldChange) error {
	query := `
		INSERT INTO field_change_audits (` + changeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(c.ID),
		uuid.UUID(c.TenantID),
		uuid.UUID(c.ConsultationID),
		c.FieldName,
		c.OldValue,
		c.NewValue,
		uuid.UUID(c.ChangedBy),
		string(c.ChangedByRole),
		c.IsMedicalDecision,
		c.ChangedAt,
	)
	if err != nil {
		return fmt.Errorf("insert field change: %w", err)
	}
	return nil
}

func (s *Store) ListByConsultation(ctx context.Context, consultationID id.ConsultationID) ([]fieldaudit.FieldChange, error) {
	query := `
		SELECT ` + changeColumns + `
		FROM field_change_audits
		WHERE consultation_id = $1
		ORDER BY changed_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(consultationID))
	if err != nil {
		return nil, fmt.Errorf("query field changes: %w", err)
	}
	defer rows.Close()
	return scanChanges(rows)
}

func (s *Store) ListSince(ctx context.Context, tenantID id.TenantID, since time.Time) ([]fieldaudit.FieldChange, error) {
	query := `
		SELECT ` + changeColumns + `
		FROM field_change_audits
		WHERE tenant_id = $1 AND changed_at >= $2
		ORDER BY changed_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(tenantID), since)
	if err != nil {
		return nil, fmt.Errorf("query field changes: %w", err)
	}
	defer rows.Close()
	return scanChanges(rows)
}

func scanChanges(rows *sql.Rows) ([]fieldaudit.FieldChange, error) {
	var changes []fieldaudit.FieldChange
	for rows.Next() {
		var (
			c              fieldaudit.FieldChange
			changeID       uuid.UUID
			tenantID       uuid.UUID
			consultationID uuid.UUID
			changedBy      uuid.UUID
			role           string
		)
		err := rows.Scan(
			&changeID,
			&tenantID,
			&consultationID,
			&c.FieldName,
			&c.OldValue,
			&c.NewValue,
			&changedBy,
			&role,
			&c.IsMedicalDecision,
			&c.ChangedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan field change: %w", err)
		}
		c.ID = id.EventID(changeID)
		c.TenantID = id.TenantID(tenantID)
		c.ConsultationID = id.ConsultationID(consultationID)
		c.ChangedBy = id.UserID(changedBy)
		c.ChangedByRole = fieldaudit.Role(role)
		c.ChangedAt = c.ChangedAt.UTC()
		changes = append(changes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate field changes: %w", err)
	}
	return changes, nil
}
