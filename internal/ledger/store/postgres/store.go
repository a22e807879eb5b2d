// Package postgres implements the ledger store over PostgreSQL. The
// (tenant_id, position) unique index is the chain-fork guard for
// multi-instance deployments.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"medledger/internal/ledger"
	id "medledger/pkg/domain"
	"medledger/pkg/platform/sentinel"
)

// Store implements ledger.Store using PostgreSQL.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL ledger store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const eventColumns = `
	id, tenant_id, position, sequence_timestamp, event_type,
	actor_user_id, action, resource_type, resource_id,
	old_value, new_value, hash_alg, content_hash,
	previous_chain_hash, chain_hash`

// Insert persists one immutable entry. A duplicate (tenant_id, position)
// maps to sentinel.ErrDuplicatePosition so the append writer can retry.
func (s *Store) Insert(ctx context.Context, e ledger.AuditEvent) error {
	query := `
		INSERT INTO audit_events (` + eventColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	oldValue, err := payloadJSON(e.OldValue)
	if err != nil {
		return err
	}
	newValue, err := payloadJSON(e.NewValue)
	if err != nil {
		return err
	}

	var actorID *uuid.UUID
	if e.ActorUserID != nil {
		uid := uuid.UUID(*e.ActorUserID)
		actorID = &uid
	}

	_, err = s.db.ExecContext(ctx, query,
		uuid.UUID(e.ID),
		uuid.UUID(e.TenantID),
		e.Position,
		e.SequenceTimestamp,
		string(e.EventType),
		actorID,
		e.Action,
		nullable(e.ResourceType),
		nullable(e.ResourceID),
		oldValue,
		newValue,
		e.HashAlg,
		e.ContentHash,
		e.PreviousChainHash,
		e.ChainHash,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("chain position occupied: %w", sentinel.ErrDuplicatePosition)
		}
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// LatestLink reads the tail of the tenant's chain.
func (s *Store) LatestLink(ctx context.Context, tenantID id.TenantID) (ledger.Link, error) {
	query := `
		SELECT position, chain_hash
		FROM audit_events
		WHERE tenant_id = $1
		ORDER BY position DESC
		LIMIT 1
	`
	var link ledger.Link
	err := s.db.QueryRowContext(ctx, query, uuid.UUID(tenantID)).Scan(&link.Position, &link.ChainHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.Link{}, sentinel.ErrNotFound
		}
		return ledger.Link{}, fmt.Errorf("read chain tail: %w", err)
	}
	return link, nil
}

// Get returns one entry by id, scoped to the tenant.
func (s *Store) Get(ctx context.Context, tenantID id.TenantID, eventID id.EventID) (ledger.AuditEvent, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM audit_events
		WHERE tenant_id = $1 AND id = $2
	`
	e, err := scanEvent(s.db.QueryRowContext(ctx, query, uuid.UUID(tenantID), uuid.UUID(eventID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.AuditEvent{}, sentinel.ErrNotFound
		}
		return ledger.AuditEvent{}, fmt.Errorf("read audit event: %w", err)
	}
	return e, nil
}

// Scan streams the tenant's entries in position order. The timestamp window
// resolves to a contiguous position range: an entry with a skewed wall clock
// is still scanned when its position falls inside the range, since skipping
// it would fail its successor's linkage check. A NULL subquery result means
// nothing satisfies that bound, which correctly selects no rows.
func (s *Store) Scan(ctx context.Context, tenantID id.TenantID, w ledger.Window, fn func(ledger.AuditEvent) error) error {
	query := `
		SELECT ` + eventColumns + `
		FROM audit_events
		WHERE tenant_id = $1
	`
	args := []any{uuid.UUID(tenantID)}
	if w.From != nil {
		args = append(args, *w.From)
		query += fmt.Sprintf(` AND position >= (
			SELECT MIN(position) FROM audit_events
			WHERE tenant_id = $1 AND sequence_timestamp >= $%d)`, len(args))
	}
	if w.To != nil {
		args = append(args, *w.To)
		query += fmt.Sprintf(` AND position <= (
			SELECT MAX(position) FROM audit_events
			WHERE tenant_id = $1 AND sequence_timestamp <= $%d)`, len(args))
	}
	query += " ORDER BY position ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("scan audit events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate audit events: %w", err)
	}
	return nil
}

// List returns one page of entries, oldest-first.
func (s *Store) List(ctx context.Context, tenantID id.TenantID, f ledger.Filter) ([]ledger.AuditEvent, error) {
	f.Normalize()

	var conds []string
	args := []any{uuid.UUID(tenantID)}
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.EventType != "" {
		add("event_type = $%d", string(f.EventType))
	}
	if f.ResourceType != "" {
		add("resource_type = $%d", f.ResourceType)
	}
	if f.ActorUserID != "" {
		actorID, err := uuid.Parse(f.ActorUserID)
		if err != nil {
			return nil, fmt.Errorf("parse actor filter: %w", err)
		}
		add("actor_user_id = $%d", actorID)
	}
	if f.Window.From != nil {
		add("sequence_timestamp >= $%d", *f.Window.From)
	}
	if f.Window.To != nil {
		add("sequence_timestamp <= $%d", *f.Window.To)
	}

	query := `SELECT ` + eventColumns + ` FROM audit_events WHERE tenant_id = $1`
	if len(conds) > 0 {
		query += " AND " + strings.Join(conds, " AND ")
	}
	args = append(args, f.Limit, f.Offset)
	query += fmt.Sprintf(" ORDER BY position ASC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []ledger.AuditEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}

// Count returns the number of entries matching the filter.
func (s *Store) Count(ctx context.Context, tenantID id.TenantID, f ledger.CountFilter) (int64, error) {
	query := `SELECT COUNT(*) FROM audit_events WHERE tenant_id = $1`
	args := []any{uuid.UUID(tenantID)}
	if f.EventType != "" {
		args = append(args, string(f.EventType))
		query += fmt.Sprintf(" AND event_type = $%d", len(args))
	}
	if f.Since != nil {
		args = append(args, *f.Since)
		query += fmt.Sprintf(" AND sequence_timestamp >= $%d", len(args))
	}
	if f.Until != nil {
		args = append(args, *f.Until)
		query += fmt.Sprintf(" AND sequence_timestamp <= $%d", len(args))
	}

	var n int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count audit events: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (ledger.AuditEvent, error) {
	var (
		e            ledger.AuditEvent
		eventID      uuid.UUID
		tenantID     uuid.UUID
		eventType    string
		actorID      *uuid.UUID
		resourceType sql.NullString
		resourceID   sql.NullString
		oldValue     []byte
		newValue     []byte
	)

	err := row.Scan(
		&eventID,
		&tenantID,
		&e.Position,
		&e.SequenceTimestamp,
		&eventType,
		&actorID,
		&e.Action,
		&resourceType,
		&resourceID,
		&oldValue,
		&newValue,
		&e.HashAlg,
		&e.ContentHash,
		&e.PreviousChainHash,
		&e.ChainHash,
	)
	if err != nil {
		return ledger.AuditEvent{}, fmt.Errorf("scan audit event: %w", err)
	}

	e.ID = id.EventID(eventID)
	e.TenantID = id.TenantID(tenantID)
	e.EventType = ledger.EventType(eventType)
	e.SequenceTimestamp = e.SequenceTimestamp.UTC()
	if actorID != nil {
		uid := id.UserID(*actorID)
		e.ActorUserID = &uid
	}
	e.ResourceType = resourceType.String
	e.ResourceID = resourceID.String
	if e.OldValue, err = parsePayload(oldValue); err != nil {
		return ledger.AuditEvent{}, err
	}
	if e.NewValue, err = parsePayload(newValue); err != nil {
		return ledger.AuditEvent{}, err
	}
	return e, nil
}

func payloadJSON(p ledger.Payload) (any, error) {
	if len(p) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return b, nil
}

func parsePayload(b []byte) (ledger.Payload, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var p ledger.Payload
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return p, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
