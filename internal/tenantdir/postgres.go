package tenantdir

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	id "medledger/pkg/domain"
)

// PostgresDirectory reads tenant settings from the tenant_settings table.
// Tenants without a row, or with an unloadable zone name, fall back to UTC.
type PostgresDirectory struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed tenant directory.
func NewPostgres(db *sql.DB) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

func (d *PostgresDirectory) Timezone(ctx context.Context, tenantID id.TenantID) (*time.Location, error) {
	query := `
		SELECT timezone
		FROM tenant_settings
		WHERE tenant_id = $1
	`
	var name string
	err := d.db.QueryRowContext(ctx, query, uuid.UUID(tenantID)).Scan(&name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.UTC, nil
		}
		return nil, fmt.Errorf("read tenant timezone: %w", err)
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC, nil
	}
	return loc, nil
}
