package ledger

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "medledger/pkg/domain"
)

func TestExportPage(t *testing.T) {
	tenantID := id.TenantID(uuid.New())
	e1, err := Build(tenantID, 1, GenesisHash, Fields{
		EventType: EventExport,
		Action:    "REPORT_GENERATED",
		Timestamp: time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	e2, err := Build(tenantID, 2, e1.ChainHash, Fields{
		EventType:    EventDataModification,
		Action:       "PATIENT_UPDATED",
		ResourceType: "patient",
		ResourceID:   "p-7",
		OldValue:     Payload{"phone": "111"},
		NewValue:     Payload{"phone": "222"},
		Timestamp:    time.Date(2026, 1, 15, 10, 31, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, ExportPage(&buf, []AuditEvent{e1, e2}))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, exportHeader, rows[0])

	assert.Equal(t, e1.ID.String(), rows[1][0])
	assert.Equal(t, "1", rows[1][2])
	assert.Equal(t, "2026-01-15T10:30:00Z", rows[1][3])
	assert.Equal(t, string(EventExport), rows[1][4])
	assert.Equal(t, GenesisHash, rows[1][10])

	assert.Equal(t, "patient", rows[2][7])
	assert.Equal(t, e1.ChainHash, rows[2][10])
	assert.Equal(t, e2.ChainHash, rows[2][11])
}

func TestExportPageEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, ExportPage(&buf, nil))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, exportHeader, rows[0])
}
