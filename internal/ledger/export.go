package ledger

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	dErrors "medledger/pkg/domain-errors"
)

// exportHeader is the flat column set consumed by the external report
// renderer. Column order is part of the compliance contract.
var exportHeader = []string{
	"id", "tenant_id", "position", "sequence_timestamp", "event_type",
	"actor_user_id", "action", "resource_type", "resource_id",
	"content_hash", "previous_chain_hash", "chain_hash",
}

// ExportPage writes one page of entries as flat CSV rows. Payload values are
// omitted: the export surfaces the auditable facts and the hash material, not
// the raw state snapshots.
func ExportPage(w io.Writer, events []AuditEvent) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "write export header")
	}
	for i := range events {
		e := &events[i]
		row := []string{
			e.ID.String(),
			e.TenantID.String(),
			strconv.FormatInt(e.Position, 10),
			e.SequenceTimestamp.UTC().Format(time.RFC3339Nano),
			string(e.EventType),
			actorString(e.ActorUserID),
			e.Action,
			e.ResourceType,
			e.ResourceID,
			e.ContentHash,
			e.PreviousChainHash,
			e.ChainHash,
		}
		if err := cw.Write(row); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "write export row")
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "flush export")
	}
	return nil
}
