// Package ledger implements the tamper-evident audit trail: a per-tenant
// hash chain over immutable audit events, with append, verification, and
// read-side aggregation.
package ledger

import (
	"time"

	id "medledger/pkg/domain"
)

// EventType classifies an audit event. The set is closed; anything else is
// rejected at append time.
type EventType string

const (
	EventUserAction       EventType = "user_action"
	EventDataAccess       EventType = "data_access"
	EventDataModification EventType = "data_modification"
	EventExport           EventType = "export"
	EventSecurityEvent    EventType = "security_event"
	EventSystemEvent      EventType = "system_event"
)

// Valid reports whether t is one of the closed event type set.
func (t EventType) Valid() bool {
	switch t {
	case EventUserAction, EventDataAccess, EventDataModification,
		EventExport, EventSecurityEvent, EventSystemEvent:
		return true
	}
	return false
}

// Payload captures state change or request context for an event. It is a flat
// string map on purpose: json.Marshal emits map keys in sorted order, which
// keeps the canonical serialization used for hashing deterministic across
// platforms. Callers flatten nested structures before appending.
type Payload map[string]string

// Fields is the caller-supplied content of a new ledger entry. Everything
// hash-relevant lives here; id, position, timestamps, and hashes are assigned
// by the chain builder and append writer.
type Fields struct {
	EventType    EventType
	ActorUserID  *id.UserID // nil = system-initiated
	Action       string
	ResourceType string
	ResourceID   string
	OldValue     Payload
	NewValue     Payload

	// Timestamp is optional; the append writer stamps wall-clock time (UTC)
	// when zero.
	Timestamp time.Time
}

// AuditEvent is one committed entry of a tenant's chain. Entries are
// write-once: nothing here is ever updated or deleted after Insert.
type AuditEvent struct {
	ID       id.EventID
	TenantID id.TenantID

	// Position is the entry's slot in the tenant's total order, starting at 1.
	// The (tenant_id, position) uniqueness guard is what prevents two racing
	// writers from forking the chain.
	Position int64

	// SequenceTimestamp is the logical ordering field (wall-clock at write
	// time); ties are broken by position.
	SequenceTimestamp time.Time

	EventType    EventType
	ActorUserID  *id.UserID
	Action       string
	ResourceType string
	ResourceID   string
	OldValue     Payload
	NewValue     Payload

	// HashAlg tags the digest algorithm so a future migration can verify old
	// entries under the algorithm they were written with.
	HashAlg string

	// ContentHash is the digest of this entry's own fields (excludes the two
	// chain fields below).
	ContentHash string

	// PreviousChainHash is the predecessor's ChainHash, or the genesis value
	// for the first entry of a tenant.
	PreviousChainHash string

	// ChainHash = digest(ContentHash || PreviousChainHash), in that order.
	ChainHash string
}

// VerificationResult is the outcome of replaying a tenant's chain. A broken
// chain is a first-class result value, never an error: storage failures are
// the only error path out of verification.
type VerificationResult struct {
	IsValid bool
	// TotalLogs counts every entry examined, including entries after the
	// first break; callers need the full scope of damage.
	TotalLogs int64
	// FirstBrokenAt is the sequence timestamp of the earliest entry whose
	// recomputed hashes or linkage disagree with what is stored. Nil when the
	// chain is valid.
	FirstBrokenAt *time.Time
}

// Stats is the dashboard aggregate over a tenant's ledger.
type Stats struct {
	TotalLogs      int64 `json:"total_logs"`
	LogsToday      int64 `json:"logs_today"`
	LogsLast7Days  int64 `json:"logs_last_7_days"`
	SecurityEvents int64 `json:"security_events"`
	Exports        int64 `json:"exports"`
}
