// Package fieldaudit keeps the companion ledger for per-field RBAC change
// auditing. It is write-once like the main ledger but carries no hash chain:
// its job is compliance review of who changed protected consultation fields,
// not tamper evidence.
package fieldaudit

import (
	"time"

	id "medledger/pkg/domain"
)

// Role is the actor's RBAC role at the time of the change.
type Role string

const (
	RolePhysician Role = "physician"
	RoleAssistant Role = "assistant"
	RoleSecretary Role = "secretary"
	RoleAdmin     Role = "admin"
)

// FieldChange is one recorded edit of a protected consultation field.
type FieldChange struct {
	ID             id.EventID
	TenantID       id.TenantID
	ConsultationID id.ConsultationID
	FieldName      string
	OldValue       string
	NewValue       string
	ChangedBy      id.UserID
	ChangedByRole  Role

	// IsMedicalDecision marks fields whose modification carries regulatory
	// significance (diagnosis, treatment plan). Derived from the static
	// classification table at record time, stored so review queries do not
	// depend on a table that may evolve.
	IsMedicalDecision bool

	ChangedAt time.Time
}

// Change is the caller-supplied input to Record.
type Change struct {
	TenantID       id.TenantID
	ConsultationID id.ConsultationID
	FieldName      string
	OldValue       string
	NewValue       string
	ChangedBy      id.UserID
	ChangedByRole  Role
}

// RoleActivity is one row of the RBAC review grouping: how often a role
// touched audited fields in the window, and how many of those edits were
// medical decisions.
type RoleActivity struct {
	Role             Role  `json:"role"`
	Changes          int64 `json:"changes"`
	MedicalDecisions int64 `json:"medical_decisions"`
}

// Review is the compliance read-side over a trailing window.
type Review struct {
	WindowStart time.Time      `json:"window_start"`
	WindowEnd   time.Time      `json:"window_end"`
	ByRole      []RoleActivity `json:"by_role"`

	// Flagged lists medical-decision changes made by roles other than
	// physician, the primary "did a non-physician modify a medical-decision
	// field" question.
	Flagged []FieldChange `json:"flagged"`
}
