package handler

import (
	"time"

	"medledger/internal/ledger"
)

type EventResponse struct {
	ID                string            `json:"id"`
	TenantID          string            `json:"tenant_id"`
	Position          int64             `json:"position"`
	SequenceTimestamp time.Time         `json:"sequence_timestamp"`
	EventType         string            `json:"event_type"`
	ActorUserID       string            `json:"actor_user_id,omitempty"`
	Action            string            `json:"action"`
	ResourceType      string            `json:"resource_type,omitempty"`
	ResourceID        string            `json:"resource_id,omitempty"`
	OldValue          map[string]string `json:"old_value,omitempty"`
	NewValue          map[string]string `json:"new_value,omitempty"`
	HashAlg           string            `json:"hash_alg"`
	ContentHash       string            `json:"content_hash"`
	PreviousChainHash string            `json:"previous_chain_hash"`
	ChainHash         string            `json:"chain_hash"`
}

type ListEventsResponse struct {
	Events []EventResponse `json:"events"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

type VerificationResponse struct {
	IsValid       bool       `json:"is_valid"`
	TotalLogs     int64      `json:"total_logs"`
	FirstBrokenAt *time.Time `json:"first_broken_at"`
}

// Response mapping functions - convert domain objects to HTTP DTOs

func toEventResponse(e *ledger.AuditEvent) EventResponse {
	resp := EventResponse{
		ID:                e.ID.String(),
		TenantID:          e.TenantID.String(),
		Position:          e.Position,
		SequenceTimestamp: e.SequenceTimestamp,
		EventType:         string(e.EventType),
		Action:            e.Action,
		ResourceType:      e.ResourceType,
		ResourceID:        e.ResourceID,
		OldValue:          e.OldValue,
		NewValue:          e.NewValue,
		HashAlg:           e.HashAlg,
		ContentHash:       e.ContentHash,
		PreviousChainHash: e.PreviousChainHash,
		ChainHash:         e.ChainHash,
	}
	if e.ActorUserID != nil {
		resp.ActorUserID = e.ActorUserID.String()
	}
	return resp
}

func toVerificationResponse(r ledger.VerificationResult) VerificationResponse {
	return VerificationResponse{
		IsValid:       r.IsValid,
		TotalLogs:     r.TotalLogs,
		FirstBrokenAt: r.FirstBrokenAt,
	}
}
