package handler

import (
	"strings"
	"time"

	"medledger/internal/ledger"
	id "medledger/pkg/domain"
	dErrors "medledger/pkg/domain-errors"
	"medledger/pkg/validation"
)

// HTTP Request DTOs - contain JSON tags for API serialization.
// These are converted to ledger fields before processing.

type AppendEventRequest struct {
	EventType    string            `json:"event_type" validate:"required"`
	ActorUserID  string            `json:"actor_user_id,omitempty"`
	Action       string            `json:"action" validate:"required,notblank"`
	ResourceType string            `json:"resource_type,omitempty"`
	ResourceID   string            `json:"resource_id,omitempty"`
	OldValue     map[string]string `json:"old_value,omitempty"`
	NewValue     map[string]string `json:"new_value,omitempty"`
}

func (r *AppendEventRequest) Normalize() {
	if r == nil {
		return
	}
	r.EventType = strings.TrimSpace(r.EventType)
	r.Action = strings.TrimSpace(r.Action)
	r.ResourceType = strings.TrimSpace(r.ResourceType)
	r.ResourceID = strings.TrimSpace(r.ResourceID)
}

func (r *AppendEventRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if err := validation.Validate(r); err != nil {
		return err
	}
	if !ledger.EventType(r.EventType).Valid() {
		return dErrors.New(dErrors.CodeValidation, "unknown event type")
	}
	return nil
}

// Fields converts the request to ledger fields. The actor is parsed here so
// the service layer only ever sees typed IDs.
func (r *AppendEventRequest) Fields() (ledger.Fields, error) {
	f := ledger.Fields{
		EventType:    ledger.EventType(r.EventType),
		Action:       r.Action,
		ResourceType: r.ResourceType,
		ResourceID:   r.ResourceID,
		OldValue:     ledger.Payload(r.OldValue),
		NewValue:     ledger.Payload(r.NewValue),
	}
	if r.ActorUserID != "" {
		actor, err := id.ParseUserID(r.ActorUserID)
		if err != nil {
			return ledger.Fields{}, err
		}
		f.ActorUserID = &actor
	}
	return f, nil
}

// parseWindow reads optional from/to RFC 3339 query parameters.
func parseWindow(fromStr, toStr string) (ledger.Window, error) {
	var w ledger.Window
	if fromStr != "" {
		from, err := time.Parse(time.RFC3339, fromStr)
		if err != nil {
			return ledger.Window{}, dErrors.New(dErrors.CodeBadRequest, "from must be RFC 3339")
		}
		w.From = &from
	}
	if toStr != "" {
		to, err := time.Parse(time.RFC3339, toStr)
		if err != nil {
			return ledger.Window{}, dErrors.New(dErrors.CodeBadRequest, "to must be RFC 3339")
		}
		w.To = &to
	}
	if w.From != nil && w.To != nil && w.To.Before(*w.From) {
		return ledger.Window{}, dErrors.New(dErrors.CodeBadRequest, "to must not precede from")
	}
	return w, nil
}
