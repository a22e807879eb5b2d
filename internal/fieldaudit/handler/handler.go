package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"medledger/internal/fieldaudit"
	"medledger/internal/platform/middleware"
	id "medledger/pkg/domain"
	dErrors "medledger/pkg/domain-errors"
	"medledger/pkg/platform/httputil"
	"medledger/pkg/validation"
)

// Handler exposes the field-change audit over HTTP.
type Handler struct {
	service *fieldaudit.Service
	logger  *slog.Logger
}

// New creates a field-audit HTTP handler.
func New(service *fieldaudit.Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the field-audit routes on the given router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/consultations/{consultationID}/field-changes", h.HandleRecord)
	r.Get("/consultations/{consultationID}/field-changes", h.HandleList)
	r.Get("/tenants/{tenantID}/field-changes/review", h.HandleReview)
}

type RecordFieldChangeRequest struct {
	TenantID      string `json:"tenant_id" validate:"required,uuid"`
	FieldName     string `json:"field_name" validate:"required,notblank"`
	OldValue      string `json:"old_value"`
	NewValue      string `json:"new_value"`
	ChangedBy     string `json:"changed_by" validate:"required,uuid"`
	ChangedByRole string `json:"changed_by_role" validate:"required,oneof=physician assistant secretary admin"`
}

func (r *RecordFieldChangeRequest) Normalize() {
	if r == nil {
		return
	}
	r.FieldName = strings.TrimSpace(r.FieldName)
	r.ChangedByRole = strings.ToLower(strings.TrimSpace(r.ChangedByRole))
}

func (r *RecordFieldChangeRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	return validation.Validate(r)
}

type FieldChangeResponse struct {
	ID                string    `json:"id"`
	TenantID          string    `json:"tenant_id"`
	ConsultationID    string    `json:"consultation_id"`
	FieldName         string    `json:"field_name"`
	OldValue          string    `json:"old_value"`
	NewValue          string    `json:"new_value"`
	ChangedBy         string    `json:"changed_by"`
	ChangedByRole     string    `json:"changed_by_role"`
	IsMedicalDecision bool      `json:"is_medical_decision"`
	ChangedAt         time.Time `json:"changed_at"`
}

// HandleRecord records one protected-field edit.
func (h *Handler) HandleRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	consultationID, err := id.ParseConsultationID(chi.URLParam(r, "consultationID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid consultation id"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[RecordFieldChangeRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	tenantID, err := id.ParseTenantID(req.TenantID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	changedBy, err := id.ParseUserID(req.ChangedBy)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	change := fieldaudit.Change{
		TenantID:       tenantID,
		ConsultationID: consultationID,
		FieldName:      req.FieldName,
		OldValue:       req.OldValue,
		NewValue:       req.NewValue,
		ChangedBy:      changedBy,
		ChangedByRole:  fieldaudit.Role(req.ChangedByRole),
	}
	if err := h.service.Record(ctx, change); err != nil {
		h.logger.ErrorContext(ctx, "record field change failed", "error", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleList returns a consultation's recorded changes.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	consultationID, err := id.ParseConsultationID(chi.URLParam(r, "consultationID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid consultation id"))
		return
	}

	changes, err := h.service.ListByConsultation(ctx, consultationID)
	if err != nil {
		h.logger.ErrorContext(ctx, "list field changes failed", "error", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}

	resp := make([]FieldChangeResponse, 0, len(changes))
	for i := range changes {
		resp = append(resp, toFieldChangeResponse(&changes[i]))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// HandleReview returns the RBAC compliance grouping over a trailing window
// (window query parameter, Go duration syntax, default 24h).
func (h *Handler) HandleReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	tenantID, err := id.ParseTenantID(chi.URLParam(r, "tenantID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid tenant id"))
		return
	}

	window := time.Duration(0)
	if v := r.URL.Query().Get("window"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "window must be a positive duration"))
			return
		}
		window = d
	}

	review, err := h.service.Review(ctx, tenantID, window)
	if err != nil {
		h.logger.ErrorContext(ctx, "field change review failed", "error", err, "request_id", requestID, "tenant_id", tenantID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toReviewResponse(review))
}

type ReviewResponse struct {
	WindowStart time.Time                 `json:"window_start"`
	WindowEnd   time.Time                 `json:"window_end"`
	ByRole      []fieldaudit.RoleActivity `json:"by_role"`
	Flagged     []FieldChangeResponse     `json:"flagged"`
}

func toReviewResponse(rev fieldaudit.Review) ReviewResponse {
	resp := ReviewResponse{
		WindowStart: rev.WindowStart,
		WindowEnd:   rev.WindowEnd,
		ByRole:      rev.ByRole,
		Flagged:     make([]FieldChangeResponse, 0, len(rev.Flagged)),
	}
	for i := range rev.Flagged {
		resp.Flagged = append(resp.Flagged, toFieldChangeResponse(&rev.Flagged[i]))
	}
	return resp
}

func toFieldChangeResponse(c *fieldaudit.FieldChange) FieldChangeResponse {
	return FieldChangeResponse{
		ID:                c.ID.String(),
		TenantID:          c.TenantID.String(),
		ConsultationID:    c.ConsultationID.String(),
		FieldName:         c.FieldName,
		OldValue:          c.OldValue,
		NewValue:          c.NewValue,
		ChangedBy:         c.ChangedBy.String(),
		ChangedByRole:     string(c.ChangedByRole),
		IsMedicalDecision: c.IsMedicalDecision,
		ChangedAt:         c.ChangedAt,
	}
}
