package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"medledger/internal/ledger"
	"medledger/internal/platform/middleware"
	id "medledger/pkg/domain"
	dErrors "medledger/pkg/domain-errors"
	"medledger/pkg/platform/httputil"
	"medledger/pkg/platform/sentinel"
)

// Handler exposes the ledger's dashboard and caller contracts over HTTP.
type Handler struct {
	appender   *ledger.Appender
	verifier   *ledger.Verifier
	aggregator *ledger.Aggregator
	store      ledger.Store
	logger     *slog.Logger
}

// New creates a ledger HTTP handler.
func New(appender *ledger.Appender, verifier *ledger.Verifier, aggregator *ledger.Aggregator, store ledger.Store, logger *slog.Logger) *Handler {
	return &Handler{
		appender:   appender,
		verifier:   verifier,
		aggregator: aggregator,
		store:      store,
		logger:     logger,
	}
}

// Register mounts the ledger routes on the given router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/tenants/{tenantID}/events", h.HandleAppend)
	r.Get("/tenants/{tenantID}/events", h.HandleList)
	r.Get("/tenants/{tenantID}/events/export", h.HandleExport)
	r.Get("/tenants/{tenantID}/events/{eventID}", h.HandleGet)
	r.Get("/tenants/{tenantID}/chain/verify", h.HandleVerify)
	r.Get("/tenants/{tenantID}/stats", h.HandleStats)
}

// HandleAppend records one audit event on the tenant's chain. Called
// synchronously by the surrounding application in the same flow as the
// audited action.
func (h *Handler) HandleAppend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	tenantID, ok := h.tenantParam(w, r)
	if !ok {
		return
	}

	req, ok := httputil.DecodeAndPrepare[AppendEventRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	fields, err := req.Fields()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	// When the caller leaves the actor blank, attribute the event to the
	// authenticated operator rather than recording it as system-initiated.
	if fields.ActorUserID == nil {
		if operator := middleware.GetOperator(ctx); operator.UserID != "" {
			actorID, err := id.ParseUserID(operator.UserID)
			if err == nil && !actorID.IsNil() {
				fields.ActorUserID = &actorID
			}
		}
	}

	// Security events get the request context recorded alongside the payload.
	if fields.EventType == ledger.EventSecurityEvent {
		fields.NewValue = withClientMetadata(fields.NewValue, middleware.GetMetadata(ctx))
	}

	event, err := h.appender.Append(ctx, tenantID, fields)
	if err != nil {
		h.logger.ErrorContext(ctx, "append failed", "error", err, "request_id", requestID, "tenant_id", tenantID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, toEventResponse(&event))
}

// HandleGet returns one audit event by id, scoped to the tenant.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	tenantID, ok := h.tenantParam(w, r)
	if !ok {
		return
	}

	eventID, err := id.ParseEventID(chi.URLParam(r, "eventID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid event id"))
		return
	}

	event, err := h.store.Get(ctx, tenantID, eventID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "audit event not found"))
			return
		}
		h.logger.ErrorContext(ctx, "get event failed", "error", err, "request_id", requestID, "tenant_id", tenantID)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "get event failed"))
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toEventResponse(&event))
}

// HandleList returns one page of the tenant's ledger, oldest first.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	tenantID, ok := h.tenantParam(w, r)
	if !ok {
		return
	}

	filter, err := filterFromQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	events, err := h.store.List(ctx, tenantID, filter)
	if err != nil {
		h.logger.ErrorContext(ctx, "list events failed", "error", err, "request_id", requestID, "tenant_id", tenantID)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "list events failed"))
		return
	}

	resp := ListEventsResponse{
		Events: make([]EventResponse, 0, len(events)),
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}
	for i := range events {
		resp.Events = append(resp.Events, toEventResponse(&events[i]))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// HandleExport streams one page of entries as flat CSV for the external
// report renderer.
func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	tenantID, ok := h.tenantParam(w, r)
	if !ok {
		return
	}

	filter, err := filterFromQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	events, err := h.store.List(ctx, tenantID, filter)
	if err != nil {
		h.logger.ErrorContext(ctx, "export failed", "error", err, "request_id", requestID, "tenant_id", tenantID)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "export failed"))
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="audit-events.csv"`)
	if err := ledger.ExportPage(w, events); err != nil {
		// Headers are already sent; log and give up on this response.
		h.logger.ErrorContext(ctx, "export write failed", "error", err, "request_id", requestID)
	}
}

// HandleVerify replays the tenant's chain and reports integrity. A broken
// chain is a 200 with is_valid=false: tampering is a finding, not a server
// fault, and the dashboard renders it as its own alert.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	tenantID, ok := h.tenantParam(w, r)
	if !ok {
		return
	}

	window, err := parseWindow(r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.verifier.Verify(ctx, tenantID, window)
	if err != nil {
		h.logger.ErrorContext(ctx, "verification failed", "error", err, "request_id", requestID, "tenant_id", tenantID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toVerificationResponse(result))
}

// HandleStats returns the dashboard aggregate.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	tenantID, ok := h.tenantParam(w, r)
	if !ok {
		return
	}

	stats, err := h.aggregator.Stats(ctx, tenantID)
	if err != nil {
		h.logger.ErrorContext(ctx, "stats failed", "error", err, "request_id", requestID, "tenant_id", tenantID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, stats)
}

func (h *Handler) tenantParam(w http.ResponseWriter, r *http.Request) (id.TenantID, bool) {
	tenantID, err := id.ParseTenantID(chi.URLParam(r, "tenantID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid tenant id"))
		return id.TenantID{}, false
	}
	return tenantID, true
}

func filterFromQuery(r *http.Request) (ledger.Filter, error) {
	q := r.URL.Query()
	window, err := parseWindow(q.Get("from"), q.Get("to"))
	if err != nil {
		return ledger.Filter{}, err
	}

	f := ledger.Filter{
		EventType:    ledger.EventType(q.Get("event_type")),
		ResourceType: q.Get("resource_type"),
		ActorUserID:  q.Get("actor_user_id"),
		Window:       window,
	}
	if f.EventType != "" && !f.EventType.Valid() {
		return ledger.Filter{}, dErrors.New(dErrors.CodeBadRequest, "unknown event type")
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return ledger.Filter{}, dErrors.New(dErrors.CodeBadRequest, "limit must be an integer")
		}
		f.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return ledger.Filter{}, dErrors.New(dErrors.CodeBadRequest, "offset must be an integer")
		}
		f.Offset = n
	}
	f.Normalize()
	return f, nil
}

func withClientMetadata(p ledger.Payload, md middleware.Metadata) ledger.Payload {
	if md.ClientIP == "" && md.DeviceFingerprint == "" {
		return p
	}
	out := make(ledger.Payload, len(p)+2)
	for k, v := range p {
		out[k] = v
	}
	if md.ClientIP != "" {
		out["client_ip"] = md.ClientIP
	}
	if md.DeviceFingerprint != "" {
		out["device_fingerprint"] = md.DeviceFingerprint
	}
	return out
}
