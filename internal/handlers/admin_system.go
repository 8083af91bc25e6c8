package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/pharmadirect/api/internal/domain"
	"github.com/pharmadirect/api/internal/platform/auth"
	"github.com/pharmadirect/api/internal/platform/httpx"
	"github.com/pharmadirect/api/internal/platform/pagination"
	"github.com/pharmadirect/api/internal/services"
)

const (
	defaultAuditPageSize = 50
	maxAuditPageSize     = 200
)

// AdminSystemHandlers exposes operational tooling: audit log reads and named
// counter advancement. Restricted to the admin role.
type AdminSystemHandlers struct {
	authn  *auth.Authenticator
	system services.SystemService
}

// NewAdminSystemHandlers constructs the admin system handlers.
func NewAdminSystemHandlers(authn *auth.Authenticator, system services.SystemService) *AdminSystemHandlers {
	return &AdminSystemHandlers{
		authn:  authn,
		system: system,
	}
}

// Routes wires the system endpoints onto the provided router.
func (h *AdminSystemHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleAdmin))
	}
	r.Get("/audit-logs", h.listAuditLogs)
	r.Post("/counters/next", h.nextCounterValue)
}

func (h *AdminSystemHandlers) listAuditLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.checkService(ctx, w) {
		return
	}

	params, err := pagination.FromRequest(r, pagination.Options{
		DefaultPageSize: defaultAuditPageSize,
		MaxPageSize:     maxAuditPageSize,
	})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "pagination parameters are invalid", http.StatusBadRequest))
		return
	}

	query := r.URL.Query()
	filter := services.AuditLogFilter{
		TargetRef:  strings.TrimSpace(query.Get("target_ref")),
		Actor:      strings.TrimSpace(query.Get("actor")),
		ActorType:  strings.TrimSpace(query.Get("actor_type")),
		Action:     strings.TrimSpace(query.Get("action")),
		Pagination: domain.Pagination{PageSize: params.PageSize, PageToken: params.PageToken},
	}
	dateRange, rangeErr := parseDateRange(query.Get("from"), query.Get("to"))
	if rangeErr != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "from/to must be RFC 3339 timestamps", http.StatusBadRequest))
		return
	}
	filter.DateRange = dateRange

	page, err := h.system.ListAuditLogs(ctx, filter)
	if err != nil {
		writeSystemError(ctx, w, err)
		return
	}

	payload := auditLogListResponse{
		Entries:       make([]auditLogPayload, 0, len(page.Items)),
		NextPageToken: page.NextPageToken,
	}
	for _, entry := range page.Items {
		payload.Entries = append(payload.Entries, buildAuditLogPayload(entry))
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

type nextCounterRequest struct {
	CounterID string `json:"counter_id"`
	Step      int64  `json:"step"`
}

type nextCounterResponse struct {
	CounterID string `json:"counter_id"`
	Value     int64  `json:"value"`
}

func (h *AdminSystemHandlers) nextCounterValue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.checkService(ctx, w) {
		return
	}

	body, err := readLimitedBody(r, defaultMaxBodySize)
	if err != nil {
		writeCartBodyError(ctx, w, err)
		return
	}

	var req nextCounterRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}
	if req.Step == 0 {
		req.Step = 1
	}

	value, err := h.system.NextCounterValue(ctx, services.CounterCommand{
		CounterID: strings.TrimSpace(req.CounterID),
		Step:      req.Step,
	})
	if err != nil {
		writeSystemError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, nextCounterResponse{
		CounterID: strings.TrimSpace(req.CounterID),
		Value:     value,
	})
}

func (h *AdminSystemHandlers) checkService(ctx context.Context, w http.ResponseWriter) bool {
	if h.system == nil {
		httpx.WriteError(ctx, w, httpx.NewError("system_service_unavailable", "system service is unavailable", http.StatusServiceUnavailable))
		return false
	}
	return true
}

type auditLogListResponse struct {
	Entries       []auditLogPayload `json:"entries"`
	NextPageToken string            `json:"next_page_token,omitempty"`
}

type auditLogPayload struct {
	ID        string         `json:"id"`
	Actor     string         `json:"actor"`
	ActorType string         `json:"actor_type,omitempty"`
	Action    string         `json:"action"`
	TargetRef string         `json:"target_ref,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Diff      map[string]any `json:"diff,omitempty"`
	Severity  string         `json:"severity,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	CreatedAt string         `json:"created_at"`
}

func buildAuditLogPayload(entry services.AuditLogEntry) auditLogPayload {
	return auditLogPayload{
		ID:        entry.ID,
		Actor:     entry.Actor,
		ActorType: entry.ActorType,
		Action:    entry.Action,
		TargetRef: entry.TargetRef,
		Metadata:  entry.Metadata,
		Diff:      entry.Diff,
		Severity:  entry.Severity,
		RequestID: entry.RequestID,
		CreatedAt: formatTime(entry.CreatedAt),
	}
}

func writeSystemError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCounterInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "counter request is invalid", http.StatusBadRequest))
	case errors.Is(err, services.ErrCounterExhausted):
		httpx.WriteError(ctx, w, httpx.NewError("counter_exhausted", "counter cannot advance further", http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unable to process system request", http.StatusInternalServerError))
	}
}
