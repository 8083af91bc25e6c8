package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/pharmadirect/api/internal/domain"
	"github.com/pharmadirect/api/internal/platform/auth"
	"github.com/pharmadirect/api/internal/platform/httpx"
	"github.com/pharmadirect/api/internal/platform/pagination"
	"github.com/pharmadirect/api/internal/services"
)

// AdminOrderHandlers exposes the staff-facing order queue: cross-customer
// listings plus the status and payment-status state machines.
type AdminOrderHandlers struct {
	authn    *auth.Authenticator
	orders   services.OrderService
	invoices services.InvoiceService
}

// AdminOrderOption customises the admin order handlers.
type AdminOrderOption func(*AdminOrderHandlers)

// WithAdminOrderInvoices enables the invoice download endpoint.
func WithAdminOrderInvoices(invoices services.InvoiceService) AdminOrderOption {
	return func(h *AdminOrderHandlers) {
		h.invoices = invoices
	}
}

// NewAdminOrderHandlers constructs handlers restricted to staff and admin roles.
func NewAdminOrderHandlers(authn *auth.Authenticator, orders services.OrderService, opts ...AdminOrderOption) *AdminOrderHandlers {
	handlers := &AdminOrderHandlers{
		authn:  authn,
		orders: orders,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(handlers)
		}
	}
	return handlers
}

// Routes wires the /admin/orders endpoints onto the provided router.
func (h *AdminOrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleStaff, auth.RoleAdmin))
	}
	r.Get("/", h.listOrders)
	r.Get("/{orderId}", h.getOrder)
	r.Get("/{orderId}/history", h.listHistory)
	r.Get("/{orderId}/invoice-url", h.invoiceURL)
	r.Patch("/{orderId}", h.updateOrder)
}

func (h *AdminOrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.checkService(ctx, w) {
		return
	}

	params, err := pagination.FromRequest(r, pagination.Options{
		DefaultPageSize: defaultOrderPageSize,
		MaxPageSize:     maxOrderPageSize,
	})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "pagination parameters are invalid", http.StatusBadRequest))
		return
	}

	filter := services.OrderListFilter{
		Pagination: domain.Pagination{PageSize: params.PageSize, PageToken: params.PageToken},
	}
	query := r.URL.Query()
	if customerID := strings.TrimSpace(query.Get("customer_id")); customerID != "" {
		filter.CustomerID = customerID
	}
	if status := strings.TrimSpace(query.Get("status")); status != "" {
		filter.Status = splitStatusFilter(status)
	}
	if rangeFilter, rangeErr := parseDateRange(query.Get("from"), query.Get("to")); rangeErr != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "from/to must be RFC 3339 timestamps", http.StatusBadRequest))
		return
	} else {
		filter.DateRange = rangeFilter
	}

	page, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildOrderListPayload(page))
}

func (h *AdminOrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.checkService(ctx, w) {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderId"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminOrderHandlers) listHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.checkService(ctx, w) {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderId"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	history, err := h.orders.ListHistory(ctx, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderHistoryResponse{History: buildOrderHistoryPayloads(history)})
}

type invoiceURLResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// invoiceURL signs a short-lived download link for the order's stored invoice.
func (h *AdminOrderHandlers) invoiceURL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.invoices == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invoice_service_unavailable", "invoice service is unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderId"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	download, err := h.invoices.InvoiceDownloadURL(ctx, orderID)
	if err != nil {
		writeInvoiceError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, invoiceURLResponse{URL: download.URL, ExpiresAt: download.ExpiresAt})
}

type adminOrderUpdateRequest struct {
	Status          *string `json:"status"`
	PaymentStatus   *string `json:"payment_status"`
	Notes           string  `json:"notes"`
	CancelledReason string  `json:"cancelled_reason"`
}

// updateOrder applies one state-machine step. Status and payment status move
// independently, so a request naming both is rejected rather than guessed at.
func (h *AdminOrderHandlers) updateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.checkService(ctx, w) {
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderId"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, defaultMaxBodySize)
	if err != nil {
		writeCartBodyError(ctx, w, err)
		return
	}

	var req adminOrderUpdateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	hasStatus := req.Status != nil && strings.TrimSpace(*req.Status) != ""
	hasPayment := req.PaymentStatus != nil && strings.TrimSpace(*req.PaymentStatus) != ""
	switch {
	case hasStatus && hasPayment:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "set either status or payment_status, not both", http.StatusBadRequest))
		return
	case !hasStatus && !hasPayment:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status or payment_status is required", http.StatusBadRequest))
		return
	}

	var (
		updated services.Order
	)
	if hasStatus {
		updated, err = h.orders.Transition(ctx, services.OrderTransitionCommand{
			OrderID: orderID,
			Target:  domain.OrderStatus(strings.TrimSpace(*req.Status)),
			Notes:   strings.TrimSpace(req.Notes),
			Reason:  strings.TrimSpace(req.CancelledReason),
			Actor:   identity.UID,
		})
	} else {
		updated, err = h.orders.TransitionPayment(ctx, services.PaymentTransitionCommand{
			OrderID: orderID,
			Target:  domain.PaymentStatus(strings.TrimSpace(*req.PaymentStatus)),
			Notes:   strings.TrimSpace(req.Notes),
			Actor:   identity.UID,
		})
	}
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(updated)})
}

func (h *AdminOrderHandlers) checkService(ctx context.Context, w http.ResponseWriter) bool {
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return false
	}
	return true
}

func parseDateRange(fromRaw, toRaw string) (domain.RangeQuery[time.Time], error) {
	var rangeQuery domain.RangeQuery[time.Time]
	if trimmed := strings.TrimSpace(fromRaw); trimmed != "" {
		parsed, err := parseRFC3339(trimmed)
		if err != nil {
			return domain.RangeQuery[time.Time]{}, err
		}
		rangeQuery.From = &parsed
	}
	if trimmed := strings.TrimSpace(toRaw); trimmed != "" {
		parsed, err := parseRFC3339(trimmed)
		if err != nil {
			return domain.RangeQuery[time.Time]{}, err
		}
		rangeQuery.To = &parsed
	}
	return rangeQuery, nil
}
