package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pharmadirect/api/internal/platform/httpx"
	"github.com/pharmadirect/api/internal/services"
)

// invoiceCallbackActor is recorded on history rows written by the render
// worker callback, which authenticates by HMAC rather than a user identity.
const invoiceCallbackActor = "invoice-worker"

// InternalHandlers receives service-to-service callbacks. Authentication is
// provided by the router's internal middleware chain (HMAC signatures), not
// Firebase tokens.
type InternalHandlers struct {
	invoices services.InvoiceService
}

// NewInternalHandlers constructs the internal callback handlers.
func NewInternalHandlers(invoices services.InvoiceService) *InternalHandlers {
	return &InternalHandlers{invoices: invoices}
}

// Routes wires the /internal endpoints onto the provided router.
func (h *InternalHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/orders/{orderId}/invoice", h.attachInvoice)
}

type attachInvoiceRequest struct {
	ObjectPath string `json:"object_path"`
}

func (h *InternalHandlers) attachInvoice(w http.ResponseWriter, r *http.Request) {
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

	body, err := readLimitedBody(r, defaultMaxBodySize)
	if err != nil {
		writeCartBodyError(ctx, w, err)
		return
	}

	var req attachInvoiceRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	order, err := h.invoices.PromoteInvoice(ctx, services.PromoteInvoiceCommand{
		OrderID:    orderID,
		ObjectPath: strings.TrimSpace(req.ObjectPath),
		Actor:      invoiceCallbackActor,
	})
	if err != nil {
		writeInvoiceError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func writeInvoiceError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrInvoiceInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invoice request is invalid", http.StatusBadRequest))
	case errors.Is(err, services.ErrInvoiceNotReady):
		httpx.WriteError(ctx, w, httpx.NewError("invoice_not_ready", "the invoice has not been rendered yet", http.StatusNotFound))
	case errors.Is(err, services.ErrInvoiceUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("invoice_unavailable", "invoice storage is unavailable", http.StatusServiceUnavailable))
	default:
		writeOrderError(ctx, w, err)
	}
}
