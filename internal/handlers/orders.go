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
	defaultOrderPageSize = 20
	maxOrderPageSize     = 100
)

// OrderHandlers exposes order endpoints for the authenticated customer.
// Every read is scoped to the caller's own orders; admin surfaces live in
// AdminOrderHandlers.
type OrderHandlers struct {
	authn   *auth.Authenticator
	orders  services.OrderService
	reorder services.ReorderService
}

// NewOrderHandlers constructs order handlers guarded by Firebase authentication.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, reorder services.ReorderService) *OrderHandlers {
	return &OrderHandlers{
		authn:   authn,
		orders:  orders,
		reorder: reorder,
	}
}

// Routes wires the /orders endpoints onto the provided router.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.listOrders)
	r.Get("/{orderId}", h.getOrder)
	r.Get("/{orderId}/history", h.listHistory)
	r.Post("/{orderId}/cancel", h.cancelOrder)
	r.Post("/{orderId}/reorder", h.reorderOrder)
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireOrderIdentity(ctx, w)
	if !ok {
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
		CustomerID: identity.UID,
		Pagination: domain.Pagination{PageSize: params.PageSize, PageToken: params.PageToken},
	}
	if status := strings.TrimSpace(r.URL.Query().Get("status")); status != "" {
		filter.Status = splitStatusFilter(status)
	}

	page, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildOrderListPayload(page))
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireOrderIdentity(ctx, w)
	if !ok {
		return
	}

	order, ok := h.loadOwnOrder(ctx, w, r, identity)
	if !ok {
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) listHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireOrderIdentity(ctx, w)
	if !ok {
		return
	}

	order, ok := h.loadOwnOrder(ctx, w, r, identity)
	if !ok {
		return
	}

	history, err := h.orders.ListHistory(ctx, order.ID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderHistoryResponse{History: buildOrderHistoryPayloads(history)})
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireOrderIdentity(ctx, w)
	if !ok {
		return
	}

	order, ok := h.loadOwnOrder(ctx, w, r, identity)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, defaultMaxBodySize)
	if err != nil {
		writeCartBodyError(ctx, w, err)
		return
	}

	var req cancelOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	updated, err := h.orders.Transition(ctx, services.OrderTransitionCommand{
		OrderID: order.ID,
		Target:  domain.OrderStatusCancelled,
		Reason:  strings.TrimSpace(req.Reason),
		Actor:   identity.UID,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(updated)})
}

func (h *OrderHandlers) reorderOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireOrderIdentity(ctx, w)
	if !ok {
		return
	}
	if h.reorder == nil {
		httpx.WriteError(ctx, w, httpx.NewError("reorder_unavailable", "reorder is unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderId"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	result, err := h.reorder.Reorder(ctx, services.ReorderCommand{
		CustomerID: identity.UID,
		OrderID:    orderID,
	})
	if err != nil {
		writeReorderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildReorderPayload(result))
}

// loadOwnOrder fetches the path order and enforces ownership. Foreign orders
// surface as not-found so order ids cannot be probed.
func (h *OrderHandlers) loadOwnOrder(ctx context.Context, w http.ResponseWriter, r *http.Request, identity *auth.Identity) (services.Order, bool) {
	orderID := strings.TrimSpace(chi.URLParam(r, "orderId"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return services.Order{}, false
	}

	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return services.Order{}, false
	}
	if order.CustomerID != identity.UID {
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order was not found", http.StatusNotFound))
		return services.Order{}, false
	}
	return order, true
}

func (h *OrderHandlers) requireOrderIdentity(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return nil, false
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func splitStatusFilter(raw string) []string {
	parts := strings.Split(raw, ",")
	statuses := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			statuses = append(statuses, trimmed)
		}
	}
	return statuses
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderListResponse struct {
	Orders        []orderPayload `json:"orders"`
	NextPageToken string         `json:"next_page_token,omitempty"`
}

type orderHistoryResponse struct {
	History []orderHistoryPayload `json:"history"`
}

type orderPayload struct {
	ID                    string             `json:"id"`
	OrderNumber           string             `json:"order_number"`
	CustomerID            string             `json:"customer_id"`
	Status                string             `json:"status"`
	PaymentStatus         string             `json:"payment_status"`
	Subtotal              int64              `json:"subtotal"`
	DeliveryFee           int64              `json:"delivery_fee"`
	Total                 int64              `json:"total"`
	DeliveryMethod        string             `json:"delivery_method"`
	PaymentMethod         string             `json:"payment_method"`
	DeliveryAddressID     *string            `json:"delivery_address_id,omitempty"`
	DeliveryDistanceKM    *float64           `json:"delivery_distance_km,omitempty"`
	FeePendingConfirm     bool               `json:"fee_pending_confirm,omitempty"`
	PreferredDeliveryDate *string            `json:"preferred_delivery_date,omitempty"`
	OrderNotes            string             `json:"order_notes,omitempty"`
	CancelledReason       string             `json:"cancelled_reason,omitempty"`
	InvoiceURL            string             `json:"invoice_url,omitempty"`
	Items                 []orderItemPayload `json:"items"`
	CreatedAt             string             `json:"created_at"`
	UpdatedAt             string             `json:"updated_at"`
	ConfirmedAt           *string            `json:"confirmed_at,omitempty"`
	DispatchedAt          *string            `json:"dispatched_at,omitempty"`
	DeliveredAt           *string            `json:"delivered_at,omitempty"`
	CancelledAt           *string            `json:"cancelled_at,omitempty"`
}

type orderItemPayload struct {
	ProductID   string `json:"product_id"`
	ProductSKU  string `json:"product_sku"`
	ProductName string `json:"product_name"`
	UnitPrice   int64  `json:"unit_price"`
	Quantity    int    `json:"quantity"`
	TotalPrice  int64  `json:"total_price"`
}

type orderHistoryPayload struct {
	ID        string `json:"id"`
	Field     string `json:"field"`
	OldStatus string `json:"old_status,omitempty"`
	NewStatus string `json:"new_status"`
	Notes     string `json:"notes,omitempty"`
	Actor     string `json:"actor,omitempty"`
	CreatedAt string `json:"created_at"`
}

type reorderResponse struct {
	Success    bool                    `json:"success"`
	CartID     string                  `json:"cart_id"`
	ItemsAdded int                     `json:"items_added"`
	Warnings   []reorderWarningPayload `json:"warnings"`
}

type reorderWarningPayload struct {
	Reason           string `json:"reason"`
	ProductID        string `json:"product_id"`
	ProductName      string `json:"product_name,omitempty"`
	OriginalQuantity int    `json:"original_quantity,omitempty"`
	AddedQuantity    int    `json:"added_quantity,omitempty"`
}

func buildOrderListPayload(page domain.CursorPage[services.Order]) orderListResponse {
	payload := orderListResponse{
		Orders:        make([]orderPayload, 0, len(page.Items)),
		NextPageToken: page.NextPageToken,
	}
	for _, order := range page.Items {
		payload.Orders = append(payload.Orders, buildOrderPayload(order))
	}
	return payload
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:                 order.ID,
		OrderNumber:        order.OrderNumber,
		CustomerID:         order.CustomerID,
		Status:             string(order.Status),
		PaymentStatus:      string(order.PaymentStatus),
		Subtotal:           order.Subtotal,
		DeliveryFee:        order.DeliveryFee,
		Total:              order.Total,
		DeliveryMethod:     string(order.DeliveryMethod),
		PaymentMethod:      string(order.PaymentMethod),
		DeliveryAddressID:  cloneStringPointer(order.DeliveryAddressID),
		DeliveryDistanceKM: cloneFloatPointer(order.DeliveryDistanceKM),
		FeePendingConfirm:  order.FeePendingConfirm,
		OrderNotes:         order.OrderNotes,
		CancelledReason:    order.CancelledReason,
		InvoiceURL:         order.InvoiceURL,
		Items:              make([]orderItemPayload, 0, len(order.Items)),
		CreatedAt:          formatTime(order.CreatedAt),
		UpdatedAt:          formatTime(order.UpdatedAt),
		ConfirmedAt:        formatTimePointer(order.ConfirmedAt),
		DispatchedAt:       formatTimePointer(order.DispatchedAt),
		DeliveredAt:        formatTimePointer(order.DeliveredAt),
		CancelledAt:        formatTimePointer(order.CancelledAt),
	}
	payload.PreferredDeliveryDate = formatTimePointer(order.PreferredDeliveryDate)
	for _, item := range order.Items {
		payload.Items = append(payload.Items, orderItemPayload{
			ProductID:   item.ProductID,
			ProductSKU:  item.ProductSKU,
			ProductName: item.ProductName,
			UnitPrice:   item.UnitPrice,
			Quantity:    item.Quantity,
			TotalPrice:  item.TotalPrice,
		})
	}
	return payload
}

func buildOrderHistoryPayloads(history []services.OrderStatusHistory) []orderHistoryPayload {
	payloads := make([]orderHistoryPayload, 0, len(history))
	for _, entry := range history {
		payloads = append(payloads, orderHistoryPayload{
			ID:        entry.ID,
			Field:     string(entry.Field),
			OldStatus: entry.OldStatus,
			NewStatus: entry.NewStatus,
			Notes:     entry.Notes,
			Actor:     entry.Actor,
			CreatedAt: formatTime(entry.CreatedAt),
		})
	}
	return payloads
}

func buildReorderPayload(result services.ReorderResult) reorderResponse {
	payload := reorderResponse{
		Success:    result.ItemsAdded > 0,
		CartID:     result.Cart.ID,
		ItemsAdded: result.ItemsAdded,
		Warnings:   make([]reorderWarningPayload, 0, len(result.Warnings)),
	}
	for _, warning := range result.Warnings {
		payload.Warnings = append(payload.Warnings, reorderWarningPayload{
			Reason:           string(warning.Kind),
			ProductID:        warning.ProductID,
			ProductName:      warning.ProductName,
			OriginalQuantity: warning.OriginalQuantity,
			AddedQuantity:    warning.AddedQuantity,
		})
	}
	return payload
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order request is invalid", http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order was not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderCancelReasonRequired):
		httpx.WriteError(ctx, w, httpx.NewError("cancel_reason_required", "a cancellation reason is required", http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderInvalidTransition):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_transition", "order status cannot change to the requested value", http.StatusConflict))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", "order was modified concurrently", http.StatusConflict))
	case errors.Is(err, services.ErrOrderUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("order_unavailable", "order storage is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unable to process order request", http.StatusInternalServerError))
	}
}

func writeReorderError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrReorderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "reorder request is invalid", http.StatusBadRequest))
	case errors.Is(err, services.ErrReorderOrderNotFound), errors.Is(err, services.ErrReorderForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order was not found", http.StatusNotFound))
	case errors.Is(err, services.ErrReorderUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("reorder_unavailable", "reorder is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unable to reorder", http.StatusInternalServerError))
	}
}
