package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pharmadirect/api/internal/platform/auth"
	"github.com/pharmadirect/api/internal/platform/httpx"
	"github.com/pharmadirect/api/internal/services"
)

// CartHandlers exposes authenticated cart endpoints for the current customer.
type CartHandlers struct {
	authn *auth.Authenticator
	carts services.CartService
}

// NewCartHandlers constructs handlers enforcing Firebase authentication before invoking the cart service.
func NewCartHandlers(authn *auth.Authenticator, carts services.CartService) *CartHandlers {
	return &CartHandlers{
		authn: authn,
		carts: carts,
	}
}

// Routes wires the /cart endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.getCart)
	r.Delete("/", h.clearCart)
	r.Post("/items", h.addItem)
	r.Patch("/items/{itemId}", h.updateItem)
	r.Delete("/items/{itemId}", h.removeItem)
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireCartIdentity(ctx, w)
	if !ok {
		return
	}

	view, err := h.carts.GetCart(ctx, identity.UID)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildCartViewPayload(view))
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireCartIdentity(ctx, w)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, defaultMaxBodySize)
	if err != nil {
		writeCartBodyError(ctx, w, err)
		return
	}

	var req addCartItemRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	view, err := h.carts.AddItem(ctx, services.AddCartItemCommand{
		CustomerID: identity.UID,
		ProductID:  strings.TrimSpace(req.ProductID),
		Quantity:   req.Quantity,
	})
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildCartViewPayload(view))
}

func (h *CartHandlers) updateItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireCartIdentity(ctx, w)
	if !ok {
		return
	}

	itemID := strings.TrimSpace(chi.URLParam(r, "itemId"))
	if itemID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "item id is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, defaultMaxBodySize)
	if err != nil {
		writeCartBodyError(ctx, w, err)
		return
	}

	var req updateCartItemRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	view, err := h.carts.UpdateItem(ctx, services.UpdateCartItemCommand{
		CustomerID: identity.UID,
		ItemID:     itemID,
		Quantity:   req.Quantity,
	})
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildCartViewPayload(view))
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireCartIdentity(ctx, w)
	if !ok {
		return
	}

	itemID := strings.TrimSpace(chi.URLParam(r, "itemId"))
	if itemID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "item id is required", http.StatusBadRequest))
		return
	}

	view, err := h.carts.RemoveItem(ctx, services.RemoveCartItemCommand{
		CustomerID: identity.UID,
		ItemID:     itemID,
	})
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildCartViewPayload(view))
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireCartIdentity(ctx, w)
	if !ok {
		return
	}

	if err := h.carts.ClearCart(ctx, identity.UID); err != nil {
		writeCartError(ctx, w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandlers) requireCartIdentity(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return nil, false
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

type addCartItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type updateCartItemRequest struct {
	Quantity int `json:"quantity"`
}

type cartViewPayload struct {
	ID        string               `json:"id"`
	Items     []cartItemPayload    `json:"items"`
	Warnings  []cartWarningPayload `json:"warnings"`
	Subtotal  int64                `json:"subtotal"`
	UpdatedAt string               `json:"updated_at,omitempty"`
}

type cartItemPayload struct {
	ID            string `json:"id"`
	ProductID     string `json:"product_id"`
	ProductSKU    string `json:"product_sku"`
	ProductName   string `json:"product_name"`
	UnitPrice     int64  `json:"unit_price"`
	Quantity      int    `json:"quantity"`
	LineTotal     int64  `json:"line_total"`
	StockQuantity int    `json:"stock_quantity"`
	AddedAt       string `json:"added_at"`
	UpdatedAt     string `json:"updated_at,omitempty"`
}

type cartWarningPayload struct {
	Kind         string `json:"kind"`
	ProductID    string `json:"product_id"`
	ProductName  string `json:"product_name,omitempty"`
	RequestedQty int    `json:"requested_qty,omitempty"`
	AvailableQty int    `json:"available_qty,omitempty"`
}

func buildCartViewPayload(view services.CartView) cartViewPayload {
	payload := cartViewPayload{
		ID:       view.Cart.ID,
		Items:    make([]cartItemPayload, 0, len(view.Items)),
		Warnings: buildCartWarningPayloads(view.Warnings),
		Subtotal: view.Subtotal,
	}
	if !view.Cart.UpdatedAt.IsZero() {
		payload.UpdatedAt = formatTime(view.Cart.UpdatedAt)
	}
	for _, item := range view.Items {
		payload.Items = append(payload.Items, buildCartItemPayload(item))
	}
	return payload
}

func buildCartItemPayload(item services.ReconciledItem) cartItemPayload {
	payload := cartItemPayload{
		ID:            item.Item.ID,
		ProductID:     item.Product.ID,
		ProductSKU:    item.Product.SKU,
		ProductName:   item.Product.Name,
		UnitPrice:     item.Product.WholesalePrice,
		Quantity:      item.Item.Quantity,
		LineTotal:     item.Product.WholesalePrice * int64(item.Item.Quantity),
		StockQuantity: item.Product.StockQuantity,
		AddedAt:       formatTime(item.Item.AddedAt),
	}
	if item.Item.UpdatedAt != nil {
		payload.UpdatedAt = formatTime(*item.Item.UpdatedAt)
	}
	return payload
}

func buildCartWarningPayloads(warnings []services.CartWarning) []cartWarningPayload {
	payloads := make([]cartWarningPayload, 0, len(warnings))
	for _, warning := range warnings {
		payloads = append(payloads, cartWarningPayload{
			Kind:         string(warning.Kind),
			ProductID:    warning.ProductID,
			ProductName:  warning.ProductName,
			RequestedQty: warning.RequestedQty,
			AvailableQty: warning.AvailableQty,
		})
	}
	return payloads
}

func writeCartBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	case errors.Is(err, errEmptyBody):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unable to read request body", http.StatusBadRequest))
	}
}

func writeCartError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCartInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "cart request is invalid", http.StatusBadRequest))
	case errors.Is(err, services.ErrCartItemNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("cart_item_not_found", "cart item was not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCartProductUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("product_unavailable", "product is unavailable for ordering", http.StatusConflict))
	case errors.Is(err, services.ErrCartConflict):
		httpx.WriteError(ctx, w, httpx.NewError("cart_conflict", "cart was modified concurrently", http.StatusConflict))
	case errors.Is(err, services.ErrCartUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("cart_unavailable", "cart storage is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unable to process cart request", http.StatusInternalServerError))
	}
}
