package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pharmadirect/api/internal/platform/auth"
	"github.com/pharmadirect/api/internal/platform/httpx"
	"github.com/pharmadirect/api/internal/services"
)

// Placement shares one write path with delivery quoting, so a single limiter
// covers both endpoints per customer.
const (
	defaultPlaceOrderLimit  = 10
	defaultPlaceOrderWindow = time.Minute
)

// CheckoutHandlers exposes delivery quoting and order placement for
// authenticated customers.
type CheckoutHandlers struct {
	authn    *auth.Authenticator
	checkout services.CheckoutService
	pricing  services.PricingEngine
	limiter  rateLimiter
}

// CheckoutHandlersOption customizes checkout handler construction.
type CheckoutHandlersOption func(*CheckoutHandlers)

// WithCheckoutRateLimiter overrides the per-customer placement limiter.
func WithCheckoutRateLimiter(limiter rateLimiter) CheckoutHandlersOption {
	return func(h *CheckoutHandlers) {
		h.limiter = limiter
	}
}

// NewCheckoutHandlers constructs checkout handlers guarded by Firebase authentication.
func NewCheckoutHandlers(authn *auth.Authenticator, checkout services.CheckoutService, pricing services.PricingEngine, opts ...CheckoutHandlersOption) *CheckoutHandlers {
	h := &CheckoutHandlers{
		authn:    authn,
		checkout: checkout,
		pricing:  pricing,
		limiter:  newSimpleRateLimiter(defaultPlaceOrderLimit, defaultPlaceOrderWindow, time.Now),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers checkout endpoints under the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/quote", h.quoteDelivery)
	r.Post("/place-order", h.placeOrder)
}

type deliveryQuoteRequest struct {
	DeliveryMethod string  `json:"delivery_method"`
	AddressID      *string `json:"address_id"`
}

type deliveryQuotePayload struct {
	Method            string   `json:"method"`
	Fee               int64    `json:"fee"`
	DistanceKM        *float64 `json:"distance_km,omitempty"`
	FeePendingConfirm bool     `json:"fee_pending_confirm,omitempty"`
	ContactForFee     bool     `json:"contact_for_fee,omitempty"`
	Note              string   `json:"note,omitempty"`
}

type placeOrderRequest struct {
	DeliveryMethod        string  `json:"delivery_method"`
	PaymentMethod         string  `json:"payment_method"`
	DeliveryAddressID     *string `json:"delivery_address_id"`
	PreferredDeliveryDate *string `json:"preferred_delivery_date"`
	OrderNotes            string  `json:"order_notes"`
}

type placedOrderResponse struct {
	Order    orderPayload         `json:"order"`
	Warnings []cartWarningPayload `json:"warnings"`
}

type stockConflictResponse struct {
	Error       string              `json:"error"`
	StockIssues []stockIssuePayload `json:"stock_issues"`
}

type stockIssuePayload struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name,omitempty"`
	Requested   int    `json:"requested"`
	Available   int    `json:"available"`
}

func (h *CheckoutHandlers) quoteDelivery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.pricing == nil {
		httpx.WriteError(ctx, w, httpx.NewError("pricing_unavailable", "delivery pricing is unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	body, err := readLimitedBody(r, defaultMaxBodySize)
	if err != nil {
		writeCartBodyError(ctx, w, err)
		return
	}

	var req deliveryQuoteRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	quote, err := h.pricing.QuoteDelivery(ctx, services.DeliveryQuoteCommand{
		CustomerID: identity.UID,
		Method:     services.DeliveryMethod(strings.TrimSpace(req.DeliveryMethod)),
		AddressID:  req.AddressID,
	})
	if err != nil {
		writePricingError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildDeliveryQuotePayload(quote))
}

func (h *CheckoutHandlers) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout is unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	if h.limiter != nil && !h.limiter.Allow(identity.UID) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many placement attempts, try again shortly", http.StatusTooManyRequests))
		return
	}

	body, err := readLimitedBody(r, defaultMaxBodySize)
	if err != nil {
		writeCartBodyError(ctx, w, err)
		return
	}

	var req placeOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	cmd := services.PlaceOrderCommand{
		CustomerID:        identity.UID,
		DeliveryMethod:    services.DeliveryMethod(strings.TrimSpace(req.DeliveryMethod)),
		PaymentMethod:     services.PaymentMethod(strings.TrimSpace(req.PaymentMethod)),
		DeliveryAddressID: req.DeliveryAddressID,
		OrderNotes:        strings.TrimSpace(req.OrderNotes),
	}
	if req.PreferredDeliveryDate != nil && strings.TrimSpace(*req.PreferredDeliveryDate) != "" {
		parsed, parseErr := parseRFC3339(strings.TrimSpace(*req.PreferredDeliveryDate))
		if parseErr != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "preferred_delivery_date must be an RFC 3339 timestamp", http.StatusBadRequest))
			return
		}
		cmd.PreferredDeliveryDate = &parsed
	}

	placed, err := h.checkout.PlaceOrder(ctx, cmd)
	if err != nil {
		h.writePlaceOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, placedOrderResponse{
		Order:    buildOrderPayload(placed.Order),
		Warnings: buildCartWarningPayloads(placed.Warnings),
	})
}

func (h *CheckoutHandlers) writePlaceOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	var conflict *services.StockConflictError
	if errors.As(err, &conflict) {
		writeJSONResponse(w, http.StatusConflict, stockConflictResponse{
			Error:       "stock_conflict",
			StockIssues: buildStockIssuePayloads(conflict.Issues),
		})
		return
	}

	switch {
	case errors.Is(err, services.ErrCheckoutInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "checkout request is invalid", http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutNotVerified):
		httpx.WriteError(ctx, w, httpx.NewError("customer_not_verified", "account verification is required before ordering", http.StatusForbidden))
	case errors.Is(err, services.ErrCheckoutEmptyCart):
		httpx.WriteError(ctx, w, httpx.NewError("empty_cart", "cart has no orderable items", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrCheckoutAddressRequired):
		httpx.WriteError(ctx, w, httpx.NewError("address_required", "a delivery address is required for this method", http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutConflict):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_conflict", "checkout state changed, retry the request", http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unable to place order", http.StatusInternalServerError))
	}
}

func writePricingError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrPricingInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "delivery quote request is invalid", http.StatusBadRequest))
	case errors.Is(err, services.ErrPricingAddressRequired):
		httpx.WriteError(ctx, w, httpx.NewError("address_required", "a delivery address is required for this method", http.StatusBadRequest))
	case errors.Is(err, services.ErrPricingUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("pricing_unavailable", "delivery pricing is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unable to quote delivery", http.StatusInternalServerError))
	}
}

func buildDeliveryQuotePayload(quote services.DeliveryQuote) deliveryQuotePayload {
	payload := deliveryQuotePayload{
		Method:            string(quote.Method),
		Fee:               quote.Fee,
		FeePendingConfirm: quote.FeePendingConfirm,
		ContactForFee:     quote.ContactForFee,
		Note:              quote.Note,
	}
	if quote.DistanceKM != nil {
		payload.DistanceKM = cloneFloatPointer(quote.DistanceKM)
	}
	return payload
}

func buildStockIssuePayloads(issues []services.StockIssue) []stockIssuePayload {
	payloads := make([]stockIssuePayload, 0, len(issues))
	for _, issue := range issues {
		payloads = append(payloads, stockIssuePayload{
			ProductID:   issue.ProductID,
			ProductName: issue.ProductName,
			Requested:   issue.Requested,
			Available:   issue.Available,
		})
	}
	return payloads
}
