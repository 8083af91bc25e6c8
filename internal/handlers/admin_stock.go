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
	defaultMovementPageSize = 50
	maxMovementPageSize     = 200
)

// AdminStockHandlers exposes the stock ledger to staff: manual adjustments,
// the movement log, and the ledger consistency check.
type AdminStockHandlers struct {
	authn *auth.Authenticator
	stock services.StockService
}

// NewAdminStockHandlers constructs handlers restricted to staff and admin roles.
func NewAdminStockHandlers(authn *auth.Authenticator, stock services.StockService) *AdminStockHandlers {
	return &AdminStockHandlers{
		authn: authn,
		stock: stock,
	}
}

// Routes wires the /admin/products stock endpoints onto the provided router.
func (h *AdminStockHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleStaff, auth.RoleAdmin))
	}
	r.Post("/{productId}/stock", h.adjustStock)
	r.Get("/{productId}/movements", h.listMovements)
	r.Get("/{productId}/stock-check", h.checkLedger)
}

type stockAdjustRequest struct {
	QuantityChange int    `json:"quantity_change"`
	Reason         string `json:"reason"`
	Notes          string `json:"notes"`
}

type stockMovementResponse struct {
	Movement stockMovementPayload `json:"movement"`
}

type stockMovementListResponse struct {
	Movements     []stockMovementPayload `json:"movements"`
	NextPageToken string                 `json:"next_page_token,omitempty"`
}

type stockMovementPayload struct {
	ID             string  `json:"id"`
	ProductID      string  `json:"product_id"`
	QuantityChange int     `json:"quantity_change"`
	QuantityBefore int     `json:"quantity_before"`
	QuantityAfter  int     `json:"quantity_after"`
	Reason         string  `json:"reason"`
	OrderRef       *string `json:"order_ref,omitempty"`
	ReversesRef    *string `json:"reverses_ref,omitempty"`
	Notes          string  `json:"notes,omitempty"`
	Actor          string  `json:"actor,omitempty"`
	CreatedAt      string  `json:"created_at"`
}

type ledgerCheckResponse struct {
	ProductID     string `json:"product_id"`
	StockQuantity int    `json:"stock_quantity"`
	LedgerSum     int    `json:"ledger_sum"`
	Consistent    bool   `json:"consistent"`
	CheckedAt     string `json:"checked_at"`
}

func (h *AdminStockHandlers) adjustStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	productID, identity, ok := h.requireStockRequest(ctx, w, r)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, defaultMaxBodySize)
	if err != nil {
		writeCartBodyError(ctx, w, err)
		return
	}

	var req stockAdjustRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	movement, err := h.stock.Adjust(ctx, services.StockAdjustCommand{
		ProductID:      productID,
		QuantityChange: req.QuantityChange,
		Reason:         services.MovementReason(strings.TrimSpace(req.Reason)),
		Notes:          strings.TrimSpace(req.Notes),
		Actor:          identity.UID,
	})
	if err != nil {
		writeStockError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, stockMovementResponse{Movement: buildStockMovementPayload(movement)})
}

func (h *AdminStockHandlers) listMovements(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	productID, _, ok := h.requireStockRequest(ctx, w, r)
	if !ok {
		return
	}

	params, err := pagination.FromRequest(r, pagination.Options{
		DefaultPageSize: defaultMovementPageSize,
		MaxPageSize:     maxMovementPageSize,
	})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "pagination parameters are invalid", http.StatusBadRequest))
		return
	}

	page, err := h.stock.ListMovements(ctx, productID, domain.Pagination{
		PageSize:  params.PageSize,
		PageToken: params.PageToken,
	})
	if err != nil {
		writeStockError(ctx, w, err)
		return
	}

	payload := stockMovementListResponse{
		Movements:     make([]stockMovementPayload, 0, len(page.Items)),
		NextPageToken: page.NextPageToken,
	}
	for _, movement := range page.Items {
		payload.Movements = append(payload.Movements, buildStockMovementPayload(movement))
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *AdminStockHandlers) checkLedger(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	productID, _, ok := h.requireStockRequest(ctx, w, r)
	if !ok {
		return
	}

	check, err := h.stock.CheckLedger(ctx, productID)
	if err != nil {
		writeStockError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, ledgerCheckResponse{
		ProductID:     check.ProductID,
		StockQuantity: check.StockQuantity,
		LedgerSum:     check.LedgerSum,
		Consistent:    check.Consistent,
		CheckedAt:     formatTime(check.CheckedAt),
	})
}

func (h *AdminStockHandlers) requireStockRequest(ctx context.Context, w http.ResponseWriter, r *http.Request) (string, *auth.Identity, bool) {
	if h.stock == nil {
		httpx.WriteError(ctx, w, httpx.NewError("stock_service_unavailable", "stock service is unavailable", http.StatusServiceUnavailable))
		return "", nil, false
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return "", nil, false
	}
	productID := strings.TrimSpace(chi.URLParam(r, "productId"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return "", nil, false
	}
	return productID, identity, true
}

func buildStockMovementPayload(movement services.StockMovement) stockMovementPayload {
	return stockMovementPayload{
		ID:             movement.ID,
		ProductID:      movement.ProductID,
		QuantityChange: movement.QuantityChange,
		QuantityBefore: movement.QuantityBefore,
		QuantityAfter:  movement.QuantityAfter,
		Reason:         string(movement.Reason),
		OrderRef:       cloneStringPointer(movement.OrderRef),
		ReversesRef:    cloneStringPointer(movement.ReversesRef),
		Notes:          movement.Notes,
		Actor:          movement.Actor,
		CreatedAt:      formatTime(movement.CreatedAt),
	}
}

func writeStockError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrStockInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "stock request is invalid", http.StatusBadRequest))
	case errors.Is(err, services.ErrStockProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product was not found", http.StatusNotFound))
	case errors.Is(err, services.ErrStockWouldGoNegative):
		httpx.WriteError(ctx, w, httpx.NewError("stock_negative", "adjustment would drive stock below zero", http.StatusConflict))
	case errors.Is(err, services.ErrStockInsufficient):
		httpx.WriteError(ctx, w, httpx.NewError("stock_conflict", "insufficient stock for the request", http.StatusConflict))
	case errors.Is(err, services.ErrStockUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("stock_unavailable", "stock storage is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unable to process stock request", http.StatusInternalServerError))
	}
}
