package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pharmadirect/api/internal/platform/auth"
	"github.com/pharmadirect/api/internal/services"
)

type stubCartService struct {
	getCartFunc    func(ctx context.Context, customerID string) (services.CartView, error)
	addItemFunc    func(ctx context.Context, cmd services.AddCartItemCommand) (services.CartView, error)
	updateItemFunc func(ctx context.Context, cmd services.UpdateCartItemCommand) (services.CartView, error)
	removeItemFunc func(ctx context.Context, cmd services.RemoveCartItemCommand) (services.CartView, error)
	clearCartFunc  func(ctx context.Context, customerID string) error
	reconcileFunc  func(ctx context.Context, customerID string) (services.Reconciliation, error)
}

func (s *stubCartService) GetCart(ctx context.Context, customerID string) (services.CartView, error) {
	if s.getCartFunc == nil {
		return services.CartView{}, nil
	}
	return s.getCartFunc(ctx, customerID)
}

func (s *stubCartService) AddItem(ctx context.Context, cmd services.AddCartItemCommand) (services.CartView, error) {
	if s.addItemFunc == nil {
		return services.CartView{}, nil
	}
	return s.addItemFunc(ctx, cmd)
}

func (s *stubCartService) UpdateItem(ctx context.Context, cmd services.UpdateCartItemCommand) (services.CartView, error) {
	if s.updateItemFunc == nil {
		return services.CartView{}, nil
	}
	return s.updateItemFunc(ctx, cmd)
}

func (s *stubCartService) RemoveItem(ctx context.Context, cmd services.RemoveCartItemCommand) (services.CartView, error) {
	if s.removeItemFunc == nil {
		return services.CartView{}, nil
	}
	return s.removeItemFunc(ctx, cmd)
}

func (s *stubCartService) ClearCart(ctx context.Context, customerID string) error {
	if s.clearCartFunc == nil {
		return nil
	}
	return s.clearCartFunc(ctx, customerID)
}

func (s *stubCartService) Reconcile(ctx context.Context, customerID string) (services.Reconciliation, error) {
	if s.reconcileFunc == nil {
		return services.Reconciliation{}, nil
	}
	return s.reconcileFunc(ctx, customerID)
}

func TestCartHandlersGetCartSuccess(t *testing.T) {
	now := time.Date(2025, 3, 4, 9, 30, 0, 0, time.UTC)

	service := &stubCartService{
		getCartFunc: func(ctx context.Context, customerID string) (services.CartView, error) {
			if customerID != "cust-7" {
				t.Fatalf("unexpected customer id %q", customerID)
			}
			return services.CartView{
				Cart: services.Cart{ID: "cart-cust-7", CustomerID: "cust-7", UpdatedAt: now},
				Items: []services.ReconciledItem{
					{
						Item: services.CartItem{ID: "item-1", ProductID: "prod-1", Quantity: 3, AddedAt: now},
						Product: services.Product{
							ID:             "prod-1",
							SKU:            "AMOX-500",
							Name:           "Amoxicillin 500mg",
							WholesalePrice: 450,
							StockQuantity:  120,
							IsActive:       true,
							IsVisible:      true,
						},
					},
				},
				Warnings: []services.CartWarning{
					{
						Kind:         "quantity_reduced",
						ProductID:    "prod-2",
						ProductName:  "Ibuprofen 400mg",
						RequestedQty: 10,
						AvailableQty: 4,
					},
				},
				Subtotal: 1350,
			}, nil
		},
	}

	handler := NewCartHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/cart", handler.Routes)

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "cust-7"}))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp cartViewPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.ID != "cart-cust-7" {
		t.Fatalf("expected cart id cart-cust-7, got %q", resp.ID)
	}
	if resp.Subtotal != 1350 {
		t.Fatalf("expected subtotal 1350, got %d", resp.Subtotal)
	}
	if len(resp.Items) != 1 || resp.Items[0].LineTotal != 1350 {
		t.Fatalf("expected one item with line total 1350, got %#v", resp.Items)
	}
	if len(resp.Warnings) != 1 || resp.Warnings[0].Kind != "quantity_reduced" {
		t.Fatalf("expected quantity_reduced warning, got %#v", resp.Warnings)
	}
}

func TestCartHandlersGetCartServiceUnavailable(t *testing.T) {
	handler := NewCartHandlers(nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "cust-1"}))
	rr := httptest.NewRecorder()
	handler.getCart(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}

func TestCartHandlersGetCartUnauthenticated(t *testing.T) {
	handler := NewCartHandlers(nil, &stubCartService{})
	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	rr := httptest.NewRecorder()
	handler.getCart(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestCartHandlersAddItemSuccess(t *testing.T) {
	service := &stubCartService{
		addItemFunc: func(ctx context.Context, cmd services.AddCartItemCommand) (services.CartView, error) {
			if cmd.CustomerID != "cust-9" {
				t.Fatalf("unexpected customer id %q", cmd.CustomerID)
			}
			if cmd.ProductID != "prod-4" || cmd.Quantity != 5 {
				t.Fatalf("unexpected command %#v", cmd)
			}
			return services.CartView{Cart: services.Cart{ID: "cart-cust-9"}, Subtotal: 2250}, nil
		},
	}

	handler := NewCartHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/cart", handler.Routes)

	req := httptest.NewRequest(http.MethodPost, "/cart/items", strings.NewReader(`{"product_id":"prod-4","quantity":5}`))
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "cust-9"}))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestCartHandlersAddItemInvalidJSON(t *testing.T) {
	handler := NewCartHandlers(nil, &stubCartService{})
	router := chi.NewRouter()
	router.Route("/cart", handler.Routes)

	req := httptest.NewRequest(http.MethodPost, "/cart/items", strings.NewReader(`{"product_id":`))
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "cust-1"}))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestCartHandlersAddItemProductUnavailable(t *testing.T) {
	service := &stubCartService{
		addItemFunc: func(ctx context.Context, cmd services.AddCartItemCommand) (services.CartView, error) {
			return services.CartView{}, services.ErrCartProductUnavailable
		},
	}
	handler := NewCartHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/cart", handler.Routes)

	req := httptest.NewRequest(http.MethodPost, "/cart/items", strings.NewReader(`{"product_id":"prod-4","quantity":1}`))
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "cust-1"}))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
}

func TestCartHandlersUpdateItemNotFound(t *testing.T) {
	service := &stubCartService{
		updateItemFunc: func(ctx context.Context, cmd services.UpdateCartItemCommand) (services.CartView, error) {
			if cmd.ItemID != "item-9" {
				t.Fatalf("unexpected item id %q", cmd.ItemID)
			}
			return services.CartView{}, services.ErrCartItemNotFound
		},
	}
	handler := NewCartHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/cart", handler.Routes)

	req := httptest.NewRequest(http.MethodPatch, "/cart/items/item-9", strings.NewReader(`{"quantity":2}`))
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "cust-1"}))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestCartHandlersRemoveItemSuccess(t *testing.T) {
	service := &stubCartService{
		removeItemFunc: func(ctx context.Context, cmd services.RemoveCartItemCommand) (services.CartView, error) {
			if cmd.ItemID != "item-3" || cmd.CustomerID != "cust-2" {
				t.Fatalf("unexpected command %#v", cmd)
			}
			return services.CartView{Cart: services.Cart{ID: "cart-cust-2"}}, nil
		},
	}
	handler := NewCartHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/cart", handler.Routes)

	req := httptest.NewRequest(http.MethodDelete, "/cart/items/item-3", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "cust-2"}))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
}

func TestCartHandlersClearCart(t *testing.T) {
	cleared := false
	service := &stubCartService{
		clearCartFunc: func(ctx context.Context, customerID string) error {
			cleared = true
			if customerID != "cust-5" {
				t.Fatalf("unexpected customer id %q", customerID)
			}
			return nil
		},
	}
	handler := NewCartHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/cart", handler.Routes)

	req := httptest.NewRequest(http.MethodDelete, "/cart", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "cust-5"}))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
	if !cleared {
		t.Fatalf("expected clear to be invoked")
	}
}
