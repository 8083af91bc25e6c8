package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/pharmadirect/api/internal/domain"
)

type stubCartRepo struct {
	cart       domain.Cart
	getErr     error
	saveErr    error
	clearErr   error
	savedItems []domain.CartItem
	cleared    bool
}

func (s *stubCartRepo) GetCart(_ context.Context, customerID string) (domain.Cart, error) {
	if s.getErr != nil {
		return domain.Cart{}, s.getErr
	}
	cart := s.cart
	if cart.ID == "" {
		cart.ID = "cart-" + customerID
	}
	cart.CustomerID = customerID
	return cart, nil
}

func (s *stubCartRepo) SaveItems(_ context.Context, customerID string, items []domain.CartItem) (domain.Cart, error) {
	if s.saveErr != nil {
		return domain.Cart{}, s.saveErr
	}
	s.savedItems = append([]domain.CartItem(nil), items...)
	s.cart.Items = s.savedItems
	s.cart.CustomerID = customerID
	return s.cart, nil
}

func (s *stubCartRepo) Clear(_ context.Context, customerID string) error {
	s.cleared = true
	return s.clearErr
}

type stubProductRepo struct {
	products map[string]domain.Product
	findErr  error
}

func (s *stubProductRepo) FindByID(_ context.Context, productID string) (domain.Product, error) {
	if s.findErr != nil {
		return domain.Product{}, s.findErr
	}
	product, ok := s.products[productID]
	if !ok {
		return domain.Product{}, notFoundRepoError{}
	}
	return product, nil
}

func (s *stubProductRepo) FindByIDs(_ context.Context, productIDs []string) (map[string]domain.Product, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	out := make(map[string]domain.Product, len(productIDs))
	for _, id := range productIDs {
		if product, ok := s.products[id]; ok {
			out[id] = product
		}
	}
	return out, nil
}

type notFoundRepoError struct{}

func (notFoundRepoError) Error() string       { return "not found" }
func (notFoundRepoError) IsNotFound() bool    { return true }
func (notFoundRepoError) IsConflict() bool    { return false }
func (notFoundRepoError) IsUnavailable() bool { return false }

func activeProduct(id string, price int64, stock int) domain.Product {
	return domain.Product{
		ID:             id,
		SKU:            "SKU-" + id,
		Name:           "Product " + id,
		WholesalePrice: price,
		StockQuantity:  stock,
		IsActive:       true,
		IsVisible:      true,
	}
}

func newCartServiceForTest(t *testing.T, repo *stubCartRepo, products *stubProductRepo) CartService {
	t.Helper()
	svc, err := NewCartService(CartServiceDeps{
		Repository: repo,
		Products:   products,
		Clock:      func() time.Time { return time.Date(2025, 3, 4, 9, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("new cart service: %v", err)
	}
	return svc
}

func TestCartServiceAddItemNewLine(t *testing.T) {
	repo := &stubCartRepo{}
	products := &stubProductRepo{products: map[string]domain.Product{
		"prod-1": activeProduct("prod-1", 450, 100),
	}}
	svc := newCartServiceForTest(t, repo, products)

	view, err := svc.AddItem(context.Background(), AddCartItemCommand{
		CustomerID: "cust-1",
		ProductID:  "prod-1",
		Quantity:   3,
	})
	if err != nil {
		t.Fatalf("add item: %v", err)
	}
	if len(repo.savedItems) != 1 || repo.savedItems[0].Quantity != 3 {
		t.Fatalf("expected one saved line of 3, got %#v", repo.savedItems)
	}
	if repo.savedItems[0].ID == "" {
		t.Fatalf("expected generated item id")
	}
	if view.Subtotal != 1350 {
		t.Fatalf("expected subtotal 1350, got %d", view.Subtotal)
	}
}

func TestCartServiceAddItemMergesExistingLine(t *testing.T) {
	repo := &stubCartRepo{cart: domain.Cart{Items: []domain.CartItem{
		{ID: "item-1", ProductID: "prod-1", Quantity: 2},
	}}}
	products := &stubProductRepo{products: map[string]domain.Product{
		"prod-1": activeProduct("prod-1", 450, 100),
	}}
	svc := newCartServiceForTest(t, repo, products)

	_, err := svc.AddItem(context.Background(), AddCartItemCommand{
		CustomerID: "cust-1",
		ProductID:  "prod-1",
		Quantity:   3,
	})
	if err != nil {
		t.Fatalf("add item: %v", err)
	}
	if len(repo.savedItems) != 1 {
		t.Fatalf("expected merged single line, got %d", len(repo.savedItems))
	}
	if repo.savedItems[0].ID != "item-1" || repo.savedItems[0].Quantity != 5 {
		t.Fatalf("expected item-1 quantity 5, got %#v", repo.savedItems[0])
	}
	if repo.savedItems[0].UpdatedAt == nil {
		t.Fatalf("expected updated timestamp on merged line")
	}
}

func TestCartServiceAddItemUnavailableProduct(t *testing.T) {
	hidden := activeProduct("prod-2", 300, 50)
	hidden.IsVisible = false
	repo := &stubCartRepo{}
	products := &stubProductRepo{products: map[string]domain.Product{"prod-2": hidden}}
	svc := newCartServiceForTest(t, repo, products)

	_, err := svc.AddItem(context.Background(), AddCartItemCommand{
		CustomerID: "cust-1",
		ProductID:  "prod-2",
		Quantity:   1,
	})
	if !errors.Is(err, ErrCartProductUnavailable) {
		t.Fatalf("expected ErrCartProductUnavailable, got %v", err)
	}

	_, err = svc.AddItem(context.Background(), AddCartItemCommand{
		CustomerID: "cust-1",
		ProductID:  "prod-missing",
		Quantity:   1,
	})
	if !errors.Is(err, ErrCartProductUnavailable) {
		t.Fatalf("expected ErrCartProductUnavailable for missing product, got %v", err)
	}
}

func TestCartServiceAddItemRejectsInvalidQuantity(t *testing.T) {
	svc := newCartServiceForTest(t, &stubCartRepo{}, &stubProductRepo{})

	for _, quantity := range []int{0, -1, 10000} {
		_, err := svc.AddItem(context.Background(), AddCartItemCommand{
			CustomerID: "cust-1",
			ProductID:  "prod-1",
			Quantity:   quantity,
		})
		if !errors.Is(err, ErrCartInvalidInput) {
			t.Fatalf("quantity %d: expected ErrCartInvalidInput, got %v", quantity, err)
		}
	}
}

func TestCartServiceUpdateItemNotFound(t *testing.T) {
	repo := &stubCartRepo{cart: domain.Cart{Items: []domain.CartItem{
		{ID: "item-1", ProductID: "prod-1", Quantity: 2},
	}}}
	products := &stubProductRepo{products: map[string]domain.Product{
		"prod-1": activeProduct("prod-1", 450, 100),
	}}
	svc := newCartServiceForTest(t, repo, products)

	_, err := svc.UpdateItem(context.Background(), UpdateCartItemCommand{
		CustomerID: "cust-1",
		ItemID:     "item-9",
		Quantity:   1,
	})
	if !errors.Is(err, ErrCartItemNotFound) {
		t.Fatalf("expected ErrCartItemNotFound, got %v", err)
	}
}

func TestCartServiceRemoveItem(t *testing.T) {
	repo := &stubCartRepo{cart: domain.Cart{Items: []domain.CartItem{
		{ID: "item-1", ProductID: "prod-1", Quantity: 2},
		{ID: "item-2", ProductID: "prod-2", Quantity: 1},
	}}}
	products := &stubProductRepo{products: map[string]domain.Product{
		"prod-1": activeProduct("prod-1", 450, 100),
		"prod-2": activeProduct("prod-2", 300, 50),
	}}
	svc := newCartServiceForTest(t, repo, products)

	view, err := svc.RemoveItem(context.Background(), RemoveCartItemCommand{
		CustomerID: "cust-1",
		ItemID:     "item-1",
	})
	if err != nil {
		t.Fatalf("remove item: %v", err)
	}
	if len(repo.savedItems) != 1 || repo.savedItems[0].ID != "item-2" {
		t.Fatalf("expected only item-2 to survive, got %#v", repo.savedItems)
	}
	if view.Subtotal != 300 {
		t.Fatalf("expected subtotal 300, got %d", view.Subtotal)
	}
}

func TestCartServiceReconcileDropsClampsAndWarns(t *testing.T) {
	inactive := activeProduct("prod-3", 100, 10)
	inactive.IsActive = false

	repo := &stubCartRepo{cart: domain.Cart{Items: []domain.CartItem{
		{ID: "item-1", ProductID: "prod-1", Quantity: 2},  // fine
		{ID: "item-2", ProductID: "prod-2", Quantity: 10}, // clamped to 4
		{ID: "item-3", ProductID: "prod-3", Quantity: 1},  // inactive, dropped
		{ID: "item-4", ProductID: "prod-4", Quantity: 5},  // vanished, dropped
		{ID: "item-5", ProductID: "prod-5", Quantity: 2},  // zero stock, dropped
	}}}
	products := &stubProductRepo{products: map[string]domain.Product{
		"prod-1": activeProduct("prod-1", 50, 100),
		"prod-2": activeProduct("prod-2", 25, 4),
		"prod-3": inactive,
		"prod-5": activeProduct("prod-5", 80, 0),
	}}
	svc := newCartServiceForTest(t, repo, products)

	result, err := svc.Reconcile(context.Background(), "cust-1")
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	if len(result.Items) != 2 {
		t.Fatalf("expected 2 surviving items, got %d", len(result.Items))
	}
	if result.Items[0].Item.ID != "item-1" || result.Items[1].Item.ID != "item-2" {
		t.Fatalf("expected cart order preserved, got %#v", result.Items)
	}
	if result.Items[1].Item.Quantity != 4 {
		t.Fatalf("expected clamped quantity 4, got %d", result.Items[1].Item.Quantity)
	}
	// 2x50 + 4x25 = 200
	if result.Subtotal != 200 {
		t.Fatalf("expected subtotal 200, got %d", result.Subtotal)
	}

	if len(result.Warnings) != 4 {
		t.Fatalf("expected 4 warnings, got %#v", result.Warnings)
	}
	kinds := map[string]domain.CartWarningKind{}
	for _, warning := range result.Warnings {
		kinds[warning.ProductID] = warning.Kind
	}
	if kinds["prod-2"] != domain.CartWarningQuantityReduced {
		t.Fatalf("expected quantity_reduced for prod-2, got %q", kinds["prod-2"])
	}
	if kinds["prod-3"] != domain.CartWarningProductUnavailable {
		t.Fatalf("expected product_unavailable for prod-3, got %q", kinds["prod-3"])
	}
	if kinds["prod-4"] != domain.CartWarningProductUnavailable {
		t.Fatalf("expected product_unavailable for prod-4, got %q", kinds["prod-4"])
	}
	if kinds["prod-5"] != domain.CartWarningOutOfStock {
		t.Fatalf("expected out_of_stock for prod-5, got %q", kinds["prod-5"])
	}

	if len(repo.savedItems) != 0 {
		t.Fatalf("reconcile must not write the cart, saved %#v", repo.savedItems)
	}
}

func TestCartServiceReconcileEmptyCart(t *testing.T) {
	svc := newCartServiceForTest(t, &stubCartRepo{}, &stubProductRepo{})

	result, err := svc.Reconcile(context.Background(), "cust-1")
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(result.Items) != 0 || len(result.Warnings) != 0 || result.Subtotal != 0 {
		t.Fatalf("expected empty reconciliation, got %#v", result)
	}
}

func TestCartServiceClearCart(t *testing.T) {
	repo := &stubCartRepo{}
	svc := newCartServiceForTest(t, repo, &stubProductRepo{})

	if err := svc.ClearCart(context.Background(), "cust-1"); err != nil {
		t.Fatalf("clear cart: %v", err)
	}
	if !repo.cleared {
		t.Fatalf("expected repository clear call")
	}
}
