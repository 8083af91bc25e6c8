package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/pharmadirect/api/internal/domain"
	"github.com/pharmadirect/api/internal/repositories"
)

var (
	errCartRepositoryRequired = errors.New("cart service: repository is required")
	errCartProductsRequired   = errors.New("cart service: product repository is required")
	errCartClockRequired      = errors.New("cart service: clock is required")
)

const maxCartItemQuantity = 9999

// ErrCartInvalidInput indicates the caller supplied invalid input.
var ErrCartInvalidInput = errors.New("cart service: invalid input")

// ErrCartUnavailable indicates the cart service cannot fulfil the request due to backend issues.
var ErrCartUnavailable = errors.New("cart service: unavailable")

// ErrCartItemNotFound indicates the referenced cart line does not exist.
var ErrCartItemNotFound = errors.New("cart service: item not found")

// ErrCartProductUnavailable indicates the product cannot be added to a cart.
var ErrCartProductUnavailable = errors.New("cart service: product unavailable")

// ErrCartConflict indicates the cart could not be updated due to concurrent modifications.
var ErrCartConflict = errors.New("cart service: conflict")

// CartServiceDeps wires repositories for cart operations.
type CartServiceDeps struct {
	Repository  repositories.CartRepository
	Products    repositories.ProductRepository
	Clock       func() time.Time
	Logger      func(context.Context, string, map[string]any)
	IDGenerator func() string
}

type cartService struct {
	repo     repositories.CartRepository
	products repositories.ProductRepository
	newID    func() string
	now      func() time.Time
	logger   func(context.Context, string, map[string]any)
}

// NewCartService constructs a CartService enforcing dependency validation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Repository == nil {
		return nil, errCartRepositoryRequired
	}
	if deps.Products == nil {
		return nil, errCartProductsRequired
	}
	if deps.Clock == nil {
		return nil, errCartClockRequired
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	return &cartService{
		repo:     deps.Repository,
		products: deps.Products,
		newID:    idGen,
		now:      func() time.Time { return deps.Clock().UTC() },
		logger:   logger,
	}, nil
}

// GetCart loads the cart and reconciles it against live product state for
// display. The stored cart is never mutated by a read.
func (s *cartService) GetCart(ctx context.Context, customerID string) (CartView, error) {
	if s == nil || s.repo == nil {
		return CartView{}, ErrCartUnavailable
	}
	uid := strings.TrimSpace(customerID)
	if uid == "" {
		return CartView{}, ErrCartInvalidInput
	}

	cart, err := s.repo.GetCart(ctx, uid)
	if err != nil {
		return CartView{}, s.translateRepoError(err)
	}
	return s.buildView(ctx, cart)
}

// AddItem adds a product to the cart, merging with an existing line for the
// same product.
func (s *cartService) AddItem(ctx context.Context, cmd AddCartItemCommand) (CartView, error) {
	if s == nil || s.repo == nil {
		return CartView{}, ErrCartUnavailable
	}
	uid := strings.TrimSpace(cmd.CustomerID)
	productID := strings.TrimSpace(cmd.ProductID)
	if uid == "" || productID == "" {
		return CartView{}, ErrCartInvalidInput
	}
	if cmd.Quantity <= 0 || cmd.Quantity > maxCartItemQuantity {
		return CartView{}, ErrCartInvalidInput
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		if isRepoNotFound(err) {
			return CartView{}, ErrCartProductUnavailable
		}
		return CartView{}, s.translateRepoError(err)
	}
	if !product.Available() {
		return CartView{}, ErrCartProductUnavailable
	}

	cart, err := s.repo.GetCart(ctx, uid)
	if err != nil {
		return CartView{}, s.translateRepoError(err)
	}

	now := s.now()
	merged := false
	items := make([]domain.CartItem, 0, len(cart.Items)+1)
	for _, item := range cart.Items {
		if item.ProductID == productID {
			item.Quantity += cmd.Quantity
			if item.Quantity > maxCartItemQuantity {
				item.Quantity = maxCartItemQuantity
			}
			updated := now
			item.UpdatedAt = &updated
			merged = true
		}
		items = append(items, item)
	}
	if !merged {
		items = append(items, domain.CartItem{
			ID:        s.newID(),
			ProductID: productID,
			Quantity:  cmd.Quantity,
			AddedAt:   now,
		})
	}

	saved, err := s.repo.SaveItems(ctx, uid, items)
	if err != nil {
		return CartView{}, s.translateRepoError(err)
	}
	s.logger(ctx, "cart.item_added", map[string]any{"customer_id": uid, "product_id": productID, "quantity": cmd.Quantity})
	return s.buildView(ctx, saved)
}

// UpdateItem replaces the quantity of an existing cart line.
func (s *cartService) UpdateItem(ctx context.Context, cmd UpdateCartItemCommand) (CartView, error) {
	if s == nil || s.repo == nil {
		return CartView{}, ErrCartUnavailable
	}
	uid := strings.TrimSpace(cmd.CustomerID)
	itemID := strings.TrimSpace(cmd.ItemID)
	if uid == "" || itemID == "" {
		return CartView{}, ErrCartInvalidInput
	}
	if cmd.Quantity <= 0 || cmd.Quantity > maxCartItemQuantity {
		return CartView{}, ErrCartInvalidInput
	}

	cart, err := s.repo.GetCart(ctx, uid)
	if err != nil {
		return CartView{}, s.translateRepoError(err)
	}

	now := s.now()
	found := false
	items := make([]domain.CartItem, 0, len(cart.Items))
	for _, item := range cart.Items {
		if item.ID == itemID {
			item.Quantity = cmd.Quantity
			updated := now
			item.UpdatedAt = &updated
			found = true
		}
		items = append(items, item)
	}
	if !found {
		return CartView{}, ErrCartItemNotFound
	}

	saved, err := s.repo.SaveItems(ctx, uid, items)
	if err != nil {
		return CartView{}, s.translateRepoError(err)
	}
	return s.buildView(ctx, saved)
}

// RemoveItem deletes a cart line.
func (s *cartService) RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (CartView, error) {
	if s == nil || s.repo == nil {
		return CartView{}, ErrCartUnavailable
	}
	uid := strings.TrimSpace(cmd.CustomerID)
	itemID := strings.TrimSpace(cmd.ItemID)
	if uid == "" || itemID == "" {
		return CartView{}, ErrCartInvalidInput
	}

	cart, err := s.repo.GetCart(ctx, uid)
	if err != nil {
		return CartView{}, s.translateRepoError(err)
	}

	found := false
	items := make([]domain.CartItem, 0, len(cart.Items))
	for _, item := range cart.Items {
		if item.ID == itemID {
			found = true
			continue
		}
		items = append(items, item)
	}
	if !found {
		return CartView{}, ErrCartItemNotFound
	}

	saved, err := s.repo.SaveItems(ctx, uid, items)
	if err != nil {
		return CartView{}, s.translateRepoError(err)
	}
	return s.buildView(ctx, saved)
}

// ClearCart removes every line from the customer's cart.
func (s *cartService) ClearCart(ctx context.Context, customerID string) error {
	if s == nil || s.repo == nil {
		return ErrCartUnavailable
	}
	uid := strings.TrimSpace(customerID)
	if uid == "" {
		return ErrCartInvalidInput
	}
	if err := s.repo.Clear(ctx, uid); err != nil {
		return s.translateRepoError(err)
	}
	return nil
}

// Reconcile validates the stored cart against live product state without
// mutating it. Items for vanished or unavailable products are dropped with a
// warning, quantities above current stock are clamped with a warning, and
// surviving items keep their cart order.
func (s *cartService) Reconcile(ctx context.Context, customerID string) (Reconciliation, error) {
	if s == nil || s.repo == nil {
		return Reconciliation{}, ErrCartUnavailable
	}
	uid := strings.TrimSpace(customerID)
	if uid == "" {
		return Reconciliation{}, ErrCartInvalidInput
	}

	cart, err := s.repo.GetCart(ctx, uid)
	if err != nil {
		return Reconciliation{}, s.translateRepoError(err)
	}
	return s.reconcileItems(ctx, cart.Items)
}

func (s *cartService) buildView(ctx context.Context, cart Cart) (CartView, error) {
	result, err := s.reconcileItems(ctx, cart.Items)
	if err != nil {
		return CartView{}, err
	}
	return CartView{
		Cart:     cart,
		Items:    result.Items,
		Warnings: result.Warnings,
		Subtotal: result.Subtotal,
	}, nil
}

func (s *cartService) reconcileItems(ctx context.Context, items []domain.CartItem) (Reconciliation, error) {
	if len(items) == 0 {
		return Reconciliation{}, nil
	}

	productIDs := make([]string, 0, len(items))
	for _, item := range items {
		productIDs = append(productIDs, item.ProductID)
	}
	products, err := s.products.FindByIDs(ctx, productIDs)
	if err != nil {
		return Reconciliation{}, s.translateRepoError(err)
	}

	result := Reconciliation{}
	for _, item := range items {
		product, ok := products[item.ProductID]
		if !ok || !product.Available() {
			result.Warnings = append(result.Warnings, domain.CartWarning{
				Kind:         domain.CartWarningProductUnavailable,
				ProductID:    item.ProductID,
				ProductName:  product.Name,
				RequestedQty: item.Quantity,
			})
			continue
		}
		if product.StockQuantity <= 0 {
			result.Warnings = append(result.Warnings, domain.CartWarning{
				Kind:         domain.CartWarningOutOfStock,
				ProductID:    item.ProductID,
				ProductName:  product.Name,
				RequestedQty: item.Quantity,
			})
			continue
		}
		if item.Quantity > product.StockQuantity {
			result.Warnings = append(result.Warnings, domain.CartWarning{
				Kind:         domain.CartWarningQuantityReduced,
				ProductID:    item.ProductID,
				ProductName:  product.Name,
				RequestedQty: item.Quantity,
				AvailableQty: product.StockQuantity,
			})
			item.Quantity = product.StockQuantity
		}
		result.Items = append(result.Items, domain.ReconciledItem{Item: item, Product: product})
		result.Subtotal += product.WholesalePrice * int64(item.Quantity)
	}
	return result, nil
}

func (s *cartService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrCartItemNotFound
		case repoErr.IsConflict():
			return ErrCartConflict
		case repoErr.IsUnavailable():
			return ErrCartUnavailable
		}
	}
	return ErrCartUnavailable
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr.IsNotFound()
	}
	return false
}
