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
	// ErrReorderInvalidInput indicates the caller supplied invalid input.
	ErrReorderInvalidInput = errors.New("reorder service: invalid input")
	// ErrReorderOrderNotFound indicates the source order does not exist.
	ErrReorderOrderNotFound = errors.New("reorder service: order not found")
	// ErrReorderForbidden indicates the order belongs to another customer.
	ErrReorderForbidden = errors.New("reorder service: order belongs to another customer")
	// ErrReorderUnavailable indicates the backend cannot be reached.
	ErrReorderUnavailable = errors.New("reorder service: unavailable")
)

// ReorderServiceDeps wires dependencies for re-adding past orders.
type ReorderServiceDeps struct {
	Orders      repositories.OrderRepository
	Carts       repositories.CartRepository
	Products    repositories.ProductRepository
	Clock       func() time.Time
	Logger      func(context.Context, string, map[string]any)
	IDGenerator func() string
}

type reorderService struct {
	orders   repositories.OrderRepository
	carts    repositories.CartRepository
	products repositories.ProductRepository
	now      func() time.Time
	logger   func(context.Context, string, map[string]any)
	newID    func() string
}

// NewReorderService constructs a ReorderService enforcing dependency validation.
func NewReorderService(deps ReorderServiceDeps) (ReorderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("reorder service: order repository is required")
	}
	if deps.Carts == nil {
		return nil, errors.New("reorder service: cart repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("reorder service: product repository is required")
	}
	if deps.Clock == nil {
		return nil, errors.New("reorder service: clock is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	return &reorderService{
		orders:   deps.Orders,
		carts:    deps.Carts,
		products: deps.Products,
		now:      func() time.Time { return deps.Clock().UTC() },
		logger:   logger,
		newID:    idGen,
	}, nil
}

// Reorder merges the past order's lines into the live cart, clamping to
// current stock. Unavailable products produce warnings, never errors; a
// reorder where nothing can be added leaves the cart untouched.
func (s *reorderService) Reorder(ctx context.Context, cmd ReorderCommand) (ReorderResult, error) {
	if s == nil || s.orders == nil {
		return ReorderResult{}, ErrReorderUnavailable
	}
	customerID := strings.TrimSpace(cmd.CustomerID)
	orderID := strings.TrimSpace(cmd.OrderID)
	if customerID == "" || orderID == "" {
		return ReorderResult{}, ErrReorderInvalidInput
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if isRepoNotFound(err) {
			return ReorderResult{}, ErrReorderOrderNotFound
		}
		return ReorderResult{}, ErrReorderUnavailable
	}
	if order.CustomerID != customerID {
		return ReorderResult{}, ErrReorderForbidden
	}

	productIDs := make([]string, 0, len(order.Items))
	for _, item := range order.Items {
		productIDs = append(productIDs, item.ProductID)
	}
	products, err := s.products.FindByIDs(ctx, productIDs)
	if err != nil {
		return ReorderResult{}, ErrReorderUnavailable
	}

	cart, err := s.carts.GetCart(ctx, customerID)
	if err != nil {
		return ReorderResult{}, ErrReorderUnavailable
	}

	now := s.now()
	items := append([]domain.CartItem(nil), cart.Items...)
	lineByProduct := make(map[string]int, len(items))
	for i, item := range items {
		lineByProduct[item.ProductID] = i
	}

	result := ReorderResult{Cart: cart}
	for _, orderItem := range order.Items {
		product, ok := products[orderItem.ProductID]
		if !ok || !product.Available() {
			result.Warnings = append(result.Warnings, domain.ReorderWarning{
				Kind:             domain.ReorderWarningUnavailable,
				ProductID:        orderItem.ProductID,
				ProductName:      orderItem.ProductName,
				OriginalQuantity: orderItem.Quantity,
			})
			continue
		}
		if product.StockQuantity <= 0 {
			result.Warnings = append(result.Warnings, domain.ReorderWarning{
				Kind:             domain.ReorderWarningOutOfStock,
				ProductID:        orderItem.ProductID,
				ProductName:      product.Name,
				OriginalQuantity: orderItem.Quantity,
			})
			continue
		}

		existing := 0
		if idx, ok := lineByProduct[orderItem.ProductID]; ok {
			existing = items[idx].Quantity
		}
		addable := product.StockQuantity - existing
		if addable <= 0 {
			result.Warnings = append(result.Warnings, domain.ReorderWarning{
				Kind:             domain.ReorderWarningOutOfStock,
				ProductID:        orderItem.ProductID,
				ProductName:      product.Name,
				OriginalQuantity: orderItem.Quantity,
			})
			continue
		}

		added := orderItem.Quantity
		if added > addable {
			added = addable
			result.Warnings = append(result.Warnings, domain.ReorderWarning{
				Kind:             domain.ReorderWarningQuantityReduced,
				ProductID:        orderItem.ProductID,
				ProductName:      product.Name,
				OriginalQuantity: orderItem.Quantity,
				AddedQuantity:    added,
			})
		}

		if idx, ok := lineByProduct[orderItem.ProductID]; ok {
			items[idx].Quantity += added
			updated := now
			items[idx].UpdatedAt = &updated
		} else {
			items = append(items, domain.CartItem{
				ID:        s.newID(),
				ProductID: orderItem.ProductID,
				Quantity:  added,
				AddedAt:   now,
			})
			lineByProduct[orderItem.ProductID] = len(items) - 1
		}
		result.ItemsAdded++
	}

	if result.ItemsAdded == 0 {
		return result, nil
	}

	saved, err := s.carts.SaveItems(ctx, customerID, items)
	if err != nil {
		return ReorderResult{}, ErrReorderUnavailable
	}
	result.Cart = saved

	s.logger(ctx, "reorder.completed", map[string]any{
		"customer_id": customerID,
		"order_id":    orderID,
		"items_added": result.ItemsAdded,
		"warnings":    len(result.Warnings),
	})
	return result, nil
}
