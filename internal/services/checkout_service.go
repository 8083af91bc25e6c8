package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/pharmadirect/api/internal/domain"
	"github.com/pharmadirect/api/internal/platform/textutil"
	"github.com/pharmadirect/api/internal/repositories"
)

var (
	// ErrCheckoutInvalidInput indicates the caller supplied invalid input parameters.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrCheckoutEmptyCart indicates placement was attempted with an empty cart.
	ErrCheckoutEmptyCart = errors.New("checkout: empty cart")
	// ErrCheckoutNotVerified indicates the customer's account is not approved for ordering.
	ErrCheckoutNotVerified = errors.New("checkout: customer not verified")
	// ErrCheckoutAddressRequired indicates the delivery method needs an address and none resolves.
	ErrCheckoutAddressRequired = errors.New("checkout: delivery address required")
	// ErrCheckoutConflict indicates a concurrent modification prevented completing checkout.
	ErrCheckoutConflict = errors.New("checkout: conflict")
	// ErrCheckoutUnavailable indicates checkout dependencies are currently unavailable.
	ErrCheckoutUnavailable = errors.New("checkout: unavailable")
)

const maxOrderNotesLength = 2000

// CheckoutServiceDeps wires the dependencies required by the checkout service.
type CheckoutServiceDeps struct {
	Carts       CartService
	Customers   repositories.CustomerRepository
	Orders      repositories.OrderRepository
	Pricing     PricingEngine
	Counter     CounterService
	Events      OrderEventPublisher
	InvoiceJobs InvoiceJobDispatcher
	Clock       func() time.Time
	Logger      func(context.Context, string, map[string]any)
	IDGenerator func() string
}

type checkoutService struct {
	carts       CartService
	customers   repositories.CustomerRepository
	orders      repositories.OrderRepository
	pricing     PricingEngine
	counter     CounterService
	events      OrderEventPublisher
	invoiceJobs InvoiceJobDispatcher
	now         func() time.Time
	logger      func(context.Context, string, map[string]any)
	newID       func() string
}

// NewCheckoutService constructs a CheckoutService enforcing dependency validation.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Carts == nil {
		return nil, errors.New("checkout service: cart service is required")
	}
	if deps.Customers == nil {
		return nil, errors.New("checkout service: customer repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("checkout service: order repository is required")
	}
	if deps.Pricing == nil {
		return nil, errors.New("checkout service: pricing engine is required")
	}
	if deps.Counter == nil {
		return nil, errors.New("checkout service: counter service is required")
	}
	if deps.Clock == nil {
		return nil, errors.New("checkout service: clock is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	return &checkoutService{
		carts:       deps.Carts,
		customers:   deps.Customers,
		orders:      deps.Orders,
		pricing:     deps.Pricing,
		counter:     deps.Counter,
		events:      deps.Events,
		invoiceJobs: deps.InvoiceJobs,
		now:         func() time.Time { return deps.Clock().UTC() },
		logger:      logger,
		newID:       idGen,
	}, nil
}

// PlaceOrder runs the placement pipeline. Everything up to and including the
// order write is atomic: when any reconciled line loses the stock race the
// whole placement aborts with per-line issues and no state changes. The
// post-commit collaborators are fire-and-forget.
func (s *checkoutService) PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (PlacedOrder, error) {
	if s == nil || s.orders == nil {
		return PlacedOrder{}, ErrCheckoutUnavailable
	}
	customerID := strings.TrimSpace(cmd.CustomerID)
	if customerID == "" {
		return PlacedOrder{}, ErrCheckoutInvalidInput
	}
	if !domain.ValidDeliveryMethod(cmd.DeliveryMethod) || !domain.ValidPaymentMethod(cmd.PaymentMethod) {
		return PlacedOrder{}, ErrCheckoutInvalidInput
	}

	customer, err := s.customers.FindByID(ctx, customerID)
	if err != nil {
		if isRepoNotFound(err) {
			return PlacedOrder{}, ErrCheckoutInvalidInput
		}
		return PlacedOrder{}, ErrCheckoutUnavailable
	}
	if !customer.IsActive || customer.Verification != domain.VerificationApproved {
		return PlacedOrder{}, ErrCheckoutNotVerified
	}

	recon, err := s.carts.Reconcile(ctx, customerID)
	if err != nil {
		return PlacedOrder{}, s.translateCartError(err)
	}
	if len(recon.Items) == 0 && len(recon.Warnings) == 0 {
		return PlacedOrder{}, ErrCheckoutEmptyCart
	}
	// Dropped or clamped items block placement: the customer must accept the
	// reconciled cart before quantities are deducted.
	if len(recon.Warnings) > 0 {
		return PlacedOrder{}, &StockConflictError{Issues: issuesFromWarnings(recon.Warnings)}
	}

	quote, err := s.pricing.QuoteDelivery(ctx, DeliveryQuoteCommand{
		CustomerID: customerID,
		Method:     cmd.DeliveryMethod,
		AddressID:  cmd.DeliveryAddressID,
	})
	if err != nil {
		if errors.Is(err, ErrPricingAddressRequired) {
			return PlacedOrder{}, ErrCheckoutAddressRequired
		}
		if errors.Is(err, ErrPricingInvalidInput) {
			return PlacedOrder{}, ErrCheckoutInvalidInput
		}
		return PlacedOrder{}, ErrCheckoutUnavailable
	}

	now := s.now()
	orderNumber, err := s.counter.NextOrderNumber(ctx, now)
	if err != nil {
		return PlacedOrder{}, ErrCheckoutUnavailable
	}

	order := domain.Order{
		ID:                    s.newID(),
		OrderNumber:           orderNumber,
		CustomerID:            customerID,
		DeliveryMethod:        cmd.DeliveryMethod,
		PaymentMethod:         cmd.PaymentMethod,
		DeliveryFee:           quote.Fee,
		DeliveryAddressID:     cmd.DeliveryAddressID,
		DeliveryDistanceKM:    quote.DistanceKM,
		FeePendingConfirm:     quote.FeePendingConfirm || quote.ContactForFee,
		PreferredDeliveryDate: cmd.PreferredDeliveryDate,
		OrderNotes:            textutil.SanitizePlain(cmd.OrderNotes, maxOrderNotesLength),
	}

	lines := make([]repositories.PlacementLine, 0, len(recon.Items))
	for _, item := range recon.Items {
		lines = append(lines, repositories.PlacementLine{
			CartItemID: item.Item.ID,
			ProductID:  item.Item.ProductID,
			Quantity:   item.Item.Quantity,
		})
	}

	result, err := s.orders.Place(ctx, repositories.PlaceOrderRequest{
		Order: order,
		Lines: lines,
		Actor: customerID,
		Now:   now,
	})
	if err != nil {
		return PlacedOrder{}, s.translatePlaceError(err)
	}

	s.logger(ctx, "checkout.order_placed", map[string]any{
		"order_id":     result.Order.ID,
		"order_number": result.Order.OrderNumber,
		"customer_id":  customerID,
		"total":        result.Order.Total,
		"lines":        len(result.Order.Items),
	})
	s.dispatchPostCommit(ctx, result.Order)

	return PlacedOrder{Order: result.Order}, nil
}

// dispatchPostCommit triggers downstream collaborators after a successful
// placement. Failures are logged and never fail the placement.
func (s *checkoutService) dispatchPostCommit(ctx context.Context, order Order) {
	if s.events != nil {
		if err := s.events.PublishOrderCreated(ctx, order); err != nil {
			s.logger(ctx, "checkout.event_publish_failed", map[string]any{
				"order_id": order.ID,
				"error":    err.Error(),
			})
		}
	}
	if s.invoiceJobs != nil {
		if err := s.invoiceJobs.EnqueueInvoiceRender(ctx, order); err != nil {
			s.logger(ctx, "checkout.invoice_job_failed", map[string]any{
				"order_id": order.ID,
				"error":    err.Error(),
			})
		}
	}
}

func issuesFromWarnings(warnings []CartWarning) []StockIssue {
	issues := make([]StockIssue, 0, len(warnings))
	for _, warning := range warnings {
		issues = append(issues, domain.StockIssue{
			ProductID:   warning.ProductID,
			ProductName: warning.ProductName,
			Requested:   warning.RequestedQty,
			Available:   warning.AvailableQty,
		})
	}
	return issues
}

func (s *checkoutService) translateCartError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrCartInvalidInput) {
		return ErrCheckoutInvalidInput
	}
	return ErrCheckoutUnavailable
}

func (s *checkoutService) translatePlaceError(err error) error {
	if err == nil {
		return nil
	}
	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) && stockErr.Code == repositories.StockErrorInsufficient {
		return &StockConflictError{Issues: stockErr.Issues}
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		if repoErr.IsConflict() {
			return ErrCheckoutConflict
		}
		return ErrCheckoutUnavailable
	}
	return ErrCheckoutUnavailable
}
