package services

import (
	"context"
	"time"

	domain "github.com/pharmadirect/api/internal/domain"
	"github.com/pharmadirect/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination         = domain.Pagination
	Product            = domain.Product
	Customer           = domain.Customer
	Address            = domain.Address
	Cart               = domain.Cart
	CartItem           = domain.CartItem
	CartWarning        = domain.CartWarning
	ReconciledItem     = domain.ReconciledItem
	StockIssue         = domain.StockIssue
	StockMovement      = domain.StockMovement
	MovementReason     = domain.MovementReason
	DeliveryMethod     = domain.DeliveryMethod
	DeliveryQuote      = domain.DeliveryQuote
	PaymentMethod      = domain.PaymentMethod
	PaymentStatus      = domain.PaymentStatus
	Order              = domain.Order
	OrderItem          = domain.OrderItem
	OrderStatus        = domain.OrderStatus
	OrderStatusHistory = domain.OrderStatusHistory
	ReorderWarning     = domain.ReorderWarning
	SystemHealthReport = domain.SystemHealthReport
	AuditLogEntry      = domain.AuditLogEntry
)

// CartService manages mutable cart state and read-only reconciliation against
// the live catalog.
type CartService interface {
	GetCart(ctx context.Context, customerID string) (CartView, error)
	AddItem(ctx context.Context, cmd AddCartItemCommand) (CartView, error)
	UpdateItem(ctx context.Context, cmd UpdateCartItemCommand) (CartView, error)
	RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (CartView, error)
	ClearCart(ctx context.Context, customerID string) error
	// Reconcile validates the stored cart against live product state without
	// mutating it: items for vanished or unavailable products are dropped,
	// quantities above stock are clamped, and each anomaly yields a warning
	// in cart order.
	Reconcile(ctx context.Context, customerID string) (Reconciliation, error)
}

// CartView is the cart enriched with reconciliation output for presentation.
type CartView struct {
	Cart     Cart
	Items    []ReconciledItem
	Warnings []CartWarning
	Subtotal int64
}

// Reconciliation is the outcome of validating a cart against live stock.
type Reconciliation struct {
	Items    []ReconciledItem
	Warnings []CartWarning
	Subtotal int64
}

// AddCartItemCommand adds a product to the customer's cart, merging with an
// existing line for the same product.
type AddCartItemCommand struct {
	CustomerID string
	ProductID  string
	Quantity   int
}

// UpdateCartItemCommand replaces the quantity of an existing cart line.
type UpdateCartItemCommand struct {
	CustomerID string
	ItemID     string
	Quantity   int
}

// RemoveCartItemCommand deletes a cart line.
type RemoveCartItemCommand struct {
	CustomerID string
	ItemID     string
}

// StockService exposes the stock ledger to admin surfaces.
type StockService interface {
	Adjust(ctx context.Context, cmd StockAdjustCommand) (StockMovement, error)
	ListMovements(ctx context.Context, productID string, pager Pagination) (domain.CursorPage[StockMovement], error)
	// CheckLedger replays the product's full movement log and compares the
	// sum against the stored quantity. A mismatch is reported, never patched.
	CheckLedger(ctx context.Context, productID string) (LedgerCheck, error)
}

// StockAdjustCommand applies a manual signed quantity change.
type StockAdjustCommand struct {
	ProductID      string
	QuantityChange int
	Reason         MovementReason
	Notes          string
	Actor          string
}

// LedgerCheck reports the ledger-sum invariant for one product.
type LedgerCheck struct {
	ProductID     string
	StockQuantity int
	LedgerSum     int
	Consistent    bool
	CheckedAt     time.Time
}

// PricingEngine computes delivery fees for a (method, address) pair.
type PricingEngine interface {
	QuoteDelivery(ctx context.Context, cmd DeliveryQuoteCommand) (DeliveryQuote, error)
}

// DeliveryQuoteCommand identifies the delivery option to price. AddressID is
// resolved against the customer's address book when the method needs one.
type DeliveryQuoteCommand struct {
	CustomerID string
	Method     DeliveryMethod
	AddressID  *string
}

// CheckoutService orchestrates order placement.
type CheckoutService interface {
	// PlaceOrder runs the placement pipeline: verification gate, cart
	// reconciliation, delivery quote, order number allocation, and the
	// atomic stock-deduct-and-create transaction. Post-commit collaborators
	// (events, invoice job) never fail the placement.
	PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (PlacedOrder, error)
}

// PlaceOrderCommand carries checkout inputs collected from the customer.
type PlaceOrderCommand struct {
	CustomerID            string
	DeliveryMethod        DeliveryMethod
	PaymentMethod         PaymentMethod
	DeliveryAddressID     *string
	PreferredDeliveryDate *time.Time
	OrderNotes            string
}

// PlacedOrder is the committed order plus reconciliation warnings the
// customer should see.
type PlacedOrder struct {
	Order    Order
	Warnings []CartWarning
}

// OrderService encapsulates order reads and the status/payment state machines.
type OrderService interface {
	GetOrder(ctx context.Context, orderID string) (Order, error)
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error)
	ListHistory(ctx context.Context, orderID string) ([]OrderStatusHistory, error)
	// Transition applies one order-status step. Cancellation requires a
	// reason and restores stock in the same transaction.
	Transition(ctx context.Context, cmd OrderTransitionCommand) (Order, error)
	// TransitionPayment applies one payment-status step.
	TransitionPayment(ctx context.Context, cmd PaymentTransitionCommand) (Order, error)
	// AttachInvoice stores the rendered invoice location on the order.
	AttachInvoice(ctx context.Context, cmd AttachInvoiceCommand) (Order, error)
}

// OrderListFilter narrows order listings for customer and admin surfaces.
type OrderListFilter = repositories.OrderListFilter

// OrderTransitionCommand applies one lifecycle step to an order.
type OrderTransitionCommand struct {
	OrderID string
	Target  OrderStatus
	Notes   string
	Actor   string
	// Reason is required when Target is cancelled.
	Reason string
}

// PaymentTransitionCommand applies one payment-status step to an order.
type PaymentTransitionCommand struct {
	OrderID string
	Target  PaymentStatus
	Notes   string
	Actor   string
}

// AttachInvoiceCommand records a rendered invoice location on an order.
type AttachInvoiceCommand struct {
	OrderID    string
	InvoiceURL string
	Actor      string
}

// InvoiceService promotes rendered invoice PDFs to their stable bucket
// location and issues short-lived download links.
type InvoiceService interface {
	// PromoteInvoice copies a rendered PDF to the per-order path and stores
	// the stable URL on the order.
	PromoteInvoice(ctx context.Context, cmd PromoteInvoiceCommand) (Order, error)
	// InvoiceDownloadURL signs a short-lived URL for the stored invoice.
	InvoiceDownloadURL(ctx context.Context, orderID string) (InvoiceDownload, error)
}

// ReorderService re-adds a past order's lines onto the live cart.
type ReorderService interface {
	// Reorder merges the order's items into the customer's cart, clamping to
	// current stock. It reports per-item warnings and never fails because
	// products became unavailable.
	Reorder(ctx context.Context, cmd ReorderCommand) (ReorderResult, error)
}

// ReorderCommand identifies the past order to re-add.
type ReorderCommand struct {
	CustomerID string
	OrderID    string
}

// ReorderResult reports what made it back into the cart.
type ReorderResult struct {
	Cart       Cart
	ItemsAdded int
	Warnings   []ReorderWarning
}

// CustomerService exposes account projections used by checkout and handlers.
type CustomerService interface {
	GetCustomer(ctx context.Context, customerID string) (Customer, error)
	ListAddresses(ctx context.Context, customerID string) ([]Address, error)
}

// CounterService issues formatted sequential order numbers.
type CounterService interface {
	NextOrderNumber(ctx context.Context, at time.Time) (string, error)
}

// OrderEventPublisher emits order lifecycle events to downstream consumers.
// Implementations must be safe to call post-commit; failures are logged by the
// caller and never propagated.
type OrderEventPublisher interface {
	PublishOrderCreated(ctx context.Context, order Order) error
	PublishOrderStatusChanged(ctx context.Context, order Order, previous string, field string) error
}

// InvoiceJobDispatcher schedules asynchronous invoice rendering.
type InvoiceJobDispatcher interface {
	EnqueueInvoiceRender(ctx context.Context, order Order) error
}

// SystemService aggregates utility endpoints (health checks, audit logs, counters).
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
	ListAuditLogs(ctx context.Context, filter AuditLogFilter) (domain.CursorPage[AuditLogEntry], error)
	NextCounterValue(ctx context.Context, cmd CounterCommand) (int64, error)
}

// AuditLogService centralizes immutable audit log persistence and retrieval.
type AuditLogService interface {
	Record(ctx context.Context, record AuditLogRecord)
	List(ctx context.Context, filter AuditLogFilter) (domain.CursorPage[AuditLogEntry], error)
}

// AuditLogFilter narrows audit log listings.
type AuditLogFilter struct {
	TargetRef  string
	Actor      string
	ActorType  string
	Action     string
	DateRange  domain.RangeQuery[time.Time]
	Pagination Pagination
}

// AuditLogRecord is the write model accepted by the audit log service.
type AuditLogRecord struct {
	Actor                 string
	ActorType             string
	Action                string
	TargetRef             string
	Severity              string
	RequestID             string
	OccurredAt            time.Time
	Metadata              map[string]any
	Diff                  map[string]AuditLogDiff
	SensitiveMetadataKeys []string
	SensitiveDiffKeys     []string
	IPAddress             string
	UserAgent             string
}

// AuditLogDiff captures before/after values for tracked fields.
type AuditLogDiff struct {
	Before any
	After  any
}

// CounterCommand requests the next value from a named counter.
type CounterCommand struct {
	CounterID string
	Step      int64
}
