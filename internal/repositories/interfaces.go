package repositories

import (
	"context"
	"time"

	domain "github.com/pharmadirect/api/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// ProductRepository reads catalog projections consumed by the order engine.
// Stock mutation is owned by StockRepository; products are never written here.
type ProductRepository interface {
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	FindByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error)
}

// StockRepository owns the stock ledger: the authoritative quantity on the
// product document plus its append-only movement log. Every mutation runs in
// a Firestore transaction so concurrent writers are serialised.
type StockRepository interface {
	// Adjust applies a manual quantity change and appends a movement row.
	// Fails with a StockError of kind StockErrorWouldGoNegative when the
	// resulting quantity would drop below zero.
	Adjust(ctx context.Context, req StockAdjustRequest) (domain.StockMovement, error)
	// ReverseOrderDeductions appends a compensating +quantity movement for
	// every sale deduction referencing orderID that has not been reversed
	// yet, restoring stock. Reversing twice is a no-op.
	ReverseOrderDeductions(ctx context.Context, req StockReverseRequest) ([]domain.StockMovement, error)
	// ListMovements returns ledger rows for a product, newest first.
	ListMovements(ctx context.Context, productID string, pager domain.Pagination) (domain.CursorPage[domain.StockMovement], error)
	// SumMovements replays the full ledger for a product. Reconciliation and
	// tests only; never used on the hot path.
	SumMovements(ctx context.Context, productID string) (int, error)
}

// StockAdjustRequest carries a manual admin adjustment for the ledger.
type StockAdjustRequest struct {
	ProductID      string
	QuantityChange int
	Reason         domain.MovementReason
	Notes          string
	Actor          string
	Now            time.Time
}

// StockReverseRequest identifies the order whose deductions should be restored.
type StockReverseRequest struct {
	OrderID string
	Actor   string
	Notes   string
	Now     time.Time
}

// CartRepository owns per-customer cart persistence. The cart is a single
// document keyed by customer ID with its items embedded.
type CartRepository interface {
	GetCart(ctx context.Context, customerID string) (domain.Cart, error)
	SaveItems(ctx context.Context, customerID string, items []domain.CartItem) (domain.Cart, error)
	Clear(ctx context.Context, customerID string) error
}

// OrderRepository persists orders, their item snapshots, and the append-only
// status history, and owns the two multi-entity transactions of the engine:
// placement and status transition.
type OrderRepository interface {
	// Place atomically validates and deducts stock for every line, writes the
	// sale movements, creates the order with its item snapshots and initial
	// history row, and clears the customer's cart. Nothing is written when
	// any line cannot be satisfied; the failure carries per-line stock
	// issues.
	Place(ctx context.Context, req PlaceOrderRequest) (PlaceOrderResult, error)
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	// Transition atomically re-validates the transition against the stored
	// order, updates status fields, and appends the history row. When
	// RestoreStock is set it also reverses the order's sale movements inside
	// the same transaction.
	Transition(ctx context.Context, req OrderTransitionRequest) (domain.Order, error)
	ListHistory(ctx context.Context, orderID string) ([]domain.OrderStatusHistory, error)
	SetInvoiceURL(ctx context.Context, orderID string, invoiceURL string, now time.Time) (domain.Order, error)
}

// PlaceOrderRequest carries the prepared order shell plus the reconciled lines
// to deduct. Item snapshots and the subtotal are taken inside the transaction
// from the live product documents.
type PlaceOrderRequest struct {
	Order domain.Order
	Lines []PlacementLine
	Actor string
	Now   time.Time
}

// PlacementLine is one reconciled cart line to be deducted and snapshotted.
type PlacementLine struct {
	CartItemID string
	ProductID  string
	Quantity   int
}

// PlaceOrderResult returns the committed order and the ledger rows it wrote.
type PlaceOrderResult struct {
	Order     domain.Order
	Movements []domain.StockMovement
}

// OrderTransitionRequest describes one state-machine step to apply.
type OrderTransitionRequest struct {
	OrderID      string
	Field        domain.HistoryField
	Target       string
	Notes        string
	Actor        string
	Reason       string
	RestoreStock bool
	Now          time.Time
	// Validate re-checks the transition against the freshly read order inside
	// the transaction; it returns the mutated order to persist.
	Validate func(order domain.Order) (domain.Order, error)
}

// OrderListFilter narrows order listings for customer and admin surfaces.
type OrderListFilter struct {
	CustomerID string
	Status     []string
	DateRange  domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}

// CustomerRepository stores wholesale account projections.
type CustomerRepository interface {
	FindByID(ctx context.Context, customerID string) (domain.Customer, error)
}

// AddressRepository stores delivery addresses per customer.
type AddressRepository interface {
	FindByID(ctx context.Context, customerID string, addressID string) (domain.Address, error)
	ListByCustomer(ctx context.Context, customerID string) ([]domain.Address, error)
}

// AuditLogRepository persists immutable audit trail entries.
type AuditLogRepository interface {
	Append(ctx context.Context, entry domain.AuditLogEntry) error
	List(ctx context.Context, filter AuditLogFilter) (domain.CursorPage[domain.AuditLogEntry], error)
}

// AuditLogFilter narrows audit log listings.
type AuditLogFilter struct {
	TargetRef  string
	Actor      string
	ActorType  string
	Action     string
	DateRange  domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}

// CounterRepository provides transaction-safe sequence numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
	Configure(ctx context.Context, counterID string, cfg CounterConfig) error
}

// CounterConfig customises increment behaviour and bounds for a counter.
type CounterConfig struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
