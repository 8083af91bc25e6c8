package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// Product is the catalog projection consumed by the order engine. Stock is
// mutated exclusively through stock ledger operations, never by direct writes.
type Product struct {
	ID             string
	SKU            string
	Name           string
	Manufacturer   string
	WholesalePrice int64
	StockQuantity  int
	IsActive       bool
	IsVisible      bool
	RequiresRx     bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Available reports whether the product may appear in carts and new orders.
func (p Product) Available() bool {
	return p.IsActive && p.IsVisible
}

// VerificationStatus describes the customer document-verification outcome.
type VerificationStatus string

const (
	// VerificationPending indicates submitted documents await review.
	VerificationPending VerificationStatus = "pending"
	// VerificationApproved indicates the customer may place orders.
	VerificationApproved VerificationStatus = "approved"
	// VerificationRejected indicates the customer cannot place orders.
	VerificationRejected VerificationStatus = "rejected"
)

// Customer captures the wholesale account projection used by checkout.
type Customer struct {
	ID            string
	BusinessName  string
	Email         string
	Phone         string
	LicenseNumber string
	Verification  VerificationStatus
	Roles         []string
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Address represents a delivery address, optionally geocoded.
type Address struct {
	ID         string
	CustomerID string
	Label      string
	Recipient  string
	Line1      string
	Line2      *string
	City       string
	PostalCode string
	Phone      *string
	Latitude   *float64
	Longitude  *float64
	IsDefault  bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// HasCoordinates reports whether the address has been geocoded.
func (a Address) HasCoordinates() bool {
	return a.Latitude != nil && a.Longitude != nil
}

// Cart aggregates the mutable shopping cart state for a customer.
type Cart struct {
	ID         string
	CustomerID string
	Items      []CartItem
	UpdatedAt  time.Time
}

// CartItem stores a single product entry within a cart. It is a pointer to a
// product plus a cached quantity, never an owner of product state.
type CartItem struct {
	ID        string
	ProductID string
	Quantity  int
	AddedAt   time.Time
	UpdatedAt *time.Time
}

// CartWarningKind enumerates reconciliation warning categories.
type CartWarningKind string

const (
	// CartWarningProductUnavailable indicates the product is gone, inactive, or hidden.
	CartWarningProductUnavailable CartWarningKind = "product_unavailable"
	// CartWarningOutOfStock indicates the product has zero stock.
	CartWarningOutOfStock CartWarningKind = "out_of_stock"
	// CartWarningQuantityReduced indicates the quantity was clamped to available stock.
	CartWarningQuantityReduced CartWarningKind = "quantity_reduced"
)

// CartWarning reports a per-item reconciliation outcome, in cart order.
type CartWarning struct {
	Kind         CartWarningKind
	ProductID    string
	ProductName  string
	RequestedQty int
	AvailableQty int
}

// ReconciledItem pairs a surviving cart item with its live product snapshot.
type ReconciledItem struct {
	Item    CartItem
	Product Product
}

// StockIssue describes a line that cannot be fully satisfied at placement time.
type StockIssue struct {
	ProductID   string
	ProductName string
	Requested   int
	Available   int
}

// MovementReason enumerates causes recorded on stock ledger rows.
type MovementReason string

const (
	// MovementReasonPurchase records incoming supplier stock.
	MovementReasonPurchase MovementReason = "purchase"
	// MovementReasonSale records stock deducted by a placed order.
	MovementReasonSale MovementReason = "sale"
	// MovementReasonReturn records stock restored by a cancelled order or return.
	MovementReasonReturn MovementReason = "return"
	// MovementReasonDamage records stock written off as damaged.
	MovementReasonDamage MovementReason = "damage"
	// MovementReasonExpired records stock written off past expiry.
	MovementReasonExpired MovementReason = "expired"
	// MovementReasonCountCorrection records a stocktake correction.
	MovementReasonCountCorrection MovementReason = "count_correction"
	// MovementReasonOther records any uncategorised adjustment.
	MovementReasonOther MovementReason = "other"
)

// ValidMovementReason reports whether the reason is a known ledger cause.
func ValidMovementReason(reason MovementReason) bool {
	switch reason {
	case MovementReasonPurchase, MovementReasonSale, MovementReasonReturn,
		MovementReasonDamage, MovementReasonExpired, MovementReasonCountCorrection,
		MovementReasonOther:
		return true
	}
	return false
}

// StockMovement is an immutable, append-only ledger row. QuantityAfter always
// equals QuantityBefore + QuantityChange and both bounds are non-negative.
type StockMovement struct {
	ID             string
	ProductID      string
	QuantityChange int
	QuantityBefore int
	QuantityAfter  int
	Reason         MovementReason
	OrderRef       *string
	ReversesRef    *string
	Notes          string
	Actor          string
	CreatedAt      time.Time
}

// DeliveryMethod enumerates supported order delivery options.
type DeliveryMethod string

const (
	// DeliveryMethodPickup is collection at the store; no fee.
	DeliveryMethodPickup DeliveryMethod = "pickup"
	// DeliveryMethodStandard is courier delivery billed per kilometre.
	DeliveryMethodStandard DeliveryMethod = "standard"
	// DeliveryMethodExpress is same-day courier; fee agreed manually.
	DeliveryMethodExpress DeliveryMethod = "express"
	// DeliveryMethodHospitalPickup is collection via hospital logistics; fee agreed manually.
	DeliveryMethodHospitalPickup DeliveryMethod = "hospital_pickup"
)

// ValidDeliveryMethod reports whether the method is recognised.
func ValidDeliveryMethod(method DeliveryMethod) bool {
	switch method {
	case DeliveryMethodPickup, DeliveryMethodStandard, DeliveryMethodExpress, DeliveryMethodHospitalPickup:
		return true
	}
	return false
}

// DeliveryQuote is the fee calculator output for a (method, address) pair.
type DeliveryQuote struct {
	Method            DeliveryMethod
	Fee               int64
	DistanceKM        *float64
	FeePendingConfirm bool
	ContactForFee     bool
	Note              string
}

// PaymentMethod enumerates offline settlement options for wholesale accounts.
type PaymentMethod string

const (
	// PaymentMethodBankTransfer settles by invoice and bank transfer.
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	// PaymentMethodCashOnDelivery settles in cash at handover.
	PaymentMethodCashOnDelivery PaymentMethod = "cash_on_delivery"
)

// ValidPaymentMethod reports whether the payment method is recognised.
func ValidPaymentMethod(method PaymentMethod) bool {
	switch method {
	case PaymentMethodBankTransfer, PaymentMethodCashOnDelivery:
		return true
	}
	return false
}

// PaymentStatus enumerates settlement states tracked on an order.
type PaymentStatus string

const (
	// PaymentStatusPending indicates payment has not been received.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusPaid indicates payment has been received.
	PaymentStatusPaid PaymentStatus = "paid"
	// PaymentStatusRefunded indicates a received payment was returned.
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusNew indicates the order was just placed and awaits confirmation.
	OrderStatusNew OrderStatus = "new"
	// OrderStatusConfirmed indicates staff accepted the order.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusPacking indicates the order is being picked and packed.
	OrderStatusPacking OrderStatus = "packing"
	// OrderStatusReady indicates the order is packed and awaits dispatch.
	OrderStatusReady OrderStatus = "ready"
	// OrderStatusDispatched indicates the order left the store.
	OrderStatusDispatched OrderStatus = "dispatched"
	// OrderStatusDelivered indicates the order reached the customer.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled indicates the order was cancelled and stock restored.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Order captures order headers returned to handlers and services. Orders are
// created once by checkout and afterwards mutated only through status and
// payment-status transitions. They are never deleted.
type Order struct {
	ID                    string
	OrderNumber           string
	CustomerID            string
	Status                OrderStatus
	PaymentStatus         PaymentStatus
	Subtotal              int64
	DeliveryFee           int64
	Total                 int64
	DeliveryMethod        DeliveryMethod
	PaymentMethod         PaymentMethod
	DeliveryAddressID     *string
	DeliveryDistanceKM    *float64
	FeePendingConfirm     bool
	PreferredDeliveryDate *time.Time
	OrderNotes            string
	CancelledReason       string
	InvoiceURL            string
	Items                 []OrderItem
	CreatedAt             time.Time
	UpdatedAt             time.Time
	ConfirmedAt           *time.Time
	DispatchedAt          *time.Time
	DeliveredAt           *time.Time
	CancelledAt           *time.Time
}

// OrderItem is an immutable snapshot of a product line taken at placement
// time, deliberately decoupled from future product edits or deletion.
type OrderItem struct {
	ProductID   string
	ProductSKU  string
	ProductName string
	UnitPrice   int64
	Quantity    int
	TotalPrice  int64
}

// HistoryField distinguishes order-status rows from payment-status rows.
type HistoryField string

const (
	// HistoryFieldStatus marks an order lifecycle transition.
	HistoryFieldStatus HistoryField = "status"
	// HistoryFieldPayment marks a payment-status transition.
	HistoryFieldPayment HistoryField = "payment_status"
)

// OrderStatusHistory is an immutable append-only row written for every status
// or payment-status change. OldStatus is empty for the initial entry.
type OrderStatusHistory struct {
	ID        string
	OrderID   string
	Field     HistoryField
	OldStatus string
	NewStatus string
	Notes     string
	Actor     string
	CreatedAt time.Time
}

// ReorderWarningKind enumerates per-item reorder outcomes.
type ReorderWarningKind string

const (
	// ReorderWarningUnavailable indicates the product is gone, inactive, or hidden.
	ReorderWarningUnavailable ReorderWarningKind = "unavailable"
	// ReorderWarningOutOfStock indicates the product has zero stock.
	ReorderWarningOutOfStock ReorderWarningKind = "out_of_stock"
	// ReorderWarningQuantityReduced indicates the item was re-added at reduced quantity.
	ReorderWarningQuantityReduced ReorderWarningKind = "quantity_reduced"
)

// ReorderWarning reports a per-item outcome when re-adding a past order.
type ReorderWarning struct {
	Kind             ReorderWarningKind
	ProductID        string
	ProductName      string
	OriginalQuantity int
	AddedQuantity    int
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}

// AuditLogEntry stores normalized audit information for admin use.
type AuditLogEntry struct {
	ID        string
	Actor     string
	ActorType string
	Action    string
	TargetRef string
	Metadata  map[string]any
	Diff      map[string]any
	IPHash    string
	UserAgent string
	Severity  string
	RequestID string
	CreatedAt time.Time
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}
