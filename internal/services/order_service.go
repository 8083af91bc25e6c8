package services

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/pharmadirect/api/internal/domain"
	"github.com/pharmadirect/api/internal/platform/textutil"
	"github.com/pharmadirect/api/internal/repositories"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order service: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order service: not found")
	// ErrOrderInvalidTransition indicates a target not reachable from the current status.
	ErrOrderInvalidTransition = errors.New("order service: invalid transition")
	// ErrOrderCancelReasonRequired indicates cancellation was requested without a reason.
	ErrOrderCancelReasonRequired = errors.New("order service: cancellation reason is required")
	// ErrOrderConflict indicates the order changed concurrently and the update lost the race.
	ErrOrderConflict = errors.New("order service: conflict")
	// ErrOrderUnavailable indicates the order backend cannot be reached.
	ErrOrderUnavailable = errors.New("order service: unavailable")
)

const (
	maxTransitionNotesLength = 1000
	maxCancelReasonLength    = 500
)

// orderTransitions is the lifecycle table. Cancellation is reachable only
// while the order has not been made ready for dispatch.
var orderTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusNew:        {domain.OrderStatusConfirmed, domain.OrderStatusCancelled},
	domain.OrderStatusConfirmed:  {domain.OrderStatusPacking, domain.OrderStatusCancelled},
	domain.OrderStatusPacking:    {domain.OrderStatusReady, domain.OrderStatusCancelled},
	domain.OrderStatusReady:      {domain.OrderStatusDispatched},
	domain.OrderStatusDispatched: {domain.OrderStatusDelivered},
	domain.OrderStatusDelivered:  {},
	domain.OrderStatusCancelled:  {},
}

var paymentTransitions = map[domain.PaymentStatus][]domain.PaymentStatus{
	domain.PaymentStatusPending:  {domain.PaymentStatusPaid},
	domain.PaymentStatusPaid:     {domain.PaymentStatusRefunded},
	domain.PaymentStatusRefunded: {},
}

// OrderServiceDeps wires dependencies for order reads and transitions. Audit
// is optional; transitions are recorded when it is present.
type OrderServiceDeps struct {
	Orders repositories.OrderRepository
	Events OrderEventPublisher
	Audit  AuditLogService
	Clock  func() time.Time
	Logger func(context.Context, string, map[string]any)
}

type orderService struct {
	orders repositories.OrderRepository
	events OrderEventPublisher
	audit  AuditLogService
	now    func() time.Time
	logger func(context.Context, string, map[string]any)
}

// NewOrderService constructs an OrderService enforcing dependency validation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Clock == nil {
		return nil, errors.New("order service: clock is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &orderService{
		orders: deps.Orders,
		events: deps.Events,
		audit:  deps.Audit,
		now:    func() time.Time { return deps.Clock().UTC() },
		logger: logger,
	}, nil
}

// GetOrder loads a single order with its item snapshots.
func (s *orderService) GetOrder(ctx context.Context, orderID string) (Order, error) {
	if s == nil || s.orders == nil {
		return Order{}, ErrOrderUnavailable
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return Order{}, ErrOrderInvalidInput
	}
	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return Order{}, s.translateRepoError(err)
	}
	return order, nil
}

// ListOrders returns orders matching the filter, newest first.
func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error) {
	if s == nil || s.orders == nil {
		return domain.CursorPage[Order]{}, ErrOrderUnavailable
	}
	for _, status := range filter.Status {
		if !knownOrderStatus(domain.OrderStatus(status)) {
			return domain.CursorPage[Order]{}, ErrOrderInvalidInput
		}
	}
	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Order]{}, s.translateRepoError(err)
	}
	return page, nil
}

// ListHistory returns the order's status history, oldest first.
func (s *orderService) ListHistory(ctx context.Context, orderID string) ([]OrderStatusHistory, error) {
	if s == nil || s.orders == nil {
		return nil, ErrOrderUnavailable
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return nil, ErrOrderInvalidInput
	}
	rows, err := s.orders.ListHistory(ctx, id)
	if err != nil {
		return nil, s.translateRepoError(err)
	}
	return rows, nil
}

// Transition applies one lifecycle step. The target is re-validated against
// the stored order inside the transaction, so concurrent transitions cannot
// both win. Cancellation restores the order's stock deductions atomically.
func (s *orderService) Transition(ctx context.Context, cmd OrderTransitionCommand) (Order, error) {
	if s == nil || s.orders == nil {
		return Order{}, ErrOrderUnavailable
	}
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, ErrOrderInvalidInput
	}
	if !knownOrderStatus(cmd.Target) {
		return Order{}, ErrOrderInvalidTransition
	}

	cancelling := cmd.Target == domain.OrderStatusCancelled
	reason := textutil.SanitizePlain(cmd.Reason, maxCancelReasonLength)
	if cancelling && reason == "" {
		return Order{}, ErrOrderCancelReasonRequired
	}

	now := s.now()
	var previous string
	updated, err := s.orders.Transition(ctx, repositories.OrderTransitionRequest{
		OrderID:      orderID,
		Field:        domain.HistoryFieldStatus,
		Target:       string(cmd.Target),
		Notes:        textutil.SanitizePlain(cmd.Notes, maxTransitionNotesLength),
		Actor:        strings.TrimSpace(cmd.Actor),
		Reason:       reason,
		RestoreStock: cancelling,
		Now:          now,
		Validate: func(order domain.Order) (domain.Order, error) {
			previous = string(order.Status)
			if !transitionAllowed(order.Status, cmd.Target) {
				return domain.Order{}, ErrOrderInvalidTransition
			}
			order.Status = cmd.Target
			switch cmd.Target {
			case domain.OrderStatusConfirmed:
				at := now
				order.ConfirmedAt = &at
			case domain.OrderStatusDispatched:
				at := now
				order.DispatchedAt = &at
			case domain.OrderStatusDelivered:
				at := now
				order.DeliveredAt = &at
			case domain.OrderStatusCancelled:
				at := now
				order.CancelledAt = &at
				order.CancelledReason = reason
			}
			return order, nil
		},
	})
	if err != nil {
		return Order{}, s.translateRepoError(err)
	}

	s.logger(ctx, "order.status_changed", map[string]any{
		"order_id": orderID,
		"from":     previous,
		"to":       string(cmd.Target),
		"actor":    cmd.Actor,
	})
	record := AuditLogRecord{
		Actor:     strings.TrimSpace(cmd.Actor),
		Action:    "order.transition",
		TargetRef: "/orders/" + orderID,
		Diff: map[string]AuditLogDiff{
			"status": {Before: previous, After: string(cmd.Target)},
		},
	}
	if cancelling {
		record.Metadata = map[string]any{"cancelled_reason": reason}
	}
	s.recordAudit(ctx, record)
	s.publishStatusChanged(ctx, updated, previous, string(domain.HistoryFieldStatus))
	return updated, nil
}

// TransitionPayment applies one payment-status step using the same history
// mechanism as lifecycle transitions.
func (s *orderService) TransitionPayment(ctx context.Context, cmd PaymentTransitionCommand) (Order, error) {
	if s == nil || s.orders == nil {
		return Order{}, ErrOrderUnavailable
	}
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, ErrOrderInvalidInput
	}
	if !knownPaymentStatus(cmd.Target) {
		return Order{}, ErrOrderInvalidTransition
	}

	now := s.now()
	var previous string
	updated, err := s.orders.Transition(ctx, repositories.OrderTransitionRequest{
		OrderID: orderID,
		Field:   domain.HistoryFieldPayment,
		Target:  string(cmd.Target),
		Notes:   textutil.SanitizePlain(cmd.Notes, maxTransitionNotesLength),
		Actor:   strings.TrimSpace(cmd.Actor),
		Now:     now,
		Validate: func(order domain.Order) (domain.Order, error) {
			previous = string(order.PaymentStatus)
			if !paymentTransitionAllowed(order.PaymentStatus, cmd.Target) {
				return domain.Order{}, ErrOrderInvalidTransition
			}
			order.PaymentStatus = cmd.Target
			return order, nil
		},
	})
	if err != nil {
		return Order{}, s.translateRepoError(err)
	}

	s.logger(ctx, "order.payment_status_changed", map[string]any{
		"order_id": orderID,
		"from":     previous,
		"to":       string(cmd.Target),
		"actor":    cmd.Actor,
	})
	s.recordAudit(ctx, AuditLogRecord{
		Actor:     strings.TrimSpace(cmd.Actor),
		Action:    "order.payment_transition",
		TargetRef: "/orders/" + orderID,
		Diff: map[string]AuditLogDiff{
			"payment_status": {Before: previous, After: string(cmd.Target)},
		},
	})
	s.publishStatusChanged(ctx, updated, previous, string(domain.HistoryFieldPayment))
	return updated, nil
}

// AttachInvoice stores the rendered invoice location on the order.
func (s *orderService) AttachInvoice(ctx context.Context, cmd AttachInvoiceCommand) (Order, error) {
	if s == nil || s.orders == nil {
		return Order{}, ErrOrderUnavailable
	}
	orderID := strings.TrimSpace(cmd.OrderID)
	invoiceURL := strings.TrimSpace(cmd.InvoiceURL)
	if orderID == "" || invoiceURL == "" {
		return Order{}, ErrOrderInvalidInput
	}

	order, err := s.orders.SetInvoiceURL(ctx, orderID, invoiceURL, s.now())
	if err != nil {
		return Order{}, s.translateRepoError(err)
	}
	s.logger(ctx, "order.invoice_attached", map[string]any{"order_id": orderID})
	return order, nil
}

// recordAudit writes a trail entry post-commit. The audit service swallows
// repository failures, so a lost entry never fails the transition.
func (s *orderService) recordAudit(ctx context.Context, record AuditLogRecord) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, record)
}

// publishStatusChanged notifies downstream consumers post-commit. Failures
// are logged, never propagated.
func (s *orderService) publishStatusChanged(ctx context.Context, order Order, previous string, field string) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrderStatusChanged(ctx, order, previous, field); err != nil {
		s.logger(ctx, "order.event_publish_failed", map[string]any{
			"order_id": order.ID,
			"field":    field,
			"error":    err.Error(),
		})
	}
}

func transitionAllowed(from, to domain.OrderStatus) bool {
	for _, allowed := range orderTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func paymentTransitionAllowed(from, to domain.PaymentStatus) bool {
	for _, allowed := range paymentTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func knownOrderStatus(status domain.OrderStatus) bool {
	_, ok := orderTransitions[status]
	return ok
}

func knownPaymentStatus(status domain.PaymentStatus) bool {
	_, ok := paymentTransitions[status]
	return ok
}

func (s *orderService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrOrderInvalidTransition) || errors.Is(err, ErrOrderCancelReasonRequired) {
		return err
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrOrderNotFound
		case repoErr.IsConflict():
			return ErrOrderConflict
		}
		return ErrOrderUnavailable
	}
	return ErrOrderUnavailable
}
