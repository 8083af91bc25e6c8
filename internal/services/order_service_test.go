package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/pharmadirect/api/internal/domain"
	"github.com/pharmadirect/api/internal/repositories"
)

type recordingAuditService struct {
	records []AuditLogRecord
}

func (s *recordingAuditService) Record(_ context.Context, record AuditLogRecord) {
	s.records = append(s.records, record)
}

func (s *recordingAuditService) List(_ context.Context, _ AuditLogFilter) (domain.CursorPage[AuditLogEntry], error) {
	return domain.CursorPage[AuditLogEntry]{}, nil
}

func newOrderServiceForTest(t *testing.T, orders *stubOrderRepo, events OrderEventPublisher) OrderService {
	t.Helper()
	svc, err := NewOrderService(OrderServiceDeps{
		Orders: orders,
		Events: events,
		Clock:  func() time.Time { return time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}
	return svc
}

func storedOrder(status domain.OrderStatus, payment domain.PaymentStatus) domain.Order {
	return domain.Order{
		ID:            "order-1",
		OrderNumber:   "PD-20250304-0001",
		CustomerID:    "cust-1",
		Status:        status,
		PaymentStatus: payment,
	}
}

func TestOrderTransitionConfirm(t *testing.T) {
	orders := &stubOrderRepo{order: storedOrder(domain.OrderStatusNew, domain.PaymentStatusPending)}
	events := &capturingPublisher{}
	svc := newOrderServiceForTest(t, orders, events)

	updated, err := svc.Transition(context.Background(), OrderTransitionCommand{
		OrderID: "order-1",
		Target:  domain.OrderStatusConfirmed,
		Notes:   "verified by phone",
		Actor:   "staff-1",
	})
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if updated.Status != domain.OrderStatusConfirmed {
		t.Fatalf("expected confirmed, got %q", updated.Status)
	}
	if updated.ConfirmedAt == nil {
		t.Fatalf("expected ConfirmedAt to be stamped")
	}
	if orders.transitionReq.Field != domain.HistoryFieldStatus {
		t.Fatalf("expected status history field, got %q", orders.transitionReq.Field)
	}
	if orders.transitionReq.RestoreStock {
		t.Fatalf("confirmation must not restore stock")
	}
	if orders.transitionReq.Actor != "staff-1" {
		t.Fatalf("expected actor staff-1, got %q", orders.transitionReq.Actor)
	}
	if len(events.changes) != 1 || events.changes[0] != "status:new" {
		t.Fatalf("expected one status change event from new, got %#v", events.changes)
	}
}

func TestOrderTransitionCancelRestoresStock(t *testing.T) {
	orders := &stubOrderRepo{order: storedOrder(domain.OrderStatusConfirmed, domain.PaymentStatusPending)}
	svc := newOrderServiceForTest(t, orders, nil)

	updated, err := svc.Transition(context.Background(), OrderTransitionCommand{
		OrderID: "order-1",
		Target:  domain.OrderStatusCancelled,
		Reason:  "customer asked to cancel",
		Actor:   "staff-1",
	})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !orders.transitionReq.RestoreStock {
		t.Fatalf("cancellation must restore stock in the same transaction")
	}
	if updated.CancelledAt == nil {
		t.Fatalf("expected CancelledAt to be stamped")
	}
	if updated.CancelledReason != "customer asked to cancel" {
		t.Fatalf("expected reason recorded, got %q", updated.CancelledReason)
	}
}

func TestOrderTransitionWritesAuditTrail(t *testing.T) {
	orders := &stubOrderRepo{order: storedOrder(domain.OrderStatusConfirmed, domain.PaymentStatusPending)}
	audit := &recordingAuditService{}
	svc, err := NewOrderService(OrderServiceDeps{
		Orders: orders,
		Audit:  audit,
		Clock:  func() time.Time { return time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}

	if _, err := svc.Transition(context.Background(), OrderTransitionCommand{
		OrderID: "order-1",
		Target:  domain.OrderStatusCancelled,
		Reason:  "wrong address on file",
		Actor:   "staff-1",
	}); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if len(audit.records) != 1 {
		t.Fatalf("expected one audit record, got %d", len(audit.records))
	}
	record := audit.records[0]
	if record.Action != "order.transition" || record.Actor != "staff-1" {
		t.Fatalf("unexpected audit record %#v", record)
	}
	if record.TargetRef != "/orders/order-1" {
		t.Fatalf("expected target /orders/order-1, got %q", record.TargetRef)
	}
	diff, ok := record.Diff["status"]
	if !ok || diff.Before != "confirmed" || diff.After != "cancelled" {
		t.Fatalf("expected status diff confirmed->cancelled, got %#v", record.Diff)
	}
	if record.Metadata["cancelled_reason"] != "wrong address on file" {
		t.Fatalf("expected cancellation reason in metadata, got %#v", record.Metadata)
	}
}

func TestOrderPaymentTransitionWritesAuditTrail(t *testing.T) {
	orders := &stubOrderRepo{order: storedOrder(domain.OrderStatusConfirmed, domain.PaymentStatusPending)}
	audit := &recordingAuditService{}
	svc, err := NewOrderService(OrderServiceDeps{
		Orders: orders,
		Audit:  audit,
		Clock:  func() time.Time { return time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}

	if _, err := svc.TransitionPayment(context.Background(), PaymentTransitionCommand{
		OrderID: "order-1",
		Target:  domain.PaymentStatusPaid,
		Actor:   "staff-2",
	}); err != nil {
		t.Fatalf("payment transition: %v", err)
	}

	if len(audit.records) != 1 {
		t.Fatalf("expected one audit record, got %d", len(audit.records))
	}
	record := audit.records[0]
	if record.Action != "order.payment_transition" {
		t.Fatalf("unexpected action %q", record.Action)
	}
	diff, ok := record.Diff["payment_status"]
	if !ok || diff.Before != "pending" || diff.After != "paid" {
		t.Fatalf("expected payment diff pending->paid, got %#v", record.Diff)
	}
}

func TestOrderTransitionCancelRequiresReason(t *testing.T) {
	orders := &stubOrderRepo{order: storedOrder(domain.OrderStatusNew, domain.PaymentStatusPending)}
	svc := newOrderServiceForTest(t, orders, nil)

	_, err := svc.Transition(context.Background(), OrderTransitionCommand{
		OrderID: "order-1",
		Target:  domain.OrderStatusCancelled,
		Actor:   "cust-1",
	})
	if !errors.Is(err, ErrOrderCancelReasonRequired) {
		t.Fatalf("expected ErrOrderCancelReasonRequired, got %v", err)
	}
	if orders.transitionReq.OrderID != "" {
		t.Fatalf("repository must not be reached without a reason")
	}
}

func TestOrderTransitionTable(t *testing.T) {
	cases := []struct {
		from    domain.OrderStatus
		to      domain.OrderStatus
		allowed bool
	}{
		{domain.OrderStatusNew, domain.OrderStatusConfirmed, true},
		{domain.OrderStatusConfirmed, domain.OrderStatusPacking, true},
		{domain.OrderStatusPacking, domain.OrderStatusReady, true},
		{domain.OrderStatusReady, domain.OrderStatusDispatched, true},
		{domain.OrderStatusDispatched, domain.OrderStatusDelivered, true},
		{domain.OrderStatusNew, domain.OrderStatusPacking, false},
		{domain.OrderStatusReady, domain.OrderStatusCancelled, false},
		{domain.OrderStatusDelivered, domain.OrderStatusConfirmed, false},
		{domain.OrderStatusConfirmed, domain.OrderStatusConfirmed, false},
		{domain.OrderStatusCancelled, domain.OrderStatusNew, false},
	}

	for _, tc := range cases {
		orders := &stubOrderRepo{order: storedOrder(tc.from, domain.PaymentStatusPending)}
		svc := newOrderServiceForTest(t, orders, nil)

		_, err := svc.Transition(context.Background(), OrderTransitionCommand{
			OrderID: "order-1",
			Target:  tc.to,
			Reason:  "table case",
			Actor:   "staff-1",
		})
		if tc.allowed && err != nil {
			t.Fatalf("%s -> %s: expected success, got %v", tc.from, tc.to, err)
		}
		if !tc.allowed && !errors.Is(err, ErrOrderInvalidTransition) {
			t.Fatalf("%s -> %s: expected ErrOrderInvalidTransition, got %v", tc.from, tc.to, err)
		}
	}
}

func TestOrderTransitionUnknownTarget(t *testing.T) {
	svc := newOrderServiceForTest(t, &stubOrderRepo{order: storedOrder(domain.OrderStatusNew, domain.PaymentStatusPending)}, nil)

	_, err := svc.Transition(context.Background(), OrderTransitionCommand{
		OrderID: "order-1",
		Target:  "shipped",
		Actor:   "staff-1",
	})
	if !errors.Is(err, ErrOrderInvalidTransition) {
		t.Fatalf("expected ErrOrderInvalidTransition, got %v", err)
	}
}

func TestOrderPaymentTransition(t *testing.T) {
	orders := &stubOrderRepo{order: storedOrder(domain.OrderStatusConfirmed, domain.PaymentStatusPending)}
	events := &capturingPublisher{}
	svc := newOrderServiceForTest(t, orders, events)

	updated, err := svc.TransitionPayment(context.Background(), PaymentTransitionCommand{
		OrderID: "order-1",
		Target:  domain.PaymentStatusPaid,
		Actor:   "staff-1",
	})
	if err != nil {
		t.Fatalf("payment transition: %v", err)
	}
	if updated.PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("expected paid, got %q", updated.PaymentStatus)
	}
	if orders.transitionReq.Field != domain.HistoryFieldPayment {
		t.Fatalf("expected payment history field, got %q", orders.transitionReq.Field)
	}
	if len(events.changes) != 1 || events.changes[0] != "payment_status:pending" {
		t.Fatalf("expected payment change event, got %#v", events.changes)
	}

	orders.order.PaymentStatus = domain.PaymentStatusRefunded
	_, err = svc.TransitionPayment(context.Background(), PaymentTransitionCommand{
		OrderID: "order-1",
		Target:  domain.PaymentStatusPaid,
		Actor:   "staff-1",
	})
	if !errors.Is(err, ErrOrderInvalidTransition) {
		t.Fatalf("expected ErrOrderInvalidTransition for refunded -> paid, got %v", err)
	}
}

func TestOrderAttachInvoice(t *testing.T) {
	orders := &stubOrderRepo{order: storedOrder(domain.OrderStatusConfirmed, domain.PaymentStatusPending)}
	svc := newOrderServiceForTest(t, orders, nil)

	updated, err := svc.AttachInvoice(context.Background(), AttachInvoiceCommand{
		OrderID:    "order-1",
		InvoiceURL: "gs://invoices/order-1.pdf",
		Actor:      "invoice-worker",
	})
	if err != nil {
		t.Fatalf("attach invoice: %v", err)
	}
	if updated.InvoiceURL != "gs://invoices/order-1.pdf" {
		t.Fatalf("expected invoice url stored, got %q", updated.InvoiceURL)
	}

	if _, err := svc.AttachInvoice(context.Background(), AttachInvoiceCommand{OrderID: "order-1"}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected ErrOrderInvalidInput for missing url, got %v", err)
	}
}

func TestOrderGetOrderNotFound(t *testing.T) {
	orders := &stubOrderRepo{findErr: notFoundRepoError{}}
	svc := newOrderServiceForTest(t, orders, nil)

	_, err := svc.GetOrder(context.Background(), "missing")
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestOrderListRejectsUnknownStatusFilter(t *testing.T) {
	svc := newOrderServiceForTest(t, &stubOrderRepo{}, nil)

	_, err := svc.ListOrders(context.Background(), repositories.OrderListFilter{Status: []string{"shipped"}})
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected ErrOrderInvalidInput, got %v", err)
	}
}

func TestOrderTransitionConflictSurfaces(t *testing.T) {
	orders := &stubOrderRepo{
		order:         storedOrder(domain.OrderStatusNew, domain.PaymentStatusPending),
		transitionErr: conflictRepoError{},
	}
	svc := newOrderServiceForTest(t, orders, nil)

	_, err := svc.Transition(context.Background(), OrderTransitionCommand{
		OrderID: "order-1",
		Target:  domain.OrderStatusConfirmed,
		Actor:   "staff-1",
	})
	if !errors.Is(err, ErrOrderConflict) {
		t.Fatalf("expected ErrOrderConflict, got %v", err)
	}
}

type conflictRepoError struct{}

func (conflictRepoError) Error() string       { return "conflict" }
func (conflictRepoError) IsNotFound() bool    { return false }
func (conflictRepoError) IsConflict() bool    { return true }
func (conflictRepoError) IsUnavailable() bool { return false }
