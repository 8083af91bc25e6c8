package jobs

import (
	"context"
	"encoding/json"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	domain "github.com/pharmadirect/api/internal/domain"
)

func newTestTopics(t *testing.T) (*pstest.Server, *pubsub.Topic, *pubsub.Topic) {
	t.Helper()
	ctx := context.Background()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	events, err := client.CreateTopic(ctx, "order-events")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	invoices, err := client.CreateTopic(ctx, "invoice-jobs")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	return srv, events, invoices
}

func TestPubSubOrderPublisherPublishesCreatedEvent(t *testing.T) {
	ctx := context.Background()
	srv, events, invoices := newTestTopics(t)

	publisher, err := NewPubSubOrderPublisher(events, invoices)
	if err != nil {
		t.Fatalf("NewPubSubOrderPublisher: %v", err)
	}

	order := domain.Order{
		ID:            "order-1",
		OrderNumber:   "PD-20250115-0001",
		CustomerID:    "cust-1",
		Status:        domain.OrderStatusNew,
		PaymentStatus: domain.PaymentStatusPending,
		Total:         1250,
	}
	if err := publisher.PublishOrderCreated(ctx, order); err != nil {
		t.Fatalf("PublishOrderCreated: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}

	var payload orderEventMessage
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Event != eventOrderCreated || payload.OrderID != "order-1" || payload.Total != 1250 {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if attr := messages[0].Attributes["event"]; attr != eventOrderCreated {
		t.Fatalf("expected event attribute, got %q", attr)
	}
	if attr := messages[0].Attributes["customerId"]; attr != "cust-1" {
		t.Fatalf("expected customerId attribute, got %q", attr)
	}
}

func TestPubSubOrderPublisherStatusChangeCarriesField(t *testing.T) {
	ctx := context.Background()
	srv, events, _ := newTestTopics(t)

	publisher, err := NewPubSubOrderPublisher(events, nil)
	if err != nil {
		t.Fatalf("NewPubSubOrderPublisher: %v", err)
	}

	order := domain.Order{
		ID:            "order-2",
		OrderNumber:   "PD-20250115-0002",
		CustomerID:    "cust-1",
		Status:        domain.OrderStatusConfirmed,
		PaymentStatus: domain.PaymentStatusPending,
	}
	if err := publisher.PublishOrderStatusChanged(ctx, order, string(domain.OrderStatusNew), string(domain.HistoryFieldStatus)); err != nil {
		t.Fatalf("PublishOrderStatusChanged: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	var payload orderEventMessage
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.PreviousStatus != "new" || payload.Status != "confirmed" {
		t.Fatalf("unexpected status transition payload %#v", payload)
	}
	if attr := messages[0].Attributes["statusField"]; attr != "status" {
		t.Fatalf("expected statusField attribute, got %q", attr)
	}
}

func TestPubSubOrderPublisherInvoiceJob(t *testing.T) {
	ctx := context.Background()
	srv, events, invoices := newTestTopics(t)

	publisher, err := NewPubSubOrderPublisher(events, invoices)
	if err != nil {
		t.Fatalf("NewPubSubOrderPublisher: %v", err)
	}

	order := domain.Order{ID: "order-3", OrderNumber: "PD-20250115-0003", CustomerID: "cust-2"}
	if err := publisher.EnqueueInvoiceRender(ctx, order); err != nil {
		t.Fatalf("EnqueueInvoiceRender: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	var payload invoiceRenderMessage
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.OrderID != "order-3" || payload.OrderNumber != "PD-20250115-0003" {
		t.Fatalf("unexpected payload %#v", payload)
	}
}

func TestPubSubOrderPublisherNilInvoiceTopicIsNoop(t *testing.T) {
	ctx := context.Background()
	srv, events, _ := newTestTopics(t)

	publisher, err := NewPubSubOrderPublisher(events, nil)
	if err != nil {
		t.Fatalf("NewPubSubOrderPublisher: %v", err)
	}
	if err := publisher.EnqueueInvoiceRender(ctx, domain.Order{ID: "order-4"}); err != nil {
		t.Fatalf("EnqueueInvoiceRender: %v", err)
	}
	if got := len(srv.Messages()); got != 0 {
		t.Fatalf("expected no messages, got %d", got)
	}
}
