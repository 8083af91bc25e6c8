package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/pharmadirect/api/internal/services"
)

const (
	eventOrderCreated       = "order.created"
	eventOrderStatusChanged = "order.status_changed"
)

// orderEventMessage is the payload delivered to downstream consumers
// (notification workers, the invoice renderer) via Pub/Sub.
type orderEventMessage struct {
	Event          string    `json:"event"`
	OrderID        string    `json:"orderId"`
	OrderNumber    string    `json:"orderNumber"`
	CustomerID     string    `json:"customerId"`
	Status         string    `json:"status"`
	PaymentStatus  string    `json:"paymentStatus"`
	PreviousStatus string    `json:"previousStatus,omitempty"`
	StatusField    string    `json:"statusField,omitempty"`
	Total          int64     `json:"total"`
	OccurredAt     time.Time `json:"occurredAt"`
}

// invoiceRenderMessage asks the invoice worker to render and upload a PDF
// for the given order, then call back on the internal invoice endpoint.
type invoiceRenderMessage struct {
	OrderID     string    `json:"orderId"`
	OrderNumber string    `json:"orderNumber"`
	CustomerID  string    `json:"customerId"`
	QueuedAt    time.Time `json:"queuedAt"`
}

// PubSubOrderPublisher publishes order lifecycle events and invoice render
// jobs to their Pub/Sub topics.
type PubSubOrderPublisher struct {
	events   *pubsub.Topic
	invoices *pubsub.Topic
	clock    func() time.Time
	marshal  func(any) ([]byte, error)
}

var (
	_ services.OrderEventPublisher  = (*PubSubOrderPublisher)(nil)
	_ services.InvoiceJobDispatcher = (*PubSubOrderPublisher)(nil)
)

// NewPubSubOrderPublisher constructs a publisher over the order-events and
// invoice-jobs topics. The invoice topic may be nil when invoice rendering
// is disabled for the environment.
func NewPubSubOrderPublisher(events *pubsub.Topic, invoices *pubsub.Topic) (*PubSubOrderPublisher, error) {
	if events == nil {
		return nil, errors.New("pubsub order publisher: events topic is required")
	}
	return &PubSubOrderPublisher{
		events:   events,
		invoices: invoices,
		clock:    time.Now,
		marshal:  json.Marshal,
	}, nil
}

// PublishOrderCreated announces a freshly placed order.
func (p *PubSubOrderPublisher) PublishOrderCreated(ctx context.Context, order services.Order) error {
	if p == nil || p.events == nil {
		return errors.New("pubsub order publisher: not initialised")
	}
	msg := orderEventMessage{
		Event:         eventOrderCreated,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		CustomerID:    order.CustomerID,
		Status:        string(order.Status),
		PaymentStatus: string(order.PaymentStatus),
		Total:         order.Total,
		OccurredAt:    p.clock().UTC(),
	}
	return p.publish(ctx, p.events, msg.Event, msg.OrderID, msg)
}

// PublishOrderStatusChanged announces a fulfilment or payment status change.
// The field attribute lets consumers route payment events separately.
func (p *PubSubOrderPublisher) PublishOrderStatusChanged(ctx context.Context, order services.Order, previous string, field string) error {
	if p == nil || p.events == nil {
		return errors.New("pubsub order publisher: not initialised")
	}
	msg := orderEventMessage{
		Event:          eventOrderStatusChanged,
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		CustomerID:     order.CustomerID,
		Status:         string(order.Status),
		PaymentStatus:  string(order.PaymentStatus),
		PreviousStatus: previous,
		StatusField:    field,
		Total:          order.Total,
		OccurredAt:     p.clock().UTC(),
	}
	return p.publish(ctx, p.events, msg.Event, msg.OrderID, msg)
}

// EnqueueInvoiceRender schedules asynchronous invoice PDF generation.
func (p *PubSubOrderPublisher) EnqueueInvoiceRender(ctx context.Context, order services.Order) error {
	if p == nil {
		return errors.New("pubsub order publisher: not initialised")
	}
	if p.invoices == nil {
		return nil
	}
	msg := invoiceRenderMessage{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		CustomerID:  order.CustomerID,
		QueuedAt:    p.clock().UTC(),
	}
	data, err := p.marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal invoice job: %w", err)
	}
	attrs := make(map[string]string)
	setAttr(attrs, "orderId", msg.OrderID)
	setAttr(attrs, "orderNumber", msg.OrderNumber)

	result := p.invoices.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish invoice job: %w", err)
	}
	return nil
}

func (p *PubSubOrderPublisher) publish(ctx context.Context, topic *pubsub.Topic, event string, orderID string, msg orderEventMessage) error {
	data, err := p.marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "event", event)
	setAttr(attrs, "orderId", orderID)
	setAttr(attrs, "customerId", msg.CustomerID)
	setAttr(attrs, "statusField", msg.StatusField)

	result := topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish order event: %w", err)
	}
	return nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
