package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pharmadirect/api/internal/platform/storage"
)

var (
	// ErrInvoiceInvalidInput indicates the caller supplied invalid input.
	ErrInvoiceInvalidInput = errors.New("invoice service: invalid input")
	// ErrInvoiceNotReady indicates no invoice has been attached to the order yet.
	ErrInvoiceNotReady = errors.New("invoice service: invoice not rendered yet")
	// ErrInvoiceUnavailable indicates the storage backend cannot be reached.
	ErrInvoiceUnavailable = errors.New("invoice service: unavailable")
)

const defaultInvoiceURLExpiry = 15 * time.Minute

// ObjectCopier moves rendered artifacts between storage locations.
type ObjectCopier interface {
	CopyObject(ctx context.Context, sourceBucket, sourceObject, destBucket, destObject string) error
}

// InvoiceURLSigner issues short-lived download URLs for stored objects.
type InvoiceURLSigner interface {
	SignedDownloadURL(ctx context.Context, bucket string, object string, expiresIn time.Duration) (string, time.Time, error)
}

// PromoteInvoiceCommand identifies a rendered invoice PDF to promote. The
// render worker writes into a staging prefix of the invoice bucket and calls
// back with the object path.
type PromoteInvoiceCommand struct {
	OrderID    string
	ObjectPath string
	Actor      string
}

// InvoiceDownload is a short-lived link to the order's invoice PDF.
type InvoiceDownload struct {
	URL       string
	ExpiresAt time.Time
}

// InvoiceServiceDeps wires collaborators for invoice promotion and access.
// Audit is optional; promotions are recorded when it is present.
type InvoiceServiceDeps struct {
	Orders    OrderService
	Copier    ObjectCopier
	Signer    InvoiceURLSigner
	Audit     AuditLogService
	Bucket    string
	URLExpiry time.Duration
	Logger    func(context.Context, string, map[string]any)
}

type invoiceService struct {
	orders    OrderService
	copier    ObjectCopier
	signer    InvoiceURLSigner
	audit     AuditLogService
	bucket    string
	urlExpiry time.Duration
	logger    func(context.Context, string, map[string]any)
}

// NewInvoiceService constructs an InvoiceService enforcing dependency validation.
func NewInvoiceService(deps InvoiceServiceDeps) (InvoiceService, error) {
	if deps.Orders == nil {
		return nil, errors.New("invoice service: order service is required")
	}
	if deps.Copier == nil {
		return nil, errors.New("invoice service: object copier is required")
	}
	if strings.TrimSpace(deps.Bucket) == "" {
		return nil, errors.New("invoice service: bucket is required")
	}
	expiry := deps.URLExpiry
	if expiry <= 0 {
		expiry = defaultInvoiceURLExpiry
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &invoiceService{
		orders:    deps.Orders,
		copier:    deps.Copier,
		signer:    deps.Signer,
		audit:     deps.Audit,
		bucket:    strings.TrimSpace(deps.Bucket),
		urlExpiry: expiry,
		logger:    logger,
	}, nil
}

// PromoteInvoice copies the rendered PDF from its staging path to the stable
// per-order location and stores the resulting URL on the order.
func (s *invoiceService) PromoteInvoice(ctx context.Context, cmd PromoteInvoiceCommand) (Order, error) {
	if s == nil || s.orders == nil {
		return Order{}, ErrInvoiceUnavailable
	}
	orderID := strings.TrimSpace(cmd.OrderID)
	objectPath := strings.TrimSpace(cmd.ObjectPath)
	if orderID == "" || objectPath == "" || strings.Contains(objectPath, "..") {
		return Order{}, ErrInvoiceInvalidInput
	}

	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}

	destPath, err := storage.BuildObjectPath(storage.PurposeInvoice, storage.PathParams{
		OrderID:       order.ID,
		InvoiceNumber: order.OrderNumber,
	})
	if err != nil {
		return Order{}, fmt.Errorf("%w: %v", ErrInvoiceInvalidInput, err)
	}

	if err := s.copier.CopyObject(ctx, s.bucket, objectPath, s.bucket, destPath); err != nil {
		s.logger(ctx, "invoice.promote_failed", map[string]any{
			"order_id": order.ID,
			"source":   objectPath,
			"error":    err.Error(),
		})
		return Order{}, ErrInvoiceUnavailable
	}

	invoiceURL := fmt.Sprintf("gs://%s/%s", s.bucket, destPath)
	updated, err := s.orders.AttachInvoice(ctx, AttachInvoiceCommand{
		OrderID:    order.ID,
		InvoiceURL: invoiceURL,
		Actor:      cmd.Actor,
	})
	if err != nil {
		return Order{}, err
	}

	s.logger(ctx, "invoice.promoted", map[string]any{
		"order_id":    order.ID,
		"invoice_url": invoiceURL,
	})
	if s.audit != nil {
		s.audit.Record(ctx, AuditLogRecord{
			Actor:     strings.TrimSpace(cmd.Actor),
			ActorType: "service",
			Action:    "order.invoice_attached",
			TargetRef: "/orders/" + order.ID,
			Metadata: map[string]any{
				"source_object": objectPath,
				"invoice_url":   invoiceURL,
			},
		})
	}
	return updated, nil
}

// InvoiceDownloadURL issues a short-lived signed URL for the order's stored
// invoice PDF.
func (s *invoiceService) InvoiceDownloadURL(ctx context.Context, orderID string) (InvoiceDownload, error) {
	if s == nil || s.orders == nil {
		return InvoiceDownload{}, ErrInvoiceUnavailable
	}
	if s.signer == nil {
		return InvoiceDownload{}, ErrInvoiceUnavailable
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return InvoiceDownload{}, ErrInvoiceInvalidInput
	}

	order, err := s.orders.GetOrder(ctx, id)
	if err != nil {
		return InvoiceDownload{}, err
	}
	bucket, object, ok := splitObjectURL(order.InvoiceURL)
	if !ok {
		return InvoiceDownload{}, ErrInvoiceNotReady
	}

	url, expiresAt, err := s.signer.SignedDownloadURL(ctx, bucket, object, s.urlExpiry)
	if err != nil {
		return InvoiceDownload{}, ErrInvoiceUnavailable
	}
	return InvoiceDownload{URL: url, ExpiresAt: expiresAt}, nil
}

// splitObjectURL decomposes a gs://bucket/object URL.
func splitObjectURL(raw string) (string, string, bool) {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "gs://") {
		return "", "", false
	}
	rest := strings.TrimPrefix(trimmed, "gs://")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
