package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/pharmadirect/api/internal/services"
)

type stubInvoiceService struct {
	promoteFunc  func(ctx context.Context, cmd services.PromoteInvoiceCommand) (services.Order, error)
	downloadFunc func(ctx context.Context, orderID string) (services.InvoiceDownload, error)
}

func (s *stubInvoiceService) PromoteInvoice(ctx context.Context, cmd services.PromoteInvoiceCommand) (services.Order, error) {
	if s.promoteFunc != nil {
		return s.promoteFunc(ctx, cmd)
	}
	return services.Order{}, nil
}

func (s *stubInvoiceService) InvoiceDownloadURL(ctx context.Context, orderID string) (services.InvoiceDownload, error) {
	if s.downloadFunc != nil {
		return s.downloadFunc(ctx, orderID)
	}
	return services.InvoiceDownload{}, nil
}

func TestInternalHandlersAttachInvoiceSuccess(t *testing.T) {
	service := &stubInvoiceService{
		promoteFunc: func(ctx context.Context, cmd services.PromoteInvoiceCommand) (services.Order, error) {
			if cmd.OrderID != "order-1" {
				t.Fatalf("unexpected order id %q", cmd.OrderID)
			}
			if cmd.ObjectPath != "staging/order-1.pdf" {
				t.Fatalf("unexpected object path %q", cmd.ObjectPath)
			}
			if cmd.Actor != invoiceCallbackActor {
				t.Fatalf("expected worker actor, got %q", cmd.Actor)
			}
			order := sampleOrder("order-1", "cust-1")
			order.InvoiceURL = "gs://pd-invoices/invoices/orders/order-1/PD-20250304-0001.pdf"
			return order, nil
		},
	}

	handler := NewInternalHandlers(service)
	router := chi.NewRouter()
	router.Route("/internal", handler.Routes)

	body := `{"object_path":"staging/order-1.pdf"}`
	req := httptest.NewRequest(http.MethodPost, "/internal/orders/order-1/invoice", strings.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp orderResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Order.InvoiceURL == "" {
		t.Fatalf("expected invoice url on response")
	}
}

func TestInternalHandlersAttachInvoiceOrderNotFound(t *testing.T) {
	service := &stubInvoiceService{
		promoteFunc: func(ctx context.Context, cmd services.PromoteInvoiceCommand) (services.Order, error) {
			return services.Order{}, services.ErrOrderNotFound
		},
	}

	handler := NewInternalHandlers(service)
	router := chi.NewRouter()
	router.Route("/internal", handler.Routes)

	req := httptest.NewRequest(http.MethodPost, "/internal/orders/missing/invoice", strings.NewReader(`{"object_path":"staging/missing.pdf"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestInternalHandlersAttachInvoiceStorageUnavailable(t *testing.T) {
	service := &stubInvoiceService{
		promoteFunc: func(ctx context.Context, cmd services.PromoteInvoiceCommand) (services.Order, error) {
			return services.Order{}, services.ErrInvoiceUnavailable
		},
	}

	handler := NewInternalHandlers(service)
	router := chi.NewRouter()
	router.Route("/internal", handler.Routes)

	req := httptest.NewRequest(http.MethodPost, "/internal/orders/order-1/invoice", strings.NewReader(`{"object_path":"staging/order-1.pdf"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}

func TestInternalHandlersAttachInvoiceInvalidBody(t *testing.T) {
	handler := NewInternalHandlers(&stubInvoiceService{})
	router := chi.NewRouter()
	router.Route("/internal", handler.Routes)

	req := httptest.NewRequest(http.MethodPost, "/internal/orders/order-1/invoice", strings.NewReader(`{"object_path":`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}
