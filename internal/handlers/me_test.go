package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/pharmadirect/api/internal/domain"
	"github.com/pharmadirect/api/internal/platform/auth"
	"github.com/pharmadirect/api/internal/services"
)

type stubCustomerService struct {
	getCustomerFunc   func(ctx context.Context, customerID string) (services.Customer, error)
	listAddressesFunc func(ctx context.Context, customerID string) ([]services.Address, error)
}

func (s *stubCustomerService) GetCustomer(ctx context.Context, customerID string) (services.Customer, error) {
	if s.getCustomerFunc == nil {
		return services.Customer{}, nil
	}
	return s.getCustomerFunc(ctx, customerID)
}

func (s *stubCustomerService) ListAddresses(ctx context.Context, customerID string) ([]services.Address, error) {
	if s.listAddressesFunc == nil {
		return nil, nil
	}
	return s.listAddressesFunc(ctx, customerID)
}

func TestMeHandlersGetProfileSuccess(t *testing.T) {
	service := &stubCustomerService{
		getCustomerFunc: func(ctx context.Context, customerID string) (services.Customer, error) {
			if customerID != "cust-1" {
				t.Fatalf("unexpected customer id %q", customerID)
			}
			return services.Customer{
				ID:            "cust-1",
				BusinessName:  "City Pharmacy",
				Email:         "orders@citypharmacy.example",
				LicenseNumber: "PH-1234",
				Verification:  domain.VerificationApproved,
				Roles:         []string{auth.RoleUser},
				IsActive:      true,
				CreatedAt:     time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC),
			}, nil
		},
	}

	handler := NewMeHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/me", handler.Routes)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "cust-1"}))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp meResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Customer.BusinessName != "City Pharmacy" {
		t.Fatalf("expected business name City Pharmacy, got %q", resp.Customer.BusinessName)
	}
	if resp.Customer.VerificationStatus != "approved" {
		t.Fatalf("expected approved verification, got %q", resp.Customer.VerificationStatus)
	}
}

func TestMeHandlersGetProfileNotFound(t *testing.T) {
	service := &stubCustomerService{
		getCustomerFunc: func(ctx context.Context, customerID string) (services.Customer, error) {
			return services.Customer{}, services.ErrCustomerNotFound
		},
	}

	handler := NewMeHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/me", handler.Routes)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "cust-x"}))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestMeHandlersListAddresses(t *testing.T) {
	lat, lng := 41.3275, 19.8187
	service := &stubCustomerService{
		listAddressesFunc: func(ctx context.Context, customerID string) ([]services.Address, error) {
			return []services.Address{
				{
					ID:         "addr-1",
					CustomerID: customerID,
					Label:      "Main branch",
					Line1:      "Rruga e Dibres 12",
					City:       "Tirana",
					Latitude:   &lat,
					Longitude:  &lng,
					IsDefault:  true,
				},
			}, nil
		},
	}

	handler := NewMeHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/me", handler.Routes)

	req := httptest.NewRequest(http.MethodGet, "/me/addresses", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "cust-1"}))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp addressListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Addresses) != 1 || !resp.Addresses[0].IsDefault {
		t.Fatalf("expected one default address, got %#v", resp.Addresses)
	}
	if resp.Addresses[0].Latitude == nil || *resp.Addresses[0].Latitude != 41.3275 {
		t.Fatalf("expected latitude 41.3275, got %#v", resp.Addresses[0].Latitude)
	}
}

func TestMeHandlersUnauthenticated(t *testing.T) {
	handler := NewMeHandlers(nil, &stubCustomerService{})
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	rr := httptest.NewRecorder()
	handler.getProfile(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}
