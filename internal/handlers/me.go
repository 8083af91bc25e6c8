package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pharmadirect/api/internal/platform/auth"
	"github.com/pharmadirect/api/internal/platform/httpx"
	"github.com/pharmadirect/api/internal/services"
)

// MeHandlers exposes authenticated profile endpoints for the current customer.
type MeHandlers struct {
	authn     *auth.Authenticator
	customers services.CustomerService
}

// NewMeHandlers constructs handlers enforcing Firebase authentication before invoking the customer service.
func NewMeHandlers(authn *auth.Authenticator, customers services.CustomerService) *MeHandlers {
	return &MeHandlers{
		authn:     authn,
		customers: customers,
	}
}

// Routes wires the /me endpoints onto the provided router.
func (h *MeHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.getProfile)
	r.Get("/addresses", h.listAddresses)
}

func (h *MeHandlers) getProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.customers == nil {
		httpx.WriteError(ctx, w, httpx.NewError("customer_service_unavailable", "customer service is unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	customer, err := h.customers.GetCustomer(ctx, identity.UID)
	if err != nil {
		writeCustomerError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, meResponse{Customer: buildCustomerPayload(customer)})
}

func (h *MeHandlers) listAddresses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.customers == nil {
		httpx.WriteError(ctx, w, httpx.NewError("customer_service_unavailable", "customer service is unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	addresses, err := h.customers.ListAddresses(ctx, identity.UID)
	if err != nil {
		writeCustomerError(ctx, w, err)
		return
	}

	payload := make([]addressPayload, 0, len(addresses))
	for _, addr := range addresses {
		payload = append(payload, buildAddressPayload(addr))
	}
	writeJSONResponse(w, http.StatusOK, addressListResponse{Addresses: payload})
}

type meResponse struct {
	Customer customerPayload `json:"customer"`
}

type customerPayload struct {
	ID                 string   `json:"id"`
	BusinessName       string   `json:"business_name"`
	Email              string   `json:"email"`
	Phone              string   `json:"phone,omitempty"`
	LicenseNumber      string   `json:"license_number,omitempty"`
	VerificationStatus string   `json:"verification_status"`
	Roles              []string `json:"roles,omitempty"`
	IsActive           bool     `json:"is_active"`
	CreatedAt          string   `json:"created_at,omitempty"`
	UpdatedAt          string   `json:"updated_at,omitempty"`
}

type addressListResponse struct {
	Addresses []addressPayload `json:"addresses"`
}

type addressPayload struct {
	ID         string   `json:"id"`
	Label      string   `json:"label,omitempty"`
	Recipient  string   `json:"recipient,omitempty"`
	Line1      string   `json:"line1"`
	Line2      string   `json:"line2,omitempty"`
	City       string   `json:"city"`
	PostalCode string   `json:"postal_code,omitempty"`
	Phone      string   `json:"phone,omitempty"`
	Latitude   *float64 `json:"latitude,omitempty"`
	Longitude  *float64 `json:"longitude,omitempty"`
	IsDefault  bool     `json:"is_default"`
}

func buildCustomerPayload(customer services.Customer) customerPayload {
	return customerPayload{
		ID:                 customer.ID,
		BusinessName:       customer.BusinessName,
		Email:              customer.Email,
		Phone:              customer.Phone,
		LicenseNumber:      customer.LicenseNumber,
		VerificationStatus: string(customer.Verification),
		Roles:              append([]string(nil), customer.Roles...),
		IsActive:           customer.IsActive,
		CreatedAt:          formatTime(customer.CreatedAt),
		UpdatedAt:          formatTime(customer.UpdatedAt),
	}
}

func buildAddressPayload(addr services.Address) addressPayload {
	payload := addressPayload{
		ID:         addr.ID,
		Label:      addr.Label,
		Recipient:  addr.Recipient,
		Line1:      addr.Line1,
		City:       addr.City,
		PostalCode: addr.PostalCode,
		IsDefault:  addr.IsDefault,
	}
	if addr.Line2 != nil {
		payload.Line2 = strings.TrimSpace(*addr.Line2)
	}
	if addr.Phone != nil {
		payload.Phone = strings.TrimSpace(*addr.Phone)
	}
	if addr.Latitude != nil {
		payload.Latitude = cloneFloatPointer(addr.Latitude)
	}
	if addr.Longitude != nil {
		payload.Longitude = cloneFloatPointer(addr.Longitude)
	}
	return payload
}

func cloneFloatPointer(value *float64) *float64 {
	if value == nil {
		return nil
	}
	copy := *value
	return &copy
}

func writeCustomerError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCustomerInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCustomerNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("customer_not_found", "customer not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCustomerUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("customer_service_unavailable", "customer service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("customer_error", "failed to load customer", http.StatusInternalServerError))
	}
}
