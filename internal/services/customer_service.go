package services

import (
	"context"
	"errors"
	"strings"

	"github.com/pharmadirect/api/internal/repositories"
)

var (
	// ErrCustomerInvalidInput indicates the caller supplied invalid input.
	ErrCustomerInvalidInput = errors.New("customer service: invalid input")
	// ErrCustomerNotFound indicates the customer does not exist.
	ErrCustomerNotFound = errors.New("customer service: customer not found")
	// ErrCustomerUnavailable indicates the backend cannot be reached.
	ErrCustomerUnavailable = errors.New("customer service: unavailable")
)

// CustomerServiceDeps wires dependencies for customer profile reads.
type CustomerServiceDeps struct {
	Customers repositories.CustomerRepository
	Addresses repositories.AddressRepository
}

type customerService struct {
	customers repositories.CustomerRepository
	addresses repositories.AddressRepository
}

// NewCustomerService constructs a CustomerService enforcing dependency validation.
func NewCustomerService(deps CustomerServiceDeps) (CustomerService, error) {
	if deps.Customers == nil {
		return nil, errors.New("customer service: customer repository is required")
	}
	if deps.Addresses == nil {
		return nil, errors.New("customer service: address repository is required")
	}
	return &customerService{customers: deps.Customers, addresses: deps.Addresses}, nil
}

func (s *customerService) GetCustomer(ctx context.Context, customerID string) (Customer, error) {
	id := strings.TrimSpace(customerID)
	if id == "" {
		return Customer{}, ErrCustomerInvalidInput
	}
	customer, err := s.customers.FindByID(ctx, id)
	if err != nil {
		if isRepoNotFound(err) {
			return Customer{}, ErrCustomerNotFound
		}
		return Customer{}, ErrCustomerUnavailable
	}
	return customer, nil
}

func (s *customerService) ListAddresses(ctx context.Context, customerID string) ([]Address, error) {
	id := strings.TrimSpace(customerID)
	if id == "" {
		return nil, ErrCustomerInvalidInput
	}
	addresses, err := s.addresses.ListByCustomer(ctx, id)
	if err != nil {
		return nil, ErrCustomerUnavailable
	}
	return addresses, nil
}
