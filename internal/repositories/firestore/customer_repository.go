package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/pharmadirect/api/internal/domain"
	pfirestore "github.com/pharmadirect/api/internal/platform/firestore"
	"github.com/pharmadirect/api/internal/repositories"
)

const customersCollection = "customers"

type customerDocument struct {
	BusinessName  string    `firestore:"businessName"`
	Email         string    `firestore:"email"`
	Phone         string    `firestore:"phone,omitempty"`
	LicenseNumber string    `firestore:"licenseNumber,omitempty"`
	Verification  string    `firestore:"verificationStatus"`
	Roles         []string  `firestore:"roles,omitempty"`
	IsActive      bool      `firestore:"isActive"`
	CreatedAt     time.Time `firestore:"createdAt"`
	UpdatedAt     time.Time `firestore:"updatedAt"`
}

func (d customerDocument) toDomain(id string) domain.Customer {
	return domain.Customer{
		ID:            id,
		BusinessName:  d.BusinessName,
		Email:         d.Email,
		Phone:         d.Phone,
		LicenseNumber: d.LicenseNumber,
		Verification:  domain.VerificationStatus(d.Verification),
		Roles:         append([]string(nil), d.Roles...),
		IsActive:      d.IsActive,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

// CustomerRepository reads wholesale account projections from Firestore.
type CustomerRepository struct {
	base *pfirestore.BaseRepository[customerDocument]
}

// NewCustomerRepository constructs a Firestore-backed customer repository.
func NewCustomerRepository(provider *pfirestore.Provider) (*CustomerRepository, error) {
	if provider == nil {
		return nil, errors.New("customer repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[customerDocument](provider, customersCollection, nil, nil)
	return &CustomerRepository{base: base}, nil
}

// FindByID loads the customer account by ID.
func (r *CustomerRepository) FindByID(ctx context.Context, customerID string) (domain.Customer, error) {
	if r == nil || r.base == nil {
		return domain.Customer{}, errors.New("customer repository not initialised")
	}
	id := strings.TrimSpace(customerID)
	if id == "" {
		return domain.Customer{}, errors.New("customer repository: customer id is required")
	}
	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Customer{}, err
	}
	customer := doc.Data.toDomain(doc.ID)
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = doc.CreateTime
	}
	if customer.UpdatedAt.IsZero() {
		customer.UpdatedAt = doc.UpdateTime
	}
	return customer, nil
}

var _ repositories.CustomerRepository = (*CustomerRepository)(nil)
