package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	domain "github.com/pharmadirect/api/internal/domain"
	pfirestore "github.com/pharmadirect/api/internal/platform/firestore"
	"github.com/pharmadirect/api/internal/repositories"
)

const addressCollectionPattern = "customers/%s/addresses"

type addressDocument struct {
	Label      string     `firestore:"label,omitempty"`
	Recipient  string     `firestore:"recipient,omitempty"`
	Line1      string     `firestore:"line1"`
	Line2      *string    `firestore:"line2,omitempty"`
	City       string     `firestore:"city"`
	PostalCode string     `firestore:"postalCode,omitempty"`
	Phone      *string    `firestore:"phone,omitempty"`
	Latitude   *float64   `firestore:"latitude,omitempty"`
	Longitude  *float64   `firestore:"longitude,omitempty"`
	IsDefault  bool       `firestore:"isDefault"`
	CreatedAt  time.Time  `firestore:"createdAt"`
	UpdatedAt  time.Time  `firestore:"updatedAt"`
}

func (d addressDocument) toDomain(customerID, id string) domain.Address {
	return domain.Address{
		ID:         id,
		CustomerID: customerID,
		Label:      d.Label,
		Recipient:  d.Recipient,
		Line1:      d.Line1,
		Line2:      d.Line2,
		City:       d.City,
		PostalCode: d.PostalCode,
		Phone:      d.Phone,
		Latitude:   d.Latitude,
		Longitude:  d.Longitude,
		IsDefault:  d.IsDefault,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}

// AddressRepository reads delivery addresses stored per customer.
type AddressRepository struct {
	provider *pfirestore.Provider
}

// NewAddressRepository constructs a Firestore-backed address repository.
func NewAddressRepository(provider *pfirestore.Provider) (*AddressRepository, error) {
	if provider == nil {
		return nil, errors.New("address repository requires firestore provider")
	}
	return &AddressRepository{provider: provider}, nil
}

// FindByID loads an address belonging to the given customer.
func (r *AddressRepository) FindByID(ctx context.Context, customerID string, addressID string) (domain.Address, error) {
	coll, err := r.collection(ctx, customerID)
	if err != nil {
		return domain.Address{}, err
	}
	id := strings.TrimSpace(addressID)
	if id == "" {
		return domain.Address{}, errors.New("address repository: address id is required")
	}

	snap, err := coll.Doc(id).Get(ctx)
	if err != nil {
		return domain.Address{}, pfirestore.WrapError("addresses.get", err)
	}
	var doc addressDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Address{}, fmt.Errorf("decode address %s: %w", id, err)
	}
	return doc.toDomain(strings.TrimSpace(customerID), snap.Ref.ID), nil
}

// ListByCustomer returns the customer's addresses, default first, then most
// recently updated.
func (r *AddressRepository) ListByCustomer(ctx context.Context, customerID string) ([]domain.Address, error) {
	coll, err := r.collection(ctx, customerID)
	if err != nil {
		return nil, err
	}

	iter := coll.
		OrderBy("isDefault", firestore.Desc).
		OrderBy("updatedAt", firestore.Desc).
		Documents(ctx)
	defer iter.Stop()

	var results []domain.Address
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("addresses.list", err)
		}
		var doc addressDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode address %s: %w", snap.Ref.ID, err)
		}
		results = append(results, doc.toDomain(strings.TrimSpace(customerID), snap.Ref.ID))
	}
	return results, nil
}

func (r *AddressRepository) collection(ctx context.Context, customerID string) (*firestore.CollectionRef, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("address repository not initialised")
	}
	id := strings.TrimSpace(customerID)
	if id == "" {
		return nil, errors.New("address repository: customer id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(fmt.Sprintf(addressCollectionPattern, id)), nil
}

var _ repositories.AddressRepository = (*AddressRepository)(nil)
