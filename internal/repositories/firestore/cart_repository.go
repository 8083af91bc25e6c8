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

const cartsCollection = "carts"

type cartItemDocument struct {
	ID        string     `firestore:"id"`
	ProductID string     `firestore:"productId"`
	Quantity  int        `firestore:"quantity"`
	AddedAt   time.Time  `firestore:"addedAt"`
	UpdatedAt *time.Time `firestore:"updatedAt,omitempty"`
}

type cartDocument struct {
	CustomerID string             `firestore:"customerId"`
	Items      []cartItemDocument `firestore:"items"`
	UpdatedAt  time.Time          `firestore:"updatedAt"`
}

func (d cartDocument) toDomain(id string) domain.Cart {
	items := make([]domain.CartItem, 0, len(d.Items))
	for _, item := range d.Items {
		items = append(items, domain.CartItem{
			ID:        item.ID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			AddedAt:   item.AddedAt,
			UpdatedAt: item.UpdatedAt,
		})
	}
	customerID := d.CustomerID
	if customerID == "" {
		customerID = id
	}
	return domain.Cart{
		ID:         id,
		CustomerID: customerID,
		Items:      items,
		UpdatedAt:  d.UpdatedAt,
	}
}

// CartRepository persists the per-customer cart as a single document keyed by
// customer ID with its items embedded. A missing document is an empty cart.
type CartRepository struct {
	base *pfirestore.BaseRepository[cartDocument]
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[cartDocument](provider, cartsCollection, nil, nil)
	return &CartRepository{base: base}, nil
}

// GetCart loads the customer's cart. A missing document yields an empty cart
// rather than an error.
func (r *CartRepository) GetCart(ctx context.Context, customerID string) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	id := strings.TrimSpace(customerID)
	if id == "" {
		return domain.Cart{}, errors.New("cart repository: customer id is required")
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return domain.Cart{ID: id, CustomerID: id}, nil
		}
		return domain.Cart{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// SaveItems replaces the cart's item list.
func (r *CartRepository) SaveItems(ctx context.Context, customerID string, items []domain.CartItem) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	id := strings.TrimSpace(customerID)
	if id == "" {
		return domain.Cart{}, errors.New("cart repository: customer id is required")
	}

	now := time.Now().UTC()
	docs := make([]cartItemDocument, 0, len(items))
	for _, item := range items {
		if strings.TrimSpace(item.ProductID) == "" {
			return domain.Cart{}, errors.New("cart repository: item product id is required")
		}
		if item.Quantity <= 0 {
			return domain.Cart{}, errors.New("cart repository: item quantity must be > 0")
		}
		addedAt := item.AddedAt.UTC()
		if addedAt.IsZero() {
			addedAt = now
		}
		docs = append(docs, cartItemDocument{
			ID:        item.ID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			AddedAt:   addedAt,
			UpdatedAt: item.UpdatedAt,
		})
	}

	doc := cartDocument{
		CustomerID: id,
		Items:      docs,
		UpdatedAt:  now,
	}
	if _, err := r.base.Set(ctx, id, doc); err != nil {
		return domain.Cart{}, err
	}
	return doc.toDomain(id), nil
}

// Clear removes the customer's cart document. Clearing an absent cart is not
// an error.
func (r *CartRepository) Clear(ctx context.Context, customerID string) error {
	if r == nil || r.base == nil {
		return errors.New("cart repository not initialised")
	}
	id := strings.TrimSpace(customerID)
	if id == "" {
		return errors.New("cart repository: customer id is required")
	}
	ref, err := r.base.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil {
		return pfirestore.WrapError("carts.delete", err)
	}
	return nil
}

var _ repositories.CartRepository = (*CartRepository)(nil)
