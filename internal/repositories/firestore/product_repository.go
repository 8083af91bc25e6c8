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

const productsCollection = "products"

type productDocument struct {
	SKU            string    `firestore:"sku"`
	Name           string    `firestore:"name"`
	Manufacturer   string    `firestore:"manufacturer,omitempty"`
	WholesalePrice int64     `firestore:"wholesalePrice"`
	StockQuantity  int       `firestore:"stockQuantity"`
	IsActive       bool      `firestore:"isActive"`
	IsVisible      bool      `firestore:"isVisible"`
	RequiresRx     bool      `firestore:"requiresRx"`
	CreatedAt      time.Time `firestore:"createdAt"`
	UpdatedAt      time.Time `firestore:"updatedAt"`
}

func (d productDocument) toDomain(id string) domain.Product {
	return domain.Product{
		ID:             id,
		SKU:            d.SKU,
		Name:           d.Name,
		Manufacturer:   d.Manufacturer,
		WholesalePrice: d.WholesalePrice,
		StockQuantity:  d.StockQuantity,
		IsActive:       d.IsActive,
		IsVisible:      d.IsVisible,
		RequiresRx:     d.RequiresRx,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

// ProductRepository reads catalog projections from Firestore.
type ProductRepository struct {
	base *pfirestore.BaseRepository[productDocument]
}

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[productDocument](provider, productsCollection, nil, nil)
	return &ProductRepository{base: base}, nil
}

// FindByID loads a single product by document ID.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if r == nil || r.base == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	id := strings.TrimSpace(productID)
	if id == "" {
		return domain.Product{}, errors.New("product repository: product id is required")
	}
	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// FindByIDs loads the given products, omitting any that do not exist. Cart
// reconciliation relies on the omission to detect removed products.
func (r *ProductRepository) FindByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("product repository not initialised")
	}

	result := make(map[string]domain.Product, len(productIDs))
	for _, raw := range productIDs {
		id := strings.TrimSpace(raw)
		if id == "" {
			continue
		}
		if _, ok := result[id]; ok {
			continue
		}
		doc, err := r.base.Get(ctx, id)
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, err
		}
		result[id] = doc.Data.toDomain(doc.ID)
	}
	return result, nil
}

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr.IsNotFound()
	}
	return false
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)
