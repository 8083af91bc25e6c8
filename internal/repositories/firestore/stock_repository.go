package firestore

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/oklog/ulid/v2"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/pharmadirect/api/internal/domain"
	pfirestore "github.com/pharmadirect/api/internal/platform/firestore"
	"github.com/pharmadirect/api/internal/repositories"
)

const stockMovementsCollection = "stockMovements"

type movementDocument struct {
	ProductID      string    `firestore:"productId"`
	QuantityChange int       `firestore:"quantityChange"`
	QuantityBefore int       `firestore:"quantityBefore"`
	QuantityAfter  int       `firestore:"quantityAfter"`
	Reason         string    `firestore:"reason"`
	OrderRef       string    `firestore:"orderRef,omitempty"`
	ReversesRef    string    `firestore:"reversesRef,omitempty"`
	Notes          string    `firestore:"notes,omitempty"`
	Actor          string    `firestore:"actor,omitempty"`
	CreatedAt      time.Time `firestore:"createdAt"`
}

func (d movementDocument) toDomain(id string) domain.StockMovement {
	movement := domain.StockMovement{
		ID:             id,
		ProductID:      d.ProductID,
		QuantityChange: d.QuantityChange,
		QuantityBefore: d.QuantityBefore,
		QuantityAfter:  d.QuantityAfter,
		Reason:         domain.MovementReason(d.Reason),
		Notes:          d.Notes,
		Actor:          d.Actor,
		CreatedAt:      d.CreatedAt,
	}
	if d.OrderRef != "" {
		ref := d.OrderRef
		movement.OrderRef = &ref
	}
	if d.ReversesRef != "" {
		ref := d.ReversesRef
		movement.ReversesRef = &ref
	}
	return movement
}

// StockRepository owns the stock ledger: the authoritative quantity on the
// product document plus the append-only movement log. All mutations run as
// Firestore transactions.
type StockRepository struct {
	provider  *pfirestore.Provider
	products  *pfirestore.BaseRepository[productDocument]
	movements *pfirestore.BaseRepository[movementDocument]
	newID     func() string
}

// NewStockRepository constructs a Firestore-backed stock ledger repository.
func NewStockRepository(provider *pfirestore.Provider) (*StockRepository, error) {
	if provider == nil {
		return nil, errors.New("stock repository requires firestore provider")
	}
	return &StockRepository{
		provider:  provider,
		products:  pfirestore.NewBaseRepository[productDocument](provider, productsCollection, nil, nil),
		movements: pfirestore.NewBaseRepository[movementDocument](provider, stockMovementsCollection, nil, nil),
		newID:     func() string { return ulid.Make().String() },
	}, nil
}

// Adjust applies a manual quantity change and appends the matching ledger row.
func (r *StockRepository) Adjust(ctx context.Context, req repositories.StockAdjustRequest) (domain.StockMovement, error) {
	if r == nil || r.provider == nil {
		return domain.StockMovement{}, errors.New("stock repository not initialised")
	}
	productID := strings.TrimSpace(req.ProductID)
	if productID == "" {
		return domain.StockMovement{}, errors.New("stock adjust: product id is required")
	}
	if req.QuantityChange == 0 {
		return domain.StockMovement{}, errors.New("stock adjust: quantity change must be non-zero")
	}
	if !domain.ValidMovementReason(req.Reason) {
		return domain.StockMovement{}, fmt.Errorf("stock adjust: unknown reason %q", req.Reason)
	}

	now := req.Now.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var movement domain.StockMovement
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		productRef, err := r.products.DocumentRef(ctx, productID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(productRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return repositories.NewStockError(repositories.StockErrorProductNotFound, fmt.Sprintf("product %s not found", productID), err)
			}
			return err
		}
		var productDoc productDocument
		if err := snap.DataTo(&productDoc); err != nil {
			return fmt.Errorf("decode product %s: %w", productID, err)
		}

		before := productDoc.StockQuantity
		after := before + req.QuantityChange
		if after < 0 {
			return repositories.NewStockError(repositories.StockErrorWouldGoNegative,
				fmt.Sprintf("adjustment of %d would drop product %s below zero (current %d)", req.QuantityChange, productID, before), nil)
		}

		if err := tx.Update(productRef, []firestore.Update{
			{Path: "stockQuantity", Value: after},
			{Path: "updatedAt", Value: now},
		}); err != nil {
			return err
		}

		movementID := r.newID()
		movementDoc := movementDocument{
			ProductID:      productID,
			QuantityChange: req.QuantityChange,
			QuantityBefore: before,
			QuantityAfter:  after,
			Reason:         string(req.Reason),
			Notes:          strings.TrimSpace(req.Notes),
			Actor:          strings.TrimSpace(req.Actor),
			CreatedAt:      now,
		}
		movementRef, err := r.movements.DocumentRef(ctx, movementID)
		if err != nil {
			return err
		}
		if err := tx.Create(movementRef, movementDoc); err != nil {
			return err
		}
		movement = movementDoc.toDomain(movementID)
		return nil
	})
	if err != nil {
		return domain.StockMovement{}, wrapStockError("stock.adjust", err)
	}
	return movement, nil
}

// ReverseOrderDeductions restores stock for every unreversed sale deduction of
// the given order. Calling it again after a full reversal writes nothing.
func (r *StockRepository) ReverseOrderDeductions(ctx context.Context, req repositories.StockReverseRequest) ([]domain.StockMovement, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("stock repository not initialised")
	}
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		return nil, errors.New("stock reverse: order id is required")
	}

	now := req.Now.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var reversals []domain.StockMovement
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		plan, err := planStockReversal(ctx, tx, r.provider, r.products, orderID)
		if err != nil {
			return err
		}
		written, err := applyStockReversal(ctx, tx, r.products, r.movements, plan, stockReversalParams{
			OrderID: orderID,
			Actor:   strings.TrimSpace(req.Actor),
			Notes:   strings.TrimSpace(req.Notes),
			Now:     now,
			NewID:   r.newID,
		})
		if err != nil {
			return err
		}
		reversals = written
		return nil
	})
	if err != nil {
		return nil, wrapStockError("stock.reverse", err)
	}
	return reversals, nil
}

// ListMovements returns ledger rows for a product, newest first.
func (r *StockRepository) ListMovements(ctx context.Context, productID string, pager domain.Pagination) (domain.CursorPage[domain.StockMovement], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.StockMovement]{}, errors.New("stock repository not initialised")
	}
	id := strings.TrimSpace(productID)
	if id == "" {
		return domain.CursorPage[domain.StockMovement]{}, errors.New("stock movements: product id is required")
	}

	pageSize := pager.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 200 {
		pageSize = 200
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.StockMovement]{}, wrapStockError("stock.listMovements", err)
	}

	query := client.Collection(stockMovementsCollection).Query.
		Where("productId", "==", id).
		OrderBy("createdAt", firestore.Desc).
		OrderBy(firestore.DocumentID, firestore.Desc).
		Limit(pageSize + 1)

	if token := strings.TrimSpace(pager.PageToken); token != "" {
		createdAt, docID, err := decodeTimePageToken(token)
		if err != nil {
			return domain.CursorPage[domain.StockMovement]{}, wrapStockError("stock.listMovements", err)
		}
		query = query.StartAfter(createdAt, docID)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	type row struct {
		movement domain.StockMovement
		id       string
	}
	var rows []row
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.StockMovement]{}, wrapStockError("stock.listMovements", err)
		}
		var doc movementDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.StockMovement]{}, fmt.Errorf("decode stock movement %s: %w", snap.Ref.ID, err)
		}
		rows = append(rows, row{movement: doc.toDomain(snap.Ref.ID), id: snap.Ref.ID})
	}

	hasMore := len(rows) > pageSize
	if hasMore {
		rows = rows[:pageSize]
	}

	items := make([]domain.StockMovement, 0, len(rows))
	for _, entry := range rows {
		items = append(items, entry.movement)
	}

	var nextToken string
	if hasMore && len(rows) > 0 {
		last := rows[len(rows)-1]
		nextToken = encodeTimePageToken(last.movement.CreatedAt, last.id)
	}

	return domain.CursorPage[domain.StockMovement]{
		Items:         items,
		NextPageToken: nextToken,
	}, nil
}

// SumMovements replays the full ledger for a product. Used by the
// reconciliation check, never on the order path.
func (r *StockRepository) SumMovements(ctx context.Context, productID string) (int, error) {
	if r == nil || r.provider == nil {
		return 0, errors.New("stock repository not initialised")
	}
	id := strings.TrimSpace(productID)
	if id == "" {
		return 0, errors.New("stock movements: product id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return 0, wrapStockError("stock.sumMovements", err)
	}

	iter := client.Collection(stockMovementsCollection).Query.
		Where("productId", "==", id).
		Documents(ctx)
	defer iter.Stop()

	total := 0
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return 0, wrapStockError("stock.sumMovements", err)
		}
		var doc movementDocument
		if err := snap.DataTo(&doc); err != nil {
			return 0, fmt.Errorf("decode stock movement %s: %w", snap.Ref.ID, err)
		}
		total += doc.QuantityChange
	}
	return total, nil
}

// stockReversalPlan captures the reads needed to reverse an order's
// deductions so all transaction reads complete before any write.
type stockReversalPlan struct {
	entries []stockReversalEntry
}

type stockReversalEntry struct {
	saleID     string
	sale       movementDocument
	productRef *firestore.DocumentRef
	before     int
}

type stockReversalParams struct {
	OrderID string
	Actor   string
	Notes   string
	Now     time.Time
	NewID   func() string
}

// planStockReversal reads the order's ledger rows and the affected product
// documents inside the transaction. Sales that already have a compensating
// row are skipped, which makes the reversal idempotent.
func planStockReversal(ctx context.Context, tx *firestore.Transaction, provider *pfirestore.Provider, products *pfirestore.BaseRepository[productDocument], orderID string) (stockReversalPlan, error) {
	client, err := provider.Client(ctx)
	if err != nil {
		return stockReversalPlan{}, err
	}

	query := client.Collection(stockMovementsCollection).Query.
		Where("orderRef", "==", orderID).
		OrderBy(firestore.DocumentID, firestore.Asc)

	iter := tx.Documents(query)
	defer iter.Stop()

	sales := make(map[string]movementDocument)
	reversed := make(map[string]bool)
	order := make([]string, 0, 8)
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return stockReversalPlan{}, err
		}
		var doc movementDocument
		if err := snap.DataTo(&doc); err != nil {
			return stockReversalPlan{}, fmt.Errorf("decode stock movement %s: %w", snap.Ref.ID, err)
		}
		if doc.ReversesRef != "" {
			reversed[doc.ReversesRef] = true
			continue
		}
		if doc.Reason == string(domain.MovementReasonSale) {
			sales[snap.Ref.ID] = doc
			order = append(order, snap.Ref.ID)
		}
	}

	plan := stockReversalPlan{}
	for _, saleID := range order {
		if reversed[saleID] {
			continue
		}
		sale := sales[saleID]
		productRef, err := products.DocumentRef(ctx, sale.ProductID)
		if err != nil {
			return stockReversalPlan{}, err
		}
		snap, err := tx.Get(productRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return stockReversalPlan{}, repositories.NewStockError(repositories.StockErrorProductNotFound, fmt.Sprintf("product %s not found", sale.ProductID), err)
			}
			return stockReversalPlan{}, err
		}
		var productDoc productDocument
		if err := snap.DataTo(&productDoc); err != nil {
			return stockReversalPlan{}, fmt.Errorf("decode product %s: %w", sale.ProductID, err)
		}
		plan.entries = append(plan.entries, stockReversalEntry{
			saleID:     saleID,
			sale:       sale,
			productRef: productRef,
			before:     productDoc.StockQuantity,
		})
	}
	return plan, nil
}

// applyStockReversal writes the compensating movements and product updates for
// a previously built plan.
func applyStockReversal(ctx context.Context, tx *firestore.Transaction, products *pfirestore.BaseRepository[productDocument], movements *pfirestore.BaseRepository[movementDocument], plan stockReversalPlan, params stockReversalParams) ([]domain.StockMovement, error) {
	written := make([]domain.StockMovement, 0, len(plan.entries))

	// Deductions for the same product accumulate when an order has several
	// sale rows for it.
	running := make(map[string]int, len(plan.entries))
	for _, entry := range plan.entries {
		before, ok := running[entry.sale.ProductID]
		if !ok {
			before = entry.before
		}
		restore := -entry.sale.QuantityChange
		after := before + restore
		running[entry.sale.ProductID] = after

		if err := tx.Update(entry.productRef, []firestore.Update{
			{Path: "stockQuantity", Value: after},
			{Path: "updatedAt", Value: params.Now},
		}); err != nil {
			return nil, err
		}

		movementID := params.NewID()
		doc := movementDocument{
			ProductID:      entry.sale.ProductID,
			QuantityChange: restore,
			QuantityBefore: before,
			QuantityAfter:  after,
			Reason:         string(domain.MovementReasonReturn),
			OrderRef:       params.OrderID,
			ReversesRef:    entry.saleID,
			Notes:          params.Notes,
			Actor:          params.Actor,
			CreatedAt:      params.Now,
		}
		movementRef, err := movements.DocumentRef(ctx, movementID)
		if err != nil {
			return nil, err
		}
		if err := tx.Create(movementRef, doc); err != nil {
			return nil, err
		}
		written = append(written, doc.toDomain(movementID))
	}
	return written, nil
}

func encodeTimePageToken(at time.Time, docID string) string {
	raw := fmt.Sprintf("%s|%s", at.UTC().Format(time.RFC3339Nano), docID)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeTimePageToken(token string) (time.Time, string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("invalid page token: %w", err)
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return time.Time{}, "", errors.New("invalid page token")
	}
	at, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return time.Time{}, "", fmt.Errorf("invalid page token: %w", err)
	}
	return at, parts[1], nil
}

func wrapStockError(op string, err error) error {
	if err == nil {
		return nil
	}
	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		if stockErr.Op == "" {
			stockErr.Op = op
		}
		return stockErr
	}
	return pfirestore.WrapError(op, err)
}

var _ repositories.StockRepository = (*StockRepository)(nil)
