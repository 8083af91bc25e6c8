package firestore

import (
	"context"
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

const (
	ordersCollection       = "orders"
	orderHistoryCollection = "orderStatusHistory"
)

type orderItemDocument struct {
	ProductID   string `firestore:"productId"`
	ProductSKU  string `firestore:"productSku"`
	ProductName string `firestore:"productName"`
	UnitPrice   int64  `firestore:"unitPrice"`
	Quantity    int    `firestore:"quantity"`
	TotalPrice  int64  `firestore:"totalPrice"`
}

type orderDocument struct {
	OrderNumber           string              `firestore:"orderNumber"`
	CustomerID            string              `firestore:"customerId"`
	Status                string              `firestore:"status"`
	PaymentStatus         string              `firestore:"paymentStatus"`
	Subtotal              int64               `firestore:"subtotal"`
	DeliveryFee           int64               `firestore:"deliveryFee"`
	Total                 int64               `firestore:"total"`
	DeliveryMethod        string              `firestore:"deliveryMethod"`
	PaymentMethod         string              `firestore:"paymentMethod"`
	DeliveryAddressID     string              `firestore:"deliveryAddressId,omitempty"`
	DeliveryDistanceKM    *float64            `firestore:"deliveryDistanceKm,omitempty"`
	FeePendingConfirm     bool                `firestore:"feePendingConfirm"`
	PreferredDeliveryDate *time.Time          `firestore:"preferredDeliveryDate,omitempty"`
	OrderNotes            string              `firestore:"orderNotes,omitempty"`
	CancelledReason       string              `firestore:"cancelledReason,omitempty"`
	InvoiceURL            string              `firestore:"invoiceUrl,omitempty"`
	Items                 []orderItemDocument `firestore:"items"`
	CreatedAt             time.Time           `firestore:"createdAt"`
	UpdatedAt             time.Time           `firestore:"updatedAt"`
	ConfirmedAt           *time.Time          `firestore:"confirmedAt,omitempty"`
	DispatchedAt          *time.Time          `firestore:"dispatchedAt,omitempty"`
	DeliveredAt           *time.Time          `firestore:"deliveredAt,omitempty"`
	CancelledAt           *time.Time          `firestore:"cancelledAt,omitempty"`
}

func newOrderDocument(order domain.Order) orderDocument {
	items := make([]orderItemDocument, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemDocument{
			ProductID:   item.ProductID,
			ProductSKU:  item.ProductSKU,
			ProductName: item.ProductName,
			UnitPrice:   item.UnitPrice,
			Quantity:    item.Quantity,
			TotalPrice:  item.TotalPrice,
		})
	}
	doc := orderDocument{
		OrderNumber:           order.OrderNumber,
		CustomerID:            order.CustomerID,
		Status:                string(order.Status),
		PaymentStatus:         string(order.PaymentStatus),
		Subtotal:              order.Subtotal,
		DeliveryFee:           order.DeliveryFee,
		Total:                 order.Total,
		DeliveryMethod:        string(order.DeliveryMethod),
		PaymentMethod:         string(order.PaymentMethod),
		DeliveryDistanceKM:    order.DeliveryDistanceKM,
		FeePendingConfirm:     order.FeePendingConfirm,
		PreferredDeliveryDate: order.PreferredDeliveryDate,
		OrderNotes:            order.OrderNotes,
		CancelledReason:       order.CancelledReason,
		InvoiceURL:            order.InvoiceURL,
		Items:                 items,
		CreatedAt:             order.CreatedAt,
		UpdatedAt:             order.UpdatedAt,
		ConfirmedAt:           order.ConfirmedAt,
		DispatchedAt:          order.DispatchedAt,
		DeliveredAt:           order.DeliveredAt,
		CancelledAt:           order.CancelledAt,
	}
	if order.DeliveryAddressID != nil {
		doc.DeliveryAddressID = *order.DeliveryAddressID
	}
	return doc
}

func (d orderDocument) toDomain(id string) domain.Order {
	items := make([]domain.OrderItem, 0, len(d.Items))
	for _, item := range d.Items {
		items = append(items, domain.OrderItem{
			ProductID:   item.ProductID,
			ProductSKU:  item.ProductSKU,
			ProductName: item.ProductName,
			UnitPrice:   item.UnitPrice,
			Quantity:    item.Quantity,
			TotalPrice:  item.TotalPrice,
		})
	}
	order := domain.Order{
		ID:                    id,
		OrderNumber:           d.OrderNumber,
		CustomerID:            d.CustomerID,
		Status:                domain.OrderStatus(d.Status),
		PaymentStatus:         domain.PaymentStatus(d.PaymentStatus),
		Subtotal:              d.Subtotal,
		DeliveryFee:           d.DeliveryFee,
		Total:                 d.Total,
		DeliveryMethod:        domain.DeliveryMethod(d.DeliveryMethod),
		PaymentMethod:         domain.PaymentMethod(d.PaymentMethod),
		DeliveryDistanceKM:    d.DeliveryDistanceKM,
		FeePendingConfirm:     d.FeePendingConfirm,
		PreferredDeliveryDate: d.PreferredDeliveryDate,
		OrderNotes:            d.OrderNotes,
		CancelledReason:       d.CancelledReason,
		InvoiceURL:            d.InvoiceURL,
		Items:                 items,
		CreatedAt:             d.CreatedAt,
		UpdatedAt:             d.UpdatedAt,
		ConfirmedAt:           d.ConfirmedAt,
		DispatchedAt:          d.DispatchedAt,
		DeliveredAt:           d.DeliveredAt,
		CancelledAt:           d.CancelledAt,
	}
	if d.DeliveryAddressID != "" {
		addressID := d.DeliveryAddressID
		order.DeliveryAddressID = &addressID
	}
	return order
}

type historyDocument struct {
	OrderID   string    `firestore:"orderId"`
	Field     string    `firestore:"field"`
	OldStatus string    `firestore:"oldStatus,omitempty"`
	NewStatus string    `firestore:"newStatus"`
	Notes     string    `firestore:"notes,omitempty"`
	Actor     string    `firestore:"actor,omitempty"`
	CreatedAt time.Time `firestore:"createdAt"`
}

func (d historyDocument) toDomain(id string) domain.OrderStatusHistory {
	return domain.OrderStatusHistory{
		ID:        id,
		OrderID:   d.OrderID,
		Field:     domain.HistoryField(d.Field),
		OldStatus: d.OldStatus,
		NewStatus: d.NewStatus,
		Notes:     d.Notes,
		Actor:     d.Actor,
		CreatedAt: d.CreatedAt,
	}
}

// OrderRepository persists orders, item snapshots, and the append-only status
// history. It owns the two multi-entity transactions of the engine: placement
// and status transition.
type OrderRepository struct {
	provider  *pfirestore.Provider
	orders    *pfirestore.BaseRepository[orderDocument]
	history   *pfirestore.BaseRepository[historyDocument]
	products  *pfirestore.BaseRepository[productDocument]
	movements *pfirestore.BaseRepository[movementDocument]
	newID     func() string
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		provider:  provider,
		orders:    pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil),
		history:   pfirestore.NewBaseRepository[historyDocument](provider, orderHistoryCollection, nil, nil),
		products:  pfirestore.NewBaseRepository[productDocument](provider, productsCollection, nil, nil),
		movements: pfirestore.NewBaseRepository[movementDocument](provider, stockMovementsCollection, nil, nil),
		newID:     func() string { return ulid.Make().String() },
	}, nil
}

// Place atomically validates and deducts stock for every line, writes the
// sale movements, creates the order with its item snapshots and the initial
// history row, and clears the customer's cart. When any line cannot be
// satisfied nothing is written and the error carries the full issue list.
func (r *OrderRepository) Place(ctx context.Context, req repositories.PlaceOrderRequest) (repositories.PlaceOrderResult, error) {
	if r == nil || r.provider == nil {
		return repositories.PlaceOrderResult{}, errors.New("order repository not initialised")
	}
	if strings.TrimSpace(req.Order.ID) == "" {
		return repositories.PlaceOrderResult{}, errors.New("order place: order id is required")
	}
	if strings.TrimSpace(req.Order.CustomerID) == "" {
		return repositories.PlaceOrderResult{}, errors.New("order place: customer id is required")
	}
	if len(req.Lines) == 0 {
		return repositories.PlaceOrderResult{}, errors.New("order place: at least one line is required")
	}
	for _, line := range req.Lines {
		if strings.TrimSpace(line.ProductID) == "" {
			return repositories.PlaceOrderResult{}, errors.New("order place: line product id is required")
		}
		if line.Quantity <= 0 {
			return repositories.PlaceOrderResult{}, fmt.Errorf("order place: quantity for %s must be > 0", line.ProductID)
		}
	}

	now := req.Now.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var result repositories.PlaceOrderResult
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		client, err := r.provider.Client(ctx)
		if err != nil {
			return err
		}

		type lineRead struct {
			line       repositories.PlacementLine
			productRef *firestore.DocumentRef
			doc        productDocument
		}

		reads := make([]lineRead, 0, len(req.Lines))
		stocks := make(map[string]int, len(req.Lines))
		var issues []domain.StockIssue
		for _, line := range req.Lines {
			productRef, err := r.products.DocumentRef(ctx, line.ProductID)
			if err != nil {
				return err
			}
			snap, err := tx.Get(productRef)
			if err != nil {
				if status.Code(err) == codes.NotFound {
					issues = append(issues, domain.StockIssue{
						ProductID: line.ProductID,
						Requested: line.Quantity,
						Available: 0,
					})
					continue
				}
				return err
			}
			var doc productDocument
			if err := snap.DataTo(&doc); err != nil {
				return fmt.Errorf("decode product %s: %w", line.ProductID, err)
			}
			if !doc.IsActive || !doc.IsVisible {
				issues = append(issues, domain.StockIssue{
					ProductID:   line.ProductID,
					ProductName: doc.Name,
					Requested:   line.Quantity,
					Available:   0,
				})
				continue
			}
			if _, seen := stocks[line.ProductID]; !seen {
				stocks[line.ProductID] = doc.StockQuantity
			}
			if stocks[line.ProductID] < line.Quantity {
				issues = append(issues, domain.StockIssue{
					ProductID:   line.ProductID,
					ProductName: doc.Name,
					Requested:   line.Quantity,
					Available:   stocks[line.ProductID],
				})
				continue
			}
			stocks[line.ProductID] -= line.Quantity
			reads = append(reads, lineRead{line: line, productRef: productRef, doc: doc})
		}
		if len(issues) > 0 {
			return &repositories.StockError{
				Code:    repositories.StockErrorInsufficient,
				Message: fmt.Sprintf("%d line(s) cannot be satisfied", len(issues)),
				Issues:  issues,
			}
		}

		order := req.Order
		order.Status = domain.OrderStatusNew
		order.PaymentStatus = domain.PaymentStatusPending
		order.CreatedAt = now
		order.UpdatedAt = now

		order.Items = make([]domain.OrderItem, 0, len(reads))
		order.Subtotal = 0
		movements := make([]domain.StockMovement, 0, len(reads))
		written := make(map[string]int, len(reads))
		for _, read := range reads {
			before, ok := written[read.line.ProductID]
			if !ok {
				before = read.doc.StockQuantity
			}
			after := before - read.line.Quantity
			written[read.line.ProductID] = after

			if err := tx.Update(read.productRef, []firestore.Update{
				{Path: "stockQuantity", Value: after},
				{Path: "updatedAt", Value: now},
			}); err != nil {
				return err
			}

			movementID := r.newID()
			movementDoc := movementDocument{
				ProductID:      read.line.ProductID,
				QuantityChange: -read.line.Quantity,
				QuantityBefore: before,
				QuantityAfter:  after,
				Reason:         string(domain.MovementReasonSale),
				OrderRef:       order.ID,
				Actor:          req.Actor,
				CreatedAt:      now,
			}
			movementRef, err := r.movements.DocumentRef(ctx, movementID)
			if err != nil {
				return err
			}
			if err := tx.Create(movementRef, movementDoc); err != nil {
				return err
			}
			movements = append(movements, movementDoc.toDomain(movementID))

			lineTotal := read.doc.WholesalePrice * int64(read.line.Quantity)
			order.Items = append(order.Items, domain.OrderItem{
				ProductID:   read.line.ProductID,
				ProductSKU:  read.doc.SKU,
				ProductName: read.doc.Name,
				UnitPrice:   read.doc.WholesalePrice,
				Quantity:    read.line.Quantity,
				TotalPrice:  lineTotal,
			})
			order.Subtotal += lineTotal
		}
		order.Total = order.Subtotal + order.DeliveryFee

		orderRef, err := r.orders.DocumentRef(ctx, order.ID)
		if err != nil {
			return err
		}
		if err := tx.Create(orderRef, newOrderDocument(order)); err != nil {
			return err
		}

		historyID := r.newID()
		historyRef, err := r.history.DocumentRef(ctx, historyID)
		if err != nil {
			return err
		}
		if err := tx.Create(historyRef, historyDocument{
			OrderID:   order.ID,
			Field:     string(domain.HistoryFieldStatus),
			NewStatus: string(domain.OrderStatusNew),
			Actor:     req.Actor,
			CreatedAt: now,
		}); err != nil {
			return err
		}

		cartRef := client.Collection(cartsCollection).Doc(order.CustomerID)
		if err := tx.Delete(cartRef); err != nil {
			return err
		}

		result = repositories.PlaceOrderResult{Order: order, Movements: movements}
		return nil
	})
	if err != nil {
		return repositories.PlaceOrderResult{}, wrapOrderError("order.place", err)
	}
	return result, nil
}

// FindByID loads a single order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.orders == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}
	doc, err := r.orders.Get(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// List returns orders matching the filter, newest first.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}

	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, wrapOrderError("order.list", err)
	}

	query := client.Collection(ordersCollection).Query
	if customerID := strings.TrimSpace(filter.CustomerID); customerID != "" {
		query = query.Where("customerId", "==", customerID)
	}
	switch len(filter.Status) {
	case 0:
	case 1:
		query = query.Where("status", "==", filter.Status[0])
	default:
		query = query.Where("status", "in", filter.Status)
	}
	if filter.DateRange.From != nil {
		query = query.Where("createdAt", ">=", filter.DateRange.From.UTC())
	}
	if filter.DateRange.To != nil {
		query = query.Where("createdAt", "<=", filter.DateRange.To.UTC())
	}
	query = query.
		OrderBy("createdAt", firestore.Desc).
		OrderBy(firestore.DocumentID, firestore.Desc).
		Limit(pageSize + 1)

	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		createdAt, docID, err := decodeTimePageToken(token)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, wrapOrderError("order.list", err)
		}
		query = query.StartAfter(createdAt, docID)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var orders []domain.Order
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.Order]{}, wrapOrderError("order.list", err)
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("decode order %s: %w", snap.Ref.ID, err)
		}
		orders = append(orders, doc.toDomain(snap.Ref.ID))
	}

	hasMore := len(orders) > pageSize
	if hasMore {
		orders = orders[:pageSize]
	}
	var nextToken string
	if hasMore && len(orders) > 0 {
		last := orders[len(orders)-1]
		nextToken = encodeTimePageToken(last.CreatedAt, last.ID)
	}

	return domain.CursorPage[domain.Order]{
		Items:         orders,
		NextPageToken: nextToken,
	}, nil
}

// Transition atomically re-validates the requested step against the stored
// order, persists the mutated order, and appends the history row. When
// RestoreStock is set the order's sale deductions are reversed in the same
// transaction.
func (r *OrderRepository) Transition(ctx context.Context, req repositories.OrderTransitionRequest) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order transition: order id is required")
	}
	if req.Validate == nil {
		return domain.Order{}, errors.New("order transition: validate function is required")
	}

	now := req.Now.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var updated domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, err := r.orders.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(orderRef)
		if err != nil {
			return err
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode order %s: %w", orderID, err)
		}
		current := doc.toDomain(snap.Ref.ID)
		oldStatus := historyOldStatus(current, req.Field)

		mutated, err := req.Validate(current)
		if err != nil {
			return err
		}
		mutated.ID = current.ID
		mutated.UpdatedAt = now

		var plan stockReversalPlan
		if req.RestoreStock {
			plan, err = planStockReversal(ctx, tx, r.provider, r.products, orderID)
			if err != nil {
				return err
			}
		}

		if err := tx.Set(orderRef, newOrderDocument(mutated)); err != nil {
			return err
		}

		historyID := r.newID()
		historyRef, err := r.history.DocumentRef(ctx, historyID)
		if err != nil {
			return err
		}
		if err := tx.Create(historyRef, historyDocument{
			OrderID:   orderID,
			Field:     string(req.Field),
			OldStatus: oldStatus,
			NewStatus: req.Target,
			Notes:     strings.TrimSpace(req.Notes),
			Actor:     strings.TrimSpace(req.Actor),
			CreatedAt: now,
		}); err != nil {
			return err
		}

		if req.RestoreStock {
			if _, err := applyStockReversal(ctx, tx, r.products, r.movements, plan, stockReversalParams{
				OrderID: orderID,
				Actor:   strings.TrimSpace(req.Actor),
				Notes:   strings.TrimSpace(req.Reason),
				Now:     now,
				NewID:   r.newID,
			}); err != nil {
				return err
			}
		}

		updated = mutated
		return nil
	})
	if err != nil {
		return domain.Order{}, wrapOrderError("order.transition", err)
	}
	return updated, nil
}

// ListHistory returns the order's status history, oldest first.
func (r *OrderRepository) ListHistory(ctx context.Context, orderID string) ([]domain.OrderStatusHistory, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return nil, errors.New("order history: order id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, wrapOrderError("order.listHistory", err)
	}

	iter := client.Collection(orderHistoryCollection).Query.
		Where("orderId", "==", id).
		OrderBy("createdAt", firestore.Asc).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var rows []domain.OrderStatusHistory
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, wrapOrderError("order.listHistory", err)
		}
		var doc historyDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode order history %s: %w", snap.Ref.ID, err)
		}
		rows = append(rows, doc.toDomain(snap.Ref.ID))
	}
	return rows, nil
}

// SetInvoiceURL records the generated invoice location on the order.
func (r *OrderRepository) SetInvoiceURL(ctx context.Context, orderID string, invoiceURL string, now time.Time) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}
	url := strings.TrimSpace(invoiceURL)
	if url == "" {
		return domain.Order{}, errors.New("order repository: invoice url is required")
	}

	at := now.UTC()
	if at.IsZero() {
		at = time.Now().UTC()
	}

	var updated domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, err := r.orders.DocumentRef(ctx, id)
		if err != nil {
			return err
		}
		snap, err := tx.Get(orderRef)
		if err != nil {
			return err
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode order %s: %w", id, err)
		}
		if err := tx.Update(orderRef, []firestore.Update{
			{Path: "invoiceUrl", Value: url},
			{Path: "updatedAt", Value: at},
		}); err != nil {
			return err
		}
		doc.InvoiceURL = url
		doc.UpdatedAt = at
		updated = doc.toDomain(snap.Ref.ID)
		return nil
	})
	if err != nil {
		return domain.Order{}, wrapOrderError("order.setInvoiceUrl", err)
	}
	return updated, nil
}

func historyOldStatus(order domain.Order, field domain.HistoryField) string {
	if field == domain.HistoryFieldPayment {
		return string(order.PaymentStatus)
	}
	return string(order.Status)
}

func wrapOrderError(op string, err error) error {
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

var _ repositories.OrderRepository = (*OrderRepository)(nil)
