package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/pharmadirect/api/internal/domain"
	"github.com/pharmadirect/api/internal/platform/textutil"
	"github.com/pharmadirect/api/internal/repositories"
)

var (
	// ErrStockInvalidInput indicates the caller supplied invalid input.
	ErrStockInvalidInput = errors.New("stock service: invalid input")
	// ErrStockProductNotFound indicates the product does not exist.
	ErrStockProductNotFound = errors.New("stock service: product not found")
	// ErrStockWouldGoNegative indicates an adjustment would drop quantity below zero.
	ErrStockWouldGoNegative = errors.New("stock service: quantity would go negative")
	// ErrStockInsufficient indicates requested quantity exceeds availability.
	ErrStockInsufficient = errors.New("stock service: insufficient stock")
	// ErrStockUnavailable indicates the ledger backend cannot be reached.
	ErrStockUnavailable = errors.New("stock service: unavailable")
)

const maxMovementNotesLength = 1000

// StockConflictError carries the per-line shortfalls that blocked a placement.
type StockConflictError struct {
	Issues []StockIssue
}

// Error implements the error interface.
func (e *StockConflictError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("stock service: %d line(s) cannot be satisfied", len(e.Issues))
}

// Unwrap allows errors.Is checks against ErrStockInsufficient.
func (e *StockConflictError) Unwrap() error {
	return ErrStockInsufficient
}

// StockServiceDeps wires repositories for ledger operations. Audit is
// optional; manual adjustments are recorded when it is present.
type StockServiceDeps struct {
	Stock    repositories.StockRepository
	Products repositories.ProductRepository
	Audit    AuditLogService
	Clock    func() time.Time
	Logger   func(context.Context, string, map[string]any)
}

type stockService struct {
	stock    repositories.StockRepository
	products repositories.ProductRepository
	audit    AuditLogService
	now      func() time.Time
	logger   func(context.Context, string, map[string]any)
}

// NewStockService constructs a StockService enforcing dependency validation.
func NewStockService(deps StockServiceDeps) (StockService, error) {
	if deps.Stock == nil {
		return nil, errors.New("stock service: stock repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("stock service: product repository is required")
	}
	if deps.Clock == nil {
		return nil, errors.New("stock service: clock is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &stockService{
		stock:    deps.Stock,
		products: deps.Products,
		audit:    deps.Audit,
		now:      func() time.Time { return deps.Clock().UTC() },
		logger:   logger,
	}, nil
}

// Adjust applies a manual signed quantity change and appends a ledger row.
// Sale deductions are written only by order placement, never here.
func (s *stockService) Adjust(ctx context.Context, cmd StockAdjustCommand) (StockMovement, error) {
	if s == nil || s.stock == nil {
		return StockMovement{}, ErrStockUnavailable
	}
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" || cmd.QuantityChange == 0 {
		return StockMovement{}, ErrStockInvalidInput
	}
	if !domain.ValidMovementReason(cmd.Reason) || cmd.Reason == domain.MovementReasonSale {
		return StockMovement{}, ErrStockInvalidInput
	}

	movement, err := s.stock.Adjust(ctx, repositories.StockAdjustRequest{
		ProductID:      productID,
		QuantityChange: cmd.QuantityChange,
		Reason:         cmd.Reason,
		Notes:          textutil.SanitizePlain(cmd.Notes, maxMovementNotesLength),
		Actor:          strings.TrimSpace(cmd.Actor),
		Now:            s.now(),
	})
	if err != nil {
		return StockMovement{}, s.translateError(err)
	}

	s.logger(ctx, "stock.adjusted", map[string]any{
		"product_id": productID,
		"change":     cmd.QuantityChange,
		"reason":     string(cmd.Reason),
		"after":      movement.QuantityAfter,
	})
	if s.audit != nil {
		s.audit.Record(ctx, AuditLogRecord{
			Actor:     strings.TrimSpace(cmd.Actor),
			ActorType: "staff",
			Action:    "stock.adjust",
			TargetRef: "/products/" + productID,
			Metadata: map[string]any{
				"quantity_change": cmd.QuantityChange,
				"reason":          string(cmd.Reason),
				"quantity_after":  movement.QuantityAfter,
			},
		})
	}
	return movement, nil
}

// ListMovements returns ledger rows for a product, newest first.
func (s *stockService) ListMovements(ctx context.Context, productID string, pager Pagination) (domain.CursorPage[StockMovement], error) {
	if s == nil || s.stock == nil {
		return domain.CursorPage[StockMovement]{}, ErrStockUnavailable
	}
	id := strings.TrimSpace(productID)
	if id == "" {
		return domain.CursorPage[StockMovement]{}, ErrStockInvalidInput
	}
	page, err := s.stock.ListMovements(ctx, id, pager)
	if err != nil {
		return domain.CursorPage[StockMovement]{}, s.translateError(err)
	}
	return page, nil
}

// CheckLedger replays the product's movement log and compares the sum against
// the stored quantity. A mismatch is reported loudly, never patched.
func (s *stockService) CheckLedger(ctx context.Context, productID string) (LedgerCheck, error) {
	if s == nil || s.stock == nil {
		return LedgerCheck{}, ErrStockUnavailable
	}
	id := strings.TrimSpace(productID)
	if id == "" {
		return LedgerCheck{}, ErrStockInvalidInput
	}

	product, err := s.products.FindByID(ctx, id)
	if err != nil {
		if isRepoNotFound(err) {
			return LedgerCheck{}, ErrStockProductNotFound
		}
		return LedgerCheck{}, s.translateError(err)
	}
	sum, err := s.stock.SumMovements(ctx, id)
	if err != nil {
		return LedgerCheck{}, s.translateError(err)
	}

	check := LedgerCheck{
		ProductID:     id,
		StockQuantity: product.StockQuantity,
		LedgerSum:     sum,
		Consistent:    sum == product.StockQuantity,
		CheckedAt:     s.now(),
	}
	if !check.Consistent {
		s.logger(ctx, "stock.ledger_mismatch", map[string]any{
			"product_id": id,
			"quantity":   product.StockQuantity,
			"ledger_sum": sum,
		})
	}
	return check, nil
}

func (s *stockService) translateError(err error) error {
	if err == nil {
		return nil
	}
	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		switch stockErr.Code {
		case repositories.StockErrorProductNotFound:
			return ErrStockProductNotFound
		case repositories.StockErrorWouldGoNegative:
			return ErrStockWouldGoNegative
		case repositories.StockErrorInsufficient:
			return &StockConflictError{Issues: stockErr.Issues}
		}
		return ErrStockUnavailable
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		if repoErr.IsNotFound() {
			return ErrStockProductNotFound
		}
		return ErrStockUnavailable
	}
	return ErrStockUnavailable
}
