package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pharmadirect/api/internal/repositories"
)

var (
	// ErrCounterInvalidInput indicates the caller supplied invalid counter parameters.
	ErrCounterInvalidInput = errors.New("counter: invalid input")
	// ErrCounterExhausted indicates the requested counter cannot increment further due to max bounds.
	ErrCounterExhausted = errors.New("counter: exhausted")
)

// orderNumberPadLength fixes the per-day sequence width, e.g. PD-20250115-0001.
const orderNumberPadLength = 4

// CounterServiceDeps bundles collaborators required to construct a counter service instance.
type CounterServiceDeps struct {
	Repository repositories.CounterRepository
}

type counterService struct {
	repo repositories.CounterRepository
}

// NewCounterService constructs a service that issues order numbers on top of the repository.
func NewCounterService(deps CounterServiceDeps) (CounterService, error) {
	if deps.Repository == nil {
		return nil, errors.New("counter service: repository is required")
	}
	return &counterService{repo: deps.Repository}, nil
}

// NextOrderNumber returns the next order number for the day containing at.
// Each calendar day (UTC) owns its own counter document, so sequences reset
// at midnight and never collide across days.
func (s *counterService) NextOrderNumber(ctx context.Context, at time.Time) (string, error) {
	if s == nil || s.repo == nil {
		return "", errors.New("counter service: not initialised")
	}
	day := at.UTC().Format("20060102")
	counterID := "orders:" + day

	value, err := s.repo.Next(ctx, counterID, 1)
	if err != nil {
		return "", translateCounterError(err)
	}
	return fmt.Sprintf("PD-%s-%0*d", day, orderNumberPadLength, value), nil
}

func translateCounterError(err error) error {
	var counterErr *repositories.CounterError
	if errors.As(err, &counterErr) {
		switch counterErr.Code {
		case repositories.CounterErrorInvalidInput:
			return fmt.Errorf("%w: %s", ErrCounterInvalidInput, counterErr.Message)
		case repositories.CounterErrorExhausted:
			return fmt.Errorf("%w: %s", ErrCounterExhausted, counterErr.Message)
		}
	}
	return err
}
