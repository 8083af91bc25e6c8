package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pharmadirect/api/internal/repositories"
)

type stubCounterRepo struct {
	lastCounterID string
	lastStep      int64
	value         int64
	err           error
}

func (s *stubCounterRepo) Next(_ context.Context, counterID string, step int64) (int64, error) {
	s.lastCounterID = counterID
	s.lastStep = step
	if s.err != nil {
		return 0, s.err
	}
	return s.value, nil
}

func (s *stubCounterRepo) Configure(_ context.Context, counterID string, cfg repositories.CounterConfig) error {
	return nil
}

func TestNextOrderNumberFormat(t *testing.T) {
	repo := &stubCounterRepo{value: 1}
	svc, err := NewCounterService(CounterServiceDeps{Repository: repo})
	if err != nil {
		t.Fatalf("new counter service: %v", err)
	}

	number, err := svc.NextOrderNumber(context.Background(), time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("next order number: %v", err)
	}
	if number != "PD-20250304-0001" {
		t.Fatalf("expected PD-20250304-0001, got %q", number)
	}
	if repo.lastCounterID != "orders:20250304" {
		t.Fatalf("expected per-day counter document, got %q", repo.lastCounterID)
	}
	if repo.lastStep != 1 {
		t.Fatalf("expected step 1, got %d", repo.lastStep)
	}
}

func TestNextOrderNumberUsesUTCDay(t *testing.T) {
	repo := &stubCounterRepo{value: 42}
	svc, err := NewCounterService(CounterServiceDeps{Repository: repo})
	if err != nil {
		t.Fatalf("new counter service: %v", err)
	}

	// 23:30 on March 4th in UTC+2 is still March 4th in UTC.
	tz := time.FixedZone("EET", 2*60*60)
	number, err := svc.NextOrderNumber(context.Background(), time.Date(2025, 3, 4, 23, 30, 0, 0, tz))
	if err != nil {
		t.Fatalf("next order number: %v", err)
	}
	if number != "PD-20250304-0042" {
		t.Fatalf("expected PD-20250304-0042, got %q", number)
	}
}

func TestNextOrderNumberWideSequence(t *testing.T) {
	repo := &stubCounterRepo{value: 12345}
	svc, err := NewCounterService(CounterServiceDeps{Repository: repo})
	if err != nil {
		t.Fatalf("new counter service: %v", err)
	}

	number, err := svc.NextOrderNumber(context.Background(), time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("next order number: %v", err)
	}
	// padding is a minimum width, never a truncation
	if number != "PD-20250304-12345" {
		t.Fatalf("expected PD-20250304-12345, got %q", number)
	}
}

func TestNextOrderNumberTranslatesRepositoryErrors(t *testing.T) {
	cases := []struct {
		repoErr error
		want    error
	}{
		{repositories.NewCounterError(repositories.CounterErrorInvalidInput, "bad id", nil), ErrCounterInvalidInput},
		{repositories.NewCounterError(repositories.CounterErrorExhausted, "max reached", nil), ErrCounterExhausted},
	}

	for _, tc := range cases {
		repo := &stubCounterRepo{err: tc.repoErr}
		svc, err := NewCounterService(CounterServiceDeps{Repository: repo})
		if err != nil {
			t.Fatalf("new counter service: %v", err)
		}
		_, err = svc.NextOrderNumber(context.Background(), time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC))
		if !errors.Is(err, tc.want) {
			t.Fatalf("expected %v, got %v", tc.want, err)
		}
	}
}
