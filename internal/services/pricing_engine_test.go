package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/pharmadirect/api/internal/domain"
)

type stubAddressRepo struct {
	address domain.Address
	findErr error
}

func (s *stubAddressRepo) FindByID(_ context.Context, customerID string, addressID string) (domain.Address, error) {
	if s.findErr != nil {
		return domain.Address{}, s.findErr
	}
	return s.address, nil
}

func (s *stubAddressRepo) ListByCustomer(_ context.Context, customerID string) ([]domain.Address, error) {
	return []domain.Address{s.address}, nil
}

func geocodedAddress(lat, lng float64) domain.Address {
	return domain.Address{
		ID:         "addr-1",
		CustomerID: "cust-1",
		Line1:      "Rruga e Dibres 12",
		City:       "Tirana",
		Latitude:   &lat,
		Longitude:  &lng,
	}
}

func newPricingEngineForTest(t *testing.T, addresses *stubAddressRepo) *DeliveryPricingEngine {
	t.Helper()
	engine, err := NewDeliveryPricingEngine(DeliveryPricingEngineDeps{
		Addresses: addresses,
		Origin:    Coordinates{Latitude: 41.3275, Longitude: 19.8187},
		RatePerKM: 25,
	})
	if err != nil {
		t.Fatalf("new pricing engine: %v", err)
	}
	return engine
}

func TestQuoteDeliveryPickupIsFree(t *testing.T) {
	engine := newPricingEngineForTest(t, &stubAddressRepo{})

	quote, err := engine.QuoteDelivery(context.Background(), DeliveryQuoteCommand{
		CustomerID: "cust-1",
		Method:     domain.DeliveryMethodPickup,
	})
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if quote.Fee != 0 || quote.DistanceKM != nil || quote.FeePendingConfirm || quote.ContactForFee {
		t.Fatalf("expected plain free pickup quote, got %#v", quote)
	}
}

func TestQuoteDeliveryNegotiatedMethods(t *testing.T) {
	engine := newPricingEngineForTest(t, &stubAddressRepo{})

	for _, method := range []domain.DeliveryMethod{domain.DeliveryMethodExpress, domain.DeliveryMethodHospitalPickup} {
		quote, err := engine.QuoteDelivery(context.Background(), DeliveryQuoteCommand{
			CustomerID: "cust-1",
			Method:     method,
		})
		if err != nil {
			t.Fatalf("%s: quote: %v", method, err)
		}
		if !quote.ContactForFee || quote.Fee != 0 {
			t.Fatalf("%s: expected contact-for-fee quote, got %#v", method, quote)
		}
		if quote.Note == "" {
			t.Fatalf("%s: expected explanatory note on the quote", method)
		}
	}
}

func TestQuoteDeliveryStandardPerKilometre(t *testing.T) {
	// 0.09 degrees of latitude north of the origin is just over 10 km.
	addresses := &stubAddressRepo{address: geocodedAddress(41.4175, 19.8187)}
	engine := newPricingEngineForTest(t, addresses)

	addr := "addr-1"
	quote, err := engine.QuoteDelivery(context.Background(), DeliveryQuoteCommand{
		CustomerID: "cust-1",
		Method:     domain.DeliveryMethodStandard,
		AddressID:  &addr,
	})
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if quote.Fee != 250 {
		t.Fatalf("expected fee 250, got %d", quote.Fee)
	}
	if quote.DistanceKM == nil || *quote.DistanceKM != 10.0 {
		t.Fatalf("expected displayed distance 10.0, got %#v", quote.DistanceKM)
	}
	if quote.FeePendingConfirm || quote.ContactForFee {
		t.Fatalf("expected a settled quote, got %#v", quote)
	}
}

func TestQuoteDeliveryStandardRequiresAddress(t *testing.T) {
	engine := newPricingEngineForTest(t, &stubAddressRepo{})

	_, err := engine.QuoteDelivery(context.Background(), DeliveryQuoteCommand{
		CustomerID: "cust-1",
		Method:     domain.DeliveryMethodStandard,
	})
	if !errors.Is(err, ErrPricingAddressRequired) {
		t.Fatalf("expected ErrPricingAddressRequired, got %v", err)
	}
}

func TestQuoteDeliveryUnknownAddressTreatedAsMissing(t *testing.T) {
	engine := newPricingEngineForTest(t, &stubAddressRepo{findErr: notFoundRepoError{}})

	addr := "addr-gone"
	_, err := engine.QuoteDelivery(context.Background(), DeliveryQuoteCommand{
		CustomerID: "cust-1",
		Method:     domain.DeliveryMethodStandard,
		AddressID:  &addr,
	})
	if !errors.Is(err, ErrPricingAddressRequired) {
		t.Fatalf("expected ErrPricingAddressRequired, got %v", err)
	}
}

func TestQuoteDeliveryUngeocodedAddressPendsConfirmation(t *testing.T) {
	address := geocodedAddress(0, 0)
	address.Latitude = nil
	address.Longitude = nil
	engine := newPricingEngineForTest(t, &stubAddressRepo{address: address})

	addr := "addr-1"
	quote, err := engine.QuoteDelivery(context.Background(), DeliveryQuoteCommand{
		CustomerID: "cust-1",
		Method:     domain.DeliveryMethodStandard,
		AddressID:  &addr,
	})
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if !quote.FeePendingConfirm || quote.Fee != 0 {
		t.Fatalf("expected pending-confirmation quote, got %#v", quote)
	}
	if quote.Note == "" {
		t.Fatalf("expected explanatory note on the quote")
	}
}

func TestQuoteDeliveryRejectsUnknownMethod(t *testing.T) {
	engine := newPricingEngineForTest(t, &stubAddressRepo{})

	_, err := engine.QuoteDelivery(context.Background(), DeliveryQuoteCommand{
		CustomerID: "cust-1",
		Method:     "drone",
	})
	if !errors.Is(err, ErrPricingInvalidInput) {
		t.Fatalf("expected ErrPricingInvalidInput, got %v", err)
	}
}
