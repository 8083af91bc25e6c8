package services

import (
	"context"
	"errors"
	"math"
	"strings"

	domain "github.com/pharmadirect/api/internal/domain"
	"github.com/pharmadirect/api/internal/repositories"
)

var (
	// ErrPricingInvalidInput signals bad request data such as an unknown delivery method.
	ErrPricingInvalidInput = errors.New("pricing engine: invalid input")
	// ErrPricingAddressRequired is returned when the delivery method needs an address and none resolves.
	ErrPricingAddressRequired = errors.New("pricing engine: delivery address required")
	// ErrPricingUnavailable indicates the engine cannot reach its dependencies.
	ErrPricingUnavailable = errors.New("pricing engine: unavailable")
)

const (
	earthRadiusKM = 6371.0

	contactForFeeNote     = "delivery fee is agreed with our sales team; we will contact you"
	pendingConfirmFeeNote = "address is not geocoded; the delivery fee will be confirmed manually before dispatch"
)

// Coordinates is a geographic point used for distance-based fees.
type Coordinates struct {
	Latitude  float64
	Longitude float64
}

// DeliveryPricingEngine derives fees from delivery method and the distance
// between the store origin and the customer's address.
type DeliveryPricingEngine struct {
	addresses repositories.AddressRepository
	origin    Coordinates
	ratePerKM int64
	logger    func(context.Context, string, map[string]any)
}

// DeliveryPricingEngineDeps wires dependencies for the fee calculator.
type DeliveryPricingEngineDeps struct {
	Addresses repositories.AddressRepository
	Origin    Coordinates
	RatePerKM int64
	Logger    func(context.Context, string, map[string]any)
}

// NewDeliveryPricingEngine constructs the fee calculator.
func NewDeliveryPricingEngine(deps DeliveryPricingEngineDeps) (*DeliveryPricingEngine, error) {
	if deps.Addresses == nil {
		return nil, errors.New("pricing engine: address repository is required")
	}
	if deps.RatePerKM < 0 {
		return nil, errors.New("pricing engine: rate per km must be >= 0")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &DeliveryPricingEngine{
		addresses: deps.Addresses,
		origin:    deps.Origin,
		ratePerKM: deps.RatePerKM,
		logger:    logger,
	}, nil
}

// QuoteDelivery prices the requested delivery option. For standard delivery
// without geocoded coordinates the quote carries a zero fee and the
// pending-confirmation flag instead of failing: the fee is agreed manually
// before dispatch.
func (e *DeliveryPricingEngine) QuoteDelivery(ctx context.Context, cmd DeliveryQuoteCommand) (DeliveryQuote, error) {
	if e == nil {
		return DeliveryQuote{}, ErrPricingUnavailable
	}
	if !domain.ValidDeliveryMethod(cmd.Method) {
		return DeliveryQuote{}, ErrPricingInvalidInput
	}

	switch cmd.Method {
	case domain.DeliveryMethodPickup:
		return DeliveryQuote{Method: cmd.Method}, nil
	case domain.DeliveryMethodExpress, domain.DeliveryMethodHospitalPickup:
		return DeliveryQuote{
			Method:        cmd.Method,
			ContactForFee: true,
			Note:          contactForFeeNote,
		}, nil
	}

	// standard: per-kilometre billing against the store origin
	customerID := strings.TrimSpace(cmd.CustomerID)
	if customerID == "" {
		return DeliveryQuote{}, ErrPricingInvalidInput
	}
	if cmd.AddressID == nil || strings.TrimSpace(*cmd.AddressID) == "" {
		return DeliveryQuote{}, ErrPricingAddressRequired
	}

	address, err := e.addresses.FindByID(ctx, customerID, *cmd.AddressID)
	if err != nil {
		if isRepoNotFound(err) {
			return DeliveryQuote{}, ErrPricingAddressRequired
		}
		return DeliveryQuote{}, ErrPricingUnavailable
	}

	if !address.HasCoordinates() {
		e.logger(ctx, "pricing.fee_pending_confirm", map[string]any{"customer_id": customerID, "address_id": address.ID})
		return DeliveryQuote{
			Method:            cmd.Method,
			FeePendingConfirm: true,
			Note:              pendingConfirmFeeNote,
		}, nil
	}

	// The fee multiplies the unrounded distance; only the displayed
	// distance is rounded to one decimal.
	distance := haversineKM(e.origin, Coordinates{Latitude: *address.Latitude, Longitude: *address.Longitude})
	fee := int64(math.Round(distance * float64(e.ratePerKM)))
	display := math.Round(distance*10) / 10

	return DeliveryQuote{
		Method:     cmd.Method,
		Fee:        fee,
		DistanceKM: &display,
	}, nil
}

// haversineKM computes the great-circle distance between two points.
func haversineKM(from, to Coordinates) float64 {
	lat1 := from.Latitude * math.Pi / 180
	lat2 := to.Latitude * math.Pi / 180
	dLat := (to.Latitude - from.Latitude) * math.Pi / 180
	dLng := (to.Longitude - from.Longitude) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKM * c
}

var _ PricingEngine = (*DeliveryPricingEngine)(nil)
