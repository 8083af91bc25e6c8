package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pharmadirect/api/internal/platform/config"
	pfirestore "github.com/pharmadirect/api/internal/platform/firestore"
	"github.com/pharmadirect/api/internal/repositories"
	firestoreRepo "github.com/pharmadirect/api/internal/repositories/firestore"
	"github.com/pharmadirect/api/internal/services"
)

// Repositories bundles the Firestore-backed persistence layer.
type Repositories struct {
	Products  repositories.ProductRepository
	Stock     repositories.StockRepository
	Carts     repositories.CartRepository
	Orders    repositories.OrderRepository
	Customers repositories.CustomerRepository
	Addresses repositories.AddressRepository
	Counters  repositories.CounterRepository
	AuditLogs repositories.AuditLogRepository
}

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Carts     services.CartService
	Stock     services.StockService
	Pricing   services.PricingEngine
	Counters  services.CounterService
	Orders    services.OrderService
	Reorder   services.ReorderService
	Checkout  services.CheckoutService
	Customers services.CustomerService
	Invoices  services.InvoiceService
	System    services.SystemService
	Audit     services.AuditLogService
}

// Deps carries the externally constructed infrastructure the container wires
// into repositories and services. Events, InvoiceJobs, the invoice storage
// pieces, and Health are optional; the matching services degrade or stay nil
// when they are absent.
type Deps struct {
	Firestore     *pfirestore.Provider
	Events        services.OrderEventPublisher
	InvoiceJobs   services.InvoiceJobDispatcher
	InvoiceCopier services.ObjectCopier
	InvoiceSigner services.InvoiceURLSigner
	Health        repositories.HealthRepository
	Build         services.BuildInfo
	Logger        *zap.Logger
	Clock         func() time.Time
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories Repositories
	Services     Services
}

// NewContainer constructs the runtime dependency graph on top of the provided
// Firestore provider and infrastructure deps.
func NewContainer(cfg config.Config, deps Deps) (*Container, error) {
	if deps.Firestore == nil {
		return nil, errors.New("di: firestore provider is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}

	repos, err := buildRepositories(deps.Firestore)
	if err != nil {
		return nil, err
	}

	svc, err := buildServices(cfg, repos, deps)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: repos,
		Services:     svc,
	}, nil
}

func buildRepositories(provider *pfirestore.Provider) (Repositories, error) {
	products, err := firestoreRepo.NewProductRepository(provider)
	if err != nil {
		return Repositories{}, fmt.Errorf("build product repository: %w", err)
	}
	stock, err := firestoreRepo.NewStockRepository(provider)
	if err != nil {
		return Repositories{}, fmt.Errorf("build stock repository: %w", err)
	}
	carts, err := firestoreRepo.NewCartRepository(provider)
	if err != nil {
		return Repositories{}, fmt.Errorf("build cart repository: %w", err)
	}
	orders, err := firestoreRepo.NewOrderRepository(provider)
	if err != nil {
		return Repositories{}, fmt.Errorf("build order repository: %w", err)
	}
	customers, err := firestoreRepo.NewCustomerRepository(provider)
	if err != nil {
		return Repositories{}, fmt.Errorf("build customer repository: %w", err)
	}
	addresses, err := firestoreRepo.NewAddressRepository(provider)
	if err != nil {
		return Repositories{}, fmt.Errorf("build address repository: %w", err)
	}
	counters, err := firestoreRepo.NewCounterRepository(provider)
	if err != nil {
		return Repositories{}, fmt.Errorf("build counter repository: %w", err)
	}
	auditLogs, err := firestoreRepo.NewAuditLogRepository(provider)
	if err != nil {
		return Repositories{}, fmt.Errorf("build audit log repository: %w", err)
	}

	return Repositories{
		Products:  products,
		Stock:     stock,
		Carts:     carts,
		Orders:    orders,
		Customers: customers,
		Addresses: addresses,
		Counters:  counters,
		AuditLogs: auditLogs,
	}, nil
}

func buildServices(cfg config.Config, repos Repositories, deps Deps) (Services, error) {
	var svc Services

	audit, err := services.NewAuditLogService(services.AuditLogServiceDeps{
		Repository: repos.AuditLogs,
		Clock:      deps.Clock,
		Logger:     deps.Logger.Named("audit").Sugar(),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build audit log service: %w", err)
	}
	svc.Audit = audit

	customers, err := services.NewCustomerService(services.CustomerServiceDeps{
		Customers: repos.Customers,
		Addresses: repos.Addresses,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build customer service: %w", err)
	}
	svc.Customers = customers

	carts, err := services.NewCartService(services.CartServiceDeps{
		Repository: repos.Carts,
		Products:   repos.Products,
		Clock:      deps.Clock,
		Logger:     eventLogger(deps.Logger.Named("cart")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}
	svc.Carts = carts

	stock, err := services.NewStockService(services.StockServiceDeps{
		Stock:    repos.Stock,
		Products: repos.Products,
		Audit:    audit,
		Clock:    deps.Clock,
		Logger:   eventLogger(deps.Logger.Named("stock")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build stock service: %w", err)
	}
	svc.Stock = stock

	pricing, err := services.NewDeliveryPricingEngine(services.DeliveryPricingEngineDeps{
		Addresses: repos.Addresses,
		Origin: services.Coordinates{
			Latitude:  cfg.Delivery.OriginLatitude,
			Longitude: cfg.Delivery.OriginLongitude,
		},
		RatePerKM: cfg.Delivery.RatePerKM,
		Logger:    eventLogger(deps.Logger.Named("pricing")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build pricing engine: %w", err)
	}
	svc.Pricing = pricing

	counters, err := services.NewCounterService(services.CounterServiceDeps{
		Repository: repos.Counters,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build counter service: %w", err)
	}
	svc.Counters = counters

	orders, err := services.NewOrderService(services.OrderServiceDeps{
		Orders: repos.Orders,
		Events: deps.Events,
		Audit:  audit,
		Clock:  deps.Clock,
		Logger: eventLogger(deps.Logger.Named("orders")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orders

	reorder, err := services.NewReorderService(services.ReorderServiceDeps{
		Orders:   repos.Orders,
		Carts:    repos.Carts,
		Products: repos.Products,
		Clock:    deps.Clock,
		Logger:   eventLogger(deps.Logger.Named("reorder")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build reorder service: %w", err)
	}
	svc.Reorder = reorder

	checkout, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Carts:       carts,
		Customers:   repos.Customers,
		Orders:      repos.Orders,
		Pricing:     pricing,
		Counter:     counters,
		Events:      deps.Events,
		InvoiceJobs: deps.InvoiceJobs,
		Clock:       deps.Clock,
		Logger:      eventLogger(deps.Logger.Named("checkout")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build checkout service: %w", err)
	}
	svc.Checkout = checkout

	if deps.InvoiceCopier != nil && cfg.Storage.InvoicesBucket != "" {
		invoices, err := services.NewInvoiceService(services.InvoiceServiceDeps{
			Orders: orders,
			Copier: deps.InvoiceCopier,
			Signer: deps.InvoiceSigner,
			Audit:  audit,
			Bucket: cfg.Storage.InvoicesBucket,
			Logger: eventLogger(deps.Logger.Named("invoices")),
		})
		if err != nil {
			return Services{}, fmt.Errorf("build invoice service: %w", err)
		}
		svc.Invoices = invoices
	}

	if deps.Health != nil {
		system, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: deps.Health,
			Clock:            deps.Clock,
			Build:            deps.Build,
			Audit:            audit,
			Counters:         repos.Counters,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = system
	}

	return svc, nil
}

// eventLogger adapts a zap logger to the structured event callback the
// services accept.
func eventLogger(logger *zap.Logger) func(context.Context, string, map[string]any) {
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields)+1)
		zFields = append(zFields, zap.String("event", event))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Debug("service event", zFields...)
	}
}
