package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/m5zonk/api/internal/platform/config"
	"github.com/m5zonk/api/internal/platform/observability"
	"github.com/m5zonk/api/internal/repositories"
	"github.com/m5zonk/api/internal/services"
)

// Services bundles the engine contracts exposed to callers. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Config    services.ConfigService
	Orders    services.OrderService
	Metrics   services.MetricsService
	Inventory services.InventoryService
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// Option customises the container wiring.
type Option func(*options)

type options struct {
	logger  *zap.Logger
	events  services.OrderEventPublisher
	metrics *observability.EngineMetrics
	clock   func() time.Time
}

// WithLogger sets the base logger handed to every service.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithEventPublisher enables order domain events.
func WithEventPublisher(publisher services.OrderEventPublisher) Option {
	return func(o *options) { o.events = publisher }
}

// WithEngineMetrics records engine counters.
func WithEngineMetrics(metrics *observability.EngineMetrics) Option {
	return func(o *options) { o.metrics = metrics }
}

// WithClock overrides the service clock.
func WithClock(clock func() time.Time) Option {
	return func(o *options) { o.clock = clock }
}

// NewContainer constructs the runtime dependencies. Production wiring provides the
// Firestore registry, while tests can supply the in-memory store.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, opts ...Option) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}
	o := options{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.logger == nil {
		o.logger = observability.FromContext(ctx)
	}

	svc, err := buildServices(reg, cfg, o)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close waits for pending order events and releases repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	var drainErr error
	if d, ok := c.Services.Orders.(interface{ Drain(context.Context) error }); ok {
		drainErr = d.Drain(ctx)
	}
	return errors.Join(drainErr, c.Repositories.Close(ctx))
}

func buildServices(reg repositories.Registry, cfg config.Config, o options) (Services, error) {
	var svc Services

	configSvc, err := services.NewConfigService(services.ConfigServiceDeps{
		Configs: reg.Configs(),
		Logger:  o.logger.Named("config"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build config service: %w", err)
	}
	svc.Config = configSvc

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		UnitOfWork:    reg,
		Orders:        reg.Orders(),
		Events:        o.events,
		Metrics:       o.metrics,
		Clock:         o.clock,
		Logger:        o.logger.Named("orders"),
		ListLimit:     cfg.Orders.ListLimit,
		MaxNoteLength: cfg.Orders.MaxNoteLength,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	metricsSvc, err := services.NewMetricsService(services.MetricsServiceDeps{
		Metrics: reg.Metrics(),
		Orders:  reg.Orders(),
		Logger:  o.logger.Named("metrics"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build metrics service: %w", err)
	}
	svc.Metrics = metricsSvc

	inventorySvc, err := services.NewInventoryService(services.InventoryServiceDeps{
		UnitOfWork: reg,
		Metrics:    o.metrics,
		Logger:     o.logger.Named("inventory"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build inventory service: %w", err)
	}
	svc.Inventory = inventorySvc

	return svc, nil
}
