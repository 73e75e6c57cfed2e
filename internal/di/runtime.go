package di

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/m5zonk/api/internal/platform/config"
	pfirestore "github.com/m5zonk/api/internal/platform/firestore"
	"github.com/m5zonk/api/internal/platform/jobs"
	"github.com/m5zonk/api/internal/platform/observability"
	"github.com/m5zonk/api/internal/platform/secrets"
	firestoreRepo "github.com/m5zonk/api/internal/repositories/firestore"
)

// Runtime owns the process-wide clients of a command: configuration, the Firestore
// backed container and, when enabled, the Pub/Sub order event topic.
type Runtime struct {
	Logger    *zap.Logger
	Config    config.Config
	Container *Container

	closers []func(context.Context) error
}

// RuntimeOption customises NewRuntime.
type RuntimeOption func(*runtimeOptions)

type runtimeOptions struct {
	publishEvents bool
	configOpts    []config.Option
}

// WithOrderEvents publishes order domain events to the configured topic.
func WithOrderEvents() RuntimeOption {
	return func(o *runtimeOptions) { o.publishEvents = true }
}

// WithConfigOptions forwards options to config.Load.
func WithConfigOptions(opts ...config.Option) RuntimeOption {
	return func(o *runtimeOptions) { o.configOpts = append(o.configOpts, opts...) }
}

// NewRuntime resolves secrets, loads configuration and wires the engine on Firestore.
func NewRuntime(ctx context.Context, logger *zap.Logger, opts ...RuntimeOption) (_ *Runtime, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var o runtimeOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	rt := &Runtime{Logger: logger}
	defer func() {
		if err != nil {
			_ = rt.Close(context.WithoutCancel(ctx))
		}
	}()

	secretsCfg, err := config.LoadSecrets(o.configOpts...)
	if err != nil {
		return nil, fmt.Errorf("load secrets settings: %w", err)
	}
	fetcher, err := secrets.NewFetcher(ctx, secretsCfg, secrets.WithLogger(logger.Named("secrets")))
	if err != nil {
		return nil, fmt.Errorf("initialise secret fetcher: %w", err)
	}
	rt.closers = append(rt.closers, func(context.Context) error { return fetcher.Close() })

	loadOpts := append([]config.Option{config.WithSecretResolver(fetcher)}, o.configOpts...)
	cfg, err := config.Load(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	rt.Config = cfg

	provider := pfirestore.NewProvider(cfg.Firestore,
		pfirestore.WithTransactionDefaults(cfg.Orders.TxAttempts, cfg.Orders.TxTimeout))
	store, err := firestoreRepo.NewStore(provider, firestoreRepo.WithLogger(logger.Named("firestore")))
	if err != nil {
		_ = provider.Close(ctx)
		return nil, fmt.Errorf("initialise firestore store: %w", err)
	}

	containerOpts := []Option{
		WithLogger(logger),
		WithEngineMetrics(observability.NewEngineMetrics(nil, logger)),
	}
	if o.publishEvents && strings.TrimSpace(cfg.PubSub.OrderEventsTopic) != "" {
		publisher, closePublisher, err := newOrderEventPublisher(ctx, cfg.PubSub)
		if err != nil {
			_ = provider.Close(ctx)
			return nil, err
		}
		// registered before the container so pending events drain first
		rt.closers = append(rt.closers, closePublisher)
		containerOpts = append(containerOpts, WithEventPublisher(publisher))
	}

	container, err := NewContainer(ctx, cfg, store, containerOpts...)
	if err != nil {
		_ = provider.Close(ctx)
		return nil, err
	}
	rt.Container = container
	rt.closers = append(rt.closers, container.Close)
	return rt, nil
}

// Close releases clients in reverse order of creation.
func (r *Runtime) Close(ctx context.Context) error {
	if r == nil {
		return nil
	}
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

func newOrderEventPublisher(ctx context.Context, cfg config.PubSubConfig) (*jobs.PubSubOrderEventPublisher, func(context.Context) error, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("initialise pubsub client: %w", err)
	}
	topic := client.Topic(cfg.OrderEventsTopic)
	publisher, err := jobs.NewPubSubOrderEventPublisher(topic)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	closeFn := func(context.Context) error {
		topic.Stop()
		return client.Close()
	}
	return publisher, closeFn, nil
}
