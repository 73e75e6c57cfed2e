package firestore

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"

	domain "github.com/m5zonk/api/internal/domain"
	pfirestore "github.com/m5zonk/api/internal/platform/firestore"
	"github.com/m5zonk/api/internal/repositories"
)

// Store implements the repository contracts on top of Firestore. Every tenant owns the
// sub-collections below admins/{tenantId}.
type Store struct {
	provider *pfirestore.Provider
	products *pfirestore.TenantRepository[domain.Product]
	orders   *pfirestore.TenantRepository[domain.Order]
	metrics  *pfirestore.TenantRepository[domain.MonthlyMetrics]
	settings *pfirestore.TenantRepository[domain.TenantConfig]
	txOpts   []pfirestore.TxOption
	logger   *zap.Logger
}

// StoreOption customises a Store.
type StoreOption func(*Store)

// WithTxOptions appends options applied to every transaction run by the store.
func WithTxOptions(opts ...pfirestore.TxOption) StoreOption {
	return func(s *Store) {
		s.txOpts = append(s.txOpts, opts...)
	}
}

// WithLogger logs transactions that needed retries or gave up.
func WithLogger(logger *zap.Logger) StoreOption {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore wires the tenant repositories against provider.
func NewStore(provider *pfirestore.Provider, opts ...StoreOption) (*Store, error) {
	if provider == nil {
		return nil, errors.New("firestore store requires provider")
	}
	s := &Store{
		provider: provider,
		products: pfirestore.NewTenantRepository[domain.Product](provider, productsCollection, decodeProduct),
		orders:   pfirestore.NewTenantRepository[domain.Order](provider, ordersCollection, decodeOrder),
		metrics:  pfirestore.NewTenantRepository[domain.MonthlyMetrics](provider, metricsCollection, decodeMetrics),
		settings: pfirestore.NewTenantRepository[domain.TenantConfig](provider, settingsCollection, decodeConfig),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

var _ repositories.Registry = (*Store)(nil)

// Close releases the underlying client.
func (s *Store) Close(ctx context.Context) error {
	return s.provider.Close(ctx)
}

// Orders returns the order reader.
func (s *Store) Orders() repositories.OrderRepository { return orderRepository{store: s} }

// Metrics returns the monthly metrics reader.
func (s *Store) Metrics() repositories.MetricsRepository { return metricsRepository{store: s} }

// Configs returns the tenant config reader.
func (s *Store) Configs() repositories.ConfigRepository { return configRepository{store: s} }

// RunInTx runs fn in a Firestore transaction. Firestore re-runs the body when the commit
// is aborted by contention, so every attempt gets a fresh Tx.
func (s *Store) RunInTx(ctx context.Context, tenantID string, fn repositories.TxFunc) error {
	if fn == nil {
		return pfirestore.WrapError("transaction", errors.New("firestore: transaction function is nil"))
	}
	if strings.TrimSpace(tenantID) == "" {
		return pfirestore.WrapError("transaction", errors.New("firestore: tenant id is required"))
	}
	opts := append([]pfirestore.TxOption{pfirestore.WithTxObserver(s.observeTx(tenantID))}, s.txOpts...)
	return s.provider.RunTransaction(ctx, func(ctx context.Context, ftx *firestore.Transaction) error {
		return fn(ctx, newTx(s, tenantID, ftx))
	}, opts...)
}

func (s *Store) observeTx(tenantID string) pfirestore.TxObserver {
	return func(attempts int, err error) {
		switch {
		case err != nil && attempts > 1:
			s.logger.Warn("transaction failed after retries",
				zap.String("tenantId", tenantID), zap.Int("attempts", attempts), zap.Error(err))
		case attempts > 1:
			s.logger.Debug("transaction retried",
				zap.String("tenantId", tenantID), zap.Int("attempts", attempts))
		}
	}
}

// PutProduct writes a product document. Used by seeding tools and integration tests.
func (s *Store) PutProduct(ctx context.Context, tenantID string, product domain.Product) error {
	return s.products.Set(ctx, tenantID, product.ID, encodeProduct(product))
}

// PutConfig writes the tenant settings document.
func (s *Store) PutConfig(ctx context.Context, tenantID string, cfg domain.TenantConfig) error {
	return s.settings.Set(ctx, tenantID, settingsConfigID, encodeConfig(cfg))
}

type orderRepository struct{ store *Store }

func (r orderRepository) FindByID(ctx context.Context, tenantID, orderID string) (domain.Order, error) {
	doc, err := r.store.orders.Get(ctx, tenantID, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data, nil
}

func (r orderRepository) List(ctx context.Context, tenantID string, filter repositories.OrderListFilter) ([]domain.Order, error) {
	direction := firestore.Asc
	if filter.Order == domain.SortDesc {
		direction = firestore.Desc
	}
	docs, err := r.store.orders.Query(ctx, tenantID, func(q firestore.Query) firestore.Query {
		if filter.WarehouseID != "" {
			q = q.Where("warehouseId", "==", filter.WarehouseID)
		}
		if from := filter.CreatedAt.From; from != nil {
			q = q.Where("createdAt", ">=", from.UTC())
		}
		if to := filter.CreatedAt.To; to != nil {
			q = q.Where("createdAt", "<", to.UTC())
		}
		q = q.OrderBy("createdAt", direction).OrderBy(firestore.DocumentID, direction)
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		return q
	})
	if err != nil {
		return nil, err
	}
	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, doc.Data)
	}
	return orders, nil
}

type metricsRepository struct{ store *Store }

// ListMonthly ranges over the "YYYY-MM" document ids, so rollups written without a month
// field are included.
func (r metricsRepository) ListMonthly(ctx context.Context, tenantID, fromMonth, toMonth string) ([]domain.MonthlyMetrics, error) {
	if fromMonth >= toMonth {
		return []domain.MonthlyMetrics{}, nil
	}
	coll, err := r.store.metrics.CollectionRef(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	docs, err := r.store.metrics.Query(ctx, tenantID, func(q firestore.Query) firestore.Query {
		return q.Where(firestore.DocumentID, ">=", coll.Doc(fromMonth)).
			Where(firestore.DocumentID, "<", coll.Doc(toMonth)).
			OrderBy(firestore.DocumentID, firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.MonthlyMetrics, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.Data)
	}
	return out, nil
}

type configRepository struct{ store *Store }

func (r configRepository) Get(ctx context.Context, tenantID string) (domain.TenantConfig, error) {
	doc, err := r.store.settings.Get(ctx, tenantID, settingsConfigID)
	if err != nil {
		return domain.TenantConfig{}, err
	}
	cfg := doc.Data
	cfg.TenantID = tenantID
	return cfg, nil
}
