package services

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	domain "github.com/m5zonk/api/internal/domain"
	"github.com/m5zonk/api/internal/platform/observability"
	"github.com/m5zonk/api/internal/repositories"
)

// InventoryServiceDeps bundles the collaborators required to construct an inventory service.
type InventoryServiceDeps struct {
	UnitOfWork repositories.UnitOfWork
	Metrics    *observability.EngineMetrics
	Logger     *zap.Logger
}

type inventoryService struct {
	unitOfWork repositories.UnitOfWork
	metrics    *observability.EngineMetrics
	logger     *zap.Logger
}

// NewInventoryService wires dependencies into a concrete InventoryService implementation.
func NewInventoryService(deps InventoryServiceDeps) (InventoryService, error) {
	if deps.UnitOfWork == nil {
		return nil, errors.New("inventory service: unit of work is required")
	}
	return &inventoryService{
		unitOfWork: deps.UnitOfWork,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
	}, nil
}

func (s *inventoryService) AdjustStock(ctx context.Context, cmd AdjustStockCommand) (_ StockAdjustment, err error) {
	ctx, span := observability.StartSpan(ctx, "inventory.adjust",
		attribute.String("tenant.id", cmd.TenantID),
		attribute.String("product.id", cmd.ProductID),
	)
	defer func() { observability.EndSpan(span, err) }()

	if err := validateCommand(cmd); err != nil {
		return StockAdjustment{}, err
	}
	logger := serviceLogger(ctx, s.logger, cmd.TenantID).With(zap.String("productId", cmd.ProductID))

	loc := domain.GlobalStock()
	if wh := strings.TrimSpace(cmd.WarehouseID); wh != "" {
		loc = domain.WarehouseStockAt(wh)
	}

	result := StockAdjustment{ProductID: cmd.ProductID, Location: loc}
	err = s.unitOfWork.RunInTx(ctx, cmd.TenantID, func(ctx context.Context, tx repositories.Tx) error {
		products, err := tx.Products(ctx, []string{cmd.ProductID})
		if err != nil {
			return err
		}
		if _, ok := products[cmd.ProductID]; !ok {
			return notFound("product %s not found", cmd.ProductID)
		}

		ledger := newStockLedger(products, logger)
		qty, tracked, err := ledger.Adjust(cmd.ProductID, loc, cmd.Change)
		if err != nil {
			return err
		}
		result.Quantity = qty
		result.Tracked = tracked
		return ledger.Apply(ctx, tx)
	})
	if err != nil {
		var stockErr *repositories.StockError
		if errors.As(err, &stockErr) && stockErr.Code == repositories.StockErrorInsufficient {
			s.metrics.StockConflict(ctx, "inventory.adjust")
		}
		return StockAdjustment{}, classifyError(logger, "inventory.adjust", err)
	}

	logger.Info("stock adjusted",
		zap.String("location", loc.String()),
		zap.Int("change", cmd.Change),
		zap.Int("quantity", result.Quantity),
		zap.Bool("tracked", result.Tracked),
	)
	return result, nil
}
