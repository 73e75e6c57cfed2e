package services

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	domain "github.com/m5zonk/api/internal/domain"
	"github.com/m5zonk/api/internal/platform/observability"
	"github.com/m5zonk/api/internal/platform/requestctx"
	"github.com/m5zonk/api/internal/platform/textutil"
	"github.com/m5zonk/api/internal/repositories"
)

const (
	orderIDPrefix   = "ord_"
	historyIDPrefix = "osh_"
	lossIDPrefix    = "olo_"

	orderCreatedNote = "Order created."

	defaultOrderListLimit = 100
	defaultMaxNoteLength  = 1000
	eventPublishTimeout   = 5 * time.Second
)

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	UnitOfWork  repositories.UnitOfWork
	Orders      repositories.OrderRepository
	Events      OrderEventPublisher
	Metrics     *observability.EngineMetrics
	Clock       func() time.Time
	IDGenerator func() string
	Logger      *zap.Logger
	// ListLimit caps ListOrders results. Defaults to 100.
	ListLimit int
	// MaxNoteLength truncates status notes and loss reasons. Defaults to 1000 runes.
	MaxNoteLength int
}

type orderService struct {
	unitOfWork    repositories.UnitOfWork
	orders        repositories.OrderRepository
	events        OrderEventPublisher
	metrics       *observability.EngineMetrics
	clock         func() time.Time
	newID         func() string
	logger        *zap.Logger
	listLimit     int
	maxNoteLength int

	inflight sync.WaitGroup
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	return newOrderService(deps)
}

func newOrderService(deps OrderServiceDeps) (*orderService, error) {
	if deps.UnitOfWork == nil {
		return nil, errors.New("order service: unit of work is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	listLimit := deps.ListLimit
	if listLimit <= 0 || listLimit > defaultOrderListLimit {
		listLimit = defaultOrderListLimit
	}
	maxNote := deps.MaxNoteLength
	if maxNote <= 0 {
		maxNote = defaultMaxNoteLength
	}

	return &orderService{
		unitOfWork: deps.UnitOfWork,
		orders:     deps.Orders,
		events:     deps.Events,
		metrics:    deps.Metrics,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:         idGen,
		logger:        deps.Logger,
		listLimit:     listLimit,
		maxNoteLength: maxNote,
	}, nil
}

func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (_ domain.Order, err error) {
	ctx, span := observability.StartSpan(ctx, "orders.create", attribute.String("tenant.id", cmd.TenantID))
	defer func() { observability.EndSpan(span, err) }()

	if err := validateCommand(cmd); err != nil {
		return domain.Order{}, err
	}
	logger := s.loggerFor(ctx, cmd.TenantID)

	now := s.clock()
	createdAt, err := resolveCreatedAt(strings.TrimSpace(cmd.CreatedAt), now)
	if err != nil {
		return domain.Order{}, err
	}

	orderID := orderIDPrefix + s.newID()
	historyID := historyIDPrefix + s.newID()
	packaging := packagingItems(cmd.PackagingItems)
	productIDs := lineProductIDs(cmd.Lines, func(l OrderLineInput) string { return l.ProductID })

	var order domain.Order
	err = s.unitOfWork.RunInTx(ctx, cmd.TenantID, func(ctx context.Context, tx repositories.Tx) error {
		cfg, err := tx.TenantConfig(ctx)
		if err != nil {
			return err
		}
		warehouseID := strings.TrimSpace(cmd.WarehouseID)
		if warehouseID == "" {
			warehouseID = cfg.DefaultWarehouseID
		}
		if warehouseID == "" {
			return invalidRequest("warehouseId is required: tenant has no default warehouse")
		}

		products, err := tx.Products(ctx, productIDs)
		if err != nil {
			return err
		}
		lines, err := priceLines(cmd.Lines, products)
		if err != nil {
			return err
		}

		ledger := newStockLedger(products, logger)
		for _, line := range lines {
			if err := ledger.Decrement(line.ProductID, warehouseID, line.Qty); err != nil {
				return err
			}
		}

		totals := computeTotals(lines, cmd.ShippingPrice, cmd.ExtraLosses, packaging)
		order = domain.Order{
			ID:             orderID,
			CreatedAt:      createdAt,
			WarehouseID:    warehouseID,
			Lines:          lines,
			ShippingPrice:  cmd.ShippingPrice,
			ExtraLosses:    cmd.ExtraLosses,
			PackagingItems: packaging,
			Totals:         totals,
			Status:         domain.OrderStatusOK,
			StatusHistory: []domain.StatusHistoryEntry{{
				ID:        historyID,
				Timestamp: now,
				NewStatus: domain.OrderStatusOK,
				Notes:     orderCreatedNote,
			}},
		}

		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}
		if err := ledger.Apply(ctx, tx); err != nil {
			return err
		}
		return applyMetrics(ctx, tx, createdAt, accrualDelta(totals))
	})
	if err != nil {
		return domain.Order{}, s.fail(ctx, logger, "orders.create", err)
	}

	s.metrics.OrderCreated(ctx, order.WarehouseID)
	logger.Info("order created",
		zap.String("orderId", order.ID),
		zap.String("warehouseId", order.WarehouseID),
		zap.Float64("revenue", order.Totals.Revenue),
		zap.Float64("profit", order.Totals.Profit),
	)
	s.publish(ctx, logger, OrderEvent{
		Type:        OrderEventCreated,
		TenantID:    cmd.TenantID,
		OrderID:     order.ID,
		WarehouseID: order.WarehouseID,
		NewStatus:   order.Status,
		Totals:      order.Totals,
		OccurredAt:  now,
	})
	return order, nil
}

// transitionPlan lists the side effects of one status change. Only transitions anchored
// at OK carry stock or metrics effects.
type transitionPlan struct {
	leavingOK   bool
	returningOK bool
	reverse     bool
	reaccrue    bool
	restock     bool
	destock     bool
}

func planTransition(order domain.Order, cmd UpdateOrderStatusCommand, logger *zap.Logger) transitionPlan {
	plan := transitionPlan{
		leavingOK:   order.CurrentStatus() == domain.OrderStatusOK && cmd.NewStatus != domain.OrderStatusOK,
		returningOK: order.CurrentStatus() != domain.OrderStatusOK && cmd.NewStatus == domain.OrderStatusOK,
	}
	counted := order.MetricsCounted()

	switch {
	case plan.leavingOK:
		if cmd.ReverseMetrics {
			if counted {
				plan.reverse = true
			} else {
				logger.Warn("metrics reversal skipped: order is not counted", zap.String("orderId", order.ID))
			}
		}
		plan.restock = cmd.RestockItems
	case plan.returningOK:
		if cmd.ReverseMetrics {
			if !counted {
				plan.reaccrue = true
			} else {
				logger.Warn("metrics re-accrual skipped: order metrics were never reversed", zap.String("orderId", order.ID))
			}
		}
		if departure, ok := order.LastDepartureFromOK(); ok && departure.Restocked {
			plan.destock = true
		}
	}
	return plan
}

func (s *orderService) UpdateOrderStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (_ domain.Order, err error) {
	ctx, span := observability.StartSpan(ctx, "orders.updateStatus",
		attribute.String("tenant.id", cmd.TenantID),
		attribute.String("order.id", cmd.OrderID),
	)
	defer func() { observability.EndSpan(span, err) }()

	if err := validateCommand(cmd); err != nil {
		return domain.Order{}, err
	}
	logger := s.loggerFor(ctx, cmd.TenantID).With(zap.String("orderId", cmd.OrderID))

	actor := cmd.ActorID
	if actor == nil {
		actor = requestctx.Actor(ctx)
	}
	notes := textutil.CleanNote(cmd.Notes, s.maxNoteLength)
	now := s.clock()
	historyID := historyIDPrefix + s.newID()
	lossID := lossIDPrefix + s.newID()

	var (
		updated domain.Order
		entry   domain.StatusHistoryEntry
	)
	err = s.unitOfWork.RunInTx(ctx, cmd.TenantID, func(ctx context.Context, tx repositories.Tx) error {
		current, err := tx.Order(ctx, cmd.OrderID)
		if err != nil {
			return err
		}
		if current.CurrentStatus() == cmd.NewStatus {
			return invalidRequest("order %s is already %s: status unchanged", current.ID, cmd.NewStatus)
		}

		plan := planTransition(current, cmd, logger)
		var products map[string]domain.Product
		if plan.restock || plan.destock {
			ids := lineProductIDs(current.Lines, func(l domain.OrderLine) string { return l.ProductID })
			if products, err = tx.Products(ctx, ids); err != nil {
				return err
			}
		}

		entry = domain.StatusHistoryEntry{
			ID:              historyID,
			Timestamp:       now,
			OldStatus:       current.CurrentStatus(),
			NewStatus:       cmd.NewStatus,
			Notes:           notes,
			UserID:          actor,
			ReversedMetrics: plan.reverse || plan.reaccrue,
			Restocked:       plan.restock || plan.destock,
			AddedLoss:       cmd.AddedLosses,
		}
		change := repositories.StatusChange{Status: cmd.NewStatus, History: entry}
		if cmd.AddedLosses > 0 {
			change.Loss = &domain.ExtraLossEntry{
				ID:        lossID,
				Timestamp: now,
				Amount:    cmd.AddedLosses,
				Reason:    notes,
				UserID:    actor,
			}
		}

		if err := tx.AppendOrderStatus(ctx, current.ID, change); err != nil {
			return err
		}

		if products != nil {
			ledger := newStockLedger(products, logger)
			for _, line := range current.Lines {
				if _, ok := products[line.ProductID]; !ok {
					logger.Warn("stock effect skipped: product no longer exists", zap.String("productId", line.ProductID))
					continue
				}
				if plan.restock {
					ledger.Increment(line.ProductID, current.WarehouseID, line.Qty)
				} else {
					ledger.Compensate(line.ProductID, current.WarehouseID, line.Qty)
				}
			}
			if err := ledger.Apply(ctx, tx); err != nil {
				return err
			}
		}

		var delta domain.MetricsDelta
		switch {
		case plan.reverse:
			delta = reversalDelta(current.Totals, cmd.AddedLosses)
		case plan.reaccrue:
			delta = accrualDelta(current.Totals)
		case plan.leavingOK && cmd.AddedLosses > 0:
			delta = lossDelta(cmd.AddedLosses)
		}
		if err := applyMetrics(ctx, tx, current.CreatedAt, delta); err != nil {
			return err
		}

		updated = current
		updated.Status = cmd.NewStatus
		updated.StatusHistory = append(slices.Clone(current.StatusHistory), entry)
		if change.Loss != nil {
			updated.ExtraLossesHistory = append(slices.Clone(current.ExtraLossesHistory), *change.Loss)
		}
		return nil
	})
	if err != nil {
		return domain.Order{}, s.fail(ctx, logger, "orders.updateStatus", err)
	}

	s.metrics.StatusChanged(ctx, string(entry.OldStatus), string(entry.NewStatus))
	logger.Info("order status changed",
		zap.String("oldStatus", string(entry.OldStatus)),
		zap.String("newStatus", string(entry.NewStatus)),
		zap.Bool("reversedMetrics", entry.ReversedMetrics),
		zap.Bool("restocked", entry.Restocked),
		zap.Float64("addedLoss", entry.AddedLoss),
	)
	s.publish(ctx, logger, OrderEvent{
		Type:            OrderEventStatusChanged,
		TenantID:        cmd.TenantID,
		OrderID:         updated.ID,
		WarehouseID:     updated.WarehouseID,
		OldStatus:       entry.OldStatus,
		NewStatus:       entry.NewStatus,
		Totals:          updated.Totals,
		ReversedMetrics: entry.ReversedMetrics,
		Restocked:       entry.Restocked,
		AddedLoss:       entry.AddedLoss,
		ActorID:         actor,
		OccurredAt:      now,
	})
	return updated, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) ([]domain.Order, error) {
	if err := validateCommand(filter); err != nil {
		return nil, err
	}

	query := repositories.OrderListFilter{
		WarehouseID: strings.TrimSpace(filter.WarehouseID),
		Limit:       s.listLimit,
		Order:       domain.SortDesc,
	}
	if month := strings.TrimSpace(filter.Month); month != "" {
		start, end, err := domain.MonthRange(month)
		if err != nil {
			return nil, invalidRequest("%v", err)
		}
		query.CreatedAt = domain.RangeQuery[time.Time]{From: &start, To: &end}
	}

	orders, err := s.orders.List(ctx, filter.TenantID, query)
	if err != nil {
		return nil, classifyError(s.loggerFor(ctx, filter.TenantID), "orders.list", err)
	}
	return orders, nil
}

func (s *orderService) GetOrder(ctx context.Context, tenantID, orderID string) (domain.Order, error) {
	tenantID = strings.TrimSpace(tenantID)
	orderID = strings.TrimSpace(orderID)
	if tenantID == "" || orderID == "" {
		return domain.Order{}, invalidRequest("tenant id and order id are required")
	}
	order, err := s.orders.FindByID(ctx, tenantID, orderID)
	if err != nil {
		return domain.Order{}, classifyError(s.loggerFor(ctx, tenantID), "orders.get", err)
	}
	return order, nil
}

func (s *orderService) fail(ctx context.Context, logger *zap.Logger, op string, err error) error {
	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) && stockErr.Code == repositories.StockErrorInsufficient {
		s.metrics.StockConflict(ctx, op)
	}
	return classifyError(logger, op, err)
}

// publish sends event without blocking the caller. Failures are logged only.
// Drain waits for in-flight event publishes, giving up when ctx ends.
func (s *orderService) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *orderService) publish(ctx context.Context, logger *zap.Logger, event OrderEvent) {
	if s.events == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		ctx, cancel := context.WithTimeout(ctx, eventPublishTimeout)
		defer cancel()
		id, err := s.events.PublishOrderEvent(ctx, event)
		if err != nil {
			logger.Error("order event publish failed",
				zap.String("eventType", event.Type),
				zap.String("orderId", event.OrderID),
				zap.Error(err),
			)
			return
		}
		logger.Debug("order event published", zap.String("eventType", event.Type), zap.String("messageId", id))
	}()
}

func (s *orderService) loggerFor(ctx context.Context, tenantID string) *zap.Logger {
	return serviceLogger(ctx, s.logger, tenantID)
}

// serviceLogger prefers the injected logger and falls back to the one carried by ctx.
func serviceLogger(ctx context.Context, logger *zap.Logger, tenantID string) *zap.Logger {
	if logger == nil {
		logger = requestctx.Logger(ctx)
	}
	return logger.With(zap.String("tenantId", tenantID))
}

// lineProductIDs returns the distinct product ids of lines in first-seen order.
func lineProductIDs[T any](lines []T, id func(T) string) []string {
	seen := make(map[string]struct{}, len(lines))
	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		pid := id(line)
		if _, ok := seen[pid]; ok {
			continue
		}
		seen[pid] = struct{}{}
		ids = append(ids, pid)
	}
	return ids
}
