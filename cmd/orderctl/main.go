// Command orderctl runs order engine operations against Firestore from the shell:
//
//	orderctl create -tenant adm_1 -file order.json
//	orderctl status -tenant adm_1 -order ord_01 -to Returned -reverse -restock -loss 2.5
//	orderctl adjust -tenant adm_1 -product P1 -change -3 -warehouse wh_main
//	orderctl get    -tenant adm_1 -order ord_01
//	orderctl list   -tenant adm_1 -month 2025-05
//
// Results are printed as camelCase JSON on stdout; list always prints an array.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	domain "github.com/m5zonk/api/internal/domain"
	"github.com/m5zonk/api/internal/di"
	"github.com/m5zonk/api/internal/platform/observability"
	"github.com/m5zonk/api/internal/platform/requestctx"
	"github.com/m5zonk/api/internal/services"
)

// command is a parsed subcommand bound to its flags.
type command struct {
	tenantID string
	actor    string
	exec     func(ctx context.Context, svc di.Services) (any, error)
}

func main() {
	cmd, err := parseCommand(os.Args[1:], os.Stdin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "orderctl: %v\n", err)
		os.Exit(2)
	}

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("orderctl")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, cmd, os.Stdout); err != nil {
		var svcErr *services.Error
		if errors.As(err, &svcErr) {
			logger.Error("operation rejected", zap.Int("status", svcErr.Status()), zap.Error(err))
		} else {
			logger.Error("operation failed", zap.Error(err))
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *zap.Logger, cmd command, out io.Writer) error {
	rt, err := di.NewRuntime(ctx, logger, di.WithOrderEvents())
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := rt.Close(closeCtx); err != nil {
			logger.Warn("runtime close error", zap.Error(err))
		}
	}()

	ctx = requestctx.WithTenant(ctx, cmd.tenantID)
	ctx = observability.WithLogger(ctx, logger)
	if cmd.actor != "" {
		ctx = requestctx.WithActor(ctx, cmd.actor)
	}

	result, err := cmd.exec(ctx, rt.Container.Services)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func parseCommand(args []string, stdin io.Reader) (command, error) {
	if len(args) == 0 {
		return command{}, errors.New("expected a subcommand: create, status, adjust, get or list")
	}
	name, rest := args[0], args[1:]
	fs := flag.NewFlagSet(name, flag.ContinueOnError)

	var cmd command
	fs.StringVar(&cmd.tenantID, "tenant", "", "tenant (admin) id")
	fs.StringVar(&cmd.actor, "actor", "", "acting user id recorded in the status history")

	var build func() error
	switch name {
	case "create":
		file := fs.String("file", "-", "order JSON file, - for stdin")
		build = func() error {
			payload, err := readPayload(*file, stdin)
			if err != nil {
				return err
			}
			var create services.CreateOrderCommand
			if err := json.Unmarshal(payload, &create); err != nil {
				return fmt.Errorf("decode order: %w", err)
			}
			create.TenantID = cmd.tenantID
			cmd.exec = func(ctx context.Context, svc di.Services) (any, error) {
				order, err := svc.Orders.CreateOrder(ctx, create)
				if err != nil {
					return nil, err
				}
				return newOrderResponse(order), nil
			}
			return nil
		}
	case "status":
		orderID := fs.String("order", "", "order id")
		to := fs.String("to", "", "new status: OK, Returned or Canceled")
		notes := fs.String("notes", "", "free-text note")
		reverse := fs.Bool("reverse", false, "reverse or re-accrue the order's metrics")
		restock := fs.Bool("restock", false, "return the order's quantities to stock")
		loss := fs.Float64("loss", 0, "additional loss booked with the transition")
		build = func() error {
			update := services.UpdateOrderStatusCommand{
				TenantID:       cmd.tenantID,
				OrderID:        strings.TrimSpace(*orderID),
				NewStatus:      domain.OrderStatus(strings.TrimSpace(*to)),
				Notes:          *notes,
				ReverseMetrics: *reverse,
				RestockItems:   *restock,
				AddedLosses:    *loss,
			}
			if cmd.actor != "" {
				actor := cmd.actor
				update.ActorID = &actor
			}
			cmd.exec = func(ctx context.Context, svc di.Services) (any, error) {
				order, err := svc.Orders.UpdateOrderStatus(ctx, update)
				if err != nil {
					return nil, err
				}
				return newOrderResponse(order), nil
			}
			return nil
		}
	case "adjust":
		productID := fs.String("product", "", "product id")
		change := fs.Int("change", 0, "signed quantity change")
		warehouseID := fs.String("warehouse", "", "warehouse id; empty adjusts the global counter")
		build = func() error {
			adjust := services.AdjustStockCommand{
				TenantID:    cmd.tenantID,
				ProductID:   strings.TrimSpace(*productID),
				Change:      *change,
				WarehouseID: strings.TrimSpace(*warehouseID),
			}
			cmd.exec = func(ctx context.Context, svc di.Services) (any, error) {
				adj, err := svc.Inventory.AdjustStock(ctx, adjust)
				if err != nil {
					return nil, err
				}
				return newStockAdjustmentResponse(adj), nil
			}
			return nil
		}
	case "get":
		orderID := fs.String("order", "", "order id")
		build = func() error {
			id := strings.TrimSpace(*orderID)
			cmd.exec = func(ctx context.Context, svc di.Services) (any, error) {
				order, err := svc.Orders.GetOrder(ctx, cmd.tenantID, id)
				if err != nil {
					return nil, err
				}
				return newOrderResponse(order), nil
			}
			return nil
		}
	case "list":
		month := fs.String("month", "", "YYYY-MM filter")
		warehouseID := fs.String("warehouse", "", "warehouse id filter")
		build = func() error {
			filter := services.OrderListFilter{
				TenantID:    cmd.tenantID,
				Month:       strings.TrimSpace(*month),
				WarehouseID: strings.TrimSpace(*warehouseID),
			}
			cmd.exec = func(ctx context.Context, svc di.Services) (any, error) {
				orders, err := svc.Orders.ListOrders(ctx, filter)
				if err != nil {
					return nil, err
				}
				return newOrderListResponse(orders), nil
			}
			return nil
		}
	default:
		return command{}, fmt.Errorf("unknown subcommand %q", name)
	}

	if err := fs.Parse(rest); err != nil {
		return command{}, err
	}
	cmd.tenantID = strings.TrimSpace(cmd.tenantID)
	cmd.actor = strings.TrimSpace(cmd.actor)
	if cmd.tenantID == "" {
		return command{}, errors.New("-tenant is required")
	}
	if err := build(); err != nil {
		return command{}, err
	}
	return cmd, nil
}

func readPayload(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}
