package services

import (
	"context"
	"testing"

	domain "github.com/m5zonk/api/internal/domain"
	"github.com/m5zonk/api/internal/repositories/memory"
)

type stubConfigRepository struct {
	getFn func(ctx context.Context, tenantID string) (domain.TenantConfig, error)
}

func (s stubConfigRepository) Get(ctx context.Context, tenantID string) (domain.TenantConfig, error) {
	return s.getFn(ctx, tenantID)
}

func TestGetConfigNormalisesCurrency(t *testing.T) {
	svc, err := NewConfigService(ConfigServiceDeps{Configs: stubConfigRepository{getFn: func(_ context.Context, tenantID string) (domain.TenantConfig, error) {
		if tenantID != testTenant {
			t.Fatalf("unexpected tenant %q", tenantID)
		}
		return domain.TenantConfig{Currency: " eur ", DefaultWarehouseID: "wh_main", MaxProducts: 50}, nil
	}}})
	if err != nil {
		t.Fatalf("NewConfigService: %v", err)
	}

	cfg, err := svc.GetConfig(context.Background(), " adm_1 ")
	if err != nil {
		t.Fatalf("GetConfig: %v", err)
	}
	if cfg.Currency != "EUR" || cfg.TenantID != testTenant || cfg.DefaultWarehouseID != "wh_main" || cfg.MaxProducts != 50 {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestGetConfigFailures(t *testing.T) {
	store := memory.NewStore()
	store.PutConfig("adm_bad", domain.TenantConfig{Currency: "DOLLARS"})

	svc, err := NewConfigService(ConfigServiceDeps{Configs: store.Configs()})
	if err != nil {
		t.Fatalf("NewConfigService: %v", err)
	}

	_, err = svc.GetConfig(context.Background(), "adm_missing")
	expectKind(t, err, ErrNotFound)

	_, err = svc.GetConfig(context.Background(), "adm_bad")
	expectKind(t, err, ErrInternal)

	_, err = svc.GetConfig(context.Background(), "")
	expectKind(t, err, ErrInvalidRequest)
}

func TestGetConfigAllowsUnsetCurrency(t *testing.T) {
	store := memory.NewStore()
	store.PutConfig(testTenant, domain.TenantConfig{DefaultWarehouseID: "wh_main"})
	svc, _ := NewConfigService(ConfigServiceDeps{Configs: store.Configs()})

	cfg, err := svc.GetConfig(context.Background(), testTenant)
	if err != nil {
		t.Fatalf("GetConfig: %v", err)
	}
	if cfg.Currency != "" {
		t.Fatalf("unexpected currency %q", cfg.Currency)
	}
}
