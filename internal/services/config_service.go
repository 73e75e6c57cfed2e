package services

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/currency"

	domain "github.com/m5zonk/api/internal/domain"
	"github.com/m5zonk/api/internal/repositories"
)

// ConfigServiceDeps bundles collaborators required to construct the config service.
type ConfigServiceDeps struct {
	Configs repositories.ConfigRepository
	Logger  *zap.Logger
}

type configService struct {
	configs repositories.ConfigRepository
	logger  *zap.Logger
}

// NewConfigService constructs the tenant config provider.
func NewConfigService(deps ConfigServiceDeps) (ConfigService, error) {
	if deps.Configs == nil {
		return nil, errors.New("config service: config repository is required")
	}
	return &configService{configs: deps.Configs, logger: deps.Logger}, nil
}

func (s *configService) GetConfig(ctx context.Context, tenantID string) (domain.TenantConfig, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return domain.TenantConfig{}, invalidRequest("tenant id is required")
	}
	logger := serviceLogger(ctx, s.logger, tenantID)

	cfg, err := s.configs.Get(ctx, tenantID)
	if err != nil {
		return domain.TenantConfig{}, classifyError(logger, "config.get", err)
	}

	normalised, err := normaliseCurrency(cfg.Currency)
	if err != nil {
		logger.Warn("tenant currency is not an ISO 4217 code", zap.String("currency", cfg.Currency))
		return domain.TenantConfig{}, &Error{Kind: ErrInternal, Message: internalMessage, Err: err}
	}
	cfg.Currency = normalised
	cfg.TenantID = tenantID
	return cfg, nil
}

// normaliseCurrency validates an ISO 4217 code. An empty value is accepted as unset.
func normaliseCurrency(code string) (string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", nil
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return "", err
	}
	return unit.String(), nil
}
