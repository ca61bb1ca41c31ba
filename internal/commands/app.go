package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"

	"valuta/internal/backend"
	"valuta/internal/catalog"
	"valuta/internal/cli"
	"valuta/internal/config"
	applog "valuta/internal/log"
	"valuta/internal/metrics"
	"valuta/internal/preferences"
	"valuta/internal/rates"
)

// app holds the components shared by the commands.
type app struct {
	cfg     *config.Config
	logger  *applog.Logger
	metrics *metrics.Metrics
	rates   *rates.Repository
	catalog *catalog.Catalog
	prefs   *preferences.Store
	cleanup backend.CleanupFunc
}

// newApp loads configuration and builds the backend. Logs go to logOut.
// A nil reg leaves the metrics unregistered.
func newApp(ctx context.Context, reg prometheus.Registerer, logOut io.Writer) (*app, error) {
	cli.LoadEnvFile()
	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		return nil, err
	}
	logger := cli.SetupLogger(cfg, logOut)

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	result, err := backend.NewFactory(logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, fmt.Errorf("create backend: %w", err)
	}

	m := metrics.New(reg)
	return &app{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		rates:   rates.NewRepository(result.Backend.Rates, rates.Config{Timeout: cfg.FetchTimeout}, m, logger),
		catalog: catalog.New(result.Backend.Codes, catalog.Config{TTL: cfg.CatalogTTL, Timeout: cfg.FetchTimeout}, m, logger),
		prefs:   preferences.New(result.Backend.Prefs, cfg.DefaultBaseCurrency, logger),
		cleanup: result.Cleanup,
	}, nil
}

func (a *app) Close() {
	if a.cleanup == nil {
		return
	}
	if err := a.cleanup(); err != nil {
		a.logger.Warn("Backend cleanup failed", applog.FieldError, err.Error())
	}
}
