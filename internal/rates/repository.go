package rates

import (
	"context"
	"fmt"
	"time"

	"valuta/internal/core"
	"valuta/internal/exchange"
	applog "valuta/internal/log"
	"valuta/internal/metrics"
)

// Config controls a Repository.
type Config struct {
	// Timeout bounds each fetch; zero disables the bound.
	Timeout time.Duration
	Now     func() time.Time
}

// DefaultConfig returns the default fetch settings.
func DefaultConfig() Config {
	return Config{
		Timeout: 10 * time.Second,
		Now:     time.Now,
	}
}

// Repository fetches rate tables. It keeps no state between calls and never
// retries; retention of old tables is up to the caller.
type Repository struct {
	source  exchange.RateSource
	timeout time.Duration
	now     func() time.Time
	metrics *metrics.Metrics
	logger  *applog.Logger
}

func NewRepository(source exchange.RateSource, cfg Config, m *metrics.Metrics, logger *applog.Logger) *Repository {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = applog.Discard()
	}
	return &Repository{
		source:  source,
		timeout: cfg.Timeout,
		now:     cfg.Now,
		metrics: m,
		logger:  logger.WithComponent(applog.ComponentRates),
	}
}

// Fetch requests the current table for baseCode.
func (r *Repository) Fetch(ctx context.Context, baseCode string) (core.RateTable, error) {
	base := core.NormalizeCode(baseCode)
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	table, err := r.fetch(ctx, base)
	r.metrics.ObserveFetch(metrics.SourceRates, time.Since(start), err)

	if err != nil {
		r.logger.WarnContext(ctx, "Rate fetch failed",
			applog.FieldBaseCode, base,
			applog.FieldErrorKind, core.KindOf(err).String(),
			applog.FieldError, err)
		return core.RateTable{}, fmt.Errorf("fetch rates for %s: %w", base, err)
	}

	r.logger.DebugContext(ctx, "Rate table fetched",
		applog.FieldBaseCode, table.BaseCode,
		applog.FieldRateCount, len(table.Rates),
		applog.FieldDuration, time.Since(start).Milliseconds())
	return table, nil
}

func (r *Repository) fetch(ctx context.Context, base string) (core.RateTable, error) {
	if r.source == nil {
		return core.RateTable{}, core.NewConfigurationError("no rate source configured")
	}
	payload, err := r.source.LatestRates(ctx, base)
	if err != nil {
		return core.RateTable{}, core.Classify(ctx, err)
	}

	tableBase := payload.BaseCode
	if core.NormalizeCode(tableBase) == "" {
		tableBase = base
	}
	table, err := core.NewRateTable(tableBase, payload.Rates, r.now())
	if err != nil {
		return core.RateTable{}, core.NewDecodeError(err)
	}
	table.UpdatedAt = payload.UpdatedAt
	return table, nil
}
