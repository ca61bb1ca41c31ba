package catalog

import (
	"context"
	"time"

	"valuta/internal/cache"
	"valuta/internal/core"
	"valuta/internal/exchange"
	applog "valuta/internal/log"
	"valuta/internal/metrics"
)

const (
	cacheName = "catalog"
	cacheKey  = "supported_codes"
)

type Config struct {
	// TTL is how long a fetched catalog is served without a new request.
	TTL time.Duration
	// Timeout bounds each fetch; zero disables the bound.
	Timeout time.Duration
	// Now overrides the cache clock, for tests.
	Now func() time.Time
}

func DefaultConfig() Config {
	return Config{
		TTL:     24 * time.Hour,
		Timeout: 10 * time.Second,
	}
}

// Catalog resolves currency codes to display names. Failures only degrade
// display; callers fall back to showing codes.
type Catalog struct {
	source  exchange.CodeSource
	cache   *cache.LRUCache[core.Catalog]
	timeout time.Duration
	metrics *metrics.Metrics
	logger  *applog.Logger
}

func New(source exchange.CodeSource, cfg Config, m *metrics.Metrics, logger *applog.Logger) *Catalog {
	if logger == nil {
		logger = applog.Discard()
	}
	opts := []cache.Option{cache.WithLookupHook(func(hit bool) { m.CacheLookup(cacheName, hit) })}
	if cfg.Now != nil {
		opts = append(opts, cache.WithClock(cfg.Now))
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultConfig().TTL
	}
	return &Catalog{
		source:  source,
		cache:   cache.NewLRUCache[core.Catalog](1, ttl, opts...),
		timeout: cfg.Timeout,
		metrics: m,
		logger:  logger.WithComponent(applog.ComponentCatalog),
	}
}

// FetchAll returns the code to name map, from cache while it is fresh.
func (c *Catalog) FetchAll(ctx context.Context) (core.Catalog, error) {
	if cached, ok := c.cache.Get(cacheKey); ok {
		return cached.Clone(), nil
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	cat, err := c.fetch(ctx)
	c.metrics.ObserveFetch(metrics.SourceCodes, time.Since(start), err)
	if err != nil {
		c.logger.WarnContext(ctx, "Catalog fetch failed",
			applog.FieldErrorKind, core.KindOf(err).String(),
			applog.FieldError, err)
		return nil, err
	}

	c.cache.Set(cacheKey, cat)
	c.logger.DebugContext(ctx, "Catalog fetched", "count", len(cat))
	return cat.Clone(), nil
}

func (c *Catalog) fetch(ctx context.Context) (core.Catalog, error) {
	if c.source == nil {
		return nil, core.NewConfigurationError("no code source configured")
	}
	pairs, err := c.source.SupportedCodes(ctx)
	if err != nil {
		return nil, core.Classify(ctx, err)
	}
	return core.CatalogFromPairs(pairs), nil
}

// Invalidate drops the cached catalog so the next FetchAll goes remote.
func (c *Catalog) Invalidate() {
	c.cache.Delete(cacheKey)
}

// Name returns the cached display name for code, or code when unknown.
func (c *Catalog) Name(code string) string {
	cached, _ := c.cache.Get(cacheKey)
	return cached.Name(code)
}

// CleanExpired implements cache.Cleaner.
func (c *Catalog) CleanExpired() int {
	return c.cache.CleanExpired()
}
