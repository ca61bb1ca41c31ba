// Package state owns the application state and serializes every mutation
// through a single loop goroutine.
package state

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"valuta/internal/core"
	applog "valuta/internal/log"
	"valuta/internal/metrics"
)

var (
	ErrNotStarted = errors.New("state controller not started")
	ErrStopped    = errors.New("state controller stopped")
)

// RateFetcher loads a rate table for a base currency.
type RateFetcher interface {
	Fetch(ctx context.Context, baseCode string) (core.RateTable, error)
}

// CatalogFetcher loads the code-to-name catalog.
type CatalogFetcher interface {
	FetchAll(ctx context.Context) (core.Catalog, error)
	Invalidate()
}

// Preferences persists the base currency and favorites.
type Preferences interface {
	LoadBase(ctx context.Context) string
	SaveBase(ctx context.Context, code string) error
	LoadFavorites(ctx context.Context) []string
	SaveFavorites(ctx context.Context, codes []string) error
}

type Config struct {
	DefaultBase   string
	DefaultFrom   string
	DefaultTo     string
	DefaultAmount string
	// AutoRefresh re-fetches rates periodically; zero disables it.
	AutoRefresh  time.Duration
	WriteTimeout time.Duration
	WriteQueue   int
}

func DefaultConfig() Config {
	return Config{
		DefaultBase:   core.DefaultBaseCode,
		DefaultFrom:   core.FallbackFromCode,
		DefaultTo:     core.DefaultToCode,
		DefaultAmount: core.DefaultAmount,
		WriteTimeout:  5 * time.Second,
		WriteQueue:    64,
	}
}

type write struct {
	op string
	fn func(ctx context.Context) error
}

type Controller struct {
	rates   RateFetcher
	catalog CatalogFetcher
	prefs   Preferences
	cfg     Config
	metrics *metrics.Metrics
	logger  *applog.Logger
	slogger *applog.StructuredLogger

	ops     chan func()
	writes  chan write
	done    chan struct{}
	wdone   chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	fetches sync.WaitGroup

	started   atomic.Bool
	startOnce sync.Once
	stopOnce  sync.Once

	// loop-owned
	state      ApplicationState
	rateGen    uint64
	catalogGen uint64
	dirty      bool
	version    uint64

	latest atomic.Pointer[Snapshot]

	subMu   sync.Mutex
	subs    map[uint64]chan Snapshot
	nextSub uint64
	closed  bool
}

func New(rates RateFetcher, catalog CatalogFetcher, prefs Preferences, cfg Config, m *metrics.Metrics, logger *applog.Logger) *Controller {
	def := DefaultConfig()
	if cfg.DefaultBase == "" {
		cfg.DefaultBase = def.DefaultBase
	}
	if cfg.DefaultFrom == "" {
		cfg.DefaultFrom = def.DefaultFrom
	}
	if cfg.DefaultTo == "" {
		cfg.DefaultTo = def.DefaultTo
	}
	if cfg.DefaultAmount == "" {
		cfg.DefaultAmount = def.DefaultAmount
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.WriteQueue <= 0 {
		cfg.WriteQueue = def.WriteQueue
	}
	if logger == nil {
		logger = applog.Discard()
	}
	logger = logger.WithComponent(applog.ComponentState)

	c := &Controller{
		rates:   rates,
		catalog: catalog,
		prefs:   prefs,
		cfg:     cfg,
		metrics: m,
		logger:  logger,
		slogger: applog.NewStructuredLogger(logger),
		ops:     make(chan func()),
		writes:  make(chan write, cfg.WriteQueue),
		done:    make(chan struct{}),
		wdone:   make(chan struct{}),
		subs:    make(map[uint64]chan Snapshot),
		state: newState(
			core.NormalizeCode(cfg.DefaultBase),
			core.NormalizeCode(cfg.DefaultFrom),
			core.NormalizeCode(cfg.DefaultTo),
			cfg.DefaultAmount,
		),
	}
	initial := c.state.snapshot(0)
	c.latest.Store(&initial)
	return c
}

// Start launches the state loop and the persistence writer. The loop exits
// when ctx is cancelled or Stop is called.
func (c *Controller) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		c.ctx, c.cancel = context.WithCancel(ctx)
		c.started.Store(true)
		go c.run()
		go c.writer()
		c.logger.Info("State controller started", applog.FieldOperation, applog.OpStartup)
	})
}

// Stop ends the loop, waits for in-flight fetches and drains pending writes.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() {
		if !c.started.Load() {
			close(c.writes)
			return
		}
		c.cancel()
		<-c.done
		c.fetches.Wait()
		close(c.writes)
		<-c.wdone
		c.logger.Info("State controller stopped", applog.FieldOperation, applog.OpShutdown)
	})
}

// Done is closed once the loop has exited.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

func (c *Controller) run() {
	defer close(c.done)
	defer c.closeSubscribers()

	var tick <-chan time.Time
	if c.cfg.AutoRefresh > 0 {
		ticker := time.NewTicker(c.cfg.AutoRefresh)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-c.ctx.Done():
			return
		case op := <-c.ops:
			op()
		case <-tick:
			c.logger.Debug("Auto refresh", applog.FieldBaseCode, c.state.BaseCode)
			c.triggerRates()
			c.flush()
		}
	}
}

// do runs fn on the loop and waits until it has been applied.
func (c *Controller) do(ctx context.Context, fn func()) error {
	if !c.started.Load() {
		return ErrNotStarted
	}
	ack := make(chan struct{})
	op := func() {
		fn()
		c.flush()
		close(ack)
	}
	select {
	case c.ops <- op:
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-ack:
		return nil
	case <-c.done:
		return ErrStopped
	}
}

// post hands a completion to the loop without waiting for it.
func (c *Controller) post(fn func()) {
	op := func() {
		fn()
		c.flush()
	}
	select {
	case c.ops <- op:
	case <-c.done:
	}
}

func (c *Controller) changed() {
	c.dirty = true
}

func (c *Controller) flush() {
	if !c.dirty {
		return
	}
	c.dirty = false
	c.version++
	snap := c.state.snapshot(c.version)
	c.latest.Store(&snap)
	c.broadcast(snap)
}

// Init loads persisted preferences and starts the initial rate and catalog
// fetches concurrently.
func (c *Controller) Init(ctx context.Context) error {
	base := c.prefs.LoadBase(ctx)
	favorites := c.prefs.LoadFavorites(ctx)
	return c.do(ctx, func() {
		if base != "" {
			c.state.BaseCode = core.NormalizeCode(base)
		}
		c.state.Favorites = make(map[string]struct{}, len(favorites))
		for _, code := range favorites {
			c.state.Favorites[core.NormalizeCode(code)] = struct{}{}
		}
		c.changed()
		c.triggerRates()
		c.triggerCatalog()
	})
}

// SetBaseCurrency switches the base currency, persists it and refetches.
func (c *Controller) SetBaseCurrency(ctx context.Context, code string) error {
	code = core.NormalizeCode(code)
	if code == "" {
		return core.ErrEmptyCode
	}
	return c.do(ctx, func() {
		c.state.BaseCode = code
		c.changed()
		c.persist("save base currency", func(ctx context.Context) error {
			return c.prefs.SaveBase(ctx, code)
		})
		c.triggerRates()
	})
}

// Refresh refetches rates for the current base, keeping the shown table.
func (c *Controller) Refresh(ctx context.Context) error {
	return c.do(ctx, c.triggerRates)
}

// ReloadCatalog drops the cached catalog and fetches it again.
func (c *Controller) ReloadCatalog(ctx context.Context) error {
	return c.do(ctx, func() {
		c.catalog.Invalidate()
		c.triggerCatalog()
	})
}

func (c *Controller) SwapFromTo(ctx context.Context) error {
	return c.do(ctx, func() {
		c.state.FromCode, c.state.ToCode = c.state.ToCode, c.state.FromCode
		c.changed()
	})
}

func (c *Controller) SetFrom(ctx context.Context, code string) error {
	code = core.NormalizeCode(code)
	if code == "" {
		return core.ErrEmptyCode
	}
	return c.do(ctx, func() {
		c.state.FromCode = code
		c.changed()
	})
}

func (c *Controller) SetTo(ctx context.Context, code string) error {
	code = core.NormalizeCode(code)
	if code == "" {
		return core.ErrEmptyCode
	}
	return c.do(ctx, func() {
		c.state.ToCode = code
		c.changed()
	})
}

// SetAmount stores the raw amount text; unparsable input converts to zero.
func (c *Controller) SetAmount(ctx context.Context, raw string) error {
	return c.do(ctx, func() {
		c.state.AmountRaw = raw
		c.changed()
	})
}

func (c *Controller) ToggleFavorite(ctx context.Context, code string) error {
	code = core.NormalizeCode(code)
	if code == "" {
		return core.ErrEmptyCode
	}
	return c.do(ctx, func() {
		if _, ok := c.state.Favorites[code]; ok {
			delete(c.state.Favorites, code)
		} else {
			c.state.Favorites[code] = struct{}{}
		}
		c.changed()
		favorites := sortedSet(c.state.Favorites)
		c.persist("save favorites", func(ctx context.Context) error {
			return c.prefs.SaveFavorites(ctx, favorites)
		})
	})
}

func (c *Controller) SetFavoritesOnly(ctx context.Context, enabled bool) error {
	return c.do(ctx, func() {
		c.state.FavoritesOnly = enabled
		c.changed()
	})
}

// Snapshot returns the state as of the last applied mutation.
func (c *Controller) Snapshot() Snapshot {
	return *c.latest.Load()
}

func (c *Controller) AvailableCurrencies() []string {
	return c.Snapshot().Available
}

func (c *Controller) ConvertedAmount() float64 {
	return c.Snapshot().Converted
}

func (c *Controller) triggerRates() {
	c.rateGen++
	gen := c.rateGen
	base := c.state.BaseCode
	if c.state.Rates == nil && !c.state.IsLoading {
		c.state.IsLoading = true
		c.changed()
	}

	c.fetches.Add(1)
	go func() {
		defer c.fetches.Done()
		table, err := c.rates.Fetch(c.ctx, base)
		c.post(func() { c.applyRates(gen, base, table, err) })
	}()
}

func (c *Controller) applyRates(gen uint64, base string, table core.RateTable, err error) {
	if gen != c.rateGen {
		c.metrics.StaleResponse(metrics.SourceRates)
		c.logger.Debug("Discarding stale rate response",
			applog.FieldBaseCode, base,
			applog.FieldGeneration, gen,
		)
		return
	}

	c.state.IsLoading = false
	c.changed()
	if err != nil {
		c.state.LastError = err
		c.slogger.LogError(c.ctx, "Rate fetch failed", err, applog.ComponentState, applog.OpRefresh,
			applog.NewFields().WithRates(base, 0, gen))
		return
	}

	c.state.Rates = &table
	c.state.LastError = nil
	c.state.LastUpdatedLabel = updatedLabel(table.UpdatedAt)
	from, to := reconcile(&table, c.state.FromCode, c.state.ToCode, c.state.BaseCode)
	if from != c.state.FromCode || to != c.state.ToCode {
		c.logger.Debug("Selection reconciled with new table",
			applog.NewFields().WithSelection(from, to).WithRates(table.BaseCode, len(table.Rates), gen).ToSlice()...)
		c.state.FromCode, c.state.ToCode = from, to
	}
	c.metrics.SetRateTableSize(len(table.Rates))
	c.slogger.LogRatesApplied(c.ctx, table.BaseCode, len(table.Rates), gen)
}

func (c *Controller) triggerCatalog() {
	c.catalogGen++
	gen := c.catalogGen

	c.fetches.Add(1)
	go func() {
		defer c.fetches.Done()
		names, err := c.catalog.FetchAll(c.ctx)
		c.post(func() { c.applyCatalog(gen, names, err) })
	}()
}

func (c *Controller) applyCatalog(gen uint64, names core.Catalog, err error) {
	if gen != c.catalogGen {
		c.metrics.StaleResponse(metrics.SourceCodes)
		return
	}
	c.changed()
	if err != nil {
		c.state.CatalogError = err
		c.logger.Warn("Catalog fetch failed", applog.FieldError, err.Error())
		return
	}
	c.state.Catalog = names
	c.state.CatalogError = nil
}

// persist queues a write for the writer goroutine. Writes run in the order
// they were queued.
func (c *Controller) persist(op string, fn func(ctx context.Context) error) {
	select {
	case c.writes <- write{op: op, fn: fn}:
	default:
		c.logger.Warn("Persistence queue full, dropping write", applog.FieldOperation, op)
	}
}

func (c *Controller) writer() {
	defer close(c.wdone)
	for w := range c.writes {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.WriteTimeout)
		if err := w.fn(ctx); err != nil {
			c.slogger.LogError(ctx, "Failed to "+w.op, err, applog.ComponentStorage, applog.OpPersist, nil)
		}
		cancel()
	}
}
