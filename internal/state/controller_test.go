package state

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"valuta/internal/catalog"
	"valuta/internal/core"
	"valuta/internal/exchange/memory"
	kvmemory "valuta/internal/kv/memory"
	"valuta/internal/metrics"
	"valuta/internal/preferences"
	"valuta/internal/rates"
)

type fixture struct {
	src     *memory.Source
	kv      *kvmemory.Store
	prefs   *preferences.Store
	metrics *metrics.Metrics
	ctrl    *Controller
}

func newFixture(t *testing.T, src *memory.Source, store *kvmemory.Store, cfg Config) *fixture {
	t.Helper()
	if store == nil {
		store = kvmemory.New()
	}
	m := metrics.New(prometheus.NewRegistry())
	base := cfg.DefaultBase
	if base == "" {
		base = core.DefaultBaseCode
	}
	prefs := preferences.New(store, base, nil)
	ctrl := New(
		rates.NewRepository(src, rates.Config{Timeout: 2 * time.Second}, m, nil),
		catalog.New(src, catalog.Config{TTL: time.Hour, Timeout: 2 * time.Second}, m, nil),
		prefs, cfg, m, nil,
	)
	ctrl.Start(context.Background())
	t.Cleanup(ctrl.Stop)
	return &fixture{src: src, kv: store, prefs: prefs, metrics: m, ctrl: ctrl}
}

func waitFor(t *testing.T, c *Controller, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	require.Eventually(t, func() bool { return cond(c.Snapshot()) }, 2*time.Second, 5*time.Millisecond)
	return c.Snapshot()
}

func loaded(s Snapshot) bool {
	return s.Rates != nil && !s.IsLoading && len(s.Catalog) > 0
}

func smallSource() *memory.Source {
	return memory.New("USD", map[string]float64{"USD": 1, "EUR": 0.9, "GBP": 0.8}, map[string]string{
		"USD": "United States Dollar",
		"EUR": "Euro",
		"GBP": "Pound Sterling",
	})
}

func TestInitialSnapshot(t *testing.T) {
	ctrl := New(nil, nil, nil, Config{}, nil, nil)
	s := ctrl.Snapshot()

	assert.Equal(t, "UAH", s.BaseCode)
	assert.Equal(t, "USD", s.FromCode)
	assert.Equal(t, "UAH", s.ToCode)
	assert.Equal(t, "100", s.AmountRaw)
	assert.Equal(t, "Updating...", s.LastUpdatedLabel)
	assert.Nil(t, s.Rates)
	assert.Empty(t, s.Available)
	assert.Zero(t, s.Converted)
	assert.False(t, s.NeedsRetry)
}

func TestInitLoadsRatesAndCatalog(t *testing.T) {
	f := newFixture(t, memory.NewDemo(), nil, Config{})
	require.NoError(t, f.ctrl.Init(context.Background()))

	s := waitFor(t, f.ctrl, loaded)
	assert.Equal(t, "UAH", s.Rates.BaseCode)
	assert.Equal(t, "USD", s.FromCode)
	assert.Equal(t, "UAH", s.ToCode)
	assert.InDelta(t, 4130, s.Converted, 1e-6)
	assert.Len(t, s.Available, 10)
	assert.Equal(t, "Euro", s.Catalog.Name("EUR"))
	assert.Contains(t, s.LastUpdatedLabel, "Last updated: ")
	assert.NoError(t, s.LastError)
	assert.False(t, s.NeedsRetry)
	assert.InDelta(t, 4130, f.ctrl.ConvertedAmount(), 1e-6)
	assert.Equal(t, s.Available, f.ctrl.AvailableCurrencies())
}

func TestInitUsesPersistedPreferences(t *testing.T) {
	store := kvmemory.New()
	require.NoError(t, store.SetString(context.Background(), preferences.KeyBaseCurrency, "EUR"))
	require.NoError(t, store.SetStrings(context.Background(), preferences.KeyFavoriteCurrencies, []string{"GBP", "JPY"}))

	f := newFixture(t, memory.NewDemo(), store, Config{})
	require.NoError(t, f.ctrl.Init(context.Background()))

	s := waitFor(t, f.ctrl, loaded)
	assert.Equal(t, "EUR", s.BaseCode)
	assert.Equal(t, "EUR", s.Rates.BaseCode)
	assert.Equal(t, []string{"GBP", "JPY"}, s.Favorites)
	assert.Equal(t, 1, f.src.Calls("EUR"))
	assert.Zero(t, f.src.Calls("UAH"))
}

func TestRefreshFailureKeepsPreviousTable(t *testing.T) {
	f := newFixture(t, memory.NewDemo(), nil, Config{})
	require.NoError(t, f.ctrl.Init(context.Background()))
	before := waitFor(t, f.ctrl, loaded)

	f.src.SetRatesError(core.NewTransportError(0, context.DeadlineExceeded))
	require.NoError(t, f.ctrl.Refresh(context.Background()))

	s := waitFor(t, f.ctrl, func(s Snapshot) bool { return s.LastError != nil })
	assert.Same(t, before.Rates, s.Rates)
	assert.Equal(t, before.LastUpdatedLabel, s.LastUpdatedLabel)
	assert.False(t, s.IsLoading)
	assert.False(t, s.NeedsRetry)
	assert.NotEmpty(t, s.ErrorMessage)
	assert.ErrorIs(t, s.LastError, core.ErrTransport)
	assert.Equal(t, before.Converted, s.Converted)
}

func TestFailureWithoutTableNeedsRetry(t *testing.T) {
	src := memory.NewDemo()
	src.SetRatesError(core.NewAPIError(403, core.CodeInvalidKey))
	f := newFixture(t, src, nil, Config{})
	require.NoError(t, f.ctrl.Init(context.Background()))

	s := waitFor(t, f.ctrl, func(s Snapshot) bool { return s.LastError != nil })
	assert.True(t, s.NeedsRetry)
	assert.False(t, s.IsLoading)
	assert.Nil(t, s.Rates)
	assert.Equal(t, core.Describe(core.NewAPIError(403, core.CodeInvalidKey)), s.ErrorMessage)

	src.SetRatesError(nil)
	require.NoError(t, f.ctrl.Refresh(context.Background()))
	s = waitFor(t, f.ctrl, func(s Snapshot) bool { return s.Rates != nil })
	assert.False(t, s.NeedsRetry)
	assert.NoError(t, s.LastError)
	assert.Empty(t, s.ErrorMessage)
}

func TestLoadingOnlyWithoutTable(t *testing.T) {
	src := memory.NewDemo()
	release := src.Hold("UAH")
	defer release()
	f := newFixture(t, src, nil, Config{})
	require.NoError(t, f.ctrl.Init(context.Background()))
	assert.True(t, f.ctrl.Snapshot().IsLoading)

	release()
	waitFor(t, f.ctrl, loaded)

	release = src.Hold("UAH")
	defer release()
	require.NoError(t, f.ctrl.Refresh(context.Background()))
	assert.False(t, f.ctrl.Snapshot().IsLoading)
}

func TestCatalogFailureDoesNotNeedRetry(t *testing.T) {
	src := memory.NewDemo()
	src.SetCodesError(core.NewTransportError(502, nil))
	f := newFixture(t, src, nil, Config{})
	require.NoError(t, f.ctrl.Init(context.Background()))

	s := waitFor(t, f.ctrl, func(s Snapshot) bool { return s.CatalogError != nil && s.Rates != nil })
	assert.False(t, s.NeedsRetry)
	assert.NoError(t, s.LastError)
	assert.Empty(t, s.Catalog)
	assert.Equal(t, "EUR", s.Catalog.Name("EUR"))

	src.SetCodesError(nil)
	require.NoError(t, f.ctrl.ReloadCatalog(context.Background()))
	s = waitFor(t, f.ctrl, func(s Snapshot) bool { return s.CatalogError == nil })
	assert.Equal(t, "Euro", s.Catalog.Name("EUR"))
}

func TestStaleBaseResponseIsDiscarded(t *testing.T) {
	src := memory.NewDemo()
	release := src.Hold("USD")
	defer release()
	f := newFixture(t, src, nil, Config{DefaultBase: "USD"})
	require.NoError(t, f.ctrl.Init(context.Background()))

	require.NoError(t, f.ctrl.SetBaseCurrency(context.Background(), "eur"))
	waitFor(t, f.ctrl, func(s Snapshot) bool { return s.Rates != nil && s.Rates.BaseCode == "EUR" })

	release()
	stale := f.metrics.StaleResponses.WithLabelValues(metrics.SourceRates)
	require.Eventually(t, func() bool { return testutil.ToFloat64(stale) == 1 }, 2*time.Second, 5*time.Millisecond)

	s := f.ctrl.Snapshot()
	assert.Equal(t, "EUR", s.BaseCode)
	assert.Equal(t, "EUR", s.Rates.BaseCode)
	assert.False(t, s.IsLoading)
}

func TestSelectionsReconcileAfterFetch(t *testing.T) {
	f := newFixture(t, smallSource(), nil, Config{DefaultBase: "EUR"})
	require.NoError(t, f.ctrl.Init(context.Background()))

	s := waitFor(t, f.ctrl, loaded)
	assert.Equal(t, "USD", s.FromCode)
	assert.Equal(t, "EUR", s.ToCode, "missing target falls back to the base")

	require.NoError(t, f.ctrl.SetFrom(context.Background(), "jpy"))
	assert.Equal(t, "JPY", f.ctrl.Snapshot().FromCode)
	assert.Zero(t, f.ctrl.ConvertedAmount())

	prev := f.ctrl.Snapshot().Rates
	require.NoError(t, f.ctrl.Refresh(context.Background()))
	s = waitFor(t, f.ctrl, func(s Snapshot) bool { return s.Rates != prev })
	assert.Equal(t, "USD", s.FromCode)
}

func TestSwapAndAmount(t *testing.T) {
	f := newFixture(t, memory.NewDemo(), nil, Config{DefaultBase: "USD"})
	ctx := context.Background()
	require.NoError(t, f.ctrl.Init(ctx))
	waitFor(t, f.ctrl, loaded)

	require.NoError(t, f.ctrl.SetFrom(ctx, "EUR"))
	require.NoError(t, f.ctrl.SetTo(ctx, "USD"))
	require.NoError(t, f.ctrl.SetAmount(ctx, "9,2"))
	assert.InDelta(t, 10, f.ctrl.ConvertedAmount(), 1e-9)

	require.NoError(t, f.ctrl.SwapFromTo(ctx))
	s := f.ctrl.Snapshot()
	assert.Equal(t, "USD", s.FromCode)
	assert.Equal(t, "EUR", s.ToCode)
	assert.InDelta(t, 8.464, s.Converted, 1e-9)

	require.NoError(t, f.ctrl.SetAmount(ctx, "abc"))
	assert.Zero(t, f.ctrl.ConvertedAmount())

	assert.ErrorIs(t, f.ctrl.SetFrom(ctx, " "), core.ErrEmptyCode)
	assert.ErrorIs(t, f.ctrl.SetTo(ctx, ""), core.ErrEmptyCode)
}

func TestFavoritesOnlyIntersectsTable(t *testing.T) {
	f := newFixture(t, smallSource(), nil, Config{DefaultBase: "USD"})
	ctx := context.Background()
	require.NoError(t, f.ctrl.Init(ctx))
	waitFor(t, f.ctrl, loaded)

	for _, code := range []string{"eur", "GBP", "XXX"} {
		require.NoError(t, f.ctrl.ToggleFavorite(ctx, code))
	}
	assert.Equal(t, []string{"EUR", "GBP", "USD"}, f.ctrl.AvailableCurrencies())

	require.NoError(t, f.ctrl.SetFavoritesOnly(ctx, true))
	assert.Equal(t, []string{"EUR", "GBP"}, f.ctrl.AvailableCurrencies())

	require.NoError(t, f.ctrl.ToggleFavorite(ctx, "EUR"))
	s := f.ctrl.Snapshot()
	assert.Equal(t, []string{"GBP"}, s.Available)
	assert.Equal(t, []string{"GBP", "XXX"}, s.Favorites)

	f.ctrl.Stop()
	assert.Equal(t, []string{"GBP", "XXX"}, f.prefs.LoadFavorites(ctx))
}

func TestSetBaseCurrencyPersists(t *testing.T) {
	f := newFixture(t, memory.NewDemo(), nil, Config{})
	ctx := context.Background()
	require.NoError(t, f.ctrl.Init(ctx))

	assert.ErrorIs(t, f.ctrl.SetBaseCurrency(ctx, ""), core.ErrEmptyCode)
	require.NoError(t, f.ctrl.SetBaseCurrency(ctx, "gbp"))
	waitFor(t, f.ctrl, func(s Snapshot) bool { return s.Rates != nil && s.Rates.BaseCode == "GBP" })

	f.ctrl.Stop()
	assert.Equal(t, "GBP", f.prefs.LoadBase(ctx))
}

func TestPersistFailureKeepsState(t *testing.T) {
	store := kvmemory.New()
	store.FailWrites = errors.New("disk full")
	f := newFixture(t, memory.NewDemo(), store, Config{})
	ctx := context.Background()
	require.NoError(t, f.ctrl.Init(ctx))

	require.NoError(t, f.ctrl.ToggleFavorite(ctx, "EUR"))
	assert.Equal(t, []string{"EUR"}, f.ctrl.Snapshot().Favorites)

	f.ctrl.Stop()
	assert.Empty(t, f.prefs.LoadFavorites(ctx))
}

func TestRefreshIsIdempotent(t *testing.T) {
	f := newFixture(t, memory.NewDemo(), nil, Config{})
	ctx := context.Background()
	require.NoError(t, f.ctrl.Init(ctx))
	first := waitFor(t, f.ctrl, loaded)

	require.NoError(t, f.ctrl.Refresh(ctx))
	second := waitFor(t, f.ctrl, func(s Snapshot) bool { return s.Rates != first.Rates })

	assert.Equal(t, first.Rates.Rates, second.Rates.Rates)
	assert.Equal(t, first.Available, second.Available)
	assert.Equal(t, first.Converted, second.Converted)
	assert.Equal(t, first.FromCode, second.FromCode)
	assert.Equal(t, first.ToCode, second.ToCode)
}

func TestAutoRefresh(t *testing.T) {
	f := newFixture(t, memory.NewDemo(), nil, Config{AutoRefresh: 10 * time.Millisecond})
	require.NoError(t, f.ctrl.Init(context.Background()))

	require.Eventually(t, func() bool { return f.src.Calls("UAH") >= 3 }, 2*time.Second, 5*time.Millisecond)
}

func TestSubscribeDeliversLatest(t *testing.T) {
	f := newFixture(t, memory.NewDemo(), nil, Config{})
	ctx := context.Background()

	ch, cancel := f.ctrl.Subscribe()
	first := <-ch
	assert.Zero(t, first.Version)

	for _, amount := range []string{"1", "2", "3"} {
		require.NoError(t, f.ctrl.SetAmount(ctx, amount))
	}
	latest := <-ch
	assert.Equal(t, "3", latest.AmountRaw)
	assert.Equal(t, f.ctrl.Snapshot().Version, latest.Version)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.Subscribers))

	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open)
	assert.Zero(t, testutil.ToFloat64(f.metrics.Subscribers))
}

func TestSubscribeDuringUpdatesEndsOnLatest(t *testing.T) {
	f := newFixture(t, memory.NewDemo(), nil, Config{})
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			_ = f.ctrl.SetAmount(ctx, strconv.Itoa(i))
		}
	}()

	var subs []<-chan Snapshot
	for i := 0; i < 200; i++ {
		ch, cancel := f.ctrl.Subscribe()
		t.Cleanup(cancel)
		subs = append(subs, ch)
	}
	<-done

	want := f.ctrl.Snapshot().Version
	for i, ch := range subs {
		got := <-ch
		assert.Equal(t, want, got.Version, "subscriber %d", i)
	}
}

func TestStopClosesSubscribers(t *testing.T) {
	f := newFixture(t, memory.NewDemo(), nil, Config{})
	ch, cancel := f.ctrl.Subscribe()
	defer cancel()
	<-ch

	f.ctrl.Stop()
	_, open := <-ch
	assert.False(t, open)

	assert.ErrorIs(t, f.ctrl.Refresh(context.Background()), ErrStopped)

	late, _ := f.ctrl.Subscribe()
	<-late
	_, open = <-late
	assert.False(t, open)
}

func TestOperationsRequireStart(t *testing.T) {
	ctrl := New(nil, nil, nil, Config{}, nil, nil)
	assert.ErrorIs(t, ctrl.Refresh(context.Background()), ErrNotStarted)
	ctrl.Stop()
}
