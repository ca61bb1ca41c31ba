package rates

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"valuta/internal/core"
	"valuta/internal/exchange"
	"valuta/internal/exchange/memory"
	"valuta/internal/metrics"
)

type stubSource struct {
	payload exchange.RatesPayload
	err     error
	block   bool
}

func (s stubSource) LatestRates(ctx context.Context, _ string) (exchange.RatesPayload, error) {
	if s.block {
		<-ctx.Done()
		return exchange.RatesPayload{}, ctx.Err()
	}
	return s.payload, s.err
}

func fixedNow() time.Time { return time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC) }

func TestFetchStampsAndNormalizes(t *testing.T) {
	updated := time.Date(2026, 10, 18, 0, 0, 1, 0, time.UTC)
	repo := NewRepository(stubSource{payload: exchange.RatesPayload{
		BaseCode:  "usd",
		Rates:     map[string]float64{"usd": 1, "eur": 0.9},
		UpdatedAt: updated,
	}}, Config{Now: fixedNow}, nil, nil)

	table, err := repo.Fetch(context.Background(), "usd")
	require.NoError(t, err)

	assert.Equal(t, "USD", table.BaseCode)
	assert.Equal(t, []string{"EUR", "USD"}, table.Codes())
	assert.Equal(t, fixedNow(), table.FetchedAt)
	assert.Equal(t, updated, table.UpdatedAt)
}

func TestFetchFallsBackToRequestedBase(t *testing.T) {
	repo := NewRepository(stubSource{payload: exchange.RatesPayload{Rates: map[string]float64{"EUR": 1}}}, Config{}, nil, nil)

	table, err := repo.Fetch(context.Background(), "eur")
	require.NoError(t, err)
	assert.Equal(t, "EUR", table.BaseCode)
}

func TestFetchNegativeRateIsDecodeError(t *testing.T) {
	repo := NewRepository(stubSource{payload: exchange.RatesPayload{
		BaseCode: "USD",
		Rates:    map[string]float64{"EUR": -0.9},
	}}, Config{}, nil, nil)

	_, err := repo.Fetch(context.Background(), "USD")
	assert.ErrorIs(t, err, core.ErrDecode)
	assert.ErrorIs(t, err, core.ErrNegativeRate)
}

func TestFetchWrongBaseRateIsDecodeError(t *testing.T) {
	repo := NewRepository(stubSource{payload: exchange.RatesPayload{
		BaseCode: "USD",
		Rates:    map[string]float64{"USD": 0.5, "EUR": 0.9},
	}}, Config{}, nil, nil)

	_, err := repo.Fetch(context.Background(), "USD")
	assert.ErrorIs(t, err, core.ErrDecode)
	assert.ErrorIs(t, err, core.ErrBaseRate)
}

func TestFetchClassifiesErrors(t *testing.T) {
	cases := []struct {
		name string
		src  stubSource
		want error
	}{
		{"typed errors pass through", stubSource{err: core.NewAPIError(403, core.CodeInvalidKey)}, core.ErrAPI},
		{"plain errors become transport", stubSource{err: errors.New("connection refused")}, core.ErrTransport},
		{"deadline becomes timeout", stubSource{block: true}, core.ErrTimeout},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := NewRepository(tc.src, Config{Timeout: 20 * time.Millisecond}, nil, nil)
			_, err := repo.Fetch(context.Background(), "USD")
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestFetchWithoutSource(t *testing.T) {
	repo := NewRepository(nil, DefaultConfig(), nil, nil)
	_, err := repo.Fetch(context.Background(), "USD")
	assert.ErrorIs(t, err, core.ErrConfiguration)
}

func TestFetchRecordsMetrics(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	src := memory.NewDemo()
	repo := NewRepository(src, DefaultConfig(), m, nil)

	_, err := repo.Fetch(context.Background(), "USD")
	require.NoError(t, err)
	src.SetRatesError(core.NewTransportError(503, nil))
	_, err = repo.Fetch(context.Background(), "USD")
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchesTotal.WithLabelValues(metrics.SourceRates, "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchesTotal.WithLabelValues(metrics.SourceRates, "transport")))
}

func TestFetchTwiceIsIdempotent(t *testing.T) {
	repo := NewRepository(memory.NewDemo(), Config{Now: fixedNow}, nil, nil)

	first, err := repo.Fetch(context.Background(), "EUR")
	require.NoError(t, err)
	second, err := repo.Fetch(context.Background(), "EUR")
	require.NoError(t, err)

	assert.Equal(t, first, second)
}
