package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"valuta/internal/core"
	"valuta/internal/metrics"
)

type countingSource struct {
	pairs [][]string
	err   error
	calls int
}

func (s *countingSource) SupportedCodes(context.Context) ([][]string, error) {
	s.calls++
	return s.pairs, s.err
}

func TestFetchAllDiscardsMalformedPairs(t *testing.T) {
	src := &countingSource{pairs: [][]string{{"USD", "US Dollar"}, {"EUR"}, {"UAH", "Hryvnia"}}}
	c := New(src, DefaultConfig(), nil, nil)

	cat, err := c.FetchAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, core.Catalog{"USD": "US Dollar", "UAH": "Hryvnia"}, cat)
	assert.Equal(t, "Hryvnia", c.Name("uah"))
	assert.Equal(t, "EUR", c.Name("EUR"))
}

func TestFetchAllServesFromCacheUntilExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	m := metrics.New(prometheus.NewRegistry())
	src := &countingSource{pairs: [][]string{{"USD", "US Dollar"}}}
	c := New(src, Config{TTL: time.Hour, Now: clock}, m, nil)

	for i := 0; i < 3; i++ {
		_, err := c.FetchAll(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, 1, src.calls)

	now = now.Add(2 * time.Hour)
	_, err := c.FetchAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("catalog", "hit")))
}

func TestInvalidateForcesRefetch(t *testing.T) {
	src := &countingSource{pairs: [][]string{{"USD", "US Dollar"}}}
	c := New(src, DefaultConfig(), nil, nil)

	_, _ = c.FetchAll(context.Background())
	c.Invalidate()
	_, _ = c.FetchAll(context.Background())

	assert.Equal(t, 2, src.calls)
}

func TestFetchAllErrorIsNotCached(t *testing.T) {
	src := &countingSource{err: core.NewAPIError(403, core.CodeInvalidKey)}
	c := New(src, DefaultConfig(), nil, nil)

	_, err := c.FetchAll(context.Background())
	assert.ErrorIs(t, err, core.ErrAPI)
	assert.Equal(t, "USD", c.Name("USD"))

	src.err = nil
	src.pairs = [][]string{{"USD", "US Dollar"}}
	cat, err := c.FetchAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "US Dollar", cat.Name("USD"))
}

func TestReturnedCatalogIsACopy(t *testing.T) {
	src := &countingSource{pairs: [][]string{{"USD", "US Dollar"}}}
	c := New(src, DefaultConfig(), nil, nil)

	cat, _ := c.FetchAll(context.Background())
	cat["USD"] = "changed"

	assert.Equal(t, "US Dollar", c.Name("USD"))
}
