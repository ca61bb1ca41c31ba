package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"valuta/internal/core"
)

func TestLatestRatesRebases(t *testing.T) {
	s := New("usd", map[string]float64{"USD": 1, "EUR": 0.5, "UAH": 40}, nil)

	p, err := s.LatestRates(context.Background(), "eur")
	require.NoError(t, err)

	assert.Equal(t, "EUR", p.BaseCode)
	assert.Equal(t, 1.0, p.Rates["EUR"])
	assert.Equal(t, 2.0, p.Rates["USD"])
	assert.Equal(t, 80.0, p.Rates["UAH"])
	assert.Equal(t, 1, s.Calls("EUR"))
}

func TestLatestRatesUnknownBase(t *testing.T) {
	s := NewDemo()
	_, err := s.LatestRates(context.Background(), "XXX")
	assert.ErrorIs(t, err, &core.FetchError{Kind: core.KindAPI, Code: core.CodeUnsupportedCode})
}

func TestInjectedErrors(t *testing.T) {
	s := NewDemo()
	boom := core.NewTransportError(503, errors.New("down"))
	s.SetRatesError(boom)
	s.SetCodesError(boom)

	_, err := s.LatestRates(context.Background(), "USD")
	assert.ErrorIs(t, err, core.ErrTransport)
	_, err = s.SupportedCodes(context.Background())
	assert.ErrorIs(t, err, core.ErrTransport)

	s.SetRatesError(nil)
	_, err = s.LatestRates(context.Background(), "USD")
	assert.NoError(t, err)
}

func TestHoldBlocksUntilRelease(t *testing.T) {
	s := NewDemo()
	release := s.Hold("USD")

	done := make(chan error, 1)
	go func() {
		_, err := s.LatestRates(context.Background(), "USD")
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("LatestRates returned while held")
	case <-time.After(20 * time.Millisecond):
	}

	release()
	release()
	require.NoError(t, <-done)
}

func TestHoldRespectsContext(t *testing.T) {
	s := NewDemo()
	defer s.Hold("USD")()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := s.LatestRates(ctx, "USD")
	assert.ErrorIs(t, err, core.ErrTimeout)
}

func TestSupportedCodesSorted(t *testing.T) {
	pairs, err := NewDemo().SupportedCodes(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, pairs)
	assert.Equal(t, []string{"AUD", "Australian Dollar"}, pairs[0])
}
