package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"valuta/internal/core"
	"valuta/internal/exchange"
)

// Source is an in-memory pricing service. Rates are kept relative to one
// anchor currency and re-based on request, so any listed code works as base.
type Source struct {
	mu        sync.Mutex
	anchor    string
	rates     map[string]float64
	names     map[string]string
	updatedAt time.Time
	ratesErr  error
	codesErr  error
	holds     map[string]chan struct{}
	calls     map[string]int
}

// Ensure interface conformance
var (
	_ exchange.RateSource = (*Source)(nil)
	_ exchange.CodeSource = (*Source)(nil)
)

func New(anchor string, rates map[string]float64, names map[string]string) *Source {
	s := &Source{
		names: map[string]string{},
		holds: map[string]chan struct{}{},
		calls: map[string]int{},
	}
	s.SetRates(anchor, rates)
	for code, name := range names {
		s.names[core.NormalizeCode(code)] = name
	}
	return s
}

// NewDemo returns a source seeded with a handful of USD-relative rates.
func NewDemo() *Source {
	return New("USD", map[string]float64{
		"USD": 1,
		"EUR": 0.92,
		"GBP": 0.79,
		"UAH": 41.3,
		"PLN": 3.98,
		"CHF": 0.88,
		"JPY": 151.2,
		"CAD": 1.37,
		"AUD": 1.52,
		"CNY": 7.24,
	}, map[string]string{
		"USD": "United States Dollar",
		"EUR": "Euro",
		"GBP": "Pound Sterling",
		"UAH": "Ukrainian Hryvnia",
		"PLN": "Polish Zloty",
		"CHF": "Swiss Franc",
		"JPY": "Japanese Yen",
		"CAD": "Canadian Dollar",
		"AUD": "Australian Dollar",
		"CNY": "Chinese Renminbi",
	})
}

// SetRates replaces the reference table.
func (s *Source) SetRates(anchor string, rates map[string]float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.anchor = core.NormalizeCode(anchor)
	s.rates = make(map[string]float64, len(rates))
	for code, v := range rates {
		s.rates[core.NormalizeCode(code)] = v
	}
	s.updatedAt = time.Now().UTC().Truncate(time.Second)
}

// SetRatesError makes LatestRates fail with err until cleared with nil.
func (s *Source) SetRatesError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ratesErr = err
}

// SetCodesError makes SupportedCodes fail with err until cleared with nil.
func (s *Source) SetCodesError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codesErr = err
}

// Hold blocks LatestRates for base until the returned release func is called.
func (s *Source) Hold(base string) (release func()) {
	base = core.NormalizeCode(base)
	ch := make(chan struct{})
	s.mu.Lock()
	s.holds[base] = ch
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if s.holds[base] == ch {
				delete(s.holds, base)
			}
			s.mu.Unlock()
			close(ch)
		})
	}
}

// Calls returns how many times LatestRates was called for base.
func (s *Source) Calls(base string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[core.NormalizeCode(base)]
}

// LatestRates implements exchange.RateSource.
func (s *Source) LatestRates(ctx context.Context, baseCode string) (exchange.RatesPayload, error) {
	base := core.NormalizeCode(baseCode)

	s.mu.Lock()
	s.calls[base]++
	hold := s.holds[base]
	s.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return exchange.RatesPayload{}, core.NewTimeoutError(ctx.Err())
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ratesErr != nil {
		return exchange.RatesPayload{}, s.ratesErr
	}
	baseRate, ok := s.rates[base]
	if !ok || baseRate <= 0 {
		return exchange.RatesPayload{}, core.NewAPIError(404, core.CodeUnsupportedCode)
	}
	out := make(map[string]float64, len(s.rates))
	for code, v := range s.rates {
		out[code] = v / baseRate
	}
	return exchange.RatesPayload{BaseCode: base, Rates: out, UpdatedAt: s.updatedAt}, nil
}

// SupportedCodes implements exchange.CodeSource.
func (s *Source) SupportedCodes(_ context.Context) ([][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.codesErr != nil {
		return nil, s.codesErr
	}
	codes := make([]string, 0, len(s.names))
	for code := range s.names {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	out := make([][]string, 0, len(codes))
	for _, code := range codes {
		out = append(out, []string{code, s.names[code]})
	}
	return out, nil
}
