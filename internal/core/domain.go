package core

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

const (
	// FallbackFromCode replaces a source currency that disappears from a new table.
	FallbackFromCode = "USD"
	// DefaultToCode is the initial target currency.
	DefaultToCode = "UAH"
	// DefaultBaseCode is used when no base currency has been persisted.
	DefaultBaseCode = "UAH"
	// DefaultAmount is the initial amount shown in the converter.
	DefaultAmount = "100"
)

type (
	// RateTable is a snapshot of rates relative to BaseCode.
	RateTable struct {
		BaseCode  string
		Rates     map[string]float64
		FetchedAt time.Time
		// UpdatedAt is the provider's own update time, zero when unknown.
		UpdatedAt time.Time
	}

	// Catalog maps currency codes to display names.
	Catalog map[string]string
)

var (
	ErrEmptyCode    = errors.New("empty currency code")
	ErrNegativeRate = errors.New("negative rate")
	ErrBaseRate     = errors.New("base currency rate is not 1")
)

// baseRateTolerance absorbs rounding in providers that rescale rates.
const baseRateTolerance = 1e-9

// NormalizeCode uppercases and trims a currency code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// NewRateTable builds a table with normalized keys. It rejects negative rates
// and a base currency entry that is present but not 1.
func NewRateTable(base string, rates map[string]float64, fetchedAt time.Time) (RateTable, error) {
	base = NormalizeCode(base)
	if base == "" {
		return RateTable{}, ErrEmptyCode
	}
	out := make(map[string]float64, len(rates))
	for code, v := range rates {
		code = NormalizeCode(code)
		if code == "" {
			continue
		}
		if v < 0 {
			return RateTable{}, fmt.Errorf("%w: %s=%v", ErrNegativeRate, code, v)
		}
		out[code] = v
	}
	if v, ok := out[base]; ok && math.Abs(v-1) > baseRateTolerance {
		return RateTable{}, fmt.Errorf("%w: %s=%v", ErrBaseRate, base, v)
	}
	return RateTable{BaseCode: base, Rates: out, FetchedAt: fetchedAt}, nil
}

// Rate returns the rate for code and whether it is present.
func (t *RateTable) Rate(code string) (float64, bool) {
	if t == nil {
		return 0, false
	}
	v, ok := t.Rates[NormalizeCode(code)]
	return v, ok
}

// Has reports whether code is a key of the table.
func (t *RateTable) Has(code string) bool {
	_, ok := t.Rate(code)
	return ok
}

// Codes returns the table's currency codes sorted ascending.
func (t *RateTable) Codes() []string {
	if t == nil {
		return nil
	}
	codes := make([]string, 0, len(t.Rates))
	for code := range t.Rates {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// CatalogFromPairs converts [code, name] pairs into a Catalog.
// Pairs with fewer than two elements are skipped.
func CatalogFromPairs(pairs [][]string) Catalog {
	out := make(Catalog, len(pairs))
	for _, p := range pairs {
		if len(p) < 2 {
			continue
		}
		code := NormalizeCode(p[0])
		if code == "" {
			continue
		}
		out[code] = p[1]
	}
	return out
}

// Name returns the display name for code, or the code itself.
func (c Catalog) Name(code string) string {
	code = NormalizeCode(code)
	if name, ok := c[code]; ok && name != "" {
		return name
	}
	return code
}

// Clone copies the catalog.
func (c Catalog) Clone() Catalog {
	if c == nil {
		return nil
	}
	out := make(Catalog, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}
