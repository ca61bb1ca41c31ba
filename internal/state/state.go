package state

import (
	"sort"
	"time"

	"valuta/internal/core"
)

// ApplicationState is owned by the controller's loop goroutine. Rate tables
// and catalogs are replaced wholesale and never mutated once stored, so
// snapshots may share them.
type ApplicationState struct {
	Rates            *core.RateTable
	Catalog          core.Catalog
	Favorites        map[string]struct{}
	FavoritesOnly    bool
	BaseCode         string
	FromCode         string
	ToCode           string
	AmountRaw        string
	IsLoading        bool
	LastError        error
	CatalogError     error
	LastUpdatedLabel string
}

// Snapshot is an immutable view of the state plus derived values.
type Snapshot struct {
	Version          uint64
	Rates            *core.RateTable
	Catalog          core.Catalog
	Favorites        []string
	FavoritesOnly    bool
	BaseCode         string
	FromCode         string
	ToCode           string
	AmountRaw        string
	IsLoading        bool
	LastError        error
	ErrorMessage     string
	CatalogError     error
	LastUpdatedLabel string
	Available        []string
	Converted        float64
	// NeedsRetry is set when there is no table to show and the last fetch
	// failed, so the UI should offer a full-screen retry.
	NeedsRetry bool
}

const (
	labelUpdating    = "Updating..."
	labelUnavailable = "Update time unavailable"
	labelLayout      = "Jan 2, 2006 15:04"
)

func newState(base, from, to, amount string) ApplicationState {
	return ApplicationState{
		Catalog:          core.Catalog{},
		Favorites:        map[string]struct{}{},
		BaseCode:         base,
		FromCode:         from,
		ToCode:           to,
		AmountRaw:        amount,
		LastUpdatedLabel: labelUpdating,
	}
}

func (s *ApplicationState) snapshot(version uint64) Snapshot {
	favorites := sortedSet(s.Favorites)
	return Snapshot{
		Version:          version,
		Rates:            s.Rates,
		Catalog:          s.Catalog,
		Favorites:        favorites,
		FavoritesOnly:    s.FavoritesOnly,
		BaseCode:         s.BaseCode,
		FromCode:         s.FromCode,
		ToCode:           s.ToCode,
		AmountRaw:        s.AmountRaw,
		IsLoading:        s.IsLoading,
		LastError:        s.LastError,
		ErrorMessage:     core.Describe(s.LastError),
		CatalogError:     s.CatalogError,
		LastUpdatedLabel: s.LastUpdatedLabel,
		Available:        availableCurrencies(s.Rates, s.Favorites, s.FavoritesOnly),
		Converted:        s.Rates.Convert(s.AmountRaw, s.FromCode, s.ToCode),
		NeedsRetry:       s.Rates == nil && s.LastError != nil && !s.IsLoading,
	}
}

// availableCurrencies lists the table's codes, restricted to favorites when
// favoritesOnly is set.
func availableCurrencies(table *core.RateTable, favorites map[string]struct{}, favoritesOnly bool) []string {
	codes := table.Codes()
	if !favoritesOnly {
		if codes == nil {
			return []string{}
		}
		return codes
	}
	out := make([]string, 0, len(favorites))
	for _, code := range codes {
		if _, ok := favorites[code]; ok {
			out = append(out, code)
		}
	}
	return out
}

// reconcile keeps the selected pair pointing at codes present in table.
// A missing source falls back to USD and a missing target to the base code;
// when that fallback is absent too, the first code of the table is used.
// An empty table leaves the selection alone.
func reconcile(table *core.RateTable, from, to, base string) (string, string) {
	codes := table.Codes()
	if len(codes) == 0 {
		return from, to
	}
	if !table.Has(from) {
		from = firstPresent(table, codes, core.FallbackFromCode)
	}
	if !table.Has(to) {
		to = firstPresent(table, codes, base)
	}
	return from, to
}

func firstPresent(table *core.RateTable, codes []string, preferred string) string {
	if table.Has(preferred) {
		return core.NormalizeCode(preferred)
	}
	return codes[0]
}

func updatedLabel(t time.Time) string {
	if t.IsZero() {
		return labelUnavailable
	}
	return "Last updated: " + t.UTC().Format(labelLayout)
}

func sortedSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for code := range set {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}
