package http

import (
	"valuta/internal/core"
	"valuta/internal/state"
)

type currencyView struct {
	Code     string  `json:"code"`
	Name     string  `json:"name"`
	Flag     string  `json:"flag"`
	Rate     float64 `json:"rate"`
	Favorite bool    `json:"favorite"`
}

type stateView struct {
	Version       uint64         `json:"version"`
	BaseCode      string         `json:"base_code"`
	FromCode      string         `json:"from_code"`
	ToCode        string         `json:"to_code"`
	Amount        string         `json:"amount"`
	Converted     float64        `json:"converted"`
	ConvertedText string         `json:"converted_text"`
	IsLoading     bool           `json:"is_loading"`
	NeedsRetry    bool           `json:"needs_retry"`
	Error         string         `json:"error,omitempty"`
	ErrorKind     string         `json:"error_kind,omitempty"`
	CatalogError  string         `json:"catalog_error,omitempty"`
	LastUpdated   string         `json:"last_updated"`
	FavoritesOnly bool           `json:"favorites_only"`
	Favorites     []string       `json:"favorites"`
	Currencies    []currencyView `json:"currencies"`
}

type convertView struct {
	Amount    string  `json:"amount"`
	From      string  `json:"from"`
	To        string  `json:"to"`
	Rate      float64 `json:"rate"`
	Result    float64 `json:"result"`
	Formatted string  `json:"formatted"`
	BaseCode  string  `json:"base_code"`
}

func newStateView(s state.Snapshot) stateView {
	v := stateView{
		Version:       s.Version,
		BaseCode:      s.BaseCode,
		FromCode:      s.FromCode,
		ToCode:        s.ToCode,
		Amount:        s.AmountRaw,
		Converted:     s.Converted,
		ConvertedText: core.FormatAmount(s.Converted),
		IsLoading:     s.IsLoading,
		NeedsRetry:    s.NeedsRetry,
		Error:         s.ErrorMessage,
		LastUpdated:   s.LastUpdatedLabel,
		FavoritesOnly: s.FavoritesOnly,
		Favorites:     s.Favorites,
		Currencies:    currencies(s),
	}
	if s.LastError != nil {
		v.ErrorKind = core.KindOf(s.LastError).String()
	}
	if s.CatalogError != nil {
		v.CatalogError = core.Describe(s.CatalogError)
	}
	if v.Favorites == nil {
		v.Favorites = []string{}
	}
	return v
}

func currencies(s state.Snapshot) []currencyView {
	favorites := make(map[string]bool, len(s.Favorites))
	for _, code := range s.Favorites {
		favorites[code] = true
	}
	out := make([]currencyView, 0, len(s.Available))
	for _, code := range s.Available {
		rate, _ := s.Rates.Rate(code)
		out = append(out, currencyView{
			Code:     code,
			Name:     s.Catalog.Name(code),
			Flag:     core.Flag(code),
			Rate:     rate,
			Favorite: favorites[code],
		})
	}
	return out
}
