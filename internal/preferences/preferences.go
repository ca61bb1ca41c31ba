package preferences

import (
	"context"
	"fmt"
	"sort"

	"valuta/internal/core"
	"valuta/internal/kv"
	applog "valuta/internal/log"
)

// Persistent keys.
const (
	KeyBaseCurrency       = "baseCurrency"
	KeyFavoriteCurrencies = "favoriteCurrencies"
)

// Store reads and writes the user's base currency and favorites.
// Read failures are logged and degrade to defaults.
type Store struct {
	kv       kv.Store
	fallback string
	logger   *applog.Logger
}

func New(store kv.Store, fallbackBase string, logger *applog.Logger) *Store {
	fallbackBase = core.NormalizeCode(fallbackBase)
	if fallbackBase == "" {
		fallbackBase = core.DefaultBaseCode
	}
	if logger == nil {
		logger = applog.Discard()
	}
	return &Store{
		kv:       store,
		fallback: fallbackBase,
		logger:   logger.WithComponent(applog.ComponentStorage),
	}
}

// LoadBase returns the persisted base currency or the fallback.
func (s *Store) LoadBase(ctx context.Context) string {
	v, ok, err := s.kv.GetString(ctx, KeyBaseCurrency)
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to load base currency, using fallback",
			applog.FieldError, err, "fallback", s.fallback)
		return s.fallback
	}
	code := core.NormalizeCode(v)
	if !ok || code == "" {
		return s.fallback
	}
	return code
}

func (s *Store) SaveBase(ctx context.Context, code string) error {
	code = core.NormalizeCode(code)
	if code == "" {
		return core.ErrEmptyCode
	}
	if err := s.kv.SetString(ctx, KeyBaseCurrency, code); err != nil {
		return fmt.Errorf("save base currency: %w", err)
	}
	return nil
}

// LoadFavorites returns the persisted favorites, empty when unset.
func (s *Store) LoadFavorites(ctx context.Context) []string {
	codes, ok, err := s.kv.GetStrings(ctx, KeyFavoriteCurrencies)
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to load favorites", applog.FieldError, err)
		return []string{}
	}
	if !ok {
		return []string{}
	}
	return normalizeSet(codes)
}

// SaveFavorites persists codes as a sorted set.
func (s *Store) SaveFavorites(ctx context.Context, codes []string) error {
	if err := s.kv.SetStrings(ctx, KeyFavoriteCurrencies, normalizeSet(codes)); err != nil {
		return fmt.Errorf("save favorites: %w", err)
	}
	return nil
}

func normalizeSet(codes []string) []string {
	seen := make(map[string]struct{}, len(codes))
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		c = core.NormalizeCode(c)
		if c == "" {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
