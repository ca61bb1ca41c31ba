package memory

import (
	"context"
	"sync"

	"valuta/internal/kv"
)

// Store keeps values in process memory.
type Store struct {
	mu      sync.Mutex
	strings map[string]string
	lists   map[string][]string
	// FailWrites makes every Set return this error when non-nil.
	FailWrites error
}

var _ kv.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		strings: map[string]string{},
		lists:   map[string][]string{},
	}
}

func (s *Store) GetString(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.strings[key]
	return v, ok, nil
}

func (s *Store) SetString(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites != nil {
		return s.FailWrites
	}
	s.strings[key] = value
	return nil
}

func (s *Store) GetStrings(_ context.Context, key string) ([]string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.lists[key]
	if !ok {
		return nil, false, nil
	}
	return append([]string{}, v...), true, nil
}

func (s *Store) SetStrings(_ context.Context, key string, values []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites != nil {
		return s.FailWrites
	}
	s.lists[key] = append([]string{}, values...)
	return nil
}
