package backend

import (
	"context"
	"time"

	"valuta/internal/exchange"
	"valuta/internal/kv"
)

// Backend bundles the data sources the engine runs on.
type Backend struct {
	Rates exchange.RateSource
	Codes exchange.CodeSource
	Prefs kv.Store
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the backend instance and optional cleanup function
type BackendResult struct {
	Backend Backend
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	// Preference store
	Type         BackendType
	SQLiteDBPath string

	// Rate provider
	Source         SourceType
	ExchangeAPIURL string
	ExchangeAPIKey string
	FetchTimeout   time.Duration
}

// BackendType selects where preferences are stored.
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}

// SourceType selects the rate provider.
type SourceType string

const (
	HTTPSource SourceType = "http"
	DemoSource SourceType = "demo"
)

func (st SourceType) IsValid() bool {
	return st == HTTPSource || st == DemoSource
}
