package backend

import (
	"context"
	"errors"
	"fmt"

	"valuta/internal/exchange/httpapi"
	exmemory "valuta/internal/exchange/memory"
	kvmemory "valuta/internal/kv/memory"
	applog "valuta/internal/log"
	"valuta/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *applog.Logger
}

func NewFactory(logger *applog.Logger) Factory {
	if logger == nil {
		logger = applog.Discard()
	}
	return &DefaultFactory{
		logger: logger.WithComponent(applog.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	result := &BackendResult{}
	switch config.Source {
	case HTTPSource:
		client := httpapi.New(httpapi.Config{
			BaseURL: config.ExchangeAPIURL,
			APIKey:  config.ExchangeAPIKey,
			Timeout: config.FetchTimeout,
		})
		result.Backend.Rates = client
		result.Backend.Codes = client
		f.logger.InfoContext(ctx, "Initialized HTTP rate source", "base_url", config.ExchangeAPIURL)
	case DemoSource:
		demo := exmemory.NewDemo()
		result.Backend.Rates = demo
		result.Backend.Codes = demo
		f.logger.InfoContext(ctx, "Initialized demo rate source")
	}

	switch config.Type {
	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		result.Backend.Prefs = repo
		result.Cleanup = repo.Close
		f.logger.InfoContext(ctx, "Initialized SQLite preferences", "db_path", config.SQLiteDBPath)
	case MemoryBackend:
		result.Backend.Prefs = kvmemory.New()
		f.logger.InfoContext(ctx, "Initialized memory preferences")
	default:
		return nil, errors.New("unsupported backend type: " + config.Type.String())
	}

	return result, nil
}
