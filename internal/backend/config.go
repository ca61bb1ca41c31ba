package backend

import (
	"fmt"

	"valuta/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.PrefsBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.PrefsBackend)
	}
	source := SourceType(appConfig.RatesSource)
	if !source.IsValid() {
		return Config{}, fmt.Errorf("invalid rates source in config: %s", appConfig.RatesSource)
	}

	return Config{
		Type:           backendType,
		SQLiteDBPath:   appConfig.SQLiteDBPath,
		Source:         source,
		ExchangeAPIURL: appConfig.ExchangeAPIURL,
		ExchangeAPIKey: appConfig.ExchangeAPIKey,
		FetchTimeout:   appConfig.FetchTimeout,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}
	if !c.Source.IsValid() {
		return fmt.Errorf("invalid rates source: %s", c.Source)
	}

	if c.Type == SQLiteBackend && c.SQLiteDBPath == "" {
		return fmt.Errorf("SQLite database path is required for sqlite backend")
	}
	// A missing key is reported by the client as a configuration error on
	// first fetch, so the UI can show it.
	return nil
}

// GetBackendTypeStrings returns all valid backend type strings
func GetBackendTypeStrings() []string {
	return []string{SQLiteBackend.String(), MemoryBackend.String()}
}
