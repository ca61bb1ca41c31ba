package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Rate sources.
const (
	SourceHTTP = "http"
	SourceDemo = "demo"
)

// Preference backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

type Config struct {
	// HTTP Server
	Port string
	// RateLimitPerMinute caps mutating requests per client IP
	RateLimitPerMinute int

	// Exchange rate provider
	RatesSource    string
	ExchangeAPIURL string
	ExchangeAPIKey string
	FetchTimeout   time.Duration
	CatalogTTL     time.Duration

	// State
	AutoRefreshInterval time.Duration
	DefaultBaseCurrency string

	// Preferences
	PrefsBackend string
	SQLiteDBPath string

	// AMQP, disabled when AMQPURL is empty
	AMQPURL        string
	AMQPExchange   string
	AMQPRoutingKey string
	AMQPQueue      string

	// Logging
	LogLevel  string
	LogFormat string
}

func Load() *Config {
	cfg := &Config{
		Port:               getEnv("PORT", "8081"),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),

		RatesSource:    strings.ToLower(getEnv("RATES_SOURCE", SourceHTTP)),
		ExchangeAPIURL: getEnv("EXCHANGE_API_URL", "https://v6.exchangerate-api.com/v6"),
		ExchangeAPIKey: getEnv("EXCHANGE_API_KEY", ""),
		FetchTimeout:   getEnvDuration("FETCH_TIMEOUT", 10*time.Second),
		CatalogTTL:     getEnvDuration("CATALOG_TTL", 24*time.Hour),

		AutoRefreshInterval: getEnvDuration("AUTO_REFRESH_INTERVAL", 0),
		DefaultBaseCurrency: strings.ToUpper(getEnv("DEFAULT_BASE_CURRENCY", "UAH")),

		PrefsBackend: strings.ToLower(getEnv("PREFS_BACKEND", BackendMemory)),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/valuta.db"),

		AMQPURL:        getEnv("AMQP_URL", ""),
		AMQPExchange:   getEnv("AMQP_EXCHANGE", "valuta"),
		AMQPRoutingKey: getEnv("AMQP_ROUTING_KEY", "rates.updated"),
		AMQPQueue:      getEnv("AMQP_QUEUE", "valuta_rates_updated"),

		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "text")),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}

	validSources := []string{SourceHTTP, SourceDemo}
	if !slices.Contains(validSources, c.RatesSource) {
		errors = append(errors, fmt.Sprintf("invalid rates source '%s': must be one of %v", c.RatesSource, validSources))
	}

	if c.RatesSource == SourceHTTP {
		if strings.TrimSpace(c.ExchangeAPIKey) == "" {
			errors = append(errors, "EXCHANGE_API_KEY is required when using the http rates source")
		}
		if parsedURL, err := url.Parse(c.ExchangeAPIURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid exchange API URL '%s': %v", c.ExchangeAPIURL, err))
		} else if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
			errors = append(errors, fmt.Sprintf("invalid exchange API URL scheme '%s': must be 'http' or 'https'", parsedURL.Scheme))
		}
	}

	if c.FetchTimeout < 100*time.Millisecond {
		errors = append(errors, fmt.Sprintf("invalid fetch timeout %v: must be at least 100ms", c.FetchTimeout))
	} else if c.FetchTimeout > 2*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid fetch timeout %v: must be at most 2 minutes", c.FetchTimeout))
	}

	if c.CatalogTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid catalog TTL %v: must be at least 1 minute", c.CatalogTTL))
	}

	if c.AutoRefreshInterval < 0 {
		errors = append(errors, fmt.Sprintf("invalid auto refresh interval %v: must not be negative", c.AutoRefreshInterval))
	} else if c.AutoRefreshInterval > 0 && c.AutoRefreshInterval < 10*time.Second {
		errors = append(errors, fmt.Sprintf("invalid auto refresh interval %v: must be 0 or at least 10 seconds", c.AutoRefreshInterval))
	}

	if !isCurrencyCode(c.DefaultBaseCurrency) {
		errors = append(errors, fmt.Sprintf("invalid default base currency '%s': must be a three-letter code", c.DefaultBaseCurrency))
	}

	validBackends := []string{BackendMemory, BackendSQLite}
	if !slices.Contains(validBackends, c.PrefsBackend) {
		errors = append(errors, fmt.Sprintf("invalid prefs backend '%s': must be one of %v", c.PrefsBackend, validBackends))
	}

	if c.PrefsBackend == BackendSQLite {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPRoutingKey == "" {
			errors = append(errors, "AMQP routing key cannot be empty when AMQP URL is provided")
		}
	}

	validLevels := []string{"debug", "info", "warn", "warning", "error"}
	if !slices.Contains(validLevels, c.LogLevel) {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of %v", c.LogLevel, validLevels))
	}
	validFormats := []string{"text", "json"}
	if !slices.Contains(validFormats, c.LogFormat) {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be one of %v", c.LogFormat, validFormats))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// AMQPEnabled reports whether rate notifications should be published.
func (c *Config) AMQPEnabled() bool {
	return c.AMQPURL != ""
}

func isCurrencyCode(s string) bool {
	if len(s) != 3 {
		return false
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
