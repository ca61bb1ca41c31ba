package exchange

import (
	"context"
	"time"
)

// Ports for the remote pricing service.
type (
	// RatesPayload is a decoded rates response.
	RatesPayload struct {
		BaseCode string
		Rates    map[string]float64
		// UpdatedAt is the provider's last update time, zero if unknown.
		UpdatedAt time.Time
	}

	RateSource interface {
		// LatestRates returns rates relative to baseCode.
		LatestRates(ctx context.Context, baseCode string) (RatesPayload, error)
	}

	CodeSource interface {
		// SupportedCodes returns [code, name] pairs as sent by the provider.
		SupportedCodes(ctx context.Context) ([][]string, error)
	}
)
