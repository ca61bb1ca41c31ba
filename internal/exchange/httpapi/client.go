package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"valuta/internal/core"
	"valuta/internal/exchange"
)

const (
	DefaultBaseURL = "https://v6.exchangerate-api.com/v6"
	userAgent      = "valuta/1.0"
	maxBodyBytes   = 1 << 20
	resultError    = "error"
)

// Client talks to an exchangerate-api v6 compatible service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	timeout    time.Duration
	group      singleflight.Group
}

// Ensure interface conformance
var (
	_ exchange.RateSource = (*Client)(nil)
	_ exchange.CodeSource = (*Client)(nil)
)

type Config struct {
	BaseURL string
	APIKey  string
	// Timeout bounds a whole request including the body read.
	Timeout time.Duration
	// HTTPClient overrides the default client. Timeout still bounds each
	// shared request.
	HTTPClient *http.Client
}

func New(cfg Config) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = newHTTPClientWithPooling(timeout)
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		httpClient: hc,
		timeout:    timeout,
	}
}

// newHTTPClientWithPooling keeps a small idle pool for the single provider host.
func newHTTPClientWithPooling(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: timeout,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: transport, Timeout: timeout}
}

type envelope struct {
	Result    string `json:"result"`
	ErrorType string `json:"error-type"`
}

type ratesResponse struct {
	envelope
	TimeLastUpdateUTC string             `json:"time_last_update_utc"`
	BaseCode          string             `json:"base_code"`
	ConversionRates   map[string]float64 `json:"conversion_rates"`
}

type codesResponse struct {
	envelope
	SupportedCodes [][]string `json:"supported_codes"`
}

// LatestRates implements exchange.RateSource. Concurrent calls for the same
// base share one request.
func (c *Client) LatestRates(ctx context.Context, baseCode string) (exchange.RatesPayload, error) {
	if err := c.checkKey(); err != nil {
		return exchange.RatesPayload{}, err
	}
	base := core.NormalizeCode(baseCode)
	if base == "" {
		return exchange.RatesPayload{}, core.NewAPIError(0, core.CodeUnsupportedCode)
	}

	v, err := c.shared(ctx, "latest/"+base, func(ctx context.Context) (any, error) {
		var resp ratesResponse
		if err := c.get(ctx, "latest/"+url.PathEscape(base), &resp); err != nil {
			return nil, err
		}
		if resp.ConversionRates == nil {
			return nil, core.NewDecodeError(errors.New("missing conversion_rates"))
		}
		payload := exchange.RatesPayload{
			BaseCode: resp.BaseCode,
			Rates:    resp.ConversionRates,
		}
		if payload.BaseCode == "" {
			payload.BaseCode = base
		}
		if t, err := time.Parse(time.RFC1123Z, resp.TimeLastUpdateUTC); err == nil {
			payload.UpdatedAt = t.UTC()
		}
		return payload, nil
	})
	if err != nil {
		return exchange.RatesPayload{}, err
	}
	return v.(exchange.RatesPayload), nil
}

// SupportedCodes implements exchange.CodeSource.
func (c *Client) SupportedCodes(ctx context.Context) ([][]string, error) {
	if err := c.checkKey(); err != nil {
		return nil, err
	}
	v, err := c.shared(ctx, "codes", func(ctx context.Context) (any, error) {
		var resp codesResponse
		if err := c.get(ctx, "codes", &resp); err != nil {
			return nil, err
		}
		if resp.SupportedCodes == nil {
			return nil, core.NewDecodeError(errors.New("missing supported_codes"))
		}
		return resp.SupportedCodes, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([][]string), nil
}

func (c *Client) checkKey() error {
	if c.apiKey == "" {
		return core.NewConfigurationError("missing exchange API key")
	}
	return nil
}

// shared runs fn once per key for all concurrent callers. fn gets a context
// that keeps the first caller's values but none of its cancellation, bounded
// by the client timeout; each caller stops waiting on its own ctx.
func (c *Client) shared(ctx context.Context, key string, fn func(ctx context.Context) (any, error)) (any, error) {
	ch := c.group.DoChan(key, func() (any, error) {
		reqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		return fn(reqCtx)
	})
	select {
	case <-ctx.Done():
		return nil, mapTransportError(ctx.Err())
	case res := <-ch:
		if res.Shared {
			slog.DebugContext(ctx, "Shared in-flight exchange request", "key", key)
		}
		return res.Val, res.Err
	}
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	endpoint := fmt.Sprintf("%s/%s/%s", c.baseURL, url.PathEscape(c.apiKey), path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return core.NewTransportError(0, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return mapTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return mapTransportError(err)
	}

	slog.DebugContext(ctx, "Exchange API response",
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())

	var env envelope
	envErr := json.Unmarshal(body, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if envErr == nil && env.ErrorType != "" {
			return core.NewAPIError(resp.StatusCode, env.ErrorType)
		}
		return core.NewTransportError(resp.StatusCode, fmt.Errorf("unexpected status code: %d", resp.StatusCode))
	}

	if envErr != nil {
		return core.NewDecodeError(envErr)
	}
	if env.Result == resultError || env.ErrorType != "" {
		return core.NewAPIError(resp.StatusCode, env.ErrorType)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return core.NewDecodeError(err)
	}
	return nil
}

func mapTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return core.NewTimeoutError(err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return core.NewTimeoutError(err)
	}
	return core.NewTransportError(0, err)
}
