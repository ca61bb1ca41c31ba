// Package http exposes the converter state as a JSON API with a websocket
// stream of snapshots, and serves the bundled converter page.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	applog "valuta/internal/log"
	"valuta/internal/metrics"
	"valuta/internal/middleware/ratelimit"
	"valuta/internal/middleware/security"
	"valuta/internal/middleware/trace"
	"valuta/internal/state"
	"valuta/web"
)

// Engine is the part of the state controller the API drives.
type Engine interface {
	Snapshot() state.Snapshot
	Subscribe() (<-chan state.Snapshot, func())
	SetBaseCurrency(ctx context.Context, code string) error
	Refresh(ctx context.Context) error
	ReloadCatalog(ctx context.Context) error
	SwapFromTo(ctx context.Context) error
	SetFrom(ctx context.Context, code string) error
	SetTo(ctx context.Context, code string) error
	SetAmount(ctx context.Context, raw string) error
	ToggleFavorite(ctx context.Context, code string) error
	SetFavoritesOnly(ctx context.Context, enabled bool) error
}

type Options struct {
	Logger  *applog.Logger
	Metrics *metrics.Metrics
	// Gatherer backs /metrics; nil uses the default registry.
	Gatherer prometheus.Gatherer
	// RequestsPerMinute limits mutating requests per client IP.
	RequestsPerMinute int
}

type Server struct {
	http.Server
	engine   Engine
	logger   *applog.Logger
	metrics  *metrics.Metrics
	limiter  *ratelimit.Limiter
	detector *security.Detector
	upgrader websocket.Upgrader

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, engine Engine, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = applog.Discard()
	}
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		engine:   engine,
		logger:   logger.WithComponent(applog.ComponentHTTP),
		metrics:  opts.Metrics,
		limiter:  ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RequestsPerMinute}),
		detector: security.NewDetector(opts.Metrics.SuspiciousRequest),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("GET /api/currencies", s.handleCurrencies)
	mux.HandleFunc("GET /api/convert", s.handleConvert)
	mux.HandleFunc("POST /api/base", s.handleSetBase)
	mux.HandleFunc("POST /api/refresh", s.handleRefresh)
	mux.HandleFunc("POST /api/catalog/reload", s.handleReloadCatalog)
	mux.HandleFunc("POST /api/swap", s.handleSwap)
	mux.HandleFunc("POST /api/selection", s.handleSelection)
	mux.HandleFunc("POST /api/favorites/{code}", s.handleToggleFavorite)
	mux.HandleFunc("POST /api/favorites-only", s.handleFavoritesOnly)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.Handle("GET /", http.FileServerFS(web.StaticFS()))

	limited := s.limiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		s.metrics.RateLimitHit()
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded, try again later")
	}, http.MethodPost)

	var handler http.Handler = mux
	handler = limited(handler)
	handler = s.detector.Middleware(handler)
	handler = security.Headers(security.DefaultHeadersConfig())(handler)
	handler = trace.NewMiddleware(s.detector.ExtractClientIP, logger, opts.Metrics).Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Shutdown stops the limiter and gracefully shuts down the listener.
// Websocket streams end when the engine closes their subscriptions.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReady reports ready once a rate table has been loaded.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.engine.Snapshot().Rates == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("rates not loaded"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
