package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"valuta/internal/amqp"
	"valuta/internal/cache"
	"valuta/internal/cli"
	apphttp "valuta/internal/http"
	applog "valuta/internal/log"
	"valuta/internal/state"
)

const (
	shutdownTimeout     = 30 * time.Second
	cacheCleanupEvery   = time.Hour
	amqpConnectAttempts = 3
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the converter API and websocket stream",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

func runServe(ctx context.Context, logOut io.Writer) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a, err := newApp(ctx, reg, logOut)
	if err != nil {
		return err
	}
	defer a.Close()
	cfg, logger := a.cfg, a.logger

	caches := cache.NewManager(logger)
	caches.Register(a.catalog)
	caches.StartCleanup(cacheCleanupEvery)

	scfg := state.DefaultConfig()
	scfg.DefaultBase = cfg.DefaultBaseCurrency
	scfg.AutoRefresh = cfg.AutoRefreshInterval
	ctrl := state.New(a.rates, a.catalog, a.prefs, scfg, a.metrics, logger)

	srv := apphttp.NewServer(":"+cfg.Port, ctrl, apphttp.Options{
		Logger:            logger,
		Metrics:           a.metrics,
		Gatherer:          reg,
		RequestsPerMinute: cfg.RateLimitPerMinute,
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	runCtx, shutdownDone := cli.GracefulShutdown(gctx, logger, shutdownTimeout, func(sctx context.Context) {
		if err := srv.Shutdown(sctx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err.Error())
		}
		ctrl.Stop()
		caches.Stop()
	})

	ctrl.Start(runCtx)
	if err := ctrl.Init(runCtx); err != nil {
		return fmt.Errorf("init state: %w", err)
	}

	if cfg.AMQPEnabled() {
		client := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPRoutingKey, cfg.AMQPQueue, logger)
		defer client.Close()
		if err := client.Connect(runCtx, amqpConnectAttempts); err != nil {
			logger.Warn("AMQP unavailable at startup, publishing will retry", applog.FieldError, err.Error())
		}
		snapshots, unsubscribe := ctrl.Subscribe()
		g.Go(func() error {
			defer unsubscribe()
			if err := amqp.Forward(runCtx, snapshots, client, logger); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("rates notifier: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		logger.Info("Starting valuta server",
			"port", cfg.Port,
			"rates_source", cfg.RatesSource,
			"prefs_backend", cfg.PrefsBackend,
			"amqp", cfg.AMQPEnabled())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	err = g.Wait()
	<-shutdownDone
	if err != nil {
		return err
	}
	logger.Info("Server stopped gracefully")
	return nil
}
