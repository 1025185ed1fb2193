// Command posd runs the offline-first POS companion daemon.
//
// It owns the durable cart session, the offline mutation queue, the
// connectivity monitor, and the network cache worker, and serves the local
// HTTP API the register UI talks to. Configuration comes from the
// environment (optionally a .env file); see internal/config.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-pos-offline/internal/cache"
	"github.com/tbourn/go-pos-offline/internal/config"
	"github.com/tbourn/go-pos-offline/internal/connectivity"
	httpapi "github.com/tbourn/go-pos-offline/internal/http"
	"github.com/tbourn/go-pos-offline/internal/http/handlers"
	"github.com/tbourn/go-pos-offline/internal/observability"
	"github.com/tbourn/go-pos-offline/internal/queue"
	"github.com/tbourn/go-pos-offline/internal/repo"
	"github.com/tbourn/go-pos-offline/internal/store"
	"github.com/tbourn/go-pos-offline/internal/sysutil"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// .env is optional; real deployments configure the environment directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	logger := log.With().Str("service", "posd").Str("version", version).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Tracing (no-op unless OTEL_ENABLED)
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		logger.Fatal().Err(err).Msg("otel setup failed")
	}

	// On-device persistence
	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.DBPath).Msg("cannot open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		logger.Fatal().Err(err).Msg("migration failed")
	}
	if cfg.OTEL.Enabled {
		if err := repo.EnableTracing(db); err != nil {
			logger.Warn().Err(err).Msg("database tracing not attached")
		}
	}

	// Local State Store
	cartStore := store.NewCartStore(db, repo.Records{}, cfg.Cart.Retention, cfg.Cart.HistoryLimit, cfg.Cart.Debounce, logger)
	cartStore.Location = cfg.Location
	cartStore.DeviceInfo = sysutil.DeviceInfo()

	// Offline Mutation Queue + backend executor
	exec := queue.NewHTTPExecutor(cfg.BackendURL, nil, logger)
	offQueue := queue.NewOfflineQueue(db, repo.Records{}, exec, cfg.Queue.MaxRetries, logger)

	// Connectivity Monitor: first offline→online edge drains the queue.
	probe := connectivity.NewHTTPProbe(cfg.HealthURL, cfg.ProbeTimeout)
	monitor := connectivity.NewMonitor(probe, cfg.ProbeInterval, logger)
	monitor.OnOnline(func(ctx context.Context) {
		res, err := offQueue.Drain(ctx)
		if err != nil {
			if !errors.Is(err, queue.ErrDrainInFlight) {
				logger.Warn().Err(err).Msg("automatic drain failed")
			}
			return
		}
		logger.Info().
			Int("processed", res.Processed).
			Int("remaining", res.Remaining).
			Int("dropped", len(res.Dropped)).
			Msg("automatic drain finished")
	})

	// Network Cache Layer worker
	classes := cache.NewClassifier(
		cfg.Cache.ProductsTTL, cfg.Cache.EmployeesTTL, cfg.Cache.StaticTTL,
		cfg.Cache.APITimeout, cfg.Cache.StaticTimeout,
	)
	worker := cache.NewWorker(db, repo.Entries{}, cfg.BackendURL, classes, nil, logger)
	go worker.Run(ctx)
	monitor.Start(ctx)
	defer monitor.Stop()

	// HTTP surface
	gin.SetMode(cfg.GinMode)
	engine := gin.New()
	httpapi.RegisterRoutes(
		engine,
		cfg,
		handlers.NewCartHandler(cartStore, offQueue, monitor, exec),
		handlers.NewQueueHandler(offQueue, monitor),
		handlers.NewCacheHandler(worker),
	)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("backend", cfg.BackendURL).Msg("posd listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		logger.Error().Err(err).Msg("http server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("forced shutdown")
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("otel shutdown failed")
	}
	logger.Info().Msg("posd stopped")
}
