package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"bilancio/internal/amqp"
	"bilancio/internal/cache"
	"bilancio/internal/cli"
	"bilancio/internal/config"
	apphttp "bilancio/internal/http"
	"bilancio/internal/ledger"
	applog "bilancio/internal/log"
	"bilancio/internal/services"
)

const (
	shutdownTimeout      = 30 * time.Second
	cacheCleanupInterval = time.Minute
)

func main() {
	bootLogger := cli.SetupLogger("info")
	if err := cli.LoadEnvFile(); err != nil {
		bootLogger.Error("Failed to load .env file", applog.FieldError, err)
		os.Exit(1)
	}

	cfg := cli.LoadAndValidateConfig(bootLogger)
	logger := cli.SetupLogger(cfg.LogLevel)

	ctx, stop := cli.SignalContext(logger)
	err := run(ctx, cfg, logger)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// run serves until ctx is cancelled. Every resource it opens is released
// before it returns.
func run(ctx context.Context, cfg *config.Config, logger *applog.Logger) error {
	store, err := ledger.NewFromFile(cfg.SeedFile)
	if err != nil {
		logger.Error("Failed to load seed transactions", applog.FieldError, err, "path", cfg.SeedFile)
		return err
	}
	logger.Info("Ledger ready", applog.FieldCount, store.Len(), "seed_file", cfg.SeedFile)

	var events services.EventPublisher
	if cfg.EventsEnabled() {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Warn("AMQP unavailable, change events disabled", applog.FieldError, err)
		} else {
			defer client.Close()
			events = client
		}
	}

	svc := services.NewTransactionService(store, events, services.ViewCacheConfig{
		Size: cfg.ViewCacheSize,
		TTL:  cfg.ViewCacheTTL,
	}, logger)

	caches := cache.NewManager(logger.WithComponent(applog.ComponentCache))
	for _, c := range svc.Caches() {
		caches.Register(c)
	}

	srv := apphttp.NewServer(":"+cfg.Port, svc, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting bilancio server", "port", cfg.Port, "events", events != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return caches.Run(gctx, cacheCleanupInterval)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		return err
	}
	logger.Info("Server stopped gracefully")
	return nil
}
