package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"bilancio/internal/amqp"
	"bilancio/internal/cli"
	"bilancio/internal/config"
	applog "bilancio/internal/log"
	"bilancio/internal/worker"
)

const reportInterval = time.Minute

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

var errEventsDisabled = errors.New("AMQP_URL is required for the event worker")

// run audits events until ctx is cancelled, closing the AMQP client before
// it returns.
func run(ctx context.Context, cfg *config.Config, logger *applog.Logger) error {
	if !cfg.EventsEnabled() {
		logger.Error("Cannot start event worker", applog.FieldError, errEventsDisabled)
		return errEventsDisabled
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
		return err
	}
	defer client.Close()

	auditor := worker.NewAuditWorker(logger)

	logger.Info("Starting bilancio-worker", "queue", cfg.AMQPQueue)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return client.ConsumeTransactionEvents(gctx, auditor.HandleEvent)
	})
	g.Go(func() error {
		return auditor.Report(gctx, reportInterval)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", applog.FieldError, err)
		return err
	}
	logger.Info("Worker shutdown complete")
	return nil
}
