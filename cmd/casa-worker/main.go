package main

import (
	"context"
	"errors"
	"os"
	"time"

	"casa/internal/backend"
	"casa/internal/cli"
	applog "casa/internal/log"
	"casa/internal/services"
	"casa/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentWorker)
	logger.Info("Starting casa-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required by the report worker")
		os.Exit(1)
	}

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	factory := backend.NewFactory(logger.Logger)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	reports, err := factory.CreateReportWriter(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize report writer", "error", err)
		os.Exit(1)
	}
	amqpClient, err := factory.CreateEventClient(backendCfg, true)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}

	reportWorker := worker.NewReportWorker(
		services.NewHouseholdService(repo, nil),
		services.NewBudgetService(repo, nil),
		services.NewSavingsService(repo, nil),
		reports.Writer,
	)

	logger.Info("Consuming domain events",
		"exchange", cfg.AMQPExchange,
		"queue", cfg.AMQPQueue,
		"report_backend", backendCfg.Reports)
	if err := amqpClient.Consume(ctx, reportWorker.HandleEvent); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Event consumption failed", "error", err)
	}

	if err := amqpClient.Close(); err != nil {
		logger.Warn("Failed to close AMQP client", "error", err)
	}
	if reports.Cleanup != nil {
		if err := reports.Cleanup(); err != nil {
			logger.Warn("Report writer cleanup failed", "error", err)
		}
	}
	if err := repo.Close(); err != nil {
		logger.Error("Failed to close database", "error", err)
	}

	if ctx.Err() != nil {
		cli.WaitForShutdown(ctx, done)
	}
	logger.Info("Worker shutdown complete")
}
