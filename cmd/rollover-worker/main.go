package main

import (
	"time"

	"casa/internal/backend"
	"casa/internal/cli"
	applog "casa/internal/log"
	"casa/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentRollover)
	logger.Info("Starting rollover-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)

	var events services.EventPublisher
	if backendCfg, err := backend.FromAppConfig(cfg); err == nil {
		client, err := backend.NewFactory(logger.Logger).CreateEventClient(backendCfg, false)
		if err != nil {
			logger.Warn("Continuing without domain events", "error", err)
		} else if client != nil {
			defer client.Close()
			events = client
		}
	}

	processor := services.NewRecurringProcessor(repo, services.NewBudgetService(repo, events))

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	logger.Info("Recurring entry rollover configured",
		"interval", cfg.RolloverInterval,
		"sqlite_db", cfg.SQLiteDBPath)

	run := func(now time.Time) {
		count, err := processor.ProcessPeriod(ctx, now)
		if err != nil {
			if ctx.Err() == nil {
				logger.Error("Rollover failed", "error", err)
			}
			return
		}
		logger.Info("Rollover complete",
			"entries_created", count,
			"next_check", now.Add(cfg.RolloverInterval).Format("15:04:05"))
	}

	// The current month is populated on startup so a fresh deploy does not wait an interval.
	run(time.Now())

	ticker := time.NewTicker(cfg.RolloverInterval)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case now := <-ticker.C:
			run(now)
		}
	}

	cli.WaitForShutdown(ctx, done)
	if err := repo.Close(); err != nil {
		logger.Error("Failed to close database", "error", err)
	}
	logger.Info("Rollover-worker shutdown complete")
}
