package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"casa/internal/backend"
	"casa/internal/cache"
	"casa/internal/cli"
	apphttp "casa/internal/http"
	applog "casa/internal/log"
	"casa/internal/middleware/ratelimit"
	"casa/internal/middleware/security"
	"casa/internal/services"
	"casa/internal/vision"
)

const metricsInterval = 5 * time.Minute

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	amqpClient, err := backend.NewFactory(logger.Logger).CreateEventClient(backendCfg, false)
	if err != nil {
		// The API keeps working without events; only report exports are delayed.
		logger.Warn("Continuing without domain events", "error", err)
	}
	var events services.EventPublisher
	if amqpClient != nil {
		events = amqpClient
	}

	var extractor services.ReceiptExtractor
	if cfg.ReceiptScanEnabled() {
		gemini, err := vision.NewGeminiClient(vision.Config{
			APIKey:     cfg.GeminiAPIKey,
			Model:      cfg.GeminiModel,
			Timeout:    cfg.GeminiTimeout,
			MaxRetries: cfg.GeminiMaxRetries,
		})
		if err != nil {
			logger.Error("Failed to initialize Gemini client", "error", err)
			os.Exit(1)
		}
		extractor = gemini
		logger.Info("Receipt scanning enabled", "model", cfg.GeminiModel)
	} else {
		logger.Warn("GEMINI_API_KEY not set, receipt scanning disabled")
	}

	cacheManager := cache.NewManager()
	households := cache.NewLRUCache[int64](1000, cfg.CacheTTL)
	cacheManager.Register("households", households)
	cacheManager.StartCleanup(context.Background(), cfg.CacheTTL)

	budgets := services.NewBudgetService(repo, events)
	svc := apphttp.Services{
		Households: services.NewHouseholdService(repo, households),
		Categories: services.NewCategoryService(repo),
		Budgets:    budgets,
		Closing:    services.NewClosingService(repo, budgets, events, services.DistributionPolicy(cfg.DistributionPolicy)),
		Income:     services.NewIncomeService(repo),
		Expenses:   services.NewExpenseService(repo),
		Recurring:  services.NewRecurringService(repo),
		Savings:    services.NewSavingsService(repo, events),
		Purchases:  services.NewPurchaseService(repo),
		Products:   services.NewProductService(repo),
		Receipts:   services.NewReceiptService(repo, extractor),
	}

	detector, err := security.NewDetector(cfg.TrustedProxies...)
	if err != nil {
		logger.Error("Invalid trusted proxy", "error", err)
		os.Exit(1)
	}

	limits := ratelimit.Config{
		RequestsPerMinute: cfg.RateLimitPerMinute,
		Burst:             cfg.RateLimitBurst,
		CleanupInterval:   5 * time.Minute,
	}
	var store ratelimit.Store
	var redisClient *redis.Client
	var localLimiter *ratelimit.Limiter
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		store = ratelimit.NewRedisStore(redisClient, "casa:ratelimit:", limits)
		logger.Info("Rate limiting shared through Redis", "addr", cfg.RedisAddr)
	} else {
		localLimiter = ratelimit.NewLimiter(limits)
		store = localLimiter
	}

	srv := apphttp.NewServer(":"+cfg.Port, svc, apphttp.Options{
		Logger:    logger,
		Detector:  detector,
		RateLimit: store,
		Ready:     repo.Ping,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cacheManager.Stop()
		if localLimiter != nil {
			localLimiter.Stop()
		}
		if redisClient != nil {
			_ = redisClient.Close()
		}
		if amqpClient != nil {
			_ = amqpClient.Close()
		}
		if err := repo.Close(); err != nil {
			logger.Error("Failed to close database", "error", err)
		}
	})

	go logMetrics(ctx, logger, srv, households)

	logger.Info("Starting casa server",
		"port", cfg.Port,
		"report_backend", cfg.ReportBackend,
		"events_enabled", amqpClient != nil,
		"distribution_policy", cfg.DistributionPolicy)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}

func logMetrics(ctx context.Context, logger *applog.Logger, srv *apphttp.Server, households *cache.LRUCache[int64]) {
	ticker := time.NewTicker(metricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tm, sm, rm := srv.Metrics()
			logger.Info("Server metrics",
				"requests", tm.TotalRequests,
				"server_errors", tm.ServerErrors,
				"suspicious_requests", sm.SuspiciousRequests,
				"untrusted_identity", sm.UntrustedIdentity,
				"rate_limited", rm.Rejected,
				"rate_limit_store_errors", rm.StoreErrors,
				"household_cache", households.Stats())
		}
	}
}
