package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/hugh/voxpopulous/internal/billing"
	"github.com/hugh/voxpopulous/internal/catalog"
	"github.com/hugh/voxpopulous/internal/database"
	"github.com/hugh/voxpopulous/internal/entitlement"
	"github.com/hugh/voxpopulous/internal/quota"
	"github.com/hugh/voxpopulous/internal/tasks"
	"github.com/hugh/voxpopulous/internal/tenant"
	"github.com/hugh/voxpopulous/pkg/config"
	"github.com/hugh/voxpopulous/pkg/queue"
	"github.com/hugh/voxpopulous/pkg/util"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Load .env file
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := util.NewLogger(cfg.Server.Env)
	slog.SetDefault(logger)

	logger.Info("starting Voxpopulous worker")

	// Connect to database
	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	asynqClient := queue.NewClient(&cfg.Redis)

	tenants := tenant.NewStore(db, logger)
	billingService := billing.NewService(billing.Deps{
		DB:        db,
		Tenants:   tenants,
		Catalog:   catalog.NewService(db, logger),
		Resolver:  entitlement.NewResolver(db, redisClient, cfg.Entitlements.CacheTTL(), logger),
		Quotas:    quota.NewService(db, logger),
		Gate:      billing.NewGate(tenants, cfg.Billing.DefaultSuspensionReason, cfg.Billing.BillingPagePath),
		Publisher: tasks.NewPublisher(asynqClient),
		Logger:    logger,
	})

	// Create Asynq server and scheduler
	srv := queue.NewServer(&cfg.Redis, cfg.Worker.Concurrency)
	scheduler := queue.NewScheduler(&cfg.Redis)

	entryID, err := tasks.RegisterTrialSweep(scheduler, cfg.Billing.TrialSweepCron)
	if err != nil {
		logger.Error("failed to schedule trial sweep", "error", err)
		os.Exit(1)
	}
	next, _ := util.NextCronTime(cfg.Billing.TrialSweepCron, time.Now())
	logger.Info("trial sweep scheduled",
		"entry_id", entryID,
		"cron", cfg.Billing.TrialSweepCron,
		"next_run", next,
	)

	// Create task handler
	handler := tasks.NewHandler(billingService, logger)

	// Register handlers
	mux := asynq.NewServeMux()
	handler.RegisterHandlers(mux)

	if err := scheduler.Start(); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}
	if err := srv.Start(mux); err != nil {
		logger.Error("failed to start worker", "error", err)
		os.Exit(1)
	}

	logger.Info("worker started, waiting for tasks...")

	// Handle shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down worker...")
	scheduler.Shutdown()
	srv.Shutdown()

	asynqClient.Close()
	redisClient.Close()

	// Close database connection
	sqlDB, _ := db.DB()
	sqlDB.Close()

	logger.Info("worker stopped")
}
