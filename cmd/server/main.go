package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/hugh/voxpopulous/internal/api"
	"github.com/hugh/voxpopulous/internal/api/middleware"
	"github.com/hugh/voxpopulous/internal/auth"
	"github.com/hugh/voxpopulous/internal/billing"
	"github.com/hugh/voxpopulous/internal/catalog"
	"github.com/hugh/voxpopulous/internal/database"
	"github.com/hugh/voxpopulous/internal/entitlement"
	"github.com/hugh/voxpopulous/internal/quota"
	"github.com/hugh/voxpopulous/internal/session"
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

	logger.Info("starting Voxpopulous server",
		"env", cfg.Server.Env,
		"addr", cfg.Server.Addr(),
	)

	// Connect to database
	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	// Connect to Redis. Without it entitlements are resolved uncached and
	// rate limiting falls back to process memory.
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logger.Warn("failed to connect to Redis", "error", err)
		redisClient = nil
	}

	// Asynq client for billing events
	var asynqClient *asynq.Client
	var publisher billing.Publisher
	if redisClient != nil {
		asynqClient = queue.NewClient(&cfg.Redis)
		publisher = tasks.NewPublisher(asynqClient)
	}

	// Initialize services
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Expiry())
	tenants := tenant.NewStore(db, logger)
	cat := catalog.NewService(db, logger)
	resolver := entitlement.NewResolver(db, redisClient, cfg.Entitlements.CacheTTL(), logger)
	quotas := quota.NewService(db, logger)
	gate := billing.NewGate(tenants, cfg.Billing.DefaultSuspensionReason, cfg.Billing.BillingPagePath)
	billingService := billing.NewService(billing.Deps{
		DB:        db,
		Tenants:   tenants,
		Catalog:   cat,
		Resolver:  resolver,
		Quotas:    quotas,
		Gate:      gate,
		Publisher: publisher,
		Logger:    logger,
	})
	authService := auth.NewService(db, jwtService, tenants, cat, cfg.Billing.TrialPeriod(), logger)

	loginLimiter := middleware.NewLimiter(redisClient, cfg.RateLimit.LoginAttempts, cfg.RateLimit.WindowSeconds, logger)

	// Create router
	router := api.NewRouter(api.RouterConfig{
		DB:             db,
		Redis:          redisClient,
		Logger:         logger,
		JWTService:     jwtService,
		AuthService:    authService,
		Sessions:       session.NewResolver(db, logger),
		Tenants:        tenants,
		Catalog:        cat,
		Entitlements:   resolver,
		Quotas:         quotas,
		Billing:        billingService,
		Gate:           gate,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		LoginLimiter:   loginLimiter,
		SecureCookies:  !cfg.Server.IsDevelopment(),
		CSRFSecret:     cfg.CSRFKey(),
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server listening", "addr", cfg.Server.Addr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if closer, ok := loginLimiter.(interface{ Close() }); ok {
		closer.Close()
	}

	// Close Asynq client
	if asynqClient != nil {
		asynqClient.Close()
	}

	// Close Redis connection
	if redisClient != nil {
		redisClient.Close()
	}

	// Close database connection
	sqlDB, _ := db.DB()
	sqlDB.Close()

	logger.Info("server stopped")
}
