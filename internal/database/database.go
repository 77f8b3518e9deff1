package database

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/hugh/voxpopulous/internal/database/models"
	"github.com/hugh/voxpopulous/pkg/config"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrUnavailable marks failures caused by losing the database connection.
var ErrUnavailable = errors.New("database unavailable")

func Connect(cfg *config.DatabaseConfig, log *slog.Logger) (*gorm.DB, error) {
	gormLogger := logger.Default.LogMode(logger.Warn)
	if cfg.SSLMode == "disable" {
		gormLogger = logger.Default.LogMode(logger.Info)
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting underlying db: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)

	log.Info("connected to database", "host", cfg.Host, "database", cfg.Name)

	return db, nil
}

// AllModels lists every persisted model in dependency order.
func AllModels() []interface{} {
	return []interface{}{
		&models.SubscriptionPlan{},
		&models.Feature{},
		&models.PlanFeatureAssignment{},
		&models.Addon{},
		&models.AddonTier{},
		&models.PlanAddonAccess{},
		&models.Tenant{},
		&models.TenantAddon{},
		&models.AdminUser{},
		&models.ElectedOfficial{},
	}
}

// AutoMigrate is used by tests and local tooling. Production schemas come
// from the SQL migrations applied by cmd/migrate.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(AllModels()...)
}

// Ping reports ErrUnavailable when the connection pool cannot reach the server.
func Ping(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
