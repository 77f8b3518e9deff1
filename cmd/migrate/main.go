package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/hugh/voxpopulous/internal/auth"
	"github.com/hugh/voxpopulous/internal/catalog"
	"github.com/hugh/voxpopulous/internal/database"
	"github.com/hugh/voxpopulous/internal/tenant"
	"github.com/hugh/voxpopulous/pkg/config"
	"github.com/hugh/voxpopulous/pkg/util"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var (
	cfg    *config.Config
	logger *slog.Logger
	steps  int
)

var rootCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Voxpopulous schema and catalog maintenance",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		logger = util.NewLogger(cfg.Server.Env)
		slog.SetDefault(logger)
		return nil
	},
	SilenceUsage: true,
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply every pending SQL migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return database.MigrateUp(cfg.Database.URL(), logger)
	},
}

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back SQL migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return database.MigrateDown(cfg.Database.URL(), steps, logger)
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert the default catalog and the operator account",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(func(ctx context.Context, db *gorm.DB) error {
			cat := catalog.NewService(db, logger)
			if err := cat.Seed(ctx); err != nil {
				return err
			}
			logger.Info("catalog seeded")

			email := os.Getenv("SUPERADMIN_EMAIL")
			password := os.Getenv("SUPERADMIN_PASSWORD")
			if email == "" || password == "" {
				logger.Warn("SUPERADMIN_EMAIL or SUPERADMIN_PASSWORD not set, skipping operator account")
				return nil
			}
			name := os.Getenv("SUPERADMIN_NAME")
			if name == "" {
				name = "Super Admin"
			}

			jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Expiry())
			authService := auth.NewService(db, jwtService, tenant.NewStore(db, logger), cat, cfg.Billing.TrialPeriod(), logger)
			created, err := authService.EnsureSuperAdmin(ctx, auth.AccountInput{
				Email:    email,
				Password: password,
				Name:     name,
			})
			if err != nil {
				return err
			}
			if !created {
				logger.Info("super admin already exists", "email", email)
			}
			return nil
		})
	},
}

var legacyFlagsCmd = &cobra.Command{
	Use:   "migrate-legacy-flags",
	Short: "Copy plan boolean flags into catalog feature assignments",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(func(ctx context.Context, db *gorm.DB) error {
			n, err := catalog.NewService(db, logger).MigrateLegacyFlags(ctx)
			if err != nil {
				return err
			}
			logger.Info("legacy plan flags migrated", "plans", n)
			return nil
		})
	},
}

func withDB(fn func(context.Context, *gorm.DB) error) error {
	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	return fn(ctx, db)
}

func init() {
	downCmd.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	rootCmd.AddCommand(upCmd, downCmd, seedCmd, legacyFlagsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
