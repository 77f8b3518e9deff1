package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	JWT          JWTConfig
	RateLimit    RateLimitConfig
	Entitlements EntitlementsConfig
	Billing      BillingConfig
	Worker       WorkerConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	Env            string
	AllowedOrigins []string
	CSRFSecret     string
}

type WorkerConfig struct {
	Concurrency int
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret      string
	ExpiryHours int
}

type RateLimitConfig struct {
	LoginAttempts int
	WindowSeconds int
}

type EntitlementsConfig struct {
	CacheTTLSeconds int
}

type BillingConfig struct {
	TrialDays               int
	TrialSweepCron          string
	DefaultSuspensionReason string
	BillingPagePath         string
}

func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

// URL returns the connection string in the form golang-migrate expects.
func (d *DatabaseConfig) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

func (j *JWTConfig) Expiry() time.Duration {
	return time.Duration(j.ExpiryHours) * time.Hour
}

func (e *EntitlementsConfig) CacheTTL() time.Duration {
	return time.Duration(e.CacheTTLSeconds) * time.Second
}

func (b *BillingConfig) TrialPeriod() time.Duration {
	return time.Duration(b.TrialDays) * 24 * time.Hour
}

func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func (s *ServerConfig) IsDevelopment() bool {
	return s.Env == "development"
}

// CSRFKey falls back to a key derived from the JWT secret when no dedicated
// secret is configured.
func (c *Config) CSRFKey() string {
	if c.Server.CSRFSecret != "" {
		return c.Server.CSRFSecret
	}
	return "csrf:" + c.JWT.Secret
}

func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_ENV", "development")
	v.SetDefault("SERVER_ALLOWED_ORIGINS", "")
	v.SetDefault("SERVER_CSRF_SECRET", "")
	v.SetDefault("WORKER_CONCURRENCY", 10)
	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", 5432)
	v.SetDefault("DATABASE_USER", "voxpopulous")
	v.SetDefault("DATABASE_PASSWORD", "voxpopulous_secret")
	v.SetDefault("DATABASE_NAME", "voxpopulous")
	v.SetDefault("DATABASE_SSLMODE", "disable")
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("JWT_SECRET", "change-me-in-production")
	v.SetDefault("JWT_EXPIRY_HOURS", 12)
	v.SetDefault("RATE_LIMIT_LOGIN_ATTEMPTS", 10)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 60)
	v.SetDefault("ENTITLEMENTS_CACHE_TTL_SECONDS", 300)
	v.SetDefault("BILLING_TRIAL_DAYS", 30)
	v.SetDefault("BILLING_TRIAL_SWEEP_CRON", "15 3 * * *")
	v.SetDefault("BILLING_DEFAULT_SUSPENSION_REASON", "Ce compte est temporairement suspendu. Les données restent consultables en lecture seule.")
	v.SetDefault("BILLING_PAGE_PATH", "/admin/billing")

	// Load from .env file if present
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{
		Server: ServerConfig{
			Host:           v.GetString("SERVER_HOST"),
			Port:           v.GetInt("SERVER_PORT"),
			Env:            v.GetString("SERVER_ENV"),
			AllowedOrigins: splitList(v.GetString("SERVER_ALLOWED_ORIGINS")),
			CSRFSecret:     v.GetString("SERVER_CSRF_SECRET"),
		},
		Worker: WorkerConfig{
			Concurrency: v.GetInt("WORKER_CONCURRENCY"),
		},
		Database: DatabaseConfig{
			Host:     v.GetString("DATABASE_HOST"),
			Port:     v.GetInt("DATABASE_PORT"),
			User:     v.GetString("DATABASE_USER"),
			Password: v.GetString("DATABASE_PASSWORD"),
			Name:     v.GetString("DATABASE_NAME"),
			SSLMode:  v.GetString("DATABASE_SSLMODE"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetInt("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		JWT: JWTConfig{
			Secret:      v.GetString("JWT_SECRET"),
			ExpiryHours: v.GetInt("JWT_EXPIRY_HOURS"),
		},
		RateLimit: RateLimitConfig{
			LoginAttempts: v.GetInt("RATE_LIMIT_LOGIN_ATTEMPTS"),
			WindowSeconds: v.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
		Entitlements: EntitlementsConfig{
			CacheTTLSeconds: v.GetInt("ENTITLEMENTS_CACHE_TTL_SECONDS"),
		},
		Billing: BillingConfig{
			TrialDays:               v.GetInt("BILLING_TRIAL_DAYS"),
			TrialSweepCron:          v.GetString("BILLING_TRIAL_SWEEP_CRON"),
			DefaultSuspensionReason: v.GetString("BILLING_DEFAULT_SUSPENSION_REASON"),
			BillingPagePath:         v.GetString("BILLING_PAGE_PATH"),
		},
	}

	return cfg, nil
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
