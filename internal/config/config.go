package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all toolkit configuration.
type Config struct {
	AppEnv            string
	DatabaseURL       string
	PaystackSecretKey string
	WebhookURL        string        // Target of `simulate webhook`
	ProductionHosts   []string      // Database/API hosts that mark a production target
	DefaultCurrency   string        // ISO code used by currency backfills
	PlatformFeeBPS    int64         // Platform fee in basis points
	StaleEscrow       time.Duration // Age after which a held payment on a completed booking is flagged
	SentryDSN         string
	ConfirmProduction string // Must equal the production database name to unlock mutations
	TOTPSecret        string
	Operator          string // Recorded as actor in the audit log
}

var ErrMissingDatabaseURL = errors.New("DATABASE_URL is not set")

// env bindings; the first variable that is set wins.
var bindings = map[string][]string{
	"app_env":             {"APP_ENV", "NODE_ENV"},
	"database_url":        {"DATABASE_URL"},
	"paystack_secret_key": {"PAYSTACK_SECRET_KEY"},
	"webhook_url":         {"OPS_WEBHOOK_URL"},
	"production_hosts":    {"OPS_PRODUCTION_HOSTS"},
	"default_currency":    {"OPS_DEFAULT_CURRENCY"},
	"platform_fee_bps":    {"OPS_PLATFORM_FEE_BPS"},
	"stale_escrow":        {"OPS_STALE_ESCROW"},
	"sentry_dsn":          {"SENTRY_DSN"},
	"confirm_production":  {"OPS_CONFIRM_PRODUCTION"},
	"totp_secret":         {"OPS_TOTP_SECRET"},
	"operator":            {"OPS_OPERATOR", "USER"},
}

// Load reads .env.local/.env, an optional opsctl.yaml and the process environment.
func Load() (Config, error) {
	// Missing files are fine: CI and production inject real env vars.
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("opsctl")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	v.SetDefault("app_env", "development")
	v.SetDefault("webhook_url", "http://localhost:3000/api/webhooks/paystack")
	v.SetDefault("default_currency", "NGN")
	v.SetDefault("platform_fee_bps", 1000)
	v.SetDefault("stale_escrow", "168h")
	v.SetDefault("operator", "unknown")

	for key, envs := range bindings {
		args := append([]string{key}, envs...)
		if err := v.BindEnv(args...); err != nil {
			return Config{}, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read opsctl.yaml: %w", err)
		}
	}

	cfg := Config{
		AppEnv:            strings.ToLower(v.GetString("app_env")),
		DatabaseURL:       v.GetString("database_url"),
		PaystackSecretKey: v.GetString("paystack_secret_key"),
		WebhookURL:        v.GetString("webhook_url"),
		ProductionHosts:   stringList(v, "production_hosts"),
		DefaultCurrency:   strings.ToUpper(strings.TrimSpace(v.GetString("default_currency"))),
		PlatformFeeBPS:    v.GetInt64("platform_fee_bps"),
		StaleEscrow:       v.GetDuration("stale_escrow"),
		SentryDSN:         v.GetString("sentry_dsn"),
		ConfirmProduction: v.GetString("confirm_production"),
		TOTPSecret:        v.GetString("totp_secret"),
		Operator:          v.GetString("operator"),
	}

	if cfg.PlatformFeeBPS < 0 || cfg.PlatformFeeBPS > 10000 {
		return Config{}, fmt.Errorf("platform_fee_bps must be between 0 and 10000, got %d", cfg.PlatformFeeBPS)
	}
	if cfg.StaleEscrow <= 0 {
		return Config{}, fmt.Errorf("stale_escrow must be positive, got %s", cfg.StaleEscrow)
	}

	return cfg, nil
}

// RequireDatabase returns ErrMissingDatabaseURL when no DSN is configured.
func (c Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return ErrMissingDatabaseURL
	}
	return nil
}

// IsProduction reports whether the configured environment is production.
func (c Config) IsProduction() bool {
	return c.AppEnv == "production" || c.AppEnv == "prod"
}

// DatabaseHost returns the host of DatabaseURL, or "" when it cannot be parsed.
func (c Config) DatabaseHost() string {
	host, _ := DSNTarget(c.DatabaseURL)
	return host
}

// DatabaseName returns the database name of DatabaseURL.
func (c Config) DatabaseName() string {
	_, name := DSNTarget(c.DatabaseURL)
	return name
}

// DSNTarget extracts host and database name from a postgres DSN.
func DSNTarget(dsn string) (host, database string) {
	d := ParseDSN(dsn)
	return d.Host, d.Database
}

func stringList(v *viper.Viper, key string) []string {
	var raw []string
	if s, ok := v.Get(key).(string); ok {
		raw = strings.Split(s, ",")
	} else {
		raw = v.GetStringSlice(key)
	}

	out := make([]string, 0, len(raw))
	for _, item := range raw {
		item = strings.ToLower(strings.TrimSpace(item))
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
