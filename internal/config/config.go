package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/mohs/mohs/internal/platform/db"
)

type Config struct {
	Port           string        `mapstructure:"PORT"`
	Env            string        `mapstructure:"ENV"`
	LogLevel       string        `mapstructure:"LOG_LEVEL"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32         `mapstructure:"DB_MIN_CONNS"`
	AuthIssuer     string        `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL    string        `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience   string        `mapstructure:"AUTH_AUDIENCE"`
	AuthSigningKey string        `mapstructure:"AUTH_SIGNING_KEY"`
	DefaultTenant  string        `mapstructure:"DEFAULT_TENANT"`
	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	MigrationsDir  string        `mapstructure:"MIGRATIONS_DIR"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	BodyLimit      string        `mapstructure:"BODY_LIMIT"`
	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"AUTH_ISSUER", "AUTH_JWKS_URL", "AUTH_AUDIENCE", "AUTH_SIGNING_KEY",
	"DEFAULT_TENANT", "CORS_ORIGINS", "MIGRATIONS_DIR", "REQUEST_TIMEOUT", "BODY_LIMIT",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("DEFAULT_TENANT", "default")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("MIGRATIONS_DIR", "./migrations")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("BODY_LIMIT", "2M")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// A missing .env file is fine.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) <= 1 {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Level parses LOG_LEVEL, defaulting to info.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil || c.LogLevel == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

// Validate checks that the configuration is safe to run. Outside development
// a bearer-token verifier (signing key or JWKS) must be configured.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthSigningKey == "" && c.AuthJWKSURL == "" {
		return fmt.Errorf("AUTH_SIGNING_KEY or AUTH_JWKS_URL must be set when ENV=%q; "+
			"refusing to start without authentication", c.Env)
	}
	if c.AuthSigningKey != "" && len(c.AuthSigningKey) < 32 {
		return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 characters")
	}
	if err := db.ValidateTenantID(c.DefaultTenant); err != nil {
		return fmt.Errorf("DEFAULT_TENANT: %w", err)
	}
	if c.LogLevel != "" {
		if _, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel)); err != nil {
			return fmt.Errorf("LOG_LEVEL %q is not a valid level", c.LogLevel)
		}
	}
	if c.DBMaxConns <= 0 {
		return fmt.Errorf("DB_MAX_CONNS must be positive, got %d", c.DBMaxConns)
	}
	if c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS must be between 0 and DB_MAX_CONNS (%d), got %d", c.DBMaxConns, c.DBMinConns)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must not be negative")
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must not be negative")
	}
	return nil
}
