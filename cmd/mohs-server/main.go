package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mohs/mohs/internal/config"
	"github.com/mohs/mohs/internal/domain/mohs"
	"github.com/mohs/mohs/internal/platform/auth"
	"github.com/mohs/mohs/internal/platform/db"
	"github.com/mohs/mohs/internal/platform/middleware"
)

const applicationName = "mohs-server"

func main() {
	rootCmd := &cobra.Command{
		Use:   "mohs-server",
		Short: "Mohs surgery case workflow server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(cptCmd())
	rootCmd.AddCommand(reportCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the Mohs API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg == nil || cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	if cfg != nil {
		logger = logger.Level(cfg.Level())
	}
	return logger
}

// loadConfig reads and validates configuration for commands that touch the
// database.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func connect(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	return db.NewPool(ctx, db.PoolConfig{
		DatabaseURL:     cfg.DatabaseURL,
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		ApplicationName: applicationName,
	})
}

// newServer assembles the echo instance: global middleware, auth, tenant
// resolution, health routes and the Mohs API under /api/v1.
func newServer(cfg *config.Config, logger zerolog.Logger, svc *mohs.Service, health echo.HandlerFunc) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	if cfg.RequestTimeout > 0 {
		e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	}
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "X-Tenant-ID"},
	}))

	// Auth middleware
	jwtCfg := auth.JWTConfig{
		Issuer:   cfg.AuthIssuer,
		Audience: cfg.AuthAudience,
		JWKSURL:  cfg.AuthJWKSURL,
		Skipper:  auth.AuthSkipper,
	}
	if cfg.AuthSigningKey != "" {
		jwtCfg.SigningKey = []byte(cfg.AuthSigningKey)
	}
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware(jwtCfg))
	} else {
		e.Use(auth.JWTMiddleware(jwtCfg))
	}

	// Tenant middleware
	e.Use(db.TenantMiddleware(cfg.DefaultTenant))

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	if health != nil {
		e.GET("/health/db", health)
	}

	apiV1 := e.Group("/api/v1")
	rateLimitCfg := middleware.DefaultRateLimitConfig()
	rateLimitCfg.RequestsPerSecond = cfg.RateLimitRPS
	rateLimitCfg.BurstSize = cfg.RateLimitBurst
	apiV1.Use(middleware.RateLimit(rateLimitCfg))
	mohs.NewHandler(svc).RegisterRoutes(apiV1)

	return e
}

func runServer() error {
	cfg, err := loadConfig()
	logger := newLogger(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	// Database
	ctx := context.Background()
	pool, err := connect(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	svc := mohs.NewService(mohs.NewRepoPG(pool), logger)
	e := newServer(cfg, logger, svc, db.HealthHandler(pool, db.StatsFromPool(pool)))

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
