package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"crypto-trading-saas/config"
	"crypto-trading-saas/internal/api"
	"crypto-trading-saas/internal/auth"
	"crypto-trading-saas/internal/billing"
	"crypto-trading-saas/internal/cache"
	"crypto-trading-saas/internal/database"
	"crypto-trading-saas/internal/entitlement"
	"crypto-trading-saas/internal/events"
	"crypto-trading-saas/internal/licensing"
	"crypto-trading-saas/internal/plans"
	"crypto-trading-saas/internal/vault"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	setupLogging(cfg.LoggingConfig)
	log.Info().Msg("Starting entitlement service")

	// Secrets come from Vault when enabled; env/config values are the fallback
	vaultClient, err := vault.NewClient(cfg.VaultConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize Vault client")
	}

	ctx := context.Background()
	secrets, err := vaultClient.LoadAppSecrets(ctx, vault.AppSecrets{
		JWTSecret:     cfg.AuthConfig.JWTSecret,
		WebhookSecret: cfg.BillingConfig.WebhookSecret,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load application secrets")
	}
	if secrets.JWTSecret == "" {
		log.Fatal().Msg("JWT secret is not configured (set AUTH_JWT_SECRET or enable Vault)")
	}

	// Database
	db, err := database.NewDB(database.Config{
		Host:     cfg.DatabaseConfig.Host,
		Port:     cfg.DatabaseConfig.Port,
		User:     cfg.DatabaseConfig.User,
		Password: cfg.DatabaseConfig.Password,
		Database: cfg.DatabaseConfig.Database,
		SSLMode:  cfg.DatabaseConfig.SSLMode,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	if err := db.RunMigrations(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}
	log.Info().Msg("Database ready")

	repo := database.NewRepository(db)

	// Core services
	catalog := plans.DefaultCatalog()
	log.Info().Int("version", catalog.Version()).Msg("Plan catalog loaded")

	evaluator := entitlement.NewEvaluator(catalog)
	counter := entitlement.NewCounter(repo, repo, evaluator)
	licensingManager := licensing.NewManager(repo, log.Logger)

	authService := auth.NewService(repo, catalog, auth.Config{
		JWTSecret:            secrets.JWTSecret,
		AccessTokenDuration:  cfg.AuthConfig.AccessTokenDuration,
		RefreshTokenDuration: cfg.AuthConfig.RefreshTokenDuration,
		MinPasswordLength:    cfg.AuthConfig.MinPasswordLength,
	})

	if cfg.AuthConfig.AdminEmail != "" {
		if err := auth.SeedAdminRole(ctx, repo, cfg.AuthConfig.AdminEmail); err != nil {
			log.Warn().Err(err).Msg("Admin role seeding failed")
		}
	}

	var billingService *billing.Service
	if cfg.BillingConfig.Enabled {
		billingService = billing.NewService(repo, licensingManager, catalog, secrets.WebhookSecret)
		log.Info().Msg("Billing webhook handler enabled")
	}

	// Redis caches entitlement snapshots for display reads; the service runs
	// fine without it
	var entitlementCache *cache.EntitlementCache
	if cfg.RedisConfig.Enabled {
		cacheService, err := cache.NewCacheService(cfg.RedisConfig)
		if err != nil {
			log.Warn().Err(err).Msg("Redis unavailable, continuing without cache")
		} else {
			entitlementCache = cache.NewEntitlementCache(cacheService)
			defer cacheService.Close()
			log.Info().Msg("Entitlement cache enabled")
		}
	}

	// Events and WebSocket push
	eventBus := events.NewEventBus()
	api.InitWebSocket(eventBus)

	server := api.NewServer(
		api.ServerConfig{
			Port:           cfg.ServerConfig.Port,
			Host:           cfg.ServerConfig.Host,
			AllowedOrigins: cfg.ServerConfig.AllowedOrigins,
			ProductionMode: cfg.LoggingConfig.JSONFormat,
		},
		repo,
		catalog,
		evaluator,
		counter,
		licensingManager,
		billingService,
		authService,
		eventBus,
		entitlementCache,
	)

	// Hourly sweep marks lapsed subscriptions expired so list views and
	// webhooks see a consistent status. Entitlement checks do not depend on
	// it; the evaluator checks expiry on its own.
	sweepCtx, cancelSweep := context.WithCancel(ctx)
	defer cancelSweep()
	go expirySweep(sweepCtx, repo)

	go func() {
		if err := server.Start(); err != nil {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.ServerConfig.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}
	log.Info().Msg("Stopped")
}

func setupLogging(cfg config.LoggingConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if !cfg.JSONFormat {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

func expirySweep(ctx context.Context, repo *database.Repository) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := repo.ExpireLapsedSubscriptions(ctx)
			if err != nil {
				log.Error().Err(err).Msg("Expiry sweep failed")
				continue
			}
			if n > 0 {
				log.Info().Int64("count", n).Msg("Marked lapsed subscriptions expired")
			}
		}
	}
}
