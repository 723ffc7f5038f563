package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"
	"time"

	"app/internal/config"
	"app/internal/logger"
	"app/internal/orchestrator/billingrun"
	"app/internal/orchestrator/sweep"
	"app/internal/pgmq"
	"app/internal/pubsub"
	"app/internal/repository"
	"app/internal/service"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

func main() {
	// Parse mode flag
	mode := flag.String("mode", "", "Orchestrator mode: billingrun|sweep")
	flag.Parse()

	// Initialize logger
	logger := logger.New()

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logger.Warn().Msg("Warning: no .env file found")
	}

	// Load config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Msgf("Error loading config: %v", err)
	}

	// Set up context with graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize DB pool
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Msgf("Failed to create DB pool: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Msgf("Failed to ping DB: %v", err)
	}
	logger.Info().Msg("Database connection established")

	// Initialize PGMQ client
	pgmqClient := pgmq.New(pool)
	logger.Info().Msg("PGMQ client initialized")

	// Build the billing service shared by both modes
	billingSvc, err := buildBillingService(ctx, cfg, pool, logger)
	if err != nil {
		logger.Fatal().Msgf("Failed to build billing service: %v", err)
	}

	// Dispatch to the selected orchestrator
	var runErr error
	switch *mode {
	case "billingrun":
		runErr = billingrun.Run(ctx, logger, pgmqClient, billingSvc, cfg)
	case "sweep":
		runErr = sweep.Run(ctx, logger, billingSvc, cfg)
	default:
		logger.Fatal().Msgf("Invalid mode: %s", *mode)
	}

	if runErr != nil {
		logger.Fatal().Msgf("%s orchestrator failed: %v", *mode, runErr)
	}

	logger.Info().Msgf("%s orchestrator stopped gracefully", *mode)
}

func buildBillingService(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, log zerolog.Logger) (*service.BillingService, error) {
	tenantRepo := repository.NewTenantRepo(pool)
	usageRepo := repository.NewUsageRepo(pool)
	billingRepo := repository.NewBillingRepo(pool)

	catalog := service.NewPlanCatalog()
	usageSvc := service.NewUsageService(usageRepo, time.Duration(cfg.UsageMaxFutureSkewSec)*time.Second, log)

	var provider service.PaymentProvider
	if cfg.PaymentProvider == "stripe" {
		secretKey := cfg.StripeSecretKey
		if secretKey == "" {
			secrets, err := service.NewSecretManagerService(ctx, cfg.GCPProjectID)
			if err != nil {
				return nil, err
			}
			secretKey, err = secrets.GetSecret(ctx, "stripe-secret-key")
			if err != nil {
				return nil, err
			}
		}
		provider = service.NewStripeProvider(secretKey, cfg.PlatformCurrency,
			time.Duration(cfg.ChargeTimeoutSec)*time.Second, log)
	} else {
		provider = service.NewMockProvider()
	}

	var eventPublisher service.BillingEventPublisher
	if cfg.GCPProjectID != "" {
		pubSubPublisher, err := pubsub.NewPublisher(ctx, cfg.GCPProjectID, cfg.PubSubEmulatorHost)
		if err != nil {
			return nil, err
		}
		eventPublisher = service.NewPubSubBillingPublisher(pubSubPublisher, cfg.BillingEventsTopic)
	}

	return service.NewBillingService(tenantRepo, billingRepo, usageSvc, catalog, provider,
		eventPublisher, cfg.PlatformCurrency, cfg.BillingWorkers, log), nil
}
