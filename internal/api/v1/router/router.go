package router

import (
	"context"
	"net/http"
	"strings"
	"time"

	"app/internal/api/v1/handler"
	"app/internal/config"
	"app/internal/middleware"
	"app/internal/pgmq"
	"app/internal/pubsub"
	"app/internal/repository"
	"app/internal/service"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	awsmiddleware "github.com/aws/smithy-go/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

// New wires the full API: database pool, payment provider, services,
// handlers, and middleware.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (http.Handler, *pgxpool.Pool, error) {
	logger.Info().Str("environment", cfg.Environment).Msg("Router initialized")

	// 1. Open DB pool
	dsn := cfg.DatabaseURL
	if cfg.Environment == "development" && !strings.Contains(dsn, "sslmode") {
		separator := "?"
		if strings.Contains(dsn, "?") {
			separator = "&"
		}
		dsn += separator + "sslmode=disable"
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create DB pool")
		return nil, nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Error().Err(err).Msg("Failed to ping DB")
		return nil, nil, err
	}
	logger.Info().Msg("Database connection successful")

	// 2. Initialize validator
	validate := validator.New(validator.WithRequiredStructEnabled())

	// 3. Select the payment provider backend
	provider, err := buildProvider(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	// 4. Optional billing event publishing
	var eventPublisher service.BillingEventPublisher
	if cfg.GCPProjectID != "" {
		pubSubPublisher, err := pubsub.NewPublisher(ctx, cfg.GCPProjectID, cfg.PubSubEmulatorHost)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to create Pub/Sub publisher")
			return nil, nil, err
		}
		eventPublisher = service.NewPubSubBillingPublisher(pubSubPublisher, cfg.BillingEventsTopic)
	}

	// 5. Optional reconciliation report archival
	var archiver service.ReportArchiver
	if cfg.S3Bucket != "" {
		s3Client, err := buildS3Client(ctx, cfg)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to load S3 config")
			return nil, nil, err
		}
		archiver = service.NewS3ReportArchiver(s3Client, cfg.S3Bucket)
	}

	// 6. Initialize repositories & services & handlers
	tenantRepo := repository.NewTenantRepo(pool)
	usageRepo := repository.NewUsageRepo(pool)
	subscriptionRepo := repository.NewSubscriptionRepo(pool)
	billingRepo := repository.NewBillingRepo(pool)

	catalog := service.NewPlanCatalog()
	usageSvc := service.NewUsageService(usageRepo, time.Duration(cfg.UsageMaxFutureSkewSec)*time.Second, logger)
	billingSvc := service.NewBillingService(tenantRepo, billingRepo, usageSvc, catalog, provider,
		eventPublisher, cfg.PlatformCurrency, cfg.BillingWorkers, logger)
	reconciliationSvc := service.NewReconciliationService(tenantRepo, billingRepo, provider, archiver, logger)
	subscriptionSvc := service.NewSubscriptionService(tenantRepo, subscriptionRepo, provider, catalog,
		cfg.ConnectRefreshURL, cfg.ConnectReturnURL, cfg.PlatformCurrency, logger)

	queueClient := pgmq.New(pool)

	usageHandler := handler.NewUsageHandler(usageSvc, validate, logger)
	billingHandler := handler.NewBillingHandler(billingSvc, provider, queueClient, cfg.BillingQueueName, validate, logger)
	reconciliationHandler := handler.NewReconciliationHandler(reconciliationSvc, logger)
	subscriptionHandler := handler.NewSubscriptionHandler(subscriptionSvc, catalog, validate, logger)

	// 7. Initialize middleware
	authMw := middleware.AuthMiddleware(cfg.JWTSecret, logger)
	tenantMw := middleware.TenantMiddleware(tenantRepo, logger)
	adminMw := middleware.RequireRole(middleware.RoleBillingAdmin)
	authTenant := func(next http.Handler) http.Handler { return authMw(tenantMw(next)) }
	authAdmin := func(next http.Handler) http.Handler { return authMw(adminMw(next)) }
	authAdminTenant := func(next http.Handler) http.Handler { return authMw(adminMw(tenantMw(next))) }

	// 8. Create ServeMux router
	apiV1Mux := http.NewServeMux()
	usageHandler.RegisterRoutes(apiV1Mux, authTenant)
	billingHandler.RegisterRoutes(apiV1Mux, authTenant, authAdmin, authAdminTenant)
	reconciliationHandler.RegisterRoutes(apiV1Mux, authAdmin)
	subscriptionHandler.RegisterRoutes(apiV1Mux, authMw, authTenant, authAdminTenant)

	mux := http.NewServeMux()
	mux.Handle("/v1/", http.StripPrefix("/v1", apiV1Mux))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// 9. Apply CORS middleware
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	return middleware.LoggerMiddleware(logger, c.Handler(mux)), pool, nil
}

// buildProvider selects the payment backend from config. The Stripe secret
// key falls back to Secret Manager when it is not in the environment.
func buildProvider(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (service.PaymentProvider, error) {
	switch cfg.PaymentProvider {
	case "stripe":
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
		timeout := time.Duration(cfg.ChargeTimeoutSec) * time.Second
		return service.NewStripeProvider(secretKey, cfg.PlatformCurrency, timeout, logger), nil
	default:
		logger.Info().Msg("Using mock payment provider")
		return service.NewMockProvider(), nil
	}
}

func buildS3Client(ctx context.Context, cfg *config.Config) (*s3.Client, error) {
	s3Config, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")),
		awsconfig.WithAPIOptions([]func(*awsmiddleware.Stack) error{removeDisableGzip()}),
	)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(s3Config, func(o *s3.Options) {
		if cfg.S3URL != "" {
			o.BaseEndpoint = aws.String(cfg.S3URL)
		}
		o.UsePathStyle = true
	}), nil
}

// removeDisableGzip is a workaround for S3 signature errors with some
// S3-compatible services.
// See: https://github.com/supabase/storage/issues/577
func removeDisableGzip() func(*awsmiddleware.Stack) error {
	return func(stack *awsmiddleware.Stack) error {
		if _, ok := stack.Finalize.Get("DisableAcceptEncodingGzip"); ok {
			_, err := stack.Finalize.Remove("DisableAcceptEncodingGzip")
			return err
		}
		return nil
	}
}
