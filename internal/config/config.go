package config

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	Environment string `envconfig:"ENV" default:"development"`
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	JWTSecret   string `envconfig:"JWT_SECRET" required:"true"`

	// Payment provider settings. The backend is selected at construction time;
	// "mock" needs no credentials and performs no network I/O.
	PaymentProvider   string `envconfig:"PAYMENT_PROVIDER" default:"mock"` // stripe|mock
	StripeSecretKey   string `envconfig:"STRIPE_SECRET_KEY"`
	PlatformCurrency  string `envconfig:"PLATFORM_CURRENCY" default:"usd"`
	ChargeTimeoutSec  int    `envconfig:"CHARGE_TIMEOUT_SEC" default:"15"`
	ConnectRefreshURL string `envconfig:"CONNECT_REFRESH_URL" default:"http://localhost:8080/v1/subscriptions/connect"`
	ConnectReturnURL  string `envconfig:"CONNECT_RETURN_URL" default:"http://localhost:8080/v1/subscriptions"`

	// Usage ledger settings
	UsageMaxFutureSkewSec int `envconfig:"USAGE_MAX_FUTURE_SKEW_SEC" default:"300"`

	// Billing run orchestrator settings
	BillingWorkers           int    `envconfig:"BILLING_WORKERS" default:"4"`
	BillingQueueName         string `envconfig:"BILLING_QUEUE_NAME" default:"billing_run_queue"`
	BillingDeadLetterQueue   string `envconfig:"BILLING_DEAD_LETTER_QUEUE_NAME" default:"billing_run_queue_dlq"`
	BillingPollTimeoutSec    int    `envconfig:"BILLING_POLL_TIMEOUT_SEC" default:"30"`
	BillingPollMaxMsg        int    `envconfig:"BILLING_POLL_MAX_MSG" default:"1"`
	BillingMaxRetries        int    `envconfig:"BILLING_MAX_RETRIES" default:"3"`
	BillingBackoffInitialSec int    `envconfig:"BILLING_BACKOFF_INITIAL_SEC" default:"1"`
	BillingBackoffMaxSec     int    `envconfig:"BILLING_BACKOFF_MAX_SEC" default:"60"`

	// Pending sweep settings
	SweepIntervalSec   int `envconfig:"SWEEP_INTERVAL_SEC" default:"300"`
	SweepPendingAgeSec int `envconfig:"SWEEP_PENDING_AGE_SEC" default:"900"`

	// Billing event publishing (disabled when the project ID is empty)
	GCPProjectID       string `envconfig:"GCP_PROJECT_ID"`
	PubSubEmulatorHost string `envconfig:"PUBSUB_EMULATOR_HOST"`
	BillingEventsTopic string `envconfig:"BILLING_EVENTS_TOPIC" default:"billing-events"`

	// Reconciliation report archival (disabled when the bucket is empty)
	S3URL       string `envconfig:"S3_URL"`
	S3Bucket    string `envconfig:"S3_BUCKET"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY"`
	S3SecretKey string `envconfig:"S3_SECRET_KEY"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
