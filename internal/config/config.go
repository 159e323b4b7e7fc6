// Package config defines the configuration for the brokerly billing webhook
// processor. Configuration is loaded once at process start and is immutable
// thereafter, following 12-Factor principles: values come from the OS
// environment, optionally seeded from a .env file in local development.
//
// A missing required value (most importantly the provider webhook secret)
// causes startup to fail. The service must refuse to start rather than run
// with signature verification silently disabled.
package config

import (
	"time"

	"brokerly/internal/types"
)

// SecretString aliases types.SecretString, the redacted secret type used for
// sensitive configuration values.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Sub-components receive only
// the subsets they require.
type Config struct {
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"brokerly-billing"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Server   ServerConfig
	Database DatabaseConfig
	Billing  BillingConfig
	AWS      AWSConfig
	Alerting AlertingConfig
	Internal InternalConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"20s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"15s"`
}

// DatabaseConfig holds the connection string and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	MaxConns        int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout  time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	// QueryTimeout bounds identity lookups and upserts so a slow database
	// surfaces as a request failure (and a provider retry) instead of a hang.
	QueryTimeout time.Duration `envconfig:"DB_QUERY_TIMEOUT" default:"5s"`
}

// BillingConfig holds the provider webhook credentials and the lifecycle
// constants the transition engine uses.
type BillingConfig struct {
	// WebhookSecret is the shared secret the provider signs request bodies
	// with. Required: startup fails when absent or empty.
	WebhookSecret SecretString `envconfig:"BILLING_WEBHOOK_SECRET" validate:"required"`

	// GracePeriod is how long a past_due subscription retains access after a
	// failed payment, pending the provider's retry.
	GracePeriod time.Duration `envconfig:"BILLING_GRACE_PERIOD" default:"72h"`

	// RenewalFallback is the end-date window assumed when an activating event
	// carries no renews_at.
	RenewalFallback time.Duration `envconfig:"BILLING_RENEWAL_FALLBACK" default:"720h"`
}

// AWSConfig holds AWS resource identifiers for metrics and notifications.
type AWSConfig struct {
	Region            string `envconfig:"AWS_REGION" default:"us-east-1"`
	NotificationQueue string `envconfig:"SQS_BILLING_NOTICES" validate:"omitempty,url"`
	MetricsNamespace  string `envconfig:"METRICS_NAMESPACE" default:"Brokerly/Billing"`

	// EndpointURL overrides the AWS endpoint for LocalStack. Empty in prod.
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// AlertingConfig holds the ops alert webhook used to flag unmatched paying
// customers. Optional: alerting degrades to logs + metrics when unset.
type AlertingConfig struct {
	OpsWebhookURL string        `envconfig:"OPS_ALERT_WEBHOOK_URL" validate:"omitempty,url"`
	Timeout       time.Duration `envconfig:"OPS_ALERT_TIMEOUT" default:"10s"`
}

// InternalConfig guards the service-to-service read API.
type InternalConfig struct {
	// ServiceKeyHash is the bcrypt hash of the key CRM services present in
	// X-Service-Key when reading subscription state.
	ServiceKeyHash SecretString `envconfig:"INTERNAL_SERVICE_KEY_HASH" validate:"required"`
}
