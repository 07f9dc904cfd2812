// Package config loads the process configuration once at startup.
//
// Values come from the process environment, optionally merged with .env
// files. File values never override variables that are already set. The
// resulting [Config] is immutable and is passed explicitly to the
// components that need it.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/slackmgr/orderbus/queueconfig"
)

// Config is the full process configuration.
type Config struct {
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	AWS          AWSConfig
	Consumer     ConsumerConfig
	Orders       OrdersConfig
	Notification NotificationConfig

	environ map[string]string
}

// AWSConfig holds the AWS connection settings shared by every client.
type AWSConfig struct {
	Region          string `env:"AWS_REGION" envDefault:"us-east-1"`
	EndpointURL     string `env:"AWS_ENDPOINT_URL"`
	AccountID       string `env:"AWS_ACCOUNT_ID" envDefault:"000000000000"`
	AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
}

// ConsumerConfig tunes every consumer queue of the process.
type ConsumerConfig struct {
	BatchSize                int32         `env:"SQS_BATCH_SIZE" envDefault:"5"`
	WaitTimeSeconds          int32         `env:"SQS_WAIT_TIME_SECONDS" envDefault:"20"`
	VisibilityTimeoutSeconds int32         `env:"SQS_VISIBILITY_TIMEOUT_SECONDS" envDefault:"60"`
	PollingIntervalMS        int           `env:"SQS_POLLING_INTERVAL_MS" envDefault:"1000"`
	AutoExtendVisibility     bool          `env:"SQS_AUTO_EXTEND_VISIBILITY" envDefault:"false"`
	MaxMessageExtension      time.Duration `env:"SQS_MAX_MESSAGE_EXTENSION" envDefault:"10m"`
	DeleteOnSuccess          bool          `env:"SQS_DELETE_ON_SUCCESS" envDefault:"true"`
	RequeueOnError           bool          `env:"SQS_REQUEUE_ON_ERROR" envDefault:"true"`
}

// PollingInterval returns the error backoff as a duration.
func (c ConsumerConfig) PollingInterval() time.Duration {
	return time.Duration(c.PollingIntervalMS) * time.Millisecond
}

// OrdersConfig selects and configures the order store.
type OrdersConfig struct {
	Store     string `env:"ORDERS_STORE" envDefault:"dynamodb"`
	TableName string `env:"ORDERS_TABLE_NAME" envDefault:"orders"`

	Postgres PostgresConfig
}

// PostgresConfig holds the Postgres connection settings. Zero pool values
// keep the pgxpool defaults.
type PostgresConfig struct {
	Host     string `env:"POSTGRES_HOST" envDefault:"localhost"`
	Port     int    `env:"POSTGRES_PORT" envDefault:"5432"`
	User     string `env:"POSTGRES_USER" envDefault:"postgres"`
	Password string `env:"POSTGRES_PASSWORD"`
	Database string `env:"POSTGRES_DB" envDefault:"orders"`
	SSLMode  string `env:"POSTGRES_SSLMODE" envDefault:"disable"`

	PoolMaxConns        int32         `env:"POSTGRES_POOL_MAX_CONNS"`
	PoolMinConns        int32         `env:"POSTGRES_POOL_MIN_CONNS"`
	PoolMaxConnLifetime time.Duration `env:"POSTGRES_POOL_MAX_CONN_LIFETIME"`
	PoolMaxConnIdleTime time.Duration `env:"POSTGRES_POOL_MAX_CONN_IDLE_TIME"`
}

// NotificationConfig configures order notification emails.
type NotificationConfig struct {
	From          string   `env:"NOTIFICATION_EMAIL_FROM"`
	To            []string `env:"NOTIFICATION_EMAIL_TO" envSeparator:","`
	MailgunDomain string   `env:"MAILGUN_DOMAIN"`
	MailgunAPIKey string   `env:"MAILGUN_API_KEY"`
	MailgunAPI    string   `env:"MAILGUN_API_BASE"`
}

// Load reads the process environment merged with the given .env files.
// Missing files are skipped.
func Load(dotenvFiles ...string) (*Config, error) {
	environ := env.ToMap(os.Environ())

	for _, path := range dotenvFiles {
		values, err := godotenv.Read(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}

			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}

		for k, v := range values {
			if _, ok := environ[k]; !ok {
				environ[k] = v
			}
		}
	}

	return FromMap(environ)
}

// FromMap builds a Config from an explicit environment.
func FromMap(environ map[string]string) (*Config, error) {
	cfg := &Config{environ: maps.Clone(environ)}

	if err := env.ParseWithOptions(cfg, env.Options{Environment: cfg.environ}); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.Consumer.BatchSize = min(max(cfg.Consumer.BatchSize, 1), 10)
	cfg.Consumer.WaitTimeSeconds = min(max(cfg.Consumer.WaitTimeSeconds, 0), 20)
	cfg.Consumer.VisibilityTimeoutSeconds = min(max(cfg.Consumer.VisibilityTimeoutSeconds, 0), 43200)

	if cfg.Consumer.PollingIntervalMS < 10 {
		cfg.Consumer.PollingIntervalMS = 1000
	}

	return cfg, nil
}

// Source exposes the environment snapshot for queue resolution.
func (c *Config) Source() queueconfig.Source {
	return queueconfig.MapSource(c.environ)
}
