// Package config provides configuration structures and validation for the settlement engine.
// It handles environment-based configuration for the HTTP gateway, the settlement worker,
// the databases, Kafka topics, scheduled passes and the address pool.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds the complete application configuration with settings for all components.
// Each field represents a subsystem's configuration and is validated during startup.
type Config struct {
	Application ApplicationConfig
	Logging     LoggingConfig
	Server      ServerConfig
	Kafka       KafkaConfig
	Postgres    PostgresConfig
	MongoDB     MongoDBConfig
	Outbox      OutboxConfig
	WorkerPool  WorkerPoolConfig
	Scheduler   SchedulerConfig
	Pool        PoolConfig
	Referral    ReferralConfig
}

// ApplicationConfig contains general application configuration
type ApplicationConfig struct {
	Env  string
	Name string
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level string
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port            int           // Port to listen on
	ShutdownTimeout time.Duration // Grace period for server shutdown
	ReadTimeout     time.Duration // Maximum duration for reading entire request
	WriteTimeout    time.Duration // Maximum duration for writing response
	IdleTimeout     time.Duration // Maximum duration to wait for next request
}

// KafkaConfig contains Kafka configuration
type KafkaConfig struct {
	Brokers           string
	TaskRequestTopic  string // Task creation requests published by the transport layer
	LedgerEventsTopic string // Ledger entries published by the outbox poller
	PoolAlertsTopic   string // Low inventory notifications
	NumPartitions     int
	ReplicationFactor int
	ConsumerGroup     string
	MinBytes          int
	MaxBytes          int
	MaxWait           time.Duration
	StartOffset       int64
	DLQTopic          string
}

// PostgresConfig contains PostgreSQL configuration
type PostgresConfig struct {
	URL             string        // Database connection string
	MaxConns        int32         // Maximum number of open connections
	MinConns        int32         // Minimum number of idle connections
	ConnMaxLifetime time.Duration // Maximum lifetime of a connection
	ConnMaxIdleTime time.Duration // Maximum idle time of a connection
	MigrationsPath  string        // Path to migration files
}

// MongoDBConfig contains MongoDB configuration
type MongoDBConfig struct {
	URI             string
	Database        string
	Timeout         time.Duration
	MaxPoolSize     uint64
	MinPoolSize     uint64
	MaxConnIdleTime time.Duration
}

// OutboxConfig contains outbox pattern configuration
type OutboxConfig struct {
	PollingInterval  time.Duration
	BatchSize        int
	MaxRetryAttempts int
}

// WorkerPoolConfig contains worker pool configuration
type WorkerPoolConfig struct {
	Size int // Maximum number of workers used by batch passes
}

// SchedulerConfig controls the in-process periodic passes. Setting an interval to
// zero disables that pass, leaving it to an external trigger (ledgerctl).
type SchedulerConfig struct {
	RecycleInterval         time.Duration
	CommissionInterval      time.Duration
	AccrualInterval         time.Duration
	ReservationTimeoutHours int
	CommissionPeriodDays    int
	BatchSize               int
}

// PoolConfig contains address pool configuration
type PoolConfig struct {
	LowInventoryThreshold int
}

// ReferralConfig holds referral defaults used when no admin setting exists
type ReferralConfig struct {
	DefaultCommissionRate decimal.Decimal
	BasePassiveRate       decimal.Decimal // Monthly passive rate granted on a first deposit
	ElevatedPassiveRate   decimal.Decimal // Monthly passive rate after a successful referral
}

// validate performs comprehensive validation of all configuration values,
// ensuring they meet minimum requirements and logical constraints
func (c *Config) validate() error {
	var validationErrors []string

	// Validate Server config
	if c.Server.Port <= 0 {
		validationErrors = append(validationErrors, "SERVER_PORT must be greater than 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_SHUTDOWN_TIMEOUT must be greater than 0")
	}
	if c.Server.ReadTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_READ_TIMEOUT must be greater than 0")
	}
	if c.Server.WriteTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_WRITE_TIMEOUT must be greater than 0")
	}
	if c.Server.IdleTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_IDLE_TIMEOUT must be greater than 0")
	}

	// Validate Kafka config
	if len(c.Kafka.Brokers) == 0 {
		validationErrors = append(validationErrors, "KAFKA_BROKERS is required")
	}
	if c.Kafka.TaskRequestTopic == "" {
		validationErrors = append(validationErrors, "KAFKA_TASK_REQUEST_TOPIC is required")
	}
	if c.Kafka.LedgerEventsTopic == "" {
		validationErrors = append(validationErrors, "KAFKA_LEDGER_EVENTS_TOPIC is required")
	}
	if c.Kafka.PoolAlertsTopic == "" {
		validationErrors = append(validationErrors, "KAFKA_POOL_ALERTS_TOPIC is required")
	}
	if c.Kafka.ConsumerGroup == "" {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_GROUP is required")
	}
	if c.Kafka.MinBytes <= 0 {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_MIN_BYTES must be greater than 0")
	}
	if c.Kafka.MaxBytes <= 0 {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_MAX_BYTES must be greater than 0")
	}
	if c.Kafka.MaxWait <= 0 {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_MAX_WAIT must be greater than 0")
	}
	if c.Kafka.DLQTopic == "" {
		validationErrors = append(validationErrors, "KAFKA_DLQ_TOPIC is required")
	}

	// Validate PostgreSQL config
	if c.Postgres.URL == "" {
		validationErrors = append(validationErrors, "POSTGRES_URL is required")
	}
	if c.Postgres.MaxConns <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONNS must be greater than 0")
	}
	if c.Postgres.MinConns <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MIN_CONNS must be greater than 0")
	}
	if c.Postgres.ConnMaxLifetime <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONN_LIFETIME must be greater than 0")
	}
	if c.Postgres.ConnMaxIdleTime <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONN_IDLE_TIME must be greater than 0")
	}

	// Validate MongoDB config
	if c.MongoDB.URI == "" {
		validationErrors = append(validationErrors, "MONGO_URI is required")
	}
	if c.MongoDB.Database == "" {
		validationErrors = append(validationErrors, "MONGO_DATABASE is required")
	}
	if c.MongoDB.Timeout <= 0 {
		validationErrors = append(validationErrors, "MONGO_TIMEOUT must be greater than 0")
	}
	if c.MongoDB.MaxPoolSize <= 0 {
		validationErrors = append(validationErrors, "MONGO_MAX_POOL_SIZE must be greater than 0")
	}

	// Validate Outbox config
	if c.Outbox.PollingInterval <= 0 {
		validationErrors = append(validationErrors, "OUTBOX_POLLING_INTERVAL must be greater than 0")
	}
	if c.Outbox.BatchSize <= 0 {
		validationErrors = append(validationErrors, "OUTBOX_BATCH_SIZE must be greater than 0")
	}
	if c.Outbox.MaxRetryAttempts <= 0 {
		validationErrors = append(validationErrors, "OUTBOX_MAX_RETRY_ATTEMPTS must be greater than 0")
	}

	// Validate WorkerPool config
	if c.WorkerPool.Size <= 0 {
		validationErrors = append(validationErrors, "WORKER_POOL_SIZE must be greater than 0")
	}

	// Validate Scheduler config
	if c.Scheduler.RecycleInterval < 0 || c.Scheduler.CommissionInterval < 0 || c.Scheduler.AccrualInterval < 0 {
		validationErrors = append(validationErrors, "SCHEDULER_*_INTERVAL must not be negative")
	}
	if c.Scheduler.ReservationTimeoutHours <= 0 {
		validationErrors = append(validationErrors, "SCHEDULER_RESERVATION_TIMEOUT_HOURS must be greater than 0")
	}
	if c.Scheduler.CommissionPeriodDays <= 0 {
		validationErrors = append(validationErrors, "SCHEDULER_COMMISSION_PERIOD_DAYS must be greater than 0")
	}
	if c.Scheduler.BatchSize <= 0 {
		validationErrors = append(validationErrors, "SCHEDULER_BATCH_SIZE must be greater than 0")
	}

	// Validate Pool config
	if c.Pool.LowInventoryThreshold < 0 {
		validationErrors = append(validationErrors, "POOL_LOW_INVENTORY_THRESHOLD must not be negative")
	}

	// Validate Referral config
	if c.Referral.DefaultCommissionRate.IsNegative() || c.Referral.DefaultCommissionRate.GreaterThan(decimal.NewFromInt(1)) {
		validationErrors = append(validationErrors, "REFERRAL_DEFAULT_COMMISSION_RATE must be between 0 and 1")
	}
	if c.Referral.BasePassiveRate.IsNegative() || c.Referral.ElevatedPassiveRate.IsNegative() {
		validationErrors = append(validationErrors, "REFERRAL_*_PASSIVE_RATE must not be negative")
	}
	if c.Referral.ElevatedPassiveRate.LessThan(c.Referral.BasePassiveRate) {
		validationErrors = append(validationErrors, "REFERRAL_ELEVATED_PASSIVE_RATE must not be lower than REFERRAL_BASE_PASSIVE_RATE")
	}

	if len(validationErrors) > 0 {
		return errors.New(strings.Join(validationErrors, ", "))
	}

	return nil
}
