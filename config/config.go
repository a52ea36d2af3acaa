package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/Ramsey-B/clover/pkg/dedupe"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

type Config struct {
	AppName            string `env:"CLOVER_APP_NAME" toml:"app_name"`
	Port               int    `env:"CLOVER_PORT" toml:"port"`
	LogLevel           string `env:"CLOVER_LOG_LEVEL" toml:"log_level"`
	PrettyLogs         bool   `env:"CLOVER_PRETTY_LOGS" toml:"pretty_logs"`
	StartupMaxAttempts int    `env:"CLOVER_STARTUP_MAX_ATTEMPTS" toml:"startup_max_attempts"`

	HTTP     HTTPConfig     `toml:"http"`
	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
	Kafka    KafkaConfig    `toml:"kafka"`
	Graph    GraphConfig    `toml:"graph"`
	Tracing  TracingConfig  `toml:"tracing"`
	Import   ImportConfig   `toml:"import"`

	// Dedupe holds thresholds, weights and merge tuning of the reconciliation engine
	Dedupe dedupe.Config `toml:"dedupe"`
}

type HTTPConfig struct {
	WriteTimeoutSeconds      int      `env:"CLOVER_HTTP_WRITE_TIMEOUT_SECONDS" toml:"write_timeout_seconds"`
	ReadTimeoutSeconds       int      `env:"CLOVER_HTTP_READ_TIMEOUT_SECONDS" toml:"read_timeout_seconds"`
	IdleTimeoutSeconds       int      `env:"CLOVER_HTTP_IDLE_TIMEOUT_SECONDS" toml:"idle_timeout_seconds"`
	ReadHeaderTimeoutSeconds int      `env:"CLOVER_HTTP_READ_HEADER_TIMEOUT_SECONDS" toml:"read_header_timeout_seconds"`
	MaxHeaderBytes           int      `env:"CLOVER_HTTP_MAX_HEADER_BYTES" toml:"max_header_bytes"`
	BodyLimit                string   `env:"CLOVER_HTTP_BODY_LIMIT" toml:"body_limit"`
	AllowOrigins             []string `env:"CLOVER_HTTP_ALLOW_ORIGINS" toml:"allow_origins"`
	AllowMethods             []string `env:"CLOVER_HTTP_ALLOW_METHODS" toml:"allow_methods"`
}

type DatabaseConfig struct {
	Driver                 string `env:"CLOVER_DB_DRIVER" toml:"driver"`
	Host                   string `env:"CLOVER_DB_HOST" toml:"host"`
	Port                   string `env:"CLOVER_DB_PORT" toml:"port"`
	UserName               string `env:"CLOVER_DB_USER_NAME" toml:"user_name"`
	Password               string `env:"CLOVER_DB_PASSWORD" toml:"password"`
	Name                   string `env:"CLOVER_DB_NAME" toml:"name"`
	SSLMode                string `env:"CLOVER_DB_SSL_MODE" toml:"ssl_mode"`
	MaxOpenConns           int    `env:"CLOVER_DB_MAX_OPEN_CONNS" toml:"max_open_conns"`
	MaxIdleConns           int    `env:"CLOVER_DB_MAX_IDLE_CONNS" toml:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `env:"CLOVER_DB_CONN_MAX_LIFETIME_SECONDS" toml:"conn_max_lifetime_seconds"`
	MigrationFolderPath    string `env:"CLOVER_DB_MIGRATION_FOLDER_PATH" toml:"migration_folder_path"`
	MigrationVersion       int    `env:"CLOVER_DB_MIGRATION_VERSION" toml:"migration_version"`
	MigrationForce         int    `env:"CLOVER_DB_MIGRATION_FORCE" toml:"migration_force"`
	MigrationAutoRollback  bool   `env:"CLOVER_DB_MIGRATION_AUTO_ROLLBACK" toml:"migration_auto_rollback"`
}

// DSN returns the postgres connection string
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.UserName, d.Password, d.Name, d.SSLMode)
}

// ConnMaxLifetime returns the connection lifetime as a duration
func (d DatabaseConfig) ConnMaxLifetime() time.Duration {
	return time.Duration(d.ConnMaxLifetimeSeconds) * time.Second
}

type RedisConfig struct {
	Host     string `env:"CLOVER_REDIS_HOST" toml:"host"`
	Port     int    `env:"CLOVER_REDIS_PORT" toml:"port"`
	Password string `env:"CLOVER_REDIS_PASSWORD" toml:"password"`
	DB       int    `env:"CLOVER_REDIS_DB" toml:"db"`
}

type KafkaConfig struct {
	Brokers         []string `env:"CLOVER_KAFKA_BROKERS" toml:"brokers"`
	ConsumerEnabled bool     `env:"CLOVER_KAFKA_CONSUMER_ENABLED" toml:"consumer_enabled"`
	InputTopic      string   `env:"CLOVER_KAFKA_INPUT_TOPIC" toml:"input_topic"`
	ConsumerGroup   string   `env:"CLOVER_KAFKA_CONSUMER_GROUP" toml:"consumer_group"`
	// OutputTopic receives test case and import events. Empty disables publishing.
	OutputTopic    string `env:"CLOVER_KAFKA_OUTPUT_TOPIC" toml:"output_topic"`
	BatchSize      int    `env:"CLOVER_KAFKA_BATCH_SIZE" toml:"batch_size"`
	BatchTimeoutMs int    `env:"CLOVER_KAFKA_BATCH_TIMEOUT_MS" toml:"batch_timeout_ms"`
	RequiredAcks   int    `env:"CLOVER_KAFKA_REQUIRED_ACKS" toml:"required_acks"`
	Compression    string `env:"CLOVER_KAFKA_COMPRESSION" toml:"compression"`
}

type GraphConfig struct {
	Enabled  bool   `env:"CLOVER_GRAPH_ENABLED" toml:"enabled"`
	Host     string `env:"CLOVER_GRAPH_HOST" toml:"host"`
	Port     int    `env:"CLOVER_GRAPH_PORT" toml:"port"`
	User     string `env:"CLOVER_GRAPH_USER" toml:"user"`
	Password string `env:"CLOVER_GRAPH_PASSWORD" toml:"password"`
}

type TracingConfig struct {
	Enabled        bool              `env:"CLOVER_OTLP_ENABLED" toml:"enabled"`
	Endpoint       string            `env:"CLOVER_OTLP_ENDPOINT" toml:"endpoint"`
	Protocol       string            `env:"CLOVER_OTLP_PROTOCOL" toml:"protocol"`
	Insecure       bool              `env:"CLOVER_OTLP_INSECURE" toml:"insecure"`
	Headers        map[string]string `toml:"headers"`
	SampleRatio    float64           `env:"CLOVER_OTLP_SAMPLE_RATIO" toml:"sample_ratio"`
	TimeoutSeconds int               `env:"CLOVER_OTLP_TIMEOUT_SECONDS" toml:"timeout_seconds"`
}

type ImportConfig struct {
	// DefaultMode applies when a request names no mode
	DefaultMode string `env:"CLOVER_IMPORT_DEFAULT_MODE" toml:"default_mode"`
	// MaxBatchSize bounds the number of records accepted in one import
	MaxBatchSize int `env:"CLOVER_IMPORT_MAX_BATCH_SIZE" toml:"max_batch_size"`
	// StagingTTLSeconds is how long an uncommitted run stays available for review
	StagingTTLSeconds int `env:"CLOVER_IMPORT_STAGING_TTL_SECONDS" toml:"staging_ttl_seconds"`
	// ReviewLockTTLSeconds bounds how long one reviewer holds a batch
	ReviewLockTTLSeconds int `env:"CLOVER_IMPORT_REVIEW_LOCK_TTL_SECONDS" toml:"review_lock_ttl_seconds"`
}

// StagingTTL returns the staging TTL as a duration
func (i ImportConfig) StagingTTL() time.Duration {
	return time.Duration(i.StagingTTLSeconds) * time.Second
}

// ReviewLockTTL returns the review lock TTL as a duration
func (i ImportConfig) ReviewLockTTL() time.Duration {
	return time.Duration(i.ReviewLockTTLSeconds) * time.Second
}

// Default returns the configuration used when no file or environment value overrides it
func Default() Config {
	return Config{
		AppName:            "clover-api",
		Port:               3004,
		LogLevel:           "info",
		StartupMaxAttempts: 5,
		HTTP: HTTPConfig{
			WriteTimeoutSeconds:      10,
			ReadTimeoutSeconds:       10,
			IdleTimeoutSeconds:       10,
			ReadHeaderTimeoutSeconds: 10,
			MaxHeaderBytes:           64000, // 64KB
			BodyLimit:                "10M",
			AllowOrigins:             []string{"*"},
			AllowMethods:             []string{"GET", "POST", "PUT", "DELETE"},
		},
		Database: DatabaseConfig{
			Driver:                 "postgres",
			Host:                   "localhost",
			Port:                   "5432",
			Name:                   "clover",
			SSLMode:                "disable",
			MaxOpenConns:           25,
			MaxIdleConns:           10,
			ConnMaxLifetimeSeconds: 10,
			MigrationFolderPath:    "db/pg",
			MigrationAutoRollback:  true,
		},
		Redis: RedisConfig{
			Host: "localhost",
			Port: 6379,
		},
		Kafka: KafkaConfig{
			Brokers:        []string{"localhost:9092"},
			InputTopic:     "import-requests",
			ConsumerGroup:  "clover-importer",
			OutputTopic:    "testcase-events",
			BatchSize:      100,
			BatchTimeoutMs: 100,
			RequiredAcks:   1,
			Compression:    "snappy",
		},
		Graph: GraphConfig{
			Host: "localhost",
			Port: 7687,
		},
		Tracing: TracingConfig{
			Endpoint:       "localhost:4317",
			Protocol:       "grpc",
			Insecure:       true,
			SampleRatio:    1,
			TimeoutSeconds: 10,
		},
		Import: ImportConfig{
			DefaultMode:          string(models.ModeSmart),
			MaxBatchSize:         5000,
			StagingTTLSeconds:    24 * 60 * 60,
			ReviewLockTTLSeconds: 30,
		},
		Dedupe: dedupe.DefaultConfig(),
	}
}

// Load builds the configuration from defaults, the TOML file at path (optional), a .env file
// in the working directory (optional) and the CLOVER_* variables named in the env tags, in
// that order.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse TOML: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	// only variables that are set override; defaults and the file stay otherwise
	if err := ectoenv.BindEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to bind environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration is usable
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if _, err := models.ParseMode(c.Import.DefaultMode); err != nil {
		return fmt.Errorf("import.default_mode: %w", err)
	}
	if c.Import.MaxBatchSize <= 0 {
		return fmt.Errorf("import.max_batch_size must be positive, got %d", c.Import.MaxBatchSize)
	}
	if c.Import.StagingTTLSeconds <= 0 {
		return fmt.Errorf("import.staging_ttl_seconds must be positive, got %d", c.Import.StagingTTLSeconds)
	}
	if c.Import.ReviewLockTTLSeconds <= 0 {
		return fmt.Errorf("import.review_lock_ttl_seconds must be positive, got %d", c.Import.ReviewLockTTLSeconds)
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be between 0 and 1, got %f", c.Tracing.SampleRatio)
	}
	if err := c.Dedupe.Validate(); err != nil {
		return fmt.Errorf("dedupe: %w", err)
	}
	return nil
}

// TracingOptions converts the tracing section into tracer provider options
func (c Config) TracingOptions() tracing.Config {
	return tracing.Config{
		Enabled:     c.Tracing.Enabled,
		ServiceName: c.AppName,
		SampleRatio: c.Tracing.SampleRatio,
		Exporter: tracing.ExporterConfig{
			Endpoint: c.Tracing.Endpoint,
			Protocol: c.Tracing.Protocol,
			Insecure: c.Tracing.Insecure,
			Headers:  c.Tracing.Headers,
			Timeout:  time.Duration(c.Tracing.TimeoutSeconds) * time.Second,
		},
	}
}
