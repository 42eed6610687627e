// Package config loads and validates application configuration from YAML files
// with .env and environment-variable overrides. It provides typed structs for
// every subsystem (Catalog, Database, Postgres, Redis, Kafka, Pipeline, etc.).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Database DatabaseConfig `yaml:"database"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Logging  LoggingConfig  `yaml:"logging"`
	Tracing  TracingConfig  `yaml:"tracing"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings for the dashboard API.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	// Per-client request rate for the API routes. Zero disables limiting.
	RateLimitRPS   float64 `yaml:"rateLimitRps"`
	RateLimitBurst int     `yaml:"rateLimitBurst"`
	// TrustProxy keys the limiter on X-Forwarded-For. Leave off unless the
	// API is only reachable through a proxy that sets the header.
	TrustProxy bool `yaml:"trustProxy"`
}

// CatalogConfig holds the movie catalog (TMDB) API settings.
type CatalogConfig struct {
	BaseURL              string        `yaml:"baseUrl"`
	ImageBaseURL         string        `yaml:"imageBaseUrl"`
	APIKey               string        `yaml:"apiKey"`
	Language             string        `yaml:"language"`
	Timeout              time.Duration `yaml:"timeout"`
	RequestsPerSecond    float64       `yaml:"requestsPerSecond"`
	Burst                int           `yaml:"burst"`
	PlaceholderPosterURL string        `yaml:"placeholderPosterUrl"`
}

// DatabaseConfig selects the storage driver. "postgres" uses the Postgres
// section; "sqlite" opens SQLitePath and is meant for local runs.
type DatabaseConfig struct {
	Driver     string `yaml:"driver"`
	SQLitePath string `yaml:"sqlitePath"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings. An empty broker list
// disables snapshot event publishing.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	SnapshotCommitted string `yaml:"snapshotCommitted"`
}

// RedisConfig holds Redis connection and caching parameters. An empty Addr
// disables caching in the dashboard.
type RedisConfig struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	PoolSize  int           `yaml:"poolSize"`
	PosterTTL time.Duration `yaml:"posterTTL"`
	MoviesTTL time.Duration `yaml:"moviesTTL"`
}

// PipelineConfig controls how often the ETL runs and how failed runs are
// retried.
type PipelineConfig struct {
	Interval      time.Duration `yaml:"interval"`
	RunTimeout    time.Duration `yaml:"runTimeout"`
	RetryAttempts int           `yaml:"retryAttempts"`
	RetryDelay    time.Duration `yaml:"retryDelay"`
	RunOnStart    bool          `yaml:"runOnStart"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig toggles span logging for pipeline runs.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a .env file (if present) and a YAML config file (if provided),
// then applies environment-variable overrides. It returns a Config populated
// with defaults for any missing values.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// Validate reports configuration that would make a pipeline run impossible.
func (c *Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Catalog.APIKey) == "" {
		problems = append(problems, "catalog.apiKey is required")
	}
	if c.Catalog.BaseURL == "" {
		problems = append(problems, "catalog.baseUrl is required")
	}
	switch c.Database.Driver {
	case "postgres":
	case "sqlite":
		if c.Database.SQLitePath == "" {
			problems = append(problems, "database.sqlitePath is required for the sqlite driver")
		}
	default:
		problems = append(problems, fmt.Sprintf("database.driver %q is not supported", c.Database.Driver))
	}
	if c.Pipeline.Interval <= 0 {
		problems = append(problems, "pipeline.interval must be positive")
	}
	if c.Pipeline.RetryAttempts < 1 {
		problems = append(problems, "pipeline.retryAttempts must be at least 1")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// defaultConfig returns a Config with defaults for local development. The
// pipeline defaults mirror a daily schedule with one retry after five minutes.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RequestTimeout:  20 * time.Second,
			RateLimitRPS:    20,
			RateLimitBurst:  40,
		},
		Catalog: CatalogConfig{
			BaseURL:              "https://api.themoviedb.org/3",
			ImageBaseURL:         "https://image.tmdb.org/t/p/w500",
			Language:             "en-US",
			Timeout:              10 * time.Second,
			RequestsPerSecond:    20,
			Burst:                5,
			PlaceholderPosterURL: "https://via.placeholder.com/150",
		},
		Database: DatabaseConfig{
			Driver:     "postgres",
			SQLitePath: "./data/movies.db",
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "movies",
			User:            "movies",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			ConsumerGroup: "movie-trends-dashboard",
			Topics: KafkaTopics{
				SnapshotCommitted: "movies.snapshot-committed",
			},
		},
		Redis: RedisConfig{
			PoolSize:  10,
			PosterTTL: 24 * time.Hour,
			MoviesTTL: 10 * time.Minute,
		},
		Pipeline: PipelineConfig{
			Interval:      24 * time.Hour,
			RunTimeout:    2 * time.Minute,
			RetryAttempts: 2,
			RetryDelay:    5 * time.Minute,
			RunOnStart:    true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads MT_* environment variables and overrides the
// corresponding config fields. API_KEY and DB_* are honoured as fallbacks for
// existing deployments' .env files.
func applyEnvOverrides(cfg *Config) {
	if v := firstEnv("MT_CATALOG_API_KEY", "API_KEY"); v != "" {
		cfg.Catalog.APIKey = v
	}
	if v := os.Getenv("MT_CATALOG_BASE_URL"); v != "" {
		cfg.Catalog.BaseURL = v
	}
	if v := os.Getenv("MT_CATALOG_LANGUAGE"); v != "" {
		cfg.Catalog.Language = v
	}
	if v := os.Getenv("MT_CATALOG_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Catalog.Timeout = d
		}
	}
	if v := os.Getenv("MT_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("MT_SERVER_RATE_LIMIT_RPS"); v != "" {
		if rps, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Server.RateLimitRPS = rps
		}
	}
	if v := os.Getenv("MT_SERVER_TRUST_PROXY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Server.TrustProxy = b
		}
	}
	if v := os.Getenv("MT_DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("MT_DATABASE_SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := firstEnv("MT_POSTGRES_HOST", "DB_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := firstEnv("MT_POSTGRES_PORT", "DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := firstEnv("MT_POSTGRES_DATABASE", "DB_NAME"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := firstEnv("MT_POSTGRES_USER", "DB_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := firstEnv("MT_POSTGRES_PASSWORD", "DB_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("MT_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("MT_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("MT_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("MT_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("MT_PIPELINE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Pipeline.Interval = d
		}
	}
	if v := os.Getenv("MT_PIPELINE_RETRY_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pipeline.RetryAttempts = n
		}
	}
	if v := os.Getenv("MT_PIPELINE_RETRY_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Pipeline.RetryDelay = d
		}
	}
	if v := os.Getenv("MT_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
	if v := os.Getenv("MT_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MT_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}
