package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the full application configuration loaded from environment variables or .env file.
//
// It is composed of smaller structs that represent different concerns of the system:
// HTTP servers, PostgreSQL, Redis (job broker), ingestion and job execution.
//
// Example ENV:
//
//	SERVER_PORT=8080
//	WORKER_PORT=8081
//	POSTGRES_HOST=localhost
//	POSTGRES_DB=marketpulse
//	REDIS_ADDR=localhost:6379
//	INGESTION_SYMBOLS=AAPL,MSFT,BTC-USD
//	INGESTION_INTERVAL=24h
//	JOBS_MAX_ATTEMPTS=3
type Config struct {
	Server    ServerConfig    // HTTP server configuration
	Postgres  PostgresConfig  // PostgreSQL connection settings
	Redis     RedisConfig     // Redis broker for the job queue
	Ingestion IngestionConfig // Market data ingestion settings
	Jobs      JobsConfig      // Background job execution settings
	Quotes    QuotesConfig    // External quote source settings
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string // API process port (e.g., "8080")
	WorkerPort         string // Worker process health/metrics port (e.g., "8081")
	RateLimitPerMinute int    // Requests per client IP per minute on the API
}

// PostgresConfig defines connection details for PostgreSQL.
//
// Fields:
//   - Host: hostname of the database server.
//   - Port: port number of the database server (default 5432).
//   - User: username for authentication.
//   - Password: password for authentication.
//   - DBName: target database name.
//   - SSLMode: SSL mode (e.g., "disable", "require").
//   - URL: computed DSN used by database/sql to connect.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	URL      string
}

// RedisConfig points at the Redis instance that brokers jobs between the API and the worker.
type RedisConfig struct {
	Addr          string
	Password      string
	DB            int
	QueueKey      string // list holding pending jobs
	DeadLetterKey string // list holding jobs that exhausted retries
	ConsumerID    string // names this worker's in-flight list; must be stable across restarts
}

// IngestionConfig drives the scheduler and the orchestrator.
type IngestionConfig struct {
	Interval       time.Duration // cadence of the scheduled run (default 24h)
	Cron           string        // optional cron expression, overrides Interval
	DefaultSymbols []string      // symbols ingested when none are given
	FetchTimeout   time.Duration // hard timeout per symbol fetch
	MaxConcurrent  int           // max in-flight fetches
	RunOnStart     bool          // trigger one run when the worker boots
}

// JobsConfig configures the task dispatcher's worker pool and retry policy.
type JobsConfig struct {
	Workers     int
	MaxAttempts int
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

// QuotesConfig selects and tunes the external quote source.
type QuotesConfig struct {
	Source        string  // "yahoo" or "mock"
	YahooBaseURL  string  // base URL of the Yahoo chart API
	RatePerSecond float64 // client-side pacing of provider calls
}

// AppConfig is the globally accessible configuration instance.
//
// It is populated once via LoadConfig() at the process edge. Internal components
// receive the relevant sub-struct through their constructors instead of reading it.
var AppConfig Config

// DefaultSymbols mirrors the short fixed list of large-cap equities and major crypto pairs.
var DefaultSymbols = []string{"AAPL", "MSFT", "GOOGL", "AMZN", "BTC-USD", "ETH-USD"}

// LoadConfig initializes the global AppConfig by reading from .env file
// or directly from environment variables.
//
// Precedence (from lowest to highest):
//  1. Defaults set in this function.
//  2. Values from .env file (if present).
//  3. Environment variables.
//
// Fatal exit:
//   - If required variables are missing or invalid, validateConfig() terminates the app.
func LoadConfig() {
	setDefaults()

	// Optionally read from .env if present (common in local dev)
	viper.SetConfigFile(".env")
	_ = viper.ReadInConfig() // ignore error if no .env

	viper.AutomaticEnv()

	AppConfig = Config{
		Server: ServerConfig{
			Port:               viper.GetString("SERVER_PORT"),
			WorkerPort:         viper.GetString("WORKER_PORT"),
			RateLimitPerMinute: viper.GetInt("HTTP_RATE_LIMIT_PER_MINUTE"),
		},
		Postgres: PostgresConfig{
			Host:     viper.GetString("POSTGRES_HOST"),
			Port:     viper.GetInt("POSTGRES_PORT"),
			User:     viper.GetString("POSTGRES_USER"),
			Password: viper.GetString("POSTGRES_PASSWORD"),
			DBName:   viper.GetString("POSTGRES_DB"),
			SSLMode:  viper.GetString("POSTGRES_SSLMODE"),
		},
		Redis: RedisConfig{
			Addr:          viper.GetString("REDIS_ADDR"),
			Password:      viper.GetString("REDIS_PASSWORD"),
			DB:            viper.GetInt("REDIS_DB"),
			QueueKey:      viper.GetString("JOBS_QUEUE_KEY"),
			DeadLetterKey: viper.GetString("JOBS_DEAD_LETTER_KEY"),
			ConsumerID:    viper.GetString("JOBS_CONSUMER_ID"),
		},
		Ingestion: IngestionConfig{
			Interval:       viper.GetDuration("INGESTION_INTERVAL"),
			Cron:           viper.GetString("INGESTION_CRON"),
			DefaultSymbols: ParseSymbols(viper.GetString("INGESTION_SYMBOLS")),
			FetchTimeout:   viper.GetDuration("INGESTION_FETCH_TIMEOUT"),
			MaxConcurrent:  viper.GetInt("INGESTION_MAX_CONCURRENT"),
			RunOnStart:     viper.GetBool("INGESTION_RUN_ON_START"),
		},
		Jobs: JobsConfig{
			Workers:     viper.GetInt("JOBS_WORKERS"),
			MaxAttempts: viper.GetInt("JOBS_MAX_ATTEMPTS"),
			BackoffBase: viper.GetDuration("JOBS_BACKOFF_BASE"),
			BackoffMax:  viper.GetDuration("JOBS_BACKOFF_MAX"),
		},
		Quotes: QuotesConfig{
			Source:        strings.ToLower(viper.GetString("QUOTE_SOURCE")),
			YahooBaseURL:  viper.GetString("YAHOO_BASE_URL"),
			RatePerSecond: viper.GetFloat64("QUOTE_RATE_PER_SECOND"),
		},
	}

	AppConfig.Postgres.URL = AppConfig.Postgres.DSN()

	validateConfig()
}

func setDefaults() {
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("WORKER_PORT", "8081")
	viper.SetDefault("HTTP_RATE_LIMIT_PER_MINUTE", 60)

	viper.SetDefault("POSTGRES_HOST", "localhost")
	viper.SetDefault("POSTGRES_PORT", 5432)
	viper.SetDefault("POSTGRES_USER", "postgres")
	viper.SetDefault("POSTGRES_PASSWORD", "postgres")
	viper.SetDefault("POSTGRES_DB", "marketpulse")
	viper.SetDefault("POSTGRES_SSLMODE", "disable")

	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("JOBS_QUEUE_KEY", "marketpulse:jobs")
	viper.SetDefault("JOBS_DEAD_LETTER_KEY", "marketpulse:jobs:dead")
	viper.SetDefault("JOBS_CONSUMER_ID", defaultConsumerID())

	viper.SetDefault("INGESTION_INTERVAL", "24h")
	viper.SetDefault("INGESTION_CRON", "")
	viper.SetDefault("INGESTION_SYMBOLS", strings.Join(DefaultSymbols, ","))
	viper.SetDefault("INGESTION_FETCH_TIMEOUT", "5s")
	viper.SetDefault("INGESTION_MAX_CONCURRENT", 4)
	viper.SetDefault("INGESTION_RUN_ON_START", false)

	viper.SetDefault("JOBS_WORKERS", 4)
	viper.SetDefault("JOBS_MAX_ATTEMPTS", 3)
	viper.SetDefault("JOBS_BACKOFF_BASE", "1s")
	viper.SetDefault("JOBS_BACKOFF_MAX", "30s")

	viper.SetDefault("QUOTE_SOURCE", "yahoo")
	viper.SetDefault("YAHOO_BASE_URL", "https://query1.finance.yahoo.com")
	viper.SetDefault("QUOTE_RATE_PER_SECOND", 5)
}

// DSN builds the PostgreSQL connection string used by database/sql.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User,
		p.Password,
		p.Host,
		p.Port,
		p.DBName,
		p.SSLMode,
	)
}

// ParseSymbols splits a comma separated list, trimming blanks and upper-casing entries.
func ParseSymbols(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// validateConfig ensures required variables are present and terminates
// the application if they are missing.
func validateConfig() {
	if problems := AppConfig.Problems(); len(problems) > 0 {
		log.Fatalf("❌ Invalid or missing environment variables: %v\n", problems)
	}
}

// Problems lists the configuration keys that are missing or out of range.
func (c Config) Problems() []string {
	var missing []string

	if c.Server.Port == "" {
		missing = append(missing, "SERVER_PORT")
	}
	if c.Postgres.Host == "" {
		missing = append(missing, "POSTGRES_HOST")
	}
	if c.Postgres.Port == 0 {
		missing = append(missing, "POSTGRES_PORT")
	}
	if c.Postgres.User == "" {
		missing = append(missing, "POSTGRES_USER")
	}
	if c.Postgres.Password == "" {
		missing = append(missing, "POSTGRES_PASSWORD")
	}
	if c.Postgres.DBName == "" {
		missing = append(missing, "POSTGRES_DB")
	}
	if c.Redis.Addr == "" {
		missing = append(missing, "REDIS_ADDR")
	}
	if len(c.Ingestion.DefaultSymbols) == 0 {
		missing = append(missing, "INGESTION_SYMBOLS")
	}
	if c.Ingestion.Interval <= 0 && c.Ingestion.Cron == "" {
		missing = append(missing, "INGESTION_INTERVAL")
	}
	if c.Ingestion.MaxConcurrent < 1 {
		missing = append(missing, "INGESTION_MAX_CONCURRENT")
	}
	if c.Jobs.MaxAttempts < 1 {
		missing = append(missing, "JOBS_MAX_ATTEMPTS")
	}
	if c.Quotes.Source != "yahoo" && c.Quotes.Source != "mock" {
		missing = append(missing, "QUOTE_SOURCE")
	}

	return missing
}

func defaultConsumerID() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "default"
}
