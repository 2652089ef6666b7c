package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"synapse.app/ingest/core/db"
)

type Config struct {
	OTel      OTelConfig
	Redis     RedisConfig
	Ingestion IngestionConfig
	Connector ConnectorConfig
	Delivery  DeliveryConfig
	GitHub    GitHubConfig
	GitLab    GitLabConfig
	Slack     SlackConfig
	Env       string
	Port      string
	DB        db.Config
}

type OTelConfig struct {
	Endpoint       string
	Headers        string
	ServiceName    string
	ServiceVersion string
	SampleRatio    float64 // fraction of new traces sampled, 0..1
}

type RedisConfig struct {
	URL string
}

type IngestionConfig struct {
	EventStore      EventStoreBackend
	EventStream     string // Redis stream receiving newly stored events; empty disables publishing
	EventStreamMax  int64  // approximate stream length cap, 0 for none
	TraceHeaderName string
	EnableTestData  bool
}

type ConnectorConfig struct {
	IngestionAPIURL string
	Port            string
	NodeID          int64
	CursorBackend   CursorBackend
	CursorSQLite    string
	CursorRedisKey  string
	SourcesFile     string
}

type DeliveryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	RequestTimeout time.Duration
	RatePerSecond  float64 // 0 disables rate limiting
	Burst          int
}

type GitHubConfig struct {
	Token            string
	Username         string
	BaseURL          string // Empty means api.github.com
	Repositories     []string
	Interval         time.Duration
	CommitLookback   time.Duration
	PullLookback     time.Duration
	PullRequestsSync bool
}

type GitLabConfig struct {
	Token    string
	BaseURL  string
	Projects []string
	Interval time.Duration
	Lookback time.Duration
}

type SlackConfig struct {
	BotToken string
	APIURL   string // Empty means slack.com
	Channels []string
	Interval time.Duration
	Lookback time.Duration
}

type EventStoreBackend string

const (
	EventStorePostgres EventStoreBackend = "postgres"
	EventStoreMemory   EventStoreBackend = "memory"
)

type CursorBackend string

const (
	CursorBackendMemory   CursorBackend = "memory"
	CursorBackendRedis    CursorBackend = "redis"
	CursorBackendPostgres CursorBackend = "postgres"
	CursorBackendSQLite   CursorBackend = "sqlite"
)

type ServiceType string

const (
	ServiceTypeServer    ServiceType = "server"
	ServiceTypeConnector ServiceType = "connector"
)

// Load loads configuration from environment variables.
// In development, it loads from service-specific .env files:
//   - .env.server for the ingestion API
//   - .env.connector for the source connector
//
// Falls back to .env if service-specific file doesn't exist.
func Load(serviceType ServiceType) (Config, error) {
	if getEnv("SYNAPSE_ENV", "development") == "development" {
		envFile := fmt.Sprintf(".env.%s", serviceType)
		if err := godotenv.Load(envFile); err != nil {
			_ = godotenv.Load(".env")
		}
	}

	cfg := Config{
		Env:  getEnv("SYNAPSE_ENV", "development"),
		Port: getEnv("PORT", "8080"),
		DB: db.Config{
			DSN:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvInt32("DB_MAX_CONNS", 10),
			MinConns:        getEnvInt32("DB_MIN_CONNS", 2),
			MaxConnLifetime: getEnvDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			ConnectAttempts: getEnvInt("DB_CONNECT_ATTEMPTS", 5),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", ""),
		},
		OTel: OTelConfig{
			Endpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Headers:        getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "synapse-"+string(serviceType)),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
			SampleRatio:    getEnvFloat("OTEL_TRACES_SAMPLE_RATIO", 1),
		},
		Ingestion: IngestionConfig{
			EventStore:      EventStoreBackend(getEnv("EVENT_STORE_BACKEND", string(EventStorePostgres))),
			EventStream:     getEnv("EVENT_STREAM", ""),
			EventStreamMax:  int64(getEnvInt("EVENT_STREAM_MAXLEN", 100000)),
			TraceHeaderName: getEnv("TRACE_HEADER_NAME", "X-Trace-Id"),
			EnableTestData:  getEnvBool("ENABLE_TEST_DATA", false),
		},
		Connector: ConnectorConfig{
			IngestionAPIURL: getEnv("INGESTION_API_URL", ""),
			Port:            getEnv("CONNECTOR_PORT", "8081"),
			NodeID:          int64(getEnvInt("NODE_ID", 1)),
			CursorBackend:   CursorBackend(getEnv("CURSOR_BACKEND", string(CursorBackendMemory))),
			CursorSQLite:    getEnv("CURSOR_SQLITE_PATH", "synapse-cursors.db"),
			CursorRedisKey:  getEnv("CURSOR_REDIS_KEY", "synapse:cursors"),
			SourcesFile:     getEnv("CONNECTOR_SOURCES_FILE", ""),
		},
		Delivery: DeliveryConfig{
			MaxAttempts:    getEnvInt("DELIVERY_MAX_ATTEMPTS", 3),
			InitialBackoff: getEnvDuration("DELIVERY_INITIAL_BACKOFF", 500*time.Millisecond),
			MaxBackoff:     getEnvDuration("DELIVERY_MAX_BACKOFF", 5*time.Second),
			RequestTimeout: getEnvDuration("DELIVERY_REQUEST_TIMEOUT", 10*time.Second),
			RatePerSecond:  getEnvFloat("DELIVERY_RATE_PER_SECOND", 0),
			Burst:          getEnvInt("DELIVERY_BURST", 10),
		},
		GitHub: GitHubConfig{
			Token:            getEnv("GITHUB_TOKEN", ""),
			Username:         getEnv("GITHUB_USERNAME", ""),
			BaseURL:          getEnv("GITHUB_BASE_URL", ""),
			Repositories:     getEnvList("GITHUB_REPOSITORIES"),
			Interval:         getEnvDuration("GITHUB_POLL_INTERVAL", 5*time.Minute),
			CommitLookback:   getEnvDuration("GITHUB_COMMIT_LOOKBACK", 7*24*time.Hour),
			PullLookback:     getEnvDuration("GITHUB_PULL_LOOKBACK", 7*24*time.Hour),
			PullRequestsSync: getEnvBool("GITHUB_SYNC_PULL_REQUESTS", true),
		},
		GitLab: GitLabConfig{
			Token:    getEnv("GITLAB_TOKEN", ""),
			BaseURL:  getEnv("GITLAB_BASE_URL", "https://gitlab.com"),
			Projects: getEnvList("GITLAB_PROJECTS"),
			Interval: getEnvDuration("GITLAB_POLL_INTERVAL", 5*time.Minute),
			Lookback: getEnvDuration("GITLAB_LOOKBACK", 7*24*time.Hour),
		},
		Slack: SlackConfig{
			BotToken: getEnv("SLACK_BOT_TOKEN", ""),
			APIURL:   getEnv("SLACK_API_URL", ""),
			Channels: getEnvList("SLACK_CHANNELS"),
			Interval: getEnvDuration("SLACK_POLL_INTERVAL", time.Minute),
			Lookback: getEnvDuration("SLACK_LOOKBACK", 24*time.Hour),
		},
	}

	if err := cfg.validate(serviceType); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) validate(serviceType ServiceType) error {
	var errs []error

	if c.OTel.SampleRatio < 0 || c.OTel.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("OTEL_TRACES_SAMPLE_RATIO must be within [0, 1], got %v", c.OTel.SampleRatio))
	}

	switch serviceType {
	case ServiceTypeServer:
		switch c.Ingestion.EventStore {
		case EventStorePostgres:
			if c.DB.DSN == "" {
				errs = append(errs, errors.New("DATABASE_URL is required for the postgres event store"))
			}
		case EventStoreMemory:
		default:
			errs = append(errs, fmt.Errorf("unknown EVENT_STORE_BACKEND %q", c.Ingestion.EventStore))
		}
		if c.Ingestion.EventStream != "" && c.Redis.URL == "" {
			errs = append(errs, errors.New("REDIS_URL is required when EVENT_STREAM is set"))
		}

	case ServiceTypeConnector:
		if c.Connector.IngestionAPIURL == "" {
			errs = append(errs, errors.New("INGESTION_API_URL is required"))
		}
		switch c.Connector.CursorBackend {
		case CursorBackendMemory, CursorBackendSQLite:
		case CursorBackendRedis:
			if c.Redis.URL == "" {
				errs = append(errs, errors.New("REDIS_URL is required for the redis cursor backend"))
			}
		case CursorBackendPostgres:
			if c.DB.DSN == "" {
				errs = append(errs, errors.New("DATABASE_URL is required for the postgres cursor backend"))
			}
		default:
			errs = append(errs, fmt.Errorf("unknown CURSOR_BACKEND %q", c.Connector.CursorBackend))
		}
		if c.Connector.IngestionAPIURL == "local" && c.Ingestion.EventStore == EventStorePostgres && c.DB.DSN == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for local ingestion with the postgres event store"))
		}
		if c.Delivery.MaxAttempts < 1 {
			errs = append(errs, errors.New("DELIVERY_MAX_ATTEMPTS must be at least 1"))
		}
		if !c.GitHub.Enabled() && !c.GitLab.Enabled() && !c.Slack.Enabled() {
			errs = append(errs, errors.New("no source configured: set GITHUB_TOKEN, GITLAB_TOKEN or SLACK_BOT_TOKEN"))
		}
		if c.GitHub.Enabled() && len(c.GitHub.Repositories) == 0 && c.GitHub.Username == "" {
			errs = append(errs, errors.New("GITHUB_REPOSITORIES or GITHUB_USERNAME is required when GITHUB_TOKEN is set"))
		}
	}

	return errors.Join(errs...)
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c OTelConfig) Enabled() bool {
	return c.Endpoint != ""
}

func (c GitHubConfig) Enabled() bool {
	return c.Token != ""
}

func (c GitLabConfig) Enabled() bool {
	return c.Token != ""
}

func (c SlackConfig) Enabled() bool {
	return c.BotToken != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt32(key string, fallback int32) int32 {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(i)
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

// getEnvList splits a comma-separated value, dropping blanks.
func getEnvList(key string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
