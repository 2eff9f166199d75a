package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(NewConfig),
)

// Backend names accepted by REM_BACKEND.
const (
	BackendPostgres = "postgresql"
	BackendTiDB     = "tidb"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	ServerPort    int    `env:"SERVER_PORT" envDefault:"5300"`
	ServerAddress string `env:"SERVER_ADDRESS" envDefault:"0.0.0.0"`
	Environment   string `env:"ENVIRONMENT" envDefault:"local"`
	Debug         bool   `env:"DEBUG" envDefault:"false"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`

	// Database settings for the graph-native backend
	Database DatabaseConfig

	// TiDB settings for the reverse-mapping backend
	TiDB TiDBConfig

	// KV proxy in front of TiKV
	KV KVConfig

	// Embeddings configuration
	Embeddings EmbeddingsConfig

	// REM query engine settings
	REM REMConfig

	// Connection retry policy
	Retry RetryConfig

	// OpenTelemetry tracing
	Otel OtelConfig

	// Server timeouts
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"60s"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"120s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host         string        `env:"POSTGRES_HOST" envDefault:"localhost"`
	Port         int           `env:"POSTGRES_PORT" envDefault:"5432"`
	User         string        `env:"POSTGRES_USER" envDefault:"p8fs"`
	Password     string        `env:"POSTGRES_PASSWORD" envDefault:""`
	Database     string        `env:"POSTGRES_DB" envDefault:"p8fs"`
	SSLMode      string        `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	MaxOpenConns int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	MaxIdleTime  time.Duration `env:"DB_MAX_IDLE_TIME" envDefault:"5m"`
	QueryDebug   bool          `env:"DB_QUERY_DEBUG" envDefault:"false"`
}

// DSN returns the PostgreSQL connection string
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Database, d.SSLMode,
	)
}

// TiDBConfig holds TiDB (MySQL protocol) connection settings
type TiDBConfig struct {
	Host         string `env:"TIDB_HOST" envDefault:"localhost"`
	Port         int    `env:"TIDB_PORT" envDefault:"4000"`
	User         string `env:"TIDB_USER" envDefault:"root"`
	Password     string `env:"TIDB_PASSWORD" envDefault:""`
	Database     string `env:"TIDB_DATABASE" envDefault:"public"`
	MaxOpenConns int    `env:"TIDB_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns int    `env:"TIDB_MAX_IDLE_CONNS" envDefault:"5"`
}

// DSN returns the go-sql-driver/mysql connection string
func (t *TiDBConfig) DSN() string {
	return fmt.Sprintf(
		"%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4",
		t.User, t.Password, t.Host, t.Port, t.Database,
	)
}

// KVConfig points at the HTTP proxy that fronts the TiKV cluster
type KVConfig struct {
	// ProxyURL is the base URL of the proxy; empty selects the in-memory store
	ProxyURL string        `env:"TIKV_PROXY_URL" envDefault:""`
	Timeout  time.Duration `env:"TIKV_PROXY_TIMEOUT" envDefault:"10s"`
}

// UseProxy returns true when a TiKV proxy is configured
func (k *KVConfig) UseProxy() bool {
	return k.ProxyURL != ""
}

// EmbeddingsConfig holds embedding service configuration
type EmbeddingsConfig struct {
	// GCP Project ID for Vertex AI
	GCPProjectID string `env:"GCP_PROJECT_ID" envDefault:""`

	// Vertex AI location (e.g., "us-central1")
	VertexAILocation string `env:"VERTEX_AI_LOCATION" envDefault:"us-central1"`

	// Embedding model name
	Model string `env:"EMBEDDING_MODEL" envDefault:"text-embedding-004"`

	// Embedding dimension (768 for text-embedding-004)
	Dimension int `env:"EMBEDDING_DIMENSION" envDefault:"768"`

	// Google API Key for the Gemini API
	GoogleAPIKey string `env:"GOOGLE_API_KEY" envDefault:""`

	// Disable embeddings network calls (for testing)
	NetworkDisabled bool `env:"EMBEDDINGS_NETWORK_DISABLED" envDefault:"false"`
}

// IsEnabled returns true if embeddings are configured
func (e *EmbeddingsConfig) IsEnabled() bool {
	if e.NetworkDisabled {
		return false
	}
	return e.UseVertexAI() || e.GoogleAPIKey != ""
}

// UseVertexAI returns true if Vertex AI should be used
func (e *EmbeddingsConfig) UseVertexAI() bool {
	return e.GCPProjectID != "" && e.VertexAILocation != ""
}

// REMConfig holds query engine settings
type REMConfig struct {
	// Backend is "postgresql" or "tidb"
	Backend string `env:"REM_BACKEND" envDefault:"postgresql"`

	// DefaultTenant is used when a request carries no tenant id
	DefaultTenant string `env:"REM_DEFAULT_TENANT" envDefault:"tenant-test"`

	// DefaultTable is the table SEARCH and SQL use when none is named
	DefaultTable string `env:"REM_DEFAULT_TABLE" envDefault:"resources"`

	// TraverseTimeout bounds a whole TRAVERSE execution
	TraverseTimeout time.Duration `env:"REM_TRAVERSE_TIMEOUT" envDefault:"30s"`

	// SeedLimit caps SEARCH/SQL seed queries of a TRAVERSE
	SeedLimit int `env:"REM_TRAVERSE_SEED_LIMIT" envDefault:"100"`

	// EdgeSampleLimit caps sample targets per edge type in PLAN mode
	EdgeSampleLimit int `env:"REM_EDGE_SAMPLE_LIMIT" envDefault:"5"`

	// MetadataRefreshCron clears the table metadata cache; empty disables
	MetadataRefreshCron string `env:"REM_METADATA_REFRESH_CRON" envDefault:"0 0 * * * *"`
}

// UseTiDB returns true when the reverse-mapping backend is selected
func (r *REMConfig) UseTiDB() bool {
	return r.Backend == BackendTiDB
}

// Validate checks the backend selection
func (r *REMConfig) Validate() error {
	switch r.Backend {
	case BackendPostgres, BackendTiDB:
		return nil
	default:
		return fmt.Errorf("unsupported REM_BACKEND %q", r.Backend)
	}
}

// RetryConfig is the connection-acquisition retry policy
type RetryConfig struct {
	MaxAttempts int           `env:"DB_RETRY_ATTEMPTS" envDefault:"4"`
	Delay       time.Duration `env:"DB_RETRY_DELAY" envDefault:"1s"`
}

// NewConfig loads configuration from environment variables
func NewConfig(log *slog.Logger) (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.REM.Validate(); err != nil {
		return nil, err
	}

	log.Info("configuration loaded",
		slog.String("environment", cfg.Environment),
		slog.Int("port", cfg.ServerPort),
		slog.String("rem_backend", cfg.REM.Backend),
		slog.Bool("kv_proxy", cfg.KV.UseProxy()),
	)

	return cfg, nil
}
