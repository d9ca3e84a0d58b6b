// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Postgres, Redis, Kafka, Lexical, Vector, CF, Fusion,
// Feedback, Builder, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Lexical   LexicalConfig   `yaml:"lexical"`
	Vector    VectorConfig    `yaml:"vector"`
	CF        CFConfig        `yaml:"cf"`
	Fusion    FusionConfig    `yaml:"fusion"`
	Feedback  FeedbackConfig  `yaml:"feedback"`
	Builder   BuilderConfig   `yaml:"builder"`
	Sources   SourcesConfig   `yaml:"sources"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// SourcesConfig selects where catalog and rating snapshots come from.
// Backend is "csv" (local snapshot files) or "postgres".
type SourcesConfig struct {
	Backend     string `yaml:"backend"`
	ItemsPath   string `yaml:"itemsPath"`
	RatingsPath string `yaml:"ratingsPath"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	DefaultLimit    int           `yaml:"defaultLimit"`
	MaxResults      int           `yaml:"maxResults"`
	RateLimit       int           `yaml:"rateLimit"` // requests per minute per client, 0 disables
}

// PostgresConfig holds PostgreSQL connection parameters for the catalog and
// ratings snapshot sources.
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

// RedisConfig holds Redis connection and result-cache parameters.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// KafkaConfig holds Kafka broker and topic settings for the feedback
// pipeline.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	FeedbackEvents string `yaml:"feedbackEvents"`
	BuildComplete  string `yaml:"buildComplete"`
}

// EmbeddingConfig selects and tunes the embedding provider used at build
// time. Provider is "openai" or "tfidf".
type EmbeddingConfig struct {
	Provider    string        `yaml:"provider"`
	Model       string        `yaml:"model"`
	APIKey      string        `yaml:"apiKey"`
	BaseURL     string        `yaml:"baseUrl"`
	Dimensions  int           `yaml:"dimensions"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxRetries  int           `yaml:"maxRetries"`
	Concurrency int           `yaml:"concurrency"`
}

// LexicalConfig holds the BM25 build parameters. K1 controls term-frequency
// saturation, B controls length normalization.
type LexicalConfig struct {
	K1 float64 `yaml:"k1"`
	B  float64 `yaml:"b"`
}

// VectorConfig selects the nearest-neighbor backend. Backend is "flat"
// (exact brute force, the reference behavior) or "hnsw".
type VectorConfig struct {
	Backend        string `yaml:"backend"`
	M              int    `yaml:"m"`
	EfConstruction int    `yaml:"efConstruction"`
	EfSearch       int    `yaml:"efSearch"`
}

// CFConfig holds collaborative-filtering training parameters.
type CFConfig struct {
	NeighborK int `yaml:"neighborK"`
}

// FusionConfig holds per-source fusion weights. Weights are renormalized
// over the sources that actually contribute to a query.
type FusionConfig struct {
	LexicalWeight float64 `yaml:"lexicalWeight"`
	VectorWeight  float64 `yaml:"vectorWeight"`
	CFWeight      float64 `yaml:"cfWeight"`
}

// FeedbackConfig controls the online feedback boost: events within Window
// contribute a boost that halves every HalfLife and is clamped to MaxBoost.
type FeedbackConfig struct {
	Window   time.Duration `yaml:"window"`
	HalfLife time.Duration `yaml:"halfLife"`
	MaxBoost float64       `yaml:"maxBoost"`
}

// BuilderConfig controls the batch index builder. OnEmbedFailure is "abort"
// (no partial version published) or "skip" (publish with the failed items
// absent from the vector index, recorded in the manifest).
type BuilderConfig struct {
	DataDir        string `yaml:"dataDir"`
	OnEmbedFailure string `yaml:"onEmbedFailure"`
	KeepVersions   int    `yaml:"keepVersions"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// defaultConfig returns a Config with production-ready defaults for local
// development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			DefaultLimit:    20,
			MaxResults:      100,
			RateLimit:       300,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "recommender",
			User:            "recommender",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "recommender-group",
			Topics: KafkaTopics{
				FeedbackEvents: "feedback-events",
				BuildComplete:  "build-complete",
			},
		},
		Embedding: EmbeddingConfig{
			Provider:    "tfidf",
			Model:       "text-embedding-3-small",
			Dimensions:  256,
			Timeout:     10 * time.Second,
			MaxRetries:  3,
			Concurrency: 8,
		},
		Lexical: LexicalConfig{
			K1: 1.2,
			B:  0.75,
		},
		Vector: VectorConfig{
			Backend:        "flat",
			M:              16,
			EfConstruction: 200,
			EfSearch:       50,
		},
		CF: CFConfig{
			NeighborK: 25,
		},
		Fusion: FusionConfig{
			LexicalWeight: 0.3,
			VectorWeight:  0.5,
			CFWeight:      0.2,
		},
		Feedback: FeedbackConfig{
			Window:   24 * time.Hour,
			HalfLife: 6 * time.Hour,
			MaxBoost: 0.2,
		},
		Builder: BuilderConfig{
			DataDir:        "data/artifacts",
			OnEmbedFailure: "abort",
			KeepVersions:   3,
		},
		Sources: SourcesConfig{
			Backend:     "csv",
			ItemsPath:   "data/items.csv",
			RatingsPath: "data/ratings.csv",
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

func validate(cfg *Config) error {
	if cfg.Lexical.K1 <= 0 {
		return fmt.Errorf("lexical.k1 must be positive, got %v", cfg.Lexical.K1)
	}
	if cfg.Lexical.B < 0 || cfg.Lexical.B > 1 {
		return fmt.Errorf("lexical.b must be in [0,1], got %v", cfg.Lexical.B)
	}
	if cfg.CF.NeighborK <= 0 {
		return fmt.Errorf("cf.neighborK must be positive, got %d", cfg.CF.NeighborK)
	}
	switch cfg.Builder.OnEmbedFailure {
	case "abort", "skip":
	default:
		return fmt.Errorf("builder.onEmbedFailure must be abort or skip, got %q", cfg.Builder.OnEmbedFailure)
	}
	switch cfg.Vector.Backend {
	case "flat", "hnsw":
	default:
		return fmt.Errorf("vector.backend must be flat or hnsw, got %q", cfg.Vector.Backend)
	}
	if cfg.Fusion.LexicalWeight < 0 || cfg.Fusion.VectorWeight < 0 || cfg.Fusion.CFWeight < 0 {
		return fmt.Errorf("fusion weights must be non-negative")
	}
	switch cfg.Sources.Backend {
	case "csv", "postgres":
	default:
		return fmt.Errorf("sources.backend must be csv or postgres, got %q", cfg.Sources.Backend)
	}
	return nil
}

// applyEnvOverrides reads RECO_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RECO_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("RECO_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("RECO_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("RECO_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("RECO_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("RECO_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("RECO_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("RECO_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("RECO_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("RECO_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("RECO_EMBEDDING_PROVIDER"); v != "" {
		cfg.Embedding.Provider = v
	}
	if v := os.Getenv("RECO_EMBEDDING_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv("RECO_EMBEDDING_BASE_URL"); v != "" {
		cfg.Embedding.BaseURL = v
	}
	if v := os.Getenv("RECO_BUILDER_DATA_DIR"); v != "" {
		cfg.Builder.DataDir = v
	}
	if v := os.Getenv("RECO_BUILDER_ON_EMBED_FAILURE"); v != "" {
		cfg.Builder.OnEmbedFailure = v
	}
	if v := os.Getenv("RECO_SOURCES_BACKEND"); v != "" {
		cfg.Sources.Backend = v
	}
	if v := os.Getenv("RECO_SOURCES_ITEMS_PATH"); v != "" {
		cfg.Sources.ItemsPath = v
	}
	if v := os.Getenv("RECO_SOURCES_RATINGS_PATH"); v != "" {
		cfg.Sources.RatingsPath = v
	}
	if v := os.Getenv("RECO_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("RECO_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
