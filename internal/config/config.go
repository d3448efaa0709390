// Package config loads sercha-crawl settings from defaults, a YAML file,
// a .env file and the process environment, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file read when no --config flag is given
const DefaultPath = "sercha-crawl.yaml"

// EmbeddingConfig selects and tunes the embedding provider.
type EmbeddingConfig struct {
	Provider    string        `yaml:"provider"`
	APIKey      string        `yaml:"api_key,omitempty"`
	Model       string        `yaml:"model,omitempty"`
	BaseURL     string        `yaml:"base_url,omitempty"`
	Dimensions  int           `yaml:"dimensions,omitempty"`
	BatchSize   int           `yaml:"batch_size"`
	Pause       time.Duration `yaml:"pause"`
	Concurrency int           `yaml:"concurrency"`
	Timeout     time.Duration `yaml:"timeout"`

	// RequestsPerSecond caps calls to the provider; 0 means unlimited
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty"`
}

// VectorStoreConfig selects the vector backend and the target collection.
type VectorStoreConfig struct {
	Backend        string        `yaml:"backend"`
	URL            string        `yaml:"url,omitempty"`
	APIKey         string        `yaml:"api_key,omitempty"`
	DatabaseURL    string        `yaml:"database_url,omitempty"`
	Collection     string        `yaml:"collection"`
	Distance       string        `yaml:"distance"`
	Timeout        time.Duration `yaml:"timeout"`
	StoreBatchSize int           `yaml:"store_batch_size"`
}

// CrawlConfig bounds and paces site traversal.
type CrawlConfig struct {
	MaxPages     int           `yaml:"max_pages"`
	Delay        time.Duration `yaml:"delay"`
	Timeout      time.Duration `yaml:"timeout"`
	UserAgent    string        `yaml:"user_agent"`
	StripQuery   bool          `yaml:"strip_query"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
}

type ChunkConfig struct {
	SizeWords int `yaml:"size_words"`
	MinWords  int `yaml:"min_words"`
}

// RetryConfig mirrors retry.Policy's schedule fields.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// RedisConfig enables the ingestion lock and embedding cache when URL is set.
type RedisConfig struct {
	URL      string        `yaml:"url,omitempty"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
	LockTTL  time.Duration `yaml:"lock_ttl"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the root application configuration.
type Config struct {
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Crawl       CrawlConfig       `yaml:"crawl"`
	Chunk       ChunkConfig       `yaml:"chunk"`
	Retry       RetryConfig       `yaml:"retry"`
	QueryRetry  RetryConfig       `yaml:"query_retry"`
	Redis       RedisConfig       `yaml:"redis"`
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Embedding: EmbeddingConfig{
			Provider:    "cohere",
			BatchSize:   96,
			Pause:       100 * time.Millisecond,
			Concurrency: 1,
			Timeout:     60 * time.Second,
		},
		VectorStore: VectorStoreConfig{
			Backend:        "qdrant",
			URL:            "http://localhost:6333",
			Collection:     "book_embeddings",
			Distance:       "Cosine",
			Timeout:        30 * time.Second,
			StoreBatchSize: 50,
		},
		Crawl: CrawlConfig{
			MaxPages:     100,
			Delay:        200 * time.Millisecond,
			Timeout:      10 * time.Second,
			UserAgent:    "sercha-crawl/1.0",
			StripQuery:   true,
			MaxBodyBytes: 10 << 20,
		},
		Chunk:      ChunkConfig{SizeWords: 500, MinWords: 10},
		Retry:      RetryConfig{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second},
		QueryRetry: RetryConfig{MaxAttempts: 5, BaseDelay: 2 * time.Second, MaxDelay: 30 * time.Second},
		Redis:      RedisConfig{CacheTTL: 24 * time.Hour, LockTTL: 30 * time.Minute},
		Server:     ServerConfig{Host: "0.0.0.0", Port: 8080},
		Log:        LogConfig{Level: "info", Format: "text"},
	}
}

// Load builds the configuration. A missing YAML file or .env file is not an
// error; an unreadable or malformed one is.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	// .env never overrides variables already set in the process
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg.applyEnv()
	return cfg, nil
}

// Save writes cfg as YAML, creating parent directories as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func (c *Config) applyEnv() {
	e := &c.Embedding
	e.Provider = getEnv("EMBEDDING_PROVIDER", e.Provider)
	e.Model = getEnv("EMBEDDING_MODEL", e.Model)
	e.BaseURL = getEnv("EMBEDDING_BASE_URL", e.BaseURL)
	e.Dimensions = getEnvInt("EMBEDDING_DIMENSIONS", e.Dimensions)
	e.BatchSize = getEnvInt("EMBEDDING_BATCH_SIZE", e.BatchSize)
	e.Pause = getEnvDuration("EMBEDDING_PAUSE", e.Pause)
	e.Concurrency = getEnvInt("EMBEDDING_CONCURRENCY", e.Concurrency)
	e.RequestsPerSecond = getEnvFloat("EMBEDDING_REQUESTS_PER_SECOND", e.RequestsPerSecond)
	e.Timeout = getEnvDuration("EMBEDDING_TIMEOUT", e.Timeout)
	e.APIKey = getEnv("EMBEDDING_API_KEY", e.APIKey)
	if e.APIKey == "" {
		switch strings.ToLower(e.Provider) {
		case "cohere":
			e.APIKey = os.Getenv("COHERE_API_KEY")
		case "openai":
			e.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}

	v := &c.VectorStore
	v.Backend = getEnv("VECTOR_BACKEND", v.Backend)
	v.URL = getEnv("QDRANT_URL", v.URL)
	v.APIKey = getEnv("QDRANT_API_KEY", v.APIKey)
	v.DatabaseURL = getEnv("DATABASE_URL", v.DatabaseURL)
	v.Collection = getEnv("COLLECTION", v.Collection)
	v.Distance = getEnv("DISTANCE", v.Distance)
	v.StoreBatchSize = getEnvInt("STORE_BATCH_SIZE", v.StoreBatchSize)

	c.Crawl.MaxPages = getEnvInt("CRAWL_MAX_PAGES", c.Crawl.MaxPages)
	c.Crawl.Delay = getEnvDuration("CRAWL_DELAY", c.Crawl.Delay)
	c.Crawl.UserAgent = getEnv("CRAWL_USER_AGENT", c.Crawl.UserAgent)
	c.Crawl.StripQuery = getEnvBool("CRAWL_STRIP_QUERY", c.Crawl.StripQuery)

	c.Chunk.SizeWords = getEnvInt("CHUNK_SIZE", c.Chunk.SizeWords)

	c.Redis.URL = getEnv("REDIS_URL", c.Redis.URL)

	c.Server.Host = getEnv("HOST", c.Server.Host)
	c.Server.Port = getEnvInt("PORT", c.Server.Port)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
}

// Validate reports the first setting that would make the pipeline unusable.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Embedding.Provider) {
	case "cohere", "openai":
		if c.Embedding.APIKey == "" {
			return fmt.Errorf("embedding.api_key is required for provider %q", c.Embedding.Provider)
		}
	default:
		return fmt.Errorf("unknown embedding provider %q", c.Embedding.Provider)
	}
	if c.Embedding.Dimensions < 0 {
		return fmt.Errorf("embedding.dimensions must be positive, got %d", c.Embedding.Dimensions)
	}
	if c.Embedding.BatchSize <= 0 {
		return fmt.Errorf("embedding.batch_size must be positive, got %d", c.Embedding.BatchSize)
	}
	if c.Embedding.Concurrency <= 0 {
		return fmt.Errorf("embedding.concurrency must be positive, got %d", c.Embedding.Concurrency)
	}
	if c.Embedding.RequestsPerSecond < 0 {
		return fmt.Errorf("embedding.requests_per_second must not be negative, got %g", c.Embedding.RequestsPerSecond)
	}

	switch strings.ToLower(c.VectorStore.Backend) {
	case "qdrant":
		if c.VectorStore.URL == "" {
			return errors.New("vector_store.url is required for the qdrant backend")
		}
	case "pgvector":
		if c.VectorStore.DatabaseURL == "" {
			return errors.New("vector_store.database_url is required for the pgvector backend")
		}
	default:
		return fmt.Errorf("unknown vector_store backend %q", c.VectorStore.Backend)
	}
	if c.VectorStore.Collection == "" {
		return errors.New("vector_store.collection is required")
	}
	if c.VectorStore.StoreBatchSize <= 0 {
		return fmt.Errorf("vector_store.store_batch_size must be positive, got %d", c.VectorStore.StoreBatchSize)
	}

	if c.Crawl.MaxPages <= 0 {
		return fmt.Errorf("crawl.max_pages must be positive, got %d", c.Crawl.MaxPages)
	}
	if c.Chunk.SizeWords <= 0 {
		return fmt.Errorf("chunk.size_words must be positive, got %d", c.Chunk.SizeWords)
	}
	for name, r := range map[string]RetryConfig{"retry": c.Retry, "query_retry": c.QueryRetry} {
		if r.MaxAttempts <= 0 {
			return fmt.Errorf("%s.max_attempts must be positive, got %d", name, r.MaxAttempts)
		}
	}
	return nil
}

// Address returns the host:port the API server listens on
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	return v == "true" || v == "1"
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
