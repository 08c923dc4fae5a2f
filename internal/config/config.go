package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/davidamom/neuralflake/internal/domain"
)

// Store backend names accepted by STORE_BACKEND.
const (
	StoreSQLite = "sqlite"
	StoreQdrant = "qdrant"
	StoreMemory = "memory"
)

// Embedding backend names accepted by EMBEDDING_BACKEND.
const (
	EmbedOpenAI = "openai"
	EmbedLocal  = "local"
)

// Config holds all configuration for the application. It is constructed once
// at startup and passed into component constructors; there is no ambient
// mutable configuration state.
type Config struct {
	// Source
	SourceRoot string
	Extensions []string

	// Chunking
	ChunkSize    int
	ChunkOverlap int

	// Embedding
	EmbeddingBackend string
	EmbeddingModel   string
	OpenAIAPIKey     string
	OpenAIBaseURL    string
	VectorSize       int
	BatchSize        int
	Workers          int
	EmbedTimeout     time.Duration
	MaxRetries       int
	RetryBackoff     time.Duration

	// Vector store
	StoreBackend     string
	StorePath        string
	QdrantURL        string
	QdrantCollection string

	// Retrieval
	TopK           int
	RetrieverCache bool
	ContextBudget  int

	// Server
	APIPort       string
	IngestOnStart bool

	// Logging
	LogLevel  slog.Level
	LogFormat string
}

// Load reads configuration from environment variables and returns a Config.
// It applies documented defaults for optional fields and validates everything
// up front: invalid values fail with domain.ErrInvalidConfiguration rather
// than being silently clamped. A .env file in the current directory or a
// parent directory is loaded automatically; real environment variables take
// precedence over .env values.
func Load() (*Config, error) {
	loadDotEnv()

	cfg := &Config{
		SourceRoot:       getEnv("SOURCE_ROOT", ""),
		EmbeddingBackend: getEnv("EMBEDDING_BACKEND", EmbedOpenAI),
		EmbeddingModel:   getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		OpenAIAPIKey:     getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:    getEnv("OPENAI_BASE_URL", ""),
		StoreBackend:     getEnv("STORE_BACKEND", StoreSQLite),
		StorePath:        getEnv("STORE_PATH", "./data/neuralflake.db"),
		QdrantURL:        getEnv("QDRANT_URL", "http://localhost:6333"),
		QdrantCollection: getEnv("QDRANT_COLLECTION", "neuralflake"),
		APIPort:          getEnv("API_PORT", "9000"),
		LogFormat:        getEnv("LOG_FORMAT", "text"),
	}

	for _, ext := range strings.Split(getEnv("SOURCE_EXTENSIONS", ".md,.txt,.sql,.yml,.yaml,.py,.json"), ",") {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		cfg.Extensions = append(cfg.Extensions, ext)
	}

	var err error
	if cfg.ChunkSize, err = getEnvInt("CHUNK_SIZE", 1000); err != nil {
		return nil, err
	}
	if cfg.ChunkOverlap, err = getEnvInt("CHUNK_OVERLAP", 200); err != nil {
		return nil, err
	}
	if cfg.VectorSize, err = getEnvInt("VECTOR_SIZE", 0); err != nil {
		return nil, err
	}
	if cfg.BatchSize, err = getEnvInt("EMBED_BATCH_SIZE", 16); err != nil {
		return nil, err
	}
	if cfg.Workers, err = getEnvInt("EMBED_WORKERS", 4); err != nil {
		return nil, err
	}
	if cfg.MaxRetries, err = getEnvInt("EMBED_MAX_RETRIES", 3); err != nil {
		return nil, err
	}
	if cfg.EmbedTimeout, err = getEnvDuration("EMBED_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.RetryBackoff, err = getEnvDuration("EMBED_RETRY_BACKOFF", 500*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.TopK, err = getEnvInt("TOP_K", 4); err != nil {
		return nil, err
	}
	if cfg.ContextBudget, err = getEnvInt("CONTEXT_BUDGET", 6000); err != nil {
		return nil, err
	}
	if cfg.RetrieverCache, err = getEnvBool("RETRIEVER_CACHE", false); err != nil {
		return nil, err
	}
	if cfg.IngestOnStart, err = getEnvBool("INGEST_ON_START", true); err != nil {
		return nil, err
	}
	if cfg.LogLevel, err = parseLogLevel(getEnv("LOG_LEVEL", "info")); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	fail := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", domain.ErrInvalidConfiguration, fmt.Sprintf(format, args...))
	}

	if c.SourceRoot == "" {
		return fail("SOURCE_ROOT is required")
	}
	if len(c.Extensions) == 0 {
		return fail("SOURCE_EXTENSIONS must name at least one extension")
	}
	if c.ChunkSize <= 0 {
		return fail("CHUNK_SIZE must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fail("CHUNK_OVERLAP must satisfy 0 <= overlap < chunk size, got %d (chunk size %d)", c.ChunkOverlap, c.ChunkSize)
	}
	if c.VectorSize <= 0 {
		return fail("VECTOR_SIZE is required and must be positive, got %d", c.VectorSize)
	}
	if c.BatchSize <= 0 {
		return fail("EMBED_BATCH_SIZE must be positive, got %d", c.BatchSize)
	}
	if c.Workers <= 0 {
		return fail("EMBED_WORKERS must be positive, got %d", c.Workers)
	}
	if c.MaxRetries < 1 {
		return fail("EMBED_MAX_RETRIES must be at least 1 (the first attempt counts), got %d", c.MaxRetries)
	}
	if c.EmbedTimeout <= 0 {
		return fail("EMBED_TIMEOUT must be positive, got %s", c.EmbedTimeout)
	}
	if c.RetryBackoff <= 0 {
		return fail("EMBED_RETRY_BACKOFF must be positive, got %s", c.RetryBackoff)
	}
	if c.TopK <= 0 {
		return fail("TOP_K must be positive, got %d", c.TopK)
	}
	if c.ContextBudget <= 0 {
		return fail("CONTEXT_BUDGET must be positive, got %d", c.ContextBudget)
	}

	switch c.EmbeddingBackend {
	case EmbedOpenAI:
		// A key is mandatory against the hosted API; local OpenAI-compatible
		// servers (llama.cpp) ignore it, so only require it without a base URL.
		if c.OpenAIAPIKey == "" && c.OpenAIBaseURL == "" {
			return fail("OPENAI_API_KEY is required for the openai embedding backend")
		}
	case EmbedLocal:
	default:
		return fail("EMBEDDING_BACKEND must be one of %q, %q; got %q", EmbedOpenAI, EmbedLocal, c.EmbeddingBackend)
	}

	switch c.StoreBackend {
	case StoreSQLite:
		if c.StorePath == "" {
			return fail("STORE_PATH is required for the sqlite store backend")
		}
	case StoreQdrant:
		if c.QdrantURL == "" {
			return fail("QDRANT_URL is required for the qdrant store backend")
		}
		if c.QdrantCollection == "" {
			return fail("QDRANT_COLLECTION is required for the qdrant store backend")
		}
	case StoreMemory:
	default:
		return fail("STORE_BACKEND must be one of %q, %q, %q; got %q", StoreSQLite, StoreQdrant, StoreMemory, c.StoreBackend)
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		return fail("LOG_FORMAT must be \"text\" or \"json\", got %q", c.LogFormat)
	}

	if c.StoreBackend == StoreSQLite {
		dataDir := filepath.Dir(c.StorePath)
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return fail("failed to create store directory %s: %v", dataDir, err)
		}
	}

	return nil
}

// loadDotEnv tries the current directory first, then walks up a few levels
// looking for a .env next to the project root.
func loadDotEnv() {
	_ = godotenv.Load()

	wd, err := os.Getwd()
	if err != nil {
		return
	}
	dir := wd
	for i := 0; i < 5; i++ {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			_ = godotenv.Load(envPath)
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer, got %q", domain.ErrInvalidConfiguration, key, value)
	}
	return n, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a duration (e.g. \"30s\"), got %q", domain.ErrInvalidConfiguration, key, value)
	}
	return d, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be a boolean, got %q", domain.ErrInvalidConfiguration, key, value)
	}
	return b, nil
}

func parseLogLevel(value string) (slog.Level, error) {
	switch strings.ToLower(value) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("%w: LOG_LEVEL must be one of debug, info, warn, error; got %q", domain.ErrInvalidConfiguration, value)
	}
}
