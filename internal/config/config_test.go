package config

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/davidamom/neuralflake/internal/domain"
)

// setRequired sets the minimal environment for a valid Load.
func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("SOURCE_ROOT", t.TempDir())
	t.Setenv("VECTOR_SIZE", "384")
	t.Setenv("EMBEDDING_BACKEND", EmbedLocal)
	t.Setenv("STORE_BACKEND", StoreMemory)
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.ChunkSize != 1000 {
		t.Errorf("ChunkSize = %d, want 1000", cfg.ChunkSize)
	}
	if cfg.ChunkOverlap != 200 {
		t.Errorf("ChunkOverlap = %d, want 200", cfg.ChunkOverlap)
	}
	if cfg.BatchSize != 16 {
		t.Errorf("BatchSize = %d, want 16", cfg.BatchSize)
	}
	if cfg.Workers != 4 {
		t.Errorf("Workers = %d, want 4", cfg.Workers)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", cfg.MaxRetries)
	}
	if cfg.EmbedTimeout != 30*time.Second {
		t.Errorf("EmbedTimeout = %s, want 30s", cfg.EmbedTimeout)
	}
	if cfg.TopK != 4 {
		t.Errorf("TopK = %d, want 4", cfg.TopK)
	}
	if cfg.ContextBudget != 6000 {
		t.Errorf("ContextBudget = %d, want 6000", cfg.ContextBudget)
	}
	if cfg.APIPort != "9000" {
		t.Errorf("APIPort = %q, want 9000", cfg.APIPort)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, want info", cfg.LogLevel)
	}
	if len(cfg.Extensions) == 0 {
		t.Error("Extensions is empty, want defaults")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"chunk size not a number", "CHUNK_SIZE", "abc"},
		{"chunk size zero", "CHUNK_SIZE", "0"},
		{"overlap >= size", "CHUNK_OVERLAP", "1000"},
		{"negative overlap", "CHUNK_OVERLAP", "-1"},
		{"vector size zero", "VECTOR_SIZE", "0"},
		{"batch size zero", "EMBED_BATCH_SIZE", "0"},
		{"workers zero", "EMBED_WORKERS", "0"},
		{"retries zero", "EMBED_MAX_RETRIES", "0"},
		{"negative retries", "EMBED_MAX_RETRIES", "-1"},
		{"bad timeout", "EMBED_TIMEOUT", "soon"},
		{"top k zero", "TOP_K", "0"},
		{"budget zero", "CONTEXT_BUDGET", "0"},
		{"unknown store backend", "STORE_BACKEND", "postgres"},
		{"unknown embedding backend", "EMBEDDING_BACKEND", "cohere"},
		{"unknown log level", "LOG_LEVEL", "verbose"},
		{"unknown log format", "LOG_FORMAT", "xml"},
		{"bad bool", "RETRIEVER_CACHE", "maybe"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tt.key, tt.value)

			if _, err := Load(); !errors.Is(err, domain.ErrInvalidConfiguration) {
				t.Errorf("Load() error = %v, want ErrInvalidConfiguration", err)
			}
		})
	}
}

func TestLoad_SingleRetryIsValid(t *testing.T) {
	setRequired(t)
	t.Setenv("EMBED_MAX_RETRIES", "1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MaxRetries != 1 {
		t.Errorf("MaxRetries = %d, want 1", cfg.MaxRetries)
	}
}

func TestLoad_MissingSourceRoot(t *testing.T) {
	setRequired(t)
	t.Setenv("SOURCE_ROOT", "")

	if _, err := Load(); !errors.Is(err, domain.ErrInvalidConfiguration) {
		t.Errorf("Load() error = %v, want ErrInvalidConfiguration", err)
	}
}

func TestLoad_OpenAIRequiresKey(t *testing.T) {
	setRequired(t)
	t.Setenv("EMBEDDING_BACKEND", EmbedOpenAI)
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OPENAI_BASE_URL", "")

	if _, err := Load(); !errors.Is(err, domain.ErrInvalidConfiguration) {
		t.Errorf("Load() error = %v, want ErrInvalidConfiguration", err)
	}

	// A custom base URL stands in for the key (self-hosted servers).
	t.Setenv("OPENAI_BASE_URL", "http://localhost:8080/v1")
	if _, err := Load(); err != nil {
		t.Errorf("Load() with base URL error = %v", err)
	}
}

func TestLoad_ExtensionsNormalized(t *testing.T) {
	setRequired(t)
	t.Setenv("SOURCE_EXTENSIONS", "MD, sql ,.Yml")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := []string{".md", ".sql", ".yml"}
	if len(cfg.Extensions) != len(want) {
		t.Fatalf("Extensions = %v, want %v", cfg.Extensions, want)
	}
	for i := range want {
		if cfg.Extensions[i] != want[i] {
			t.Errorf("Extensions[%d] = %q, want %q", i, cfg.Extensions[i], want[i])
		}
	}
}
