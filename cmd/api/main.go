package main

import (
	"context"
	"log"
	"log/slog"
	nethttp "net/http"
	"os"

	"github.com/davidamom/neuralflake/internal/chunker"
	"github.com/davidamom/neuralflake/internal/config"
	"github.com/davidamom/neuralflake/internal/embedding"
	"github.com/davidamom/neuralflake/internal/http"
	"github.com/davidamom/neuralflake/internal/indexer"
	"github.com/davidamom/neuralflake/internal/retriever"
	"github.com/davidamom/neuralflake/internal/source"
	"github.com/davidamom/neuralflake/internal/vectorstore"
)

func main() {
	// Load configuration first (needed for log level)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Configure structured logging with configurable level and format
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	slog.Debug("Logging configured", "level", cfg.LogLevel.String(), "format", cfg.LogFormat)

	ctx := context.Background()

	// Embedding provider
	var provider embedding.Provider
	switch cfg.EmbeddingBackend {
	case config.EmbedOpenAI:
		provider = embedding.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.EmbeddingModel, cfg.VectorSize)
	case config.EmbedLocal:
		provider, err = embedding.NewLocal(cfg.VectorSize)
		if err != nil {
			log.Fatalf("Failed to create local embedder: %v", err)
		}
	}
	if provider.Dimension() != cfg.VectorSize {
		log.Fatalf("Embedding vector size mismatch: expected %d, got %d", cfg.VectorSize, provider.Dimension())
	}
	slog.Info("Embedding provider ready", "backend", cfg.EmbeddingBackend, "model", cfg.EmbeddingModel, "vector_size", cfg.VectorSize)

	// Vector store
	var store vectorstore.Store
	switch cfg.StoreBackend {
	case config.StoreSQLite:
		sqlite, err := vectorstore.NewSQLite(cfg.StorePath, cfg.VectorSize)
		if err != nil {
			log.Fatalf("Failed to open SQLite store: %v", err)
		}
		defer func() {
			_ = sqlite.Close()
		}()
		store = sqlite
		slog.Info("SQLite store ready", "path", cfg.StorePath)
	case config.StoreQdrant:
		qdrant, err := vectorstore.NewQdrant(cfg.QdrantURL, cfg.QdrantCollection, cfg.VectorSize)
		if err != nil {
			log.Fatalf("Failed to create Qdrant client: %v", err)
		}
		if err := qdrant.EnsureCollection(ctx); err != nil {
			log.Fatalf("Failed to ensure Qdrant collection: %v", err)
		}
		store = qdrant
		slog.Info("Qdrant collection ready", "collection", cfg.QdrantCollection, "vector_size", cfg.VectorSize)
	case config.StoreMemory:
		memory, err := vectorstore.NewMemory(cfg.VectorSize)
		if err != nil {
			log.Fatalf("Failed to create memory store: %v", err)
		}
		store = memory
		slog.Info("In-memory store ready (state is lost on exit)")
	}

	// Ingest pipeline
	ch, err := chunker.New(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		log.Fatalf("Failed to create chunker: %v", err)
	}
	src := source.NewFS(cfg.Extensions)
	processor := indexer.New(src, ch, provider, store, indexer.Config{
		BatchSize:  cfg.BatchSize,
		Workers:    cfg.Workers,
		MaxRetries: cfg.MaxRetries,
		Timeout:    cfg.EmbedTimeout,
		Backoff:    cfg.RetryBackoff,
	})

	// Retrieval
	ret := retriever.New(provider, store, cfg.RetrieverCache)
	processor.OnMutation(ret.Invalidate)
	slog.Info("Retrieval pipeline initialized", "top_k", cfg.TopK, "cache", cfg.RetrieverCache)

	// Create router with dependencies
	router := http.NewRouter(&http.Deps{
		Logger:        logger,
		Store:         store,
		Retriever:     ret,
		Processor:     processor,
		SourceRoot:    cfg.SourceRoot,
		DefaultTopK:   cfg.TopK,
		DefaultBudget: cfg.ContextBudget,
	})

	// Start indexing in background after router is ready
	if cfg.IngestOnStart {
		go func() {
			slog.Info("Starting background ingest", "root", cfg.SourceRoot)
			report, err := processor.Run(context.Background(), cfg.SourceRoot)
			if err != nil {
				slog.Error("Ingest completed with errors", "error", err)
				return
			}
			slog.Info("Ingest completed",
				"processed", report.DocsProcessed,
				"failed", report.DocsFailed,
				"chunks", report.ChunksWritten)
		}()
	}

	// Start API server
	addr := ":" + cfg.APIPort
	slog.Info("Starting API server", "addr", addr)
	if err := nethttp.ListenAndServe(addr, router); err != nil {
		log.Fatalf("API server failed to start: %v", err)
	}
}
