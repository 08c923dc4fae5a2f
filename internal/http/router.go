// Package http wires the API surface: routing, request logging, panic
// recovery, and CORS.
package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/davidamom/neuralflake/internal/handlers"
	"github.com/davidamom/neuralflake/internal/indexer"
	"github.com/davidamom/neuralflake/internal/retriever"
	"github.com/davidamom/neuralflake/internal/vectorstore"
)

// Deps holds dependencies for the HTTP router.
type Deps struct {
	Logger        *slog.Logger
	Store         vectorstore.Store
	Retriever     *retriever.Retriever
	Processor     *indexer.Processor
	SourceRoot    string
	DefaultTopK   int
	DefaultBudget int
}

// NewRouter creates the API router with the provided dependencies.
func NewRouter(deps *Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(logger))
	r.Use(CORS)

	r.Method(http.MethodGet, "/healthz", handlers.NewHealthHandler(deps.Store))

	r.Route("/api/v1", func(r chi.Router) {
		r.Method(http.MethodPost, "/ingest", handlers.NewIngestHandler(deps.Processor, deps.SourceRoot))
		r.Method(http.MethodPost, "/search", handlers.NewSearchHandler(deps.Retriever, deps.DefaultTopK))
		r.Method(http.MethodPost, "/context", handlers.NewContextHandler(deps.Retriever, deps.DefaultTopK, deps.DefaultBudget))
	})

	return r
}
