package handlers

import (
	"net/http"

	"github.com/davidamom/neuralflake/internal/contextutil"
	"github.com/davidamom/neuralflake/internal/vectorstore"
)

// HealthHandler reports service liveness and the store's record count.
type HealthHandler struct {
	store vectorstore.Store
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(store vectorstore.Store) *HealthHandler {
	return &HealthHandler{store: store}
}

// HealthResponse is the health check payload.
type HealthResponse struct {
	Status  string `json:"status"`
	Records int    `json:"records"`
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	count, err := h.store.Count(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "health check failed", "error", err)
		writeError(w, statusFromError(err), "vector store unavailable")
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Records: count})
}
