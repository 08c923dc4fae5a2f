package handlers

import (
	"net/http"

	"github.com/davidamom/neuralflake/internal/contextutil"
	"github.com/davidamom/neuralflake/internal/indexer"
)

// IngestHandler triggers a synchronous ingest run over the configured
// source root and returns the run report.
type IngestHandler struct {
	processor *indexer.Processor
	root      string
}

// NewIngestHandler creates a new IngestHandler.
func NewIngestHandler(processor *indexer.Processor, root string) *IngestHandler {
	return &IngestHandler{processor: processor, root: root}
}

func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	report, err := h.processor.Run(ctx, h.root)
	if err != nil {
		logger.ErrorContext(ctx, "ingest run failed", "error", err)
		writeError(w, statusFromError(err), "ingest failed")
		return
	}

	writeJSON(w, http.StatusOK, report)
}
