package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/davidamom/neuralflake/internal/assembler"
	"github.com/davidamom/neuralflake/internal/contextutil"
	"github.com/davidamom/neuralflake/internal/retriever"
)

// ContextHandler retrieves chunks for a query and assembles them into a
// prompt-ready context block with citations.
type ContextHandler struct {
	retriever     *retriever.Retriever
	defaultK      int
	defaultBudget int
}

// NewContextHandler creates a new ContextHandler. Defaults apply when the
// request leaves k or budget unset.
func NewContextHandler(retriever *retriever.Retriever, defaultK, defaultBudget int) *ContextHandler {
	return &ContextHandler{retriever: retriever, defaultK: defaultK, defaultBudget: defaultBudget}
}

// ContextRequest is the context assembly payload.
type ContextRequest struct {
	Query  string `json:"query"`
	K      int    `json:"k,omitempty"`
	Budget int    `json:"budget,omitempty"`
}

func (h *ContextHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req ContextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	if req.K == 0 {
		req.K = h.defaultK
	}
	if req.Budget == 0 {
		req.Budget = h.defaultBudget
	}

	results, err := h.retriever.Retrieve(ctx, req.Query, req.K)
	if err != nil {
		logger.ErrorContext(ctx, "retrieval failed", "error", err)
		writeError(w, statusFromError(err), "retrieval failed")
		return
	}

	assembled, err := assembler.Assemble(results, req.Budget)
	if err != nil {
		logger.WarnContext(ctx, "context assembly failed", "error", err)
		writeError(w, statusFromError(err), "context assembly failed")
		return
	}

	writeJSON(w, http.StatusOK, assembled)
}
