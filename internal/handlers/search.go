package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/davidamom/neuralflake/internal/contextutil"
	"github.com/davidamom/neuralflake/internal/retriever"
	"github.com/davidamom/neuralflake/internal/vectorstore"
)

// SearchHandler answers similarity queries with ranked chunks.
type SearchHandler struct {
	retriever *retriever.Retriever
	defaultK  int
}

// NewSearchHandler creates a new SearchHandler. defaultK applies when the
// request leaves k unset.
func NewSearchHandler(retriever *retriever.Retriever, defaultK int) *SearchHandler {
	return &SearchHandler{retriever: retriever, defaultK: defaultK}
}

// SearchRequest is the search payload.
type SearchRequest struct {
	Query string `json:"query"`
	K     int    `json:"k,omitempty"`
}

// SearchResult is one ranked chunk in the search response.
type SearchResult struct {
	ID         string   `json:"id"`
	Path       string   `json:"path"`
	ChunkIndex int      `json:"chunk_index"`
	Title      string   `json:"title,omitempty"`
	Models     []string `json:"dbt_models,omitempty"`
	Score      float32  `json:"score"`
	Text       string   `json:"text"`
}

// SearchResponse is the search response payload.
type SearchResponse struct {
	Results []SearchResult `json:"results"`
}

func (h *SearchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req SearchRequest
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

	results, err := h.retriever.Retrieve(ctx, req.Query, req.K)
	if err != nil {
		logger.ErrorContext(ctx, "search failed", "error", err)
		writeError(w, statusFromError(err), "search failed")
		return
	}

	resp := SearchResponse{Results: make([]SearchResult, len(results))}
	for i, res := range results {
		resp.Results[i] = toSearchResult(res)
	}
	writeJSON(w, http.StatusOK, resp)
}

func toSearchResult(res vectorstore.Result) SearchResult {
	out := SearchResult{
		ID:    res.Record.ID,
		Score: res.Score,
		Text:  res.Record.Text,
	}
	if meta := res.Record.Meta; meta != nil {
		out.Path, _ = meta[vectorstore.MetaPath].(string)
		out.Title, _ = meta[vectorstore.MetaTitle].(string)
		out.Models, _ = meta[vectorstore.MetaModels].([]string)
		switch v := meta[vectorstore.MetaChunkIndex].(type) {
		case int:
			out.ChunkIndex = v
		case int64:
			out.ChunkIndex = int(v)
		}
	}
	return out
}
