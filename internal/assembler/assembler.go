// Package assembler builds a prompt-ready context block from retrieval
// results under a rune budget. Chunks are included whole or not at all;
// truncating a chunk mid-sentence costs more answer quality than skipping
// it, so an oversized chunk is skipped and the next candidate considered.
package assembler

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/davidamom/neuralflake/internal/domain"
	"github.com/davidamom/neuralflake/internal/vectorstore"
)

// Citation identifies one chunk included in the assembled context.
type Citation struct {
	ID         string `json:"id"`
	Path       string `json:"path"`
	ChunkIndex int    `json:"chunk_index"`
}

// Result is an assembled context with the citations backing it.
type Result struct {
	Context   string     `json:"context"`
	Citations []Citation `json:"citations"`
}

// separator joins context blocks and counts against the budget.
const separator = "\n\n"

// Assemble walks results in rank order and packs as many whole chunks as fit
// within budget runes, each prefixed with a source header. Results that
// would overflow the budget are skipped, not truncated. Deterministic for
// identical input.
func Assemble(results []vectorstore.Result, budget int) (Result, error) {
	if budget <= 0 {
		return Result{}, fmt.Errorf("%w: context budget must be positive, got %d", domain.ErrInvalidArgument, budget)
	}

	var (
		blocks    []string
		citations []Citation
		used      int
	)
	for _, res := range results {
		block := renderBlock(res.Record)
		cost := utf8.RuneCountInString(block)
		if len(blocks) > 0 {
			cost += len(separator)
		}
		if used+cost > budget {
			continue
		}

		used += cost
		blocks = append(blocks, block)
		citations = append(citations, Citation{
			ID:         res.Record.ID,
			Path:       metaString(res.Record.Meta, vectorstore.MetaPath),
			ChunkIndex: metaInt(res.Record.Meta, vectorstore.MetaChunkIndex),
		})
	}

	return Result{
		Context:   strings.Join(blocks, separator),
		Citations: citations,
	}, nil
}

func renderBlock(rec vectorstore.Record) string {
	path := metaString(rec.Meta, vectorstore.MetaPath)
	index := metaInt(rec.Meta, vectorstore.MetaChunkIndex)
	return fmt.Sprintf("[source: %s#%d]\n%s", path, index, rec.Text)
}

func metaString(meta map[string]any, key string) string {
	s, _ := meta[key].(string)
	return s
}

func metaInt(meta map[string]any, key string) int {
	switch v := meta[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	default:
		return 0
	}
}
