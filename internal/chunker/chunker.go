// Package chunker splits document text into overlapping fixed-size segments
// with positional metadata. Chunk boundaries are measured in runes so that
// multi-byte content chunks consistently with the embedding model's notion
// of characters.
package chunker

import (
	"fmt"

	"github.com/davidamom/neuralflake/internal/domain"
)

// Chunk is a contiguous segment of one document's text.
type Chunk struct {
	// Index is the chunk's sequence number within its document, starting at 0.
	Index int
	// Start is the inclusive rune offset of the chunk in the document text.
	Start int
	// End is the exclusive rune offset of the chunk in the document text.
	End int
	// Text is the chunk content.
	Text string
}

// Chunker produces overlapping fixed-size chunks. It is stateless and safe
// for concurrent use.
type Chunker struct {
	size    int
	overlap int
}

// New creates a Chunker with the given chunk size and overlap, both in runes.
// Fails with domain.ErrInvalidConfiguration unless size > 0 and
// 0 <= overlap < size; an overlap reaching the chunk size would never
// make progress through the text.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", domain.ErrInvalidConfiguration, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: overlap must satisfy 0 <= overlap < size, got overlap %d with size %d", domain.ErrInvalidConfiguration, overlap, size)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Size returns the configured chunk size in runes.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the configured overlap in runes.
func (c *Chunker) Overlap() int { return c.overlap }

// Split produces an ordered sequence of chunks covering text completely.
// Consecutive chunks overlap by exactly the configured overlap; the final
// chunk may be shorter than the chunk size. Empty text yields no chunks.
// Deterministic for identical input and configuration, so re-indexing an
// unchanged document reproduces identical chunk boundaries.
func (c *Chunker) Split(text string) []Chunk {
	if text == "" {
		return nil
	}

	runes := []rune(text)
	stride := c.size - c.overlap

	var chunks []Chunk
	for start, index := 0, 0; start < len(runes); start, index = start+stride, index+1 {
		end := start + c.size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, Chunk{
			Index: index,
			Start: start,
			End:   end,
			Text:  string(runes[start:end]),
		})
		if end == len(runes) {
			break
		}
	}
	return chunks
}
