// Package chunker splits raw document text into overlapping fixed-size
// segments suitable for embedding and similarity retrieval.
package chunker

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/avasilev/skillgate/internal/model"
)

// charsPerToken is the character-to-token conversion used to approximate
// token budgets without a tokenizer.
const charsPerToken = 4

const (
	// DefaultChunkSize is the default window size in tokens.
	DefaultChunkSize = 512
	// DefaultChunkOverlap is the default overlap between consecutive chunks in tokens.
	DefaultChunkOverlap = 50
)

// Chunker produces overlapping chunks from normalized text. The zero value is
// not usable; create one with New.
type Chunker struct {
	chunkSize    int // tokens
	chunkOverlap int // tokens
}

// New creates a Chunker with the given window and overlap sizes in tokens.
// Non-positive sizes fall back to the defaults. The overlap is clamped below
// the window size so the walk always makes forward progress.
func New(chunkSize, chunkOverlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 {
		chunkOverlap = DefaultChunkOverlap
	}
	if chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 4
	}
	return &Chunker{chunkSize: chunkSize, chunkOverlap: chunkOverlap}
}

// Chunk splits text into overlapping chunks. Empty or whitespace-only text
// yields no chunks; text shorter than one window yields exactly one chunk.
// Chunk boundaries back off to the nearest preceding space so words are not
// split. Boundaries and metadata are deterministic for a fixed input and
// configuration.
func (c *Chunker) Chunk(text, sourceID, filename string) []model.Chunk {
	normalized := normalizeWhitespace(text)
	if normalized == "" {
		return nil
	}

	windowChars := c.chunkSize * charsPerToken
	overlapChars := c.chunkOverlap * charsPerToken

	var chunks []model.Chunk
	start := 0
	for start < len(normalized) {
		end := start + windowChars
		if end >= len(normalized) {
			end = len(normalized)
		} else if idx := strings.LastIndex(normalized[start:end], " "); idx > 0 {
			// Avoid splitting mid-word.
			end = start + idx
		}

		content := strings.TrimSpace(normalized[start:end])
		if content != "" {
			chunks = append(chunks, model.Chunk{
				ID:      chunkID(sourceID, len(chunks)),
				Content: content,
				Metadata: model.ChunkMetadata{
					ChunkIndex: len(chunks),
					TokenCount: approxTokens(content),
					SourceID:   sourceID,
					Filename:   filename,
				},
			})
		}

		if end == len(normalized) {
			break
		}
		next := end - overlapChars
		if next <= start {
			// The space backoff shrank the window below the overlap span.
			next = end
		}
		start = next
	}

	return chunks
}

// chunkID derives a stable id from the source and ordinal when a source id is
// known, so re-ingesting the same document upserts instead of duplicating.
// Anonymous text gets a random id.
func chunkID(sourceID string, index int) string {
	if sourceID == "" {
		return uuid.NewString()
	}
	return fmt.Sprintf("%s-%d", sourceID, index)
}

func normalizeWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func approxTokens(content string) int {
	return (len(content) + charsPerToken - 1) / charsPerToken
}
