// Package retriever answers similarity queries against the vector store and
// formats the results for prompt injection.
package retriever

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/avasilev/skillgate/internal/embed"
	"github.com/avasilev/skillgate/internal/model"
	"github.com/avasilev/skillgate/internal/vectorstore"
)

const (
	// DefaultMinSimilarity is the default relevance threshold.
	DefaultMinSimilarity float32 = 0.5
	// DefaultMaxChunks caps how many chunks are handed to the generator,
	// bounding the prompt's context-window budget.
	DefaultMaxChunks = 8
)

// NoContextSentinel is returned by FormatContext when retrieval found nothing.
// The generator's prompt references it explicitly.
const NoContextSentinel = "No relevant information found in the knowledge base."

// Retriever embeds queries and searches the vector store.
type Retriever struct {
	store         vectorstore.Store
	embedder      embed.Embedder
	minSimilarity float32
	maxChunks     int
}

// New creates a Retriever. Non-positive parameters fall back to the defaults.
// The embedder must be the one used at ingestion time so embedding spaces match.
func New(store vectorstore.Store, embedder embed.Embedder, minSimilarity float32, maxChunks int) *Retriever {
	if minSimilarity <= 0 {
		minSimilarity = DefaultMinSimilarity
	}
	if maxChunks <= 0 {
		maxChunks = DefaultMaxChunks
	}
	return &Retriever{
		store:         store,
		embedder:      embedder,
		minSimilarity: minSimilarity,
		maxChunks:     maxChunks,
	}
}

// Retrieve returns up to maxChunks stored chunks relevant to query, most
// similar first. When filterSourceIDs is non-empty, only chunks from those
// source documents are returned. An embedding failure propagates, since there
// is no meaningful partial result for a single query embedding. A store
// failure degrades to an empty result: generation proceeds ungrounded rather
// than crashing.
func (r *Retriever) Retrieve(ctx context.Context, query string, filterSourceIDs []string) ([]model.RetrievedContext, error) {
	queryEmbedding, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	// Over-fetch so that source filtering does not starve the result set
	// below the cap.
	results, err := r.store.Search(ctx, queryEmbedding, r.minSimilarity, 2*r.maxChunks)
	if err != nil {
		slog.Error("similarity search failed, proceeding without grounding", "error", err)
		return nil, nil
	}

	allowed := make(map[string]bool, len(filterSourceIDs))
	for _, id := range filterSourceIDs {
		allowed[id] = true
	}

	var contexts []model.RetrievedContext
	for _, res := range results {
		if len(filterSourceIDs) > 0 && !allowed[res.Metadata.SourceID] {
			continue
		}
		contexts = append(contexts, model.RetrievedContext{
			ID:         res.ID,
			Content:    res.Content,
			Metadata:   res.Metadata,
			Similarity: res.Similarity,
		})
		if len(contexts) == r.maxChunks {
			break
		}
	}

	return contexts, nil
}

// FormatContext renders retrieved chunks as a numbered, relevance-annotated
// block for prompt injection. Zero chunks yield NoContextSentinel, never an
// empty string.
func FormatContext(chunks []model.RetrievedContext) string {
	if len(chunks) == 0 {
		return NoContextSentinel
	}

	var sb strings.Builder
	for i, ch := range chunks {
		fmt.Fprintf(&sb, "[%d] (relevance %.2f) %s\n", i+1, ch.Similarity, ch.Content)
	}
	return strings.TrimRight(sb.String(), "\n")
}
