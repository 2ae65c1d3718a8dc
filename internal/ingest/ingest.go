// Package ingest embeds chunks and persists them to the vector store in
// bounded batches.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/avasilev/skillgate/internal/embed"
	"github.com/avasilev/skillgate/internal/model"
	"github.com/avasilev/skillgate/internal/vectorstore"
)

// DefaultBatchSize bounds concurrent embedding calls and keeps upsert
// payloads within request-size limits.
const DefaultBatchSize = 10

// Result reports the outcome of one ingestion run. Ingestion is best-effort
// per batch: Errors holds one entry per failed batch, and Success is true
// only when every batch landed.
type Result struct {
	ChunksIngested int
	Errors         []error
}

// Success reports whether all batches were ingested.
func (r Result) Success() bool {
	return len(r.Errors) == 0
}

// Ingestor embeds chunks and upserts them into a vector store.
type Ingestor struct {
	embedder  embed.Embedder
	store     vectorstore.Store
	batchSize int
}

// New creates an Ingestor. A non-positive batchSize falls back to
// DefaultBatchSize.
func New(embedder embed.Embedder, store vectorstore.Store, batchSize int) *Ingestor {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Ingestor{embedder: embedder, store: store, batchSize: batchSize}
}

// Ingest embeds and stores chunks batch by batch. Within a batch, embedding
// calls fan out concurrently and are joined before a single upsert. A failed
// batch is recorded and does not stop subsequent batches, so one bad chunk
// cannot block indexing the rest of a large document.
func (ing *Ingestor) Ingest(ctx context.Context, chunks []model.Chunk) Result {
	var result Result

	for start := 0; start < len(chunks); start += ing.batchSize {
		end := start + ing.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		docs, err := ing.embedBatch(ctx, batch)
		if err != nil {
			slog.Error("batch embedding failed", "batch_start", start, "size", len(batch), "error", err)
			result.Errors = append(result.Errors, fmt.Errorf("embed batch at %d: %w", start, err))
			continue
		}

		if err := ing.store.Upsert(ctx, docs); err != nil {
			slog.Error("batch upsert failed", "batch_start", start, "size", len(batch), "error", err)
			result.Errors = append(result.Errors, fmt.Errorf("upsert batch at %d: %w", start, err))
			continue
		}

		result.ChunksIngested += len(batch)
	}

	return result
}

// embedBatch embeds all chunks of one batch concurrently. Any single failure
// fails the whole batch; total latency is bounded by the slowest call rather
// than the sum.
func (ing *Ingestor) embedBatch(ctx context.Context, batch []model.Chunk) ([]vectorstore.Document, error) {
	docs := make([]vectorstore.Document, len(batch))
	errs := make([]error, len(batch))

	var wg sync.WaitGroup
	for i, chunk := range batch {
		wg.Add(1)
		go func(i int, chunk model.Chunk) {
			defer wg.Done()
			embedding, err := ing.embedder.Embed(ctx, chunk.Content)
			if err != nil {
				errs[i] = err
				return
			}
			docs[i] = vectorstore.Document{
				ID:        chunk.ID,
				Content:   chunk.Content,
				Metadata:  chunk.Metadata,
				Embedding: embedding,
			}
		}(i, chunk)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return docs, nil
}
