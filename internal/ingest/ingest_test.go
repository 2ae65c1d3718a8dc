package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/avasilev/skillgate/internal/model"
	"github.com/avasilev/skillgate/internal/vectorstore"
)

// fakeEmbedder returns a deterministic vector per text and can be told to
// fail for specific inputs.
type fakeEmbedder struct {
	mu      sync.Mutex
	calls   int
	failFor map[string]bool
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.failFor[text] {
		return nil, errors.New("embedding unavailable")
	}
	return []float32{float32(len(text)), 1, 0}, nil
}

// fakeStore records upserted batches and can fail on demand.
type fakeStore struct {
	mu      sync.Mutex
	batches [][]vectorstore.Document
	failAll bool
}

func (f *fakeStore) Upsert(_ context.Context, docs []vectorstore.Document) error {
	if f.failAll {
		return errors.New("store unavailable")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, docs)
	return nil
}

func (f *fakeStore) Search(context.Context, []float32, float32, int) ([]vectorstore.Result, error) {
	return nil, nil
}

func makeChunks(n int) []model.Chunk {
	chunks := make([]model.Chunk, n)
	for i := range chunks {
		chunks[i] = model.Chunk{
			ID:      fmt.Sprintf("doc-%d", i),
			Content: fmt.Sprintf("chunk content %d", i),
			Metadata: model.ChunkMetadata{
				ChunkIndex: i,
				SourceID:   "doc",
			},
		}
	}
	return chunks
}

func TestIngestBatching(t *testing.T) {
	embedder := &fakeEmbedder{}
	store := &fakeStore{}
	ing := New(embedder, store, 10)

	result := ing.Ingest(context.Background(), makeChunks(25))
	if !result.Success() {
		t.Fatalf("expected success, got errors: %v", result.Errors)
	}
	if result.ChunksIngested != 25 {
		t.Errorf("expected 25 chunks ingested, got %d", result.ChunksIngested)
	}
	if embedder.calls != 25 {
		t.Errorf("expected 25 embedding calls, got %d", embedder.calls)
	}

	// 25 chunks at batch size 10 means one upsert per batch: 10, 10, 5.
	if len(store.batches) != 3 {
		t.Fatalf("expected 3 upsert batches, got %d", len(store.batches))
	}
	sizes := []int{len(store.batches[0]), len(store.batches[1]), len(store.batches[2])}
	if sizes[0] != 10 || sizes[1] != 10 || sizes[2] != 5 {
		t.Errorf("unexpected batch sizes %v", sizes)
	}

	// Order within a batch must match chunk order despite concurrent embedding.
	for i, d := range store.batches[0] {
		if d.ID != fmt.Sprintf("doc-%d", i) {
			t.Errorf("batch 0 position %d has id %q", i, d.ID)
		}
		if len(d.Embedding) == 0 {
			t.Errorf("document %q missing embedding", d.ID)
		}
	}
}

func TestIngestContinuesPastFailedBatch(t *testing.T) {
	// Chunk 3 lives in the first batch of 5; its failure must not block the
	// remaining batches.
	embedder := &fakeEmbedder{failFor: map[string]bool{"chunk content 3": true}}
	store := &fakeStore{}
	ing := New(embedder, store, 5)

	result := ing.Ingest(context.Background(), makeChunks(15))
	if result.Success() {
		t.Fatal("expected failure result")
	}
	if len(result.Errors) != 1 {
		t.Fatalf("expected 1 batch error, got %d: %v", len(result.Errors), result.Errors)
	}
	if result.ChunksIngested != 10 {
		t.Errorf("expected 10 chunks from the surviving batches, got %d", result.ChunksIngested)
	}
	if len(store.batches) != 2 {
		t.Errorf("expected 2 successful upserts, got %d", len(store.batches))
	}
}

func TestIngestStoreFailure(t *testing.T) {
	embedder := &fakeEmbedder{}
	store := &fakeStore{failAll: true}
	ing := New(embedder, store, 10)

	result := ing.Ingest(context.Background(), makeChunks(12))
	if result.Success() {
		t.Fatal("expected failure result")
	}
	if len(result.Errors) != 2 {
		t.Errorf("expected one error per batch, got %d", len(result.Errors))
	}
	if result.ChunksIngested != 0 {
		t.Errorf("expected 0 chunks ingested, got %d", result.ChunksIngested)
	}
}

func TestIngestEmpty(t *testing.T) {
	ing := New(&fakeEmbedder{}, &fakeStore{}, 0)
	result := ing.Ingest(context.Background(), nil)
	if !result.Success() || result.ChunksIngested != 0 {
		t.Errorf("unexpected result for empty input: %+v", result)
	}
}
