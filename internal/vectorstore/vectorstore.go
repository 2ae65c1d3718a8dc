// Package vectorstore persists embedded chunks and serves similarity queries.
package vectorstore

import (
	"context"
	"fmt"
	"runtime"
	"strconv"

	chromem "github.com/philippgille/chromem-go"

	"github.com/avasilev/skillgate/internal/model"
)

// Document is a chunk plus its embedding, as stored in the vector database.
type Document struct {
	ID        string
	Content   string
	Metadata  model.ChunkMetadata
	Embedding []float32
}

// Result is a stored document returned by a similarity search.
type Result struct {
	ID         string
	Content    string
	Metadata   model.ChunkMetadata
	Similarity float32
}

// Store defines the vector database operations the pipeline needs. Upsert is
// idempotent per document id; Search applies the similarity threshold before
// returning.
type Store interface {
	Upsert(ctx context.Context, docs []Document) error
	Search(ctx context.Context, queryEmbedding []float32, minSimilarity float32, limit int) ([]Result, error)
}

// ChromemStore is a Store backed by an embedded chromem-go database,
// persistent on disk or purely in-memory.
type ChromemStore struct {
	db         *chromem.DB
	collection *chromem.Collection
}

// NewChromem opens (or creates) a chromem database at path and the named
// collection inside it. An empty path creates an in-memory store.
func NewChromem(path, collectionName string) (*ChromemStore, error) {
	var db *chromem.DB
	var err error
	if path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("open vector database: %w", err)
		}
	}

	collection, err := db.GetOrCreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("get or create collection %q: %w", collectionName, err)
	}

	return &ChromemStore{db: db, collection: collection}, nil
}

// Upsert writes documents into the collection. Documents with an existing id
// are replaced, which makes re-ingestion of stable-id chunks safe.
func (s *ChromemStore) Upsert(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	chromemDocs := make([]chromem.Document, len(docs))
	for i, doc := range docs {
		chromemDocs[i] = chromem.Document{
			ID:        doc.ID,
			Content:   doc.Content,
			Metadata:  encodeMetadata(doc.Metadata),
			Embedding: doc.Embedding,
		}
	}

	if err := s.collection.AddDocuments(ctx, chromemDocs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("upsert %d documents: %w", len(docs), err)
	}
	return nil
}

// Search returns up to limit documents with similarity >= minSimilarity,
// most similar first.
func (s *ChromemStore) Search(ctx context.Context, queryEmbedding []float32, minSimilarity float32, limit int) ([]Result, error) {
	if limit <= 0 {
		return nil, nil
	}
	// chromem rejects queries asking for more results than stored documents.
	if count := s.collection.Count(); count < limit {
		limit = count
	}
	if limit == 0 {
		return nil, nil
	}

	found, err := s.collection.QueryWithOptions(ctx, chromem.QueryOptions{
		QueryEmbedding: queryEmbedding,
		NResults:       limit,
	})
	if err != nil {
		return nil, fmt.Errorf("similarity query: %w", err)
	}

	var results []Result
	for _, r := range found {
		if r.Similarity < minSimilarity {
			continue
		}
		results = append(results, Result{
			ID:         r.ID,
			Content:    r.Content,
			Metadata:   decodeMetadata(r.Metadata),
			Similarity: r.Similarity,
		})
	}
	return results, nil
}

func encodeMetadata(m model.ChunkMetadata) map[string]string {
	meta := map[string]string{
		"chunk_index": strconv.Itoa(m.ChunkIndex),
		"token_count": strconv.Itoa(m.TokenCount),
	}
	if m.SourceID != "" {
		meta["source_id"] = m.SourceID
	}
	if m.Filename != "" {
		meta["filename"] = m.Filename
	}
	return meta
}

func decodeMetadata(meta map[string]string) model.ChunkMetadata {
	chunkIndex, _ := strconv.Atoi(meta["chunk_index"])
	tokenCount, _ := strconv.Atoi(meta["token_count"])
	return model.ChunkMetadata{
		ChunkIndex: chunkIndex,
		TokenCount: tokenCount,
		SourceID:   meta["source_id"],
		Filename:   meta["filename"],
	}
}
