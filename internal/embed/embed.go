// Package embed converts text into dense vector representations via an
// external embedding endpoint.
package embed

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// ServiceError indicates the external embedding service failed. Downstream
// retrieval and generation cannot proceed without the vector, so callers must
// treat this as fatal for the operation in progress.
type ServiceError struct {
	Err error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("embedding service: %v", e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Embedder produces a fixed-length vector for a text span. Implementations
// must use the same model for ingestion and queries so embedding spaces match.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Client is an Embedder backed by an OpenAI-compatible embeddings endpoint.
type Client struct {
	api   *openai.Client
	model string
}

// New creates an embedding client. baseURL may point at any OpenAI-compatible
// server; an empty baseURL uses the default endpoint.
func New(baseURL, apiKey, modelName string) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:   openai.NewClientWithConfig(config),
		model: modelName,
	}
}

// Model returns the embedding model name in use.
func (c *Client) Model() string {
	return c.model
}

// Embed returns the embedding vector for text. Newlines are replaced with
// spaces before the call; embedding models treat them as significant and they
// degrade similarity quality.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	cleaned := strings.ReplaceAll(text, "\n", " ")

	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{cleaned},
		Model: openai.EmbeddingModel(c.model),
	})
	if err != nil {
		return nil, &ServiceError{Err: err}
	}
	if len(resp.Data) == 0 {
		return nil, &ServiceError{Err: fmt.Errorf("no embedding returned for input")}
	}

	return resp.Data[0].Embedding, nil
}
