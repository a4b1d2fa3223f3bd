// Package embedding turns text into dense vectors for the semantic
// search leg.
package embedding

import (
	"context"

	openai "github.com/sashabaranov/go-openai"

	"github.com/pkg/errors"
)

// Embedder produces a query embedding. Implementations must be safe
// for concurrent use.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Service is the OpenAI-compatible embedding client.
type Service struct {
	client *openai.Client
	model  string
}

// NewService creates an embedding client. endpoint may be empty for the
// default API host.
func NewService(endpoint, apiKey, model string) *Service {
	config := openai.DefaultConfig(apiKey)
	if endpoint != "" {
		config.BaseURL = endpoint
	}
	return &Service{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}
}

// Embed returns the embedding of a single text.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := s.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(s.model),
	})
	if err != nil {
		return nil, errors.Wrap(err, "create embedding")
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("embedding response empty")
	}
	return resp.Data[0].Embedding, nil
}
