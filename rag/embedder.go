package rag

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"videoqa/core"
)

const embedBatchSize = 20

// EmbeddingClient is the slice of the OpenAI client the embedder needs.
type EmbeddingClient interface {
	CreateEmbeddings(ctx context.Context, req openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// Embedder turns text into vectors in bounded batches. A batch that fails
// after the provider call yields zero vectors so chunk ordinals stay aligned
// with the store; those chunks simply never match a query.
type Embedder struct {
	client EmbeddingClient
	model  openai.EmbeddingModel
	dim    int
	logger *zap.Logger
}

func NewEmbedder(client EmbeddingClient, model string, dim int, logger *zap.Logger) *Embedder {
	return &Embedder{client: client, model: openai.EmbeddingModel(model), dim: dim, logger: logger}
}

// EmbedTexts embeds every input, positionally.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) [][]float32 {
	out := make([][]float32, len(texts))
	for off := 0; off < len(texts); off += embedBatchSize {
		hi := off + embedBatchSize
		if hi > len(texts) {
			hi = len(texts)
		}
		batch := texts[off:hi]
		resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: batch,
			Model: e.model,
		})
		if err != nil || len(resp.Data) != len(batch) {
			e.logger.Warn("embedding batch failed, inserting placeholders",
				zap.Int("offset", off),
				zap.Int("size", len(batch)),
				zap.Error(err))
			for i := range batch {
				out[off+i] = make([]float32, e.dim)
			}
			continue
		}
		for i, d := range resp.Data {
			out[off+i] = d.Embedding
		}
	}
	return out
}

// EmbedQuery embeds a single question. Unlike chunk embedding there is no
// placeholder to hide behind, so failure is surfaced.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: e.model,
	})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", errors.Join(core.ErrRemoteService, err))
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embed query: empty response: %w", core.ErrRemoteService)
	}
	return resp.Data[0].Embedding, nil
}
