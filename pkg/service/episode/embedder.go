package episode

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/secmon-lab/pippin/pkg/domain/interfaces"
	"github.com/secmon-lab/pippin/pkg/domain/model"
)

// llmEmbedder adapts a gollem LLM client to the Embedder interface
type llmEmbedder struct {
	client gollem.LLMClient
}

// NewLLMEmbedder wraps a gollem client as an Embedder. Returns nil for
// a nil client so callers can pass the result straight to WithEmbedder.
func NewLLMEmbedder(client gollem.LLMClient) interfaces.Embedder {
	if client == nil {
		return nil
	}
	return &llmEmbedder{client: client}
}

func (e *llmEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.client.GenerateEmbedding(ctx, model.EmbeddingDimension, []string{text})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to generate embedding")
	}

	if len(embeddings) == 0 {
		return nil, goerr.New("no embedding returned")
	}

	result := make([]float32, len(embeddings[0]))
	for i, v := range embeddings[0] {
		result[i] = float32(v)
	}

	return result, nil
}
