package llm

import (
	"context"
	"fmt"

	"github.com/duyhunghd6/movierec/internal/logging"
)

// Embedder generates embedding vectors for movie texts via an embeddings API.
type Embedder struct {
	client    *Client
	model     string
	batchSize int
}

// NewEmbedder creates a new embedder using the given client.
func NewEmbedder(client *Client, embeddingModel string, batchSize int) *Embedder {
	if embeddingModel == "" {
		embeddingModel = DefaultEmbeddingModel
	}
	if batchSize <= 0 {
		batchSize = 32
	}
	return &Embedder{
		client:    client,
		model:     embeddingModel,
		batchSize: batchSize,
	}
}

// Model returns the embedding model name. Vectors from different models are
// not comparable.
func (e *Embedder) Model() string {
	return e.model
}

// EmbedTexts generates embeddings for a list of texts, batching as needed.
// Every text must come back with a vector; a missing one is an error.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	log := logging.With("embedder")
	allEmbeddings := make([][]float32, len(texts))

	for start := 0; start < len(texts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		embeddings, err := e.client.Embed(ctx, batch, e.model)
		if err != nil {
			return nil, fmt.Errorf("embed batch [%d:%d]: %w", start, end, err)
		}

		for i, emb := range embeddings {
			if emb == nil {
				return nil, fmt.Errorf("embed batch [%d:%d]: no vector for input %d", start, end, start+i)
			}
			allEmbeddings[start+i] = emb
		}

		if end < len(texts) {
			log.Debug().Int("done", end).Int("total", len(texts)).Msg("embedded batch")
		}
	}

	return allEmbeddings, nil
}
