// Package embeddings provides text embedding generation for semantic
// template matching.
package embeddings

import (
	"context"

	chromem "github.com/philippgille/chromem-go"
)

// Embedder defines the interface for generating text embeddings.
type Embedder interface {
	// Embed generates embeddings for one or more texts.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Name returns the name/identifier of the embedding model.
	Name() string
}

// ToChromemFunc adapts an Embedder to chromem-go's embedding function type.
func ToChromemFunc(e Embedder) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		results, err := e.Embed(ctx, []string{text})
		if err != nil {
			return nil, err
		}
		if len(results) == 0 {
			return nil, nil
		}
		return results[0], nil
	}
}
