package ai

import "context"

// Embedder maps text to vectors. Implementations are shared by every
// ingestion worker and the searcher, so they must be safe for concurrent use.
type Embedder interface {
	// EmbedText embeds a search query or other single string.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts embeds a batch of chunk texts. The result has one vector
	// per input, in input order.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// AIProvider owns an Embedder and whatever client state backs it.
type AIProvider interface {
	Embedder() Embedder
	Close() error
}
