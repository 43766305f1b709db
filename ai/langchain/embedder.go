// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package langchain

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/kbingest/ai"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Embedder implements ai.Embedder with dimension checking and timing logs.
type Embedder struct {
	embedder  embeddings.Embedder
	model     string
	dimension int
	logger    *slog.Logger
}

var _ ai.Embedder = (*Embedder)(nil)

func newEmbedder(config *ai.Config, logger *slog.Logger) (*Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := newClient(config)
	if err != nil {
		return nil, err
	}
	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("create %s embedder: %w", config.Provider, err)
	}

	return &Embedder{
		embedder:  embedder,
		model:     config.EmbeddingModel,
		dimension: config.Dimensions,
		logger:    logger.With("component", "embedder", "provider", config.Provider, "model", config.EmbeddingModel),
	}, nil
}

func newClient(config *ai.Config) (embeddings.EmbedderClient, error) {
	switch config.Provider {
	case ai.ProviderOllama:
		client, err := ollama.New(
			ollama.WithModel(config.EmbeddingModel),
			ollama.WithServerURL(config.EmbeddingHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama client: %w", err)
		}
		return client, nil
	default:
		client, err := openai.New(
			openai.WithBaseURL(config.EmbeddingHost),
			openai.WithToken(config.APIKey),
			openai.WithEmbeddingModel(config.EmbeddingModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai client: %w", err)
		}
		return client, nil
	}
}

// NewEmbedder builds a standalone embedder for config.
func NewEmbedder(config *ai.Config) (ai.Embedder, error) {
	return newEmbedder(config, slog.Default())
}

// Model returns the configured model name.
func (e *Embedder) Model() string {
	return e.model
}

// Dimension returns the expected vector length, or 0 when unchecked.
func (e *Embedder) Dimension() int {
	return e.dimension
}

func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	return e.embed(ctx, texts)
}

func (e *Embedder) embed(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	elapsed := time.Since(start)
	if err != nil {
		e.logger.Warn("embedding failed", "count", len(texts), "duration_ms", elapsed.Milliseconds(), "err", err)
		return nil, fmt.Errorf("embed %d texts with %s: %w", len(texts), e.model, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedding model %s returned %d vectors for %d texts", e.model, len(vectors), len(texts))
	}
	if e.dimension > 0 {
		for i, v := range vectors {
			if len(v) != e.dimension {
				return nil, fmt.Errorf("%w: text %d got %d, want %d", ai.ErrDimensionMismatch, i, len(v), e.dimension)
			}
		}
	}

	e.logger.Debug("embedded texts", "count", len(texts), "duration_ms", elapsed.Milliseconds())
	return vectors, nil
}
