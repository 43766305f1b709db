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

package search

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/poiesic/kbingest/ai"
	"github.com/poiesic/kbingest/core"
	"github.com/poiesic/kbingest/storage"
)

// candidateFactor widens the similarity search so the keyword boost can
// promote chunks ranked just below the cut.
const candidateFactor = 3

// Searcher finds chunks similar to a text query.
type Searcher struct {
	chunks   storage.ChunkStore
	embedder ai.Embedder
	minScore float32
	logger   *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithMinScore drops chunks whose similarity is below score.
// Default is 0, which keeps every candidate.
func WithMinScore(score float32) Option {
	return func(s *Searcher) error {
		s.minScore = score
		return nil
	}
}

// NewSearcher creates a new searcher.
func NewSearcher(chunks storage.ChunkStore, embedder ai.Embedder, opts ...Option) (*Searcher, error) {
	if chunks == nil {
		return nil, ErrChunkStoreRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	s := &Searcher{
		chunks:   chunks,
		embedder: embedder,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// FindSimilar returns up to maxHits chunks ranked by relevance to query.
// When sources are given, only chunks of those sources are returned.
func (s *Searcher) FindSimilar(ctx context.Context, query string, maxHits int, sources ...core.ID) ([]*core.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if maxHits <= 0 {
		return nil, fmt.Errorf("%w: maxHits must be positive, got %d", storage.ErrInvalidQuery, maxHits)
	}

	embedding, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		s.logger.Error("error generating embedding for query", "query", query, "err", err)
		return nil, err
	}

	candidates, err := s.chunks.SearchByEmbedding(ctx, ai.NormalizeVector(embedding), maxHits*candidateFactor)
	if err != nil {
		s.logger.Error("error querying for similar chunks", "err", err)
		return nil, err
	}

	terms := keywords(query)
	results := make([]*core.SearchResult, 0, len(candidates))
	for _, candidate := range candidates {
		if candidate.Score < s.minScore {
			continue
		}
		if len(sources) > 0 && !slices.Contains(sources, candidate.Chunk.SourceId) {
			continue
		}
		score := candidate.Score
		if containsAllKeywords(candidate.Chunk.Text, terms) {
			score += verbatimBoost
		}
		results = append(results, &core.SearchResult{Chunk: candidate.Chunk, Score: score})
	}

	// Sort by score descending
	slices.SortStableFunc(results, func(a, b *core.SearchResult) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})
	if len(results) > maxHits {
		results = results[:maxHits]
	}

	s.logger.Debug("search finished", "query", query, "candidates", len(candidates), "results", len(results))
	return results, nil
}
