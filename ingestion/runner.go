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

package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/poiesic/kbingest/ai"
	"github.com/poiesic/kbingest/chunker"
	"github.com/poiesic/kbingest/core"
	"github.com/poiesic/kbingest/extract"
	"github.com/poiesic/kbingest/storage"
)

// runner executes one ingestion job: extract, chunk, embed, store.
type runner struct {
	registry   storage.SourceRegistry
	chunks     storage.ChunkStore
	extractors *extract.Registry
	chunker    *chunker.Chunker
	embedder   ai.Embedder
	post       []PostProcessor
	batchSize  int
	retry      RetryPolicy
	metrics    *Metrics
	now        func() time.Time
	logger     *slog.Logger
}

type runResult struct {
	chunkCount  int
	features    []string
	contentHash string
}

// run drives a job to a terminal status. Only the registry's Update is used
// to change the source, so every write is a checked transition.
func (r *runner) run(ctx context.Context, job Job) error {
	logger := r.logger.With("source", job.SourceID, "mode", job.Mode.String(), "run", job.RunID)

	src, err := r.registry.Update(ctx, job.SourceID, func(s *core.KnowledgeSource) error {
		return s.Start(r.now())
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			logger.Info("source removed before its job started")
			return nil
		}
		logger.Warn("could not start ingestion", "err", err)
		return err
	}

	if r.metrics != nil {
		r.metrics.JobsInFlight.Inc()
		defer r.metrics.JobsInFlight.Dec()
	}
	logger.Info("ingestion started", "path", src.SourcePath)

	result, runErr := r.execute(ctx, logger, job, src)
	if runErr != nil {
		if ctx.Err() != nil {
			// Shutdown: the next start marks the source as interrupted.
			logger.Warn("ingestion aborted", "err", runErr)
			return runErr
		}
		message := failureMessage(src, runErr)
		_, err := r.registry.Update(ctx, job.SourceID, func(s *core.KnowledgeSource) error {
			return s.Fail(message)
		})
		if err != nil {
			logger.Error("failed to record ingestion failure", "err", err)
		}
		r.finished(core.StatusFailed)
		logger.Warn("ingestion failed", "err", runErr)
		return runErr
	}

	_, err = r.registry.Update(ctx, job.SourceID, func(s *core.KnowledgeSource) error {
		s.ContentHash = result.contentHash
		return s.Complete(r.now(), result.chunkCount, result.features)
	})
	if err != nil {
		logger.Error("failed to record ingestion result", "err", err)
		return err
	}
	r.finished(core.StatusCompleted)
	if r.metrics != nil {
		r.metrics.ChunksIngested.Add(float64(result.chunkCount))
	}
	logger.Info("ingestion completed", "chunks", result.chunkCount, "features", result.features)
	return nil
}

func (r *runner) execute(ctx context.Context, logger *slog.Logger, job Job, src *core.KnowledgeSource) (*runResult, error) {
	stageStart := time.Now()
	doc, err := r.extractors.Extract(ctx, src.SourcePath)
	if err != nil {
		return nil, err
	}
	if doc.IsEmpty() {
		return nil, extract.ErrNoText
	}
	r.observe(core.StepExtracting, stageStart)

	if err := r.advance(ctx, job.SourceID, core.StepChunking, core.ProgressChunking); err != nil {
		return nil, err
	}
	stageStart = time.Now()
	chunks, err := r.chunker.Split(doc)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, extract.ErrNoText
	}
	for _, chunk := range chunks {
		chunk.SourceId = job.SourceID
	}
	r.observe(core.StepChunking, stageStart)
	logger.Debug("document chunked", "pages", len(doc.Pages), "chunks", len(chunks))

	if err := r.advance(ctx, job.SourceID, core.StepEmbedding, core.ProgressEmbedding); err != nil {
		return nil, err
	}
	stageStart = time.Now()
	if err := r.embed(ctx, logger, chunks); err != nil {
		return nil, err
	}
	r.observe(core.StepEmbedding, stageStart)

	if err := r.advance(ctx, job.SourceID, core.StepStoring, core.ProgressStoring); err != nil {
		return nil, err
	}
	stageStart = time.Now()
	if job.Mode == core.ModeRefresh {
		err = r.chunks.ReplaceAll(ctx, job.SourceID, chunks)
	} else {
		err = r.chunks.Upsert(ctx, job.SourceID, chunks)
	}
	if err != nil {
		return nil, fmt.Errorf("store chunks: %w", err)
	}
	r.observe(core.StepStoring, stageStart)

	features := []string{core.FeatureIndexed}
	for _, p := range r.post {
		if err := p.Process(ctx, src, doc); err != nil {
			logger.Warn("post-processor failed", "feature", p.Feature(), "err", err)
			continue
		}
		features = append(features, p.Feature())
	}

	return &runResult{
		chunkCount:  len(chunks),
		features:    features,
		contentHash: core.ContentHash(doc.Text()),
	}, nil
}

// embed fills in chunk vectors batch by batch, retrying each batch.
func (r *runner) embed(ctx context.Context, logger *slog.Logger, chunks []*core.Chunk) error {
	for start := 0; start < len(chunks); start += r.batchSize {
		batch := chunks[start:min(start+r.batchSize, len(chunks))]
		texts := make([]string, len(batch))
		for i, chunk := range batch {
			texts[i] = chunk.Text
		}

		err := RetryWithBackoff(ctx, r.retry, func() error {
			vectors, err := r.embedder.EmbedTexts(ctx, texts)
			if err != nil {
				return err
			}
			if len(vectors) != len(texts) {
				return fmt.Errorf("%w: expected %d vectors, received %d", ErrEmbeddingMismatch, len(texts), len(vectors))
			}
			for i, vector := range vectors {
				batch[i].Vector = ai.NormalizeVector(vector)
			}
			return nil
		}, func(attempt int, err error) {
			if r.metrics != nil {
				r.metrics.EmbedRetries.Inc()
			}
			logger.Warn("embedding request failed, retrying", "attempt", attempt, "batch_start", start, "err", err)
		})
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			return fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
		}
	}
	return nil
}

func (r *runner) advance(ctx context.Context, id core.ID, step string, progress int) error {
	_, err := r.registry.Update(ctx, id, func(s *core.KnowledgeSource) error {
		return s.Advance(step, progress)
	})
	return err
}

func (r *runner) observe(stage string, start time.Time) {
	if r.metrics != nil {
		r.metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	}
}

func (r *runner) finished(status core.Status) {
	if r.metrics != nil {
		r.metrics.JobsFinished.WithLabelValues(status.String()).Inc()
	}
}

// failureMessage turns a run error into the message stored on the source.
func failureMessage(src *core.KnowledgeSource, err error) string {
	switch {
	case errors.Is(err, extract.ErrUnsupportedFormat):
		return "Unsupported file type: " + src.Extension()
	case errors.Is(err, fs.ErrNotExist):
		return "File not found: " + src.SourcePath
	case errors.Is(err, extract.ErrNoText):
		return "No text content found"
	default:
		return err.Error()
	}
}
