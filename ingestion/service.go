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
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/poiesic/kbingest/ai"
	"github.com/poiesic/kbingest/chunker"
	"github.com/poiesic/kbingest/core"
	"github.com/poiesic/kbingest/extract"
	"github.com/poiesic/kbingest/storage"
)

// Service accepts knowledge sources, runs their ingestion in the background
// and answers status queries.
type Service struct {
	registry   storage.SourceRegistry
	chunks     storage.ChunkStore
	extractors *extract.Registry
	queue      *Queue
	runner     *runner
	config     Config
	post       []PostProcessor
	metrics    *Metrics
	notify     []func()
	now        func() time.Time
	logger     *slog.Logger
}

// Option configures a Service.
type Option func(*Service) error

// WithConfig replaces the default ingestion settings.
func WithConfig(cfg Config) Option {
	return func(s *Service) error {
		s.config = cfg
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithExtractors replaces the default extractor registry.
func WithExtractors(extractors *extract.Registry) Option {
	return func(s *Service) error {
		if extractors != nil {
			s.extractors = extractors
		}
		return nil
	}
}

// WithPostProcessors adds post-processors that run after chunks are stored.
func WithPostProcessors(post ...PostProcessor) Option {
	return func(s *Service) error {
		s.post = append(s.post, post...)
		return nil
	}
}

// WithMetrics records pipeline metrics into m.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) error {
		s.metrics = m
		return nil
	}
}

// WithClock overrides the time source used for status timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) error {
		if now != nil {
			s.now = now
		}
		return nil
	}
}

// WithNotify registers fn to be called whenever a job is accepted.
// Status pollers use it to wake up.
func WithNotify(fn func()) Option {
	return func(s *Service) error {
		if fn != nil {
			s.notify = append(s.notify, fn)
		}
		return nil
	}
}

// NewService creates a Service. Call Start before jobs are processed.
func NewService(registry storage.SourceRegistry, chunks storage.ChunkStore, embedder ai.Embedder, opts ...Option) (*Service, error) {
	if registry == nil {
		return nil, ErrRegistryRequired
	}
	if chunks == nil {
		return nil, ErrChunkStoreRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	s := &Service{
		registry:   registry,
		chunks:     chunks,
		extractors: extract.NewDefaultRegistry(),
		config:     DefaultConfig(),
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if err := s.config.Validate(); err != nil {
		return nil, err
	}

	splitter, err := chunker.New(s.config.Chunking)
	if err != nil {
		return nil, err
	}
	s.runner = &runner{
		registry:   registry,
		chunks:     chunks,
		extractors: s.extractors,
		chunker:    splitter,
		embedder:   embedder,
		post:       s.post,
		batchSize:  s.config.EmbedBatchSize,
		retry:      s.config.Retry,
		metrics:    s.metrics,
		now:        s.now,
		logger:     s.logger.With("component", "ingestion-runner"),
	}

	s.queue, err = NewQueue(func(ctx context.Context, job Job) {
		_ = s.runner.run(ctx, job)
	}, s.config.PoolSize, s.config.QueueCapacity, s.metrics, s.logger)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// ReconcileReport summarizes the work done by Reconcile.
type ReconcileReport struct {
	Interrupted  int
	PurgedChunks int
}

// Start reconciles sources left over from a previous process and then
// begins processing jobs.
func (s *Service) Start(ctx context.Context) error {
	report, err := s.Reconcile(ctx)
	if err != nil {
		return err
	}
	if report.Interrupted > 0 || report.PurgedChunks > 0 {
		s.logger.Info("reconciled sources",
			"interrupted", report.Interrupted,
			"purged_chunks", report.PurgedChunks)
	}
	s.queue.Start(ctx)
	return nil
}

// Reconcile repairs state left by a process that stopped mid-run.
// Active sources without a job in this process are failed as interrupted
// instead of being resumed, and chunk data that no source references is
// purged. It must run before the queue starts processing.
func (s *Service) Reconcile(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport

	sources, err := s.registry.List(ctx)
	if err != nil {
		return report, err
	}
	for _, src := range sources {
		if !src.Status.IsActive() || s.queue.IsQueued(src.Id) {
			continue
		}
		_, err := s.registry.Update(ctx, src.Id, func(stored *core.KnowledgeSource) error {
			return stored.Fail(core.InterruptedMessage)
		})
		if err != nil {
			return report, fmt.Errorf("mark source %d interrupted: %w", src.Id, err)
		}
		s.logger.Warn("source interrupted by restart", "source", src.Id, "status", src.Status.String())
		report.Interrupted++
	}

	report.PurgedChunks, err = s.chunks.PurgeOrphans(ctx)
	if err != nil {
		return report, fmt.Errorf("purge orphaned chunks: %w", err)
	}
	return report, nil
}

// Close stops the workers. Running jobs are cancelled and leave their
// sources active until the next Start marks them interrupted.
func (s *Service) Close() error {
	return s.queue.Close(s.config.ShutdownTimeout)
}

// SubmitOption configures Submit.
type SubmitOption func(*submitOptions)

type submitOptions struct {
	description string
	sourceID    core.ID
}

// WithDescription attaches a human-readable description to a new source.
func WithDescription(description string) SubmitOption {
	return func(o *submitOptions) {
		o.description = description
	}
}

// WithSourceID targets an existing source, making Submit behave like
// Refresh. IDs are always allocated by the registry, so an ID with no source
// is rejected with storage.ErrNotFound.
func WithSourceID(id core.ID) SubmitOption {
	return func(o *submitOptions) {
		o.sourceID = id
	}
}

// Submit registers the file at path as a Pending source and queues its
// ingestion. It returns as soon as the job is queued.
func (s *Service) Submit(ctx context.Context, path string, opts ...SubmitOption) (*core.KnowledgeSource, error) {
	var o submitOptions
	for _, opt := range opts {
		opt(&o)
	}

	if o.sourceID != 0 {
		existing, err := s.registry.Get(ctx, o.sourceID)
		if err != nil {
			return nil, fmt.Errorf("submit to source %d: %w", o.sourceID, err)
		}
		return s.Refresh(ctx, existing.Id)
	}

	abs, err := s.validatePath(path)
	if err != nil {
		return nil, err
	}

	src := core.NewKnowledgeSource(abs, o.description)
	created, err := s.registry.Create(ctx, src)
	if err != nil {
		return nil, err
	}

	if err := s.enqueue(ctx, created.Id, core.ModeCreate, nil); err != nil {
		return nil, err
	}
	s.logger.Info("source submitted", "source", created.Id, "path", abs)
	return created, nil
}

// Refresh queues a new ingestion run for an existing source. Chunks of the
// previous run stay searchable until the new run replaces them.
// While the source is Pending or Running the call is rejected with
// ErrConflict and the current record is returned alongside the error.
func (s *Service) Refresh(ctx context.Context, id core.ID) (*core.KnowledgeSource, error) {
	var queued *core.KnowledgeSource
	err := s.enqueue(ctx, id, core.ModeRefresh, func() error {
		var err error
		queued, err = s.registry.Update(ctx, id, func(src *core.KnowledgeSource) error {
			if src.Status.IsActive() {
				return fmt.Errorf("%w: source %d is %s", ErrConflict, id, src.Status)
			}
			return src.Enqueue()
		})
		return err
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyQueued) || errors.Is(err, ErrSourceClaimed) {
			err = fmt.Errorf("%w: %w", ErrConflict, err)
		}
		if errors.Is(err, ErrConflict) {
			if current, getErr := s.registry.Get(ctx, id); getErr == nil {
				return current, err
			}
		}
		return nil, err
	}
	s.logger.Info("source refresh queued", "source", id)
	return queued, nil
}

// RefreshAll queues a refresh of every source that is not already active.
// It returns the IDs that were queued and the IDs that were skipped.
func (s *Service) RefreshAll(ctx context.Context) (queued, skipped []core.ID, err error) {
	sources, err := s.registry.List(ctx)
	if err != nil {
		return nil, nil, err
	}
	for _, src := range sources {
		if _, err := s.Refresh(ctx, src.Id); err != nil {
			if errors.Is(err, ErrConflict) {
				skipped = append(skipped, src.Id)
				continue
			}
			return queued, skipped, err
		}
		queued = append(queued, src.Id)
	}
	return queued, skipped, nil
}

// Delete removes a source and its chunks. Running sources cannot be
// deleted. A Pending source can be: its queued job waits until the delete
// is done and then finds the source gone.
//
// The source is claimed on the queue for the whole operation, so no run can
// start between the status check and the removal. Chunks go first; if that
// fails the source row is kept.
func (s *Service) Delete(ctx context.Context, id core.ID) error {
	release, err := s.queue.Claim(id)
	if err != nil {
		return fmt.Errorf("%w: source %d: %w", ErrConflict, id, err)
	}
	defer release()

	src, err := s.registry.Get(ctx, id)
	if err != nil {
		return err
	}
	if src.Status == core.StatusRunning {
		// Running without a job in this process: left over until reconciled.
		return fmt.Errorf("%w: source %d is running", ErrConflict, id)
	}

	if err := s.chunks.DeleteAll(ctx, id); err != nil {
		return fmt.Errorf("delete chunks of source %d: %w", id, err)
	}

	err = s.registry.Delete(ctx, id, func(stored *core.KnowledgeSource) error {
		if stored.Status == core.StatusRunning {
			return fmt.Errorf("%w: source %d is running", ErrConflict, id)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("source deleted", "source", id, "status", src.Status.String())
	return nil
}

// Get returns one source.
func (s *Service) Get(ctx context.Context, id core.ID) (*core.KnowledgeSource, error) {
	return s.registry.Get(ctx, id)
}

// List returns every source ordered by ID.
func (s *Service) List(ctx context.Context) ([]*core.KnowledgeSource, error) {
	return s.registry.List(ctx)
}

// Stats returns the number of sources and of stored chunks.
func (s *Service) Stats(ctx context.Context) (*core.Stats, error) {
	sources, err := s.registry.List(ctx)
	if err != nil {
		return nil, err
	}
	chunkCount, err := s.chunks.TotalCount(ctx)
	if err != nil {
		return nil, err
	}
	return &core.Stats{DocumentCount: len(sources), ChunkCount: chunkCount}, nil
}

// SupportedExtensions lists the file extensions Submit accepts.
func (s *Service) SupportedExtensions() []string {
	return s.extractors.Extensions()
}

// QueueDepth returns the number of jobs waiting for a worker.
func (s *Service) QueueDepth() int {
	return s.queue.Depth()
}

func (s *Service) validatePath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidPath, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrFileNotFound, abs)
		}
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", ErrInvalidPath, abs)
	}
	if !s.extractors.Supports(abs) {
		return "", fmt.Errorf("%w: %s", extract.ErrUnsupportedFormat, filepath.Ext(abs))
	}
	return abs, nil
}

// enqueue submits a job for id. When the queue cannot take a job for a
// source that prepare (or the caller) already made Pending, the source is
// failed so it does not wait forever.
func (s *Service) enqueue(ctx context.Context, id core.ID, mode core.Mode, prepare func() error) error {
	job := Job{
		SourceID:   id,
		Mode:       mode,
		EnqueuedAt: s.now().UTC(),
		RunID:      uuid.NewString(),
	}

	err := s.queue.Submit(job, prepare)
	if err == nil {
		for _, fn := range s.notify {
			fn()
		}
		return nil
	}

	if prepare == nil && (errors.Is(err, ErrQueueFull) || errors.Is(err, ErrQueueClosed)) {
		message := "Not queued: " + err.Error()
		if _, failErr := s.registry.Update(ctx, id, func(src *core.KnowledgeSource) error {
			return src.Fail(message)
		}); failErr != nil {
			s.logger.Error("failed to record rejected job", "source", id, "err", failErr)
		}
	}
	return err
}
