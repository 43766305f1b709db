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
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/kbingest/core"
)

// Job asks a worker to (re)ingest one source.
type Job struct {
	SourceID   core.ID
	Mode       core.Mode
	EnqueuedAt time.Time
	RunID      string
}

// JobHandler runs a job on a worker.
type JobHandler func(ctx context.Context, job Job)

// Queue is a bounded FIFO of jobs drained by a fixed-size worker pool.
// At most one job per source is queued or running at a time.
type Queue struct {
	mu       sync.Mutex
	inflight map[core.ID]Job
	running  map[core.ID]struct{}
	// claims hold sources back from new jobs and from starting queued ones.
	// The channel is closed when the claim is released.
	claims map[core.ID]chan struct{}
	closed bool
	started  bool

	jobs    chan Job
	pool    *ants.Pool
	handler JobHandler
	metrics *Metrics
	logger  *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewQueue creates a queue holding up to capacity waiting jobs and running
// up to poolSize jobs concurrently. Jobs are only dispatched after Start.
func NewQueue(handler JobHandler, poolSize, capacity int, metrics *Metrics, logger *slog.Logger) (*Queue, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := ants.NewPool(poolSize, ants.WithPanicHandler(func(p any) {
		logger.Error("ingestion worker panicked", "panic", p)
	}))
	if err != nil {
		return nil, err
	}
	return &Queue{
		inflight: make(map[core.ID]Job),
		running:  make(map[core.ID]struct{}),
		claims:   make(map[core.ID]chan struct{}),
		jobs:     make(chan Job, capacity),
		pool:     pool,
		handler:  handler,
		metrics:  metrics,
		logger:   logger,
		done:     make(chan struct{}),
	}, nil
}

// Submit adds a job to the tail of the queue.
//
// If prepare is not nil it runs after the queue has checked that the job can
// be accepted and before the job becomes visible to workers; an error from
// prepare rejects the job. Submissions are serialized, so prepare never races
// another Submit for the same source.
func (q *Queue) Submit(job Job, prepare func() error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		q.reject("closed")
		return ErrQueueClosed
	}
	if _, ok := q.inflight[job.SourceID]; ok {
		q.reject("duplicate")
		return ErrAlreadyQueued
	}
	if _, ok := q.claims[job.SourceID]; ok {
		q.reject("claimed")
		return ErrSourceClaimed
	}
	if len(q.jobs) == cap(q.jobs) {
		q.reject("full")
		return ErrQueueFull
	}
	if prepare != nil {
		if err := prepare(); err != nil {
			return err
		}
	}

	// Only Submit sends and it holds mu, so the capacity check above
	// guarantees this never blocks.
	q.jobs <- job
	q.inflight[job.SourceID] = job

	if q.metrics != nil {
		q.metrics.JobsSubmitted.WithLabelValues(job.Mode.String()).Inc()
		q.metrics.QueueDepth.Set(float64(len(q.jobs)))
	}
	return nil
}

// Start begins dispatching jobs to workers. The context passed to every
// job is cancelled by Close.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.closed {
		return
	}
	q.started = true

	ctx, q.cancel = context.WithCancel(ctx)
	go q.dispatch(ctx)
}

// IsQueued reports whether a job for the source is waiting or running.
func (q *Queue) IsQueued(id core.ID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.inflight[id]
	return ok
}

// Claim reserves a source that has no running job. Until release is called,
// Submit rejects jobs for it with ErrSourceClaimed and a job already queued
// for it waits before starting. Claim fails with ErrJobRunning while a
// worker is executing a job for the source.
func (q *Queue) Claim(id core.ID) (release func(), err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.running[id]; ok {
		return nil, ErrJobRunning
	}
	if _, ok := q.claims[id]; ok {
		return nil, ErrSourceClaimed
	}
	done := make(chan struct{})
	q.claims[id] = done

	var once sync.Once
	return func() {
		once.Do(func() {
			q.mu.Lock()
			delete(q.claims, id)
			q.mu.Unlock()
			close(done)
		})
	}, nil
}

// begin marks a dequeued job as running, first waiting out any claim on its
// source. It returns false if ctx ends while waiting.
func (q *Queue) begin(ctx context.Context, id core.ID) bool {
	for {
		q.mu.Lock()
		done, claimed := q.claims[id]
		if !claimed {
			q.running[id] = struct{}{}
			q.mu.Unlock()
			return true
		}
		q.mu.Unlock()

		select {
		case <-done:
		case <-ctx.Done():
			return false
		}
	}
}

// Depth returns the number of jobs waiting for a worker.
func (q *Queue) Depth() int {
	return len(q.jobs)
}

// Running returns the number of jobs currently executing.
func (q *Queue) Running() int {
	return q.pool.Running()
}

// Close stops accepting jobs, cancels running ones and waits up to timeout
// for workers to return. Jobs still waiting are dropped.
func (q *Queue) Close(timeout time.Duration) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	started := q.started
	q.mu.Unlock()

	if started {
		q.cancel()
		<-q.done
	}
	return q.pool.ReleaseTimeout(timeout)
}

func (q *Queue) dispatch(ctx context.Context) {
	defer close(q.done)
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-q.jobs:
			if ctx.Err() != nil {
				return
			}
			if q.metrics != nil {
				q.metrics.QueueDepth.Set(float64(len(q.jobs)))
			}
			// Submit blocks while every worker is busy, which keeps dispatch FIFO
			err := q.pool.Submit(func() {
				defer q.finish(job.SourceID)
				if !q.begin(ctx, job.SourceID) {
					return
				}
				q.handler(ctx, job)
			})
			if err != nil {
				q.logger.Error("failed to dispatch ingestion job", "source", job.SourceID, "err", err)
				q.finish(job.SourceID)
			}
		}
	}
}

func (q *Queue) finish(id core.ID) {
	q.mu.Lock()
	delete(q.inflight, id)
	delete(q.running, id)
	q.mu.Unlock()
}

func (q *Queue) reject(reason string) {
	if q.metrics != nil {
		q.metrics.JobsRejected.WithLabelValues(reason).Inc()
	}
}
