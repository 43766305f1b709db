package ingestion

import "errors"

var (
	// ErrRegistryRequired is returned when a source registry is not provided.
	ErrRegistryRequired = errors.New("source registry required")

	// ErrChunkStoreRequired is returned when a chunk store is not provided.
	ErrChunkStoreRequired = errors.New("chunk store required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrInvalidConfig is returned when Config.Validate fails.
	ErrInvalidConfig = errors.New("invalid ingestion config")

	// ErrAlreadyQueued is returned when a job for the same source is queued or running.
	ErrAlreadyQueued = errors.New("source already has a queued or running job")

	// ErrJobRunning is returned by Queue.Claim while a worker runs a job for the source.
	ErrJobRunning = errors.New("source has a running job")

	// ErrSourceClaimed is returned while another operation holds the source.
	ErrSourceClaimed = errors.New("source is being modified")

	// ErrQueueFull is returned when the job queue has no free slot.
	ErrQueueFull = errors.New("ingestion queue is full")

	// ErrQueueClosed is returned for submissions after Close.
	ErrQueueClosed = errors.New("ingestion queue is closed")

	// ErrConflict is returned when a source's current status forbids the operation.
	ErrConflict = errors.New("operation conflicts with source status")

	// ErrFileNotFound is returned when a submitted path does not exist.
	ErrFileNotFound = errors.New("file not found")

	// ErrInvalidPath is returned when a submitted path is not a regular file.
	ErrInvalidPath = errors.New("invalid source path")

	// ErrEmbeddingFailed is returned when embedding still fails after all retries.
	ErrEmbeddingFailed = errors.New("embedding failed")

	// ErrEmbeddingMismatch is returned when the embedder returns the wrong number of vectors.
	ErrEmbeddingMismatch = errors.New("embedding result mismatch")

	// ErrInvalidMaxAttempts is returned when a retry policy allows no attempts.
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")
)
