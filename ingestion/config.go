package ingestion

import (
	"fmt"
	"runtime"
	"time"

	"github.com/poiesic/kbingest/chunker"
)

// Config tunes the ingestion workers.
type Config struct {
	// PoolSize is the number of sources ingested concurrently.
	// Default is runtime.NumCPU() / 2, with a minimum of 1.
	PoolSize int

	// QueueCapacity bounds the number of jobs waiting for a worker.
	QueueCapacity int

	// Chunking sizes chunks in characters.
	Chunking chunker.Config

	// EmbedBatchSize is the number of chunks sent per embedding request.
	EmbedBatchSize int

	// Retry controls retries of failed embedding requests.
	Retry RetryPolicy

	// ShutdownTimeout bounds how long Close waits for in-flight jobs to abort.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns the default ingestion settings.
func DefaultConfig() Config {
	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	return Config{
		PoolSize:        poolSize,
		QueueCapacity:   1024,
		Chunking:        chunker.DefaultConfig(),
		EmbedBatchSize:  64,
		Retry:           DefaultRetryPolicy(),
		ShutdownTimeout: 10 * time.Second,
	}
}

// Validate checks that every setting is usable.
func (c Config) Validate() error {
	if c.PoolSize < 1 {
		return fmt.Errorf("%w: pool size must be at least 1", ErrInvalidConfig)
	}
	if c.QueueCapacity < 1 {
		return fmt.Errorf("%w: queue capacity must be at least 1", ErrInvalidConfig)
	}
	if c.EmbedBatchSize < 1 {
		return fmt.Errorf("%w: embed batch size must be at least 1", ErrInvalidConfig)
	}
	if err := c.Chunking.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.Retry.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}
