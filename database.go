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

package kbingest

import (
	"log/slog"

	"github.com/poiesic/kbingest/ai"
	"github.com/poiesic/kbingest/ai/langchain"
	"github.com/poiesic/kbingest/ingestion"
	"github.com/poiesic/kbingest/search"
	"github.com/poiesic/kbingest/storage"
	"github.com/poiesic/kbingest/storage/badger"
)

// Database bundles the stores and the embedding provider behind one handle.
type Database struct {
	backend  *badger.Backend
	registry *badger.SourceRegistry
	chunks   *badger.ChunkStore
	provider ai.AIProvider
	logger   *slog.Logger
}

// DatabaseOption configures a Database.
type DatabaseOption func(*databaseOptions)

type databaseOptions struct {
	aiConfig *ai.Config
	provider ai.AIProvider
	inMemory bool
	logger   *slog.Logger
}

// WithAIConfig sets the embedding endpoint used to build the default provider.
func WithAIConfig(cfg *ai.Config) DatabaseOption {
	return func(o *databaseOptions) {
		o.aiConfig = cfg
	}
}

// WithProvider uses provider instead of an OpenAI-compatible one.
// The Database takes ownership and closes it.
func WithProvider(provider ai.AIProvider) DatabaseOption {
	return func(o *databaseOptions) {
		o.provider = provider
	}
}

// WithInMemory keeps all data in memory. The file path is ignored.
func WithInMemory() DatabaseOption {
	return func(o *databaseOptions) {
		o.inMemory = true
	}
}

// WithLogger sets the logger passed to the stores, the provider and the services built from the database.
func WithLogger(logger *slog.Logger) DatabaseOption {
	return func(o *databaseOptions) {
		o.logger = logger
	}
}

// NewDatabase opens (or creates) the store at filePath and the embedding
// provider. Close releases both.
func NewDatabase(filePath string, opts ...DatabaseOption) (*Database, error) {
	// Apply options
	options := &databaseOptions{
		aiConfig: ai.DefaultConfig(), // Default if not provided
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.inMemory {
		filePath = ""
	}

	// Open backend
	backend, err := badger.OpenBackend(filePath, options.inMemory, badger.WithBackendLogger(options.logger))
	if err != nil {
		return nil, err
	}

	registry, err := badger.NewSourceRegistry(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}

	chunks, err := badger.NewChunkStore(backend)
	if err != nil {
		registry.Close()
		backend.Close()
		return nil, err
	}

	provider := options.provider
	if provider == nil {
		provider, err = langchain.NewProvider(options.aiConfig, langchain.WithLogger(options.logger))
		if err != nil {
			chunks.Close()
			registry.Close()
			backend.Close()
			return nil, err
		}
	}

	return &Database{
		backend:  backend,
		registry: registry,
		chunks:   chunks,
		provider: provider,
		logger:   options.logger,
	}, nil
}

// Close releases the provider and the stores. Services built from the
// Database must be closed first.
func (db *Database) Close() error {
	// Close AI provider first
	if err := db.provider.Close(); err != nil {
		db.logger.Error("error closing AI provider", "err", err)
	}

	if err := db.chunks.Close(); err != nil {
		db.logger.Error("error closing chunk store", "err", err)
		return err
	}
	if err := db.registry.Close(); err != nil {
		db.logger.Error("error closing source registry", "err", err)
		return err
	}

	// Close backend
	if err := db.backend.Close(); err != nil {
		db.logger.Error("error closing backend storage", "err", err)
		return err
	}
	return nil
}

// SourceRegistry returns the registry of knowledge sources.
func (db *Database) SourceRegistry() storage.SourceRegistry {
	return db.registry
}

// ChunkStore returns the store of embedded chunks.
func (db *Database) ChunkStore() storage.ChunkStore {
	return db.chunks
}

// Embedder returns the provider's embedder.
func (db *Database) Embedder() ai.Embedder {
	return db.provider.Embedder()
}

// NewService builds an ingestion service over the Database's stores.
// The caller starts and closes it.
func (db *Database) NewService(opts ...ingestion.Option) (*ingestion.Service, error) {
	opts = append([]ingestion.Option{ingestion.WithLogger(db.logger)}, opts...)
	return ingestion.NewService(db.registry, db.chunks, db.provider.Embedder(), opts...)
}

// NewSearcher builds a searcher over the chunk store and embedder.
func (db *Database) NewSearcher(opts ...search.Option) (*search.Searcher, error) {
	opts = append([]search.Option{search.WithLogger(db.logger)}, opts...)
	return search.NewSearcher(db.chunks, db.provider.Embedder(), opts...)
}
