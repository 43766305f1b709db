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

package storage

import (
	"context"

	"github.com/poiesic/kbingest/core"
)

// UpdateFunc mutates a copy of a source inside a registry transaction.
// Returning an error aborts the update and leaves the stored record untouched.
type UpdateFunc func(source *core.KnowledgeSource) error

// SourceRegistry stores KnowledgeSource records.
// It is the only writer of Status, Progress and ErrorMessage.
type SourceRegistry interface {
	// Create stores a new source.
	// For sources with ID=0, generates a new ID from a sequence. IDs are never reused.
	// Sets InsertedAt and UpdatedAt.
	// Returns ErrDuplicateKey if a source with the given ID already exists.
	Create(ctx context.Context, source *core.KnowledgeSource) (*core.KnowledgeSource, error)

	// Get retrieves a single source by ID.
	// Returns ErrNotFound if the source doesn't exist.
	Get(ctx context.Context, id core.ID) (*core.KnowledgeSource, error)

	// List returns all sources ordered by ID.
	List(ctx context.Context) ([]*core.KnowledgeSource, error)

	// Update applies fn to the stored source in a single read-modify-write
	// transaction, validates the result and stores it.
	// Returns ErrNotFound if the source doesn't exist, or the error from fn.
	Update(ctx context.Context, id core.ID, fn UpdateFunc) (*core.KnowledgeSource, error)

	// Delete removes a source. If check is not nil it is called with the stored
	// record inside the deleting transaction, and a non-nil result aborts the delete.
	// Returns ErrNotFound if the source doesn't exist.
	Delete(ctx context.Context, id core.ID, check func(source *core.KnowledgeSource) error) error

	// Close releases resources held by the registry.
	Close() error
}

// ChunkStore stores embedded chunks grouped by source.
// Readers never observe a partially replaced chunk set.
type ChunkStore interface {
	// Upsert adds chunks to the source's current chunk set, overwriting chunks
	// with the same index.
	Upsert(ctx context.Context, sourceID core.ID, chunks []*core.Chunk) error

	// ReplaceAll swaps the source's chunk set for chunks in one atomic step.
	// If writing the new set fails, the previous set is left intact.
	ReplaceAll(ctx context.Context, sourceID core.ID, chunks []*core.Chunk) error

	// DeleteAll removes every chunk of the source.
	DeleteAll(ctx context.Context, sourceID core.ID) error

	// Count returns the number of chunks currently visible for the source.
	Count(ctx context.Context, sourceID core.ID) (int, error)

	// TotalCount returns the number of chunks visible across all sources.
	TotalCount(ctx context.Context) (int, error)

	// SearchByEmbedding returns up to topK chunks ordered by similarity
	// to vector, highest first.
	SearchByEmbedding(ctx context.Context, vector []float32, topK int) ([]*core.SearchResult, error)

	// PurgeOrphans removes chunk data that no source references, such as
	// a staged set left behind by a crash. It must not run concurrently with writers.
	PurgeOrphans(ctx context.Context) (int, error)

	// Close releases resources held by the store.
	Close() error
}
