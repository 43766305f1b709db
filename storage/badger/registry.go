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

package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/kbingest/core"
	"github.com/poiesic/kbingest/storage"
)

const maxUpdateAttempts = 5

// SourceRegistry implements storage.SourceRegistry for BadgerDB.
type SourceRegistry struct {
	backend *Backend
	idSeq   *badger.Sequence
	logger  *slog.Logger
}

var _ storage.SourceRegistry = (*SourceRegistry)(nil)

// NewSourceRegistry creates a new SourceRegistry.
func NewSourceRegistry(backend *Backend) (*SourceRegistry, error) {
	idSeq, err := backend.GetSequence(sourceIDSeq)
	if err != nil {
		return nil, err
	}

	return &SourceRegistry{
		backend: backend,
		idSeq:   idSeq,
		logger:  slog.Default().With("component", "source-registry"),
	}, nil
}

// Close releases the ID sequence.
func (r *SourceRegistry) Close() error {
	return r.idSeq.Release()
}

// Create stores a new knowledge source.
func (r *SourceRegistry) Create(ctx context.Context, source *core.KnowledgeSource) (*core.KnowledgeSource, error) {
	stored := source.Clone()
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		if stored.Id == 0 {
			id, err := r.nextFreeID(tx)
			if err != nil {
				return err
			}
			stored.Id = id
		} else {
			_, err := tx.Get(makeSourceKey(stored.Id))
			if err == nil {
				return storage.ErrDuplicateKey
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}

		if err := core.ValidateKnowledgeSource(stored); err != nil {
			return err
		}

		stored.InsertedAt = time.Now().UTC()
		stored.UpdatedAt = stored.InsertedAt
		if err := writeSource(tx, stored); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// nextFreeID draws from the sequence until it finds an ID with no record.
// Sequence values are never handed out twice, and IDs stored explicitly by
// callers are skipped, so no record is ever overwritten.
func (r *SourceRegistry) nextFreeID(tx *badger.Txn) (core.ID, error) {
	for {
		next, err := r.idSeq.Next()
		if err != nil {
			return 0, err
		}
		// BadgerDB sequences start at 0, which is not a valid ID
		if next == 0 {
			continue
		}
		id := core.ID(next)
		_, err = tx.Get(makeSourceKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return id, nil
		}
		if err != nil {
			return 0, err
		}
		r.logger.Debug("skipping source ID already in use", "id", id)
	}
}

// Get retrieves a single source by ID.
func (r *SourceRegistry) Get(ctx context.Context, id core.ID) (*core.KnowledgeSource, error) {
	var result *core.KnowledgeSource
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readSource(tx, id)
		return err
	}, false)
	return result, err
}

// List returns all sources ordered by ID.
func (r *SourceRegistry) List(ctx context.Context) ([]*core.KnowledgeSource, error) {
	var results []*core.KnowledgeSource
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(sourcePrefix + ":")
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var source *core.KnowledgeSource
			err := iter.Item().Value(func(val []byte) error {
				var err error
				source, err = storage.UnmarshalKnowledgeSource(val)
				return err
			})
			if err != nil {
				return err
			}
			results = append(results, source)
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Update applies fn to the stored source and saves the result.
// Badger's optimistic concurrency control rejects the commit if another
// writer touched the same source in the meantime; the update is then
// retried against the fresh record.
func (r *SourceRegistry) Update(ctx context.Context, id core.ID, fn storage.UpdateFunc) (*core.KnowledgeSource, error) {
	var result *core.KnowledgeSource
	var err error
	for attempt := 1; attempt <= maxUpdateAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		err = r.backend.WithTx(func(tx *badger.Txn) error {
			source, err := readSource(tx, id)
			if err != nil {
				return err
			}
			if err := fn(source); err != nil {
				return err
			}
			source.Id = id
			if err := core.ValidateKnowledgeSource(source); err != nil {
				return err
			}
			source.UpdatedAt = time.Now().UTC()
			if err := writeSource(tx, source); err != nil {
				return err
			}
			if err := tx.Commit(); err != nil {
				return err
			}
			result = source
			return nil
		}, true)
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
		r.logger.Debug("source update conflicted, retrying", "id", id, "attempt", attempt)
	}
	if errors.Is(err, badger.ErrConflict) {
		return nil, fmt.Errorf("%w: source %d: %w", storage.ErrTransactionFailed, id, err)
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Delete removes a source by ID after check approves the stored record.
func (r *SourceRegistry) Delete(ctx context.Context, id core.ID, check func(source *core.KnowledgeSource) error) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		source, err := readSource(tx, id)
		if err != nil {
			return err
		}
		if check != nil {
			if err := check(source); err != nil {
				return err
			}
		}
		if err := tx.Delete(makeSourceKey(id)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// readSource reads a source from a transaction.
// Returns storage.ErrNotFound if the source doesn't exist.
func readSource(tx *badger.Txn, id core.ID) (*core.KnowledgeSource, error) {
	item, err := tx.Get(makeSourceKey(id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}

	var source *core.KnowledgeSource
	err = item.Value(func(val []byte) error {
		var err error
		source, err = storage.UnmarshalKnowledgeSource(val)
		return err
	})
	return source, err
}

func writeSource(tx *badger.Txn, source *core.KnowledgeSource) error {
	value, err := storage.MarshalKnowledgeSource(source)
	if err != nil {
		return err
	}
	return tx.Set(makeSourceKey(source.Id), value)
}
