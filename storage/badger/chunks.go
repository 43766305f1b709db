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
	"slices"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/kbingest/core"
	"github.com/poiesic/kbingest/storage"
)

const defaultChunkBatchSize = 256

// ChunkStore implements storage.ChunkStore for BadgerDB.
//
// Chunks of a source are written under a generation number. A per-source
// pointer names the generation readers see, so replacing a source's chunks
// means staging a new generation and flipping the pointer in one transaction.
// Superseded generations are purged after the flip.
type ChunkStore struct {
	backend   *Backend
	genSeq    *badger.Sequence
	batchSize int
	logger    *slog.Logger
}

var _ storage.ChunkStore = (*ChunkStore)(nil)

// ChunkStoreOption configures a ChunkStore.
type ChunkStoreOption func(*ChunkStore)

// WithBatchSize sets how many chunks are written per transaction.
// Default is 256.
func WithBatchSize(size int) ChunkStoreOption {
	return func(s *ChunkStore) {
		if size > 0 {
			s.batchSize = size
		}
	}
}

// NewChunkStore creates a new ChunkStore.
func NewChunkStore(backend *Backend, opts ...ChunkStoreOption) (*ChunkStore, error) {
	genSeq, err := backend.GetSequence(generationSeq)
	if err != nil {
		return nil, err
	}

	s := &ChunkStore{
		backend:   backend,
		genSeq:    genSeq,
		batchSize: defaultChunkBatchSize,
		logger:    slog.Default().With("component", "chunk-store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases the generation sequence.
func (s *ChunkStore) Close() error {
	return s.genSeq.Release()
}

// Upsert writes chunks into the source's active generation. A source without
// chunks gets a fresh generation that becomes visible once every batch is written.
func (s *ChunkStore) Upsert(ctx context.Context, sourceID core.ID, chunks []*core.Chunk) error {
	var generation uint64
	var ok bool
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		generation, ok, err = activeGeneration(tx, sourceID)
		return err
	}, false)
	if err != nil {
		return err
	}
	if !ok {
		return s.ReplaceAll(ctx, sourceID, chunks)
	}
	return s.writeChunks(ctx, sourceID, generation, chunks)
}

// ReplaceAll stages chunks under a new generation and then makes it the
// active one. Readers see either the old set or the new set, never a mix.
func (s *ChunkStore) ReplaceAll(ctx context.Context, sourceID core.ID, chunks []*core.Chunk) error {
	generation, err := s.nextGeneration()
	if err != nil {
		return err
	}

	if err := s.writeChunks(ctx, sourceID, generation, chunks); err != nil {
		s.discard(sourceID, generation)
		return err
	}

	var previous uint64
	var hadPrevious bool
	err = s.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		previous, hadPrevious, err = activeGeneration(tx, sourceID)
		if err != nil {
			return err
		}
		if err := tx.Set(makeGenerationKey(sourceID), storage.MarshalID(core.ID(generation))); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		s.discard(sourceID, generation)
		return err
	}

	if hadPrevious && previous != generation {
		s.discard(sourceID, previous)
	}
	s.logger.Debug("chunk set replaced", "source", sourceID, "generation", generation, "chunks", len(chunks))
	return nil
}

// DeleteAll hides the source's chunks and then purges them.
func (s *ChunkStore) DeleteAll(ctx context.Context, sourceID core.ID) error {
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Delete(makeGenerationKey(sourceID)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return err
	}

	var keys [][]byte
	err = s.backend.WithTx(func(tx *badger.Txn) error {
		keys = collectKeys(tx, makeChunkSourcePrefix(sourceID))
		return nil
	}, false)
	if err != nil {
		return err
	}
	return s.backend.DeleteKeys(keys)
}

// Count returns the number of chunks in the source's active generation.
func (s *ChunkStore) Count(ctx context.Context, sourceID core.ID) (int, error) {
	var count int
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		generation, ok, err := activeGeneration(tx, sourceID)
		if err != nil || !ok {
			return err
		}
		count = countKeys(tx, makeChunkGenerationPrefix(sourceID, generation))
		return nil
	}, false)
	return count, err
}

// TotalCount returns the number of visible chunks across all sources.
func (s *ChunkStore) TotalCount(ctx context.Context) (int, error) {
	var total int
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		active, err := activeGenerations(tx)
		if err != nil {
			return err
		}
		for sourceID, generation := range active {
			total += countKeys(tx, makeChunkGenerationPrefix(sourceID, generation))
		}
		return nil
	}, false)
	return total, err
}

// SearchByEmbedding scores every visible chunk against vector.
// Vectors are expected to be normalized, so the dot product is the cosine similarity.
func (s *ChunkStore) SearchByEmbedding(ctx context.Context, vector []float32, topK int) ([]*core.SearchResult, error) {
	if topK <= 0 || len(vector) == 0 {
		return nil, fmt.Errorf("%w: topK=%d, dimensions=%d", storage.ErrInvalidQuery, topK, len(vector))
	}

	var results []*core.SearchResult
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		active, err := activeGenerations(tx)
		if err != nil {
			return err
		}

		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(chunkPrefix + ":")
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := iter.Item()
			sourceID, generation, ok := parseChunkKey(item.Key())
			if !ok || active[sourceID] != generation {
				continue
			}

			var chunk *core.Chunk
			err := item.Value(func(val []byte) error {
				var err error
				chunk, err = storage.UnmarshalChunk(val)
				return err
			})
			if err != nil {
				return err
			}
			if len(chunk.Vector) == 0 {
				continue
			}

			results = append(results, &core.SearchResult{
				Chunk: chunk,
				Score: dotProduct(vector, chunk.Vector),
			})
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	// Sort by similarity descending
	slices.SortFunc(results, func(a, b *core.SearchResult) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return 0
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// PurgeOrphans deletes chunks that belong to no active generation.
func (s *ChunkStore) PurgeOrphans(ctx context.Context) (int, error) {
	var orphans [][]byte
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		active, err := activeGenerations(tx)
		if err != nil {
			return err
		}
		for _, key := range collectKeys(tx, []byte(chunkPrefix+":")) {
			sourceID, generation, ok := parseChunkKey(key)
			if ok && active[sourceID] == generation {
				continue
			}
			orphans = append(orphans, key)
		}
		return nil
	}, false)
	if err != nil {
		return 0, err
	}
	if err := s.backend.DeleteKeys(orphans); err != nil {
		return 0, err
	}
	return len(orphans), nil
}

func (s *ChunkStore) writeChunks(ctx context.Context, sourceID core.ID, generation uint64, chunks []*core.Chunk) error {
	for start := 0; start < len(chunks); start += s.batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+s.batchSize, len(chunks))
		err := s.backend.WithTx(func(tx *badger.Txn) error {
			for _, chunk := range chunks[start:end] {
				if err := core.ValidateChunk(chunk); err != nil {
					return err
				}
				stored := *chunk
				stored.SourceId = sourceID
				value, err := storage.MarshalChunk(&stored)
				if err != nil {
					return err
				}
				if err := tx.Set(makeChunkKey(sourceID, generation, chunk.Index), value); err != nil {
					return err
				}
			}
			return tx.Commit()
		}, true)
		if err != nil {
			return err
		}
	}
	return nil
}

// discard purges one generation. Failures are only logged because
// PurgeOrphans removes leftovers on the next start.
func (s *ChunkStore) discard(sourceID core.ID, generation uint64) {
	var keys [][]byte
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		keys = collectKeys(tx, makeChunkGenerationPrefix(sourceID, generation))
		return nil
	}, false)
	if err == nil {
		err = s.backend.DeleteKeys(keys)
	}
	if err != nil {
		s.logger.Warn("failed to purge chunk generation", "source", sourceID, "generation", generation, "err", err)
	}
}

func (s *ChunkStore) nextGeneration() (uint64, error) {
	generation, err := s.genSeq.Next()
	if err != nil {
		return 0, err
	}
	// Generation 0 is never handed out so a zero value always means "none"
	if generation == 0 {
		return s.genSeq.Next()
	}
	return generation, nil
}

// activeGeneration reads the generation pointer of a source.
func activeGeneration(tx *badger.Txn, sourceID core.ID) (uint64, bool, error) {
	item, err := tx.Get(makeGenerationKey(sourceID))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	var generation core.ID
	err = item.Value(func(val []byte) error {
		var err error
		generation, err = storage.UnmarshalID(val)
		return err
	})
	if err != nil {
		return 0, false, err
	}
	return uint64(generation), true, nil
}

// activeGenerations reads every generation pointer.
func activeGenerations(tx *badger.Txn) (map[core.ID]uint64, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(generationPrefix + ":")
	iter := tx.NewIterator(opts)
	defer iter.Close()

	active := make(map[core.ID]uint64)
	for iter.Rewind(); iter.Valid(); iter.Next() {
		item := iter.Item()
		sourceID, ok := parseGenerationKey(item.Key())
		if !ok {
			continue
		}
		err := item.Value(func(val []byte) error {
			generation, err := storage.UnmarshalID(val)
			if err != nil {
				return err
			}
			active[sourceID] = uint64(generation)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return active, nil
}

func countKeys(tx *badger.Txn, prefix []byte) int {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false
	iter := tx.NewIterator(opts)
	defer iter.Close()

	count := 0
	for iter.Rewind(); iter.Valid(); iter.Next() {
		count++
	}
	return count
}
