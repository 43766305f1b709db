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

package core

import (
	"encoding/hex"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for domain entities.
// Knowledge source IDs come from a database sequence and are never reused.
type ID uint64

// ContentHash returns a hex encoded BLAKE2b-256 digest of text.
func ContentHash(text string) string {
	h, _ := blake2b.New(32, nil)
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// Step names reported in KnowledgeSource.CurrentStep while a run is in progress.
const (
	StepExtracting = "Extracting"
	StepChunking   = "Chunking"
	StepEmbedding  = "Embedding"
	StepStoring    = "Storing"
)

// Progress values reported when each stage begins.
const (
	ProgressExtracting = 0
	ProgressChunking   = 25
	ProgressEmbedding  = 60
	ProgressStoring    = 90
	ProgressComplete   = 100
)

// FeatureIndexed is added to every source whose chunks were stored successfully.
const FeatureIndexed = "indexed"

// InterruptedMessage is the error message given to sources whose run was cut
// short by a process exit.
const InterruptedMessage = "Interrupted"

// KnowledgeSource is the registry record for one ingested document.
//
// Invariants:
//   - Progress == 100 if and only if Status == StatusCompleted
//   - ErrorMessage != "" if and only if Status == StatusFailed
//
// Use the transition methods (Enqueue, Start, Advance, Complete, Fail) to
// change Status so the invariants hold.
type KnowledgeSource struct {
	Id            ID        `json:"id"`
	SourcePath    string    `json:"source"`
	Filename      string    `json:"filename"`
	Description   string    `json:"description,omitempty"`
	Status        Status    `json:"status"`
	Progress      int       `json:"progress"`
	CurrentStep   string    `json:"current_step,omitempty"`
	StartedAt     time.Time `json:"started_at,omitzero"`      // zero until the first run starts
	LastIndexedAt time.Time `json:"last_indexed_at,omitzero"` // zero until the first successful run
	ErrorMessage  string    `json:"error_message,omitempty"`
	ChunkCount    int       `json:"chunk_count"`
	Features      []string  `json:"features"`
	ContentHash   string    `json:"content_hash,omitempty"`
	InsertedAt    time.Time `json:"inserted_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NewKnowledgeSource creates a Pending source for the file at path.
func NewKnowledgeSource(path, description string) *KnowledgeSource {
	return &KnowledgeSource{
		SourcePath:  path,
		Filename:    filepath.Base(path),
		Description: description,
		Status:      StatusPending,
	}
}

// Extension returns the lower-cased file extension of the source, including the dot.
func (s *KnowledgeSource) Extension() string {
	return strings.ToLower(filepath.Ext(s.Filename))
}

// Clone returns a deep copy of the source.
func (s *KnowledgeSource) Clone() *KnowledgeSource {
	if s == nil {
		return nil
	}
	c := *s
	if s.Features != nil {
		c.Features = append([]string(nil), s.Features...)
	}
	return &c
}

// VisibleFeatures returns the feature tags that may be shown to callers.
// Features are recomputed at the end of a run, so none are shown while Running.
func (s *KnowledgeSource) VisibleFeatures() []string {
	if s.Status == StatusRunning {
		return []string{}
	}
	if s.Features == nil {
		return []string{}
	}
	return s.Features
}

// Chunk is one embedded piece of a knowledge source.
// Chunks are keyed by (SourceId, Index) and only ever replaced wholesale per source.
type Chunk struct {
	SourceId ID        `json:"source_id"`
	Index    int       `json:"chunk_index"`
	Source   string    `json:"source"`
	Page     int       `json:"page,omitempty"` // 1-based; 0 when the format has no pages
	Offset   int       `json:"offset"`         // rune offset of the chunk within its page
	Text     string    `json:"text"`
	Vector   []float32 `json:"vector,omitempty"`
}

// SearchResult represents a search hit with the chunk and its similarity score.
type SearchResult struct {
	Chunk *Chunk  `json:"chunk"`
	Score float32 `json:"score"`
}

// Stats summarises the knowledge base.
type Stats struct {
	DocumentCount int `json:"document_count"`
	ChunkCount    int `json:"chunk_count"`
}
