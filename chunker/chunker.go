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

// Package chunker splits extracted documents into overlapping chunks sized
// for embedding.
package chunker

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/poiesic/kbingest/core"
	"github.com/poiesic/kbingest/extract"
	"github.com/tmc/langchaingo/textsplitter"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// ErrInvalidConfig is returned for chunk sizes the splitter cannot honor.
var ErrInvalidConfig = errors.New("invalid chunker config")

// Config sizes chunks in characters (runes).
type Config struct {
	ChunkSize    int
	ChunkOverlap int
}

// DefaultConfig splits into 1000-character chunks overlapping by 200.
func DefaultConfig() Config {
	return Config{
		ChunkSize:    DefaultChunkSize,
		ChunkOverlap: DefaultChunkOverlap,
	}
}

// Validate requires a positive size and an overlap smaller than it.
func (c Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidConfig, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: overlap %d must be in [0, %d)", ErrInvalidConfig, c.ChunkOverlap, c.ChunkSize)
	}
	return nil
}

// Chunker wraps langchaingo's recursive character splitter, which tries
// paragraph, line and word boundaries before cutting inside a word.
type Chunker struct {
	splitter textsplitter.RecursiveCharacter
}

// New returns a Chunker for a valid cfg.
func New(cfg Config) (*Chunker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Chunker{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(cfg.ChunkSize),
			textsplitter.WithChunkOverlap(cfg.ChunkOverlap),
		),
	}, nil
}

// Split chunks every page of doc. Chunk indexes run across pages starting
// at 0; whitespace-only pieces are dropped.
func (c *Chunker) Split(doc *extract.Document) ([]*core.Chunk, error) {
	var chunks []*core.Chunk
	for _, page := range doc.Pages {
		if strings.TrimSpace(page.Text) == "" {
			continue
		}
		pieces, err := c.splitter.SplitText(page.Text)
		if err != nil {
			return nil, err
		}

		cursor := 0
		for _, piece := range pieces {
			if strings.TrimSpace(piece) == "" {
				continue
			}
			offset := cursor
			if i := strings.Index(page.Text[cursor:], piece); i >= 0 {
				offset = cursor + i
				cursor = offset + 1
			}
			chunks = append(chunks, &core.Chunk{
				Index:  len(chunks),
				Source: doc.Path,
				Page:   page.Number,
				Offset: utf8.RuneCountInString(page.Text[:offset]),
				Text:   piece,
			})
		}
	}
	return chunks, nil
}
