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
	"fmt"
)

// ValidateKnowledgeSource validates a KnowledgeSource according to domain rules.
//
// Validation rules:
//   - SourcePath and Filename must not be empty
//   - Status must be one of the four lifecycle states
//   - Progress must be within 0-100
//   - Progress is 100 exactly when Status is Completed
//   - ErrorMessage is set exactly when Status is Failed
//
// NOT validated:
//   - ID (0 is valid before the registry assigns one)
//   - ChunkCount and Features (owned by the runner)
func ValidateKnowledgeSource(source *KnowledgeSource) error {
	if source == nil {
		return fmt.Errorf("%w: source is nil", ErrInvalidSource)
	}

	if source.SourcePath == "" {
		return fmt.Errorf("%w: %w", ErrInvalidSource, ErrEmptySourcePath)
	}

	if source.Filename == "" {
		return fmt.Errorf("%w: %w", ErrInvalidSource, ErrEmptyFilename)
	}

	if !source.Status.IsValid() {
		return fmt.Errorf("%w: %w: value %d", ErrInvalidSource, ErrInvalidStatus, int(source.Status))
	}

	if source.Progress < 0 || source.Progress > ProgressComplete {
		return fmt.Errorf("%w: %w: %d", ErrInvalidSource, ErrInvalidProgress, source.Progress)
	}

	if (source.Progress == ProgressComplete) != (source.Status == StatusCompleted) {
		return fmt.Errorf("%w: progress %d with status %s", ErrInvalidSource, source.Progress, source.Status)
	}

	if (source.ErrorMessage != "") != (source.Status == StatusFailed) {
		return fmt.Errorf("%w: error message with status %s", ErrInvalidSource, source.Status)
	}

	return nil
}

// ValidateChunk validates a Chunk before it is stored.
//
// Validation rules:
//   - Text must not be empty
//   - Index must not be negative
//
// NOT validated:
//   - Vector (dimension depends on the embedding model)
func ValidateChunk(chunk *Chunk) error {
	if chunk == nil {
		return fmt.Errorf("%w: chunk is nil", ErrInvalidChunk)
	}

	if chunk.Text == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmptyContent)
	}

	if chunk.Index < 0 {
		return fmt.Errorf("%w: negative index %d", ErrInvalidChunk, chunk.Index)
	}

	return nil
}
