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
	"strings"
)

// Status is the lifecycle state of a knowledge source.
type Status int

const (
	// StatusPending means a job has been queued but not yet started.
	StatusPending Status = iota + 1
	// StatusRunning means a worker is executing the ingestion stages.
	StatusRunning
	// StatusCompleted means the last run stored all chunks.
	StatusCompleted
	// StatusFailed means the last run stopped with an error.
	StatusFailed
)

var statusNames = map[Status]string{
	StatusPending:   "pending",
	StatusRunning:   "running",
	StatusCompleted: "completed",
	StatusFailed:    "failed",
}

// String returns the lowercase name used in JSON and on the wire.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// IsValid reports whether s is one of the four known states.
func (s Status) IsValid() bool {
	_, ok := statusNames[s]
	return ok
}

// IsActive reports whether a job for the source is queued or running.
func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusRunning
}

// IsTerminal reports whether the last run has finished.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ParseStatus converts a status name to a Status.
func ParseStatus(name string) (Status, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for status, n := range statusNames {
		if n == name {
			return status, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidStatus, name)
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	if !s.IsValid() {
		return nil, fmt.Errorf("%w: value %d", ErrInvalidStatus, int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Mode distinguishes a first ingestion from a re-ingestion.
type Mode int

const (
	// ModeCreate ingests a source that has no stored chunks yet.
	ModeCreate Mode = iota + 1
	// ModeRefresh replaces the stored chunks of an existing source.
	ModeRefresh
)
// String returns the name used in logs and metric labels.

func (m Mode) String() string {
	switch m {
	case ModeCreate:
		return "create"
	case ModeRefresh:
		return "refresh"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}
