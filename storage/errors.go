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

import "errors"

// Sentinel errors returned by the store implementations. Callers match them
// with errors.Is; implementations wrap them with detail.
var (
	// ErrNotFound is returned for an unknown source ID.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateKey is returned when Create is given an ID that is taken.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrTransactionFailed is returned when an update keeps losing
	// optimistic concurrency races.
	ErrTransactionFailed = errors.New("transaction failed")

	// ErrStorageClosed is returned by operations on a closed backend.
	ErrStorageClosed = errors.New("storage is closed")

	// ErrInvalidQuery is returned for a non-positive topK or an empty vector.
	ErrInvalidQuery = errors.New("invalid query parameters")

	// ErrSerializationFailed wraps codec failures on stored records.
	ErrSerializationFailed = errors.New("serialization failed")

	// ErrTruncatedData is returned for an encoded ID of the wrong length.
	ErrTruncatedData = errors.New("truncated data")
)
