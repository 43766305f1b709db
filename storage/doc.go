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
// Package storage declares the persistence contracts of kbingest.
//
// SourceRegistry is the single source of truth for a source's status and
// progress. ChunkStore holds the embedded chunks of each source and swaps a
// new set in atomically when a source is refreshed, so searches never see a
// half-written set. Records are encoded with CBOR (see MarshalKnowledgeSource and MarshalChunk).
//
// storage/badger implements both on one BadgerDB instance. Implementations
// must be safe for concurrent use and honor context cancellation.
package storage
