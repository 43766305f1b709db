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

// Package search answers text queries against the stored chunks of every
// knowledge source.
//
// The Searcher embeds the query with the same embedder used at ingestion
// time and ranks chunks by:
//   - Cosine similarity between the query and chunk vectors
//   - A boost for chunks that contain every keyword of the query
//
// Only fully stored chunk sets are visible, so results never mix chunks
// from two runs of the same source.
package search
