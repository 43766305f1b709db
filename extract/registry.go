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

package extract

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

// Extractor reads a file and returns its text.
type Extractor interface {
	Extract(ctx context.Context, path string) (*Document, error)
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc func(ctx context.Context, path string) (*Document, error)

func (f ExtractorFunc) Extract(ctx context.Context, path string) (*Document, error) {
	return f(ctx, path)
}

// Registry dispatches extraction by lower-cased file extension.
type Registry struct {
	mu         sync.RWMutex
	extractors map[string]Extractor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{extractors: make(map[string]Extractor)}
}

// NewDefaultRegistry creates a registry with the built-in extractors.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewTextExtractor(), ".txt", ".md")
	r.Register(NewCSVExtractor(), ".csv")
	r.Register(NewDocconvExtractor(false), ".pdf", ".docx", ".odt", ".rtf", ".html", ".htm")
	return r
}

// Register maps extensions (with or without the leading dot) to e,
// replacing any previous mapping.
func (r *Registry) Register(e Extractor, extensions ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ext := range extensions {
		r.extractors[normalizeExt(ext)] = e
	}
}

// Supports reports whether path has a registered extension.
func (r *Registry) Supports(path string) bool {
	_, err := r.lookup(path)
	return err == nil
}

// Extensions lists the registered extensions in sorted order.
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exts := make([]string, 0, len(r.extractors))
	for ext := range r.extractors {
		exts = append(exts, ext)
	}
	slices.Sort(exts)
	return exts
}

// Extract runs the extractor registered for the path's extension.
// Returns an error wrapping ErrUnsupportedFormat for unknown extensions.
func (r *Registry) Extract(ctx context.Context, path string) (*Document, error) {
	e, err := r.lookup(path)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := e.Extract(ctx, path)
	if err != nil {
		return nil, err
	}
	doc.Path = path
	return doc, nil
}

func (r *Registry) lookup(path string) (Extractor, error) {
	ext := normalizeExt(filepath.Ext(path))
	r.mu.RLock()
	e, ok := r.extractors[ext]
	r.mu.RUnlock()
	if !ok || ext == "" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, displayExt(ext))
	}
	return e, nil
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

func displayExt(ext string) string {
	if ext == "" {
		return "(none)"
	}
	return ext
}
