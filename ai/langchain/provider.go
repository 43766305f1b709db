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

package langchain

import (
	"log/slog"

	"github.com/poiesic/kbingest/ai"
)

// Provider implements ai.AIProvider. The langchaingo clients hold no
// connections of their own, so Close only logs.
type Provider struct {
	embedder *Embedder
	logger   *slog.Logger
}

type ProviderOption func(*Provider)

// WithLogger sets the logger the provider and its embedder log to.
func WithLogger(logger *slog.Logger) ProviderOption {
	return func(p *Provider) { p.logger = logger }
}

// NewProvider validates config and builds its embedder.
func NewProvider(config *ai.Config, opts ...ProviderOption) (ai.AIProvider, error) {
	p := &Provider{logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	embedder, err := newEmbedder(config, p.logger)
	if err != nil {
		return nil, err
	}
	p.embedder = embedder
	p.logger = p.logger.With("component", "ai-provider")
	p.logger.Debug("embedding provider ready", "provider", config.Provider, "host", config.EmbeddingHost)
	return p, nil
}

func (p *Provider) Embedder() ai.Embedder {
	return p.embedder
}

func (p *Provider) Close() error {
	p.logger.Debug("closing embedding provider")
	return nil
}
