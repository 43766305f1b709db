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

package ai

import (
	"fmt"
	"strings"
)

// Embedding backends understood by the langchain provider.
const (
	// ProviderOpenAI speaks the OpenAI /v1/embeddings protocol. Ollama,
	// LocalAI and vLLM all serve it too.
	ProviderOpenAI = "openai"
	// ProviderOllama uses the native Ollama API.
	ProviderOllama = "ollama"
)

// Config selects and configures the embedding backend.
type Config struct {
	Provider string

	// EmbeddingHost is the server base URL. Normalize adjusts the /v1
	// suffix to what Provider expects.
	EmbeddingHost  string
	EmbeddingModel string

	// APIKey is sent as the bearer token for ProviderOpenAI. Local servers
	// accept any value.
	APIKey string

	// Dimensions is the vector length the model must return. Zero accepts
	// whatever the model produces.
	Dimensions int
}

type ConfigOption func(*Config)

// WithProvider selects ProviderOpenAI or ProviderOllama.
func WithProvider(name string) ConfigOption {
	return func(c *Config) { c.Provider = name }
}

// WithEmbeddingHost sets the server base URL.
func WithEmbeddingHost(host string) ConfigOption {
	return func(c *Config) { c.EmbeddingHost = host }
}

// WithEmbeddingModel sets the model name sent with every request.
func WithEmbeddingModel(model string) ConfigOption {
	return func(c *Config) { c.EmbeddingModel = model }
}

// WithAPIKey sets the bearer token for OpenAI-compatible servers.
func WithAPIKey(key string) ConfigOption {
	return func(c *Config) { c.APIKey = key }
}

// WithDimensions makes the embedder reject vectors of any other length.
func WithDimensions(n int) ConfigOption {
	return func(c *Config) { c.Dimensions = n }
}

// DefaultConfig points at a local Ollama server's OpenAI endpoint running
// the MiniLM sentence embedder.
func DefaultConfig() *Config {
	return &Config{
		Provider:       ProviderOpenAI,
		EmbeddingHost:  "http://localhost:11434/v1",
		EmbeddingModel: "all-minilm",
		APIKey:         "none",
	}
}

// NewConfig applies opts on top of DefaultConfig.
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize fills defaults and fixes up the host for the chosen backend.
func (c *Config) Normalize() {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	if c.Provider == "" {
		c.Provider = ProviderOpenAI
	}
	if c.APIKey == "" {
		c.APIKey = "none"
	}
	if c.EmbeddingHost == "" {
		return
	}

	host := strings.TrimSuffix(c.EmbeddingHost, "/")
	switch c.Provider {
	case ProviderOpenAI:
		if !strings.HasSuffix(host, "/v1") {
			host += "/v1"
		}
	case ProviderOllama:
		host = strings.TrimSuffix(host, "/v1")
	}
	c.EmbeddingHost = host
}

// Validate normalizes c and reports the first missing or unknown setting.
func (c *Config) Validate() error {
	c.Normalize()

	switch c.Provider {
	case ProviderOpenAI, ProviderOllama:
	default:
		return fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, c.Provider)
	}
	if c.EmbeddingHost == "" {
		return fmt.Errorf("%w: EmbeddingHost is required", ErrInvalidConfig)
	}
	if c.EmbeddingModel == "" {
		return fmt.Errorf("%w: EmbeddingModel is required", ErrInvalidConfig)
	}
	if c.Dimensions < 0 {
		return fmt.Errorf("%w: Dimensions must not be negative", ErrInvalidConfig)
	}
	return nil
}
