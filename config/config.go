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

// Package config loads process settings for the kbingest binary.
//
// Settings come from, in increasing precedence: built-in defaults, an
// optional YAML file, a .env file, and KBINGEST_* environment variables.
// Command line flags are applied by the caller on top of the result.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/poiesic/kbingest/ai"
	"github.com/poiesic/kbingest/chunker"
	"github.com/poiesic/kbingest/ingestion"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "KBINGEST_"

// ErrInvalidConfig wraps every validation and parse failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds everything the binary needs to open a store and serve it.
type Config struct {
	DataDir        string          `yaml:"data_dir"`
	ListenAddr     string          `yaml:"listen_addr"`
	AllowedOrigins []string        `yaml:"allowed_origins,omitempty"`
	Embedding      EmbeddingConfig `yaml:"embedding"`
	Ingestion      IngestionConfig `yaml:"ingestion"`
	Search         SearchConfig    `yaml:"search"`
}

// EmbeddingConfig selects the embedding server. Provider is "openai" for
// any OpenAI-compatible endpoint or "ollama" for Ollama's native API.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"`
	Host       string `yaml:"host"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions,omitempty"`
	// APIKey is usually supplied through KBINGEST_API_KEY rather than the file.
	APIKey string `yaml:"api_key,omitempty"`
}

type IngestionConfig struct {
	PoolSize        int           `yaml:"pool_size"`
	QueueCapacity   int           `yaml:"queue_capacity"`
	ChunkSize       int           `yaml:"chunk_size"`
	ChunkOverlap    int           `yaml:"chunk_overlap"`
	EmbedBatchSize  int           `yaml:"embed_batch_size"`
	RetryAttempts   int           `yaml:"retry_attempts"`
	RetryBaseDelay  time.Duration `yaml:"retry_base_delay"`
	RetryMaxDelay   time.Duration `yaml:"retry_max_delay"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type SearchConfig struct {
	MinScore float32 `yaml:"min_score"`
}

// Default returns the settings used when nothing else is configured.
func Default() *Config {
	aiDefaults := ai.DefaultConfig()
	ing := ingestion.DefaultConfig()
	return &Config{
		DataDir:    defaultDataDir(),
		ListenAddr: "127.0.0.1:8080",
		Embedding: EmbeddingConfig{
			Provider: aiDefaults.Provider,
			Host:     aiDefaults.EmbeddingHost,
			Model:    aiDefaults.EmbeddingModel,
		},
		Ingestion: IngestionConfig{
			PoolSize:        ing.PoolSize,
			QueueCapacity:   ing.QueueCapacity,
			ChunkSize:       ing.Chunking.ChunkSize,
			ChunkOverlap:    ing.Chunking.ChunkOverlap,
			EmbedBatchSize:  ing.EmbedBatchSize,
			RetryAttempts:   ing.Retry.MaxAttempts,
			RetryBaseDelay:  ing.Retry.BaseDelay,
			RetryMaxDelay:   ing.Retry.MaxDelay,
			ShutdownTimeout: ing.ShutdownTimeout,
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".kbingest"
	}
	return filepath.Join(home, ".kbingest")
}

// Load builds a Config from defaults, the YAML file at path and the
// environment. An empty path skips the file. envFiles name the dotenv files
// to read; with none, ./.env is read if it exists. Dotenv values never
// override variables already set in the process environment.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, path, err)
		}
	}

	dotenv, err := godotenv.Read(envFiles...)
	if err != nil {
		if len(envFiles) > 0 || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read env file: %w", err)
		}
		dotenv = nil
	}

	if err := cfg.applyEnv(envLookup(dotenv)); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type lookupFunc func(key string) (string, bool)

// envLookup prefers the process environment over dotenv values.
func envLookup(dotenv map[string]string) lookupFunc {
	return func(key string) (string, bool) {
		if value, ok := os.LookupEnv(key); ok {
			return value, true
		}
		value, ok := dotenv[key]
		return value, ok
	}
}

func (c *Config) applyEnv(lookup lookupFunc) error {
	var errs []error
	str := func(name string, dst *string) {
		if value, ok := lookup(EnvPrefix + name); ok {
			*dst = value
		}
	}
	num := func(name string, dst *int) {
		value, ok := lookup(EnvPrefix + name)
		if !ok {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %s%s=%q is not an integer", ErrInvalidConfig, EnvPrefix, name, value))
			return
		}
		*dst = n
	}
	dur := func(name string, dst *time.Duration) {
		value, ok := lookup(EnvPrefix + name)
		if !ok {
			return
		}
		d, err := time.ParseDuration(strings.TrimSpace(value))
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %s%s=%q is not a duration", ErrInvalidConfig, EnvPrefix, name, value))
			return
		}
		*dst = d
	}

	str("DATA_DIR", &c.DataDir)
	str("LISTEN_ADDR", &c.ListenAddr)
	str("EMBEDDING_PROVIDER", &c.Embedding.Provider)
	str("EMBEDDING_HOST", &c.Embedding.Host)
	str("EMBEDDING_MODEL", &c.Embedding.Model)
	str("API_KEY", &c.Embedding.APIKey)
	num("EMBEDDING_DIMENSIONS", &c.Embedding.Dimensions)

	if value, ok := lookup(EnvPrefix + "ALLOWED_ORIGINS"); ok {
		c.AllowedOrigins = splitList(value)
	}

	num("POOL_SIZE", &c.Ingestion.PoolSize)
	num("QUEUE_CAPACITY", &c.Ingestion.QueueCapacity)
	num("CHUNK_SIZE", &c.Ingestion.ChunkSize)
	num("CHUNK_OVERLAP", &c.Ingestion.ChunkOverlap)
	num("EMBED_BATCH_SIZE", &c.Ingestion.EmbedBatchSize)
	num("RETRY_ATTEMPTS", &c.Ingestion.RetryAttempts)
	dur("RETRY_BASE_DELAY", &c.Ingestion.RetryBaseDelay)
	dur("RETRY_MAX_DELAY", &c.Ingestion.RetryMaxDelay)
	dur("SHUTDOWN_TIMEOUT", &c.Ingestion.ShutdownTimeout)

	if value, ok := lookup(EnvPrefix + "MIN_SCORE"); ok {
		score, err := strconv.ParseFloat(strings.TrimSpace(value), 32)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %sMIN_SCORE=%q is not a number", ErrInvalidConfig, EnvPrefix, value))
		} else {
			c.Search.MinScore = float32(score)
		}
	}

	return errors.Join(errs...)
}

func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// Validate checks the settings and the library configs derived from them.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("%w: data_dir is required", ErrInvalidConfig)
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("%w: listen_addr is required", ErrInvalidConfig)
	}
	if c.Search.MinScore < 0 {
		return fmt.Errorf("%w: min_score must not be negative", ErrInvalidConfig)
	}
	if err := c.AIConfig().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.IngestionConfig().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// AIConfig converts the embedding settings to an ai.Config.
func (c *Config) AIConfig() *ai.Config {
	return ai.NewConfig(
		ai.WithProvider(c.Embedding.Provider),
		ai.WithEmbeddingHost(c.Embedding.Host),
		ai.WithEmbeddingModel(c.Embedding.Model),
		ai.WithAPIKey(c.Embedding.APIKey),
		ai.WithDimensions(c.Embedding.Dimensions),
	)
}

// IngestionConfig converts the ingestion settings to an ingestion.Config.
func (c *Config) IngestionConfig() ingestion.Config {
	return ingestion.Config{
		PoolSize:      c.Ingestion.PoolSize,
		QueueCapacity: c.Ingestion.QueueCapacity,
		Chunking: chunker.Config{
			ChunkSize:    c.Ingestion.ChunkSize,
			ChunkOverlap: c.Ingestion.ChunkOverlap,
		},
		EmbedBatchSize: c.Ingestion.EmbedBatchSize,
		Retry: ingestion.RetryPolicy{
			MaxAttempts: c.Ingestion.RetryAttempts,
			BaseDelay:   c.Ingestion.RetryBaseDelay,
			MaxDelay:    c.Ingestion.RetryMaxDelay,
		},
		ShutdownTimeout: c.Ingestion.ShutdownTimeout,
	}
}

// YAML renders the settings with the API key redacted.
func (c *Config) YAML() ([]byte, error) {
	redacted := *c
	if redacted.Embedding.APIKey != "" {
		redacted.Embedding.APIKey = "<redacted>"
	}
	return yaml.Marshal(&redacted)
}
