// Package config provides configuration loading for coderag.
//
// A single Config value is built once at process start by Load and handed to
// every component constructor. Components never read the environment.
package config

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// Config holds the complete coderag configuration.
type Config struct {
	Repositories []RepositoryDescriptor `koanf:"repositories"`
	Workspace    WorkspaceConfig        `koanf:"workspace"`
	Chunking     ChunkingConfig         `koanf:"chunking"`
	Embeddings   EmbeddingsConfig       `koanf:"embeddings"`
	VectorStore  VectorStoreConfig      `koanf:"vectorstore"`
	Indexing     IndexingConfig         `koanf:"indexing"`
	Generation   GenerationConfig       `koanf:"generation"`
	Query        QueryConfig            `koanf:"query"`
	Server       ServerConfig           `koanf:"server"`
	Logging      LoggingConfig          `koanf:"logging"`
	Telemetry    TelemetryConfig        `koanf:"telemetry"`
}

// RepositoryDescriptor names a repository to index and where to fetch it.
// Name doubles as the local directory name under Workspace.ReposDir.
type RepositoryDescriptor struct {
	Name string `koanf:"name" json:"name"`
	URL  string `koanf:"url" json:"url"`
}

// WorkspaceConfig controls where repositories are cloned and what is read.
type WorkspaceConfig struct {
	ReposDir    string `koanf:"repos_dir"`
	MaxFileSize int64  `koanf:"max_file_size"`
}

// ChunkingConfig controls token windowing.
type ChunkingConfig struct {
	ChunkSize int    `koanf:"chunk_size"`
	Overlap   int    `koanf:"overlap"`
	Encoding  string `koanf:"encoding"`
	// BPEDir holds <encoding>.tiktoken rank files. Empty means download on
	// first use.
	BPEDir string `koanf:"bpe_dir"`
}

// EmbeddingsConfig selects and configures the embedding backend.
type EmbeddingsConfig struct {
	Provider  string   `koanf:"provider"` // tei, fastembed, openai
	BaseURL   string   `koanf:"base_url"`
	Model     string   `koanf:"model"`
	APIKey    Secret   `koanf:"api_key"`
	Dimension int      `koanf:"dimension"`
	CacheDir  string   `koanf:"cache_dir"`
	Timeout   Duration `koanf:"timeout"`
}

// VectorStoreConfig selects the store backend and its write policy.
type VectorStoreConfig struct {
	Provider          string        `koanf:"provider"` // qdrant, chromem
	Collection        string        `koanf:"collection"`
	Qdrant            QdrantConfig  `koanf:"qdrant"`
	Chromem           ChromemConfig `koanf:"chromem"`
	UpsertInterval    Duration      `koanf:"upsert_interval"`
	MaxAttempts       int           `koanf:"max_attempts"`
	RetryBackoff      Duration      `koanf:"retry_backoff"`
	OversizeThreshold int           `koanf:"oversize_threshold"`
}

// QdrantConfig holds Qdrant gRPC connection settings.
type QdrantConfig struct {
	Host   string `koanf:"host"`
	Port   int    `koanf:"port"`
	APIKey Secret `koanf:"api_key"`
	UseTLS bool   `koanf:"use_tls"`
}

// ChromemConfig holds embedded chromem-go settings. An empty Path keeps the
// database in memory.
type ChromemConfig struct {
	Path     string `koanf:"path"`
	Compress bool   `koanf:"compress"`
}

// IndexingConfig controls pacing of an indexing run.
type IndexingConfig struct {
	BatchSize    int      `koanf:"batch_size"`
	BatchDelay   Duration `koanf:"batch_delay"`
	ScrubSecrets bool     `koanf:"scrub_secrets"`
	// Gitleaks adds the gitleaks rule set to scrubbing.
	Gitleaks bool `koanf:"gitleaks"`
}

// GenerationConfig selects and configures the answer generator.
type GenerationConfig struct {
	Provider    string   `koanf:"provider"` // openai, ollama
	BaseURL     string   `koanf:"base_url"`
	Model       string   `koanf:"model"`
	APIKey      Secret   `koanf:"api_key"`
	Temperature float64  `koanf:"temperature"`
	MaxTokens   int      `koanf:"max_tokens"`
	Timeout     Duration `koanf:"timeout"`
}

// QueryConfig controls retrieval at question time.
type QueryConfig struct {
	TopK    int      `koanf:"top_k"`
	Timeout Duration `koanf:"timeout"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig is the subset of logging settings exposed to config files.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// TelemetryConfig controls OTLP export of traces and metrics.
type TelemetryConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Endpoint    string  `koanf:"endpoint"`
	Protocol    string  `koanf:"protocol"` // grpc, http/protobuf
	Insecure    bool    `koanf:"insecure"`
	SampleRate  float64 `koanf:"sample_rate"`
	ServiceName string  `koanf:"service_name"`
}

var (
	// ErrInvalidConfig wraps every validation failure.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidRepository marks a repository entry that is skipped at run time.
	ErrInvalidRepository = errors.New("invalid repository entry")

	collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)
	repoNamePattern       = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)
)

// Validate checks config for errors that must stop the process before any I/O.
func (c *Config) Validate() error {
	if len(c.Repositories) == 0 {
		return fmt.Errorf("%w: repositories list is empty", ErrInvalidConfig)
	}
	if c.Workspace.ReposDir == "" {
		return fmt.Errorf("%w: workspace.repos_dir is required", ErrInvalidConfig)
	}
	if c.Chunking.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunking.chunk_size must be > 0, got %d", ErrInvalidConfig, c.Chunking.ChunkSize)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.ChunkSize {
		return fmt.Errorf("%w: chunking.overlap must be in [0, chunk_size), got %d", ErrInvalidConfig, c.Chunking.Overlap)
	}

	switch c.Embeddings.Provider {
	case "tei", "fastembed":
	case "openai":
		if !c.Embeddings.APIKey.IsSet() {
			return fmt.Errorf("%w: embeddings.api_key is required for provider openai", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown embeddings.provider %q", ErrInvalidConfig, c.Embeddings.Provider)
	}
	if c.Embeddings.Dimension <= 0 {
		return fmt.Errorf("%w: embeddings.dimension must be > 0", ErrInvalidConfig)
	}

	switch c.VectorStore.Provider {
	case "qdrant":
		if c.VectorStore.Qdrant.Host == "" || c.VectorStore.Qdrant.Port <= 0 {
			return fmt.Errorf("%w: vectorstore.qdrant host and port are required", ErrInvalidConfig)
		}
	case "chromem":
	default:
		return fmt.Errorf("%w: unknown vectorstore.provider %q", ErrInvalidConfig, c.VectorStore.Provider)
	}
	if !collectionNamePattern.MatchString(c.VectorStore.Collection) {
		return fmt.Errorf("%w: vectorstore.collection %q must match %s", ErrInvalidConfig, c.VectorStore.Collection, collectionNamePattern)
	}
	if c.VectorStore.MaxAttempts < 1 {
		return fmt.Errorf("%w: vectorstore.max_attempts must be >= 1", ErrInvalidConfig)
	}

	switch c.Generation.Provider {
	case "openai":
		if !c.Generation.APIKey.IsSet() {
			return fmt.Errorf("%w: generation.api_key is required for provider openai", ErrInvalidConfig)
		}
	case "ollama":
	default:
		return fmt.Errorf("%w: unknown generation.provider %q", ErrInvalidConfig, c.Generation.Provider)
	}

	if c.Indexing.BatchSize <= 0 {
		return fmt.Errorf("%w: indexing.batch_size must be > 0", ErrInvalidConfig)
	}
	if c.Query.TopK <= 0 {
		return fmt.Errorf("%w: query.top_k must be > 0", ErrInvalidConfig)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port out of range: %d", ErrInvalidConfig, c.Server.Port)
	}
	if c.Telemetry.Enabled {
		if c.Telemetry.Endpoint == "" {
			return fmt.Errorf("%w: telemetry.endpoint is required when telemetry is enabled", ErrInvalidConfig)
		}
		if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
			return fmt.Errorf("%w: telemetry.sample_rate must be between 0 and 1, got %g", ErrInvalidConfig, c.Telemetry.SampleRate)
		}
	}
	return nil
}

// ValidateRepository reports whether a single entry can be indexed.
func ValidateRepository(r RepositoryDescriptor) error {
	if r.Name == "" {
		return fmt.Errorf("%w: missing name (url=%q)", ErrInvalidRepository, r.URL)
	}
	if r.URL == "" {
		return fmt.Errorf("%w: %q has no url", ErrInvalidRepository, r.Name)
	}
	if !repoNamePattern.MatchString(r.Name) || r.Name == "." || r.Name == ".." {
		return fmt.Errorf("%w: name %q is not filesystem-safe", ErrInvalidRepository, r.Name)
	}
	return nil
}

// ValidRepositories splits entries into those that can be indexed and the
// per-entry errors for the rest. Invalid entries never fail the whole run.
func ValidRepositories(repos []RepositoryDescriptor) ([]RepositoryDescriptor, []error) {
	valid := make([]RepositoryDescriptor, 0, len(repos))
	var rejected []error
	seen := make(map[string]bool, len(repos))
	for _, r := range repos {
		if err := ValidateRepository(r); err != nil {
			rejected = append(rejected, err)
			continue
		}
		if seen[r.Name] {
			rejected = append(rejected, fmt.Errorf("%w: duplicate name %q", ErrInvalidRepository, r.Name))
			continue
		}
		seen[r.Name] = true
		valid = append(valid, r)
	}
	return valid, rejected
}

// defaults returns the lowest-precedence layer, keyed by koanf path.
func defaults() map[string]interface{} {
	return map[string]interface{}{
		"workspace.repos_dir":            "repos",
		"workspace.max_file_size":        int64(1 << 20),
		"chunking.chunk_size":            1000,
		"chunking.overlap":               200,
		"chunking.encoding":              "cl100k_base",
		"chunking.bpe_dir":               "",
		"embeddings.provider":            "tei",
		"embeddings.base_url":            "http://localhost:8081",
		"embeddings.model":               "BAAI/bge-large-en-v1.5",
		"embeddings.dimension":           1024,
		"embeddings.timeout":             "30s",
		"vectorstore.provider":           "qdrant",
		"vectorstore.collection":         "code_chunks",
		"vectorstore.qdrant.host":        "localhost",
		"vectorstore.qdrant.port":        6334,
		"vectorstore.chromem.compress":   true,
		"vectorstore.upsert_interval":    "100ms",
		"vectorstore.max_attempts":       2,
		"vectorstore.retry_backoff":      "2s",
		"vectorstore.oversize_threshold": 10 * 1024,
		"indexing.batch_size":            10,
		"indexing.batch_delay":           "1s",
		"indexing.scrub_secrets":         true,
		"indexing.gitleaks":              true,
		"generation.provider":            "openai",
		"generation.base_url":            "https://api.openai.com/v1",
		"generation.model":               "gpt-4o-mini",
		"generation.temperature":         0.2,
		"generation.max_tokens":          1024,
		"generation.timeout":             "60s",
		"query.top_k":                    5,
		"query.timeout":                  "90s",
		"server.host":                    "127.0.0.1",
		"server.port":                    8080,
		"server.shutdown_timeout":        "10s",
		"logging.level":                  "info",
		"logging.format":                 "json",
		"telemetry.enabled":              false,
		"telemetry.endpoint":             "localhost:4317",
		"telemetry.protocol":             "grpc",
		"telemetry.insecure":             true,
		"telemetry.sample_rate":          1.0,
		"telemetry.service_name":         "coderag",
	}
}

// ShutdownTimeout returns the server shutdown timeout, falling back to 10s.
func (c *Config) ShutdownTimeout() time.Duration {
	if d := c.Server.ShutdownTimeout.Duration(); d > 0 {
		return d
	}
	return 10 * time.Second
}
