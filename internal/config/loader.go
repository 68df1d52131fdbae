package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix is required on every environment override.
	EnvPrefix = "CODERAG_"

	maxConfigFileSize = 1024 * 1024 // 1MB
)

// nestedSections are second-level sections whose env names need an extra split.
var nestedSections = map[string][]string{
	"vectorstore": {"qdrant", "chromem"},
}

// Options controls where Load looks for configuration.
type Options struct {
	// ConfigPath is a YAML file. Missing files are an error only when set.
	ConfigPath string
	// DotEnvPath is an optional dotenv file applied above the YAML layer.
	DotEnvPath string
}

// Load builds the process configuration.
//
// Precedence (highest to lowest):
//  1. Environment variables (CODERAG_VECTORSTORE_COLLECTION, ...)
//  2. Dotenv file entries using the same names
//  3. YAML config file
//  4. Built-in defaults
//
// Environment names drop the prefix, lowercase, and split on the first
// underscore: CODERAG_QUERY_TOP_K -> query.top_k. Under vectorstore the
// qdrant and chromem sub-sections split once more:
// CODERAG_VECTORSTORE_QDRANT_API_KEY -> vectorstore.qdrant.api_key.
func Load(opts Options) (*Config, error) {
	k := koanf.New(".")

	for key, val := range defaults() {
		if err := k.Set(key, val); err != nil {
			return nil, fmt.Errorf("failed to set default %s: %w", key, err)
		}
	}

	if opts.ConfigPath != "" {
		content, err := readConfigFile(opts.ConfigPath)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", opts.ConfigPath, err)
		}
	}

	if opts.DotEnvPath != "" {
		vars, err := godotenv.Read(opts.DotEnvPath)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read dotenv file %s: %w", opts.DotEnvPath, err)
		}
		for name, val := range vars {
			key := envKey(name)
			if key == "" {
				continue
			}
			if err := k.Set(key, val); err != nil {
				return nil, fmt.Errorf("failed to apply %s: %w", name, err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// envKey maps CODERAG_SECTION_FIELD_NAME to section.field_name.
// Returns "" for names without the prefix so koanf skips them.
func envKey(name string) string {
	if !strings.HasPrefix(name, EnvPrefix) {
		return ""
	}
	lower := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	section, field := parts[0], parts[1]
	for _, sub := range nestedSections[section] {
		if strings.HasPrefix(field, sub+"_") {
			return section + "." + sub + "." + strings.TrimPrefix(field, sub+"_")
		}
	}
	return section + "." + field
}

// readConfigFile opens once and checks size on the open descriptor.
func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("%w: config file too large: %d bytes (max %d)", ErrInvalidConfig, info.Size(), maxConfigFileSize)
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}
