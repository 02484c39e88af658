// Package config provides configuration loading and validation for the CLI and server.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Converter names
const (
	ConverterChrome = "chrome"
	ConverterHTML   = "html"
)

// Defaults applied by MergeWithDefaults
const (
	DefaultBatchSize          = 32
	DefaultConvertTimeoutSecs = 30
	DefaultStorageDir         = "./data/blobs"
	DefaultStatusRetries      = 3
	DefaultStatusRetryDelayMS = 500
)

// Config represents the configuration that can be loaded from a JSON file.
// All fields are optional; missing values use defaults or must be provided via CLI flags.
type Config struct {
	// Record store: exactly one of these is used
	DatabaseURL string `json:"database_url,omitempty"` // PostgreSQL connection URL
	Dataset     string `json:"dataset,omitempty"`      // Path to a YAML or JSON dataset file

	// Output
	StorageDir string `json:"storage_dir,omitempty"` // Directory for generated documents and archives
	PublicURL  string `json:"public_url,omitempty"`  // Base URL prepended to signed file links
	Converter  string `json:"converter,omitempty"`   // "chrome" (PDF) or "html"

	// Generation
	BatchSize          int    `json:"batch_size,omitempty"`
	ConvertTimeoutSecs int    `json:"convert_timeout_seconds,omitempty"`
	DefaultTemplate    string `json:"default_template,omitempty"` // Template id used when no assignment applies
	LegacyFTEBlock     string `json:"legacy_fte_block,omitempty"` // Dynamic block rendering FTEBreakdown for unmapped templates
	StatusRetries      int    `json:"status_retries,omitempty"`
	StatusRetryDelayMS int    `json:"status_retry_delay_ms,omitempty"`

	// Behavior
	Verbose bool `json:"verbose,omitempty"` // Print detailed progress information
}

// LoadConfig loads configuration from a JSON file.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

// Validate checks that the configuration has valid values.
// Note: This doesn't check for required fields since those are handled
// by CLI flag validation after merging.
func (c *Config) Validate() error {
	if c.Dataset != "" && c.DatabaseURL != "" {
		return fmt.Errorf("config error: 'dataset' and 'database_url' are mutually exclusive")
	}

	if c.BatchSize < 0 {
		return fmt.Errorf("config error: 'batch_size' must be non-negative")
	}
	if c.ConvertTimeoutSecs < 0 {
		return fmt.Errorf("config error: 'convert_timeout_seconds' must be non-negative")
	}
	if c.StatusRetries < 0 {
		return fmt.Errorf("config error: 'status_retries' must be non-negative")
	}
	if c.StatusRetryDelayMS < 0 {
		return fmt.Errorf("config error: 'status_retry_delay_ms' must be non-negative")
	}

	switch c.Converter {
	case "", ConverterChrome, ConverterHTML:
	default:
		return fmt.Errorf("config error: unknown converter %q (expected %q or %q)", c.Converter, ConverterChrome, ConverterHTML)
	}

	if c.Dataset != "" {
		if _, err := os.Stat(c.Dataset); os.IsNotExist(err) {
			return fmt.Errorf("config error: dataset file not found: %s", c.Dataset)
		}
	}

	return nil
}

// MergeWithDefaults returns a new Config with empty fields filled from defaults,
// falling back to the package defaults for generation settings.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	// String fields: use default if empty
	if result.DatabaseURL == "" && result.Dataset == "" {
		result.DatabaseURL = defaults.DatabaseURL
		result.Dataset = defaults.Dataset
	}
	if result.StorageDir == "" {
		result.StorageDir = firstNonEmpty(defaults.StorageDir, DefaultStorageDir)
	}
	if result.PublicURL == "" {
		result.PublicURL = defaults.PublicURL
	}
	if result.Converter == "" {
		result.Converter = firstNonEmpty(defaults.Converter, ConverterChrome)
	}
	if result.DefaultTemplate == "" {
		result.DefaultTemplate = defaults.DefaultTemplate
	}
	if result.LegacyFTEBlock == "" {
		result.LegacyFTEBlock = defaults.LegacyFTEBlock
	}

	// Int fields: use default if zero
	if result.BatchSize == 0 {
		result.BatchSize = firstPositive(defaults.BatchSize, DefaultBatchSize)
	}
	if result.ConvertTimeoutSecs == 0 {
		result.ConvertTimeoutSecs = firstPositive(defaults.ConvertTimeoutSecs, DefaultConvertTimeoutSecs)
	}
	if result.StatusRetries == 0 {
		result.StatusRetries = firstPositive(defaults.StatusRetries, DefaultStatusRetries)
	}
	if result.StatusRetryDelayMS == 0 {
		result.StatusRetryDelayMS = firstPositive(defaults.StatusRetryDelayMS, DefaultStatusRetryDelayMS)
	}

	// Bool fields: cannot distinguish unset from false, so we don't merge
	// (CLI flags should always win for bools)

	return result
}

// ConvertTimeout returns the per-document conversion timeout.
func (c *Config) ConvertTimeout() time.Duration {
	return time.Duration(c.ConvertTimeoutSecs) * time.Second
}

// StatusRetryDelay returns the delay between status hydration attempts.
func (c *Config) StatusRetryDelay() time.Duration {
	return time.Duration(c.StatusRetryDelayMS) * time.Millisecond
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
