// Package config provides configuration loading and management for semguard.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/c360studio/semguard/registry"
)

// Cache backends.
const (
	CacheMemory = "memory"
	CacheSQLite = "sqlite"
	CacheNATS   = "nats"
	CacheNone   = "none"
)

// Config represents the complete semguard configuration
type Config struct {
	Registry  RegistryConfig            `yaml:"registry"`
	Repo      RepoConfig                `yaml:"repo"`
	Files     FilesConfig               `yaml:"files"`
	Languages map[string]LanguageConfig `yaml:"languages"`
	Cache     CacheConfig               `yaml:"cache"`

	// Concurrency bounds parallel file validations (0 = number of CPUs)
	Concurrency int `yaml:"concurrency"`
}

// RegistryConfig locates the architecture registry
type RegistryConfig struct {
	// Path is a registry document or a directory of documents
	Path string `yaml:"path"`
}

// RepoConfig configures the repository settings
type RepoConfig struct {
	// Path is the repository root path (auto-detected from git if empty)
	Path string `yaml:"path"`
}

// FilesConfig selects the files to validate
type FilesConfig struct {
	// Include lists doublestar globs, relative to the repository root
	Include []string `yaml:"include"`
	// Exclude lists doublestar globs that win over Include
	Exclude []string `yaml:"exclude"`
}

// LanguageConfig configures one language
type LanguageConfig struct {
	// Enabled defaults to true
	Enabled *bool `yaml:"enabled,omitempty"`
	// SkipConstraints lists rule names never evaluated for this language
	SkipConstraints []string `yaml:"skip_constraints,omitempty"`
}

// CacheConfig configures the result cache
type CacheConfig struct {
	// Backend is memory, sqlite, nats or none
	Backend string `yaml:"backend"`
	// Path is the SQLite database file
	Path string `yaml:"path"`
	// NATSURL is the NATS server for the JetStream KV backend
	NATSURL string `yaml:"nats_url"`
	// Bucket is the JetStream KV bucket name
	Bucket string `yaml:"bucket"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Registry: RegistryConfig{
			Path: ".semguard/registry",
		},
		Repo: RepoConfig{
			Path: "", // Auto-detect
		},
		Files: FilesConfig{
			Include: []string{
				"**/*.ts", "**/*.tsx", "**/*.mts", "**/*.cts",
				"**/*.js", "**/*.jsx", "**/*.mjs", "**/*.cjs",
				"**/*.py", "**/*.go",
			},
			Exclude: []string{
				"**/node_modules/**",
				"**/vendor/**",
				"**/dist/**",
				"**/__pycache__/**",
				"**/*.d.ts",
			},
		},
		Languages: map[string]LanguageConfig{},
		Cache: CacheConfig{
			Backend: CacheMemory,
			Path:    ".semguard/cache.db",
			Bucket:  "SEMGUARD_CACHE",
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Registry.Path == "" {
		return fmt.Errorf("registry.path is required")
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("concurrency must not be negative")
	}

	for _, g := range append(append([]string(nil), c.Files.Include...), c.Files.Exclude...) {
		if !doublestar.ValidatePattern(g) {
			return fmt.Errorf("files: invalid glob %q", g)
		}
	}

	for lang, lc := range c.Languages {
		for _, rule := range lc.SkipConstraints {
			if !registry.Rule(rule).Known() {
				return fmt.Errorf("languages.%s.skip_constraints: unknown rule %q", lang, rule)
			}
		}
	}

	switch c.Cache.Backend {
	case CacheMemory, CacheNone:
	case CacheSQLite:
		if c.Cache.Path == "" {
			return fmt.Errorf("cache.path is required for the sqlite backend")
		}
	case CacheNATS:
		if c.Cache.NATSURL == "" {
			return fmt.Errorf("cache.nats_url is required for the nats backend")
		}
		if c.Cache.Bucket == "" {
			return fmt.Errorf("cache.bucket is required for the nats backend")
		}
	default:
		return fmt.Errorf("cache.backend must be one of memory, sqlite, nats, none; got %q", c.Cache.Backend)
	}
	return nil
}

// LanguageEnabled reports whether files of lang are validated.
func (c *Config) LanguageEnabled(lang string) bool {
	lc, ok := c.Languages[lang]
	if !ok || lc.Enabled == nil {
		return true
	}
	return *lc.Enabled
}

// SkipConstraints returns the rules skipped for lang.
func (c *Config) SkipConstraints(lang string) map[registry.Rule]bool {
	lc, ok := c.Languages[lang]
	if !ok || len(lc.SkipConstraints) == 0 {
		return nil
	}
	skip := make(map[registry.Rule]bool, len(lc.SkipConstraints))
	for _, r := range lc.SkipConstraints {
		skip[registry.Rule(r)] = true
	}
	return skip
}

// Matches reports whether a slash-separated path relative to the repository
// root is selected by the include and exclude globs.
func (c *Config) Matches(rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, g := range c.Files.Exclude {
		if ok, _ := doublestar.Match(g, rel); ok {
			return false
		}
	}
	for _, g := range c.Files.Include {
		if ok, _ := doublestar.Match(g, rel); ok {
			return true
		}
	}
	return false
}

// Checksum identifies the settings that affect validation results. Cached
// results are only reused under the same checksum.
func (c *Config) Checksum() string {
	relevant := struct {
		Languages map[string]LanguageConfig `yaml:"languages"`
	}{c.Languages}

	data, err := yaml.Marshal(relevant)
	if err != nil {
		return ""
	}
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	if other.Registry.Path != "" {
		c.Registry.Path = other.Registry.Path
	}
	if other.Repo.Path != "" {
		c.Repo.Path = other.Repo.Path
	}

	// Files: lists replace, they do not append
	if len(other.Files.Include) > 0 {
		c.Files.Include = other.Files.Include
	}
	if len(other.Files.Exclude) > 0 {
		c.Files.Exclude = other.Files.Exclude
	}

	// Languages merge per language
	if len(other.Languages) > 0 && c.Languages == nil {
		c.Languages = make(map[string]LanguageConfig, len(other.Languages))
	}
	for lang, lc := range other.Languages {
		merged := c.Languages[lang]
		if lc.Enabled != nil {
			merged.Enabled = lc.Enabled
		}
		if len(lc.SkipConstraints) > 0 {
			merged.SkipConstraints = lc.SkipConstraints
		}
		c.Languages[lang] = merged
	}

	// Cache
	if other.Cache.Backend != "" {
		c.Cache.Backend = other.Cache.Backend
	}
	if other.Cache.Path != "" {
		c.Cache.Path = other.Cache.Path
	}
	if other.Cache.NATSURL != "" {
		c.Cache.NATSURL = other.Cache.NATSURL
	}
	if other.Cache.Bucket != "" {
		c.Cache.Bucket = other.Cache.Bucket
	}

	if other.Concurrency != 0 {
		c.Concurrency = other.Concurrency
	}
}
