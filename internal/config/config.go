// Package config provides configuration loading and structs for the matome server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hyperjump/matome/internal/assign"
	"github.com/hyperjump/matome/internal/dedupe"
	"github.com/hyperjump/matome/internal/scoring"
	"github.com/hyperjump/matome/internal/selection"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Knowledge KnowledgeConfig `yaml:"knowledge"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds the session database path. The knowledge index is
// memory-only and rebuilt from its YAML source, so it has no path here.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// EmbeddingConfig holds embedder settings. When RedisAddr is set, embeddings
// are cached in Redis in addition to the in-process LRU.
type EmbeddingConfig struct {
	ModelPath     string `yaml:"model_path"`
	Dimensions    int    `yaml:"dimensions"`
	MaxTokens     int    `yaml:"max_tokens"`
	CacheSize     int    `yaml:"cache_size"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	RedisTTLHours int    `yaml:"redis_ttl_hours"`
}

// LLMConfig holds the Anthropic API settings for the theme proposer, query
// builder, and target resolver. The key is read from APIKeyEnv, never stored
// in the file.
type LLMConfig struct {
	Model     string `yaml:"model"`
	APIKeyEnv string `yaml:"api_key_env"`
	MaxTokens int    `yaml:"max_tokens"`
}

// KnowledgeConfig holds the known-theme knowledge base settings.
type KnowledgeConfig struct {
	ThemesPath string `yaml:"themes_path"`
	Watch      bool   `yaml:"watch"`
	ContextTop int    `yaml:"context_top"`
}

// AnalysisConfig groups the pipeline stage configs. The nested defaults are
// contractual; a config file only needs to name values it overrides.
type AnalysisConfig struct {
	Assign    assign.Config    `yaml:"assign"`
	Scoring   scoring.Config   `yaml:"scoring"`
	Selection selection.Config `yaml:"selection"`
	Dedupe    dedupe.Config    `yaml:"dedupe"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
	if cfg.Knowledge.ThemesPath != "" {
		cfg.Knowledge.ThemesPath = expandPath(cfg.Knowledge.ThemesPath, configDir)
	}

	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// ApplyDefaults fills zero values in cfg with defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8765
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = ".matome/matome.db"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.RedisTTLHours == 0 {
		cfg.Embedding.RedisTTLHours = 24
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "claude-3-5-haiku-20241022"
	}
	if cfg.LLM.APIKeyEnv == "" {
		cfg.LLM.APIKeyEnv = "ANTHROPIC_API_KEY"
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 4096
	}
	if cfg.Knowledge.ContextTop == 0 {
		cfg.Knowledge.ContextTop = 5
	}
	cfg.Analysis.Assign.ApplyDefaults()
	cfg.Analysis.Scoring.ApplyDefaults()
	cfg.Analysis.Selection.ApplyDefaults()
	cfg.Analysis.Dedupe.ApplyDefaults()
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
