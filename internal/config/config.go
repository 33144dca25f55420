// Package config provides configuration loading and structs for the Kaiwa server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug   bool          `yaml:"debug"`
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Ollama  OllamaConfig  `yaml:"ollama"`
	Ingest  IngestConfig  `yaml:"ingest"`
	Query   QueryConfig   `yaml:"query"`
	Watch   WatchConfig   `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds the database path and the directory uploaded PDFs are kept in.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
	UploadPath   string `yaml:"upload_path"`
}

// OllamaConfig holds settings for the Ollama service used for embedding and generation.
type OllamaConfig struct {
	BaseURL             string `yaml:"base_url"`
	GenerationModel     string `yaml:"generation_model"`
	EmbeddingModel      string `yaml:"embedding_model"`
	EmbeddingDimensions int    `yaml:"embedding_dimensions"`
	TimeoutSeconds      int    `yaml:"timeout_seconds"`
	PullTimeoutSeconds  int    `yaml:"pull_timeout_seconds"`
}

// IngestConfig holds chunking and upload validation settings.
// ChunkSize and ChunkOverlap are in words.
type IngestConfig struct {
	ChunkSize      int   `yaml:"chunk_size"`
	ChunkOverlap   int   `yaml:"chunk_overlap"`
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
}

// QueryConfig holds retrieval and prompt assembly settings.
// HistoryWindow is the number of trailing session messages included in the
// prompt, bounding context for the generation model.
type QueryConfig struct {
	TopK          int `yaml:"top_k"`
	MaxTopK       int `yaml:"max_top_k"`
	HistoryWindow int `yaml:"history_window"`
	SnippetLength int `yaml:"snippet_length"`
}

// WatchConfig holds the optional drop-directory auto-ingest settings.
// When Directory is empty the watcher is disabled.
type WatchConfig struct {
	Directory string `yaml:"directory"`
}

// Load reads and parses the config file at path, applies defaults, and
// expands relative paths. Returns an error if the file cannot be read or parsed.
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
	cfg.Storage.UploadPath = expandPath(cfg.Storage.UploadPath, configDir)
	if cfg.Watch.Directory != "" {
		cfg.Watch.Directory = expandPath(cfg.Watch.Directory, configDir)
	}

	return &cfg, nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative
// to configDir; other relative paths are relative to the home directory.
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
