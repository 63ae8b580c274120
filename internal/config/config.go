package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Environment variables read by the orchestrator and the embeddings client.
const (
	EnvAPIKey         = "OPENAI_API_KEY"
	EnvBaseURL        = "BASE_URL"
	EnvEmbeddingURL   = "EMBEDDING_URL"
	EnvEmbeddingModel = "EMBEDDING_MODEL"
	EnvEmbedder       = "MOVIEREC_EMBEDDER"
	EnvEmbeddingDim   = "MOVIEREC_EMBEDDING_DIM"
	EnvDataDir        = "MOVIEREC_DATA_DIR"
	EnvVectorDSN      = "MOVIEREC_VECTOR_DSN"
	EnvRatingsDSN     = "MOVIEREC_RATINGS_DSN"
	EnvLogLevel       = "MOVIEREC_LOG_LEVEL"
	EnvLogFormat      = "MOVIEREC_LOG_FORMAT"
)

// MovieRecConfig holds global configuration loaded from ~/.movierec/config.yaml.
type MovieRecConfig struct {
	OpenAIAPIKey   string `yaml:"openai_api_key"`
	BaseURL        string `yaml:"base_url"`
	EmbeddingURL   string `yaml:"embedding_url"`   // Separate URL for embedding API
	EmbeddingModel string `yaml:"embedding_model"` // Embedding model name
	Embedder       string `yaml:"embedder"`        // "api" or "hash"
	EmbeddingDim   int    `yaml:"embedding_dim"`   // hash embedder width, pgvector column width
	DataDir        string `yaml:"data_dir"`        // directory holding Movies.csv, Keywords.csv, Ratings.csv
	VectorDSN      string `yaml:"vector_dsn"`
	RatingsDSN     string `yaml:"ratings_dsn"`
	LogLevel       string `yaml:"log_level"`
	LogFormat      string `yaml:"log_format"`
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".movierec", "config.yaml")
}

// Load reads the YAML config file and sets environment variables.
// Environment variables already set take precedence over the config file.
func Load() (*MovieRecConfig, error) {
	return LoadFrom(DefaultConfigPath())
}

// LoadFrom reads a specific YAML config file and sets environment variables.
func LoadFrom(path string) (*MovieRecConfig, error) {
	cfg := &MovieRecConfig{}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // No config file, not an error
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	setIfEmpty(EnvAPIKey, cfg.OpenAIAPIKey)
	setIfEmpty(EnvBaseURL, cfg.BaseURL)
	setIfEmpty(EnvEmbeddingURL, cfg.EmbeddingURL)
	setIfEmpty(EnvEmbeddingModel, cfg.EmbeddingModel)
	setIfEmpty(EnvEmbedder, cfg.Embedder)
	if cfg.EmbeddingDim > 0 {
		setIfEmpty(EnvEmbeddingDim, strconv.Itoa(cfg.EmbeddingDim))
	}
	setIfEmpty(EnvDataDir, cfg.DataDir)
	setIfEmpty(EnvVectorDSN, cfg.VectorDSN)
	setIfEmpty(EnvRatingsDSN, cfg.RatingsDSN)
	setIfEmpty(EnvLogLevel, cfg.LogLevel)
	setIfEmpty(EnvLogFormat, cfg.LogFormat)

	return cfg, nil
}

func setIfEmpty(key, value string) {
	if value != "" && os.Getenv(key) == "" {
		os.Setenv(key, value)
	}
}
