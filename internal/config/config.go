// Package config provides application configuration management using koanf
package config

import (
	"fmt"
	"log"
	"os"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig `koanf:"server"`

	// Database configuration
	Database DatabaseConfig `koanf:"database"`

	// External services
	Services ServicesConfig `koanf:"services"`

	// Document ingestion settings
	Ingest IngestConfig `koanf:"ingest"`

	// Retrieval settings
	Retrieval RetrievalConfig `koanf:"retrieval"`

	// Vertical -> trigger-term tables driving the classifier. Loaded once
	// at startup and treated as immutable afterwards.
	Verticals map[string][]string `koanf:"verticals"`

	// Company -> vertical grants used by access control.
	Companies map[string][]string `koanf:"companies"`

	// Principal directory: username -> role and company memberships.
	// Token issuance is an external concern; the core only resolves
	// already-authenticated usernames.
	Principals map[string]PrincipalConfig `koanf:"principals"`

	// Application settings
	App AppConfig `koanf:"app"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string `koanf:"host"`
	Port         int    `koanf:"port"`
	ReadTimeout  int    `koanf:"read_timeout"`  // seconds
	WriteTimeout int    `koanf:"write_timeout"` // seconds
}

// DatabaseConfig holds vector store database configuration
type DatabaseConfig struct {
	Path string `koanf:"path"`
}

// ServicesConfig holds external service configuration
type ServicesConfig struct {
	Ollama OllamaConfig `koanf:"ollama"`
}

// OllamaConfig holds Ollama service configuration
type OllamaConfig struct {
	BaseURL        string `koanf:"base_url"`
	EmbeddingModel string `koanf:"embedding_model"`
	LLMModel       string `koanf:"llm_model"`
	Timeout        int    `koanf:"timeout"` // seconds, per call
}

// IngestConfig bounds document ingestion.
type IngestConfig struct {
	MaxUploadBytes int64 `koanf:"max_upload_bytes"`
	ChunkSize      int   `koanf:"chunk_size"`    // characters
	ChunkOverlap   int   `koanf:"chunk_overlap"` // characters, < chunk_size
	EmbedWorkers   int   `koanf:"embed_workers"`
}

// RetrievalConfig bounds the query-time pipeline.
type RetrievalConfig struct {
	TopK                int     `koanf:"top_k"`
	SimilarityThreshold float64 `koanf:"similarity_threshold"`
	MaxContextLength    int     `koanf:"max_context_length"` // characters
}

// PrincipalConfig describes one user in the directory.
type PrincipalConfig struct {
	Role      string   `koanf:"role"`
	Companies []string `koanf:"companies"`
}

// AppConfig holds general application settings
type AppConfig struct {
	Environment string `koanf:"environment"` // "development", "staging", "production"
	LogLevel    string `koanf:"log_level"`   // "debug", "info", "warn", "error"
	LogFormat   string `koanf:"log_format"`  // "text" or "json"
}

// Load loads configuration from multiple sources with precedence:
// 1. config.yaml (if exists)
// 2. config.json (if exists)
// 3. Environment variables (highest precedence)
func Load() (*Config, error) {
	k := koanf.New(".")

	// Set defaults
	setDefaults(k)

	// Load from config files (optional)
	loadConfigFiles(k)

	// Load from environment variables (highest precedence)
	if err := k.Load(env.Provider(".", env.Opt{}), nil); err != nil {
		return nil, fmt.Errorf("error loading environment variables: %w", err)
	}

	// Unmarshal into config struct
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Validate configuration
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(k *koanf.Koanf) {
	defaults := map[string]interface{}{
		// Server defaults
		"server.host":          "localhost",
		"server.port":          8080,
		"server.read_timeout":  30,
		"server.write_timeout": 60,

		// Database defaults
		"database.path": "vector_store.db",

		// Services defaults
		"services.ollama.base_url":        "http://localhost:11434",
		"services.ollama.embedding_model": "nomic-embed-text",
		"services.ollama.llm_model":       "llama3",
		"services.ollama.timeout":         60,

		// Ingestion defaults
		"ingest.max_upload_bytes": int64(50 * 1024 * 1024),
		"ingest.chunk_size":       1000,
		"ingest.chunk_overlap":    200,
		"ingest.embed_workers":    4,

		// Retrieval defaults
		"retrieval.top_k":                5,
		"retrieval.similarity_threshold": 0.7,
		"retrieval.max_context_length":   8000,

		// App defaults
		"app.environment": "development",
		"app.log_level":   "info",
		"app.log_format":  "text",
	}

	for key, value := range defaults {
		_ = k.Set(key, value) // Ignore error for setting defaults
	}

	// Default vertical trigger terms for the group's business units.
	_ = k.Set("verticals", map[string][]string{
		"jio":       {"JIO", "telecom", "telecommunications", "digital", "platform"},
		"retail":    {"retail", "Reliance Retail", "stores", "commerce"},
		"energy":    {"energy", "petroleum", "refinery", "oil", "gas"},
		"chemicals": {"chemicals", "petrochemicals", "polymer"},
		"media":     {"media", "entertainment", "broadcasting"},
		"financial": {"financial", "banking", "insurance", "investment"},
	})

	_ = k.Set("companies", map[string][]string{
		"Reliance Jio Infocomm": {"jio"},
		"Reliance Retail":       {"retail"},
		"Reliance Industries":   {"energy", "chemicals"},
		"Network18":             {"media"},
		"Jio Financial":         {"financial"},
	})

	_ = k.Set("principals", map[string]PrincipalConfig{
		"alice": {Role: "analyst"},
		"bob":   {Role: "ceo", Companies: []string{"Reliance Jio Infocomm"}},
		"peter": {Role: "group_ceo"},
	})
}

// loadConfigFiles loads configuration from files
func loadConfigFiles(k *koanf.Koanf) {
	// Try to load YAML config
	if _, err := os.Stat("config.yaml"); err == nil {
		if err := k.Load(file.Provider("config.yaml"), yaml.Parser()); err != nil {
			log.Printf("Warning: failed to load config.yaml: %v", err)
		}
	}

	// Try to load JSON config
	if _, err := os.Stat("config.json"); err == nil {
		if err := k.Load(file.Provider("config.json"), json.Parser()); err != nil {
			log.Printf("Warning: failed to load config.json: %v", err)
		}
	}
}

// validate validates the configuration
func validate(cfg *Config) error {
	if cfg.Ingest.ChunkSize <= 0 {
		return fmt.Errorf("ingest.chunk_size must be positive")
	}
	if cfg.Ingest.ChunkOverlap < 0 || cfg.Ingest.ChunkOverlap >= cfg.Ingest.ChunkSize {
		return fmt.Errorf("ingest.chunk_overlap must be in [0, chunk_size)")
	}
	if cfg.Ingest.MaxUploadBytes <= 0 {
		return fmt.Errorf("ingest.max_upload_bytes must be positive")
	}
	if cfg.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be positive")
	}
	if cfg.Retrieval.SimilarityThreshold < 0 || cfg.Retrieval.SimilarityThreshold > 1 {
		return fmt.Errorf("retrieval.similarity_threshold must be in [0, 1]")
	}
	if cfg.Retrieval.MaxContextLength <= 0 {
		return fmt.Errorf("retrieval.max_context_length must be positive")
	}
	if len(cfg.Verticals) == 0 {
		return fmt.Errorf("at least one vertical must be configured")
	}
	for company, verticals := range cfg.Companies {
		for _, v := range verticals {
			if _, ok := cfg.Verticals[v]; !ok {
				return fmt.Errorf("company %q references unknown vertical %q", company, v)
			}
		}
	}
	for user, p := range cfg.Principals {
		switch p.Role {
		case "analyst", "ceo", "group_ceo", "top_management":
		default:
			return fmt.Errorf("principal %q has unknown role %q", user, p.Role)
		}
		for _, c := range p.Companies {
			if _, ok := cfg.Companies[c]; !ok {
				return fmt.Errorf("principal %q references unknown company %q", user, c)
			}
		}
	}
	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}
