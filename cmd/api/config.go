package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all server configuration. Values come from an optional YAML
// file, overridden by environment variables.
type Config struct {
	Port        string `yaml:"port"`
	QdrantURL   string `yaml:"qdrant_url"`
	Collection  string `yaml:"collection"`
	EmbedDim    int    `yaml:"embed_dim"`
	OllamaURL   string `yaml:"ollama_url"`
	OllamaModel string `yaml:"ollama_model"`
	GeminiModel string `yaml:"gemini_model"`
	GeminiKey   string `yaml:"-"` // env only, never from file
	NATSURL     string `yaml:"nats_url"`
	UploadDir   string `yaml:"upload_dir"`
	CORSOrigin  string `yaml:"cors_origin"`
}

func loadConfig() (Config, error) {
	// .env is a development convenience; absence is fine.
	_ = godotenv.Load()

	cfg := Config{
		Port:        "8080",
		QdrantURL:   "localhost:6334",
		Collection:  "course_material",
		EmbedDim:    768,
		OllamaURL:   "http://localhost:11434",
		OllamaModel: "nomic-embed-text",
		GeminiModel: "gemini-1.5-flash",
		NATSURL:     "nats://localhost:4222",
		UploadDir:   "uploaded_docs",
		CORSOrigin:  "*",
	}

	if path := envOr("CONFIG_FILE", ""); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config file %s: %w", path, err)
		}
	}

	cfg.Port = envOr("PORT", cfg.Port)
	cfg.QdrantURL = envOr("QDRANT_URL", cfg.QdrantURL)
	cfg.Collection = envOr("QDRANT_COLLECTION", cfg.Collection)
	cfg.OllamaURL = envOr("OLLAMA_URL", cfg.OllamaURL)
	cfg.OllamaModel = envOr("OLLAMA_MODEL", cfg.OllamaModel)
	cfg.GeminiModel = envOr("GEMINI_MODEL", cfg.GeminiModel)
	cfg.GeminiKey = envOr("GEMINI_API_KEY", "")
	cfg.NATSURL = envOr("NATS_URL", cfg.NATSURL)
	cfg.UploadDir = envOr("UPLOAD_DIR", cfg.UploadDir)
	cfg.CORSOrigin = envOr("CORS_ORIGIN", cfg.CORSOrigin)
	if v := os.Getenv("EMBED_DIM"); v != "" {
		dim, err := strconv.Atoi(v)
		if err != nil || dim <= 0 {
			return cfg, fmt.Errorf("EMBED_DIM: invalid value %q", v)
		}
		cfg.EmbedDim = dim
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
