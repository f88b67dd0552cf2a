// Package config loads process configuration the way the teacher's
// service binaries do: struct-tag defaults, environment overrides, and an
// optional YAML overlay, validated once at boot.
package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v6"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration the core pipeline consumes (spec.md
// §6 "Configuration options").
type Config struct {
	UploadDir     string `yaml:"upload_dir" env:"UPLOAD_DIR" default:"./data/uploads" validate:"required"`
	MaxFileSizeMB int64  `yaml:"max_file_size_mb" env:"MAX_FILE_SIZE_MB" default:"50" validate:"gt=0"`
	MaxConcurrent int    `yaml:"max_concurrent" env:"MAX_CONCURRENT" default:"4" validate:"gt=0"`
	APIServerPort int    `yaml:"api_server_port" env:"API_SERVER_PORT" default:"8080" validate:"gt=0"`

	Database DatabaseConfig `yaml:"database"`
	LLM      LLMConfig      `yaml:"llm"`
	Redis    RedisConfig    `yaml:"redis"`
	Blob     BlobConfig     `yaml:"blob"`
}

// DatabaseConfig selects and configures the Store backend (internal/store).
type DatabaseConfig struct {
	// Driver is "sqlite" (the default, embedded-analytical-database mode
	// spec.md §1 describes) or "postgres".
	Driver   string `yaml:"driver" env:"DB_DRIVER" default:"sqlite" validate:"oneof=sqlite postgres"`
	Path     string `yaml:"path" env:"DB_PATH" default:"./data/docbatch.db"`
	Host     string `yaml:"host" env:"POSTGRES_HOST" default:"localhost"`
	Port     int    `yaml:"port" env:"POSTGRES_PORT" default:"5432"`
	Database string `yaml:"database" env:"POSTGRES_DB" default:"docbatch"`
	Username string `yaml:"username" env:"POSTGRES_USER" default:"postgres"`
	Password string `yaml:"password" env:"POSTGRES_PASSWORD" default:""`
	SSLMode  string `yaml:"ssl_mode" env:"POSTGRES_SSLMODE" default:"disable"`
}

// LLMConfig seeds the LLM client's mutable settings (internal/llmclient).
type LLMConfig struct {
	APIURL          string  `yaml:"api_url" env:"LLM_API_URL" default:"http://localhost:11434/v1" validate:"required"`
	APIKey          string  `yaml:"api_key" env:"LLM_API_KEY" default:""`
	ModelName       string  `yaml:"model_name" env:"LLM_MODEL_NAME" default:"llama3.1"`
	VisionModelName string  `yaml:"vision_model_name" env:"LLM_VISION_MODEL_NAME" default:""`
	ContextSize     int     `yaml:"context_size" env:"LLM_CONTEXT_SIZE" default:"8192" validate:"gt=0"`
	Temperature     float64 `yaml:"temperature" env:"LLM_TEMPERATURE" default:"0.1"`
	MaxTokens       int     `yaml:"max_tokens" env:"LLM_MAX_TOKENS" default:"2048" validate:"gt=0"`
	VisionDPI       int     `yaml:"vision_dpi" env:"LLM_VISION_DPI" default:"150" validate:"gt=0"`
	VisionMaxPages  int     `yaml:"vision_max_pages" env:"LLM_VISION_MAX_PAGES" default:"5" validate:"gt=0"`
}

// RedisConfig is optional; when Addr is empty the orchestrator's progress
// broadcast stays purely in-process (spec.md §4.7/§9).
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR" default:""`
	Password string `yaml:"password" env:"REDIS_PASSWORD" default:""`
	DB       int    `yaml:"db" env:"REDIS_DB" default:"0"`
}

// BlobConfig controls the optional MinIO mirror of the local upload
// directory. Local disk is always the authoritative backend.
type BlobConfig struct {
	MirrorEnabled   bool   `yaml:"mirror_enabled" env:"BLOB_MIRROR_ENABLED" default:"false"`
	Endpoint        string `yaml:"endpoint" env:"MINIO_ENDPOINT" default:"localhost:9000"`
	AccessKeyID     string `yaml:"access_key_id" env:"MINIO_ACCESS_KEY_ID" default:"minioadmin"`
	SecretAccessKey string `yaml:"secret_access_key" env:"MINIO_SECRET_ACCESS_KEY" default:"minioadmin"`
	UseSSL          bool   `yaml:"use_ssl" env:"MINIO_USE_SSL" default:"false"`
	BucketName      string `yaml:"bucket_name" env:"MINIO_BUCKET_NAME" default:"docbatch"`
}

// Load builds a Config from struct-tag defaults, an optional YAML file at
// path (skipped if it does not exist), and environment variable
// overrides — in that order, matching services/rule-worker's
// config-then-env layering in the teacher.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("apply config defaults: %w", err)
	}

	if path != "" {
		if data, err := os.ReadFile(path); err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config file %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

var validate = validator.New()
