package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"lexcounsel-backend/models"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the backend
type Config struct {
	Server    ServerConfig    `mapstructure:",squash"`
	Database  DatabaseConfig  `mapstructure:",squash"`
	Gemini    GeminiConfig    `mapstructure:",squash"`
	Cache     CacheConfig     `mapstructure:",squash"`
	Storage   StorageConfig   `mapstructure:",squash"`
	Adapters  AdapterConfig   `mapstructure:",squash"`
	Chat      ChatConfig      `mapstructure:",squash"`
	Knowledge KnowledgeConfig `mapstructure:",squash"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port string `mapstructure:"port"`
}

// DatabaseConfig contains the Postgres connection string
type DatabaseConfig struct {
	URL string `mapstructure:"database_url"`
}

// GeminiConfig contains model and embedding settings
type GeminiConfig struct {
	APIKey              string `mapstructure:"gemini_api_key"`
	ChatModel           string `mapstructure:"gemini_chat_model"`
	EmbeddingModel      string `mapstructure:"gemini_embedding_model"`
	EmbeddingDimensions int    `mapstructure:"embedding_dimensions"`
}

// CacheConfig selects the global knowledge cache backend
type CacheConfig struct {
	Type          string        `mapstructure:"cache_type"` // memory, redis
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	KeyPrefix     string        `mapstructure:"redis_key_prefix"`
	MaxAge        time.Duration `mapstructure:"cache_max_age"`
}

// StorageConfig selects the attachment storage backend
type StorageConfig struct {
	Type         string `mapstructure:"storage_type"` // local, s3
	LocalPath    string `mapstructure:"storage_local_path"`
	S3Bucket     string `mapstructure:"aws_s3_bucket"`
	S3Region     string `mapstructure:"aws_region"`
	AWSAccessKey string `mapstructure:"aws_access_key_id"`
	AWSSecretKey string `mapstructure:"aws_secret_access_key"`
}

// AdapterConfig points at the external legal data providers
type AdapterConfig struct {
	StatuteBaseURL string        `mapstructure:"statute_api_url"`
	RulingBaseURL  string        `mapstructure:"ruling_api_url"`
	Timeout        time.Duration `mapstructure:"adapter_timeout"`
}

// ChatConfig bounds the tool loop
type ChatConfig struct {
	MaxIterations      int           `mapstructure:"chat_max_iterations"`
	SemanticTopK       int           `mapstructure:"semantic_top_k"`
	FallbackChunkLimit int           `mapstructure:"fallback_chunk_limit"`
	InlineTextLimit    int           `mapstructure:"inline_text_limit"`
	ToolConcurrency    int           `mapstructure:"tool_concurrency"`
	IngestTimeout      time.Duration `mapstructure:"ingest_timeout"`
}

// KnowledgeConfig controls the topic knowledge approval policy
type KnowledgeConfig struct {
	ConfirmationRequired bool `mapstructure:"knowledge_confirmation_required"`
}

var defaults = map[string]any{
	"port":                            "8080",
	"database_url":                    "",
	"gemini_api_key":                  "",
	"gemini_chat_model":               "gemini-2.5-pro",
	"gemini_embedding_model":          "gemini-embedding-001",
	"embedding_dimensions":            models.EmbeddingDimensions,
	"cache_type":                      "memory",
	"redis_addr":                      "localhost:6379",
	"redis_password":                  "",
	"redis_db":                        0,
	"redis_key_prefix":                "lexcounsel:",
	"cache_max_age":                   720 * time.Hour,
	"storage_type":                    "local",
	"storage_local_path":              "./storage/files",
	"aws_s3_bucket":                   "",
	"aws_region":                      "eu-central-1",
	"aws_access_key_id":               "",
	"aws_secret_access_key":           "",
	"statute_api_url":                 "https://api.sejm.gov.pl/eli",
	"ruling_api_url":                  "https://www.saos.org.pl/api",
	"adapter_timeout":                 15 * time.Second,
	"chat_max_iterations":             10,
	"semantic_top_k":                  5,
	"fallback_chunk_limit":            10,
	"inline_text_limit":               15000,
	"tool_concurrency":                4,
	"ingest_timeout":                  2 * time.Minute,
	"knowledge_confirmation_required": true,
}

// Load reads .env (if present) and the process environment into a validated Config
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if err := godotenv.Load("../../.env"); err != nil {
			log.Printf("Warning: No .env file found, using environment variables")
		}
	}
	return fromViper(viper.New())
}

func fromViper(v *viper.Viper) (*Config, error) {
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
		// AutomaticEnv only resolves keys viper already knows about
		if err := v.BindEnv(key, strings.ToUpper(key)); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that would otherwise fail late at request time
func (c *Config) Validate() error {
	switch c.Cache.Type {
	case "memory":
	case "redis":
		if strings.TrimSpace(c.Cache.RedisAddr) == "" {
			return errors.New("REDIS_ADDR is required when CACHE_TYPE=redis")
		}
	default:
		return fmt.Errorf("unknown cache type: %s", c.Cache.Type)
	}

	switch c.Storage.Type {
	case "local":
	case "s3":
		if c.Storage.S3Bucket == "" {
			return errors.New("AWS_S3_BUCKET is required for S3 storage")
		}
	default:
		return fmt.Errorf("unknown storage type: %s", c.Storage.Type)
	}

	// the vector index column has a fixed width
	if c.Gemini.EmbeddingDimensions != models.EmbeddingDimensions {
		return fmt.Errorf("EMBEDDING_DIMENSIONS must be %d, got %d", models.EmbeddingDimensions, c.Gemini.EmbeddingDimensions)
	}
	if c.Adapters.Timeout <= 0 {
		return errors.New("ADAPTER_TIMEOUT must be greater than zero")
	}
	if c.Chat.MaxIterations <= 0 {
		return errors.New("CHAT_MAX_ITERATIONS must be greater than zero")
	}
	if c.Chat.SemanticTopK <= 0 {
		return errors.New("SEMANTIC_TOP_K must be greater than zero")
	}
	if c.Chat.FallbackChunkLimit <= 0 {
		return errors.New("FALLBACK_CHUNK_LIMIT must be greater than zero")
	}
	if c.Chat.IngestTimeout <= 0 {
		return errors.New("INGEST_TIMEOUT must be greater than zero")
	}
	if c.Chat.ToolConcurrency <= 0 {
		c.Chat.ToolConcurrency = 1
	}
	return nil
}

// RequireDatabase reports an error when no database is configured
func (c *Config) RequireDatabase() error {
	if strings.TrimSpace(c.Database.URL) == "" {
		return errors.New("DATABASE_URL is required")
	}
	return nil
}
