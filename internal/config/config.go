package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Store drivers accepted by STORE_DRIVER.
const (
	StoreDriverFile     = "file"
	StoreDriverSQLite   = "sqlite"
	StoreDriverPostgres = "postgres"
	StoreDriverRedis    = "redis"
)

// Config holds application configuration values loaded from environment variables.
type Config struct {
	HTTPPort string

	// Persistence
	StoreDriver string
	DataDir     string // Users and memory log for the file driver, persona file default
	SQLitePath  string
	DatabaseURL string
	RedisURL    string

	// Files
	UploadsDir     string
	StaticDir      string
	PersonaFile    string
	MaxUploadBytes int64

	// Model provider (OpenAI-compatible)
	OpenAIKey         string
	OpenAIBaseURL     string
	TextModel         string
	ImageModel        string
	ModelCapabilities string // "model=text+vision;other=text", merged over the built-in table

	CORSAllowedOrigins []string

	LogLevel  string
	LogFormat string // "console" or "json"
}

// LoadConfig loads configuration from environment variables.
// It looks for a .env file first, then checks actual environment variables.
func LoadConfig() (*Config, error) {
	// A missing .env is not fatal, production deployments set real environment
	// variables. Nothing is logged here because the logger is configured from
	// the values loaded below.
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	dataDir := v.GetString("DATA_DIR")
	cfg := &Config{
		HTTPPort:           v.GetString("HTTP_PORT"),
		StoreDriver:        strings.ToLower(strings.TrimSpace(v.GetString("STORE_DRIVER"))),
		DataDir:            dataDir,
		SQLitePath:         v.GetString("SQLITE_PATH"),
		DatabaseURL:        v.GetString("DATABASE_URL"),
		RedisURL:           v.GetString("REDIS_URL"),
		UploadsDir:         v.GetString("UPLOADS_DIR"),
		StaticDir:          v.GetString("STATIC_DIR"),
		PersonaFile:        v.GetString("PERSONA_FILE"),
		MaxUploadBytes:     v.GetInt64("MAX_UPLOAD_BYTES"),
		OpenAIKey:          v.GetString("OPENAI_API_KEY"),
		OpenAIBaseURL:      v.GetString("OPENAI_BASE"),
		TextModel:          v.GetString("MODEL_NAME"),
		ImageModel:         v.GetString("IMAGE_MODEL"),
		ModelCapabilities:  v.GetString("MODEL_CAPABILITIES"),
		CORSAllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		LogLevel:           v.GetString("LOG_LEVEL"),
		LogFormat:          v.GetString("LOG_FORMAT"),
	}
	if cfg.SQLitePath == "" {
		cfg.SQLitePath = filepath.Join(dataDir, "lumen.db")
	}
	if cfg.PersonaFile == "" {
		cfg.PersonaFile = filepath.Join(dataDir, "alma.json")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("STORE_DRIVER", StoreDriverFile)
	v.SetDefault("DATA_DIR", "data")
	v.SetDefault("UPLOADS_DIR", "uploads")
	v.SetDefault("STATIC_DIR", "static")
	v.SetDefault("MAX_UPLOAD_BYTES", 10<<20)
	v.SetDefault("OPENAI_BASE", "https://openrouter.ai/api/v1")
	v.SetDefault("MODEL_NAME", "gpt-4o-mini")
	v.SetDefault("IMAGE_MODEL", "black-forest-labs/flux-1-dev")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "console")
}

// Validate checks that the fields required by the selected drivers are set.
func (c *Config) Validate() error {
	if c.HTTPPort == "" {
		return fmt.Errorf("HTTP_PORT cannot be empty")
	}
	switch c.StoreDriver {
	case StoreDriverFile:
		if c.DataDir == "" {
			return fmt.Errorf("DATA_DIR cannot be empty for the file store")
		}
	case StoreDriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH cannot be empty for the sqlite store")
		}
	case StoreDriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL must be set for the postgres store")
		}
	case StoreDriverRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL must be set for the redis store")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.UploadsDir == "" {
		return fmt.Errorf("UPLOADS_DIR cannot be empty")
	}
	if c.TextModel == "" || c.ImageModel == "" {
		return fmt.Errorf("MODEL_NAME and IMAGE_MODEL cannot be empty")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be > 0")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
