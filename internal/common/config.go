// Package common provides shared utilities for Dictum
package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for Dictum
type Config struct {
	Environment string        `toml:"environment"`
	Server      ServerConfig  `toml:"server"`
	Storage     StorageConfig `toml:"storage"`
	Blob        BlobConfig    `toml:"blob"`
	Clients     ClientsConfig `toml:"clients"`
	Logging     LoggingConfig `toml:"logging"`
	Auth        AuthConfig    `toml:"auth"`
	Letters     LettersConfig `toml:"letters"`
	Exports     ExportsConfig `toml:"exports"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// StorageConfig holds SurrealDB connection configuration.
type StorageConfig struct {
	Address   string `toml:"address"`
	Username  string `toml:"username"`
	Password  string `toml:"password"`
	Namespace string `toml:"namespace"`
	Database  string `toml:"database"`
}

// BlobConfig holds blob storage configuration with pluggable backends.
type BlobConfig struct {
	// Backend type: "file" or "gcs"
	Backend string        `toml:"backend"`
	File    FileBlobConfig `toml:"file"`
	GCS     GCSBlobConfig  `toml:"gcs"`
}

// FileBlobConfig holds file-based blob store configuration.
type FileBlobConfig struct {
	BasePath string `toml:"base_path"`
}

// GCSBlobConfig holds Google Cloud Storage configuration.
type GCSBlobConfig struct {
	Bucket          string `toml:"bucket"`
	Prefix          string `toml:"prefix"`           // Optional key prefix within bucket
	CredentialsFile string `toml:"credentials_file"` // Path to service account JSON (optional if using ADC)
}

// ClientsConfig holds API client configurations
type ClientsConfig struct {
	Gemini GeminiConfig `toml:"gemini"`
}

// GeminiConfig holds Gemini API configuration
type GeminiConfig struct {
	APIKey    string `toml:"api_key"`
	Model     string `toml:"model"`
	RateLimit int    `toml:"rate_limit"` // requests per second
	Timeout   string `toml:"timeout"`
}

// GetTimeout parses and returns the timeout duration
func (c *GeminiConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// AuthConfig holds authentication configuration for JWT sessions.
type AuthConfig struct {
	JWTSecret         string `toml:"jwt_secret"`
	TokenExpiry       string `toml:"token_expiry"`        // duration string, default "24h"
	CollabTokenExpiry string `toml:"collab_token_expiry"` // duration string, default "5m"
	LoginRateLimit    int    `toml:"login_rate_limit"`    // attempts per minute per email
}

// GetTokenExpiry parses and returns the session token expiry duration.
func (c *AuthConfig) GetTokenExpiry() time.Duration {
	d, err := time.ParseDuration(c.TokenExpiry)
	if err != nil {
		return 24 * time.Hour
	}
	return d
}

// GetCollabTokenExpiry parses and returns the collab token expiry duration.
func (c *AuthConfig) GetCollabTokenExpiry() time.Duration {
	d, err := time.ParseDuration(c.CollabTokenExpiry)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}

// LettersConfig holds demand-letter generation limits.
type LettersConfig struct {
	MaxUploadBytes  int64 `toml:"max_upload_bytes"`  // source document upload cap
	MaxPromptChars  int   `toml:"max_prompt_chars"`  // prompt size cap for generation
	MaxExtractChars int   `toml:"max_extract_chars"` // extracted text cap per document
}

// ExportsConfig holds export artifact retention configuration.
type ExportsConfig struct {
	SweepInterval string `toml:"sweep_interval"` // duration string, default "1h"
	MaxAge        string `toml:"max_age"`        // duration string, default "168h"
}

// GetSweepInterval parses and returns the sweeper interval.
func (c *ExportsConfig) GetSweepInterval() time.Duration {
	d, err := time.ParseDuration(c.SweepInterval)
	if err != nil {
		return time.Hour
	}
	return d
}

// GetMaxAge parses and returns the artifact max age.
func (c *ExportsConfig) GetMaxAge() time.Duration {
	d, err := time.ParseDuration(c.MaxAge)
	if err != nil {
		return 7 * 24 * time.Hour
	}
	return d
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Storage: StorageConfig{
			Address:   "ws://localhost:8000/rpc",
			Username:  "root",
			Password:  "root",
			Namespace: "dictum",
			Database:  "dictum",
		},
		Blob: BlobConfig{
			Backend: "file",
			File:    FileBlobConfig{BasePath: "data/blobs"},
		},
		Clients: ClientsConfig{
			Gemini: GeminiConfig{
				Model:     "gemini-2.0-flash",
				RateLimit: 2,
				Timeout:   "60s",
			},
		},
		Auth: AuthConfig{
			JWTSecret:         "dev-jwt-secret-change-in-production",
			TokenExpiry:       "24h",
			CollabTokenExpiry: "5m",
			LoginRateLimit:    10,
		},
		Letters: LettersConfig{
			MaxUploadBytes:  20 << 20,
			MaxPromptChars:  120_000,
			MaxExtractChars: 50_000,
		},
		Exports: ExportsConfig{
			SweepInterval: "1h",
			MaxAge:        "168h",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadConfig loads configuration from files with environment overrides
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	// Load and merge each config file in order (later files override earlier)
	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue // Skip missing files
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("DICTUM_ENV"); env != "" {
		config.Environment = env
	}

	if host := os.Getenv("DICTUM_HOST"); host != "" {
		config.Server.Host = host
	}

	if port := os.Getenv("DICTUM_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if level := os.Getenv("DICTUM_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if addr := os.Getenv("DICTUM_STORAGE_ADDRESS"); addr != "" {
		config.Storage.Address = addr
	}
	if user := os.Getenv("DICTUM_STORAGE_USERNAME"); user != "" {
		config.Storage.Username = user
	}
	if pass := os.Getenv("DICTUM_STORAGE_PASSWORD"); pass != "" {
		config.Storage.Password = pass
	}
	if ns := os.Getenv("DICTUM_STORAGE_NAMESPACE"); ns != "" {
		config.Storage.Namespace = ns
	}
	if db := os.Getenv("DICTUM_STORAGE_DATABASE"); db != "" {
		config.Storage.Database = db
	}

	if backend := os.Getenv("DICTUM_BLOB_BACKEND"); backend != "" {
		config.Blob.Backend = backend
	}
	if path := os.Getenv("DICTUM_BLOB_PATH"); path != "" {
		config.Blob.File.BasePath = path
	}
	if bucket := os.Getenv("DICTUM_BLOB_GCS_BUCKET"); bucket != "" {
		config.Blob.GCS.Bucket = bucket
	}

	// Auth overrides
	if v := os.Getenv("DICTUM_AUTH_JWT_SECRET"); v != "" {
		config.Auth.JWTSecret = v
	}
	if v := os.Getenv("DICTUM_AUTH_TOKEN_EXPIRY"); v != "" {
		config.Auth.TokenExpiry = v
	}

	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		config.Clients.Gemini.APIKey = v
	}
	if v := os.Getenv("DICTUM_GEMINI_MODEL"); v != "" {
		config.Clients.Gemini.Model = v
	}
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
