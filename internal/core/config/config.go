// Package config provides configuration management for metasync services.
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config holds the configuration of every metasync command.
type Config struct {
	API         APIConfig
	Admin       AdminConfig
	Database    DatabaseConfig
	Descriptors DescriptorsConfig
	Processor   ProcessorConfig
	Worker      WorkerConfig
}

// APIConfig configures the gRPC service.
type APIConfig struct {
	Host           string
	Port           int
	RequestTimeout time.Duration
}

// AdminConfig configures the HTTP admin endpoint. Port 0 disables it.
type AdminConfig struct {
	Host string
	Port int
}

// DatabaseConfig selects the database (sqlite://path or postgres://...).
type DatabaseConfig struct {
	URL string
}

// DescriptorsConfig locates the rule/mapping/filter descriptors.
type DescriptorsConfig struct {
	Path  string
	Watch bool
}

// ProcessorConfig configures metadata processors.
type ProcessorConfig struct {
	Default         string
	ExifToolPath    string
	ExifToolTimeout time.Duration
}

// WorkerConfig configures the deferred work worker.
type WorkerConfig struct {
	Concurrency  int
	BatchSize    int
	PollInterval time.Duration
}

// Default returns configuration with default values.
func Default() *Config {
	return &Config{
		API: APIConfig{
			Host:           "0.0.0.0",
			Port:           50061,
			RequestTimeout: 30 * time.Second,
		},
		Admin: AdminConfig{
			Host: "127.0.0.1",
			Port: 8081,
		},
		Database: DatabaseConfig{
			URL: "sqlite://./data/metasync.db",
		},
		Descriptors: DescriptorsConfig{
			Path:  "./descriptors",
			Watch: true,
		},
		Processor: ProcessorConfig{
			Default:         "exifTool",
			ExifToolPath:    "exiftool",
			ExifToolTimeout: 30 * time.Second,
		},
		Worker: WorkerConfig{
			Concurrency:  4,
			BatchSize:    32,
			PollInterval: 2 * time.Second,
		},
	}
}

// Validate checks ranges and required values.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(&c.API,
		validation.Field(&c.API.Host, validation.Required),
		validation.Field(&c.API.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.API.RequestTimeout, validation.Required, validation.Min(time.Millisecond)),
	); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	if err := validation.ValidateStruct(&c.Admin,
		validation.Field(&c.Admin.Port, validation.Min(0), validation.Max(65535)),
	); err != nil {
		return fmt.Errorf("admin: %w", err)
	}
	if err := validation.ValidateStruct(&c.Database,
		validation.Field(&c.Database.URL, validation.Required),
	); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := validation.ValidateStruct(&c.Descriptors,
		validation.Field(&c.Descriptors.Path, validation.Required),
	); err != nil {
		return fmt.Errorf("descriptors: %w", err)
	}
	if err := validation.ValidateStruct(&c.Processor,
		validation.Field(&c.Processor.Default, validation.Required),
		validation.Field(&c.Processor.ExifToolPath, validation.Required),
		validation.Field(&c.Processor.ExifToolTimeout, validation.Required, validation.Min(time.Millisecond)),
	); err != nil {
		return fmt.Errorf("processor: %w", err)
	}
	if err := validation.ValidateStruct(&c.Worker,
		validation.Field(&c.Worker.Concurrency, validation.Required, validation.Min(1), validation.Max(256)),
		validation.Field(&c.Worker.BatchSize, validation.Required, validation.Min(1), validation.Max(10000)),
		validation.Field(&c.Worker.PollInterval, validation.Required, validation.Min(10*time.Millisecond)),
	); err != nil {
		return fmt.Errorf("worker: %w", err)
	}
	return nil
}

// HMACSecrets extracts HMAC secrets from environment variables.
// Supports MS_HMAC_SECRET (single) and MS_HMAC_SECRET_N (rotation).
// Returns map of secret_id -> decoded secret bytes.
// Secret IDs are UUIDv7 (32 hex chars without hyphens) matching API key format.
func HMACSecrets() (map[string][]byte, error) {
	secrets := make(map[string][]byte)

	add := func(key, val string) error {
		secretID, decoded, err := ParseHMACSecretWithID(val)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		if _, exists := secrets[secretID]; exists {
			return fmt.Errorf("duplicate secret_id '%s' found in environment variables (check MS_HMAC_SECRET and MS_HMAC_SECRET_* for conflicts)", secretID)
		}
		secrets[secretID] = decoded
		return nil
	}

	// Format: <secret_id>:<base64_secret>
	if val := os.Getenv("MS_HMAC_SECRET"); val != "" {
		if err := add("MS_HMAC_SECRET", val); err != nil {
			return nil, err
		}
	}

	// Numbered secrets keep old keys valid while a new secret rolls out.
	for i := 1; ; i++ {
		key := fmt.Sprintf("MS_HMAC_SECRET_%d", i)
		val := os.Getenv(key)
		if val == "" {
			break
		}
		if err := add(key, val); err != nil {
			return nil, err
		}
	}

	return secrets, nil
}

// ParseHMACSecretWithID parses secret_id:base64_secret format.
// Secret ID must be 32 lowercase hex chars (UUIDv7 without hyphens).
func ParseHMACSecretWithID(envValue string) (secretID string, secret []byte, err error) {
	parts := strings.SplitN(strings.TrimSpace(envValue), ":", 2)
	if len(parts) != 2 {
		return "", nil, fmt.Errorf("format must be <secret_id>:<base64_secret>")
	}

	secretID = parts[0]
	if len(secretID) != 32 {
		return "", nil, fmt.Errorf("secret_id must be 32 hex chars (UUIDv7 without hyphens)")
	}
	for _, c := range secretID {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return "", nil, fmt.Errorf("secret_id must be hex chars only")
		}
	}

	secret, err = base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", nil, fmt.Errorf("invalid base64 encoding: %w", err)
	}
	if len(secret) < 32 {
		return "", nil, fmt.Errorf("secret must be at least 32 bytes, got %d", len(secret))
	}

	return secretID, secret, nil
}
