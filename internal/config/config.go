// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

// Store backend selectors.
const (
	StoreDrive = "drive"
	StoreS3    = "s3"
)

// Config holds application configuration
type Config struct {
	DataDir       string // Base directory for cache files and the client data database
	Store         string // Document store backend: "drive" or "s3"
	DriveBaseURL  string // Override for the drive API root (empty = production)
	AccessToken   string // Bearer token for the drive backend; empty means offline
	S3Bucket      string // Bucket for the s3 backend
	S3Prefix      string // Key prefix scoping the app-private area
	PricesBaseURL string // Price feed endpoint
	PricesTab     string // Feed tab, defaults to "stocks"
	RefreshSpec   string // Cron spec for the background price refresh; empty disables it
	LogLevel      string
}

// Load reads configuration from environment variables, with a .env file as
// optional source.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if it doesn't)
	_ = godotenv.Load()

	cfg := &Config{
		DataDir:       getEnv("GAINO_DATA_DIR", defaultDataDir()),
		Store:         strings.ToLower(getEnv("GAINO_STORE", StoreDrive)),
		DriveBaseURL:  os.Getenv("GAINO_DRIVE_BASE_URL"),
		AccessToken:   os.Getenv("GAINO_ACCESS_TOKEN"),
		S3Bucket:      os.Getenv("GAINO_S3_BUCKET"),
		S3Prefix:      getEnv("GAINO_S3_PREFIX", "gaino"),
		PricesBaseURL: os.Getenv("GAINO_PRICES_BASE_URL"),
		PricesTab:     getEnv("GAINO_PRICES_TAB", "stocks"),
		RefreshSpec:   os.Getenv("GAINO_REFRESH_SPEC"),
		LogLevel:      getEnv("GAINO_LOG_LEVEL", "info"),
	}

	switch cfg.Store {
	case StoreDrive, StoreS3:
	default:
		return nil, fmt.Errorf("invalid GAINO_STORE %q: must be %q or %q", cfg.Store, StoreDrive, StoreS3)
	}
	if cfg.Store == StoreS3 && cfg.S3Bucket == "" {
		return nil, fmt.Errorf("GAINO_S3_BUCKET is required when GAINO_STORE=s3")
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return cfg, nil
}

// CachePath is the portfolio cache file location.
func (c *Config) CachePath() string {
	return filepath.Join(c.DataDir, "portfolio_cache.json")
}

// ClientDataDBPath is the sqlite cache database location.
func (c *Config) ClientDataDBPath() string {
	return filepath.Join(c.DataDir, "client_data.db")
}

// ClientID returns the per-install client identifier, generating and
// persisting one on first use. It ends up in the document's
// lastModifiedByClient field so other installs can tell who wrote last.
func (c *Config) ClientID() (string, error) {
	path := filepath.Join(c.DataDir, "client_id")

	if data, err := os.ReadFile(path); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
	}

	id := "go-" + uuid.NewString()
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("failed to persist client id: %w", err)
	}
	return id, nil
}

// getEnv retrieves an environment variable value, returning a fallback if the
// variable is not set or is empty.
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".gaino"
	}
	return filepath.Join(home, ".gaino")
}
