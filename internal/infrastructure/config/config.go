package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Cache      CacheConfig
	Conditions ConditionsConfig
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host        string
	Port        int
	GRPCPort    int
	MetricsPort int // Port for Prometheus metrics HTTP server
}

// CacheConfig represents permission cache configuration
type CacheConfig struct {
	Enabled      bool
	MaxSizeBytes int64 // Maximum memory usage in bytes (e.g., 104857600 = 100MB)
	TTLMinutes   int   // Time-to-live for cached permission sets in minutes
}

// ConditionsConfig controls custom-permission condition evaluation.
// Mode "enforce" fails closed on unevaluable conditions; "warn" logs and
// ignores them.
type ConditionsConfig struct {
	Mode string
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// findProjectRoot finds the project root directory by looking for go.mod
func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	// Walk up the directory tree until we find go.mod
	for {
		goModPath := filepath.Join(dir, "go.mod")
		if _, err := os.Stat(goModPath); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached the root directory
			return "", fmt.Errorf("go.mod not found in any parent directory")
		}
		dir = parent
	}
}

// InitConfig initializes viper configuration
// env: environment name (dev, test, prod)
func InitConfig(env string) error {
	if env == "" {
		env = "dev"
	}

	// Find project root
	projectRoot, err := findProjectRoot()
	if err != nil {
		return fmt.Errorf("failed to find project root: %w", err)
	}

	// Set config file name based on environment
	viper.SetConfigName(fmt.Sprintf(".env.%s", env))
	viper.SetConfigType("env")
	viper.AddConfigPath(projectRoot) // Project root

	// Read config file (optional, ignore error if not found)
	_ = viper.ReadInConfig()

	// Environment variables take precedence over config file
	viper.AutomaticEnv()

	// Set default values
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_PORT", 8080)
	viper.SetDefault("GRPC_PORT", 50051)
	viper.SetDefault("METRICS_PORT", 9090)
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", 5432)
	viper.SetDefault("DB_USER", "castellan")
	viper.SetDefault("DB_NAME", "castellan_dev")
	viper.SetDefault("DB_SSLMODE", "disable")

	// Cache defaults
	viper.SetDefault("CACHE_ENABLED", true)
	viper.SetDefault("CACHE_MAX_SIZE_BYTES", 100*1024*1024) // 100MB
	viper.SetDefault("CACHE_TTL_MINUTES", 5)

	viper.SetDefault("CONDITIONS_MODE", "enforce")

	return nil
}

// Load loads configuration from viper
func Load() (*Config, error) {
	// DB_PASSWORD is required for security
	dbPassword := viper.GetString("DB_PASSWORD")
	if dbPassword == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required (set via environment variable or .env file)")
	}

	conditionsMode := viper.GetString("CONDITIONS_MODE")
	if conditionsMode != "enforce" && conditionsMode != "warn" {
		return nil, fmt.Errorf("CONDITIONS_MODE must be \"enforce\" or \"warn\", got %q", conditionsMode)
	}

	config := &Config{
		Server: ServerConfig{
			Host:        viper.GetString("SERVER_HOST"),
			Port:        viper.GetInt("SERVER_PORT"),
			GRPCPort:    viper.GetInt("GRPC_PORT"),
			MetricsPort: viper.GetInt("METRICS_PORT"),
		},
		Database: DatabaseConfig{
			Host:     viper.GetString("DB_HOST"),
			Port:     viper.GetInt("DB_PORT"),
			User:     viper.GetString("DB_USER"),
			Password: dbPassword,
			Database: viper.GetString("DB_NAME"),
			SSLMode:  viper.GetString("DB_SSLMODE"),
		},
		Cache: CacheConfig{
			Enabled:      viper.GetBool("CACHE_ENABLED"),
			MaxSizeBytes: viper.GetInt64("CACHE_MAX_SIZE_BYTES"),
			TTLMinutes:   viper.GetInt("CACHE_TTL_MINUTES"),
		},
		Conditions: ConditionsConfig{
			Mode: conditionsMode,
		},
	}

	return config, nil
}

// ConnectionString returns PostgreSQL connection string
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Database,
		c.SSLMode,
	)
}
