// Package config loads the nextword configuration file.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/natefinch/atomic"
)

// Environment variables that override values from the config file.
const (
	EnvConfigPath   = "NEXTWORD_CONFIG"
	EnvDatabasePath = "NEXTWORD_DATABASE_PATH"
	EnvLogLevel     = "NEXTWORD_LOG_LEVEL"
	EnvApiAddr      = "NEXTWORD_API_ADDR"
	EnvApiKey       = "NEXTWORD_API_KEY"
	EnvMaxLength    = "NEXTWORD_MAX_LENGTH"
)

// DefaultPath is where the config file lives when nothing else is given.
const DefaultPath = "./nextword.json"

// ServerConfig holds the settings of the HTTP API.
type ServerConfig struct {
	ApiAddr string `json:"api_addr"`
	// ApiKey protects every /api/ route except the health check. Empty leaves
	// the API open.
	ApiKey          string `json:"api_key"`
	ShutdownTimeout int    `json:"shutdown_timeout_sec"`
}

// GenerateConfig holds the default generation parameters.
type GenerateConfig struct {
	MaxLength   int     `json:"max_length"`
	Temperature float64 `json:"temperature"`
	TopK        int     `json:"top_k"`
}

// Config is the top-level configuration struct.
type Config struct {
	LogLevel     string          `json:"log_level"`
	LogFormat    string          `json:"log_format"`
	DatabasePath string          `json:"database_path"`
	OutputFormat string          `json:"output_format"`
	Server       *ServerConfig   `json:"server_config"`
	Generate     *GenerateConfig `json:"generate_config"`
}

// Default creates a configuration with default values.
func Default() *Config {
	return &Config{
		LogLevel:     "info",
		LogFormat:    "text",
		DatabasePath: "./data/nextword.db?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)",
		OutputFormat: "table",
		Server: &ServerConfig{
			ApiAddr:         ":7280",
			ApiKey:          "",
			ShutdownTimeout: 10,
		},
		Generate: &GenerateConfig{
			MaxLength:   20,
			Temperature: 1.0,
			TopK:        0,
		},
	}
}

// Load reads the configuration from a JSON file at the given path. If the
// file doesn't exist, it is created with default values. Fields missing from
// the file keep their defaults.
func Load(path string) (*Config, error) {
	config := Default()

	file, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			var data []byte
			data, err = json.MarshalIndent(config, "", "  ")
			if err != nil {
				return nil, fmt.Errorf("failed to marshal default config: %w", err)
			}
			if err = atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
				// The defaults are still usable without a file on disk.
				fmt.Fprintf(os.Stderr, "warning: failed to write default config file: %v\n", err)
			}
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err = json.Unmarshal(file, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if config.Server == nil {
		config.Server = Default().Server
	}
	if config.Generate == nil {
		config.Generate = Default().Generate
	}
	return config, nil
}

// Save writes the configuration to path atomically.
func Save(path string, config *Config) error {
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err = atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ApplyEnv overrides config values with any NEXTWORD_* environment variables
// that are set. Callers load a .env file first if they want one honored.
func ApplyEnv(config *Config) error {
	if v := os.Getenv(EnvDatabasePath); v != "" {
		config.DatabasePath = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		config.LogLevel = v
	}
	if v := os.Getenv(EnvApiAddr); v != "" {
		config.Server.ApiAddr = v
	}
	if v := os.Getenv(EnvApiKey); v != "" {
		config.Server.ApiKey = v
	}
	if v := os.Getenv(EnvMaxLength); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvMaxLength, v, err)
		}
		config.Generate.MaxLength = n
	}
	return nil
}
