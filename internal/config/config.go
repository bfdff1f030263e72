// Package config loads the server configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pixwave-ai/pixwave-server/internal/util"
	"gopkg.in/yaml.v3"
)

// defaultConfigFile is the config filename resolved when none is given.
const defaultConfigFile = "config.yaml"

// Config is the full server configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`   // HTTP server settings.
	Database DatabaseConfig `yaml:"database"` // Relational store settings.
	Redis    RedisConfig    `yaml:"redis"`    // Cache backend settings.
	Log      LogConfig      `yaml:"log"`      // Logging settings.
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Listen string `yaml:"listen"` // Listen address, e.g. ":8080".
}

// DatabaseConfig holds relational store settings.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"` // PostgreSQL or SQLite DSN.
}

// RedisConfig holds cache backend settings. An empty Addr disables caching.
type RedisConfig struct {
	Addr     string `yaml:"addr"`     // host:port of the Redis server.
	Password string `yaml:"password"` // Optional password.
	DB       int    `yaml:"db"`       // Logical database index.
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level      string `yaml:"level"`       // logrus level name, defaults to info.
	File       string `yaml:"file"`        // Optional log file path for rotation.
	MaxSizeMB  int    `yaml:"max_size_mb"` // Rotate after this size, defaults to 100.
	MaxBackups int    `yaml:"max_backups"` // Rotated files to keep, defaults to 3.
}

// ResolveConfigPath resolves the effective config file path: the explicit
// path wins, then $PIXWAVE_CONFIG, then config.yaml under the writable path.
func ResolveConfigPath(path string) string {
	if trimmed := strings.TrimSpace(path); trimmed != "" {
		return filepath.Clean(trimmed)
	}
	if env := strings.TrimSpace(os.Getenv("PIXWAVE_CONFIG")); env != "" {
		return filepath.Clean(env)
	}
	if base := util.WritablePath(); base != "" {
		return filepath.Join(base, defaultConfigFile)
	}
	return defaultConfigFile
}

// Load reads and parses the config file, applying defaults.
func Load(path string) (*Config, error) {
	raw, errRead := os.ReadFile(path)
	if errRead != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, errRead)
	}

	var cfg Config
	if errDecode := yaml.Unmarshal(raw, &cfg); errDecode != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, errDecode)
	}

	applyDefaults(&cfg)
	if strings.TrimSpace(cfg.Database.DSN) == "" {
		return nil, fmt.Errorf("config: database.dsn is required")
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Server.Listen) == "" {
		cfg.Server.Listen = ":8080"
	}
	if strings.TrimSpace(cfg.Log.Level) == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.MaxSizeMB <= 0 {
		cfg.Log.MaxSizeMB = 100
	}
	if cfg.Log.MaxBackups <= 0 {
		cfg.Log.MaxBackups = 3
	}
}
