// Package config loads the predictor configuration from YAML with
// environment-variable overrides. Configuration is loaded once in main and
// injected; nothing reads it afterwards.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the complete process configuration.
type Config struct {
	MongoDB MongoConfig `yaml:"mongodb"`
	Log     LogConfig   `yaml:"log"`
	API     APIConfig   `yaml:"api"`
}

// MongoConfig locates the document store.
type MongoConfig struct {
	IP       string `yaml:"ip"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DB       string `yaml:"db"`
}

// URI builds the mongodb connection string. Credentials are URL-escaped so
// passwords with reserved characters survive.
func (m MongoConfig) URI() string {
	if m.Username == "" {
		return fmt.Sprintf("mongodb://%s:%d", m.IP, m.Port)
	}
	return fmt.Sprintf("mongodb://%s:%s@%s:%d",
		url.QueryEscape(m.Username), url.QueryEscape(m.Password), m.IP, m.Port)
}

// LogConfig configures the JSON log sink.
type LogConfig struct {
	// Sink is the log file path; empty means stderr only.
	Sink      string `yaml:"sink"`
	Level     string `yaml:"level"`
	MaxSizeMB int    `yaml:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files"`
}

// APIConfig configures the read API listener.
type APIConfig struct {
	Addr             string   `yaml:"addr"`
	CORSAllowOrigins []string `yaml:"cors_allow_origins"`
}

// NewConfig returns the defaults applied before any file or env override.
func NewConfig() *Config {
	return &Config{
		MongoDB: MongoConfig{
			IP:   "127.0.0.1",
			Port: 27017,
			DB:   "lccn",
		},
		Log: LogConfig{
			Level:     "info",
			MaxSizeMB: 50,
			MaxFiles:  5,
		},
		API: APIConfig{
			Addr:             ":8000",
			CORSAllowOrigins: []string{"*"},
		},
	}
}

// Load reads the config file at path (missing file falls back to defaults),
// applies LCCN_* environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	if _, err := os.Stat(path); err == nil {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadYAML parses the file and merges non-zero values over the defaults.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.MongoDB.IP != "" {
		c.MongoDB.IP = other.MongoDB.IP
	}
	if other.MongoDB.Port != 0 {
		c.MongoDB.Port = other.MongoDB.Port
	}
	if other.MongoDB.Username != "" {
		c.MongoDB.Username = other.MongoDB.Username
	}
	if other.MongoDB.Password != "" {
		c.MongoDB.Password = other.MongoDB.Password
	}
	if other.MongoDB.DB != "" {
		c.MongoDB.DB = other.MongoDB.DB
	}

	if other.Log.Sink != "" {
		c.Log.Sink = other.Log.Sink
	}
	if other.Log.Level != "" {
		c.Log.Level = other.Log.Level
	}
	if other.Log.MaxSizeMB != 0 {
		c.Log.MaxSizeMB = other.Log.MaxSizeMB
	}
	if other.Log.MaxFiles != 0 {
		c.Log.MaxFiles = other.Log.MaxFiles
	}

	if other.API.Addr != "" {
		c.API.Addr = other.API.Addr
	}
	if len(other.API.CORSAllowOrigins) > 0 {
		c.API.CORSAllowOrigins = other.API.CORSAllowOrigins
	}
}

// applyEnvOverrides applies LCCN_* environment variable overrides. Env wins
// over both defaults and the file.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("LCCN_MONGODB_IP"); v != "" {
		c.MongoDB.IP = v
	}
	if v := os.Getenv("LCCN_MONGODB_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			c.MongoDB.Port = p
		}
	}
	if v := os.Getenv("LCCN_MONGODB_USERNAME"); v != "" {
		c.MongoDB.Username = v
	}
	if v := os.Getenv("LCCN_MONGODB_PASSWORD"); v != "" {
		c.MongoDB.Password = v
	}
	if v := os.Getenv("LCCN_MONGODB_DB"); v != "" {
		c.MongoDB.DB = v
	}
	if v := os.Getenv("LCCN_LOG_SINK"); v != "" {
		c.Log.Sink = v
	}
	if v := os.Getenv("LCCN_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("LCCN_API_ADDR"); v != "" {
		c.API.Addr = v
	}
	if v := os.Getenv("LCCN_API_CORS_ALLOW_ORIGINS"); v != "" {
		c.API.CORSAllowOrigins = strings.Split(v, ",")
	}
}

// Validate checks the final configuration.
func (c *Config) Validate() error {
	if c.MongoDB.IP == "" {
		return fmt.Errorf("mongodb.ip must not be empty")
	}
	if c.MongoDB.Port <= 0 || c.MongoDB.Port > 65535 {
		return fmt.Errorf("mongodb.port must be in 1..65535, got %d", c.MongoDB.Port)
	}
	if c.MongoDB.DB == "" {
		return fmt.Errorf("mongodb.db must not be empty")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("log.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Log.Level)
	}
	if c.Log.MaxSizeMB <= 0 {
		return fmt.Errorf("log.max_size_mb must be positive, got %d", c.Log.MaxSizeMB)
	}
	if c.Log.MaxFiles <= 0 {
		return fmt.Errorf("log.max_files must be positive, got %d", c.Log.MaxFiles)
	}

	if c.API.Addr == "" {
		return fmt.Errorf("api.addr must not be empty")
	}
	return nil
}
