// Package config handles loading and hot-reloading application
// configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the full application configuration.
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	Storage   StorageConfig   `mapstructure:"storage" yaml:"storage"`
	Ingestion IngestionConfig `mapstructure:"ingestion" yaml:"ingestion"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
}

// DatabaseConfig locates the SQLite catalog database.
type DatabaseConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// StorageConfig addresses the public object store for book files and
// covers.
type StorageConfig struct {
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
}

// IngestionConfig holds per-run ingestion defaults; CLI flags override
// them per invocation.
type IngestionConfig struct {
	MaxBooks          int      `mapstructure:"max_books" yaml:"max_books"`
	MaxRuntimeSeconds int      `mapstructure:"max_runtime_seconds" yaml:"max_runtime_seconds"`
	BatchSize         int      `mapstructure:"batch_size" yaml:"batch_size"`
	EnableGenreFilter bool     `mapstructure:"enable_genre_filter" yaml:"enable_genre_filter"`
	AllowedGenres     []string `mapstructure:"allowed_genres" yaml:"allowed_genres,omitempty"`
	AllowedAuthors    []string `mapstructure:"allowed_authors" yaml:"allowed_authors,omitempty"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{},
		Storage: StorageConfig{
			BaseURL: "http://localhost:9000",
		},
		Ingestion: IngestionConfig{
			MaxBooks:          100,
			MaxRuntimeSeconds: 0,
			BatchSize:         0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Manager handles loading and hot-reloading configuration.
type Manager struct {
	mu        sync.RWMutex
	config    *Config
	callbacks []func(*Config)
}

// NewManager creates a new config manager and loads initial config.
func NewManager(cfgFile string) (*Manager, error) {
	cm := &Manager{
		callbacks: make([]func(*Config), 0),
	}

	if err := cm.initViper(cfgFile); err != nil {
		return nil, err
	}

	cfg, err := cm.load()
	if err != nil {
		return nil, err
	}
	cm.config = cfg

	return cm, nil
}

// initViper sets up viper with defaults and config file.
func (cm *Manager) initViper(cfgFile string) error {
	defaults := DefaultConfig()
	viper.SetDefault("database", defaults.Database)
	viper.SetDefault("storage", defaults.Storage)
	viper.SetDefault("ingestion", defaults.Ingestion)
	viper.SetDefault("logging", defaults.Logging)

	// Environment variables with ATHENEUM_ prefix
	viper.SetEnvPrefix("ATHENEUM")
	viper.AutomaticEnv()

	// Config file
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.atheneum")
	}

	// Try to read config file (not required)
	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

// load parses the current viper state into a Config struct.
func (cm *Manager) load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Get returns the current configuration (thread-safe).
func (cm *Manager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// OnChange registers a callback for config changes.
func (cm *Manager) OnChange(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// WatchConfig enables hot-reloading of configuration.
func (cm *Manager) WatchConfig() {
	viper.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := cm.load()
		if err != nil {
			return
		}

		cm.mu.Lock()
		cm.config = cfg
		callbacks := make([]func(*Config), len(cm.callbacks))
		copy(callbacks, cm.callbacks)
		cm.mu.Unlock()

		for _, fn := range callbacks {
			fn(cfg)
		}
	})
	viper.WatchConfig()
}

// ResolveEnvVars expands ${ENV_VAR} references in a string.
func ResolveEnvVars(value string) string {
	if value == "" {
		return value
	}
	pattern := regexp.MustCompile(`\$\{([^}]+)\}`)
	return pattern.ReplaceAllStringFunc(value, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}

// WriteDefault writes the default configuration to the specified path.
func WriteDefault(path string) error {
	cfg := DefaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# Atheneum configuration
# Values may reference environment variables with ${ENV_VAR} syntax.
# An empty database path defaults to ~/.atheneum/atheneum.db

`)
	return os.WriteFile(path, append(header, data...), 0o644)
}
