// Package config loads service configuration from the environment.
package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all service configuration.
type Config struct {
	Server  ServerConfig
	IPC     IPCConfig
	Memory  MemoryConfig
	Logging LogConfig
}

// ServerConfig holds the syscall-dispatch HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"9100"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// IPCConfig holds registry-wide caps applied when entities are created.
type IPCConfig struct {
	MaxQueueDepth  int    `envconfig:"IPC_MAX_QUEUE_DEPTH" default:"1024"`
	MaxMessageSize uint64 `envconfig:"IPC_MAX_MESSAGE_SIZE" default:"65536"`
	MaxRegionBytes uint64 `envconfig:"IPC_MAX_REGION_BYTES" default:"16777216"`
}

// MemoryConfig sizes the hosted physical page arena.
type MemoryConfig struct {
	ArenaPages int `envconfig:"MEMORY_ARENA_PAGES" default:"16384"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns defaults.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "9100",
			Host: "0.0.0.0",
		},
		IPC: IPCConfig{
			MaxQueueDepth:  1024,
			MaxMessageSize: 65536,
			MaxRegionBytes: 16 << 20,
		},
		Memory: MemoryConfig{
			ArenaPages: 16384,
		},
		Logging: LogConfig{
			Level: "info",
		},
	}
}
