package config

import (
	"time"

	"github.com/campuslink/presence/internal/logging"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `json:"server" yaml:"server"`
	Heartbeat HeartbeatConfig `json:"heartbeat" yaml:"heartbeat"`
	Store     StoreConfig     `json:"store" yaml:"store"`
	Logging   logging.Config  `json:"logging" yaml:"logging"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host         string        `json:"host" yaml:"host"`
	Port         int           `json:"port" yaml:"port"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
}

// HeartbeatConfig represents the liveness sweep configuration. A connection
// that sends no ping for longer than Timeout is evicted by the next sweep.
type HeartbeatConfig struct {
	Interval time.Duration `json:"interval" yaml:"interval"`
	Timeout  time.Duration `json:"timeout" yaml:"timeout"`
}

// StoreConfig represents the online-flag store configuration
type StoreConfig struct {
	Driver       string        `json:"driver" yaml:"driver"` // postgres, redis or memory
	PostgresDSN  string        `json:"postgres_dsn" yaml:"postgres_dsn"`
	RedisURL     string        `json:"redis_url" yaml:"redis_url"`
	RedisDB      int           `json:"redis_db" yaml:"redis_db"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "localhost",
			Port:         3001,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		Heartbeat: HeartbeatConfig{
			Interval: 10 * time.Second,
			Timeout:  10 * time.Second,
		},
		Store: StoreConfig{
			Driver:       "memory",
			RedisURL:     "redis://localhost:6379",
			WriteTimeout: 5 * time.Second,
		},
		Logging: logging.Config{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return NewConfigError("server.port", "invalid port number")
	}

	if c.Server.ReadTimeout < 0 {
		return NewConfigError("server.read_timeout", "timeout cannot be negative")
	}

	if c.Server.WriteTimeout < 0 {
		return NewConfigError("server.write_timeout", "timeout cannot be negative")
	}

	if c.Heartbeat.Interval <= 0 {
		return NewConfigError("heartbeat.interval", "interval must be positive")
	}

	if c.Heartbeat.Timeout <= 0 {
		return NewConfigError("heartbeat.timeout", "timeout must be positive")
	}

	switch c.Store.Driver {
	case "postgres":
		if c.Store.PostgresDSN == "" {
			return NewConfigError("store.postgres_dsn", "dsn is required for the postgres driver")
		}
	case "redis":
		if c.Store.RedisURL == "" {
			return NewConfigError("store.redis_url", "url is required for the redis driver")
		}
	case "memory":
	default:
		return NewConfigError("store.driver", "unknown driver")
	}

	return nil
}
