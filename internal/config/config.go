// Package config loads the mqjs configuration file. Built-in defaults are
// loaded first and the user's YAML file, if any, is merged over them.
package config

import (
	_ "embed"
	"fmt"
	"time"

	"github.com/cryguy/mqjs"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config is the whole configuration file.
type Config struct {
	Session mqjs.Config        `koanf:"session"`
	Manager mqjs.ManagerConfig `koanf:"manager"`
	Server  Server             `koanf:"server"`
	History History            `koanf:"history"`
	Log     Log                `koanf:"log"`
}

// Server configures the HTTP and websocket front end.
type Server struct {
	Addr          string        `koanf:"addr"`
	MaxConns      int           `koanf:"max_conns"` // 0 means unlimited
	Compress      bool          `koanf:"compress"`  // brotli-encode responses for clients that accept it
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// History configures the evaluation transcript store.
type History struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`
}

// Log configures the zap logger.
type Log struct {
	Level       string `koanf:"level"`
	Development bool   `koanf:"development"`
}

// Default returns the built-in configuration.
func Default() (*Config, error) {
	return Load("")
}

// Load reads the built-in defaults and merges the YAML file at path over
// them. An empty path loads only the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return load()
	}
	return load(source{file.Provider(path), "config file " + path})
}

// LoadBytes is Load for YAML already in memory.
func LoadBytes(data []byte) (*Config, error) {
	return load(source{rawbytes.Provider(data), "config data"})
}

type source struct {
	provider koanf.Provider
	name     string
}

// load merges each source over the defaults in order, then unmarshals and
// validates the result.
func load(sources ...source) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(defaultsYAML), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load default config: %w", err)
	}
	for _, src := range sources {
		if err := k.Load(src.provider, yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", src.name, err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	if c.Manager.MaxSessions < 0 {
		return fmt.Errorf("manager: max_sessions must not be negative, got %d", c.Manager.MaxSessions)
	}
	if c.Server.MaxConns < 0 {
		return fmt.Errorf("server: max_conns must not be negative, got %d", c.Server.MaxConns)
	}
	if c.History.Enabled && c.History.Path == "" {
		return fmt.Errorf("history: path is required when history is enabled")
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	return nil
}

// Logger builds the zap logger the log section describes.
func (l Log) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	zcfg := zap.NewProductionConfig()
	if l.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}
