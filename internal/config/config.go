// Package config loads the proxy configuration from an optional YAML file
// overlaid with PROXY_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the process-wide configuration, read once at startup and passed
// by injection. Immutable after Load.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Inference InferenceConfig `koanf:"inference"`
	Auth      AuthConfig      `koanf:"auth"`
	Storage   StorageConfig   `koanf:"storage"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

type ServerConfig struct {
	Port           int    `koanf:"port"`
	RequestTimeout string `koanf:"request_timeout"`
	MaxBodyBytes   int64  `koanf:"max_body_bytes"`
}

// InferenceConfig points at the generative-AI endpoint. Endpoint and APIKey
// may be empty; the process starts anyway and calls fail at request time.
type InferenceConfig struct {
	Endpoint string `koanf:"endpoint"`
	APIKey   string `koanf:"api_key"`
	Timeout  string `koanf:"timeout"`
}

type AuthConfig struct {
	VerifyURL string `koanf:"verify_url"`
	Audience  string `koanf:"audience"`
}

type StorageConfig struct {
	Type   string       `koanf:"type"` // sqlite, none
	SQLite SQLiteConfig `koanf:"sqlite"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

type TelemetryConfig struct {
	Enabled bool `koanf:"enabled"`
}

// Load reads configuration. A non-empty path names a YAML file loaded first;
// PROXY_* environment variables override it (PROXY_SERVER__PORT maps to
// server.port, PROXY_INFERENCE__API_KEY to inference.api_key, and so on).
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("PROXY_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "PROXY_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	// Default values
	defaults := map[string]any{
		"server.port":            8080,
		"server.request_timeout": "30s",
		"server.max_body_bytes":  int64(256 << 10),
		"inference.timeout":      "30s",
		"storage.type":           "none",
		"storage.sqlite.path":    "./data/proxy.db",
	}
	for key, val := range defaults {
		if !k.Exists(key) {
			k.Set(key, val)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// RequestTimeout returns the parsed server request timeout, falling back to
// 30s on a malformed value.
func (c *Config) RequestTimeout() time.Duration {
	return parseDuration(c.Server.RequestTimeout, 30*time.Second)
}

// InferenceTimeout returns the parsed outbound call timeout, falling back
// to 30s on a malformed value.
func (c *Config) InferenceTimeout() time.Duration {
	return parseDuration(c.Inference.Timeout, 30*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
