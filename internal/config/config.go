package config

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Session SessionConfig
	Script  ScriptConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port        int
	CORSOrigins string // comma-separated list
}

// Origins splits the comma-separated CORS origin list.
func (s ServerConfig) Origins() []string {
	var origins []string
	for _, o := range strings.Split(s.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

type StorageConfig struct {
	DataDir string
}

type SessionConfig struct {
	Backend     string // "memory" or "redis"
	RedisAddr   string
	RedisPrefix string
	TTL         string // Go duration string, empty means no expiry
}

// TTLDuration parses the configured session TTL. Empty means no expiry.
func (s SessionConfig) TTLDuration() (time.Duration, error) {
	if s.TTL == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s.TTL)
	if err != nil {
		return 0, fmt.Errorf("invalid session.ttl %q: %w", s.TTL, err)
	}
	return d, nil
}

type ScriptConfig struct {
	Path string // path to a YAML script; empty uses the built-in default
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:        8000,
			CORSOrigins: "http://localhost:3000,http://127.0.0.1:3000",
		},
		Storage: StorageConfig{
			DataDir: ":memory:",
		},
		Session: SessionConfig{
			Backend:     "memory",
			RedisAddr:   "localhost:6379",
			RedisPrefix: "intake:session:",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON file backend at
// $XDG_CONFIG_HOME/intake/config.json, then applies environment variable
// (INTAKE_*) overrides.
func Load() (Config, error) {
	return loadWith(newFileBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	switch cfg.Session.Backend {
	case "memory", "redis":
	default:
		return Config{}, fmt.Errorf("invalid session.backend %q: must be memory or redis", cfg.Session.Backend)
	}
	if _, err := cfg.Session.TTLDuration(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
