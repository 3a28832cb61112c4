// TaskMesh - Team Task Tracking and Real-Time Collaboration
// Copyright 2026 TaskMesh contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/taskmesh/taskmesh

// Package config loads the server configuration from layered sources
// using Koanf v2: built-in defaults, then an optional YAML file, then
// environment variables. Precedence is ENV > file > defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/taskmesh/config.yaml",
	"/etc/taskmesh/config.yml",
}

// ConfigPathEnvVar overrides the config file search entirely.
const ConfigPathEnvVar = "CONFIG_PATH"

// Config is the root configuration for the realtime server.
type Config struct {
	Gateway  GatewayConfig  `koanf:"gateway"`
	HTTP     HTTPConfig     `koanf:"http"`
	Bridge   BridgeConfig   `koanf:"bridge"`
	Database DatabaseConfig `koanf:"database"`
	Security SecurityConfig `koanf:"security"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// GatewayConfig controls the WebSocket listener and its event loop.
type GatewayConfig struct {
	Host           string        `koanf:"host" validate:"required"`
	Port           int           `koanf:"port" validate:"min=1,max=65535"`
	Tick           time.Duration `koanf:"tick" validate:"min=1ms,max=5s"`
	ReadBufferSize int           `koanf:"read_buffer_size" validate:"min=512"`
	WriteTimeout   time.Duration `koanf:"write_timeout" validate:"min=1ms"`
}

// HTTPConfig controls the producer-facing REST listener.
type HTTPConfig struct {
	Host            string        `koanf:"host" validate:"required"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	Timeout         time.Duration `koanf:"timeout" validate:"min=1s"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs" validate:"min=1"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window" validate:"min=1s"`
	CORSOrigins     []string      `koanf:"cors_origins"`
}

// BridgeConfig controls the file-backed notification queue shared with
// external producer processes.
type BridgeConfig struct {
	Path           string        `koanf:"path" validate:"required"`
	LockTimeout    time.Duration `koanf:"lock_timeout" validate:"min=10ms"`
	LockRetryDelay time.Duration `koanf:"lock_retry_delay" validate:"min=1ms"`
}

// DatabaseConfig controls message persistence. When disabled, messages
// are held in process memory only.
type DatabaseConfig struct {
	Enabled bool   `koanf:"enabled"`
	DSN     string `koanf:"dsn" validate:"required_if=Enabled true"`
}

// SecurityConfig holds authentication settings.
type SecurityConfig struct {
	JWTSecret string `koanf:"jwt_secret" validate:"omitempty,min=16"`
}

// LoggingConfig controls structured logging output.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns the built-in defaults applied before any file or
// environment overrides.
func defaultConfig() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			Tick:           50 * time.Millisecond,
			ReadBufferSize: 4096,
			WriteTimeout:   time.Second,
		},
		HTTP: HTTPConfig{
			Host:            "0.0.0.0",
			Port:            8081,
			Timeout:         30 * time.Second,
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{"*"},
		},
		Bridge: BridgeConfig{
			Path:           "/data/taskmesh/notification_queue.json",
			LockTimeout:    2 * time.Second,
			LockRetryDelay: 25 * time.Millisecond,
		},
		Database: DatabaseConfig{
			Enabled: false,
			DSN:     "",
		},
		Security: SecurityConfig{
			JWTSecret: "",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// environment variables, then validates the result.
func Load() (*Config, error) {
	return loadFrom(findConfigFile())
}

func loadFrom(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration against the struct validation tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			e := verrs[0]
			return fmt.Errorf("invalid value for %s (rule %s)", e.Namespace(), e.Tag())
		}
		return err
	}
	return nil
}

// findConfigFile returns the first existing config file, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths lists config paths parsed as comma-separated slices
// when supplied through environment variables.
var sliceConfigPaths = []string{
	"http.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}
		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to koanf config paths.
// Unknown variables are skipped so unrelated environment noise cannot
// leak into the configuration.
//
// Examples:
//   - WS_PORT -> gateway.port
//   - HTTP_PORT -> http.port
//   - NOTIFICATION_QUEUE_PATH -> bridge.path
//   - DATABASE_URL -> database.dsn
func envTransformFunc(key string) string {
	envMappings := map[string]string{
		"ws_host":          "gateway.host",
		"ws_port":          "gateway.port",
		"ws_tick":          "gateway.tick",
		"ws_read_buffer":   "gateway.read_buffer_size",
		"ws_write_timeout": "gateway.write_timeout",

		"http_host":              "http.host",
		"http_port":              "http.port",
		"http_timeout":           "http.timeout",
		"http_rate_limit_reqs":   "http.rate_limit_reqs",
		"http_rate_limit_window": "http.rate_limit_window",
		"http_cors_origins":      "http.cors_origins",

		"notification_queue_path": "bridge.path",
		"queue_lock_timeout":      "bridge.lock_timeout",
		"queue_lock_retry_delay":  "bridge.lock_retry_delay",

		"database_enabled": "database.enabled",
		"database_url":     "database.dsn",

		"jwt_secret": "security.jwt_secret",

		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}
