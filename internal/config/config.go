// Mosaicus - Multi-Device Interactive Media Layout Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mosaicus

// Package config loads Mosaicus configuration from layered sources:
// built-in defaults, an optional YAML file and environment variables,
// with environment variables taking the highest precedence.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/tomtom215/mosaicus/internal/models"
)

// Config is the complete Mosaicus server configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Store     StoreConfig     `koanf:"store"`
	Security  SecurityConfig  `koanf:"security"`
	Engine    EngineConfig    `koanf:"engine"`
	Websocket WebsocketConfig `koanf:"websocket"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StoreConfig holds persistence settings for the Badger store.
type StoreConfig struct {
	// Path is the on-disk database directory. Ignored when InMemory.
	Path     string `koanf:"path"`
	InMemory bool   `koanf:"in_memory"`

	// GCInterval is how often value-log garbage collection runs.
	GCInterval     time.Duration `koanf:"gc_interval"`
	GCDiscardRatio float64       `koanf:"gc_discard_ratio" validate:"gt=0,lt=1"`
}

// SecurityConfig holds API authentication and rate limiting settings.
type SecurityConfig struct {
	// AuthEnabled gates JWT verification on the REST API. Disabled by
	// default: deployments on trusted networks run open, like the
	// original service did.
	AuthEnabled bool   `koanf:"auth_enabled"`
	JWTSecret   string `koanf:"jwt_secret"`

	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`

	CORSOrigins []string `koanf:"cors_origins"`
}

// EngineConfig holds layout engine defaults applied to contexts that do
// not set their own options.
type EngineConfig struct {
	ReduceFactor float64 `koanf:"reduce_factor" validate:"gt=0,lte=1"`
	ReduceTries  int     `koanf:"reduce_tries" validate:"min=1"`

	// EvalTimeout bounds one evaluation; exceeding it is an internal
	// error surfaced to the caller.
	EvalTimeout time.Duration `koanf:"eval_timeout"`
}

// WebsocketConfig holds push transport settings.
type WebsocketConfig struct {
	WriteTimeout   time.Duration `koanf:"write_timeout"`
	PingInterval   time.Duration `koanf:"ping_interval"`
	MaxMessageSize int64         `koanf:"max_message_size"`

	// MessageRate and MessageBurst bound inbound client messages per
	// connection (token bucket).
	MessageRate  float64 `koanf:"message_rate"`
	MessageBurst int     `koanf:"message_burst"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn warning error fatal disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns the built-in defaults, applied before the config
// file and environment layers.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            3891,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Store: StoreConfig{
			Path:           "/data/mosaicus",
			InMemory:       false,
			GCInterval:     10 * time.Minute,
			GCDiscardRatio: 0.5,
		},
		Security: SecurityConfig{
			AuthEnabled:     false,
			JWTSecret:       "",
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{"*"},
		},
		Engine: EngineConfig{
			ReduceFactor: models.DefaultReduceFactor,
			ReduceTries:  models.DefaultReduceTries,
			EvalTimeout:  5 * time.Second,
		},
		Websocket: WebsocketConfig{
			WriteTimeout:   10 * time.Second,
			PingInterval:   30 * time.Second,
			MaxMessageSize: 64 << 10,
			MessageRate:    20,
			MessageBurst:   40,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks field constraints and cross-field requirements.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return err
	}
	if c.Security.AuthEnabled && c.Security.JWTSecret == "" {
		return fmt.Errorf("security.jwt_secret is required when security.auth_enabled is set")
	}
	if !c.Store.InMemory && c.Store.Path == "" {
		return fmt.Errorf("store.path is required for on-disk storage")
	}
	return nil
}
