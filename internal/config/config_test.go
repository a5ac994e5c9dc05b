// Mosaicus - Multi-Device Interactive Media Layout Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mosaicus

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
	if cfg.Server.Addr() != "0.0.0.0:3891" {
		t.Errorf("addr = %s", cfg.Server.Addr())
	}
	if cfg.Engine.ReduceFactor != 0.8 || cfg.Engine.ReduceTries != 5 {
		t.Errorf("engine defaults = %g/%d", cfg.Engine.ReduceFactor, cfg.Engine.ReduceTries)
	}
}

func TestValidateCrossFields(t *testing.T) {
	cfg := defaultConfig()
	cfg.Security.AuthEnabled = true
	if err := cfg.Validate(); err == nil {
		t.Error("auth without a JWT secret must fail validation")
	}
	cfg.Security.JWTSecret = "s3cret"
	if err := cfg.Validate(); err != nil {
		t.Errorf("auth with secret: %v", err)
	}

	cfg = defaultConfig()
	cfg.Store.Path = ""
	if err := cfg.Validate(); err == nil {
		t.Error("on-disk store without a path must fail validation")
	}
	cfg.Store.InMemory = true
	if err := cfg.Validate(); err != nil {
		t.Errorf("in-memory store without path: %v", err)
	}
}

func TestValidateFieldConstraints(t *testing.T) {
	cfg := defaultConfig()
	cfg.Server.Port = 0
	if err := cfg.Validate(); err == nil {
		t.Error("port 0 must fail validation")
	}

	cfg = defaultConfig()
	cfg.Engine.ReduceFactor = 1.5
	if err := cfg.Validate(); err == nil {
		t.Error("reduce factor above 1 must fail validation")
	}

	cfg = defaultConfig()
	cfg.Logging.Level = "verbose"
	if err := cfg.Validate(); err == nil {
		t.Error("unknown log level must fail validation")
	}
}

func TestLoadLayering(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
server:
  port: 4000
store:
  in_memory: true
engine:
  reduce_tries: 3
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("MOSAICUS_SERVER__PORT", "5000")
	t.Setenv("MOSAICUS_SECURITY__CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 5000 {
		t.Errorf("env should beat file: port = %d, want 5000", cfg.Server.Port)
	}
	if !cfg.Store.InMemory {
		t.Error("file value store.in_memory not applied")
	}
	if cfg.Engine.ReduceTries != 3 {
		t.Errorf("file value engine.reduce_tries = %d, want 3", cfg.Engine.ReduceTries)
	}
	if cfg.Server.ReadTimeout != 30*time.Second {
		t.Errorf("default read timeout lost: %v", cfg.Server.ReadTimeout)
	}
	if len(cfg.Security.CORSOrigins) != 2 || cfg.Security.CORSOrigins[0] != "https://a.example" {
		t.Errorf("cors origins = %v", cfg.Security.CORSOrigins)
	}
}

func TestEnvTransform(t *testing.T) {
	tests := []struct{ in, want string }{
		{"MOSAICUS_SERVER__PORT", "server.port"},
		{"MOSAICUS_STORE__GC_INTERVAL", "store.gc_interval"},
		{"MOSAICUS_SECURITY__JWT_SECRET", "security.jwt_secret"},
	}
	for _, tc := range tests {
		if got := envTransform(tc.in); got != tc.want {
			t.Errorf("envTransform(%s) = %s, want %s", tc.in, got, tc.want)
		}
	}
}
