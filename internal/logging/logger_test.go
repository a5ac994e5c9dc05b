// Mosaicus - Multi-Device Interactive Media Layout Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mosaicus

package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"INFO", zerolog.InfoLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"disabled", zerolog.Disabled},
		{"bogus", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}
	for _, tc := range tests {
		if got := ParseLevel(tc.in); got != tc.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestInitJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "debug", Format: "json", Output: &buf})
	defer Init(Config{})

	Info().Str("context", "ctx1").Msg("layout evaluated")
	out := buf.String()
	if !strings.Contains(out, `"context":"ctx1"`) {
		t.Errorf("structured field missing: %s", out)
	}
	if !strings.Contains(out, `"message":"layout evaluated"`) {
		t.Errorf("message missing: %s", out)
	}
}

func TestCtxCarriesRequestID(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "debug", Output: &buf})
	defer Init(Config{})

	ctx := ContextWithRequestID(context.Background(), "req-42")
	Ctx(ctx).Info().Msg("handled")
	if !strings.Contains(buf.String(), `"request_id":"req-42"`) {
		t.Errorf("request id missing: %s", buf.String())
	}
}

func TestLoggerFromContextFallback(t *testing.T) {
	var buf bytes.Buffer
	stored := NewTestLogger(&buf)

	ctx := ContextWithLogger(context.Background(), stored)
	got := LoggerFromContext(ctx)
	got.Info().Msg("via context")
	if !strings.Contains(buf.String(), "via context") {
		t.Error("context logger not used")
	}

	// No stored logger: falls back to the global one without panicking.
	_ = LoggerFromContext(context.Background())
}

func TestSlogAdapter(t *testing.T) {
	var buf bytes.Buffer
	zl := NewTestLogger(&buf).Level(zerolog.DebugLevel)
	slogger := slog.New(NewSlogHandlerWithLogger(zl))

	slogger.Info("service started", "service", "hub", "port", int64(8080))
	out := buf.String()
	if !strings.Contains(out, `"service":"hub"`) || !strings.Contains(out, `"port":8080`) {
		t.Errorf("attrs not forwarded: %s", out)
	}

	buf.Reset()
	grouped := slogger.With("restarts", int64(2)).WithGroup("suture")
	grouped.Warn("service restarted", "name", "http")
	out = buf.String()
	if !strings.Contains(out, `"suture.name":"http"`) {
		t.Errorf("group prefix missing: %s", out)
	}
	if !strings.Contains(out, `"restarts":2`) {
		t.Errorf("pre-set attr missing: %s", out)
	}
	if !strings.Contains(out, `"level":"warn"`) {
		t.Errorf("level not mapped: %s", out)
	}
}
