package config

import (
	"strings"
	"testing"
	"time"
)

// clearEnv unsets every variable Load reads so defaults are exercised.
func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"PORT", "READ_TIMEOUT", "READ_HEADER_TIMEOUT", "WRITE_TIMEOUT",
		"IDLE_TIMEOUT", "MAX_HEADER_BYTES", "GIN_MODE",
		"LOG_LEVEL", "LOG_PRETTY", "API_BASE_PATH",
		"DB_PATH", "BLOB_PATH", "BASE_URL", "MAX_ATTACHMENT_BYTES",
		"GATEWAY_URL", "GATEWAY_TOKEN",
		"RATE_RPS", "RATE_BURST",
		"CORS_ALLOWED_ORIGINS", "ENABLE_HSTS", "HSTS_MAX_AGE",
		"OTEL_ENABLED", "OTEL_EXPORTER_OTLP_ENDPOINT",
		"OTEL_EXPORTER_OTLP_INSECURE", "OTEL_SERVICE_NAME",
		"OTEL_TRACES_SAMPLER_ARG",
	}
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Port != "8080" {
		t.Fatalf("Port = %q", cfg.Port)
	}
	if cfg.ReadTimeout != 15*time.Second {
		t.Fatalf("ReadTimeout = %v", cfg.ReadTimeout)
	}
	if cfg.GinMode != "release" {
		t.Fatalf("GinMode = %q", cfg.GinMode)
	}
	if cfg.DBPath != "catalog.db" || cfg.BlobPath != "data/clips" {
		t.Fatalf("store paths = (%q, %q)", cfg.DBPath, cfg.BlobPath)
	}
	if cfg.BaseURL != "http://localhost:8080/clips/" {
		t.Fatalf("BaseURL default = %q", cfg.BaseURL)
	}
	if cfg.MaxAttachmentBytes != 8<<20 {
		t.Fatalf("MaxAttachmentBytes = %d", cfg.MaxAttachmentBytes)
	}
	if !strings.HasPrefix(cfg.Gateway.URL, "ws://") {
		t.Fatalf("Gateway.URL = %q", cfg.Gateway.URL)
	}
	if cfg.APIBasePath != "/api/v1" {
		t.Fatalf("APIBasePath = %q", cfg.APIBasePath)
	}
}

func TestLoad_BaseURLGetsTrailingSlash(t *testing.T) {
	clearEnv(t)
	t.Setenv("BASE_URL", "https://cdn.example/clips")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BaseURL != "https://cdn.example/clips/" {
		t.Fatalf("BaseURL = %q", cfg.BaseURL)
	}
}

func TestLoad_NormalizesWarnAndGinMode(t *testing.T) {
	clearEnv(t)
	t.Setenv("LOG_LEVEL", "WARNING")
	t.Setenv("GIN_MODE", "bogus")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("LogLevel = %q", cfg.LogLevel)
	}
	if cfg.GinMode != "release" {
		t.Fatalf("GinMode = %q", cfg.GinMode)
	}
}

func TestLoad_ValidationFailures(t *testing.T) {
	cases := map[string]struct {
		key string
		val string
	}{
		"bad log level":    {"LOG_LEVEL", "verbose"},
		"bad gateway url":  {"GATEWAY_URL", "http://not-a-socket"},
		"negative rps":     {"RATE_RPS", "-1"},
		"zero burst":       {"RATE_BURST", "0"},
		"bad sample ratio": {"OTEL_TRACES_SAMPLER_ARG", "2"},
	}
	for label, tc := range cases {
		t.Run(label, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tc.key, tc.val)
			if _, err := Load(); err == nil {
				t.Fatalf("expected validation error for %s=%s", tc.key, tc.val)
			}
		})
	}
}

func TestLoad_CSVAndBoolParsing(t *testing.T) {
	clearEnv(t)
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("LOG_PRETTY", "yes")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.CORS.AllowedOrigins) != 2 {
		t.Fatalf("AllowedOrigins = %v", cfg.CORS.AllowedOrigins)
	}
	if !cfg.LogPretty {
		t.Fatalf("LOG_PRETTY=yes not parsed as true")
	}
}

func TestMustLoad_PanicsOnInvalid(t *testing.T) {
	clearEnv(t)
	t.Setenv("LOG_LEVEL", "verbose")

	defer func() {
		if recover() == nil {
			t.Fatalf("MustLoad did not panic")
		}
	}()
	MustLoad()
}

func TestNormalizeBasePath(t *testing.T) {
	cases := map[string]string{
		"":        "/",
		"api":     "/api",
		"/api/":   "/api",
		"/api/v1": "/api/v1",
	}
	for in, want := range cases {
		if got := normalizeBasePath(in); got != want {
			t.Fatalf("normalizeBasePath(%q) = %q, want %q", in, got, want)
		}
	}
}
