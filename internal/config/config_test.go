package config

import (
	"strings"
	"testing"
	"time"
)

// clearEnv blanks the variables a test depends on; getenv treats empty as
// unset, so defaults apply regardless of the host environment.
func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t,
		"PORT", "GIN_MODE", "LOG_LEVEL", "API_BASE_PATH",
		"DB_PATH", "BACKEND_URL", "BACKEND_HEALTH_URL",
		"CART_RETENTION", "CART_HISTORY_LIMIT", "CART_DEBOUNCE",
		"QUEUE_MAX_RETRIES",
		"CACHE_PRODUCTS_TTL", "CACHE_EMPLOYEES_TTL", "CACHE_STATIC_TTL",
		"CACHE_API_TIMEOUT", "CACHE_STATIC_TIMEOUT",
		"CONNECTIVITY_PROBE_INTERVAL", "CONNECTIVITY_PROBE_TIMEOUT",
		"RATE_RPS", "RATE_BURST", "CORS_ALLOWED_ORIGINS",
	)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Port != "8090" || cfg.GinMode != "release" || cfg.LogLevel != "info" {
		t.Fatalf("server defaults wrong: %+v", cfg)
	}
	if cfg.APIBasePath != "/api/v1" {
		t.Fatalf("APIBasePath = %q", cfg.APIBasePath)
	}
	if cfg.DBPath != "pos.db" || cfg.BackendURL != "http://localhost:8080" {
		t.Fatalf("app defaults wrong: %+v", cfg)
	}
	if cfg.HealthURL != "http://localhost:8080/health" {
		t.Fatalf("HealthURL must default to backend /health: %q", cfg.HealthURL)
	}
	if cfg.Cart.Retention != 30*24*time.Hour || cfg.Cart.HistoryLimit != 10 || cfg.Cart.Debounce != time.Second {
		t.Fatalf("cart defaults wrong: %+v", cfg.Cart)
	}
	if cfg.Queue.MaxRetries != 3 {
		t.Fatalf("queue defaults wrong: %+v", cfg.Queue)
	}
	if cfg.Cache.ProductsTTL != 30*time.Minute || cfg.Cache.EmployeesTTL != time.Hour || cfg.Cache.StaticTTL != 24*time.Hour {
		t.Fatalf("cache TTL defaults wrong: %+v", cfg.Cache)
	}
	if cfg.Cache.APITimeout != 10*time.Second || cfg.Cache.StaticTimeout != 15*time.Second {
		t.Fatalf("cache timeout defaults wrong: %+v", cfg.Cache)
	}
	if cfg.ProbeInterval != 10*time.Second || cfg.ProbeTimeout != 3*time.Second {
		t.Fatalf("probe defaults wrong: %+v", cfg)
	}
	if cfg.RateRPS != 25.0 || cfg.RateBurst != 50 {
		t.Fatalf("rate defaults wrong: %+v", cfg)
	}
	if len(cfg.CORS.AllowedOrigins) != 0 {
		t.Fatalf("CORS default must be empty: %+v", cfg.CORS)
	}
}

func TestLoad_Normalization(t *testing.T) {
	t.Setenv("LOG_LEVEL", "WARNING")
	t.Setenv("GIN_MODE", "staging")
	t.Setenv("API_BASE_PATH", "api/v2/")
	t.Setenv("BACKEND_URL", "http://pos-backend:9000///")
	t.Setenv("BACKEND_HEALTH_URL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("LOG_LEVEL=WARNING must normalize to warn, got %q", cfg.LogLevel)
	}
	if cfg.GinMode != "release" {
		t.Fatalf("unknown GIN_MODE must fall back to release, got %q", cfg.GinMode)
	}
	if cfg.APIBasePath != "/api/v2" {
		t.Fatalf("base path not normalized: %q", cfg.APIBasePath)
	}
	if cfg.BackendURL != "http://pos-backend:9000" {
		t.Fatalf("backend URL not trimmed: %q", cfg.BackendURL)
	}
	if cfg.HealthURL != "http://pos-backend:9000/health" {
		t.Fatalf("derived health URL wrong: %q", cfg.HealthURL)
	}
}

func TestLoad_ExplicitHealthURLWins(t *testing.T) {
	t.Setenv("BACKEND_URL", "http://pos-backend:9000")
	t.Setenv("BACKEND_HEALTH_URL", "http://gateway:9000/ping")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HealthURL != "http://gateway:9000/ping" {
		t.Fatalf("explicit health URL ignored: %q", cfg.HealthURL)
	}
}

func TestLoad_ValidationFailures(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"bad log level", map[string]string{"LOG_LEVEL": "verbose"}, "LOG_LEVEL"},
		{"zero history", map[string]string{"CART_HISTORY_LIMIT": "0"}, "CART_HISTORY_LIMIT"},
		{"zero retries", map[string]string{"QUEUE_MAX_RETRIES": "0"}, "QUEUE_MAX_RETRIES"},
		{"negative rps", map[string]string{"RATE_RPS": "-1"}, "RATE_RPS"},
		{"zero burst", map[string]string{"RATE_BURST": "0"}, "RATE_BURST"},
		{"bad sample ratio", map[string]string{"OTEL_TRACES_SAMPLER_ARG": "1.5"}, "OTEL_TRACES_SAMPLER_ARG"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %s, got %v", tc.want, err)
			}
		})
	}
}

func TestLoad_CSVOrigins(t *testing.T) {
	t.Setenv("CORS_ALLOWED_ORIGINS", " http://register.local , http://kiosk.local ,, ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []string{"http://register.local", "http://kiosk.local"}
	if len(cfg.CORS.AllowedOrigins) != len(want) {
		t.Fatalf("origins = %v", cfg.CORS.AllowedOrigins)
	}
	for i, o := range want {
		if cfg.CORS.AllowedOrigins[i] != o {
			t.Fatalf("origins = %v", cfg.CORS.AllowedOrigins)
		}
	}
}

func TestLoad_DurationAndBoolParsing(t *testing.T) {
	t.Setenv("CART_RETENTION", "72h")
	t.Setenv("CART_DEBOUNCE", "250ms")
	t.Setenv("LOG_PRETTY", "YES")
	t.Setenv("ENABLE_HSTS", "on")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "off") // falsy override of a true default

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Cart.Retention != 72*time.Hour || cfg.Cart.Debounce != 250*time.Millisecond {
		t.Fatalf("durations wrong: %+v", cfg.Cart)
	}
	if !cfg.LogPretty || !cfg.Security.EnableHSTS {
		t.Fatalf("truthy values not parsed: pretty=%v hsts=%v", cfg.LogPretty, cfg.Security.EnableHSTS)
	}
	if cfg.OTEL.Insecure {
		t.Fatalf("falsy value must override the default")
	}
}

func TestLoad_GarbageValuesFallBackToDefaults(t *testing.T) {
	t.Setenv("CART_HISTORY_LIMIT", "ten")
	t.Setenv("CACHE_PRODUCTS_TTL", "soon")
	t.Setenv("RATE_RPS", "fast")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Cart.HistoryLimit != 10 || cfg.Cache.ProductsTTL != 30*time.Minute || cfg.RateRPS != 25.0 {
		t.Fatalf("unparsable values must keep defaults: %+v", cfg)
	}
}

func TestNormalizeBasePath(t *testing.T) {
	cases := map[string]string{
		"":         "/",
		"/":        "/",
		"api":      "/api",
		"/api/v1/": "/api/v1",
		" /api/v1": "/api/v1",
	}
	for in, want := range cases {
		if got := normalizeBasePath(in); got != want {
			t.Fatalf("normalizeBasePath(%q) = %q, want %q", in, got, want)
		}
	}
}
