// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes daemon settings
// such as server timeouts, logging, the on-device database path, cart
// retention, offline queue policy, cache TTLs, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tbourn/go-pos-offline/internal/sysutil"
)

// CORSConfig defines Cross-Origin Resource Sharing settings for the local
// UI origin(s).
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-pos-offline")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// CartConfig bounds the durable cart session.
type CartConfig struct {
	Retention    time.Duration // CART_RETENTION: state older than this is purged on load
	HistoryLimit int           // CART_HISTORY_LIMIT: FIFO recovery ring size
	Debounce     time.Duration // CART_DEBOUNCE: coalescing window for bulk saves
}

// QueueConfig bounds the offline mutation queue.
type QueueConfig struct {
	MaxRetries int // QUEUE_MAX_RETRIES: failed replays before an item is dropped
}

// CacheConfig holds the per-class TTLs and upstream timeouts of the network
// cache layer.
type CacheConfig struct {
	ProductsTTL   time.Duration // CACHE_PRODUCTS_TTL
	EmployeesTTL  time.Duration // CACHE_EMPLOYEES_TTL
	StaticTTL     time.Duration // CACHE_STATIC_TTL
	APITimeout    time.Duration // CACHE_API_TIMEOUT: products/employees fetches
	StaticTimeout time.Duration // CACHE_STATIC_TIMEOUT: static asset fetches
}

// Config holds all configuration values for the daemon.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging
	LogLevel    string // debug|info|warn|error|fatal|panic
	LogPretty   bool   // pretty console logs in dev
	APIBasePath string // base path for API routes

	// App
	DBPath     string // SQLite path for the on-device store
	BackendURL string // base URL of the retail backend
	HealthURL  string // probe target for the connectivity monitor
	Location   string // store/warehouse identifier stamped into the session

	Cart  CartConfig
	Queue QueueConfig
	Cache CacheConfig

	// Connectivity probing
	ProbeInterval time.Duration // CONNECTIVITY_PROBE_INTERVAL
	ProbeTimeout  time.Duration // CONNECTIVITY_PROBE_TIMEOUT

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8090"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:    strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:   getbool("LOG_PRETTY", false),
		APIBasePath: normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// App
		DBPath:     getenv("DB_PATH", "pos.db"),
		BackendURL: strings.TrimRight(getenv("BACKEND_URL", "http://localhost:8080"), "/"),
		HealthURL:  getenv("BACKEND_HEALTH_URL", ""),
		Location:   getenv("POS_LOCATION", ""),

		Cart: CartConfig{
			Retention:    getdur("CART_RETENTION", 30*24*time.Hour),
			HistoryLimit: getint("CART_HISTORY_LIMIT", 10),
			Debounce:     getdur("CART_DEBOUNCE", time.Second),
		},
		Queue: QueueConfig{
			MaxRetries: getint("QUEUE_MAX_RETRIES", 3),
		},
		Cache: CacheConfig{
			ProductsTTL:   getdur("CACHE_PRODUCTS_TTL", 30*time.Minute),
			EmployeesTTL:  getdur("CACHE_EMPLOYEES_TTL", 60*time.Minute),
			StaticTTL:     getdur("CACHE_STATIC_TTL", 24*time.Hour),
			APITimeout:    getdur("CACHE_API_TIMEOUT", 10*time.Second),
			StaticTimeout: getdur("CACHE_STATIC_TIMEOUT", 15*time.Second),
		},

		// Connectivity probing
		ProbeInterval: getdur("CONNECTIVITY_PROBE_INTERVAL", 10*time.Second),
		ProbeTimeout:  getdur("CONNECTIVITY_PROBE_TIMEOUT", 3*time.Second),

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 25.0),
		RateBurst: getint("RATE_BURST", 50),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-pos-offline"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	cfg.HealthURL = sysutil.FirstNonEmpty(cfg.HealthURL, cfg.BackendURL+"/health")

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if strings.TrimSpace(cfg.BackendURL) == "" {
		return cfg, errors.New("BACKEND_URL must not be empty")
	}
	if cfg.Cart.Retention <= 0 {
		return cfg, errors.New("CART_RETENTION must be > 0")
	}
	if cfg.Cart.HistoryLimit < 1 {
		return cfg, errors.New("CART_HISTORY_LIMIT must be >= 1")
	}
	if cfg.Cart.Debounce < 0 {
		return cfg, errors.New("CART_DEBOUNCE must be >= 0")
	}
	if cfg.Queue.MaxRetries < 1 {
		return cfg, errors.New("QUEUE_MAX_RETRIES must be >= 1")
	}
	if cfg.Cache.ProductsTTL <= 0 || cfg.Cache.EmployeesTTL <= 0 || cfg.Cache.StaticTTL <= 0 {
		return cfg, errors.New("cache TTLs must be positive durations")
	}
	if cfg.Cache.APITimeout <= 0 || cfg.Cache.StaticTimeout <= 0 {
		return cfg, errors.New("cache timeouts must be positive durations")
	}
	if cfg.ProbeInterval <= 0 || cfg.ProbeTimeout <= 0 {
		return cfg, errors.New("connectivity probe settings must be positive durations")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if sysutil.IsTruthy(v) {
			return true
		}
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "0", "false", "no", "n", "off", "f":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
