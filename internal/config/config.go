// Package config loads the monitor engine's runtime configuration from
// environment variables (server/transport/auth/tracing knobs) and the
// services definition file (fleet topology + monitoring/alert tunables),
// via getenv/mustBool/mustDuration helpers with sensible defaults. Every
// setting here has a safe default (open auth mode, no TLS, no tracing)
// so the engine starts with zero configuration — only ServicesFile
// failing to parse is fatal (see services.go).
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the process-wide runtime configuration.
type Config struct {
	ListenAddr      string        // ex: ":8080"
	RequestTimeout  time.Duration // per-request deadline enforced by chi middleware.Timeout
	ShutdownTimeout time.Duration

	LogLevel  string // "debug" | "info" | "warn" | "error"
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)

	ServicesFile string // path to the YAML fleet/monitoring/alerts definition

	TLSCertFile string // if both cert+key load, serve HTTPS; else HTTP with a warning
	TLSKeyFile  string

	APIKey       string   // x-api-key shared secret; empty disables this auth path
	TokenSecret  string   // HMAC bearer-token signing secret; empty disables token auth
	AllowedRoles []string // roles a bearer token's claims must intersect

	OTelEndpoint string // OTLP/HTTP collector endpoint; empty => no-op tracer

	AllowedHosts []string // optional, restrict access to specific Host headers
	AllowedCIDRS []string // optional, restrict access to specific IPs
	TrustProxy   bool     // true => trust X-Forwarded-For headers (e.g. behind a proxy)
	CORSOrigins  []string // allowed Origin values; empty disables CORS headers entirely

	// RedisAddr is optional: when empty the engine runs single-instance,
	// with the Control Dispatcher's compose lock and the Alert Engine's
	// dedup window kept purely in-process.
	RedisAddr            string
	RedisUser            string
	RedisPassword        string
	RedisDB              int
	RedisDialTimeout     time.Duration
	RedisReadTimeout     time.Duration
	RedisWriteTimeout    time.Duration
	RedisPoolSize        int
	RedisConnectTimeout  time.Duration
	RedisRetryInterval   time.Duration
	RedisMaxWait         time.Duration
	RedisPingTimeout     time.Duration
	RedisWarnThreshold   int
}

// Load builds Config from MONITOR_* environment variables.
func Load() *Config {
	cfg := &Config{
		ListenAddr:      getenv("MONITOR_LISTEN_ADDR", ":8080"),
		RequestTimeout:  mustDuration("MONITOR_REQUEST_TIMEOUT", 30*time.Second),
		ShutdownTimeout: mustDuration("MONITOR_SHUTDOWN_TIMEOUT", 10*time.Second),

		LogLevel:  getenv("MONITOR_LOG_LEVEL", "info"),
		PrettyLog: mustBool("MONITOR_PRETTY_LOG", true),

		ServicesFile: getenv("MONITOR_SERVICES_FILE", "/etc/monitor/services.yaml"),

		TLSCertFile: getenv("MONITOR_TLS_CERT_FILE", ""),
		TLSKeyFile:  getenv("MONITOR_TLS_KEY_FILE", ""),

		APIKey:       getenv("MONITOR_API_KEY", ""),
		TokenSecret:  getenv("MONITOR_TOKEN_SECRET", ""),
		AllowedRoles: parseCSV(getenv("MONITOR_ALLOWED_ROLES", "")),

		OTelEndpoint: getenv("MONITOR_OTEL_ENDPOINT", ""),

		AllowedHosts: parseCSV(getenv("MONITOR_ALLOWED_HOSTS", "")),
		AllowedCIDRS: parseCSV(getenv("MONITOR_ALLOWED_CIDRS", "")),
		TrustProxy:   mustBool("MONITOR_TRUST_PROXY", false),
		CORSOrigins:  parseCSV(getenv("MONITOR_CORS_ORIGINS", "")),

		RedisAddr:           getenv("MONITOR_REDIS_ADDR", ""),
		RedisUser:           getenv("MONITOR_REDIS_USER", ""),
		RedisPassword:       getenv("MONITOR_REDIS_PASSWORD", ""),
		RedisDB:             mustInt("MONITOR_REDIS_DB", 0),
		RedisDialTimeout:    mustDuration("MONITOR_REDIS_DIAL_TIMEOUT", 2*time.Second),
		RedisReadTimeout:    mustDuration("MONITOR_REDIS_READ_TIMEOUT", 2*time.Second),
		RedisWriteTimeout:   mustDuration("MONITOR_REDIS_WRITE_TIMEOUT", 2*time.Second),
		RedisPoolSize:       mustInt("MONITOR_REDIS_POOL_SIZE", 10),
		RedisConnectTimeout: mustDuration("MONITOR_REDIS_CONNECT_TIMEOUT", 15*time.Second),
		RedisRetryInterval:  mustDuration("MONITOR_REDIS_RETRY_INTERVAL", 2*time.Second),
		RedisMaxWait:        mustDuration("MONITOR_REDIS_MAX_WAIT", 10*time.Second),
		RedisPingTimeout:    mustDuration("MONITOR_REDIS_PING_TIMEOUT", 2*time.Second),
		RedisWarnThreshold:  mustInt("MONITOR_REDIS_WARN_THRESHOLD", 3),
	}

	if cfg.LogLevel == "debug" {
		cfgCopy := *cfg
		if cfgCopy.APIKey != "" {
			cfgCopy.APIKey = "***REDACTED***"
		}
		if cfgCopy.TokenSecret != "" {
			cfgCopy.TokenSecret = "***REDACTED***"
		}
		if cfgCopy.RedisPassword != "" {
			cfgCopy.RedisPassword = "***REDACTED***"
		}
		log.Printf("[DEBUG] cfg: %+v\n", cfgCopy)
	}

	return cfg
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func mustInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		trimmed := strings.TrimSpace(part)
		trimmed = strings.Trim(trimmed, `"'`)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
