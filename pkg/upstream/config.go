package upstream

import (
	"os"
	"strconv"
	"time"
)

// ClientConfig controls how the console talks to the admin API.
type ClientConfig struct {
	BaseURL          string        // Admin API root, e.g. https://admin.internal/api. Required.
	Token            string        // Bearer token sent with every request. Optional.
	RequestTimeout   time.Duration // Per-request deadline for everything except module runs. Default 10s.
	BreakerFailures  int           // Consecutive failures that open a group's breaker. Default 5.
	BreakerCooldown  time.Duration // How long an open breaker rejects calls. Default 30s.
	AuditPageSize    int           // Page size used when reading the whole audit trail. Default 500.
	MaxResponseBytes int64         // Upper bound on a decoded response body. Default 8 MiB.
	RunHeartbeat     time.Duration // Liveness report interval while a module run is in flight. Default 15s.
}

// DefaultClientConfig returns the default client configuration.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		RequestTimeout:   10 * time.Second,
		BreakerFailures:  5,
		BreakerCooldown:  30 * time.Second,
		AuditPageSize:    500,
		MaxResponseBytes: 8 << 20,
		RunHeartbeat:     15 * time.Second,
	}
}

// ClientConfigFromEnv loads config from environment variables.
// SAZPD_UPSTREAM_URL, SAZPD_UPSTREAM_TOKEN, SAZPD_UPSTREAM_TIMEOUT_SECONDS,
// SAZPD_UPSTREAM_BREAKER_FAILURES, SAZPD_UPSTREAM_BREAKER_COOLDOWN_SECONDS,
// SAZPD_UPSTREAM_RUN_HEARTBEAT_SECONDS
func ClientConfigFromEnv() *ClientConfig {
	cfg := DefaultClientConfig()

	cfg.BaseURL = os.Getenv("SAZPD_UPSTREAM_URL")
	cfg.Token = os.Getenv("SAZPD_UPSTREAM_TOKEN")

	if v := os.Getenv("SAZPD_UPSTREAM_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RequestTimeout = time.Duration(n) * time.Second
		}
	}

	if v := os.Getenv("SAZPD_UPSTREAM_BREAKER_FAILURES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.BreakerFailures = n
		}
	}

	if v := os.Getenv("SAZPD_UPSTREAM_BREAKER_COOLDOWN_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.BreakerCooldown = time.Duration(n) * time.Second
		}
	}

	if v := os.Getenv("SAZPD_UPSTREAM_RUN_HEARTBEAT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RunHeartbeat = time.Duration(n) * time.Second
		}
	}

	return cfg
}
