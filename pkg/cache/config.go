package cache

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// CacheConfig controls the audit read cache.
type CacheConfig struct {
	// Enabled controls whether audit reads are cached.
	Enabled bool

	// TTL bounds how long a response is served from cache.
	TTL time.Duration

	// MaxSize is the maximum number of cached responses.
	MaxSize int
}

// DefaultCacheConfig returns a CacheConfig with sensible defaults.
func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		Enabled: true,
		TTL:     15 * time.Second,
		MaxSize: 256,
	}
}

// CacheConfigFromEnv reads cache configuration from environment variables,
// falling back to defaults for any unset variable.
//
// Environment variables:
//   - SAZPD_AUDIT_CACHE_ENABLED: "true" or "false" (default: "true")
//   - SAZPD_AUDIT_CACHE_TTL_SECONDS: default 15
//   - SAZPD_AUDIT_CACHE_MAX_SIZE: default 256
func CacheConfigFromEnv() *CacheConfig {
	cfg := DefaultCacheConfig()

	if v := os.Getenv("SAZPD_AUDIT_CACHE_ENABLED"); v != "" {
		cfg.Enabled = strings.EqualFold(v, "true") || v == "1"
	}

	if v := os.Getenv("SAZPD_AUDIT_CACHE_TTL_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			cfg.TTL = time.Duration(secs) * time.Second
		}
	}

	if v := os.Getenv("SAZPD_AUDIT_CACHE_MAX_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxSize = n
		}
	}

	return cfg
}

// New returns a cache for cfg, or nil when caching is disabled.
func New(cfg *CacheConfig) *LRUCache {
	if cfg == nil || !cfg.Enabled {
		return nil
	}
	return NewLRUCache(cfg.MaxSize, cfg.TTL)
}
