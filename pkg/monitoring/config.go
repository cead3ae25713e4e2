package monitoring

import (
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/privacyshield/sazpd-console/pkg/errs"
)

// Kind identifies one monitored upstream resource.
type Kind string

const (
	KindHealth        Kind = "health"
	KindMetrics       Kind = "metrics"
	KindAlerts        Kind = "alerts"
	KindLogs          Kind = "logs"
	KindOperatorStats Kind = "operatorStats"
	KindConfig        Kind = "config"
)

var allKinds = []Kind{KindHealth, KindMetrics, KindAlerts, KindLogs, KindOperatorStats, KindConfig}

// Kinds returns every monitored kind in a fixed order.
func Kinds() []Kind {
	return append([]Kind(nil), allKinds...)
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	for _, known := range allKinds {
		if k == known {
			return true
		}
	}
	return false
}

var envNames = map[Kind]string{
	KindHealth:        "HEALTH",
	KindMetrics:       "METRICS",
	KindAlerts:        "ALERTS",
	KindLogs:          "LOGS",
	KindOperatorStats: "OPERATOR_STATS",
	KindConfig:        "CONFIG",
}

// MinInterval is the shortest accepted polling interval.
const MinInterval = time.Second

// SchedulerConfig is shared by reference between the scheduler loops and the
// operators changing it. Loops read it at the top of every tick, so changes
// apply from the next tick on.
type SchedulerConfig struct {
	mu          sync.RWMutex
	enabled     bool
	intervals   map[Kind]time.Duration
	PollTimeout time.Duration // Max duration of a single poll. Default 10s.
}

// DefaultSchedulerConfig returns the default cadences with real-time enabled.
func DefaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		enabled: true,
		intervals: map[Kind]time.Duration{
			KindHealth:        10 * time.Second,
			KindMetrics:       30 * time.Second,
			KindAlerts:        10 * time.Second,
			KindLogs:          15 * time.Second,
			KindOperatorStats: 60 * time.Second,
			KindConfig:        120 * time.Second,
		},
		PollTimeout: 10 * time.Second,
	}
}

// SchedulerConfigFromEnv loads config from environment variables.
// SAZPD_MONITORING_ENABLED, SAZPD_MONITORING_POLL_TIMEOUT_SECONDS and
// SAZPD_MONITORING_<KIND>_INTERVAL_SECONDS, e.g. SAZPD_MONITORING_OPERATOR_STATS_INTERVAL_SECONDS.
func SchedulerConfigFromEnv() *SchedulerConfig {
	cfg := DefaultSchedulerConfig()

	if v := os.Getenv("SAZPD_MONITORING_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.enabled = b
		}
	}

	if v := os.Getenv("SAZPD_MONITORING_POLL_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.PollTimeout = time.Duration(n) * time.Second
		}
	}

	for kind, name := range envNames {
		if v := os.Getenv("SAZPD_MONITORING_" + name + "_INTERVAL_SECONDS"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 1 {
				cfg.intervals[kind] = time.Duration(n) * time.Second
			}
		}
	}

	return cfg
}

// Enabled reports whether real-time polling is on.
func (c *SchedulerConfig) Enabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enabled
}

// SetEnabled turns real-time polling on or off for every kind.
func (c *SchedulerConfig) SetEnabled(enabled bool) {
	c.mu.Lock()
	c.enabled = enabled
	c.mu.Unlock()
}

// Interval returns the polling interval of kind.
func (c *SchedulerConfig) Interval(kind Kind) time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.intervals[kind]
}

// SetInterval changes the polling interval of kind. d must be at least MinInterval.
func (c *SchedulerConfig) SetInterval(kind Kind, d time.Duration) error {
	if !kind.Valid() {
		return errs.NotFound("unknown monitoring kind %q", kind)
	}
	if d < MinInterval {
		return errs.Invalid("interval for %s must be at least %s, got %s", kind, MinInterval, d)
	}
	c.mu.Lock()
	c.intervals[kind] = d
	c.mu.Unlock()
	return nil
}

// Intervals returns a copy of all intervals.
func (c *SchedulerConfig) Intervals() map[Kind]time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[Kind]time.Duration, len(c.intervals))
	for k, v := range c.intervals {
		out[k] = v
	}
	return out
}
