package testsession

import (
	"os"
	"strconv"
	"time"
)

// SessionConfig controls test execution and status publishing.
type SessionConfig struct {
	Parallel        bool          // Run modules concurrently on StartFull. Default true.
	StatusInterval  time.Duration // How often the status snapshot is published. Default 2s.
	StallTimeout    time.Duration // Max time a running module may go without a progress update. Default 2m.
	ExecutionBudget time.Duration // Max wall time of one module execution. Default 10m.
	WatchInterval   time.Duration // How often the watchdog checks running modules. Default 1s.
	RetentionDays   int           // How long finished sessions are kept in history. Default 30.
}

// DefaultSessionConfig returns the default session configuration.
func DefaultSessionConfig() *SessionConfig {
	return &SessionConfig{
		Parallel:        true,
		StatusInterval:  2 * time.Second,
		StallTimeout:    2 * time.Minute,
		ExecutionBudget: 10 * time.Minute,
		WatchInterval:   time.Second,
		RetentionDays:   30,
	}
}

// SessionConfigFromEnv loads config from environment variables.
// SAZPD_TEST_PARALLEL, SAZPD_TEST_STATUS_INTERVAL_SECONDS, SAZPD_TEST_STALL_TIMEOUT_SECONDS,
// SAZPD_TEST_EXECUTION_BUDGET_SECONDS, SAZPD_TEST_RETENTION_DAYS
func SessionConfigFromEnv() *SessionConfig {
	cfg := DefaultSessionConfig()

	if v := os.Getenv("SAZPD_TEST_PARALLEL"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Parallel = b
		}
	}

	if v := os.Getenv("SAZPD_TEST_STATUS_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.StatusInterval = time.Duration(n) * time.Second
		}
	}

	if v := os.Getenv("SAZPD_TEST_STALL_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.StallTimeout = time.Duration(n) * time.Second
		}
	}

	if v := os.Getenv("SAZPD_TEST_EXECUTION_BUDGET_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ExecutionBudget = time.Duration(n) * time.Second
		}
	}

	if v := os.Getenv("SAZPD_TEST_RETENTION_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.RetentionDays = n
		}
	}

	return cfg
}
