package audit

import (
	"os"
	"strconv"
)

// AuditConfig controls recording of console commands and retention.
type AuditConfig struct {
	RetentionDays int  // Default 90. Zero disables retention cleanup.
	LogConflicts  bool // Whether commands rejected with 409 are recorded (as warnings)
	Enabled       bool // Whether the recording middleware is active
}

// DefaultAuditConfig returns the default configuration.
func DefaultAuditConfig() *AuditConfig {
	return &AuditConfig{
		RetentionDays: 90,
		LogConflicts:  true,
		Enabled:       true,
	}
}

// AuditConfigFromEnv loads config from environment variables.
// SAZPD_AUDIT_RETENTION_DAYS, SAZPD_AUDIT_LOG_CONFLICTS, SAZPD_AUDIT_ENABLED
func AuditConfigFromEnv() *AuditConfig {
	cfg := DefaultAuditConfig()

	if v := os.Getenv("SAZPD_AUDIT_RETENTION_DAYS"); v != "" {
		if days, err := strconv.Atoi(v); err == nil && days >= 0 {
			cfg.RetentionDays = days
		}
	}

	if v := os.Getenv("SAZPD_AUDIT_LOG_CONFLICTS"); v != "" {
		cfg.LogConflicts, _ = strconv.ParseBool(v)
	}

	if v := os.Getenv("SAZPD_AUDIT_ENABLED"); v != "" {
		cfg.Enabled, _ = strconv.ParseBool(v)
	}

	return cfg
}
