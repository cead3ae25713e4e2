// Package config assembles the process configuration of the console server
// from an optional YAML file and SAZPD_* environment variables.
//
// Keys mirror the environment variable names: test.parallel is
// SAZPD_TEST_PARALLEL, monitoring.operator_stats_interval_seconds is
// SAZPD_MONITORING_OPERATOR_STATS_INTERVAL_SECONDS. Environment variables win
// over the file.
package config

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/privacyshield/sazpd-console/pkg/alerts"
	"github.com/privacyshield/sazpd-console/pkg/audit"
	"github.com/privacyshield/sazpd-console/pkg/cache"
	"github.com/privacyshield/sazpd-console/pkg/database"
	"github.com/privacyshield/sazpd-console/pkg/monitoring"
	"github.com/privacyshield/sazpd-console/pkg/testsession"
	"github.com/privacyshield/sazpd-console/pkg/upstream"
)

// EnvPrefix is the prefix of every environment variable.
const EnvPrefix = "SAZPD"

// Audit sources.
const (
	AuditSourceLocal    = "local"
	AuditSourceUpstream = "upstream"
)

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	ListenAddr      string
	CORSOrigins     []string
	ShutdownTimeout time.Duration
}

// RedisConfig controls the critical alert publisher. An empty URL disables it.
type RedisConfig struct {
	URL     string
	Channel string
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string // debug, info, warn or error
	Format string // text or json
}

// Config is the full process configuration.
type Config struct {
	Server      ServerConfig
	Log         LogConfig
	Database    *database.Config
	Redis       RedisConfig
	Upstream    *upstream.ClientConfig
	Session     *testsession.SessionConfig
	Monitoring  *monitoring.SchedulerConfig
	Alerts      *alerts.PipelineConfig
	Audit       *audit.AuditConfig
	AuditCache  *cache.CacheConfig
	AuditSource string
}

// Load reads path (optional) and the environment. Defaults come from each
// package's FromEnv constructor, so a key missing from the file keeps the
// package default.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	session := testsession.SessionConfigFromEnv()
	sched := monitoring.SchedulerConfigFromEnv()
	pipeline := alerts.DefaultPipelineConfig()
	auditCfg := audit.AuditConfigFromEnv()
	auditCache := cache.CacheConfigFromEnv()
	db := database.ConfigFromEnv()
	up := upstream.ClientConfigFromEnv()

	v.SetDefault("server.listen_addr", ":8080")
	v.SetDefault("server.cors_origins", []string{"https://*", "http://*"})
	v.SetDefault("server.shutdown_timeout_seconds", 30)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("database.driver", db.Driver)
	v.SetDefault("database.dsn", db.DSN)
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.channel", alerts.DefaultRedisChannel)
	v.SetDefault("upstream.url", up.BaseURL)
	v.SetDefault("upstream.token", up.Token)
	v.SetDefault("upstream.timeout_seconds", seconds(up.RequestTimeout))
	v.SetDefault("upstream.breaker_failures", up.BreakerFailures)
	v.SetDefault("upstream.breaker_cooldown_seconds", seconds(up.BreakerCooldown))
	v.SetDefault("upstream.run_heartbeat_seconds", seconds(up.RunHeartbeat))
	v.SetDefault("test.parallel", session.Parallel)
	v.SetDefault("test.status_interval_seconds", seconds(session.StatusInterval))
	v.SetDefault("test.stall_timeout_seconds", seconds(session.StallTimeout))
	v.SetDefault("test.execution_budget_seconds", seconds(session.ExecutionBudget))
	v.SetDefault("test.retention_days", session.RetentionDays)
	v.SetDefault("monitoring.enabled", sched.Enabled())
	v.SetDefault("monitoring.poll_timeout_seconds", seconds(sched.PollTimeout))
	for kind, d := range sched.Intervals() {
		v.SetDefault(intervalKey(kind), seconds(d))
	}
	v.SetDefault("alerts.notify_timeout_seconds", seconds(pipeline.NotifyTimeout))
	v.SetDefault("audit.source", AuditSourceLocal)
	v.SetDefault("audit.enabled", auditCfg.Enabled)
	v.SetDefault("audit.log_conflicts", auditCfg.LogConflicts)
	v.SetDefault("audit.retention_days", auditCfg.RetentionDays)
	v.SetDefault("audit.cache_enabled", auditCache.Enabled)
	v.SetDefault("audit.cache_ttl_seconds", seconds(auditCache.TTL))
	v.SetDefault("audit.cache_max_size", auditCache.MaxSize)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			ListenAddr:      v.GetString("server.listen_addr"),
			CORSOrigins:     v.GetStringSlice("server.cors_origins"),
			ShutdownTimeout: positiveSeconds(v, "server.shutdown_timeout_seconds", 30*time.Second),
		},
		Log: LogConfig{
			Level:  strings.ToLower(v.GetString("log.level")),
			Format: strings.ToLower(v.GetString("log.format")),
		},
		Database: &database.Config{
			Driver: strings.ToLower(v.GetString("database.driver")),
			DSN:    v.GetString("database.dsn"),
		},
		Redis: RedisConfig{
			URL:     v.GetString("redis.url"),
			Channel: v.GetString("redis.channel"),
		},
		Upstream:    up,
		Session:     session,
		Monitoring:  sched,
		Alerts:      pipeline,
		Audit:       auditCfg,
		AuditCache:  auditCache,
		AuditSource: strings.ToLower(v.GetString("audit.source")),
	}

	up.BaseURL = v.GetString("upstream.url")
	up.Token = v.GetString("upstream.token")
	up.RequestTimeout = positiveSeconds(v, "upstream.timeout_seconds", up.RequestTimeout)
	if n := v.GetInt("upstream.breaker_failures"); n > 0 {
		up.BreakerFailures = n
	}
	up.BreakerCooldown = positiveSeconds(v, "upstream.breaker_cooldown_seconds", up.BreakerCooldown)
	up.RunHeartbeat = positiveSeconds(v, "upstream.run_heartbeat_seconds", up.RunHeartbeat)

	session.Parallel = v.GetBool("test.parallel")
	session.StatusInterval = positiveSeconds(v, "test.status_interval_seconds", session.StatusInterval)
	session.StallTimeout = positiveSeconds(v, "test.stall_timeout_seconds", session.StallTimeout)
	session.ExecutionBudget = positiveSeconds(v, "test.execution_budget_seconds", session.ExecutionBudget)
	if n := v.GetInt("test.retention_days"); n >= 0 {
		session.RetentionDays = n
	}

	sched.SetEnabled(v.GetBool("monitoring.enabled"))
	sched.PollTimeout = positiveSeconds(v, "monitoring.poll_timeout_seconds", sched.PollTimeout)
	for _, kind := range monitoring.Kinds() {
		if n := v.GetInt64(intervalKey(kind)); n > 0 {
			if n > math.MaxInt64/int64(time.Second) {
				return nil, fmt.Errorf("monitoring %s interval: %d seconds is out of range", kind, n)
			}
			if err := sched.SetInterval(kind, time.Duration(n)*time.Second); err != nil {
				return nil, fmt.Errorf("monitoring %s interval: %w", kind, err)
			}
		}
	}

	pipeline.NotifyTimeout = positiveSeconds(v, "alerts.notify_timeout_seconds", pipeline.NotifyTimeout)

	auditCfg.Enabled = v.GetBool("audit.enabled")
	auditCfg.LogConflicts = v.GetBool("audit.log_conflicts")
	if n := v.GetInt("audit.retention_days"); n >= 0 {
		auditCfg.RetentionDays = n
	}
	auditCache.Enabled = v.GetBool("audit.cache_enabled")
	auditCache.TTL = positiveSeconds(v, "audit.cache_ttl_seconds", auditCache.TTL)
	if n := v.GetInt("audit.cache_max_size"); n > 0 {
		auditCache.MaxSize = n
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.AuditSource {
	case AuditSourceLocal:
	case AuditSourceUpstream:
		if c.Upstream.BaseURL == "" {
			return fmt.Errorf("audit source %q requires upstream.url", c.AuditSource)
		}
	default:
		return fmt.Errorf("unknown audit source %q (expected local or upstream)", c.AuditSource)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q (expected text or json)", c.Log.Format)
	}
	if c.Session.StallTimeout > 0 && c.Upstream.RunHeartbeat >= c.Session.StallTimeout {
		return fmt.Errorf("upstream.run_heartbeat_seconds (%s) must be shorter than test.stall_timeout_seconds (%s)",
			c.Upstream.RunHeartbeat, c.Session.StallTimeout)
	}
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr is required")
	}
	return nil
}

// intervalKey returns e.g. monitoring.operator_stats_interval_seconds.
func intervalKey(kind monitoring.Kind) string {
	var b strings.Builder
	for i, r := range string(kind) {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return "monitoring." + b.String() + "_interval_seconds"
}

func seconds(d time.Duration) int {
	return int(d / time.Second)
}

// positiveSeconds reads key as whole seconds, keeping fallback for
// non-positive, unparsable or out of range values.
func positiveSeconds(v *viper.Viper, key string, fallback time.Duration) time.Duration {
	if n := v.GetInt64(key); n > 0 && n <= math.MaxInt64/int64(time.Second) {
		return time.Duration(n) * time.Second
	}
	return fallback
}
