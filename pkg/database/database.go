// Package database opens the console database and runs schema migrations
// under a cross-replica lock.
package database

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config selects the database.
type Config struct {
	Driver string // postgres or sqlite. Default sqlite.
	DSN    string // Connection string or sqlite file path. Default in-memory sqlite.
}

// DefaultConfig returns an in-memory sqlite database.
func DefaultConfig() *Config {
	return &Config{
		Driver: DriverSQLite,
		DSN:    "file:sazpd?mode=memory&cache=shared",
	}
}

// ConfigFromEnv loads config from environment variables.
// SAZPD_DATABASE_DRIVER, SAZPD_DATABASE_DSN
func ConfigFromEnv() *Config {
	cfg := DefaultConfig()
	if v := os.Getenv("SAZPD_DATABASE_DRIVER"); v != "" {
		cfg.Driver = strings.ToLower(v)
	}
	if v := os.Getenv("SAZPD_DATABASE_DSN"); v != "" {
		cfg.DSN = v
	}
	return cfg
}

// Open connects to the configured database.
func Open(cfg *Config) (*gorm.DB, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case DriverPostgres:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("database DSN is required for %s", cfg.Driver)
		}
		dialector = postgres.Open(cfg.DSN)
	case DriverSQLite, "":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown database driver %q (expected postgres or sqlite)", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// Migrate runs AutoMigrate for models while holding the migration lock.
func Migrate(ctx context.Context, db *gorm.DB, models ...any) error {
	return NewMigrationLocker(db).WithLock(ctx, func() error {
		if err := db.WithContext(ctx).AutoMigrate(models...); err != nil {
			return fmt.Errorf("auto-migrate: %w", err)
		}
		return nil
	})
}

// Ping checks connectivity.
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
