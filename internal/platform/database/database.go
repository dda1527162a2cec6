// Package database opens the relational store recordings are kept in.
package database

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Dialector picks the gorm driver for a DATABASE_URL:
//
//	postgres://... or postgresql://...  PostgreSQL
//	sqlite://path, sqlite::memory:, file:...  SQLite
//
// Anything else is treated as a SQLite file path.
func Dialector(url string) (gorm.Dialector, string) {
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return postgres.Open(url), "postgres"
	case url == "sqlite::memory:":
		return sqlite.Open(":memory:"), "sqlite"
	case strings.HasPrefix(url, "sqlite://"):
		return sqlite.Open(strings.TrimPrefix(url, "sqlite://")), "sqlite"
	default:
		return sqlite.Open(url), "sqlite"
	}
}

// Open connects to url and configures the connection pool.
func Open(url string, log *slog.Logger) (*gorm.DB, error) {
	if url == "" {
		return nil, fmt.Errorf("database url is empty")
	}
	dialector, driver := Dialector(url)

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database handle: %w", err)
	}
	if driver == "sqlite" {
		// SQLite serialises writers; one connection also keeps :memory: databases shared.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	if log != nil {
		log.Info("database connected", slog.String("driver", driver))
	}
	return db, nil
}

// Ping checks the database is reachable.
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
