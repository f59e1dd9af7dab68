package util

import (
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitDatabase opens the configured database. An empty DSN with the sqlite
// driver yields a private in-memory database.
func InitDatabase(driver, dsn string, debug bool) (*gorm.DB, error) {
	cfg := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
	if debug {
		cfg.Logger = logger.Default.LogMode(logger.Info)
	}
	db, err := createDatabaseInstance(cfg, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driverName(driver), err)
	}
	return db, nil
}

func createDatabaseInstance(cfg *gorm.Config, driver, dsn string) (*gorm.DB, error) {
	switch driver {
	case "mysql":
		return gorm.Open(mysql.Open(dsn), cfg)
	case "pg", "postgres":
		return gorm.Open(postgres.Open(dsn), cfg)
	}
	memory := dsn == "" || strings.Contains(dsn, ":memory:")
	if dsn == "" {
		dsn = "file::memory:"
	}
	db, err := gorm.Open(sqlite.Open(dsn), cfg)
	if err != nil || !memory {
		return db, err
	}
	// Every pooled connection would open its own empty in-memory database.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

func driverName(driver string) string {
	if driver == "" {
		return "sqlite"
	}
	return driver
}
