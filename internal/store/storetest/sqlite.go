// Package storetest opens throwaway ledger databases for tests.
package storetest

import (
	"fmt"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/dwarvesf/zenz-bridge/internal/store"
)

// Open returns a migrated in-memory database and its close func. The pool is
// pinned to one connection so concurrent transactions queue behind each
// other, standing in for postgres row locks.
func Open() (*gorm.DB, func() error, error) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, fmt.Errorf("sql db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(store.Models()...); err != nil {
		_ = sqlDB.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	return db, sqlDB.Close, nil
}

func NewSQLite(t testing.TB) *gorm.DB {
	t.Helper()

	db, closeDB, err := Open()
	if err != nil {
		t.Fatalf("%v", err)
	}
	t.Cleanup(func() { _ = closeDB() })
	return db
}
