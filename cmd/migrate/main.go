package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"gorm.io/gorm"

	pgstore "github.com/dwarvesf/zenz-bridge/internal/store/postgres"
	"github.com/dwarvesf/zenz-bridge/internal/utils/config"
	"github.com/dwarvesf/zenz-bridge/internal/utils/logger"
)

// runMigrations applies (direction "up") or rolls back one step of
// (direction "down") the ledger schema.
func runMigrations(db *gorm.DB, direction string, logger *logger.Logger) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %w", err)
	}

	dir := os.Getenv("MIGRATIONS_PATH")
	if dir == "" {
		dir = filepath.Join("migrations", "schema")
	}
	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create postgres driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+dir, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	switch direction {
	case "up":
		err = m.Up()
	case "down":
		err = m.Steps(-1)
	default:
		return fmt.Errorf("unknown direction %q, want up or down", direction)
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration %s failed: %w", direction, err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("read schema version: %w", err)
	}
	logger.Info("Migrations completed successfully", map[string]string{
		"direction": direction,
		"version":   fmt.Sprint(version),
		"dirty":     fmt.Sprint(dirty),
	})
	return nil
}

func main() {
	appConfig := config.New()
	logger := logger.New(appConfig.Environment)

	direction := "up"
	if len(os.Args) > 1 {
		direction = os.Args[1]
	}

	db := pgstore.New(appConfig, logger)

	if err := runMigrations(db, direction, logger); err != nil {
		logger.Error("[main][runMigrations] failed to run migrations", map[string]string{
			"error": err.Error(),
		})
		os.Exit(1)
	}
}
