package pgstore

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/gorm/schema"

	"github.com/dwarvesf/zenz-bridge/internal/types/environments"
	"github.com/dwarvesf/zenz-bridge/internal/utils/config"
	"github.com/dwarvesf/zenz-bridge/internal/utils/logger"
)

func New(appConfig *config.AppConfig, logger *logger.Logger) *gorm.DB {
	db, err := connectPostgres(appConfig)
	if err != nil {
		logger.Fatal("[pgstore.New] failed to connect to postgres", map[string]string{
			"error": err.Error(),
		})
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("[pgstore.New] failed to get sql.DB", map[string]string{
			"error": err.Error(),
		})
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	logger.Info("database connected", map[string]string{
		"host": appConfig.Postgres.Host,
		"name": appConfig.Postgres.Name,
	})
	return db
}

func connectPostgres(appConfig *config.AppConfig) (*gorm.DB, error) {
	ds := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		appConfig.Postgres.Host,
		appConfig.Postgres.User,
		appConfig.Postgres.Pass,
		appConfig.Postgres.Name,
		appConfig.Postgres.Port,
		appConfig.Postgres.SSLMode,
	)

	logLevel := gormlogger.Warn
	if appConfig.Environment == environments.Development {
		logLevel = gormlogger.Info
	}

	return gorm.Open(postgres.Open(ds),
		&gorm.Config{
			NamingStrategy: schema.NamingStrategy{
				SingularTable: false,
			},
			Logger: gormlogger.Default.LogMode(logLevel),
		})
}
