package database

import (
	"fmt"
	"strings"
	"time"

	"github.com/lostfound/backend/internal/models"
	"github.com/lostfound/backend/pkg/logger"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const sqliteScheme = "sqlite://"

// searchIndexSQL backs the full-text search used by the listing queries on Postgres.
const searchIndexSQL = `CREATE INDEX IF NOT EXISTS idx_items_search ON items
USING GIN (to_tsvector('english', title || ' ' || description || ' ' || location))`

// Open connects to Postgres, or to SQLite when the URL starts with sqlite://.
func Open(databaseURL string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	if strings.HasPrefix(databaseURL, sqliteScheme) {
		dialector = sqlite.Open(strings.TrimPrefix(databaseURL, sqliteScheme))
	} else {
		dialector = postgres.Open(databaseURL)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	logger.Log.Info("Database connected", zap.String("dialect", db.Dialector.Name()))
	return db, nil
}

// Migrate creates or updates the schema.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.User{}, &models.Item{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	if db.Dialector.Name() == "postgres" {
		if err := db.Exec(searchIndexSQL).Error; err != nil {
			return fmt.Errorf("create search index: %w", err)
		}
	}

	logger.Log.Info("Database migration completed")
	return nil
}

// Close releases the connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
