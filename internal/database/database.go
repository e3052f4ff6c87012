package database

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Open connects to databaseURL and applies any pending migrations. Postgres
// URLs use the postgres driver, anything else is treated as a sqlite path.
func Open(databaseURL string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		log.Println("Connecting to postgres database...")
		dialector = postgres.Open(databaseURL)
	} else {
		if dir := filepath.Dir(databaseURL); !strings.HasPrefix(databaseURL, "file:") && dir != "." {
			if err := os.MkdirAll(dir, os.ModePerm); err != nil {
				return nil, fmt.Errorf("unable to create database directory: %w", err)
			}
		}
		log.Printf("Opening sqlite database %s", databaseURL)
		dialector = sqlite.Open(databaseURL)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	if db.Dialector.Name() == "sqlite" {
		// SQLite only supports one writer at a time, and foreign keys are a
		// per connection setting, so keep a single connection.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("unable to get sqlite connection: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)

		if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
			return nil, fmt.Errorf("unable to enable sqlite foreign keys: %w", err)
		}
	}

	if err := GetMigrator(db).Migrate(); err != nil {
		return nil, fmt.Errorf("unable to migrate database: %w", err)
	}

	log.Println("Database connection established.")
	return db, nil
}
