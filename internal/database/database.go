package database

import (
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"tradewatch/internal/execlog"
	"tradewatch/internal/news"
)

// NewDatabase opens the sqlite database at path and migrates the schema.
func NewDatabase(path string) (*gorm.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	err = db.AutoMigrate(
		&execlog.Record{},
		&news.Item{},
	)
	if err != nil {
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	return db, nil
}
