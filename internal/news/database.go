package news

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// UpsertItems inserts new items and leaves already-stored links alone.
// It returns how many rows were actually added.
func (d *Database) UpsertItems(items []Item) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}
	result := d.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "link"}},
		DoNothing: true,
	}).Create(&items)
	if result.Error != nil {
		return 0, result.Error
	}
	return int(result.RowsAffected), nil
}

// ListItems returns stored items, newest first, optionally filtered by
// source.
func (d *Database) ListItems(source string, limit int) ([]Item, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := d.db.Order("published_at DESC").Limit(limit)
	if source != "" {
		query = query.Where("source = ?", source)
	}

	var items []Item
	if err := query.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
