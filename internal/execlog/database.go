package execlog

import (
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) CreateRecord(record *Record) error {
	return d.db.Create(record).Error
}

// ListRecords returns the most recent executions, newest first,
// optionally filtered by stock code.
func (d *Database) ListRecords(stockCode string, limit int) ([]Record, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := d.db.Order("executed_at DESC").Limit(limit)
	if stockCode != "" {
		query = query.Where("stock_code = ?", stockCode)
	}

	var records []Record
	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}
