package execlog

import (
	"time"

	"gorm.io/gorm"
)

// Record is one execution attempt as it went to the broker.
type Record struct {
	gorm.Model  `json:"-"`
	ExecutionID string    `gorm:"uniqueIndex" json:"execution_id"`
	OrderID     string    `gorm:"index" json:"order_id"`
	BrokerRef   string    `json:"broker_ref"`
	StockCode   string    `gorm:"index" json:"stock_code"`
	Side        string    `json:"side"`
	Status      string    `gorm:"index" json:"status"`
	Detail      string    `json:"detail"`
	Quantity    int       `json:"quantity"`
	Price       float64   `json:"price"`
	ExecutedAt  time.Time `json:"executed_at"`
}
