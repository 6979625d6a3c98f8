package news

import (
	"time"

	"gorm.io/gorm"
)

// Item is one stored news entry. Links are unique so repeated refreshes
// never duplicate an article.
type Item struct {
	gorm.Model  `json:"-"`
	Source      string    `gorm:"index" json:"source"`
	Title       string    `json:"title"`
	Link        string    `gorm:"uniqueIndex" json:"link"`
	Description string    `json:"description"`
	PublishedAt time.Time `gorm:"index" json:"published_at"`
}
