package models

import "time"

// Product is a snapshot of a search result taken at search time.
type Product struct {
	Title       string `json:"title"`
	Price       string `json:"price"`
	ExternalURL string `json:"external_url"`
	ImageURL    string `json:"image_url,omitempty"`
	Description string `json:"description,omitempty"`
}

// SearchCacheEntry holds the last search result set for a user.
type SearchCacheEntry struct {
	UserID    int64     `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	Query     string    `json:"query"`
	Products  []Product `gorm:"serializer:json;type:jsonb" json:"products"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// TableName implements the GORM tabler interface.
func (SearchCacheEntry) TableName() string { return "search_cache_entries" }
