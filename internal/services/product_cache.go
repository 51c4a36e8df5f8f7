package services

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/example/walletshop/internal/models"
	"github.com/example/walletshop/internal/store"
)

// SearchTTL is how long a search result set stays selectable.
const SearchTTL = 2 * time.Hour

// ProductCache keeps the last search result set per user so that a later
// "buy #i" action can be resolved without searching again.
type ProductCache struct {
	store store.SearchCacheStore
	ttl   time.Duration
	now   func() time.Time
}

// NewProductCache creates a ProductCache on top of s.
func NewProductCache(s store.SearchCacheStore) *ProductCache {
	return &ProductCache{store: s, ttl: SearchTTL, now: time.Now}
}

// Store replaces the entry for userID and evicts every expired entry.
func (c *ProductCache) Store(ctx context.Context, userID int64, products []models.Product, query string) error {
	now := c.now()
	entry := &models.SearchCacheEntry{
		UserID:    userID,
		Query:     query,
		Products:  append([]models.Product(nil), products...),
		CreatedAt: now,
	}
	if err := c.store.PutSearch(ctx, entry); err != nil {
		return err
	}

	if removed, err := c.store.ExpireSearches(ctx, now.Add(-c.ttl)); err != nil {
		log.Printf("[ProductCache] eviction failed: %v", err)
	} else if removed > 0 {
		log.Printf("[ProductCache] evicted %d expired entries", removed)
	}
	return nil
}

// Get returns the live entry for userID. Expired entries are removed on read.
func (c *ProductCache) Get(ctx context.Context, userID int64) (*models.SearchCacheEntry, bool) {
	entry, err := c.store.GetSearch(ctx, userID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Printf("[ProductCache] read for user %d failed: %v", userID, err)
		}
		return nil, false
	}

	if c.now().Sub(entry.CreatedAt) > c.ttl {
		if err := c.store.DeleteSearch(ctx, userID); err != nil {
			log.Printf("[ProductCache] delete expired entry for user %d failed: %v", userID, err)
		}
		return nil, false
	}
	return entry, true
}

// GetByIndex returns the product at index of the user's last search.
func (c *ProductCache) GetByIndex(ctx context.Context, userID int64, index int) (models.Product, bool) {
	entry, ok := c.Get(ctx, userID)
	if !ok || index < 0 || index >= len(entry.Products) {
		return models.Product{}, false
	}
	return entry.Products[index], true
}

// Clear drops the user's search results.
func (c *ProductCache) Clear(ctx context.Context, userID int64) error {
	return c.store.DeleteSearch(ctx, userID)
}
