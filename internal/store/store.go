// Package store holds the keyed, expiring state shared by the checkout flow.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/example/walletshop/internal/models"
)

// ErrNotFound is returned when a keyed record does not exist.
var ErrNotFound = errors.New("not found")

// SearchCacheStore keeps the last search result set per user.
type SearchCacheStore interface {
	GetSearch(ctx context.Context, userID int64) (*models.SearchCacheEntry, error)
	PutSearch(ctx context.Context, entry *models.SearchCacheEntry) error
	DeleteSearch(ctx context.Context, userID int64) error
	// ExpireSearches removes every entry created before cutoff and returns how many were removed.
	ExpireSearches(ctx context.Context, cutoff time.Time) (int, error)
}

// SessionStore keeps at most one checkout session per user.
type SessionStore interface {
	GetSession(ctx context.Context, userID int64) (*models.CheckoutSession, error)
	PutSession(ctx context.Context, session *models.CheckoutSession) error
	DeleteSession(ctx context.Context, userID int64) error
	// DeleteSessionIfGeneration removes the session only when it still carries generation.
	// It reports whether a session was removed.
	DeleteSessionIfGeneration(ctx context.Context, userID int64, generation string) (bool, error)
}

// WalletUserStore keeps wallet links keyed by chat user.
type WalletUserStore interface {
	GetWalletUser(ctx context.Context, userID int64) (*models.WalletUser, error)
	PutWalletUser(ctx context.Context, user *models.WalletUser) error
	DeleteWalletUser(ctx context.Context, userID int64) error
}

// OrderStore keeps the local order history.
type OrderStore interface {
	SaveOrder(ctx context.Context, record *models.OrderRecord) error
	GetOrder(ctx context.Context, orderID string) (*models.OrderRecord, error)
	ListOrders(ctx context.Context, userID int64, limit, offset int) ([]models.OrderRecord, int64, error)
	UpdateOrderStatus(ctx context.Context, orderID, status string) error
}

// Store combines every store the service needs.
type Store interface {
	SearchCacheStore
	SessionStore
	WalletUserStore
	OrderStore
}

// New returns the store for the configured backend.
func New(backend string, db *gorm.DB) (Store, error) {
	switch backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "postgres":
		if db == nil {
			return nil, errors.New("postgres store requires a database connection")
		}
		return NewPostgresStore(db), nil
	default:
		return nil, fmt.Errorf("unknown store backend: %s", backend)
	}
}
