package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/walletshop/internal/models"
)

func TestMemoryStoreSearchExpiry(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now()

	require.NoError(t, s.PutSearch(ctx, &models.SearchCacheEntry{UserID: 1, Query: "old", CreatedAt: now.Add(-3 * time.Hour)}))
	require.NoError(t, s.PutSearch(ctx, &models.SearchCacheEntry{UserID: 2, Query: "new", CreatedAt: now}))

	removed, err := s.ExpireSearches(ctx, now.Add(-2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = s.GetSearch(ctx, 1)
	assert.ErrorIs(t, err, ErrNotFound)

	entry, err := s.GetSearch(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "new", entry.Query)
}

func TestMemoryStoreSearchIsCopied(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	products := []models.Product{{Title: "a"}}

	require.NoError(t, s.PutSearch(ctx, &models.SearchCacheEntry{UserID: 1, Products: products}))
	products[0].Title = "mutated"

	entry, err := s.GetSearch(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "a", entry.Products[0].Title)
}

func TestMemoryStoreDeleteSessionIfGeneration(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.PutSession(ctx, &models.CheckoutSession{UserID: 7, Generation: "g2"}))

	removed, err := s.DeleteSessionIfGeneration(ctx, 7, "g1")
	require.NoError(t, err)
	assert.False(t, removed)

	_, err = s.GetSession(ctx, 7)
	require.NoError(t, err)

	removed, err = s.DeleteSessionIfGeneration(ctx, 7, "g2")
	require.NoError(t, err)
	assert.True(t, removed)

	_, err = s.GetSession(ctx, 7)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreOrders(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Now()

	for i, id := range []string{"o1", "o2", "o3"} {
		require.NoError(t, s.SaveOrder(ctx, &models.OrderRecord{
			BaseModel: models.BaseModel{CreatedAt: base.Add(time.Duration(i) * time.Minute)},
			OrderID:   id,
			UserID:    5,
			Status:    "pending",
		}))
	}
	require.NoError(t, s.SaveOrder(ctx, &models.OrderRecord{OrderID: "other", UserID: 6}))

	records, total, err := s.ListOrders(ctx, 5, 2, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, records, 2)
	assert.Equal(t, "o3", records[0].OrderID)
	assert.Equal(t, "o2", records[1].OrderID)

	records, _, err = s.ListOrders(ctx, 5, 2, 4)
	require.NoError(t, err)
	assert.Empty(t, records)

	records, total, err = s.ListOrders(ctx, 5, 2, -9223372036854775616)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Empty(t, records)

	require.NoError(t, s.UpdateOrderStatus(ctx, "o1", "completed"))
	record, err := s.GetOrder(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, "completed", record.Status)

	assert.ErrorIs(t, s.UpdateOrderStatus(ctx, "missing", "failed"), ErrNotFound)
}

func TestMemoryStoreWalletUsers(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.PutWalletUser(ctx, &models.WalletUser{UserID: 3, WalletStatus: models.WalletStatusPending}))
	user, err := s.GetWalletUser(ctx, 3)
	require.NoError(t, err)
	assert.False(t, user.CreatedAt.IsZero())

	require.NoError(t, s.DeleteWalletUser(ctx, 3))
	_, err = s.GetWalletUser(ctx, 3)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNewBackend(t *testing.T) {
	s, err := New("memory", nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	_, err = New("postgres", nil)
	assert.Error(t, err)

	_, err = New("redis", nil)
	assert.Error(t, err)
}
