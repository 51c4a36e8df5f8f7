package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/walletshop/internal/models"
)

// MemoryStore is the process-local Store. Values are copied in and out so
// callers never share memory with the maps.
type MemoryStore struct {
	mu       sync.RWMutex
	searches map[int64]models.SearchCacheEntry
	sessions map[int64]models.CheckoutSession
	users    map[int64]models.WalletUser
	orders   map[string]models.OrderRecord
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		searches: make(map[int64]models.SearchCacheEntry),
		sessions: make(map[int64]models.CheckoutSession),
		users:    make(map[int64]models.WalletUser),
		orders:   make(map[string]models.OrderRecord),
	}
}

func (s *MemoryStore) GetSearch(ctx context.Context, userID int64) (*models.SearchCacheEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.searches[userID]
	if !ok {
		return nil, ErrNotFound
	}
	entry.Products = append([]models.Product(nil), entry.Products...)
	return &entry, nil
}

func (s *MemoryStore) PutSearch(ctx context.Context, entry *models.SearchCacheEntry) error {
	copied := *entry
	copied.Products = append([]models.Product(nil), entry.Products...)

	s.mu.Lock()
	s.searches[entry.UserID] = copied
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) DeleteSearch(ctx context.Context, userID int64) error {
	s.mu.Lock()
	delete(s.searches, userID)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) ExpireSearches(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for userID, entry := range s.searches {
		if entry.CreatedAt.Before(cutoff) {
			delete(s.searches, userID)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) GetSession(ctx context.Context, userID int64) (*models.CheckoutSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return copySession(session), nil
}

func (s *MemoryStore) PutSession(ctx context.Context, session *models.CheckoutSession) error {
	copied := copySession(*session)

	s.mu.Lock()
	s.sessions[session.UserID] = *copied
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) DeleteSession(ctx context.Context, userID int64) error {
	s.mu.Lock()
	delete(s.sessions, userID)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) DeleteSessionIfGeneration(ctx context.Context, userID int64, generation string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[userID]
	if !ok || session.Generation != generation {
		return false, nil
	}
	delete(s.sessions, userID)
	return true, nil
}

func (s *MemoryStore) GetWalletUser(ctx context.Context, userID int64) (*models.WalletUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &user, nil
}

func (s *MemoryStore) PutWalletUser(ctx context.Context, user *models.WalletUser) error {
	now := time.Now()
	copied := *user
	if copied.CreatedAt.IsZero() {
		copied.CreatedAt = now
	}
	copied.UpdatedAt = now

	s.mu.Lock()
	s.users[user.UserID] = copied
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) DeleteWalletUser(ctx context.Context, userID int64) error {
	s.mu.Lock()
	delete(s.users, userID)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) SaveOrder(ctx context.Context, record *models.OrderRecord) error {
	now := time.Now()
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	s.mu.Lock()
	s.orders[record.OrderID] = *record
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) GetOrder(ctx context.Context, orderID string) (*models.OrderRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.orders[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	return &record, nil
}

func (s *MemoryStore) ListOrders(ctx context.Context, userID int64, limit, offset int) ([]models.OrderRecord, int64, error) {
	s.mu.RLock()
	records := make([]models.OrderRecord, 0)
	for _, record := range s.orders {
		if record.UserID == userID {
			records = append(records, record)
		}
	}
	s.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})

	total := int64(len(records))
	if offset < 0 || offset >= len(records) {
		return []models.OrderRecord{}, total, nil
	}
	end := len(records)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return records[offset:end], total, nil
}

func (s *MemoryStore) UpdateOrderStatus(ctx context.Context, orderID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	record.Status = status
	record.UpdatedAt = time.Now()
	s.orders[orderID] = record
	return nil
}

func copySession(session models.CheckoutSession) *models.CheckoutSession {
	if session.ShippingAddress != nil {
		address := *session.ShippingAddress
		session.ShippingAddress = &address
	}
	return &session
}
