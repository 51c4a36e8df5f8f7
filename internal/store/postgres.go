package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/walletshop/internal/models"
)

// PostgresStore implements Store on top of GORM so several instances can
// share checkout state and survive restarts.
type PostgresStore struct {
	db *gorm.DB
}

// NewPostgresStore wraps an initialized gorm.DB.
func NewPostgresStore(db *gorm.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) GetSearch(ctx context.Context, userID int64) (*models.SearchCacheEntry, error) {
	var entry models.SearchCacheEntry
	if err := s.db.WithContext(ctx).First(&entry, "user_id = ?", userID).Error; err != nil {
		return nil, notFound(err)
	}
	return &entry, nil
}

func (s *PostgresStore) PutSearch(ctx context.Context, entry *models.SearchCacheEntry) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(entry).Error
}

func (s *PostgresStore) DeleteSearch(ctx context.Context, userID int64) error {
	return s.db.WithContext(ctx).Delete(&models.SearchCacheEntry{}, "user_id = ?", userID).Error
}

func (s *PostgresStore) ExpireSearches(ctx context.Context, cutoff time.Time) (int, error) {
	res := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.SearchCacheEntry{})
	return int(res.RowsAffected), res.Error
}

func (s *PostgresStore) GetSession(ctx context.Context, userID int64) (*models.CheckoutSession, error) {
	var session models.CheckoutSession
	if err := s.db.WithContext(ctx).First(&session, "user_id = ?", userID).Error; err != nil {
		return nil, notFound(err)
	}
	return &session, nil
}

func (s *PostgresStore) PutSession(ctx context.Context, session *models.CheckoutSession) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(session).Error
}

func (s *PostgresStore) DeleteSession(ctx context.Context, userID int64) error {
	return s.db.WithContext(ctx).Delete(&models.CheckoutSession{}, "user_id = ?", userID).Error
}

func (s *PostgresStore) DeleteSessionIfGeneration(ctx context.Context, userID int64, generation string) (bool, error) {
	res := s.db.WithContext(ctx).
		Where("user_id = ? AND generation = ?", userID, generation).
		Delete(&models.CheckoutSession{})
	return res.RowsAffected > 0, res.Error
}

func (s *PostgresStore) GetWalletUser(ctx context.Context, userID int64) (*models.WalletUser, error) {
	var user models.WalletUser
	if err := s.db.WithContext(ctx).First(&user, "user_id = ?", userID).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (s *PostgresStore) PutWalletUser(ctx context.Context, user *models.WalletUser) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(user).Error
}

func (s *PostgresStore) DeleteWalletUser(ctx context.Context, userID int64) error {
	return s.db.WithContext(ctx).Delete(&models.WalletUser{}, "user_id = ?", userID).Error
}

func (s *PostgresStore) SaveOrder(ctx context.Context, record *models.OrderRecord) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "outcome", "signing", "transaction_id", "updated_at"}),
		}).
		Create(record).Error
}

func (s *PostgresStore) GetOrder(ctx context.Context, orderID string) (*models.OrderRecord, error) {
	var record models.OrderRecord
	if err := s.db.WithContext(ctx).First(&record, "order_id = ?", orderID).Error; err != nil {
		return nil, notFound(err)
	}
	return &record, nil
}

func (s *PostgresStore) ListOrders(ctx context.Context, userID int64, limit, offset int) ([]models.OrderRecord, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.OrderRecord{}).Where("user_id = ?", userID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var records []models.OrderRecord
	if err := query.Order("created_at desc").
		Limit(limit).Offset(offset).
		Find(&records).Error; err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

func (s *PostgresStore) UpdateOrderStatus(ctx context.Context, orderID, status string) error {
	res := s.db.WithContext(ctx).
		Model(&models.OrderRecord{}).
		Where("order_id = ?", orderID).
		Updates(map[string]any{"status": status, "updated_at": time.Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
