package repository

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"dealsync-backend/internal/comms/domain"
)

type cursorRepository struct {
	db *gorm.DB
}

// NewCursorRepository creates a new instance of cursorRepository
func NewCursorRepository(db *gorm.DB) CursorRepository {
	return &cursorRepository{db: db}
}

func (r *cursorRepository) Get(userID, provider string) (*domain.ProviderSyncCursor, error) {
	var cursor domain.ProviderSyncCursor
	err := r.db.Where("user_id = ? AND provider = ?", userID, provider).First(&cursor).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &cursor, nil
}

// SaveSuccess records a fully successful sync and clears any partial marker.
func (r *cursorRepository) SaveSuccess(userID, provider string, at time.Time) error {
	return r.upsert(userID, provider, func(cursor *domain.ProviderSyncCursor) {
		cursor.LastSyncedAt = at
		cursor.PartialCount = 0
	})
}

// SavePartial records the partial-sync marker after a terminal network
// failure: the count of messages durably stored before the failure. The
// last-synced timestamp is left untouched so the next run re-covers the
// window; storage dedup makes the overlap idempotent.
func (r *cursorRepository) SavePartial(userID, provider string, storedSoFar int) error {
	return r.upsert(userID, provider, func(cursor *domain.ProviderSyncCursor) {
		cursor.PartialCount = storedSoFar
	})
}

func (r *cursorRepository) upsert(userID, provider string, mutate func(*domain.ProviderSyncCursor)) error {
	var cursor domain.ProviderSyncCursor
	err := r.db.Where("user_id = ? AND provider = ?", userID, provider).First(&cursor).Error

	now := time.Now()
	if errors.Is(err, gorm.ErrRecordNotFound) {
		cursor = domain.ProviderSyncCursor{
			ID:        uuid.New().String(),
			UserID:    userID,
			Provider:  provider,
			CreatedAt: now,
		}
		mutate(&cursor)
		cursor.UpdatedAt = now
		return r.db.Create(&cursor).Error
	} else if err != nil {
		return err
	}

	mutate(&cursor)
	cursor.UpdatedAt = now
	return r.db.Save(&cursor).Error
}
