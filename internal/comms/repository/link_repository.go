package repository

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"dealsync-backend/internal/comms/domain"
)

type linkRepository struct {
	db *gorm.DB
}

// NewLinkRepository creates a new instance of linkRepository
func NewLinkRepository(db *gorm.DB) LinkRepository {
	return &linkRepository{db: db}
}

func (r *linkRepository) ExistsByMessage(transactionID, messageID string) (bool, error) {
	var count int64
	err := r.db.Model(&domain.LinkRecord{}).
		Where("transaction_id = ? AND message_id = ?", transactionID, messageID).
		Count(&count).Error
	return count > 0, err
}

func (r *linkRepository) ExistsByThread(transactionID, threadID string) (bool, error) {
	var count int64
	err := r.db.Model(&domain.LinkRecord{}).
		Where("transaction_id = ? AND thread_id = ?", transactionID, threadID).
		Count(&count).Error
	return count > 0, err
}

// Create inserts a link unless an identical (transaction, message) or
// (transaction, thread) pair already exists, preserving the no-duplicates
// invariant.
func (r *linkRepository) Create(link *domain.LinkRecord) error {
	if link.MessageID != "" {
		exists, err := r.ExistsByMessage(link.TransactionID, link.MessageID)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
	} else if link.ThreadID != "" {
		exists, err := r.ExistsByThread(link.TransactionID, link.ThreadID)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
	}

	if link.ID == "" {
		link.ID = uuid.New().String()
	}
	if link.LinkedAt.IsZero() {
		link.LinkedAt = time.Now()
	}
	return r.db.Create(link).Error
}

func (r *linkRepository) DeleteByMessage(transactionID, messageID string) error {
	return r.db.Where("transaction_id = ? AND message_id = ?", transactionID, messageID).
		Delete(&domain.LinkRecord{}).Error
}

func (r *linkRepository) DeleteByThread(transactionID, threadID string) error {
	return r.db.Where("transaction_id = ? AND thread_id = ?", transactionID, threadID).
		Delete(&domain.LinkRecord{}).Error
}

func (r *linkRepository) ListByTransaction(transactionID string) ([]*domain.LinkRecord, error) {
	var links []*domain.LinkRecord
	err := r.db.Where("transaction_id = ?", transactionID).Find(&links).Error
	if err != nil {
		return nil, err
	}
	return links, nil
}

func (r *linkRepository) IsIgnored(transactionID, sender, subject string, sentAt time.Time) (bool, error) {
	var count int64
	err := r.db.Model(&domain.IgnoredLink{}).
		Where("transaction_id = ? AND sender = ? AND subject = ? AND sent_at = ?", transactionID, sender, subject, sentAt).
		Count(&count).Error
	return count > 0, err
}

func (r *linkRepository) CreateIgnored(ignored *domain.IgnoredLink) error {
	if ignored.ID == "" {
		ignored.ID = uuid.New().String()
	}
	if ignored.CreatedAt.IsZero() {
		ignored.CreatedAt = time.Now()
	}
	return r.db.Create(ignored).Error
}
