package repository

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"dealsync-backend/internal/comms/domain"
)

type attachmentRepository struct {
	db *gorm.DB
}

// NewAttachmentRepository creates a new instance of attachmentRepository
func NewAttachmentRepository(db *gorm.DB) AttachmentRepository {
	return &attachmentRepository{db: db}
}

func (r *attachmentRepository) Create(record *domain.AttachmentRecord) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	return r.db.Create(record).Error
}

func (r *attachmentRepository) CountByMessage(messageID string) (int64, error) {
	var count int64
	err := r.db.Model(&domain.AttachmentRecord{}).Where("message_id = ?", messageID).Count(&count).Error
	return count, err
}

func (r *attachmentRepository) ListByMessage(messageID string) ([]*domain.AttachmentRecord, error) {
	var records []*domain.AttachmentRecord
	err := r.db.Where("message_id = ?", messageID).Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}
