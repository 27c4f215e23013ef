package repository

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"dealsync-backend/internal/comms/domain"
)

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository creates a new instance of messageRepository
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) GetByID(id string) (*domain.StoredMessage, error) {
	var msg domain.StoredMessage
	err := r.db.Where("id = ?", id).First(&msg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &msg, nil
}

func (r *messageRepository) GetByExternalID(userID, provider, externalID string) (*domain.StoredMessage, error) {
	var msg domain.StoredMessage
	err := r.db.Where("user_id = ? AND provider = ? AND external_id = ?", userID, provider, externalID).First(&msg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &msg, nil
}

func (r *messageRepository) Create(msg *domain.StoredMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	now := time.Now()
	msg.CreatedAt = now
	msg.UpdatedAt = now
	return r.db.Create(msg).Error
}

func (r *messageRepository) ListByUser(userID string) ([]*domain.StoredMessage, error) {
	var messages []*domain.StoredMessage
	err := r.db.Where("user_id = ?", userID).Order("sent_at desc").Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *messageRepository) ListByThread(userID, threadID string) ([]*domain.StoredMessage, error) {
	var messages []*domain.StoredMessage
	err := r.db.Where("user_id = ? AND thread_id = ?", userID, threadID).Order("sent_at asc").Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *messageRepository) ListMissingAttachments(userID string) ([]*domain.StoredMessage, error) {
	sub := r.db.Model(&domain.AttachmentRecord{}).Select("message_id").Where("user_id = ?", userID)

	var messages []*domain.StoredMessage
	err := r.db.Where("user_id = ? AND has_attachments = ? AND id NOT IN (?)", userID, true, sub).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *messageRepository) CountByUser(userID string) (int64, error) {
	var count int64
	err := r.db.Model(&domain.StoredMessage{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}
