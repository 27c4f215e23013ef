package repository

import (
	"time"

	"dealsync-backend/internal/comms/domain"
)

// MessageRepository defines the interface for stored-message persistence.
// GetByExternalID returns (nil, nil) when no row exists; Create never
// overwrites an existing (user, provider, external_id) row.
type MessageRepository interface {
	GetByID(id string) (*domain.StoredMessage, error)
	GetByExternalID(userID, provider, externalID string) (*domain.StoredMessage, error)
	Create(msg *domain.StoredMessage) error
	ListByUser(userID string) ([]*domain.StoredMessage, error)
	ListByThread(userID, threadID string) ([]*domain.StoredMessage, error)
	// ListMissingAttachments finds messages flagged has_attachments with no
	// AttachmentRecord, the backfill eligibility condition.
	ListMissingAttachments(userID string) ([]*domain.StoredMessage, error)
	CountByUser(userID string) (int64, error)
}

// LinkRepository defines the interface for link and ignored-link persistence.
type LinkRepository interface {
	ExistsByMessage(transactionID, messageID string) (bool, error)
	ExistsByThread(transactionID, threadID string) (bool, error)
	Create(link *domain.LinkRecord) error
	DeleteByMessage(transactionID, messageID string) error
	DeleteByThread(transactionID, threadID string) error
	ListByTransaction(transactionID string) ([]*domain.LinkRecord, error)
	IsIgnored(transactionID, sender, subject string, sentAt time.Time) (bool, error)
	CreateIgnored(ignored *domain.IgnoredLink) error
}

// AttachmentRepository defines the interface for attachment records.
type AttachmentRepository interface {
	Create(record *domain.AttachmentRecord) error
	CountByMessage(messageID string) (int64, error)
	ListByMessage(messageID string) ([]*domain.AttachmentRecord, error)
}

// CursorRepository defines the interface for per-(user, provider) sync
// cursors, including the partial-sync marker.
type CursorRepository interface {
	Get(userID, provider string) (*domain.ProviderSyncCursor, error)
	SaveSuccess(userID, provider string, at time.Time) error
	SavePartial(userID, provider string, storedSoFar int) error
}
