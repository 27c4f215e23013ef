package domain

import "time"

// MessageKind distinguishes stored emails from stored text messages.
type MessageKind string

const (
	KindEmail MessageKind = "email"
	KindText  MessageKind = "text"
)

// Link sources recorded on LinkRecord rows.
const (
	LinkSourceAuto   = "auto"
	LinkSourceManual = "manual"
	LinkSourceScan   = "scan"
)

// StoredMessage is one persisted email or text message. A row is created once
// per (user, provider, external_id) and never duplicated; after creation the
// only mutation is attaching attachment metadata.
type StoredMessage struct {
	ID             string      `json:"id" gorm:"primaryKey"`
	UserID         string      `json:"user_id" gorm:"index;not null;uniqueIndex:idx_user_provider_external"`
	Provider       string      `json:"provider" gorm:"not null;uniqueIndex:idx_user_provider_external"`
	ExternalID     string      `json:"external_id" gorm:"not null;uniqueIndex:idx_user_provider_external"`
	ThreadID       string      `json:"thread_id" gorm:"index"`
	Kind           MessageKind `json:"kind" gorm:"index"`
	Sender         string      `json:"sender"`
	Recipients     []string    `json:"recipients" gorm:"serializer:json"`
	Cc             []string    `json:"cc" gorm:"serializer:json"`
	Subject        string      `json:"subject"`
	BodyHTML       string      `json:"body_html"`
	BodyText       string      `json:"body_text"`
	Preview        string      `json:"preview"`
	SentAt         time.Time   `json:"sent_at" gorm:"index"`
	HasAttachments bool        `json:"has_attachments"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// Participants returns sender plus all recipients and cc addresses.
func (m *StoredMessage) Participants() []string {
	out := make([]string, 0, 1+len(m.Recipients)+len(m.Cc))
	if m.Sender != "" {
		out = append(out, m.Sender)
	}
	out = append(out, m.Recipients...)
	out = append(out, m.Cc...)
	return out
}

// LinkRecord associates a stored message or a whole conversation thread with
// a transaction. MessageID and ThreadID are mutually exclusive.
type LinkRecord struct {
	ID            string    `json:"id" gorm:"primaryKey"`
	UserID        string    `json:"user_id" gorm:"index;not null"`
	TransactionID string    `json:"transaction_id" gorm:"index;not null"`
	MessageID     string    `json:"message_id" gorm:"index"`
	ThreadID      string    `json:"thread_id" gorm:"index"`
	LinkSource    string    `json:"link_source"`
	Confidence    float64   `json:"confidence"`
	LinkedAt      time.Time `json:"linked_at"`
}

// IgnoredLink records a message the user explicitly excluded from a
// transaction. Future auto-link passes consult these rows and skip matches.
// Matching is by sender + subject + sent timestamp.
type IgnoredLink struct {
	ID            string    `json:"id" gorm:"primaryKey"`
	UserID        string    `json:"user_id" gorm:"index;not null"`
	TransactionID string    `json:"transaction_id" gorm:"index;not null"`
	Sender        string    `json:"sender"`
	Subject       string    `json:"subject"`
	SentAt        time.Time `json:"sent_at"`
	CreatedAt     time.Time `json:"created_at"`
}

// AttachmentRecord is one downloaded attachment. A message flagged
// has_attachments with zero AttachmentRecords is eligible for backfill.
type AttachmentRecord struct {
	ID           string    `json:"id" gorm:"primaryKey"`
	UserID       string    `json:"user_id" gorm:"index;not null"`
	MessageID    string    `json:"message_id" gorm:"index;not null"`
	AttachmentID string    `json:"attachment_id"`
	Filename     string    `json:"filename"`
	MimeType     string    `json:"mime_type"`
	Size         int64     `json:"size"`
	StoragePath  string    `json:"storage_path"`
	CreatedAt    time.Time `json:"created_at"`
}

// ProviderSyncCursor holds the last successful sync timestamp per
// (user, provider) and the partial-sync marker recorded when a run is
// terminated by a network failure after storing PartialCount messages.
type ProviderSyncCursor struct {
	ID           string    `json:"id" gorm:"primaryKey"`
	UserID       string    `json:"user_id" gorm:"index:idx_cursor_user_provider,unique;not null"`
	Provider     string    `json:"provider" gorm:"index:idx_cursor_user_provider,unique;not null"`
	LastSyncedAt time.Time `json:"last_synced_at"`
	PartialCount int       `json:"partial_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
