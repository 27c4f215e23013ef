package domain

import (
	"context"
	"time"

	authdomain "dealsync-backend/internal/auth/domain"
)

// RawAttachment is provider-side attachment metadata, before download.
type RawAttachment struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
}

// RawMessage is the normalized message shape every provider adapter produces.
// The rest of the pipeline never branches on provider identity except to pick
// which adapter performs a fetch.
type RawMessage struct {
	ExternalID     string
	ThreadID       string
	From           string
	To             []string
	Cc             []string
	Subject        string
	BodyHTML       string
	BodyText       string
	SentAt         time.Time
	HasAttachments bool
	Attachments    []RawAttachment
	Kind           MessageKind
}

// Container is one provider-side folder or label.
type Container struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Provider is the uniform capability implemented by each communication
// provider. Session fails with an AuthError when no valid credential exists
// for the user; the returned session is bound to that user's account.
type Provider interface {
	Name() string
	Session(ctx context.Context, user *authdomain.User) (ProviderSession, error)
}

// ProviderSession exposes search and fetch operations against one user's
// account on one provider.
type ProviderSession interface {
	// SearchByContacts finds messages exchanged with any of the given
	// addresses (sender or recipient), sent on or after since. maxResults
	// is a hard cap.
	SearchByContacts(ctx context.Context, addresses []string, since time.Time, maxResults int) ([]*RawMessage, error)

	// SearchSentTo finds sent-folder messages addressed to any of the given
	// addresses. Covers the outbound side when provider search is
	// sender-biased.
	SearchSentTo(ctx context.Context, addresses []string, limit int, since time.Time) ([]*RawMessage, error)

	// Containers lists all folders/labels excluding system containers
	// (trash, spam, drafts, automatic categorization).
	Containers(ctx context.Context) ([]Container, error)

	// SearchContainer scans one container for messages sent on or after
	// since, up to maxResults.
	SearchContainer(ctx context.Context, containerID string, since time.Time, maxResults int) ([]*RawMessage, error)

	// MessageByID fetches one message. Returns a NotFoundError when the id
	// no longer exists upstream.
	MessageByID(ctx context.Context, externalID string) (*RawMessage, error)

	// AttachmentMetadata lists attachment metadata for a message.
	AttachmentMetadata(ctx context.Context, externalID string) ([]RawAttachment, error)

	// AttachmentContent downloads one attachment's bytes.
	AttachmentContent(ctx context.Context, externalID, attachmentID string) ([]byte, error)
}
