package domain

import "time"

// User is one account. It owns all transactions, contacts, stored messages
// and link records transitively.
type User struct {
	ID       string `json:"id" gorm:"primaryKey"`
	Email    string `json:"email" gorm:"uniqueIndex;not null"`
	Password string `json:"-"` // bcrypt hash, never returned in JSON
	Name     string `json:"name"`

	// Gmail provider credentials (acquired by the OAuth collaborator).
	GmailAccessToken  string    `json:"-"`
	GmailRefreshToken string    `json:"-"`
	GmailTokenExpiry  time.Time `json:"-"`

	// IMAP provider credentials. Password is AES-GCM encrypted at rest.
	ImapServer   string `json:"imap_server,omitempty"`
	ImapPort     int    `json:"imap_port,omitempty"`
	ImapUsername string `json:"imap_username,omitempty"`
	ImapPassword string `json:"-"`

	// SelfIdentifiers are the user's own addresses and phone numbers,
	// excluded from participant sets when grouping conversations.
	SelfIdentifiers []string `json:"self_identifiers" gorm:"serializer:json"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasGmail reports whether Gmail credentials are present for the user.
func (u *User) HasGmail() bool {
	return u.GmailAccessToken != "" || u.GmailRefreshToken != ""
}

// HasImap reports whether IMAP credentials are present for the user.
func (u *User) HasImap() bool {
	return u.ImapServer != "" && u.ImapUsername != "" && u.ImapPassword != ""
}

// TokenUpdate carries refreshed Gmail tokens back from a provider session so
// they can be persisted.
type TokenUpdate struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// TokenUpdateFunc persists refreshed provider tokens for one user.
type TokenUpdateFunc func(update TokenUpdate) error

// TokenSaver persists refreshed provider tokens keyed by user id.
type TokenSaver func(userID string, update TokenUpdate) error
