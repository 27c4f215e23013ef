package domain

import "time"

// Transaction is a real-world deal. StartedAt, falling back to CreatedAt,
// anchors the incremental sync window.
type Transaction struct {
	ID              string     `json:"id" gorm:"primaryKey"`
	UserID          string     `json:"user_id" gorm:"index;not null"`
	Name            string     `json:"name"`
	PropertyAddress string     `json:"property_address"`
	StartedAt       *time.Time `json:"started_at"`
	TextThreadCount int        `json:"text_thread_count"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// SyncSince returns the inclusive lower bound for this transaction's fetch
// window: started_at, else created_at, else two years before now. The bound
// keeps a cold transaction from re-downloading the account's entire history
// while fully covering the deal's own correspondence.
func (t *Transaction) SyncSince(now time.Time) time.Time {
	if t.StartedAt != nil && !t.StartedAt.IsZero() {
		return *t.StartedAt
	}
	if !t.CreatedAt.IsZero() {
		return t.CreatedAt
	}
	return now.AddDate(-2, 0, 0)
}

// ContactAssignment binds a contact to a transaction with a role
// (e.g. "buyer", "seller", "lender").
type ContactAssignment struct {
	ID            string    `json:"id" gorm:"primaryKey"`
	TransactionID string    `json:"transaction_id" gorm:"index;not null"`
	ContactID     string    `json:"contact_id" gorm:"index;not null"`
	Role          string    `json:"role"`
	CreatedAt     time.Time `json:"created_at"`
}

// Contact is a person with many-valued email addresses and phone numbers.
type Contact struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	UserID    string    `json:"user_id" gorm:"index;not null"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ContactEmail is one email address owned by a contact.
type ContactEmail struct {
	ID        string `json:"id" gorm:"primaryKey"`
	ContactID string `json:"contact_id" gorm:"index;not null"`
	Address   string `json:"address" gorm:"not null"`
}

// ContactPhone is one phone number owned by a contact.
type ContactPhone struct {
	ID        string `json:"id" gorm:"primaryKey"`
	ContactID string `json:"contact_id" gorm:"index;not null"`
	Number    string `json:"number" gorm:"not null"`
}
