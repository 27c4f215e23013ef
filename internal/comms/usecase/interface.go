package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"dealsync-backend/internal/comms/domain"
)

// Progress is passed to progress callbacks between fetch pages.
type Progress struct {
	Fetched        int     `json:"fetched"`
	Total          int     `json:"total"`
	EstimatedTotal int     `json:"estimated_total,omitempty"`
	Percentage     float64 `json:"percentage"`
	HasEstimate    bool    `json:"has_estimate"`
}

// ProgressFunc receives progress updates during long-running operations.
type ProgressFunc func(p Progress)

// SyncResult aggregates one syncTransaction run. Partial means a network
// failure terminated a provider pass after durably storing a subset; Error
// carries any provider failure that is neither a missing credential nor a
// network fault.
type SyncResult struct {
	EmailsFetched int    `json:"emails_fetched"`
	EmailsStored  int    `json:"emails_stored"`
	Linked        int    `json:"linked"`
	Partial       bool   `json:"partial"`
	Error         string `json:"error,omitempty"`
}

// ScanResult aggregates one full-account scan.
type ScanResult struct {
	Fetched int  `json:"fetched"`
	Stored  int  `json:"stored"`
	Partial bool `json:"partial"`
}

// AutoLinkResult aggregates one auto-link pass for a contact.
type AutoLinkResult struct {
	EmailsLinked   int `json:"emails_linked"`
	MessagesLinked int `json:"messages_linked"`
	AlreadyLinked  int `json:"already_linked"`
	Errors         int `json:"errors"`
}

func (r *AutoLinkResult) add(other *AutoLinkResult) {
	r.EmailsLinked += other.EmailsLinked
	r.MessagesLinked += other.MessagesLinked
	r.AlreadyLinked += other.AlreadyLinked
	r.Errors += other.Errors
}

// BackfillResult aggregates one attachment backfill pass.
type BackfillResult struct {
	Processed  int `json:"processed"`
	Downloaded int `json:"downloaded"`
	Errors     int `json:"errors"`
}

// CooldownError rejects an operation still inside its cooldown window.
// Remaining is surfaced to the caller as wait-time feedback.
type CooldownError struct {
	Operation string
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("%s is cooling down, retry in %s", e.Operation, e.Remaining)
}

// CommsUsecase is the caller-facing operation surface consumed by delivery.
type CommsUsecase interface {
	SyncTransaction(ctx context.Context, transactionID string, progress ProgressFunc) (*SyncResult, error)
	ScanUser(ctx context.Context, userID string, progress ProgressFunc) (*ScanResult, error)
	CancelScan(userID string)
	AutoLinkContact(ctx context.Context, contactID, transactionID string) (*AutoLinkResult, error)
	AutoLinkTransaction(ctx context.Context, transactionID string) (*AutoLinkResult, error)
	BackfillMissingAttachments(ctx context.Context, userID string) (*BackfillResult, error)
	ManualLink(ctx context.Context, transactionID, messageID string) error
	Unlink(ctx context.Context, transactionID, messageID string, ignore bool) error
	SearchStoredMessages(userID, query string, limit int) ([]*domain.StoredMessage, error)
}

// SeenSet is the explicit cross-call, cross-provider dedup set keyed by
// external id. It is passed by reference into each fetch-store pass so the
// dedup scope stays an explicit, testable parameter. Safe for concurrent use.
type SeenSet struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

// NewSeenSet creates an empty SeenSet.
func NewSeenSet() *SeenSet {
	return &SeenSet{ids: make(map[string]struct{})}
}

// Add records an external id, returning false when it was already present.
func (s *SeenSet) Add(externalID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[externalID]; ok {
		return false
	}
	s.ids[externalID] = struct{}{}
	return true
}

// Len returns the number of distinct ids seen.
func (s *SeenSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}
