package dto

import "dealsync-backend/internal/comms/domain"

type ManualLinkRequest struct {
	MessageID string `json:"message_id" binding:"required"`
}

type SyncResponse struct {
	EmailsFetched int    `json:"emails_fetched"`
	EmailsStored  int    `json:"emails_stored"`
	Linked        int    `json:"linked"`
	Partial       bool   `json:"partial"`
	Error         string `json:"error,omitempty"`
}

type ScanResponse struct {
	Fetched int  `json:"fetched"`
	Stored  int  `json:"stored"`
	Partial bool `json:"partial"`
}

type SearchResponse struct {
	Messages []*domain.StoredMessage `json:"messages"`
	Total    int                     `json:"total"`
	Query    string                  `json:"query"`
}
