package usecase

import (
	"context"
	"fmt"
	"log"

	"dealsync-backend/internal/comms/domain"
)

// BackfillMissingAttachments downloads attachments for every stored message
// flagged has_attachments that has no attachment records yet. One failed
// message never blocks the rest; upstream-deleted messages are skipped.
func (u *syncUsecase) BackfillMissingAttachments(ctx context.Context, userID string) (*BackfillResult, error) {
	user, err := u.userRepo.FindByID(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if user == nil {
		return nil, &domain.NotFoundError{Kind: "user", ID: userID}
	}

	missing, err := u.messageRepo.ListMissingAttachments(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages missing attachments: %w", err)
	}

	result := &BackfillResult{}
	if len(missing) == 0 {
		return result, nil
	}

	byProvider := make(map[string][]*domain.StoredMessage)
	for _, msg := range missing {
		byProvider[msg.Provider] = append(byProvider[msg.Provider], msg)
	}

	// One session per provider covers all its pending messages.
	for _, provider := range u.providers {
		msgs := byProvider[provider.Name()]
		if len(msgs) == 0 {
			continue
		}

		sess, err := provider.Session(ctx, user)
		if err != nil {
			if domain.IsAuthError(err) {
				log.Printf("[Backfill] No credential for provider %s, skipping %d messages", provider.Name(), len(msgs))
				continue
			}
			return result, err
		}

		for _, msg := range msgs {
			result.Processed++

			before, err := u.attachmentRepo.CountByMessage(msg.ID)
			if err != nil {
				result.Errors++
				continue
			}

			if err := u.downloadAttachments(ctx, sess, msg, nil); err != nil {
				if domain.IsNotFoundError(err) {
					log.Printf("[Backfill] Message %s no longer exists upstream, skipping", msg.ExternalID)
					continue
				}
				log.Printf("[Backfill] Failed for message %s: %v", msg.ExternalID, err)
				result.Errors++
				continue
			}

			after, err := u.attachmentRepo.CountByMessage(msg.ID)
			if err == nil && after > before {
				result.Downloaded += int(after - before)
			}
		}
	}

	return result, nil
}
