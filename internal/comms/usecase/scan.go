package usecase

import (
	"context"
	"fmt"
	"log"
	"time"

	"dealsync-backend/internal/comms/domain"
	"dealsync-backend/pkg/netretry"
)

const defaultScanWindow = 2 // years

// ScanUser walks every container of every configured provider for the user
// and ingests everything newer than the provider's sync cursor. Providers are
// scanned sequentially so progress reporting stays monotonic; a cancellation
// request is honored at the next container boundary.
func (u *syncUsecase) ScanUser(ctx context.Context, userID string, progress ProgressFunc) (*ScanResult, error) {
	if allowed, remaining := u.guard.Allow(OpScan, userID); !allowed {
		return nil, &CooldownError{Operation: OpScan, Remaining: remaining}
	}

	user, err := u.userRepo.FindByID(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if user == nil {
		return nil, &domain.NotFoundError{Kind: "user", ID: userID}
	}

	u.setCancelled(userID, false)
	result := &ScanResult{}

	for _, provider := range u.providers {
		name := provider.Name()

		sess, err := provider.Session(ctx, user)
		if err != nil {
			if domain.IsAuthError(err) {
				log.Printf("[Scan] No credential for provider %s, skipping", name)
				continue
			}
			return result, err
		}

		since := u.scanSince(userID, name)
		seen := NewSeenSet()
		outcome := providerOutcome{}

		var containers []domain.Container
		err = netretry.Do(ctx, u.retryOpts, func() error {
			var ferr error
			containers, ferr = sess.Containers(ctx)
			return ferr
		})
		if err != nil {
			out := u.finishProvider(userID, name, outcome, err)
			result.Fetched += out.fetched
			result.Stored += out.stored
			if out.partial {
				result.Partial = true
			}
			continue
		}

		cancelled := false
		for i, container := range containers {
			if u.isCancelled(userID) {
				log.Printf("[Scan] Cancelled for user %s after %d/%d containers on %s", userID, i, len(containers), name)
				cancelled = true
				break
			}

			containerID := container.ID
			err = u.fetchAndStore(ctx, userID, name, sess, seen, &outcome, func() ([]*domain.RawMessage, error) {
				return sess.SearchContainer(ctx, containerID, since, u.maxPerContainer)
			})
			if err != nil {
				break
			}

			if progress != nil {
				done := i + 1
				progress(Progress{
					Fetched:        outcome.fetched,
					Total:          outcome.fetched,
					EstimatedTotal: len(containers),
					Percentage:     float64(done) / float64(len(containers)) * 100,
					HasEstimate:    true,
				})
			}
		}

		if cancelled {
			// Already-stored messages stay durable; the cursor keeps its
			// previous position so the next scan re-covers the gap.
			result.Fetched += outcome.fetched
			result.Stored += outcome.stored
			result.Partial = true
			return result, nil
		}

		out := u.finishProvider(userID, name, outcome, err)
		result.Fetched += out.fetched
		result.Stored += out.stored
		if out.partial {
			result.Partial = true
		}
	}

	if !result.Partial {
		u.guard.Touch(OpScan, userID)
	}
	return result, nil
}

// CancelScan requests cooperative cancellation of the user's running scan.
func (u *syncUsecase) CancelScan(userID string) {
	u.setCancelled(userID, true)
}

// scanSince returns the lower bound for a full-account scan: the provider's
// last successful cursor, else a fixed lookback window.
func (u *syncUsecase) scanSince(userID, provider string) time.Time {
	cursor, err := u.cursorRepo.Get(userID, provider)
	if err != nil {
		log.Printf("[Scan] Failed to load cursor for %s: %v", provider, err)
	}
	if cursor != nil && !cursor.LastSyncedAt.IsZero() {
		return cursor.LastSyncedAt
	}
	return time.Now().AddDate(-defaultScanWindow, 0, 0)
}

func (u *syncUsecase) setCancelled(userID string, v bool) {
	u.cancelMu.Lock()
	defer u.cancelMu.Unlock()
	if v {
		u.cancelled[userID] = true
	} else {
		delete(u.cancelled, userID)
	}
}

func (u *syncUsecase) isCancelled(userID string) bool {
	u.cancelMu.Lock()
	defer u.cancelMu.Unlock()
	return u.cancelled[userID]
}
