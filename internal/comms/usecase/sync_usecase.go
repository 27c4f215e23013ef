package usecase

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	authdomain "dealsync-backend/internal/auth/domain"
	authrepo "dealsync-backend/internal/auth/repository"
	"dealsync-backend/internal/comms/domain"
	"dealsync-backend/internal/comms/repository"
	txnrepo "dealsync-backend/internal/transaction/repository"
	"dealsync-backend/pkg/blobstore"
	"dealsync-backend/pkg/cooldown"
	"dealsync-backend/pkg/htmltext"
	"dealsync-backend/pkg/netretry"
)

// Cooldown operation classes. Scans hit external APIs often and cool down
// briefly; full transaction syncs are expensive and cool down longer.
const (
	OpScan = "scan"
	OpSync = "transaction_sync"
)

const previewLength = 200

// syncUsecase implements CommsUsecase.
type syncUsecase struct {
	userRepo       authrepo.UserRepository
	txnRepo        txnrepo.TransactionRepository
	contactRepo    txnrepo.ContactRepository
	messageRepo    repository.MessageRepository
	linkRepo       repository.LinkRepository
	attachmentRepo repository.AttachmentRepository
	cursorRepo     repository.CursorRepository

	providers []domain.Provider
	guard     *cooldown.Guard
	blobs     *blobstore.Store

	retryOpts       netretry.Options
	maxPerContainer int

	cancelMu  sync.Mutex
	cancelled map[string]bool
}

// NewSyncUsecase creates a new instance of syncUsecase
func NewSyncUsecase(
	userRepo authrepo.UserRepository,
	txnRepo txnrepo.TransactionRepository,
	contactRepo txnrepo.ContactRepository,
	messageRepo repository.MessageRepository,
	linkRepo repository.LinkRepository,
	attachmentRepo repository.AttachmentRepository,
	cursorRepo repository.CursorRepository,
	providers []domain.Provider,
	guard *cooldown.Guard,
	blobs *blobstore.Store,
	retryOpts netretry.Options,
	maxPerContainer int,
) CommsUsecase {
	if maxPerContainer <= 0 {
		maxPerContainer = 500
	}
	return &syncUsecase{
		userRepo:        userRepo,
		txnRepo:         txnRepo,
		contactRepo:     contactRepo,
		messageRepo:     messageRepo,
		linkRepo:        linkRepo,
		attachmentRepo:  attachmentRepo,
		cursorRepo:      cursorRepo,
		providers:       providers,
		guard:           guard,
		blobs:           blobs,
		retryOpts:       retryOpts,
		maxPerContainer: maxPerContainer,
		cancelled:       make(map[string]bool),
	}
}

// providerOutcome is the per-provider tally of one sync pass.
type providerOutcome struct {
	fetched int
	stored  int
	partial bool
	err     error
}

// SyncTransaction pulls the transaction's correspondence from every
// provider, dedups and stores it, backfills attachments, auto-links, and
// returns aggregate counts. A network failure after partial storage reports
// partial=true with exact counts instead of discarding the work.
func (u *syncUsecase) SyncTransaction(ctx context.Context, transactionID string, progress ProgressFunc) (*SyncResult, error) {
	if transactionID == "" {
		return nil, &domain.ValidationError{Field: "transaction_id", Message: "must not be empty"}
	}

	txn, err := u.txnRepo.FindByID(transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction: %w", err)
	}
	if txn == nil {
		return nil, &domain.NotFoundError{Kind: "transaction", ID: transactionID}
	}

	if allowed, remaining := u.guard.Allow(OpSync, transactionID); !allowed {
		return nil, &CooldownError{Operation: OpSync, Remaining: remaining}
	}

	user, err := u.userRepo.FindByID(txn.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if user == nil {
		return nil, &domain.NotFoundError{Kind: "user", ID: txn.UserID}
	}

	addresses, err := u.resolveContactAddresses(transactionID)
	if err != nil {
		return nil, err
	}

	result := &SyncResult{}

	if len(addresses) > 0 {
		since := txn.SyncSince(time.Now())
		seen := NewSeenSet()

		outcomes := make([]providerOutcome, len(u.providers))
		var wg sync.WaitGroup
		for i, provider := range u.providers {
			wg.Add(1)
			go func(i int, provider domain.Provider) {
				defer wg.Done()
				outcomes[i] = u.syncProvider(ctx, user, provider, addresses, since, seen, progress)
			}(i, provider)
		}
		wg.Wait()

		for i, outcome := range outcomes {
			name := u.providers[i].Name()
			result.EmailsFetched += outcome.fetched
			result.EmailsStored += outcome.stored
			if outcome.partial {
				result.Partial = true
			}
			if outcome.err != nil && !domain.IsAuthError(outcome.err) {
				log.Printf("[Sync] Provider %s failed for transaction %s: %v", name, transactionID, outcome.err)
				if !outcome.partial {
					if result.Error != "" {
						result.Error += "; "
					}
					result.Error += fmt.Sprintf("%s: %v", name, outcome.err)
				}
			}
		}
	} else {
		log.Printf("[Sync] Transaction %s has no contact addresses, skipping provider fetch", transactionID)
	}

	// Attachment backfill covers the user's whole message set, then the
	// auto-link pass runs for every assigned contact (including the
	// phone-based text side when no email addresses exist).
	if _, err := u.BackfillMissingAttachments(ctx, user.ID); err != nil {
		log.Printf("[Sync] Attachment backfill failed for user %s: %v", user.ID, err)
	}

	assignments, err := u.txnRepo.ListAssignments(transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list contact assignments: %w", err)
	}
	for _, assignment := range assignments {
		linkResult, err := u.AutoLinkContact(ctx, assignment.ContactID, transactionID)
		if err != nil {
			log.Printf("[Sync] Auto-link failed for contact %s: %v", assignment.ContactID, err)
			continue
		}
		result.Linked += linkResult.EmailsLinked + linkResult.MessagesLinked
	}

	if !result.Partial {
		u.guard.Touch(OpSync, transactionID)
	}

	return result, nil
}

// syncProvider runs one provider's inbox, sent and all-container passes
// sequentially inside the retry wrapper, sharing the cross-provider seen set.
func (u *syncUsecase) syncProvider(ctx context.Context, user *authdomain.User, provider domain.Provider, addresses []string, since time.Time, seen *SeenSet, progress ProgressFunc) providerOutcome {
	outcome := providerOutcome{}
	name := provider.Name()

	sess, err := provider.Session(ctx, user)
	if err != nil {
		if domain.IsAuthError(err) {
			log.Printf("[Sync] No credential for provider %s, skipping: %v", name, err)
		}
		outcome.err = err
		return outcome
	}

	report := func() {
		if progress != nil {
			progress(Progress{Fetched: outcome.fetched, Total: outcome.fetched})
		}
	}

	// Inbox: bidirectional contact search.
	err = u.fetchAndStore(ctx, user.ID, name, sess, seen, &outcome, func() ([]*domain.RawMessage, error) {
		return sess.SearchByContacts(ctx, addresses, since, u.maxPerContainer)
	})
	if err != nil {
		return u.finishProvider(user.ID, name, outcome, err)
	}
	report()

	// Sent folder: covers recipients when provider search is sender-biased.
	err = u.fetchAndStore(ctx, user.ID, name, sess, seen, &outcome, func() ([]*domain.RawMessage, error) {
		return sess.SearchSentTo(ctx, addresses, u.maxPerContainer, since)
	})
	if err != nil {
		return u.finishProvider(user.ID, name, outcome, err)
	}
	report()

	// All containers: catches mail filed outside the primary inbox.
	var containers []domain.Container
	err = netretry.Do(ctx, u.retryOpts, func() error {
		var ferr error
		containers, ferr = sess.Containers(ctx)
		return ferr
	})
	if err != nil {
		return u.finishProvider(user.ID, name, outcome, err)
	}

	for _, container := range containers {
		containerID := container.ID
		err = u.fetchAndStore(ctx, user.ID, name, sess, seen, &outcome, func() ([]*domain.RawMessage, error) {
			return sess.SearchContainer(ctx, containerID, since, u.maxPerContainer)
		})
		if err != nil {
			return u.finishProvider(user.ID, name, outcome, err)
		}
		report()
	}

	return u.finishProvider(user.ID, name, outcome, nil)
}

// finishProvider records cursor state for one provider pass. Network failures
// persist the partial-sync marker with the stored-so-far count; anything else
// already-stored stays durable either way.
func (u *syncUsecase) finishProvider(userID, provider string, outcome providerOutcome, err error) providerOutcome {
	if err == nil {
		if cerr := u.cursorRepo.SaveSuccess(userID, provider, time.Now()); cerr != nil {
			log.Printf("[Sync] Failed to save cursor for %s: %v", provider, cerr)
		}
		return outcome
	}

	outcome.err = err
	if netretry.IsNetworkError(err) {
		outcome.partial = true
		log.Printf("[Sync] Network failure on %s after storing %d messages: %v", provider, outcome.stored, err)
		if cerr := u.cursorRepo.SavePartial(userID, provider, outcome.stored); cerr != nil {
			log.Printf("[Sync] Failed to save partial marker for %s: %v", provider, cerr)
		}
	}
	return outcome
}

// fetchAndStore runs one fetch inside the retry wrapper and persists the
// results one message at a time, so a failure partway leaves all prior
// messages durably committed.
func (u *syncUsecase) fetchAndStore(ctx context.Context, userID, providerName string, sess domain.ProviderSession, seen *SeenSet, outcome *providerOutcome, fetch func() ([]*domain.RawMessage, error)) error {
	var msgs []*domain.RawMessage
	err := netretry.Do(ctx, u.retryOpts, func() error {
		var ferr error
		msgs, ferr = fetch()
		return ferr
	})
	if err != nil {
		return err
	}

	if len(msgs) >= u.maxPerContainer {
		log.Printf("[Sync] Provider %s hit the %d-message safety cap, results may be incomplete", providerName, u.maxPerContainer)
	}

	for _, raw := range msgs {
		if raw.ExternalID == "" {
			continue
		}
		if !seen.Add(raw.ExternalID) {
			continue
		}
		outcome.fetched++

		existing, err := u.messageRepo.GetByExternalID(userID, providerName, raw.ExternalID)
		if err != nil {
			return fmt.Errorf("failed to check stored message: %w", err)
		}
		if existing != nil {
			continue
		}

		stored := rawToStored(userID, providerName, raw)
		if err := u.messageRepo.Create(stored); err != nil {
			return fmt.Errorf("failed to store message %s: %w", raw.ExternalID, err)
		}
		outcome.stored++

		if raw.HasAttachments {
			if err := u.downloadAttachments(ctx, sess, stored, raw.Attachments); err != nil {
				// Non-fatal: the message is already durably stored.
				// Network errors abort the batch so retries can resume.
				if netretry.IsNetworkError(err) {
					return err
				}
				log.Printf("[Sync] Failed to download attachments for %s: %v", raw.ExternalID, err)
			}
		}
	}

	return nil
}

// downloadAttachments fetches and stores every attachment of one message.
func (u *syncUsecase) downloadAttachments(ctx context.Context, sess domain.ProviderSession, msg *domain.StoredMessage, metas []domain.RawAttachment) error {
	if len(metas) == 0 {
		var err error
		metas, err = sess.AttachmentMetadata(ctx, msg.ExternalID)
		if err != nil {
			return err
		}
	}

	for _, meta := range metas {
		data, err := sess.AttachmentContent(ctx, msg.ExternalID, meta.ID)
		if err != nil {
			return err
		}
		path, err := u.blobs.Save(data)
		if err != nil {
			return err
		}
		record := &domain.AttachmentRecord{
			UserID:       msg.UserID,
			MessageID:    msg.ID,
			AttachmentID: meta.ID,
			Filename:     meta.Filename,
			MimeType:     meta.MimeType,
			Size:         int64(len(data)),
			StoragePath:  path,
		}
		if err := u.attachmentRepo.Create(record); err != nil {
			return err
		}
	}
	return nil
}

// resolveContactAddresses collects the deduplicated, case-normalized email
// addresses of every contact assigned to the transaction.
func (u *syncUsecase) resolveContactAddresses(transactionID string) ([]string, error) {
	assignments, err := u.txnRepo.ListAssignments(transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list contact assignments: %w", err)
	}

	seen := make(map[string]struct{})
	var addresses []string
	for _, assignment := range assignments {
		emails, err := u.contactRepo.ListEmails(assignment.ContactID)
		if err != nil {
			return nil, fmt.Errorf("failed to list contact emails: %w", err)
		}
		for _, e := range emails {
			addr := strings.ToLower(strings.TrimSpace(e.Address))
			if addr == "" {
				continue
			}
			if _, ok := seen[addr]; ok {
				continue
			}
			seen[addr] = struct{}{}
			addresses = append(addresses, addr)
		}
	}
	return addresses, nil
}

func rawToStored(userID, providerName string, raw *domain.RawMessage) *domain.StoredMessage {
	kind := raw.Kind
	if kind == "" {
		kind = domain.KindEmail
	}
	return &domain.StoredMessage{
		UserID:         userID,
		Provider:       providerName,
		ExternalID:     raw.ExternalID,
		ThreadID:       raw.ThreadID,
		Kind:           kind,
		Sender:         strings.ToLower(strings.TrimSpace(raw.From)),
		Recipients:     lowerAll(raw.To),
		Cc:             lowerAll(raw.Cc),
		Subject:        raw.Subject,
		BodyHTML:       raw.BodyHTML,
		BodyText:       raw.BodyText,
		Preview:        htmltext.Preview(raw.BodyHTML, raw.BodyText, previewLength),
		SentAt:         raw.SentAt,
		HasAttachments: raw.HasAttachments,
	}
}

func lowerAll(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
