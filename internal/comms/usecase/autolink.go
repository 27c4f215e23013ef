package usecase

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"dealsync-backend/internal/comms/domain"
	"dealsync-backend/pkg/fuzzy"
)

// Grouping admits only exact normalized-identifier matches, so every
// auto-created link records full confidence.
const confidenceExact = 1.0

// NormalizeIdentifier canonicalizes one participant identifier. Email
// addresses are lowercased and trimmed; phone numbers are reduced to their
// last ten digits so formatting variants of the same number compare equal.
func NormalizeIdentifier(id string) string {
	id = strings.TrimSpace(strings.ToLower(id))
	if id == "" {
		return ""
	}
	if strings.Contains(id, "@") {
		return id
	}

	var digits []byte
	for i := 0; i < len(id); i++ {
		if id[i] >= '0' && id[i] <= '9' {
			digits = append(digits, id[i])
		}
	}
	if len(digits) == 0 {
		return id
	}
	if len(digits) > 10 {
		digits = digits[len(digits)-10:]
	}
	return string(digits)
}

// GroupKey derives the conversation-group identity of a stored message.
// Messages carrying a provider thread id group by thread. Messages without
// one (texts, IMAP mail) group by their normalized participant set minus the
// account owner's own identifiers. A message whose participant set reduces to
// empty forms a singleton group so it is never silently merged with others.
func GroupKey(msg *domain.StoredMessage, selfIdentifiers []string) string {
	if msg.ThreadID != "" {
		return "thread:" + msg.Provider + ":" + msg.ThreadID
	}

	self := make(map[string]struct{}, len(selfIdentifiers))
	for _, id := range selfIdentifiers {
		if n := NormalizeIdentifier(id); n != "" {
			self[n] = struct{}{}
		}
	}

	seen := make(map[string]struct{})
	var participants []string
	for _, p := range msg.Participants() {
		n := NormalizeIdentifier(p)
		if n == "" {
			continue
		}
		if _, own := self[n]; own {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		participants = append(participants, n)
	}

	if len(participants) == 0 {
		return "message:" + msg.ID
	}
	sort.Strings(participants)
	return "participants:" + strings.Join(participants, "|")
}

// messageGroup is one conversation group found during an auto-link pass.
type messageGroup struct {
	key      string
	threadID string
	kind     domain.MessageKind
	messages []*domain.StoredMessage
}

// AutoLinkContact finds every stored conversation involving the contact and
// links each conversation group to the transaction exactly once. Groups the
// user previously ignored for this transaction are skipped, and a failure in
// one group never aborts the others.
func (u *syncUsecase) AutoLinkContact(ctx context.Context, contactID, transactionID string) (*AutoLinkResult, error) {
	txn, err := u.txnRepo.FindByID(transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction: %w", err)
	}
	if txn == nil {
		return nil, &domain.NotFoundError{Kind: "transaction", ID: transactionID}
	}

	contact, err := u.contactRepo.FindByID(contactID)
	if err != nil {
		return nil, fmt.Errorf("failed to load contact: %w", err)
	}
	if contact == nil {
		return nil, &domain.NotFoundError{Kind: "contact", ID: contactID}
	}

	identifiers, err := u.contactIdentifiers(contactID)
	if err != nil {
		return nil, err
	}

	result := &AutoLinkResult{}
	if len(identifiers) == 0 {
		return result, nil
	}

	user, err := u.userRepo.FindByID(txn.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if user == nil {
		return nil, &domain.NotFoundError{Kind: "user", ID: txn.UserID}
	}

	messages, err := u.messageRepo.ListByUser(txn.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to list stored messages: %w", err)
	}

	groups := groupMatching(messages, identifiers, user.SelfIdentifiers)

	for _, group := range groups {
		if err := u.linkGroup(txn.UserID, transactionID, group, result); err != nil {
			log.Printf("[AutoLink] Failed to link group %s: %v", group.key, err)
			result.Errors++
		}
	}

	if result.EmailsLinked+result.MessagesLinked > 0 {
		if err := u.recomputeThreadCount(txn.UserID, transactionID); err != nil {
			log.Printf("[AutoLink] Failed to update thread count for %s: %v", transactionID, err)
		}
	}

	return result, nil
}

// AutoLinkTransaction runs AutoLinkContact for every contact assigned to the
// transaction and merges the results.
func (u *syncUsecase) AutoLinkTransaction(ctx context.Context, transactionID string) (*AutoLinkResult, error) {
	assignments, err := u.txnRepo.ListAssignments(transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list contact assignments: %w", err)
	}

	result := &AutoLinkResult{}
	for _, assignment := range assignments {
		r, err := u.AutoLinkContact(ctx, assignment.ContactID, transactionID)
		if err != nil {
			log.Printf("[AutoLink] Contact %s failed: %v", assignment.ContactID, err)
			result.Errors++
			continue
		}
		result.add(r)
	}
	return result, nil
}

// linkGroup links one conversation group to the transaction. Thread groups
// get a single thread-scoped link; participant and singleton groups get one
// link per member message. Either way the group counts once.
func (u *syncUsecase) linkGroup(userID, transactionID string, group *messageGroup, result *AutoLinkResult) error {
	// The ignore check is per message so a group stays linkable if only
	// some of its messages were excluded.
	candidates := make([]*domain.StoredMessage, 0, len(group.messages))
	for _, msg := range group.messages {
		ignored, err := u.linkRepo.IsIgnored(transactionID, msg.Sender, msg.Subject, msg.SentAt)
		if err != nil {
			return fmt.Errorf("failed to check ignored links: %w", err)
		}
		if !ignored {
			candidates = append(candidates, msg)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	if group.threadID != "" {
		exists, err := u.linkRepo.ExistsByThread(transactionID, group.threadID)
		if err != nil {
			return fmt.Errorf("failed to check thread link: %w", err)
		}
		if exists {
			result.AlreadyLinked++
			return nil
		}
		link := &domain.LinkRecord{
			UserID:        userID,
			TransactionID: transactionID,
			ThreadID:      group.threadID,
			LinkSource:    domain.LinkSourceAuto,
			Confidence:    confidenceExact,
			LinkedAt:      time.Now(),
		}
		if err := u.linkRepo.Create(link); err != nil {
			return fmt.Errorf("failed to create thread link: %w", err)
		}
		u.countGroup(group, result)
		return nil
	}

	created := 0
	for _, msg := range candidates {
		exists, err := u.linkRepo.ExistsByMessage(transactionID, msg.ID)
		if err != nil {
			return fmt.Errorf("failed to check message link: %w", err)
		}
		if exists {
			continue
		}
		link := &domain.LinkRecord{
			UserID:        userID,
			TransactionID: transactionID,
			MessageID:     msg.ID,
			LinkSource:    domain.LinkSourceAuto,
			Confidence:    confidenceExact,
			LinkedAt:      time.Now(),
		}
		if err := u.linkRepo.Create(link); err != nil {
			return fmt.Errorf("failed to create message link: %w", err)
		}
		created++
	}

	if created == 0 {
		result.AlreadyLinked++
		return nil
	}
	u.countGroup(group, result)
	return nil
}

func (u *syncUsecase) countGroup(group *messageGroup, result *AutoLinkResult) {
	if group.kind == domain.KindText {
		result.MessagesLinked++
	} else {
		result.EmailsLinked++
	}
}

// groupMatching partitions the messages that involve any of the contact's
// identifiers into conversation groups. Iteration order over the input slice
// makes the output deterministic.
func groupMatching(messages []*domain.StoredMessage, identifiers map[string]struct{}, selfIdentifiers []string) []*messageGroup {
	byKey := make(map[string]*messageGroup)
	var ordered []*messageGroup

	for _, msg := range messages {
		if !involves(msg, identifiers) {
			continue
		}
		key := GroupKey(msg, selfIdentifiers)
		group, ok := byKey[key]
		if !ok {
			group = &messageGroup{key: key, threadID: msg.ThreadID, kind: msg.Kind}
			byKey[key] = group
			ordered = append(ordered, group)
		}
		group.messages = append(group.messages, msg)
	}

	return ordered
}

// involves reports whether any participant of the message matches one of the
// normalized contact identifiers.
func involves(msg *domain.StoredMessage, identifiers map[string]struct{}) bool {
	for _, p := range msg.Participants() {
		if _, ok := identifiers[NormalizeIdentifier(p)]; ok {
			return true
		}
	}
	return false
}

// contactIdentifiers returns the normalized set of a contact's email
// addresses and phone numbers.
func (u *syncUsecase) contactIdentifiers(contactID string) (map[string]struct{}, error) {
	identifiers := make(map[string]struct{})

	emails, err := u.contactRepo.ListEmails(contactID)
	if err != nil {
		return nil, fmt.Errorf("failed to list contact emails: %w", err)
	}
	for _, e := range emails {
		if n := NormalizeIdentifier(e.Address); n != "" {
			identifiers[n] = struct{}{}
		}
	}

	phones, err := u.contactRepo.ListPhones(contactID)
	if err != nil {
		return nil, fmt.Errorf("failed to list contact phones: %w", err)
	}
	for _, p := range phones {
		if n := NormalizeIdentifier(p.Number); n != "" {
			identifiers[n] = struct{}{}
		}
	}

	return identifiers, nil
}

// ManualLink links one message's conversation to the transaction. Messages
// carrying a thread id link the whole thread, others link individually.
func (u *syncUsecase) ManualLink(ctx context.Context, transactionID, messageID string) error {
	txn, err := u.txnRepo.FindByID(transactionID)
	if err != nil {
		return fmt.Errorf("failed to load transaction: %w", err)
	}
	if txn == nil {
		return &domain.NotFoundError{Kind: "transaction", ID: transactionID}
	}

	msg, err := u.messageRepo.GetByID(messageID)
	if err != nil {
		return fmt.Errorf("failed to load message: %w", err)
	}
	if msg == nil {
		return &domain.NotFoundError{Kind: "message", ID: messageID}
	}

	link := &domain.LinkRecord{
		UserID:        txn.UserID,
		TransactionID: transactionID,
		LinkSource:    domain.LinkSourceManual,
		Confidence:    confidenceExact,
		LinkedAt:      time.Now(),
	}

	if msg.ThreadID != "" {
		exists, err := u.linkRepo.ExistsByThread(transactionID, msg.ThreadID)
		if err != nil {
			return fmt.Errorf("failed to check thread link: %w", err)
		}
		if exists {
			return nil
		}
		link.ThreadID = msg.ThreadID
	} else {
		exists, err := u.linkRepo.ExistsByMessage(transactionID, messageID)
		if err != nil {
			return fmt.Errorf("failed to check message link: %w", err)
		}
		if exists {
			return nil
		}
		link.MessageID = messageID
	}

	if err := u.linkRepo.Create(link); err != nil {
		return fmt.Errorf("failed to create link: %w", err)
	}

	if err := u.recomputeThreadCount(txn.UserID, transactionID); err != nil {
		log.Printf("[Link] Failed to update thread count for %s: %v", transactionID, err)
	}
	return nil
}

// Unlink removes the link between a message's conversation and the
// transaction. With ignore set, an ignored-link row is recorded so future
// auto-link passes skip the same message.
func (u *syncUsecase) Unlink(ctx context.Context, transactionID, messageID string, ignore bool) error {
	txn, err := u.txnRepo.FindByID(transactionID)
	if err != nil {
		return fmt.Errorf("failed to load transaction: %w", err)
	}
	if txn == nil {
		return &domain.NotFoundError{Kind: "transaction", ID: transactionID}
	}

	msg, err := u.messageRepo.GetByID(messageID)
	if err != nil {
		return fmt.Errorf("failed to load message: %w", err)
	}
	if msg == nil {
		return &domain.NotFoundError{Kind: "message", ID: messageID}
	}

	if msg.ThreadID != "" {
		if err := u.linkRepo.DeleteByThread(transactionID, msg.ThreadID); err != nil {
			return fmt.Errorf("failed to delete thread link: %w", err)
		}
	} else {
		if err := u.linkRepo.DeleteByMessage(transactionID, messageID); err != nil {
			return fmt.Errorf("failed to delete message link: %w", err)
		}
	}

	if ignore {
		ignored := &domain.IgnoredLink{
			UserID:        txn.UserID,
			TransactionID: transactionID,
			Sender:        msg.Sender,
			Subject:       msg.Subject,
			SentAt:        msg.SentAt,
		}
		if err := u.linkRepo.CreateIgnored(ignored); err != nil {
			return fmt.Errorf("failed to record ignored link: %w", err)
		}
	}

	if err := u.recomputeThreadCount(txn.UserID, transactionID); err != nil {
		log.Printf("[Link] Failed to update thread count for %s: %v", transactionID, err)
	}
	return nil
}

// recomputeThreadCount recounts the distinct text-message conversation groups
// linked to the transaction and persists the total. Thread counts are always
// derived from link state, never incremented in place.
func (u *syncUsecase) recomputeThreadCount(userID, transactionID string) error {
	links, err := u.linkRepo.ListByTransaction(transactionID)
	if err != nil {
		return fmt.Errorf("failed to list links: %w", err)
	}

	user, err := u.userRepo.FindByID(userID)
	if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}
	var selfIDs []string
	if user != nil {
		selfIDs = user.SelfIdentifiers
	}

	groups := make(map[string]struct{})
	for _, link := range links {
		var msgs []*domain.StoredMessage
		switch {
		case link.MessageID != "":
			msg, err := u.messageRepo.GetByID(link.MessageID)
			if err != nil {
				return fmt.Errorf("failed to load linked message: %w", err)
			}
			if msg != nil {
				msgs = append(msgs, msg)
			}
		case link.ThreadID != "":
			var err error
			msgs, err = u.messageRepo.ListByThread(userID, link.ThreadID)
			if err != nil {
				return fmt.Errorf("failed to load linked thread: %w", err)
			}
		}
		for _, msg := range msgs {
			if msg.Kind != domain.KindText {
				continue
			}
			groups[GroupKey(msg, selfIDs)] = struct{}{}
		}
	}

	return u.txnRepo.UpdateTextThreadCount(transactionID, len(groups))
}

// SearchStoredMessages fuzzy-matches the user's stored messages against a
// free-text query and returns them ranked by relevance, newest first among
// ties.
func (u *syncUsecase) SearchStoredMessages(userID, query string, limit int) ([]*domain.StoredMessage, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &domain.ValidationError{Field: "query", Message: "must not be empty"}
	}
	if limit <= 0 {
		limit = 50
	}

	messages, err := u.messageRepo.ListByUser(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list stored messages: %w", err)
	}

	var matched []*domain.StoredMessage
	for _, msg := range messages {
		if fuzzy.MatchMessage(query, msg.Subject, msg.Sender, msg.BodyText) {
			matched = append(matched, msg)
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		si := fuzzy.RelevanceScore(query, matched[i].Subject, matched[i].Sender)
		sj := fuzzy.RelevanceScore(query, matched[j].Subject, matched[j].Sender)
		if si != sj {
			return si > sj
		}
		return matched[i].SentAt.After(matched[j].SentAt)
	})

	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}
