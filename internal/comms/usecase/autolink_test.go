package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dealsync-backend/internal/comms/domain"
)

func TestNormalizeIdentifier(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Agent@Realty.COM", "agent@realty.com"},
		{"  a@b.com ", "a@b.com"},
		{"+1 (555) 123-4567", "5551234567"},
		{"555-123-4567", "5551234567"},
		{"15551234567", "5551234567"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeIdentifier(tt.in), "input %q", tt.in)
	}
}

func TestGroupKeyThreadWins(t *testing.T) {
	msg := &domain.StoredMessage{Provider: "gmail", ThreadID: "T1", Sender: "a@x.com"}
	assert.Equal(t, "thread:gmail:T1", GroupKey(msg, nil))
}

func TestGroupKeyZeroStringThreadIsValid(t *testing.T) {
	// A literal "0" thread id is a real thread, not a missing one.
	msg := &domain.StoredMessage{Provider: "sms", ThreadID: "0", Sender: "5551234567"}
	assert.Equal(t, "thread:sms:0", GroupKey(msg, nil))
}

func TestGroupKeyParticipantOrderInvariant(t *testing.T) {
	self := []string{"me@me.com"}
	m1 := &domain.StoredMessage{Sender: "a@x.com", Recipients: []string{"b@y.com", "me@me.com"}}
	m2 := &domain.StoredMessage{Sender: "b@y.com", Recipients: []string{"me@me.com", "a@x.com"}}

	assert.Equal(t, GroupKey(m1, self), GroupKey(m2, self))
	assert.Equal(t, "participants:a@x.com|b@y.com", GroupKey(m1, self))
}

func TestGroupKeyPhoneFormatInvariant(t *testing.T) {
	self := []string{"555-000-1111"}
	m1 := &domain.StoredMessage{Kind: domain.KindText, Sender: "+1 (555) 123-4567", Recipients: []string{"5550001111"}}
	m2 := &domain.StoredMessage{Kind: domain.KindText, Sender: "555.123.4567", Recipients: []string{"+1 555 000 1111"}}

	assert.Equal(t, GroupKey(m1, self), GroupKey(m2, self))
}

func TestGroupKeySelfOnlyIsSingleton(t *testing.T) {
	self := []string{"me@me.com"}
	msg := &domain.StoredMessage{ID: "msg-7", Sender: "me@me.com", Recipients: []string{"me@me.com"}}
	assert.Equal(t, "message:msg-7", GroupKey(msg, self))
}

func seedMessages(e *env, msgs ...*domain.StoredMessage) {
	for _, m := range msgs {
		m.UserID = "user-1"
		if m.Provider == "" {
			m.Provider = "gmail"
		}
		if m.Kind == "" {
			m.Kind = domain.KindEmail
		}
		e.messages.Create(m)
	}
}

func TestAutoLinkGroupsDeterministically(t *testing.T) {
	e := newEnv(t)
	addContact(e.contacts, e.txns, "contact-1", "user-1", "txn-1", []string{"a@x.com"}, nil)

	seedMessages(e,
		&domain.StoredMessage{ExternalID: "m1", ThreadID: "T1", Sender: "a@x.com", Recipients: []string{"me@me.com"}},
		&domain.StoredMessage{ExternalID: "m2", ThreadID: "T1", Sender: "me@me.com", Recipients: []string{"a@x.com"}},
		&domain.StoredMessage{ExternalID: "m3", Sender: "a@x.com", Recipients: []string{"b@y.com", "me@me.com"}},
		&domain.StoredMessage{ExternalID: "m4", Sender: "b@y.com", Recipients: []string{"me@me.com", "a@x.com"}},
		&domain.StoredMessage{ExternalID: "m5", Sender: "a@x.com", Recipients: []string{"me@me.com"}},
	)

	result, err := e.uc.AutoLinkContact(context.Background(), "contact-1", "txn-1")
	require.NoError(t, err)

	// Three conversations: thread T1, the {a,b} participant pair, and the
	// a-only conversation.
	assert.Equal(t, 3, result.EmailsLinked)
	assert.Equal(t, 0, result.Errors)

	links, _ := e.links.ListByTransaction("txn-1")
	threadLinks, messageLinks := 0, 0
	for _, l := range links {
		// Exact address matches record full confidence regardless of scope.
		assert.Equal(t, 1.0, l.Confidence)
		if l.ThreadID != "" {
			threadLinks++
		} else {
			messageLinks++
		}
	}
	assert.Equal(t, 1, threadLinks)
	assert.Equal(t, 3, messageLinks) // m3, m4, m5
}

func TestAutoLinkIdempotent(t *testing.T) {
	e := newEnv(t)
	addContact(e.contacts, e.txns, "contact-1", "user-1", "txn-1", []string{"a@x.com"}, nil)

	seedMessages(e,
		&domain.StoredMessage{ExternalID: "m1", ThreadID: "T1", Sender: "a@x.com", Recipients: []string{"me@me.com"}},
		&domain.StoredMessage{ExternalID: "m2", Sender: "a@x.com", Recipients: []string{"me@me.com"}},
	)

	first, err := e.uc.AutoLinkContact(context.Background(), "contact-1", "txn-1")
	require.NoError(t, err)
	assert.Equal(t, 2, first.EmailsLinked)

	second, err := e.uc.AutoLinkContact(context.Background(), "contact-1", "txn-1")
	require.NoError(t, err)
	assert.Equal(t, 0, second.EmailsLinked)
	assert.Equal(t, first.EmailsLinked, second.AlreadyLinked)

	links, _ := e.links.ListByTransaction("txn-1")
	assert.Len(t, links, 2)
}

func TestAutoLinkCountsTextThreads(t *testing.T) {
	e := newEnv(t)
	addContact(e.contacts, e.txns, "contact-1", "user-1", "txn-1", nil, []string{"555-123-4567"})

	seedMessages(e,
		&domain.StoredMessage{ExternalID: "s1", Provider: "sms", Kind: domain.KindText, Sender: "+15551234567", Recipients: []string{"5550001111"}},
		&domain.StoredMessage{ExternalID: "s2", Provider: "sms", Kind: domain.KindText, Sender: "5550001111", Recipients: []string{"555-123-4567"}},
	)

	result, err := e.uc.AutoLinkContact(context.Background(), "contact-1", "txn-1")
	require.NoError(t, err)

	// Both texts collapse into one conversation with the same number.
	assert.Equal(t, 1, result.MessagesLinked)
	assert.Equal(t, 0, result.EmailsLinked)

	txn, _ := e.txns.FindByID("txn-1")
	assert.Equal(t, 1, txn.TextThreadCount)
}

func TestAutoLinkCountsThreadScopedTextThreads(t *testing.T) {
	e := newEnv(t)
	addContact(e.contacts, e.txns, "contact-1", "user-1", "txn-1", nil, []string{"555-123-4567"})

	// Text conversations carrying a provider thread id link thread-scoped
	// and must still show up in the cached text-thread count.
	seedMessages(e,
		&domain.StoredMessage{ExternalID: "s1", Provider: "sms", Kind: domain.KindText, ThreadID: "C1", Sender: "+15551234567", Recipients: []string{"5550001111"}},
		&domain.StoredMessage{ExternalID: "s2", Provider: "sms", Kind: domain.KindText, ThreadID: "C1", Sender: "5550001111", Recipients: []string{"555-123-4567"}},
	)

	result, err := e.uc.AutoLinkContact(context.Background(), "contact-1", "txn-1")
	require.NoError(t, err)
	assert.Equal(t, 1, result.MessagesLinked)

	links, _ := e.links.ListByTransaction("txn-1")
	require.Len(t, links, 1)
	assert.Equal(t, "C1", links[0].ThreadID)

	txn, _ := e.txns.FindByID("txn-1")
	assert.Equal(t, 1, txn.TextThreadCount)
}

func TestAutoLinkSkipsIgnoredMessages(t *testing.T) {
	e := newEnv(t)
	addContact(e.contacts, e.txns, "contact-1", "user-1", "txn-1", []string{"a@x.com"}, nil)

	sentAt := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	seedMessages(e,
		&domain.StoredMessage{ExternalID: "m1", Sender: "a@x.com", Recipients: []string{"me@me.com"}, Subject: "Newsletter", SentAt: sentAt},
	)

	first, err := e.uc.AutoLinkContact(context.Background(), "contact-1", "txn-1")
	require.NoError(t, err)
	require.Equal(t, 1, first.EmailsLinked)

	msg, _ := e.messages.GetByExternalID("user-1", "gmail", "m1")
	require.NoError(t, e.uc.Unlink(context.Background(), "txn-1", msg.ID, true))

	links, _ := e.links.ListByTransaction("txn-1")
	assert.Empty(t, links)

	// The ignored message stays unlinked on the next pass.
	again, err := e.uc.AutoLinkContact(context.Background(), "contact-1", "txn-1")
	require.NoError(t, err)
	assert.Equal(t, 0, again.EmailsLinked)

	links, _ = e.links.ListByTransaction("txn-1")
	assert.Empty(t, links)
}

func TestAutoLinkUnknownContact(t *testing.T) {
	e := newEnv(t)
	_, err := e.uc.AutoLinkContact(context.Background(), "nope", "txn-1")
	assert.True(t, domain.IsNotFoundError(err))
}

func TestAutoLinkTransactionMergesContacts(t *testing.T) {
	e := newEnv(t)
	addContact(e.contacts, e.txns, "contact-1", "user-1", "txn-1", []string{"a@x.com"}, nil)
	addContact(e.contacts, e.txns, "contact-2", "user-1", "txn-1", []string{"c@z.com"}, nil)

	seedMessages(e,
		&domain.StoredMessage{ExternalID: "m1", ThreadID: "T1", Sender: "a@x.com", Recipients: []string{"me@me.com"}},
		&domain.StoredMessage{ExternalID: "m2", ThreadID: "T2", Sender: "c@z.com", Recipients: []string{"me@me.com"}},
	)

	result, err := e.uc.AutoLinkTransaction(context.Background(), "txn-1")
	require.NoError(t, err)
	assert.Equal(t, 2, result.EmailsLinked)
}

func TestManualLinkThreadScoped(t *testing.T) {
	e := newEnv(t)
	seedMessages(e,
		&domain.StoredMessage{ExternalID: "m1", ThreadID: "T1", Sender: "a@x.com"},
	)
	msg, _ := e.messages.GetByExternalID("user-1", "gmail", "m1")

	require.NoError(t, e.uc.ManualLink(context.Background(), "txn-1", msg.ID))

	links, _ := e.links.ListByTransaction("txn-1")
	require.Len(t, links, 1)
	assert.Equal(t, "T1", links[0].ThreadID)
	assert.Empty(t, links[0].MessageID)
	assert.Equal(t, domain.LinkSourceManual, links[0].LinkSource)

	// Linking again is a no-op.
	require.NoError(t, e.uc.ManualLink(context.Background(), "txn-1", msg.ID))
	links, _ = e.links.ListByTransaction("txn-1")
	assert.Len(t, links, 1)
}

func TestManualLinkMessageScoped(t *testing.T) {
	e := newEnv(t)
	seedMessages(e,
		&domain.StoredMessage{ExternalID: "m1", Sender: "a@x.com"},
	)
	msg, _ := e.messages.GetByExternalID("user-1", "gmail", "m1")

	require.NoError(t, e.uc.ManualLink(context.Background(), "txn-1", msg.ID))

	links, _ := e.links.ListByTransaction("txn-1")
	require.Len(t, links, 1)
	assert.Equal(t, msg.ID, links[0].MessageID)
	assert.Empty(t, links[0].ThreadID)
}

func TestUnlinkWithoutIgnoreAllowsRelink(t *testing.T) {
	e := newEnv(t)
	addContact(e.contacts, e.txns, "contact-1", "user-1", "txn-1", []string{"a@x.com"}, nil)
	seedMessages(e,
		&domain.StoredMessage{ExternalID: "m1", Sender: "a@x.com", Recipients: []string{"me@me.com"}},
	)

	_, err := e.uc.AutoLinkContact(context.Background(), "contact-1", "txn-1")
	require.NoError(t, err)

	msg, _ := e.messages.GetByExternalID("user-1", "gmail", "m1")
	require.NoError(t, e.uc.Unlink(context.Background(), "txn-1", msg.ID, false))

	again, err := e.uc.AutoLinkContact(context.Background(), "contact-1", "txn-1")
	require.NoError(t, err)
	assert.Equal(t, 1, again.EmailsLinked)
}

func TestSearchStoredMessages(t *testing.T) {
	e := newEnv(t)
	seedMessages(e,
		&domain.StoredMessage{ExternalID: "m1", Subject: "Closing disclosure ready", Sender: "title@escrow.com", BodyText: "see attached"},
		&domain.StoredMessage{ExternalID: "m2", Subject: "lunch?", Sender: "friend@mail.com", BodyText: "pizza friday"},
		&domain.StoredMessage{ExternalID: "m3", Subject: "re: timeline", Sender: "closing@title.com", BodyText: "we are on track"},
	)

	results, err := e.uc.SearchStoredMessages("user-1", "closing", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)

	// Subject match outranks sender match.
	assert.Equal(t, "m1", results[0].ExternalID)
	assert.Equal(t, "m3", results[1].ExternalID)
}

func TestSearchStoredMessagesEmptyQuery(t *testing.T) {
	e := newEnv(t)
	_, err := e.uc.SearchStoredMessages("user-1", "   ", 10)
	assert.True(t, domain.IsValidationError(err))
}
