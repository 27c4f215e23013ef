package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	authdomain "dealsync-backend/internal/auth/domain"
	"dealsync-backend/internal/comms/domain"
	txndomain "dealsync-backend/internal/transaction/domain"
)

// In-memory fakes for the repository and provider interfaces. Counters let
// tests assert call patterns without a mocking framework.

type fakeUserRepo struct {
	users map[string]*authdomain.User
}

func newFakeUserRepo(users ...*authdomain.User) *fakeUserRepo {
	r := &fakeUserRepo{users: make(map[string]*authdomain.User)}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *fakeUserRepo) Create(user *authdomain.User) error {
	r.users[user.ID] = user
	return nil
}

func (r *fakeUserRepo) FindByID(id string) (*authdomain.User, error) {
	return r.users[id], nil
}

func (r *fakeUserRepo) FindByEmail(email string) (*authdomain.User, error) {
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (r *fakeUserRepo) Update(user *authdomain.User) error {
	r.users[user.ID] = user
	return nil
}

func (r *fakeUserRepo) SaveGmailTokens(userID string, update authdomain.TokenUpdate) error {
	if u, ok := r.users[userID]; ok {
		u.GmailAccessToken = update.AccessToken
		u.GmailTokenExpiry = update.Expiry
	}
	return nil
}

type fakeTxnRepo struct {
	txns        map[string]*txndomain.Transaction
	assignments []*txndomain.ContactAssignment
	threadCount map[string]int
}

func newFakeTxnRepo(txns ...*txndomain.Transaction) *fakeTxnRepo {
	r := &fakeTxnRepo{
		txns:        make(map[string]*txndomain.Transaction),
		threadCount: make(map[string]int),
	}
	for _, t := range txns {
		r.txns[t.ID] = t
	}
	return r
}

func (r *fakeTxnRepo) FindByID(id string) (*txndomain.Transaction, error) {
	return r.txns[id], nil
}

func (r *fakeTxnRepo) Create(txn *txndomain.Transaction) error {
	r.txns[txn.ID] = txn
	return nil
}

func (r *fakeTxnRepo) UpdateTextThreadCount(id string, count int) error {
	r.threadCount[id] = count
	if t, ok := r.txns[id]; ok {
		t.TextThreadCount = count
	}
	return nil
}

func (r *fakeTxnRepo) ListAssignments(transactionID string) ([]*txndomain.ContactAssignment, error) {
	var out []*txndomain.ContactAssignment
	for _, a := range r.assignments {
		if a.TransactionID == transactionID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *fakeTxnRepo) CreateAssignment(assignment *txndomain.ContactAssignment) error {
	r.assignments = append(r.assignments, assignment)
	return nil
}

type fakeContactRepo struct {
	contacts map[string]*txndomain.Contact
	emails   map[string][]*txndomain.ContactEmail
	phones   map[string][]*txndomain.ContactPhone
}

func newFakeContactRepo() *fakeContactRepo {
	return &fakeContactRepo{
		contacts: make(map[string]*txndomain.Contact),
		emails:   make(map[string][]*txndomain.ContactEmail),
		phones:   make(map[string][]*txndomain.ContactPhone),
	}
}

func (r *fakeContactRepo) FindByID(id string) (*txndomain.Contact, error) {
	return r.contacts[id], nil
}

func (r *fakeContactRepo) Create(contact *txndomain.Contact) error {
	r.contacts[contact.ID] = contact
	return nil
}

func (r *fakeContactRepo) ListEmails(contactID string) ([]*txndomain.ContactEmail, error) {
	return r.emails[contactID], nil
}

func (r *fakeContactRepo) ListPhones(contactID string) ([]*txndomain.ContactPhone, error) {
	return r.phones[contactID], nil
}

func (r *fakeContactRepo) AddEmail(email *txndomain.ContactEmail) error {
	r.emails[email.ContactID] = append(r.emails[email.ContactID], email)
	return nil
}

func (r *fakeContactRepo) AddPhone(phone *txndomain.ContactPhone) error {
	r.phones[phone.ContactID] = append(r.phones[phone.ContactID], phone)
	return nil
}

// addContact wires a contact with addresses and an assignment in one call.
func addContact(contacts *fakeContactRepo, txns *fakeTxnRepo, contactID, userID, transactionID string, emails []string, phones []string) {
	contacts.Create(&txndomain.Contact{ID: contactID, UserID: userID, Name: contactID})
	for i, e := range emails {
		contacts.AddEmail(&txndomain.ContactEmail{ID: fmt.Sprintf("%s-e%d", contactID, i), ContactID: contactID, Address: e})
	}
	for i, p := range phones {
		contacts.AddPhone(&txndomain.ContactPhone{ID: fmt.Sprintf("%s-p%d", contactID, i), ContactID: contactID, Number: p})
	}
	txns.CreateAssignment(&txndomain.ContactAssignment{
		ID:            contactID + "-assign",
		TransactionID: transactionID,
		ContactID:     contactID,
	})
}

type fakeMessageRepo struct {
	messages []*domain.StoredMessage
	nextID   int
}

func (r *fakeMessageRepo) GetByID(id string) (*domain.StoredMessage, error) {
	for _, m := range r.messages {
		if m.ID == id {
			return m, nil
		}
	}
	return nil, nil
}

func (r *fakeMessageRepo) GetByExternalID(userID, provider, externalID string) (*domain.StoredMessage, error) {
	for _, m := range r.messages {
		if m.UserID == userID && m.Provider == provider && m.ExternalID == externalID {
			return m, nil
		}
	}
	return nil, nil
}

func (r *fakeMessageRepo) Create(msg *domain.StoredMessage) error {
	existing, _ := r.GetByExternalID(msg.UserID, msg.Provider, msg.ExternalID)
	if existing != nil {
		return fmt.Errorf("duplicate message %s", msg.ExternalID)
	}
	if msg.ID == "" {
		r.nextID++
		msg.ID = fmt.Sprintf("msg-%d", r.nextID)
	}
	r.messages = append(r.messages, msg)
	return nil
}

func (r *fakeMessageRepo) ListByUser(userID string) ([]*domain.StoredMessage, error) {
	var out []*domain.StoredMessage
	for _, m := range r.messages {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *fakeMessageRepo) ListByThread(userID, threadID string) ([]*domain.StoredMessage, error) {
	var out []*domain.StoredMessage
	for _, m := range r.messages {
		if m.UserID == userID && m.ThreadID == threadID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *fakeMessageRepo) ListMissingAttachments(userID string) ([]*domain.StoredMessage, error) {
	return nil, nil
}

func (r *fakeMessageRepo) CountByUser(userID string) (int64, error) {
	msgs, _ := r.ListByUser(userID)
	return int64(len(msgs)), nil
}

// fakeMessageRepoWithBackfill extends the message repo with a real
// missing-attachment listing backed by a fake attachment repo.
type fakeMessageRepoWithBackfill struct {
	fakeMessageRepo
	attachments *fakeAttachmentRepo
}

func (r *fakeMessageRepoWithBackfill) ListMissingAttachments(userID string) ([]*domain.StoredMessage, error) {
	var out []*domain.StoredMessage
	for _, m := range r.messages {
		if m.UserID != userID || !m.HasAttachments {
			continue
		}
		count, _ := r.attachments.CountByMessage(m.ID)
		if count == 0 {
			out = append(out, m)
		}
	}
	return out, nil
}

type fakeLinkRepo struct {
	links   []*domain.LinkRecord
	ignored []*domain.IgnoredLink
	nextID  int
}

func (r *fakeLinkRepo) ExistsByMessage(transactionID, messageID string) (bool, error) {
	for _, l := range r.links {
		if l.TransactionID == transactionID && l.MessageID == messageID {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeLinkRepo) ExistsByThread(transactionID, threadID string) (bool, error) {
	for _, l := range r.links {
		if l.TransactionID == transactionID && l.ThreadID == threadID && l.ThreadID != "" {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeLinkRepo) Create(link *domain.LinkRecord) error {
	r.nextID++
	link.ID = fmt.Sprintf("link-%d", r.nextID)
	r.links = append(r.links, link)
	return nil
}

func (r *fakeLinkRepo) DeleteByMessage(transactionID, messageID string) error {
	out := r.links[:0]
	for _, l := range r.links {
		if !(l.TransactionID == transactionID && l.MessageID == messageID) {
			out = append(out, l)
		}
	}
	r.links = out
	return nil
}

func (r *fakeLinkRepo) DeleteByThread(transactionID, threadID string) error {
	out := r.links[:0]
	for _, l := range r.links {
		if !(l.TransactionID == transactionID && l.ThreadID == threadID) {
			out = append(out, l)
		}
	}
	r.links = out
	return nil
}

func (r *fakeLinkRepo) ListByTransaction(transactionID string) ([]*domain.LinkRecord, error) {
	var out []*domain.LinkRecord
	for _, l := range r.links {
		if l.TransactionID == transactionID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (r *fakeLinkRepo) IsIgnored(transactionID, sender, subject string, sentAt time.Time) (bool, error) {
	for _, ig := range r.ignored {
		if ig.TransactionID == transactionID && ig.Sender == sender && ig.Subject == subject && ig.SentAt.Equal(sentAt) {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeLinkRepo) CreateIgnored(ignored *domain.IgnoredLink) error {
	r.ignored = append(r.ignored, ignored)
	return nil
}

type fakeAttachmentRepo struct {
	records []*domain.AttachmentRecord
}

func (r *fakeAttachmentRepo) Create(record *domain.AttachmentRecord) error {
	r.records = append(r.records, record)
	return nil
}

func (r *fakeAttachmentRepo) CountByMessage(messageID string) (int64, error) {
	var n int64
	for _, rec := range r.records {
		if rec.MessageID == messageID {
			n++
		}
	}
	return n, nil
}

func (r *fakeAttachmentRepo) ListByMessage(messageID string) ([]*domain.AttachmentRecord, error) {
	var out []*domain.AttachmentRecord
	for _, rec := range r.records {
		if rec.MessageID == messageID {
			out = append(out, rec)
		}
	}
	return out, nil
}

type fakeCursorRepo struct {
	cursors      map[string]*domain.ProviderSyncCursor
	partialSaves []int
}

func newFakeCursorRepo() *fakeCursorRepo {
	return &fakeCursorRepo{cursors: make(map[string]*domain.ProviderSyncCursor)}
}

func (r *fakeCursorRepo) key(userID, provider string) string {
	return userID + "/" + provider
}

func (r *fakeCursorRepo) Get(userID, provider string) (*domain.ProviderSyncCursor, error) {
	return r.cursors[r.key(userID, provider)], nil
}

func (r *fakeCursorRepo) SaveSuccess(userID, provider string, at time.Time) error {
	r.cursors[r.key(userID, provider)] = &domain.ProviderSyncCursor{
		UserID:       userID,
		Provider:     provider,
		LastSyncedAt: at,
	}
	return nil
}

func (r *fakeCursorRepo) SavePartial(userID, provider string, storedSoFar int) error {
	c := r.cursors[r.key(userID, provider)]
	if c == nil {
		c = &domain.ProviderSyncCursor{UserID: userID, Provider: provider}
		r.cursors[r.key(userID, provider)] = c
	}
	c.PartialCount = storedSoFar
	r.partialSaves = append(r.partialSaves, storedSoFar)
	return nil
}

// fakeProvider returns a scripted session. sessionErr simulates missing or
// rejected credentials.
type fakeProvider struct {
	name       string
	session    *fakeSession
	sessionErr error
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Session(ctx context.Context, user *authdomain.User) (domain.ProviderSession, error) {
	if p.sessionErr != nil {
		return nil, p.sessionErr
	}
	return p.session, nil
}

// fakeSession serves scripted fetch results. Errors configured per operation
// are returned on every call, so retry loops exhaust against them.
type fakeSession struct {
	contactResults   []*domain.RawMessage
	contactErr       error
	sentResults      []*domain.RawMessage
	sentErr          error
	containers       []domain.Container
	containersErr    error
	containerResults map[string][]*domain.RawMessage
	containerErrs    map[string]error

	attachmentMeta map[string][]domain.RawAttachment
	attachmentData map[string][]byte
	attachmentErrs map[string]error

	calls map[string]int
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		containerResults: make(map[string][]*domain.RawMessage),
		containerErrs:    make(map[string]error),
		attachmentMeta:   make(map[string][]domain.RawAttachment),
		attachmentData:   make(map[string][]byte),
		attachmentErrs:   make(map[string]error),
		calls:            make(map[string]int),
	}
}

func (s *fakeSession) SearchByContacts(ctx context.Context, addresses []string, since time.Time, maxResults int) ([]*domain.RawMessage, error) {
	s.calls["contacts"]++
	if s.contactErr != nil {
		return nil, s.contactErr
	}
	return s.contactResults, nil
}

func (s *fakeSession) SearchSentTo(ctx context.Context, addresses []string, limit int, since time.Time) ([]*domain.RawMessage, error) {
	s.calls["sent"]++
	if s.sentErr != nil {
		return nil, s.sentErr
	}
	return s.sentResults, nil
}

func (s *fakeSession) Containers(ctx context.Context) ([]domain.Container, error) {
	s.calls["containers"]++
	if s.containersErr != nil {
		return nil, s.containersErr
	}
	return s.containers, nil
}

func (s *fakeSession) SearchContainer(ctx context.Context, containerID string, since time.Time, maxResults int) ([]*domain.RawMessage, error) {
	s.calls["container:"+containerID]++
	if err := s.containerErrs[containerID]; err != nil {
		return nil, err
	}
	return s.containerResults[containerID], nil
}

func (s *fakeSession) MessageByID(ctx context.Context, externalID string) (*domain.RawMessage, error) {
	return nil, &domain.NotFoundError{Kind: "message", ID: externalID}
}

func (s *fakeSession) AttachmentMetadata(ctx context.Context, externalID string) ([]domain.RawAttachment, error) {
	s.calls["meta:"+externalID]++
	if err := s.attachmentErrs[externalID]; err != nil {
		return nil, err
	}
	return s.attachmentMeta[externalID], nil
}

func (s *fakeSession) AttachmentContent(ctx context.Context, externalID, attachmentID string) ([]byte, error) {
	s.calls["content:"+externalID]++
	if err := s.attachmentErrs[externalID]; err != nil {
		return nil, err
	}
	if data, ok := s.attachmentData[attachmentID]; ok {
		return data, nil
	}
	return []byte("attachment " + attachmentID), nil
}

func rawEmail(externalID, threadID, from string, to []string, subject string) *domain.RawMessage {
	return &domain.RawMessage{
		ExternalID: externalID,
		ThreadID:   threadID,
		From:       strings.ToLower(from),
		To:         to,
		Subject:    subject,
		BodyText:   "body of " + subject,
		SentAt:     time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
		Kind:       domain.KindEmail,
	}
}
