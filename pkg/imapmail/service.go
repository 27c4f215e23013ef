// Package imapmail implements the IMAP provider adapter. IMAP servers expose
// no conversation ids, so messages from this provider carry an empty thread
// id and are grouped downstream by participant set. External ids are RFC
// Message-ID values.
package imapmail

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"sort"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"

	authdomain "dealsync-backend/internal/auth/domain"
	commsdomain "dealsync-backend/internal/comms/domain"
	"dealsync-backend/pkg/crypto"
	"dealsync-backend/pkg/htmltext"
)

const ProviderName = "imap"

// Mailboxes excluded from container scans, matched case-insensitively.
var excludedMailboxes = []string{"trash", "spam", "junk", "drafts", "deleted"}

type Service struct {
	encryptionKey string
	dialTimeout   time.Duration
}

// NewService creates the IMAP adapter. encryptionKey decrypts stored account
// passwords.
func NewService(encryptionKey string) *Service {
	return &Service{
		encryptionKey: encryptionKey,
		dialTimeout:   30 * time.Second,
	}
}

func (s *Service) Name() string { return ProviderName }

// Session validates the user's IMAP credential by connecting once, then
// returns a session that dials per call. Fails with an AuthError when no
// credential exists or login is rejected.
func (s *Service) Session(ctx context.Context, user *authdomain.User) (commsdomain.ProviderSession, error) {
	if user == nil || !user.HasImap() {
		return nil, &commsdomain.AuthError{Provider: ProviderName, Message: "no imap credential for user"}
	}

	password, err := crypto.Decrypt(user.ImapPassword, s.encryptionKey)
	if err != nil {
		return nil, &commsdomain.AuthError{Provider: ProviderName, Message: fmt.Sprintf("failed to decrypt password: %v", err)}
	}

	sess := &session{
		addr:        fmt.Sprintf("%s:%d", user.ImapServer, user.ImapPort),
		username:    user.ImapUsername,
		password:    password,
		dialTimeout: s.dialTimeout,
	}

	c, err := sess.connect()
	if err != nil {
		return nil, err
	}
	_ = c.Logout()

	return sess, nil
}

type session struct {
	addr        string
	username    string
	password    string
	dialTimeout time.Duration
}

// connect dials and authenticates one IMAP connection. Callers own Logout.
func (s *session) connect() (*client.Client, error) {
	dialer := &net.Dialer{Timeout: s.dialTimeout}
	conn, err := tls.DialWithDialer(dialer, "tcp", s.addr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", s.addr, err)
	}

	c, err := client.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create IMAP client: %w", err)
	}

	if err := c.Login(s.username, s.password); err != nil {
		_ = c.Logout()
		return nil, &commsdomain.AuthError{Provider: ProviderName, Message: fmt.Sprintf("login rejected: %v", err)}
	}

	return c, nil
}

func (s *session) SearchByContacts(ctx context.Context, addresses []string, since time.Time, maxResults int) ([]*commsdomain.RawMessage, error) {
	if len(addresses) == 0 {
		return nil, nil
	}

	crits := make([]*imap.SearchCriteria, 0, len(addresses)*2)
	for _, a := range addresses {
		crits = append(crits, headerCriteria("From", a, since), headerCriteria("To", a, since))
	}

	return s.searchMailbox(ctx, "INBOX", orCriteria(crits), maxResults)
}

func (s *session) SearchSentTo(ctx context.Context, addresses []string, limit int, since time.Time) ([]*commsdomain.RawMessage, error) {
	if len(addresses) == 0 {
		return nil, nil
	}

	crits := make([]*imap.SearchCriteria, 0, len(addresses))
	for _, a := range addresses {
		crits = append(crits, headerCriteria("To", a, since))
	}

	sentBox, err := s.findSentMailbox()
	if err != nil {
		return nil, err
	}
	if sentBox == "" {
		return nil, nil
	}

	return s.searchMailbox(ctx, sentBox, orCriteria(crits), limit)
}

func (s *session) Containers(ctx context.Context) ([]commsdomain.Container, error) {
	c, err := s.connect()
	if err != nil {
		return nil, err
	}
	defer c.Logout()

	mailboxes := make(chan *imap.MailboxInfo, 20)
	done := make(chan error, 1)
	go func() {
		done <- c.List("", "*", mailboxes)
	}()

	var containers []commsdomain.Container
	for m := range mailboxes {
		if isExcludedMailbox(m.Name) {
			continue
		}
		containers = append(containers, commsdomain.Container{ID: m.Name, Name: m.Name})
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to list mailboxes: %w", err)
	}
	return containers, nil
}

func (s *session) SearchContainer(ctx context.Context, containerID string, since time.Time, maxResults int) ([]*commsdomain.RawMessage, error) {
	criteria := imap.NewSearchCriteria()
	if !since.IsZero() {
		criteria.Since = since
	}
	return s.searchMailbox(ctx, containerID, criteria, maxResults)
}

// MessageByID locates a message by its Message-ID header, scanning all
// non-excluded mailboxes.
func (s *session) MessageByID(ctx context.Context, externalID string) (*commsdomain.RawMessage, error) {
	containers, err := s.Containers(ctx)
	if err != nil {
		return nil, err
	}

	criteria := imap.NewSearchCriteria()
	criteria.Header = textproto.MIMEHeader{"Message-Id": {externalID}}

	for _, container := range containers {
		msgs, err := s.searchMailbox(ctx, container.ID, criteria, 1)
		if err != nil {
			continue
		}
		if len(msgs) > 0 {
			return msgs[0], nil
		}
	}
	return nil, &commsdomain.NotFoundError{Kind: "message", ID: externalID}
}

func (s *session) AttachmentMetadata(ctx context.Context, externalID string) ([]commsdomain.RawAttachment, error) {
	msg, err := s.MessageByID(ctx, externalID)
	if err != nil {
		return nil, err
	}
	return msg.Attachments, nil
}

func (s *session) AttachmentContent(ctx context.Context, externalID, attachmentID string) ([]byte, error) {
	content, err := s.fetchAttachment(ctx, externalID, attachmentID)
	if err != nil {
		return nil, err
	}
	return content, nil
}

func (s *session) fetchAttachment(ctx context.Context, externalID, attachmentID string) ([]byte, error) {
	containers, err := s.Containers(ctx)
	if err != nil {
		return nil, err
	}

	criteria := imap.NewSearchCriteria()
	criteria.Header = textproto.MIMEHeader{"Message-Id": {externalID}}

	for _, container := range containers {
		data, found, err := s.attachmentFromMailbox(container.ID, criteria, attachmentID)
		if err != nil {
			continue
		}
		if found {
			return data, nil
		}
	}
	return nil, &commsdomain.NotFoundError{Kind: "attachment", ID: attachmentID}
}

func (s *session) attachmentFromMailbox(mailbox string, criteria *imap.SearchCriteria, attachmentID string) ([]byte, bool, error) {
	c, err := s.connect()
	if err != nil {
		return nil, false, err
	}
	defer c.Logout()

	raws, err := fetchRaw(c, mailbox, criteria, 1)
	if err != nil || len(raws) == 0 {
		return nil, false, err
	}

	for _, att := range raws[0].attachments {
		if att.meta.ID == attachmentID {
			return att.content, true, nil
		}
	}
	return nil, false, nil
}

// searchMailbox runs one criteria search against one mailbox, returning the
// newest maxResults messages.
func (s *session) searchMailbox(ctx context.Context, mailbox string, criteria *imap.SearchCriteria, maxResults int) ([]*commsdomain.RawMessage, error) {
	c, err := s.connect()
	if err != nil {
		return nil, err
	}
	defer c.Logout()

	raws, err := fetchRaw(c, mailbox, criteria, maxResults)
	if err != nil {
		return nil, err
	}

	messages := make([]*commsdomain.RawMessage, 0, len(raws))
	for _, r := range raws {
		messages = append(messages, r.message)
	}
	return messages, nil
}

func (s *session) findSentMailbox() (string, error) {
	c, err := s.connect()
	if err != nil {
		return "", err
	}
	defer c.Logout()

	mailboxes := make(chan *imap.MailboxInfo, 20)
	done := make(chan error, 1)
	go func() {
		done <- c.List("", "*", mailboxes)
	}()

	sent := ""
	for m := range mailboxes {
		lower := strings.ToLower(m.Name)
		if lower == "sent" || strings.Contains(lower, "sent") {
			if sent == "" {
				sent = m.Name
			}
		}
	}
	if err := <-done; err != nil {
		return "", fmt.Errorf("failed to list mailboxes: %w", err)
	}
	return sent, nil
}

// fetched pairs a normalized message with its downloaded attachment bytes.
type fetchedAttachment struct {
	meta    commsdomain.RawAttachment
	content []byte
}

type fetchedMessage struct {
	message     *commsdomain.RawMessage
	attachments []fetchedAttachment
}

func fetchRaw(c *client.Client, mailbox string, criteria *imap.SearchCriteria, maxResults int) ([]*fetchedMessage, error) {
	if _, err := c.Select(mailbox, true); err != nil {
		return nil, fmt.Errorf("failed to select %s: %w", mailbox, err)
	}

	uids, err := c.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", mailbox, err)
	}
	if len(uids) == 0 {
		return nil, nil
	}

	// Keep the newest maxResults UIDs.
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	if maxResults > 0 && len(uids) > maxResults {
		uids = uids[len(uids)-maxResults:]
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, section.FetchItem()}

	msgCh := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqSet, items, msgCh)
	}()

	var out []*fetchedMessage
	for msg := range msgCh {
		parsed, err := parseMessage(msg, section)
		if err != nil {
			// Unparseable messages are skipped, not fatal.
			continue
		}
		out = append(out, parsed)
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch from %s: %w", mailbox, err)
	}
	return out, nil
}

func parseMessage(msg *imap.Message, section *imap.BodySectionName) (*fetchedMessage, error) {
	if msg.Envelope == nil {
		return nil, fmt.Errorf("message without envelope")
	}

	raw := &commsdomain.RawMessage{
		ExternalID: msg.Envelope.MessageId,
		Subject:    msg.Envelope.Subject,
		SentAt:     msg.Envelope.Date,
		Kind:       commsdomain.KindEmail,
	}
	if len(msg.Envelope.From) > 0 {
		raw.From = formatAddress(msg.Envelope.From[0])
	}
	for _, a := range msg.Envelope.To {
		raw.To = append(raw.To, formatAddress(a))
	}
	for _, a := range msg.Envelope.Cc {
		raw.Cc = append(raw.Cc, formatAddress(a))
	}

	fetched := &fetchedMessage{message: raw}

	body := msg.GetBody(section)
	if body == nil {
		return fetched, nil
	}

	mr, err := mail.CreateReader(body)
	if err != nil {
		return fetched, nil
	}

	attIdx := 0
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			data, err := io.ReadAll(part.Body)
			if err != nil {
				continue
			}
			switch contentType {
			case "text/html":
				raw.BodyHTML = string(data)
			case "text/plain":
				raw.BodyText = string(data)
			}
		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			contentType, _, _ := h.ContentType()
			data, err := io.ReadAll(part.Body)
			if err != nil {
				continue
			}
			meta := commsdomain.RawAttachment{
				ID:       fmt.Sprintf("part-%d", attIdx),
				Filename: filename,
				MimeType: contentType,
				Size:     int64(len(data)),
			}
			attIdx++
			raw.Attachments = append(raw.Attachments, meta)
			fetched.attachments = append(fetched.attachments, fetchedAttachment{meta: meta, content: data})
		}
	}

	if raw.BodyText == "" && raw.BodyHTML != "" {
		raw.BodyText = htmltext.ToText(raw.BodyHTML)
	}
	raw.HasAttachments = len(raw.Attachments) > 0

	return fetched, nil
}

func formatAddress(a *imap.Address) string {
	if a == nil {
		return ""
	}
	return fmt.Sprintf("%s@%s", a.MailboxName, a.HostName)
}

func headerCriteria(field, value string, since time.Time) *imap.SearchCriteria {
	criteria := imap.NewSearchCriteria()
	criteria.Header = textproto.MIMEHeader{field: {value}}
	if !since.IsZero() {
		criteria.Since = since
	}
	return criteria
}

// orCriteria folds criteria into nested IMAP OR pairs.
func orCriteria(crits []*imap.SearchCriteria) *imap.SearchCriteria {
	if len(crits) == 0 {
		return imap.NewSearchCriteria()
	}
	result := crits[0]
	for _, c := range crits[1:] {
		parent := imap.NewSearchCriteria()
		parent.Or = [][2]*imap.SearchCriteria{{result, c}}
		result = parent
	}
	return result
}

func isExcludedMailbox(name string) bool {
	lower := strings.ToLower(name)
	for _, ex := range excludedMailboxes {
		if strings.Contains(lower, ex) {
			return true
		}
	}
	return false
}
