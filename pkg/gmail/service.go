// Package gmail implements the Gmail provider adapter. All searches are
// normalized into the pipeline's RawMessage shape; nothing downstream
// branches on Gmail specifics.
package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	authdomain "dealsync-backend/internal/auth/domain"
	commsdomain "dealsync-backend/internal/comms/domain"
	"dealsync-backend/pkg/htmltext"
)

const ProviderName = "gmail"

// System and automatic categorization labels excluded from container scans.
var excludedLabels = map[string]bool{
	"TRASH":                true,
	"SPAM":                 true,
	"DRAFT":                true,
	"CATEGORY_PERSONAL":    true,
	"CATEGORY_SOCIAL":      true,
	"CATEGORY_PROMOTIONS":  true,
	"CATEGORY_UPDATES":     true,
	"CATEGORY_FORUMS":      true,
	"CHAT":                 true,
	"UNREAD":               true,
	"STARRED":              true,
	"IMPORTANT":            true,
}

type Service struct {
	clientID     string
	clientSecret string
	saveTokens   authdomain.TokenSaver
}

// notifyTokenSource wraps an oauth2 token source to persist refreshed tokens.
type notifyTokenSource struct {
	src      oauth2.TokenSource
	current  *oauth2.Token
	callback authdomain.TokenUpdateFunc
}

func (s *notifyTokenSource) Token() (*oauth2.Token, error) {
	t, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	if s.callback != nil && s.current.AccessToken != t.AccessToken {
		s.current = t
		if err := s.callback(authdomain.TokenUpdate{
			AccessToken:  t.AccessToken,
			RefreshToken: t.RefreshToken,
			Expiry:       t.Expiry,
		}); err != nil {
			log.Printf("[Gmail] Failed to persist refreshed token: %v", err)
		}
	}
	return t, nil
}

// NewService creates the Gmail adapter. saveTokens persists tokens that the
// underlying client refreshes mid-session.
func NewService(clientID, clientSecret string, saveTokens authdomain.TokenSaver) *Service {
	return &Service{
		clientID:     clientID,
		clientSecret: clientSecret,
		saveTokens:   saveTokens,
	}
}

func (s *Service) Name() string { return ProviderName }

// Session builds a Gmail client bound to the user's stored tokens. Fails with
// an AuthError when the user has no Gmail credential.
func (s *Service) Session(ctx context.Context, user *authdomain.User) (commsdomain.ProviderSession, error) {
	if user == nil || !user.HasGmail() {
		return nil, &commsdomain.AuthError{Provider: ProviderName, Message: "no gmail credential for user"}
	}

	token := &oauth2.Token{
		AccessToken:  user.GmailAccessToken,
		RefreshToken: user.GmailRefreshToken,
		TokenType:    "Bearer",
		Expiry:       user.GmailTokenExpiry,
	}

	config := &oauth2.Config{
		ClientID:     s.clientID,
		ClientSecret: s.clientSecret,
		Endpoint:     google.Endpoint,
	}

	var callback authdomain.TokenUpdateFunc
	if s.saveTokens != nil {
		userID := user.ID
		callback = func(update authdomain.TokenUpdate) error {
			return s.saveTokens(userID, update)
		}
	}

	wrappedSource := &notifyTokenSource{
		src:      config.TokenSource(ctx, token),
		current:  token,
		callback: callback,
	}

	client := oauth2.NewClient(ctx, wrappedSource)

	srv, err := gmail.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %v", err)
	}

	return &session{srv: srv}, nil
}

type session struct {
	srv *gmail.Service
}

const apiUser = "me"

// buildContactQuery builds a bidirectional Gmail search query over addresses.
func buildContactQuery(addresses []string, since time.Time) string {
	terms := make([]string, 0, len(addresses)*2)
	for _, a := range addresses {
		terms = append(terms, "from:"+a, "to:"+a)
	}
	q := "(" + strings.Join(terms, " OR ") + ")"
	if !since.IsZero() {
		q += fmt.Sprintf(" after:%d", since.Unix())
	}
	return q
}

func (s *session) SearchByContacts(ctx context.Context, addresses []string, since time.Time, maxResults int) ([]*commsdomain.RawMessage, error) {
	if len(addresses) == 0 {
		return nil, nil
	}
	return s.search(ctx, buildContactQuery(addresses, since), maxResults)
}

func (s *session) SearchSentTo(ctx context.Context, addresses []string, limit int, since time.Time) ([]*commsdomain.RawMessage, error) {
	if len(addresses) == 0 {
		return nil, nil
	}
	terms := make([]string, 0, len(addresses))
	for _, a := range addresses {
		terms = append(terms, "to:"+a)
	}
	q := "in:sent (" + strings.Join(terms, " OR ") + ")"
	if !since.IsZero() {
		q += fmt.Sprintf(" after:%d", since.Unix())
	}
	return s.search(ctx, q, limit)
}

func (s *session) Containers(ctx context.Context) ([]commsdomain.Container, error) {
	labelsResp, err := s.srv.Users.Labels.List(apiUser).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve labels: %w", err)
	}

	containers := make([]commsdomain.Container, 0, len(labelsResp.Labels))
	for _, label := range labelsResp.Labels {
		if excludedLabels[label.Id] {
			continue
		}
		if label.Type != "system" && label.Type != "user" {
			continue
		}
		containers = append(containers, commsdomain.Container{
			ID:   label.Id,
			Name: label.Name,
		})
	}
	return containers, nil
}

func (s *session) SearchContainer(ctx context.Context, containerID string, since time.Time, maxResults int) ([]*commsdomain.RawMessage, error) {
	q := "label:" + containerID
	if !since.IsZero() {
		q += fmt.Sprintf(" after:%d", since.Unix())
	}
	return s.search(ctx, q, maxResults)
}

// search pages through Messages.List for q, fetching each message in full,
// until maxResults is reached or pages run out.
func (s *session) search(ctx context.Context, q string, maxResults int) ([]*commsdomain.RawMessage, error) {
	if maxResults <= 0 {
		maxResults = 100
	}

	messages := make([]*commsdomain.RawMessage, 0, maxResults)
	pageToken := ""

	for len(messages) < maxResults {
		pageSize := int64(maxResults - len(messages))
		if pageSize > 500 {
			pageSize = 500 // Gmail API maximum
		}

		listQuery := s.srv.Users.Messages.List(apiUser).Q(q).MaxResults(pageSize).Context(ctx)
		if pageToken != "" {
			listQuery = listQuery.PageToken(pageToken)
		}

		resp, err := listQuery.Do()
		if err != nil {
			return nil, fmt.Errorf("unable to retrieve messages: %w", err)
		}

		for _, msg := range resp.Messages {
			if len(messages) >= maxResults {
				break
			}
			fullMsg, err := s.srv.Users.Messages.Get(apiUser, msg.Id).Format("full").Context(ctx).Do()
			if err != nil {
				// Skip messages deleted between list and get; anything
				// else aborts the search.
				if isNotFound(err) {
					continue
				}
				return nil, fmt.Errorf("unable to retrieve message %s: %w", msg.Id, err)
			}
			messages = append(messages, convertMessage(fullMsg))
		}

		pageToken = resp.NextPageToken
		if pageToken == "" {
			break
		}
	}

	return messages, nil
}

func (s *session) MessageByID(ctx context.Context, externalID string) (*commsdomain.RawMessage, error) {
	msg, err := s.srv.Users.Messages.Get(apiUser, externalID).Format("full").Context(ctx).Do()
	if err != nil {
		if isNotFound(err) {
			return nil, &commsdomain.NotFoundError{Kind: "message", ID: externalID}
		}
		return nil, fmt.Errorf("unable to retrieve message: %w", err)
	}
	return convertMessage(msg), nil
}

func (s *session) AttachmentMetadata(ctx context.Context, externalID string) ([]commsdomain.RawAttachment, error) {
	msg, err := s.srv.Users.Messages.Get(apiUser, externalID).Format("full").Context(ctx).Do()
	if err != nil {
		if isNotFound(err) {
			return nil, &commsdomain.NotFoundError{Kind: "message", ID: externalID}
		}
		return nil, fmt.Errorf("unable to retrieve message details: %w", err)
	}
	return collectAttachments(msg.Payload), nil
}

func (s *session) AttachmentContent(ctx context.Context, externalID, attachmentID string) ([]byte, error) {
	attachPart, err := s.srv.Users.Messages.Attachments.Get(apiUser, externalID, attachmentID).Context(ctx).Do()
	if err != nil {
		if isNotFound(err) {
			return nil, &commsdomain.NotFoundError{Kind: "attachment", ID: attachmentID}
		}
		return nil, fmt.Errorf("unable to retrieve attachment: %w", err)
	}

	data, err := base64.URLEncoding.DecodeString(attachPart.Data)
	if err != nil {
		return nil, fmt.Errorf("unable to decode attachment data: %w", err)
	}
	return data, nil
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == 404
	}
	return false
}

// Helper functions

func convertMessage(msg *gmail.Message) *commsdomain.RawMessage {
	from := getHeader(msg.Payload.Headers, "From")
	to := splitAddresses(getHeader(msg.Payload.Headers, "To"))
	cc := splitAddresses(getHeader(msg.Payload.Headers, "Cc"))

	htmlBody, plainBody := getBodies(msg.Payload)
	attachments := collectAttachments(msg.Payload)

	return &commsdomain.RawMessage{
		ExternalID:     msg.Id,
		ThreadID:       msg.ThreadId,
		From:           extractAddress(from),
		To:             to,
		Cc:             cc,
		Subject:        getHeader(msg.Payload.Headers, "Subject"),
		BodyHTML:       htmlBody,
		BodyText:       plainOrDerived(plainBody, htmlBody),
		SentAt:         time.Unix(msg.InternalDate/1000, 0),
		HasAttachments: len(attachments) > 0,
		Attachments:    attachments,
		Kind:           commsdomain.KindEmail,
	}
}

func plainOrDerived(plain, html string) string {
	if plain != "" {
		return plain
	}
	return htmltext.ToText(html)
}

// extractAddress reduces "Name <email@example.com>" to the bare address.
func extractAddress(header string) string {
	header = strings.TrimSpace(header)
	if start := strings.Index(header, "<"); start >= 0 {
		if end := strings.Index(header[start:], ">"); end > 0 {
			return strings.TrimSpace(header[start+1 : start+end])
		}
	}
	return header
}

func splitAddresses(header string) []string {
	if header == "" {
		return nil
	}
	parts := strings.Split(header, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if addr := extractAddress(p); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

func getHeader(headers []*gmail.MessagePartHeader, name string) string {
	for _, header := range headers {
		if strings.EqualFold(header.Name, name) {
			return header.Value
		}
	}
	return ""
}

func getBodies(payload *gmail.MessagePart) (html, plain string) {
	if payload.Body != nil && payload.Body.Data != "" {
		data, err := base64.URLEncoding.DecodeString(payload.Body.Data)
		if err == nil {
			if payload.MimeType == "text/html" {
				return string(data), ""
			}
			return "", string(data)
		}
	}

	var findBody func(parts []*gmail.MessagePart)
	findBody = func(parts []*gmail.MessagePart) {
		for _, part := range parts {
			if part.Body != nil && part.Body.Data != "" {
				data, err := base64.URLEncoding.DecodeString(part.Body.Data)
				if err == nil {
					switch part.MimeType {
					case "text/html":
						html = string(data)
					case "text/plain":
						plain = string(data)
					}
				}
			}
			if len(part.Parts) > 0 {
				findBody(part.Parts)
			}
		}
	}
	findBody(payload.Parts)
	return html, plain
}

func collectAttachments(payload *gmail.MessagePart) []commsdomain.RawAttachment {
	var attachments []commsdomain.RawAttachment

	var findAttachments func(parts []*gmail.MessagePart)
	findAttachments = func(parts []*gmail.MessagePart) {
		for _, part := range parts {
			if part.Filename != "" && part.Body != nil && part.Body.AttachmentId != "" {
				attachments = append(attachments, commsdomain.RawAttachment{
					ID:       part.Body.AttachmentId,
					Filename: part.Filename,
					MimeType: part.MimeType,
					Size:     part.Body.Size,
				})
			}
			if len(part.Parts) > 0 {
				findAttachments(part.Parts)
			}
		}
	}
	if payload != nil {
		findAttachments(payload.Parts)
	}
	return attachments
}
