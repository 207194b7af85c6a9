// Package gmail backs the mail store with the Gmail REST API. Labels
// stand in for folders: INBOX is the inbox, labels named "INBOX/..." are
// its subfolders, and SENT plays the Sent Items role. Shared mailboxes
// map to delegated accounts addressed by their email.
package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	netmail "net/mail"
	"strings"
	"time"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/droid-bg/Outlook-MCP-Server/internal/logger"
	"github.com/droid-bg/Outlook-MCP-Server/internal/model"
	"github.com/droid-bg/Outlook-MCP-Server/internal/store"
)

// ErrNotConnected is returned when a session method runs before Open or
// after Close.
var ErrNotConnected = errors.New("gmail: not connected")

const (
	inboxLabel = "INBOX"
	sentLabel  = "SENT"
)

// wellKnownFolders maps conventional folder names onto Gmail system
// labels.
var wellKnownFolders = map[string]string{
	"inbox":      inboxLabel,
	"sent items": sentLabel,
	"sent":       sentLabel,
}

type Store struct {
	accessToken string
	logger      *logger.Logger

	service      *gmail.Service
	profileEmail string
}

func NewStore(accessToken string, log *logger.Logger) *Store {
	return &Store{
		accessToken: accessToken,
		logger:      log,
	}
}

type oauth2Transport struct {
	token string
}

func (t *oauth2Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("Authorization", "Bearer "+t.token)
	return http.DefaultTransport.RoundTrip(req)
}

func (s *Store) Open(ctx context.Context) error {
	httpClient := &http.Client{
		Transport: &oauth2Transport{token: s.accessToken},
	}

	service, err := gmail.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return fmt.Errorf("failed to create Gmail service: %w", err)
	}

	profile, err := service.Users.GetProfile("me").Do()
	if err != nil {
		return fmt.Errorf("failed to verify Gmail access: %w", err)
	}

	s.service = service
	s.profileEmail = profile.EmailAddress
	return nil
}

func (s *Store) Ping() error {
	if s.service == nil {
		return ErrNotConnected
	}
	_, err := s.service.Users.GetProfile("me").Do()
	return err
}

func (s *Store) Close() error {
	s.service = nil
	return nil
}

func (s *Store) Personal() (store.Mailbox, error) {
	if s.service == nil {
		return nil, ErrNotConnected
	}
	return &mailbox{st: s, userID: "me", display: s.profileEmail}, nil
}

// ResolveShared addresses a delegated account directly by email. The
// probe fails when the token has no delegated access to it.
func (s *Store) ResolveShared(address string) (store.Mailbox, error) {
	if s.service == nil {
		return nil, ErrNotConnected
	}
	profile, err := s.service.Users.GetProfile(address).Do()
	if err != nil {
		return nil, fmt.Errorf("no delegated access to %s: %w", address, err)
	}
	return &mailbox{st: s, userID: address, display: profile.EmailAddress}, nil
}

type mailbox struct {
	st      *Store
	userID  string
	display string
}

func (m *mailbox) DisplayName() string { return m.display }

func (m *mailbox) Inbox() (store.Folder, error) {
	if m.st.service == nil {
		return nil, ErrNotConnected
	}
	return &folder{st: m.st, userID: m.userID, labelID: inboxLabel, name: "Inbox"}, nil
}

func (m *mailbox) FolderByName(name string) (store.Folder, error) {
	if m.st.service == nil {
		return nil, ErrNotConnected
	}
	if labelID, ok := wellKnownFolders[strings.ToLower(name)]; ok {
		return &folder{st: m.st, userID: m.userID, labelID: labelID, name: name}, nil
	}

	labels, err := m.st.service.Users.Labels.List(m.userID).Do()
	if err != nil {
		return nil, fmt.Errorf("listing labels: %w", err)
	}
	for _, label := range labels.Labels {
		if strings.EqualFold(label.Name, name) {
			return &folder{st: m.st, userID: m.userID, labelID: label.Id, name: label.Name}, nil
		}
	}
	return nil, nil
}

type folder struct {
	st      *Store
	userID  string
	labelID string
	name    string
}

func (f *folder) Name() string { return f.name }

// Subfolders treats user labels named "<this>/<child>" as children, the
// way Gmail itself nests them.
func (f *folder) Subfolders() ([]store.Folder, error) {
	if f.st.service == nil {
		return nil, ErrNotConnected
	}
	labels, err := f.st.service.Users.Labels.List(f.userID).Do()
	if err != nil {
		return nil, fmt.Errorf("listing labels: %w", err)
	}

	prefix := strings.ToUpper(f.name) + "/"
	var subs []store.Folder
	for _, label := range labels.Labels {
		if label.Type != "user" {
			continue
		}
		rest, ok := strings.CutPrefix(strings.ToUpper(label.Name), prefix)
		if !ok || strings.Contains(rest, "/") {
			continue
		}
		subs = append(subs, &folder{
			st:      f.st,
			userID:  f.userID,
			labelID: label.Id,
			name:    label.Name,
		})
	}
	return subs, nil
}

func (f *folder) Search(text string, subjectOnly bool, limit int) ([]*model.MailRecord, error) {
	service := f.st.service
	if service == nil {
		return nil, ErrNotConnected
	}

	query := fmt.Sprintf("%q", text)
	if subjectOnly {
		query = fmt.Sprintf("subject:%q", text)
	}

	call := service.Users.Messages.List(f.userID).Q(query).LabelIds(f.labelID)
	if limit > 0 {
		call = call.MaxResults(int64(limit))
	}
	list, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	var records []*model.MailRecord
	for _, msg := range list.Messages {
		message, err := service.Users.Messages.Get(f.userID, msg.Id).Format("full").Do()
		if err != nil {
			f.st.logger.Error("Failed to get message:", err)
			continue
		}
		records = append(records, f.recordFromMessage(message))
	}
	return records, nil
}

func (f *folder) recordFromMessage(message *gmail.Message) *model.MailRecord {
	record := &model.MailRecord{
		EntryID:    message.Id,
		FolderName: f.name,
		Importance: model.ImportanceNormal,
		Size:       message.SizeEstimate,
	}

	for _, labelID := range message.LabelIds {
		if labelID == "UNREAD" {
			record.Unread = true
		}
	}

	if message.InternalDate > 0 {
		t := time.Unix(message.InternalDate/1000, 0)
		record.ReceivedAt = &t
	}

	if message.Payload != nil {
		for _, header := range message.Payload.Headers {
			switch header.Name {
			case "Subject":
				record.Subject = header.Value
			case "From":
				record.SenderName, record.SenderEmail = parseAddress(header.Value)
			case "To":
				record.To = parseAddressList(header.Value)
			case "Cc":
				record.CC = parseAddressList(header.Value)
			case "Importance":
				record.Importance = parseImportance(header.Value)
			}
		}
		record.Body = extractBody(message.Payload)
		record.AttachmentCount = countAttachments(message.Payload)
	}

	for _, r := range append(append([]model.Recipient{}, record.To...), record.CC...) {
		if r.Email != "" {
			record.Recipients = append(record.Recipients, r.Email)
		}
	}

	return record
}

func parseAddress(value string) (name, email string) {
	addr, err := netmail.ParseAddress(value)
	if err != nil {
		return strings.TrimSpace(value), ""
	}
	return addr.Name, addr.Address
}

func parseAddressList(value string) []model.Recipient {
	addrs, err := netmail.ParseAddressList(value)
	if err != nil {
		return nil
	}
	out := make([]model.Recipient, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, model.Recipient{Name: a.Name, Email: a.Address})
	}
	return out
}

func parseImportance(value string) int {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "high":
		return model.ImportanceHigh
	case "low":
		return model.ImportanceLow
	default:
		return model.ImportanceNormal
	}
}

// extractBody prefers the text/plain part and falls back to text/html,
// descending into nested multiparts.
func extractBody(payload *gmail.MessagePart) string {
	if len(payload.Parts) > 0 {
		return extractMultipartBody(payload.Parts)
	}
	return decodePart(payload)
}

func extractMultipartBody(parts []*gmail.MessagePart) string {
	var textBody, htmlBody string
	for _, part := range parts {
		switch {
		case part.MimeType == "text/plain" && part.Body != nil && part.Body.Data != "":
			if textBody == "" {
				textBody = decodePart(part)
			}
		case part.MimeType == "text/html" && part.Body != nil && part.Body.Data != "":
			if htmlBody == "" {
				htmlBody = decodePart(part)
			}
		case len(part.Parts) > 0:
			if nested := extractMultipartBody(part.Parts); nested != "" && textBody == "" {
				textBody = nested
			}
		}
	}
	if textBody != "" {
		return textBody
	}
	return htmlBody
}

func decodePart(part *gmail.MessagePart) string {
	if part.Body == nil || part.Body.Data == "" {
		return ""
	}
	decoded, err := base64.URLEncoding.DecodeString(part.Body.Data)
	if err != nil {
		return ""
	}
	return string(decoded)
}

func countAttachments(payload *gmail.MessagePart) int {
	count := 0
	for _, part := range payload.Parts {
		if part.Filename != "" {
			count++
		}
		count += countAttachments(part)
	}
	return count
}
