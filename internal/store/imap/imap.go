// Package imap backs the mail store with an IMAP4rev2 server. One Store
// is one logged-in IMAP connection; like every store, it is a session
// handle owned by the affinity executor's worker. Shared mailboxes are
// reached through the conventional "Other Users" namespace.
package imap

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/mail"

	"github.com/droid-bg/Outlook-MCP-Server/internal/logger"
	"github.com/droid-bg/Outlook-MCP-Server/internal/model"
	"github.com/droid-bg/Outlook-MCP-Server/internal/store"
)

// ErrNotConnected is returned when a session method runs before Open or
// after Close.
var ErrNotConnected = errors.New("imap: not connected")

const sharedNamespace = "Other Users"

type Store struct {
	host     string
	port     string
	username string
	password string
	useTLS   bool
	logger   *logger.Logger

	client *imapclient.Client
	delim  string
}

func NewStore(host, port, username, password string, useTLS bool, log *logger.Logger) *Store {
	return &Store{
		host:     host,
		port:     port,
		username: username,
		password: password,
		useTLS:   useTLS,
		logger:   log,
		delim:    "/",
	}
}

func (s *Store) Open(_ context.Context) error {
	addr := s.host + ":" + s.port

	var client *imapclient.Client
	var err error
	if s.useTLS {
		client, err = imapclient.DialTLS(addr, nil)
	} else {
		client, err = imapclient.DialStartTLS(addr, nil)
	}
	if err != nil {
		return fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}

	if err := client.Login(s.username, s.password).Wait(); err != nil {
		_ = client.Logout().Wait()
		return fmt.Errorf("authentication failed for %s: %w", s.username, err)
	}

	s.client = client
	s.learnDelimiter()
	return nil
}

// learnDelimiter asks the server for its hierarchy delimiter. Servers
// that report none keep the "/" default.
func (s *Store) learnDelimiter() {
	listings, err := s.client.List("", "", nil).Collect()
	if err != nil {
		s.logger.Debugf("Could not determine hierarchy delimiter: %v", err)
		return
	}
	for _, l := range listings {
		if l.Delim != 0 {
			s.delim = string(l.Delim)
			return
		}
	}
}

func (s *Store) Ping() error {
	if s.client == nil {
		return ErrNotConnected
	}
	return s.client.Noop().Wait()
}

func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}
	err := s.client.Logout().Wait()
	s.client = nil
	return err
}

func (s *Store) Personal() (store.Mailbox, error) {
	if s.client == nil {
		return nil, ErrNotConnected
	}
	return &mailbox{st: s, prefix: "", display: s.username}, nil
}

// ResolveShared maps a shared address to the "Other Users/<address>"
// subtree and verifies the server actually exposes mailboxes under it.
func (s *Store) ResolveShared(address string) (store.Mailbox, error) {
	if s.client == nil {
		return nil, ErrNotConnected
	}
	prefix := sharedNamespace + s.delim + address

	listings, err := s.client.List("", prefix+s.delim+"*", nil).Collect()
	if err != nil {
		return nil, fmt.Errorf("listing shared mailbox %s: %w", address, err)
	}
	if len(listings) == 0 {
		return nil, fmt.Errorf("shared mailbox %s is not visible to %s", address, s.username)
	}
	return &mailbox{st: s, prefix: prefix, display: address}, nil
}

type mailbox struct {
	st      *Store
	prefix  string // empty for the personal account
	display string
}

func (m *mailbox) DisplayName() string { return m.display }

func (m *mailbox) path(name string) string {
	if m.prefix == "" {
		return name
	}
	return m.prefix + m.st.delim + name
}

func (m *mailbox) Inbox() (store.Folder, error) {
	if m.st.client == nil {
		return nil, ErrNotConnected
	}
	return &folder{st: m.st, fullPath: m.path("INBOX")}, nil
}

func (m *mailbox) FolderByName(name string) (store.Folder, error) {
	if m.st.client == nil {
		return nil, ErrNotConnected
	}
	pattern := "%"
	if m.prefix != "" {
		pattern = m.prefix + m.st.delim + "%"
	}
	listings, err := m.st.client.List("", pattern, nil).Collect()
	if err != nil {
		return nil, fmt.Errorf("listing folders: %w", err)
	}
	for _, l := range listings {
		if selectable(l) && strings.EqualFold(lastSegment(l.Mailbox, m.st.delim), name) {
			return &folder{st: m.st, fullPath: l.Mailbox}, nil
		}
	}
	return nil, nil
}

type folder struct {
	st       *Store
	fullPath string
}

func (f *folder) Name() string {
	return lastSegment(f.fullPath, f.st.delim)
}

func (f *folder) Subfolders() ([]store.Folder, error) {
	if f.st.client == nil {
		return nil, ErrNotConnected
	}
	pattern := f.fullPath + f.st.delim + "%"
	listings, err := f.st.client.List("", pattern, nil).Collect()
	if err != nil {
		return nil, fmt.Errorf("listing subfolders of %s: %w", f.fullPath, err)
	}
	var subs []store.Folder
	for _, l := range listings {
		if !selectable(l) {
			continue
		}
		subs = append(subs, &folder{st: f.st, fullPath: l.Mailbox})
	}
	return subs, nil
}

func (f *folder) Search(text string, subjectOnly bool, limit int) ([]*model.MailRecord, error) {
	client := f.st.client
	if client == nil {
		return nil, ErrNotConnected
	}

	if _, err := client.Select(f.fullPath, nil).Wait(); err != nil {
		return nil, fmt.Errorf("selecting %s: %w", f.fullPath, err)
	}

	criteria := searchCriteria(text, subjectOnly)
	searchData, err := client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching %s: %w", f.fullPath, err)
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}
	// UIDs ascend with delivery order; keep the most recent ones.
	if limit > 0 && len(uids) > limit {
		uids = uids[len(uids)-limit:]
	}

	records, err := f.fetch(client, uids)
	if err != nil {
		return records, err
	}

	sort.SliceStable(records, func(i, j int) bool {
		ti, iok := records[i].ReceivedUTC()
		tj, jok := records[j].ReceivedUTC()
		if iok != jok {
			return iok
		}
		return ti.After(tj)
	})
	return records, nil
}

func searchCriteria(text string, subjectOnly bool) *imap.SearchCriteria {
	subject := imap.SearchCriteria{
		Header: []imap.SearchCriteriaHeaderField{{Key: "Subject", Value: text}},
	}
	if subjectOnly {
		return &subject
	}
	body := imap.SearchCriteria{Body: []string{text}}
	return &imap.SearchCriteria{
		Or: [][2]imap.SearchCriteria{{subject, body}},
	}
}

func (f *folder) fetch(client *imapclient.Client, uids []imap.UID) ([]*model.MailRecord, error) {
	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchOpts := &imap.FetchOptions{
		Envelope:    true,
		Flags:       true,
		UID:         true,
		RFC822Size:  true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}

	fetchCmd := client.Fetch(imap.UIDSetNum(uids...), fetchOpts)
	defer fetchCmd.Close()

	var records []*model.MailRecord
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}
		buf, err := msg.Collect()
		if err != nil {
			f.st.logger.Debugf("Skipping unreadable message in %s: %v", f.fullPath, err)
			continue
		}
		records = append(records, f.recordFromBuffer(buf, bodySection))
	}

	if err := fetchCmd.Close(); err != nil {
		return records, fmt.Errorf("fetching from %s: %w", f.fullPath, err)
	}
	return records, nil
}

func (f *folder) recordFromBuffer(buf *imapclient.FetchMessageBuffer, section *imap.FetchItemBodySection) *model.MailRecord {
	record := &model.MailRecord{
		EntryID:    fmt.Sprintf("%s#%d", f.fullPath, buf.UID),
		FolderName: f.Name(),
		Importance: model.ImportanceNormal,
		Size:       buf.RFC822Size,
		Unread:     true,
	}

	for _, flag := range buf.Flags {
		if flag == imap.FlagSeen {
			record.Unread = false
		}
	}

	if env := buf.Envelope; env != nil {
		record.Subject = env.Subject
		if env.MessageID != "" {
			record.EntryID = env.MessageID
		}
		if !env.Date.IsZero() {
			t := env.Date
			record.ReceivedAt = &t
		}
		if len(env.From) > 0 {
			record.SenderName = env.From[0].Name
			record.SenderEmail = env.From[0].Addr()
		}
		record.To = recipients(env.To)
		record.CC = recipients(env.Cc)
		for _, r := range append(append([]model.Recipient{}, record.To...), record.CC...) {
			if r.Email != "" {
				record.Recipients = append(record.Recipients, r.Email)
			}
		}
	}

	if raw := buf.FindBodySection(section); raw != nil {
		body, attachments := parseBody(raw)
		record.Body = body
		record.AttachmentCount = attachments
	}

	return record
}

func recipients(addrs []imap.Address) []model.Recipient {
	out := make([]model.Recipient, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, model.Recipient{Name: a.Name, Email: a.Addr()})
	}
	return out
}

// parseBody walks the MIME structure, preferring text/plain over
// text/html, and counts attachments. A message go-message cannot parse
// is kept verbatim as plain text.
func parseBody(raw []byte) (string, int) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return string(raw), 0
	}
	defer mr.Close()

	var textBody, htmlBody string
	attachments := 0

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
			content, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}
			switch {
			case strings.HasPrefix(contentType, "text/plain") && textBody == "":
				textBody = string(content)
			case strings.HasPrefix(contentType, "text/html") && htmlBody == "":
				htmlBody = string(content)
			}
		case *mail.AttachmentHeader:
			attachments++
		}
	}

	if textBody != "" {
		return textBody, attachments
	}
	return htmlBody, attachments
}

func selectable(l *imap.ListData) bool {
	for _, attr := range l.Attrs {
		if attr == imap.MailboxAttrNoSelect {
			return false
		}
	}
	return true
}

func lastSegment(path, delim string) string {
	if delim == "" {
		return path
	}
	if i := strings.LastIndex(path, delim); i >= 0 {
		return path[i+len(delim):]
	}
	return path
}
