// Package memory is an in-process mail store. It backs tests and the
// no-credentials development mode, the same role the teacher project's
// in-memory repositories play next to the real database.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/droid-bg/Outlook-MCP-Server/internal/model"
	"github.com/droid-bg/Outlook-MCP-Server/internal/store"
)

// Store holds a personal mailbox and any number of shared mailboxes.
// Failure injection fields let tests exercise the reconnect and
// per-folder fallback paths; they are read on the executor worker, so set
// them before submitting work.
type Store struct {
	personal *Mailbox
	shared   map[string]*Mailbox

	opened    bool
	openCalls int

	// FailOpens makes the first N Open calls fail.
	FailOpens int
	// PingErr makes Ping report a dead session until cleared.
	PingErr error
	// ResolveErr makes every shared resolution fail until cleared.
	ResolveErr error
}

func NewStore() *Store {
	personal := &Mailbox{name: "Personal Mailbox"}
	personal.inbox = NewFolder("Inbox")
	personal.topLevel = []*Folder{NewFolder("Sent Items")}
	return &Store{
		personal: personal,
		shared:   make(map[string]*Mailbox),
	}
}

func (s *Store) Open(ctx context.Context) error {
	s.openCalls++
	if s.openCalls <= s.FailOpens {
		return fmt.Errorf("mail store unavailable (attempt %d)", s.openCalls)
	}
	s.opened = true
	return nil
}

func (s *Store) Ping() error {
	if !s.opened {
		return fmt.Errorf("store not open")
	}
	return s.PingErr
}

func (s *Store) Close() error {
	s.opened = false
	return nil
}

func (s *Store) Personal() (store.Mailbox, error) {
	if !s.opened {
		return nil, fmt.Errorf("store not open")
	}
	return s.personal, nil
}

func (s *Store) ResolveShared(address string) (store.Mailbox, error) {
	if !s.opened {
		return nil, fmt.Errorf("store not open")
	}
	if s.ResolveErr != nil {
		return nil, s.ResolveErr
	}
	mb, ok := s.shared[strings.ToLower(address)]
	if !ok {
		return nil, fmt.Errorf("could not resolve shared mailbox %q", address)
	}
	return mb, nil
}

// OpenCalls reports how many times Open has been attempted.
func (s *Store) OpenCalls() int { return s.openCalls }

// PersonalMailbox exposes the personal mailbox for seeding.
func (s *Store) PersonalMailbox() *Mailbox { return s.personal }

// AddShared registers a resolvable shared mailbox and returns it for
// seeding. The address is matched case-insensitively.
func (s *Store) AddShared(address, displayName string) *Mailbox {
	mb := &Mailbox{name: displayName}
	mb.inbox = NewFolder("Inbox")
	mb.topLevel = []*Folder{NewFolder("Sent Items")}
	s.shared[strings.ToLower(address)] = mb
	return mb
}

// Mailbox is one in-memory store root.
type Mailbox struct {
	name     string
	inbox    *Folder
	topLevel []*Folder
}

func (m *Mailbox) DisplayName() string { return m.name }

func (m *Mailbox) Inbox() (store.Folder, error) { return m.inbox, nil }

func (m *Mailbox) FolderByName(name string) (store.Folder, error) {
	for _, f := range m.topLevel {
		if strings.EqualFold(f.name, name) {
			return f, nil
		}
	}
	return nil, nil
}

// InboxFolder exposes the inbox for seeding.
func (m *Mailbox) InboxFolder() *Folder { return m.inbox }

// TopLevelFolder exposes a sibling folder of the inbox (e.g. Sent Items)
// for seeding, or nil.
func (m *Mailbox) TopLevelFolder(name string) *Folder {
	for _, f := range m.topLevel {
		if strings.EqualFold(f.name, name) {
			return f
		}
	}
	return nil
}

// Folder is one in-memory folder node.
type Folder struct {
	name     string
	children []*Folder
	messages []*model.MailRecord

	// QueryErr fails the subject+body query; SubjectOnlyErr additionally
	// fails the narrower fallback. EnumErr fails subfolder enumeration.
	QueryErr       error
	SubjectOnlyErr error
	EnumErr        error

	// SearchCalls counts every Search invocation, fallbacks included.
	SearchCalls int
}

func NewFolder(name string) *Folder {
	return &Folder{name: name}
}

func (f *Folder) Name() string { return f.name }

// AddChild attaches and returns a subfolder.
func (f *Folder) AddChild(name string) *Folder {
	child := NewFolder(name)
	f.children = append(f.children, child)
	return child
}

// Add appends messages to the folder, stamping the folder name.
func (f *Folder) Add(msgs ...*model.MailRecord) {
	for _, m := range msgs {
		m.FolderName = f.name
		f.messages = append(f.messages, m)
	}
}

func (f *Folder) Subfolders() ([]store.Folder, error) {
	if f.EnumErr != nil {
		return nil, f.EnumErr
	}
	subs := make([]store.Folder, 0, len(f.children))
	for _, c := range f.children {
		subs = append(subs, c)
	}
	return subs, nil
}

func (f *Folder) Search(text string, subjectOnly bool, limit int) ([]*model.MailRecord, error) {
	f.SearchCalls++
	if subjectOnly {
		if f.SubjectOnlyErr != nil {
			return nil, f.SubjectOnlyErr
		}
	} else if f.QueryErr != nil {
		return nil, f.QueryErr
	}

	needle := strings.ToLower(text)
	var matches []*model.MailRecord
	for _, m := range f.messages {
		if strings.Contains(strings.ToLower(m.Subject), needle) {
			matches = append(matches, m)
			continue
		}
		if !subjectOnly && strings.Contains(strings.ToLower(m.Body), needle) {
			matches = append(matches, m)
		}
	}

	// Newest first, records without a timestamp at the end.
	sort.SliceStable(matches, func(i, j int) bool {
		ti, iok := matches[i].ReceivedUTC()
		tj, jok := matches[j].ReceivedUTC()
		if iok != jok {
			return iok
		}
		return ti.After(tj)
	})

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// NewMessage builds a record with a store-assigned identity token, the way
// real stores hand out entry IDs.
func NewMessage(subject, senderName, senderEmail, body string, receivedAt time.Time) *model.MailRecord {
	t := receivedAt
	return &model.MailRecord{
		EntryID:     uuid.New().String(),
		Subject:     subject,
		SenderName:  senderName,
		SenderEmail: senderEmail,
		ReceivedAt:  &t,
		Importance:  model.ImportanceNormal,
		Body:        body,
		Size:        int64(len(body)),
	}
}
