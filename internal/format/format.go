// Package format turns raw mail records into the response payloads the
// operations return. Everything here is pure computation over its inputs:
// no session access, no shared state, safe on any goroutine, and total
// over incomplete records.
package format

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/droid-bg/Outlook-MCP-Server/internal/model"
)

const bodyPreviewLength = 500

// Options control the externally-visible record shape.
type Options struct {
	IncludeTimestamps bool
	CleanHTML         bool

	// MaxRecipients caps the flat recipients display list; past it a
	// single "... and N more" marker stands in for the rest. Zero means
	// no cap.
	MaxRecipients int

	// MaxBodyChars truncates the body before the preview is taken. Zero
	// means unlimited.
	MaxBodyChars int
}

// FormattedEmail is the external shape of one record.
type FormattedEmail struct {
	Subject      string            `json:"subject"`
	SenderName   string            `json:"sender_name"`
	SenderEmail  string            `json:"sender_email"`
	To           []model.Recipient `json:"to"`
	CC           []model.Recipient `json:"cc"`
	Recipients   []string          `json:"recipients"`
	Folder       string            `json:"folder"`
	Mailbox      string            `json:"mailbox"`
	BodyPreview  string            `json:"body_preview"`
	Attachments  int               `json:"attachments"`
	Importance   string            `json:"importance"`
	Unread       bool              `json:"unread"`
	SizeKB       float64           `json:"size_kb"`
	ReceivedTime *string           `json:"received_time,omitempty"`
}

// FormatRecord renders one record. Missing fields get fixed defaults; it
// never fails on incomplete input.
func FormatRecord(r *model.MailRecord, opts Options) *FormattedEmail {
	subject := r.Subject
	if subject == "" {
		subject = "No Subject"
	}
	senderName := r.SenderName
	if senderName == "" {
		senderName = "Unknown"
	}

	body := r.Body
	if opts.CleanHTML {
		body = StripHTML(body)
	}
	if opts.MaxBodyChars > 0 {
		body = truncate(body, opts.MaxBodyChars)
	}

	folder := r.FolderName
	if folder == "" {
		folder = "Unknown"
	}
	mailbox := string(r.Mailbox)
	if mailbox == "" {
		mailbox = string(model.ScopeUnknown)
	}

	to := r.To
	if to == nil {
		to = []model.Recipient{}
	}
	cc := r.CC
	if cc == nil {
		cc = []model.Recipient{}
	}

	formatted := &FormattedEmail{
		Subject:     subject,
		SenderName:  senderName,
		SenderEmail: r.SenderEmail,
		To:          to,
		CC:          cc,
		Recipients:  displayRecipients(r, opts.MaxRecipients),
		Folder:      folder,
		Mailbox:     mailbox,
		BodyPreview: truncate(body, bodyPreviewLength),
		Attachments: r.AttachmentCount,
		Importance:  model.ImportanceText(r.Importance),
		Unread:      r.Unread,
		SizeKB:      math.Round(float64(r.Size)/1024*10) / 10,
	}

	if opts.IncludeTimestamps {
		if t, ok := r.ReceivedUTC(); ok {
			s := t.Format(time.RFC3339)
			formatted.ReceivedTime = &s
		}
	}

	return formatted
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// displayRecipients flattens To then CC into display names (address when
// the name is missing), capped at max with an overflow marker.
func displayRecipients(r *model.MailRecord, max int) []string {
	names := make([]string, 0, len(r.To)+len(r.CC))
	for _, rcpt := range append(append([]model.Recipient{}, r.To...), r.CC...) {
		if name := firstNonEmpty(rcpt.Name, rcpt.Email); name != "" {
			names = append(names, name)
		}
	}
	if len(names) == 0 && r.Recipients != nil {
		names = append(names, r.Recipients...)
	}
	if max > 0 && len(names) > max {
		overflow := len(names) - max
		names = append(names[:max], fmt.Sprintf("... and %d more", overflow))
	}
	return names
}

var htmlTagPattern = regexp.MustCompile(`<[^>]+>`)
var whitespacePattern = regexp.MustCompile(`\s+`)

var htmlEntities = []struct{ entity, char string }{
	{"&amp;", "&"},
	{"&lt;", "<"},
	{"&gt;", ">"},
	{"&quot;", `"`},
	{"&#39;", "'"},
	{"&nbsp;", " "},
}

// StripHTML removes markup from a body, decodes the handful of entities
// mail clients actually emit, and collapses whitespace.
func StripHTML(text string) string {
	text = htmlTagPattern.ReplaceAllString(text, "")
	for _, e := range htmlEntities {
		text = strings.ReplaceAll(text, e.entity, e.char)
	}
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(text, " "))
}

// ConnectionInfo reports the session state at response time.
type ConnectionInfo struct {
	Connected bool   `json:"connected"`
	Timestamp string `json:"timestamp"`
}

type PersonalMailboxInfo struct {
	Accessible      bool   `json:"accessible"`
	Name            string `json:"name"`
	RetentionMonths int    `json:"retention_months"`
}

type SharedMailboxInfo struct {
	Configured      bool   `json:"configured"`
	Accessible      bool   `json:"accessible"`
	Name            string `json:"name"`
	Email           string `json:"email"`
	RetentionMonths int    `json:"retention_months"`
}

// AccessResponse is the checkMailboxAccess payload.
type AccessResponse struct {
	Status          string              `json:"status"`
	Connection      ConnectionInfo      `json:"connection"`
	PersonalMailbox PersonalMailboxInfo `json:"personal_mailbox"`
	SharedMailbox   SharedMailboxInfo   `json:"shared_mailbox"`
	Errors          []string            `json:"errors"`
}

// BuildAccessResponse renders an access report.
func BuildAccessResponse(report *model.AccessReport, sharedEmail string) *AccessResponse {
	personalName := report.PersonalName
	if personalName == "" {
		personalName = "Personal Mailbox"
	}
	sharedName := report.SharedName
	if sharedName == "" {
		sharedName = "Shared Mailbox"
	}
	email := sharedEmail
	if email == "" {
		email = "Not configured"
	}
	errs := report.Errors
	if errs == nil {
		errs = []string{}
	}

	return &AccessResponse{
		Status: "success",
		Connection: ConnectionInfo{
			Connected: report.Connected,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
		PersonalMailbox: PersonalMailboxInfo{
			Accessible:      report.PersonalAccessible,
			Name:            personalName,
			RetentionMonths: report.RetentionPersonalMonths,
		},
		SharedMailbox: SharedMailboxInfo{
			Configured:      report.SharedConfigured,
			Accessible:      report.SharedAccessible,
			Name:            sharedName,
			Email:           email,
			RetentionMonths: report.RetentionSharedMonths,
		},
		Errors: errs,
	}
}

// SearchSummary aggregates one result set.
type SearchSummary struct {
	TotalEmails         int            `json:"total_emails"`
	Conversations       int            `json:"conversations"`
	DateRange           DateRange      `json:"date_range"`
	MailboxDistribution Distribution   `json:"mailbox_distribution"`
	Participants        []*Participant `json:"participants"`
}

// ConversationPayload is one conversation group in the response.
type ConversationPayload struct {
	ConversationID string            `json:"conversation_id"`
	EmailCount     int               `json:"email_count"`
	DateRange      DateRange         `json:"date_range"`
	Participants   []*Participant    `json:"participants"`
	Emails         []*FormattedEmail `json:"emails"`
}

// SearchResponse is the searchMail payload.
type SearchResponse struct {
	Status        string                 `json:"status"`
	SearchSubject string                 `json:"search_subject"`
	Message       string                 `json:"message,omitempty"`
	Summary       *SearchSummary         `json:"summary,omitempty"`
	Conversations []*ConversationPayload `json:"conversations,omitempty"`
	AllEmails     []*FormattedEmail      `json:"all_emails_chronological,omitempty"`
}

// BuildSearchResponse renders a full search result: summary statistics,
// conversation groups ordered most-recent-first, and the flat
// chronological list.
func BuildSearchResponse(records []*model.MailRecord, searchText string, opts Options) *SearchResponse {
	if len(records) == 0 {
		return &SearchResponse{
			Status:        "no_emails_found",
			SearchSubject: searchText,
			Message:       fmt.Sprintf("No emails found for subject: '%s'", searchText),
		}
	}

	conversations := GroupByConversation(records)
	payloads := make([]*ConversationPayload, 0, len(conversations))
	for _, conv := range conversations {
		emails := make([]*FormattedEmail, 0, len(conv.Records))
		for _, r := range conv.Records {
			emails = append(emails, FormatRecord(r, opts))
		}
		payloads = append(payloads, &ConversationPayload{
			ConversationID: conv.Key,
			EmailCount:     len(conv.Records),
			DateRange:      DateRangeOf(conv.Records),
			Participants:   RankParticipants(conv.Records),
			Emails:         emails,
		})
	}

	chronological := make([]*model.MailRecord, len(records))
	copy(chronological, records)
	sortChronological(chronological, false)
	allEmails := make([]*FormattedEmail, 0, len(chronological))
	for _, r := range chronological {
		allEmails = append(allEmails, FormatRecord(r, opts))
	}

	return &SearchResponse{
		Status:        "success",
		SearchSubject: searchText,
		Summary: &SearchSummary{
			TotalEmails:         len(records),
			Conversations:       len(conversations),
			DateRange:           DateRangeOf(records),
			MailboxDistribution: MailboxDistribution(records),
			Participants:        RankParticipants(records),
		},
		Conversations: payloads,
		AllEmails:     allEmails,
	}
}

// ContactsResponse is the listContacts payload.
type ContactsResponse struct {
	Status        string         `json:"status"`
	SearchText    string         `json:"search_text"`
	EmailsScanned int            `json:"emails_scanned"`
	DateRange     DateRange      `json:"date_range"`
	Contacts      []*Participant `json:"contacts"`
}

// BuildContactsResponse renders the ranked participant list for a result
// set.
func BuildContactsResponse(records []*model.MailRecord, searchText string) *ContactsResponse {
	status := "success"
	if len(records) == 0 {
		status = "no_emails_found"
	}
	contacts := RankParticipants(records)
	if contacts == nil {
		contacts = []*Participant{}
	}
	return &ContactsResponse{
		Status:        status,
		SearchText:    searchText,
		EmailsScanned: len(records),
		DateRange:     DateRangeOf(records),
		Contacts:      contacts,
	}
}
