package model

import "time"

// Scope identifies which store a record came from.
type Scope string

const (
	ScopePersonal Scope = "personal"
	ScopeShared   Scope = "shared"
	ScopeUnknown  Scope = "unknown"
)

// Importance levels as the store reports them.
const (
	ImportanceLow    = 0
	ImportanceNormal = 1
	ImportanceHigh   = 2
)

// ImportanceText converts an importance level to its display form.
func ImportanceText(importance int) string {
	switch importance {
	case ImportanceLow:
		return "Low"
	case ImportanceHigh:
		return "High"
	default:
		return "Normal"
	}
}

// Recipient is one named address on a message.
type Recipient struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// MailRecord is one message as produced by a search pass. It is immutable
// once the search that built it returns; aggregation only reads it.
//
// EntryID is the store-assigned identity token used for deduplication across
// folders. It may be empty when the store cannot provide one; such records
// are never deduplicated. ReceivedAt is nil when the store has no timestamp
// for the message.
type MailRecord struct {
	EntryID         string      `json:"entry_id"`
	Subject         string      `json:"subject"`
	SenderName      string      `json:"sender_name"`
	SenderEmail     string      `json:"sender_email"`
	To              []Recipient `json:"to_recipients"`
	CC              []Recipient `json:"cc_recipients"`
	Recipients      []string    `json:"recipients"`
	ReceivedAt      *time.Time  `json:"received_time,omitempty"`
	FolderName      string      `json:"folder_name"`
	Mailbox         Scope       `json:"mailbox_type"`
	Importance      int         `json:"importance"`
	Body            string      `json:"body"`
	Size            int64       `json:"size"`
	AttachmentCount int         `json:"attachments_count"`
	Unread          bool        `json:"unread"`
}

// ReceivedUTC returns the received time normalized to UTC. The second value
// is false when the record carries no timestamp. Offset-aware and naive
// timestamps from different stores compare correctly after this
// normalization.
func (r *MailRecord) ReceivedUTC() (time.Time, bool) {
	if r.ReceivedAt == nil {
		return time.Time{}, false
	}
	return r.ReceivedAt.UTC(), true
}
