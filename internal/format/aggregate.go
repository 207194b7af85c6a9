package format

import (
	"sort"
	"strings"
	"time"

	"github.com/droid-bg/Outlook-MCP-Server/internal/model"
)

const topParticipants = 20

// subjectPrefixes are checked in this fixed order; each matching prefix
// is stripped at most once, in a single left-to-right pass. "Fwd: Re: X"
// therefore keeps its inner "Re:". This mirrors how conversations were
// grouped historically; do not make it loop.
var subjectPrefixes = []string{"re:", "fwd:", "fw:", "reply:", "forward:"}

// NormalizeSubject produces the conversation grouping key for a subject.
func NormalizeSubject(subject string) string {
	clean := strings.TrimSpace(subject)
	for _, prefix := range subjectPrefixes {
		if strings.HasPrefix(strings.ToLower(clean), prefix) {
			clean = strings.TrimSpace(clean[len(prefix):])
		}
	}
	return strings.ToLower(clean)
}

// Conversation is a set of records sharing a normalized subject, ordered
// chronologically ascending.
type Conversation struct {
	Key     string
	Records []*model.MailRecord
}

// GroupByConversation groups records by normalized subject. Records
// inside a group are sorted chronologically ascending; the groups
// themselves are ordered by each group's most recent record, descending.
func GroupByConversation(records []*model.MailRecord) []*Conversation {
	byKey := make(map[string]*Conversation)
	var order []*Conversation

	for _, r := range records {
		key := NormalizeSubject(r.Subject)
		conv, ok := byKey[key]
		if !ok {
			conv = &Conversation{Key: key}
			byKey[key] = conv
			order = append(order, conv)
		}
		conv.Records = append(conv.Records, r)
	}

	for _, conv := range order {
		sortChronological(conv.Records, true)
	}

	sort.SliceStable(order, func(i, j int) bool {
		return latestTime(order[i].Records).After(latestTime(order[j].Records))
	})

	return order
}

func latestTime(records []*model.MailRecord) time.Time {
	var latest time.Time
	for _, r := range records {
		if t, ok := r.ReceivedUTC(); ok && t.After(latest) {
			latest = t
		}
	}
	return latest
}

// sortChronological orders records by received time. Ascending puts the
// oldest first; either way, records without a timestamp go last.
func sortChronological(records []*model.MailRecord, ascending bool) {
	sort.SliceStable(records, func(i, j int) bool {
		ti, iok := records[i].ReceivedUTC()
		tj, jok := records[j].ReceivedUTC()
		if iok != jok {
			return iok
		}
		if ascending {
			return ti.Before(tj)
		}
		return ti.After(tj)
	})
}

// Participant is one person seen on the searched threads, with a
// breakdown of how they appeared.
type Participant struct {
	Name               string `json:"name"`
	Email              string `json:"email"`
	ParticipationCount int    `json:"participation_count"`
	Sent               int    `json:"sent"`
	ToCount            int    `json:"to_count"`
	CcCount            int    `json:"cc_count"`
}

// RankParticipants registers every sender, To and CC appearance, keyed by
// normalized address (or normalized name when no address is known), and
// returns the most involved people first, capped at 20. The result is
// invariant under reordering of the input records.
func RankParticipants(records []*model.MailRecord) []*Participant {
	stats := make(map[string]*Participant)
	var order []string

	touch := func(key, name, email string, role string) {
		p, ok := stats[key]
		if !ok {
			p = &Participant{Name: name, Email: email}
			stats[key] = p
			order = append(order, key)
		}
		switch role {
		case "sent":
			p.Sent++
		case "to":
			p.ToCount++
		case "cc":
			p.CcCount++
		}
		// Prefer the richer value once one shows up.
		if email != "" && p.Email == "" {
			p.Email = email
		}
		if name != "" && (p.Name == "" || p.Name == "Unknown") {
			p.Name = name
		}
	}

	for _, r := range records {
		senderName := r.SenderName
		if senderName == "" {
			senderName = "Unknown"
		}
		senderKey := strings.ToLower(firstNonEmpty(r.SenderEmail, senderName))
		touch(senderKey, senderName, r.SenderEmail, "sent")

		for _, rcpt := range r.To {
			if key := strings.ToLower(firstNonEmpty(rcpt.Email, rcpt.Name)); key != "" {
				touch(key, rcpt.Name, rcpt.Email, "to")
			}
		}
		for _, rcpt := range r.CC {
			if key := strings.ToLower(firstNonEmpty(rcpt.Email, rcpt.Name)); key != "" {
				touch(key, rcpt.Name, rcpt.Email, "cc")
			}
		}
	}

	// Deterministic order for equal totals: key order is map-independent
	// only if we sort by key as a tiebreaker.
	sort.SliceStable(order, func(i, j int) bool {
		pi, pj := stats[order[i]], stats[order[j]]
		ti := pi.Sent + pi.ToCount + pi.CcCount
		tj := pj.Sent + pj.ToCount + pj.CcCount
		if ti != tj {
			return ti > tj
		}
		return order[i] < order[j]
	})

	participants := make([]*Participant, 0, len(order))
	for _, key := range order {
		p := stats[key]
		p.ParticipationCount = p.Sent + p.ToCount + p.CcCount
		participants = append(participants, p)
	}
	if len(participants) > topParticipants {
		participants = participants[:topParticipants]
	}
	return participants
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// DateRange is the span of a record set's timestamps. Both fields are
// null when no record carries a timestamp.
type DateRange struct {
	First *string `json:"first"`
	Last  *string `json:"last"`
}

// DateRangeOf computes the min and max of all present timestamps, after
// normalizing to UTC.
func DateRangeOf(records []*model.MailRecord) DateRange {
	var first, last time.Time
	found := false
	for _, r := range records {
		t, ok := r.ReceivedUTC()
		if !ok {
			continue
		}
		if !found {
			first, last = t, t
			found = true
			continue
		}
		if t.Before(first) {
			first = t
		}
		if t.After(last) {
			last = t
		}
	}
	if !found {
		return DateRange{}
	}
	f := first.Format(time.RFC3339)
	l := last.Format(time.RFC3339)
	return DateRange{First: &f, Last: &l}
}

// Distribution counts records per mailbox scope. Unrecognized tags fold
// into Unknown.
type Distribution struct {
	Personal int `json:"personal"`
	Shared   int `json:"shared"`
	Unknown  int `json:"unknown"`
}

func MailboxDistribution(records []*model.MailRecord) Distribution {
	var d Distribution
	for _, r := range records {
		switch r.Mailbox {
		case model.ScopePersonal:
			d.Personal++
		case model.ScopeShared:
			d.Shared++
		default:
			d.Unknown++
		}
	}
	return d
}
