// Package reconcile merges live chat events into ordered inbox and thread
// collections. Every function is pure: inputs are never mutated and a new
// slice is always returned.
package reconcile

import (
	"slices"
	"time"

	"github.com/matheus3301/omnisync/internal/crm"
)

// Outcome reports what a reconciliation did.
type Outcome string

const (
	Updated   Outcome = "updated"   // existing entry patched in place
	Moved     Outcome = "moved"     // summary updated and moved to the top
	Confirmed Outcome = "confirmed" // pending local message took its server id
	Appended  Outcome = "appended"  // new message added at the end
	Removed   Outcome = "removed"
	Unmatched Outcome = "unmatched" // no target found, caller decides
	Ignored   Outcome = "ignored"   // nothing to do
)

// ConversationEvent applies evt to an inbox. The summary addressed by the
// event (contact id first, then phone) gets a new last message, its unread
// count bumped for unread inbound messages, and moves to index 0. Relative
// order of the other rows is kept. Returns Unmatched, with the list
// unchanged, when no row matches; the list never shrinks.
func ConversationEvent(cur []crm.Summary, evt crm.Event) ([]crm.Summary, Outcome) {
	out := slices.Clone(cur)
	if evt.Kind != crm.EventUpsert {
		return out, Ignored
	}
	idx := FindSummary(cur, evt)
	if idx < 0 {
		return out, Unmatched
	}

	s := cur[idx]
	s.LastMessage = lastMessageOf(evt)
	if evt.Unread() {
		s.UnreadCount++
	}

	out = slices.Delete(out, idx, idx+1)
	out = slices.Insert(out, 0, s)
	return out, Moved
}

// Reflected reports whether a freshly loaded snapshot already contains evt
// as the last message of the row it addresses: same server id, same
// preview, or a last message no older than the event. Events queued while
// the snapshot loaded are skipped when reflected, so they are not counted
// twice.
func Reflected(list []crm.Summary, evt crm.Event) bool {
	if evt.Kind != crm.EventUpsert {
		return false
	}
	idx := FindSummary(list, evt)
	if idx < 0 {
		return false
	}
	lm := list[idx].LastMessage
	if lm == nil {
		return false
	}
	if lm.ID != "" && evt.MessageID != "" {
		return lm.ID == evt.MessageID
	}
	if lm.Preview == lastMessageOf(evt).Preview {
		return true
	}
	return !evt.OccurredAt.IsZero() && !lm.OccurredAt.Before(evt.OccurredAt)
}

// FindSummary returns the index of the summary evt addresses, or -1.
// A contact id match anywhere in the list beats a phone match.
func FindSummary(list []crm.Summary, evt crm.Event) int {
	if evt.ContactID != "" {
		if i := slices.IndexFunc(list, func(s crm.Summary) bool { return s.ID == evt.ContactID }); i >= 0 {
			return i
		}
	}
	if evt.Phone != "" {
		return slices.IndexFunc(list, func(s crm.Summary) bool { return s.Phone == evt.Phone })
	}
	return -1
}

// SummaryFromEvent builds the row for a contact that was unknown when evt
// arrived and has since been fetched.
func SummaryFromEvent(c crm.Contact, evt crm.Event) crm.Summary {
	if c.Phone == "" {
		c.Phone = evt.Phone
	}
	if c.Platform == "" {
		c.Platform = evt.Platform
	}
	if c.Platform == "" {
		c.Platform = crm.DetectPlatform(c)
	}
	s := crm.Summary{Contact: c, LastMessage: lastMessageOf(evt)}
	if evt.Unread() {
		s.UnreadCount = 1
	}
	return s
}

// PrependSummary inserts s at index 0. If a row for the same contact is
// already present it is replaced, so a list never holds two rows per contact.
func PrependSummary(cur []crm.Summary, s crm.Summary) []crm.Summary {
	out := make([]crm.Summary, 0, len(cur)+1)
	out = append(out, s)
	for _, existing := range cur {
		if existing.ID == s.ID {
			continue
		}
		out = append(out, existing)
	}
	return out
}

// SortByRecency orders a snapshot by descending last message time. Rows
// without a last message sink to the bottom; ties keep their input order.
func SortByRecency(cur []crm.Summary) []crm.Summary {
	out := slices.Clone(cur)
	slices.SortStableFunc(out, func(a, b crm.Summary) int {
		ta, tb := lastTime(a), lastTime(b)
		switch {
		case ta.After(tb):
			return -1
		case tb.After(ta):
			return 1
		}
		return 0
	})
	return out
}

// DedupeSummaries drops every row whose contact id was already seen.
func DedupeSummaries(cur []crm.Summary) []crm.Summary {
	seen := make(map[string]bool, len(cur))
	out := make([]crm.Summary, 0, len(cur))
	for _, s := range cur {
		if s.ID != "" && seen[s.ID] {
			continue
		}
		seen[s.ID] = true
		out = append(out, s)
	}
	return out
}

func lastMessageOf(evt crm.Event) *crm.LastMessage {
	preview := evt.Content
	if preview == "" {
		preview = crm.MediaPreview
	}
	return &crm.LastMessage{
		ID:         evt.MessageID,
		Preview:    preview,
		IsRead:     evt.IsOpen,
		OccurredAt: evt.OccurredAt,
		Origin:     evt.Origin,
	}
}

func lastTime(s crm.Summary) time.Time {
	if s.LastMessage == nil {
		return time.Time{}
	}
	return s.LastMessage.OccurredAt
}
