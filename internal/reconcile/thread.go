package reconcile

import (
	"slices"
	"time"

	"github.com/matheus3301/omnisync/internal/crm"
)

// Matcher decides when a server message confirms a pending local one by
// content. A confirmation must be stamped no earlier than Skew before the
// send and no later than Window after it.
type Matcher struct {
	Window time.Duration
	Skew   time.Duration
}

// DefaultMatcher is used by MessageEvent and MergePage.
var DefaultMatcher = Matcher{Window: 2 * time.Minute, Skew: 2 * time.Second}

func (mt Matcher) within(sent, at time.Time) bool {
	if at.IsZero() || sent.IsZero() {
		return true
	}
	if at.Before(sent.Add(-mt.Skew)) {
		return false
	}
	return mt.Window <= 0 || !at.After(sent.Add(mt.Window))
}

// MessageEvent applies evt with DefaultMatcher.
func MessageEvent(cur []crm.Message, evt crm.Event) ([]crm.Message, Outcome) {
	return DefaultMatcher.MessageEvent(cur, evt)
}

// MergePage merges a freshly loaded page with DefaultMatcher.
func MergePage(page, carried []crm.Message) []crm.Message {
	return DefaultMatcher.MergePage(page, carried)
}

// MessageEvent applies evt to the chronological messages of one conversation.
//
// Upserts resolve in this order:
//  1. a message with the event's server id is patched in place;
//  2. a pending local message whose temporary id equals the echoed
//     correlation id takes the server id;
//  3. the oldest pending local message with identical content, sent within
//     the match window of the event, takes the server id (only for events
//     not known to be inbound);
//  4. otherwise the message is appended.
//
// Removals drop the message with the server id and are idempotent. Events
// without a server id are ignored.
func (mt Matcher) MessageEvent(cur []crm.Message, evt crm.Event) ([]crm.Message, Outcome) {
	out := slices.Clone(cur)
	if evt.MessageID == "" {
		return out, Ignored
	}
	if evt.Kind == crm.EventRemoved {
		n := len(out)
		out = slices.DeleteFunc(out, func(m crm.Message) bool { return m.ID == evt.MessageID })
		if len(out) == n {
			return out, Ignored
		}
		return out, Removed
	}

	if i := indexOfID(out, evt.MessageID); i >= 0 {
		out[i] = patch(out[i], evt)
		return out, Updated
	}

	if i := mt.pendingMatch(out, evt); i >= 0 {
		m := patch(out[i], evt)
		m.ID = evt.MessageID
		if evt.DeliveryState == crm.DeliveryUnspecified {
			m.DeliveryState = crm.DeliverySent
		}
		out[i] = m
		return out, Confirmed
	}

	return append(out, fromEvent(evt)), Appended
}

// MergePage puts a chronological page ahead of the messages that existed
// before it loaded. A carried pending local message is dropped when the page
// already holds its server copy (local, same content, within the window);
// each page entry absorbs at most one pending message. Carried entries whose
// server id is in the page are dropped too.
func (mt Matcher) MergePage(page, carried []crm.Message) []crm.Message {
	out := slices.Clone(page)
	claimed := make([]bool, len(page))
	for _, m := range carried {
		if m.ID != "" && indexOfID(page, m.ID) >= 0 {
			continue
		}
		if isPendingLocal(m) {
			if i := mt.pageMatch(page, claimed, m); i >= 0 {
				claimed[i] = true
				continue
			}
		}
		out = append(out, m)
	}
	return out
}

func (mt Matcher) pageMatch(page []crm.Message, claimed []bool, m crm.Message) int {
	for i, p := range page {
		if claimed[i] || p.Sender != crm.SenderLocal || p.IsTemporary() || p.Content != m.Content {
			continue
		}
		if mt.within(m.OccurredAt, p.OccurredAt) {
			return i
		}
	}
	return -1
}

// AppendPending adds an optimistic local message at the end of the thread.
func AppendPending(cur []crm.Message, m crm.Message) []crm.Message {
	m.Sender = crm.SenderLocal
	m.DeliveryState = crm.DeliveryPending
	return append(slices.Clone(cur), m)
}

// SetDeliveryState changes the state of the message with id, in place.
// Reports false if no such message exists.
func SetDeliveryState(cur []crm.Message, id string, state crm.DeliveryState) ([]crm.Message, bool) {
	out := slices.Clone(cur)
	i := indexOfID(out, id)
	if i < 0 {
		return out, false
	}
	out[i].DeliveryState = state
	return out, true
}

// Chronological turns a newest-first page into thread order, dropping
// repeated server ids.
func Chronological(newestFirst []crm.Message) []crm.Message {
	out := make([]crm.Message, 0, len(newestFirst))
	seen := make(map[string]bool, len(newestFirst))
	for i := len(newestFirst) - 1; i >= 0; i-- {
		m := newestFirst[i]
		if m.ID != "" {
			if seen[m.ID] {
				continue
			}
			seen[m.ID] = true
		}
		out = append(out, m)
	}
	return out
}

func indexOfID(list []crm.Message, id string) int {
	return slices.IndexFunc(list, func(m crm.Message) bool { return m.ID == id })
}

// patch replaces the mutable fields the event carries. Absent fields keep
// the current value so replaying an event is a no-op.
func patch(m crm.Message, evt crm.Event) crm.Message {
	if evt.Content != "" {
		m.Content = evt.Content
	}
	if evt.DeliveryState != crm.DeliveryUnspecified {
		m.DeliveryState = evt.DeliveryState
	}
	if evt.Media != nil {
		m.Media = evt.Media
	}
	return m
}

func (mt Matcher) pendingMatch(list []crm.Message, evt crm.Event) int {
	if evt.ClientMsgID != "" {
		if i := indexOfID(list, evt.ClientMsgID); i >= 0 && isPendingLocal(list[i]) {
			return i
		}
	}
	if evt.Direction == crm.DirectionInbound {
		return -1
	}
	best := -1
	for i, m := range list {
		if !isPendingLocal(m) || m.Content != evt.Content || !mt.within(m.OccurredAt, evt.OccurredAt) {
			continue
		}
		if best < 0 || m.OccurredAt.Before(list[best].OccurredAt) {
			best = i
		}
	}
	return best
}

func isPendingLocal(m crm.Message) bool {
	return m.Sender == crm.SenderLocal && m.IsTemporary() && m.DeliveryState == crm.DeliveryPending
}

func fromEvent(evt crm.Event) crm.Message {
	// Only a known inbound message is the contact's; an event that says
	// nothing about its direction is the user's own.
	sender := crm.SenderLocal
	if evt.Direction == crm.DirectionInbound {
		sender = crm.SenderRemote
	}
	state := evt.DeliveryState
	if state == crm.DeliveryUnspecified {
		state = crm.DeliverySent
	}
	conv := evt.ContactID
	if conv == "" {
		conv = evt.Phone
	}
	return crm.Message{
		ID:             evt.MessageID,
		ConversationID: conv,
		Content:        evt.Content,
		OccurredAt:     evt.OccurredAt,
		Sender:         sender,
		DeliveryState:  state,
		Media:          evt.Media,
		Platform:       evt.Platform,
	}
}
