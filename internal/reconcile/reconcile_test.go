package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matheus3301/omnisync/internal/crm"
)

func at(sec int64) time.Time { return time.Unix(sec, 0) }

func summary(id string, sec int64) crm.Summary {
	return crm.Summary{
		Contact:     crm.Contact{ID: id, Phone: "55" + id},
		LastMessage: &crm.LastMessage{Preview: "old", OccurredAt: at(sec)},
	}
}

func ids(list []crm.Summary) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = s.ID
	}
	return out
}

func TestRecencyReordering(t *testing.T) {
	cur := []crm.Summary{summary("A", 10), summary("B", 5), summary("C", 1)}
	evt := crm.Event{Kind: crm.EventUpsert, ContactID: "C", Content: "new", OccurredAt: at(0)}

	got, outcome := ConversationEvent(cur, evt)

	assert.Equal(t, Moved, outcome)
	assert.Equal(t, []string{"C", "A", "B"}, ids(got))
	assert.Equal(t, []string{"A", "B", "C"}, ids(cur), "input must not be mutated")
	assert.Equal(t, "new", got[0].LastMessage.Preview)
}

func TestConversationEventUnreadCount(t *testing.T) {
	cur := []crm.Summary{summary("x", 1)}

	got, _ := ConversationEvent(cur, crm.Event{Kind: crm.EventUpsert, ContactID: "x", Content: "hi"})
	assert.Equal(t, 1, got[0].UnreadCount, "absent isOpen counts as unread")

	got, _ = ConversationEvent(got, crm.Event{Kind: crm.EventUpsert, ContactID: "x", IsOpen: true})
	assert.Equal(t, 1, got[0].UnreadCount, "opened message preserves the count")

	got, _ = ConversationEvent(got, crm.Event{Kind: crm.EventUpsert, ContactID: "x", Direction: crm.DirectionOutbound})
	assert.Equal(t, 1, got[0].UnreadCount, "outbound message preserves the count")
	assert.Equal(t, crm.MediaPreview, got[0].LastMessage.Preview)
}

func TestConversationEventMatchPrecedence(t *testing.T) {
	a := summary("A", 10)
	b := summary("B", 5)
	b.Phone = "999"
	cur := []crm.Summary{b, a}

	// Phone points at B but the contact id names A: the id wins.
	got, outcome := ConversationEvent(cur, crm.Event{Kind: crm.EventUpsert, ContactID: "A", Phone: "999"})
	require.Equal(t, Moved, outcome)
	assert.Equal(t, []string{"A", "B"}, ids(got))

	got, outcome = ConversationEvent(cur, crm.Event{Kind: crm.EventUpsert, ContactID: "unknown", Phone: "999"})
	require.Equal(t, Moved, outcome)
	assert.Equal(t, "B", got[0].ID)
}

func TestConversationEventUnmatched(t *testing.T) {
	cur := []crm.Summary{summary("A", 1)}
	got, outcome := ConversationEvent(cur, crm.Event{Kind: crm.EventUpsert, ContactID: "Z"})
	assert.Equal(t, Unmatched, outcome)
	assert.Equal(t, cur, got)

	got, outcome = ConversationEvent(cur, crm.Event{Kind: crm.EventRemoved, ContactID: "A"})
	assert.Equal(t, Ignored, outcome)
	assert.Equal(t, cur, got)
}

func TestPrependSummaryReplacesExisting(t *testing.T) {
	cur := []crm.Summary{summary("A", 3), summary("B", 2)}
	s := summary("B", 9)
	s.UnreadCount = 4

	got := PrependSummary(cur, s)
	assert.Equal(t, []string{"B", "A"}, ids(got))
	assert.Equal(t, 4, got[0].UnreadCount)
}

func TestSummaryFromEvent(t *testing.T) {
	evt := crm.Event{Kind: crm.EventUpsert, ContactID: "c", Phone: "5511", Content: "hey", Origin: "5500"}
	s := SummaryFromEvent(crm.Contact{ID: "c", Name: "Ana"}, evt)

	assert.Equal(t, "5511", s.Phone)
	assert.Equal(t, crm.PlatformWhatsApp, s.Platform)
	assert.Equal(t, 1, s.UnreadCount)
	require.NotNil(t, s.LastMessage)
	assert.Equal(t, "hey", s.LastMessage.Preview)
	assert.Equal(t, "5500", s.LastMessage.Origin)
}

func TestSortByRecencyAndDedupe(t *testing.T) {
	noMsg := crm.Summary{Contact: crm.Contact{ID: "N"}}
	cur := []crm.Summary{summary("B", 5), noMsg, summary("A", 10), summary("B", 1)}

	got := SortByRecency(DedupeSummaries(cur))
	assert.Equal(t, []string{"A", "B", "N"}, ids(got))
}

func TestReflected(t *testing.T) {
	withID := summary("A", 10)
	withID.LastMessage.ID = "m1"
	list := []crm.Summary{withID, summary("B", 10)}

	tests := []struct {
		name string
		evt  crm.Event
		want bool
	}{
		{"same server id", crm.Event{Kind: crm.EventUpsert, ContactID: "A", MessageID: "m1", Content: "x", OccurredAt: at(50)}, true},
		{"other server id", crm.Event{Kind: crm.EventUpsert, ContactID: "A", MessageID: "m2", Content: "old", OccurredAt: at(5)}, false},
		{"same preview", crm.Event{Kind: crm.EventUpsert, ContactID: "B", MessageID: "m3", Content: "old", OccurredAt: at(50)}, true},
		{"not newer than snapshot", crm.Event{Kind: crm.EventUpsert, ContactID: "B", MessageID: "m4", Content: "new", OccurredAt: at(10)}, true},
		{"newer than snapshot", crm.Event{Kind: crm.EventUpsert, ContactID: "B", MessageID: "m5", Content: "new", OccurredAt: at(11)}, false},
		{"unknown contact", crm.Event{Kind: crm.EventUpsert, ContactID: "Z", MessageID: "m6", Content: "old"}, false},
		{"removal", crm.Event{Kind: crm.EventRemoved, ContactID: "A", MessageID: "m1"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Reflected(list, tt.evt))
		})
	}
}
