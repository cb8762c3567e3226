package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matheus3301/omnisync/internal/crm"
)

func pending(id, content string, sec int64) crm.Message {
	return crm.Message{
		ID:            id,
		Content:       content,
		OccurredAt:    at(sec),
		Sender:        crm.SenderLocal,
		DeliveryState: crm.DeliveryPending,
	}
}

func remote(id, content string, sec int64) crm.Message {
	return crm.Message{ID: id, Content: content, OccurredAt: at(sec), Sender: crm.SenderRemote, DeliveryState: crm.DeliverySent}
}

func created(id, content string) crm.Event {
	return crm.Event{Kind: crm.EventUpsert, MessageID: id, ContactID: "x", Content: content, OccurredAt: at(100)}
}

func TestOptimisticCollapse(t *testing.T) {
	cur := []crm.Message{
		remote("r1", "before", 1),
		pending("temp-1", "hello", 10),
		remote("r2", "after", 11),
	}

	got, outcome := MessageEvent(cur, created("srv1", "hello"))

	require.Equal(t, Confirmed, outcome)
	require.Len(t, got, 3)
	assert.Equal(t, "srv1", got[1].ID, "pending entry keeps its index")
	assert.Equal(t, "hello", got[1].Content)
	assert.Equal(t, crm.DeliverySent, got[1].DeliveryState)
	assert.Equal(t, at(10), got[1].OccurredAt)
	assert.Equal(t, "temp-1", cur[1].ID, "input must not be mutated")
}

func TestCollapsePicksOldestPending(t *testing.T) {
	cur := []crm.Message{
		pending("temp-b", "same", 20),
		pending("temp-a", "same", 10),
	}
	got, outcome := MessageEvent(cur, created("srv1", "same"))
	require.Equal(t, Confirmed, outcome)
	assert.Equal(t, "temp-b", got[0].ID)
	assert.Equal(t, "srv1", got[1].ID)

	got, _ = MessageEvent(got, created("srv2", "same"))
	assert.Equal(t, "srv2", got[0].ID)
}

func TestCollapseByCorrelationID(t *testing.T) {
	cur := []crm.Message{
		pending("temp-a", "same", 10),
		pending("temp-b", "same", 20),
	}
	evt := created("srv1", "same")
	evt.ClientMsgID = "temp-b"

	got, outcome := MessageEvent(cur, evt)
	require.Equal(t, Confirmed, outcome)
	assert.Equal(t, "temp-a", got[0].ID)
	assert.Equal(t, "srv1", got[1].ID)
}

func TestInboundNeverCollapsesPending(t *testing.T) {
	cur := []crm.Message{pending("temp-1", "ok", 10)}
	evt := created("srv1", "ok")
	evt.Direction = crm.DirectionInbound

	got, outcome := MessageEvent(cur, evt)
	require.Equal(t, Appended, outcome)
	require.Len(t, got, 2)
	assert.Equal(t, crm.SenderRemote, got[1].Sender)
	assert.Equal(t, "temp-1", got[0].ID)
}

func TestFailedNotCollapsed(t *testing.T) {
	failed := pending("temp-1", "hello", 10)
	failed.DeliveryState = crm.DeliveryFailed

	got, outcome := MessageEvent([]crm.Message{failed}, created("srv1", "hello"))
	assert.Equal(t, Appended, outcome)
	assert.Len(t, got, 2)
}

func TestPatchInPlace(t *testing.T) {
	cur := []crm.Message{remote("m1", "a", 1), remote("m2", "b", 2)}
	evt := created("m1", "")
	evt.DeliveryState = crm.DeliveryDelivered

	once, outcome := MessageEvent(cur, evt)
	require.Equal(t, Updated, outcome)
	assert.Equal(t, "a", once[0].Content, "empty content keeps the old value")
	assert.Equal(t, crm.DeliveryDelivered, once[0].DeliveryState)

	twice, _ := MessageEvent(once, evt)
	assert.Equal(t, once, twice)
}

func TestAppendSetsSender(t *testing.T) {
	evt := created("m1", "hi")
	evt.Direction = crm.DirectionOutbound
	got, outcome := MessageEvent(nil, evt)
	require.Equal(t, Appended, outcome)
	assert.Equal(t, crm.SenderLocal, got[0].Sender)
	assert.Equal(t, "x", got[0].ConversationID)
	assert.Equal(t, crm.DeliverySent, got[0].DeliveryState)
}

func TestRemoval(t *testing.T) {
	cur := []crm.Message{remote("m1", "a", 1), remote("m2", "b", 2)}
	rm := crm.Event{Kind: crm.EventRemoved, MessageID: "m1"}

	got, outcome := MessageEvent(cur, rm)
	assert.Equal(t, Removed, outcome)
	assert.Equal(t, []crm.Message{cur[1]}, got)

	again, outcome := MessageEvent(got, rm)
	assert.Equal(t, Ignored, outcome)
	assert.Equal(t, got, again)
}

func TestEmptyIDIgnored(t *testing.T) {
	cur := []crm.Message{pending("temp-1", "", 1)}
	got, outcome := MessageEvent(cur, created("", ""))
	assert.Equal(t, Ignored, outcome)
	assert.Equal(t, cur, got)
}

func TestSetDeliveryState(t *testing.T) {
	cur := []crm.Message{pending("temp-1", "test", 1)}
	got, ok := SetDeliveryState(cur, "temp-1", crm.DeliveryFailed)
	require.True(t, ok)
	assert.Equal(t, crm.DeliveryFailed, got[0].DeliveryState)
	assert.Equal(t, crm.DeliveryPending, cur[0].DeliveryState)

	_, ok = SetDeliveryState(cur, "missing", crm.DeliveryFailed)
	assert.False(t, ok)
}

func TestChronological(t *testing.T) {
	page := []crm.Message{remote("m3", "c", 3), remote("m2", "b", 2), remote("m2", "b", 2), remote("m1", "a", 1)}
	got := Chronological(page)
	require.Len(t, got, 3)
	assert.Equal(t, "m1", got[0].ID)
	assert.Equal(t, "m3", got[2].ID)
}

// The list and thread consumers run the reconciler independently on the
// same event and must agree.
func TestListAndThreadConsistency(t *testing.T) {
	summaries := []crm.Summary{{Contact: crm.Contact{ID: "x"}}}
	var thread []crm.Message
	evt := crm.Event{Kind: crm.EventUpsert, ContactID: "x", MessageID: "m1", Content: "hi", IsOpen: false, Direction: crm.DirectionInbound}

	summaries, _ = ConversationEvent(summaries, evt)
	thread, _ = MessageEvent(thread, evt)

	assert.Equal(t, 1, summaries[0].UnreadCount)
	assert.Equal(t, "hi", summaries[0].LastMessage.Preview)
	require.Len(t, thread, 1)
	assert.Equal(t, "m1", thread[0].ID)
	assert.Equal(t, "hi", thread[0].Content)
	assert.Equal(t, crm.SenderRemote, thread[0].Sender)
}

func TestCollapseRespectsMatchWindow(t *testing.T) {
	cur := []crm.Message{pending("temp-1", "hello", 100)}

	late := created("srv1", "hello")
	late.OccurredAt = at(100).Add(DefaultMatcher.Window + time.Second)
	got, outcome := MessageEvent(cur, late)
	assert.Equal(t, Appended, outcome, "confirmation after the window is a different message")
	assert.Equal(t, "temp-1", got[0].ID)

	edge := created("srv1", "hello")
	edge.OccurredAt = at(100).Add(DefaultMatcher.Window)
	_, outcome = MessageEvent(cur, edge)
	assert.Equal(t, Confirmed, outcome)

	wide := Matcher{Window: time.Hour}
	_, outcome = wide.MessageEvent(cur, late)
	assert.Equal(t, Confirmed, outcome)
}

func TestCollapseRejectsEventBeforeSend(t *testing.T) {
	cur := []crm.Message{pending("temp-1", "hello", 100)}

	before := created("srv1", "hello")
	before.OccurredAt = at(100).Add(-DefaultMatcher.Skew - time.Second)
	_, outcome := MessageEvent(cur, before)
	assert.Equal(t, Appended, outcome, "a message stamped before the send cannot confirm it")

	skewed := created("srv1", "hello")
	skewed.OccurredAt = at(100).Add(-DefaultMatcher.Skew)
	_, outcome = MessageEvent(cur, skewed)
	assert.Equal(t, Confirmed, outcome)
}

func TestCorrelationIDIgnoresWindow(t *testing.T) {
	cur := []crm.Message{pending("temp-1", "hello", 100)}
	evt := created("srv1", "hello")
	evt.OccurredAt = at(100).Add(time.Hour)
	evt.ClientMsgID = "temp-1"

	got, outcome := MessageEvent(cur, evt)
	require.Equal(t, Confirmed, outcome)
	assert.Equal(t, "srv1", got[0].ID)
}

func TestAppendWithoutDirectionIsLocal(t *testing.T) {
	got, outcome := MessageEvent(nil, created("m9", "hi"))
	require.Equal(t, Appended, outcome)
	assert.Equal(t, crm.SenderLocal, got[0].Sender)
}

func TestMergePageCollapsesCarriedPending(t *testing.T) {
	local := remote("srv1", "hello", 101)
	local.Sender = crm.SenderLocal
	page := []crm.Message{remote("m1", "hi", 50), local}
	carried := []crm.Message{pending("temp-1", "hello", 100), pending("temp-2", "hello", 102)}

	got := MergePage(page, carried)
	require.Len(t, got, 3, "one server copy absorbs one pending entry")
	assert.Equal(t, "m1", got[0].ID)
	assert.Equal(t, "srv1", got[1].ID)
	assert.Equal(t, "temp-2", got[2].ID)
	assert.Len(t, page, 2, "input must not be mutated")
}

func TestMergePageKeepsUnmatched(t *testing.T) {
	page := []crm.Message{remote("m1", "hello", 101)}
	failed := pending("temp-2", "later", 103)
	failed.DeliveryState = crm.DeliveryFailed
	carried := []crm.Message{pending("temp-1", "hello", 100), failed, remote("m1", "hello", 101)}

	got := MergePage(page, carried)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"m1", "temp-1", "temp-2"}, []string{got[0].ID, got[1].ID, got[2].ID},
		"remote copies never absorb a pending send and server ids are not repeated")
}
