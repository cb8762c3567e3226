package thread

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matheus3301/omnisync/internal/backend"
	"github.com/matheus3301/omnisync/internal/bus"
	"github.com/matheus3301/omnisync/internal/channel/channeltest"
	"github.com/matheus3301/omnisync/internal/crm"
	"github.com/matheus3301/omnisync/internal/inbox"
	"github.com/matheus3301/omnisync/internal/outbox"
	"github.com/matheus3301/omnisync/internal/wire"
)

type fakeBackend struct {
	mu      sync.Mutex
	page    []crm.Message // newest first
	err     error
	configs []backend.PhoneConfig
	queries []backend.MessageQuery
	gate    chan struct{} // when set, Messages waits on it
}

func (f *fakeBackend) Messages(ctx context.Context, q backend.MessageQuery) ([]crm.Message, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]crm.Message(nil), f.page...), f.err
}

func (f *fakeBackend) PhoneConfigs(context.Context) ([]backend.PhoneConfig, error) {
	return f.configs, nil
}

// fakeOutbox completes every job asynchronously with result.
type fakeOutbox struct {
	mu        sync.Mutex
	jobs      []outbox.Job
	result    error
	submitErr error
}

func (f *fakeOutbox) Submit(_ context.Context, job outbox.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return f.submitErr
	}
	f.jobs = append(f.jobs, job)
	result := f.result
	go job.Done(result)
	return nil
}

func (f *fakeOutbox) Jobs() []outbox.Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]outbox.Job(nil), f.jobs...)
}

var ana = crm.Contact{ID: "x", Name: "Ana", Phone: "5511", Platform: crm.PlatformWhatsApp}

func msg(id, content string, sec int64, sender crm.Sender) crm.Message {
	return crm.Message{ID: id, ConversationID: "x", Content: content, OccurredAt: time.Unix(sec, 0), Sender: sender, DeliveryState: crm.DeliverySent}
}

func msgIDs(list []crm.Message) []string {
	out := make([]string, len(list))
	for i, m := range list {
		out[i] = m.ID
	}
	return out
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 2*time.Millisecond, msg)
}

type harness struct {
	view    *View
	conn    *channeltest.Conn
	backend *fakeBackend
	outbox  *fakeOutbox
	bus     *bus.Bus
}

func setup(t *testing.T, conv Conversation, fb *fakeBackend) *harness {
	t.Helper()
	ch, conn := channeltest.Connected(t)
	h := &harness{conn: conn, backend: fb, outbox: &fakeOutbox{}, bus: bus.New()}
	h.view = New(Deps{Backend: fb, Source: ch, Outbox: h.outbox, Bus: h.bus}, conv)
	t.Cleanup(h.view.Close)
	require.NoError(t, h.view.Mount(context.Background()))
	return h
}

func TestMountLoadsChronologically(t *testing.T) {
	fb := &fakeBackend{page: []crm.Message{
		msg("m3", "three", 3, crm.SenderRemote),
		msg("m2", "two", 2, crm.SenderLocal),
		msg("m1", "one", 1, crm.SenderRemote),
	}}
	h := setup(t, Conversation{Contact: ana, Origin: "5500"}, fb)

	assert.Equal(t, []string{"m1", "m2", "m3"}, msgIDs(h.view.Messages()))
	require.Len(t, fb.queries, 1)
	assert.Equal(t, backend.MessageQuery{ContactID: "x", Origin: "5500", Platform: crm.PlatformWhatsApp}, fb.queries[0])
}

func TestEventsForOtherConversationsIgnored(t *testing.T) {
	h := setup(t, Conversation{Contact: ana, Origin: "5500"}, &fakeBackend{})

	h.conn.Push(wire.EventCreated, `{"client_id":"other","text":"nope","_id":"o1"}`)
	h.conn.Push(wire.EventCreated, `{"client_id":"x","text":"wrong line","_id":"o2","phone_origin":"5599"}`)
	h.conn.Push(wire.EventCreated, `{"phone":"5511","text":"by phone","_id":"m1","phone_origin":"5500","isOpen":false}`)

	eventually(t, func() bool { return len(h.view.Messages()) == 1 }, "matching event never applied")
	got := h.view.Messages()[0]
	assert.Equal(t, "m1", got.ID)
	assert.Equal(t, crm.SenderRemote, got.Sender)
}

func TestOptimisticSendCollapses(t *testing.T) {
	fb := &fakeBackend{page: []crm.Message{msg("m1", "earlier", 1, crm.SenderRemote)}}
	h := setup(t, Conversation{Contact: ana}, fb)

	sent, err := h.view.Send(context.Background(), "hello")
	require.NoError(t, err)
	assert.True(t, sent.IsTemporary())
	assert.Equal(t, crm.DeliveryPending, h.view.Messages()[1].DeliveryState)

	h.conn.Push(wire.EventCreated, `{"client_id":"x","text":"hello","_id":"srv1","sender":"user"}`)
	eventually(t, func() bool { return h.view.Messages()[1].ID == "srv1" }, "pending message never confirmed")

	got := h.view.Messages()
	require.Len(t, got, 2)
	assert.Equal(t, "hello", got[1].Content)
	assert.Equal(t, crm.DeliverySent, got[1].DeliveryState)
	assert.Equal(t, sent.OccurredAt, got[1].OccurredAt)
}

func TestSendDuringLoadCollapsesIntoPage(t *testing.T) {
	fb := &fakeBackend{gate: make(chan struct{})}
	ch, conn := channeltest.Connected(t)
	v := New(Deps{Backend: fb, Source: ch, Outbox: &fakeOutbox{}, Bus: bus.New()}, Conversation{Contact: ana})
	t.Cleanup(v.Close)

	mounted := make(chan error, 1)
	go func() { mounted <- v.Mount(context.Background()) }()
	eventually(t, v.Loading, "view never started loading")

	sent, err := v.Send(context.Background(), "hello")
	require.NoError(t, err)

	// The page is read after the send reached the server.
	srv := msg("srv1", "hello", 0, crm.SenderLocal)
	srv.OccurredAt = sent.OccurredAt.Add(time.Second)
	fb.mu.Lock()
	fb.page = []crm.Message{srv}
	fb.mu.Unlock()
	close(fb.gate)
	require.NoError(t, <-mounted)

	assert.Equal(t, []string{"srv1"}, msgIDs(v.Messages()))

	conn.Push(wire.EventCreated, `{"client_id":"x","text":"hello","_id":"srv1","sender":"user"}`)
	conn.Push(wire.EventCreated, `{"client_id":"x","text":"reply","_id":"m9","isOpen":false}`)
	eventually(t, func() bool { return len(v.Messages()) == 2 }, "reply never applied")
	assert.Equal(t, []string{"srv1", "m9"}, msgIDs(v.Messages()))
}

func TestSendDuringLoadKeptWhenPageLacksIt(t *testing.T) {
	fb := &fakeBackend{
		page: []crm.Message{msg("m1", "older", 1, crm.SenderRemote)},
		gate: make(chan struct{}),
	}
	ch, _ := channeltest.Connected(t)
	v := New(Deps{Backend: fb, Source: ch, Outbox: &fakeOutbox{}, Bus: bus.New()}, Conversation{Contact: ana})
	t.Cleanup(v.Close)

	mounted := make(chan error, 1)
	go func() { mounted <- v.Mount(context.Background()) }()
	eventually(t, v.Loading, "view never started loading")

	sent, err := v.Send(context.Background(), "hello")
	require.NoError(t, err)
	close(fb.gate)
	require.NoError(t, <-mounted)

	assert.Equal(t, []string{"m1", sent.ID}, msgIDs(v.Messages()))
	assert.Equal(t, crm.DeliveryPending, v.Messages()[1].DeliveryState)
}

func TestFailedSendLeavesEntryVisible(t *testing.T) {
	h := setup(t, Conversation{Contact: ana}, &fakeBackend{})
	h.outbox.result = errors.New("instance offline")

	sent, err := h.view.Send(context.Background(), "test")
	require.NoError(t, err)

	eventually(t, func() bool { return h.view.Messages()[0].DeliveryState == crm.DeliveryFailed }, "entry never failed")
	got := h.view.Messages()
	require.Len(t, got, 1)
	assert.Equal(t, sent.ID, got[0].ID)
	assert.Equal(t, "test", got[0].Content)
}

func TestQueueFailureMarksFailed(t *testing.T) {
	h := setup(t, Conversation{Contact: ana}, &fakeBackend{})
	h.outbox.submitErr = outbox.ErrStopped

	_, err := h.view.Send(context.Background(), "late")
	require.ErrorIs(t, err, outbox.ErrStopped)
	eventually(t, func() bool { return h.view.Messages()[0].DeliveryState == crm.DeliveryFailed }, "entry never failed")
}

func TestRetry(t *testing.T) {
	h := setup(t, Conversation{Contact: ana}, &fakeBackend{page: []crm.Message{msg("m1", "old", 1, crm.SenderRemote)}})
	h.outbox.result = errors.New("boom")

	sent, err := h.view.Send(context.Background(), "again")
	require.NoError(t, err)
	eventually(t, func() bool { return h.view.Messages()[1].DeliveryState == crm.DeliveryFailed }, "entry never failed")

	assert.ErrorIs(t, h.view.Retry(context.Background(), "m1"), ErrNotFailed)
	assert.ErrorIs(t, h.view.Retry(context.Background(), "nope"), ErrUnknownMessage)

	h.outbox.mu.Lock()
	h.outbox.result = nil
	h.outbox.mu.Unlock()
	require.NoError(t, h.view.Retry(context.Background(), sent.ID))

	got := h.view.Messages()
	assert.Equal(t, []string{"m1", sent.ID}, msgIDs(got))
	assert.Equal(t, crm.DeliveryPending, got[1].DeliveryState)
	jobs := h.outbox.Jobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, "again", jobs[1].Request.Text)
	assert.Equal(t, sent.ID, jobs[1].ClientMsgID)
}

func TestSendValidation(t *testing.T) {
	h := setup(t, Conversation{Contact: ana}, &fakeBackend{})
	_, err := h.view.Send(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)

	ig := crm.Contact{ID: "ig", InstagramUsername: "caio"}
	hi := setup(t, Conversation{Contact: ig}, &fakeBackend{})
	_, err = hi.view.Send(context.Background(), "hi")
	assert.ErrorIs(t, err, backend.ErrUnsupportedPlatform)
	assert.Empty(t, hi.view.Messages())
}

func TestConnectionSelection(t *testing.T) {
	fb := &fakeBackend{configs: []backend.PhoneConfig{
		{ID: "p1", PhoneNumber: "+55 11 4000"},
		{ID: "p2", PhoneNumber: "+55 11 5500"},
	}}
	h := setup(t, Conversation{Contact: ana, Origin: "55115500"}, fb)
	assert.Equal(t, "p2", h.view.Connection())

	_, err := h.view.Send(context.Background(), "hi")
	require.NoError(t, err)
	req := h.outbox.Jobs()[0].Request
	assert.Equal(t, "p2", req.ConnectionID)
	assert.Equal(t, "55115500", req.Origin)
	assert.Equal(t, "x", req.ContactID)

	noOrigin := setup(t, Conversation{Contact: ana}, fb)
	assert.Equal(t, backend.AutoConnection, noOrigin.view.Connection())

	forced := setup(t, Conversation{Contact: ana, Origin: "55115500", ConnectionID: "p1"}, fb)
	assert.Equal(t, "p1", forced.view.Connection())
}

func TestRemovalAndPatch(t *testing.T) {
	fb := &fakeBackend{page: []crm.Message{msg("m2", "two", 2, crm.SenderRemote), msg("m1", "one", 1, crm.SenderRemote)}}
	h := setup(t, Conversation{Contact: ana}, fb)

	h.conn.Push(wire.EventPatched, `{"client_id":"x","_id":"m1","text":"one (edited)"}`)
	h.conn.Push(wire.EventRemoved, `{"_id":"m2"}`)
	eventually(t, func() bool { return len(h.view.Messages()) == 1 }, "removal never applied")
	got := h.view.Messages()
	assert.Equal(t, "m1", got[0].ID)
	assert.Equal(t, "one (edited)", got[0].Content)
}

func TestCloseStopsUpdates(t *testing.T) {
	ch, conn := channeltest.Connected(t)
	ob := &fakeOutbox{}
	v := New(Deps{Backend: &fakeBackend{}, Source: ch, Outbox: ob}, Conversation{Contact: ana})
	require.NoError(t, v.Mount(context.Background()))
	assert.Equal(t, 1, ch.Handlers(wire.EventCreated))

	v.Close()
	assert.Zero(t, ch.Handlers(wire.EventCreated))
	conn.Push(wire.EventCreated, `{"client_id":"x","text":"late","_id":"m9"}`)

	_, err := v.Send(context.Background(), "after close")
	assert.ErrorIs(t, err, ErrClosed)
	assert.Empty(t, ob.Jobs())
}

func TestListAndThreadStayConsistent(t *testing.T) {
	ch, conn := channeltest.Connected(t)
	summaries := []crm.Summary{{Contact: ana}}
	list := inbox.New(listBackend{summaries}, ch, wire.Parser{}, nil, nil, nil)
	defer list.Close()
	require.NoError(t, list.Mount(context.Background()))

	th := New(Deps{Backend: &fakeBackend{}, Source: ch, Outbox: &fakeOutbox{}}, Conversation{Contact: ana})
	defer th.Close()
	require.NoError(t, th.Mount(context.Background()))

	conn.Push(wire.EventCreated, `{"client_id":"x","text":"hi","_id":"m1","isOpen":false}`)

	eventually(t, func() bool { return list.Summaries()[0].UnreadCount == 1 }, "inbox not updated")
	eventually(t, func() bool { return len(th.Messages()) == 1 }, "thread not updated")

	s := list.Summaries()[0]
	assert.Equal(t, "hi", s.LastMessage.Preview)
	m := th.Messages()[0]
	assert.Equal(t, "m1", m.ID)
	assert.Equal(t, "hi", m.Content)
	assert.Equal(t, crm.SenderRemote, m.Sender)
}

type listBackend struct{ list []crm.Summary }

func (l listBackend) Conversations(context.Context) ([]crm.Summary, error) { return l.list, nil }

func (l listBackend) LookupContact(context.Context, crm.Event) (crm.Contact, error) {
	return crm.Contact{}, backend.ErrNotFound
}
