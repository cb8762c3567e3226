// Package thread keeps the messages of one open conversation in sync with
// the event channel and drives optimistic sends.
package thread

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/omnisync/internal/actor"
	"github.com/matheus3301/omnisync/internal/backend"
	"github.com/matheus3301/omnisync/internal/bus"
	"github.com/matheus3301/omnisync/internal/channel"
	"github.com/matheus3301/omnisync/internal/crm"
	"github.com/matheus3301/omnisync/internal/metrics"
	"github.com/matheus3301/omnisync/internal/outbox"
	"github.com/matheus3301/omnisync/internal/reconcile"
	"github.com/matheus3301/omnisync/internal/wire"
)

var (
	// ErrClosed is returned by operations on a closed view.
	ErrClosed = errors.New("thread closed")
	// ErrEmptyMessage is returned when sending blank text.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrNotFailed is returned when retrying a message that has not failed.
	ErrNotFailed = errors.New("message has not failed")
	// ErrUnknownMessage is returned when retrying an id not in the thread.
	ErrUnknownMessage = errors.New("unknown message")
)

// Backend is the part of the REST client the thread needs.
type Backend interface {
	Messages(ctx context.Context, q backend.MessageQuery) ([]crm.Message, error)
	PhoneConfigs(ctx context.Context) ([]backend.PhoneConfig, error)
}

// Source is the event channel.
type Source interface {
	Subscribe(event string, h channel.Handler) channel.Subscription
}

// Submitter queues outbound messages.
type Submitter interface {
	Submit(ctx context.Context, job outbox.Job) error
}

// Deps bundles the collaborators of a view.
type Deps struct {
	Backend Backend
	Source  Source
	Outbox  Submitter
	Parser  wire.Parser
	Bus     *bus.Bus
	Logger  *zap.Logger
	Metrics *metrics.Metrics

	// MatchWindow bounds how long after a send its confirmation may
	// arrive. Zero uses the reconciler default.
	MatchWindow time.Duration
}

// Conversation identifies the open thread.
type Conversation struct {
	Contact crm.Contact
	// Origin narrows a WhatsApp thread to one of the company's numbers.
	Origin string
	// ConnectionID forces the outbound number; empty selects by Origin.
	ConnectionID string
}

// Snapshot is published on the bus as thread.changed after every change.
type Snapshot struct {
	ContactID string
	Messages  []crm.Message
}

// View is one open conversation. Mutations run as turns on one loop
// goroutine; readers get copies.
type View struct {
	deps    Deps
	conv    Conversation
	logger  *zap.Logger
	loop    *actor.Loop
	matcher reconcile.Matcher

	mu         sync.RWMutex
	messages   []crm.Message
	loading    bool
	connection string
	subs       []channel.Subscription

	queued  []crm.Event // loop goroutine only
	mounted bool
}

// New creates an unmounted view for conv.
func New(deps Deps, conv Conversation) *View {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if conv.Contact.Platform == "" {
		conv.Contact.Platform = crm.DetectPlatform(conv.Contact)
	}
	matcher := reconcile.DefaultMatcher
	if deps.MatchWindow > 0 {
		matcher.Window = deps.MatchWindow
	}
	return &View{
		deps:       deps,
		conv:       conv,
		logger:     deps.Logger.Named("thread").With(zap.String("contact_id", conv.Contact.ID)),
		loop:       actor.New(context.Background(), 256),
		matcher:    matcher,
		connection: conv.ConnectionID,
	}
}

// ContactID returns the id of the open conversation.
func (v *View) ContactID() string { return v.conv.Contact.ID }

// Mount subscribes to the message events of this conversation, then loads
// the newest page in chronological order. Events arriving during the load
// are replayed on top of it.
func (v *View) Mount(ctx context.Context) error {
	first := false
	if !v.loop.Call(func() {
		if !v.mounted {
			v.mounted, first = true, true
			v.setLoading(true)
		}
	}) {
		return ErrClosed
	}
	if !first {
		return nil
	}

	v.mu.Lock()
	for _, name := range wire.Names {
		v.subs = append(v.subs, v.deps.Source.Subscribe(name, v.deps.Parser.Decode(name, v.logger, v.enqueue)))
	}
	v.mu.Unlock()

	v.selectConnection(ctx)

	page, err := v.deps.Backend.Messages(ctx, backend.MessageQuery{
		ContactID: v.conv.Contact.ID,
		Origin:    v.conv.Origin,
		Platform:  v.conv.Contact.Platform,
	})
	if err != nil {
		v.logger.Error("failed to load messages", zap.Error(err))
	}
	if !v.loop.Call(func() { v.finishLoad(page, err) }) {
		return ErrClosed
	}
	if err != nil {
		return fmt.Errorf("load messages: %w", err)
	}
	return nil
}

func (v *View) finishLoad(page []crm.Message, err error) {
	if err == nil {
		// Optimistic sends made during the load stay at the end unless the
		// page already holds them.
		v.set(v.matcher.MergePage(reconcile.Chronological(page), v.messages))
	}
	v.setLoading(false)

	queued := v.queued
	v.queued = nil
	for _, evt := range queued {
		v.apply(evt)
	}
}

func (v *View) selectConnection(ctx context.Context) {
	if v.conv.ConnectionID != "" || v.conv.Contact.Platform != crm.PlatformWhatsApp {
		return
	}
	id := backend.AutoConnection
	if v.conv.Origin != "" {
		configs, err := v.deps.Backend.PhoneConfigs(ctx)
		if err != nil {
			v.logger.Warn("phone configs unavailable, using auto connection", zap.Error(err))
		} else {
			id = backend.SelectConnection(configs, v.conv.Origin)
		}
	}
	v.mu.Lock()
	v.connection = id
	v.mu.Unlock()
}

// Connection returns the selected outbound connection id.
func (v *View) Connection() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.connection
}

// SetConnection overrides the outbound connection for later sends.
func (v *View) SetConnection(id string) {
	v.mu.Lock()
	v.connection = id
	v.mu.Unlock()
}

// Messages returns a copy of the thread in chronological order.
func (v *View) Messages() []crm.Message {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return slices.Clone(v.messages)
}

// Loading reports whether the initial page is still loading.
func (v *View) Loading() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.loading
}

// Send appends an optimistic message and queues it for delivery. The
// returned message carries the client-temporary id. A backend failure
// marks that entry failed in place; success leaves it pending until the
// confirming event arrives.
func (v *View) Send(ctx context.Context, text string) (crm.Message, error) {
	if strings.TrimSpace(text) == "" {
		return crm.Message{}, ErrEmptyMessage
	}
	if p := v.conv.Contact.Platform; p != crm.PlatformWhatsApp {
		return crm.Message{}, fmt.Errorf("send via %s: %w", p, backend.ErrUnsupportedPlatform)
	}

	msg := crm.Message{
		ID:             crm.NewTempID(),
		ConversationID: v.conv.Contact.ID,
		Content:        text,
		OccurredAt:     time.Now(),
		Sender:         crm.SenderLocal,
		DeliveryState:  crm.DeliveryPending,
		Platform:       v.conv.Contact.Platform,
	}
	if !v.loop.Call(func() { v.set(reconcile.AppendPending(v.messages, msg)) }) {
		return crm.Message{}, ErrClosed
	}
	if err := v.submit(ctx, msg); err != nil {
		return msg, err
	}
	return msg, nil
}

// Retry resubmits a failed message in place (failed → pending).
func (v *View) Retry(ctx context.Context, id string) error {
	var (
		msg   crm.Message
		found bool
		err   error
	)
	if !v.loop.Call(func() {
		i := slices.IndexFunc(v.messages, func(m crm.Message) bool { return m.ID == id })
		if i < 0 {
			err = fmt.Errorf("retry %s: %w", id, ErrUnknownMessage)
			return
		}
		if v.messages[i].DeliveryState != crm.DeliveryFailed {
			err = fmt.Errorf("retry %s: %w", id, ErrNotFailed)
			return
		}
		next, _ := reconcile.SetDeliveryState(v.messages, id, crm.DeliveryPending)
		// The confirmation window runs from the resend.
		next[i].OccurredAt = time.Now()
		v.set(next)
		msg, found = next[i], true
	}) {
		return ErrClosed
	}
	if !found {
		return err
	}
	v.logger.Info("retrying message", zap.String("client_msg_id", id))
	return v.submit(ctx, msg)
}

func (v *View) submit(ctx context.Context, msg crm.Message) error {
	job := outbox.Job{
		ClientMsgID: msg.ID,
		Request: backend.SendRequest{
			ContactID:    v.conv.Contact.ID,
			Phone:        v.conv.Contact.Phone,
			Platform:     v.conv.Contact.Platform,
			Text:         msg.Content,
			ConnectionID: v.Connection(),
			Origin:       v.conv.Origin,
		},
		Done: func(err error) {
			if err != nil {
				v.markFailed(msg.ID)
			}
		},
	}
	if err := v.deps.Outbox.Submit(ctx, job); err != nil {
		v.logger.Error("failed to queue message", zap.String("client_msg_id", msg.ID), zap.Error(err))
		v.markFailed(msg.ID)
		return fmt.Errorf("queue message: %w", err)
	}
	return nil
}

// markFailed is a no-op once the view is closed or the entry was already
// confirmed by an event.
func (v *View) markFailed(id string) {
	v.loop.Do(func() {
		next, ok := reconcile.SetDeliveryState(v.messages, id, crm.DeliveryFailed)
		if !ok {
			return
		}
		v.logger.Warn("message failed", zap.String("client_msg_id", id))
		v.set(next)
	})
}

// Close unsubscribes from the channel and drops the collection. Sends
// already queued still complete.
func (v *View) Close() {
	v.mu.Lock()
	subs := v.subs
	v.subs = nil
	v.mu.Unlock()
	for _, sub := range subs {
		sub.Unsubscribe()
	}
	v.loop.Close()
}

func (v *View) enqueue(evt crm.Event) {
	if !v.addresses(evt) {
		return
	}
	v.loop.Do(func() {
		if v.loading {
			v.queued = append(v.queued, evt)
			return
		}
		v.apply(evt)
	})
}

// addresses reports whether evt belongs to this conversation. An event
// from another origin number is ignored when both sides name one.
func (v *View) addresses(evt crm.Event) bool {
	if !evt.MatchesContact(v.conv.Contact) {
		// Removal events may carry nothing but the message id.
		if !(evt.Kind == crm.EventRemoved && evt.ContactID == "" && evt.Phone == "") {
			return false
		}
	}
	if v.conv.Origin != "" && evt.Origin != "" && evt.Origin != v.conv.Origin {
		return false
	}
	return true
}

func (v *View) apply(evt crm.Event) {
	next, outcome := v.matcher.MessageEvent(v.messages, evt)
	v.deps.Metrics.RecordReconcile("thread", string(outcome))
	switch outcome {
	case reconcile.Updated, reconcile.Confirmed, reconcile.Appended, reconcile.Removed:
		v.set(next)
		if outcome == reconcile.Confirmed {
			v.logger.Debug("optimistic message confirmed", zap.String("msg_id", evt.MessageID))
		}
	}
}

// set replaces the collection and publishes it. Loop goroutine only.
func (v *View) set(next []crm.Message) {
	v.mu.Lock()
	v.messages = next
	v.mu.Unlock()
	v.deps.Bus.Emit(bus.KindThreadChanged, Snapshot{ContactID: v.conv.Contact.ID, Messages: slices.Clone(next)})
}

func (v *View) setLoading(on bool) {
	v.mu.Lock()
	v.loading = on
	v.mu.Unlock()
}
