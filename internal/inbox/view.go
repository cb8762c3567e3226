// Package inbox keeps the signed-in user's ordered conversation list in
// sync with the event channel.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/matheus3301/omnisync/internal/actor"
	"github.com/matheus3301/omnisync/internal/bus"
	"github.com/matheus3301/omnisync/internal/channel"
	"github.com/matheus3301/omnisync/internal/crm"
	"github.com/matheus3301/omnisync/internal/metrics"
	"github.com/matheus3301/omnisync/internal/reconcile"
	"github.com/matheus3301/omnisync/internal/wire"
)

// ErrClosed is returned by operations on a closed view.
var ErrClosed = errors.New("inbox closed")

// Backend is the part of the REST client the inbox needs.
type Backend interface {
	Conversations(ctx context.Context) ([]crm.Summary, error)
	LookupContact(ctx context.Context, evt crm.Event) (crm.Contact, error)
}

// Source is the event channel.
type Source interface {
	Subscribe(event string, h channel.Handler) channel.Subscription
}

// Snapshot is published on the bus as inbox.changed after every change.
type Snapshot struct {
	Summaries []crm.Summary
	Unread    int // sum of unread counts
}

// View is the conversation list. All mutations run as turns on one loop
// goroutine; readers get copies.
type View struct {
	backend Backend
	source  Source
	parser  wire.Parser
	bus     *bus.Bus
	logger  *zap.Logger
	metrics *metrics.Metrics

	loop *actor.Loop
	subs []channel.Subscription

	mu        sync.RWMutex
	summaries []crm.Summary
	loading   bool

	// owned by the loop goroutine
	queued   []crm.Event
	inflight map[string]bool
	mounted  bool
}

// New creates an unmounted inbox.
func New(b Backend, src Source, parser wire.Parser, eb *bus.Bus, logger *zap.Logger, m *metrics.Metrics) *View {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &View{
		backend:  b,
		source:   src,
		parser:   parser,
		bus:      eb,
		logger:   logger.Named("inbox"),
		metrics:  m,
		loop:     actor.New(context.Background(), 256),
		inflight: make(map[string]bool),
	}
}

// Mount subscribes to the message events and loads the initial snapshot.
// Events arriving during the load are replayed on top of it. A failed load
// leaves the view live with an empty list; Refresh can be retried.
func (v *View) Mount(ctx context.Context) error {
	first := false
	if !v.loop.Call(func() {
		if v.mounted {
			return
		}
		v.mounted, first = true, true
		v.setLoading(true)
	}) {
		return ErrClosed
	}
	if !first {
		return nil
	}
	v.mu.Lock()
	for _, name := range wire.Names {
		v.subs = append(v.subs, v.source.Subscribe(name, v.parser.Decode(name, v.logger, v.enqueue)))
	}
	v.mu.Unlock()
	return v.load(ctx)
}

// Refresh reloads the snapshot from the backend. Concurrent refreshes are
// coalesced into the one already running.
func (v *View) Refresh(ctx context.Context) error {
	start := false
	if !v.loop.Call(func() {
		if v.loading {
			return
		}
		start = true
		v.setLoading(true)
	}) {
		return ErrClosed
	}
	if !start {
		return nil
	}
	return v.load(ctx)
}

func (v *View) load(ctx context.Context) error {
	list, err := v.backend.Conversations(ctx)
	if err != nil {
		v.logger.Error("failed to load conversations", zap.Error(err))
	}
	if !v.loop.Call(func() { v.finishLoad(list, err) }) {
		return ErrClosed
	}
	if err != nil {
		return fmt.Errorf("load conversations: %w", err)
	}
	return nil
}

func (v *View) finishLoad(list []crm.Summary, err error) {
	if err == nil {
		v.set(reconcile.DedupeSummaries(list))
		v.logger.Info("conversations loaded", zap.Int("count", len(list)))
	}
	v.setLoading(false)

	queued := v.queued
	v.queued = nil
	for _, evt := range queued {
		if err == nil && reconcile.Reflected(v.summaries, evt) {
			v.metrics.RecordReconcile("inbox", string(reconcile.Ignored))
			v.logger.Debug("queued event already in snapshot", zap.String("msg_id", evt.MessageID))
			continue
		}
		v.handle(evt)
	}
}

// MarkRead clears the unread count of a conversation locally. Opening a
// thread marks it read on the server.
func (v *View) MarkRead(contactID string) {
	v.loop.Do(func() {
		i := slices.IndexFunc(v.summaries, func(s crm.Summary) bool { return s.ID == contactID })
		if i < 0 || v.summaries[i].UnreadCount == 0 {
			return
		}
		next := slices.Clone(v.summaries)
		next[i].UnreadCount = 0
		if lm := next[i].LastMessage; lm != nil {
			cp := *lm
			cp.IsRead = true
			next[i].LastMessage = &cp
		}
		v.set(next)
	})
}

// Summaries returns a copy of the ordered list.
func (v *View) Summaries() []crm.Summary {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return slices.Clone(v.summaries)
}

// Filtered returns the rows matching f without touching the list.
func (v *View) Filtered(f Filter) []crm.Summary {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return f.Apply(v.summaries)
}

// Loading reports whether a snapshot load is in progress.
func (v *View) Loading() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.loading
}

// Close unsubscribes from the channel and stops pending lookups.
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

// enqueue runs on the channel's read goroutine.
func (v *View) enqueue(evt crm.Event) {
	v.loop.Do(func() { v.handle(evt) })
}

func (v *View) handle(evt crm.Event) {
	if v.loading {
		v.queued = append(v.queued, evt)
		return
	}
	if evt.Kind == crm.EventRemoved {
		// The list never drops rows itself; the server decides.
		v.metrics.RecordReconcile("inbox", string(reconcile.Removed))
		v.loop.Go(func(ctx context.Context) { _ = v.Refresh(ctx) })
		return
	}

	next, outcome := reconcile.ConversationEvent(v.summaries, evt)
	v.metrics.RecordReconcile("inbox", string(outcome))
	switch outcome {
	case reconcile.Moved:
		v.set(next)
	case reconcile.Unmatched:
		v.lookup(evt)
	}
}

func lookupKey(evt crm.Event) string {
	if evt.ContactID != "" {
		return "id:" + evt.ContactID
	}
	if evt.Phone != "" {
		return "phone:" + evt.Phone
	}
	return ""
}

func (v *View) lookup(evt crm.Event) {
	key := lookupKey(evt)
	if key == "" {
		v.logger.Debug("dropping event without contact identity", zap.String("msg_id", evt.MessageID))
		return
	}
	if v.inflight[key] {
		return
	}
	v.inflight[key] = true
	v.loop.Go(func(ctx context.Context) {
		c, err := v.backend.LookupContact(ctx, evt)
		v.loop.Do(func() {
			delete(v.inflight, key)
			v.resolved(evt, c, err)
		})
	})
}

func (v *View) resolved(evt crm.Event, c crm.Contact, err error) {
	if err != nil || c.ID == "" {
		v.logger.Warn("dropping event for unknown contact",
			zap.String("contact_id", evt.ContactID),
			zap.String("msg_id", evt.MessageID),
			zap.Error(err),
		)
		return
	}
	evt.ContactID = c.ID
	if v.loading {
		v.queued = append(v.queued, evt)
		return
	}
	if reconcile.FindSummary(v.summaries, evt) >= 0 {
		next, outcome := reconcile.ConversationEvent(v.summaries, evt)
		v.metrics.RecordReconcile("inbox", string(outcome))
		v.set(next)
		return
	}
	v.set(reconcile.PrependSummary(v.summaries, reconcile.SummaryFromEvent(c, evt)))
	v.logger.Debug("new conversation", zap.String("contact_id", c.ID))
}

// set replaces the list and publishes it. Loop goroutine only.
func (v *View) set(next []crm.Summary) {
	v.mu.Lock()
	v.summaries = next
	v.mu.Unlock()

	unread := 0
	for _, s := range next {
		unread += s.UnreadCount
	}
	v.bus.Emit(bus.KindInboxChanged, Snapshot{Summaries: slices.Clone(next), Unread: unread})
}

func (v *View) setLoading(on bool) {
	v.mu.Lock()
	v.loading = on
	v.mu.Unlock()
}
