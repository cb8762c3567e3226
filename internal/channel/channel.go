// Package channel owns the persistent real-time connection to the CRM
// backend: connect/reconnect lifecycle, named-event subscriptions and emit.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/omnisync/internal/metrics"
	"github.com/matheus3301/omnisync/internal/status"
)

// Conn is one established transport connection.
type Conn interface {
	// Read blocks until the next named event arrives.
	Read() (event string, payload json.RawMessage, err error)
	Emit(event string, payload any) error
	Close() error
}

// Transport dials new connections.
type Transport interface {
	Dial(ctx context.Context) (Conn, error)
}

// Handler receives the raw payload of one event.
type Handler func(payload json.RawMessage)

// Options controls the retry policy.
type Options struct {
	MaxAttempts  int           // consecutive failed dials before Failed
	InitialDelay time.Duration // first retry delay, doubled per failure
	MaxDelay     time.Duration
}

// DefaultOptions mirror the socket.io client defaults.
var DefaultOptions = Options{
	MaxAttempts:  10,
	InitialDelay: time.Second,
	MaxDelay:     5 * time.Second,
}

type registration struct {
	id uint64
	fn Handler
}

// Channel is the single event connection of a process. Create it once and
// hand it to the views that need it.
type Channel struct {
	transport Transport
	state     *status.Machine
	logger    *zap.Logger
	metrics   *metrics.Metrics
	opts      Options

	mu       sync.Mutex
	handlers map[string][]registration
	nextID   uint64
	conn     Conn
	cancel   context.CancelFunc
	runID    uint64
}

// New creates a disconnected channel.
func New(t Transport, state *status.Machine, opts Options, logger *zap.Logger, m *metrics.Metrics) *Channel {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultOptions.MaxAttempts
	}
	if opts.InitialDelay <= 0 {
		opts.InitialDelay = DefaultOptions.InitialDelay
	}
	if opts.MaxDelay < opts.InitialDelay {
		opts.MaxDelay = opts.InitialDelay
	}
	if state == nil {
		state = status.NewMachine(nil)
	}
	return &Channel{
		transport: t,
		state:     state,
		logger:    logger,
		metrics:   m,
		opts:      opts,
		handlers:  make(map[string][]registration),
	}
}

// State returns the current connection state.
func (c *Channel) State() status.State {
	return c.state.Current()
}

// Connect starts the connection loop and returns immediately. It is a no-op
// while a loop is already running (connecting, connected or retrying).
// After Failed, calling Connect starts a fresh series of attempts. The loop
// lives until Disconnect or until ctx is cancelled.
func (c *Channel) Connect(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.runID++
	go c.run(ctx, c.runID)
}

// Disconnect tears down the transport and clears every subscription.
// Outstanding Subscription values become inert.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.handlers = make(map[string][]registration)
	if c.state.Reset() {
		c.metrics.SetChannelState(string(status.Disconnected))
		c.logger.Info("channel disconnected")
	}
}

// Subscribe registers h for event. Handlers of one event run in
// registration order on the channel's read goroutine.
func (c *Channel) Subscribe(event string, h Handler) Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	c.handlers[event] = append(c.handlers[event], registration{id: c.nextID, fn: h})
	return Subscription{ch: c, event: event, id: c.nextID}
}

// Unsubscribe removes one registration. Removing the last handler of an
// event leaves the connection open. Unknown or already removed
// subscriptions are ignored.
func (c *Channel) Unsubscribe(sub Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	regs := c.handlers[sub.event]
	for i, r := range regs {
		if r.id == sub.id {
			c.handlers[sub.event] = append(regs[:i:i], regs[i+1:]...)
			break
		}
	}
	if len(c.handlers[sub.event]) == 0 {
		delete(c.handlers, sub.event)
	}
}

// Handlers returns how many handlers are registered for event.
func (c *Channel) Handlers(event string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handlers[event])
}

// Emit sends an event if connected. Otherwise the event is logged and
// dropped; nothing is queued across disconnects.
func (c *Channel) Emit(event string, payload any) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil || c.state.Current() != status.Connected {
		c.metrics.RecordEmitDropped()
		c.logger.Warn("emit dropped, channel not connected",
			zap.String("event", event),
			zap.String("state", string(c.state.Current())),
		)
		return
	}
	if err := conn.Emit(event, payload); err != nil {
		c.metrics.RecordEmitDropped()
		c.logger.Warn("emit failed", zap.String("event", event), zap.Error(err))
	}
}

func (c *Channel) run(ctx context.Context, id uint64) {
	delay := c.opts.InitialDelay
	attempt := 0

	for {
		if !c.transition(ctx, status.Connecting) {
			return
		}
		conn, err := c.transport.Dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			attempt++
			c.metrics.RecordReconnectAttempt()
			c.logger.Warn("channel connect failed",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", c.opts.MaxAttempts),
				zap.Error(err),
			)
			if attempt >= c.opts.MaxAttempts {
				c.fail(ctx, id)
				return
			}
			if !c.transition(ctx, status.Disconnected) || !sleep(ctx, delay) {
				return
			}
			delay = min(delay*2, c.opts.MaxDelay)
			continue
		}

		if !c.attach(ctx, conn) {
			_ = conn.Close()
			return
		}
		if attempt > 0 {
			c.logger.Info("channel reconnected", zap.Int("attempts", attempt))
		} else {
			c.logger.Info("channel connected")
		}
		attempt = 0
		delay = c.opts.InitialDelay

		err = c.readLoop(conn)
		c.detach(conn)
		if ctx.Err() != nil {
			return
		}
		c.logger.Warn("channel dropped", zap.Error(err))
		if !c.transition(ctx, status.Disconnected) || !sleep(ctx, delay) {
			return
		}
	}
}

// transition moves the state machine unless the loop was cancelled.
// Holding mu orders it against Disconnect.
func (c *Channel) transition(ctx context.Context, to status.State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ctx.Err() != nil {
		return false
	}
	if err := c.state.Transition(to); err != nil {
		c.logger.Error("channel state", zap.Error(err))
		return false
	}
	c.metrics.SetChannelState(string(to))
	return true
}

func (c *Channel) attach(ctx context.Context, conn Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ctx.Err() != nil {
		return false
	}
	if err := c.state.Transition(status.Connected); err != nil {
		c.logger.Error("channel state", zap.Error(err))
		return false
	}
	c.metrics.SetChannelState(string(status.Connected))
	c.conn = conn
	return true
}

func (c *Channel) detach(conn Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	_ = conn.Close()
}

func (c *Channel) fail(ctx context.Context, id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ctx.Err() != nil {
		return
	}
	if err := c.state.Transition(status.Failed); err == nil {
		c.metrics.SetChannelState(string(status.Failed))
		c.logger.Error("channel failed, giving up until the next connect",
			zap.Int("attempts", c.opts.MaxAttempts))
	}
	// Let a later Connect start a new loop.
	if c.runID == id && c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

func (c *Channel) readLoop(conn Conn) error {
	for {
		event, payload, err := conn.Read()
		if err != nil {
			return err
		}
		c.metrics.RecordEvent(event)
		c.dispatch(event, payload)
	}
}

func (c *Channel) dispatch(event string, payload json.RawMessage) {
	c.mu.Lock()
	regs := append([]registration(nil), c.handlers[event]...)
	c.mu.Unlock()

	for _, r := range regs {
		c.invoke(event, r.fn, payload)
	}
}

// invoke runs one handler. A panic is logged and counted; it never reaches
// the read loop or the other handlers.
func (c *Channel) invoke(event string, h Handler, payload json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			c.metrics.RecordHandlerPanic(event)
			c.logger.Error("event handler panicked",
				zap.String("event", event),
				zap.Error(panicError(r)),
			)
		}
	}()
	h(payload)
}

func panicError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return errors.New(fmt.Sprint(r))
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
