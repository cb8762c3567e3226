// Package actor runs state-changing turns one at a time on a dedicated
// goroutine. Views own their collections through a Loop: wire callbacks,
// fetch results and user actions are all submitted as turns, so no two
// reconciliations of the same collection ever interleave.
package actor

import (
	"context"
	"sync"
)

// Loop executes submitted functions sequentially, in submission order.
type Loop struct {
	ops    chan func()
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// New starts a loop that lives until Close or until parent is done.
func New(parent context.Context, buffer int) *Loop {
	ctx, cancel := context.WithCancel(parent)
	l := &Loop{
		ops:    make(chan func(), buffer),
		ctx:    ctx,
		cancel: cancel,
	}
	l.wg.Add(1)
	go l.run()
	return l
}

// Context is cancelled when the loop closes.
func (l *Loop) Context() context.Context { return l.ctx }

// Do queues op and returns without waiting. It blocks while the queue is
// full and reports false once the loop is closed. Never call Do from inside
// a turn with a full queue; use Go for follow-up work instead.
func (l *Loop) Do(op func()) bool {
	select {
	case <-l.ctx.Done():
		return false
	default:
	}
	select {
	case l.ops <- op:
		return true
	case <-l.ctx.Done():
		return false
	}
}

// Call queues op and waits for it to run. Must not be called from a turn.
func (l *Loop) Call(op func()) bool {
	done := make(chan struct{})
	if !l.Do(func() { op(); close(done) }) {
		return false
	}
	select {
	case <-done:
		return true
	case <-l.ctx.Done():
		return false
	}
}

// Go runs fn on a tracked goroutine. Close waits for it. fn should return
// promptly once ctx is done.
func (l *Loop) Go(fn func(ctx context.Context)) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		fn(l.ctx)
	}()
	return true
}

// Close stops the loop and waits for it and every Go goroutine. Queued
// turns that have not started are discarded.
func (l *Loop) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.mu.Unlock()

	l.cancel()
	l.wg.Wait()
}

func (l *Loop) run() {
	defer l.wg.Done()
	for {
		select {
		case op := <-l.ops:
			if l.ctx.Err() != nil {
				return
			}
			op()
		case <-l.ctx.Done():
			return
		}
	}
}
