// Package outbox submits outbound messages to the backend on a pool of
// app-lifetime workers, so a send outlives the view that issued it.
package outbox

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/omnisync/internal/backend"
	"github.com/matheus3301/omnisync/internal/bus"
	"github.com/matheus3301/omnisync/internal/metrics"
)

// ErrStopped is returned by Submit after Stop and passed to the completion
// callback of jobs that never ran.
var ErrStopped = errors.New("outbox stopped")

// Sender is the backend call the outbox drives.
type Sender interface {
	Send(ctx context.Context, req backend.SendRequest) error
}

// Job is one outbound message. Done, if set, is called exactly once with the
// send result, from a worker goroutine.
type Job struct {
	ClientMsgID string
	Request     backend.SendRequest
	Done        func(error)
}

// Result is the payload of message.send_ack and message.send_failed.
type Result struct {
	ClientMsgID string
	ContactID   string
	Err         string
}

// Outbox is a fixed pool of send workers fed by a bounded queue.
type Outbox struct {
	sender  Sender
	bus     *bus.Bus
	logger  *zap.Logger
	metrics *metrics.Metrics
	workers int

	jobs chan Job

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates an outbox with the given number of workers (at least one).
func New(sender Sender, b *bus.Bus, logger *zap.Logger, m *metrics.Metrics, workers int) *Outbox {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Outbox{
		sender:  sender,
		bus:     b,
		logger:  logger,
		metrics: m,
		workers: workers,
		jobs:    make(chan Job, 64),
	}
}

// Start launches the workers. Calling it twice is a no-op.
func (o *Outbox) Start(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.started || o.stopped {
		return
	}
	o.started = true
	ctx, o.cancel = context.WithCancel(ctx)
	for i := 0; i < o.workers; i++ {
		o.wg.Add(1)
		go o.loop(ctx)
	}
}

// Stop cancels in-flight sends, waits for the workers and fails every
// queued job with ErrStopped.
func (o *Outbox) Stop() {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return
	}
	o.stopped = true
	if o.cancel != nil {
		o.cancel()
	}
	o.mu.Unlock()

	o.wg.Wait()
	for {
		select {
		case job := <-o.jobs:
			finish(job, ErrStopped)
		default:
			return
		}
	}
}

// Submit queues a job. It blocks while the queue is full, until ctx is done.
func (o *Outbox) Submit(ctx context.Context, job Job) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopped {
		return ErrStopped
	}
	select {
	case o.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Outbox) loop(ctx context.Context) {
	defer o.wg.Done()
	for {
		select {
		case job := <-o.jobs:
			if ctx.Err() != nil {
				finish(job, ErrStopped)
				return
			}
			o.process(ctx, job)
		case <-ctx.Done():
			return
		}
	}
}

func (o *Outbox) process(ctx context.Context, job Job) {
	start := time.Now()
	err := o.sender.Send(ctx, job.Request)
	took := time.Since(start)

	if err != nil {
		o.logger.Error("failed to send message",
			zap.String("client_msg_id", job.ClientMsgID),
			zap.String("contact_id", job.Request.ContactID),
			zap.Error(err),
		)
		o.metrics.RecordSend("failed", took)
		o.bus.Emit(bus.KindSendFailed, Result{ClientMsgID: job.ClientMsgID, ContactID: job.Request.ContactID, Err: err.Error()})
	} else {
		o.logger.Info("message sent",
			zap.String("client_msg_id", job.ClientMsgID),
			zap.String("contact_id", job.Request.ContactID),
			zap.Duration("took", took),
		)
		o.metrics.RecordSend("ok", took)
		o.bus.Emit(bus.KindSendAck, Result{ClientMsgID: job.ClientMsgID, ContactID: job.Request.ContactID})
	}
	finish(job, err)
}

func finish(job Job, err error) {
	if job.Done != nil {
		job.Done(err)
	}
}
