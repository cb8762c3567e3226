package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/omnisync/internal/backend"
	"github.com/matheus3301/omnisync/internal/bus"
)

// mockSender records calls and returns configurable results.
type mockSender struct {
	mu    sync.Mutex
	calls []backend.SendRequest
	err   error
	block chan struct{} // when set, Send waits on it or ctx
}

func (m *mockSender) Send(ctx context.Context, req backend.SendRequest) error {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return m.err
}

func (m *mockSender) Calls() []backend.SendRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]backend.SendRequest(nil), m.calls...)
}

func waitDone(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for job completion")
		return nil
	}
}

func TestSubmitSendsAndAcks(t *testing.T) {
	b := bus.New()
	mock := &mockSender{}
	o := New(mock, b, nil, nil, 2)

	ch, unsub := b.Subscribe(bus.KindSendAck, 10)
	defer unsub()

	o.Start(context.Background())
	defer o.Stop()

	done := make(chan error, 1)
	req := backend.SendRequest{ContactID: "c1", Text: "hello"}
	if err := o.Submit(context.Background(), Job{ClientMsgID: "temp-1", Request: req, Done: func(err error) { done <- err }}); err != nil {
		t.Fatal(err)
	}
	if err := waitDone(t, done); err != nil {
		t.Fatalf("Done(%v), want nil", err)
	}

	calls := mock.Calls()
	if len(calls) != 1 || calls[0] != req {
		t.Fatalf("calls = %+v, want [%+v]", calls, req)
	}

	select {
	case evt := <-ch:
		res, ok := evt.Payload.(Result)
		if !ok || res.ClientMsgID != "temp-1" || res.ContactID != "c1" {
			t.Errorf("ack payload = %+v", evt.Payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for send_ack event")
	}
}

func TestSubmitFailurePublishesReason(t *testing.T) {
	b := bus.New()
	mock := &mockSender{err: errors.New("instance offline")}
	o := New(mock, b, nil, nil, 1)

	ch, unsub := b.Subscribe(bus.KindSendFailed, 10)
	defer unsub()

	o.Start(context.Background())
	defer o.Stop()

	done := make(chan error, 1)
	_ = o.Submit(context.Background(), Job{ClientMsgID: "temp-2", Done: func(err error) { done <- err }})
	if err := waitDone(t, done); err == nil || err.Error() != "instance offline" {
		t.Fatalf("Done(%v), want instance offline", err)
	}

	select {
	case evt := <-ch:
		if res := evt.Payload.(Result); res.Err != "instance offline" {
			t.Errorf("failure reason = %q", res.Err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for send_failed event")
	}
}

func TestStopFailsQueuedJobs(t *testing.T) {
	mock := &mockSender{block: make(chan struct{})}
	o := New(mock, bus.New(), nil, nil, 1)
	o.Start(context.Background())

	first := make(chan error, 1)
	second := make(chan error, 1)
	_ = o.Submit(context.Background(), Job{ClientMsgID: "a", Done: func(err error) { first <- err }})
	// Wait for the worker to pick up the first job so the second stays queued.
	deadline := time.Now().Add(2 * time.Second)
	for len(mock.Calls()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	_ = o.Submit(context.Background(), Job{ClientMsgID: "b", Done: func(err error) { second <- err }})

	o.Stop()

	if err := waitDone(t, first); !errors.Is(err, context.Canceled) {
		t.Errorf("in-flight job: %v, want context.Canceled", err)
	}
	if err := waitDone(t, second); !errors.Is(err, ErrStopped) {
		t.Errorf("queued job: %v, want ErrStopped", err)
	}
	if err := o.Submit(context.Background(), Job{}); !errors.Is(err, ErrStopped) {
		t.Errorf("Submit after Stop: %v, want ErrStopped", err)
	}
}

func TestSubmitHonorsContext(t *testing.T) {
	o := New(&mockSender{}, bus.New(), nil, nil, 1)
	// Not started: fill the queue.
	for i := 0; i < cap(o.jobs); i++ {
		if err := o.Submit(context.Background(), Job{}); err != nil {
			t.Fatal(err)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := o.Submit(ctx, Job{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Submit on full queue: %v, want DeadlineExceeded", err)
	}
	o.Stop()
}
