// Package channeltest provides an in-memory transport for tests of code
// built on channel.Channel.
package channeltest

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/omnisync/internal/channel"
	"github.com/matheus3301/omnisync/internal/status"
)

// Emitted is one event sent by the code under test.
type Emitted struct {
	Event   string
	Payload json.RawMessage
}

type frame struct {
	event   string
	payload json.RawMessage
}

// Conn delivers frames pushed by the test until closed.
type Conn struct {
	frames chan frame
	closed chan struct{}
	once   sync.Once

	mu      sync.Mutex
	emitted []Emitted
}

// NewConn returns an open connection.
func NewConn() *Conn {
	return &Conn{frames: make(chan frame, 64), closed: make(chan struct{})}
}

// Read implements channel.Conn.
func (c *Conn) Read() (string, json.RawMessage, error) {
	select {
	case fr := <-c.frames:
		return fr.event, fr.payload, nil
	case <-c.closed:
		return "", nil, io.EOF
	}
}

// Emit implements channel.Conn.
func (c *Conn) Emit(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.emitted = append(c.emitted, Emitted{Event: event, Payload: data})
	c.mu.Unlock()
	return nil
}

// Close implements channel.Conn.
func (c *Conn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

// Push queues a server event.
func (c *Conn) Push(event, payload string) {
	c.frames <- frame{event: event, payload: json.RawMessage(payload)}
}

// Emitted returns what the client sent so far.
func (c *Conn) Emitted() []Emitted {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Emitted(nil), c.emitted...)
}

// Transport dials the same connection every time.
type Transport struct {
	Conn *Conn
}

// Dial implements channel.Transport.
func (t *Transport) Dial(ctx context.Context) (channel.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return t.Conn, nil
}

// Connected returns a channel already connected to a fresh Conn. The
// channel is disconnected when the test ends.
func Connected(t testing.TB) (*channel.Channel, *Conn) {
	t.Helper()
	conn := NewConn()
	ch := channel.New(&Transport{Conn: conn}, nil, channel.Options{}, nil, nil)
	ch.Connect(context.Background())
	t.Cleanup(ch.Disconnect)

	deadline := time.Now().Add(2 * time.Second)
	for ch.State() != status.Connected {
		if time.Now().After(deadline) {
			t.Fatalf("channel never connected (state %s)", ch.State())
		}
		time.Sleep(time.Millisecond)
	}
	return ch, conn
}
