package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("channel.", 10)
	defer unsub()

	b.Publish(Event{Kind: KindChannelState, Timestamp: time.Now(), Payload: "test"})

	select {
	case evt := <-ch:
		if evt.Kind != KindChannelState {
			t.Errorf("got kind %q, want %s", evt.Kind, KindChannelState)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNamespaceFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("inbox.", 10)
	defer unsub()

	b.Publish(Event{Kind: KindThreadChanged})
	b.Publish(Event{Kind: KindInboxChanged})

	select {
	case evt := <-ch:
		if evt.Kind != KindInboxChanged {
			t.Errorf("got kind %q, want %s", evt.Kind, KindInboxChanged)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("channel.", 10)
	unsub()
	unsub() // second call is a no-op

	b.Publish(Event{Kind: KindChannelState})

	select {
	case evt := <-ch:
		t.Errorf("received event after unsubscribe: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	var droppedKinds []string
	b.OnDrop(func(kind string) { droppedKinds = append(droppedKinds, kind) })

	ch, unsub := b.Subscribe("test.", 1)
	defer unsub()

	b.Publish(Event{Kind: "test.one"})
	// Buffer is full, this one is dropped.
	b.Publish(Event{Kind: "test.two"})

	evt := <-ch
	if evt.Kind != "test.one" {
		t.Errorf("got %q, want test.one", evt.Kind)
	}
	if b.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", b.Dropped())
	}
	if len(droppedKinds) != 1 || droppedKinds[0] != "test.two" {
		t.Errorf("drop hook saw %v, want [test.two]", droppedKinds)
	}
}

func TestEmitStampsTime(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("", 1)
	defer unsub()

	b.Emit(KindSendAck, 42)
	evt := <-ch
	if evt.Timestamp.IsZero() {
		t.Error("Emit should set a timestamp")
	}
	if evt.Payload.(int) != 42 {
		t.Errorf("payload = %v, want 42", evt.Payload)
	}

	var nilBus *Bus
	nilBus.Emit(KindSendAck, nil) // must not panic
}
