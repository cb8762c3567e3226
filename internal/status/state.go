package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/omnisync/internal/bus"
)

// State is the connection state of the event channel.
type State string

const (
	Disconnected State = "DISCONNECTED"
	Connecting   State = "CONNECTING"
	Connected    State = "CONNECTED"
	Failed       State = "FAILED"
)

// validTransitions defines allowed state transitions. Connecting falls back
// to Disconnected between retry attempts; Failed is left only by an
// explicit connect or disconnect.
var validTransitions = map[State][]State{
	Disconnected: {Connecting},
	Connecting:   {Connected, Disconnected, Failed},
	Connected:    {Disconnected},
	Failed:       {Connecting, Disconnected},
}

// Machine tracks and enforces channel state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	since   time.Time
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Disconnected state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Disconnected,
		since:   time.Now(),
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Since returns when the current state was entered.
func (m *Machine) Since() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.since
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	m.setLocked(to)
	return nil
}

// Reset forces the machine to Disconnected from any state. Used on an
// explicit teardown. Returns false if it was already disconnected.
func (m *Machine) Reset() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == Disconnected {
		return false
	}
	m.setLocked(Disconnected)
	return true
}

func (m *Machine) setLocked(to State) {
	from := m.current
	m.current = to
	m.since = time.Now()
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:      bus.KindChannelState,
			Timestamp: m.since,
			Payload: StatusChange{
				From: from,
				To:   to,
			},
		})
	}
}

// StatusChange is the payload for state change events.
type StatusChange struct {
	From State
	To   State
}
