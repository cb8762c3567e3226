// Package wire normalizes the loosely shaped chat events pushed by the CRM
// backend into crm.Event values.
package wire

import "github.com/matheus3301/omnisync/internal/crm"

// Event names published by the backend on the shared channel.
const (
	EventCreated = "api/chat created"
	EventPatched = "api/chat patched"
	EventRemoved = "api/chat removed"
)

// Names lists every event name the sync views subscribe to.
var Names = []string{EventCreated, EventPatched, EventRemoved}

// KindOf maps a wire event name to its canonical kind. Created and patched
// are handled identically.
func KindOf(name string) (crm.EventKind, bool) {
	switch name {
	case EventCreated, EventPatched:
		return crm.EventUpsert, true
	case EventRemoved:
		return crm.EventRemoved, true
	}
	return "", false
}
