package bus

import "time"

// Event kinds published by the sync subsystem.
const (
	KindChannelState  = "channel.state_changed"
	KindInboxChanged  = "inbox.changed"
	KindThreadChanged = "thread.changed"
	KindSendAck       = "message.send_ack"
	KindSendFailed    = "message.send_failed"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
