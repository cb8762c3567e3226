package channel

// Subscription is the capability returned by Subscribe.
type Subscription struct {
	ch    *Channel
	event string
	id    uint64
}

// Event returns the event name the subscription listens to.
func (s Subscription) Event() string { return s.event }

// Unsubscribe removes this registration. Safe to call more than once and
// on the zero value.
func (s Subscription) Unsubscribe() {
	if s.ch == nil {
		return
	}
	s.ch.Unsubscribe(s)
}
