package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/matheus3301/omnisync/internal/crm"
)

var (
	// ErrNotObject is returned for payloads that are not JSON objects.
	ErrNotObject = errors.New("payload is not a JSON object")
	// ErrUnknownEvent is returned for event names outside Names.
	ErrUnknownEvent = errors.New("unknown event name")
)

// Parser turns raw event payloads into canonical events.
type Parser struct {
	// MediaOrigin resolves site-relative media links.
	MediaOrigin string
	// Now supplies the fallback timestamp. Defaults to time.Now.
	Now func() time.Time
}

// Parse normalizes the payload of the named wire event. Missing content or
// timestamp never fail the parse: content stays empty and the timestamp
// falls back to Now.
func (p Parser) Parse(name string, raw json.RawMessage) (crm.Event, error) {
	kind, ok := KindOf(name)
	if !ok {
		return crm.Event{}, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
	}

	root, err := decodeObject(raw)
	if err != nil {
		return crm.Event{}, err
	}
	// Message fields live under "message" on some deployments and at the
	// root on others.
	msg, nested := root.child("message")
	if !nested {
		msg = root
	}
	either := func(keys ...string) string {
		if s := msg.str(keys...); s != "" {
			return s
		}
		return root.str(keys...)
	}

	evt := crm.Event{
		Kind:        kind,
		MessageID:   either("_id", "id"),
		ContactID:   either("client_id", "clientId"),
		Phone:       either("phone", "from"),
		Origin:      either("phone_origin"),
		Content:     msg.str("text", "content", "caption"),
		ClientMsgID: either("client_msg_id", "clientMsgId"),
	}
	if pl := crm.Platform(strings.ToLower(either("platform"))); pl.Valid() {
		evt.Platform = pl
	}

	if ts, ok := msg.timestamp("date", "timestamp", "createdAt"); ok {
		evt.OccurredAt = ts
	} else if ts, ok := root.timestamp("date", "timestamp", "createdAt"); ok {
		evt.OccurredAt = ts
	} else {
		evt.OccurredAt = p.now()
	}

	isOpen, hasOpen := msg.boolean("isOpen")
	if !hasOpen {
		isOpen, hasOpen = root.boolean("isOpen")
	}
	evt.IsOpen = isOpen
	evt.Direction = direction(msg, isOpen, hasOpen)
	evt.DeliveryState = deliveryState(msg.str("status"))

	if kind == crm.EventUpsert {
		evt.Media = ResolveMedia(p.MediaOrigin, msg.str("type"), msg.str("link"), evt.Content)
	}
	return evt, nil
}

func (p Parser) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func decodeObject(raw json.RawMessage) (object, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, ErrNotObject
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return object(m), nil
}

var outboundEvents = []string{"sent", "message_sent", "sending"}

// direction infers who authored the message. An explicit sender wins,
// then the send-side event type, then the isOpen flag.
func direction(msg object, isOpen, hasOpen bool) crm.Direction {
	switch strings.ToLower(msg.str("sender")) {
	case "user":
		return crm.DirectionOutbound
	case "customer", "client":
		return crm.DirectionInbound
	}
	for _, key := range []string{"eventType", "event"} {
		if slices.Contains(outboundEvents, strings.ToLower(msg.str(key))) {
			return crm.DirectionOutbound
		}
	}
	if hasOpen {
		if isOpen {
			return crm.DirectionOutbound
		}
		return crm.DirectionInbound
	}
	return crm.DirectionUnknown
}

func deliveryState(status string) crm.DeliveryState {
	switch strings.ToLower(status) {
	case "sending", "pending", "queued":
		return crm.DeliveryPending
	case "sent":
		return crm.DeliverySent
	case "delivered", "read", "received":
		return crm.DeliveryDelivered
	case "failed", "error":
		return crm.DeliveryFailed
	}
	return crm.DeliveryUnspecified
}
