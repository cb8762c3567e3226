package wire

import (
	"encoding/json"
	"slices"
	"strings"

	"github.com/matheus3301/omnisync/internal/crm"
)

// Message normalizes one entry of a message page fetched from the backend.
// Unlike live events, history entries without a send-side marker are
// treated as received from the contact.
func (p Parser) Message(raw json.RawMessage, platform crm.Platform) (crm.Message, error) {
	obj, err := decodeObject(raw)
	if err != nil {
		return crm.Message{}, err
	}

	m := crm.Message{
		ID:             obj.str("_id", "id"),
		ConversationID: obj.str("client_id", "clientId"),
		Content:        obj.str("content", "text", "caption"),
		Sender:         crm.SenderRemote,
		DeliveryState:  deliveryState(obj.str("status")),
		Platform:       platform,
	}
	if pl := crm.Platform(strings.ToLower(obj.str("platform"))); pl.Valid() {
		m.Platform = pl
	}
	if ts, ok := obj.timestamp("createdAt", "date", "timestamp"); ok {
		m.OccurredAt = ts
	} else {
		m.OccurredAt = p.now()
	}
	if historySent(obj) {
		m.Sender = crm.SenderLocal
	}
	if m.DeliveryState == crm.DeliveryUnspecified {
		m.DeliveryState = crm.DeliverySent
	}
	m.Media = ResolveMedia(p.MediaOrigin, obj.str("type"), obj.str("link"), m.Content)
	return m, nil
}

func historySent(obj object) bool {
	switch strings.ToLower(obj.str("sender")) {
	case "user":
		return true
	case "customer", "client":
		return false
	}
	return slices.Contains(outboundEvents, strings.ToLower(obj.str("eventType"))) ||
		slices.Contains(outboundEvents, strings.ToLower(obj.str("event")))
}

// LastMessage normalizes the inline last message of an inbox row.
func (p Parser) LastMessage(raw json.RawMessage) (*crm.LastMessage, error) {
	obj, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}
	lm := &crm.LastMessage{
		ID:      obj.str("_id", "id"),
		Preview: obj.str("text", "content", "caption"),
		Origin:  obj.str("phone_origin"),
	}
	if lm.Preview == "" {
		lm.Preview = crm.MediaPreview
	}
	lm.IsRead, _ = obj.boolean("isOpen")
	if ts, ok := obj.timestamp("date", "timestamp", "createdAt"); ok {
		lm.OccurredAt = ts
	}
	return lm, nil
}
