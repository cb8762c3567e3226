package crm

import (
	"strings"
	"time"
)

// Platform is the messaging channel a contact is reached through.
type Platform string

const (
	PlatformWhatsApp  Platform = "whatsapp"
	PlatformInstagram Platform = "instagram"
	PlatformEmail     Platform = "email"
)

// Valid reports whether p is one of the known platforms.
func (p Platform) Valid() bool {
	switch p {
	case PlatformWhatsApp, PlatformInstagram, PlatformEmail:
		return true
	}
	return false
}

// Contact is a CRM client record as far as the inbox cares about it.
type Contact struct {
	ID                string
	Name              string
	Phone             string
	Email             string
	InstagramID       string
	InstagramUsername string
	InstagramFullname string
	Image             string
	Platform          Platform
}

// DisplayName returns the first non-empty of name, phone and email.
func (c Contact) DisplayName() string {
	for _, s := range []string{c.Name, c.Phone, c.Email} {
		if strings.TrimSpace(s) != "" {
			return s
		}
	}
	return "No name"
}

// DetectPlatform infers the platform from the identity fields present.
func DetectPlatform(c Contact) Platform {
	if c.InstagramUsername != "" || c.InstagramID != "" {
		return PlatformInstagram
	}
	if c.Email != "" && c.Phone == "" {
		return PlatformEmail
	}
	return PlatformWhatsApp
}

// MediaPreview stands in for the text of a media-only message.
const MediaPreview = "[Media]"

// LastMessage is the preview shown on an inbox row.
type LastMessage struct {
	ID         string // server message id, when known
	Preview    string
	IsRead     bool
	OccurredAt time.Time
	Origin     string // origin number the message went through, if any
}

// Summary is one inbox row. ContactID is Contact.ID.
type Summary struct {
	Contact
	LastMessage *LastMessage
	UnreadCount int
}

// ContactID returns the stable identity key of the summary.
func (s Summary) ContactID() string { return s.Contact.ID }

// Sender identifies who authored a message.
type Sender string

const (
	SenderLocal  Sender = "local"
	SenderRemote Sender = "remote"
)

// DeliveryState tracks an outbound message. Empty means "not specified"
// and only appears on events, never on stored messages.
type DeliveryState string

const (
	DeliveryUnspecified DeliveryState = ""
	DeliveryPending     DeliveryState = "pending"
	DeliverySent        DeliveryState = "sent"
	DeliveryDelivered   DeliveryState = "delivered"
	DeliveryFailed      DeliveryState = "failed"
)

// MediaType is the kind of attachment on a message.
type MediaType string

const (
	MediaImage    MediaType = "image"
	MediaVideo    MediaType = "video"
	MediaAudio    MediaType = "audio"
	MediaDocument MediaType = "document"
)

// Valid reports whether t is a known media type.
func (t MediaType) Valid() bool {
	switch t {
	case MediaImage, MediaVideo, MediaAudio, MediaDocument:
		return true
	}
	return false
}

// Media is an attachment with an absolute URL.
type Media struct {
	Type MediaType
	URL  string
}

// Message is one entry of a conversation thread.
type Message struct {
	ID             string
	ConversationID string
	Content        string
	OccurredAt     time.Time
	Sender         Sender
	DeliveryState  DeliveryState
	Media          *Media
	Platform       Platform
}

// IsTemporary reports whether the message still carries a client-temporary id.
func (m Message) IsTemporary() bool {
	return IsTempID(m.ID)
}

// EventKind distinguishes upserts from removals. Created and patched wire
// events both map to EventUpsert.
type EventKind string

const (
	EventUpsert  EventKind = "upsert"
	EventRemoved EventKind = "removed"
)

// Direction is the inferred direction of the message an event carries.
type Direction string

const (
	DirectionUnknown  Direction = ""
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Event is the canonical form of a live message event. Every synonym the
// backend uses is resolved before an Event is built.
type Event struct {
	Kind          EventKind
	MessageID     string
	ContactID     string
	Phone         string
	Origin        string
	Content       string
	OccurredAt    time.Time
	IsOpen        bool
	Direction     Direction
	DeliveryState DeliveryState
	Media         *Media
	Platform      Platform
	ClientMsgID   string // echoed correlation id, when the backend provides one
}

// Unread reports whether the event is an inbound message nobody has opened.
func (e Event) Unread() bool {
	return e.Direction != DirectionOutbound && !e.IsOpen
}

// MatchesContact reports whether the event addresses the given contact,
// either by id or by a non-empty phone.
func (e Event) MatchesContact(c Contact) bool {
	if e.ContactID != "" && e.ContactID == c.ID {
		return true
	}
	return e.Phone != "" && e.Phone == c.Phone
}
