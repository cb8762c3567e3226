package views

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matheus3301/omnisync/internal/crm"
	"github.com/matheus3301/omnisync/internal/inbox"
	"github.com/matheus3301/omnisync/internal/tui/ui"
)

func TestSanitizeForTerminal(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"plain", "olá mundo", "olá mundo"},
		{"skin tone", "\U0001F44D\U0001F3FB", "\U0001F44D"},
		{"zwj", "a\u200db", "ab"},
		{"variation selector", "\u2764\ufe0f", "\u2764"},
		{"control chars", "a\x1b[31mb\x07", "a[31mb"},
		{"keeps newline and tab", "a\n\tb", "a\n\tb"},
		{"invalid utf8", "a\xffb", "ab"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeForTerminal(tt.in))
		})
	}
}

func TestFormatTimestamp(t *testing.T) {
	now := time.Date(2024, 5, 10, 15, 0, 0, 0, time.Local)
	assert.Equal(t, "", formatTimestamp(time.Time{}, now))
	assert.Equal(t, "09:30", formatTimestamp(time.Date(2024, 5, 10, 9, 30, 0, 0, time.Local), now))
	assert.Equal(t, "02/03", formatTimestamp(time.Date(2024, 3, 2, 9, 30, 0, 0, time.Local), now))
	assert.Equal(t, "31/12/23", formatTimestamp(time.Date(2023, 12, 31, 9, 30, 0, 0, time.Local), now))
}

func TestDeliveryMarkers(t *testing.T) {
	assert.Equal(t, "…", deliveryMarker(crm.DeliveryPending))
	assert.Equal(t, "✓", deliveryMarker(crm.DeliverySent))
	assert.Equal(t, "✓✓", deliveryMarker(crm.DeliveryDelivered))
	assert.Equal(t, "✗", deliveryMarker(crm.DeliveryFailed))
	assert.Equal(t, "", deliveryMarker(crm.DeliveryUnspecified))
}

func TestConversationListKeepsSelection(t *testing.T) {
	cl := NewConversationList(ui.DefaultTheme())
	rows := []crm.Summary{
		{Contact: crm.Contact{ID: "c1", Name: "Ana"}, UnreadCount: 1},
		{Contact: crm.Contact{ID: "c2", Name: "Bia"}},
		{Contact: crm.Contact{ID: "c3", Name: "Caio"}},
	}
	cl.Update(rows, 3, inbox.Filter{})
	s, ok := cl.Selected()
	require.True(t, ok)
	assert.Equal(t, "c1", s.ContactID())

	cl.Select(2, 0)
	// c2 moves to the top after a new message.
	cl.Update([]crm.Summary{rows[1], rows[0], rows[2]}, 3, inbox.Filter{})
	s, ok = cl.Selected()
	require.True(t, ok)
	assert.Equal(t, "c2", s.ContactID())

	cl.Update(rows[2:], 3, inbox.Filter{Query: "cai"})
	s, ok = cl.Selected()
	require.True(t, ok)
	assert.Equal(t, "c3", s.ContactID())
	assert.Equal(t, " Conversations (1/3) /cai ", cl.GetTitle())

	_, ok = cl.At(0)
	assert.False(t, ok, "header row is not a conversation")
}

func TestOneLine(t *testing.T) {
	assert.Equal(t, "oi", oneLine("oi"))
	assert.Equal(t, "first …", oneLine("first\nsecond"))
}
