package views

import (
	"time"

	"github.com/matheus3301/omnisync/internal/crm"
)

// formatTimestamp renders t as a clock time for today, a date otherwise.
func formatTimestamp(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	t = t.Local()
	now = now.Local()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	if t.Year() == now.Year() {
		return t.Format("02/01")
	}
	return t.Format("02/01/06")
}

// platformTag is the short platform label of an inbox row.
func platformTag(p crm.Platform) string {
	switch p {
	case crm.PlatformWhatsApp:
		return "WA"
	case crm.PlatformInstagram:
		return "IG"
	case crm.PlatformEmail:
		return "MAIL"
	}
	return "?"
}

// deliveryMarker is the glyph shown next to an outbound message.
func deliveryMarker(s crm.DeliveryState) string {
	switch s {
	case crm.DeliveryPending:
		return "…"
	case crm.DeliverySent:
		return "✓"
	case crm.DeliveryDelivered:
		return "✓✓"
	case crm.DeliveryFailed:
		return "✗"
	}
	return ""
}
