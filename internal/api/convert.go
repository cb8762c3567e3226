package api

import (
	"time"

	"github.com/matheus3301/omnisync/internal/bus"
	"github.com/matheus3301/omnisync/internal/crm"
	"github.com/matheus3301/omnisync/internal/inbox"
	"github.com/matheus3301/omnisync/internal/outbox"
	"github.com/matheus3301/omnisync/internal/status"
)

func summaryFields(s crm.Summary) map[string]any {
	out := map[string]any{
		"contact_id":   s.ID,
		"name":         s.DisplayName(),
		"phone":        s.Phone,
		"email":        s.Email,
		"platform":     string(s.Platform),
		"unread_count": s.UnreadCount,
	}
	if lm := s.LastMessage; lm != nil {
		last := map[string]any{
			"preview": lm.Preview,
			"is_read": lm.IsRead,
			"origin":  lm.Origin,
		}
		if lm.ID != "" {
			last["id"] = lm.ID
		}
		if !lm.OccurredAt.IsZero() {
			last["occurred_at"] = lm.OccurredAt.UTC().Format(time.RFC3339)
		}
		out["last_message"] = last
	}
	return out
}

// eventFields renders the bus events a watcher cares about. Thread
// snapshots stay in-process.
func eventFields(evt bus.Event) (map[string]any, bool) {
	out := map[string]any{
		"kind": evt.Kind,
		"ts":   evt.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	switch p := evt.Payload.(type) {
	case status.StatusChange:
		out["from"] = string(p.From)
		out["to"] = string(p.To)
	case inbox.Snapshot:
		out["conversations"] = len(p.Summaries)
		out["unread"] = p.Unread
		if len(p.Summaries) > 0 {
			out["top"] = summaryFields(p.Summaries[0])
		}
	case outbox.Result:
		out["client_msg_id"] = p.ClientMsgID
		out["contact_id"] = p.ContactID
		if p.Err != "" {
			out["error"] = p.Err
		}
	default:
		return nil, false
	}
	return out, true
}
