package views

import (
	"fmt"

	"github.com/rivo/tview"

	"github.com/matheus3301/omnisync/internal/crm"
	"github.com/matheus3301/omnisync/internal/tui/ui"
)

// ConversationInfo displays the contact record of the open conversation.
type ConversationInfo struct {
	*tview.TextView
	theme *ui.Theme
}

// NewConversationInfo creates a new conversation info view.
func NewConversationInfo(theme *ui.Theme) *ConversationInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Contact ")
	tv.SetTitleColor(theme.TitleColor)

	return &ConversationInfo{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders c. connection is the outbound connection id of the thread.
func (ci *ConversationInfo) Update(c crm.Contact, connection string) {
	ci.Clear()

	fg := ui.ColorName(ci.theme.FgColor)
	val := ui.ColorName(ci.theme.CounterColor)
	rows := []struct{ label, value string }{
		{"Name", c.DisplayName()},
		{"Platform", string(c.Platform)},
		{"Phone", c.Phone},
		{"Email", c.Email},
		{"Instagram", c.InstagramUsername},
		{"IG name", c.InstagramFullname},
		{"Contact ID", c.ID},
		{"Connection", connection},
	}
	for _, r := range rows {
		if r.value == "" {
			continue
		}
		_, _ = fmt.Fprintf(ci, "  [%s::b]%-11s[-:-:-] [%s]%s[-]\n", fg, r.label+":", val, display(r.value))
	}
}
