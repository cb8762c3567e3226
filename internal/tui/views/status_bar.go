package views

import (
	"fmt"

	"github.com/rivo/tview"

	"github.com/matheus3301/omnisync/internal/status"
	"github.com/matheus3301/omnisync/internal/tui/ui"
)

// StatusBar is the bottom line: profile, channel state, unread count and
// the hints of the current page.
type StatusBar struct {
	*tview.TextView
	theme   *ui.Theme
	profile string
	state   status.State
	unread  int
	hint    string
}

// NewStatusBar creates a new status bar.
func NewStatusBar(theme *ui.Theme, profile string) *StatusBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)

	sb := &StatusBar{TextView: tv, theme: theme, profile: profile, state: status.Disconnected}
	sb.render()
	return sb
}

// SetState updates the channel state indicator.
func (sb *StatusBar) SetState(s status.State) {
	sb.state = s
	sb.render()
}

// SetUnread updates the unread counter.
func (sb *StatusBar) SetUnread(n int) {
	sb.unread = n
	sb.render()
}

// SetHint sets the right-hand hint text.
func (sb *StatusBar) SetHint(h string) {
	sb.hint = h
	sb.render()
}

func (sb *StatusBar) render() {
	sb.Clear()
	line := fmt.Sprintf(" [::b]%s[-:-:-] | [%s::b]● %s[-:-:-]",
		tview.Escape(sb.profile), sb.theme.StateColor(sb.state), sb.state)
	if sb.unread > 0 {
		line += fmt.Sprintf(" | [%s]%d unread[-]", ui.ColorName(sb.theme.UnreadColor), sb.unread)
	}
	if sb.hint != "" {
		line += " | " + tview.Escape(sb.hint)
	}
	_, _ = fmt.Fprint(sb, line)
}
