package ui

import (
	"fmt"
	"time"

	"github.com/rivo/tview"

	"github.com/matheus3301/omnisync/internal/status"
)

// ProfileData is what the header shows about the running client.
type ProfileData struct {
	Profile       string
	State         status.State
	StateSince    time.Time
	Conversations int
	Unread        int
	Started       time.Time
}

// ProfileInfo displays profile metadata in the header.
type ProfileInfo struct {
	*tview.TextView
	theme *Theme
}

// NewProfileInfo creates a new profile info panel.
func NewProfileInfo(theme *Theme) *ProfileInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 1, 1)

	return &ProfileInfo{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders the profile info.
func (pi *ProfileInfo) Update(d ProfileData, now time.Time) {
	pi.Clear()

	fg := ColorName(pi.theme.FgColor)
	cc := ColorName(pi.theme.CounterColor)
	unread := cc
	if d.Unread > 0 {
		unread = ColorName(pi.theme.UnreadColor)
	}

	_, _ = fmt.Fprintf(pi,
		"[%s::b]Profile:[-:-:-] [%s]%s[-]\n"+
			"[%s::b]Channel:[-:-:-] [%s::b]%s[-:-:-] [%s](%s)[-]\n"+
			"[%s::b]Inbox:[-:-:-]   [%s]%d[-] conversations, [%s]%d[-] unread\n"+
			"[%s::b]Uptime:[-:-:-]  [%s]%s[-]",
		fg, cc, tview.Escape(d.Profile),
		fg, pi.theme.StateColor(d.State), d.State, cc, formatDuration(now.Sub(d.StateSince)),
		fg, cc, d.Conversations, unread, d.Unread,
		fg, cc, formatDuration(now.Sub(d.Started)),
	)
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
