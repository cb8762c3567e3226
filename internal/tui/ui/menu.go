package ui

import (
	"fmt"

	"github.com/rivo/tview"

	"github.com/matheus3301/omnisync/internal/tui/keys"
)

// Menu displays keyboard shortcut hints in a vertical list.
type Menu struct {
	*tview.TextView
	theme *Theme
}

// NewMenu creates a new menu hint panel.
func NewMenu(theme *Theme) *Menu {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 2, 0)

	return &Menu{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders the visible actions, one per line.
func (m *Menu) Update(actions []*keys.Action) {
	m.Clear()
	kc := ColorName(m.theme.MenuKeyColor)
	for _, a := range actions {
		_, _ = fmt.Fprintf(m, "[%s::b]<%s>[-:-:-] %s\n", kc, tview.Escape(a.Label), a.Description)
	}
}
