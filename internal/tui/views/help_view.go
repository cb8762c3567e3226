package views

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"

	"github.com/matheus3301/omnisync/internal/tui/keys"
	"github.com/matheus3301/omnisync/internal/tui/ui"
)

// HelpView lists the key bindings of every page and the prompt commands.
type HelpView struct {
	*tview.TextView
	theme *ui.Theme
}

// NewHelpView creates a new help view.
func NewHelpView(theme *ui.Theme) *HelpView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Help ")
	tv.SetTitleColor(theme.TitleColor)

	return &HelpView{TextView: tv, theme: theme}
}

// Section is one titled group of bindings.
type Section struct {
	Title   string
	Actions []*keys.Action
}

// Update renders the sections followed by the command reference.
func (hv *HelpView) Update(sections []Section) {
	hv.Clear()
	kc := ui.ColorName(hv.theme.MenuKeyColor)

	var b strings.Builder
	for _, s := range sections {
		fmt.Fprintf(&b, "\n  [::b]%s[-:-:-]\n\n", s.Title)
		for _, a := range s.Actions {
			fmt.Fprintf(&b, "  [%s]%-8s[-:-:-] %s\n", kc, tview.Escape(a.Label), a.Description)
		}
	}

	b.WriteString("\n  [::b]Commands (: mode)[-:-:-]\n\n")
	for _, c := range []struct{ usage, desc string }{
		{":filter <text>", "Filter conversations by name, phone, email or instagram"},
		{":platform <name>", "Show one platform (whatsapp, instagram, email, all)"},
		{":refresh", "Reload the conversation list"},
		{":retry", "Retry the last failed message of the open thread"},
		{":help", "Show this help"},
		{":quit", "Quit"},
	} {
		fmt.Fprintf(&b, "  [%s]%-18s[-:-:-] %s\n", kc, tview.Escape(c.usage), c.desc)
	}

	_, _ = fmt.Fprint(hv, b.String())
	hv.ScrollToBeginning()
}
