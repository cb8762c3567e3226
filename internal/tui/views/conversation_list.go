package views

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/matheus3301/omnisync/internal/crm"
	"github.com/matheus3301/omnisync/internal/inbox"
	"github.com/matheus3301/omnisync/internal/tui/ui"
)

// ConversationList is the inbox table.
type ConversationList struct {
	*tview.Table
	theme *ui.Theme
	rows  []crm.Summary
	now   func() time.Time
}

// NewConversationList creates a new conversation list table.
func NewConversationList(theme *ui.Theme) *ConversationList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))
	table.SetTitle(" Conversations ")
	table.SetTitleColor(theme.TitleColor)

	return &ConversationList{
		Table: table,
		theme: theme,
		now:   time.Now,
	}
}

// Update renders rows, the filtered projection of total conversations. The
// selection stays on the same contact when it is still visible.
func (cl *ConversationList) Update(rows []crm.Summary, total int, f inbox.Filter) {
	selected, hadSelection := cl.Selected()
	cl.rows = rows
	cl.Clear()

	headers := []struct {
		text string
		exp  int
	}{
		{" ", 0},
		{" NAME", 1},
		{" CH", 0},
		{" LAST MESSAGE", 2},
		{" TIME ", 0},
	}
	for col, h := range headers {
		cl.SetCell(0, col, tview.NewTableCell(h.text).
			SetSelectable(false).
			SetTextColor(cl.theme.TableHeaderFg).
			SetAttributes(tcell.AttrBold).
			SetExpansion(h.exp))
	}

	now := cl.now()
	for i, s := range rows {
		row := i + 1
		badge, nameAttr := "", tcell.AttrNone
		if s.UnreadCount > 0 {
			badge = fmt.Sprintf(" %d", s.UnreadCount)
			nameAttr = tcell.AttrBold
		}
		preview, at := "", time.Time{}
		if s.LastMessage != nil {
			preview = oneLine(s.LastMessage.Preview)
			at = s.LastMessage.OccurredAt
		}

		cl.SetCell(row, 0, tview.NewTableCell(badge).SetTextColor(cl.theme.UnreadColor).SetAttributes(tcell.AttrBold))
		cl.SetCell(row, 1, tview.NewTableCell(" "+display(s.DisplayName())).SetExpansion(1).SetMaxWidth(32).
			SetTextColor(cl.theme.FgColor).SetAttributes(nameAttr))
		cl.SetCell(row, 2, tview.NewTableCell(" "+platformTag(s.Platform)).SetTextColor(cl.theme.MutedColor))
		cl.SetCell(row, 3, tview.NewTableCell(" "+display(preview)).SetExpansion(2).SetTextColor(cl.theme.FgColor))
		cl.SetCell(row, 4, tview.NewTableCell(formatTimestamp(at, now)+" ").SetAlign(tview.AlignRight).SetTextColor(cl.theme.MutedColor))
	}

	if f != (inbox.Filter{}) {
		cl.SetTitle(fmt.Sprintf(" Conversations (%d/%d) %s ", len(rows), total, tview.Escape(describeFilter(f))))
	} else {
		cl.SetTitle(fmt.Sprintf(" Conversations (%d) ", total))
	}

	if hadSelection {
		for i, s := range rows {
			if s.ContactID() == selected.ContactID() {
				cl.Select(i+1, 0)
				return
			}
		}
	}
	if len(rows) > 0 {
		r, _ := cl.GetSelection()
		if r < 1 || r > len(rows) {
			cl.Select(1, 0)
		}
	}
}

// Selected returns the conversation under the cursor.
func (cl *ConversationList) Selected() (crm.Summary, bool) {
	row, _ := cl.GetSelection()
	return cl.At(row)
}

// At returns the conversation shown on table row (1-based; row 0 is the
// header).
func (cl *ConversationList) At(row int) (crm.Summary, bool) {
	idx := row - 1
	if idx < 0 || idx >= len(cl.rows) {
		return crm.Summary{}, false
	}
	return cl.rows[idx], true
}

func describeFilter(f inbox.Filter) string {
	s := ""
	if f.Query != "" {
		s = "/" + f.Query
	}
	if f.Platform != "" {
		if s != "" {
			s += " "
		}
		s += "p:" + string(f.Platform)
	}
	return s
}
