package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/matheus3301/omnisync/internal/crm"
	"github.com/matheus3301/omnisync/internal/tui/ui"
)

// MessageThread displays one conversation and a composer.
type MessageThread struct {
	*tview.Flex
	theme    *ui.Theme
	messages *tview.TextView
	composer *tview.InputField
	onSend   func(text string)
	now      func() time.Time
}

// NewMessageThread creates a new message thread view.
func NewMessageThread(theme *ui.Theme) *MessageThread {
	messages := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	messages.SetBorder(true)
	messages.SetBorderColor(theme.BorderColor)
	messages.SetBackgroundColor(theme.BgColor)
	messages.SetTextColor(theme.FgColor)
	messages.SetTitle(" Messages ")
	messages.SetTitleColor(theme.TitleColor)

	composer := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)
	composer.SetBorder(true)
	composer.SetBorderColor(theme.BorderColor)
	composer.SetBackgroundColor(theme.BgColor)
	composer.SetFieldBackgroundColor(theme.BgColor)
	composer.SetFieldTextColor(theme.FgColor)
	composer.SetLabelColor(theme.MenuKeyColor)
	composer.SetTitle(" Compose (i to focus, Esc to leave) ")
	composer.SetTitleColor(theme.TitleColor)

	mt := &MessageThread{
		Flex: tview.NewFlex().
			SetDirection(tview.FlexRow).
			AddItem(messages, 0, 1, true).
			AddItem(composer, 3, 0, false),
		theme:    theme,
		messages: messages,
		composer: composer,
		now:      time.Now,
	}

	composer.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter || mt.onSend == nil {
			return
		}
		if text := composer.GetText(); strings.TrimSpace(text) != "" {
			mt.onSend(text)
			composer.SetText("")
		}
	})

	return mt
}

// SetOnSend sets the callback for composer submissions.
func (mt *MessageThread) SetOnSend(fn func(text string)) {
	mt.onSend = fn
}

// SetContact updates the pane title.
func (mt *MessageThread) SetContact(c crm.Contact, connection string) {
	title := fmt.Sprintf(" %s [%s] ", display(c.DisplayName()), platformTag(c.Platform))
	if connection != "" && connection != "auto" {
		title = fmt.Sprintf(" %s [%s via %s] ", display(c.DisplayName()), platformTag(c.Platform), display(connection))
	}
	mt.messages.SetTitle(title)
}

// Update renders msgs, oldest first, and scrolls to the newest.
func (mt *MessageThread) Update(msgs []crm.Message, loading bool) {
	mt.messages.Clear()
	if loading && len(msgs) == 0 {
		_, _ = fmt.Fprintf(mt.messages, "[%s]loading…[-]", ui.ColorName(mt.theme.MutedColor))
		return
	}
	now := mt.now()
	var b strings.Builder
	for _, m := range msgs {
		mt.renderMessage(&b, m, now)
	}
	_, _ = fmt.Fprint(mt.messages, b.String())
	mt.messages.ScrollToEnd()
}

func (mt *MessageThread) renderMessage(b *strings.Builder, m crm.Message, now time.Time) {
	who, color := "Them", mt.theme.RemoteSenderColor
	if m.Sender == crm.SenderLocal {
		who, color = "You", mt.theme.LocalSenderColor
	}
	fmt.Fprintf(b, "[%s::b]%s[-:-:-] [%s]%s[-]", ui.ColorName(color), who,
		ui.ColorName(mt.theme.MutedColor), formatTimestamp(m.OccurredAt, now))
	if m.Sender == crm.SenderLocal {
		if marker := deliveryMarker(m.DeliveryState); marker != "" {
			fmt.Fprintf(b, " [%s]%s[-]", mt.theme.DeliveryColor(m.DeliveryState), marker)
		}
		if m.DeliveryState == crm.DeliveryFailed {
			fmt.Fprintf(b, " [%s]not sent, r to retry[-]", mt.theme.DeliveryColor(crm.DeliveryFailed))
		}
	}
	b.WriteString("\n")
	if m.Media != nil {
		fmt.Fprintf(b, "[%s][%s] %s[-]\n", ui.ColorName(mt.theme.MutedColor), m.Media.Type, display(m.Media.URL))
	}
	if m.Content != "" && m.Content != crm.MediaPreview {
		b.WriteString(display(m.Content))
		b.WriteString("\n")
	}
	b.WriteString("\n")
}

// Messages returns the messages text view (for focus management).
func (mt *MessageThread) Messages() *tview.TextView {
	return mt.messages
}

// Composer returns the composer input field (for focus management).
func (mt *MessageThread) Composer() *tview.InputField {
	return mt.composer
}
