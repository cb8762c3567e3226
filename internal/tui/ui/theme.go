package ui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"

	"github.com/matheus3301/omnisync/internal/crm"
	"github.com/matheus3301/omnisync/internal/status"
)

// Theme holds color constants for the TUI.
type Theme struct {
	BgColor           tcell.Color
	FgColor           tcell.Color
	MutedColor        tcell.Color
	BorderColor       tcell.Color
	BorderFocusColor  tcell.Color
	TableHeaderFg     tcell.Color
	TableCursorFg     tcell.Color
	TableCursorBg     tcell.Color
	CrumbActiveFg     tcell.Color
	CrumbActiveBg     tcell.Color
	CrumbInactiveFg   tcell.Color
	CrumbInactiveBg   tcell.Color
	MenuKeyColor      tcell.Color
	TitleColor        tcell.Color
	CounterColor      tcell.Color
	UnreadColor       tcell.Color
	LocalSenderColor  tcell.Color
	RemoteSenderColor tcell.Color
	FlashInfoColor    tcell.Color
	FlashWarnColor    tcell.Color
	FlashErrColor     tcell.Color
	PromptBorderColor tcell.Color

	States   map[status.State]tcell.Color
	Delivery map[crm.DeliveryState]tcell.Color
}

// DefaultTheme returns a k9s-inspired dark theme.
func DefaultTheme() *Theme {
	return &Theme{
		BgColor:           tcell.ColorBlack,
		FgColor:           tcell.ColorCadetBlue,
		MutedColor:        tcell.ColorGray,
		BorderColor:       tcell.ColorDodgerBlue,
		BorderFocusColor:  tcell.ColorLightSkyBlue,
		TableHeaderFg:     tcell.ColorWhite,
		TableCursorFg:     tcell.ColorBlack,
		TableCursorBg:     tcell.ColorAqua,
		CrumbActiveFg:     tcell.ColorBlack,
		CrumbActiveBg:     tcell.ColorOrange,
		CrumbInactiveFg:   tcell.ColorBlack,
		CrumbInactiveBg:   tcell.ColorAqua,
		MenuKeyColor:      tcell.ColorDodgerBlue,
		TitleColor:        tcell.ColorFuchsia,
		CounterColor:      tcell.ColorPapayaWhip,
		UnreadColor:       tcell.ColorOrangeRed,
		LocalSenderColor:  tcell.ColorMediumSpringGreen,
		RemoteSenderColor: tcell.ColorLightSkyBlue,
		FlashInfoColor:    tcell.ColorNavajoWhite,
		FlashWarnColor:    tcell.ColorOrange,
		FlashErrColor:     tcell.ColorOrangeRed,
		PromptBorderColor: tcell.ColorDodgerBlue,
		States: map[status.State]tcell.Color{
			status.Connected:    tcell.ColorGreen,
			status.Connecting:   tcell.ColorYellow,
			status.Disconnected: tcell.ColorOrange,
			status.Failed:       tcell.ColorRed,
		},
		Delivery: map[crm.DeliveryState]tcell.Color{
			crm.DeliveryPending:   tcell.ColorGray,
			crm.DeliverySent:      tcell.ColorCadetBlue,
			crm.DeliveryDelivered: tcell.ColorDodgerBlue,
			crm.DeliveryFailed:    tcell.ColorRed,
		},
	}
}

// StateColor returns the tag color for a channel state.
func (t *Theme) StateColor(s status.State) string {
	if c, ok := t.States[s]; ok {
		return ColorName(c)
	}
	return ColorName(t.FgColor)
}

// DeliveryColor returns the tag color for a delivery marker.
func (t *Theme) DeliveryColor(s crm.DeliveryState) string {
	if c, ok := t.Delivery[s]; ok {
		return ColorName(c)
	}
	return ColorName(t.MutedColor)
}

// ColorName returns a tview color tag value for c.
func ColorName(c tcell.Color) string {
	for name, val := range tcell.ColorNames {
		if val == c {
			return name
		}
	}
	return fmt.Sprintf("#%06x", c.Hex())
}
