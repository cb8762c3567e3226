package ui

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"
)

// Nav is a page stack over tview.Pages with a breadcrumb trail. Pages are
// registered once with Add and shown through Push, Pop and Reset.
type Nav struct {
	*tview.Pages
	crumbs *tview.TextView
	theme  *Theme
	titles map[string]string
	stack  []string
	change func(page string)
}

// NewNav creates an empty navigator.
func NewNav(theme *Theme) *Nav {
	crumbs := tview.NewTextView().SetDynamicColors(true)
	crumbs.SetBackgroundColor(theme.BgColor)
	return &Nav{
		Pages:  tview.NewPages(),
		crumbs: crumbs,
		theme:  theme,
		titles: make(map[string]string),
	}
}

// Crumbs returns the breadcrumb bar.
func (n *Nav) Crumbs() *tview.TextView { return n.crumbs }

// OnChange registers a callback fired with the new top page.
func (n *Nav) OnChange(fn func(page string)) { n.change = fn }

// Add registers a hidden page.
func (n *Nav) Add(name string, p tview.Primitive) {
	n.AddPage(name, p, true, false)
	n.titles[name] = name
}

// SetTitle changes the crumb shown for a page.
func (n *Nav) SetTitle(name, title string) {
	n.titles[name] = title
	n.render()
}

// Push shows name on top of the stack.
func (n *Nav) Push(name string) {
	if len(n.stack) > 0 {
		n.HidePage(n.Current())
	}
	n.stack = append(n.stack, name)
	n.show()
}

// Pop removes the top page and returns its name. The root page is never
// popped.
func (n *Nav) Pop() string {
	if len(n.stack) < 2 {
		return ""
	}
	top := n.Current()
	n.HidePage(top)
	n.stack = n.stack[:len(n.stack)-1]
	n.show()
	return top
}

// Reset clears the stack down to name.
func (n *Nav) Reset(name string) {
	for _, p := range n.stack {
		n.HidePage(p)
	}
	n.stack = []string{name}
	n.show()
}

// Current returns the name of the top page.
func (n *Nav) Current() string {
	if len(n.stack) == 0 {
		return ""
	}
	return n.stack[len(n.stack)-1]
}

// Depth returns the current stack depth.
func (n *Nav) Depth() int { return len(n.stack) }

func (n *Nav) show() {
	top := n.Current()
	n.ShowPage(top)
	n.SendToFront(top)
	n.render()
	if n.change != nil {
		n.change(top)
	}
}

func (n *Nav) render() {
	n.crumbs.Clear()
	parts := make([]string, 0, len(n.stack))
	for i, name := range n.stack {
		fg, bg, attr := n.theme.CrumbInactiveFg, n.theme.CrumbInactiveBg, ""
		if i == len(n.stack)-1 {
			fg, bg, attr = n.theme.CrumbActiveFg, n.theme.CrumbActiveBg, "b"
		}
		parts = append(parts, fmt.Sprintf("[%s:%s:%s] %s [-:-:-]",
			ColorName(fg), ColorName(bg), attr, tview.Escape(n.titles[name])))
	}
	_, _ = fmt.Fprint(n.crumbs, strings.Join(parts, " "))
}
