// Package tui is the terminal client: an inbox table, a thread pane with a
// composer, and a status bar, all rendered from bus snapshots.
package tui

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"go.uber.org/zap"

	"github.com/matheus3301/omnisync/internal/bus"
	"github.com/matheus3301/omnisync/internal/crm"
	"github.com/matheus3301/omnisync/internal/inbox"
	"github.com/matheus3301/omnisync/internal/outbox"
	"github.com/matheus3301/omnisync/internal/status"
	"github.com/matheus3301/omnisync/internal/thread"
	"github.com/matheus3301/omnisync/internal/tui/keys"
	"github.com/matheus3301/omnisync/internal/tui/model"
	"github.com/matheus3301/omnisync/internal/tui/ui"
	"github.com/matheus3301/omnisync/internal/tui/views"
)

const (
	pageInbox  = "inbox"
	pageThread = "thread"
	pageInfo   = "contact"
	pageHelp   = "help"
)

// Inbox is the part of the inbox view the client drives.
type Inbox interface {
	Summaries() []crm.Summary
	MarkRead(contactID string)
	Refresh(ctx context.Context) error
}

// Deps are the components the client renders and drives.
type Deps struct {
	Profile    string
	Inbox      Inbox
	Bus        *bus.Bus
	Machine    *status.Machine
	OpenThread func(thread.Conversation) *thread.View
	Logger     *zap.Logger
}

// App is the main TUI application shell.
type App struct {
	deps     Deps
	logger   *zap.Logger
	app      *tview.Application
	root     *tview.Flex
	theme    *ui.Theme
	nav      *ui.Nav
	vm       *model.ViewModel
	registry *keys.Registry
	flash    *ui.FlashModel
	started  time.Time

	header   *ui.ProfileInfo
	menu     *ui.Menu
	prompt   *ui.Prompt
	flashBar *ui.FlashBar
	status   *views.StatusBar
	list     *views.ConversationList
	thread   *views.MessageThread
	info     *views.ConversationInfo
	help     *views.HelpView

	// active is only touched from the UI goroutine.
	active *thread.View

	dirty  atomic.Bool
	ctx    context.Context
	cancel context.CancelFunc
}

// NewApp creates the TUI application.
func NewApp(d Deps) *App {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	theme := ui.DefaultTheme()

	a := &App{
		deps:     d,
		logger:   d.Logger,
		app:      tview.NewApplication(),
		theme:    theme,
		nav:      ui.NewNav(theme),
		vm:       model.NewViewModel(),
		registry: keys.NewRegistry(),
		flash:    ui.NewFlashModel(),
		started:  time.Now(),
		header:   ui.NewProfileInfo(theme),
		menu:     ui.NewMenu(theme),
		prompt:   ui.NewPrompt(theme),
		flashBar: ui.NewFlashBar(theme),
		status:   views.NewStatusBar(theme, d.Profile),
		list:     views.NewConversationList(theme),
		thread:   views.NewMessageThread(theme),
		info:     views.NewConversationInfo(theme),
		help:     views.NewHelpView(theme),
		ctx:      ctx,
		cancel:   cancel,
	}

	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()
	return a
}

func (a *App) setupBindings() {
	r := a.registry
	r.Add(keys.Global, &keys.Action{Name: "quit", Key: tcell.KeyRune, Rune: 'q', Label: "q", Description: "Quit", Handler: a.Stop})
	r.Add(keys.Global, &keys.Action{Name: "help", Key: tcell.KeyRune, Rune: '?', Label: "?", Description: "Help", Handler: a.showHelp})
	r.Add(keys.Global, &keys.Action{Name: "command", Key: tcell.KeyRune, Rune: ':', Label: ":", Description: "Command", Handler: func() {
		a.activatePrompt(ui.PromptCommand, "")
	}})

	r.Add(pageInbox, &keys.Action{Name: "open", Key: tcell.KeyEnter, Label: "Enter", Description: "Open", Handler: a.openSelected})
	r.Add(pageInbox, &keys.Action{Name: "filter", Key: tcell.KeyRune, Rune: '/', Label: "/", Description: "Filter", Handler: func() {
		a.activatePrompt(ui.PromptFilter, FormatFilter(a.vm.Filter()))
	}})
	r.Add(pageInbox, &keys.Action{Name: "clear", Key: tcell.KeyRune, Rune: '0', Label: "0", Description: "Clear filter", Handler: func() {
		a.vm.SetFilter(inbox.Filter{})
		a.render()
	}})
	r.Add(pageInbox, &keys.Action{Name: "refresh", Key: tcell.KeyRune, Rune: 'R', Label: "R", Description: "Refresh", Handler: a.refresh})
	for n := 1; n <= 9; n++ {
		row := n
		r.Add(pageInbox, &keys.Action{
			Name: fmt.Sprintf("jump%d", n), Key: tcell.KeyRune, Rune: rune('0' + n),
			Label: "1-9", Description: "Open Nth", Hidden: n > 1,
			Handler: func() { a.openRow(row) },
		})
	}

	r.Add(pageThread, &keys.Action{Name: "compose", Key: tcell.KeyRune, Rune: 'i', Label: "i", Description: "Compose", Handler: func() {
		a.app.SetFocus(a.thread.Composer())
	}})
	r.Add(pageThread, &keys.Action{Name: "retry", Key: tcell.KeyRune, Rune: 'r', Label: "r", Description: "Retry failed", Handler: a.retryLastFailed})
	r.Add(pageThread, &keys.Action{Name: "details", Key: tcell.KeyRune, Rune: 'd', Label: "d", Description: "Contact", Handler: a.showInfo})
	r.Add(pageThread, &keys.Action{Name: "back", Key: tcell.KeyEscape, Label: "Esc", Description: "Back", Handler: a.back})

	r.Add(pageInfo, &keys.Action{Name: "back", Key: tcell.KeyEscape, Label: "Esc", Description: "Back", Handler: a.back})
	r.Add(pageHelp, &keys.Action{Name: "back", Key: tcell.KeyEscape, Label: "Esc", Description: "Back", Handler: a.back})
}

func (a *App) setupCallbacks() {
	a.list.SetSelectedFunc(func(row, _ int) { a.openRow(row) })

	a.thread.SetOnSend(func(text string) {
		t := a.active
		if t == nil {
			return
		}
		go func() {
			if _, err := t.Send(a.ctx, text); err != nil {
				a.notifyErr(err)
			}
		}()
	})

	a.prompt.SetOnSubmit(func(mode ui.PromptMode, text string) {
		a.deactivatePrompt()
		switch mode {
		case ui.PromptFilter:
			f, err := ParseFilter(text)
			if err != nil {
				a.flash.Err(err)
				break
			}
			a.vm.SetFilter(f)
		case ui.PromptCommand:
			a.execute(ParseCommand(text))
		}
		a.render()
	})
	a.prompt.SetOnCancel(a.deactivatePrompt)

	a.nav.OnChange(func(page string) {
		a.menu.Update(a.registry.Visible(page))
	})
}

func (a *App) setupLayout() {
	a.nav.Add(pageInbox, a.list)
	a.nav.Add(pageThread, a.thread)
	a.nav.Add(pageInfo, a.info)
	a.nav.Add(pageHelp, a.help)

	header := tview.NewFlex().
		AddItem(a.header, 0, 1, false).
		AddItem(a.menu, 0, 1, false)

	a.root = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(header, 5, 0, false).
		AddItem(a.nav.Crumbs(), 1, 0, false).
		AddItem(a.prompt, 0, 0, false).
		AddItem(a.nav, 0, 1, true).
		AddItem(a.flashBar, 1, 0, false).
		AddItem(a.status, 1, 0, false)

	a.nav.Reset(pageInbox)
	a.app.SetRoot(a.root, true)
	a.app.SetFocus(a.list)

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		focused := a.app.GetFocus()
		if focused == a.thread.Composer() {
			if event.Key() == tcell.KeyEscape {
				a.app.SetFocus(a.thread.Messages())
				return nil
			}
			return event
		}
		// The prompt handles its own Enter and Esc.
		if focused == a.prompt || focused == a.prompt.InputField {
			return event
		}
		if event.Key() == tcell.KeyCtrlC {
			a.Stop()
			return nil
		}
		if a.registry.HandleEvent(a.nav.Current(), event) {
			return nil
		}
		return event
	})
}

// Run starts the TUI application. It blocks until the user quits.
func (a *App) Run() error {
	a.vm.ApplyState(status.StatusChange{To: a.deps.Machine.Current()})
	list := a.deps.Inbox.Summaries()
	unread := 0
	for _, s := range list {
		unread += s.UnreadCount
	}
	a.vm.ApplyInbox(inbox.Snapshot{Summaries: list, Unread: unread})

	events, unsub := a.deps.Bus.Subscribe("", 256)
	go func() {
		defer unsub()
		a.pump(events)
	}()
	a.render()

	return a.app.Run()
}

// pump folds bus events into the view model and schedules a redraw. A 1s
// tick keeps durations and flash expiry current.
func (a *App) pump(events <-chan bus.Event) {
	tick := time.NewTicker(time.Second)
	defer tick.Stop()
	for {
		select {
		case evt := <-events:
			a.apply(evt)
		case <-tick.C:
		case <-a.ctx.Done():
			return
		}
		a.scheduleRender()
	}
}

func (a *App) apply(evt bus.Event) {
	switch p := evt.Payload.(type) {
	case status.StatusChange:
		a.vm.ApplyState(p)
		if p.To == status.Failed {
			a.flash.Warn("event channel failed; live updates stopped")
		}
	case inbox.Snapshot:
		a.vm.ApplyInbox(p)
	case thread.Snapshot:
		a.vm.ApplyThread(p)
	case outbox.Result:
		if evt.Kind != bus.KindSendFailed {
			return
		}
		if c, ok := a.vm.Active(); ok && c.ID == p.ContactID {
			a.flash.Warn("message not sent: " + p.Err)
		}
	}
}

// scheduleRender queues at most one pending redraw.
func (a *App) scheduleRender() {
	if !a.dirty.CompareAndSwap(false, true) {
		return
	}
	a.app.QueueUpdateDraw(func() {
		a.dirty.Store(false)
		a.render()
	})
}

// render copies the view model into the widgets. UI goroutine only.
func (a *App) render() {
	now := time.Now()
	rows, total := a.vm.Visible()
	a.list.Update(rows, total, a.vm.Filter())

	state, since := a.vm.State()
	a.status.SetState(state)
	a.status.SetUnread(a.vm.Unread())
	a.header.Update(ui.ProfileData{
		Profile:       a.deps.Profile,
		State:         state,
		StateSince:    since,
		Conversations: total,
		Unread:        a.vm.Unread(),
		Started:       a.started,
	}, now)

	if c, ok := a.vm.Active(); ok && a.active != nil {
		conn := a.active.Connection()
		a.thread.SetContact(c, conn)
		a.thread.Update(a.vm.Messages(), a.active.Loading())
		a.info.Update(c, conn)
	}
	a.flashBar.Update(a.flash.Current())
}

func (a *App) openSelected() {
	row, _ := a.list.GetSelection()
	a.openRow(row)
}

func (a *App) openRow(row int) {
	s, ok := a.list.At(row)
	if !ok {
		return
	}
	a.closeThread()

	conv := thread.Conversation{Contact: s.Contact}
	if s.LastMessage != nil {
		conv.Origin = s.LastMessage.Origin
	}
	t := a.deps.OpenThread(conv)
	a.active = t
	a.vm.Open(s.Contact)
	a.deps.Inbox.MarkRead(s.ContactID())

	go func() {
		if err := t.Mount(a.ctx); err != nil && !errors.Is(err, thread.ErrClosed) {
			a.notifyErr(fmt.Errorf("load messages: %w", err))
		}
	}()

	a.nav.SetTitle(pageThread, s.DisplayName())
	a.nav.Push(pageThread)
	a.app.SetFocus(a.thread.Messages())
	a.render()
}

func (a *App) closeThread() {
	if a.active == nil {
		return
	}
	a.active.Close()
	a.active = nil
	a.vm.CloseThread()
}

func (a *App) back() {
	switch a.nav.Pop() {
	case pageThread:
		a.closeThread()
	case "":
		return
	}
	switch a.nav.Current() {
	case pageInbox:
		a.app.SetFocus(a.list)
	case pageThread:
		a.app.SetFocus(a.thread.Messages())
	}
	a.render()
}

func (a *App) showInfo() {
	if a.active == nil {
		return
	}
	a.nav.Push(pageInfo)
	a.app.SetFocus(a.info)
	a.render()
}

func (a *App) showHelp() {
	if a.nav.Current() == pageHelp {
		return
	}
	a.help.Update([]views.Section{
		{Title: "Global", Actions: a.registry.Scope(keys.Global)},
		{Title: "Conversations", Actions: a.registry.Scope(pageInbox)},
		{Title: "Thread", Actions: a.registry.Scope(pageThread)},
	})
	a.nav.Push(pageHelp)
	a.app.SetFocus(a.help)
}

func (a *App) retryLastFailed() {
	t := a.active
	if t == nil {
		return
	}
	m, ok := a.vm.LastFailed()
	if !ok {
		a.flash.Info("no failed message to retry")
		a.render()
		return
	}
	go func() {
		if err := t.Retry(a.ctx, m.ID); err != nil {
			a.notifyErr(err)
		}
	}()
}

func (a *App) refresh() {
	a.flash.Info("refreshing conversations")
	go func() {
		if err := a.deps.Inbox.Refresh(a.ctx); err != nil {
			a.notifyErr(fmt.Errorf("refresh: %w", err))
		}
	}()
}

func (a *App) execute(cmd Command) {
	switch cmd.Name {
	case "filter":
		f := a.vm.Filter()
		f.Query = cmd.Args
		a.vm.SetFilter(f)
	case "platform":
		p, err := ParsePlatform(cmd.Args)
		if err != nil {
			a.flash.Err(err)
			return
		}
		f := a.vm.Filter()
		f.Platform = p
		a.vm.SetFilter(f)
	case "refresh":
		a.refresh()
	case "retry":
		a.retryLastFailed()
	case "help":
		a.showHelp()
	case "quit":
		a.Stop()
	default:
		a.flash.Warn(fmt.Sprintf("unknown command %q", cmd.Name))
	}
}

func (a *App) activatePrompt(mode ui.PromptMode, text string) {
	a.prompt.Activate(mode, text)
	a.root.ResizeItem(a.prompt, 3, 0)
	a.app.SetFocus(a.prompt)
}

func (a *App) deactivatePrompt() {
	a.root.ResizeItem(a.prompt, 0, 0)
	switch a.nav.Current() {
	case pageThread:
		a.app.SetFocus(a.thread.Messages())
	case pageInbox:
		a.app.SetFocus(a.list)
	default:
		a.app.SetFocus(a.nav)
	}
}

// notifyErr flashes err from a background goroutine.
func (a *App) notifyErr(err error) {
	a.logger.Warn("tui action failed", zap.Error(err))
	a.flash.Err(err)
	a.scheduleRender()
}

// Stop gracefully shuts down the TUI. The open thread view is closed; sends
// already handed to the outbox continue. UI goroutine only.
func (a *App) Stop() {
	a.closeThread()
	a.cancel()
	a.app.Stop()
}
