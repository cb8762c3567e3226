// Package keys holds the terminal client's key bindings, scoped per page.
package keys

import (
	"github.com/gdamore/tcell/v2"
)

// Global is the scope consulted after the current page's bindings.
const Global = ""

// Action represents a keybinding action.
type Action struct {
	Name        string
	Key         tcell.Key
	Rune        rune
	Label       string // key as shown in the menu, e.g. "Enter"
	Description string
	Handler     func()
	Hidden      bool
}

// Matches returns true if key (and r, for tcell.KeyRune) trigger this action.
func (a *Action) Matches(key tcell.Key, r rune) bool {
	if a.Key != tcell.KeyRune {
		return key == a.Key
	}
	return key == tcell.KeyRune && r == a.Rune
}

// Registry holds keybindings organized by scope, in registration order.
type Registry struct {
	scopes map[string][]*Action
}

// NewRegistry creates a new keybinding registry.
func NewRegistry() *Registry {
	return &Registry{scopes: make(map[string][]*Action)}
}

// Add registers an action in scope. An action with the same name in the
// same scope is replaced in place.
func (r *Registry) Add(scope string, a *Action) {
	list := r.scopes[scope]
	for i, existing := range list {
		if existing.Name == a.Name {
			list[i] = a
			return
		}
	}
	r.scopes[scope] = append(list, a)
}

// Visible returns the non-hidden actions for a page: page bindings first,
// then global ones.
func (r *Registry) Visible(page string) []*Action {
	var out []*Action
	for _, scope := range r.lookupOrder(page) {
		out = append(out, r.Scope(scope)...)
	}
	return out
}

// Scope returns the non-hidden actions registered directly in scope.
func (r *Registry) Scope(scope string) []*Action {
	var out []*Action
	for _, a := range r.scopes[scope] {
		if !a.Hidden {
			out = append(out, a)
		}
	}
	return out
}

// HandleEvent dispatches a key event to the first matching action for page.
// Returns true if a handler matched.
func (r *Registry) HandleEvent(page string, ev *tcell.EventKey) bool {
	return r.Handle(page, ev.Key(), ev.Rune())
}

// Handle is HandleEvent for a decoded key.
func (r *Registry) Handle(page string, key tcell.Key, ch rune) bool {
	for _, scope := range r.lookupOrder(page) {
		for _, a := range r.scopes[scope] {
			if a.Matches(key, ch) {
				if a.Handler != nil {
					a.Handler()
				}
				return true
			}
		}
	}
	return false
}

func (r *Registry) lookupOrder(page string) []string {
	if page == Global {
		return []string{Global}
	}
	return []string{page, Global}
}
