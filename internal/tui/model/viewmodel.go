// Package model holds the terminal client's render state. It is fed by bus
// events and read by the views; it never talks to the backend itself.
package model

import (
	"sync"
	"time"

	"github.com/matheus3301/omnisync/internal/crm"
	"github.com/matheus3301/omnisync/internal/inbox"
	"github.com/matheus3301/omnisync/internal/status"
	"github.com/matheus3301/omnisync/internal/thread"
)

// ViewModel caches the latest inbox and thread snapshots.
type ViewModel struct {
	mu sync.RWMutex

	summaries []crm.Summary
	unread    int
	filter    inbox.Filter

	state      status.State
	stateSince time.Time

	active   *crm.Contact
	messages []crm.Message
}

// NewViewModel creates an empty view model in the Disconnected state.
func NewViewModel() *ViewModel {
	return &ViewModel{state: status.Disconnected, stateSince: time.Now()}
}

// ApplyInbox replaces the cached conversation list. The open conversation's
// contact record is refreshed from the new list when present.
func (vm *ViewModel) ApplyInbox(snap inbox.Snapshot) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.summaries = snap.Summaries
	vm.unread = snap.Unread
	if vm.active == nil {
		return
	}
	for _, s := range snap.Summaries {
		if s.ContactID() == vm.active.ID {
			c := s.Contact
			vm.active = &c
			return
		}
	}
}

// ApplyThread replaces the cached messages if snap belongs to the open
// conversation. Reports whether it did.
func (vm *ViewModel) ApplyThread(snap thread.Snapshot) bool {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if vm.active == nil || vm.active.ID != snap.ContactID {
		return false
	}
	vm.messages = snap.Messages
	return true
}

// ApplyState records a channel state change.
func (vm *ViewModel) ApplyState(change status.StatusChange) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.state = change.To
	vm.stateSince = time.Now()
}

// State returns the channel state and when it was entered.
func (vm *ViewModel) State() (status.State, time.Time) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.state, vm.stateSince
}

// SetFilter sets the inbox projection.
func (vm *ViewModel) SetFilter(f inbox.Filter) {
	vm.mu.Lock()
	vm.filter = f
	vm.mu.Unlock()
}

// Filter returns the current inbox projection.
func (vm *ViewModel) Filter() inbox.Filter {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.filter
}

// Visible returns the filtered rows and the unfiltered total.
func (vm *ViewModel) Visible() ([]crm.Summary, int) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.filter.Apply(vm.summaries), len(vm.summaries)
}

// Unread returns the unread total across all conversations.
func (vm *ViewModel) Unread() int {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.unread
}

// Open makes c the active conversation and clears the cached messages.
func (vm *ViewModel) Open(c crm.Contact) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.active = &c
	vm.messages = nil
}

// CloseThread clears the active conversation.
func (vm *ViewModel) CloseThread() {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.active = nil
	vm.messages = nil
}

// Active returns the open conversation's contact, if any.
func (vm *ViewModel) Active() (crm.Contact, bool) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	if vm.active == nil {
		return crm.Contact{}, false
	}
	return *vm.active, true
}

// Messages returns the open conversation's messages, oldest first.
func (vm *ViewModel) Messages() []crm.Message {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.messages
}

// LastFailed returns the most recent failed message of the open
// conversation.
func (vm *ViewModel) LastFailed() (crm.Message, bool) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	for i := len(vm.messages) - 1; i >= 0; i-- {
		if vm.messages[i].DeliveryState == crm.DeliveryFailed {
			return vm.messages[i], true
		}
	}
	return crm.Message{}, false
}
