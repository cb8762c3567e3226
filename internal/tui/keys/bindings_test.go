package keys

import (
	"testing"

	"github.com/gdamore/tcell/v2"
)

func TestPageBindingShadowsGlobal(t *testing.T) {
	r := NewRegistry()
	var got string
	r.Add(Global, &Action{Name: "quit", Key: tcell.KeyRune, Rune: 'q', Handler: func() { got = "global" }})
	r.Add("thread", &Action{Name: "back", Key: tcell.KeyRune, Rune: 'q', Handler: func() { got = "thread" }})

	if !r.Handle("thread", tcell.KeyRune, 'q') || got != "thread" {
		t.Fatalf("thread page: got %q, want thread", got)
	}
	if !r.Handle("inbox", tcell.KeyRune, 'q') || got != "global" {
		t.Fatalf("inbox page: got %q, want global", got)
	}
	if r.Handle("inbox", tcell.KeyRune, 'x') {
		t.Fatal("unbound key reported as handled")
	}
}

func TestSpecialKeysAndReplace(t *testing.T) {
	r := NewRegistry()
	calls := 0
	r.Add("inbox", &Action{Name: "open", Key: tcell.KeyEnter, Handler: func() { calls++ }})
	r.Add("inbox", &Action{Name: "open", Key: tcell.KeyEnter, Handler: func() { calls += 10 }})

	r.Handle("inbox", tcell.KeyEnter, 0)
	if calls != 10 {
		t.Fatalf("calls = %d, want replaced handler to run once", calls)
	}
}

func TestVisibleOrder(t *testing.T) {
	r := NewRegistry()
	r.Add(Global, &Action{Name: "help", Key: tcell.KeyRune, Rune: '?'})
	r.Add("inbox", &Action{Name: "open", Key: tcell.KeyEnter})
	r.Add("inbox", &Action{Name: "jump", Key: tcell.KeyRune, Rune: '1', Hidden: true})
	r.Add("inbox", &Action{Name: "filter", Key: tcell.KeyRune, Rune: '/'})

	var names []string
	for _, a := range r.Visible("inbox") {
		names = append(names, a.Name)
	}
	want := []string{"open", "filter", "help"}
	if len(names) != len(want) {
		t.Fatalf("Visible() = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("Visible() = %v, want %v", names, want)
		}
	}
}

func TestScopeExcludesGlobal(t *testing.T) {
	r := NewRegistry()
	r.Add(Global, &Action{Name: "quit", Key: tcell.KeyRune, Rune: 'q'})
	r.Add("thread", &Action{Name: "retry", Key: tcell.KeyRune, Rune: 'r'})

	got := r.Scope("thread")
	if len(got) != 1 || got[0].Name != "retry" {
		t.Fatalf("Scope(thread) = %v, want [retry]", got)
	}
	if len(r.Scope("missing")) != 0 {
		t.Fatal("unknown scope should be empty")
	}
}
