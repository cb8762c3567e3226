package ui

import (
	"errors"
	"testing"
	"time"
)

func TestFlashExpires(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	f := NewFlashModel()
	f.now = func() time.Time { return now }

	if f.Current() != nil {
		t.Fatal("empty model should have no message")
	}

	f.Err(errors.New("send failed"))
	m := f.Current()
	if m == nil || m.Text != "send failed" || m.Level != FlashErr {
		t.Fatalf("Current() = %+v, want error flash", m)
	}

	now = now.Add(11 * time.Second)
	if f.Current() != nil {
		t.Fatal("error flash should expire after 10s")
	}

	f.Info("sent")
	now = now.Add(3 * time.Second)
	if m := f.Current(); m == nil || m.Level != FlashInfo {
		t.Fatalf("Current() = %+v, want info flash", m)
	}
}
