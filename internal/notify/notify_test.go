package notify

import (
	"context"
	"strings"
	"testing"
	"time"

	trigger "nudge/internal/trigger"
	logx "nudge/pkg/logx"
)

func TestNewDriverSelection(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"", "log", "LOG"} {
		n, err := New(Config{Driver: driver}, logx.Nop())
		if err != nil {
			t.Fatalf("New(%q): %v", driver, err)
		}
		if _, ok := n.(*logNotifier); !ok {
			t.Fatalf("New(%q) = %T, want *logNotifier", driver, n)
		}
	}

	if _, err := New(Config{Driver: "pigeon"}, logx.Nop()); err == nil {
		t.Fatal("unknown driver should error")
	}
}

func TestTelegramConfigValidation(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{Driver: "telegram"}, logx.Nop()); err == nil {
		t.Fatal("missing token should error")
	}
	cfg := Config{Driver: "telegram"}
	cfg.Telegram.Token = "123:abc"
	if _, err := New(cfg, logx.Nop()); err == nil {
		t.Fatal("missing chat_id should error")
	}
}

func TestLogNotifierSend(t *testing.T) {
	t.Parallel()
	n := &logNotifier{log: logx.Nop()}
	err := n.Send(context.Background(), Reminder{
		Trigger: &trigger.Trigger{ID: 1, Name: "Drink water"},
		UserID:  5,
		At:      time.Now(),
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := n.Send(context.Background(), Reminder{}); err == nil {
		t.Fatal("reminder without trigger should error")
	}
}

func TestFormatReminder(t *testing.T) {
	t.Parallel()
	tr := &trigger.Trigger{
		Name: "Review weekly goals",
		Time: &trigger.Clock{Hour: 9, Minute: 30},
	}
	tr.Normalize()
	at := time.Date(2026, 8, 31, 9, 30, 0, 0, time.UTC)

	got := formatReminder(Reminder{Trigger: tr, At: at})
	if !strings.HasPrefix(got, "Reminder: Review weekly goals") {
		t.Fatalf("unexpected prefix: %q", got)
	}
	if !strings.Contains(got, "09:30") {
		t.Fatalf("missing schedule detail: %q", got)
	}
	if !strings.Contains(got, "Due Mon, 31 Aug 2026") {
		t.Fatalf("missing due line: %q", got)
	}
}
