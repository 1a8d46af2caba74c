package notify

import (
	"context"
	"errors"
	"strings"
	"time"

	trigger "nudge/internal/trigger"
	logx "nudge/pkg/logx"
)

// Reminder is one due occurrence handed to a Notifier by the sweep.
type Reminder struct {
	Trigger *trigger.Trigger
	UserID  int64
	At      time.Time
}

// Notifier delivers due reminders. Implementations must be safe for
// concurrent use; the sweep calls Send from multiple workers.
type Notifier interface {
	Send(ctx context.Context, r Reminder) error
}

// Config selects and configures the delivery adapter.
type Config struct {
	Driver   string // "log" (default) or "telegram"
	Telegram TelegramConfig
}

type TelegramConfig struct {
	Token       string
	ChatID      int64
	PollTimeout time.Duration
}

// New builds the configured notifier. An empty driver falls back to
// the log adapter so a bare config still produces visible output.
func New(cfg Config, log logx.Logger) (Notifier, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "log":
		return &logNotifier{log: log}, nil
	case "telegram":
		return newTelegram(cfg.Telegram, log)
	default:
		return nil, errors.New("unknown notify driver: " + cfg.Driver)
	}
}

type logNotifier struct {
	log logx.Logger
}

func (n *logNotifier) Send(ctx context.Context, r Reminder) error {
	if r.Trigger == nil {
		return errors.New("reminder without trigger")
	}
	n.log.Info("reminder due",
		logx.Int64("trigger_id", r.Trigger.ID),
		logx.String("name", r.Trigger.Name),
		logx.Int64("user_id", r.UserID),
		logx.Time("at", r.At),
	)
	return nil
}
