package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	logx "nudge/pkg/logx"
)

type telegramNotifier struct {
	bot    *tele.Bot
	chatID int64
	log    logx.Logger
}

func newTelegram(cfg TelegramConfig, log logx.Logger) (Notifier, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat_id is required")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	return &telegramNotifier{bot: b, chatID: cfg.ChatID, log: log}, nil
}

func (n *telegramNotifier) Send(ctx context.Context, r Reminder) error {
	if r.Trigger == nil {
		return errors.New("reminder without trigger")
	}
	sendOpt := &tele.SendOptions{DisableWebPagePreview: true}
	_, err := n.bot.Send(tele.ChatID(n.chatID), formatReminder(r), sendOpt)
	if err != nil {
		n.log.Warn("telegram send failed",
			logx.Int64("trigger_id", r.Trigger.ID), logx.Err(err))
	}
	return err
}

func formatReminder(r Reminder) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Reminder: %s", r.Trigger.Name)
	if details := r.Trigger.TimeDetails(); details != "" {
		b.WriteString("\n")
		b.WriteString(details)
	}
	fmt.Fprintf(&b, "\nDue %s", r.At.Format(time.RFC1123))
	return b.String()
}
