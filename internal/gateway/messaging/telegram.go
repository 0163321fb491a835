package messaging

import (
	"context"
	"errors"

	tele "gopkg.in/telebot.v4"

	"pulsebot/pkg/logx"
)

// Telegram delivers check-ins through a shared telebot instance. The bot is
// owned by the app (the command router polls it); this adapter only sends.
type Telegram struct {
	bot *tele.Bot
	log logx.Logger
}

func NewTelegram(bot *tele.Bot, log logx.Logger) *Telegram {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Telegram{bot: bot, log: log}
}

func (t *Telegram) Send(ctx context.Context, to Recipient, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := t.bot.Send(&tele.Chat{ID: to.ChatID}, text, &tele.SendOptions{DisableWebPagePreview: true})
	if err != nil {
		return classify(err)
	}
	return nil
}

// classify maps Telegram API failures onto the transient/permanent split the
// ledger state machine needs. Flood waits, timeouts and unknown errors stay
// transient so a flaky network never burns a recipient permanently.
func classify(err error) error {
	switch {
	case errors.Is(err, tele.ErrBlockedByUser),
		errors.Is(err, tele.ErrUserIsDeactivated),
		errors.Is(err, tele.ErrChatNotFound),
		errors.Is(err, tele.ErrNotStartedByUser):
		return &PermanentError{Err: err}
	}
	return err
}
