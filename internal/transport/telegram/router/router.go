// Package router wires bot commands to the planning and settings surfaces.
// It is deliberately thin: parsing and replies live here, behavior lives in
// the services.
package router

import (
	"context"
	"time"

	tele "gopkg.in/telebot.v4"

	"pulsebot/internal/services/dayplan"
	"pulsebot/internal/services/dispatch"
	"pulsebot/internal/storage"
	"pulsebot/pkg/logx"
)

type Router struct {
	bot      *tele.Bot
	store    storage.Store
	dayplan  *dayplan.Service
	dispatch *dispatch.Service
	owners   map[int64]bool
	log      logx.Logger
}

func New(bot *tele.Bot, store storage.Store, dp *dayplan.Service, ds *dispatch.Service, ownerIDs []int64, log logx.Logger) *Router {
	owners := make(map[int64]bool, len(ownerIDs))
	for _, id := range ownerIDs {
		owners[id] = true
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{bot: bot, store: store, dayplan: dp, dispatch: ds, owners: owners, log: log}
}

// Register installs the command handlers and the bot command menu.
func (r *Router) Register() {
	r.bot.Handle("/start", r.wrap(r.cmdStart))
	r.bot.Handle("/checkin", r.wrap(r.cmdCheckin))
	r.bot.Handle("/plan", r.wrap(r.cmdPlan))
	r.bot.Handle("/snooze", r.wrap(r.cmdSnooze))
	r.bot.Handle("/status", r.wrap(r.cmdStatus))

	_ = r.bot.SetCommands([]tele.Command{
		{Text: "start", Description: "Enable check-ins with the default cadence"},
		{Text: "checkin", Description: "Show or change your check-in cadence"},
		{Text: "plan", Description: "Find time slots for a task"},
		{Text: "snooze", Description: "Push a task a little later"},
		{Text: "status", Description: "Dispatch status (owners)"},
	})
}

type handlerFunc func(ctx context.Context, c tele.Context) error

// wrap gives every handler a bounded context and keeps handler panics from
// taking down the poller.
func (r *Router) wrap(h handlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		defer func() {
			if rec := recover(); rec != nil {
				r.log.Error("panic in command handler", logx.Any("panic", rec))
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := h(ctx, c); err != nil {
			r.log.Warn("command failed", logx.String("text", c.Text()), logx.Err(err))
			return c.Send("Something went wrong, please try again.")
		}
		return nil
	}
}

func (r *Router) isOwner(userID int64) bool { return r.owners[userID] }
