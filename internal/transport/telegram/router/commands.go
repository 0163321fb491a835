package router

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"pulsebot/internal/cadence"
	"pulsebot/internal/services/dayplan"
	"pulsebot/internal/storage"
)

func (r *Router) cmdStart(ctx context.Context, c tele.Context) error {
	if r.store == nil {
		return c.Send("Check-ins need storage enabled; day planning still works via /plan.")
	}
	userID := c.Sender().ID

	u, ok, err := r.store.GetSettings(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		u = storage.UserSettings{
			UserID:    userID,
			Cadence:   cadence.DefaultConfig(),
			WorkStart: "08:00",
			WorkEnd:   "18:00",
		}
	}
	u.ChatID = c.Chat().ID
	u.Cadence.Enabled = true
	if err := r.store.SaveSettings(ctx, u); err != nil {
		return err
	}
	return c.Send("Check-ins are on. Default cadence: 09:00, 14:00, 18:00.\n" +
		"Use /checkin to adjust times, randomization and weekend behavior,\n" +
		"and /plan <minutes> to find free slots for a task.")
}

func (r *Router) cmdCheckin(ctx context.Context, c tele.Context) error {
	if r.store == nil {
		return c.Send("Check-ins need storage enabled.")
	}
	userID := c.Sender().ID

	u, ok, err := r.store.GetSettings(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return c.Send("No cadence yet — run /start first.")
	}

	args := strings.Fields(c.Message().Payload)
	if len(args) == 0 {
		return c.Send(formatCadence(u))
	}

	switch args[0] {
	case "on":
		u.Cadence.Enabled = true
	case "off":
		u.Cadence.Enabled = false
	case "times":
		if len(args) < 2 {
			return c.Send("Usage: /checkin times 09:00,14:00,18:00")
		}
		anchors, err := anchorsFromTimes(strings.Split(args[1], ","), u.Cadence.Anchors)
		if err != nil {
			return c.Send(err.Error())
		}
		u.Cadence.Anchors = anchors
	case "randomize":
		u.Cadence.Randomize = len(args) > 1 && args[1] == "on"
	case "weekends":
		u.Cadence.SkipWeekends = len(args) > 1 && args[1] == "skip"
	default:
		return c.Send("Usage: /checkin [on|off|times HH:MM,..|randomize on|off|weekends skip|keep]")
	}

	// Reject malformed cadences here, at save time. The planner assumes
	// validated config and never re-checks.
	if err := u.Cadence.Validate(); err != nil {
		var cfgErr *cadence.ConfigError
		if errors.As(err, &cfgErr) {
			return c.Send("Invalid cadence: " + cfgErr.Reason)
		}
		return err
	}
	if err := r.store.SaveSettings(ctx, u); err != nil {
		return err
	}
	return c.Send(formatCadence(u))
}

func (r *Router) cmdPlan(ctx context.Context, c tele.Context) error {
	req, err := parsePlanArgs(c.Sender().ID, strings.Fields(c.Message().Payload))
	if err != nil {
		return c.Send(err.Error())
	}

	resp, err := r.dayplan.Plan(ctx, req)
	if err != nil {
		return err
	}

	var b strings.Builder
	b.WriteString(resp.Recommendation)
	b.WriteString("\n")
	if resp.UsedFallback {
		b.WriteString("⚠️ Calendar not connected — assuming your whole work window is free.\n")
	}
	if len(resp.Slots) == 0 {
		b.WriteString("No free slot fits that duration. Try a shorter task or wider work hours.")
		return c.Send(b.String())
	}
	for i, slot := range resp.Slots {
		fmt.Fprintf(&b, "%d. %s–%s (%s)\n", i+1,
			slot.Start.Format("15:04"), slot.End.Format("15:04"), slot.Label)
	}
	return c.Send(b.String())
}

func (r *Router) cmdSnooze(ctx context.Context, c tele.Context) error {
	args := strings.Fields(c.Message().Payload)
	minutes := 30
	if len(args) > 0 {
		m, err := strconv.Atoi(args[0])
		if err != nil || m <= 0 {
			return c.Send("Usage: /snooze [minutes]")
		}
		minutes = m
	}
	slot, ok, err := r.dayplan.Snooze(ctx, c.Sender().ID, minutes, time.Now())
	if err != nil {
		return err
	}
	if !ok {
		return c.Send("Couldn't find a later slot today.")
	}
	return c.Send(fmt.Sprintf("Pushed to %s–%s.", slot.Start.Format("15:04"), slot.End.Format("15:04")))
}

func (r *Router) cmdStatus(ctx context.Context, c tele.Context) error {
	if !r.isOwner(c.Sender().ID) {
		return c.Send("Owners only.")
	}
	if r.dispatch == nil {
		return c.Send("Dispatch is not running.")
	}
	snap := r.dispatch.Snapshot()

	var sent, failed int
	for _, h := range snap.History {
		switch h.Outcome {
		case "sent":
			sent++
		case "failed_transient", "failed_permanent":
			failed++
		}
	}
	return c.Send(fmt.Sprintf(
		"Dispatch: enabled=%v tz=%s workers=%d queue=%d\nRecent: %d sent, %d failed (last %d events)",
		snap.Enabled, snap.Timezone, snap.Workers, snap.QueueLen, sent, failed, len(snap.History)))
}

// ---- helpers ----

func formatCadence(u storage.UserSettings) string {
	var b strings.Builder
	if u.Cadence.Enabled {
		b.WriteString("Check-ins: on\n")
	} else {
		b.WriteString("Check-ins: off\n")
	}
	for i, a := range u.Cadence.Anchors {
		cats := make([]string, 0, len(a.Categories))
		for _, cat := range a.Categories {
			cats = append(cats, string(cat))
		}
		fmt.Fprintf(&b, "%d. %s → %s\n", i+1, a.TimeOfDay, strings.Join(cats, ", "))
	}
	fmt.Fprintf(&b, "randomize=%v skip_weekends=%v", u.Cadence.Randomize, u.Cadence.SkipWeekends)
	return b.String()
}

// anchorsFromTimes builds a new anchor list, keeping each slot's categories
// where an anchor already existed at that position.
func anchorsFromTimes(times []string, prev []cadence.Anchor) ([]cadence.Anchor, error) {
	defaults := cadence.DefaultConfig().Anchors
	anchors := make([]cadence.Anchor, 0, len(times))
	for i, t := range times {
		t = strings.TrimSpace(t)
		if _, _, err := cadence.ParseTimeOfDay(t); err != nil {
			return nil, fmt.Errorf("invalid time %q (expected HH:MM)", t)
		}
		var cats []cadence.Category
		switch {
		case i < len(prev):
			cats = prev[i].Categories
		case i < len(defaults):
			cats = defaults[i].Categories
		default:
			cats = cadence.Categories()
		}
		anchors = append(anchors, cadence.Anchor{TimeOfDay: t, Categories: cats})
	}
	return anchors, nil
}

func parsePlanArgs(userID int64, args []string) (dayplan.Request, error) {
	usage := fmt.Errorf("Usage: /plan <minutes> [p1-3] [e1-3] [due=YYYY-MM-DD]")
	if len(args) == 0 {
		return dayplan.Request{}, usage
	}
	minutes, err := strconv.Atoi(args[0])
	if err != nil || minutes <= 0 {
		return dayplan.Request{}, usage
	}

	req := dayplan.Request{UserID: userID, DurationMinutes: minutes, Priority: 2, Energy: 2}
	for _, arg := range args[1:] {
		switch {
		case len(arg) == 2 && arg[0] == 'p':
			if v, err := strconv.Atoi(arg[1:]); err == nil {
				req.Priority = v
			}
		case len(arg) == 2 && arg[0] == 'e':
			if v, err := strconv.Atoi(arg[1:]); err == nil {
				req.Energy = v
			}
		case strings.HasPrefix(arg, "due="):
			d, err := time.ParseInLocation(time.DateOnly, strings.TrimPrefix(arg, "due="), time.Local)
			if err != nil {
				return dayplan.Request{}, fmt.Errorf("invalid due date %q (expected YYYY-MM-DD)", arg)
			}
			req.Deadline = &d
		default:
			return dayplan.Request{}, usage
		}
	}
	return req, nil
}
