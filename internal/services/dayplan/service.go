// Package dayplan is the synchronous read path: given a task's urgency
// profile it asks the calendar for busy time and returns ranked slot
// candidates plus a human-readable recommendation.
package dayplan

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pulsebot/internal/cadence"
	"pulsebot/internal/gateway/calendar"
	"pulsebot/internal/planning"
	"pulsebot/internal/storage"
	"pulsebot/pkg/logx"
)

// Config holds planning defaults for users without stored preferences.
type Config struct {
	WorkStart     string // "HH:MM", default 08:00
	WorkEnd       string // "HH:MM", default 18:00
	MaxCandidates int
	SnoozeDelay   time.Duration
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.WorkStart) == "" {
		c.WorkStart = "08:00"
	}
	if strings.TrimSpace(c.WorkEnd) == "" {
		c.WorkEnd = "18:00"
	}
	if c.MaxCandidates <= 0 {
		c.MaxCandidates = planning.DefaultMaxCandidates
	}
	if c.SnoozeDelay <= 0 {
		c.SnoozeDelay = 30 * time.Minute
	}
	return c
}

type Request struct {
	UserID          int64
	Date            time.Time // zero means today
	DurationMinutes int
	Priority        int // 1..3
	Energy          int // 1..3
	Deadline        *time.Time
}

type Response struct {
	Slots             []planning.Slot
	Score             planning.Score
	Recommendation    string
	UsedFallback      bool
	CalendarConnected bool
}

type Service struct {
	cfg   Config
	store storage.Store // optional; nil means defaults only
	cal   calendar.Gateway
	log   logx.Logger
}

func New(cfg Config, store storage.Store, cal calendar.Gateway, log logx.Logger) *Service {
	if cal == nil {
		cal = calendar.None{}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg.withDefaults(), store: store, cal: cal, log: log}
}

// Plan computes ranked slot candidates for one task on one date.
//
// A missing calendar connection is not an error: the response degrades to the
// full work-hours window with UsedFallback set, and the caller must surface
// "calendar not connected" instead of trusting a free day.
func (s *Service) Plan(ctx context.Context, req Request) (Response, error) {
	if req.DurationMinutes <= 0 {
		return Response{}, fmt.Errorf("duration must be positive, got %d", req.DurationMinutes)
	}

	date := req.Date
	if date.IsZero() {
		date = time.Now()
	}
	workHours := s.workHoursFor(ctx, req.UserID, date)

	busy, err := s.cal.GetBusyIntervals(ctx, req.UserID, date)
	connected := err == nil
	if err != nil && !errors.Is(err, calendar.ErrNotConnected) {
		// Treat transport failures like a missing connection: degrade, flag,
		// and keep the request serviceable.
		s.log.Debug("calendar fetch degraded to fallback", logx.Int64("user", req.UserID), logx.Err(err))
	}

	profile := planning.Profile{Priority: req.Priority, Energy: req.Energy, Deadline: req.Deadline}
	result := planning.FindSlots(planning.SlotRequest{
		Busy:          busy,
		CalendarOK:    connected,
		WorkHours:     workHours,
		Duration:      time.Duration(req.DurationMinutes) * time.Minute,
		Profile:       profile,
		MaxCandidates: s.cfg.MaxCandidates,
	})
	score := planning.ScoreProfile(profile, workHours.Start)

	return Response{
		Slots:             result.Slots,
		Score:             score,
		Recommendation:    recommendationText(score),
		UsedFallback:      result.UsedFallback,
		CalendarConnected: connected,
	}, nil
}

// Snooze proposes a placement a short delay from now, or falls back to the
// next planned slot when the snooze window is busy.
func (s *Service) Snooze(ctx context.Context, userID int64, durationMinutes int, now time.Time) (planning.Slot, bool, error) {
	busy, err := s.cal.GetBusyIntervals(ctx, userID, now)
	if err != nil {
		busy = nil // unknown busy time: optimistically allow the snooze
	}
	d := time.Duration(durationMinutes) * time.Minute
	if slot, ok := planning.FindSnoozeSlot(busy, now, d, s.cfg.SnoozeDelay); ok {
		return slot, true, nil
	}
	resp, perr := s.Plan(ctx, Request{UserID: userID, Date: now, DurationMinutes: durationMinutes, Priority: 2, Energy: 1})
	if perr != nil || len(resp.Slots) == 0 {
		return planning.Slot{}, false, perr
	}
	return resp.Slots[0], true, nil
}

// workHoursFor resolves the user's work window on a date, preferring stored
// settings over configured defaults.
func (s *Service) workHoursFor(ctx context.Context, userID int64, date time.Time) planning.Interval {
	startStr, endStr := s.cfg.WorkStart, s.cfg.WorkEnd
	if s.store != nil {
		if u, ok, err := s.store.GetSettings(ctx, userID); err == nil && ok {
			if strings.TrimSpace(u.WorkStart) != "" {
				startStr = u.WorkStart
			}
			if strings.TrimSpace(u.WorkEnd) != "" {
				endStr = u.WorkEnd
			}
		}
	}

	sh, sm, err := cadence.ParseTimeOfDay(startStr)
	if err != nil {
		sh, sm = 8, 0
	}
	eh, em, err := cadence.ParseTimeOfDay(endStr)
	if err != nil {
		eh, em = 18, 0
	}
	y, m, d := date.Date()
	loc := date.Location()
	return planning.Interval{
		Start: time.Date(y, m, d, sh, sm, 0, 0, loc),
		End:   time.Date(y, m, d, eh, em, 0, 0, loc),
	}
}

// recommendationText renders the public window recommendation. The quoted
// thresholds are part of the response contract; keep them in sync with the
// scorer's breakpoints.
func recommendationText(sc planning.Score) string {
	switch sc.Window {
	case planning.WindowMorning:
		return fmt.Sprintf("High urgency (score %d ≥ 6): tackle this in the morning.", sc.Value)
	case planning.WindowAfternoon:
		return fmt.Sprintf("Medium urgency (score %d ≥ 3): an afternoon slot works well.", sc.Value)
	case planning.WindowEvening:
		return fmt.Sprintf("Low urgency (score %d): an evening slot is fine.", sc.Value)
	default:
		return fmt.Sprintf("Low urgency (score %d): schedule it whenever it fits.", sc.Value)
	}
}
