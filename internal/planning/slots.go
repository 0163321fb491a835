package planning

import (
	"sort"
	"time"
)

// DefaultMaxCandidates bounds how many slots a single request returns.
const DefaultMaxCandidates = 3

// SlotRequest carries the inputs for one slot search.
//
// CalendarOK distinguishes "no busy intervals" (a genuinely free day) from
// "busy intervals unknown" (calendar not connected); the latter triggers the
// fallback result.
type SlotRequest struct {
	Busy          []Interval
	CalendarOK    bool
	WorkHours     Interval
	Duration      time.Duration
	Profile       Profile
	MaxCandidates int
}

type SlotResult struct {
	Slots        []Slot
	UsedFallback bool
}

// FindSlots computes ranked candidate placements for a task within work hours.
//
// Busy intervals may arrive unsorted and overlapping; they are normalized
// first. Gaps shorter than the requested duration are discarded. Gaps whose
// label matches the profile's recommended window rank first (earliest start
// wins inside each group). An empty result is not an error: the caller decides
// whether to relax duration or work hours.
func FindSlots(req SlotRequest) SlotResult {
	maxN := req.MaxCandidates
	if maxN <= 0 {
		maxN = DefaultMaxCandidates
	}
	if !req.WorkHours.IsValid() || req.Duration <= 0 {
		return SlotResult{}
	}

	if !req.CalendarOK {
		// Degrade to the whole work window, flagged so callers surface
		// "calendar not connected" instead of trusting a free day.
		return SlotResult{
			Slots: []Slot{{
				Start: req.WorkHours.Start,
				End:   req.WorkHours.End,
				Label: labelFor(req.WorkHours.Start),
			}},
			UsedFallback: true,
		}
	}

	gaps := freeGaps(req.WorkHours, Normalize(req.Busy))

	candidates := gaps[:0:0]
	for _, g := range gaps {
		if g.Duration() >= req.Duration {
			candidates = append(candidates, g)
		}
	}

	preferred := ScoreProfile(req.Profile, req.WorkHours.Start).Window
	sort.SliceStable(candidates, func(i, j int) bool {
		pi := labelFor(candidates[i].Start) == preferred
		pj := labelFor(candidates[j].Start) == preferred
		if pi != pj {
			return pi
		}
		return candidates[i].Start.Before(candidates[j].Start)
	})

	if len(candidates) > maxN {
		candidates = candidates[:maxN]
	}

	slots := make([]Slot, 0, len(candidates))
	for _, g := range candidates {
		// Advertise the gap's start as the actionable slot start; never carve
		// an arbitrary window out of the middle of a long gap.
		slots = append(slots, Slot{
			Start: g.Start,
			End:   g.Start.Add(req.Duration),
			Label: labelFor(g.Start),
		})
	}
	return SlotResult{Slots: slots}
}

// FindSnoozeSlot proposes a placement snoozeDelay from now, falling back to
// false when that window collides with a busy interval.
func FindSnoozeSlot(busy []Interval, now time.Time, duration, snoozeDelay time.Duration) (Slot, bool) {
	if duration <= 0 {
		return Slot{}, false
	}
	candidate := Interval{Start: now.Add(snoozeDelay), End: now.Add(snoozeDelay + duration)}
	for _, b := range Normalize(busy) {
		if candidate.Overlaps(b) {
			return Slot{}, false
		}
	}
	return Slot{Start: candidate.Start, End: candidate.End, Label: labelFor(candidate.Start)}, true
}

// Normalize sorts busy intervals by start and merges any that overlap or
// touch. Invalid (zero or inverted) intervals are dropped.
func Normalize(busy []Interval) []Interval {
	valid := make([]Interval, 0, len(busy))
	for _, iv := range busy {
		if iv.IsValid() {
			valid = append(valid, iv)
		}
	}
	if len(valid) <= 1 {
		return valid
	}
	sort.Slice(valid, func(i, j int) bool { return valid[i].Start.Before(valid[j].Start) })

	merged := valid[:1]
	for _, iv := range valid[1:] {
		last := &merged[len(merged)-1]
		if !iv.Start.After(last.End) {
			if iv.End.After(last.End) {
				last.End = iv.End
			}
			continue
		}
		merged = append(merged, iv)
	}
	return merged
}

// freeGaps subtracts normalized busy intervals from the work-hours window.
func freeGaps(workHours Interval, busy []Interval) []Interval {
	var gaps []Interval
	cursor := workHours.Start
	for _, b := range busy {
		if !b.End.After(workHours.Start) || !b.Start.Before(workHours.End) {
			continue
		}
		if b.Start.After(cursor) {
			end := b.Start
			if end.After(workHours.End) {
				end = workHours.End
			}
			if end.After(cursor) {
				gaps = append(gaps, Interval{Start: cursor, End: end})
			}
		}
		if b.End.After(cursor) {
			cursor = b.End
		}
	}
	if cursor.Before(workHours.End) {
		gaps = append(gaps, Interval{Start: cursor, End: workHours.End})
	}
	return gaps
}

// labelFor buckets a timestamp by its start: before 12:00 is morning, before
// 18:00 afternoon, the rest evening. A gap spanning a boundary keeps the label
// of its start.
func labelFor(t time.Time) Window {
	switch h := t.Hour(); {
	case h < 12:
		return WindowMorning
	case h < 18:
		return WindowAfternoon
	default:
		return WindowEvening
	}
}
