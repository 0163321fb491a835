package planning

import "time"

// Window thresholds. These are quoted verbatim by user-facing recommendation
// text, so changing them is a breaking change to the day-planning response.
const (
	morningThreshold   = 6
	afternoonThreshold = 3
)

const maxUrgencyBonus = 5

// ScoreProfile computes the urgency score and recommended window for a task.
//
//	value = priority*2 + energy + max(0, 5 - daysUntil(deadline))
//
// Pure and total: invalid priority/energy levels are clamped into 1..3, and a
// missing deadline contributes no bonus.
func ScoreProfile(p Profile, today time.Time) Score {
	value := clampLevel(p.Priority)*2 + clampLevel(p.Energy)
	if p.Deadline != nil {
		if bonus := maxUrgencyBonus - daysUntil(*p.Deadline, today); bonus > 0 {
			value += bonus
		}
	}

	win := WindowEvening
	switch {
	case value >= morningThreshold:
		win = WindowMorning
	case value >= afternoonThreshold:
		win = WindowAfternoon
	case p.Deadline == nil:
		// No deadline pressure: low scores mean "whenever", not "tonight".
		win = WindowAnytime
	}
	return Score{Value: value, Window: win}
}

func clampLevel(v int) int {
	if v < 1 {
		return 1
	}
	if v > 3 {
		return 3
	}
	return v
}

// daysUntil counts whole calendar days from today to the deadline, by date
// (time-of-day is ignored). Past deadlines yield negative values, which only
// grows the urgency bonus.
func daysUntil(deadline, today time.Time) int {
	d := midnight(deadline)
	t := midnight(today.In(deadline.Location()))
	return int(d.Sub(t) / (24 * time.Hour))
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
