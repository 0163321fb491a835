package planning

import "time"

// Window is a time-of-day bucket used both for labeling free gaps and for
// recommending where a task should land.
type Window int

const (
	WindowAnytime Window = iota
	WindowMorning
	WindowAfternoon
	WindowEvening
)

func (w Window) String() string {
	switch w {
	case WindowMorning:
		return "morning"
	case WindowAfternoon:
		return "afternoon"
	case WindowEvening:
		return "evening"
	default:
		return "anytime"
	}
}

// Interval is a half-open [Start, End) time span.
type Interval struct {
	Start time.Time
	End   time.Time
}

func (iv Interval) Duration() time.Duration { return iv.End.Sub(iv.Start) }

func (iv Interval) IsValid() bool { return iv.End.After(iv.Start) }

// Overlaps reports whether two half-open intervals intersect.
// Touching intervals (a.End == b.Start) do not overlap.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start.Before(other.End) && other.Start.Before(iv.End)
}

// Profile is the urgency profile of a task. Priority and Energy are 1..3;
// out-of-range values are clamped, not rejected.
type Profile struct {
	Priority int
	Energy   int
	Deadline *time.Time
}

// Score is the computed urgency of a Profile plus the recommended window.
type Score struct {
	Value  int
	Window Window
}

// Slot is one ranked candidate placement for a task. Start is the actionable
// start of a free gap; End is Start plus the requested duration.
type Slot struct {
	Start time.Time
	End   time.Time
	Label Window
}

func (s Slot) DurationMinutes() int {
	return int(s.End.Sub(s.Start) / time.Minute)
}
