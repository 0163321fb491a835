package planning

import (
	"testing"
	"time"
)

func datePtr(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestScoreProfileWindows(t *testing.T) {
	t.Parallel()
	today := time.Date(2026, time.June, 10, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		p      Profile
		value  int
		window Window
	}{
		{name: "max everything", p: Profile{Priority: 3, Energy: 3}, value: 9, window: WindowMorning},
		{name: "morning boundary", p: Profile{Priority: 2, Energy: 2}, value: 6, window: WindowMorning},
		{name: "afternoon", p: Profile{Priority: 2, Energy: 1}, value: 5, window: WindowAfternoon},
		{name: "afternoon boundary", p: Profile{Priority: 1, Energy: 1}, value: 3, window: WindowAfternoon},
		{name: "clamped low", p: Profile{Priority: 0, Energy: -4}, value: 3, window: WindowAfternoon},
		{name: "clamped high", p: Profile{Priority: 9, Energy: 9}, value: 9, window: WindowMorning},
		{name: "due today adds full bonus", p: Profile{Priority: 1, Energy: 1, Deadline: datePtr(2026, time.June, 10)}, value: 8, window: WindowMorning},
		{name: "due tomorrow", p: Profile{Priority: 1, Energy: 1, Deadline: datePtr(2026, time.June, 11)}, value: 7, window: WindowMorning},
		{name: "due in five days no bonus", p: Profile{Priority: 1, Energy: 1, Deadline: datePtr(2026, time.June, 15)}, value: 3, window: WindowAfternoon},
		{name: "overdue grows bonus", p: Profile{Priority: 1, Energy: 1, Deadline: datePtr(2026, time.June, 8)}, value: 10, window: WindowMorning},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := ScoreProfile(tt.p, today)
			if got.Value != tt.value {
				t.Fatalf("Value = %d, want %d", got.Value, tt.value)
			}
			if got.Window != tt.window {
				t.Fatalf("Window = %v, want %v", got.Window, tt.window)
			}
		})
	}
}

func TestScoreProfileDeadlineNeverAnytime(t *testing.T) {
	t.Parallel()
	due := datePtr(2026, time.June, 30)
	got := ScoreProfile(Profile{Priority: 1, Energy: 1, Deadline: due}, time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC))
	if got.Window == WindowAnytime {
		t.Fatalf("Window = %v, deadline tasks must not be anytime", got.Window)
	}
}

func TestScoreMonotonicInPriority(t *testing.T) {
	t.Parallel()
	today := time.Date(2026, time.June, 10, 0, 0, 0, 0, time.UTC)
	prev := -1
	for p := 1; p <= 3; p++ {
		got := ScoreProfile(Profile{Priority: p, Energy: 2}, today)
		if got.Value <= prev {
			t.Fatalf("score not increasing at priority %d: %d <= %d", p, got.Value, prev)
		}
		prev = got.Value
	}
}

func TestDaysUntilIgnoresTimeOfDay(t *testing.T) {
	t.Parallel()
	deadline := time.Date(2026, time.June, 11, 0, 30, 0, 0, time.UTC)
	today := time.Date(2026, time.June, 10, 23, 59, 0, 0, time.UTC)
	if got := daysUntil(deadline, today); got != 1 {
		t.Fatalf("daysUntil = %d, want 1", got)
	}
}
