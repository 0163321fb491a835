package planning

import (
	"testing"
	"time"
)

func at(h, m int) time.Time {
	return time.Date(2026, time.June, 10, h, m, 0, 0, time.UTC)
}

func iv(sh, sm, eh, em int) Interval {
	return Interval{Start: at(sh, sm), End: at(eh, em)}
}

func TestFindSlotsBusyMorning(t *testing.T) {
	t.Parallel()
	due := at(0, 0).AddDate(0, 0, 1)
	res := FindSlots(SlotRequest{
		Busy:       []Interval{iv(9, 0, 10, 0), iv(13, 0, 14, 30)},
		CalendarOK: true,
		WorkHours:  iv(8, 0, 18, 0),
		Duration:   30 * time.Minute,
		Profile:    Profile{Priority: 3, Energy: 3, Deadline: &due},
	})
	if res.UsedFallback {
		t.Fatal("unexpected fallback")
	}
	if len(res.Slots) != 3 {
		t.Fatalf("got %d slots, want 3", len(res.Slots))
	}
	// High score prefers the morning window, so morning gaps rank first.
	first := res.Slots[0]
	if !first.Start.Equal(at(8, 0)) || !first.End.Equal(at(8, 30)) {
		t.Fatalf("top slot = %v–%v, want 08:00–08:30", first.Start, first.End)
	}
	if first.Label != WindowMorning {
		t.Fatalf("top label = %v, want morning", first.Label)
	}
	if !res.Slots[1].Start.Equal(at(10, 0)) {
		t.Fatalf("second slot starts %v, want 10:00", res.Slots[1].Start)
	}
}

func TestFindSlotsNeverOverlapBusy(t *testing.T) {
	t.Parallel()
	busy := []Interval{iv(9, 0, 10, 0), iv(13, 0, 14, 30)}
	res := FindSlots(SlotRequest{
		Busy:       busy,
		CalendarOK: true,
		WorkHours:  iv(8, 0, 18, 0),
		Duration:   45 * time.Minute,
		Profile:    Profile{Priority: 2, Energy: 2},
	})
	for _, s := range res.Slots {
		cand := Interval{Start: s.Start, End: s.End}
		for _, b := range busy {
			if cand.Overlaps(b) {
				t.Fatalf("slot %v–%v overlaps busy %v–%v", s.Start, s.End, b.Start, b.End)
			}
		}
	}
}

func TestFindSlotsCalendarUnavailableFallsBack(t *testing.T) {
	t.Parallel()
	res := FindSlots(SlotRequest{
		CalendarOK: false,
		WorkHours:  iv(8, 0, 18, 0),
		Duration:   30 * time.Minute,
		Profile:    Profile{Priority: 2, Energy: 2},
	})
	if !res.UsedFallback {
		t.Fatal("expected fallback")
	}
	if len(res.Slots) != 1 {
		t.Fatalf("got %d slots, want 1", len(res.Slots))
	}
	s := res.Slots[0]
	if !s.Start.Equal(at(8, 0)) || !s.End.Equal(at(18, 0)) {
		t.Fatalf("fallback = %v–%v, want whole work window", s.Start, s.End)
	}
}

func TestFindSlotsTooShortGapsDiscarded(t *testing.T) {
	t.Parallel()
	// Only one 15-minute gap exists; a 30-minute task cannot fit anywhere.
	res := FindSlots(SlotRequest{
		Busy:       []Interval{iv(8, 0, 12, 0), iv(12, 15, 18, 0)},
		CalendarOK: true,
		WorkHours:  iv(8, 0, 18, 0),
		Duration:   30 * time.Minute,
		Profile:    Profile{Priority: 2, Energy: 2},
	})
	if res.UsedFallback || len(res.Slots) != 0 {
		t.Fatalf("got %d slots (fallback=%v), want none", len(res.Slots), res.UsedFallback)
	}
}

func TestFindSlotsCapsCandidates(t *testing.T) {
	t.Parallel()
	res := FindSlots(SlotRequest{
		Busy: []Interval{
			iv(8, 30, 9, 0), iv(10, 0, 10, 30), iv(12, 0, 12, 30),
			iv(14, 0, 14, 30), iv(16, 0, 16, 30),
		},
		CalendarOK: true,
		WorkHours:  iv(8, 0, 18, 0),
		Duration:   20 * time.Minute,
		Profile:    Profile{Priority: 1, Energy: 1},
	})
	if len(res.Slots) != DefaultMaxCandidates {
		t.Fatalf("got %d slots, want %d", len(res.Slots), DefaultMaxCandidates)
	}
}

func TestNormalizeMergesAndSorts(t *testing.T) {
	t.Parallel()
	got := Normalize([]Interval{
		iv(13, 0, 14, 0),
		iv(9, 0, 10, 0),
		iv(9, 30, 11, 0),  // overlaps the 9:00 block
		iv(11, 0, 11, 30), // touches, still merges
		{},                // invalid, dropped
	})
	want := []Interval{iv(9, 0, 11, 30), iv(13, 0, 14, 0)}
	if len(got) != len(want) {
		t.Fatalf("got %d intervals, want %d", len(got), len(want))
	}
	for i := range want {
		if !got[i].Start.Equal(want[i].Start) || !got[i].End.Equal(want[i].End) {
			t.Fatalf("interval %d = %v–%v, want %v–%v", i, got[i].Start, got[i].End, want[i].Start, want[i].End)
		}
	}
}

func TestFreeGapsBusyOutsideWorkHours(t *testing.T) {
	t.Parallel()
	gaps := freeGaps(iv(8, 0, 18, 0), Normalize([]Interval{
		iv(6, 0, 7, 0),   // before work
		iv(19, 0, 20, 0), // after work
		iv(7, 30, 8, 30), // straddles start
	}))
	if len(gaps) != 1 {
		t.Fatalf("got %d gaps, want 1", len(gaps))
	}
	if !gaps[0].Start.Equal(at(8, 30)) || !gaps[0].End.Equal(at(18, 0)) {
		t.Fatalf("gap = %v–%v, want 08:30–18:00", gaps[0].Start, gaps[0].End)
	}
}

func TestFindSnoozeSlot(t *testing.T) {
	t.Parallel()
	now := at(10, 0)

	slot, ok := FindSnoozeSlot(nil, now, 30*time.Minute, 30*time.Minute)
	if !ok {
		t.Fatal("expected a snooze slot on a free day")
	}
	if !slot.Start.Equal(at(10, 30)) || !slot.End.Equal(at(11, 0)) {
		t.Fatalf("slot = %v–%v, want 10:30–11:00", slot.Start, slot.End)
	}

	if _, ok := FindSnoozeSlot([]Interval{iv(10, 45, 11, 30)}, now, 30*time.Minute, 30*time.Minute); ok {
		t.Fatal("expected collision with busy interval")
	}
}

func TestLabelForBoundaries(t *testing.T) {
	t.Parallel()
	tests := []struct {
		hour int
		want Window
	}{
		{8, WindowMorning},
		{11, WindowMorning},
		{12, WindowAfternoon},
		{17, WindowAfternoon},
		{18, WindowEvening},
		{22, WindowEvening},
	}
	for _, tt := range tests {
		if got := labelFor(at(tt.hour, 0)); got != tt.want {
			t.Fatalf("labelFor(%d:00) = %v, want %v", tt.hour, got, tt.want)
		}
	}
}
