package cadence

import (
	"fmt"
	"hash/fnv"
	"math/rand"
	"time"
)

// JitterMax bounds the randomized offset applied to an anchor's nominal time.
const JitterMax = 15 * time.Minute

// FireAnchor is one concrete fire-time computed for a date. It is never
// persisted; its (UserID, AnchorIndex, Date) identity is the dedup key.
type FireAnchor struct {
	UserID      int64
	AnchorIndex int
	Date        string // "2006-01-02", in the planning location
	ScheduledAt time.Time
	Categories  []Category

	// Category is the single dimension selected for this day's check-in,
	// chosen deterministically so retries ask the same question.
	Category Category
}

// DedupKey returns the identity guaranteeing at-most-one delivery.
func (a FireAnchor) DedupKey() string {
	return fmt.Sprintf("%d|%d|%s", a.UserID, a.AnchorIndex, a.Date)
}

// AnchorsForDate computes the concrete fire-times of a cadence on one date.
//
// The result is fully deterministic: jitter and category selection are seeded
// by (userID, anchorIndex, date), so re-planning after a crash or on a second
// scheduler instance yields byte-identical timestamps. cfg must have passed
// Validate; malformed anchors are skipped rather than failing the whole day.
func AnchorsForDate(cfg Config, userID int64, date time.Time, loc *time.Location) []FireAnchor {
	if !cfg.Enabled || len(cfg.Anchors) == 0 {
		return nil
	}
	if loc == nil {
		loc = time.Local
	}
	day := date.In(loc)
	if cfg.SkipWeekends {
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			return nil
		}
	}

	dateStr := day.Format(time.DateOnly)
	out := make([]FireAnchor, 0, len(cfg.Anchors))
	for i, anchor := range cfg.Anchors {
		h, m, err := ParseTimeOfDay(anchor.TimeOfDay)
		if err != nil {
			continue
		}
		at := time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, loc)
		if cfg.Randomize {
			at = at.Add(jitterFor(userID, i, dateStr))
		}

		cats := append([]Category(nil), anchor.Categories...)
		out = append(out, FireAnchor{
			UserID:      userID,
			AnchorIndex: i,
			Date:        dateStr,
			ScheduledAt: at,
			Categories:  cats,
			Category:    pickCategory(userID, i, dateStr, cats),
		})
	}
	return out
}

// jitterFor returns a deterministic offset in [-JitterMax, +JitterMax].
func jitterFor(userID int64, anchorIndex int, date string) time.Duration {
	rng := seededRNG(userID, anchorIndex, date, "jitter")
	span := int64(2*JitterMax) + 1
	return time.Duration(rng.Int63n(span)) - JitterMax
}

// pickCategory selects this day's check-in dimension from the anchor's set.
func pickCategory(userID int64, anchorIndex int, date string, cats []Category) Category {
	if len(cats) == 0 {
		return ""
	}
	rng := seededRNG(userID, anchorIndex, date, "category")
	return cats[rng.Intn(len(cats))]
}

// seededRNG derives a stable PRNG from the anchor identity. Never seed this
// from the clock: reproducibility across recomputations is what keeps retried
// dispatches from drifting or re-rolling.
func seededRNG(userID int64, anchorIndex int, date, purpose string) *rand.Rand {
	h := fnv.New64a()
	_, _ = fmt.Fprintf(h, "%d|%d|%s|%s", userID, anchorIndex, date, purpose)
	return rand.New(rand.NewSource(int64(h.Sum64())))
}
