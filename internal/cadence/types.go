package cadence

import (
	"fmt"
	"strconv"
	"strings"
)

// Category identifies one behavioral check-in dimension.
type Category string

const (
	CategoryMood       Category = "mood"
	CategoryEnergy     Category = "energy"
	CategoryFocus      Category = "focus"
	CategoryMotivation Category = "motivation"
	CategoryStress     Category = "stress"
)

// Categories lists every known category, in canonical order.
func Categories() []Category {
	return []Category{CategoryMood, CategoryEnergy, CategoryFocus, CategoryMotivation, CategoryStress}
}

func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Categories() {
		if c == known {
			return c, nil
		}
	}
	return "", &ConfigError{Field: "categories", Reason: fmt.Sprintf("unknown category %q", s)}
}

// Anchor is one scheduled time-of-day slot in a user's check-in cadence.
type Anchor struct {
	TimeOfDay  string     `json:"time"` // "HH:MM", 24h
	Categories []Category `json:"categories"`
}

// Config is a user's check-in cadence. Anchors need not be sorted; planning
// treats them as positional (the index is part of the dedup identity).
type Config struct {
	Enabled      bool     `json:"enabled"`
	Anchors      []Anchor `json:"anchors"`
	Randomize    bool     `json:"randomize"`
	SkipWeekends bool     `json:"skip_weekends"`
}

// DefaultConfig is the documented three-anchors-a-day starting cadence.
func DefaultConfig() Config {
	return Config{
		Enabled: true,
		Anchors: []Anchor{
			{TimeOfDay: "09:00", Categories: []Category{CategoryMood, CategoryEnergy}},
			{TimeOfDay: "14:00", Categories: []Category{CategoryFocus, CategoryMotivation}},
			{TimeOfDay: "18:00", Categories: []Category{CategoryMood, CategoryStress}},
		},
	}
}

// ConfigError rejects a malformed cadence at save time. Planning never sees
// invalid configs, so it can stay total.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("cadence config: %s: %s", e.Field, e.Reason)
}

// Validate checks the invariants the planner relies on.
func (c Config) Validate() error {
	if c.Enabled && len(c.Anchors) == 0 {
		return &ConfigError{Field: "anchors", Reason: "must not be empty while enabled"}
	}
	for i, a := range c.Anchors {
		field := fmt.Sprintf("anchors[%d]", i)
		if _, _, err := ParseTimeOfDay(a.TimeOfDay); err != nil {
			return &ConfigError{Field: field + ".time", Reason: err.Error()}
		}
		if len(a.Categories) == 0 {
			return &ConfigError{Field: field + ".categories", Reason: "must not be empty"}
		}
		for _, cat := range a.Categories {
			if _, err := ParseCategory(string(cat)); err != nil {
				return &ConfigError{Field: field + ".categories", Reason: fmt.Sprintf("unknown category %q", cat)}
			}
		}
	}
	return nil
}

// ParseTimeOfDay parses a strict 24h "HH:MM" value.
func ParseTimeOfDay(s string) (hour int, minute int, err error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}
