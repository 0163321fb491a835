package dispatch

import (
	"fmt"
	"hash/fnv"

	"pulsebot/internal/cadence"
)

// questionCatalog holds the wording variants per check-in category. Variant
// selection is keyed by the anchor identity, so a retried delivery always
// asks the exact same question.
var questionCatalog = map[cadence.Category][]string{
	cadence.CategoryMood: {
		"How's your mood right now? Reply with 1-10.",
		"Quick mood check: where are you on a 1-10 scale?",
	},
	cadence.CategoryEnergy: {
		"How's your energy level? Reply with 1-10.",
		"Energy check: 1 (running on fumes) to 10 (fully charged)?",
	},
	cadence.CategoryFocus: {
		"How focused have you been in the last hour? 1-10.",
		"Focus check: how deep is your concentration right now, 1-10?",
	},
	cadence.CategoryMotivation: {
		"How motivated do you feel about today's plan? 1-10.",
		"Motivation check: 1-10, how driven are you right now?",
	},
	cadence.CategoryStress: {
		"How stressed are you feeling? 1 (calm) to 10 (overwhelmed).",
		"Stress check: where are you on a 1-10 scale right now?",
	},
}

const fallbackQuestion = "Quick check-in: how are you doing? Reply with 1-10."

// questionFor renders the outbound check-in text for one anchor.
func questionFor(a cadence.FireAnchor) string {
	variants := questionCatalog[a.Category]
	if len(variants) == 0 {
		return "📋 " + fallbackQuestion
	}
	h := fnv.New64a()
	_, _ = fmt.Fprintf(h, "%s|question", a.DedupKey())
	return "📋 " + variants[h.Sum64()%uint64(len(variants))]
}
