package agents

import (
	"regexp"
	"strings"

	"github.com/becomeliminal/nim-pipeline/core"
)

var (
	// numbered list markers such as "1)" or "2."
	stepMarker = regexp.MustCompile(`\s*\d+[).]\s*`)
	// digits left dangling at the end of a fragment, e.g. "collect sources. 2"
	trailingDigits = regexp.MustCompile(`\s*\d+$`)
)

// ParseSteps splits a free-text plan into ordered steps.
//
// Fragments are split on numbered-list markers, trimmed, stripped of
// trailing digits and dropped when empty. A non-empty response that yields
// no fragments becomes a single step.
func ParseSteps(raw string) []core.Step {
	raw = strings.TrimSpace(raw)

	var steps []core.Step
	for _, part := range stepMarker.Split(raw, -1) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		part = strings.TrimSpace(trailingDigits.ReplaceAllString(part, ""))
		if part == "" {
			continue
		}
		steps = append(steps, core.Step{Instruction: part})
	}

	if len(steps) == 0 && raw != "" {
		steps = []core.Step{{Instruction: raw}}
	}
	return steps
}
