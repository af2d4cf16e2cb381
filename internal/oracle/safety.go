package oracle

import (
	"fmt"
	"strings"
	"time"
)

// SafetyPolicy bounds an autonomous run. Both predicates are evaluated
// before every prompt; they are cooperative checks, never preemptive.
type SafetyPolicy struct {
	MaxIterations int
	MaxDuration   time.Duration
	DeniedActions []string
}

// CheckSafety reports whether another iteration is allowed given the
// iterations performed so far and the run's start time. The reason is
// operator-facing when not allowed.
func (p SafetyPolicy) CheckSafety(iterations int, startedAt time.Time) (bool, string) {
	if iterations >= p.MaxIterations {
		return false, fmt.Sprintf("iteration cap reached (%d of %d)", iterations, p.MaxIterations)
	}
	if elapsed := time.Since(startedAt); elapsed >= p.MaxDuration {
		return false, fmt.Sprintf("duration cap reached (%s elapsed, limit %s)",
			elapsed.Round(time.Second), p.MaxDuration)
	}
	return true, ""
}

// ValidateAction checks a proposed action's text against the denied-action
// substring list.
func (p SafetyPolicy) ValidateAction(actionText string) (bool, string) {
	lower := strings.ToLower(actionText)
	for _, denied := range p.DeniedActions {
		if denied == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(denied)) {
			return false, fmt.Sprintf("action matches denied pattern %q", denied)
		}
	}
	return true, ""
}
