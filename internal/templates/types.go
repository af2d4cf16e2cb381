// Package templates manages troubleshooting templates: matching them to
// incoming problems, scoring their effectiveness at resolution, and
// learning new ones from resolved cases.
package templates

import "time"

// TemplateQuestion is a question a template seeds into a case's
// investigation plan.
type TemplateQuestion struct {
	Prompt               string   `json:"prompt"`
	Required             bool     `json:"required"`
	VerificationRequired bool     `json:"verification_required,omitempty"`
	Guidance             string   `json:"guidance,omitempty"`
	Examples             []string `json:"examples,omitempty"`
}

// Template packages the diagnostic know-how for one class of problem.
type Template struct {
	ID                string             `json:"id"`
	Name              string             `json:"name"`
	Classification    string             `json:"classification"`
	Keywords          []string           `json:"keywords,omitempty"`
	ErrorPatterns     []string           `json:"error_patterns,omitempty"` // regular expressions
	Questions         []TemplateQuestion `json:"questions,omitempty"`
	InitialHypotheses []string           `json:"initial_hypotheses,omitempty"`
	Enabled           bool               `json:"enabled"`
	// LearnedFrom holds the case id this template was synthesized from,
	// empty for built-in and hand-written templates.
	LearnedFrom string    `json:"learned_from,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RankedTemplate is a template with its match score against a problem.
type RankedTemplate struct {
	Template *Template `json:"template"`
	Score    float64   `json:"score"`
	Reasons  []string  `json:"reasons,omitempty"`
}
