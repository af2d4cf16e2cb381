package templates

import (
	"context"
	"fmt"
	"strings"

	"github.com/triagekit/triage/internal/cases"
)

// Effectiveness weights. Scores start at the baseline and earn up to the
// listed points per signal, clamped to 0-100.
const (
	scoreBaseline             = 50
	classificationMatchPoints = 20
	hypothesisRatioPoints     = 30
	questionCompletionPoints  = 20

	// learnThreshold is the score below which a replacement template is
	// synthesized from the resolved case.
	learnThreshold = 70
)

// EffectivenessResult reports how well a template served a resolved case.
type EffectivenessResult struct {
	Score int `json:"score"`
	// Learned is the newly synthesized template when Score < 70, nil
	// otherwise. It is created enabled and never replaces the original.
	Learned   *Template `json:"learned,omitempty"`
	Breakdown []string  `json:"breakdown,omitempty"`
}

// ScoreEffectiveness evaluates how well tpl guided the resolved case and, if
// the score falls below the learning threshold, synthesizes and stores a new
// template from the case's answered questions and validated hypotheses. The
// original template is left untouched; poor performers are only ever
// disabled by an explicit operator action.
func (s *Store) ScoreEffectiveness(ctx context.Context, c *cases.Case, tpl *Template) (*EffectivenessResult, error) {
	res := &EffectivenessResult{Score: scoreBaseline}
	res.Breakdown = append(res.Breakdown, fmt.Sprintf("baseline %d", scoreBaseline))

	if classificationMatchesScope(c, tpl) {
		res.Score += classificationMatchPoints
		res.Breakdown = append(res.Breakdown, fmt.Sprintf("classification matches scope +%d", classificationMatchPoints))
	}

	if pts := hypothesisPoints(c); pts > 0 {
		res.Score += pts
		res.Breakdown = append(res.Breakdown, fmt.Sprintf("validated hypotheses +%d", pts))
	}

	if pts := requiredQuestionPoints(c); pts > 0 {
		res.Score += pts
		res.Breakdown = append(res.Breakdown, fmt.Sprintf("required questions answered +%d", pts))
	}

	if res.Score > 100 {
		res.Score = 100
	}

	if res.Score < learnThreshold {
		learned := SynthesizeFromCase(c, tpl)
		if err := s.Create(ctx, learned); err != nil {
			return nil, fmt.Errorf("storing learned template: %w", err)
		}
		res.Learned = learned
	}

	return res, nil
}

func classificationMatchesScope(c *cases.Case, tpl *Template) bool {
	if tpl.Classification == "" {
		return false
	}
	if tpl.Classification == c.Classification {
		return true
	}
	if c.Scope == nil {
		return false
	}
	scopeText := strings.ToLower(c.Scope.Summary + " " + strings.Join(c.Scope.AffectedComponents, " "))
	return strings.Contains(scopeText, strings.ToLower(tpl.Classification))
}

func hypothesisPoints(c *cases.Case) int {
	if len(c.Hypotheses) == 0 {
		return 0
	}
	var validated int
	for _, h := range c.Hypotheses {
		if h.Status == cases.HypothesisValidated {
			validated++
		}
	}
	return hypothesisRatioPoints * validated / len(c.Hypotheses)
}

func requiredQuestionPoints(c *cases.Case) int {
	var required, answered int
	for _, q := range c.Questions {
		if !q.Required {
			continue
		}
		required++
		if q.Status == cases.QuestionAnswered {
			answered++
		}
	}
	if required == 0 {
		return 0
	}
	return questionCompletionPoints * answered / required
}

// SynthesizeFromCase builds a new template from a resolved case's answered
// questions and validated hypotheses. The result is distinct from the
// template it was derived from and starts out enabled.
func SynthesizeFromCase(c *cases.Case, derivedFrom *Template) *Template {
	t := &Template{
		Name:           fmt.Sprintf("Learned: %s", firstLine(c.Problem)),
		Classification: c.Classification,
		LearnedFrom:    c.ID,
		Enabled:        true,
	}
	if derivedFrom != nil {
		t.Keywords = append(t.Keywords, derivedFrom.Keywords...)
	}
	if c.Scope != nil {
		t.ErrorPatterns = append(t.ErrorPatterns, c.Scope.ErrorPatterns...)
	}

	for _, q := range c.Questions {
		if q.Status != cases.QuestionAnswered {
			continue
		}
		t.Questions = append(t.Questions, TemplateQuestion{
			Prompt:               q.Prompt,
			Required:             q.Required,
			VerificationRequired: q.VerificationRequired,
			Guidance:             q.Guidance,
			Examples:             q.Examples,
		})
	}
	for _, h := range c.Hypotheses {
		if h.Status == cases.HypothesisValidated {
			t.InitialHypotheses = append(t.InitialHypotheses, h.Statement)
		}
	}
	return t
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(s)
	if len(s) > 60 {
		s = s[:60]
	}
	return s
}
