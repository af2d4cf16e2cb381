// Package extract searches a case's evidence for candidate answers to its
// open questions, grading each candidate with a policy-based confidence
// tier rather than a continuous score.
package extract

import (
	"regexp"
	"strings"

	"github.com/triagekit/triage/internal/cases"
)

// Confidence is a policy tier, not a probability. High means the evidence
// contains an unambiguous, directly quotable answer; medium a plausible but
// indirect or partial match; low a guess. Callers auto-apply high and
// prompt for confirmation on medium and low.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Suggestion is a candidate answer for one open question.
type Suggestion struct {
	QuestionID   string     `json:"question_id"`
	Answer       string     `json:"answer"`
	Confidence   Confidence `json:"confidence"`
	EvidenceRefs []string   `json:"evidence_refs,omitempty"`
}

// Patterns that identify directly quotable answers for common question
// shapes. Keyed by a trigger that must appear in the question prompt.
var directPatterns = []struct {
	trigger string
	pattern *regexp.Regexp
}{
	{"error code", regexp.MustCompile(`\b[1-5]\d{2}\s+[A-Z][A-Za-z ]+`)},
	{"error code", regexp.MustCompile(`\b[45]\d{2}\b`)},
	{"status", regexp.MustCompile(`\b[1-5]\d{2}\s+[A-Z][A-Za-z ]+`)},
	{"error message", regexp.MustCompile(`(?i)(error|exception|fatal|panic)[:\s].+`)},
	{"when", regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}(:\d{2})?\b`)},
	{"when", regexp.MustCompile(`\b\d{1,2}:\d{2}(:\d{2})?\b`)},
	{"time", regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}(:\d{2})?\b`)},
}

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "was": true, "are": true,
	"what": true, "which": true, "when": true, "did": true, "does": true,
	"do": true, "any": true, "there": true, "were": true, "or": true,
	"and": true, "of": true, "to": true, "in": true, "for": true,
	"you": true, "your": true, "it": true, "its": true, "how": true,
	"this": true, "that": true, "be": true, "been": true,
}

// Answers scans the case's evidence for every open question and returns the
// best suggestion found per question. Questions with no supporting evidence
// at all produce no suggestion.
func Answers(c *cases.Case) []Suggestion {
	var out []Suggestion
	for _, q := range c.OpenQuestions() {
		if s, ok := bestSuggestion(&q, c.Evidence); ok {
			out = append(out, s)
		}
	}
	return out
}

// bestSuggestion finds the highest-tier candidate for one question.
func bestSuggestion(q *cases.Question, evidence []cases.Evidence) (Suggestion, bool) {
	keywords := keywordsOf(q.Prompt)
	patterns := patternsFor(q.Prompt)

	best := Suggestion{QuestionID: q.ID}
	found := false

	consider := func(tier Confidence, answer, evidenceID string) {
		if !found || tierRank(tier) > tierRank(best.Confidence) {
			best = Suggestion{
				QuestionID:   q.ID,
				Answer:       answer,
				Confidence:   tier,
				EvidenceRefs: []string{evidenceID},
			}
			found = true
		}
	}

	for _, ev := range evidence {
		for _, line := range strings.Split(ev.Content, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}

			// A line quoting one of the question's examples, or matching a
			// direct-answer pattern, is unambiguous.
			if matchesExample(line, q.Examples) {
				consider(ConfidenceHigh, line, ev.ID)
				continue
			}
			if m := firstPatternMatch(patterns, line); m != "" {
				consider(ConfidenceHigh, line, ev.ID)
				continue
			}

			hits := keywordHits(line, keywords)
			switch {
			case len(keywords) > 0 && hits*2 >= len(keywords):
				consider(ConfidenceMedium, line, ev.ID)
			case hits > 0:
				consider(ConfidenceLow, line, ev.ID)
			}
		}
	}

	return best, found
}

func tierRank(c Confidence) int {
	switch c {
	case ConfidenceHigh:
		return 3
	case ConfidenceMedium:
		return 2
	case ConfidenceLow:
		return 1
	}
	return 0
}

func keywordsOf(prompt string) []string {
	clean := strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == ' ' {
			return r
		}
		return ' '
	}, strings.ToLower(prompt))

	var kws []string
	for _, w := range strings.Fields(clean) {
		if len(w) < 2 || stopwords[w] {
			continue
		}
		kws = append(kws, w)
	}
	return kws
}

func keywordHits(line string, keywords []string) int {
	lower := strings.ToLower(line)
	var hits int
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			hits++
		}
	}
	return hits
}

func patternsFor(prompt string) []*regexp.Regexp {
	lower := strings.ToLower(prompt)
	var out []*regexp.Regexp
	for _, dp := range directPatterns {
		if strings.Contains(lower, dp.trigger) {
			out = append(out, dp.pattern)
		}
	}
	return out
}

func firstPatternMatch(patterns []*regexp.Regexp, line string) string {
	for _, re := range patterns {
		if m := re.FindString(line); m != "" {
			return m
		}
	}
	return ""
}

func matchesExample(line string, examples []string) bool {
	lower := strings.ToLower(line)
	for _, ex := range examples {
		if ex == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(ex)) {
			return true
		}
	}
	return false
}
