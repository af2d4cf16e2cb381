// Package evidence ingests supporting material into cases, guaranteeing
// that content is redacted before it is persisted or shown to any
// extraction or oracle path.
package evidence

import "regexp"

// Redactor removes sensitive content from text. The second return reports
// whether anything was changed.
type Redactor interface {
	Redact(text string) (string, bool)
}

// NoopRedactor passes text through unchanged.
type NoopRedactor struct{}

func (NoopRedactor) Redact(text string) (string, bool) { return text, false }

// redactionRule pairs a pattern with its replacement.
type redactionRule struct {
	pattern     *regexp.Regexp
	replacement string
}

// defaultRules cover the common PII and secret shapes found in logs.
var defaultRules = []redactionRule{
	{regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`), "[EMAIL]"},
	{regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`), "[IP]"},
	{regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9\-._~+/]+=*`), "Bearer [TOKEN]"},
	{regexp.MustCompile(`(?i)(api[_-]?key|secret|password|passwd|token)(["':=\s]+)[^\s"',;]+`), "$1$2[REDACTED]"},
	{regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`), "[CARD]"},
}

// RuleRedactor applies a fixed table of regular-expression rules.
type RuleRedactor struct {
	rules []redactionRule
}

// NewRuleRedactor returns a redactor with the built-in rule table.
func NewRuleRedactor() *RuleRedactor {
	return &RuleRedactor{rules: defaultRules}
}

func (r *RuleRedactor) Redact(text string) (string, bool) {
	out := text
	for _, rule := range r.rules {
		out = rule.pattern.ReplaceAllString(out, rule.replacement)
	}
	return out, out != text
}
