package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/triagekit/triage/internal/cases"
)

// scopeReply is the shape the oracle is asked to answer in.
type scopeReply struct {
	Summary            string   `json:"summary"`
	ErrorPatterns      []string `json:"error_patterns"`
	AffectedComponents []string `json:"affected_components"`
	Timeframe          string   `json:"timeframe"`
	Impact             string   `json:"impact"`
}

const scopePrompt = `You are summarizing a troubleshooting case into a problem scope.
Respond with a single JSON object and nothing else:
{"summary": "...", "error_patterns": ["..."], "affected_components": ["..."], "timeframe": "...", "impact": "low|moderate|high|critical"}

Problem:
%s

Answered questions:
%s

Evidence excerpts:
%s`

// GenerateProblemScope drafts an unconfirmed scope for the case. The oracle
// is consulted when available; any oracle failure or malformed reply falls
// back to the deterministic draft, so this never fails for oracle reasons.
// The case is not mutated; callers review and then ConfirmScope.
func (or *Orchestrator) GenerateProblemScope(ctx context.Context, caseID string) (*cases.ProblemScope, error) {
	c, err := or.store.Load(ctx, caseID)
	if err != nil {
		return nil, err
	}

	scope := heuristicScope(c)

	if or.oracle != nil {
		prompt := fmt.Sprintf(scopePrompt, c.Problem, answeredQuestionText(c), evidenceExcerpts(c, 2000))
		reply, err := or.oracle.Prompt(ctx, prompt, nil)
		if err != nil {
			or.note("oracle scope generation failed, using draft: %v", err)
			return scope, nil
		}
		var parsed scopeReply
		if err := json.Unmarshal([]byte(stripFence(reply)), &parsed); err != nil || parsed.Summary == "" {
			or.note("oracle scope reply unusable, using draft")
			return scope, nil
		}
		scope.Summary = parsed.Summary
		if len(parsed.ErrorPatterns) > 0 {
			scope.ErrorPatterns = parsed.ErrorPatterns
		}
		if len(parsed.AffectedComponents) > 0 {
			scope.AffectedComponents = parsed.AffectedComponents
		}
		if parsed.Timeframe != "" {
			scope.Timeframe = parsed.Timeframe
		}
		if parsed.Impact != "" {
			scope.Impact = parsed.Impact
		}
	}

	return scope, nil
}

// ConfirmScope installs a reviewed scope as the case's confirmed scope. Any
// previously confirmed scope moves into history with the given reason, and
// the new scope's version is forced to strictly exceed all prior versions.
func (or *Orchestrator) ConfirmScope(ctx context.Context, caseID string, scope cases.ProblemScope, reason string) error {
	c, err := or.store.Load(ctx, caseID)
	if err != nil {
		return err
	}

	last := 0
	for _, rev := range c.ScopeHistory {
		last = rev.Scope.Version
	}
	if c.Scope != nil {
		if reason == "" {
			reason = "scope revised"
		}
		c.ScopeHistory = append(c.ScopeHistory, cases.ScopeRevision{
			Scope:      *c.Scope,
			Reason:     reason,
			ReplacedAt: time.Now().UTC().Truncate(time.Second),
		})
		last = c.Scope.Version
	}

	scope.Version = last + 1
	scope.Confirmed = true
	c.Scope = &scope

	if err := or.store.Save(ctx, c); err != nil {
		return err
	}
	return or.store.AppendEvent(ctx, caseID, "scope_confirmed",
		fmt.Sprintf("v%d: %s", scope.Version, scope.Summary))
}

// classify returns a classification for the case, oracle first and keyword
// heuristic on any failure.
func (or *Orchestrator) classify(ctx context.Context, c *cases.Case) string {
	if or.oracle != nil {
		prompt := fmt.Sprintf(`Classify this problem as one word from: network, authentication, database, performance, general.
Respond with the single word only.

Problem: %s`, c.Problem)
		reply, err := or.oracle.Prompt(ctx, prompt, nil)
		if err == nil {
			word := strings.ToLower(strings.TrimSpace(stripFence(reply)))
			switch word {
			case "network", "authentication", "database", "performance", "general":
				return word
			}
		} else {
			or.note("oracle classification failed, using keywords: %v", err)
		}
	}
	return keywordClassify(c.Problem + " " + evidenceText(c))
}

var classKeywords = []struct {
	class string
	words []string
}{
	{"authentication", []string{"401", "403", "unauthorized", "forbidden", "login", "token", "credential", "auth"}},
	{"database", []string{"sql", "deadlock", "query", "database", "migration", "constraint violation"}},
	{"performance", []string{"slow", "latency", "oom", "out of memory", "cpu", "degraded", "throughput"}},
	{"network", []string{"timeout", "connection refused", "dns", "unreachable", "502", "503", "504", "packet"}},
}

func keywordClassify(text string) string {
	lower := strings.ToLower(text)
	best, bestHits := "general", 0
	for _, ck := range classKeywords {
		hits := 0
		for _, w := range ck.words {
			if strings.Contains(lower, w) {
				hits++
			}
		}
		if hits > bestHits {
			best, bestHits = ck.class, hits
		}
	}
	return best
}

var (
	errorLineRe = regexp.MustCompile(`(?i)\b(error|exception|fail(?:ed|ure)?|timeout|refused|denied|panic)\b|\b[45]\d{2}\b`)
	timestampRe = regexp.MustCompile(`\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}(?::\d{2})?(?:Z|[+-]\d{2}:?\d{2})?`)
	componentRe = regexp.MustCompile(`\b[a-z][a-z0-9]*(?:-[a-z0-9]+)*-(?:service|api|db|proxy|gateway|worker|cache)\b`)
)

// heuristicScope drafts a scope from the case text alone. It is the floor
// the oracle path improves on and the fallback when the oracle misbehaves.
func heuristicScope(c *cases.Case) *cases.ProblemScope {
	text := c.Problem + "\n" + evidenceText(c)

	summary := strings.TrimSpace(c.Problem)
	if i := strings.IndexAny(summary, ".\n"); i > 0 {
		summary = summary[:i]
	}
	if len(summary) > 160 {
		summary = summary[:160]
	}

	var patterns []string
	seen := map[string]bool{}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !errorLineRe.MatchString(line) {
			continue
		}
		if len(line) > 120 {
			line = line[:120]
		}
		if !seen[line] {
			seen[line] = true
			patterns = append(patterns, line)
		}
		if len(patterns) == 5 {
			break
		}
	}

	var components []string
	seenComp := map[string]bool{}
	for _, m := range componentRe.FindAllString(strings.ToLower(text), -1) {
		if !seenComp[m] {
			seenComp[m] = true
			components = append(components, m)
		}
	}

	timeframe := ""
	if ts := timestampRe.FindString(text); ts != "" {
		timeframe = "around " + ts
	}

	impact := "unknown"
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "outage") || strings.Contains(lower, "all users") || strings.Contains(lower, "down"):
		impact = "critical"
	case strings.Contains(lower, "most users") || strings.Contains(lower, "many users") || strings.Contains(lower, "production"):
		impact = "high"
	case len(patterns) > 0:
		impact = "moderate"
	}

	redacted := 0
	for _, ev := range c.Evidence {
		if ev.Redacted {
			redacted++
		}
	}

	version := 1
	if c.Scope != nil {
		version = c.Scope.Version + 1
	}

	return &cases.ProblemScope{
		Version:            version,
		Summary:            summary,
		ErrorPatterns:      patterns,
		AffectedComponents: components,
		Timeframe:          timeframe,
		Impact:             impact,
		EvidenceSummary:    fmt.Sprintf("%d evidence record(s), %d redacted", len(c.Evidence), redacted),
		Confirmed:          false,
	}
}

func evidenceText(c *cases.Case) string {
	var b strings.Builder
	for _, ev := range c.Evidence {
		b.WriteString(ev.Content)
		b.WriteByte('\n')
	}
	return b.String()
}

func evidenceExcerpts(c *cases.Case, limit int) string {
	text := evidenceText(c)
	if len(text) > limit {
		text = text[:limit]
	}
	if text == "" {
		return "(none)"
	}
	return text
}

func answeredQuestionText(c *cases.Case) string {
	var b strings.Builder
	for _, q := range c.Questions {
		if q.Status == cases.QuestionAnswered {
			fmt.Fprintf(&b, "- %s: %s\n", q.Prompt, q.Answer)
		}
	}
	if b.Len() == 0 {
		return "(none)"
	}
	return b.String()
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
