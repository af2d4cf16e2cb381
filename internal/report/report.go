// Package report renders a case into a shareable markdown summary and,
// optionally, a standalone HTML page.
package report

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/triagekit/triage/internal/cases"
)

// Markdown renders the case as a markdown report: problem, scope, plan
// progress, hypothesis verdicts, evidence inventory, and the event log.
func Markdown(c *cases.Case, events []cases.Event) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Case %s\n\n", c.ID)
	fmt.Fprintf(&b, "- **State:** %s\n", c.State)
	if c.Classification != "" {
		fmt.Fprintf(&b, "- **Classification:** %s\n", c.Classification)
	}
	fmt.Fprintf(&b, "- **Opened:** %s\n", c.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "- **Updated:** %s\n\n", c.UpdatedAt.Format(time.RFC3339))

	b.WriteString("## Problem\n\n")
	b.WriteString(c.Problem + "\n\n")

	if c.Scope != nil {
		fmt.Fprintf(&b, "## Scope (v%d", c.Scope.Version)
		if c.Scope.Confirmed {
			b.WriteString(", confirmed")
		}
		b.WriteString(")\n\n")
		b.WriteString(c.Scope.Summary + "\n\n")
		if c.Scope.Impact != "" {
			fmt.Fprintf(&b, "- Impact: %s\n", c.Scope.Impact)
		}
		if c.Scope.Timeframe != "" {
			fmt.Fprintf(&b, "- Timeframe: %s\n", c.Scope.Timeframe)
		}
		for _, comp := range c.Scope.AffectedComponents {
			fmt.Fprintf(&b, "- Affected: %s\n", comp)
		}
		if len(c.Scope.ErrorPatterns) > 0 {
			b.WriteString("\nObserved error patterns:\n\n```\n")
			for _, p := range c.Scope.ErrorPatterns {
				b.WriteString(p + "\n")
			}
			b.WriteString("```\n")
		}
		b.WriteString("\n")
	}

	if len(c.Questions) > 0 {
		b.WriteString("## Questions\n\n")
		for _, q := range c.Questions {
			marker := " "
			if q.Status == cases.QuestionAnswered {
				marker = "x"
			}
			line := fmt.Sprintf("- [%s] %s", marker, q.Prompt)
			if q.Answer != "" {
				line += " — " + q.Answer
			}
			if q.Status == cases.QuestionSkipped {
				line += " _(skipped)_"
			}
			b.WriteString(line + "\n")
		}
		b.WriteString("\n")
	}

	if len(c.Hypotheses) > 0 {
		b.WriteString("## Hypotheses\n\n")
		b.WriteString("| Hypothesis | Verdict | Evidence |\n|---|---|---|\n")
		for _, h := range c.Hypotheses {
			fmt.Fprintf(&b, "| %s | %s | %s |\n",
				h.Statement, h.Status, strings.Join(h.EvidenceRefs, ", "))
		}
		b.WriteString("\n")
	}

	if len(c.Constraints) > 0 {
		b.WriteString("## Constraints\n\n")
		for _, con := range c.Constraints {
			q := c.FindQuestion(con.QuestionID)
			prompt := con.QuestionID
			if q != nil {
				prompt = q.Prompt
			}
			fmt.Fprintf(&b, "- %s: %s", prompt, con.Reason)
			if con.Description != "" {
				fmt.Fprintf(&b, " (%s)", con.Description)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if len(c.Evidence) > 0 {
		b.WriteString("## Evidence\n\n")
		for _, ev := range c.Evidence {
			fmt.Fprintf(&b, "- `%s` from %s, added %s",
				ev.ID, ev.Source, ev.AddedAt.Format(time.RFC3339))
			if ev.Redacted {
				b.WriteString(" (redacted)")
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if len(events) > 0 {
		b.WriteString("## Timeline\n\n")
		for _, e := range events {
			fmt.Fprintf(&b, "- %s — %s", e.CreatedAt.Format(time.RFC3339), e.Type)
			if e.Detail != "" {
				fmt.Fprintf(&b, ": %s", e.Detail)
			}
			b.WriteString("\n")
		}
	}

	return b.String()
}

const pageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<style>
body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", sans-serif; max-width: 860px; margin: 2rem auto; padding: 0 1rem; color: #24292f; }
table { border-collapse: collapse; }
th, td { border: 1px solid #d0d7de; padding: 6px 13px; }
pre { background: #f6f8fa; padding: 1rem; overflow-x: auto; border-radius: 6px; }
code { font-family: ui-monospace, SFMono-Regular, Menlo, monospace; }
</style>
</head>
<body>
{{.Body}}
</body>
</html>
`

// HTML renders the markdown report into a standalone HTML page.
func HTML(c *cases.Case, events []cases.Event) ([]byte, error) {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			highlighting.NewHighlighting(
				highlighting.WithStyle("github"),
			),
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
		goldmark.WithRendererOptions(
			html.WithUnsafe(),
		),
	)

	var body bytes.Buffer
	if err := md.Convert([]byte(Markdown(c, events)), &body); err != nil {
		return nil, fmt.Errorf("rendering report markdown: %w", err)
	}

	tmpl, err := template.New("page").Parse(pageTemplate)
	if err != nil {
		return nil, fmt.Errorf("parsing page template: %w", err)
	}

	var out bytes.Buffer
	err = tmpl.Execute(&out, struct {
		Title string
		Body  template.HTML
	}{
		Title: "Case " + c.ID,
		Body:  template.HTML(body.String()),
	})
	if err != nil {
		return nil, fmt.Errorf("executing page template: %w", err)
	}
	return out.Bytes(), nil
}
