package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/triagekit/triage/internal/cases"
	"github.com/triagekit/triage/internal/report"
)

// handleListCases lists cases matching the optional filters.
func (s *Server) handleListCases(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := cases.ListFilter{
		State:          cases.State(request.GetString("state", "")),
		Classification: request.GetString("classification", ""),
		Limit:          request.GetInt("limit", 20),
	}

	list, err := s.store.List(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("listing cases failed: %v", err)), nil
	}
	if len(list) == 0 {
		return mcp.NewToolResultText("No cases match. Create one with `triage case new`."), nil
	}

	var b strings.Builder
	for _, c := range list {
		fmt.Fprintf(&b, "%s  [%s]", c.ID, c.State)
		if c.Classification != "" {
			fmt.Fprintf(&b, " (%s)", c.Classification)
		}
		fmt.Fprintf(&b, "  %s\n", firstLine(c.Problem))
	}
	return mcp.NewToolResultText(b.String()), nil
}

// handleCaseStatus summarizes where a case stands and what blocks it.
func (s *Server) handleCaseStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	caseID, err := request.RequireString("case_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: case_id"), nil
	}

	c, err := s.store.Load(ctx, caseID)
	if err != nil {
		if errors.Is(err, cases.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("no case with id %q", caseID)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("loading case failed: %v", err)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Case %s is in state %s.\n", c.ID, c.State)
	if c.Classification != "" {
		fmt.Fprintf(&b, "Classification: %s\n", c.Classification)
	}
	if open := c.OpenQuestions(); len(open) > 0 {
		fmt.Fprintf(&b, "Open questions (%d):\n", len(open))
		for _, q := range open {
			fmt.Fprintf(&b, "- %s: %s\n", q.ID, q.Prompt)
		}
	}
	if ids := c.OpenHypotheses(); len(ids) > 0 {
		fmt.Fprintf(&b, "Open hypotheses (%d):\n", len(ids))
		for _, id := range ids {
			fmt.Fprintf(&b, "- %s: %s\n", id, c.FindHypothesis(id).Statement)
		}
	}
	if next, ok := cases.NextState(c); ok {
		if gateErr := cases.CanTransition(c, next); gateErr != nil {
			fmt.Fprintf(&b, "Next transition (%s) is blocked: %v\n", next, gateErr)
		} else {
			fmt.Fprintf(&b, "Next transition (%s) is ready.\n", next)
		}
	} else {
		b.WriteString("The case is terminal for automatic progression.\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}

// handleCaseReport returns the markdown report with the event timeline.
func (s *Server) handleCaseReport(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	caseID, err := request.RequireString("case_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: case_id"), nil
	}

	c, err := s.store.Load(ctx, caseID)
	if err != nil {
		if errors.Is(err, cases.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("no case with id %q", caseID)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("loading case failed: %v", err)), nil
	}
	events, err := s.store.Events(ctx, caseID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("loading events failed: %v", err)), nil
	}

	return mcp.NewToolResultText(report.Markdown(c, events)), nil
}

// handleAdvanceCase runs gated progression. A gate rejection is a normal
// outcome for the client, not a tool error.
func (s *Server) handleAdvanceCase(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	caseID, err := request.RequireString("case_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: case_id"), nil
	}

	res, err := s.orch.Next(ctx, caseID)
	if err != nil {
		var gateErr *cases.GateError
		if errors.As(err, &gateErr) {
			return mcp.NewToolResultText("Not advanced: " + gateErr.Error()), nil
		}
		if errors.Is(err, cases.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("no case with id %q", caseID)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("advancing case failed: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf(
		"Advanced %d state(s): %s -> %s.", res.StatesAdvanced, res.From, res.To)), nil
}

// handleAnswerQuestion records an answer on a case.
func (s *Server) handleAnswerQuestion(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	caseID, err := request.RequireString("case_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: case_id"), nil
	}
	questionID, err := request.RequireString("question_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: question_id"), nil
	}
	answer, err := request.RequireString("answer")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: answer"), nil
	}

	if err := s.orch.AddAnswer(ctx, caseID, questionID, answer); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("recording answer failed: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Recorded answer to %s on case %s.", questionID, caseID)), nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 80 {
		s = s[:80] + "…"
	}
	return s
}
