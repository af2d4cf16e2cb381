package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/triagekit/triage/internal/cases"
	"github.com/triagekit/triage/internal/llm"
	"github.com/triagekit/triage/internal/oracle"
	"github.com/triagekit/triage/internal/orchestrator"
	"github.com/triagekit/triage/internal/progress"
)

// usageReporter is implemented by oracles that track token consumption.
type usageReporter interface {
	Usage() llm.Usage
}

// RunResult summarizes a completed run (one invocation of Run, which may be
// a fresh session or a resumed one).
type RunResult struct {
	SessionID  string        `json:"session_id"`
	Status     SessionStatus `json:"status"`
	Iterations int           `json:"iterations"`
	StopReason string        `json:"stop_reason"`
}

// Runner drives a session's iteration loop. Each iteration: re-read the
// case, check the safety bounds, ask the oracle for one decision, gate it
// through approval, execute it through the orchestrator, and checkpoint the
// session to disk. The case is never cached across iterations; actions may
// have changed it.
type Runner struct {
	manager  *Manager
	orch     *orchestrator.Orchestrator
	oracle   oracle.Oracle
	approval ApprovalPort
	reporter progress.Reporter
}

// NewRunner wires a runner. A nil reporter runs silently.
func NewRunner(manager *Manager, orch *orchestrator.Orchestrator, o oracle.Oracle, approval ApprovalPort, reporter progress.Reporter) *Runner {
	if reporter == nil {
		reporter = progress.Silent{}
	}
	return &Runner{manager: manager, orch: orch, oracle: o, approval: approval, reporter: reporter}
}

// Run executes the session until a bound is hit, the oracle has nothing
// left to propose, the session is paused or terminated, or ctx is
// cancelled. The session's durable status always reflects the outcome.
func (r *Runner) Run(ctx context.Context, sessionID string) (*RunResult, error) {
	s, err := r.manager.Load(sessionID)
	if err != nil {
		return nil, err
	}
	if s.Terminal() {
		return nil, fmt.Errorf("session %s is %s and cannot run", s.ID, s.Status)
	}
	if s.Status == StatusPaused {
		return nil, fmt.Errorf("session %s is paused; resume it first", s.ID)
	}

	if err := r.oracle.Start(ctx, oracle.SessionInfo{
		ID:           s.ID,
		CaseID:       s.CaseID,
		SystemPrompt: s.SystemPrompt(),
	}); err != nil {
		return nil, fmt.Errorf("starting oracle: %w", err)
	}
	defer r.oracle.Stop()

	policy := oracle.SafetyPolicy{
		MaxIterations: s.Limits.MaxIterations,
		MaxDuration:   s.Limits.MaxDuration,
		DeniedActions: s.Limits.DeniedActions,
	}
	// The duration window is anchored at this invocation, not at session
	// creation: a session may sit idle long before its first run.
	runStart := time.Now().UTC()

	r.reporter.Start(s.Limits.MaxIterations)
	defer r.reporter.Finish()

	for {
		if err := ctx.Err(); err != nil {
			return r.finish(s, StatusPaused, "run cancelled")
		}

		// Honor pause/terminate issued from another process.
		fresh, err := r.manager.Load(s.ID)
		if err != nil {
			return nil, err
		}
		if fresh.Status != StatusActive {
			s.Status = fresh.Status
			return &RunResult{SessionID: s.ID, Status: s.Status,
				Iterations: s.Metrics.Iterations, StopReason: "session stopped externally"}, nil
		}

		if ok, reason := policy.CheckSafety(s.Metrics.Iterations, runStart); !ok {
			return r.finish(s, StatusCompleted, reason)
		}

		c, err := r.orch.Store().Load(ctx, s.CaseID)
		if err != nil {
			return r.finish(s, StatusFailed, fmt.Sprintf("loading case: %v", err))
		}
		s.RefreshContext(c)
		if c.State == cases.StateResolve || c.State == cases.StateReadyForSolution {
			return r.finish(s, StatusCompleted, fmt.Sprintf("case reached %s", c.State))
		}

		s.RunState = RunThinking
		prompt := contextPrompt(c, s)
		reply, err := r.oracle.Prompt(ctx, prompt, s.OracleHistory())
		s.Metrics.Iterations++
		r.reporter.Update(s.Metrics.Iterations, string(c.State))
		if err != nil {
			s.Metrics.Errors++
			return r.finish(s, StatusFailed, fmt.Sprintf("oracle error: %v", err))
		}
		s.Append("user", prompt)
		s.Append("assistant", reply)
		r.recordUsage(s)

		decision := oracle.DecodeDecision(reply)
		if decision.Action == nil {
			return r.finish(s, StatusCompleted, "oracle proposed no further action")
		}

		// A denied-action match is a safety violation, not feedback: the
		// run halts immediately and the session is marked failed.
		if ok, reason := policy.ValidateAction(actionText(decision.Action)); !ok {
			s.Metrics.ActionsDenied++
			s.Metrics.Errors++
			return r.finish(s, StatusFailed, fmt.Sprintf("safety violation: %s", reason))
		}

		impact := ClassifyImpact(decision.Action)
		if impact != ImpactLow && !s.Limits.AutoApprove {
			s.RunState = RunWaiting
			approved, err := r.approval.Approve(decision.Action, impact)
			if err != nil {
				return r.finish(s, StatusFailed, fmt.Sprintf("approval: %v", err))
			}
			if !approved {
				s.Metrics.ActionsDenied++
				s.Append("user", "Operator declined that action. Propose something else.")
				if err := r.checkpoint(s); err != nil {
					return nil, err
				}
				continue
			}
		}

		s.RunState = RunActing
		stop, stopReason, err := r.execute(ctx, s, decision.Action)
		if err != nil {
			var gateErr *cases.GateError
			if errors.As(err, &gateErr) {
				// Gate rejections go back to the oracle as feedback, not up
				// the stack as failures.
				s.Metrics.Errors++
				s.Append("user", "Transition blocked: "+gateErr.Error())
				if err := r.checkpoint(s); err != nil {
					return nil, err
				}
				continue
			}
			s.Metrics.Errors++
			return r.finish(s, StatusFailed, fmt.Sprintf("executing %s: %v", decision.Action.Kind, err))
		}
		if err := r.checkpoint(s); err != nil {
			return nil, err
		}
		if stop {
			return r.finish(s, StatusPaused, stopReason)
		}
	}
}

// execute applies one approved action through the orchestrator, counting it
// in the per-kind metrics. The bool return requests a pause (with the given
// reason) after checkpointing.
func (r *Runner) execute(ctx context.Context, s *Session, a *oracle.Action) (bool, string, error) {
	switch a.Kind {
	case oracle.ActionAnswerQuestion:
		if err := r.orch.AddAnswer(ctx, s.CaseID, a.QuestionID, a.Answer); err != nil {
			return false, "", err
		}
		s.Metrics.QuestionsAnswered++
		return false, "", nil

	case oracle.ActionTestHypothesis:
		var status cases.HypothesisStatus
		switch a.Verdict {
		case "validated":
			status = cases.HypothesisValidated
		case "disproven":
			status = cases.HypothesisDisproven
		default:
			return false, "", fmt.Errorf("unknown hypothesis verdict %q", a.Verdict)
		}
		if err := r.orch.TestHypothesis(ctx, s.CaseID, a.HypothesisID, status, a.EvidenceRefs, a.Description); err != nil {
			return false, "", err
		}
		s.Metrics.HypothesesTested++
		return false, "", nil

	case oracle.ActionRequestEvidence:
		// The agent cannot collect evidence itself: park the session and
		// surface the request to the operator.
		s.Metrics.EvidenceRequests++
		s.Context.PendingActions = append(s.Context.PendingActions, "evidence request: "+a.EvidenceRequest)
		s.Append("user", "Evidence request noted: "+a.EvidenceRequest)
		return true, "awaiting evidence: " + a.EvidenceRequest, nil

	case oracle.ActionTransitionState:
		// Advisory target; the state machine picks the real destination.
		res, err := r.orch.Next(ctx, s.CaseID)
		if err != nil {
			return false, "", err
		}
		s.Metrics.Transitions += res.StatesAdvanced
		s.Append("user", fmt.Sprintf("Case advanced from %s to %s.", res.From, res.To))
		return false, "", nil
	}
	return false, "", fmt.Errorf("unknown action kind %q", a.Kind)
}

func (r *Runner) finish(s *Session, status SessionStatus, reason string) (*RunResult, error) {
	s.Status = status
	s.RunState = RunIdle
	s.StopReason = reason
	r.recordUsage(s)
	if err := r.manager.Save(s); err != nil {
		return nil, err
	}
	return &RunResult{
		SessionID:  s.ID,
		Status:     s.Status,
		Iterations: s.Metrics.Iterations,
		StopReason: reason,
	}, nil
}

func (r *Runner) checkpoint(s *Session) error {
	if err := r.manager.Save(s); err != nil {
		return fmt.Errorf("checkpointing session: %w", err)
	}
	return nil
}

func (r *Runner) recordUsage(s *Session) {
	if u, ok := r.oracle.(usageReporter); ok {
		usage := u.Usage()
		s.Metrics.PromptTokens = usage.PromptTokens
		s.Metrics.CompletionTokens = usage.CompletionTokens
	}
}

// contextPrompt renders the case's current situation for the oracle. Built
// fresh every iteration from a re-read case.
func contextPrompt(c *cases.Case, s *Session) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Case %s is in state %s.\n", c.ID, c.State)
	fmt.Fprintf(&b, "Iteration %d of %d.\n", s.Metrics.Iterations+1, s.Limits.MaxIterations)

	if open := c.OpenQuestions(); len(open) > 0 {
		b.WriteString("Open questions:\n")
		for _, q := range open {
			marker := ""
			if q.Required {
				marker = " (required)"
			}
			fmt.Fprintf(&b, "- %s: %s%s\n", q.ID, q.Prompt, marker)
		}
	}
	if plan := s.Personality.OpenPlan(); len(plan) > 0 {
		b.WriteString("Investigation plan still open:\n")
		for _, item := range plan {
			fmt.Fprintf(&b, "- %s\n", item.Prompt)
		}
	}
	if ids := c.OpenHypotheses(); len(ids) > 0 {
		b.WriteString("Open hypotheses:\n")
		for _, id := range ids {
			fmt.Fprintf(&b, "- %s: %s\n", id, c.FindHypothesis(id).Statement)
		}
	}
	fmt.Fprintf(&b, "Evidence records: %d.\n", len(c.Evidence))

	if next, ok := cases.NextState(c); ok {
		if err := cases.CanTransition(c, next); err != nil {
			fmt.Fprintf(&b, "Next transition (%s) is blocked: %v\n", next, err)
		} else {
			fmt.Fprintf(&b, "Next transition (%s) is open.\n", next)
		}
	}

	b.WriteString("Respond with your decision JSON.")
	return b.String()
}

// actionText serializes an action for denied-pattern matching.
func actionText(a *oracle.Action) string {
	raw, err := json.Marshal(a)
	if err != nil {
		return a.Description
	}
	return string(raw)
}
