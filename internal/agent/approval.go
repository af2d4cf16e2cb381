package agent

import (
	"fmt"

	"github.com/manifoldco/promptui"

	"github.com/triagekit/triage/internal/oracle"
)

// Impact classifies how risky a proposed action is. Low impact actions run
// without approval; medium and high require it unless the session was
// started with auto-approve.
type Impact string

const (
	ImpactLow    Impact = "low"
	ImpactMedium Impact = "medium"
	ImpactHigh   Impact = "high"
)

// ClassifyImpact maps an action to its impact tier. Recording answers and
// hypothesis verdicts stays within the current state and is reversible;
// an evidence request interrupts the operator; a transition moves the
// whole case forward.
func ClassifyImpact(a *oracle.Action) Impact {
	switch a.Kind {
	case oracle.ActionAnswerQuestion, oracle.ActionTestHypothesis:
		return ImpactLow
	case oracle.ActionRequestEvidence:
		return ImpactMedium
	case oracle.ActionTransitionState:
		return ImpactHigh
	default:
		return ImpactHigh
	}
}

// ApprovalPort decides whether a proposed action may execute. The runner
// blocks on it, so interactive implementations should be prompt-and-return.
type ApprovalPort interface {
	Approve(a *oracle.Action, impact Impact) (bool, error)
}

// AutoApprove approves everything. Used when the session opts in.
type AutoApprove struct{}

func (AutoApprove) Approve(*oracle.Action, Impact) (bool, error) { return true, nil }

// CLIApproval prompts the operator on the terminal for each action.
type CLIApproval struct{}

func (CLIApproval) Approve(a *oracle.Action, impact Impact) (bool, error) {
	label := fmt.Sprintf("[%s impact] %s %s", impact, a.Kind, describeAction(a))
	prompt := promptui.Prompt{
		Label:     label + " — execute",
		IsConfirm: true,
	}
	_, err := prompt.Run()
	if err == promptui.ErrAbort {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading approval: %w", err)
	}
	return true, nil
}

func describeAction(a *oracle.Action) string {
	switch a.Kind {
	case oracle.ActionAnswerQuestion:
		return fmt.Sprintf("%s = %q", a.QuestionID, a.Answer)
	case oracle.ActionTestHypothesis:
		return fmt.Sprintf("%s -> %s", a.HypothesisID, a.Verdict)
	case oracle.ActionRequestEvidence:
		return a.EvidenceRequest
	case oracle.ActionTransitionState:
		return "advance the case"
	}
	return a.Description
}

// ScriptedApproval replays a fixed sequence of verdicts, for tests.
type ScriptedApproval struct {
	Verdicts []bool
	Asked    []*oracle.Action
}

func (s *ScriptedApproval) Approve(a *oracle.Action, impact Impact) (bool, error) {
	s.Asked = append(s.Asked, a)
	if len(s.Asked) > len(s.Verdicts) {
		return false, nil
	}
	return s.Verdicts[len(s.Asked)-1], nil
}
