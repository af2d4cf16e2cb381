package cases

import (
	"fmt"
	"strings"
)

// forward is the ordered lifecycle edge for each state. resolve ->
// ready_for_solution exists but is never taken automatically.
var forward = map[State]State{
	StateIntake:    StateNormalize,
	StateNormalize: StateClassify,
	StateClassify:  StatePlan,
	StatePlan:      StateExecute,
	StateExecute:   StateEvaluate,
	StateEvaluate:  StateResolve,
	StateResolve:   StateReadyForSolution,
}

// requiredQuestionGated are the states that cannot be left while a required
// question is still open.
var requiredQuestionGated = map[State]bool{
	StatePlan:     true,
	StateExecute:  true,
	StateEvaluate: true,
}

// GateError is a typed transition rejection. It is never a crash: callers
// display the blocking reason and carry on.
type GateError struct {
	From              State
	To                State
	Reason            string
	BlockingQuestions []string
}

func (e *GateError) Error() string {
	if len(e.BlockingQuestions) > 0 {
		return fmt.Sprintf("cannot move from %s to %s: %s (blocking questions: %s)",
			e.From, e.To, e.Reason, strings.Join(e.BlockingQuestions, ", "))
	}
	return fmt.Sprintf("cannot move from %s to %s: %s", e.From, e.To, e.Reason)
}

// NextState returns the state an automatic advance should attempt from the
// case's current position. The second return is false when the case is
// terminal for automatic progression (resolve, ready_for_solution) or
// parked awaiting an external answer.
func NextState(c *Case) (State, bool) {
	switch c.State {
	case StateResolve, StateReadyForSolution:
		return "", false
	case StatePendingExternal:
		return "", false
	case StateEvaluate:
		// Unvalidated hypotheses loop the case back to planning. This is
		// a designed edge, not a failure.
		if len(c.OpenHypotheses()) > 0 {
			return StatePlan, true
		}
		return StateResolve, true
	default:
		next, ok := forward[c.State]
		return next, ok
	}
}

// CanTransition reports whether the case may move to target. A nil return
// means the transition is permitted; otherwise the returned *GateError
// carries the specific blocking reason.
func CanTransition(c *Case, target State) error {
	if !ValidStates[target] {
		return &GateError{From: c.State, To: target, Reason: "unknown target state"}
	}
	if target == c.State {
		return &GateError{From: c.State, To: target, Reason: "already in that state"}
	}

	// Parking for an external answer is allowed from anywhere; returning is
	// only allowed to the state the case was parked from.
	if target == StatePendingExternal {
		if c.State == StateResolve || c.State == StateReadyForSolution {
			return &GateError{From: c.State, To: target, Reason: "case is already terminal"}
		}
		return nil
	}
	if c.State == StatePendingExternal {
		if target != c.PendingReturn {
			return &GateError{From: c.State, To: target,
				Reason: fmt.Sprintf("a parked case may only return to %s", c.PendingReturn)}
		}
		return nil
	}

	// The evaluate -> plan loop-back for unfinished hypotheses.
	if c.State == StateEvaluate && target == StatePlan {
		return nil
	}

	if forward[c.State] != target {
		return &GateError{From: c.State, To: target, Reason: "transition not permitted by the lifecycle"}
	}

	// Entering plan requires a confirmed problem scope.
	if target == StatePlan {
		if c.Scope == nil {
			return &GateError{From: c.State, To: target,
				Reason: "problem scope has not been generated; run scope generation and confirm it first"}
		}
		if !c.Scope.Confirmed {
			return &GateError{From: c.State, To: target,
				Reason: "problem scope is not confirmed; confirm the scope first"}
		}
	}

	// Leaving plan or any later analytical state requires every required
	// question to be answered or skipped-with-constraint.
	if requiredQuestionGated[c.State] {
		if blocking := c.OpenRequiredQuestions(); len(blocking) > 0 {
			return &GateError{From: c.State, To: target,
				Reason:            "required questions are still open",
				BlockingQuestions: blocking}
		}
	}

	// Resolution additionally requires every hypothesis to be settled.
	if target == StateResolve {
		if open := c.OpenHypotheses(); len(open) > 0 {
			return &GateError{From: c.State, To: target,
				Reason: fmt.Sprintf("%d hypothesis(es) still open; validation loops back to plan", len(open))}
		}
	}

	return nil
}

// Transition moves the case to target after gate checks, maintaining the
// pending-external bookkeeping. It mutates the case in place.
func Transition(c *Case, target State) error {
	if err := CanTransition(c, target); err != nil {
		return err
	}

	if target == StatePendingExternal {
		c.PendingReturn = c.State
	} else if c.State == StatePendingExternal {
		c.PendingReturn = ""
	}

	c.State = target
	return nil
}
