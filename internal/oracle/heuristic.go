package oracle

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/triagekit/triage/internal/cases"
	"github.com/triagekit/triage/internal/extract"
)

// HeuristicOracle is the deterministic fallback. It never guesses: answers
// are proposed only when evidence extraction finds a directly quotable
// match, evidence requests are raised once per question, and transitions
// are proposed only when the state machine's gates already pass.
type HeuristicOracle struct {
	store     *cases.Store
	caseID    string
	requested map[string]bool // question ids already escalated for evidence
}

// NewHeuristicOracle creates a heuristic oracle over the case store.
func NewHeuristicOracle(store *cases.Store) *HeuristicOracle {
	return &HeuristicOracle{store: store, requested: make(map[string]bool)}
}

func (o *HeuristicOracle) Name() string { return "heuristic" }

func (o *HeuristicOracle) Start(ctx context.Context, session SessionInfo) error {
	if session.CaseID == "" {
		return fmt.Errorf("heuristic oracle requires a case id")
	}
	o.caseID = session.CaseID
	return nil
}

func (o *HeuristicOracle) Stop() error {
	o.caseID = ""
	return nil
}

// Prompt ignores the message text: the case itself is the context. The
// reply is the JSON encoding of a Decision so the caller's decoder treats
// heuristic and LLM output identically.
func (o *HeuristicOracle) Prompt(ctx context.Context, message string, history []Message) (string, error) {
	c, err := o.store.Load(ctx, o.caseID)
	if err != nil {
		return "", fmt.Errorf("loading case for heuristic decision: %w", err)
	}
	return encodeDecision(o.decide(c))
}

func (o *HeuristicOracle) decide(c *cases.Case) Decision {
	// 1. Answer any open question the evidence settles unambiguously.
	for _, s := range extract.Answers(c) {
		if s.Confidence != extract.ConfidenceHigh {
			continue
		}
		return Decision{
			Thought:    fmt.Sprintf("evidence contains a direct answer for question %s", s.QuestionID),
			Confidence: 0.9,
			Action: &Action{
				Kind:         ActionAnswerQuestion,
				QuestionID:   s.QuestionID,
				Answer:       s.Answer,
				EvidenceRefs: s.EvidenceRefs,
				Description:  fmt.Sprintf("answer %q from evidence", s.Answer),
			},
		}
	}

	// 2. Advance the lifecycle when the gates already pass.
	if next, ok := cases.NextState(c); ok {
		if err := cases.CanTransition(c, next); err == nil {
			return Decision{
				Thought:    fmt.Sprintf("all gates for %s are satisfied", next),
				Confidence: 0.7,
				Action: &Action{
					Kind:        ActionTransitionState,
					TargetState: string(next),
					Description: fmt.Sprintf("advance case to %s", next),
				},
			}
		}
	}

	// 3. Escalate one unanswered required question for human evidence,
	// once each, so the loop cannot spin on the same request.
	for _, id := range c.OpenRequiredQuestions() {
		if o.requested[id] {
			continue
		}
		o.requested[id] = true
		q := c.FindQuestion(id)
		return Decision{
			Thought:    fmt.Sprintf("question %s cannot be answered from current evidence", id),
			Confidence: 0.5,
			Action: &Action{
				Kind:            ActionRequestEvidence,
				QuestionID:      id,
				EvidenceRequest: fmt.Sprintf("evidence needed to answer: %s", q.Prompt),
				Description:     fmt.Sprintf("request evidence for %q", q.Prompt),
			},
		}
	}

	// 4. Nothing left this oracle can responsibly do.
	return Decision{
		Thought:    "no further actions available without new evidence or human input",
		Confidence: 0.9,
	}
}

func encodeDecision(d Decision) (string, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("encoding decision: %w", err)
	}
	return string(raw), nil
}
