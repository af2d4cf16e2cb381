package oracle

import (
	"encoding/json"
	"strings"
)

// ActionKind tags the variants an oracle may propose.
type ActionKind string

const (
	ActionAnswerQuestion  ActionKind = "answer_question"
	ActionTestHypothesis  ActionKind = "test_hypothesis"
	ActionRequestEvidence ActionKind = "request_evidence"
	ActionTransitionState ActionKind = "transition_state"
)

var validActionKinds = map[ActionKind]bool{
	ActionAnswerQuestion:  true,
	ActionTestHypothesis:  true,
	ActionRequestEvidence: true,
	ActionTransitionState: true,
}

// Action is a proposed operation against a case. Fields beyond Kind are
// type-specific; unused ones stay empty.
type Action struct {
	Kind ActionKind `json:"type"`

	// answer_question
	QuestionID string `json:"question_id,omitempty"`
	Answer     string `json:"answer,omitempty"`

	// test_hypothesis
	HypothesisID string   `json:"hypothesis_id,omitempty"`
	Verdict      string   `json:"verdict,omitempty"` // "validated" or "disproven"
	EvidenceRefs []string `json:"evidence_refs,omitempty"`

	// request_evidence
	EvidenceRequest string `json:"evidence_request,omitempty"`

	// transition_state. Advisory only: the state machine, not the oracle,
	// decides the real destination.
	TargetState string `json:"target_state,omitempty"`

	Description string `json:"description,omitempty"`
}

// Decision is the structured result of one oracle turn. A nil Action means
// the oracle sees nothing more to do.
type Decision struct {
	Thought    string  `json:"thought"`
	Confidence float64 `json:"confidence,omitempty"`
	Action     *Action `json:"action,omitempty"`
}

// DecodeDecision parses an oracle reply defensively. Any reply that is not
// well-formed JSON with a recognized action shape degrades to a bare
// thought with no action. It never returns an error: malformed output is a
// thought-only turn, not a failure.
func DecodeDecision(text string) Decision {
	raw := strings.TrimSpace(stripCodeFence(text))
	if raw == "" {
		return Decision{}
	}

	var d Decision
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return Decision{Thought: strings.TrimSpace(text)}
	}

	if d.Action != nil && !validActionKinds[d.Action.Kind] {
		// Unrecognized variant: keep the reasoning, drop the action.
		d.Action = nil
	}
	if d.Thought == "" && d.Action == nil {
		// JSON, but not our shape (e.g. a bare array or unrelated object).
		return Decision{Thought: strings.TrimSpace(text)}
	}
	return d
}

// stripCodeFence removes a surrounding markdown code fence if present,
// since LLMs habitually wrap JSON in one.
func stripCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return s
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	if i := strings.LastIndex(trimmed, "```"); i >= 0 {
		trimmed = trimmed[:i]
	}
	return trimmed
}
