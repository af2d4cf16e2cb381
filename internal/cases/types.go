// Package cases defines the troubleshooting case model, its lifecycle state
// machine, and its sqlite-backed store.
package cases

import (
	"fmt"
	"time"
)

// State represents a case's position in the troubleshooting lifecycle.
type State string

const (
	StateIntake           State = "intake"
	StateNormalize        State = "normalize"
	StateClassify         State = "classify"
	StatePlan             State = "plan"
	StateExecute          State = "execute"
	StateEvaluate         State = "evaluate"
	StateResolve          State = "resolve"
	StateReadyForSolution State = "ready_for_solution"
	// StatePendingExternal parks a case while a human answers a question
	// the system cannot. The case returns to the state it came from.
	StatePendingExternal State = "pending_external"
)

// ValidStates is the fixed set of lifecycle states.
var ValidStates = map[State]bool{
	StateIntake:           true,
	StateNormalize:        true,
	StateClassify:         true,
	StatePlan:             true,
	StateExecute:          true,
	StateEvaluate:         true,
	StateResolve:          true,
	StateReadyForSolution: true,
	StatePendingExternal:  true,
}

// QuestionStatus is the lifecycle of a diagnostic question.
type QuestionStatus string

const (
	QuestionOpen     QuestionStatus = "open"
	QuestionAnswered QuestionStatus = "answered"
	QuestionSkipped  QuestionStatus = "skipped"
)

// Question is a diagnostic question attached to a case.
type Question struct {
	ID       string         `json:"id"`
	Prompt   string         `json:"prompt"`
	Required bool           `json:"required"`
	Status   QuestionStatus `json:"status"`
	Answer   string         `json:"answer,omitempty"`
	// VerificationRequired means the answer must be backed by evidence.
	VerificationRequired bool       `json:"verification_required,omitempty"`
	Guidance             string     `json:"guidance,omitempty"`
	Examples             []string   `json:"examples,omitempty"`
	AnsweredAt           *time.Time `json:"answered_at,omitempty"`
}

// HypothesisStatus is the lifecycle of a working theory.
type HypothesisStatus string

const (
	HypothesisOpen      HypothesisStatus = "open"
	HypothesisValidated HypothesisStatus = "validated"
	HypothesisDisproven HypothesisStatus = "disproven"
)

// Hypothesis is a candidate explanation for the observed problem.
type Hypothesis struct {
	ID           string           `json:"id"`
	Statement    string           `json:"statement"`
	Status       HypothesisStatus `json:"status"`
	EvidenceRefs []string         `json:"evidence_refs,omitempty"`
	Notes        string           `json:"notes,omitempty"`
}

// Evidence is a redacted piece of supporting material attached to a case.
type Evidence struct {
	ID       string    `json:"id"`
	Source   string    `json:"source"`
	Content  string    `json:"content"`
	Redacted bool      `json:"redacted"`
	Tags     []string  `json:"tags,omitempty"`
	AddedAt  time.Time `json:"added_at"`
}

// ProblemScope is a versioned summary of what is being investigated.
type ProblemScope struct {
	Version            int      `json:"version"`
	Summary            string   `json:"summary"`
	ErrorPatterns      []string `json:"error_patterns,omitempty"`
	AffectedComponents []string `json:"affected_components,omitempty"`
	Timeframe          string   `json:"timeframe,omitempty"`
	Impact             string   `json:"impact,omitempty"`
	EvidenceSummary    string   `json:"evidence_summary,omitempty"`
	Confirmed          bool     `json:"confirmed"`
}

// ScopeRevision records a superseded scope and why it was replaced.
type ScopeRevision struct {
	Scope      ProblemScope `json:"scope"`
	Reason     string       `json:"reason"`
	ReplacedAt time.Time    `json:"replaced_at"`
}

// ConstraintReason codes why a required question was skipped.
type ConstraintReason string

const (
	ConstraintNotApplicable ConstraintReason = "not_applicable"
	ConstraintNoAccess      ConstraintReason = "no_access"
	ConstraintTimePressure  ConstraintReason = "time_pressure"
)

// Constraint documents why a required question could not be answered.
type Constraint struct {
	QuestionID  string           `json:"question_id"`
	Reason      ConstraintReason `json:"reason"`
	Description string           `json:"description,omitempty"`
}

// Event is one entry in a case's append-only event log.
type Event struct {
	ID        int64     `json:"id"`
	Type      string    `json:"type"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Case is a single tracked troubleshooting investigation.
type Case struct {
	ID             string          `json:"id"`
	State          State           `json:"state"`
	Problem        string          `json:"problem"`
	Questions      []Question      `json:"questions,omitempty"`
	Hypotheses     []Hypothesis    `json:"hypotheses,omitempty"`
	Evidence       []Evidence      `json:"evidence,omitempty"`
	TemplateID     string          `json:"template_id,omitempty"`
	Classification string          `json:"classification,omitempty"`
	Scope          *ProblemScope   `json:"scope,omitempty"`
	ScopeHistory   []ScopeRevision `json:"scope_history,omitempty"`
	Constraints    []Constraint    `json:"constraints,omitempty"`
	// PendingReturn holds the state to resume when the case is parked in
	// pending_external. Empty otherwise.
	PendingReturn State     `json:"pending_return,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// FindQuestion returns the question with the given id, or nil.
func (c *Case) FindQuestion(id string) *Question {
	for i := range c.Questions {
		if c.Questions[i].ID == id {
			return &c.Questions[i]
		}
	}
	return nil
}

// FindHypothesis returns the hypothesis with the given id, or nil.
func (c *Case) FindHypothesis(id string) *Hypothesis {
	for i := range c.Hypotheses {
		if c.Hypotheses[i].ID == id {
			return &c.Hypotheses[i]
		}
	}
	return nil
}

// FindEvidence returns the evidence record with the given id, or nil.
func (c *Case) FindEvidence(id string) *Evidence {
	for i := range c.Evidence {
		if c.Evidence[i].ID == id {
			return &c.Evidence[i]
		}
	}
	return nil
}

// OpenRequiredQuestions returns the ids of required questions still open.
// Skipped questions do not count: a recorded constraint documents why.
func (c *Case) OpenRequiredQuestions() []string {
	var ids []string
	for _, q := range c.Questions {
		if q.Required && q.Status == QuestionOpen {
			ids = append(ids, q.ID)
		}
	}
	return ids
}

// OpenQuestions returns all questions still open, in order.
func (c *Case) OpenQuestions() []Question {
	var open []Question
	for _, q := range c.Questions {
		if q.Status == QuestionOpen {
			open = append(open, q)
		}
	}
	return open
}

// OpenHypotheses returns the ids of hypotheses not yet validated or disproven.
func (c *Case) OpenHypotheses() []string {
	var ids []string
	for _, h := range c.Hypotheses {
		if h.Status == HypothesisOpen {
			ids = append(ids, h.ID)
		}
	}
	return ids
}

// Validate checks the case's structural invariants.
func (c *Case) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("case id is empty")
	}
	if !ValidStates[c.State] {
		return fmt.Errorf("unknown case state %q", c.State)
	}
	for _, con := range c.Constraints {
		if c.FindQuestion(con.QuestionID) == nil {
			return fmt.Errorf("constraint references unknown question %q", con.QuestionID)
		}
	}
	prev := 0
	for _, rev := range c.ScopeHistory {
		if rev.Scope.Version <= prev {
			return fmt.Errorf("scope history versions must strictly increase (got %d after %d)",
				rev.Scope.Version, prev)
		}
		prev = rev.Scope.Version
	}
	if c.Scope != nil && c.Scope.Version <= prev {
		return fmt.Errorf("current scope version %d must exceed last history version %d",
			c.Scope.Version, prev)
	}
	return nil
}
