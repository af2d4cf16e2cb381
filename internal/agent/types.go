// Package agent runs bounded autonomous troubleshooting sessions: an oracle
// proposes one action per iteration, an approval port gates the risky ones,
// and every iteration is checkpointed to disk so a run survives a restart.
package agent

import (
	"time"

	"github.com/triagekit/triage/internal/cases"
	"github.com/triagekit/triage/internal/oracle"
)

// SessionStatus is the durable lifecycle of an agent session.
type SessionStatus string

const (
	StatusActive     SessionStatus = "active"
	StatusPaused     SessionStatus = "paused"
	StatusCompleted  SessionStatus = "completed"
	StatusFailed     SessionStatus = "failed"
	StatusTerminated SessionStatus = "terminated"
)

// terminalStatuses can never be left.
var terminalStatuses = map[SessionStatus]bool{
	StatusCompleted:  true,
	StatusFailed:     true,
	StatusTerminated: true,
}

// RunState is the transient position inside one iteration. It is persisted
// for observability (agent status) but carries no control-flow weight.
type RunState string

const (
	RunIdle     RunState = "idle"
	RunThinking RunState = "thinking"
	RunActing   RunState = "acting"
	RunWaiting  RunState = "waiting" // blocked on approval
)

// PlanItem is one investigation-plan question. It starts open and is marked
// answered once the case carries an answered question with the same prompt.
type PlanItem struct {
	Prompt string `json:"prompt"`
	Status string `json:"status"`
}

const (
	planOpen     = "open"
	planAnswered = "answered"
)

// Personality is derived once at session creation and never mutated. The
// investigation plan is copied from the matched template's questions and the
// working theories from its initial hypotheses; without a template the
// specialization falls back to the case classification.
type Personality struct {
	Specialization  string     `json:"specialization"`
	Keywords        []string   `json:"keywords,omitempty"`
	Plan            []PlanItem `json:"plan,omitempty"`
	WorkingTheories []string   `json:"working_theories,omitempty"`
	// Style is operator-provided prose injected into the system prompt,
	// e.g. "methodical, prefers disproving hypotheses first".
	Style string `json:"style,omitempty"`
}

// OpenPlan returns the plan questions not yet answered on the case.
func (p Personality) OpenPlan() []PlanItem {
	var out []PlanItem
	for _, item := range p.Plan {
		if item.Status == planOpen {
			out = append(out, item)
		}
	}
	return out
}

// Limits bounds a session. Zero values are honored literally: a
// MaxIterations of 0 means the run makes no oracle calls at all.
type Limits struct {
	MaxIterations int           `json:"max_iterations"`
	MaxDuration   time.Duration `json:"max_duration"`
	AutoApprove   bool          `json:"auto_approve"`
	DeniedActions []string      `json:"denied_actions,omitempty"`
}

// Entry is one timestamped turn in the session's conversation history.
type Entry struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// EvidenceSnapshot is the session's view of one evidence record.
type EvidenceSnapshot struct {
	ID     string   `json:"id"`
	Source string   `json:"source"`
	Tags   []string `json:"tags,omitempty"`
}

// AnsweredQuestion is the session's view of one answered case question.
type AnsweredQuestion struct {
	ID     string `json:"id"`
	Prompt string `json:"prompt"`
	Answer string `json:"answer"`
}

// HypothesisSnapshot is the session's view of one case hypothesis.
type HypothesisSnapshot struct {
	ID        string                 `json:"id"`
	Statement string                 `json:"statement"`
	Status    cases.HypothesisStatus `json:"status"`
}

// Context is the session's working snapshot: the case-derived parts
// (evidence, answered questions, hypotheses) are rebuilt from a fresh store
// read every iteration, the conversation history is append-only, and
// pending actions records evidence requests awaiting an operator.
type Context struct {
	Evidence   []EvidenceSnapshot   `json:"evidence,omitempty"`
	Answered   []AnsweredQuestion   `json:"answered_questions,omitempty"`
	Hypotheses []HypothesisSnapshot `json:"hypotheses,omitempty"`
	// History holds the full conversation in order; the first two entries
	// are always the system prompt and the opening user message.
	History        []Entry  `json:"history"`
	PendingActions []string `json:"pending_actions,omitempty"`
}

// Metrics accumulates over a session's lifetime, across pauses and resumes.
// Executed actions are counted per kind.
type Metrics struct {
	Iterations        int `json:"iterations"`
	QuestionsAnswered int `json:"questions_answered"`
	HypothesesTested  int `json:"hypotheses_tested"`
	Transitions       int `json:"transitions"`
	EvidenceRequests  int `json:"evidence_requests"`
	ActionsDenied     int `json:"actions_denied"`
	Errors            int `json:"errors"`
	PromptTokens      int `json:"prompt_tokens"`
	CompletionTokens  int `json:"completion_tokens"`
}

// Session is the durable record of one autonomous run against one case. It
// holds only the case id; the runner re-reads the case every iteration.
type Session struct {
	ID          string        `json:"id"`
	CaseID      string        `json:"case_id"`
	Status      SessionStatus `json:"status"`
	RunState    RunState      `json:"run_state"`
	Personality Personality   `json:"personality"`
	Limits      Limits        `json:"limits"`
	Context     Context       `json:"context"`
	Metrics     Metrics       `json:"metrics"`
	StopReason  string        `json:"stop_reason,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	StartedAt   time.Time     `json:"started_at"`
}

// Terminal reports whether the session can never run again.
func (s *Session) Terminal() bool { return terminalStatuses[s.Status] }

// Append records a conversation turn.
func (s *Session) Append(role, content string) {
	s.Context.History = append(s.Context.History, Entry{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC().Truncate(time.Second),
	})
}

// RefreshContext rebuilds the case-derived snapshot from a freshly loaded
// case and marks investigation-plan questions answered when the case has
// answered a question with the same prompt.
func (s *Session) RefreshContext(c *cases.Case) {
	s.Context.Evidence = nil
	for _, e := range c.Evidence {
		s.Context.Evidence = append(s.Context.Evidence, EvidenceSnapshot{
			ID: e.ID, Source: e.Source, Tags: e.Tags,
		})
	}

	answered := make(map[string]bool)
	s.Context.Answered = nil
	for _, q := range c.Questions {
		if q.Status != cases.QuestionAnswered {
			continue
		}
		answered[q.Prompt] = true
		s.Context.Answered = append(s.Context.Answered, AnsweredQuestion{
			ID: q.ID, Prompt: q.Prompt, Answer: q.Answer,
		})
	}
	for i, item := range s.Personality.Plan {
		if answered[item.Prompt] {
			s.Personality.Plan[i].Status = planAnswered
		}
	}

	s.Context.Hypotheses = nil
	for _, h := range c.Hypotheses {
		s.Context.Hypotheses = append(s.Context.Hypotheses, HypothesisSnapshot{
			ID: h.ID, Statement: h.Statement, Status: h.Status,
		})
	}
}

// OracleHistory converts the session history into the oracle's message
// shape, dropping the system entry (oracles receive it via Start).
func (s *Session) OracleHistory() []oracle.Message {
	msgs := make([]oracle.Message, 0, len(s.Context.History))
	for _, e := range s.Context.History {
		if e.Role == "system" {
			continue
		}
		msgs = append(msgs, oracle.Message{Role: e.Role, Content: e.Content})
	}
	return msgs
}

// SystemPrompt returns the session's system entry, empty if somehow absent.
func (s *Session) SystemPrompt() string {
	for _, e := range s.Context.History {
		if e.Role == "system" {
			return e.Content
		}
	}
	return ""
}
