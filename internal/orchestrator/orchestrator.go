// Package orchestrator coordinates extraction, the reasoning oracle, and
// the case state machine. Every case mutation in the system flows through
// its operations so the gating rules have a single source of truth.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/triagekit/triage/internal/cases"
	"github.com/triagekit/triage/internal/extract"
	"github.com/triagekit/triage/internal/oracle"
	"github.com/triagekit/triage/internal/templates"
)

// Sentinel errors for sub-resources inside a case.
var (
	ErrQuestionNotFound   = errors.New("question not found")
	ErrHypothesisNotFound = errors.New("hypothesis not found")
)

// Orchestrator exposes the imperative surface over cases. The oracle is
// optional: when nil (or failing), every oracle-backed path degrades to its
// deterministic heuristic, logged as a note rather than raised as an error.
type Orchestrator struct {
	store     *cases.Store
	templates *templates.Store
	matcher   *templates.Matcher
	oracle    oracle.Oracle
	verbose   bool
}

// New wires an orchestrator. templates and matcher may be nil when template
// features are unused; oracle may be nil to force heuristic behavior.
func New(store *cases.Store, tmplStore *templates.Store, matcher *templates.Matcher, o oracle.Oracle) *Orchestrator {
	return &Orchestrator{store: store, templates: tmplStore, matcher: matcher, oracle: o}
}

// SetVerbose enables degradation notes on stderr.
func (or *Orchestrator) SetVerbose(v bool) { or.verbose = v }

func (or *Orchestrator) note(format string, args ...interface{}) {
	if or.verbose {
		fmt.Fprintf(os.Stderr, "note: "+format+"\n", args...)
	}
}

// Store exposes the underlying case store for read paths.
func (or *Orchestrator) Store() *cases.Store { return or.store }

// AddAnswer records an answer for a question. It never advances the
// lifecycle, with one designed exception: answering while the case is
// parked in pending_external returns it to the state it was parked from.
func (or *Orchestrator) AddAnswer(ctx context.Context, caseID, questionID, answer string) error {
	c, err := or.store.Load(ctx, caseID)
	if err != nil {
		return err
	}

	q := c.FindQuestion(questionID)
	if q == nil {
		return fmt.Errorf("case %s question %s: %w", caseID, questionID, ErrQuestionNotFound)
	}

	now := time.Now().UTC().Truncate(time.Second)
	q.Status = cases.QuestionAnswered
	q.Answer = answer
	q.AnsweredAt = &now

	returned := false
	if c.State == cases.StatePendingExternal {
		if err := cases.Transition(c, c.PendingReturn); err == nil {
			returned = true
		}
	}

	if err := or.store.Save(ctx, c); err != nil {
		return err
	}
	if err := or.store.AppendEvent(ctx, caseID, "answer_added", fmt.Sprintf("%s: %s", questionID, answer)); err != nil {
		return err
	}
	if returned {
		return or.store.AppendEvent(ctx, caseID, "state_changed",
			fmt.Sprintf("returned from pending_external to %s", c.State))
	}
	return nil
}

// SkipQuestion marks a question skipped and records the constraint that
// documents why. Required questions may only be skipped with a constraint.
func (or *Orchestrator) SkipQuestion(ctx context.Context, caseID, questionID string, reason cases.ConstraintReason, description string) error {
	c, err := or.store.Load(ctx, caseID)
	if err != nil {
		return err
	}
	q := c.FindQuestion(questionID)
	if q == nil {
		return fmt.Errorf("case %s question %s: %w", caseID, questionID, ErrQuestionNotFound)
	}

	q.Status = cases.QuestionSkipped
	c.Constraints = append(c.Constraints, cases.Constraint{
		QuestionID:  questionID,
		Reason:      reason,
		Description: description,
	})

	if err := or.store.Save(ctx, c); err != nil {
		return err
	}
	return or.store.AppendEvent(ctx, caseID, "question_skipped",
		fmt.Sprintf("%s (%s)", questionID, reason))
}

// AddEvidence attaches an already-redacted evidence record to the case.
func (or *Orchestrator) AddEvidence(ctx context.Context, caseID string, ev cases.Evidence) error {
	c, err := or.store.Load(ctx, caseID)
	if err != nil {
		return err
	}
	c.Evidence = append(c.Evidence, ev)
	if err := or.store.Save(ctx, c); err != nil {
		return err
	}
	return or.store.AppendEvent(ctx, caseID, "evidence_added", ev.Source)
}

// AddHypothesis adds an open working theory to the case.
func (or *Orchestrator) AddHypothesis(ctx context.Context, caseID, statement string) (string, error) {
	c, err := or.store.Load(ctx, caseID)
	if err != nil {
		return "", err
	}
	h := cases.Hypothesis{
		ID:        uuid.New().String(),
		Statement: statement,
		Status:    cases.HypothesisOpen,
	}
	c.Hypotheses = append(c.Hypotheses, h)
	if err := or.store.Save(ctx, c); err != nil {
		return "", err
	}
	return h.ID, or.store.AppendEvent(ctx, caseID, "hypothesis_added", statement)
}

// TestHypothesis settles a hypothesis as validated or disproven, attaching
// the evidence that decided it.
func (or *Orchestrator) TestHypothesis(ctx context.Context, caseID, hypothesisID string, status cases.HypothesisStatus, evidenceRefs []string, notes string) error {
	if status != cases.HypothesisValidated && status != cases.HypothesisDisproven {
		return fmt.Errorf("hypothesis verdict must be validated or disproven, got %q", status)
	}

	c, err := or.store.Load(ctx, caseID)
	if err != nil {
		return err
	}
	h := c.FindHypothesis(hypothesisID)
	if h == nil {
		return fmt.Errorf("case %s hypothesis %s: %w", caseID, hypothesisID, ErrHypothesisNotFound)
	}

	h.Status = status
	h.EvidenceRefs = append(h.EvidenceRefs, evidenceRefs...)
	if notes != "" {
		h.Notes = notes
	}

	if err := or.store.Save(ctx, c); err != nil {
		return err
	}
	return or.store.AppendEvent(ctx, caseID, "hypothesis_tested",
		fmt.Sprintf("%s: %s", hypothesisID, status))
}

// NextResult reports what a Next call did.
type NextResult struct {
	From           cases.State   `json:"from"`
	To             cases.State   `json:"to"`
	StatesAdvanced int           `json:"states_advanced"`
	AutoProgressed bool          `json:"auto_progressed"`
	Sequence       []cases.State `json:"sequence"`
}

// Next advances the case one lifecycle step and then keeps advancing while
// the following state's gates are already satisfied. Auto-progression stops
// the instant a gate is unmet, at any terminal-for-automation state, and
// before ever revisiting a state within the same call (so the designed
// evaluate -> plan loop-back executes once, not forever).
func (or *Orchestrator) Next(ctx context.Context, caseID string) (*NextResult, error) {
	c, err := or.store.Load(ctx, caseID)
	if err != nil {
		return nil, err
	}

	from := c.State
	target, ok := cases.NextState(c)
	if !ok {
		return nil, &cases.GateError{From: c.State, To: c.State,
			Reason: "state is terminal for automatic progression"}
	}
	if err := cases.CanTransition(c, target); err != nil {
		return nil, err
	}

	visited := map[cases.State]bool{from: true}
	sequence := []cases.State{from}

	for {
		prev := c.State
		if err := cases.Transition(c, target); err != nil {
			break
		}
		sequence = append(sequence, target)
		visited[target] = true

		// The evaluate -> plan loop-back is a single deliberate step; chaining
		// it into plan -> execute -> evaluate would spin the lifecycle.
		if prev == cases.StateEvaluate && target == cases.StatePlan {
			break
		}

		next, ok := cases.NextState(c)
		if !ok || visited[next] {
			break
		}
		if err := cases.CanTransition(c, next); err != nil {
			break
		}
		target = next
	}

	if err := or.store.Save(ctx, c); err != nil {
		return nil, err
	}
	if err := or.store.AppendEvent(ctx, caseID, "state_changed",
		fmt.Sprintf("%s -> %s (%d step(s))", from, c.State, len(sequence)-1)); err != nil {
		return nil, err
	}

	return &NextResult{
		From:           from,
		To:             c.State,
		StatesAdvanced: len(sequence) - 1,
		AutoProgressed: len(sequence) > 2,
		Sequence:       sequence,
	}, nil
}

// AdvanceTo performs an explicit, user-requested transition such as
// resolve -> ready_for_solution or parking in pending_external.
func (or *Orchestrator) AdvanceTo(ctx context.Context, caseID string, target cases.State) error {
	c, err := or.store.Load(ctx, caseID)
	if err != nil {
		return err
	}
	from := c.State
	if err := cases.Transition(c, target); err != nil {
		return err
	}
	if err := or.store.Save(ctx, c); err != nil {
		return err
	}
	return or.store.AppendEvent(ctx, caseID, "state_changed",
		fmt.Sprintf("%s -> %s (explicit)", from, target))
}

// AutoExtractAnswers returns confidence-tiered candidate answers for every
// open question, without mutating the case. Callers auto-apply high tier
// suggestions and confirm medium and low interactively.
func (or *Orchestrator) AutoExtractAnswers(ctx context.Context, caseID string) ([]extract.Suggestion, error) {
	c, err := or.store.Load(ctx, caseID)
	if err != nil {
		return nil, err
	}
	return extract.Answers(c), nil
}

// ApplyAnswerSuggestions batch-applies accepted suggestions as answers in a
// single load/save cycle.
func (or *Orchestrator) ApplyAnswerSuggestions(ctx context.Context, caseID string, accepted []extract.Suggestion) (int, error) {
	if len(accepted) == 0 {
		return 0, nil
	}
	c, err := or.store.Load(ctx, caseID)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC().Truncate(time.Second)
	applied := 0
	for _, s := range accepted {
		q := c.FindQuestion(s.QuestionID)
		if q == nil || q.Status != cases.QuestionOpen {
			continue
		}
		q.Status = cases.QuestionAnswered
		q.Answer = s.Answer
		q.AnsweredAt = &now
		applied++
	}
	if applied == 0 {
		return 0, nil
	}

	if err := or.store.Save(ctx, c); err != nil {
		return 0, err
	}
	return applied, or.store.AppendEvent(ctx, caseID, "answers_applied",
		fmt.Sprintf("%d extracted answer(s) applied", applied))
}

// Analyze classifies the case and seeds its investigation plan from the
// best-matching template. Re-running is safe: questions and hypotheses are
// only seeded once.
func (or *Orchestrator) Analyze(ctx context.Context, caseID string) ([]templates.RankedTemplate, error) {
	if or.matcher == nil {
		return nil, fmt.Errorf("no template matcher configured")
	}

	c, err := or.store.Load(ctx, caseID)
	if err != nil {
		return nil, err
	}

	errorContext := evidenceText(c)
	ranked, err := or.matcher.Match(ctx, c.Problem, errorContext)
	if err != nil {
		return nil, err
	}
	if len(ranked) == 0 {
		c.Classification = or.classify(ctx, c)
		if err := or.store.Save(ctx, c); err != nil {
			return nil, err
		}
		return nil, or.store.AppendEvent(ctx, caseID, "case_classified", c.Classification)
	}

	top := ranked[0].Template
	c.Classification = top.Classification
	c.TemplateID = top.ID

	if len(c.Questions) == 0 {
		for i, tq := range top.Questions {
			c.Questions = append(c.Questions, cases.Question{
				ID:                   fmt.Sprintf("q%d", i+1),
				Prompt:               tq.Prompt,
				Required:             tq.Required,
				Status:               cases.QuestionOpen,
				VerificationRequired: tq.VerificationRequired,
				Guidance:             tq.Guidance,
				Examples:             tq.Examples,
			})
		}
	}
	if len(c.Hypotheses) == 0 {
		for i, statement := range top.InitialHypotheses {
			c.Hypotheses = append(c.Hypotheses, cases.Hypothesis{
				ID:        fmt.Sprintf("h%d", i+1),
				Statement: statement,
				Status:    cases.HypothesisOpen,
			})
		}
	}

	if err := or.store.Save(ctx, c); err != nil {
		return nil, err
	}
	if err := or.store.AppendEvent(ctx, caseID, "case_classified",
		fmt.Sprintf("%s via template %s", c.Classification, top.Name)); err != nil {
		return nil, err
	}
	return ranked, nil
}

// Resolve finishes a case: scores the matched template's effectiveness and,
// when it underperformed, a replacement template is learned from this case.
func (or *Orchestrator) Resolve(ctx context.Context, caseID string) (*templates.EffectivenessResult, error) {
	c, err := or.store.Load(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if c.State != cases.StateResolve && c.State != cases.StateReadyForSolution {
		return nil, &cases.GateError{From: c.State, To: cases.StateResolve,
			Reason: "case has not reached resolve; run next until it does"}
	}

	if or.templates == nil || c.TemplateID == "" {
		return nil, nil
	}
	tpl, err := or.templates.Get(ctx, c.TemplateID)
	if err != nil {
		if errors.Is(err, templates.ErrNotFound) {
			or.note("template %s no longer exists, skipping effectiveness scoring", c.TemplateID)
			return nil, nil
		}
		return nil, err
	}

	res, err := or.templates.ScoreEffectiveness(ctx, c, tpl)
	if err != nil {
		return nil, err
	}
	detail := fmt.Sprintf("template %s scored %d", tpl.Name, res.Score)
	if res.Learned != nil {
		detail += fmt.Sprintf("; learned template %s", res.Learned.Name)
	}
	return res, or.store.AppendEvent(ctx, caseID, "template_scored", detail)
}
