package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/triagekit/triage/internal/cases"
	"github.com/triagekit/triage/internal/db"
	"github.com/triagekit/triage/internal/oracle"
	"github.com/triagekit/triage/internal/orchestrator"
	"github.com/triagekit/triage/internal/templates"
)

// countingOracle counts prompts, records them, and replays scripted
// decision JSON.
type countingOracle struct {
	replies []string
	calls   int
	prompts []string
}

func (o *countingOracle) Name() string                                          { return "counting" }
func (o *countingOracle) Start(ctx context.Context, s oracle.SessionInfo) error { return nil }
func (o *countingOracle) Stop() error                                           { return nil }
func (o *countingOracle) Prompt(ctx context.Context, message string, history []oracle.Message) (string, error) {
	o.prompts = append(o.prompts, message)
	if o.calls >= len(o.replies) {
		return `{"thought": "nothing left"}`, nil
	}
	reply := o.replies[o.calls]
	o.calls++
	return reply, nil
}

func setup(t *testing.T) (*Manager, *orchestrator.Orchestrator, *cases.Store) {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("opening db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	store := cases.NewStore(database)
	manager := NewManager(t.TempDir(), store)
	orch := orchestrator.New(store, nil, nil, nil)
	return manager, orch, store
}

func newSession(t *testing.T, m *Manager, store *cases.Store, limits Limits) *Session {
	t.Helper()
	c, err := store.Create(context.Background(), "checkout errors spiking")
	if err != nil {
		t.Fatalf("creating case: %v", err)
	}
	s, err := m.CreateSession(context.Background(), c.ID, nil, "", limits)
	if err != nil {
		t.Fatalf("creating session: %v", err)
	}
	return s
}

func TestCreateSessionSeedsConversation(t *testing.T) {
	m, _, store := setup(t)
	s := newSession(t, m, store, Limits{MaxIterations: 10, MaxDuration: time.Minute})

	if s.Status != StatusActive {
		t.Errorf("status = %s, want active", s.Status)
	}
	if len(s.Context.History) != 2 {
		t.Fatalf("history len = %d, want exactly 2 seed entries", len(s.Context.History))
	}
	if s.Context.History[0].Role != "system" || s.Context.History[1].Role != "user" {
		t.Errorf("seed roles = %s, %s; want system, user", s.Context.History[0].Role, s.Context.History[1].Role)
	}
	if s.Personality.Specialization != "general troubleshooting" {
		t.Errorf("specialization = %q, want the classification fallback", s.Personality.Specialization)
	}
}

func TestCreateSessionDerivesPersonalityFromTemplate(t *testing.T) {
	m, _, store := setup(t)
	c, err := store.Create(context.Background(), "login requests failing with 401")
	if err != nil {
		t.Fatalf("creating case: %v", err)
	}

	tmpl := &templates.Template{
		ID:             "tpl-auth",
		Name:           "Authentication Failures",
		Classification: "authentication",
		Keywords:       []string{"401", "token"},
		Questions: []templates.TemplateQuestion{
			{Prompt: "What is the exact error code?", Required: true},
			{Prompt: "When did tokens last rotate?"},
		},
		InitialHypotheses: []string{"Expired signing key"},
	}
	s, err := m.CreateSession(context.Background(), c.ID, tmpl, "terse", Limits{MaxIterations: 5, MaxDuration: time.Minute})
	if err != nil {
		t.Fatalf("creating session: %v", err)
	}

	p := s.Personality
	if p.Specialization != "Authentication Failures" {
		t.Errorf("specialization = %q, want the template name", p.Specialization)
	}
	if len(p.Plan) != 2 || p.Plan[0].Prompt != "What is the exact error code?" || p.Plan[0].Status != "open" {
		t.Errorf("plan = %+v, want both template questions tagged open", p.Plan)
	}
	if len(p.WorkingTheories) != 1 || p.WorkingTheories[0] != "Expired signing key" {
		t.Errorf("working theories = %v, want the template hypotheses", p.WorkingTheories)
	}

	sys := s.SystemPrompt()
	for _, want := range []string{"Authentication Failures", "401, token", "When did tokens last rotate?", "Expired signing key", "terse"} {
		if !strings.Contains(sys, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}
}

func TestRefreshContextSnapshotsCase(t *testing.T) {
	m, _, store := setup(t)
	c, err := store.Create(context.Background(), "checkout errors spiking")
	if err != nil {
		t.Fatalf("creating case: %v", err)
	}
	tmpl := &templates.Template{
		ID:   "tpl-net",
		Name: "Network Faults",
		Questions: []templates.TemplateQuestion{
			{Prompt: "Which load balancer serves the traffic?"},
		},
	}
	s, err := m.CreateSession(context.Background(), c.ID, tmpl, "", Limits{MaxIterations: 5, MaxDuration: time.Minute})
	if err != nil {
		t.Fatalf("creating session: %v", err)
	}

	c.Questions = []cases.Question{
		{ID: "q1", Prompt: "Which load balancer serves the traffic?", Status: cases.QuestionAnswered, Answer: "lb-eu-1"},
		{ID: "q2", Prompt: "Any recent deploys?", Status: cases.QuestionOpen},
	}
	c.Hypotheses = []cases.Hypothesis{{ID: "h1", Statement: "LB drain misfired", Status: cases.HypothesisOpen}}
	c.Evidence = []cases.Evidence{{ID: "e1", Source: "gateway.log", Tags: []string{"logs"}}}
	s.RefreshContext(c)

	if len(s.Context.Answered) != 1 || s.Context.Answered[0].Answer != "lb-eu-1" {
		t.Errorf("answered snapshot = %+v, want q1 with lb-eu-1", s.Context.Answered)
	}
	if len(s.Context.Evidence) != 1 || s.Context.Evidence[0].Source != "gateway.log" {
		t.Errorf("evidence snapshot = %+v", s.Context.Evidence)
	}
	if len(s.Context.Hypotheses) != 1 || s.Context.Hypotheses[0].ID != "h1" {
		t.Errorf("hypothesis snapshot = %+v", s.Context.Hypotheses)
	}
	if s.Personality.Plan[0].Status != "answered" {
		t.Errorf("plan item = %+v, want answered once the case answers it", s.Personality.Plan[0])
	}
	if got := len(s.Personality.OpenPlan()); got != 0 {
		t.Errorf("open plan len = %d, want 0", got)
	}
}

func TestSessionRoundTrip(t *testing.T) {
	m, _, store := setup(t)
	s := newSession(t, m, store, Limits{MaxIterations: 3, MaxDuration: time.Minute})
	s.Append("assistant", `{"thought": "looking at the logs"}`)
	s.Metrics.Iterations = 1
	if err := m.Save(s); err != nil {
		t.Fatalf("saving session: %v", err)
	}

	got, err := m.Load(s.ID)
	if err != nil {
		t.Fatalf("loading session: %v", err)
	}
	if len(got.Context.History) != 3 {
		t.Fatalf("history len = %d, want 3", len(got.Context.History))
	}
	for i, e := range got.Context.History {
		if e.Timestamp.IsZero() {
			t.Errorf("entry %d has zero timestamp", i)
		}
		if e.Role != s.Context.History[i].Role || e.Content != s.Context.History[i].Content {
			t.Errorf("entry %d mismatch after round trip", i)
		}
	}
	if got.Metrics.Iterations != 1 {
		t.Errorf("iterations = %d, want 1", got.Metrics.Iterations)
	}
}

func TestLoadMissingSession(t *testing.T) {
	m, _, _ := setup(t)
	if _, err := m.Load("ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPauseResumeRules(t *testing.T) {
	m, _, store := setup(t)
	s := newSession(t, m, store, Limits{MaxIterations: 3, MaxDuration: time.Minute})

	if _, err := m.Resume(s.ID); err == nil {
		t.Error("resuming an active session should fail")
	}
	if _, err := m.Pause(s.ID); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if _, err := m.Pause(s.ID); err == nil {
		t.Error("pausing a paused session should fail")
	}
	if _, err := m.Resume(s.ID); err != nil {
		t.Fatalf("Resume: %v", err)
	}

	if _, err := m.Terminate(s.ID, "operator stop"); err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	got, _ := m.Load(s.ID)
	if got.Status != StatusTerminated || got.StopReason != "operator stop" {
		t.Errorf("session = %s/%q, want terminated/operator stop", got.Status, got.StopReason)
	}
	if _, err := m.Resume(s.ID); err == nil {
		t.Error("terminated sessions must never resume")
	}
	if _, err := m.Terminate(s.ID, "again"); err == nil {
		t.Error("terminating twice should fail")
	}
}

func TestRunZeroIterationsMakesNoOracleCalls(t *testing.T) {
	m, orch, store := setup(t)
	s := newSession(t, m, store, Limits{MaxIterations: 0, MaxDuration: time.Minute})

	o := &countingOracle{}
	runner := NewRunner(m, orch, o, AutoApprove{}, nil)
	res, err := runner.Run(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if o.calls != 0 {
		t.Errorf("oracle calls = %d, want 0 when the iteration cap is 0", o.calls)
	}
	if res.Status != StatusCompleted {
		t.Errorf("status = %s, want completed", res.Status)
	}
	if res.StopReason == "" {
		t.Error("stop reason must name the cap")
	}
}

func TestRunStopsWhenOracleHasNoAction(t *testing.T) {
	m, orch, store := setup(t)
	s := newSession(t, m, store, Limits{MaxIterations: 10, MaxDuration: time.Minute, AutoApprove: true})

	o := &countingOracle{replies: []string{`{"thought": "nothing actionable here"}`}}
	runner := NewRunner(m, orch, o, AutoApprove{}, nil)
	res, err := runner.Run(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if o.calls != 1 {
		t.Errorf("oracle calls = %d, want 1", o.calls)
	}
	if res.Status != StatusCompleted || res.StopReason != "oracle proposed no further action" {
		t.Errorf("result = %s/%q", res.Status, res.StopReason)
	}

	got, _ := m.Load(s.ID)
	if got.Metrics.Iterations != 1 {
		t.Errorf("iterations = %d, want 1", got.Metrics.Iterations)
	}
	// seed system + seed user + context prompt + assistant reply
	if len(got.Context.History) != 4 {
		t.Errorf("history len = %d, want 4", len(got.Context.History))
	}
	if len(o.prompts) != 1 || !strings.Contains(o.prompts[0], "Iteration 1 of 10") {
		t.Errorf("context prompt must carry the iteration count and cap, got %q", o.prompts)
	}
}

func TestRunDurationWindowStartsAtRun(t *testing.T) {
	m, orch, store := setup(t)
	s := newSession(t, m, store, Limits{MaxIterations: 10, MaxDuration: time.Minute})

	// A session created long before its first run must still get a full
	// duration window.
	s.StartedAt = time.Now().UTC().Add(-2 * time.Hour)
	if err := m.Save(s); err != nil {
		t.Fatalf("saving session: %v", err)
	}

	o := &countingOracle{}
	runner := NewRunner(m, orch, o, AutoApprove{}, nil)
	res, err := runner.Run(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(o.prompts) != 1 {
		t.Errorf("oracle calls = %d, want 1; anchoring the window at creation would stop on the duration cap first", len(o.prompts))
	}
	if res.StopReason != "oracle proposed no further action" {
		t.Errorf("stop reason = %q", res.StopReason)
	}
}

func TestRunApprovalDeclinedBlocksTransition(t *testing.T) {
	m, orch, store := setup(t)
	s := newSession(t, m, store, Limits{MaxIterations: 10, MaxDuration: time.Minute})

	o := &countingOracle{replies: []string{
		`{"thought": "gates look clear", "action": {"type": "transition_state", "target_state": "normalize"}}`,
		`{"thought": "operator declined, stopping"}`,
	}}
	approval := &ScriptedApproval{Verdicts: []bool{false}}
	runner := NewRunner(m, orch, o, approval, nil)
	res, err := runner.Run(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(approval.Asked) != 1 {
		t.Fatalf("approvals asked = %d, want 1", len(approval.Asked))
	}
	got, _ := store.Load(context.Background(), s.CaseID)
	if got.State != cases.StateIntake {
		t.Errorf("state = %s, declined transition must not move the case", got.State)
	}
	sess, _ := m.Load(s.ID)
	if sess.Metrics.ActionsDenied != 1 {
		t.Errorf("ActionsDenied = %d, want 1", sess.Metrics.ActionsDenied)
	}
	if res.Status != StatusCompleted {
		t.Errorf("status = %s, want completed after the follow-up no-action turn", res.Status)
	}
}

func TestRunExecutesApprovedAnswer(t *testing.T) {
	m, orch, store := setup(t)
	s := newSession(t, m, store, Limits{MaxIterations: 10, MaxDuration: time.Minute, AutoApprove: true})

	c, _ := store.Load(context.Background(), s.CaseID)
	c.Questions = []cases.Question{{ID: "q1", Prompt: "Error code?", Required: true, Status: cases.QuestionOpen}}
	if err := store.Save(context.Background(), c); err != nil {
		t.Fatalf("saving case: %v", err)
	}

	o := &countingOracle{replies: []string{
		`{"thought": "evidence shows 503", "action": {"type": "answer_question", "question_id": "q1", "answer": "503"}}`,
	}}
	runner := NewRunner(m, orch, o, AutoApprove{}, nil)
	if _, err := runner.Run(context.Background(), s.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, _ := store.Load(context.Background(), s.CaseID)
	q := got.FindQuestion("q1")
	if q.Status != cases.QuestionAnswered || q.Answer != "503" {
		t.Errorf("question = %+v, want answered 503", q)
	}
	sess, _ := m.Load(s.ID)
	if sess.Metrics.QuestionsAnswered != 1 {
		t.Errorf("QuestionsAnswered = %d, want 1", sess.Metrics.QuestionsAnswered)
	}
	if len(sess.Context.Answered) != 1 || sess.Context.Answered[0].ID != "q1" {
		t.Errorf("answered snapshot = %+v, want q1", sess.Context.Answered)
	}
}

func TestRunDeniedPatternHaltsRun(t *testing.T) {
	m, orch, store := setup(t)
	s := newSession(t, m, store, Limits{
		MaxIterations: 5,
		MaxDuration:   time.Minute,
		AutoApprove:   true,
		DeniedActions: []string{"rm -rf"},
	})

	// The oracle keeps proposing the same denied action; the run must halt
	// at the first match, never ride the loop to the iteration cap.
	denied := `{"thought": "cleanup", "action": {"type": "request_evidence", "evidence_request": "run rm -rf /var/log and send output"}}`
	o := &countingOracle{replies: []string{denied, denied, denied, denied, denied}}
	runner := NewRunner(m, orch, o, AutoApprove{}, nil)
	res, err := runner.Run(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(o.prompts) != 1 {
		t.Errorf("oracle calls = %d, want 1 (halt at the first denied match)", len(o.prompts))
	}
	if res.Status != StatusFailed {
		t.Errorf("status = %s, want failed on a safety violation", res.Status)
	}
	if !strings.Contains(res.StopReason, "safety violation") || !strings.Contains(res.StopReason, "rm -rf") {
		t.Errorf("stop reason = %q, want a specific safety-violation message", res.StopReason)
	}
	sess, _ := m.Load(s.ID)
	if sess.Metrics.ActionsDenied != 1 {
		t.Errorf("ActionsDenied = %d, want 1", sess.Metrics.ActionsDenied)
	}
	if sess.Status != StatusFailed {
		t.Errorf("persisted status = %s, want failed", sess.Status)
	}
}

func TestRunEvidenceRequestPausesSession(t *testing.T) {
	m, orch, store := setup(t)
	s := newSession(t, m, store, Limits{MaxIterations: 10, MaxDuration: time.Minute, AutoApprove: true})

	o := &countingOracle{replies: []string{
		`{"thought": "need logs", "action": {"type": "request_evidence", "evidence_request": "attach the gateway access log"}}`,
	}}
	runner := NewRunner(m, orch, o, AutoApprove{}, nil)
	res, err := runner.Run(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Status != StatusPaused {
		t.Errorf("status = %s, want paused while awaiting evidence", res.Status)
	}
	sess, _ := m.Load(s.ID)
	if sess.Status != StatusPaused {
		t.Errorf("persisted status = %s, want paused", sess.Status)
	}
	if sess.StopReason == "" {
		t.Error("stop reason should carry the evidence request")
	}
	if sess.Metrics.EvidenceRequests != 1 {
		t.Errorf("EvidenceRequests = %d, want 1", sess.Metrics.EvidenceRequests)
	}
	if len(sess.Context.PendingActions) != 1 || !strings.Contains(sess.Context.PendingActions[0], "gateway access log") {
		t.Errorf("pending actions = %v, want the outstanding evidence request", sess.Context.PendingActions)
	}
}

func TestRunRejectedSessionStates(t *testing.T) {
	m, orch, store := setup(t)
	s := newSession(t, m, store, Limits{MaxIterations: 1, MaxDuration: time.Minute})

	runner := NewRunner(m, orch, &countingOracle{}, AutoApprove{}, nil)

	if _, err := m.Pause(s.ID); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if _, err := runner.Run(context.Background(), s.ID); err == nil {
		t.Error("running a paused session should fail")
	}

	if _, err := m.Resume(s.ID); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if _, err := m.Terminate(s.ID, "done"); err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	if _, err := runner.Run(context.Background(), s.ID); err == nil {
		t.Error("running a terminated session should fail")
	}
}

func TestClassifyImpactTiers(t *testing.T) {
	tests := []struct {
		kind oracle.ActionKind
		want Impact
	}{
		{oracle.ActionAnswerQuestion, ImpactLow},
		{oracle.ActionTestHypothesis, ImpactLow},
		{oracle.ActionRequestEvidence, ImpactMedium},
		{oracle.ActionTransitionState, ImpactHigh},
	}
	for _, tt := range tests {
		if got := ClassifyImpact(&oracle.Action{Kind: tt.kind}); got != tt.want {
			t.Errorf("ClassifyImpact(%s) = %s, want %s", tt.kind, got, tt.want)
		}
	}
}
