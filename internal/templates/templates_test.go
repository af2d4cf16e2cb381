package templates

import (
	"context"
	"errors"
	"testing"

	"github.com/triagekit/triage/internal/cases"
	"github.com/triagekit/triage/internal/db"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return NewStore(database)
}

func TestEnsureDefaultsSeedsOnce(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.EnsureDefaults(ctx); err != nil {
		t.Fatalf("EnsureDefaults: %v", err)
	}
	first, err := store.List(ctx, false)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(first) == 0 {
		t.Fatal("expected seeded templates")
	}

	// A second call must not duplicate.
	if err := store.EnsureDefaults(ctx); err != nil {
		t.Fatalf("EnsureDefaults (second): %v", err)
	}
	second, err := store.List(ctx, false)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(second) != len(first) {
		t.Errorf("second seed changed count: %d -> %d", len(first), len(second))
	}
}

func TestDisableIsSoftDelete(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	tpl := &Template{Name: "try", Classification: "misc", Enabled: true}
	if err := store.Create(ctx, tpl); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := store.Disable(ctx, tpl.ID); err != nil {
		t.Fatalf("Disable: %v", err)
	}

	// Still loadable by id.
	got, err := store.Get(ctx, tpl.ID)
	if err != nil {
		t.Fatalf("Get after disable: %v", err)
	}
	if got.Enabled {
		t.Error("template should be disabled")
	}

	// No longer listed among enabled.
	enabled, err := store.List(ctx, true)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	for _, e := range enabled {
		if e.ID == tpl.ID {
			t.Error("disabled template still listed as enabled")
		}
	}
}

func TestGetNotFound(t *testing.T) {
	store := setupTestStore(t)
	if _, err := store.Get(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMatchRanksByRelevance(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	if err := store.EnsureDefaults(ctx); err != nil {
		t.Fatalf("EnsureDefaults: %v", err)
	}

	matcher := NewMatcher(store, nil)
	ranked, err := matcher.Match(ctx,
		"users cannot log in, API returns 401 Unauthorized after the token service deploy",
		"401 Unauthorized\ntoken expired")
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if len(ranked) == 0 {
		t.Fatal("expected at least one match")
	}
	if ranked[0].Template.Classification != "auth" {
		t.Errorf("top match = %q, want auth (scores: %+v)", ranked[0].Template.Classification, ranked)
	}
	if len(ranked[0].Reasons) == 0 {
		t.Error("top match should explain its reasons")
	}
}

func TestMatchIgnoresDisabledTemplates(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	if err := store.EnsureDefaults(ctx); err != nil {
		t.Fatalf("EnsureDefaults: %v", err)
	}
	if err := store.Disable(ctx, "builtin-auth"); err != nil {
		t.Fatalf("Disable: %v", err)
	}

	matcher := NewMatcher(store, nil)
	ranked, err := matcher.Match(ctx, "401 Unauthorized login failure", "401 Unauthorized")
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	for _, r := range ranked {
		if r.Template.ID == "builtin-auth" {
			t.Error("disabled template should not match")
		}
	}
}

func resolvedCase() *cases.Case {
	return &cases.Case{
		ID:             "case-1",
		State:          cases.StateResolve,
		Problem:        "checkout 502s",
		Classification: "network",
		Scope: &cases.ProblemScope{
			Version: 1, Summary: "network failures at the edge",
			AffectedComponents: []string{"edge-proxy"}, Confirmed: true,
		},
		Questions: []cases.Question{
			{ID: "q1", Prompt: "exact error?", Required: true, Status: cases.QuestionAnswered, Answer: "502"},
			{ID: "q2", Prompt: "since when?", Required: true, Status: cases.QuestionAnswered, Answer: "14:00"},
		},
		Hypotheses: []cases.Hypothesis{
			{ID: "h1", Statement: "proxy misconfig", Status: cases.HypothesisValidated},
			{ID: "h2", Statement: "DNS", Status: cases.HypothesisDisproven},
		},
	}
}

func TestScoreEffectivenessHighScoreNoLearning(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	tpl := &Template{Name: "net", Classification: "network", Enabled: true}
	if err := store.Create(ctx, tpl); err != nil {
		t.Fatalf("Create: %v", err)
	}

	res, err := store.ScoreEffectiveness(ctx, resolvedCase(), tpl)
	if err != nil {
		t.Fatalf("ScoreEffectiveness: %v", err)
	}
	// 50 baseline + 20 classification + 15 (1/2 validated) + 20 questions = 100 (clamped).
	if res.Score < learnThreshold {
		t.Errorf("Score = %d, want >= %d", res.Score, learnThreshold)
	}
	if res.Learned != nil {
		t.Error("no template should be learned at a high score")
	}
}

func TestScoreEffectivenessLowScoreLearnsTemplate(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	tpl := &Template{Name: "wrong guess", Classification: "auth", Enabled: true}
	if err := store.Create(ctx, tpl); err != nil {
		t.Fatalf("Create: %v", err)
	}

	c := resolvedCase()
	// A poorly matched run: nothing validated, questions unanswered.
	c.Hypotheses = []cases.Hypothesis{{ID: "h1", Status: cases.HypothesisDisproven}}
	c.Questions = []cases.Question{
		{ID: "q1", Prompt: "exact error?", Required: true, Status: cases.QuestionOpen},
	}

	res, err := store.ScoreEffectiveness(ctx, c, tpl)
	if err != nil {
		t.Fatalf("ScoreEffectiveness: %v", err)
	}
	if res.Score >= learnThreshold {
		t.Fatalf("Score = %d, want < %d", res.Score, learnThreshold)
	}
	if res.Learned == nil {
		t.Fatal("expected a learned template")
	}
	if res.Learned.ID == tpl.ID {
		t.Error("learned template must be distinct from the original")
	}
	if !res.Learned.Enabled {
		t.Error("learned template should start enabled")
	}
	if res.Learned.LearnedFrom != c.ID {
		t.Errorf("LearnedFrom = %q, want %q", res.Learned.LearnedFrom, c.ID)
	}

	// It must have been persisted.
	if _, err := store.Get(ctx, res.Learned.ID); err != nil {
		t.Errorf("learned template not stored: %v", err)
	}

	// The original survives untouched.
	orig, err := store.Get(ctx, tpl.ID)
	if err != nil {
		t.Fatalf("Get original: %v", err)
	}
	if !orig.Enabled {
		t.Error("original template must not be disabled by scoring")
	}
}

func TestSynthesizeFromCaseContents(t *testing.T) {
	c := resolvedCase()
	learned := SynthesizeFromCase(c, nil)

	if len(learned.Questions) != 2 {
		t.Errorf("learned %d questions, want 2 (answered only)", len(learned.Questions))
	}
	if len(learned.InitialHypotheses) != 1 || learned.InitialHypotheses[0] != "proxy misconfig" {
		t.Errorf("InitialHypotheses = %v, want validated only", learned.InitialHypotheses)
	}
	if learned.Classification != "network" {
		t.Errorf("Classification = %q", learned.Classification)
	}
}
