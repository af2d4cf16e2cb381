package cases

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

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

func TestCreateAndLoad(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	c, err := store.Create(ctx, "checkout fails with 502")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if c.State != StateIntake {
		t.Errorf("new case state = %s, want intake", c.State)
	}

	got, err := store.Load(ctx, c.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Problem != "checkout fails with 502" {
		t.Errorf("Problem = %q", got.Problem)
	}
	if !got.CreatedAt.Equal(c.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, c.CreatedAt)
	}
}

func TestLoadNotFound(t *testing.T) {
	store := setupTestStore(t)
	_, err := store.Load(context.Background(), "no-such-id")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveRoundTripsFullDocument(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	c, err := store.Create(ctx, "p")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	c.State = StateClassify
	c.Classification = "network"
	c.Questions = []Question{{ID: "q1", Prompt: "What is the exact error code?", Required: true, Status: QuestionOpen}}
	c.Hypotheses = []Hypothesis{{ID: "h1", Statement: "LB misconfig", Status: HypothesisOpen}}
	c.Scope = &ProblemScope{Version: 1, Summary: "502s at the edge", Confirmed: true}

	if err := store.Save(ctx, c); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Load(ctx, c.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.State != StateClassify || got.Classification != "network" {
		t.Errorf("state/classification = %s/%s", got.State, got.Classification)
	}
	if len(got.Questions) != 1 || got.Questions[0].Prompt != "What is the exact error code?" {
		t.Errorf("questions did not round-trip: %+v", got.Questions)
	}
	if got.Scope == nil || !got.Scope.Confirmed {
		t.Error("scope did not round-trip")
	}
}

func TestSaveRejectsInvalidCase(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	c, err := store.Create(ctx, "p")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	c.State = State("limbo")
	if err := store.Save(ctx, c); err == nil {
		t.Error("expected error saving a case with an unknown state")
	}
}

func TestSaveUnknownCase(t *testing.T) {
	store := setupTestStore(t)
	c := &Case{ID: "ghost", State: StateIntake, Problem: "p"}
	if err := store.Save(context.Background(), c); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListFilters(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	a, _ := store.Create(ctx, "a")
	b, _ := store.Create(ctx, "b")
	b.State = StateNormalize
	b.Classification = "auth"
	if err := store.Save(ctx, b); err != nil {
		t.Fatalf("Save: %v", err)
	}

	all, err := store.List(ctx, ListFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("len(all) = %d, want 2", len(all))
	}

	intakeOnly, err := store.List(ctx, ListFilter{State: StateIntake})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(intakeOnly) != 1 || intakeOnly[0].ID != a.ID {
		t.Errorf("state filter returned %d cases", len(intakeOnly))
	}

	authOnly, err := store.List(ctx, ListFilter{Classification: "auth"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(authOnly) != 1 || authOnly[0].ID != b.ID {
		t.Errorf("classification filter returned %d cases", len(authOnly))
	}
}

func TestEventLogAppendOrder(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	c, _ := store.Create(ctx, "p")
	if err := store.AppendEvent(ctx, c.ID, "answer_added", "q1"); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}
	if err := store.AppendEvent(ctx, c.ID, "state_changed", "intake -> normalize"); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}

	events, err := store.Events(ctx, c.ID)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	// case_created + two appended.
	if len(events) != 3 {
		t.Fatalf("len(events) = %d, want 3", len(events))
	}
	if events[1].Type != "answer_added" || events[2].Type != "state_changed" {
		t.Errorf("events out of order: %+v", events)
	}
}

func TestDeleteAllWithBackup(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	store.Create(ctx, "a")
	store.Create(ctx, "b")

	backup := filepath.Join(t.TempDir(), "cases-backup.json")
	n, err := store.DeleteAll(ctx, backup)
	if err != nil {
		t.Fatalf("DeleteAll: %v", err)
	}
	if n != 2 {
		t.Errorf("deleted %d, want 2", n)
	}

	if _, err := os.Stat(backup); err != nil {
		t.Errorf("backup file missing: %v", err)
	}

	remaining, err := store.List(ctx, ListFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(remaining) != 0 {
		t.Errorf("%d cases remain after DeleteAll", len(remaining))
	}
}
