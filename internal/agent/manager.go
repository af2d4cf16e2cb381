package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/triagekit/triage/internal/cases"
	"github.com/triagekit/triage/internal/templates"
)

// ErrNotFound is returned when a session id does not resolve.
var ErrNotFound = errors.New("session not found")

// Manager persists agent sessions as one JSON file per session under
// <dir>/sessions/. Writes go to a temp file first and rename into place, so
// a crash mid-write never corrupts a session.
type Manager struct {
	dir   string
	store *cases.Store
}

// NewManager creates a session manager rooted at dir (the store directory;
// the sessions/ subdirectory is created on demand).
func NewManager(dir string, store *cases.Store) *Manager {
	return &Manager{dir: filepath.Join(dir, "sessions"), store: store}
}

func (m *Manager) path(id string) string {
	return filepath.Join(m.dir, id+".json")
}

const decisionContract = `You are a troubleshooting agent working one case through its lifecycle.
Propose exactly one action per turn as a JSON object:
{"thought": "...", "confidence": 0.0-1.0, "action": {"type": "answer_question|test_hypothesis|request_evidence|transition_state", ...}}
Omit "action" when nothing useful remains to do.`

// derivePersonality runs once at creation. The specialization is the
// template name, falling back to the case classification; the investigation
// plan copies the template's questions (all open) and the working theories
// its initial hypotheses.
func derivePersonality(c *cases.Case, tmpl *templates.Template, style string) Personality {
	p := Personality{Style: style, Specialization: "general troubleshooting"}
	if tmpl == nil {
		if c.Classification != "" {
			p.Specialization = c.Classification
		}
		return p
	}
	p.Specialization = tmpl.Name
	p.Keywords = append([]string(nil), tmpl.Keywords...)
	for _, q := range tmpl.Questions {
		p.Plan = append(p.Plan, PlanItem{Prompt: q.Prompt, Status: planOpen})
	}
	p.WorkingTheories = append([]string(nil), tmpl.InitialHypotheses...)
	return p
}

// systemPrompt builds the session's system message from its personality.
func systemPrompt(p Personality) string {
	var b strings.Builder
	b.WriteString(decisionContract)
	fmt.Fprintf(&b, "\nSpecialization: %s.", p.Specialization)
	if len(p.Keywords) > 0 {
		fmt.Fprintf(&b, "\nDomain keywords: %s.", strings.Join(p.Keywords, ", "))
	}
	if len(p.Plan) > 0 {
		b.WriteString("\nInvestigation plan:")
		for _, item := range p.Plan {
			b.WriteString("\n- " + item.Prompt)
		}
	}
	if len(p.WorkingTheories) > 0 {
		b.WriteString("\nWorking theories:")
		for _, theory := range p.WorkingTheories {
			b.WriteString("\n- " + theory)
		}
	}
	if p.Style != "" {
		b.WriteString("\nPersonality: " + p.Style)
	}
	return b.String()
}

// CreateSession starts a new active session bound to an existing case,
// deriving its personality from the given template (may be nil) and the
// case. The conversation is seeded with exactly two entries: the system
// prompt and an opening user message describing the case.
func (m *Manager) CreateSession(ctx context.Context, caseID string, tmpl *templates.Template, style string, limits Limits) (*Session, error) {
	c, err := m.store.Load(ctx, caseID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC().Truncate(time.Second)
	s := &Session{
		ID:          uuid.New().String(),
		CaseID:      caseID,
		Status:      StatusActive,
		RunState:    RunIdle,
		Personality: derivePersonality(c, tmpl, style),
		Limits:      limits,
		CreatedAt:   now,
		UpdatedAt:   now,
		StartedAt:   now,
	}
	s.Append("system", systemPrompt(s.Personality))
	s.Append("user", fmt.Sprintf("Case %s is in state %s.\nProblem: %s", c.ID, c.State, c.Problem))
	s.RefreshContext(c)

	if err := m.Save(s); err != nil {
		return nil, err
	}
	return s, nil
}

// Save writes the session atomically.
func (m *Manager) Save(s *Session) error {
	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return fmt.Errorf("creating sessions dir: %w", err)
	}
	s.UpdatedAt = time.Now().UTC().Truncate(time.Second)

	doc, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling session: %w", err)
	}

	tmp, err := os.CreateTemp(m.dir, "session-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp session file: %w", err)
	}
	if _, err := tmp.Write(doc); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing session: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing session file: %w", err)
	}
	if err := os.Rename(tmp.Name(), m.path(s.ID)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("installing session file: %w", err)
	}
	return nil
}

// Load retrieves a session by id. Returns ErrNotFound if absent.
func (m *Manager) Load(id string) (*Session, error) {
	doc, err := os.ReadFile(m.path(id))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading session: %w", err)
	}
	var s Session
	if err := json.Unmarshal(doc, &s); err != nil {
		return nil, fmt.Errorf("unmarshalling session %s: %w", id, err)
	}
	return &s, nil
}

// List returns every persisted session, newest first.
func (m *Manager) List() ([]*Session, error) {
	entries, err := os.ReadDir(m.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}

	var out []*Session
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		s, err := m.Load(strings.TrimSuffix(name, ".json"))
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// ListActive returns sessions that are active or paused.
func (m *Manager) ListActive() ([]*Session, error) {
	all, err := m.List()
	if err != nil {
		return nil, err
	}
	var out []*Session
	for _, s := range all {
		if !s.Terminal() {
			out = append(out, s)
		}
	}
	return out, nil
}

// Pause suspends an active session. Pausing anything else is an error.
func (m *Manager) Pause(id string) (*Session, error) {
	return m.setStatus(id, StatusPaused, "", func(s *Session) error {
		if s.Status != StatusActive {
			return fmt.Errorf("only active sessions can be paused (session is %s)", s.Status)
		}
		return nil
	})
}

// Resume reactivates a paused session.
func (m *Manager) Resume(id string) (*Session, error) {
	return m.setStatus(id, StatusActive, "", func(s *Session) error {
		if s.Status != StatusPaused {
			return fmt.Errorf("only paused sessions can be resumed (session is %s)", s.Status)
		}
		return nil
	})
}

// Terminate ends a session permanently from any non-terminal status.
func (m *Manager) Terminate(id, reason string) (*Session, error) {
	return m.setStatus(id, StatusTerminated, reason, func(s *Session) error {
		if s.Terminal() {
			return fmt.Errorf("session is already %s", s.Status)
		}
		return nil
	})
}

func (m *Manager) setStatus(id string, target SessionStatus, reason string, check func(*Session) error) (*Session, error) {
	s, err := m.Load(id)
	if err != nil {
		return nil, err
	}
	if err := check(s); err != nil {
		return nil, err
	}
	s.Status = target
	s.RunState = RunIdle
	if reason != "" {
		s.StopReason = reason
	}
	if err := m.Save(s); err != nil {
		return nil, err
	}
	return s, nil
}
