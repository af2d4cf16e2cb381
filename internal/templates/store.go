package templates

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/triagekit/triage/internal/db"
)

// ErrNotFound is returned when a template id does not resolve.
var ErrNotFound = errors.New("template not found")

// Store persists templates. Templates are never deleted, only disabled, so
// the history of learned templates is preserved.
type Store struct {
	db *db.DB
}

// NewStore creates a new template store.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Create inserts a new template. A missing id is generated.
func (s *Store) Create(ctx context.Context, t *Template) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	now := time.Now().UTC().Truncate(time.Second)
	t.CreatedAt = now
	t.UpdatedAt = now

	doc, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshalling template: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO templates (id, name, classification, enabled, learned_from, doc, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.Classification, boolToInt(t.Enabled), t.LearnedFrom, string(doc), t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting template: %w", err)
	}
	return nil
}

// Get retrieves a template by id.
func (s *Store) Get(ctx context.Context, id string) (*Template, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM templates WHERE id = ?`, id).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("template %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading template: %w", err)
	}
	var t Template
	if err := json.Unmarshal([]byte(doc), &t); err != nil {
		return nil, fmt.Errorf("unmarshalling template %s: %w", id, err)
	}
	return &t, nil
}

// List returns templates, optionally restricted to enabled ones.
func (s *Store) List(ctx context.Context, enabledOnly bool) ([]*Template, error) {
	query := `SELECT doc FROM templates`
	if enabledOnly {
		query += ` WHERE enabled = 1`
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing templates: %w", err)
	}
	defer rows.Close()

	var out []*Template
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scanning template row: %w", err)
		}
		var t Template
		if err := json.Unmarshal([]byte(doc), &t); err != nil {
			return nil, fmt.Errorf("unmarshalling template: %w", err)
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

// Disable soft-deletes a template. It remains loadable by id but stops
// matching new cases.
func (s *Store) Disable(ctx context.Context, id string) error {
	t, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	t.Enabled = false
	return s.update(ctx, t)
}

func (s *Store) update(ctx context.Context, t *Template) error {
	t.UpdatedAt = time.Now().UTC().Truncate(time.Second)
	doc, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshalling template: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE templates SET name = ?, classification = ?, enabled = ?, learned_from = ?, doc = ?, updated_at = ? WHERE id = ?`,
		t.Name, t.Classification, boolToInt(t.Enabled), t.LearnedFrom, string(doc), t.UpdatedAt, t.ID,
	)
	if err != nil {
		return fmt.Errorf("updating template: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("template %s: %w", t.ID, ErrNotFound)
	}
	return nil
}

// EnsureDefaults seeds the built-in templates if the table is empty.
func (s *Store) EnsureDefaults(ctx context.Context) error {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM templates`).Scan(&count); err != nil {
		return fmt.Errorf("counting templates: %w", err)
	}
	if count > 0 {
		return nil
	}
	for _, t := range builtinTemplates() {
		if err := s.Create(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
