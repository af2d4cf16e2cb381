package cases

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/triagekit/triage/internal/db"
)

// ErrNotFound is returned when a case id does not resolve.
var ErrNotFound = errors.New("case not found")

// Store persists cases and their append-only event logs.
type Store struct {
	db *db.DB
}

// NewStore creates a new case store.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Create inserts a new case in the intake state.
func (s *Store) Create(ctx context.Context, problem string) (*Case, error) {
	now := time.Now().UTC().Truncate(time.Second)
	c := &Case{
		ID:        uuid.New().String(),
		State:     StateIntake,
		Problem:   problem,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.insert(ctx, c); err != nil {
		return nil, err
	}
	if err := s.AppendEvent(ctx, c.ID, "case_created", problem); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Store) insert(ctx context.Context, c *Case) error {
	doc, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling case: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO cases (id, state, classification, doc, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.State, c.Classification, string(doc), c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting case: %w", err)
	}
	return nil
}

// Save writes the full case document back to the store. Last writer wins;
// one controller operates a case at a time by design.
func (s *Store) Save(ctx context.Context, c *Case) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid case: %w", err)
	}
	c.UpdatedAt = time.Now().UTC().Truncate(time.Second)

	doc, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling case: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE cases SET state = ?, classification = ?, doc = ?, updated_at = ? WHERE id = ?`,
		c.State, c.Classification, string(doc), c.UpdatedAt, c.ID,
	)
	if err != nil {
		return fmt.Errorf("updating case: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Load retrieves a case by id. Returns ErrNotFound if the id does not resolve.
func (s *Store) Load(ctx context.Context, id string) (*Case, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM cases WHERE id = ?`, id).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("case %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading case: %w", err)
	}

	var c Case
	if err := json.Unmarshal([]byte(doc), &c); err != nil {
		return nil, fmt.Errorf("unmarshalling case %s: %w", id, err)
	}
	return &c, nil
}

// ListFilter controls which cases List returns.
type ListFilter struct {
	State          State
	Classification string
	Limit          int
}

// List returns cases matching the filter, most recently updated first.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]*Case, error) {
	query := `SELECT doc FROM cases WHERE 1=1`
	args := []interface{}{}

	if filter.State != "" {
		query += " AND state = ?"
		args = append(args, filter.State)
	}
	if filter.Classification != "" {
		query += " AND classification = ?"
		args = append(args, filter.Classification)
	}
	query += " ORDER BY updated_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing cases: %w", err)
	}
	defer rows.Close()

	var out []*Case
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scanning case row: %w", err)
		}
		var c Case
		if err := json.Unmarshal([]byte(doc), &c); err != nil {
			return nil, fmt.Errorf("unmarshalling case: %w", err)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// AppendEvent records an entry in the case's append-only event log.
func (s *Store) AppendEvent(ctx context.Context, caseID, eventType, detail string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO case_events (case_id, type, detail, created_at) VALUES (?, ?, ?, ?)`,
		caseID, eventType, detail, time.Now().UTC().Truncate(time.Second),
	)
	if err != nil {
		return fmt.Errorf("appending event: %w", err)
	}
	return nil
}

// Events returns the case's event log in append order.
func (s *Store) Events(ctx context.Context, caseID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, type, detail, created_at FROM case_events WHERE case_id = ? ORDER BY id ASC`,
		caseID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Type, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning event row: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// DeleteAll removes every case and its events. When backupPath is non-empty
// a JSON dump of all case documents is written there first.
func (s *Store) DeleteAll(ctx context.Context, backupPath string) (int, error) {
	if backupPath != "" {
		all, err := s.List(ctx, ListFilter{})
		if err != nil {
			return 0, fmt.Errorf("collecting cases for backup: %w", err)
		}
		dump, err := json.MarshalIndent(all, "", "  ")
		if err != nil {
			return 0, fmt.Errorf("marshalling backup: %w", err)
		}
		if err := os.WriteFile(backupPath, dump, 0644); err != nil {
			return 0, fmt.Errorf("writing backup to %s: %w", backupPath, err)
		}
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM case_events`); err != nil {
		return 0, fmt.Errorf("clearing events: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM cases`)
	if err != nil {
		return 0, fmt.Errorf("clearing cases: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
