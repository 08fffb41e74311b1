package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/troupelabs/troupe/pkg/models"
)

// ErrPlanNotFound indicates no plan document exists for a session.
var ErrPlanNotFound = errors.New("plan not found")

// PlanSummary is a row-level view of a stored plan, used for listing
// sessions without decoding full documents.
type PlanSummary struct {
	SessionID string
	Goal      string
	State     models.PlanState
	CreatedAt time.Time
	UpdatedAt time.Time
}

// StorePlan writes the full plan document for its session, replacing any
// previous version in a single statement. The derived plan state is stored
// alongside the document so listings never need to decode it.
func (db *DB) StorePlan(p *models.Plan) error {
	if p.SessionID == "" {
		return fmt.Errorf("store plan: empty session ID")
	}

	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}

	now := formatTime(time.Now())
	_, err = db.Exec(`
		INSERT INTO plans (session_id, goal, state, doc, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			goal = excluded.goal,
			state = excluded.state,
			doc = excluded.doc,
			updated_at = excluded.updated_at
	`, p.SessionID, p.Goal, string(p.State()), string(doc), formatTime(p.CreatedAt), now)
	if err != nil {
		return fmt.Errorf("store plan: %w", err)
	}
	return nil
}

// GetPlan loads the plan document for a session.
// Returns ErrPlanNotFound if none exists.
func (db *DB) GetPlan(sessionID string) (*models.Plan, error) {
	row := db.QueryRow("SELECT doc FROM plans WHERE session_id = ?", sessionID)

	var doc string
	err := row.Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrPlanNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get plan: %w", err)
	}

	var p models.Plan
	if err := json.Unmarshal([]byte(doc), &p); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	return &p, nil
}

// HasPlan reports whether a plan document exists for a session.
func (db *DB) HasPlan(sessionID string) (bool, error) {
	row := db.QueryRow("SELECT 1 FROM plans WHERE session_id = ?", sessionID)

	var one int
	err := row.Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check plan: %w", err)
	}
	return true, nil
}

// ListPlans returns summaries for all stored plans, newest first.
func (db *DB) ListPlans() ([]PlanSummary, error) {
	rows, err := db.Query(`
		SELECT session_id, goal, state, created_at, updated_at
		FROM plans ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	var out []PlanSummary
	for rows.Next() {
		var s PlanSummary
		var state, createdAt, updatedAt string
		if err := rows.Scan(&s.SessionID, &s.Goal, &state, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan plan summary: %w", err)
		}
		s.State = models.PlanState(state)
		s.CreatedAt, _ = parseTime(createdAt)
		s.UpdatedAt, _ = parseTime(updatedAt)
		out = append(out, s)
	}
	return out, rows.Err()
}

// DeletePlan removes a plan document and its message log.
func (db *DB) DeletePlan(sessionID string) error {
	if _, err := db.Exec("DELETE FROM plans WHERE session_id = ?", sessionID); err != nil {
		return fmt.Errorf("delete plan: %w", err)
	}
	if _, err := db.Exec("DELETE FROM messages WHERE session_id = ?", sessionID); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	return nil
}
