package store

import (
	"context"
	"fmt"
	"time"
)

// Activity types used across the system.
const (
	ActivityEmailSent         = "email_sent"
	ActivityEmailDrafted      = "email_drafted"
	ActivityEscalationDrafted = "escalation_drafted"
	ActivityEscalationCreated = "escalation_created"
	ActivityEscalationUpdated = "escalation_updated"
	ActivityObservation       = "observation"
	ActivityETAUpdated        = "eta_updated"
	ActivityLoadStatus        = "load_status"
)

// LogActivity appends an audit record of something the system did.
func (s *queries) LogActivity(ctx context.Context, a *Activity) error {
	if a.ID == "" {
		a.ID = NewID("act")
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO activities (id, agent_id, type, entity_id, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.AgentID, a.Type, a.EntityID, a.Description, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting activity: %w", err)
	}
	return nil
}

// ListActivities returns recent activities, newest first.
func (s *queries) ListActivities(ctx context.Context, limit int) ([]Activity, error) {
	query := `SELECT id, agent_id, type, entity_id, description, created_at
	          FROM activities ORDER BY created_at DESC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying activities: %w", err)
	}
	defer rows.Close()

	var acts []Activity
	for rows.Next() {
		var a Activity
		if err := rows.Scan(&a.ID, &a.AgentID, &a.Type, &a.EntityID, &a.Description, &a.CreatedAt); err != nil {
			continue
		}
		acts = append(acts, a)
	}
	return acts, rows.Err()
}

// LastActivityFor returns the most recent activity of the given type for an
// entity, or ErrNotFound.
func (s *queries) LastActivityFor(ctx context.Context, activityType, entityID string) (*Activity, error) {
	var a Activity
	err := s.q.QueryRowContext(ctx, `
		SELECT id, agent_id, type, entity_id, description, created_at
		FROM activities WHERE type = ? AND entity_id = ?
		ORDER BY created_at DESC LIMIT 1`, activityType, entityID).
		Scan(&a.ID, &a.AgentID, &a.Type, &a.EntityID, &a.Description, &a.CreatedAt)
	if err != nil {
		return nil, ErrNotFound
	}
	return &a, nil
}
