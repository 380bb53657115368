package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const escalationColumns = `id, site_id, load_id, carrier_id, issue_type, priority,
       status, description, source, false_alarm, created_at, updated_at, resolved_at`

// CreateEscalation inserts an escalation, assigning an ID when none is set.
func (s *queries) CreateEscalation(ctx context.Context, e *Escalation) error {
	if e.ID == "" {
		e.ID = NewID("esc")
	}
	if e.Status == "" {
		e.Status = EscalationOpen
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = e.CreatedAt
	}
	if !ValidPriority(e.Priority) {
		return fmt.Errorf("unknown priority %q", e.Priority)
	}

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO escalations (`+escalationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SiteID, e.LoadID, e.CarrierID, e.IssueType, e.Priority,
		e.Status, e.Description, e.Source, e.FalseAlarm,
		e.CreatedAt, e.UpdatedAt, nullTime(e.ResolvedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting escalation: %w", err)
	}
	return nil
}

// GetEscalation returns an escalation by ID.
func (s *queries) GetEscalation(ctx context.Context, id string) (*Escalation, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+escalationColumns+` FROM escalations WHERE id = ?`, id)
	return scanEscalation(row)
}

// FindOpenEscalation looks for an unresolved escalation matching the same
// entity and issue type. Used to update an existing record in place instead
// of stacking duplicates across monitoring cycles.
func (s *queries) FindOpenEscalation(ctx context.Context, siteID, loadID, issueType string) (*Escalation, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT `+escalationColumns+` FROM escalations
		WHERE site_id = ? AND load_id = ? AND issue_type = ? AND status != ?
		ORDER BY created_at DESC LIMIT 1`,
		siteID, loadID, issueType, EscalationResolved)
	return scanEscalation(row)
}

// ListOpenEscalations returns all unresolved escalations, newest first.
func (s *queries) ListOpenEscalations(ctx context.Context) ([]Escalation, error) {
	return s.listEscalations(ctx, `
		SELECT `+escalationColumns+` FROM escalations
		WHERE status != ? ORDER BY created_at DESC`, EscalationResolved)
}

// ListEscalations returns every escalation, oldest first. Used by history
// replay.
func (s *queries) ListEscalations(ctx context.Context) ([]Escalation, error) {
	return s.listEscalations(ctx, `
		SELECT `+escalationColumns+` FROM escalations ORDER BY created_at`)
}

// ListEscalationsByCarrier returns all escalations tied to a carrier.
func (s *queries) ListEscalationsByCarrier(ctx context.Context, carrierID string) ([]Escalation, error) {
	return s.listEscalations(ctx, `
		SELECT `+escalationColumns+` FROM escalations
		WHERE carrier_id = ? ORDER BY created_at DESC`, carrierID)
}

// UpdateEscalationDescription refreshes the description of an open
// escalation and bumps updated_at.
func (s *queries) UpdateEscalationDescription(ctx context.Context, id, description, priority string, at time.Time) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE escalations SET description = ?, priority = ?, updated_at = ?
		WHERE id = ? AND status != ?`,
		description, priority, at, id, EscalationResolved)
	if err != nil {
		return fmt.Errorf("updating escalation description: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("escalation %s: %w", id, ErrNotFound)
	}
	return nil
}

// TransitionEscalation moves an escalation along the one-directional status
// machine open → in_progress → resolved. Skipping in_progress is allowed;
// moving backwards or out of resolved is not. falseAlarm is only meaningful
// when the target status is resolved.
func (s *queries) TransitionEscalation(ctx context.Context, id, toStatus string, falseAlarm bool, at time.Time) error {
	cur, err := s.GetEscalation(ctx, id)
	if err != nil {
		return err
	}

	if !validTransition(cur.Status, toStatus) {
		return fmt.Errorf("%s -> %s: %w", cur.Status, toStatus, ErrInvalidTransition)
	}

	if toStatus == EscalationResolved {
		_, err = s.q.ExecContext(ctx, `
			UPDATE escalations SET status = ?, false_alarm = ?, updated_at = ?, resolved_at = ?
			WHERE id = ?`, toStatus, falseAlarm, at, at, id)
	} else {
		_, err = s.q.ExecContext(ctx, `
			UPDATE escalations SET status = ?, updated_at = ? WHERE id = ?`, toStatus, at, id)
	}
	if err != nil {
		return fmt.Errorf("transitioning escalation: %w", err)
	}
	return nil
}

func validTransition(from, to string) bool {
	switch from {
	case EscalationOpen:
		return to == EscalationInProgress || to == EscalationResolved
	case EscalationInProgress:
		return to == EscalationResolved
	}
	return false
}

func (s *queries) listEscalations(ctx context.Context, query string, args ...interface{}) ([]Escalation, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying escalations: %w", err)
	}
	defer rows.Close()

	var escs []Escalation
	for rows.Next() {
		var e Escalation
		var resolved sql.NullTime
		err := rows.Scan(&e.ID, &e.SiteID, &e.LoadID, &e.CarrierID, &e.IssueType,
			&e.Priority, &e.Status, &e.Description, &e.Source, &e.FalseAlarm,
			&e.CreatedAt, &e.UpdatedAt, &resolved)
		if err != nil {
			continue
		}
		e.ResolvedAt = timePtr(resolved)
		escs = append(escs, e)
	}
	return escs, rows.Err()
}

func scanEscalation(row *sql.Row) (*Escalation, error) {
	var e Escalation
	var resolved sql.NullTime
	err := row.Scan(&e.ID, &e.SiteID, &e.LoadID, &e.CarrierID, &e.IssueType,
		&e.Priority, &e.Status, &e.Description, &e.Source, &e.FalseAlarm,
		&e.CreatedAt, &e.UpdatedAt, &resolved)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning escalation: %w", err)
	}
	e.ResolvedAt = timePtr(resolved)
	return &e, nil
}
