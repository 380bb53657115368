package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CreateAgent inserts an agent, assigning an ID when none is set.
func (s *queries) CreateAgent(ctx context.Context, a *Agent) error {
	if a.ID == "" {
		a.ID = NewID("agt")
	}
	if a.ExecutionMode == "" {
		a.ExecutionMode = ModeDraftOnly
	}
	if !ValidExecutionMode(a.ExecutionMode) {
		return fmt.Errorf("unknown execution mode %q", a.ExecutionMode)
	}
	if a.CheckIntervalMinutes <= 0 {
		a.CheckIntervalMinutes = 60
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO agents (id, name, execution_mode, check_interval_minutes, enabled, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.Name, a.ExecutionMode, a.CheckIntervalMinutes, a.Enabled, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting agent: %w", err)
	}
	return nil
}

// GetAgent returns an agent by ID.
func (s *queries) GetAgent(ctx context.Context, id string) (*Agent, error) {
	var a Agent
	err := s.q.QueryRowContext(ctx, `
		SELECT id, name, execution_mode, check_interval_minutes, enabled, created_at
		FROM agents WHERE id = ?`, id).
		Scan(&a.ID, &a.Name, &a.ExecutionMode, &a.CheckIntervalMinutes, &a.Enabled, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning agent: %w", err)
	}
	return &a, nil
}

// ListEnabledAgents returns all enabled agents.
func (s *queries) ListEnabledAgents(ctx context.Context) ([]Agent, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, name, execution_mode, check_interval_minutes, enabled, created_at
		FROM agents WHERE enabled = 1 ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying agents: %w", err)
	}
	defer rows.Close()

	var agents []Agent
	for rows.Next() {
		var a Agent
		if err := rows.Scan(&a.ID, &a.Name, &a.ExecutionMode, &a.CheckIntervalMinutes,
			&a.Enabled, &a.CreatedAt); err != nil {
			continue
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// SetAgentMode changes an agent's execution mode.
func (s *queries) SetAgentMode(ctx context.Context, id, mode string) error {
	if !ValidExecutionMode(mode) {
		return fmt.Errorf("unknown execution mode %q", mode)
	}
	res, err := s.q.ExecContext(ctx, `UPDATE agents SET execution_mode = ? WHERE id = ?`, mode, id)
	if err != nil {
		return fmt.Errorf("updating agent mode: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("agent %s: %w", id, ErrNotFound)
	}
	return nil
}

// SetAgentEnabled toggles whether the scheduler runs the agent.
func (s *queries) SetAgentEnabled(ctx context.Context, id string, enabled bool) error {
	res, err := s.q.ExecContext(ctx, `UPDATE agents SET enabled = ? WHERE id = ?`, enabled, id)
	if err != nil {
		return fmt.Errorf("updating agent enabled: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("agent %s: %w", id, ErrNotFound)
	}
	return nil
}
