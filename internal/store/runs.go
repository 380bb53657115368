package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const runColumns = `id, agent_id, status, started_at, finished_at, sites_checked,
       loads_checked, actions_taken, escalations_created, emails_sent,
       tier2_invoked, llm_calls, input_tokens, output_tokens, cost_eur, summary, error`

// StartRun opens a run record in the running state and returns it.
func (s *queries) StartRun(ctx context.Context, agentID string) (*Run, error) {
	run := &Run{
		ID:        NewID("run"),
		AgentID:   agentID,
		Status:    RunRunning,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO runs (id, agent_id, status, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, run.AgentID, run.Status, run.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting run: %w", err)
	}
	return run, nil
}

// FinishRun closes out a run record with its final status and counters.
func (s *queries) FinishRun(ctx context.Context, run *Run) error {
	now := time.Now().UTC()
	if run.FinishedAt == nil {
		run.FinishedAt = &now
	}
	res, err := s.q.ExecContext(ctx, `
		UPDATE runs SET status = ?, finished_at = ?, sites_checked = ?,
		       loads_checked = ?, actions_taken = ?, escalations_created = ?,
		       emails_sent = ?, tier2_invoked = ?, llm_calls = ?,
		       input_tokens = ?, output_tokens = ?, cost_eur = ?,
		       summary = ?, error = ?
		WHERE id = ?`,
		run.Status, run.FinishedAt, run.SitesChecked,
		run.LoadsChecked, run.ActionsTaken, run.EscalationsCreated,
		run.EmailsSent, run.Tier2Invoked, run.LLMCalls,
		run.InputTokens, run.OutputTokens, run.CostEUR,
		run.Summary, run.Error, run.ID,
	)
	if err != nil {
		return fmt.Errorf("finishing run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", run.ID, ErrNotFound)
	}
	return nil
}

// GetRun returns a run by ID.
func (s *queries) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	var r Run
	var finished sql.NullTime
	err := row.Scan(&r.ID, &r.AgentID, &r.Status, &r.StartedAt, &finished,
		&r.SitesChecked, &r.LoadsChecked, &r.ActionsTaken, &r.EscalationsCreated,
		&r.EmailsSent, &r.Tier2Invoked, &r.LLMCalls, &r.InputTokens,
		&r.OutputTokens, &r.CostEUR, &r.Summary, &r.Error)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning run: %w", err)
	}
	r.FinishedAt = timePtr(finished)
	return &r, nil
}

// ListRuns returns recent runs, newest first. agentID filters when non-empty.
func (s *queries) ListRuns(ctx context.Context, agentID string, limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs`
	args := []interface{}{}
	if agentID != "" {
		query += ` WHERE agent_id = ?`
		args = append(args, agentID)
	}
	query += ` ORDER BY started_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var finished sql.NullTime
		err := rows.Scan(&r.ID, &r.AgentID, &r.Status, &r.StartedAt, &finished,
			&r.SitesChecked, &r.LoadsChecked, &r.ActionsTaken, &r.EscalationsCreated,
			&r.EmailsSent, &r.Tier2Invoked, &r.LLMCalls, &r.InputTokens,
			&r.OutputTokens, &r.CostEUR, &r.Summary, &r.Error)
		if err != nil {
			continue
		}
		r.FinishedAt = timePtr(finished)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// CostTotal sums reasoning-service spend over runs in the half-open time
// range [from, to). Pass a zero time to leave a bound open.
func (s *queries) CostTotal(ctx context.Context, agentID string, from, to time.Time) (float64, error) {
	query := `SELECT COALESCE(SUM(cost_eur), 0) FROM runs WHERE 1=1`
	args := []interface{}{}
	if agentID != "" {
		query += ` AND agent_id = ?`
		args = append(args, agentID)
	}
	if !from.IsZero() {
		query += ` AND started_at >= ?`
		args = append(args, from)
	}
	if !to.IsZero() {
		query += ` AND started_at < ?`
		args = append(args, to)
	}

	var total float64
	if err := s.q.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("summing run cost: %w", err)
	}
	return total, nil
}
