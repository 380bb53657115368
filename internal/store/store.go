// Package store persists operational state for fuel-logistics monitoring:
// sites, carriers, loads, escalations, agents, the activity log, and agent
// run history. Everything lives in a single SQLite database opened in WAL
// mode. Mutations that must land together run inside an explicit unit of
// work via WithTx.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	fuelsotel "github.com/DebileOrpheus45/fuels-logistics-ai/internal/otel"
)

var tracer = fuelsotel.Tracer("github.com/DebileOrpheus45/fuels-logistics-ai/internal/store")

// Domain errors.
var (
	ErrNotFound          = errors.New("record not found")
	ErrInvalidTransition = errors.New("invalid escalation status transition")
)

const schema = `
CREATE TABLE IF NOT EXISTS sites (
    id TEXT PRIMARY KEY,
    code TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL,
    assigned_agent_id TEXT NOT NULL DEFAULT '',
    current_gallons REAL NOT NULL DEFAULT 0,
    runout_threshold_hours REAL NOT NULL DEFAULT 0,
    consumption_per_hr REAL NOT NULL DEFAULT 0,
    tank_capacity REAL NOT NULL DEFAULT 0,
    contact_email TEXT NOT NULL DEFAULT '',
    active INTEGER NOT NULL DEFAULT 1,
    inventory_updated TIMESTAMP NOT NULL,
    inventory_stale_hours REAL NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS carriers (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    contact_email TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS loads (
    id TEXT PRIMARY KEY,
    po_number TEXT NOT NULL UNIQUE,
    site_id TEXT NOT NULL,
    carrier_id TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'scheduled',
    gallons REAL NOT NULL DEFAULT 0,
    eta TIMESTAMP,
    eta_stale_hours REAL NOT NULL DEFAULT 0,
    last_eta_update TIMESTAMP,
    last_eta_request TIMESTAMP,
    delivered_at TIMESTAMP,
    created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS escalations (
    id TEXT PRIMARY KEY,
    site_id TEXT NOT NULL DEFAULT '',
    load_id TEXT NOT NULL DEFAULT '',
    carrier_id TEXT NOT NULL DEFAULT '',
    issue_type TEXT NOT NULL,
    priority TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'open',
    description TEXT NOT NULL DEFAULT '',
    source TEXT NOT NULL DEFAULT '',
    false_alarm INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    resolved_at TIMESTAMP
);

CREATE TABLE IF NOT EXISTS agents (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    execution_mode TEXT NOT NULL DEFAULT 'draft_only',
    check_interval_minutes INTEGER NOT NULL DEFAULT 60,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS activities (
    id TEXT PRIMARY KEY,
    agent_id TEXT NOT NULL DEFAULT '',
    type TEXT NOT NULL,
    entity_id TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    agent_id TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'running',
    started_at TIMESTAMP NOT NULL,
    finished_at TIMESTAMP,
    sites_checked INTEGER NOT NULL DEFAULT 0,
    loads_checked INTEGER NOT NULL DEFAULT 0,
    actions_taken INTEGER NOT NULL DEFAULT 0,
    escalations_created INTEGER NOT NULL DEFAULT 0,
    emails_sent INTEGER NOT NULL DEFAULT 0,
    tier2_invoked INTEGER NOT NULL DEFAULT 0,
    llm_calls INTEGER NOT NULL DEFAULT 0,
    input_tokens INTEGER NOT NULL DEFAULT 0,
    output_tokens INTEGER NOT NULL DEFAULT 0,
    cost_eur REAL NOT NULL DEFAULT 0,
    summary TEXT NOT NULL DEFAULT '',
    error TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_loads_site ON loads(site_id);
CREATE INDEX IF NOT EXISTS idx_loads_carrier ON loads(carrier_id);
CREATE INDEX IF NOT EXISTS idx_loads_status ON loads(status);
CREATE INDEX IF NOT EXISTS idx_loads_po ON loads(po_number);
CREATE INDEX IF NOT EXISTS idx_escalations_status ON escalations(status);
CREATE INDEX IF NOT EXISTS idx_escalations_site ON escalations(site_id);
CREATE INDEX IF NOT EXISTS idx_activities_created ON activities(created_at);
CREATE INDEX IF NOT EXISTS idx_runs_agent ON runs(agent_id, started_at);
`

// querier is the subset of *sql.DB and *sql.Tx the query methods need,
// so the same code serves both autocommit calls and units of work.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Store persists operational state in SQLite.
type Store struct {
	queries
	db *sql.DB
}

// Tx is an explicit unit of work. All Store query methods are available on
// it; everything commits or rolls back together.
type Tx struct {
	queries
	tx *sql.Tx
}

// queries holds the shared query implementations over either a DB or a Tx.
type queries struct {
	q querier
}

// New opens (or creates) the database at dbPath and applies the schema.
// WAL mode with a busy timeout keeps the scheduler, the HTTP surface, and
// the staleness sweep from tripping over each other.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{queries: queries{q: db}, db: db}, nil
}

// DB exposes the underlying handle so sibling stores (e.g. the knowledge
// graph) can share the connection pool.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// WithTx runs fn inside a transaction. fn receives a Tx exposing the same
// query methods as the Store; a non-nil error rolls everything back.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	ctx, span := tracer.Start(ctx, "store.with_tx")
	defer span.End()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	if err := fn(&Tx{queries: queries{q: sqlTx}, tx: sqlTx}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			return fmt.Errorf("rolling back after %w: %v", err, rbErr)
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// nullTime converts a *time.Time to a driver-friendly value.
func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

// timePtr converts a sql.NullTime back to a *time.Time.
func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
