// Package graph maintains reliability and risk statistics about carriers and
// sites, learned incrementally from delivery outcomes, ETA request/response
// behavior, and escalation resolutions. Scores are derived, never stored:
// the store keeps raw counters plus a short ring buffer of recent events,
// and intelligence reads compute reliability and risk on the fly. The whole
// thing can be rebuilt from operational history, so it is safe to wipe.
package graph

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	fuelsotel "github.com/DebileOrpheus45/fuels-logistics-ai/internal/otel"
)

var tracer = fuelsotel.Tracer("github.com/DebileOrpheus45/fuels-logistics-ai/internal/graph")

// maxRecentEvents caps the per-entity ring buffer.
const maxRecentEvents = 10

// Reliability below this flags a carrier as unreliable for Tier-1 rule
// purposes.
const unreliableThreshold = 0.4

const schema = `
CREATE TABLE IF NOT EXISTS carrier_stats (
    carrier_id TEXT PRIMARY KEY,
    deliveries_total INTEGER NOT NULL DEFAULT 0,
    deliveries_on_time INTEGER NOT NULL DEFAULT 0,
    eta_requests INTEGER NOT NULL DEFAULT 0,
    eta_responses INTEGER NOT NULL DEFAULT 0,
    timed_responses INTEGER NOT NULL DEFAULT 0,
    escalations_total INTEGER NOT NULL DEFAULT 0,
    false_alarms INTEGER NOT NULL DEFAULT 0,
    avg_delay_hours REAL NOT NULL DEFAULT 0,
    worst_delay_hours REAL NOT NULL DEFAULT 0,
    avg_response_hours REAL NOT NULL DEFAULT 0,
    recent_events TEXT NOT NULL DEFAULT '[]',
    updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS site_stats (
    site_id TEXT PRIMARY KEY,
    deliveries_total INTEGER NOT NULL DEFAULT 0,
    escalations_total INTEGER NOT NULL DEFAULT 0,
    false_alarms INTEGER NOT NULL DEFAULT 0,
    runout_events INTEGER NOT NULL DEFAULT 0,
    avg_daily_consumption REAL NOT NULL DEFAULT 0,
    recent_events TEXT NOT NULL DEFAULT '[]',
    updated_at TIMESTAMP NOT NULL
);
`

// Event is one entry in an entity's recent-history ring buffer.
type Event struct {
	Type   string    `json:"type"` // "delivery", "eta_request", "eta_response", "escalation", "resolution"
	Detail string    `json:"detail,omitempty"`
	At     time.Time `json:"at"`
}

// Store persists carrier and site statistics in its own SQLite database.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the graph database at dbPath.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening graph database: %w", err)
	}
	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating graph schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// withTx runs fn in a transaction so concurrent monitoring cycles and
// inbound email handlers never lose counter updates to each other.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning graph transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing graph transaction: %w", err)
	}
	return nil
}

// appendEvent pushes ev onto a ring buffer serialized as JSON, dropping the
// oldest entries beyond maxRecentEvents.
func appendEvent(rawJSON string, ev Event) string {
	var events []Event
	_ = json.Unmarshal([]byte(rawJSON), &events)
	events = append(events, ev)
	if len(events) > maxRecentEvents {
		events = events[len(events)-maxRecentEvents:]
	}
	out, err := json.Marshal(events)
	if err != nil {
		return rawJSON
	}
	return string(out)
}

// clamp01 bounds v to [0, 1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
