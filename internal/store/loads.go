package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const loadColumns = `id, po_number, site_id, carrier_id, status, gallons,
       eta, eta_stale_hours, last_eta_update, last_eta_request, delivered_at, created_at`

// CreateLoad inserts a load, assigning an ID when none is set.
func (s *queries) CreateLoad(ctx context.Context, l *Load) error {
	if l.ID == "" {
		l.ID = NewID("load")
	}
	if l.Status == "" {
		l.Status = LoadScheduled
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO loads (`+loadColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.PONumber, l.SiteID, l.CarrierID, l.Status, l.Gallons,
		nullTime(l.ETA), l.ETAStaleHours, nullTime(l.LastETAUpdate),
		nullTime(l.LastETARequest), nullTime(l.DeliveredAt), l.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting load: %w", err)
	}
	return nil
}

// GetLoad returns a load by ID.
func (s *queries) GetLoad(ctx context.Context, id string) (*Load, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+loadColumns+` FROM loads WHERE id = ?`, id)
	return scanLoad(row)
}

// GetLoadByPO returns a load by its purchase-order number.
func (s *queries) GetLoadByPO(ctx context.Context, poNumber string) (*Load, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+loadColumns+` FROM loads WHERE po_number = ?`, poNumber)
	return scanLoad(row)
}

// ListInboundLoads returns loads still counting as incoming supply for the
// site (scheduled, in transit, or delayed), soonest ETA first. Loads without
// an ETA sort last.
func (s *queries) ListInboundLoads(ctx context.Context, siteID string) ([]Load, error) {
	return s.listLoads(ctx, `
		SELECT `+loadColumns+` FROM loads
		WHERE site_id = ? AND status IN (?, ?, ?)
		ORDER BY eta IS NULL, eta`, siteID, LoadScheduled, LoadInTransit, LoadDelayed)
}

// ListInboundLoadsByCarrier returns inbound loads across all sites for one
// carrier. Used for multi-site carrier risk detection.
func (s *queries) ListInboundLoadsByCarrier(ctx context.Context, carrierID string) ([]Load, error) {
	return s.listLoads(ctx, `
		SELECT `+loadColumns+` FROM loads
		WHERE carrier_id = ? AND status IN (?, ?, ?)
		ORDER BY eta IS NULL, eta`, carrierID, LoadScheduled, LoadInTransit, LoadDelayed)
}

// ListLoadsByStatus returns all loads with the given status.
func (s *queries) ListLoadsByStatus(ctx context.Context, status string) ([]Load, error) {
	return s.listLoads(ctx, `
		SELECT `+loadColumns+` FROM loads WHERE status = ? ORDER BY created_at`, status)
}

// ListLoads returns every load, oldest first. Used by history replay.
func (s *queries) ListLoads(ctx context.Context) ([]Load, error) {
	return s.listLoads(ctx, `SELECT `+loadColumns+` FROM loads ORDER BY created_at`)
}

// ListActiveLoads returns every load still counting as incoming supply.
func (s *queries) ListActiveLoads(ctx context.Context) ([]Load, error) {
	return s.listLoads(ctx, `
		SELECT `+loadColumns+` FROM loads
		WHERE status IN (?, ?, ?)
		ORDER BY eta IS NULL, eta`, LoadScheduled, LoadInTransit, LoadDelayed)
}

// UpdateLoadStatus sets a load's status, recording the delivery time for
// delivered loads.
func (s *queries) UpdateLoadStatus(ctx context.Context, id, status string, at time.Time) error {
	var err error
	if status == LoadDelivered {
		_, err = s.q.ExecContext(ctx,
			`UPDATE loads SET status = ?, delivered_at = ? WHERE id = ?`, status, at, id)
	} else {
		_, err = s.q.ExecContext(ctx,
			`UPDATE loads SET status = ? WHERE id = ?`, status, id)
	}
	if err != nil {
		return fmt.Errorf("updating load status: %w", err)
	}
	return nil
}

// UpdateLoadETA records a fresh ETA (from a parsed carrier reply or manual
// entry) and stamps last_eta_update.
func (s *queries) UpdateLoadETA(ctx context.Context, id string, eta, at time.Time) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE loads SET eta = ?, last_eta_update = ? WHERE id = ?`, eta, at, id)
	if err != nil {
		return fmt.Errorf("updating load eta: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("load %s: %w", id, ErrNotFound)
	}
	return nil
}

// MarkETARequested stamps the time an ETA request email went out for the load.
func (s *queries) MarkETARequested(ctx context.Context, id string, at time.Time) error {
	_, err := s.q.ExecContext(ctx,
		`UPDATE loads SET last_eta_request = ? WHERE id = ?`, at, id)
	if err != nil {
		return fmt.Errorf("marking eta requested: %w", err)
	}
	return nil
}

func (s *queries) listLoads(ctx context.Context, query string, args ...interface{}) ([]Load, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying loads: %w", err)
	}
	defer rows.Close()

	var loads []Load
	for rows.Next() {
		l, err := scanLoadRows(rows)
		if err != nil {
			continue
		}
		loads = append(loads, *l)
	}
	return loads, rows.Err()
}

func scanLoad(row *sql.Row) (*Load, error) {
	var l Load
	var eta, lastUpdate, lastRequest, delivered sql.NullTime
	err := row.Scan(&l.ID, &l.PONumber, &l.SiteID, &l.CarrierID, &l.Status,
		&l.Gallons, &eta, &l.ETAStaleHours, &lastUpdate, &lastRequest, &delivered, &l.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning load: %w", err)
	}
	l.ETA = timePtr(eta)
	l.LastETAUpdate = timePtr(lastUpdate)
	l.LastETARequest = timePtr(lastRequest)
	l.DeliveredAt = timePtr(delivered)
	return &l, nil
}

func scanLoadRows(rows *sql.Rows) (*Load, error) {
	var l Load
	var eta, lastUpdate, lastRequest, delivered sql.NullTime
	err := rows.Scan(&l.ID, &l.PONumber, &l.SiteID, &l.CarrierID, &l.Status,
		&l.Gallons, &eta, &l.ETAStaleHours, &lastUpdate, &lastRequest, &delivered, &l.CreatedAt)
	if err != nil {
		return nil, err
	}
	l.ETA = timePtr(eta)
	l.LastETAUpdate = timePtr(lastUpdate)
	l.LastETARequest = timePtr(lastRequest)
	l.DeliveredAt = timePtr(delivered)
	return &l, nil
}
