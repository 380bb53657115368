package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const siteColumns = `id, code, name, assigned_agent_id, current_gallons,
       runout_threshold_hours, consumption_per_hr, tank_capacity, contact_email,
       active, inventory_updated, inventory_stale_hours, created_at`

// CreateSite inserts a site, assigning an ID when none is set.
func (s *queries) CreateSite(ctx context.Context, site *Site) error {
	if site.ID == "" {
		site.ID = NewID("site")
	}
	if site.CreatedAt.IsZero() {
		site.CreatedAt = time.Now().UTC()
	}
	if site.InventoryUpdated.IsZero() {
		site.InventoryUpdated = site.CreatedAt
	}

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO sites (`+siteColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		site.ID, site.Code, site.Name, site.AssignedAgentID, site.CurrentGallons,
		site.RunoutThresholdHours, site.ConsumptionPerHr, site.TankCapacity,
		site.ContactEmail, site.Active, site.InventoryUpdated,
		site.StaleAfterHours, site.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting site: %w", err)
	}
	return nil
}

// GetSite returns a site by ID.
func (s *queries) GetSite(ctx context.Context, id string) (*Site, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT `+siteColumns+` FROM sites WHERE id = ?`, id)
	return scanSite(row)
}

// GetSiteByCode returns a site by its human short code.
func (s *queries) GetSiteByCode(ctx context.Context, code string) (*Site, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT `+siteColumns+` FROM sites WHERE code = ?`, code)
	return scanSite(row)
}

// ListActiveSites returns all active sites ordered by code.
func (s *queries) ListActiveSites(ctx context.Context) ([]Site, error) {
	return s.listSites(ctx, `
		SELECT `+siteColumns+` FROM sites WHERE active = 1 ORDER BY code`)
}

// ListSitesByAgent returns the active sites assigned to one agent, ordered
// by code.
func (s *queries) ListSitesByAgent(ctx context.Context, agentID string) ([]Site, error) {
	return s.listSites(ctx, `
		SELECT `+siteColumns+` FROM sites
		WHERE active = 1 AND assigned_agent_id = ? ORDER BY code`, agentID)
}

// AssignSiteAgent moves a site onto an agent's roster.
func (s *queries) AssignSiteAgent(ctx context.Context, siteID, agentID string) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE sites SET assigned_agent_id = ? WHERE id = ?`, agentID, siteID)
	if err != nil {
		return fmt.Errorf("assigning site agent: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("site %s: %w", siteID, ErrNotFound)
	}
	return nil
}

// UpdateSiteInventory records a fresh inventory reading.
func (s *queries) UpdateSiteInventory(ctx context.Context, id string, gallons float64, at time.Time) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE sites SET current_gallons = ?, inventory_updated = ? WHERE id = ?`,
		gallons, at, id)
	if err != nil {
		return fmt.Errorf("updating site inventory: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("site %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *queries) listSites(ctx context.Context, query string, args ...interface{}) ([]Site, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying sites: %w", err)
	}
	defer rows.Close()

	var sites []Site
	for rows.Next() {
		site, err := scanSiteRows(rows)
		if err != nil {
			continue
		}
		sites = append(sites, *site)
	}
	return sites, rows.Err()
}

func scanSite(row *sql.Row) (*Site, error) {
	var site Site
	err := row.Scan(&site.ID, &site.Code, &site.Name, &site.AssignedAgentID,
		&site.CurrentGallons, &site.RunoutThresholdHours, &site.ConsumptionPerHr,
		&site.TankCapacity, &site.ContactEmail, &site.Active,
		&site.InventoryUpdated, &site.StaleAfterHours, &site.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning site: %w", err)
	}
	return &site, nil
}

func scanSiteRows(rows *sql.Rows) (*Site, error) {
	var site Site
	err := rows.Scan(&site.ID, &site.Code, &site.Name, &site.AssignedAgentID,
		&site.CurrentGallons, &site.RunoutThresholdHours, &site.ConsumptionPerHr,
		&site.TankCapacity, &site.ContactEmail, &site.Active,
		&site.InventoryUpdated, &site.StaleAfterHours, &site.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &site, nil
}
