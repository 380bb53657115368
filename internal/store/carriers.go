package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CreateCarrier inserts a carrier, assigning an ID when none is set.
func (s *queries) CreateCarrier(ctx context.Context, c *Carrier) error {
	if c.ID == "" {
		c.ID = NewID("carr")
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO carriers (id, name, contact_email, created_at)
		VALUES (?, ?, ?, ?)`,
		c.ID, c.Name, c.ContactEmail, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting carrier: %w", err)
	}
	return nil
}

// GetCarrier returns a carrier by ID.
func (s *queries) GetCarrier(ctx context.Context, id string) (*Carrier, error) {
	var c Carrier
	err := s.q.QueryRowContext(ctx, `
		SELECT id, name, contact_email, created_at FROM carriers WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &c.ContactEmail, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning carrier: %w", err)
	}
	return &c, nil
}

// ListCarriers returns all carriers ordered by name.
func (s *queries) ListCarriers(ctx context.Context) ([]Carrier, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, name, contact_email, created_at FROM carriers ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying carriers: %w", err)
	}
	defer rows.Close()

	var carriers []Carrier
	for rows.Next() {
		var c Carrier
		if err := rows.Scan(&c.ID, &c.Name, &c.ContactEmail, &c.CreatedAt); err != nil {
			continue
		}
		carriers = append(carriers, c)
	}
	return carriers, rows.Err()
}
