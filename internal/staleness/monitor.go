// Package staleness sweeps for data that stopped refreshing: site inventory
// readings and load ETAs. Stale entities get an escalation raised directly,
// deduplicated against open escalations so repeat sweeps update in place.
package staleness

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	fuelsotel "github.com/DebileOrpheus45/fuels-logistics-ai/internal/otel"
	"github.com/DebileOrpheus45/fuels-logistics-ai/internal/store"
)

var tracer = fuelsotel.Tracer("github.com/DebileOrpheus45/fuels-logistics-ai/internal/staleness")

// Issue types raised by the sweeps.
const (
	IssueStaleInventory = "stale_inventory"
	IssueStaleETA       = "stale_eta"
)

// Fallback thresholds for rows that don't set their own.
const (
	DefaultInventoryThresholdHours = 24
	DefaultETAThresholdHours       = 4
)

// Config sets the default thresholds; per-site and per-load values override.
type Config struct {
	InventoryThresholdHours float64
	ETAThresholdHours       float64
}

// Monitor runs the staleness sweeps.
type Monitor struct {
	store *store.Store
	cfg   Config
	now   func() time.Time
}

// NewMonitor builds a monitor. Zero config fields fall back to the package
// defaults.
func NewMonitor(st *store.Store, cfg Config) *Monitor {
	if cfg.InventoryThresholdHours <= 0 {
		cfg.InventoryThresholdHours = DefaultInventoryThresholdHours
	}
	if cfg.ETAThresholdHours <= 0 {
		cfg.ETAThresholdHours = DefaultETAThresholdHours
	}
	return &Monitor{store: st, cfg: cfg, now: time.Now}
}

// WithClock overrides the monitor's clock. For tests.
func (m *Monitor) WithClock(now func() time.Time) *Monitor {
	m.now = now
	return m
}

// Report summarizes one sweep.
type Report struct {
	StaleSites         int
	StaleLoads         int
	EscalationsCreated int
	EscalationsUpdated int
}

// Sweep runs both checks. A failure in one check does not stop the other.
func (m *Monitor) Sweep(ctx context.Context) (*Report, error) {
	ctx, span := tracer.Start(ctx, "staleness.sweep")
	defer span.End()

	report := &Report{}
	var firstErr error

	if err := m.checkInventory(ctx, report); err != nil {
		firstErr = err
		log.Error().Err(err).Msg("inventory_staleness_check_failed")
	}
	if err := m.checkETAs(ctx, report); err != nil {
		if firstErr == nil {
			firstErr = err
		}
		log.Error().Err(err).Msg("eta_staleness_check_failed")
	}

	span.SetAttributes(
		attribute.Int("stale_sites", report.StaleSites),
		attribute.Int("stale_loads", report.StaleLoads),
		attribute.Int("escalations_created", report.EscalationsCreated),
	)
	return report, firstErr
}

func (m *Monitor) checkInventory(ctx context.Context, report *Report) error {
	sites, err := m.store.ListActiveSites(ctx)
	if err != nil {
		return fmt.Errorf("listing sites: %w", err)
	}
	now := m.now().UTC()

	for _, site := range sites {
		threshold := site.StaleAfterHours
		if threshold <= 0 {
			threshold = m.cfg.InventoryThresholdHours
		}
		staleness := now.Sub(site.InventoryUpdated).Hours()
		if staleness <= threshold {
			continue
		}
		report.StaleSites++

		priority := store.PriorityMedium
		switch {
		case staleness > threshold*2:
			priority = store.PriorityCritical
		case staleness > threshold*1.5:
			priority = store.PriorityHigh
		}
		desc := fmt.Sprintf(
			"Inventory data for %s is stale: no reading for %.1fh (threshold %.0fh). Last update %s.",
			site.Code, staleness, threshold, site.InventoryUpdated.Format("2006-01-02 15:04"))

		if err := m.raise(ctx, report, store.Escalation{
			SiteID:      site.ID,
			IssueType:   IssueStaleInventory,
			Priority:    priority,
			Description: desc,
			Source:      store.SourceStaleness,
		}); err != nil {
			log.Error().Err(err).Str("site_id", site.ID).Msg("staleness_escalation_failed")
		}
	}
	return nil
}

func (m *Monitor) checkETAs(ctx context.Context, report *Report) error {
	loads, err := m.store.ListActiveLoads(ctx)
	if err != nil {
		return fmt.Errorf("listing loads: %w", err)
	}
	now := m.now().UTC()

	for _, load := range loads {
		threshold := load.ETAStaleHours
		if threshold <= 0 {
			threshold = m.cfg.ETAThresholdHours
		}
		anchor := load.CreatedAt
		if load.LastETAUpdate != nil {
			anchor = *load.LastETAUpdate
		}
		staleness := now.Sub(anchor).Hours()
		if staleness <= threshold {
			continue
		}
		report.StaleLoads++

		priority := store.PriorityMedium
		if staleness > threshold*1.5 {
			priority = store.PriorityHigh
		}
		// an uncontactable load headed to a site near runout is the worst case
		if site, err := m.store.GetSite(ctx, load.SiteID); err == nil && site.HoursToRunout() < 24 {
			priority = store.PriorityCritical
		}
		desc := fmt.Sprintf(
			"ETA for load %s is stale: no update for %.1fh (threshold %.0fh).",
			load.PONumber, staleness, threshold)

		if err := m.raise(ctx, report, store.Escalation{
			SiteID:      load.SiteID,
			LoadID:      load.ID,
			CarrierID:   load.CarrierID,
			IssueType:   IssueStaleETA,
			Priority:    priority,
			Description: desc,
			Source:      store.SourceStaleness,
		}); err != nil {
			log.Error().Err(err).Str("load_id", load.ID).Msg("staleness_escalation_failed")
		}
	}
	return nil
}

// raise creates the escalation, or updates the open one for the same entity
// and issue in place so repeated sweeps never stack duplicates.
func (m *Monitor) raise(ctx context.Context, report *Report, esc store.Escalation) error {
	existing, err := m.store.FindOpenEscalation(ctx, esc.SiteID, esc.LoadID, esc.IssueType)
	if err == nil {
		if uerr := m.store.UpdateEscalationDescription(ctx, existing.ID, esc.Description, esc.Priority, m.now().UTC()); uerr != nil {
			return uerr
		}
		report.EscalationsUpdated++
		return nil
	}
	if err != store.ErrNotFound {
		return err
	}

	if err := m.store.CreateEscalation(ctx, &esc); err != nil {
		return err
	}
	report.EscalationsCreated++
	log.Info().
		Str("escalation_id", esc.ID).
		Str("issue_type", esc.IssueType).
		Str("priority", esc.Priority).
		Msg("staleness_escalation_created")
	return nil
}
