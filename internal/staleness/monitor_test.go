package staleness

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DebileOrpheus45/fuels-logistics-ai/internal/store"
)

var now = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func newMonitor(t *testing.T) (*Monitor, *store.Store) {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "fuels.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	m := NewMonitor(st, Config{}).WithClock(func() time.Time { return now })
	return m, st
}

func seedSite(t *testing.T, st *store.Store, code string, updatedAgo time.Duration, staleAfter float64) *store.Site {
	t.Helper()
	site := &store.Site{
		Code:                 code,
		Name:                 code,
		CurrentGallons:       8000,
		RunoutThresholdHours: 24,
		ConsumptionPerHr:     50, // 160h to runout, comfortably healthy
		Active:               true,
		InventoryUpdated:     now.Add(-updatedAgo),
		StaleAfterHours:      staleAfter,
	}
	require.NoError(t, st.CreateSite(context.Background(), site))
	return site
}

func TestInventorySweepCreatesThenUpdates(t *testing.T) {
	ctx := context.Background()
	m, st := newMonitor(t)
	site := seedSite(t, st, "AUS-02", 30*time.Hour, 0) // default threshold 24h

	report, err := m.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.StaleSites)
	assert.Equal(t, 1, report.EscalationsCreated)

	esc, err := st.FindOpenEscalation(ctx, site.ID, "", IssueStaleInventory)
	require.NoError(t, err)
	assert.Equal(t, store.PriorityMedium, esc.Priority)
	assert.Contains(t, esc.Description, "AUS-02")
	assert.Equal(t, store.SourceStaleness, esc.Source)

	// second sweep on unchanged data must update in place, not duplicate
	report, err = m.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.EscalationsCreated)
	assert.Equal(t, 1, report.EscalationsUpdated)

	open, err := st.ListOpenEscalations(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func TestInventoryPriorityLadder(t *testing.T) {
	ctx := context.Background()
	m, st := newMonitor(t)
	sHigh := seedSite(t, st, "HIGH-1", 40*time.Hour, 0)     // > 1.5x 24h
	sCritical := seedSite(t, st, "CRIT-1", 50*time.Hour, 0) // > 2x 24h

	_, err := m.Sweep(ctx)
	require.NoError(t, err)

	esc, err := st.FindOpenEscalation(ctx, sHigh.ID, "", IssueStaleInventory)
	require.NoError(t, err)
	assert.Equal(t, store.PriorityHigh, esc.Priority)

	esc, err = st.FindOpenEscalation(ctx, sCritical.ID, "", IssueStaleInventory)
	require.NoError(t, err)
	assert.Equal(t, store.PriorityCritical, esc.Priority)
}

func TestPerSiteThresholdOverride(t *testing.T) {
	ctx := context.Background()
	m, st := newMonitor(t)
	seedSite(t, st, "SLOW-1", 30*time.Hour, 48) // site tolerates 48h

	report, err := m.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.StaleSites)
}

func TestETAStaleness(t *testing.T) {
	ctx := context.Background()
	m, st := newMonitor(t)
	healthy := seedSite(t, st, "OK-1", time.Hour, 0)

	carrier := &store.Carrier{Name: "Permian Freight", ContactEmail: "dispatch@permian.example.com"}
	require.NoError(t, st.CreateCarrier(ctx, carrier))

	stale := now.Add(-7 * time.Hour) // default threshold 4h, 7 > 6 = 1.5x
	load := &store.Load{
		PONumber:      "PO-2026-301",
		SiteID:        healthy.ID,
		CarrierID:     carrier.ID,
		Status:        store.LoadInTransit,
		LastETAUpdate: &stale,
		CreatedAt:     now.Add(-20 * time.Hour),
	}
	require.NoError(t, st.CreateLoad(ctx, load))

	report, err := m.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.StaleLoads)

	esc, err := st.FindOpenEscalation(ctx, healthy.ID, load.ID, IssueStaleETA)
	require.NoError(t, err)
	assert.Equal(t, store.PriorityHigh, esc.Priority)
	assert.Contains(t, esc.Description, "PO-2026-301")
}

func TestETAStalenessCriticalNearRunout(t *testing.T) {
	ctx := context.Background()
	m, st := newMonitor(t)

	tight := &store.Site{
		Code:                 "TIGHT-1",
		Name:                 "tight site",
		CurrentGallons:       1000,
		RunoutThresholdHours: 24,
		ConsumptionPerHr:     100, // 10h to runout
		Active:               true,
		InventoryUpdated:     now,
	}
	require.NoError(t, st.CreateSite(ctx, tight))

	carrier := &store.Carrier{Name: "Permian Freight"}
	require.NoError(t, st.CreateCarrier(ctx, carrier))

	stale := now.Add(-5 * time.Hour)
	load := &store.Load{
		PONumber:      "PO-2026-302",
		SiteID:        tight.ID,
		CarrierID:     carrier.ID,
		Status:        store.LoadScheduled,
		LastETAUpdate: &stale,
	}
	require.NoError(t, st.CreateLoad(ctx, load))

	_, err := m.Sweep(ctx)
	require.NoError(t, err)

	esc, err := st.FindOpenEscalation(ctx, tight.ID, load.ID, IssueStaleETA)
	require.NoError(t, err)
	assert.Equal(t, store.PriorityCritical, esc.Priority)
}

func TestFreshDataRaisesNothing(t *testing.T) {
	ctx := context.Background()
	m, st := newMonitor(t)
	site := seedSite(t, st, "FRESH-1", time.Hour, 0)

	carrier := &store.Carrier{Name: "Permian Freight"}
	require.NoError(t, st.CreateCarrier(ctx, carrier))
	recent := now.Add(-time.Hour)
	require.NoError(t, st.CreateLoad(ctx, &store.Load{
		PONumber:      "PO-2026-303",
		SiteID:        site.ID,
		CarrierID:     carrier.ID,
		Status:        store.LoadInTransit,
		LastETAUpdate: &recent,
	}))

	report, err := m.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.StaleSites)
	assert.Equal(t, 0, report.StaleLoads)
	assert.Equal(t, 0, report.EscalationsCreated)
}
