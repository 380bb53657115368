package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := New(filepath.Join(t.TempDir(), "fuels.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func seedSite(t *testing.T, st *Store) *Site {
	t.Helper()
	site := &Site{
		Code:                 "DAL-03",
		Name:                 "Dallas South Depot",
		CurrentGallons:       900,
		RunoutThresholdHours: 24,
		ConsumptionPerHr:     120,
		TankCapacity:         10000,
		ContactEmail:         "ops-dal03@example.com",
		Active:               true,
	}
	require.NoError(t, st.CreateSite(context.Background(), site))
	return site
}

func seedCarrier(t *testing.T, st *Store) *Carrier {
	t.Helper()
	c := &Carrier{Name: "Lone Star Hauling", ContactEmail: "dispatch@lonestar.example.com"}
	require.NoError(t, st.CreateCarrier(context.Background(), c))
	return c
}

func TestSiteRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	site := seedSite(t, st)

	got, err := st.GetSite(ctx, site.ID)
	require.NoError(t, err)
	assert.Equal(t, "DAL-03", got.Code)
	assert.Equal(t, 900.0, got.CurrentGallons)
	assert.True(t, got.Active)
	assert.False(t, got.InventoryUpdated.IsZero())

	byCode, err := st.GetSiteByCode(ctx, "DAL-03")
	require.NoError(t, err)
	assert.Equal(t, site.ID, byCode.ID)

	_, err = st.GetSite(ctx, "site_missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateSiteInventory(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	site := seedSite(t, st)

	at := time.Date(2026, 2, 10, 8, 0, 0, 0, time.UTC)
	require.NoError(t, st.UpdateSiteInventory(ctx, site.ID, 4500, at))

	got, err := st.GetSite(ctx, site.ID)
	require.NoError(t, err)
	assert.Equal(t, 4500.0, got.CurrentGallons)
	assert.True(t, got.InventoryUpdated.Equal(at))
	assert.False(t, got.AtRisk(), "37.5h of supply against a 24h threshold")
}

func TestSiteProjections(t *testing.T) {
	site := &Site{CurrentGallons: 900, RunoutThresholdHours: 24, ConsumptionPerHr: 120}
	assert.InDelta(t, 7.5, site.HoursToRunout(), 0.001)
	assert.True(t, site.AtRisk())

	site.CurrentGallons = 6000
	assert.False(t, site.AtRisk(), "50h of supply is comfortably above a 24h threshold")

	site.ConsumptionPerHr = 0
	assert.Greater(t, site.HoursToRunout(), 1e8, "zero consumption must never project a runout")
	assert.False(t, site.AtRisk())
}

func TestListActiveSites(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedSite(t, st)
	require.NoError(t, st.CreateSite(ctx, &Site{Code: "HOU-01", Name: "Houston Yard", Active: false}))

	sites, err := st.ListActiveSites(ctx)
	require.NoError(t, err)
	require.Len(t, sites, 1)
	assert.Equal(t, "DAL-03", sites[0].Code)
}

func TestListSitesByAgent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	mine := seedSite(t, st)
	other := &Site{Code: "HOU-01", Name: "Houston Yard", AssignedAgentID: "agent_other", Active: true}
	require.NoError(t, st.CreateSite(ctx, other))
	off := &Site{Code: "ELP-01", Name: "El Paso Yard", AssignedAgentID: "agent_day", Active: false}
	require.NoError(t, st.CreateSite(ctx, off))

	require.NoError(t, st.AssignSiteAgent(ctx, mine.ID, "agent_day"))

	sites, err := st.ListSitesByAgent(ctx, "agent_day")
	require.NoError(t, err)
	require.Len(t, sites, 1, "other agents' sites and inactive sites stay off the roster")
	assert.Equal(t, "DAL-03", sites[0].Code)
	assert.Equal(t, "agent_day", sites[0].AssignedAgentID)

	err = st.AssignSiteAgent(ctx, "site_missing", "agent_day")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadLifecycle(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	site := seedSite(t, st)
	carrier := seedCarrier(t, st)

	eta := time.Date(2026, 2, 10, 14, 0, 0, 0, time.UTC)
	load := &Load{
		PONumber:  "PO-2026-114",
		SiteID:    site.ID,
		CarrierID: carrier.ID,
		Status:    LoadInTransit,
		Gallons:   7500,
		ETA:       &eta,
	}
	require.NoError(t, st.CreateLoad(ctx, load))

	got, err := st.GetLoadByPO(ctx, "PO-2026-114")
	require.NoError(t, err)
	assert.Equal(t, load.ID, got.ID)
	require.NotNil(t, got.ETA)
	assert.True(t, got.ETA.Equal(eta))
	assert.True(t, got.Inbound())

	newETA := eta.Add(3 * time.Hour)
	at := time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC)
	require.NoError(t, st.UpdateLoadETA(ctx, load.ID, newETA, at))

	got, err = st.GetLoad(ctx, load.ID)
	require.NoError(t, err)
	assert.True(t, got.ETA.Equal(newETA))
	require.NotNil(t, got.LastETAUpdate)
	assert.True(t, got.LastETAUpdate.Equal(at))

	delivered := newETA.Add(-20 * time.Minute)
	require.NoError(t, st.UpdateLoadStatus(ctx, load.ID, LoadDelivered, delivered))

	got, err = st.GetLoad(ctx, load.ID)
	require.NoError(t, err)
	assert.Equal(t, LoadDelivered, got.Status)
	require.NotNil(t, got.DeliveredAt, "delivering must stamp delivered_at")
	assert.True(t, got.DeliveredAt.Equal(delivered))
	assert.False(t, got.Inbound())
}

func TestUpdateLoadETAUnknownLoad(t *testing.T) {
	st := newTestStore(t)
	err := st.UpdateLoadETA(context.Background(), "load_missing", time.Now(), time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMarkETARequested(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	site := seedSite(t, st)
	carrier := seedCarrier(t, st)

	load := &Load{PONumber: "PO-2026-115", SiteID: site.ID, CarrierID: carrier.ID, Status: LoadDelayed, Gallons: 5000}
	require.NoError(t, st.CreateLoad(ctx, load))

	at := time.Date(2026, 2, 10, 10, 0, 0, 0, time.UTC)
	require.NoError(t, st.MarkETARequested(ctx, load.ID, at))

	got, err := st.GetLoad(ctx, load.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastETARequest)
	assert.True(t, got.LastETARequest.Equal(at))
}

func TestListInboundLoads(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	site := seedSite(t, st)
	carrier := seedCarrier(t, st)

	mk := func(po, status string) {
		require.NoError(t, st.CreateLoad(ctx, &Load{
			PONumber: po, SiteID: site.ID, CarrierID: carrier.ID, Status: status, Gallons: 5000,
		}))
	}
	mk("PO-2026-201", LoadScheduled)
	mk("PO-2026-202", LoadInTransit)
	mk("PO-2026-203", LoadDelayed)
	mk("PO-2026-204", LoadDelivered)
	mk("PO-2026-205", LoadCancelled)

	inbound, err := st.ListInboundLoads(ctx, site.ID)
	require.NoError(t, err)
	assert.Len(t, inbound, 3, "delivered and cancelled loads are not supply")

	byCarrier, err := st.ListInboundLoadsByCarrier(ctx, carrier.ID)
	require.NoError(t, err)
	assert.Len(t, byCarrier, 3)

	delivered, err := st.ListLoadsByStatus(ctx, LoadDelivered)
	require.NoError(t, err)
	require.Len(t, delivered, 1)
	assert.Equal(t, "PO-2026-204", delivered[0].PONumber)
}

func TestEscalationTransitions(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	site := seedSite(t, st)

	esc := &Escalation{
		SiteID:      site.ID,
		IssueType:   "runout_risk",
		Priority:    PriorityCritical,
		Description: "projected runout in 7.5h with no inbound supply",
		Source:      SourceTier1,
	}
	require.NoError(t, st.CreateEscalation(ctx, esc))
	assert.Equal(t, EscalationOpen, esc.Status)

	require.NoError(t, st.TransitionEscalation(ctx, esc.ID, EscalationInProgress, false, time.Now().UTC()))

	// Backwards is never allowed.
	err := st.TransitionEscalation(ctx, esc.ID, EscalationOpen, false, time.Now().UTC())
	assert.ErrorIs(t, err, ErrInvalidTransition)

	resolvedAt := time.Now().UTC()
	require.NoError(t, st.TransitionEscalation(ctx, esc.ID, EscalationResolved, true, resolvedAt))

	got, err := st.GetEscalation(ctx, esc.ID)
	require.NoError(t, err)
	assert.Equal(t, EscalationResolved, got.Status)
	assert.True(t, got.FalseAlarm)
	require.NotNil(t, got.ResolvedAt)

	// Resolved is terminal.
	err = st.TransitionEscalation(ctx, esc.ID, EscalationInProgress, false, time.Now().UTC())
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestEscalationSkipInProgress(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	site := seedSite(t, st)

	esc := &Escalation{SiteID: site.ID, IssueType: "late_load", Priority: PriorityHigh, Source: SourceTier1}
	require.NoError(t, st.CreateEscalation(ctx, esc))
	require.NoError(t, st.TransitionEscalation(ctx, esc.ID, EscalationResolved, false, time.Now().UTC()))

	got, err := st.GetEscalation(ctx, esc.ID)
	require.NoError(t, err)
	assert.Equal(t, EscalationResolved, got.Status)
	assert.False(t, got.FalseAlarm)
}

func TestCreateEscalationRejectsBadPriority(t *testing.T) {
	st := newTestStore(t)
	err := st.CreateEscalation(context.Background(), &Escalation{IssueType: "late_load", Priority: "urgent"})
	assert.Error(t, err)
}

func TestFindOpenEscalationDedup(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	site := seedSite(t, st)
	carrier := seedCarrier(t, st)

	load := &Load{PONumber: "PO-2026-301", SiteID: site.ID, CarrierID: carrier.ID, Status: LoadDelayed, Gallons: 5000}
	require.NoError(t, st.CreateLoad(ctx, load))

	esc := &Escalation{
		SiteID: site.ID, LoadID: load.ID, CarrierID: carrier.ID,
		IssueType: "late_load", Priority: PriorityHigh, Source: SourceTier1,
	}
	require.NoError(t, st.CreateEscalation(ctx, esc))

	found, err := st.FindOpenEscalation(ctx, site.ID, load.ID, "late_load")
	require.NoError(t, err)
	assert.Equal(t, esc.ID, found.ID)

	// A different issue type on the same load is not a duplicate.
	_, err = st.FindOpenEscalation(ctx, site.ID, load.ID, "driver_issue")
	assert.ErrorIs(t, err, ErrNotFound)

	// Resolving closes the dedup window.
	require.NoError(t, st.TransitionEscalation(ctx, esc.ID, EscalationResolved, false, time.Now().UTC()))
	_, err = st.FindOpenEscalation(ctx, site.ID, load.ID, "late_load")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateEscalationDescription(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	site := seedSite(t, st)

	esc := &Escalation{SiteID: site.ID, IssueType: "late_load", Priority: PriorityMedium, Source: SourceInbound}
	require.NoError(t, st.CreateEscalation(ctx, esc))

	at := time.Now().UTC().Add(time.Minute)
	require.NoError(t, st.UpdateEscalationDescription(ctx, esc.ID, "carrier reports breakdown on I-45", PriorityHigh, at))

	got, err := st.GetEscalation(ctx, esc.ID)
	require.NoError(t, err)
	assert.Equal(t, PriorityHigh, got.Priority)
	assert.Contains(t, got.Description, "I-45")
}

func TestAgentCRUD(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	a := &Agent{Name: "day-shift", ExecutionMode: ModeAutoEmail, CheckIntervalMinutes: 15, Enabled: true}
	require.NoError(t, st.CreateAgent(ctx, a))

	got, err := st.GetAgent(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, ModeAutoEmail, got.ExecutionMode)
	assert.Equal(t, 15, got.CheckIntervalMinutes)

	require.NoError(t, st.SetAgentMode(ctx, a.ID, ModeFullAuto))
	require.NoError(t, st.SetAgentEnabled(ctx, a.ID, false))

	got, err = st.GetAgent(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, ModeFullAuto, got.ExecutionMode)
	assert.False(t, got.Enabled)

	enabled, err := st.ListEnabledAgents(ctx)
	require.NoError(t, err)
	assert.Empty(t, enabled)
}

func TestCreateAgentRejectsBadMode(t *testing.T) {
	st := newTestStore(t)
	err := st.CreateAgent(context.Background(), &Agent{Name: "bad", ExecutionMode: "yolo"})
	assert.Error(t, err)
}

func TestRunLifecycle(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	a := &Agent{Name: "day-shift", Enabled: true}
	require.NoError(t, st.CreateAgent(ctx, a))

	run, err := st.StartRun(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, RunRunning, run.Status)

	run.Status = RunCompleted
	run.SitesChecked = 3
	run.LoadsChecked = 5
	run.ActionsTaken = 2
	run.EscalationsCreated = 1
	run.Tier2Invoked = true
	run.LLMCalls = 2
	run.InputTokens = 1200
	run.OutputTokens = 300
	run.CostEUR = 0.0081
	run.Summary = "one critical runout escalation at DAL-03"
	require.NoError(t, st.FinishRun(ctx, run))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunCompleted, got.Status)
	require.NotNil(t, got.FinishedAt)
	assert.Equal(t, 1, got.EscalationsCreated)
	assert.True(t, got.Tier2Invoked)
	assert.InDelta(t, 0.0081, got.CostEUR, 1e-9)
	assert.Contains(t, got.Summary, "DAL-03")

	runs, err := st.ListRuns(ctx, a.ID, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)
}

func TestFinishRunUnknownRun(t *testing.T) {
	st := newTestStore(t)
	err := st.FinishRun(context.Background(), &Run{ID: "run_missing", Status: RunCompleted})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCostTotal(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	a := &Agent{Name: "day-shift", Enabled: true}
	require.NoError(t, st.CreateAgent(ctx, a))
	b := &Agent{Name: "night-shift", Enabled: true}
	require.NoError(t, st.CreateAgent(ctx, b))

	finish := func(agentID string, cost float64) {
		run, err := st.StartRun(ctx, agentID)
		require.NoError(t, err)
		run.Status = RunCompleted
		run.CostEUR = cost
		require.NoError(t, st.FinishRun(ctx, run))
	}
	finish(a.ID, 0.01)
	finish(a.ID, 0.02)
	finish(b.ID, 0.04)

	total, err := st.CostTotal(ctx, "", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.InDelta(t, 0.07, total, 1e-9)

	total, err = st.CostTotal(ctx, a.ID, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.InDelta(t, 0.03, total, 1e-9)

	// A window entirely in the past covers nothing.
	past := time.Now().UTC().Add(-48 * time.Hour)
	total, err = st.CostTotal(ctx, "", past, past.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestActivities(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	older := time.Now().UTC().Add(-2 * time.Hour)
	require.NoError(t, st.LogActivity(ctx, &Activity{
		Type: ActivityEmailSent, EntityID: "load_1",
		Description: "ETA request sent", CreatedAt: older,
	}))
	require.NoError(t, st.LogActivity(ctx, &Activity{
		Type: ActivityEmailSent, EntityID: "load_1",
		Description: "second ETA request sent",
	}))
	require.NoError(t, st.LogActivity(ctx, &Activity{
		Type: ActivityEscalationCreated, EntityID: "esc_1",
		Description: "late load escalated",
	}))

	acts, err := st.ListActivities(ctx, 10)
	require.NoError(t, err)
	require.Len(t, acts, 3)

	last, err := st.LastActivityFor(ctx, ActivityEmailSent, "load_1")
	require.NoError(t, err)
	assert.Contains(t, last.Description, "second")

	_, err = st.LastActivityFor(ctx, ActivityEmailSent, "load_other")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWithTxCommit(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	err := st.WithTx(ctx, func(tx *Tx) error {
		site := &Site{Code: "AUS-02", Name: "Austin North", Active: true}
		if err := tx.CreateSite(ctx, site); err != nil {
			return err
		}
		return tx.LogActivity(ctx, &Activity{
			Type: ActivityObservation, EntityID: site.ID, Description: "site onboarded",
		})
	})
	require.NoError(t, err)

	site, err := st.GetSiteByCode(ctx, "AUS-02")
	require.NoError(t, err)
	assert.Equal(t, "Austin North", site.Name)
}

func TestWithTxRollback(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	err := st.WithTx(ctx, func(tx *Tx) error {
		if err := tx.CreateSite(ctx, &Site{Code: "SAT-01", Name: "San Antonio", Active: true}); err != nil {
			return err
		}
		// Invalid priority fails the whole transaction.
		return tx.CreateEscalation(ctx, &Escalation{IssueType: "late_load", Priority: "urgent"})
	})
	require.Error(t, err)

	_, err = st.GetSiteByCode(ctx, "SAT-01")
	assert.ErrorIs(t, err, ErrNotFound, "rolled-back writes must not be visible")
}

func TestNewID(t *testing.T) {
	id := NewID("esc")
	assert.Regexp(t, `^esc_[0-9a-f]{32}$`, id)
	assert.NotEqual(t, id, NewID("esc"))
}
