package rules

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DebileOrpheus45/fuels-logistics-ai/internal/graph"
	"github.com/DebileOrpheus45/fuels-logistics-ai/internal/store"
)

var testNow = time.Date(2026, 2, 10, 8, 0, 0, 0, time.UTC)

const testAgentID = "agent_day"

type fixture struct {
	store *store.Store
	graph *graph.Store
	eval  *Evaluator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	st, err := store.New(filepath.Join(dir, "fuels.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	g, err := graph.New(filepath.Join(dir, "graph.db"))
	require.NoError(t, err)
	t.Cleanup(func() { g.Close() })

	eval := NewEvaluator(st, g).WithClock(func() time.Time { return testNow })
	return &fixture{store: st, graph: g, eval: eval}
}

func (f *fixture) addSite(t *testing.T, code string, current, thresholdHours, perHour float64) *store.Site {
	t.Helper()
	site := &store.Site{
		Code:                 code,
		Name:                 code + " Depot",
		AssignedAgentID:      testAgentID,
		CurrentGallons:       current,
		RunoutThresholdHours: thresholdHours,
		ConsumptionPerHr:     perHour,
		TankCapacity:         10000,
		ContactEmail:         "ops@example.com",
		Active:               true,
	}
	require.NoError(t, f.store.CreateSite(context.Background(), site))
	return site
}

func (f *fixture) addCarrier(t *testing.T, name string) *store.Carrier {
	t.Helper()
	c := &store.Carrier{Name: name, ContactEmail: "dispatch@example.com"}
	require.NoError(t, f.store.CreateCarrier(context.Background(), c))
	return c
}

func (f *fixture) addLoad(t *testing.T, l *store.Load) *store.Load {
	t.Helper()
	require.NoError(t, f.store.CreateLoad(context.Background(), l))
	return l
}

func (f *fixture) evaluate(t *testing.T) *Result {
	t.Helper()
	res, err := f.eval.Evaluate(context.Background(), testAgentID)
	require.NoError(t, err)
	return res
}

func hoursAgo(h float64) *time.Time {
	at := testNow.Add(-time.Duration(h * float64(time.Hour)))
	return &at
}

func hoursAhead(h float64) *time.Time {
	at := testNow.Add(time.Duration(h * float64(time.Hour)))
	return &at
}

func TestCriticalRunoutWithNoSupply(t *testing.T) {
	f := newFixture(t)
	site := f.addSite(t, "DAL-03", 900, 24, 120) // 7.5h to runout

	res := f.evaluate(t)

	require.Len(t, res.Actions, 1)
	a := res.Actions[0]
	assert.Equal(t, ActionCreateEscalation, a.Kind)
	assert.Equal(t, site.ID, a.SiteID)
	assert.Equal(t, IssueRunoutRisk, a.IssueType)
	assert.Equal(t, store.PriorityCritical, a.Priority)
	assert.Contains(t, a.Description, "7.5h")
	assert.Contains(t, a.Description, "DAL-03")
	assert.Contains(t, a.Description, "no active loads")
	assert.Equal(t, 1, res.SitesChecked)
	assert.Contains(t, res.Summary, "1 actions")
}

func TestHighRunoutWithNoSupply(t *testing.T) {
	f := newFixture(t)
	f.addSite(t, "HOU-01", 1800, 24, 100) // 18h to runout

	res := f.evaluate(t)

	require.Len(t, res.Actions, 1)
	assert.Equal(t, store.PriorityHigh, res.Actions[0].Priority)
}

func TestRunoutWindowsKeyOnHoursNotGallons(t *testing.T) {
	f := newFixture(t)
	// A full-looking tank burning fast: 5000 gal at 500 gal/h is 10h out.
	f.addSite(t, "ODE-07", 5000, 24, 500)

	res := f.evaluate(t)

	require.Len(t, res.Actions, 1)
	assert.Equal(t, store.PriorityCritical, res.Actions[0].Priority)
	assert.Contains(t, res.Actions[0].Description, "10.0h")
}

func TestDistantRunoutNoLoadsIsQuiet(t *testing.T) {
	f := newFixture(t)
	f.addSite(t, "AUS-02", 1500, 24, 50) // 30h to runout, outside both windows

	res := f.evaluate(t)
	assert.Empty(t, res.Actions)
	assert.Empty(t, res.Flags)
}

func TestHealthySiteIsQuiet(t *testing.T) {
	f := newFixture(t)
	f.addSite(t, "SAT-01", 8000, 24, 100)

	res := f.evaluate(t)
	assert.Empty(t, res.Actions)
}

func TestUnassignedSitesAreNotSwept(t *testing.T) {
	f := newFixture(t)
	other := f.addSite(t, "ELP-01", 900, 24, 120) // 7.5h to runout, but not ours
	require.NoError(t, f.store.AssignSiteAgent(context.Background(), other.ID, "agent_night"))

	res := f.evaluate(t)
	assert.Zero(t, res.SitesChecked)
	assert.Empty(t, res.Actions, "another agent's site is not this agent's problem")
}

func TestAtRiskSiteDelayedLoadEscalates(t *testing.T) {
	f := newFixture(t)
	site := f.addSite(t, "DAL-03", 900, 24, 120)
	carrier := f.addCarrier(t, "Lone Star Hauling")
	load := f.addLoad(t, &store.Load{
		PONumber: "PO-2026-114", SiteID: site.ID, CarrierID: carrier.ID,
		Status: store.LoadDelayed, Gallons: 7500,
		ETA: hoursAhead(3), LastETAUpdate: hoursAgo(1),
	})

	res := f.evaluate(t)

	require.Len(t, res.Actions, 1, "a fresh ETA suppresses the stale-ETA request")
	a := res.Actions[0]
	assert.Equal(t, ActionCreateEscalation, a.Kind)
	assert.Equal(t, IssueDeliveryDelayed, a.IssueType)
	assert.Equal(t, store.PriorityHigh, a.Priority, "delay while runout is inside 24h is high")
	assert.Equal(t, load.ID, a.LoadID)
	assert.Equal(t, carrier.ID, a.CarrierID)
}

func TestAtRiskDelayMediumWhenRunoutDistant(t *testing.T) {
	f := newFixture(t)
	site := f.addSite(t, "AUS-02", 1500, 48, 50) // 30h to runout, under a 48h threshold
	carrier := f.addCarrier(t, "Lone Star Hauling")
	f.addLoad(t, &store.Load{
		PONumber: "PO-2026-115", SiteID: site.ID, CarrierID: carrier.ID,
		Status: store.LoadDelayed, Gallons: 7500,
		ETA: hoursAhead(3), LastETAUpdate: hoursAgo(1),
	})

	res := f.evaluate(t)

	require.Len(t, res.Actions, 1)
	assert.Equal(t, store.PriorityMedium, res.Actions[0].Priority)
}

func TestStaleETARequestOnAtRiskSite(t *testing.T) {
	f := newFixture(t)
	site := f.addSite(t, "DAL-03", 900, 24, 120)
	carrier := f.addCarrier(t, "Lone Star Hauling")
	load := f.addLoad(t, &store.Load{
		PONumber: "PO-2026-116", SiteID: site.ID, CarrierID: carrier.ID,
		Status: store.LoadInTransit, Gallons: 7500,
		ETA: hoursAhead(5), LastETAUpdate: hoursAgo(6),
	})

	res := f.evaluate(t)

	require.Len(t, res.Actions, 1)
	a := res.Actions[0]
	assert.Equal(t, ActionSendETARequest, a.Kind)
	assert.Equal(t, load.ID, a.LoadID)
	assert.Contains(t, a.UrgencyNote, "running low")
}

func TestStaleETARequestHonorsCooldown(t *testing.T) {
	f := newFixture(t)
	site := f.addSite(t, "DAL-03", 900, 24, 120)
	carrier := f.addCarrier(t, "Lone Star Hauling")
	f.addLoad(t, &store.Load{
		PONumber: "PO-2026-117", SiteID: site.ID, CarrierID: carrier.ID,
		Status: store.LoadInTransit, Gallons: 7500,
		ETA: hoursAhead(5), LastETAUpdate: hoursAgo(6),
		LastETARequest: hoursAgo(1),
	})

	res := f.evaluate(t)
	assert.Empty(t, res.Actions, "a request went out an hour ago; do not nag")
}

func TestMissingETACountsAsStale(t *testing.T) {
	f := newFixture(t)
	site := f.addSite(t, "DAL-03", 900, 24, 120)
	carrier := f.addCarrier(t, "Lone Star Hauling")
	f.addLoad(t, &store.Load{
		PONumber: "PO-2026-118", SiteID: site.ID, CarrierID: carrier.ID,
		Status: store.LoadScheduled, Gallons: 7500,
	})

	res := f.evaluate(t)

	require.Len(t, res.Actions, 1)
	assert.Equal(t, ActionSendETARequest, res.Actions[0].Kind)
}

func TestUnreliableCarrierReferredToJudgment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	site := f.addSite(t, "DAL-03", 900, 24, 120)
	carrier := f.addCarrier(t, "Gulf Coast Transport")

	// All-late history drops reliability well under the flag threshold.
	for i := 0; i < 5; i++ {
		require.NoError(t, f.graph.OnLoadDelivered(ctx, carrier.ID, site.ID, false, 6, 2880, testNow.Add(-24*time.Hour)))
	}

	f.addLoad(t, &store.Load{
		PONumber: "PO-2026-119", SiteID: site.ID, CarrierID: carrier.ID,
		Status: store.LoadInTransit, Gallons: 7500,
		ETA: hoursAhead(5), LastETAUpdate: hoursAgo(1),
	})

	res := f.evaluate(t)

	require.Len(t, res.Flags, 1)
	fl := res.Flags[0]
	assert.Equal(t, FlagUnreliableCarrier, fl.Reason)
	assert.Equal(t, carrier.ID, fl.CarrierID)
	assert.Contains(t, fl.Description, "reliability")
}

func TestHealthySiteDelayedLoadGetsNudge(t *testing.T) {
	f := newFixture(t)
	site := f.addSite(t, "SAT-01", 8000, 24, 100)
	carrier := f.addCarrier(t, "Lone Star Hauling")
	load := f.addLoad(t, &store.Load{
		PONumber: "PO-2026-120", SiteID: site.ID, CarrierID: carrier.ID,
		Status: store.LoadDelayed, Gallons: 7500,
	})

	res := f.evaluate(t)

	require.Len(t, res.Actions, 1)
	a := res.Actions[0]
	assert.Equal(t, ActionSendETARequest, a.Kind)
	assert.Equal(t, load.ID, a.LoadID)
	assert.Empty(t, a.UrgencyNote, "healthy sites do not press urgency")
}

func TestHealthySiteNudgeHonorsSlowerCooldown(t *testing.T) {
	f := newFixture(t)
	site := f.addSite(t, "SAT-01", 8000, 24, 100)
	carrier := f.addCarrier(t, "Lone Star Hauling")
	f.addLoad(t, &store.Load{
		PONumber: "PO-2026-121", SiteID: site.ID, CarrierID: carrier.ID,
		Status: store.LoadDelayed, Gallons: 7500,
		LastETARequest: hoursAgo(3),
	})

	res := f.evaluate(t)
	assert.Empty(t, res.Actions, "three hours is inside the healthy-site cadence")
}

func TestPastETAMakesLoadDelayed(t *testing.T) {
	f := newFixture(t)
	site := f.addSite(t, "SAT-01", 8000, 24, 100)
	carrier := f.addCarrier(t, "Lone Star Hauling")
	f.addLoad(t, &store.Load{
		PONumber: "PO-2026-122", SiteID: site.ID, CarrierID: carrier.ID,
		Status: store.LoadInTransit, Gallons: 7500,
		ETA: hoursAgo(2), LastETAUpdate: hoursAgo(3),
	})

	res := f.evaluate(t)

	require.Len(t, res.Actions, 1)
	assert.Equal(t, ActionSendETARequest, res.Actions[0].Kind)
}

func TestCarrierIntoTwoAtRiskSitesFlagged(t *testing.T) {
	f := newFixture(t)
	dal := f.addSite(t, "DAL-03", 900, 24, 120)  // 7.5h to runout
	hou := f.addSite(t, "HOU-01", 1800, 24, 100) // 18h to runout
	carrier := f.addCarrier(t, "Gulf Coast Transport")

	// Neither load is in trouble on its own; the exposure is the carrier
	// being the only supply line into two sites that are both running down.
	f.addLoad(t, &store.Load{
		PONumber: "PO-2026-301", SiteID: dal.ID, CarrierID: carrier.ID,
		Status: store.LoadInTransit, Gallons: 7500,
		ETA: hoursAhead(5), LastETAUpdate: hoursAgo(1),
	})
	f.addLoad(t, &store.Load{
		PONumber: "PO-2026-302", SiteID: hou.ID, CarrierID: carrier.ID,
		Status: store.LoadInTransit, Gallons: 7500,
		ETA: hoursAhead(5), LastETAUpdate: hoursAgo(1),
	})

	res := f.evaluate(t)

	require.Len(t, res.Flags, 1)
	fl := res.Flags[0]
	assert.Equal(t, FlagMultiSiteCarrier, fl.Reason)
	assert.Equal(t, carrier.ID, fl.CarrierID)
	assert.Contains(t, fl.Description, "2 at-risk sites")
}

func TestCarrierAtOneRiskSiteNotFlagged(t *testing.T) {
	f := newFixture(t)
	dal := f.addSite(t, "DAL-03", 900, 24, 120)
	sat := f.addSite(t, "SAT-01", 8000, 24, 100) // healthy
	carrier := f.addCarrier(t, "Gulf Coast Transport")

	f.addLoad(t, &store.Load{
		PONumber: "PO-2026-303", SiteID: dal.ID, CarrierID: carrier.ID,
		Status: store.LoadInTransit, Gallons: 7500,
		ETA: hoursAhead(5), LastETAUpdate: hoursAgo(1),
	})
	f.addLoad(t, &store.Load{
		PONumber: "PO-2026-304", SiteID: sat.ID, CarrierID: carrier.ID,
		Status: store.LoadInTransit, Gallons: 7500,
		ETA: hoursAhead(5), LastETAUpdate: hoursAgo(1),
	})

	res := f.evaluate(t)
	assert.Empty(t, res.Flags, "a single at-risk exposure is a local problem")
}

func TestDelaysIntoHealthySitesNotFlagged(t *testing.T) {
	f := newFixture(t)
	hou := f.addSite(t, "HOU-01", 8000, 24, 100)
	aus := f.addSite(t, "AUS-02", 8000, 24, 100)
	carrier := f.addCarrier(t, "Gulf Coast Transport")

	// Running late into two sites that both have days of supply gets the
	// per-load nudges, not a cross-site referral.
	f.addLoad(t, &store.Load{
		PONumber: "PO-2026-305", SiteID: hou.ID, CarrierID: carrier.ID,
		Status: store.LoadDelayed, Gallons: 7500,
	})
	f.addLoad(t, &store.Load{
		PONumber: "PO-2026-306", SiteID: aus.ID, CarrierID: carrier.ID,
		Status: store.LoadDelayed, Gallons: 7500,
	})

	res := f.evaluate(t)
	assert.Empty(t, res.Flags)
	assert.Len(t, res.Actions, 2)
}

func TestRunoutRuleIsTerminalForSite(t *testing.T) {
	f := newFixture(t)
	f.addSite(t, "DAL-03", 900, 24, 120)
	f.addSite(t, "SAT-01", 8000, 24, 100)

	res := f.evaluate(t)

	assert.Equal(t, 2, res.SitesChecked)
	require.Len(t, res.Actions, 1, "only the runout escalation, nothing else for that site")
	assert.Equal(t, IssueRunoutRisk, res.Actions[0].IssueType)
}
