package gate

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DebileOrpheus45/fuels-logistics-ai/internal/graph"
	"github.com/DebileOrpheus45/fuels-logistics-ai/internal/mailer"
	"github.com/DebileOrpheus45/fuels-logistics-ai/internal/rules"
	"github.com/DebileOrpheus45/fuels-logistics-ai/internal/store"
)

func TestPolicyMatrix(t *testing.T) {
	p, err := NewPolicy(context.Background())
	require.NoError(t, err)

	tests := []struct {
		mode    string
		effect  string
		execute bool
	}{
		{store.ModeDraftOnly, EffectSendEmail, false},
		{store.ModeDraftOnly, EffectCreateEscalation, false},
		{store.ModeDraftOnly, EffectLogObservation, true},
		{store.ModeAutoEmail, EffectSendEmail, true},
		{store.ModeAutoEmail, EffectCreateEscalation, false},
		{store.ModeAutoEmail, EffectLogObservation, true},
		{store.ModeFullAuto, EffectSendEmail, true},
		{store.ModeFullAuto, EffectCreateEscalation, true},
		{store.ModeFullAuto, EffectLogObservation, true},
	}
	for _, tt := range tests {
		t.Run(tt.mode+"/"+tt.effect, func(t *testing.T) {
			d, err := p.Decide(context.Background(), tt.mode, tt.effect)
			require.NoError(t, err)
			assert.Equal(t, tt.execute, d.Execute)
			if !tt.execute {
				assert.NotEmpty(t, d.Reason)
			}
		})
	}
}

func TestPolicyUnknownMode(t *testing.T) {
	p, err := NewPolicy(context.Background())
	require.NoError(t, err)

	d, err := p.Decide(context.Background(), "yolo", EffectSendEmail)
	require.NoError(t, err)
	assert.False(t, d.Execute, "unknown modes must fail safe to draft")
}

type fakeMailer struct {
	sent []mailer.Message
	err  error
}

func (f *fakeMailer) Send(_ context.Context, msg mailer.Message) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, msg)
	return store.NewID("mail"), nil
}

type fixture struct {
	store   *store.Store
	graph   *graph.Store
	mail    *fakeMailer
	exec    *Executor
	site    *store.Site
	carrier *store.Carrier
	load    *store.Load
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	st, err := store.New(filepath.Join(dir, "fuels.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	g, err := graph.New(filepath.Join(dir, "graph.db"))
	require.NoError(t, err)
	t.Cleanup(func() { g.Close() })

	p, err := NewPolicy(ctx)
	require.NoError(t, err)

	fm := &fakeMailer{}
	f := &fixture{
		store: st,
		graph: g,
		mail:  fm,
		exec:  NewExecutor(st, g, fm, p),
	}

	f.site = &store.Site{
		Code:                 "DAL-03",
		Name:                 "Dallas South",
		CurrentGallons:       900,
		RunoutThresholdHours: 24,
		ConsumptionPerHr:     120,
		TankCapacity:         10000,
		ContactEmail:         "manager@dal03.example.com",
		Active:               true,
		InventoryUpdated:     time.Now().UTC(),
	}
	require.NoError(t, st.CreateSite(ctx, f.site))

	f.carrier = &store.Carrier{
		Name:         "Lone Star Hauling",
		ContactEmail: "dispatch@lonestar.example.com",
	}
	require.NoError(t, st.CreateCarrier(ctx, f.carrier))

	eta := time.Now().UTC().Add(6 * time.Hour)
	f.load = &store.Load{
		PONumber:  "PO-2026-114",
		SiteID:    f.site.ID,
		CarrierID: f.carrier.ID,
		Status:    store.LoadInTransit,
		Gallons:   7500,
		ETA:       &eta,
	}
	require.NoError(t, st.CreateLoad(ctx, f.load))
	return f
}

func agentWithMode(t *testing.T, st *store.Store, mode string) *store.Agent {
	t.Helper()
	a := &store.Agent{
		Name:                 "texas-fuel-watch",
		ExecutionMode:        mode,
		CheckIntervalMinutes: 15,
		Enabled:              true,
	}
	require.NoError(t, st.CreateAgent(context.Background(), a))
	return a
}

func TestApplyFullAuto(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	agent := agentWithMode(t, f.store, store.ModeFullAuto)

	out := f.exec.Apply(ctx, agent, []rules.Action{
		{
			Kind:        rules.ActionCreateEscalation,
			SiteID:      f.site.ID,
			CarrierID:   f.carrier.ID,
			IssueType:   rules.IssueRunoutRisk,
			Priority:    store.PriorityCritical,
			Description: "site DAL-03 projected to run out in 7.5h with no inbound supply",
		},
		{
			Kind:        rules.ActionSendETARequest,
			LoadID:      f.load.ID,
			SiteID:      f.site.ID,
			CarrierID:   f.carrier.ID,
			UrgencyNote: "Site is projected to run out within 24 hours.",
		},
	})

	assert.Equal(t, 1, out.EscalationsCreated)
	assert.Equal(t, 1, out.EmailsSent)
	assert.Equal(t, 0, out.Drafted)
	assert.Equal(t, 0, out.Errors)

	require.Len(t, f.mail.sent, 1)
	assert.Equal(t, "dispatch@lonestar.example.com", f.mail.sent[0].To)
	assert.Contains(t, f.mail.sent[0].Subject, "PO-2026-114")
	assert.Contains(t, f.mail.sent[0].Body, "run out within 24 hours")

	esc, err := f.store.FindOpenEscalation(ctx, f.site.ID, "", rules.IssueRunoutRisk)
	require.NoError(t, err)
	assert.Equal(t, store.PriorityCritical, esc.Priority)
	assert.Equal(t, store.SourceTier1, esc.Source)

	load, err := f.store.GetLoad(ctx, f.load.ID)
	require.NoError(t, err)
	require.NotNil(t, load.LastETARequest, "sent request must stamp the cooldown")

	ci, err := f.graph.Carrier(ctx, f.carrier.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, ci.ETARequests)
}

func TestApplyDraftOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	agent := agentWithMode(t, f.store, store.ModeDraftOnly)

	out := f.exec.Apply(ctx, agent, []rules.Action{
		{
			Kind:        rules.ActionCreateEscalation,
			SiteID:      f.site.ID,
			IssueType:   rules.IssueRunoutRisk,
			Priority:    store.PriorityHigh,
			Description: "low inventory, thin cover",
		},
		{
			Kind:   rules.ActionSendETARequest,
			LoadID: f.load.ID,
		},
	})

	assert.Equal(t, 2, out.Drafted)
	assert.Equal(t, 0, out.EscalationsCreated)
	assert.Equal(t, 0, out.EmailsSent)
	assert.Empty(t, f.mail.sent)

	_, err := f.store.FindOpenEscalation(ctx, f.site.ID, "", rules.IssueRunoutRisk)
	assert.ErrorIs(t, err, store.ErrNotFound)

	// drafting is side-effect free: the load keeps no trace of a request
	// that never went out
	load, err := f.store.GetLoad(ctx, f.load.ID)
	require.NoError(t, err)
	assert.Nil(t, load.LastETARequest, "a draft must not stamp the request cooldown")

	acts, err := f.store.ListActivities(ctx, 10)
	require.NoError(t, err)
	types := make(map[string]int)
	for _, a := range acts {
		types[a.Type]++
	}
	assert.Equal(t, 1, types[store.ActivityEscalationDrafted])
	assert.Equal(t, 1, types[store.ActivityEmailDrafted])
}

func TestApplyAutoEmail(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	agent := agentWithMode(t, f.store, store.ModeAutoEmail)

	out := f.exec.Apply(ctx, agent, []rules.Action{
		{
			Kind:        rules.ActionCreateEscalation,
			SiteID:      f.site.ID,
			IssueType:   rules.IssueRunoutRisk,
			Priority:    store.PriorityHigh,
			Description: "low inventory, thin cover",
		},
		{
			Kind:   rules.ActionSendETARequest,
			LoadID: f.load.ID,
		},
	})

	assert.Equal(t, 1, out.EmailsSent)
	assert.Equal(t, 1, out.Drafted)
	assert.Equal(t, 0, out.EscalationsCreated)
	assert.Len(t, f.mail.sent, 1)
}

func TestEscalateDedup(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	agent := agentWithMode(t, f.store, store.ModeFullAuto)

	out := &Outcome{}
	req := EscalationRequest{
		SiteID:      f.site.ID,
		IssueType:   rules.IssueRunoutRisk,
		Priority:    store.PriorityHigh,
		Description: "first sighting",
		Source:      store.SourceTier1,
	}
	require.NoError(t, f.exec.Escalate(ctx, agent, req, out))

	req.Priority = store.PriorityCritical
	req.Description = "now 9 hours from empty"
	require.NoError(t, f.exec.Escalate(ctx, agent, req, out))

	assert.Equal(t, 1, out.EscalationsCreated)
	assert.Equal(t, 1, out.EscalationsUpdated)

	escs, err := f.store.ListOpenEscalations(ctx)
	require.NoError(t, err)
	require.Len(t, escs, 1)
	assert.Equal(t, store.PriorityCritical, escs[0].Priority)
	assert.Equal(t, "now 9 hours from empty", escs[0].Description)
}

func TestApplyContinueOnError(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	agent := agentWithMode(t, f.store, store.ModeFullAuto)

	out := f.exec.Apply(ctx, agent, []rules.Action{
		{Kind: rules.ActionSendETARequest, LoadID: "load_doesnotexist"},
		{
			Kind:        rules.ActionCreateEscalation,
			SiteID:      f.site.ID,
			IssueType:   rules.IssueRunoutRisk,
			Priority:    store.PriorityCritical,
			Description: "still must land despite the bad action before it",
		},
	})

	assert.Equal(t, 1, out.Errors)
	assert.Equal(t, 1, out.EscalationsCreated)
}

func TestObserve(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	agent := agentWithMode(t, f.store, store.ModeDraftOnly)

	require.NoError(t, f.exec.Observe(ctx, agent, f.load.ID, "carrier confirmed truck left the rack"))

	act, err := f.store.LastActivityFor(ctx, store.ActivityObservation, f.load.ID)
	require.NoError(t, err)
	assert.Contains(t, act.Description, "left the rack")
}
