package gate

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/DebileOrpheus45/fuels-logistics-ai/internal/graph"
	"github.com/DebileOrpheus45/fuels-logistics-ai/internal/mailer"
	"github.com/DebileOrpheus45/fuels-logistics-ai/internal/rules"
	"github.com/DebileOrpheus45/fuels-logistics-ai/internal/store"
)

// Executor applies gated actions. Both tiers route their side effects
// through it, so dedup, draft recording, activity logging, and knowledge
// graph updates happen in exactly one place.
type Executor struct {
	store  *store.Store
	graph  *graph.Store
	mailer mailer.Mailer
	policy *Policy
	now    func() time.Time
}

// NewExecutor wires an executor.
func NewExecutor(st *store.Store, g *graph.Store, m mailer.Mailer, p *Policy) *Executor {
	return &Executor{store: st, graph: g, mailer: m, policy: p, now: time.Now}
}

// WithClock overrides the executor's clock. For tests.
func (x *Executor) WithClock(now func() time.Time) *Executor {
	x.now = now
	return x
}

// Outcome tallies what one batch of actions actually did.
type Outcome struct {
	EscalationsCreated int
	EscalationsUpdated int
	EmailsSent         int
	Drafted            int
	Errors             int
}

// Actions returns how many actions took or drafted an effect.
func (o *Outcome) Actions() int {
	return o.EscalationsCreated + o.EscalationsUpdated + o.EmailsSent + o.Drafted
}

// Apply runs every Tier-1 action through the gate. One failing action does
// not stop the rest; failures are logged and counted so a single broken
// email address can't mask a runout escalation later in the batch.
func (x *Executor) Apply(ctx context.Context, agent *store.Agent, actions []rules.Action) *Outcome {
	ctx, span := tracer.Start(ctx, "gate.apply",
		trace.WithAttributes(
			attribute.String("agent_id", agent.ID),
			attribute.String("mode", agent.ExecutionMode),
			attribute.Int("action_count", len(actions)),
		))
	defer span.End()

	out := &Outcome{}
	for _, a := range actions {
		var err error
		switch a.Kind {
		case rules.ActionCreateEscalation:
			err = x.Escalate(ctx, agent, EscalationRequest{
				SiteID:      a.SiteID,
				LoadID:      a.LoadID,
				CarrierID:   a.CarrierID,
				IssueType:   a.IssueType,
				Priority:    a.Priority,
				Description: a.Description,
				Source:      store.SourceTier1,
				IsRunout:    a.IssueType == rules.IssueRunoutRisk,
			}, out)
		case rules.ActionSendETARequest:
			err = x.RequestETA(ctx, agent, a.LoadID, a.UrgencyNote, out)
		default:
			err = fmt.Errorf("unknown action kind %q", a.Kind)
		}
		if err != nil {
			out.Errors++
			log.Error().Err(err).
				Str("agent_id", agent.ID).
				Str("kind", string(a.Kind)).
				Str("site_id", a.SiteID).
				Str("load_id", a.LoadID).
				Msg("action_failed")
		}
	}

	span.SetAttributes(
		attribute.Int("escalations_created", out.EscalationsCreated),
		attribute.Int("emails_sent", out.EmailsSent),
		attribute.Int("drafted", out.Drafted),
		attribute.Int("errors", out.Errors),
	)
	return out
}

// EscalationRequest is the gate-level escalation payload, shared by the
// rule pass, the judgment tier, and the staleness monitor.
type EscalationRequest struct {
	SiteID      string
	LoadID      string
	CarrierID   string
	IssueType   string
	Priority    string
	Description string
	Source      string
	IsRunout    bool
}

// Escalate creates or refreshes an escalation through the gate. An open
// escalation for the same entity and issue gets its description updated in
// place instead of a duplicate row. In modes where escalation writes do not
// execute, a draft activity is recorded instead.
func (x *Executor) Escalate(ctx context.Context, agent *store.Agent, req EscalationRequest, out *Outcome) error {
	decision, err := x.policy.Decide(ctx, agent.ExecutionMode, EffectCreateEscalation)
	if err != nil {
		return err
	}
	now := x.now().UTC()

	if !decision.Execute {
		out.Drafted++
		return x.store.LogActivity(ctx, &store.Activity{
			AgentID:     agent.ID,
			Type:        store.ActivityEscalationDrafted,
			EntityID:    firstNonEmpty(req.LoadID, req.SiteID, req.CarrierID),
			Description: fmt.Sprintf("[%s/%s] %s", req.IssueType, req.Priority, req.Description),
		})
	}

	existing, err := x.store.FindOpenEscalation(ctx, req.SiteID, req.LoadID, req.IssueType)
	if err == nil {
		if uerr := x.store.UpdateEscalationDescription(ctx, existing.ID, req.Description, req.Priority, now); uerr != nil {
			return uerr
		}
		out.EscalationsUpdated++
		return x.store.LogActivity(ctx, &store.Activity{
			AgentID:     agent.ID,
			Type:        store.ActivityEscalationUpdated,
			EntityID:    existing.ID,
			Description: req.Description,
		})
	}
	if err != store.ErrNotFound {
		return err
	}

	esc := &store.Escalation{
		SiteID:      req.SiteID,
		LoadID:      req.LoadID,
		CarrierID:   req.CarrierID,
		IssueType:   req.IssueType,
		Priority:    req.Priority,
		Description: req.Description,
		Source:      req.Source,
	}
	err = x.store.WithTx(ctx, func(tx *store.Tx) error {
		if err := tx.CreateEscalation(ctx, esc); err != nil {
			return err
		}
		return tx.LogActivity(ctx, &store.Activity{
			AgentID:     agent.ID,
			Type:        store.ActivityEscalationCreated,
			EntityID:    esc.ID,
			Description: req.Description,
		})
	})
	if err != nil {
		return err
	}
	out.EscalationsCreated++

	if gerr := x.graph.OnEscalationCreated(ctx, req.CarrierID, req.SiteID, req.IssueType, req.IsRunout, now); gerr != nil {
		log.Warn().Err(gerr).Str("escalation_id", esc.ID).Msg("graph_update_failed")
	}

	log.Info().
		Str("agent_id", agent.ID).
		Str("escalation_id", esc.ID).
		Str("issue_type", req.IssueType).
		Str("priority", req.Priority).
		Msg("escalation_created")
	return nil
}

// RequestETA sends (or drafts) the standard ETA request email for a load.
// Only an actually-sent email stamps the load's request cooldown; a draft
// leaves the load untouched.
func (x *Executor) RequestETA(ctx context.Context, agent *store.Agent, loadID, urgencyNote string, out *Outcome) error {
	load, err := x.store.GetLoad(ctx, loadID)
	if err != nil {
		return fmt.Errorf("loading load: %w", err)
	}
	site, err := x.store.GetSite(ctx, load.SiteID)
	if err != nil {
		return fmt.Errorf("loading site: %w", err)
	}
	carrier, err := x.store.GetCarrier(ctx, load.CarrierID)
	if err != nil {
		return fmt.Errorf("loading carrier: %w", err)
	}

	subject, body := mailer.ComposeETARequest(load.PONumber, site.Code, urgencyNote)
	now := x.now().UTC()

	decision, err := x.policy.Decide(ctx, agent.ExecutionMode, EffectSendEmail)
	if err != nil {
		return err
	}

	if !decision.Execute {
		out.Drafted++
		return x.store.LogActivity(ctx, &store.Activity{
			AgentID:     agent.ID,
			Type:        store.ActivityEmailDrafted,
			EntityID:    load.ID,
			Description: fmt.Sprintf("to %s: %s", carrier.ContactEmail, subject),
		})
	}

	if _, err := x.mailer.Send(ctx, mailer.Message{
		To:      carrier.ContactEmail,
		Subject: subject,
		Body:    body,
	}); err != nil {
		return fmt.Errorf("sending eta request: %w", err)
	}
	out.EmailsSent++

	if err := x.store.MarkETARequested(ctx, load.ID, now); err != nil {
		return err
	}
	if err := x.store.LogActivity(ctx, &store.Activity{
		AgentID:     agent.ID,
		Type:        store.ActivityEmailSent,
		EntityID:    load.ID,
		Description: fmt.Sprintf("to %s: %s", carrier.ContactEmail, subject),
	}); err != nil {
		return err
	}
	if gerr := x.graph.OnETARequestSent(ctx, load.CarrierID, now); gerr != nil {
		log.Warn().Err(gerr).Str("load_id", load.ID).Msg("graph_update_failed")
	}
	return nil
}

// Observe writes an observation to the activity log. Observations execute
// in every mode.
func (x *Executor) Observe(ctx context.Context, agent *store.Agent, entityID, text string) error {
	decision, err := x.policy.Decide(ctx, agent.ExecutionMode, EffectLogObservation)
	if err != nil {
		return err
	}
	if !decision.Execute {
		// The policy always permits observations; this is belt and braces.
		return nil
	}
	return x.store.LogActivity(ctx, &store.Activity{
		AgentID:     agent.ID,
		Type:        store.ActivityObservation,
		EntityID:    entityID,
		Description: text,
	})
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
