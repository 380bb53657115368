package rules

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/DebileOrpheus45/fuels-logistics-ai/internal/graph"
	fuelsotel "github.com/DebileOrpheus45/fuels-logistics-ai/internal/otel"
	"github.com/DebileOrpheus45/fuels-logistics-ai/internal/store"
)

var tracer = fuelsotel.Tracer("github.com/DebileOrpheus45/fuels-logistics-ai/internal/rules")

// Evaluator runs the ordered Tier-1 rule pass. now is injectable so tests
// can pin the clock.
type Evaluator struct {
	store *store.Store
	graph *graph.Store
	now   func() time.Time
}

// NewEvaluator creates an evaluator over the operational store and the
// knowledge graph.
func NewEvaluator(st *store.Store, g *graph.Store) *Evaluator {
	return &Evaluator{store: st, graph: g, now: time.Now}
}

// WithClock overrides the evaluator's clock. For tests.
func (e *Evaluator) WithClock(now func() time.Time) *Evaluator {
	e.now = now
	return e
}

// Evaluate runs the full rule pass over the agent's assigned sites.
//
// Per site, rules apply in order and the first two are terminal — once a
// site has no inbound supply and a near runout, nothing else about that
// site matters this cycle:
//
//  1. no inbound loads, runout < 12h  → critical escalation (terminal)
//  2. no inbound loads, runout < 24h  → high escalation (terminal)
//  3. at-risk site (runout under its threshold) with inbound loads →
//     per-load checks: delayed load escalations, stale-ETA requests,
//     unreliable-carrier referrals
//  4. healthy site with a delayed load → ETA request on a slower cadence
//
// After the site loop, rule 5 refers carriers carrying supply into two or
// more at-risk sites at once to the judgment tier, since cross-site triage
// needs context no single-site rule has.
func (e *Evaluator) Evaluate(ctx context.Context, agentID string) (*Result, error) {
	ctx, span := tracer.Start(ctx, "rules.evaluate",
		trace.WithAttributes(attribute.String("agent_id", agentID)))
	defer span.End()

	now := e.now().UTC()
	res := &Result{}

	sites, err := e.store.ListSitesByAgent(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("listing sites: %w", err)
	}
	res.SitesChecked = len(sites)

	// carrier id → set of at-risk sites that carrier is hauling into,
	// accumulated for rule 5.
	riskSitesByCarrier := map[string]map[string]bool{}

	for i := range sites {
		site := &sites[i]

		inbound, err := e.store.ListInboundLoads(ctx, site.ID)
		if err != nil {
			return nil, fmt.Errorf("listing loads for %s: %w", site.Code, err)
		}
		res.LoadsChecked += len(inbound)

		if site.AtRisk() {
			for _, l := range inbound {
				bySite := riskSitesByCarrier[l.CarrierID]
				if bySite == nil {
					bySite = map[string]bool{}
					riskSitesByCarrier[l.CarrierID] = bySite
				}
				bySite[site.ID] = true
			}
		}

		if len(inbound) == 0 {
			e.evaluateNoSupply(site, now, res)
			continue
		}

		if site.AtRisk() {
			if err := e.evaluateAtRiskSite(ctx, site, inbound, now, res); err != nil {
				return nil, err
			}
			continue
		}

		e.evaluateHealthySite(site, inbound, now, res)
	}

	// Rule 5: a carrier on the hook at two or more at-risk sites at once is
	// a network-level problem; no per-site action fits.
	for carrierID, siteSet := range riskSitesByCarrier {
		if len(siteSet) < 2 {
			continue
		}
		res.Flags = append(res.Flags, Flag{
			Reason:    FlagMultiSiteCarrier,
			CarrierID: carrierID,
			Description: fmt.Sprintf(
				"carrier %s holds loads into %d at-risk sites", carrierID, len(siteSet)),
		})
	}

	res.Summary = fmt.Sprintf(
		"checked %d sites and %d loads: %d actions, %d judgment referrals",
		res.SitesChecked, res.LoadsChecked, len(res.Actions), len(res.Flags))

	span.SetAttributes(
		attribute.Int("sites_checked", res.SitesChecked),
		attribute.Int("loads_checked", res.LoadsChecked),
		attribute.Int("actions", len(res.Actions)),
		attribute.Int("flags", len(res.Flags)),
	)
	return res, nil
}

// evaluateNoSupply handles rules 1 and 2: a site with nothing on the way
// and a runout clock already running.
func (e *Evaluator) evaluateNoSupply(site *store.Site, now time.Time, res *Result) {
	runout := site.HoursToRunout()

	switch {
	case runout < criticalRunoutHours:
		res.Actions = append(res.Actions, Action{
			Kind:      ActionCreateEscalation,
			SiteID:    site.ID,
			IssueType: IssueRunoutRisk,
			Priority:  store.PriorityCritical,
			Description: fmt.Sprintf(
				"%s has no active loads; projected runout in %.1fh (%.0f gal on hand)",
				site.Code, runout, site.CurrentGallons),
		})
	case runout < highRunoutHours:
		res.Actions = append(res.Actions, Action{
			Kind:      ActionCreateEscalation,
			SiteID:    site.ID,
			IssueType: IssueRunoutRisk,
			Priority:  store.PriorityHigh,
			Description: fmt.Sprintf(
				"%s has no active loads; projected runout in %.1fh (%.0f gal on hand)",
				site.Code, runout, site.CurrentGallons),
		})
	}
}

// evaluateAtRiskSite handles rule 3: the site's projected runout is under
// its threshold but supply is inbound, so each load gets scrutinized
// individually.
func (e *Evaluator) evaluateAtRiskSite(ctx context.Context, site *store.Site, inbound []store.Load, now time.Time, res *Result) error {
	runout := site.HoursToRunout()

	for i := range inbound {
		l := &inbound[i]

		if e.loadDelayed(l, now) {
			priority := store.PriorityMedium
			if runout < highRunoutHours {
				priority = store.PriorityHigh
			}
			res.Actions = append(res.Actions, Action{
				Kind:      ActionCreateEscalation,
				SiteID:    site.ID,
				LoadID:    l.ID,
				CarrierID: l.CarrierID,
				IssueType: IssueDeliveryDelayed,
				Priority:  priority,
				Description: fmt.Sprintf(
					"load %s to %s is delayed while the site runs toward runout (%.1fh left)",
					l.PONumber, site.Code, runout),
			})
		}

		if e.etaStale(l, now) && cooldownElapsed(l.LastETARequest, now, etaCooldownHours) {
			res.Actions = append(res.Actions, Action{
				Kind:      ActionSendETARequest,
				SiteID:    site.ID,
				LoadID:    l.ID,
				CarrierID: l.CarrierID,
				UrgencyNote: fmt.Sprintf(
					"Site %s is running low; projected runout in %.1f hours.", site.Code, runout),
				Description: fmt.Sprintf("stale ETA on %s for low site %s", l.PONumber, site.Code),
			})
		}

		if runout < highRunoutHours {
			intel, err := e.graph.Carrier(ctx, l.CarrierID)
			if err != nil {
				return fmt.Errorf("reading carrier intelligence: %w", err)
			}
			if intel.FlaggedUnreliable {
				res.Flags = append(res.Flags, Flag{
					Reason:    FlagUnreliableCarrier,
					SiteID:    site.ID,
					CarrierID: l.CarrierID,
					Description: fmt.Sprintf(
						"load %s into low site %s rides on a carrier with reliability %.2f",
						l.PONumber, site.Code, intel.Reliability),
				})
			}
		}
	}
	return nil
}

// evaluateHealthySite handles rule 4: the site is fine on inventory, but a
// delayed load still deserves a nudge on a slower cadence.
func (e *Evaluator) evaluateHealthySite(site *store.Site, inbound []store.Load, now time.Time, res *Result) {
	for i := range inbound {
		l := &inbound[i]
		if !e.loadDelayed(l, now) {
			continue
		}
		if !cooldownElapsed(l.LastETARequest, now, delayedCooldown) {
			continue
		}
		res.Actions = append(res.Actions, Action{
			Kind:        ActionSendETARequest,
			SiteID:      site.ID,
			LoadID:      l.ID,
			CarrierID:   l.CarrierID,
			UrgencyNote: "",
			Description: fmt.Sprintf("delayed load %s to %s", l.PONumber, site.Code),
		})
	}
}

// loadDelayed reports whether the load is marked delayed or its ETA has
// already passed without a delivery.
func (e *Evaluator) loadDelayed(l *store.Load, now time.Time) bool {
	if l.Status == store.LoadDelayed {
		return true
	}
	return l.ETA != nil && l.ETA.Before(now)
}

// etaStale reports whether the load's ETA information is too old to trust:
// no ETA at all, or no refresh within staleETAHours.
func (e *Evaluator) etaStale(l *store.Load, now time.Time) bool {
	if l.ETA == nil || l.LastETAUpdate == nil {
		return true
	}
	return now.Sub(*l.LastETAUpdate) > staleETAHours*time.Hour
}

// cooldownElapsed reports whether at least hours have passed since last
// (nil counts as elapsed).
func cooldownElapsed(last *time.Time, now time.Time, hours int) bool {
	if last == nil {
		return true
	}
	return now.Sub(*last) > time.Duration(hours)*time.Hour
}
