package coordinator

import (
	"context"

	"github.com/DebileOrpheus45/fuels-logistics-ai/internal/graph"
	"github.com/DebileOrpheus45/fuels-logistics-ai/internal/rules"
	"github.com/DebileOrpheus45/fuels-logistics-ai/internal/store"
)

// historySource feeds the operational store's history into a knowledge
// graph rebuild. Request and response facts come from the per-load
// timestamps, so only the most recent contact per load survives a rebuild;
// delivery and escalation history is complete.
type historySource struct {
	store *store.Store
}

func (h *historySource) Deliveries(ctx context.Context) ([]graph.DeliveryFact, error) {
	loads, err := h.store.ListLoadsByStatus(ctx, store.LoadDelivered)
	if err != nil {
		return nil, err
	}
	// burn rates come from the current site records; historical deliveries
	// replay against today's consumption figures
	burnBySite := map[string]float64{}
	if sites, err := h.store.ListActiveSites(ctx); err == nil {
		for _, s := range sites {
			burnBySite[s.ID] = s.ConsumptionPerHr * 24
		}
	}

	var facts []graph.DeliveryFact
	for _, l := range loads {
		if l.DeliveredAt == nil {
			continue
		}
		// no committed ETA means there was nothing to miss
		onTime := l.ETA == nil || !l.DeliveredAt.After(*l.ETA)
		delayHours := 0.0
		if !onTime {
			delayHours = l.DeliveredAt.Sub(*l.ETA).Hours()
		}
		facts = append(facts, graph.DeliveryFact{
			CarrierID:        l.CarrierID,
			SiteID:           l.SiteID,
			OnTime:           onTime,
			DelayHours:       delayHours,
			DailyConsumption: burnBySite[l.SiteID],
			At:               *l.DeliveredAt,
		})
	}
	return facts, nil
}

func (h *historySource) ETARequests(ctx context.Context) ([]graph.ContactFact, error) {
	loads, err := h.store.ListLoads(ctx)
	if err != nil {
		return nil, err
	}
	var facts []graph.ContactFact
	for _, l := range loads {
		if l.LastETARequest != nil {
			facts = append(facts, graph.ContactFact{CarrierID: l.CarrierID, At: *l.LastETARequest})
		}
	}
	return facts, nil
}

func (h *historySource) ETAResponses(ctx context.Context) ([]graph.ContactFact, error) {
	loads, err := h.store.ListLoads(ctx)
	if err != nil {
		return nil, err
	}
	var facts []graph.ContactFact
	for _, l := range loads {
		if l.LastETAUpdate == nil {
			continue
		}
		// a reply that follows one of our requests carries a measurable
		// turnaround; anything else replays as unmeasured
		responseHours := -1.0
		if l.LastETARequest != nil && l.LastETAUpdate.After(*l.LastETARequest) {
			responseHours = l.LastETAUpdate.Sub(*l.LastETARequest).Hours()
		}
		facts = append(facts, graph.ContactFact{
			CarrierID:     l.CarrierID,
			ResponseHours: responseHours,
			At:            *l.LastETAUpdate,
		})
	}
	return facts, nil
}

func (h *historySource) Escalations(ctx context.Context) ([]graph.EscalationFact, error) {
	escs, err := h.store.ListEscalations(ctx)
	if err != nil {
		return nil, err
	}
	var facts []graph.EscalationFact
	for _, e := range escs {
		facts = append(facts, graph.EscalationFact{
			CarrierID:  e.CarrierID,
			SiteID:     e.SiteID,
			IssueType:  e.IssueType,
			IsRunout:   e.IssueType == rules.IssueRunoutRisk,
			FalseAlarm: e.FalseAlarm,
			CreatedAt:  e.CreatedAt,
			ResolvedAt: e.ResolvedAt,
		})
	}
	return facts, nil
}
