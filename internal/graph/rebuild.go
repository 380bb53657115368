package graph

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// Facts are the raw history a Rebuild replays. They come from the
// operational store; the interface keeps this package free of a dependency
// on it.

// DeliveryFact is one completed delivery. DelayHours is how far past the
// communicated ETA the truck arrived (0 when on time); DailyConsumption is
// the destination site's burn rate at delivery time, in gallons per day.
type DeliveryFact struct {
	CarrierID        string
	SiteID           string
	OnTime           bool
	DelayHours       float64
	DailyConsumption float64
	At               time.Time
}

// ContactFact is one outbound ETA request or inbound carrier response.
// ResponseHours only applies to responses; negative means unmeasured.
type ContactFact struct {
	CarrierID     string
	ResponseHours float64
	At            time.Time
}

// EscalationFact is one escalation's lifecycle.
type EscalationFact struct {
	CarrierID  string
	SiteID     string
	IssueType  string
	IsRunout   bool
	FalseAlarm bool
	CreatedAt  time.Time
	ResolvedAt *time.Time
}

// Source supplies the operational history a Rebuild replays.
type Source interface {
	Deliveries(ctx context.Context) ([]DeliveryFact, error)
	ETARequests(ctx context.Context) ([]ContactFact, error)
	ETAResponses(ctx context.Context) ([]ContactFact, error)
	Escalations(ctx context.Context) ([]EscalationFact, error)
}

// Rebuild wipes all statistics and replays the full operational history in
// chronological order through the same event handlers used live, so a
// rebuild lands on exactly the state incremental updates would have
// produced. Safe to run repeatedly.
func (s *Store) Rebuild(ctx context.Context, src Source) error {
	ctx, span := tracer.Start(ctx, "graph.rebuild")
	defer span.End()

	deliveries, err := src.Deliveries(ctx)
	if err != nil {
		return fmt.Errorf("loading deliveries: %w", err)
	}
	requests, err := src.ETARequests(ctx)
	if err != nil {
		return fmt.Errorf("loading eta requests: %w", err)
	}
	responses, err := src.ETAResponses(ctx)
	if err != nil {
		return fmt.Errorf("loading eta responses: %w", err)
	}
	escalations, err := src.Escalations(ctx)
	if err != nil {
		return fmt.Errorf("loading escalations: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM carrier_stats`); err != nil {
		return fmt.Errorf("wiping carrier stats: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM site_stats`); err != nil {
		return fmt.Errorf("wiping site stats: %w", err)
	}

	type replayEvent struct {
		at    time.Time
		apply func(ctx context.Context) error
	}
	var events []replayEvent

	for _, d := range deliveries {
		d := d
		events = append(events, replayEvent{at: d.At, apply: func(ctx context.Context) error {
			return s.OnLoadDelivered(ctx, d.CarrierID, d.SiteID, d.OnTime, d.DelayHours, d.DailyConsumption, d.At)
		}})
	}
	for _, r := range requests {
		r := r
		events = append(events, replayEvent{at: r.At, apply: func(ctx context.Context) error {
			return s.OnETARequestSent(ctx, r.CarrierID, r.At)
		}})
	}
	for _, r := range responses {
		r := r
		events = append(events, replayEvent{at: r.At, apply: func(ctx context.Context) error {
			return s.OnETAResponse(ctx, r.CarrierID, r.ResponseHours, r.At)
		}})
	}
	for _, e := range escalations {
		e := e
		events = append(events, replayEvent{at: e.CreatedAt, apply: func(ctx context.Context) error {
			return s.OnEscalationCreated(ctx, e.CarrierID, e.SiteID, e.IssueType, e.IsRunout, e.CreatedAt)
		}})
		if e.ResolvedAt != nil {
			events = append(events, replayEvent{at: *e.ResolvedAt, apply: func(ctx context.Context) error {
				return s.OnEscalationResolved(ctx, e.CarrierID, e.SiteID, e.FalseAlarm, *e.ResolvedAt)
			}})
		}
	}

	sort.Slice(events, func(i, j int) bool { return events[i].at.Before(events[j].at) })

	for _, ev := range events {
		if err := ev.apply(ctx); err != nil {
			return fmt.Errorf("replaying history: %w", err)
		}
	}

	span.SetAttributes(attribute.Int("replayed_events", len(events)))
	return nil
}
