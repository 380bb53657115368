package graph

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Score weights: a carrier that delivers on time matters more than one that
// merely answers email promptly.
const (
	onTimeWeight   = 0.7
	responseWeight = 0.3

	// neutralRate is assumed for carriers with no history yet, so new
	// carriers start neither trusted nor flagged.
	neutralRate = 0.5
)

// CarrierIntelligence is the derived picture of one carrier.
type CarrierIntelligence struct {
	CarrierID         string  `json:"carrier_id"`
	Reliability       float64 `json:"reliability"`
	OnTimeRate        float64 `json:"on_time_rate"`
	ResponseRate      float64 `json:"response_rate"`
	RiskScore         float64 `json:"risk_score"`
	FlaggedUnreliable bool    `json:"flagged_unreliable"`
	DeliveriesTotal   int     `json:"deliveries_total"`
	DeliveriesOnTime  int     `json:"deliveries_on_time"`
	ETARequests       int     `json:"eta_requests"`
	ETAResponses      int     `json:"eta_responses"`
	EscalationsTotal  int     `json:"escalations_total"`
	FalseAlarms       int     `json:"false_alarms"`
	AvgDelayHours     float64 `json:"avg_delay_hours"`
	WorstDelayHours   float64 `json:"worst_delay_hours"`
	AvgResponseHours  float64 `json:"avg_response_hours"`
	RecentEvents      []Event `json:"recent_events"`
}

// SiteIntelligence is the derived picture of one site.
type SiteIntelligence struct {
	SiteID              string  `json:"site_id"`
	RiskScore           float64 `json:"risk_score"`
	DeliveriesTotal     int     `json:"deliveries_total"`
	EscalationsTotal    int     `json:"escalations_total"`
	FalseAlarms         int     `json:"false_alarms"`
	RunoutEvents        int     `json:"runout_events"`
	AvgDailyConsumption float64 `json:"avg_daily_consumption"`
	RecentEvents        []Event `json:"recent_events"`
}

// Carrier returns derived intelligence for one carrier. Unknown carriers get
// neutral scores rather than an error, so Tier-1 rules can consult the graph
// unconditionally.
func (s *Store) Carrier(ctx context.Context, carrierID string) (*CarrierIntelligence, error) {
	ctx, span := tracer.Start(ctx, "graph.carrier",
		trace.WithAttributes(attribute.String("carrier_id", carrierID)))
	defer span.End()

	var row carrierRow
	err := s.db.QueryRowContext(ctx, `
		SELECT deliveries_total, deliveries_on_time, eta_requests, eta_responses,
		       timed_responses, escalations_total, false_alarms, avg_delay_hours,
		       worst_delay_hours, avg_response_hours, recent_events
		FROM carrier_stats WHERE carrier_id = ?`, carrierID).
		Scan(&row.DeliveriesTotal, &row.DeliveriesOnTime, &row.ETARequests,
			&row.ETAResponses, &row.TimedResponses, &row.EscalationsTotal,
			&row.FalseAlarms, &row.AvgDelayHours, &row.WorstDelayHours,
			&row.AvgResponseHours, &row.RecentEvents)
	if err == sql.ErrNoRows {
		return carrierIntelligence(carrierID, carrierRow{RecentEvents: "[]"}), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading carrier stats: %w", err)
	}

	intel := carrierIntelligence(carrierID, row)
	span.SetAttributes(
		attribute.Float64("reliability", intel.Reliability),
		attribute.Bool("flagged_unreliable", intel.FlaggedUnreliable),
	)
	return intel, nil
}

// Site returns derived intelligence for one site. Unknown sites get neutral
// scores.
func (s *Store) Site(ctx context.Context, siteID string) (*SiteIntelligence, error) {
	ctx, span := tracer.Start(ctx, "graph.site",
		trace.WithAttributes(attribute.String("site_id", siteID)))
	defer span.End()

	var row siteRow
	err := s.db.QueryRowContext(ctx, `
		SELECT deliveries_total, escalations_total, false_alarms, runout_events,
		       avg_daily_consumption, recent_events
		FROM site_stats WHERE site_id = ?`, siteID).
		Scan(&row.DeliveriesTotal, &row.EscalationsTotal, &row.FalseAlarms,
			&row.RunoutEvents, &row.AvgDailyConsumption, &row.RecentEvents)
	if err == sql.ErrNoRows {
		return siteIntelligence(siteID, siteRow{RecentEvents: "[]"}), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading site stats: %w", err)
	}

	return siteIntelligence(siteID, row), nil
}

// Carriers returns intelligence for every carrier with recorded history.
func (s *Store) Carriers(ctx context.Context) ([]CarrierIntelligence, error) {
	ctx, span := tracer.Start(ctx, "graph.carriers")
	defer span.End()

	rows, err := s.db.QueryContext(ctx, `
		SELECT carrier_id, deliveries_total, deliveries_on_time, eta_requests,
		       eta_responses, timed_responses, escalations_total, false_alarms,
		       avg_delay_hours, worst_delay_hours, avg_response_hours, recent_events
		FROM carrier_stats ORDER BY carrier_id`)
	if err != nil {
		return nil, fmt.Errorf("querying carrier stats: %w", err)
	}
	defer rows.Close()

	var out []CarrierIntelligence
	for rows.Next() {
		var id string
		var row carrierRow
		if err := rows.Scan(&id, &row.DeliveriesTotal, &row.DeliveriesOnTime,
			&row.ETARequests, &row.ETAResponses, &row.TimedResponses,
			&row.EscalationsTotal, &row.FalseAlarms, &row.AvgDelayHours,
			&row.WorstDelayHours, &row.AvgResponseHours, &row.RecentEvents); err != nil {
			continue
		}
		out = append(out, *carrierIntelligence(id, row))
	}
	span.SetAttributes(attribute.Int("carrier_count", len(out)))
	return out, rows.Err()
}

// Sites returns intelligence for every site with recorded history.
func (s *Store) Sites(ctx context.Context) ([]SiteIntelligence, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT site_id, deliveries_total, escalations_total, false_alarms,
		       runout_events, avg_daily_consumption, recent_events
		FROM site_stats ORDER BY site_id`)
	if err != nil {
		return nil, fmt.Errorf("querying site stats: %w", err)
	}
	defer rows.Close()

	var out []SiteIntelligence
	for rows.Next() {
		var id string
		var row siteRow
		if err := rows.Scan(&id, &row.DeliveriesTotal, &row.EscalationsTotal,
			&row.FalseAlarms, &row.RunoutEvents, &row.AvgDailyConsumption,
			&row.RecentEvents); err != nil {
			continue
		}
		out = append(out, *siteIntelligence(id, row))
	}
	return out, rows.Err()
}

func carrierIntelligence(carrierID string, row carrierRow) *CarrierIntelligence {
	onTimeRate := neutralRate
	if row.DeliveriesTotal > 0 {
		onTimeRate = float64(row.DeliveriesOnTime) / float64(row.DeliveriesTotal)
	}
	responseRate := neutralRate
	if row.ETARequests > 0 {
		responseRate = clamp01(float64(row.ETAResponses) / float64(row.ETARequests))
	}

	reliability := clamp01(onTimeWeight*onTimeRate + responseWeight*responseRate)

	denom := row.DeliveriesTotal
	if denom < 1 {
		denom = 1
	}
	risk := clamp01(float64(row.EscalationsTotal-row.FalseAlarms) / float64(denom))

	var events []Event
	_ = json.Unmarshal([]byte(row.RecentEvents), &events)

	return &CarrierIntelligence{
		CarrierID:         carrierID,
		Reliability:       reliability,
		OnTimeRate:        onTimeRate,
		ResponseRate:      responseRate,
		RiskScore:         risk,
		FlaggedUnreliable: reliability < unreliableThreshold,
		DeliveriesTotal:   row.DeliveriesTotal,
		DeliveriesOnTime:  row.DeliveriesOnTime,
		ETARequests:       row.ETARequests,
		ETAResponses:      row.ETAResponses,
		EscalationsTotal:  row.EscalationsTotal,
		FalseAlarms:       row.FalseAlarms,
		AvgDelayHours:     row.AvgDelayHours,
		WorstDelayHours:   row.WorstDelayHours,
		AvgResponseHours:  row.AvgResponseHours,
		RecentEvents:      events,
	}
}

func siteIntelligence(siteID string, row siteRow) *SiteIntelligence {
	denom := row.DeliveriesTotal
	if denom < 1 {
		denom = 1
	}
	risk := clamp01(float64(row.EscalationsTotal-row.FalseAlarms) / float64(denom))

	var events []Event
	_ = json.Unmarshal([]byte(row.RecentEvents), &events)

	return &SiteIntelligence{
		SiteID:              siteID,
		RiskScore:           risk,
		DeliveriesTotal:     row.DeliveriesTotal,
		EscalationsTotal:    row.EscalationsTotal,
		FalseAlarms:         row.FalseAlarms,
		RunoutEvents:        row.RunoutEvents,
		AvgDailyConsumption: row.AvgDailyConsumption,
		RecentEvents:        events,
	}
}
