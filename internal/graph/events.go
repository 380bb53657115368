package graph

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// OnLoadDelivered records a completed delivery for the carrier and site.
// onTime means the truck arrived no later than the last communicated ETA;
// delayHours is how far past it the truck ran (0 when on time).
// dailyConsumption is the site's burn rate at delivery time, in gallons per
// day, folded into the site's running average.
func (s *Store) OnLoadDelivered(ctx context.Context, carrierID, siteID string, onTime bool, delayHours, dailyConsumption float64, at time.Time) error {
	ctx, span := tracer.Start(ctx, "graph.on_load_delivered",
		trace.WithAttributes(
			attribute.String("carrier_id", carrierID),
			attribute.Bool("on_time", onTime),
			attribute.Float64("delay_hours", delayHours),
		))
	defer span.End()

	detail := "late"
	if onTime {
		detail = "on_time"
	}
	ev := Event{Type: "delivery", Detail: detail, At: at}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.bumpCarrier(ctx, tx, carrierID, ev, at, func(c *carrierRow) {
			c.DeliveriesTotal++
			if onTime {
				c.DeliveriesOnTime++
				return
			}
			late := c.DeliveriesTotal - c.DeliveriesOnTime
			c.AvgDelayHours += (delayHours - c.AvgDelayHours) / float64(late)
			if delayHours > c.WorstDelayHours {
				c.WorstDelayHours = delayHours
			}
		}); err != nil {
			return err
		}
		if siteID == "" {
			return nil
		}
		return s.bumpSite(ctx, tx, siteID, ev, at, func(r *siteRow) {
			r.DeliveriesTotal++
			if dailyConsumption > 0 {
				r.AvgDailyConsumption += (dailyConsumption - r.AvgDailyConsumption) / float64(r.DeliveriesTotal)
			}
		})
	})
}

// OnETARequestSent records an outbound ETA request to the carrier.
func (s *Store) OnETARequestSent(ctx context.Context, carrierID string, at time.Time) error {
	ctx, span := tracer.Start(ctx, "graph.on_eta_request",
		trace.WithAttributes(attribute.String("carrier_id", carrierID)))
	defer span.End()

	ev := Event{Type: "eta_request", At: at}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.bumpCarrier(ctx, tx, carrierID, ev, at, func(c *carrierRow) {
			c.ETARequests++
		})
	})
}

// OnETAResponse records that the carrier answered an ETA request.
// responseHours is the gap between our request and the reply; pass a
// negative value when the reply arrived unsolicited and there is nothing
// to measure against.
func (s *Store) OnETAResponse(ctx context.Context, carrierID string, responseHours float64, at time.Time) error {
	ctx, span := tracer.Start(ctx, "graph.on_eta_response",
		trace.WithAttributes(attribute.String("carrier_id", carrierID)))
	defer span.End()

	ev := Event{Type: "eta_response", At: at}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.bumpCarrier(ctx, tx, carrierID, ev, at, func(c *carrierRow) {
			c.ETAResponses++
			if responseHours >= 0 {
				c.TimedResponses++
				c.AvgResponseHours += (responseHours - c.AvgResponseHours) / float64(c.TimedResponses)
			}
		})
	})
}

// OnEscalationCreated records a new escalation against the carrier and/or
// site it concerns. isRunout marks terminal out-of-stock events for sites.
func (s *Store) OnEscalationCreated(ctx context.Context, carrierID, siteID, issueType string, isRunout bool, at time.Time) error {
	ctx, span := tracer.Start(ctx, "graph.on_escalation_created",
		trace.WithAttributes(
			attribute.String("carrier_id", carrierID),
			attribute.String("site_id", siteID),
			attribute.String("issue_type", issueType),
		))
	defer span.End()

	ev := Event{Type: "escalation", Detail: issueType, At: at}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if carrierID != "" {
			if err := s.bumpCarrier(ctx, tx, carrierID, ev, at, func(c *carrierRow) {
				c.EscalationsTotal++
			}); err != nil {
				return err
			}
		}
		if siteID == "" {
			return nil
		}
		return s.bumpSite(ctx, tx, siteID, ev, at, func(r *siteRow) {
			r.EscalationsTotal++
			if isRunout {
				r.RunoutEvents++
			}
		})
	})
}

// OnEscalationResolved records an escalation resolution. A false alarm
// lowers the entity's risk score; a confirmed issue leaves it raised.
func (s *Store) OnEscalationResolved(ctx context.Context, carrierID, siteID string, falseAlarm bool, at time.Time) error {
	ctx, span := tracer.Start(ctx, "graph.on_escalation_resolved",
		trace.WithAttributes(
			attribute.String("carrier_id", carrierID),
			attribute.Bool("false_alarm", falseAlarm),
		))
	defer span.End()

	detail := "confirmed"
	if falseAlarm {
		detail = "false_alarm"
	}
	ev := Event{Type: "resolution", Detail: detail, At: at}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if carrierID != "" {
			if err := s.bumpCarrier(ctx, tx, carrierID, ev, at, func(c *carrierRow) {
				if falseAlarm {
					c.FalseAlarms++
				}
			}); err != nil {
				return err
			}
		}
		if siteID == "" {
			return nil
		}
		return s.bumpSite(ctx, tx, siteID, ev, at, func(r *siteRow) {
			if falseAlarm {
				r.FalseAlarms++
			}
		})
	})
}

type carrierRow struct {
	DeliveriesTotal  int
	DeliveriesOnTime int
	ETARequests      int
	ETAResponses     int
	TimedResponses   int
	EscalationsTotal int
	FalseAlarms      int
	AvgDelayHours    float64
	WorstDelayHours  float64
	AvgResponseHours float64
	RecentEvents     string
}

type siteRow struct {
	DeliveriesTotal     int
	EscalationsTotal    int
	FalseAlarms         int
	RunoutEvents        int
	AvgDailyConsumption float64
	RecentEvents        string
}

// bumpCarrier reads the carrier's row inside the transaction, applies
// mutate, appends ev to the ring buffer, and writes it back. Missing rows
// are created on first touch.
func (s *Store) bumpCarrier(ctx context.Context, tx *sql.Tx, carrierID string, ev Event, at time.Time, mutate func(*carrierRow)) error {
	var row carrierRow
	err := tx.QueryRowContext(ctx, `
		SELECT deliveries_total, deliveries_on_time, eta_requests, eta_responses,
		       timed_responses, escalations_total, false_alarms, avg_delay_hours,
		       worst_delay_hours, avg_response_hours, recent_events
		FROM carrier_stats WHERE carrier_id = ?`, carrierID).
		Scan(&row.DeliveriesTotal, &row.DeliveriesOnTime, &row.ETARequests,
			&row.ETAResponses, &row.TimedResponses, &row.EscalationsTotal,
			&row.FalseAlarms, &row.AvgDelayHours, &row.WorstDelayHours,
			&row.AvgResponseHours, &row.RecentEvents)
	if err == sql.ErrNoRows {
		row.RecentEvents = "[]"
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO carrier_stats (carrier_id, updated_at) VALUES (?, ?)`,
			carrierID, at); err != nil {
			return fmt.Errorf("creating carrier stats: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("reading carrier stats: %w", err)
	}

	mutate(&row)
	row.RecentEvents = appendEvent(row.RecentEvents, ev)

	_, err = tx.ExecContext(ctx, `
		UPDATE carrier_stats SET deliveries_total = ?, deliveries_on_time = ?,
		       eta_requests = ?, eta_responses = ?, timed_responses = ?,
		       escalations_total = ?, false_alarms = ?, avg_delay_hours = ?,
		       worst_delay_hours = ?, avg_response_hours = ?, recent_events = ?,
		       updated_at = ?
		WHERE carrier_id = ?`,
		row.DeliveriesTotal, row.DeliveriesOnTime, row.ETARequests,
		row.ETAResponses, row.TimedResponses, row.EscalationsTotal,
		row.FalseAlarms, row.AvgDelayHours, row.WorstDelayHours,
		row.AvgResponseHours, row.RecentEvents, at, carrierID)
	if err != nil {
		return fmt.Errorf("writing carrier stats: %w", err)
	}
	return nil
}

// bumpSite is the site-side twin of bumpCarrier.
func (s *Store) bumpSite(ctx context.Context, tx *sql.Tx, siteID string, ev Event, at time.Time, mutate func(*siteRow)) error {
	var row siteRow
	err := tx.QueryRowContext(ctx, `
		SELECT deliveries_total, escalations_total, false_alarms, runout_events,
		       avg_daily_consumption, recent_events
		FROM site_stats WHERE site_id = ?`, siteID).
		Scan(&row.DeliveriesTotal, &row.EscalationsTotal, &row.FalseAlarms,
			&row.RunoutEvents, &row.AvgDailyConsumption, &row.RecentEvents)
	if err == sql.ErrNoRows {
		row.RecentEvents = "[]"
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO site_stats (site_id, updated_at) VALUES (?, ?)`,
			siteID, at); err != nil {
			return fmt.Errorf("creating site stats: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("reading site stats: %w", err)
	}

	mutate(&row)
	row.RecentEvents = appendEvent(row.RecentEvents, ev)

	_, err = tx.ExecContext(ctx, `
		UPDATE site_stats SET deliveries_total = ?, escalations_total = ?,
		       false_alarms = ?, runout_events = ?, avg_daily_consumption = ?,
		       recent_events = ?, updated_at = ?
		WHERE site_id = ?`,
		row.DeliveriesTotal, row.EscalationsTotal, row.FalseAlarms,
		row.RunoutEvents, row.AvgDailyConsumption, row.RecentEvents, at, siteID)
	if err != nil {
		return fmt.Errorf("writing site stats: %w", err)
	}
	return nil
}
