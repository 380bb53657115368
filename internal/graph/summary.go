package graph

import (
	"context"
	"fmt"
	"strings"
)

// StatusSummary renders a short executive summary of carrier reliability and
// site risk, suitable for a morning report email or CLI output.
func (s *Store) StatusSummary(ctx context.Context) (string, error) {
	carriers, err := s.Carriers(ctx)
	if err != nil {
		return "", err
	}
	sites, err := s.Sites(ctx)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("Network status\n")

	flagged := 0
	for _, c := range carriers {
		if c.FlaggedUnreliable {
			flagged++
		}
	}
	fmt.Fprintf(&b, "- %d carriers tracked, %d flagged unreliable\n", len(carriers), flagged)

	atRisk := 0
	runouts := 0
	for _, st := range sites {
		if st.RiskScore >= 0.5 {
			atRisk++
		}
		runouts += st.RunoutEvents
	}
	fmt.Fprintf(&b, "- %d sites tracked, %d at elevated risk, %d runout events on record\n",
		len(sites), atRisk, runouts)

	return b.String(), nil
}

// FullReport renders per-entity detail: every carrier's scores and every
// site's risk, with recent history counts.
func (s *Store) FullReport(ctx context.Context) (string, error) {
	carriers, err := s.Carriers(ctx)
	if err != nil {
		return "", err
	}
	sites, err := s.Sites(ctx)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("Carrier intelligence\n")
	if len(carriers) == 0 {
		b.WriteString("  (no history yet)\n")
	}
	for _, c := range carriers {
		flag := ""
		if c.FlaggedUnreliable {
			flag = "  [UNRELIABLE]"
		}
		fmt.Fprintf(&b, "  %s: reliability %.2f (on-time %.0f%%, response %.0f%%), risk %.2f, %d deliveries, avg delay %.1fh (worst %.1fh), avg response %.1fh%s\n",
			c.CarrierID, c.Reliability, c.OnTimeRate*100, c.ResponseRate*100,
			c.RiskScore, c.DeliveriesTotal, c.AvgDelayHours, c.WorstDelayHours,
			c.AvgResponseHours, flag)
	}

	b.WriteString("\nSite intelligence\n")
	if len(sites) == 0 {
		b.WriteString("  (no history yet)\n")
	}
	for _, st := range sites {
		fmt.Fprintf(&b, "  %s: risk %.2f, %d deliveries, %d escalations (%d false alarms), %d runouts, ~%.0f gal/day\n",
			st.SiteID, st.RiskScore, st.DeliveriesTotal, st.EscalationsTotal,
			st.FalseAlarms, st.RunoutEvents, st.AvgDailyConsumption)
	}

	return b.String(), nil
}
