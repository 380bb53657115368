// Package judgment is the second escalation tier: a bounded tool-use
// conversation with the reasoning service, invoked only when the rule pass
// flags a situation it cannot resolve deterministically. Side effects go
// through the same execution gate as tier one.
package judgment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/DebileOrpheus45/fuels-logistics-ai/internal/gate"
	"github.com/DebileOrpheus45/fuels-logistics-ai/internal/graph"
	"github.com/DebileOrpheus45/fuels-logistics-ai/internal/llm"
	fuelsotel "github.com/DebileOrpheus45/fuels-logistics-ai/internal/otel"
	"github.com/DebileOrpheus45/fuels-logistics-ai/internal/rules"
	"github.com/DebileOrpheus45/fuels-logistics-ai/internal/store"
)

var tracer = fuelsotel.Tracer("github.com/DebileOrpheus45/fuels-logistics-ai/internal/judgment")

// maxIterations caps the tool loop. The review ends earlier when the model
// calls complete_review or stops requesting tools.
const maxIterations = 10

const systemPrompt = `You are a fuel logistics risk reviewer. A deterministic rule pass has flagged situations it cannot resolve on its own, usually involving carrier reliability. Investigate each flagged situation using the tools, then decide whether anything needs an escalation or an ETA request. Be conservative: only escalate when the data supports real risk, and say so in the escalation description. When you are done, call complete_review with a short summary.`

// Judge runs tier-two reviews.
type Judge struct {
	store    *store.Store
	graph    *graph.Store
	exec     *gate.Executor
	provider llm.Provider
	model    string
}

// NewJudge wires a judge.
func NewJudge(st *store.Store, g *graph.Store, exec *gate.Executor, provider llm.Provider, model string) *Judge {
	return &Judge{store: st, graph: g, exec: exec, provider: provider, model: model}
}

// Result is what one review cost and did.
type Result struct {
	Summary      string
	Iterations   int
	LLMCalls     int
	InputTokens  int
	OutputTokens int
	CostEUR      float64
	Outcome      *gate.Outcome
}

// Review investigates the flagged situations. An error aborts only this
// tier; anything already executed stands, and the partial Result is
// returned alongside the error so the run record keeps its cost counters.
func (j *Judge) Review(ctx context.Context, agent *store.Agent, flags []rules.Flag) (*Result, error) {
	res := &Result{Outcome: &gate.Outcome{}}
	if len(flags) == 0 {
		return res, nil
	}

	ctx, span := tracer.Start(ctx, "judgment.review",
		trace.WithAttributes(
			attribute.String("agent_id", agent.ID),
			attribute.Int("flag_count", len(flags)),
		))
	defer span.End()

	bundle, err := j.buildContext(ctx, flags)
	if err != nil {
		return res, fmt.Errorf("building context: %w", err)
	}

	messages := []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: bundle},
	}
	tools := toolSchemas()

	for res.Iterations = 1; res.Iterations <= maxIterations; res.Iterations++ {
		resp, err := j.provider.Generate(ctx, &llm.Request{
			Model:     j.model,
			Messages:  messages,
			MaxTokens: 1024,
			Tools:     tools,
		})
		if err != nil {
			return res, fmt.Errorf("reasoning call %d: %w", res.LLMCalls+1, err)
		}
		res.LLMCalls++
		res.InputTokens += resp.InputTokens
		res.OutputTokens += resp.OutputTokens
		callCost := j.provider.EstimateCost(j.model, resp.InputTokens, resp.OutputTokens)
		res.CostEUR += callCost
		llm.RecordCostMetrics(ctx, callCost, agent.ID, j.model, "judgment")

		if len(resp.ToolCalls) == 0 {
			// no more tool calls is an implicit completion signal
			res.Summary = strings.TrimSpace(resp.Content)
			span.SetAttributes(attribute.Int("iterations", res.Iterations))
			return res, nil
		}

		messages = append(messages, llm.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		var results []llm.ToolResult
		done := false
		for _, tc := range resp.ToolCalls {
			content, finished, herr := j.dispatch(ctx, agent, tc, res)
			tr := llm.ToolResult{ToolCallID: tc.ID, Content: content}
			if herr != nil {
				tr.Content = herr.Error()
				tr.IsError = true
				log.Warn().Err(herr).
					Str("agent_id", agent.ID).
					Str("tool", tc.Name).
					Msg("tool_call_failed")
			}
			results = append(results, tr)
			done = done || finished
		}
		messages = append(messages, llm.Message{Role: "user", ToolResults: results})

		if done {
			span.SetAttributes(attribute.Int("iterations", res.Iterations))
			return res, nil
		}
	}

	res.Iterations = maxIterations
	if res.Summary == "" {
		res.Summary = "review stopped at iteration cap without completion"
	}
	log.Warn().Str("agent_id", agent.ID).Msg("judgment_iteration_cap")
	return res, nil
}

// dispatch decodes and executes one tool call. The switch is exhaustive over
// the Invocation implementations.
func (j *Judge) dispatch(ctx context.Context, agent *store.Agent, tc llm.ToolCall, res *Result) (string, bool, error) {
	inv, err := decodeInvocation(tc)
	if err != nil {
		return "", false, err
	}

	switch v := inv.(type) {
	case CheckSiteInventory:
		return j.describeSite(ctx, v.SiteID)

	case GetLoadDetails:
		return j.describeLoad(ctx, v.LoadID)

	case SendETARequest:
		if err := j.exec.RequestETA(ctx, agent, v.LoadID, v.UrgencyNote, res.Outcome); err != nil {
			return "", false, err
		}
		return "ETA request handled per the agent's execution mode", false, nil

	case CreateEscalation:
		if !store.ValidPriority(v.Priority) {
			return "", false, fmt.Errorf("invalid priority %q", v.Priority)
		}
		err := j.exec.Escalate(ctx, agent, gate.EscalationRequest{
			SiteID:      v.SiteID,
			LoadID:      v.LoadID,
			CarrierID:   v.CarrierID,
			IssueType:   v.IssueType,
			Priority:    v.Priority,
			Description: v.Description,
			Source:      store.SourceTier2,
		}, res.Outcome)
		if err != nil {
			return "", false, err
		}
		return "escalation handled per the agent's execution mode", false, nil

	case LogObservation:
		if err := j.exec.Observe(ctx, agent, v.EntityID, v.Text); err != nil {
			return "", false, err
		}
		return "observation recorded", false, nil

	case CompleteReview:
		res.Summary = strings.TrimSpace(v.Summary)
		return "review complete", true, nil
	}

	return "", false, fmt.Errorf("unhandled tool %q", tc.Name)
}

func (j *Judge) describeSite(ctx context.Context, siteID string) (string, bool, error) {
	site, err := j.store.GetSite(ctx, siteID)
	if err != nil {
		return "", false, fmt.Errorf("site %s: %w", siteID, err)
	}
	si, err := j.graph.Site(ctx, siteID)
	if err != nil {
		return "", false, fmt.Errorf("site intelligence %s: %w", siteID, err)
	}
	return fmt.Sprintf(
		"site %s (%s): %.0f gal on hand, burning %.0f gal/h, ~%.1fh to runout against a %.0fh threshold; historical risk score %.2f, %d runout escalations, %d false alarms",
		site.Code, site.ID, site.CurrentGallons, site.ConsumptionPerHr,
		site.HoursToRunout(), site.RunoutThresholdHours, si.RiskScore, si.RunoutEvents, si.FalseAlarms,
	), false, nil
}

func (j *Judge) describeLoad(ctx context.Context, loadID string) (string, bool, error) {
	load, err := j.store.GetLoad(ctx, loadID)
	if err != nil {
		return "", false, fmt.Errorf("load %s: %w", loadID, err)
	}
	carrier, err := j.store.GetCarrier(ctx, load.CarrierID)
	if err != nil {
		return "", false, fmt.Errorf("carrier %s: %w", load.CarrierID, err)
	}
	ci, err := j.graph.Carrier(ctx, load.CarrierID)
	if err != nil {
		return "", false, fmt.Errorf("carrier intelligence %s: %w", load.CarrierID, err)
	}
	eta := "unknown"
	if load.ETA != nil {
		eta = load.ETA.UTC().Format(time.RFC3339)
	}
	return fmt.Sprintf(
		"load %s (%s): status %s, %.0f gal, ETA %s, carrier %s (reliability %.2f, flagged_unreliable=%v, %d/%d deliveries on time)",
		load.PONumber, load.ID, load.Status, load.Gallons, eta,
		carrier.Name, ci.Reliability, ci.FlaggedUnreliable, ci.DeliveriesOnTime, ci.DeliveriesTotal,
	), false, nil
}

// buildContext renders the flagged situations plus knowledge-graph
// intelligence for every referenced carrier and site into the opening
// user message.
func (j *Judge) buildContext(ctx context.Context, flags []rules.Flag) (string, error) {
	var b strings.Builder
	b.WriteString("Flagged situations requiring review:\n")
	for i, f := range flags {
		fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, f.Reason, f.Description)
	}

	seenCarriers := map[string]bool{}
	seenSites := map[string]bool{}
	for _, f := range flags {
		if f.CarrierID != "" && !seenCarriers[f.CarrierID] {
			seenCarriers[f.CarrierID] = true
			ci, err := j.graph.Carrier(ctx, f.CarrierID)
			if err != nil {
				return "", err
			}
			name := f.CarrierID
			if c, err := j.store.GetCarrier(ctx, f.CarrierID); err == nil {
				name = fmt.Sprintf("%s (%s)", c.Name, c.ID)
			}
			fmt.Fprintf(&b,
				"\nCarrier %s: reliability %.2f (on-time rate %.2f, response rate %.2f), flagged_unreliable=%v, %d deliveries, avg delay %.1fh (worst %.1fh), %d ETA requests / %d answered, avg response %.1fh\n",
				name, ci.Reliability, ci.OnTimeRate, ci.ResponseRate,
				ci.FlaggedUnreliable, ci.DeliveriesTotal, ci.AvgDelayHours,
				ci.WorstDelayHours, ci.ETARequests, ci.ETAResponses, ci.AvgResponseHours)
		}
		if f.SiteID != "" && !seenSites[f.SiteID] {
			seenSites[f.SiteID] = true
			desc, _, err := j.describeSite(ctx, f.SiteID)
			if err != nil {
				return "", err
			}
			b.WriteString("\n" + desc + "\n")
		}
	}

	b.WriteString("\nInvestigate with the tools, act where justified, then call complete_review.")
	return b.String(), nil
}
