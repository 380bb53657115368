// Package coordinator runs one full monitoring cycle per agent: the
// deterministic rule pass, the execution gate, the judgment tier when the
// rules flag ambiguity, and the run-history record around all of it. No
// error from a cycle reaches the scheduler; every entry point traps and
// records a terminal run status.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/DebileOrpheus45/fuels-logistics-ai/internal/gate"
	"github.com/DebileOrpheus45/fuels-logistics-ai/internal/graph"
	"github.com/DebileOrpheus45/fuels-logistics-ai/internal/judgment"
	fuelsotel "github.com/DebileOrpheus45/fuels-logistics-ai/internal/otel"
	"github.com/DebileOrpheus45/fuels-logistics-ai/internal/rules"
	"github.com/DebileOrpheus45/fuels-logistics-ai/internal/store"
)

var tracer = fuelsotel.Tracer("github.com/DebileOrpheus45/fuels-logistics-ai/internal/coordinator")

// Coordinator wires the two tiers together and owns the per-agent lease
// that keeps a manual trigger from overlapping a scheduled tick.
type Coordinator struct {
	store     *store.Store
	graph     *graph.Store
	evaluator *rules.Evaluator
	exec      *gate.Executor
	judge     *judgment.Judge // nil disables the judgment tier

	mu       sync.Mutex
	inFlight map[string]bool
}

// New wires a coordinator. judge may be nil when no reasoning service is
// configured; flagged situations are then recorded in the run summary only.
func New(st *store.Store, g *graph.Store, ev *rules.Evaluator, exec *gate.Executor, judge *judgment.Judge) *Coordinator {
	return &Coordinator{
		store:     st,
		graph:     g,
		evaluator: ev,
		exec:      exec,
		judge:     judge,
		inFlight:  make(map[string]bool),
	}
}

// RunCycle executes one monitoring cycle for the agent and returns the
// finished run record. Cycle-internal failures land in the run record with
// status failed; the returned error is reserved for not even getting a
// record written (unknown agent, store down).
func (c *Coordinator) RunCycle(ctx context.Context, agentID string) (*store.Run, error) {
	ctx, span := tracer.Start(ctx, "coordinator.run_cycle",
		trace.WithAttributes(attribute.String("agent_id", agentID)))
	defer span.End()

	agent, err := c.store.GetAgent(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("loading agent: %w", err)
	}

	if !c.acquire(agentID) {
		// an overlapping trigger would read site and load state mid-cycle
		run, err := c.store.StartRun(ctx, agentID)
		if err != nil {
			return nil, err
		}
		run.Status = store.RunSkipped
		run.Summary = "cycle already in flight for this agent"
		if err := c.store.FinishRun(ctx, run); err != nil {
			return nil, err
		}
		log.Info().Str("agent_id", agentID).Msg("cycle_skipped_overlap")
		return run, nil
	}
	defer c.release(agentID)

	run, err := c.store.StartRun(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("starting run: %w", err)
	}

	if !agent.Enabled {
		run.Status = store.RunSkipped
		run.Summary = "agent disabled"
		return run, c.store.FinishRun(ctx, run)
	}

	c.cycle(ctx, agent, run)

	if err := c.store.FinishRun(ctx, run); err != nil {
		return run, fmt.Errorf("finishing run: %w", err)
	}
	log.Info().
		Str("agent_id", agent.ID).
		Str("run_id", run.ID).
		Str("status", run.Status).
		Int("actions_taken", run.ActionsTaken).
		Bool("tier2_invoked", run.Tier2Invoked).
		Func(fuelsotel.LogTraceFields(ctx)).
		Msg("cycle_finished")
	return run, nil
}

// cycle is the body of one run. It only ever writes its outcome into run.
func (c *Coordinator) cycle(ctx context.Context, agent *store.Agent, run *store.Run) {
	result, err := c.evaluator.Evaluate(ctx, agent.ID)
	if err != nil {
		// a broken rule pass means nothing was vetted; the judgment tier
		// is not attempted on top of it
		run.Status = store.RunFailed
		run.Error = fmt.Sprintf("rule pass: %v", err)
		return
	}
	run.SitesChecked = result.SitesChecked
	run.LoadsChecked = result.LoadsChecked
	run.Summary = result.Summary

	outcome := c.exec.Apply(ctx, agent, result.Actions)
	run.ActionsTaken = outcome.Actions()
	run.EscalationsCreated = outcome.EscalationsCreated
	run.EmailsSent = outcome.EmailsSent

	if len(result.Flags) > 0 {
		c.reviewFlags(ctx, agent, run, result.Flags)
	}

	if run.Status == "" || run.Status == store.RunRunning {
		run.Status = store.RunCompleted
	}
}

// reviewFlags hands the ambiguity flags to the judgment tier. A tier-two
// failure does not fail the run: tier-one results already executed stand.
func (c *Coordinator) reviewFlags(ctx context.Context, agent *store.Agent, run *store.Run, flags []rules.Flag) {
	if c.judge == nil {
		run.Summary += fmt.Sprintf(" %d flag(s) recorded without review: no reasoning service configured.", len(flags))
		return
	}

	run.Tier2Invoked = true
	res, err := c.judge.Review(ctx, agent, flags)
	if res != nil {
		run.LLMCalls += res.LLMCalls
		run.InputTokens += res.InputTokens
		run.OutputTokens += res.OutputTokens
		run.CostEUR += res.CostEUR
		run.ActionsTaken += res.Outcome.Actions()
		run.EscalationsCreated += res.Outcome.EscalationsCreated
		run.EmailsSent += res.Outcome.EmailsSent
	}
	if err != nil {
		log.Error().Err(err).Str("agent_id", agent.ID).Msg("judgment_tier_failed")
		run.Summary += " Judgment tier aborted: " + err.Error()
		return
	}
	if res.Summary != "" {
		run.Summary += " Review: " + res.Summary
	}
}

func (c *Coordinator) acquire(agentID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight[agentID] {
		return false
	}
	c.inFlight[agentID] = true
	return true
}

func (c *Coordinator) release(agentID string) {
	c.mu.Lock()
	delete(c.inFlight, agentID)
	c.mu.Unlock()
}

// RebuildGraph recomputes the knowledge graph from operational history.
// Safe to run repeatedly.
func (c *Coordinator) RebuildGraph(ctx context.Context) error {
	start := time.Now()
	if err := c.graph.Rebuild(ctx, &historySource{store: c.store}); err != nil {
		return fmt.Errorf("rebuilding graph: %w", err)
	}
	log.Info().Dur("took", time.Since(start)).Msg("graph_rebuilt")
	return nil
}
