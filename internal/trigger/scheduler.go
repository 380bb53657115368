// Package trigger drives recurring work: one cron entry per enabled agent
// at its configured check interval, plus a fixed staleness sweep over the
// whole fleet.
package trigger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/DebileOrpheus45/fuels-logistics-ai/internal/staleness"
	"github.com/DebileOrpheus45/fuels-logistics-ai/internal/store"
)

const (
	cycleTimeout  = 10 * time.Minute
	sweepSchedule = "@every 30m"
)

// CycleRunner executes one monitoring cycle for an agent. The coordinator
// satisfies this; cycle failures land in the run record, so an error here
// means the run could not even be recorded.
type CycleRunner interface {
	RunCycle(ctx context.Context, agentID string) (*store.Run, error)
}

// Sweeper checks the fleet for stale inventory and ETA data.
type Sweeper interface {
	Sweep(ctx context.Context) (*staleness.Report, error)
}

// Scheduler manages cron entries for agents and the staleness sweep.
type Scheduler struct {
	cron    *cron.Cron
	runner  CycleRunner
	sweeper Sweeper

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

// NewScheduler creates a scheduler. sweeper may be nil to disable the
// staleness sweep (useful in tests).
func NewScheduler(runner CycleRunner, sweeper Sweeper) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		runner:  runner,
		sweeper: sweeper,
		entries: make(map[string]cron.EntryID),
	}
}

// AddAgent registers or re-registers an agent's recurring cycle at its
// check interval. Calling it again after an interval change replaces the
// previous entry.
func (s *Scheduler) AddAgent(agent *store.Agent) error {
	if agent.CheckIntervalMinutes <= 0 {
		return fmt.Errorf("agent %s: check interval must be positive, got %d",
			agent.ID, agent.CheckIntervalMinutes)
	}

	agentID := agent.ID
	spec := fmt.Sprintf("@every %dm", agent.CheckIntervalMinutes)

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.entries[agentID]; ok {
		s.cron.Remove(old)
		delete(s.entries, agentID)
	}

	id, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), cycleTimeout)
		defer cancel()

		log.Info().Str("agent_id", agentID).Msg("scheduled_cycle_fired")
		if _, err := s.runner.RunCycle(ctx, agentID); err != nil {
			log.Error().Err(err).Str("agent_id", agentID).Msg("scheduled_cycle_failed")
		}
	})
	if err != nil {
		return fmt.Errorf("registering schedule %q for agent %s: %w", spec, agentID, err)
	}
	s.entries[agentID] = id

	log.Info().
		Str("agent_id", agentID).
		Int("interval_minutes", agent.CheckIntervalMinutes).
		Msg("agent_scheduled")
	return nil
}

// RemoveAgent drops an agent's cron entry. Removing an unknown agent is a
// no-op.
func (s *Scheduler) RemoveAgent(agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.entries[agentID]; ok {
		s.cron.Remove(id)
		delete(s.entries, agentID)
	}
}

// RegisterAgents loads every enabled agent from the store and schedules it.
func (s *Scheduler) RegisterAgents(ctx context.Context, st *store.Store) error {
	agents, err := st.ListEnabledAgents(ctx)
	if err != nil {
		return fmt.Errorf("listing agents: %w", err)
	}
	for i := range agents {
		if err := s.AddAgent(&agents[i]); err != nil {
			return err
		}
	}
	return nil
}

// Start registers the staleness sweep and begins executing entries.
func (s *Scheduler) Start() error {
	if s.sweeper != nil {
		if _, err := s.cron.AddFunc(sweepSchedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), cycleTimeout)
			defer cancel()

			report, err := s.sweeper.Sweep(ctx)
			if err != nil {
				log.Error().Err(err).Msg("staleness_sweep_failed")
				return
			}
			log.Info().
				Int("stale_sites", report.StaleSites).
				Int("stale_loads", report.StaleLoads).
				Int("escalations_created", report.EscalationsCreated).
				Msg("staleness_sweep_finished")
		}); err != nil {
			return fmt.Errorf("registering staleness sweep: %w", err)
		}
	}
	s.cron.Start()
	return nil
}

// Stop halts the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Entries returns the number of registered cron entries (for testing).
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}
