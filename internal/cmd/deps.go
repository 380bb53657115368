package cmd

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/DebileOrpheus45/fuels-logistics-ai/internal/config"
	"github.com/DebileOrpheus45/fuels-logistics-ai/internal/coordinator"
	"github.com/DebileOrpheus45/fuels-logistics-ai/internal/gate"
	"github.com/DebileOrpheus45/fuels-logistics-ai/internal/graph"
	"github.com/DebileOrpheus45/fuels-logistics-ai/internal/judgment"
	"github.com/DebileOrpheus45/fuels-logistics-ai/internal/llm"
	"github.com/DebileOrpheus45/fuels-logistics-ai/internal/mailer"
	"github.com/DebileOrpheus45/fuels-logistics-ai/internal/mailparse"
	"github.com/DebileOrpheus45/fuels-logistics-ai/internal/rules"
	"github.com/DebileOrpheus45/fuels-logistics-ai/internal/staleness"
	"github.com/DebileOrpheus45/fuels-logistics-ai/internal/store"
)

// app bundles the wired components every command operates on.
type app struct {
	cfg     *config.Config
	store   *store.Store
	graph   *graph.Store
	coord   *coordinator.Coordinator
	parser  *mailparse.Parser
	monitor *staleness.Monitor
}

// openApp loads config and wires the full component graph. The returned
// cleanup closes both databases.
func openApp(ctx context.Context) (*app, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, nil, fmt.Errorf("creating data directory: %w", err)
	}

	st, err := store.New(cfg.DBPath())
	if err != nil {
		return nil, nil, fmt.Errorf("opening store: %w", err)
	}

	g, err := graph.New(cfg.GraphDBPath())
	if err != nil {
		st.Close()
		return nil, nil, fmt.Errorf("opening knowledge graph: %w", err)
	}
	cleanup := func() {
		g.Close()
		st.Close()
	}

	policy, err := gate.NewPolicy(ctx)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("building gate policy: %w", err)
	}

	var outbound mailer.Mailer
	if cfg.MailBaseURL != "" {
		outbound = mailer.NewHTTPMailer(cfg.MailBaseURL, cfg.MailAPIKey, cfg.MailFrom)
	} else {
		log.Warn().Msg("no mail provider configured, outbound email is log-only")
		outbound = mailer.NewLogMailer()
	}

	exec := gate.NewExecutor(st, g, outbound, policy)
	evaluator := rules.NewEvaluator(st, g)

	var provider llm.Provider
	if cfg.AnthropicAPIKey != "" {
		provider = llm.NewAnthropicProvider(cfg.AnthropicAPIKey)
	} else {
		log.Warn().Msg("no reasoning-service key configured, judgment tier and LLM parse stage disabled")
	}

	var judge *judgment.Judge
	if provider != nil {
		judge = judgment.NewJudge(st, g, exec, provider, cfg.JudgmentModel)
	}

	return &app{
		cfg:     cfg,
		store:   st,
		graph:   g,
		coord:   coordinator.New(st, g, evaluator, exec, judge),
		parser:  mailparse.NewParser(provider, cfg.ParserModel),
		monitor: staleness.NewMonitor(st, staleness.Config{}),
	}, cleanup, nil
}
