// Package server exposes the HTTP surface: the inbound email webhook,
// escalation resolution, knowledge-graph intelligence reads, run history,
// and manual cycle triggers.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/DebileOrpheus45/fuels-logistics-ai/internal/graph"
	"github.com/DebileOrpheus45/fuels-logistics-ai/internal/mailparse"
	"github.com/DebileOrpheus45/fuels-logistics-ai/internal/otel"
	"github.com/DebileOrpheus45/fuels-logistics-ai/internal/store"
)

const defaultTimeout = 60 * time.Second

// CycleRunner triggers one monitoring cycle for an agent. The coordinator
// satisfies this.
type CycleRunner interface {
	RunCycle(ctx context.Context, agentID string) (*store.Run, error)
}

// Server holds the dependencies of the HTTP API.
type Server struct {
	router       *chi.Mux
	store        *store.Store
	graph        *graph.Store
	parser       *mailparse.Parser
	runner       CycleRunner
	inboundToken string
	startTime    time.Time
}

// NewServer builds a Server. inboundToken validates the email webhook; empty
// disables the check (local development).
func NewServer(st *store.Store, g *graph.Store, parser *mailparse.Parser, runner CycleRunner, inboundToken string) *Server {
	return &Server{
		router:       chi.NewRouter(),
		store:        st,
		graph:        g,
		parser:       parser,
		runner:       runner,
		inboundToken: inboundToken,
		startTime:    time.Now(),
	}
}

// Routes returns the configured http.Handler. The manual cycle trigger is
// registered without the default request timeout: a cycle with a judgment
// review can legitimately run for minutes.
func (s *Server) Routes() http.Handler {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(otel.MiddlewareWithStatus())

	r.Get("/healthz", s.handleHealth)

	r.Post("/api/agents/{id}/run", s.handleAgentRun)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(defaultTimeout))

		r.Post("/api/email/inbound", s.handleInboundEmail)
		r.Post("/api/loads/{po}/status", s.handleLoadStatus)

		r.Get("/api/escalations", s.handleEscalationsList)
		r.Post("/api/escalations/{id}/resolve", s.handleEscalationResolve)

		r.Get("/api/intelligence/carriers", s.handleCarriersList)
		r.Get("/api/intelligence/carriers/{id}", s.handleCarrierGet)
		r.Get("/api/intelligence/sites", s.handleSitesList)
		r.Get("/api/intelligence/sites/{id}", s.handleSiteGet)

		r.Get("/api/runs", s.handleRunsList)
	})

	return r
}
