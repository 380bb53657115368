package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/DebileOrpheus45/fuels-logistics-ai/internal/graph"
	"github.com/DebileOrpheus45/fuels-logistics-ai/internal/mailparse"
	"github.com/DebileOrpheus45/fuels-logistics-ai/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": code, "message": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
	})
}

// inboundEmail is the payload the email provider posts for each received
// message.
type inboundEmail struct {
	From       string `json:"from"`
	Subject    string `json:"subject"`
	Body       string `json:"body"`
	ReceivedAt string `json:"received_at,omitempty"` // RFC 3339; defaults to now
}

// handleInboundEmail routes a carrier reply to its load by PO number, runs
// the ETA parser, and falls back to the keyword scan when no time can be
// extracted. Non-actionable mail gets a 200 with status "ignored" so the
// provider does not retry it.
func (s *Server) handleInboundEmail(w http.ResponseWriter, r *http.Request) {
	if s.inboundToken != "" {
		token := r.Header.Get("X-Inbound-Token")
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.inboundToken)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid inbound token")
			return
		}
	}

	var email inboundEmail
	if err := json.NewDecoder(r.Body).Decode(&email); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	receivedAt := time.Now().UTC()
	if email.ReceivedAt != "" {
		t, err := time.Parse(time.RFC3339, email.ReceivedAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "received_at must be RFC 3339")
			return
		}
		receivedAt = t.UTC()
	}

	po := mailparse.ExtractPONumber(email.Subject, email.Body)
	if po == "" {
		log.Info().Str("from", email.From).Msg("inbound_email_no_po")
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ignored", "reason": "no PO number found",
		})
		return
	}

	load, err := s.store.GetLoadByPO(r.Context(), po)
	if errors.Is(err, store.ErrNotFound) {
		log.Warn().Str("po_number", po).Msg("inbound_email_unknown_po")
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ignored", "reason": "no load matches " + po,
		})
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}

	res := s.parser.Parse(r.Context(), email.Subject, email.Body, receivedAt)
	if res.ETA != nil {
		if err := s.recordETA(r, load, res, receivedAt); err != nil {
			writeError(w, http.StatusInternalServerError, "internal", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"status":    "parsed",
			"po_number": po,
			"method":    res.Method,
			"eta":       res.ETA.Format(time.RFC3339),
		})
		return
	}

	// No timestamp; look for trouble phrases before giving up. Vague
	// wording ("running late") matches nothing here and stays unparsed.
	if match := graph.ScanKeywords(email.Subject + "\n" + email.Body); match != nil {
		if err := s.escalateKeywordMatch(r, load, match, email.Body, receivedAt); err != nil {
			writeError(w, http.StatusInternalServerError, "internal", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"status":     "escalated",
			"po_number":  po,
			"issue_type": match.IssueType,
			"priority":   match.Priority,
		})
		return
	}

	log.Info().Str("po_number", po).Str("reason", res.Reason).Msg("inbound_email_unparsed")
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "unparsed", "po_number": po, "reason": res.Reason,
	})
}

// recordETA writes a parsed ETA through to the load, the activity log, and
// the knowledge graph.
func (s *Server) recordETA(r *http.Request, load *store.Load, res mailparse.Result, receivedAt time.Time) error {
	ctx := r.Context()
	if err := s.store.UpdateLoadETA(ctx, load.ID, res.ETA.UTC(), receivedAt); err != nil {
		return err
	}
	if err := s.store.LogActivity(ctx, &store.Activity{
		Type:        store.ActivityETAUpdated,
		EntityID:    load.ID,
		Description: "carrier reply parsed (" + res.Method + "): ETA " + res.ETA.Format(time.RFC3339),
	}); err != nil {
		return err
	}
	// A reply that answers one of our requests measures the carrier's
	// responsiveness; an unsolicited update has nothing to measure against.
	responseHours := -1.0
	if load.LastETARequest != nil {
		responseHours = receivedAt.Sub(*load.LastETARequest).Hours()
	}
	if err := s.graph.OnETAResponse(ctx, load.CarrierID, responseHours, receivedAt); err != nil {
		log.Warn().Err(err).Str("carrier_id", load.CarrierID).Msg("graph_update_failed")
	}
	log.Info().
		Str("load_id", load.ID).
		Str("po_number", load.PONumber).
		Str("method", res.Method).
		Time("eta", *res.ETA).
		Msg("eta_updated")
	return nil
}

// escalateKeywordMatch raises (or refreshes) an escalation for a known
// trouble phrase in an unparseable reply.
func (s *Server) escalateKeywordMatch(r *http.Request, load *store.Load, match *graph.KeywordMatch, body string, receivedAt time.Time) error {
	ctx := r.Context()
	desc := "carrier reply for " + load.PONumber + " mentions \"" + match.Matched + "\""

	existing, err := s.store.FindOpenEscalation(ctx, load.SiteID, load.ID, match.IssueType)
	if err == nil {
		return s.store.UpdateEscalationDescription(ctx, existing.ID, desc, match.Priority, receivedAt)
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	esc := &store.Escalation{
		SiteID:      load.SiteID,
		LoadID:      load.ID,
		CarrierID:   load.CarrierID,
		IssueType:   match.IssueType,
		Priority:    match.Priority,
		Description: desc,
		Source:      store.SourceInbound,
	}
	if err := s.store.CreateEscalation(ctx, esc); err != nil {
		return err
	}
	if gerr := s.graph.OnEscalationCreated(ctx, load.CarrierID, load.SiteID, match.IssueType, false, receivedAt); gerr != nil {
		log.Warn().Err(gerr).Str("escalation_id", esc.ID).Msg("graph_update_failed")
	}
	log.Info().
		Str("escalation_id", esc.ID).
		Str("issue_type", match.IssueType).
		Str("priority", match.Priority).
		Str("matched", match.Matched).
		Msg("escalation_created")
	return nil
}

// loadStatusUpdate is the payload dispatch posts when a load changes state.
type loadStatusUpdate struct {
	Status     string `json:"status"`
	OccurredAt string `json:"occurred_at,omitempty"` // RFC 3339; defaults to now
}

// handleLoadStatus records a load status change reported by dispatch,
// addressed by PO number. A delivery feeds the carrier's on-time record and
// the site's consumption history into the knowledge graph as it happens.
func (s *Server) handleLoadStatus(w http.ResponseWriter, r *http.Request) {
	po := chi.URLParam(r, "po")

	var req loadStatusUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	switch req.Status {
	case store.LoadScheduled, store.LoadInTransit, store.LoadDelayed,
		store.LoadDelivered, store.LoadCancelled:
	default:
		writeError(w, http.StatusBadRequest, "bad_request", "unknown status "+req.Status)
		return
	}

	occurredAt := time.Now().UTC()
	if req.OccurredAt != "" {
		t, err := time.Parse(time.RFC3339, req.OccurredAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "occurred_at must be RFC 3339")
			return
		}
		occurredAt = t.UTC()
	}

	ctx := r.Context()
	load, err := s.store.GetLoadByPO(ctx, po)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "no load matches "+po)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}

	if err := s.store.UpdateLoadStatus(ctx, load.ID, req.Status, occurredAt); err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	if err := s.store.LogActivity(ctx, &store.Activity{
		Type:        store.ActivityLoadStatus,
		EntityID:    load.ID,
		Description: "load " + load.PONumber + " marked " + req.Status,
	}); err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}

	if req.Status == store.LoadDelivered {
		s.recordDelivery(ctx, load, occurredAt)
	}

	load, err = s.store.GetLoad(ctx, load.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, load)
}

// recordDelivery feeds a completed delivery into the knowledge graph. Graph
// failures are logged, not surfaced: the status change already committed.
func (s *Server) recordDelivery(ctx context.Context, load *store.Load, deliveredAt time.Time) {
	onTime := true
	delayHours := 0.0
	if load.ETA != nil && deliveredAt.After(*load.ETA) {
		onTime = false
		delayHours = deliveredAt.Sub(*load.ETA).Hours()
	}

	dailyConsumption := 0.0
	if site, err := s.store.GetSite(ctx, load.SiteID); err == nil {
		dailyConsumption = site.ConsumptionPerHr * 24
	}

	if err := s.graph.OnLoadDelivered(ctx, load.CarrierID, load.SiteID, onTime, delayHours, dailyConsumption, deliveredAt); err != nil {
		log.Warn().Err(err).Str("load_id", load.ID).Msg("graph_update_failed")
	}
	log.Info().
		Str("load_id", load.ID).
		Str("po_number", load.PONumber).
		Bool("on_time", onTime).
		Float64("delay_hours", delayHours).
		Msg("load_delivered")
}

func (s *Server) handleEscalationsList(w http.ResponseWriter, r *http.Request) {
	escs, err := s.store.ListOpenEscalations(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"escalations": escs, "count": len(escs)})
}

// handleEscalationResolve closes an escalation and feeds the outcome back
// into carrier reliability. A false alarm raised on a carrier nudges its
// score up instead of down.
func (s *Server) handleEscalationResolve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		FalseAlarm bool `json:"false_alarm"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
			return
		}
	}

	esc, err := s.store.GetEscalation(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "no escalation "+id)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}

	now := time.Now().UTC()
	if err := s.store.TransitionEscalation(r.Context(), id, store.EscalationResolved, req.FalseAlarm, now); err != nil {
		writeError(w, http.StatusConflict, "invalid_transition", err.Error())
		return
	}
	if gerr := s.graph.OnEscalationResolved(r.Context(), esc.CarrierID, esc.SiteID, req.FalseAlarm, now); gerr != nil {
		log.Warn().Err(gerr).Str("escalation_id", id).Msg("graph_update_failed")
	}
	log.Info().
		Str("escalation_id", id).
		Bool("false_alarm", req.FalseAlarm).
		Msg("escalation_resolved")

	esc, err = s.store.GetEscalation(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, esc)
}

func (s *Server) handleCarriersList(w http.ResponseWriter, r *http.Request) {
	carriers, err := s.graph.Carriers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"carriers": carriers, "count": len(carriers)})
}

func (s *Server) handleCarrierGet(w http.ResponseWriter, r *http.Request) {
	ci, err := s.graph.Carrier(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ci)
}

func (s *Server) handleSitesList(w http.ResponseWriter, r *http.Request) {
	sites, err := s.graph.Sites(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sites": sites, "count": len(sites)})
}

func (s *Server) handleSiteGet(w http.ResponseWriter, r *http.Request) {
	si, err := s.graph.Site(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, si)
}

func (s *Server) handleRunsList(w http.ResponseWriter, r *http.Request) {
	agentID := r.URL.Query().Get("agent_id")

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			writeError(w, http.StatusBadRequest, "bad_request", "limit must be 1-500")
			return
		}
		limit = n
	}

	runs, err := s.store.ListRuns(r.Context(), agentID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"runs": runs, "count": len(runs)})
}

// handleAgentRun triggers one cycle outside the schedule. The response
// carries the finished run record, including a skipped one when a scheduled
// cycle is already in flight.
func (s *Server) handleAgentRun(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "id")

	run, err := s.runner.RunCycle(r.Context(), agentID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "no agent "+agentID)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, run)
}
