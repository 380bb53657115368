package store

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Load statuses.
const (
	LoadScheduled = "scheduled"
	LoadInTransit = "in_transit"
	LoadDelayed   = "delayed"
	LoadDelivered = "delivered"
	LoadCancelled = "cancelled"
)

// Escalation statuses. Transitions are one-directional:
// open → in_progress → resolved (skipping in_progress is allowed).
const (
	EscalationOpen       = "open"
	EscalationInProgress = "in_progress"
	EscalationResolved   = "resolved"
)

// Escalation priorities.
const (
	PriorityCritical = "critical"
	PriorityHigh     = "high"
	PriorityMedium   = "medium"
	PriorityLow      = "low"
)

// Escalation sources identify which component raised the escalation.
const (
	SourceTier1     = "tier1"
	SourceTier2     = "tier2"
	SourceStaleness = "staleness"
	SourceInbound   = "inbound_email"
)

// Agent execution modes, in increasing order of autonomy.
const (
	ModeDraftOnly = "draft_only"
	ModeAutoEmail = "auto_email"
	ModeFullAuto  = "full_auto"
)

// Run statuses.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
	RunSkipped   = "skipped"
)

// Site is a monitored fuel storage location.
type Site struct {
	ID                   string    `json:"id"`
	Code                 string    `json:"code"` // short human code, e.g. "DAL-03"
	Name                 string    `json:"name"`
	AssignedAgentID      string    `json:"assigned_agent_id,omitempty"`
	CurrentGallons       float64   `json:"current_gallons"`
	RunoutThresholdHours float64   `json:"runout_threshold_hours"` // at risk under this many hours of supply
	ConsumptionPerHr     float64   `json:"consumption_per_hr"` // gallons per hour
	TankCapacity         float64   `json:"tank_capacity"`
	ContactEmail         string    `json:"contact_email"`
	Active               bool      `json:"active"`
	InventoryUpdated     time.Time `json:"inventory_updated"`
	StaleAfterHours      float64   `json:"inventory_stale_hours"` // 0 = use the monitor's default
	CreatedAt            time.Time `json:"created_at"`
}

// AtRisk reports whether projected supply has dropped under the site's
// runout threshold.
func (s *Site) AtRisk() bool {
	return s.HoursToRunout() < s.RunoutThresholdHours
}

// HoursToRunout projects hours until the tank is empty at the current
// consumption rate. Returns a very large value when consumption is zero.
func (s *Site) HoursToRunout() float64 {
	if s.ConsumptionPerHr <= 0 {
		return 1e9
	}
	h := s.CurrentGallons / s.ConsumptionPerHr
	if h < 0 {
		return 0
	}
	return h
}

// Carrier is a fuel hauling company.
type Carrier struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	ContactEmail string    `json:"contact_email"`
	CreatedAt    time.Time `json:"created_at"`
}

// Load is a scheduled or in-flight fuel delivery.
type Load struct {
	ID             string     `json:"id"`
	PONumber       string     `json:"po_number"` // "PO-YYYY-NNN"
	SiteID         string     `json:"site_id"`
	CarrierID      string     `json:"carrier_id"`
	Status         string     `json:"status"`
	Gallons        float64    `json:"gallons"`
	ETA            *time.Time `json:"eta,omitempty"`
	ETAStaleHours  float64    `json:"eta_stale_hours"` // 0 = use the monitor's default
	LastETAUpdate  *time.Time `json:"last_eta_update,omitempty"`
	LastETARequest *time.Time `json:"last_eta_request,omitempty"` // last outbound ETA request email
	DeliveredAt    *time.Time `json:"delivered_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Inbound reports whether the load still counts as incoming supply.
func (l *Load) Inbound() bool {
	switch l.Status {
	case LoadScheduled, LoadInTransit, LoadDelayed:
		return true
	}
	return false
}

// Escalation is an issue requiring human attention.
type Escalation struct {
	ID          string     `json:"id"`
	SiteID      string     `json:"site_id,omitempty"`
	LoadID      string     `json:"load_id,omitempty"`
	CarrierID   string     `json:"carrier_id,omitempty"`
	IssueType   string     `json:"issue_type"`
	Priority    string     `json:"priority"`
	Status      string     `json:"status"`
	Description string     `json:"description"`
	Source      string     `json:"source"`
	FalseAlarm  bool       `json:"false_alarm"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
}

// Agent is a configured monitoring agent.
type Agent struct {
	ID                   string    `json:"id"`
	Name                 string    `json:"name"`
	ExecutionMode        string    `json:"execution_mode"`
	CheckIntervalMinutes int       `json:"check_interval_minutes"`
	Enabled              bool      `json:"enabled"`
	CreatedAt            time.Time `json:"created_at"`
}

// Activity is an append-only audit record of something the system did.
type Activity struct {
	ID          string    `json:"id"`
	AgentID     string    `json:"agent_id,omitempty"`
	Type        string    `json:"type"` // e.g. "email_sent", "escalation_created", "eta_updated"
	EntityID    string    `json:"entity_id,omitempty"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Run is one agent monitoring cycle, recorded from start to finish.
type Run struct {
	ID                 string     `json:"id"`
	AgentID            string     `json:"agent_id"`
	Status             string     `json:"status"`
	StartedAt          time.Time  `json:"started_at"`
	FinishedAt         *time.Time `json:"finished_at,omitempty"`
	SitesChecked       int        `json:"sites_checked"`
	LoadsChecked       int        `json:"loads_checked"`
	ActionsTaken       int        `json:"actions_taken"`
	EscalationsCreated int        `json:"escalations_created"`
	EmailsSent         int        `json:"emails_sent"`
	Tier2Invoked       bool       `json:"tier2_invoked"`
	LLMCalls           int        `json:"llm_calls"`
	InputTokens        int        `json:"input_tokens"`
	OutputTokens       int        `json:"output_tokens"`
	CostEUR            float64    `json:"cost_eur"`
	Summary            string     `json:"summary"`
	Error              string     `json:"error,omitempty"`
}

// NewID returns a prefixed UUID, e.g. NewID("esc") → "esc_184f...".
func NewID(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// ValidExecutionMode reports whether mode is one of the three autonomy modes.
func ValidExecutionMode(mode string) bool {
	switch mode {
	case ModeDraftOnly, ModeAutoEmail, ModeFullAuto:
		return true
	}
	return false
}

// ValidPriority reports whether p is a recognized escalation priority.
func ValidPriority(p string) bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}
