// Package rules is the first escalation tier: a deterministic, ordered rule
// pass over sites and their inbound loads. It performs no writes and sends
// nothing — it returns proposed actions plus ambiguity flags for the
// judgment tier, and the execution gate decides what actually happens.
package rules

// Rule thresholds, in hours.
const (
	criticalRunoutHours = 12 // no inbound supply and the tank runs dry within this → critical
	highRunoutHours     = 24 // no inbound supply and the tank runs dry within this → high
	staleETAHours       = 4  // an ETA not refreshed within this counts as stale
	etaCooldownHours    = 2  // minimum spacing between ETA requests for a stale load
	delayedCooldown     = 4  // minimum spacing between ETA requests for a delayed load at a healthy site
)

// Issue types raised by the rule pass.
const (
	IssueRunoutRisk      = "site_runout_risk"
	IssueDeliveryDelayed = "delivery_delayed"
)

// Flag reasons referred to the judgment tier.
const (
	FlagUnreliableCarrier = "unreliable_carrier"
	FlagMultiSiteCarrier  = "multi_site_carrier_risk"
)

// ActionKind discriminates proposed actions.
type ActionKind string

const (
	ActionCreateEscalation ActionKind = "create_escalation"
	ActionSendETARequest   ActionKind = "send_eta_request"
)

// Action is one thing the rule pass wants done. Whether it executes or
// stays a draft is the execution gate's call, not this package's.
type Action struct {
	Kind        ActionKind
	SiteID      string
	LoadID      string
	CarrierID   string
	IssueType   string // create_escalation only
	Priority    string // create_escalation only
	Description string
	UrgencyNote string // send_eta_request only
}

// Flag marks a situation too ambiguous for deterministic handling; the
// judgment tier picks it up with full context.
type Flag struct {
	Reason      string
	SiteID      string
	CarrierID   string
	Description string
}

// Result is the outcome of one full rule pass.
type Result struct {
	Actions      []Action
	Flags        []Flag
	SitesChecked int
	LoadsChecked int
	Summary      string
}
