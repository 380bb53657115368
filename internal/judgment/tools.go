package judgment

import (
	"encoding/json"
	"fmt"

	"github.com/DebileOrpheus45/fuels-logistics-ai/internal/llm"
)

// Invocation is a decoded tool call from the reasoning service. The set of
// implementations is closed: every tool offered in toolSchemas has exactly
// one concrete type here, and the handler switch in judge.go covers all of
// them, so an unhandled tool is a compile-time hole rather than a runtime
// string mismatch.
type Invocation interface {
	toolName() string
}

// CheckSiteInventory reads a site's current inventory and runout projection.
type CheckSiteInventory struct {
	SiteID string `json:"site_id"`
}

// GetLoadDetails reads one load's status, ETA, and carrier.
type GetLoadDetails struct {
	LoadID string `json:"load_id"`
}

// SendETARequest asks dispatch for an updated ETA on a load.
type SendETARequest struct {
	LoadID      string `json:"load_id"`
	UrgencyNote string `json:"urgency_note,omitempty"`
}

// CreateEscalation raises an issue for human review.
type CreateEscalation struct {
	SiteID      string `json:"site_id,omitempty"`
	LoadID      string `json:"load_id,omitempty"`
	CarrierID   string `json:"carrier_id,omitempty"`
	IssueType   string `json:"issue_type"`
	Priority    string `json:"priority"`
	Description string `json:"description"`
}

// LogObservation records a free-text note in the activity log.
type LogObservation struct {
	EntityID string `json:"entity_id,omitempty"`
	Text     string `json:"text"`
}

// CompleteReview ends the review with a summary of what was found and done.
type CompleteReview struct {
	Summary string `json:"summary"`
}

func (CheckSiteInventory) toolName() string { return "check_site_inventory" }
func (GetLoadDetails) toolName() string     { return "get_load_details" }
func (SendETARequest) toolName() string     { return "send_eta_request" }
func (CreateEscalation) toolName() string   { return "create_escalation" }
func (LogObservation) toolName() string     { return "log_observation" }
func (CompleteReview) toolName() string     { return "complete_review" }

// decoders maps wire tool names to typed decoders. Adding a tool means
// adding a type, a schema, a decoder entry, and a handler case.
var decoders = map[string]func(json.RawMessage) (Invocation, error){
	"check_site_inventory": decodeAs[CheckSiteInventory],
	"get_load_details":     decodeAs[GetLoadDetails],
	"send_eta_request":     decodeAs[SendETARequest],
	"create_escalation":    decodeAs[CreateEscalation],
	"log_observation":      decodeAs[LogObservation],
	"complete_review":      decodeAs[CompleteReview],
}

func decodeAs[T Invocation](raw json.RawMessage) (Invocation, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// decodeInvocation turns a provider tool call into a typed invocation.
func decodeInvocation(tc llm.ToolCall) (Invocation, error) {
	dec, ok := decoders[tc.Name]
	if !ok {
		return nil, fmt.Errorf("unknown tool %q", tc.Name)
	}
	raw, err := json.Marshal(tc.Arguments)
	if err != nil {
		return nil, fmt.Errorf("encoding arguments for %s: %w", tc.Name, err)
	}
	inv, err := dec(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding arguments for %s: %w", tc.Name, err)
	}
	return inv, nil
}

func stringProp(desc string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": desc}
}

// toolSchemas is the fixed capability set offered to the reasoning service.
func toolSchemas() []llm.Tool {
	return []llm.Tool{
		{
			Name:        "check_site_inventory",
			Description: "Get a site's current inventory, consumption rate, and projected hours to runout.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"site_id": stringProp("Site ID to inspect"),
				},
				"required": []string{"site_id"},
			},
		},
		{
			Name:        "get_load_details",
			Description: "Get a load's status, ETA, destination site, and carrier.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"load_id": stringProp("Load ID to inspect"),
				},
				"required": []string{"load_id"},
			},
		},
		{
			Name:        "send_eta_request",
			Description: "Email the carrier's dispatch asking for an updated ETA on a load. Subject to the agent's autonomy mode; may be recorded as a draft.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"load_id":      stringProp("Load ID the request is about"),
					"urgency_note": stringProp("Optional one-line urgency context included in the email"),
				},
				"required": []string{"load_id"},
			},
		},
		{
			Name:        "create_escalation",
			Description: "Raise an issue for human review. Subject to the agent's autonomy mode; may be recorded as a draft.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"site_id":     stringProp("Related site ID, if any"),
					"load_id":     stringProp("Related load ID, if any"),
					"carrier_id":  stringProp("Related carrier ID, if any"),
					"issue_type":  stringProp("Short issue type, e.g. unreliable_carrier_risk"),
					"priority":    stringProp("One of: low, medium, high, critical"),
					"description": stringProp("What the reviewer needs to know"),
				},
				"required": []string{"issue_type", "priority", "description"},
			},
		},
		{
			Name:        "log_observation",
			Description: "Record a free-text observation in the activity log. Always executes.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"entity_id": stringProp("Related site, load, or carrier ID, if any"),
					"text":      stringProp("The observation"),
				},
				"required": []string{"text"},
			},
		},
		{
			Name:        "complete_review",
			Description: "Signal that the review is finished.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"summary": stringProp("One-paragraph summary of findings and actions taken"),
				},
				"required": []string{"summary"},
			},
		},
	}
}
