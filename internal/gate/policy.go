// Package gate is the single autonomy checkpoint. Both escalation tiers
// hand their side effects to this package: an embedded OPA policy maps
// (execution mode, effect) to execute-or-draft, and the executor applies
// the verdict. No other package sends email or writes escalations on its
// own initiative.
package gate

import (
	"context"
	"embed"
	"fmt"

	"github.com/open-policy-agent/opa/v1/rego"

	fuelsotel "github.com/DebileOrpheus45/fuels-logistics-ai/internal/otel"
)

var tracer = fuelsotel.Tracer("github.com/DebileOrpheus45/fuels-logistics-ai/internal/gate")

//go:embed rego/*.rego
var embeddedPolicies embed.FS

// Effects an action can have on the outside world.
const (
	EffectSendEmail        = "send_email"
	EffectCreateEscalation = "create_escalation"
	EffectLogObservation   = "log_observation"
)

// Decision is the policy verdict for one action.
type Decision struct {
	Execute bool   `json:"execute"`
	Reason  string `json:"reason,omitempty"` // set when the action stays a draft
}

// Policy evaluates the embedded autonomy matrix.
type Policy struct {
	prepared rego.PreparedEvalQuery
}

// NewPolicy compiles the embedded Rego policy and prepares its query.
func NewPolicy(ctx context.Context) (*Policy, error) {
	content, err := embeddedPolicies.ReadFile("rego/autonomy.rego")
	if err != nil {
		return nil, fmt.Errorf("reading embedded policy: %w", err)
	}

	r := rego.New(
		rego.Query("data.fuels.gate.execute"),
		rego.Module("rego/autonomy.rego", string(content)),
	)
	prepared, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("preparing autonomy policy: %w", err)
	}

	return &Policy{prepared: prepared}, nil
}

// Decide returns whether an action with the given effect executes under the
// given execution mode. Unknown modes fail safe to draft.
func (p *Policy) Decide(ctx context.Context, mode, effect string) (*Decision, error) {
	ctx, span := tracer.Start(ctx, "gate.decide")
	defer span.End()

	input := map[string]interface{}{
		"mode":   mode,
		"effect": effect,
	}

	results, err := p.prepared.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("evaluating autonomy policy: %w", err)
	}

	execute := false
	if len(results) > 0 && len(results[0].Expressions) > 0 {
		if v, ok := results[0].Expressions[0].Value.(bool); ok {
			execute = v
		}
	}

	d := &Decision{Execute: execute}
	if !execute {
		d.Reason = fmt.Sprintf("mode %s does not execute %s", mode, effect)
	}
	return d, nil
}
