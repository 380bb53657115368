// Package mailparse turns carrier email replies into ETA timestamps. Stage
// one asks the reasoning service for a constrained JSON answer; stage two is
// a deterministic pattern pass used when stage one is unavailable or errors.
// Both stages feed the same guardrails.
package mailparse

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/DebileOrpheus45/fuels-logistics-ai/internal/llm"
	fuelsotel "github.com/DebileOrpheus45/fuels-logistics-ai/internal/otel"
)

var tracer = fuelsotel.Tracer("github.com/DebileOrpheus45/fuels-logistics-ai/internal/mailparse")

// Parse methods reported in Result.
const (
	MethodLLM   = "llm"
	MethodRegex = "regex"
	MethodNone  = "none"
)

// Guardrail window around the received timestamp.
const (
	maxFuture = 72 * time.Hour
	maxPast   = 1 * time.Hour
)

// Result is the outcome of parsing one email.
type Result struct {
	ETA    *time.Time
	Method string
	Reason string // set when Method is "none"
}

// Parser is the two-stage ETA parser. A nil provider skips straight to the
// deterministic stage.
type Parser struct {
	provider llm.Provider
	model    string
}

// NewParser builds a parser. provider may be nil for regex-only operation.
func NewParser(provider llm.Provider, model string) *Parser {
	return &Parser{provider: provider, model: model}
}

// Parse extracts an ETA from a carrier reply. A stage-one classification of
// vague or unknown is final: it reflects a read of the email's content, so
// falling back to pattern matching would second-guess it.
func (p *Parser) Parse(ctx context.Context, subject, body string, receivedAt time.Time) Result {
	ctx, span := tracer.Start(ctx, "mailparse.parse")
	defer span.End()

	if p.provider != nil {
		res, err := p.parseLLM(ctx, subject, body, receivedAt)
		if err == nil {
			span.SetAttributes(attribute.String("method", res.Method))
			return res
		}
		log.Debug().Err(err).Msg("llm_parse_unavailable")
	}

	res := p.parseRegex(body, receivedAt)
	span.SetAttributes(attribute.String("method", res.Method))
	return res
}

// resolveClock applies the shared guardrails to a wall-clock candidate from
// either stage. A time-of-day that already passed today rolls to tomorrow;
// anything landing more than 72h ahead or 1h behind the received timestamp
// is rejected outright.
func resolveClock(hour, minute int, receivedAt time.Time) (*time.Time, string) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return nil, fmt.Sprintf("clock %02d:%02d out of range", hour, minute)
	}
	eta := time.Date(receivedAt.Year(), receivedAt.Month(), receivedAt.Day(),
		hour, minute, 0, 0, receivedAt.Location())
	if eta.Before(receivedAt) {
		eta = eta.Add(24 * time.Hour)
	}
	if eta.Sub(receivedAt) > maxFuture {
		return nil, "candidate more than 72h in the future"
	}
	if receivedAt.Sub(eta) > maxPast {
		return nil, "candidate more than 1h in the past"
	}
	return &eta, ""
}

func noResult(reason string) Result {
	return Result{Method: MethodNone, Reason: reason}
}

var poPattern = regexp.MustCompile(`(?i)\b(PO-\d{4}-\d{3})\b`)

// ExtractPONumber pulls the purchase order number out of an email, subject
// first, then body. Returns "" when none is found.
func ExtractPONumber(subject, body string) string {
	if m := poPattern.FindString(subject); m != "" {
		return strings.ToUpper(m)
	}
	if m := poPattern.FindString(body); m != "" {
		return strings.ToUpper(m)
	}
	return ""
}
