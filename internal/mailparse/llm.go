package mailparse

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/DebileOrpheus45/fuels-logistics-ai/internal/llm"
)

const etaPromptTemplate = `You extract delivery ETA times from fuel carrier email replies.

The email was received at %s.

Reply with exactly one JSON object and nothing else, in one of these forms:
{"status":"ok","time":"HH:MM"} - a concrete 24-hour clock time for the delivery
{"status":"vague","reason":"..."} - the carrier gave no usable time (e.g. "running late", "not sure yet")
{"status":"unknown"} - the email does not discuss a delivery time at all

Rules:
- Resolve relative offsets against the received time: "in a couple hours" means +2 hours, "in a few hours" means +3 hours.
- For a time range, always answer with the LATER end of the range.
- Ignore phone numbers, PO numbers, and quoted reply text (lines starting with ">", or anything below an "On ... wrote:" or "-----Original Message-----" line).
- Never guess. If no concrete time can be derived, answer vague or unknown.

Subject: %s
Body:
%s`

type stage1Reply struct {
	Status string `json:"status"`
	Time   string `json:"time,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// parseLLM runs the stage-one classification. Errors here (transport,
// malformed output) hand the email to the deterministic stage; a clean
// vague/unknown/rejected answer does not.
func (p *Parser) parseLLM(ctx context.Context, subject, body string, receivedAt time.Time) (Result, error) {
	prompt := fmt.Sprintf(etaPromptTemplate,
		receivedAt.Format("Mon 2006-01-02 15:04 MST"), subject, body)

	resp, err := p.provider.Generate(ctx, &llm.Request{
		Model:     p.model,
		Messages:  []llm.Message{{Role: "user", Content: prompt}},
		MaxTokens: 128,
	})
	if err != nil {
		return Result{}, fmt.Errorf("stage-1 call: %w", err)
	}
	llm.RecordCostMetrics(ctx, p.provider.EstimateCost(p.model, resp.InputTokens, resp.OutputTokens),
		"", p.model, "eta_parse")

	reply, err := decodeStage1(resp.Content)
	if err != nil {
		return Result{}, err
	}

	switch reply.Status {
	case "ok":
		hour, minute, err := splitClock(reply.Time)
		if err != nil {
			return Result{}, fmt.Errorf("stage-1 time %q: %w", reply.Time, err)
		}
		eta, reason := resolveClock(hour, minute, receivedAt)
		if eta == nil {
			return noResult(reason), nil
		}
		return Result{ETA: eta, Method: MethodLLM}, nil
	case "vague":
		reason := reply.Reason
		if reason == "" {
			reason = "vague reply"
		}
		return noResult(reason), nil
	case "unknown":
		return noResult("no delivery time in email"), nil
	}
	return Result{}, fmt.Errorf("stage-1 status %q", reply.Status)
}

// decodeStage1 tolerates prose or code fences around the JSON object.
func decodeStage1(content string) (*stage1Reply, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in stage-1 output")
	}
	var reply stage1Reply
	if err := json.Unmarshal([]byte(content[start:end+1]), &reply); err != nil {
		return nil, fmt.Errorf("decoding stage-1 output: %w", err)
	}
	return &reply, nil
}

func splitClock(s string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("want HH:MM")
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("bad hour: %w", err)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("bad minute: %w", err)
	}
	return hour, minute, nil
}
