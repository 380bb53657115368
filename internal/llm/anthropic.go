package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/trace"

	fuelsotel "github.com/DebileOrpheus45/fuels-logistics-ai/internal/otel"
)

var tracer = fuelsotel.Tracer("github.com/DebileOrpheus45/fuels-logistics-ai/internal/llm")

// AnthropicProvider implements Provider for the Anthropic Messages API,
// including tool use for the judgment loop.
type AnthropicProvider struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
}

// NewAnthropicProvider creates an Anthropic provider with the given API key.
func NewAnthropicProvider(apiKey string) *AnthropicProvider {
	return &AnthropicProvider{
		apiKey:     apiKey,
		httpClient: &http.Client{},
		baseURL:    "https://api.anthropic.com",
	}
}

// WithBaseURL overrides the API endpoint. Used by tests to point at a mock
// server.
func (p *AnthropicProvider) WithBaseURL(baseURL string) *AnthropicProvider {
	p.baseURL = baseURL
	return p
}

// Name returns the provider identifier.
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature,omitempty"`
	Tools       []anthropicTool    `json:"tools,omitempty"`
}

type anthropicTool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

// anthropicMessage content is either a plain string or a block array
// (text / tool_use / tool_result).
type anthropicMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type anthropicBlock struct {
	Type string `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// tool_use
	ID    string                 `json:"id,omitempty"`
	Name  string                 `json:"name,omitempty"`
	Input map[string]interface{} `json:"input,omitempty"`

	// tool_result
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

type anthropicResponse struct {
	ID         string           `json:"id"`
	Content    []anthropicBlock `json:"content"`
	StopReason string           `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Generate sends a completion request to Anthropic.
func (p *AnthropicProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	ctx, span := tracer.Start(ctx, "gen_ai.generate",
		trace.WithAttributes(fuelsotel.LLMRequestAttributes(
			"anthropic", req.Model, req.Temperature, req.MaxTokens)...))
	defer span.End()

	if p.apiKey == "" {
		return nil, ErrNoAPIKey
	}

	ctx, cancel := context.WithTimeout(ctx, TimeoutLLMCall)
	defer cancel()

	// Anthropic uses a separate "system" field rather than a system message.
	// Collect ALL system messages and concatenate them so no directive is lost.
	var systemParts []string
	messages := make([]anthropicMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		if msg.Role == "system" {
			systemParts = append(systemParts, msg.Content)
			continue
		}
		messages = append(messages, encodeMessage(msg))
	}

	apiReq := anthropicRequest{
		Model:       req.Model,
		Messages:    messages,
		System:      strings.Join(systemParts, "\n\n"),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	for _, t := range req.Tools {
		apiReq.Tools = append(apiReq.Tools, anthropicTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
	}

	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("marshalling anthropic request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating anthropic request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("anthropic api call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("anthropic api error %d: %s", resp.StatusCode, string(respBody))
	}

	var apiResp anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decoding anthropic response: %w", err)
	}

	span.SetAttributes(fuelsotel.LLMUsageAttributes(
		apiResp.Usage.InputTokens, apiResp.Usage.OutputTokens)...)
	span.SetAttributes(
		fuelsotel.GenAIResponseFinishReason.String(apiResp.StopReason),
		fuelsotel.GenAIResponseID.String(apiResp.ID),
	)

	// Concatenate text blocks and collect tool_use blocks; Anthropic can
	// interleave both in one response.
	var content strings.Builder
	var toolCalls []ToolCall
	for _, block := range apiResp.Content {
		switch block.Type {
		case "text":
			content.WriteString(block.Text)
		case "tool_use":
			toolCalls = append(toolCalls, ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: block.Input,
			})
		}
	}

	return &Response{
		Content:      content.String(),
		FinishReason: apiResp.StopReason,
		InputTokens:  apiResp.Usage.InputTokens,
		OutputTokens: apiResp.Usage.OutputTokens,
		Model:        req.Model,
		ToolCalls:    toolCalls,
	}, nil
}

// encodeMessage converts a Message into wire form. Plain messages stay a
// string; messages carrying tool traffic become block arrays.
func encodeMessage(msg Message) anthropicMessage {
	if len(msg.ToolCalls) == 0 && len(msg.ToolResults) == 0 {
		return anthropicMessage{Role: msg.Role, Content: msg.Content}
	}

	var blocks []anthropicBlock
	if msg.Content != "" {
		blocks = append(blocks, anthropicBlock{Type: "text", Text: msg.Content})
	}
	for _, tc := range msg.ToolCalls {
		blocks = append(blocks, anthropicBlock{
			Type:  "tool_use",
			ID:    tc.ID,
			Name:  tc.Name,
			Input: tc.Arguments,
		})
	}
	for _, tr := range msg.ToolResults {
		blocks = append(blocks, anthropicBlock{
			Type:      "tool_result",
			ToolUseID: tr.ToolCallID,
			Content:   tr.Content,
			IsError:   tr.IsError,
		})
	}
	return anthropicMessage{Role: msg.Role, Content: blocks}
}

// EstimateCost estimates the cost in EUR for the given model and token counts.
func (p *AnthropicProvider) EstimateCost(model string, inputTokens, outputTokens int) float64 {
	type pricing struct {
		input  float64
		output float64
	}

	// Anthropic pricing in EUR per 1K tokens (Feb 2026)
	prices := map[string]pricing{
		"claude-sonnet-4-20250514":  {input: 0.003, output: 0.015},
		"claude-opus-4-5-20251101":  {input: 0.015, output: 0.075},
		"claude-haiku-3-5-20241022": {input: 0.0008, output: 0.004},
	}

	pr, ok := prices[model]
	if !ok {
		pr = prices["claude-sonnet-4-20250514"]
	}

	inputCost := (float64(inputTokens) / 1000.0) * pr.input
	outputCost := (float64(outputTokens) / 1000.0) * pr.output

	return inputCost + outputCost
}
