// Package llm is the reasoning-service client: a provider interface, an
// Anthropic Messages API implementation with tool use, and cost accounting.
package llm

import (
	"context"
	"errors"
	"time"
)

// Timeout applied to every reasoning-service call.
const TimeoutLLMCall = 60 * time.Second

// Domain errors for the llm package.
var (
	ErrProviderNotAvailable = errors.New("provider not available")
	ErrNoAPIKey             = errors.New("no API key configured")
)

// Provider is the interface all reasoning-service providers implement.
type Provider interface {
	// Name returns the provider identifier (e.g. "anthropic").
	Name() string
	// Generate sends a completion request and returns the response.
	Generate(ctx context.Context, req *Request) (*Response, error)
	// EstimateCost estimates the cost in EUR for the given model and token counts.
	EstimateCost(model string, inputTokens, outputTokens int) float64
}

// Request represents a generation request.
type Request struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
	Tools       []Tool
}

// Message represents a chat message. A plain message carries Content; an
// assistant turn that requested tools carries ToolCalls, and the following
// user turn answers them with ToolResults.
type Message struct {
	Role        string // "system", "user", "assistant"
	Content     string
	ToolCalls   []ToolCall
	ToolResults []ToolResult
}

// Tool describes a tool offered to the model.
type Tool struct {
	Name        string
	Description string
	InputSchema map[string]interface{} // JSON Schema for the tool's arguments
}

// ToolCall is a request from the model to invoke a tool.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]interface{}
}

// ToolResult carries a tool's output back to the model.
type ToolResult struct {
	ToolCallID string
	Content    string
	IsError    bool
}

// Response represents a generation response.
type Response struct {
	Content      string
	FinishReason string // "end_turn", "tool_use", "max_tokens", ...
	InputTokens  int
	OutputTokens int
	Model        string
	ToolCalls    []ToolCall
}
