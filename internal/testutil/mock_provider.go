// Package testutil provides shared test helpers and mocks for fuels tests.
package testutil

import (
	"context"
	"sync"

	"github.com/DebileOrpheus45/fuels-logistics-ai/internal/llm"
)

// MockProvider implements llm.Provider for tests without live API calls.
// When Content is empty, Generate returns "mock response"; otherwise uses
// Content. Set Err to simulate reasoning-service errors.
type MockProvider struct {
	Content string // canned response; empty = "mock response"
	Err     error  // if set, Generate returns this error
}

// Name returns the provider identifier (implements llm.Provider).
func (m *MockProvider) Name() string { return "mock" }

// Generate returns a canned response or the configured error.
func (m *MockProvider) Generate(_ context.Context, req *llm.Request) (*llm.Response, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	content := m.Content
	if content == "" {
		content = "mock response"
	}
	return &llm.Response{
		Content:      content,
		FinishReason: "end_turn",
		InputTokens:  10,
		OutputTokens: 20,
		Model:        req.Model,
	}, nil
}

// EstimateCost returns a fixed cost for tests.
func (m *MockProvider) EstimateCost(_ string, _, _ int) float64 { return 0.001 }

// ScriptedProvider implements llm.Provider for testing the judgment loop.
// It returns a configured sequence of responses (tool calls, then a final
// answer), tracks call count and received messages for assertions.
// Set ErrOnCall (1-based) and Err to make Generate fail on that call.
type ScriptedProvider struct {
	mu                  sync.Mutex
	Responses           []*llm.Response // sequence; call N gets Responses[N-1], or the last when exhausted
	CallCount           int             // incremented on each Generate call
	ReceivedMessages    [][]llm.Message
	ReceivedTools       [][]llm.Tool
	EstimateCostPerCall float64 // cost returned by EstimateCost (default 0.001)
	ErrOnCall           int     // 1-based; 0 = never
	Err                 error   // error to return when ErrOnCall is hit
}

// Name returns the provider identifier (implements llm.Provider).
func (p *ScriptedProvider) Name() string { return "scripted" }

// Generate returns the next response in the sequence and records the request.
func (p *ScriptedProvider) Generate(_ context.Context, req *llm.Request) (*llm.Response, error) {
	p.mu.Lock()
	p.CallCount++
	idx := p.CallCount - 1
	// Copy messages so the caller cannot mutate after the fact.
	msgCopy := make([]llm.Message, len(req.Messages))
	copy(msgCopy, req.Messages)
	p.ReceivedMessages = append(p.ReceivedMessages, msgCopy)
	toolCopy := make([]llm.Tool, len(req.Tools))
	copy(toolCopy, req.Tools)
	p.ReceivedTools = append(p.ReceivedTools, toolCopy)
	resps := p.Responses
	callCount := p.CallCount
	errOnCall := p.ErrOnCall
	errReturn := p.Err
	p.mu.Unlock()

	if errOnCall > 0 && callCount == errOnCall && errReturn != nil {
		return nil, errReturn
	}
	if len(resps) == 0 {
		return &llm.Response{
			Content:      "no responses configured",
			FinishReason: "end_turn",
			InputTokens:  10,
			OutputTokens: 20,
			Model:        req.Model,
		}, nil
	}
	if idx >= len(resps) {
		idx = len(resps) - 1
	}
	out := resps[idx]
	// Return a copy so tests cannot mutate the stored response.
	r := &llm.Response{
		Content:      out.Content,
		FinishReason: out.FinishReason,
		InputTokens:  out.InputTokens,
		OutputTokens: out.OutputTokens,
		Model:        out.Model,
	}
	if len(out.ToolCalls) > 0 {
		r.ToolCalls = make([]llm.ToolCall, len(out.ToolCalls))
		copy(r.ToolCalls, out.ToolCalls)
	}
	return r, nil
}

// EstimateCost returns the configured per-call cost for tests.
func (p *ScriptedProvider) EstimateCost(_ string, _, _ int) float64 {
	if p.EstimateCostPerCall != 0 {
		return p.EstimateCostPerCall
	}
	return 0.001
}
