package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
)

// AnthropicResponse is the minimal Messages API response shape for tests.
type AnthropicResponse struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Role    string `json:"role"`
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// NewAnthropicServer starts an httptest.Server that answers POST
// /v1/messages with a single text block. content is the assistant reply;
// inputTokens/outputTokens set usage. Point a provider at it with
// WithBaseURL; caller must call server.Close() or register
// t.Cleanup(server.Close).
func NewAnthropicServer(content string, inputTokens, outputTokens int) *httptest.Server {
	if content == "" {
		content = "mock response"
	}
	if inputTokens == 0 {
		inputTokens = 10
	}
	if outputTokens == 0 {
		outputTokens = 20
	}
	resp := AnthropicResponse{
		ID:         "msg_test",
		Type:       "message",
		Role:       "assistant",
		Model:      "claude-haiku-3-5-20241022",
		StopReason: "end_turn",
	}
	resp.Content = []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}{{Type: "text", Text: content}}
	resp.Usage.InputTokens = inputTokens
	resp.Usage.OutputTokens = outputTokens

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})
	return httptest.NewServer(handler)
}
