package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	fuelsotel "github.com/DebileOrpheus45/fuels-logistics-ai/internal/otel"
)

var tracer = fuelsotel.Tracer("github.com/DebileOrpheus45/fuels-logistics-ai/internal/mailer")

// Timeout applied to every delivery-provider call.
const sendTimeout = 15 * time.Second

// HTTPMailer delivers email through a JSON-over-HTTP provider endpoint.
type HTTPMailer struct {
	baseURL    string
	apiKey     string
	from       string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewHTTPMailer creates a mailer posting to baseURL/send. Sends are capped
// at one per second with a small burst.
func NewHTTPMailer(baseURL, apiKey, from string) *HTTPMailer {
	return &HTTPMailer{
		baseURL:    baseURL,
		apiKey:     apiKey,
		from:       from,
		httpClient: &http.Client{},
		limiter:    rate.NewLimiter(rate.Limit(1), 3),
	}
}

type sendRequest struct {
	From    string   `json:"from"`
	To      string   `json:"to"`
	CC      []string `json:"cc,omitempty"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
}

type sendResponse struct {
	MessageID string `json:"message_id"`
	Error     string `json:"error,omitempty"`
}

// Send delivers the message, blocking briefly for a rate-limit token. When
// the context deadline would be exceeded waiting, ErrRateLimited is
// returned instead.
func (m *HTTPMailer) Send(ctx context.Context, msg Message) (string, error) {
	ctx, span := tracer.Start(ctx, "mailer.send")
	defer span.End()

	if err := m.limiter.Wait(ctx); err != nil {
		return "", ErrRateLimited
	}

	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	body, err := json.Marshal(sendRequest{
		From:    m.from,
		To:      msg.To,
		CC:      msg.CC,
		Subject: msg.Subject,
		Body:    msg.Body,
	})
	if err != nil {
		return "", fmt.Errorf("marshalling send request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", m.baseURL+"/send", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating send request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.httpClient.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("mail provider call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("mail provider error %d: %s", resp.StatusCode, string(respBody))
	}

	var apiResp sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return "", fmt.Errorf("decoding send response: %w", err)
	}
	if apiResp.Error != "" {
		return "", fmt.Errorf("mail provider rejected message: %s", apiResp.Error)
	}

	log.Info().
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Str("message_id", apiResp.MessageID).
		Msg("email_sent")

	return apiResp.MessageID, nil
}
