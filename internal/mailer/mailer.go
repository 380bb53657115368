// Package mailer sends outbound email through an HTTP delivery provider.
// Outbound throughput is capped with a token bucket so a misbehaving rule
// pass can never flood carriers with ETA requests.
package mailer

import (
	"context"
	"errors"
)

// ErrRateLimited is returned when the outbound send budget is exhausted.
var ErrRateLimited = errors.New("outbound email rate limited")

// Message is one outbound email.
type Message struct {
	To      string
	CC      []string
	Subject string
	Body    string
}

// Mailer delivers email. Implementations return a provider message ID on
// success.
type Mailer interface {
	Send(ctx context.Context, msg Message) (messageID string, err error)
}
