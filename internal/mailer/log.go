package mailer

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/DebileOrpheus45/fuels-logistics-ai/internal/store"
)

// LogMailer records the email instead of sending it. Used when no delivery
// provider is configured and for local development; the message still shows
// up in the logs so draft output is inspectable.
type LogMailer struct{}

// NewLogMailer creates a log-only mailer.
func NewLogMailer() *LogMailer {
	return &LogMailer{}
}

// Send logs the message and returns a synthetic message ID.
func (m *LogMailer) Send(_ context.Context, msg Message) (string, error) {
	id := store.NewID("mail")
	log.Info().
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Str("body", msg.Body).
		Str("message_id", id).
		Msg("email_logged_not_sent")
	return id, nil
}
