package mailer

import (
	"context"

	"github.com/rs/zerolog"
)

// LogSender writes mail to the log instead of delivering it. Default in
// development.
type LogSender struct {
	Logger zerolog.Logger
	From   string
}

func NewLogSender(logger zerolog.Logger, from string) *LogSender {
	return &LogSender{Logger: logger, From: from}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.Logger.Info().
		Str("from", s.From).
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Str("body", msg.Body).
		Msg("mail (not delivered, log sender)")
	return nil
}
