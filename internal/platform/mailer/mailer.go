// Package mailer sends transactional email for the portal. Delivery is
// best-effort: callers log failures but never fail the surrounding request.
package mailer

import "context"

// Message is a rendered email ready for delivery.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}
