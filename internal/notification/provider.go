// Package notification emails customers about invoice events. Delivery is
// best effort: outcomes are recorded on invoice_reminders and never touch
// ledger state.
package notification

import "context"

type Message struct {
	To       []string
	Subject  string
	HTMLBody string
	TextBody string
}

type Provider interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

type NoOpProvider struct{}

func (p *NoOpProvider) Name() string { return "noop" }

func (p *NoOpProvider) Send(ctx context.Context, msg Message) error {
	return nil
}
