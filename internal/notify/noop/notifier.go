// Package noop provides a Notifier that discards messages.
package noop

import "context"

// Notifier drops every notification. Useful for local development where
// no mail provider is configured.
type Notifier struct{}

// New creates a new no-op Notifier.
func New() *Notifier {
	return &Notifier{}
}

// Send does nothing and always succeeds.
func (Notifier) Send(context.Context, string, string, string) error {
	return nil
}
