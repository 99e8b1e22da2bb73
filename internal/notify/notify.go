// Package notify delivers human-readable change notices. Delivery is
// fire-and-forget: a failed notification is logged by the caller and never
// fails the run.
package notify

import "context"

// Priority steers how loudly a notification is delivered.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

// Notification is one message about a calendar change.
type Notification struct {
	Title    string
	Message  string
	Priority Priority
}

// Notifier sends a notification to the configured channel.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Nop discards all notifications. Used when no channel is configured.
type Nop struct{}

func (Nop) Notify(context.Context, Notification) error { return nil }
