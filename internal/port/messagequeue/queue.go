// Package messagequeue defines the message queue port (interface).
package messagequeue

import (
	"context"

	"github.com/Strob0t/agentledger/internal/domain/event"
)

// Handler processes a message received from the queue.
// The context carries request-scoped values such as the request ID.
type Handler func(ctx context.Context, subject string, data []byte) error

// Queue is the port interface for publishing and subscribing to messages.
type Queue interface {
	// Publish sends a message to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for messages on the given subject.
	// The returned function cancels the subscription.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Drain gracefully drains all subscriptions before closing.
	Drain() error

	// Close shuts down the queue connection immediately.
	Close() error

	// IsConnected reports whether the queue is currently connected.
	IsConnected() bool
}

// Subjects for ledger events. Every event is published to SubjectPrefix + "." + type,
// e.g. "ledger.escrow.completed".
const (
	SubjectPrefix = "ledger"
	SubjectAll    = "ledger.>"
)

// SubjectFor returns the subject an event type is published on.
func SubjectFor(t event.Type) string { return SubjectPrefix + "." + string(t) }
