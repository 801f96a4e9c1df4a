// Package broadcast defines the port for pushing ledger events to connected clients.
package broadcast

import "context"

// Broadcaster fans an event out to every live subscriber.
type Broadcaster interface {
	BroadcastEvent(ctx context.Context, eventType string, payload any)
}
