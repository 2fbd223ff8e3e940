package ports

import (
	"context"

	"github.com/wallethub/ledgercore/internal/domain/events"
)

// EventHandler reacts to one event delivered off the bus. Handlers MUST be
// idempotent: the bus is at-least-once and may redeliver.
type EventHandler func(ctx context.Context, event events.Event) error

// Bus is publish/subscribe across process instances, keyed by event type.
//
// Guarantees: in-order within a single (publisher, channel); no
// cross-channel ordering; no durability if no subscriber is attached at
// publish time. Durability for external side-effects lives in the job
// queue, not here.
type Bus interface {
	// Connect establishes the underlying transport connection. Publish
	// fails with a transient error before Connect returns.
	Connect(ctx context.Context) error

	// Publish serialises event and delivers it to the current subscriber
	// of event.EventType across the cluster.
	Publish(ctx context.Context, event events.Event) error

	// Subscribe registers h for eventType. At most one handler per
	// event-type per process: a newer subscription replaces the old one.
	Subscribe(eventType string, h EventHandler) error

	// Unsubscribe removes the handler registered for eventType, if any.
	Unsubscribe(eventType string) error

	// Close shuts the bus down, unsubscribing all handlers.
	Close() error
}
