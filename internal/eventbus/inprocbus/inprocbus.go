// Package inprocbus is an in-memory ports.Bus: synchronous dispatch within
// one process, no network, no durability. It exists for tests and for
// single-process deployments that don't need NATS.
package inprocbus

import (
	"context"
	"sync"

	"github.com/wallethub/ledgercore/internal/application/ports"
	"github.com/wallethub/ledgercore/internal/domain/errors"
	"github.com/wallethub/ledgercore/internal/domain/events"
)

// Bus is a channel-free, map-based publish/subscribe broker. Publish calls
// the current handler for event.EventType inline; if none is registered the
// event is simply dropped, matching the "no durability without an attached
// subscriber" guarantee of spec §4.1.
type Bus struct {
	mu        sync.RWMutex
	handlers  map[string]ports.EventHandler
	connected bool
}

// New builds a disconnected Bus.
func New() *Bus {
	return &Bus{handlers: make(map[string]ports.EventHandler)}
}

// Connect marks the bus ready to publish. Always succeeds.
func (b *Bus) Connect(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = true
	return nil
}

// Publish delivers event to the current handler for its type, if any.
func (b *Bus) Publish(ctx context.Context, event events.Event) error {
	b.mu.RLock()
	connected := b.connected
	handler, ok := b.handlers[event.EventType]
	b.mu.RUnlock()

	if !connected {
		return errors.Transient("inprocbus: publish before connect")
	}
	if !ok {
		return nil
	}
	return handler(ctx, event)
}

// Subscribe registers h for eventType, replacing any prior handler.
func (b *Bus) Subscribe(eventType string, h ports.EventHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = h
	return nil
}

// Unsubscribe removes the handler for eventType, if any.
func (b *Bus) Unsubscribe(eventType string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, eventType)
	return nil
}

// Close clears all handlers and marks the bus disconnected.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = make(map[string]ports.EventHandler)
	b.connected = false
	return nil
}
