// Package natsbus is the NATS-backed ports.Bus (spec component A) used in
// multi-instance deployments. Each event type maps to one NATS subject;
// Subscribe replaces any prior subscription for that subject, matching the
// at-most-one-handler-per-type-per-process rule.
package natsbus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/wallethub/ledgercore/internal/application/ports"
	"github.com/wallethub/ledgercore/internal/domain/errors"
	"github.com/wallethub/ledgercore/internal/domain/events"
)

const (
	maxReconnectAttempts = 3
	backoffCap           = 3000 * time.Millisecond
)

// Bus publishes and subscribes to domain events over a NATS connection.
type Bus struct {
	url  string
	conn *nats.Conn

	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

// New builds a Bus that will connect to url (e.g. "nats://localhost:4222").
func New(url string) *Bus {
	return &Bus{url: url, subs: make(map[string]*nats.Subscription)}
}

// Connect dials NATS with the reconnect/backoff policy from spec §4.1:
// delay = min(100 * attempt, 3000)ms, giving up fatally after 3 attempts.
func (b *Bus) Connect(ctx context.Context) error {
	opts := []nats.Option{
		nats.MaxReconnects(maxReconnectAttempts),
		nats.ReconnectWait(100 * time.Millisecond),
		nats.CustomReconnectDelayFunc(func(attempts int) time.Duration {
			delay := time.Duration(attempts) * 100 * time.Millisecond
			if delay > backoffCap {
				delay = backoffCap
			}
			return delay
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Default().Warn("natsbus: disconnected", slog.String("error", err.Error()))
			}
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			slog.Default().Error("natsbus: connection closed permanently")
		}),
	}

	conn, err := nats.Connect(b.url, opts...)
	if err != nil {
		return errors.Transient(fmt.Sprintf("natsbus: connect: %v", err))
	}

	b.mu.Lock()
	b.conn = conn
	b.mu.Unlock()
	return nil
}

// Publish serialises event as JSON and sends it on the subject named after
// its event type.
func (b *Bus) Publish(_ context.Context, event events.Event) error {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()

	if conn == nil {
		return errors.Transient("natsbus: publish before connect")
	}
	data, err := event.Marshal()
	if err != nil {
		return errors.InvalidArg("natsbus: marshal event: " + err.Error())
	}
	if err := conn.Publish(event.EventType, data); err != nil {
		return errors.Transient(fmt.Sprintf("natsbus: publish: %v", err))
	}
	return nil
}

// Subscribe registers h as the handler for eventType, replacing any prior
// subscription to that subject.
func (b *Bus) Subscribe(eventType string, h ports.EventHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conn == nil {
		return errors.Transient("natsbus: subscribe before connect")
	}
	if existing, ok := b.subs[eventType]; ok {
		_ = existing.Unsubscribe()
	}

	sub, err := b.conn.Subscribe(eventType, func(msg *nats.Msg) {
		event, err := events.Unmarshal(msg.Data)
		if err != nil {
			slog.Default().Error("natsbus: malformed event payload", slog.String("subject", msg.Subject), slog.String("error", err.Error()))
			return
		}
		if err := h(context.Background(), event); err != nil {
			slog.Default().Error("natsbus: handler error", slog.String("eventType", event.EventType), slog.String("transactionId", event.TransactionID), slog.String("error", err.Error()))
		}
	})
	if err != nil {
		return errors.Transient(fmt.Sprintf("natsbus: subscribe: %v", err))
	}

	b.subs[eventType] = sub
	return nil
}

// Unsubscribe removes the subscription for eventType, if any.
func (b *Bus) Unsubscribe(eventType string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subs[eventType]
	if !ok {
		return nil
	}
	delete(b.subs, eventType)
	if err := sub.Unsubscribe(); err != nil {
		return errors.Transient(fmt.Sprintf("natsbus: unsubscribe: %v", err))
	}
	return nil
}

// Close drains subscriptions and closes the underlying connection.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for eventType, sub := range b.subs {
		_ = sub.Unsubscribe()
		delete(b.subs, eventType)
	}
	if b.conn != nil {
		b.conn.Close()
		b.conn = nil
	}
	return nil
}
