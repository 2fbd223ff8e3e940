// Package webhook implements the outbound webhook dispatcher (spec
// component G): it turns TRANSACTION_COMPLETED/TRANSACTION_FAILED domain
// events into signed HTTP deliveries, queued and retried durably.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/wallethub/ledgercore/internal/application/ports"
	"github.com/wallethub/ledgercore/internal/domain/entities"
	"github.com/wallethub/ledgercore/internal/domain/events"
)

const jobType = "webhook_delivery"

// signatureHeader carries "sha256=" plus the hex-encoded HMAC-SHA256 of the
// request body, keyed by the subscription's secret, so receivers can
// authenticate us.
const signatureHeader = "X-Webhook-Signature"

// Config tunes delivery retries and the outbound HTTP client.
type Config struct {
	HTTPTimeout         time.Duration
	MaxAttempts         int
	AutoDeactivateAfter int
	BaseRetryBackoff    time.Duration
}

// DefaultConfig mirrors the webhook section of the application config's
// development defaults.
func DefaultConfig() Config {
	return Config{
		HTTPTimeout:         10 * time.Second,
		MaxAttempts:         5,
		AutoDeactivateAfter: 10,
		BaseRetryBackoff:    30 * time.Second,
	}
}

// Dispatcher subscribes to domain events, persists delivery rows and
// enqueues signed HTTP deliveries; Worker (started separately) drains
// the queue and performs the actual POSTs.
type Dispatcher struct {
	store  ports.Store
	queue  ports.Queue
	cfg    Config
	client *http.Client
}

// New wires a Dispatcher over store and queue.
func New(store ports.Store, queue ports.Queue, cfg Config) *Dispatcher {
	return &Dispatcher{
		store:  store,
		queue:  queue,
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.HTTPTimeout},
	}
}

// Start registers the dispatcher's event reactions on bus.
func (d *Dispatcher) Start(bus ports.Bus) error {
	if err := bus.Subscribe(events.TypeTransactionCompleted, d.onEvent); err != nil {
		return err
	}
	return bus.Subscribe(events.TypeTransactionFailed, d.onEvent)
}

// onEvent fans a single domain event out to every active subscription
// that wants it, creating one delivery row and one queued job per
// subscription.
func (d *Dispatcher) onEvent(ctx context.Context, event events.Event) error {
	subs, err := d.store.ListActiveWebhookSubscriptionsForEvent(ctx, event.EventType)
	if err != nil {
		return fmt.Errorf("webhook: list subscriptions: %w", err)
	}

	tx, err := d.store.FindTransaction(ctx, event.TransactionID)
	if err != nil {
		return fmt.Errorf("webhook: load transaction: %w", err)
	}

	payload, err := json.Marshal(deliveryPayload(event, tx))
	if err != nil {
		return fmt.Errorf("webhook: marshal payload: %w", err)
	}

	for _, sub := range subs {
		delivery := entities.NewWebhookDelivery(sub.ID(), event.TransactionID, event.EventType, payload)
		if err := d.store.CreateWebhookDelivery(ctx, delivery); err != nil {
			slog.Default().Error("webhook: create delivery failed", "webhookId", sub.ID(), "error", err)
			continue
		}

		job := deliveryJob{
			DeliveryID:    delivery.ID(),
			WebhookID:     sub.ID(),
			TransactionID: event.TransactionID,
			EventType:     event.EventType,
			URL:           sub.URL(),
			Secret:        sub.Secret(),
			Payload:       payload,
			MaxAttempts:   d.maxAttempts(),
		}
		data, err := json.Marshal(job)
		if err != nil {
			slog.Default().Error("webhook: marshal job failed", "deliveryId", delivery.ID(), "error", err)
			continue
		}

		err = d.queue.Enqueue(ctx, jobType, data, ports.JobOptions{
			JobID:       delivery.ID(),
			Attempts:    d.maxAttempts(),
			BaseBackoff: d.baseBackoff(),
		})
		if err != nil {
			slog.Default().Error("webhook: enqueue delivery failed", "deliveryId", delivery.ID(), "error", err)
		}
	}
	return nil
}

// webhookPayload is the JSON body delivered to subscribers (spec §4.7 step
// 4): event plus the transaction facts a receiver needs to act without a
// follow-up API call. Reason and Refunded are only populated for
// TRANSACTION_FAILED.
type webhookPayload struct {
	Event         string    `json:"event"`
	TransactionID string    `json:"transactionId"`
	Status        string    `json:"status"`
	Amount        string    `json:"amount"`
	Currency      string    `json:"currency"`
	Timestamp     time.Time `json:"timestamp"`
	SenderID      string    `json:"senderId"`
	ReceiverID    string    `json:"receiverId"`
	Reason        string    `json:"reason,omitempty"`
	Refunded      *bool     `json:"refunded,omitempty"`
}

// deliveryPayload shapes the wire body from the transaction's current
// state rather than re-serializing the bus event, whose payload is a
// free-form map that doesn't carry amount/currency/sender/receiver.
func deliveryPayload(event events.Event, tx *entities.Transaction) webhookPayload {
	decimals := 2
	if tx.Amount().Currency().IsCrypto() {
		decimals = 8
	}
	p := webhookPayload{
		Event:         event.EventType,
		TransactionID: tx.ID(),
		Status:        string(tx.Status()),
		Amount:        tx.Amount().Amount().FloatString(decimals),
		Currency:      tx.Amount().Currency().Code(),
		Timestamp:     event.Timestamp,
		SenderID:      tx.SenderID(),
		ReceiverID:    tx.ReceiverID(),
	}
	if event.EventType == events.TypeTransactionFailed {
		p.Reason = tx.FailureReason()
		refunded := event.BoolPayload("refunded")
		p.Refunded = &refunded
	}
	return p
}

func (d *Dispatcher) maxAttempts() int {
	if d.cfg.MaxAttempts <= 0 {
		return 5
	}
	return d.cfg.MaxAttempts
}

func (d *Dispatcher) baseBackoff() time.Duration {
	if d.cfg.BaseRetryBackoff <= 0 {
		return 30 * time.Second
	}
	return d.cfg.BaseRetryBackoff
}

// deliveryJob is the self-contained payload carried on the queue: it
// holds everything the worker needs so it never has to read the
// subscription back out of the store mid-retry.
type deliveryJob struct {
	DeliveryID    string `json:"deliveryId"`
	WebhookID     string `json:"webhookId"`
	TransactionID string `json:"transactionId"`
	EventType     string `json:"eventType"`
	URL           string `json:"url"`
	Secret        string `json:"secret"`
	Payload       []byte `json:"payload"`
	MaxAttempts   int    `json:"maxAttempts"`
}

// StartWorker runs concurrency worker goroutines draining the delivery
// queue until ctx is cancelled.
func (d *Dispatcher) StartWorker(ctx context.Context, concurrency int) {
	if concurrency <= 0 {
		concurrency = 1
	}
	for i := 0; i < concurrency; i++ {
		go func() {
			if err := d.queue.Consume(ctx, jobType, d.handleJob); err != nil {
				slog.Default().Error("webhook: worker stopped", "error", err)
			}
		}()
	}
}

// handleJob performs one signed HTTP POST attempt and records its
// outcome. Returning an error tells the queue to retry with backoff;
// returning nil (success, or exhausted retries) stops it.
func (d *Dispatcher) handleJob(ctx context.Context, job ports.Job) error {
	var djob deliveryJob
	if err := json.Unmarshal(job.Data, &djob); err != nil {
		slog.Default().Error("webhook: corrupt delivery job", "jobId", job.ID, "error", err)
		return nil
	}

	delivery := entities.ReconstructWebhookDelivery(
		djob.DeliveryID, djob.WebhookID, djob.TransactionID, djob.EventType,
		djob.Payload, entities.WebhookDeliveryPending, job.Attempt-1, nil, "", nil, nil, time.Now(),
	)

	code, deliverErr := d.deliver(ctx, djob)
	delivery.MarkAttempt(code, deliverErr)

	if err := d.store.UpdateWebhookDelivery(ctx, delivery); err != nil {
		slog.Default().Error("webhook: persist delivery outcome failed", "deliveryId", djob.DeliveryID, "error", err)
	}

	if deliverErr == nil {
		d.recordSubscriptionOutcome(ctx, djob.WebhookID, true)
		return nil
	}

	exhausted := job.Attempt >= djob.MaxAttempts
	if exhausted {
		delivery.MarkFailed(deliverErr.Error())
		_ = d.store.UpdateWebhookDelivery(ctx, delivery)
		d.recordSubscriptionOutcome(ctx, djob.WebhookID, false)
		slog.Default().Warn("webhook: delivery exhausted retries", "deliveryId", djob.DeliveryID, "attempts", job.Attempt, "error", deliverErr)
		return nil
	}

	return deliverErr
}

func (d *Dispatcher) deliver(ctx context.Context, job deliveryJob) (int, error) {
	signature := sign(job.Secret, job.Payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, job.URL, bytes.NewReader(job.Payload))
	if err != nil {
		return 0, fmt.Errorf("webhook: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(signatureHeader, "sha256="+signature)

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("webhook: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("webhook: receiver returned status %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

func (d *Dispatcher) recordSubscriptionOutcome(ctx context.Context, webhookID string, success bool) {
	sub, err := d.store.FindWebhookSubscription(ctx, webhookID)
	if err != nil {
		slog.Default().Error("webhook: load subscription for outcome failed", "webhookId", webhookID, "error", err)
		return
	}
	if success {
		sub.RecordDeliverySuccess()
	} else {
		sub.RecordDeliveryFailure()
	}
	if err := d.store.UpdateWebhookSubscription(ctx, sub); err != nil {
		slog.Default().Error("webhook: persist subscription outcome failed", "webhookId", webhookID, "error", err)
	}
}

// sign computes the hex-encoded HMAC-SHA256 of payload keyed by secret.
func sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
