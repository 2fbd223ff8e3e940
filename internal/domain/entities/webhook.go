package entities

import (
	"strings"
	"time"

	"github.com/wallethub/ledgercore/internal/domain/errors"
	"github.com/google/uuid"
)

// WebhookDeliveryStatus is the lifecycle of a single delivery attempt chain.
type WebhookDeliveryStatus string

const (
	WebhookDeliveryPending  WebhookDeliveryStatus = "PENDING"
	WebhookDeliverySuccess  WebhookDeliveryStatus = "SUCCESS"
	WebhookDeliveryFailed   WebhookDeliveryStatus = "FAILED"
	WebhookDeliveryRetrying WebhookDeliveryStatus = "RETRYING"
)

// WebhookSubscription is a user's registration for outbound event
// notifications. One subscription per (userId, url).
type WebhookSubscription struct {
	id           string
	userID       string
	url          string
	secret       string
	events       []string
	isActive     bool
	failureCount int

	createdAt time.Time
	updatedAt time.Time
}

// NewWebhookSubscription validates and creates a subscription.
//
// Business rules: url must be HTTPS; secret must be at least 32 bytes
// (used as the HMAC-SHA256 key for signing delivery bodies).
func NewWebhookSubscription(userID, url, secret string, events []string) (*WebhookSubscription, error) {
	if userID == "" {
		return nil, errors.InvalidArg("userId is required")
	}
	if !strings.HasPrefix(url, "https://") {
		return nil, errors.InvalidArg("webhook url must use https")
	}
	if len(secret) < 32 {
		return nil, errors.InvalidArg("webhook secret must be at least 32 bytes")
	}
	if len(events) == 0 {
		return nil, errors.InvalidArg("at least one event type is required")
	}

	now := time.Now()
	return &WebhookSubscription{
		id:        uuid.New().String(),
		userID:    userID,
		url:       url,
		secret:    secret,
		events:    events,
		isActive:  true,
		createdAt: now,
		updatedAt: now,
	}, nil
}

// ReconstructWebhookSubscription rebuilds a subscription from stored fields.
func ReconstructWebhookSubscription(
	id, userID, url, secret string,
	events []string,
	isActive bool,
	failureCount int,
	createdAt, updatedAt time.Time,
) *WebhookSubscription {
	return &WebhookSubscription{
		id: id, userID: userID, url: url, secret: secret, events: events,
		isActive: isActive, failureCount: failureCount,
		createdAt: createdAt, updatedAt: updatedAt,
	}
}

func (s *WebhookSubscription) ID() string          { return s.id }
func (s *WebhookSubscription) UserID() string       { return s.userID }
func (s *WebhookSubscription) URL() string          { return s.url }
func (s *WebhookSubscription) Secret() string       { return s.secret }
func (s *WebhookSubscription) Events() []string     { return s.events }
func (s *WebhookSubscription) IsActive() bool       { return s.isActive }
func (s *WebhookSubscription) FailureCount() int    { return s.failureCount }
func (s *WebhookSubscription) CreatedAt() time.Time { return s.createdAt }
func (s *WebhookSubscription) UpdatedAt() time.Time { return s.updatedAt }

// Subscribes reports whether this subscription wants deliveries for
// eventType.
func (s *WebhookSubscription) Subscribes(eventType string) bool {
	for _, e := range s.events {
		if e == eventType {
			return true
		}
	}
	return false
}

// webhookAutoDeactivateThreshold is the consecutive-failure count at which
// a subscription is auto-deactivated. Not pinned down by spec.md (open
// question, documented in DESIGN.md); 10 consecutive failures chosen.
const webhookAutoDeactivateThreshold = 10

// RecordDeliverySuccess resets the consecutive-failure counter.
func (s *WebhookSubscription) RecordDeliverySuccess() {
	s.failureCount = 0
	s.updatedAt = time.Now()
}

// RecordDeliveryFailure increments the consecutive-failure counter and
// auto-deactivates the subscription once it crosses the threshold.
func (s *WebhookSubscription) RecordDeliveryFailure() {
	s.failureCount++
	if s.failureCount >= webhookAutoDeactivateThreshold {
		s.isActive = false
	}
	s.updatedAt = time.Now()
}

// WebhookDelivery tracks one outbound delivery attempt chain for a single
// domain event to a single subscription. deliveryId doubles as the job
// queue's jobId for dedup.
type WebhookDelivery struct {
	id            string
	webhookID     string
	transactionID string
	eventType     string
	payload       []byte
	status        WebhookDeliveryStatus
	attemptCount  int
	responseCode  *int
	lastError     string
	nextRetryAt   *time.Time
	completedAt   *time.Time
	createdAt     time.Time
}

// NewWebhookDelivery creates a delivery row in PENDING state.
func NewWebhookDelivery(webhookID, transactionID, eventType string, payload []byte) *WebhookDelivery {
	return &WebhookDelivery{
		id:            uuid.New().String(),
		webhookID:     webhookID,
		transactionID: transactionID,
		eventType:     eventType,
		payload:       payload,
		status:        WebhookDeliveryPending,
		createdAt:     time.Now(),
	}
}

// ReconstructWebhookDelivery rebuilds a delivery from stored fields.
func ReconstructWebhookDelivery(
	id, webhookID, transactionID, eventType string,
	payload []byte,
	status WebhookDeliveryStatus,
	attemptCount int,
	responseCode *int,
	lastError string,
	nextRetryAt, completedAt *time.Time,
	createdAt time.Time,
) *WebhookDelivery {
	return &WebhookDelivery{
		id: id, webhookID: webhookID, transactionID: transactionID, eventType: eventType,
		payload: payload, status: status, attemptCount: attemptCount, responseCode: responseCode,
		lastError: lastError, nextRetryAt: nextRetryAt, completedAt: completedAt, createdAt: createdAt,
	}
}

func (d *WebhookDelivery) ID() string                        { return d.id }
func (d *WebhookDelivery) WebhookID() string                  { return d.webhookID }
func (d *WebhookDelivery) TransactionID() string               { return d.transactionID }
func (d *WebhookDelivery) EventType() string                   { return d.eventType }
func (d *WebhookDelivery) Payload() []byte                      { return d.payload }
func (d *WebhookDelivery) Status() WebhookDeliveryStatus        { return d.status }
func (d *WebhookDelivery) AttemptCount() int                    { return d.attemptCount }
func (d *WebhookDelivery) LastError() string                    { return d.lastError }
func (d *WebhookDelivery) ResponseCode() *int                    { return d.responseCode }
func (d *WebhookDelivery) NextRetryAt() *time.Time               { return d.nextRetryAt }
func (d *WebhookDelivery) CompletedAt() *time.Time               { return d.completedAt }
func (d *WebhookDelivery) CreatedAt() time.Time                 { return d.createdAt }

// MarkAttempt records one delivery attempt's outcome.
func (d *WebhookDelivery) MarkAttempt(responseCode int, err error) {
	d.attemptCount++
	d.responseCode = &responseCode
	if err == nil && responseCode >= 200 && responseCode < 300 {
		d.status = WebhookDeliverySuccess
		d.lastError = ""
		now := time.Now()
		d.completedAt = &now
		return
	}
	if err != nil {
		d.lastError = err.Error()
	}
	d.status = WebhookDeliveryRetrying
}

// MarkFailed transitions the delivery to its terminal failed state after
// the queue exhausts retries.
func (d *WebhookDelivery) MarkFailed(reason string) {
	d.status = WebhookDeliveryFailed
	d.lastError = reason
	now := time.Now()
	d.completedAt = &now
}
