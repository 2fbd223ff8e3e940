// Package events defines the wire shape of domain events carried over the
// event bus. Events are transient pub/sub facts, never persisted — the
// durable source of truth is the transaction and operation records.
package events

import (
	"encoding/json"
	"time"
)

// Event-type identifiers, wire form on the bus (spec §6).
const (
	TypeTransactionInitiated = "TRANSACTION_INITIATED"
	TypeTransactionCompleted = "TRANSACTION_COMPLETED"
	TypeTransactionFailed    = "TRANSACTION_FAILED"
	TypeDebitSuccess         = "DEBIT_SUCCESS"
	TypeDebitFailed          = "DEBIT_FAILED"
	TypeCreditSuccess        = "CREDIT_SUCCESS"
	TypeCreditFailed         = "CREDIT_FAILED"
	TypeRefundRequested      = "REFUND_REQUESTED"
	TypeRefundCompleted      = "REFUND_COMPLETED"
	TypeRefundFailed         = "REFUND_FAILED"
)

// Event is the flat shape every domain event takes on the bus: an event
// type, the transaction it concerns, when it occurred, and an arbitrary
// payload. Unlike a typed-per-event hierarchy, one struct covers all wire
// events because every handler dispatches on EventType and unpacks Payload
// itself.
type Event struct {
	EventType     string                 `json:"eventType"`
	TransactionID string                 `json:"transactionId"`
	Timestamp     time.Time              `json:"timestamp"`
	Payload       map[string]interface{} `json:"payload,omitempty"`
}

// New builds an Event stamped with the current time.
func New(eventType, transactionID string, payload map[string]interface{}) Event {
	return Event{
		EventType:     eventType,
		TransactionID: transactionID,
		Timestamp:     time.Now(),
		Payload:       payload,
	}
}

// Marshal serialises the event as JSON for transport across the bus.
func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Unmarshal parses a JSON-encoded Event from bus transport.
func Unmarshal(data []byte) (Event, error) {
	var e Event
	err := json.Unmarshal(data, &e)
	return e, err
}

// StringPayload reads a string field from the payload, returning "" if
// absent or of the wrong type.
func (e Event) StringPayload(key string) string {
	v, ok := e.Payload[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// BoolPayload reads a bool field from the payload, returning false if
// absent or of the wrong type.
func (e Event) BoolPayload(key string) bool {
	v, ok := e.Payload[key]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}
