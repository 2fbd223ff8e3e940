// Package entities - Transaction represents a money movement between two
// wallets, driven end to end by the saga orchestrator. This is a critical
// entity with a small, strictly-guarded state machine.
package entities

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/wallethub/ledgercore/internal/domain/errors"
	"github.com/wallethub/ledgercore/internal/domain/valueobjects"
)

// TransactionStatus represents the current state of a transaction.
type TransactionStatus string

const (
	TransactionStatusInitiated TransactionStatus = "INITIATED"
	TransactionStatusDebited   TransactionStatus = "DEBITED"
	// TransactionStatusCredited exists for wire compatibility only. The saga
	// transitions DEBITED straight to COMPLETED in a single update; no code
	// path ever persists this value.
	TransactionStatusCredited  TransactionStatus = "CREDITED"
	TransactionStatusRefunding TransactionStatus = "REFUNDING"
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
	TransactionStatusFailed    TransactionStatus = "FAILED"
)

// IsFinal returns true if the status admits no further transitions.
func (s TransactionStatus) IsFinal() bool {
	return s == TransactionStatusCompleted || s == TransactionStatusFailed
}

// legalTransitions is the directed graph from spec §4.4. Any pair not
// listed here is rejected with ErrInvalidStateTransition.
var legalTransitions = map[TransactionStatus]map[TransactionStatus]bool{
	TransactionStatusInitiated: {
		TransactionStatusDebited: true,
		TransactionStatusFailed:  true,
	},
	TransactionStatusDebited: {
		TransactionStatusCompleted: true,
		TransactionStatusRefunding: true,
	},
	TransactionStatusRefunding: {
		TransactionStatusFailed: true,
	},
}

// transactionIDPrefix marks the opaque token as belonging to this domain.
const transactionIDPrefix = "txn_"

// NewTransactionID generates a server-side opaque transaction token: the
// txn_ prefix plus 128 bits of randomness, hex-encoded. Deliberately not a
// UUID, per the data model in spec §3.
func NewTransactionID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic("entities: failed to read random bytes for transaction id: " + err.Error())
	}
	return transactionIDPrefix + hex.EncodeToString(buf)
}

// Transaction represents a single money movement from sender to receiver.
//
// Entity Pattern:
// - Identity is the opaque transactionId, not a row pointer.
// - State machine with a small, statically-checked transition graph.
// - Terminal states (COMPLETED, FAILED) never mutate again.
type Transaction struct {
	id         string
	senderID   string
	receiverID string
	amount     valueobjects.Money

	status        TransactionStatus
	failureReason string

	initiatedAt time.Time
	completedAt *time.Time
}

// NewTransaction creates a transaction in the INITIATED state.
//
// Business rules: amount must be positive; sender and receiver must differ.
func NewTransaction(senderID, receiverID string, amount valueobjects.Money) (*Transaction, error) {
	if senderID == "" || receiverID == "" {
		return nil, errors.InvalidArg("senderId and receiverId are required")
	}
	if senderID == receiverID {
		return nil, errors.InvalidArg("senderId and receiverId must differ")
	}
	if !amount.IsPositive() {
		return nil, errors.InvalidArg("amount must be positive")
	}

	return &Transaction{
		id:          NewTransactionID(),
		senderID:    senderID,
		receiverID:  receiverID,
		amount:      amount,
		status:      TransactionStatusInitiated,
		initiatedAt: time.Now(),
	}, nil
}

// ReconstructTransaction rebuilds a Transaction from stored fields, bypassing
// the factory's initial-state invariant. Used by the store layer.
func ReconstructTransaction(
	id, senderID, receiverID string,
	amount valueobjects.Money,
	status TransactionStatus,
	failureReason string,
	initiatedAt time.Time,
	completedAt *time.Time,
) *Transaction {
	return &Transaction{
		id:            id,
		senderID:      senderID,
		receiverID:    receiverID,
		amount:        amount,
		status:        status,
		failureReason: failureReason,
		initiatedAt:   initiatedAt,
		completedAt:   completedAt,
	}
}

// Getters

func (t *Transaction) ID() string                    { return t.id }
func (t *Transaction) SenderID() string               { return t.senderID }
func (t *Transaction) ReceiverID() string             { return t.receiverID }
func (t *Transaction) Amount() valueobjects.Money      { return t.amount }
func (t *Transaction) Status() TransactionStatus       { return t.status }
func (t *Transaction) FailureReason() string           { return t.failureReason }
func (t *Transaction) InitiatedAt() time.Time          { return t.initiatedAt }
func (t *Transaction) CompletedAt() *time.Time         { return t.completedAt }
func (t *Transaction) IsFinal() bool                   { return t.status.IsFinal() }

// CanTransition reports whether moving from the current status to to is
// legal under the graph in spec §4.4, without mutating the transaction.
func (t *Transaction) CanTransition(to TransactionStatus) bool {
	return legalTransitions[t.status][to]
}

// advance is the single guarded mutator every state-changing method below
// funnels through. It never permits leaving a terminal state.
func (t *Transaction) advance(to TransactionStatus) error {
	if !t.CanTransition(to) {
		return errors.InvalidStateTransition(
			"cannot move transaction from " + string(t.status) + " to " + string(to))
	}
	t.status = to
	return nil
}

// MarkDebited transitions INITIATED -> DEBITED, after wallet.debit succeeds.
func (t *Transaction) MarkDebited() error {
	return t.advance(TransactionStatusDebited)
}

// MarkRefunding transitions DEBITED -> REFUNDING, after wallet.credit fails
// and compensation begins.
func (t *Transaction) MarkRefunding() error {
	return t.advance(TransactionStatusRefunding)
}

// MarkCompleted transitions DEBITED -> COMPLETED and stamps completedAt.
func (t *Transaction) MarkCompleted() error {
	if err := t.advance(TransactionStatusCompleted); err != nil {
		return err
	}
	now := time.Now()
	t.completedAt = &now
	return nil
}

// MarkFailed transitions INITIATED or REFUNDING -> FAILED, recording reason
// and stamping completedAt.
func (t *Transaction) MarkFailed(reason string) error {
	if err := t.advance(TransactionStatusFailed); err != nil {
		return err
	}
	t.failureReason = reason
	now := time.Now()
	t.completedAt = &now
	return nil
}
