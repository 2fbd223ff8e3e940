// Package saga implements the transfer saga (spec component E): a
// choreography of event reactions that sequences debit -> credit ->
// complete, or debit -> compensate -> refund, with no central coordinator
// process beyond this one set of idempotent handlers.
package saga

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wallethub/ledgercore/internal/application/ports"
	"github.com/wallethub/ledgercore/internal/domain/entities"
	"github.com/wallethub/ledgercore/internal/domain/errors"
	"github.com/wallethub/ledgercore/internal/domain/events"
	"github.com/wallethub/ledgercore/internal/domain/valueobjects"
	"github.com/wallethub/ledgercore/internal/ledger"
	"github.com/wallethub/ledgercore/internal/simulation"
)

// Orchestrator drives a Transaction from INITIATED to a terminal state
// purely by reacting to events published on Bus. Every handler must be
// idempotent: the bus redelivers at least once, and the state machine
// guard (updateTransactionIfStatusIn) makes duplicate reactions no-ops.
type Orchestrator struct {
	ledger *ledger.Ledger
	store  ports.Store
	bus    ports.Bus
}

// New builds an Orchestrator over ledger, store and bus.
func New(ledger *ledger.Ledger, store ports.Store, bus ports.Bus) *Orchestrator {
	return &Orchestrator{ledger: ledger, store: store, bus: bus}
}

// Start registers the saga's event reactions. Call once at process startup,
// after bus.Connect.
func (o *Orchestrator) Start(ctx context.Context) error {
	reactions := []struct {
		eventType string
		handler   ports.EventHandler
	}{
		{events.TypeTransactionInitiated, o.onTransactionInitiated},
		{events.TypeDebitSuccess, o.onDebitSuccess},
		{events.TypeDebitFailed, o.onDebitFailed},
		{events.TypeCreditSuccess, o.onCreditSuccess},
		{events.TypeCreditFailed, o.onCreditFailed},
		{events.TypeRefundCompleted, o.onRefundCompleted},
	}

	for _, r := range reactions {
		if err := o.bus.Subscribe(r.eventType, r.handler); err != nil {
			return fmt.Errorf("saga: subscribe %s: %w", r.eventType, err)
		}
	}
	return nil
}

// InitiateTransaction is the saga's single entry point. It validates both
// wallets exist, persists the transaction in INITIATED, publishes
// TRANSACTION_INITIATED, and returns immediately — everything past this
// point happens via the reactions registered in Start.
func (o *Orchestrator) InitiateTransaction(ctx context.Context, senderID, receiverID string, amount valueobjects.Money) (*entities.Transaction, error) {
	if _, err := o.store.FindWalletByUser(ctx, senderID, amount.Currency()); err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.NotFound("SenderWallet", senderID)
		}
		return nil, err
	}
	if _, err := o.store.FindWalletByUser(ctx, receiverID, amount.Currency()); err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.NotFound("ReceiverWallet", receiverID)
		}
		return nil, err
	}

	tx, err := entities.NewTransaction(senderID, receiverID, amount)
	if err != nil {
		return nil, err
	}
	if err := o.store.CreateTransaction(ctx, tx); err != nil {
		return nil, err
	}

	if err := o.bus.Publish(ctx, events.New(events.TypeTransactionInitiated, tx.ID(), nil)); err != nil {
		return nil, errors.Transient("failed to publish TRANSACTION_INITIATED: " + err.Error())
	}
	return tx, nil
}

func (o *Orchestrator) loadTransaction(ctx context.Context, transactionID string) (*entities.Transaction, error) {
	return o.store.FindTransaction(ctx, transactionID)
}

// swallowBenign turns a PreconditionFailed race (another handler already
// moved the transaction past the status this reaction expected) into a
// clean no-op, per spec §4.5's ordering/tie-break rule.
func swallowBenign(err error) error {
	if errors.IsPreconditionFailed(err) {
		return nil
	}
	return err
}

func (o *Orchestrator) onTransactionInitiated(ctx context.Context, event events.Event) error {
	tx, err := o.loadTransaction(ctx, event.TransactionID)
	if err != nil {
		return err
	}
	_, err = o.ledger.Debit(ctx, tx.SenderID(), tx.Amount().Currency(), tx.Amount(), tx.ID())
	if err != nil && !errors.IsNotFound(err) && !errors.IsInsufficientBalance(err) {
		return err
	}
	return nil
}

func (o *Orchestrator) onDebitSuccess(ctx context.Context, event events.Event) error {
	tx, err := o.loadTransaction(ctx, event.TransactionID)
	if err != nil {
		return err
	}
	if err := tx.MarkDebited(); err != nil {
		return swallowBenign(err)
	}
	if err := o.store.UpdateTransactionIfStatusIn(ctx, tx, []entities.TransactionStatus{entities.TransactionStatusInitiated}); err != nil {
		return swallowBenign(err)
	}
	return o.processCredit(ctx, tx)
}

// processCredit applies the failure-simulation hook before attempting the
// real credit, per spec §4.5's chaos-testing affordance.
func (o *Orchestrator) processCredit(ctx context.Context, tx *entities.Transaction) error {
	if shouldFail, kind := simulation.ShouldFailCredit(tx.ID()); shouldFail {
		reason := "SIMULATED_FAILURE"
		if kind != simulation.FailureTypeNone {
			reason = string(kind)
		}
		slog.Default().Warn("saga: simulated credit failure", slog.String("transactionId", tx.ID()), slog.String("reason", reason))
		if err := o.bus.Publish(ctx, events.New(events.TypeCreditFailed, tx.ID(), map[string]interface{}{
			"reason": reason,
		})); err != nil {
			return errors.Transient("failed to publish CREDIT_FAILED: " + err.Error())
		}
		return nil
	}

	_, err := o.ledger.Credit(ctx, tx.ReceiverID(), tx.Amount().Currency(), tx.Amount(), tx.ID())
	if err != nil && !errors.IsNotFound(err) {
		return err
	}
	return nil
}

func (o *Orchestrator) onDebitFailed(ctx context.Context, event events.Event) error {
	tx, err := o.loadTransaction(ctx, event.TransactionID)
	if err != nil {
		return err
	}
	if err := tx.MarkFailed(event.StringPayload("reason")); err != nil {
		return swallowBenign(err)
	}
	if err := o.store.UpdateTransactionIfStatusIn(ctx, tx, []entities.TransactionStatus{entities.TransactionStatusInitiated}); err != nil {
		return swallowBenign(err)
	}
	return o.publish(ctx, events.TypeTransactionFailed, tx.ID(), map[string]interface{}{"refunded": false})
}

func (o *Orchestrator) onCreditSuccess(ctx context.Context, event events.Event) error {
	tx, err := o.loadTransaction(ctx, event.TransactionID)
	if err != nil {
		return err
	}
	if err := tx.MarkCompleted(); err != nil {
		return swallowBenign(err)
	}
	if err := o.store.UpdateTransactionIfStatusIn(ctx, tx, []entities.TransactionStatus{entities.TransactionStatusDebited}); err != nil {
		return swallowBenign(err)
	}
	return o.publish(ctx, events.TypeTransactionCompleted, tx.ID(), nil)
}

func (o *Orchestrator) onCreditFailed(ctx context.Context, event events.Event) error {
	tx, err := o.loadTransaction(ctx, event.TransactionID)
	if err != nil {
		return err
	}
	if err := tx.MarkRefunding(); err != nil {
		return swallowBenign(err)
	}
	if err := o.store.UpdateTransactionIfStatusIn(ctx, tx, []entities.TransactionStatus{entities.TransactionStatusDebited}); err != nil {
		return swallowBenign(err)
	}
	if err := o.publish(ctx, events.TypeRefundRequested, tx.ID(), nil); err != nil {
		return err
	}
	_, err = o.ledger.Refund(ctx, tx.SenderID(), tx.Amount().Currency(), tx.Amount(), tx.ID())
	if err != nil && !errors.IsNotFound(err) {
		return err
	}
	return nil
}

func (o *Orchestrator) onRefundCompleted(ctx context.Context, event events.Event) error {
	tx, err := o.loadTransaction(ctx, event.TransactionID)
	if err != nil {
		return err
	}
	if err := tx.MarkFailed("Credit failed, amount refunded to sender"); err != nil {
		return swallowBenign(err)
	}
	if err := o.store.UpdateTransactionIfStatusIn(ctx, tx, []entities.TransactionStatus{entities.TransactionStatusRefunding}); err != nil {
		return swallowBenign(err)
	}
	return o.publish(ctx, events.TypeTransactionFailed, tx.ID(), map[string]interface{}{"refunded": true})
}

func (o *Orchestrator) publish(ctx context.Context, eventType, transactionID string, payload map[string]interface{}) error {
	if err := o.bus.Publish(ctx, events.New(eventType, transactionID, payload)); err != nil {
		return errors.Transient(fmt.Sprintf("failed to publish %s: %v", eventType, err))
	}
	return nil
}
