// Package ledger implements the wallet ledger: the sole path through which
// balances change. Every mutation goes through the same six-step algorithm
// (validate the amount, look up an existing operation, verify the wallet, attempt a conditional
// balance update, record the operation row, publish the outcome) so debit,
// credit, refund and deposit share one concurrency story.
package ledger

import (
	"context"
	"log/slog"

	"github.com/wallethub/ledgercore/internal/application/ports"
	"github.com/wallethub/ledgercore/internal/domain/entities"
	"github.com/wallethub/ledgercore/internal/domain/errors"
	"github.com/wallethub/ledgercore/internal/domain/events"
	"github.com/wallethub/ledgercore/internal/domain/valueobjects"
)

// Result is the outcome of a ledger operation.
type Result struct {
	Success     bool
	NewBalance  valueobjects.Money
	OperationID string
	Idempotent  bool
	Kind        entities.OperationKind
}

// Ledger is the wallet ledger (spec component C). It owns no state of its
// own; every fact lives in the Store, and every outcome is announced on the
// Bus for the saga orchestrator to react to.
type Ledger struct {
	store ports.Store
	bus   ports.Bus
}

// New builds a Ledger over store and bus.
func New(store ports.Store, bus ports.Bus) *Ledger {
	return &Ledger{store: store, bus: bus}
}

// step carries the per-kind differences through the shared algorithm.
type step struct {
	kind             entities.OperationKind
	operationID      string
	transactionID    string
	debit            bool
	failedEventType  string
	successEventType string
}

// Debit removes amount from userID's currency wallet on behalf of
// transactionID. Fails with InsufficientBalance if the conditional update's
// balance >= amount predicate does not hold.
func (l *Ledger) Debit(ctx context.Context, userID string, currency valueobjects.Currency, amount valueobjects.Money, transactionID string) (Result, error) {
	return l.apply(ctx, userID, currency, amount, step{
		kind:             entities.OperationKindDebit,
		operationID:      entities.SagaOperationID(transactionID, entities.OperationKindDebit),
		transactionID:    transactionID,
		debit:            true,
		failedEventType:  events.TypeDebitFailed,
		successEventType: events.TypeDebitSuccess,
	})
}

// Credit adds amount to userID's currency wallet on behalf of transactionID.
func (l *Ledger) Credit(ctx context.Context, userID string, currency valueobjects.Currency, amount valueobjects.Money, transactionID string) (Result, error) {
	return l.apply(ctx, userID, currency, amount, step{
		kind:             entities.OperationKindCredit,
		operationID:      entities.SagaOperationID(transactionID, entities.OperationKindCredit),
		transactionID:    transactionID,
		debit:            false,
		failedEventType:  events.TypeCreditFailed,
		successEventType: events.TypeCreditSuccess,
	})
}

// Refund returns amount to userID's currency wallet as compensation for a
// transactionID whose credit step failed.
func (l *Ledger) Refund(ctx context.Context, userID string, currency valueobjects.Currency, amount valueobjects.Money, transactionID string) (Result, error) {
	return l.apply(ctx, userID, currency, amount, step{
		kind:             entities.OperationKindRefund,
		operationID:      entities.SagaOperationID(transactionID, entities.OperationKindRefund),
		transactionID:    transactionID,
		debit:            false,
		failedEventType:  events.TypeRefundFailed,
		successEventType: events.TypeRefundCompleted,
	})
}

// Deposit credits amount into userID's currency wallet outside of any saga,
// deduplicated by clientKey. Deposits publish no domain event.
func (l *Ledger) Deposit(ctx context.Context, userID string, currency valueobjects.Currency, amount valueobjects.Money, clientKey string) (Result, error) {
	return l.apply(ctx, userID, currency, amount, step{
		kind:        entities.OperationKindDeposit,
		operationID: entities.DepositOperationID(clientKey),
		debit:       false,
	})
}

func (l *Ledger) apply(ctx context.Context, userID string, currency valueobjects.Currency, amount valueobjects.Money, cfg step) (Result, error) {
	if !amount.IsPositive() {
		return Result{}, errors.InvalidArg("amount must be positive")
	}

	existing, err := l.store.FindOperation(ctx, cfg.operationID)
	if err == nil && existing != nil {
		return Result{
			Success:     true,
			NewBalance:  existing.ResultBalance(),
			OperationID: cfg.operationID,
			Idempotent:  true,
			Kind:        cfg.kind,
		}, nil
	}
	if err != nil && !errors.IsNotFound(err) {
		return Result{}, err
	}

	wallet, err := l.store.FindWalletByUser(ctx, userID, currency)
	if err != nil {
		if errors.IsNotFound(err) {
			l.publishFailure(ctx, cfg, "WALLET_NOT_FOUND")
		}
		return Result{}, err
	}

	// The balance update and the operation row that records it must land
	// together: run them inside one transaction when the backing store
	// supports it, so a crash between the two can never leave a moved
	// balance with no audit row to explain it.
	var updated *entities.Wallet
	var created ports.CreateOperationResult
	writeStep := func(ctx context.Context) error {
		var err error
		updated, err = l.store.ConditionalIncrementBalance(ctx, userID, currency, amount, cfg.debit)
		if err != nil {
			return err
		}
		op := entities.NewWalletOperation(cfg.operationID, wallet.ID(), userID, cfg.kind, amount, updated.Balance(), cfg.transactionID)
		created, err = l.store.CreateOperationIfAbsent(ctx, op)
		return err
	}

	if txStore, ok := l.store.(ports.TransactionalStore); ok {
		err = txStore.WithinTransaction(ctx, writeStep)
	} else {
		err = writeStep(ctx)
	}
	if err != nil {
		if cfg.debit && errors.IsPreconditionFailed(err) {
			l.publishFailure(ctx, cfg, "INSUFFICIENT_BALANCE")
			return Result{}, errors.InsufficientBalance("wallet balance is insufficient for this debit")
		}
		return Result{}, err
	}

	// The writer that actually inserted the row is the one that got to move
	// the balance; a loser of the race must report the winner's balance
	// rather than its own, and must not publish a second success event.
	resultBalance := updated.Balance()
	idempotent := false
	if !created.Inserted && created.Existing != nil {
		resultBalance = created.Existing.ResultBalance()
		idempotent = true
	}

	if !idempotent {
		l.publishSuccess(ctx, cfg, resultBalance)
	}

	return Result{
		Success:     true,
		NewBalance:  resultBalance,
		OperationID: cfg.operationID,
		Idempotent:  idempotent,
		Kind:        cfg.kind,
	}, nil
}

func (l *Ledger) publishFailure(ctx context.Context, cfg step, reason string) {
	if cfg.failedEventType == "" {
		return
	}
	if err := l.bus.Publish(ctx, events.New(cfg.failedEventType, cfg.transactionID, map[string]interface{}{
		"reason": reason,
	})); err != nil {
		slog.Default().Error("failed to publish ledger event", slog.String("eventType", cfg.failedEventType), slog.String("error", err.Error()))
	}
}

func (l *Ledger) publishSuccess(ctx context.Context, cfg step, newBalance valueobjects.Money) {
	if cfg.successEventType == "" {
		return
	}
	if err := l.bus.Publish(ctx, events.New(cfg.successEventType, cfg.transactionID, map[string]interface{}{
		"operationId": cfg.operationID,
		"newBalance":  newBalance.String(),
	})); err != nil {
		slog.Default().Error("failed to publish ledger event", slog.String("eventType", cfg.successEventType), slog.String("error", err.Error()))
	}
}
