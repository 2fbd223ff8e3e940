package ports

import (
	"context"

	"github.com/wallethub/ledgercore/internal/domain/entities"
	"github.com/wallethub/ledgercore/internal/domain/valueobjects"
)

// TransactionFilter narrows ListTransactionsByUser. Limit is capped at 100
// by implementations; zero Limit means the implementation's default.
type TransactionFilter struct {
	Status *entities.TransactionStatus
	Limit  int
	Offset int
}

// CreateOperationResult is the outcome of CreateOperationIfAbsent.
type CreateOperationResult struct {
	Inserted bool
	Existing *entities.WalletOperation
}

// Store is the transactional record store consumed by the wallet ledger
// and the saga orchestrator (spec §4.2). Implementations must make
// ConditionalIncrementBalance and CreateOperationIfAbsent atomic against
// concurrent callers.
type Store interface {
	// FindWalletByUser looks a wallet up by its owner and currency.
	// Returns a *DomainError wrapping errors.ErrNotFound when absent.
	FindWalletByUser(ctx context.Context, userID string, currency valueobjects.Currency) (*entities.Wallet, error)

	FindWalletByID(ctx context.Context, walletID string) (*entities.Wallet, error)

	CreateWallet(ctx context.Context, wallet *entities.Wallet) error

	// ConditionalIncrementBalance atomically applies +-amount to the
	// wallet's balance. When debit is true (a debit) the update only
	// commits if the resulting balance would be >= 0; credits, refunds
	// and deposits pass debit=false, which always commits. Returns a
	// *DomainError wrapping errors.ErrPreconditionFailed when the
	// predicate fails.
	ConditionalIncrementBalance(ctx context.Context, userID string, currency valueobjects.Currency, amount valueobjects.Money, debit bool) (*entities.Wallet, error)

	// CreateOperationIfAbsent inserts op only if op.ID() is not already
	// present, relying on a unique index. When a row already exists the
	// result's Existing field carries it so the caller can return its
	// ResultBalance instead of reverting the balance change.
	CreateOperationIfAbsent(ctx context.Context, op *entities.WalletOperation) (CreateOperationResult, error)

	FindOperation(ctx context.Context, operationID string) (*entities.WalletOperation, error)

	// ListOperationsByWallet returns a wallet's operations newest first,
	// capped at limit, for the history() external interface.
	ListOperationsByWallet(ctx context.Context, walletID string, limit int) ([]*entities.WalletOperation, error)

	FindTransaction(ctx context.Context, transactionID string) (*entities.Transaction, error)

	CreateTransaction(ctx context.Context, tx *entities.Transaction) error

	// UpdateTransactionIfStatusIn persists tx's current status,
	// failureReason and completedAt fields, but only if the row's
	// currently-stored status is one of requireStatus. Returns a
	// *DomainError wrapping errors.ErrPreconditionFailed otherwise.
	UpdateTransactionIfStatusIn(ctx context.Context, tx *entities.Transaction, requireStatus []entities.TransactionStatus) error

	ListTransactionsByUser(ctx context.Context, userID string, filter TransactionFilter) (items []*entities.Transaction, total int, err error)

	// Webhook subscriptions and deliveries share the ledger store so a
	// single backing transaction can cover business writes and any
	// outbox-style bookkeeping.
	CreateWebhookSubscription(ctx context.Context, sub *entities.WebhookSubscription) error
	FindWebhookSubscription(ctx context.Context, webhookID string) (*entities.WebhookSubscription, error)
	FindWebhookSubscriptionByURL(ctx context.Context, userID, url string) (*entities.WebhookSubscription, error)
	ListWebhookSubscriptions(ctx context.Context, userID string) ([]*entities.WebhookSubscription, error)
	ListActiveWebhookSubscriptionsForEvent(ctx context.Context, eventType string) ([]*entities.WebhookSubscription, error)
	UpdateWebhookSubscription(ctx context.Context, sub *entities.WebhookSubscription) error
	DeleteWebhookSubscription(ctx context.Context, webhookID string) error

	CreateWebhookDelivery(ctx context.Context, delivery *entities.WebhookDelivery) error
	UpdateWebhookDelivery(ctx context.Context, delivery *entities.WebhookDelivery) error
	ListWebhookDeliveries(ctx context.Context, webhookID string, limit int) ([]*entities.WebhookDelivery, error)
}

// TransactionalStore is an optional capability: Store implementations that
// can group a sequence of writes into one atomic unit implement it too.
// Callers type-assert for it and fall back to running the same calls
// untransacted when a Store (e.g. a test fake) doesn't support it.
type TransactionalStore interface {
	// WithinTransaction runs fn with a ctx that carries a single
	// transaction; every Store call fn makes with that ctx participates in
	// it. The transaction commits if fn returns nil and rolls back
	// otherwise, including when fn's error is a domain error rather than a
	// driver failure.
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
