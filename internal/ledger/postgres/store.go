package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wallethub/ledgercore/internal/application/ports"
	"github.com/wallethub/ledgercore/internal/domain/entities"
	domainErrors "github.com/wallethub/ledgercore/internal/domain/errors"
	"github.com/wallethub/ledgercore/internal/domain/valueobjects"
)

var _ ports.Store = (*Store)(nil)

// Store is the pgx-backed ports.Store. Every method is transaction-aware:
// when ctx carries a transaction injected by WithinTransaction, statements
// run against it instead of the pool.
type Store struct {
	pool *pgxpool.Pool
}

// New builds a Store over pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) q(ctx context.Context) querier {
	if tx := extractTx(ctx); tx != nil {
		return tx
	}
	return s.pool
}

var _ ports.TransactionalStore = (*Store)(nil)

// withinTxMaxAttempts bounds retries of fn after a serialization failure or
// detected deadlock; both are expected to clear on a fresh attempt.
const withinTxMaxAttempts = 3

// WithinTransaction runs fn against a single pgx transaction: every Store
// method fn calls with the ctx it's given runs against that transaction via
// q's extractTx branch, instead of the pool directly. A serialization
// failure or deadlock retries fn from scratch, up to withinTxMaxAttempts.
func (s *Store) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 1; attempt <= withinTxMaxAttempts; attempt++ {
		err = s.runOnce(ctx, fn)
		if err == nil || !isSerializationFailure(err) {
			return err
		}
	}
	return err
}

func (s *Store) runOnce(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(injectTx(ctx, tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// --- wallets ---

const walletColumns = `id, user_id, currency, balance_cents, is_active, created_at, updated_at`

func (s *Store) scanWallet(row pgx.Row) (*entities.Wallet, error) {
	var (
		id, userID, currencyCode string
		balanceCents             int64
		isActive                 bool
		createdAt, updatedAt     time.Time
	)
	if err := row.Scan(&id, &userID, &currencyCode, &balanceCents, &isActive, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.NotFound("Wallet", userID)
		}
		return nil, fmt.Errorf("scan wallet: %w", err)
	}

	currency, err := valueobjects.NewCurrency(currencyCode)
	if err != nil {
		return nil, fmt.Errorf("invalid stored currency %q: %w", currencyCode, err)
	}
	balance, err := valueobjects.NewMoneyFromCents(balanceCents, currency)
	if err != nil {
		return nil, fmt.Errorf("invalid stored balance: %w", err)
	}

	return entities.ReconstructWallet(id, userID, currency, balance, isActive, createdAt, updatedAt), nil
}

func (s *Store) FindWalletByUser(ctx context.Context, userID string, currency valueobjects.Currency) (*entities.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE user_id = $1 AND currency = $2`
	wallet, err := s.scanWallet(s.q(ctx).QueryRow(ctx, query, userID, currency.Code()))
	if err != nil {
		if domainErrors.IsNotFound(err) {
			return nil, domainErrors.NotFound("Wallet", userID)
		}
		return nil, err
	}
	return wallet, nil
}

func (s *Store) FindWalletByID(ctx context.Context, walletID string) (*entities.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE id = $1`
	return s.scanWallet(s.q(ctx).QueryRow(ctx, query, walletID))
}

func (s *Store) CreateWallet(ctx context.Context, wallet *entities.Wallet) error {
	query := `
		INSERT INTO wallets (id, user_id, currency, balance_cents, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.q(ctx).Exec(ctx, query,
		wallet.ID(), wallet.UserID(), wallet.Currency().Code(), wallet.Balance().Cents(),
		wallet.IsActive(), wallet.CreatedAt(), wallet.UpdatedAt(),
	)
	if err != nil {
		if isUniqueViolation(err, "wallets_user_currency_unique") {
			return domainErrors.Conflict(fmt.Sprintf("wallet for user %s in %s already exists", wallet.UserID(), wallet.Currency().Code()))
		}
		return fmt.Errorf("insert wallet: %w", err)
	}
	return nil
}

// ConditionalIncrementBalance is the one-statement optimistic update that
// enforces the non-negative-balance invariant for debits: the predicate
// `balance + delta >= 0` is part of the WHERE clause itself, so the row
// either updates atomically or the statement affects zero rows.
func (s *Store) ConditionalIncrementBalance(ctx context.Context, userID string, currency valueobjects.Currency, amount valueobjects.Money, debit bool) (*entities.Wallet, error) {
	delta := amount.Cents()
	if debit {
		delta = -delta
	}

	query := `
		UPDATE wallets
		SET balance_cents = balance_cents + $1, updated_at = now()
		WHERE user_id = $2 AND currency = $3 AND balance_cents + $1 >= 0
		RETURNING ` + walletColumns

	wallet, err := s.scanWallet(s.q(ctx).QueryRow(ctx, query, delta, userID, currency.Code()))
	if err != nil {
		if domainErrors.IsNotFound(err) {
			if exists, findErr := s.walletExists(ctx, userID, currency); findErr == nil && exists {
				return nil, domainErrors.PreconditionFailed("balance update predicate failed")
			}
			return nil, domainErrors.NotFound("Wallet", userID)
		}
		return nil, err
	}
	return wallet, nil
}

func (s *Store) walletExists(ctx context.Context, userID string, currency valueobjects.Currency) (bool, error) {
	var exists bool
	err := s.q(ctx).QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM wallets WHERE user_id = $1 AND currency = $2)`, userID, currency.Code()).Scan(&exists)
	return exists, err
}

// --- wallet operations ---

func (s *Store) scanOperation(row pgx.Row) (*entities.WalletOperation, error) {
	var (
		id, walletID, userID, kind, transactionID string
		amountCents, resultBalanceCents            int64
		currencyCode                               string
		createdAt                                  time.Time
	)
	if err := row.Scan(&id, &walletID, &userID, &kind, &amountCents, &resultBalanceCents, &currencyCode, &transactionID, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.NotFound("WalletOperation", id)
		}
		return nil, fmt.Errorf("scan wallet operation: %w", err)
	}

	currency, err := valueobjects.NewCurrency(currencyCode)
	if err != nil {
		return nil, fmt.Errorf("invalid stored currency %q: %w", currencyCode, err)
	}
	amount, err := valueobjects.NewMoneyFromCents(amountCents, currency)
	if err != nil {
		return nil, err
	}
	resultBalance, err := valueobjects.NewMoneyFromCents(resultBalanceCents, currency)
	if err != nil {
		return nil, err
	}

	return entities.ReconstructWalletOperation(id, walletID, userID, entities.OperationKind(kind), amount, resultBalance, transactionID, createdAt), nil
}

const operationColumns = `id, wallet_id, user_id, kind, amount_cents, result_balance_cents, currency, transaction_id, created_at`

// CreateOperationIfAbsent relies on the primary key on id: the
// INSERT ... ON CONFLICT (id) DO NOTHING either inserts (Inserted=true) or,
// on a race, affects zero rows, and the winning row is re-read and
// returned as Existing.
func (s *Store) CreateOperationIfAbsent(ctx context.Context, op *entities.WalletOperation) (ports.CreateOperationResult, error) {
	query := `
		INSERT INTO wallet_operations (id, wallet_id, user_id, kind, amount_cents, result_balance_cents, currency, transaction_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`
	tag, err := s.q(ctx).Exec(ctx, query,
		op.ID(), op.WalletID(), op.UserID(), string(op.Kind()),
		op.Amount().Cents(), op.ResultBalance().Cents(), op.Amount().Currency().Code(),
		op.TransactionID(), op.CreatedAt(),
	)
	if err != nil {
		return ports.CreateOperationResult{}, fmt.Errorf("insert wallet operation: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return ports.CreateOperationResult{Inserted: true}, nil
	}

	existing, err := s.FindOperation(ctx, op.ID())
	if err != nil {
		return ports.CreateOperationResult{}, err
	}
	return ports.CreateOperationResult{Inserted: false, Existing: existing}, nil
}

func (s *Store) FindOperation(ctx context.Context, operationID string) (*entities.WalletOperation, error) {
	query := `SELECT ` + operationColumns + ` FROM wallet_operations WHERE id = $1`
	return s.scanOperation(s.q(ctx).QueryRow(ctx, query, operationID))
}

// ListOperationsByWallet returns walletID's operations newest first.
func (s *Store) ListOperationsByWallet(ctx context.Context, walletID string, limit int) ([]*entities.WalletOperation, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	query := `SELECT ` + operationColumns + ` FROM wallet_operations WHERE wallet_id = $1 ORDER BY created_at DESC LIMIT $2`
	rows, err := s.q(ctx).Query(ctx, query, walletID, limit)
	if err != nil {
		return nil, fmt.Errorf("list wallet operations: %w", err)
	}
	defer rows.Close()

	var ops []*entities.WalletOperation
	for rows.Next() {
		op, err := s.scanOperation(rows)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

// --- transactions ---

const transactionColumns = `id, sender_id, receiver_id, amount_cents, currency, status, failure_reason, initiated_at, completed_at`

func (s *Store) scanTransaction(row pgx.Row) (*entities.Transaction, error) {
	var (
		id, senderID, receiverID, currencyCode, status string
		amountCents                                     int64
		failureReason                                   *string
		initiatedAt                                      time.Time
		completedAt                                      *time.Time
	)
	if err := row.Scan(&id, &senderID, &receiverID, &amountCents, &currencyCode, &status, &failureReason, &initiatedAt, &completedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.NotFound("Transaction", id)
		}
		return nil, fmt.Errorf("scan transaction: %w", err)
	}

	currency, err := valueobjects.NewCurrency(currencyCode)
	if err != nil {
		return nil, err
	}
	amount, err := valueobjects.NewMoneyFromCents(amountCents, currency)
	if err != nil {
		return nil, err
	}

	reason := ""
	if failureReason != nil {
		reason = *failureReason
	}

	return entities.ReconstructTransaction(id, senderID, receiverID, amount, entities.TransactionStatus(status), reason, initiatedAt, completedAt), nil
}

func (s *Store) FindTransaction(ctx context.Context, transactionID string) (*entities.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	return s.scanTransaction(s.q(ctx).QueryRow(ctx, query, transactionID))
}

func (s *Store) CreateTransaction(ctx context.Context, tx *entities.Transaction) error {
	query := `
		INSERT INTO transactions (id, sender_id, receiver_id, amount_cents, currency, status, failure_reason, initiated_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	var failureReason *string
	if tx.FailureReason() != "" {
		failureReason = stringPtr(tx.FailureReason())
	}
	_, err := s.q(ctx).Exec(ctx, query,
		tx.ID(), tx.SenderID(), tx.ReceiverID(), tx.Amount().Cents(), tx.Amount().Currency().Code(),
		string(tx.Status()), failureReason, tx.InitiatedAt(), tx.CompletedAt(),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domainErrors.InvalidArg("senderId or receiverId does not reference an existing wallet")
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// UpdateTransactionIfStatusIn is the optimistic guard behind every saga
// state transition: it only commits when the row's current status is one
// the caller expected, so a redelivered or racing event becomes a no-op.
func (s *Store) UpdateTransactionIfStatusIn(ctx context.Context, tx *entities.Transaction, requireStatus []entities.TransactionStatus) error {
	statuses := make([]string, len(requireStatus))
	for i, st := range requireStatus {
		statuses[i] = string(st)
	}

	var failureReason *string
	if tx.FailureReason() != "" {
		failureReason = stringPtr(tx.FailureReason())
	}

	query := `
		UPDATE transactions
		SET status = $1, failure_reason = $2, completed_at = $3
		WHERE id = $4 AND status = ANY($5)
	`
	tag, err := s.q(ctx).Exec(ctx, query, string(tx.Status()), failureReason, tx.CompletedAt(), tx.ID(), statuses)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.PreconditionFailed("transaction status changed concurrently")
	}
	return nil
}

func (s *Store) ListTransactionsByUser(ctx context.Context, userID string, filter ports.TransactionFilter) ([]*entities.Transaction, int, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	args := []interface{}{userID, userID}
	where := `(sender_id = $1 OR receiver_id = $2)`
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}

	args = append(args, limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM transactions WHERE %s ORDER BY initiated_at DESC LIMIT $%d OFFSET $%d`,
		transactionColumns, where, len(args)-1, len(args))

	rows, err := s.q(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var items []*entities.Transaction
	for rows.Next() {
		tx, err := s.scanTransaction(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	countArgs := args[:len(args)-2]
	countQuery := fmt.Sprintf(`SELECT count(*) FROM transactions WHERE %s`, where)
	var total int
	if err := s.q(ctx).QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	return items, total, nil
}

func stringPtr(s string) *string { return &s }

// --- webhook subscriptions ---

const webhookSubscriptionColumns = `id, user_id, url, secret, events, is_active, failure_count, created_at, updated_at`

func (s *Store) scanWebhookSubscription(row pgx.Row) (*entities.WebhookSubscription, error) {
	var (
		id, userID, url, secret string
		events                  []string
		isActive                bool
		failureCount            int
		createdAt, updatedAt    time.Time
	)
	if err := row.Scan(&id, &userID, &url, &secret, &events, &isActive, &failureCount, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.NotFound("WebhookSubscription", id)
		}
		return nil, fmt.Errorf("scan webhook subscription: %w", err)
	}
	return entities.ReconstructWebhookSubscription(id, userID, url, secret, events, isActive, failureCount, createdAt, updatedAt), nil
}

func (s *Store) CreateWebhookSubscription(ctx context.Context, sub *entities.WebhookSubscription) error {
	query := `
		INSERT INTO webhook_subscriptions (id, user_id, url, secret, events, is_active, failure_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.q(ctx).Exec(ctx, query,
		sub.ID(), sub.UserID(), sub.URL(), sub.Secret(), sub.Events(),
		sub.IsActive(), sub.FailureCount(), sub.CreatedAt(), sub.UpdatedAt(),
	)
	if err != nil {
		if isUniqueViolation(err, "webhook_subscriptions_user_url_unique") {
			return domainErrors.Conflict(fmt.Sprintf("webhook subscription for user %s at %s already exists", sub.UserID(), sub.URL()))
		}
		return fmt.Errorf("insert webhook subscription: %w", err)
	}
	return nil
}

func (s *Store) FindWebhookSubscription(ctx context.Context, webhookID string) (*entities.WebhookSubscription, error) {
	query := `SELECT ` + webhookSubscriptionColumns + ` FROM webhook_subscriptions WHERE id = $1`
	return s.scanWebhookSubscription(s.q(ctx).QueryRow(ctx, query, webhookID))
}

func (s *Store) FindWebhookSubscriptionByURL(ctx context.Context, userID, url string) (*entities.WebhookSubscription, error) {
	query := `SELECT ` + webhookSubscriptionColumns + ` FROM webhook_subscriptions WHERE user_id = $1 AND url = $2`
	return s.scanWebhookSubscription(s.q(ctx).QueryRow(ctx, query, userID, url))
}

func (s *Store) ListWebhookSubscriptions(ctx context.Context, userID string) ([]*entities.WebhookSubscription, error) {
	query := `SELECT ` + webhookSubscriptionColumns + ` FROM webhook_subscriptions WHERE user_id = $1 ORDER BY created_at`
	rows, err := s.q(ctx).Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list webhook subscriptions: %w", err)
	}
	defer rows.Close()

	var items []*entities.WebhookSubscription
	for rows.Next() {
		sub, err := s.scanWebhookSubscription(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, sub)
	}
	return items, rows.Err()
}

// ListActiveWebhookSubscriptionsForEvent is consulted by the webhook
// dispatcher on every published domain event; the events column uses a
// GIN index so this stays cheap at scale.
func (s *Store) ListActiveWebhookSubscriptionsForEvent(ctx context.Context, eventType string) ([]*entities.WebhookSubscription, error) {
	query := `
		SELECT ` + webhookSubscriptionColumns + `
		FROM webhook_subscriptions
		WHERE is_active = true AND $1 = ANY(events)
	`
	rows, err := s.q(ctx).Query(ctx, query, eventType)
	if err != nil {
		return nil, fmt.Errorf("list active webhook subscriptions: %w", err)
	}
	defer rows.Close()

	var items []*entities.WebhookSubscription
	for rows.Next() {
		sub, err := s.scanWebhookSubscription(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, sub)
	}
	return items, rows.Err()
}

func (s *Store) UpdateWebhookSubscription(ctx context.Context, sub *entities.WebhookSubscription) error {
	query := `
		UPDATE webhook_subscriptions
		SET url = $1, secret = $2, events = $3, is_active = $4, failure_count = $5, updated_at = $6
		WHERE id = $7
	`
	tag, err := s.q(ctx).Exec(ctx, query, sub.URL(), sub.Secret(), sub.Events(), sub.IsActive(), sub.FailureCount(), sub.UpdatedAt(), sub.ID())
	if err != nil {
		return fmt.Errorf("update webhook subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.NotFound("WebhookSubscription", sub.ID())
	}
	return nil
}

func (s *Store) DeleteWebhookSubscription(ctx context.Context, webhookID string) error {
	tag, err := s.q(ctx).Exec(ctx, `DELETE FROM webhook_subscriptions WHERE id = $1`, webhookID)
	if err != nil {
		return fmt.Errorf("delete webhook subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.NotFound("WebhookSubscription", webhookID)
	}
	return nil
}

// --- webhook deliveries ---

const webhookDeliveryColumns = `id, webhook_id, transaction_id, event_type, payload, status, attempt_count, response_code, last_error, next_retry_at, completed_at, created_at`

func (s *Store) scanWebhookDelivery(row pgx.Row) (*entities.WebhookDelivery, error) {
	var (
		id, webhookID, transactionID, eventType, status string
		payload                                          []byte
		attemptCount                                     int
		responseCode                                     *int
		lastError                                        string
		nextRetryAt, completedAt                         *time.Time
		createdAt                                        time.Time
	)
	if err := row.Scan(&id, &webhookID, &transactionID, &eventType, &payload, &status, &attemptCount, &responseCode, &lastError, &nextRetryAt, &completedAt, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.NotFound("WebhookDelivery", id)
		}
		return nil, fmt.Errorf("scan webhook delivery: %w", err)
	}
	return entities.ReconstructWebhookDelivery(
		id, webhookID, transactionID, eventType, payload,
		entities.WebhookDeliveryStatus(status), attemptCount, responseCode, lastError,
		nextRetryAt, completedAt, createdAt,
	), nil
}

func (s *Store) CreateWebhookDelivery(ctx context.Context, delivery *entities.WebhookDelivery) error {
	query := `
		INSERT INTO webhook_deliveries (id, webhook_id, transaction_id, event_type, payload, status, attempt_count, response_code, last_error, next_retry_at, completed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := s.q(ctx).Exec(ctx, query,
		delivery.ID(), delivery.WebhookID(), delivery.TransactionID(), delivery.EventType(), delivery.Payload(),
		string(delivery.Status()), delivery.AttemptCount(), delivery.ResponseCode(), delivery.LastError(),
		delivery.NextRetryAt(), delivery.CompletedAt(), delivery.CreatedAt(),
	)
	if err != nil {
		return fmt.Errorf("insert webhook delivery: %w", err)
	}
	return nil
}

func (s *Store) UpdateWebhookDelivery(ctx context.Context, delivery *entities.WebhookDelivery) error {
	query := `
		UPDATE webhook_deliveries
		SET status = $1, attempt_count = $2, response_code = $3, last_error = $4, next_retry_at = $5, completed_at = $6
		WHERE id = $7
	`
	tag, err := s.q(ctx).Exec(ctx, query,
		string(delivery.Status()), delivery.AttemptCount(), delivery.ResponseCode(), delivery.LastError(),
		delivery.NextRetryAt(), delivery.CompletedAt(), delivery.ID(),
	)
	if err != nil {
		return fmt.Errorf("update webhook delivery: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.NotFound("WebhookDelivery", delivery.ID())
	}
	return nil
}

func (s *Store) ListWebhookDeliveries(ctx context.Context, webhookID string, limit int) ([]*entities.WebhookDelivery, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	query := `SELECT ` + webhookDeliveryColumns + ` FROM webhook_deliveries WHERE webhook_id = $1 ORDER BY created_at DESC LIMIT $2`
	rows, err := s.q(ctx).Query(ctx, query, webhookID, limit)
	if err != nil {
		return nil, fmt.Errorf("list webhook deliveries: %w", err)
	}
	defer rows.Close()

	var items []*entities.WebhookDelivery
	for rows.Next() {
		d, err := s.scanWebhookDelivery(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, rows.Err()
}
