package handlers

import (
	"context"
	"sync"

	"github.com/wallethub/ledgercore/internal/application/ports"
	"github.com/wallethub/ledgercore/internal/domain/entities"
	domainerrors "github.com/wallethub/ledgercore/internal/domain/errors"
	"github.com/wallethub/ledgercore/internal/domain/valueobjects"
)

// fakeStore is a minimal in-memory ports.Store used to exercise the HTTP
// handlers without a real database.
type fakeStore struct {
	mu           sync.Mutex
	wallets      map[string]*entities.Wallet
	operations   map[string]*entities.WalletOperation
	opsByWallet  map[string][]*entities.WalletOperation
	transactions map[string]*entities.Transaction
	webhooks     map[string]*entities.WebhookSubscription
	deliveries   map[string][]*entities.WebhookDelivery
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		wallets:      make(map[string]*entities.Wallet),
		operations:   make(map[string]*entities.WalletOperation),
		opsByWallet:  make(map[string][]*entities.WalletOperation),
		transactions: make(map[string]*entities.Transaction),
		webhooks:     make(map[string]*entities.WebhookSubscription),
		deliveries:   make(map[string][]*entities.WebhookDelivery),
	}
}

func (s *fakeStore) walletKey(userID string, currency valueobjects.Currency) string {
	return userID + ":" + currency.Code()
}

func (s *fakeStore) seedWallet(userID string, currency valueobjects.Currency, balance valueobjects.Money) *entities.Wallet {
	w, err := entities.NewWallet(userID, currency)
	if err != nil {
		panic(err)
	}
	if err := w.Credit(balance); err != nil {
		panic(err)
	}
	s.wallets[s.walletKey(userID, currency)] = w
	return w
}

func (s *fakeStore) FindWalletByUser(_ context.Context, userID string, currency valueobjects.Currency) (*entities.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wallets[s.walletKey(userID, currency)]
	if !ok {
		return nil, domainerrors.NotFound("Wallet", userID)
	}
	return w, nil
}

func (s *fakeStore) FindWalletByID(_ context.Context, walletID string) (*entities.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.wallets {
		if w.ID() == walletID {
			return w, nil
		}
	}
	return nil, domainerrors.NotFound("Wallet", walletID)
}

func (s *fakeStore) CreateWallet(_ context.Context, wallet *entities.Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wallets[s.walletKey(wallet.UserID(), wallet.Currency())] = wallet
	return nil
}

func (s *fakeStore) ConditionalIncrementBalance(_ context.Context, userID string, currency valueobjects.Currency, amount valueobjects.Money, debit bool) (*entities.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wallets[s.walletKey(userID, currency)]
	if !ok {
		return nil, domainerrors.NotFound("Wallet", userID)
	}
	if debit {
		if err := w.Debit(amount); err != nil {
			return nil, domainerrors.PreconditionFailed("insufficient balance")
		}
		return w, nil
	}
	if err := w.Credit(amount); err != nil {
		return nil, err
	}
	return w, nil
}

func (s *fakeStore) CreateOperationIfAbsent(_ context.Context, op *entities.WalletOperation) (ports.CreateOperationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.operations[op.ID()]; ok {
		return ports.CreateOperationResult{Inserted: false, Existing: existing}, nil
	}
	s.operations[op.ID()] = op
	s.opsByWallet[op.WalletID()] = append([]*entities.WalletOperation{op}, s.opsByWallet[op.WalletID()]...)
	return ports.CreateOperationResult{Inserted: true}, nil
}

func (s *fakeStore) FindOperation(_ context.Context, operationID string) (*entities.WalletOperation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	op, ok := s.operations[operationID]
	if !ok {
		return nil, domainerrors.NotFound("WalletOperation", operationID)
	}
	return op, nil
}

func (s *fakeStore) ListOperationsByWallet(_ context.Context, walletID string, limit int) ([]*entities.WalletOperation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ops := s.opsByWallet[walletID]
	if len(ops) > limit {
		ops = ops[:limit]
	}
	return ops, nil
}

func (s *fakeStore) FindTransaction(_ context.Context, transactionID string) (*entities.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.transactions[transactionID]
	if !ok {
		return nil, domainerrors.NotFound("Transaction", transactionID)
	}
	return tx, nil
}

func (s *fakeStore) CreateTransaction(_ context.Context, tx *entities.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions[tx.ID()] = tx
	return nil
}

func (s *fakeStore) UpdateTransactionIfStatusIn(_ context.Context, tx *entities.Transaction, requireStatus []entities.TransactionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.transactions[tx.ID()]
	if !ok {
		return domainerrors.NotFound("Transaction", tx.ID())
	}
	allowed := false
	for _, st := range requireStatus {
		if stored.Status() == st {
			allowed = true
			break
		}
	}
	if !allowed {
		return domainerrors.PreconditionFailed("transaction status changed concurrently")
	}
	s.transactions[tx.ID()] = tx
	return nil
}

func (s *fakeStore) ListTransactionsByUser(_ context.Context, userID string, filter ports.TransactionFilter) ([]*entities.Transaction, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []*entities.Transaction
	for _, tx := range s.transactions {
		if tx.SenderID() != userID && tx.ReceiverID() != userID {
			continue
		}
		if filter.Status != nil && tx.Status() != *filter.Status {
			continue
		}
		matched = append(matched, tx)
	}
	total := len(matched)
	if filter.Offset < len(matched) {
		matched = matched[filter.Offset:]
	} else {
		matched = nil
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

func (s *fakeStore) CreateWebhookSubscription(_ context.Context, sub *entities.WebhookSubscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.webhooks[sub.ID()] = sub
	return nil
}

func (s *fakeStore) FindWebhookSubscription(_ context.Context, webhookID string) (*entities.WebhookSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.webhooks[webhookID]
	if !ok {
		return nil, domainerrors.NotFound("WebhookSubscription", webhookID)
	}
	return sub, nil
}

func (s *fakeStore) FindWebhookSubscriptionByURL(_ context.Context, userID, url string) (*entities.WebhookSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.webhooks {
		if sub.UserID() == userID && sub.URL() == url {
			return sub, nil
		}
	}
	return nil, domainerrors.NotFound("WebhookSubscription", url)
}

func (s *fakeStore) ListWebhookSubscriptions(_ context.Context, userID string) ([]*entities.WebhookSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entities.WebhookSubscription
	for _, sub := range s.webhooks {
		if sub.UserID() == userID {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (s *fakeStore) ListActiveWebhookSubscriptionsForEvent(_ context.Context, eventType string) ([]*entities.WebhookSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entities.WebhookSubscription
	for _, sub := range s.webhooks {
		if sub.IsActive() {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (s *fakeStore) UpdateWebhookSubscription(_ context.Context, sub *entities.WebhookSubscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.webhooks[sub.ID()] = sub
	return nil
}

func (s *fakeStore) DeleteWebhookSubscription(_ context.Context, webhookID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.webhooks, webhookID)
	return nil
}

func (s *fakeStore) CreateWebhookDelivery(_ context.Context, delivery *entities.WebhookDelivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveries[delivery.WebhookID()] = append(s.deliveries[delivery.WebhookID()], delivery)
	return nil
}

func (s *fakeStore) UpdateWebhookDelivery(context.Context, *entities.WebhookDelivery) error {
	return nil
}

func (s *fakeStore) ListWebhookDeliveries(_ context.Context, webhookID string, limit int) ([]*entities.WebhookDelivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.deliveries[webhookID]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
