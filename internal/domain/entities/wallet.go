// Package entities - Wallet is the core entity for managing user balances.
// The authoritative balance mutation path is the store's conditional
// update (see internal/ledger); the mutators here exist so in-memory
// fakes and tests can model the same semantics without a database.
package entities

import (
	"time"

	"github.com/wallethub/ledgercore/internal/domain/errors"
	"github.com/wallethub/ledgercore/internal/domain/valueobjects"
	"github.com/google/uuid"
)

// Wallet represents a user's balance for a single currency. A user has at
// most one wallet per currency.
//
// Entity Pattern:
// - Identity is walletId; userId+currency is the lookup key.
// - Invariant: balance >= 0, enforced by the store's conditional update,
//   not by this struct — Credit/Debit below are for in-memory fakes only.
type Wallet struct {
	id       string
	userID   string
	currency valueobjects.Currency
	balance  valueobjects.Money
	isActive bool

	createdAt time.Time
	updatedAt time.Time
}

// NewWallet creates a new, active wallet with zero balance.
func NewWallet(userID string, currency valueobjects.Currency) (*Wallet, error) {
	if userID == "" {
		return nil, errors.InvalidArg("userId is required")
	}
	if currency.IsZero() {
		return nil, errors.InvalidArg("currency is required")
	}

	now := time.Now()
	return &Wallet{
		id:        uuid.New().String(),
		userID:    userID,
		currency:  currency,
		balance:   valueobjects.Zero(currency),
		isActive:  true,
		createdAt: now,
		updatedAt: now,
	}, nil
}

// ReconstructWallet rebuilds a Wallet from stored fields.
func ReconstructWallet(
	id, userID string,
	currency valueobjects.Currency,
	balance valueobjects.Money,
	isActive bool,
	createdAt, updatedAt time.Time,
) *Wallet {
	return &Wallet{
		id:        id,
		userID:    userID,
		currency:  currency,
		balance:   balance,
		isActive:  isActive,
		createdAt: createdAt,
		updatedAt: updatedAt,
	}
}

// Getters

func (w *Wallet) ID() string                         { return w.id }
func (w *Wallet) UserID() string                      { return w.userID }
func (w *Wallet) Currency() valueobjects.Currency      { return w.currency }
func (w *Wallet) Balance() valueobjects.Money          { return w.balance }
func (w *Wallet) IsActive() bool                       { return w.isActive }
func (w *Wallet) CreatedAt() time.Time                 { return w.createdAt }
func (w *Wallet) UpdatedAt() time.Time                 { return w.updatedAt }

// HasSufficientBalance reports whether the wallet can cover amount.
func (w *Wallet) HasSufficientBalance(amount valueobjects.Money) (bool, error) {
	return w.balance.GreaterThanOrEqual(amount)
}

// Credit adds funds to the wallet balance. Mirrors the store's
// conditionalIncrementBalance with an unconditional (non-negative) delta;
// used by in-memory fakes, not the real persistence path.
func (w *Wallet) Credit(amount valueobjects.Money) error {
	if !w.currency.Equals(amount.Currency()) {
		return errors.InvalidArg("amount currency does not match wallet currency")
	}
	newBalance, err := w.balance.Add(amount)
	if err != nil {
		return err
	}
	w.balance = newBalance
	w.updatedAt = time.Now()
	return nil
}

// Debit subtracts funds from the wallet, failing with InsufficientBalance
// if it would drive the balance negative. Mirrors the store's
// conditionalIncrementBalance with the `balance >= amount` predicate.
func (w *Wallet) Debit(amount valueobjects.Money) error {
	if !w.currency.Equals(amount.Currency()) {
		return errors.InvalidArg("amount currency does not match wallet currency")
	}
	sufficient, err := w.HasSufficientBalance(amount)
	if err != nil {
		return err
	}
	if !sufficient {
		return errors.InsufficientBalance("wallet balance is insufficient for this debit")
	}
	newBalance, err := w.balance.Subtract(amount)
	if err != nil {
		return err
	}
	w.balance = newBalance
	w.updatedAt = time.Now()
	return nil
}
