package entities

import (
	"testing"

	"github.com/wallethub/ledgercore/internal/domain/errors"
	"github.com/wallethub/ledgercore/internal/domain/valueobjects"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWallet(t *testing.T) {
	w, err := NewWallet("alice", valueobjects.USD)
	require.NoError(t, err)
	assert.True(t, w.IsActive())
	assert.True(t, w.Balance().IsZero())
	assert.Equal(t, "alice", w.UserID())
}

func TestNewWallet_RequiresUserID(t *testing.T) {
	_, err := NewWallet("", valueobjects.USD)
	assert.ErrorIs(t, err, errors.ErrInvalidArg)
}

func TestWallet_CreditThenDebit(t *testing.T) {
	w, err := NewWallet("alice", valueobjects.USD)
	require.NoError(t, err)

	require.NoError(t, w.Credit(mustMoney(t, "100.00")))
	assert.True(t, w.Balance().Equals(mustMoney(t, "100.00")))

	require.NoError(t, w.Debit(mustMoney(t, "40.00")))
	assert.True(t, w.Balance().Equals(mustMoney(t, "60.00")))
}

func TestWallet_DebitInsufficientBalance(t *testing.T) {
	w, err := NewWallet("alice", valueobjects.USD)
	require.NoError(t, err)
	require.NoError(t, w.Credit(mustMoney(t, "10.00")))

	err = w.Debit(mustMoney(t, "50.00"))
	assert.ErrorIs(t, err, errors.ErrInsufficientBalance)
	assert.True(t, w.Balance().Equals(mustMoney(t, "10.00")), "balance must be unchanged on failed debit")
}
