package entities

import (
	"time"

	"github.com/wallethub/ledgercore/internal/domain/valueobjects"
)

// OperationKind identifies the effect a WalletOperation had on a balance.
type OperationKind string

const (
	OperationKindDebit   OperationKind = "DEBIT"
	OperationKindCredit  OperationKind = "CREDIT"
	OperationKindRefund  OperationKind = "REFUND"
	OperationKindDeposit OperationKind = "DEPOSIT"
)

// WalletOperation is the audit and idempotency row behind every balance
// change. At most one row exists per (transactionId, kind); the store
// enforces this with a unique index on operationId.
type WalletOperation struct {
	id            string
	walletID      string
	userID        string
	kind          OperationKind
	amount        valueobjects.Money
	resultBalance valueobjects.Money
	transactionID string
	createdAt     time.Time
}

// SagaOperationID derives the deterministic operationId used for a saga
// step: one DEBIT/CREDIT/REFUND row per (transactionId, kind).
func SagaOperationID(transactionID string, kind OperationKind) string {
	return transactionID + ":" + string(kind)
}

// DepositOperationID derives the deterministic operationId used for an
// idempotent client-initiated deposit.
func DepositOperationID(clientKey string) string {
	return "deposit:" + clientKey
}

// NewWalletOperation builds a WalletOperation row recording one balance
// change. operationID is expected to come from SagaOperationID or
// DepositOperationID so the store's uniqueness guarantee applies.
func NewWalletOperation(
	operationID, walletID, userID string,
	kind OperationKind,
	amount, resultBalance valueobjects.Money,
	transactionID string,
) *WalletOperation {
	return &WalletOperation{
		id:            operationID,
		walletID:      walletID,
		userID:        userID,
		kind:          kind,
		amount:        amount,
		resultBalance: resultBalance,
		transactionID: transactionID,
		createdAt:     time.Now(),
	}
}

// ReconstructWalletOperation rebuilds a WalletOperation from stored fields.
func ReconstructWalletOperation(
	id, walletID, userID string,
	kind OperationKind,
	amount, resultBalance valueobjects.Money,
	transactionID string,
	createdAt time.Time,
) *WalletOperation {
	return &WalletOperation{
		id:            id,
		walletID:      walletID,
		userID:        userID,
		kind:          kind,
		amount:        amount,
		resultBalance: resultBalance,
		transactionID: transactionID,
		createdAt:     createdAt,
	}
}

func (o *WalletOperation) ID() string                         { return o.id }
func (o *WalletOperation) WalletID() string                    { return o.walletID }
func (o *WalletOperation) UserID() string                      { return o.userID }
func (o *WalletOperation) Kind() OperationKind                  { return o.kind }
func (o *WalletOperation) Amount() valueobjects.Money           { return o.amount }
func (o *WalletOperation) ResultBalance() valueobjects.Money    { return o.resultBalance }
func (o *WalletOperation) TransactionID() string                { return o.transactionID }
func (o *WalletOperation) CreatedAt() time.Time                 { return o.createdAt }
