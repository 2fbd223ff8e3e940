// Package handlers contains the thin HTTP adapters for the engine's
// external interfaces (spec §6): one handler per exposed operation,
// nothing else. Handlers bind a request, call straight into the ledger
// or store, and map the result/error onto the standard envelope.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/wallethub/ledgercore/internal/adapters/http/common"
	"github.com/wallethub/ledgercore/internal/application/ports"
	"github.com/wallethub/ledgercore/internal/domain/valueobjects"
	"github.com/wallethub/ledgercore/internal/ledger"
)

// WalletHandler exposes wallet.deposit, wallet.getBalance and
// wallet.history directly over the ledger and its backing store; wallets
// themselves have no separate CRUD surface (spec §6 names no such
// operation, only deposit/balance/history).
type WalletHandler struct {
	ledger *ledger.Ledger
	store  ports.Store
}

// NewWalletHandler builds a WalletHandler over ledger and store.
func NewWalletHandler(l *ledger.Ledger, store ports.Store) *WalletHandler {
	return &WalletHandler{ledger: l, store: store}
}

// DepositRequest is the body for wallet.deposit.
type DepositRequest struct {
	Amount               string `json:"amount" binding:"required,money_amount"`
	Currency             string `json:"currency" binding:"required,currency_code"`
	ClientIdempotencyKey string `json:"clientIdempotencyKey" binding:"required"`
}

// OperationResponse mirrors the ledger's {success, newBalance, operationId,
// idempotent, kind} result shape from spec §4.3.
type OperationResponse struct {
	Success     bool   `json:"success"`
	NewBalance  string `json:"newBalance"`
	OperationID string `json:"operationId"`
	Idempotent  bool   `json:"idempotent"`
	Kind        string `json:"kind"`
}

// Deposit handles POST /v1/wallets/:userId/deposit.
//
// @Summary Credit a wallet outside of any saga
// @Router /v1/wallets/{userId}/deposit [post]
func (h *WalletHandler) Deposit(c *gin.Context) {
	userID := c.Param("userId")

	var req DepositRequest
	if !BindJSON(c, &req) {
		return
	}

	currency, err := valueobjects.NewCurrency(req.Currency)
	if err != nil {
		common.BadRequestResponse(c, "invalid currency code")
		return
	}

	amount, err := valueobjects.NewMoney(req.Amount, currency)
	if err != nil {
		common.BadRequestResponse(c, "invalid amount")
		return
	}

	result, err := h.ledger.Deposit(c.Request.Context(), userID, currency, amount, req.ClientIdempotencyKey)
	if err != nil {
		common.HandleDomainError(c, err)
		return
	}

	common.Success(c, http.StatusOK, OperationResponse{
		Success:     result.Success,
		NewBalance:  result.NewBalance.String(),
		OperationID: result.OperationID,
		Idempotent:  result.Idempotent,
		Kind:        string(result.Kind),
	})
}

// BalanceResponse is the response body for wallet.getBalance.
type BalanceResponse struct {
	UserID   string `json:"userId"`
	Currency string `json:"currency"`
	Balance  string `json:"balance"`
}

// GetBalance handles GET /v1/wallets/:userId/balance.
//
// @Summary Read a wallet's current balance
// @Router /v1/wallets/{userId}/balance [get]
func (h *WalletHandler) GetBalance(c *gin.Context) {
	userID := c.Param("userId")

	currency, err := valueobjects.NewCurrency(c.DefaultQuery("currency", "USD"))
	if err != nil {
		common.BadRequestResponse(c, "invalid currency code")
		return
	}

	wallet, err := h.store.FindWalletByUser(c.Request.Context(), userID, currency)
	if err != nil {
		common.HandleDomainError(c, err)
		return
	}

	common.Success(c, http.StatusOK, BalanceResponse{
		UserID:   userID,
		Currency: currency.Code(),
		Balance:  wallet.Balance().String(),
	})
}

// WalletOperationResponse is the wire shape of one WalletOperation row.
type WalletOperationResponse struct {
	OperationID   string `json:"operationId"`
	WalletID      string `json:"walletId"`
	UserID        string `json:"userId"`
	Kind          string `json:"kind"`
	Amount        string `json:"amount"`
	ResultBalance string `json:"resultBalance"`
	TransactionID string `json:"transactionId,omitempty"`
	CreatedAt     string `json:"createdAt"`
}

// History handles GET /v1/wallets/:userId/history.
//
// @Summary List a wallet's operations, newest first
// @Router /v1/wallets/{userId}/history [get]
func (h *WalletHandler) History(c *gin.Context) {
	userID := c.Param("userId")

	currency, err := valueobjects.NewCurrency(c.DefaultQuery("currency", "USD"))
	if err != nil {
		common.BadRequestResponse(c, "invalid currency code")
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, convErr := strconv.Atoi(raw); convErr == nil && n > 0 {
			limit = n
		}
	}

	wallet, err := h.store.FindWalletByUser(c.Request.Context(), userID, currency)
	if err != nil {
		common.HandleDomainError(c, err)
		return
	}

	ops, err := h.store.ListOperationsByWallet(c.Request.Context(), wallet.ID(), limit)
	if err != nil {
		common.HandleDomainError(c, err)
		return
	}

	out := make([]WalletOperationResponse, 0, len(ops))
	for _, op := range ops {
		out = append(out, WalletOperationResponse{
			OperationID:   op.ID(),
			WalletID:      op.WalletID(),
			UserID:        op.UserID(),
			Kind:          string(op.Kind()),
			Amount:        op.Amount().String(),
			ResultBalance: op.ResultBalance().String(),
			TransactionID: op.TransactionID(),
			CreatedAt:     op.CreatedAt().Format(timeLayout),
		})
	}

	common.Success(c, http.StatusOK, out)
}

// RegisterRoutes wires the wallet endpoints onto router.
func (h *WalletHandler) RegisterRoutes(router gin.IRouter) {
	wallets := router.Group("/wallets/:userId")
	wallets.POST("/deposit", h.Deposit)
	wallets.GET("/balance", h.GetBalance)
	wallets.GET("/history", h.History)
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"
