package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/wallethub/ledgercore/internal/adapters/http/common"
	"github.com/wallethub/ledgercore/internal/application/ports"
	"github.com/wallethub/ledgercore/internal/domain/entities"
	"github.com/wallethub/ledgercore/internal/domain/valueobjects"
	"github.com/wallethub/ledgercore/internal/saga"
)

// TransactionHandler exposes initiateTransaction, getTransaction and
// listTransactions (spec §6) over the saga orchestrator and its store.
type TransactionHandler struct {
	orchestrator *saga.Orchestrator
	store        ports.Store
}

// NewTransactionHandler builds a TransactionHandler.
func NewTransactionHandler(o *saga.Orchestrator, store ports.Store) *TransactionHandler {
	return &TransactionHandler{orchestrator: o, store: store}
}

// InitiateTransactionRequest is the body for initiateTransaction.
type InitiateTransactionRequest struct {
	SenderID   string `json:"senderId" binding:"required"`
	ReceiverID string `json:"receiverId" binding:"required"`
	Amount     string `json:"amount" binding:"required,money_amount"`
	Currency   string `json:"currency" binding:"required,currency_code"`
}

// TransactionResponse is the wire shape of a Transaction.
type TransactionResponse struct {
	TransactionID string  `json:"transactionId"`
	SenderID      string  `json:"senderId"`
	ReceiverID    string  `json:"receiverId"`
	Amount        string  `json:"amount"`
	Currency      string  `json:"currency"`
	Status        string  `json:"status"`
	FailureReason string  `json:"failureReason,omitempty"`
	InitiatedAt   string  `json:"initiatedAt"`
	CompletedAt   *string `json:"completedAt,omitempty"`
}

func toTransactionResponse(tx *entities.Transaction) TransactionResponse {
	resp := TransactionResponse{
		TransactionID: tx.ID(),
		SenderID:      tx.SenderID(),
		ReceiverID:    tx.ReceiverID(),
		Amount:        tx.Amount().String(),
		Currency:      tx.Amount().Currency().Code(),
		Status:        string(tx.Status()),
		FailureReason: tx.FailureReason(),
		InitiatedAt:   tx.InitiatedAt().Format(timeLayout),
	}
	if tx.CompletedAt() != nil {
		formatted := tx.CompletedAt().Format(timeLayout)
		resp.CompletedAt = &formatted
	}
	return resp
}

// Initiate handles POST /v1/transactions.
//
// @Summary Initiate a transfer between two wallets
// @Router /v1/transactions [post]
func (h *TransactionHandler) Initiate(c *gin.Context) {
	var req InitiateTransactionRequest
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
	if req.SenderID == req.ReceiverID {
		common.BadRequestResponse(c, "senderId and receiverId must differ")
		return
	}

	tx, err := h.orchestrator.InitiateTransaction(c.Request.Context(), req.SenderID, req.ReceiverID, amount)
	if err != nil {
		common.HandleDomainError(c, err)
		return
	}

	common.Success(c, http.StatusCreated, toTransactionResponse(tx))
}

// Get handles GET /v1/transactions/:transactionId.
//
// @Summary Read a transaction by id
// @Router /v1/transactions/{transactionId} [get]
func (h *TransactionHandler) Get(c *gin.Context) {
	tx, err := h.store.FindTransaction(c.Request.Context(), c.Param("transactionId"))
	if err != nil {
		common.HandleDomainError(c, err)
		return
	}
	common.Success(c, http.StatusOK, toTransactionResponse(tx))
}

// List handles GET /v1/users/:userId/transactions.
//
// @Summary List a user's transactions as sender or receiver
// @Router /v1/users/{userId}/transactions [get]
func (h *TransactionHandler) List(c *gin.Context) {
	userID := c.Param("userId")

	filter := ports.TransactionFilter{Limit: 20}
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			filter.Limit = n
		}
	}
	if raw := c.Query("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			filter.Offset = n
		}
	}
	if raw := c.Query("status"); raw != "" {
		status := entities.TransactionStatus(raw)
		filter.Status = &status
	}

	items, total, err := h.store.ListTransactionsByUser(c.Request.Context(), userID, filter)
	if err != nil {
		common.HandleDomainError(c, err)
		return
	}

	out := make([]TransactionResponse, 0, len(items))
	for _, tx := range items {
		out = append(out, toTransactionResponse(tx))
	}

	common.SuccessWithMeta(c, http.StatusOK, out, &common.APIMeta{Total: total})
}

// RegisterRoutes wires the transaction endpoints onto router.
func (h *TransactionHandler) RegisterRoutes(router gin.IRouter) {
	router.POST("/transactions", h.Initiate)
	router.GET("/transactions/:transactionId", h.Get)
	router.GET("/users/:userId/transactions", h.List)
}
