package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wallethub/ledgercore/internal/adapters/http/common"
	"github.com/wallethub/ledgercore/internal/application/ports"
	"github.com/wallethub/ledgercore/internal/domain/entities"
	domainerrors "github.com/wallethub/ledgercore/internal/domain/errors"
)

// WebhookHandler exposes the webhook CRUD surface (spec §6): createSubscription,
// listSubscriptions, getSubscription, updateSubscription, deleteSubscription
// and getDeliveryLogs, built directly on the store.
type WebhookHandler struct {
	store ports.Store
}

// NewWebhookHandler builds a WebhookHandler over store.
func NewWebhookHandler(store ports.Store) *WebhookHandler {
	return &WebhookHandler{store: store}
}

// SubscriptionResponse is the wire shape of a WebhookSubscription. Secret
// is returned only from Create, never from subsequent reads.
type SubscriptionResponse struct {
	WebhookID    string   `json:"webhookId"`
	UserID       string   `json:"userId"`
	URL          string   `json:"url"`
	Events       []string `json:"events"`
	IsActive     bool     `json:"isActive"`
	FailureCount int      `json:"failureCount"`
	Secret       string   `json:"secret,omitempty"`
}

func toSubscriptionResponse(sub *entities.WebhookSubscription) SubscriptionResponse {
	return SubscriptionResponse{
		WebhookID:    sub.ID(),
		UserID:       sub.UserID(),
		URL:          sub.URL(),
		Events:       sub.Events(),
		IsActive:     sub.IsActive(),
		FailureCount: sub.FailureCount(),
	}
}

// CreateSubscriptionRequest is the body for createSubscription.
type CreateSubscriptionRequest struct {
	UserID string   `json:"userId" binding:"required"`
	URL    string   `json:"url" binding:"required"`
	Events []string `json:"events" binding:"required,min=1"`
}

// generateSecret produces a 256-bit HMAC key, hex-encoded (64 chars, well
// over the entity's 32-byte minimum).
func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// Create handles POST /v1/webhooks.
//
// @Summary Register a webhook subscription
// @Router /v1/webhooks [post]
func (h *WebhookHandler) Create(c *gin.Context) {
	var req CreateSubscriptionRequest
	if !BindJSON(c, &req) {
		return
	}

	if existing, err := h.store.FindWebhookSubscriptionByURL(c.Request.Context(), req.UserID, req.URL); err == nil && existing != nil {
		common.ConflictResponse(c, "a subscription for this user and url already exists")
		return
	} else if err != nil && !domainerrors.IsNotFound(err) {
		common.HandleDomainError(c, err)
		return
	}

	secret, err := generateSecret()
	if err != nil {
		common.InternalErrorResponse(c, "failed to generate webhook secret")
		return
	}

	sub, err := entities.NewWebhookSubscription(req.UserID, req.URL, secret, req.Events)
	if err != nil {
		common.HandleDomainError(c, err)
		return
	}

	if err := h.store.CreateWebhookSubscription(c.Request.Context(), sub); err != nil {
		common.HandleDomainError(c, err)
		return
	}

	resp := toSubscriptionResponse(sub)
	resp.Secret = secret
	common.Success(c, http.StatusCreated, resp)
}

// List handles GET /v1/webhooks.
//
// @Summary List a user's webhook subscriptions
// @Router /v1/webhooks [get]
func (h *WebhookHandler) List(c *gin.Context) {
	userID := c.Query("userId")
	if userID == "" {
		common.BadRequestResponse(c, "userId is required")
		return
	}

	subs, err := h.store.ListWebhookSubscriptions(c.Request.Context(), userID)
	if err != nil {
		common.HandleDomainError(c, err)
		return
	}

	out := make([]SubscriptionResponse, 0, len(subs))
	for _, sub := range subs {
		out = append(out, toSubscriptionResponse(sub))
	}
	common.Success(c, http.StatusOK, out)
}

// Get handles GET /v1/webhooks/:webhookId.
//
// @Summary Read a webhook subscription
// @Router /v1/webhooks/{webhookId} [get]
func (h *WebhookHandler) Get(c *gin.Context) {
	sub, err := h.store.FindWebhookSubscription(c.Request.Context(), c.Param("webhookId"))
	if err != nil {
		common.HandleDomainError(c, err)
		return
	}
	if sub == nil {
		common.NotFoundResponse(c, "WebhookSubscription")
		return
	}
	common.Success(c, http.StatusOK, toSubscriptionResponse(sub))
}

// UpdateSubscriptionRequest is the body for updateSubscription. All three
// fields are optional; omitted fields keep their current value.
type UpdateSubscriptionRequest struct {
	URL      *string  `json:"url"`
	Events   []string `json:"events"`
	IsActive *bool    `json:"isActive"`
}

// Update handles PATCH /v1/webhooks/:webhookId.
//
// @Summary Update a webhook subscription's url, events or active flag
// @Router /v1/webhooks/{webhookId} [patch]
func (h *WebhookHandler) Update(c *gin.Context) {
	webhookID := c.Param("webhookId")

	var req UpdateSubscriptionRequest
	if !BindJSON(c, &req) {
		return
	}

	sub, err := h.store.FindWebhookSubscription(c.Request.Context(), webhookID)
	if err != nil {
		common.HandleDomainError(c, err)
		return
	}
	if sub == nil {
		common.NotFoundResponse(c, "WebhookSubscription")
		return
	}

	url := sub.URL()
	if req.URL != nil {
		url = *req.URL
	}
	events := sub.Events()
	if req.Events != nil {
		events = req.Events
	}
	isActive := sub.IsActive()
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	updated, err := entities.NewWebhookSubscription(sub.UserID(), url, sub.Secret(), events)
	if err != nil {
		common.HandleDomainError(c, err)
		return
	}
	rebuilt := entities.ReconstructWebhookSubscription(
		sub.ID(), updated.UserID(), updated.URL(), updated.Secret(), updated.Events(),
		isActive, sub.FailureCount(), sub.CreatedAt(), sub.UpdatedAt(),
	)

	if err := h.store.UpdateWebhookSubscription(c.Request.Context(), rebuilt); err != nil {
		common.HandleDomainError(c, err)
		return
	}

	common.Success(c, http.StatusOK, toSubscriptionResponse(rebuilt))
}

// Delete handles DELETE /v1/webhooks/:webhookId.
//
// @Summary Remove a webhook subscription
// @Router /v1/webhooks/{webhookId} [delete]
func (h *WebhookHandler) Delete(c *gin.Context) {
	if err := h.store.DeleteWebhookSubscription(c.Request.Context(), c.Param("webhookId")); err != nil {
		common.HandleDomainError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DeliveryResponse is the wire shape of a WebhookDelivery.
type DeliveryResponse struct {
	DeliveryID    string `json:"deliveryId"`
	WebhookID     string `json:"webhookId"`
	TransactionID string `json:"transactionId"`
	EventType     string `json:"eventType"`
	Status        string `json:"status"`
	AttemptCount  int    `json:"attemptCount"`
	ResponseCode  *int   `json:"responseCode,omitempty"`
	LastError     string `json:"lastError,omitempty"`
}

// GetDeliveryLogs handles GET /v1/webhooks/:webhookId/deliveries.
//
// @Summary Read a subscription's delivery attempt history
// @Router /v1/webhooks/{webhookId}/deliveries [get]
func (h *WebhookHandler) GetDeliveryLogs(c *gin.Context) {
	webhookID := c.Param("webhookId")

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n := parseInt(raw); n > 0 {
			limit = n
		}
	}

	deliveries, err := h.store.ListWebhookDeliveries(c.Request.Context(), webhookID, limit)
	if err != nil {
		common.HandleDomainError(c, err)
		return
	}

	out := make([]DeliveryResponse, 0, len(deliveries))
	for _, d := range deliveries {
		out = append(out, DeliveryResponse{
			DeliveryID:    d.ID(),
			WebhookID:     d.WebhookID(),
			TransactionID: d.TransactionID(),
			EventType:     d.EventType(),
			Status:        string(d.Status()),
			AttemptCount:  d.AttemptCount(),
			ResponseCode:  d.ResponseCode(),
			LastError:     d.LastError(),
		})
	}
	common.Success(c, http.StatusOK, out)
}

// RegisterRoutes wires the webhook endpoints onto router.
func (h *WebhookHandler) RegisterRoutes(router gin.IRouter) {
	webhooks := router.Group("/webhooks")
	webhooks.POST("", h.Create)
	webhooks.GET("", h.List)
	webhooks.GET("/:webhookId", h.Get)
	webhooks.PATCH("/:webhookId", h.Update)
	webhooks.DELETE("/:webhookId", h.Delete)
	webhooks.GET("/:webhookId/deliveries", h.GetDeliveryLogs)
}
