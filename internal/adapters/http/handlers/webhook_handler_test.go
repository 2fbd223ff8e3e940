package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wallethub/ledgercore/internal/domain/entities"
)

func newWebhookTestRouter(store *fakeStore) *gin.Engine {
	h := NewWebhookHandler(store)

	router := gin.New()
	v1 := router.Group("/v1")
	h.RegisterRoutes(v1)
	return router
}

func TestWebhookHandler_Create(t *testing.T) {
	store := newFakeStore()
	router := newWebhookTestRouter(store)

	body, _ := json.Marshal(CreateSubscriptionRequest{
		UserID: "user-1",
		URL:    "https://example.com/hook",
		Events: []string{"TRANSACTION_COMPLETED"},
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		Data SubscriptionResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "user-1", resp.Data.UserID)
	assert.NotEmpty(t, resp.Data.Secret)
	assert.True(t, resp.Data.IsActive)
}

func TestWebhookHandler_Create_DuplicateURL(t *testing.T) {
	store := newFakeStore()
	router := newWebhookTestRouter(store)

	body, _ := json.Marshal(CreateSubscriptionRequest{
		UserID: "user-1",
		URL:    "https://example.com/hook",
		Events: []string{"TRANSACTION_COMPLETED"},
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(httptest.NewRecorder(), req)

	req = httptest.NewRequest(http.MethodPost, "/v1/webhooks", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestWebhookHandler_List(t *testing.T) {
	store := newFakeStore()
	sub, err := entities.NewWebhookSubscription("user-2", "https://example.com/a", "0123456789abcdef0123456789abcdef", []string{"TRANSACTION_COMPLETED"})
	require.NoError(t, err)
	require.NoError(t, store.CreateWebhookSubscription(context.Background(), sub))

	router := newWebhookTestRouter(store)

	req := httptest.NewRequest(http.MethodGet, "/v1/webhooks?userId=user-2", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data []SubscriptionResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Empty(t, resp.Data[0].Secret)
}

func TestWebhookHandler_List_MissingUserID(t *testing.T) {
	store := newFakeStore()
	router := newWebhookTestRouter(store)

	req := httptest.NewRequest(http.MethodGet, "/v1/webhooks", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhookHandler_Get_NotFound(t *testing.T) {
	store := newFakeStore()
	router := newWebhookTestRouter(store)

	req := httptest.NewRequest(http.MethodGet, "/v1/webhooks/missing", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWebhookHandler_Update(t *testing.T) {
	store := newFakeStore()
	sub, err := entities.NewWebhookSubscription("user-3", "https://example.com/a", "0123456789abcdef0123456789abcdef", []string{"TRANSACTION_COMPLETED"})
	require.NoError(t, err)
	require.NoError(t, store.CreateWebhookSubscription(context.Background(), sub))

	router := newWebhookTestRouter(store)

	isActive := false
	body, _ := json.Marshal(UpdateSubscriptionRequest{IsActive: &isActive})
	req := httptest.NewRequest(http.MethodPatch, "/v1/webhooks/"+sub.ID(), bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data SubscriptionResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Data.IsActive)
}

func TestWebhookHandler_Delete(t *testing.T) {
	store := newFakeStore()
	sub, err := entities.NewWebhookSubscription("user-4", "https://example.com/a", "0123456789abcdef0123456789abcdef", []string{"TRANSACTION_COMPLETED"})
	require.NoError(t, err)
	require.NoError(t, store.CreateWebhookSubscription(context.Background(), sub))

	router := newWebhookTestRouter(store)

	req := httptest.NewRequest(http.MethodDelete, "/v1/webhooks/"+sub.ID(), nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestWebhookHandler_GetDeliveryLogs(t *testing.T) {
	store := newFakeStore()
	sub, err := entities.NewWebhookSubscription("user-5", "https://example.com/a", "0123456789abcdef0123456789abcdef", []string{"TRANSACTION_COMPLETED"})
	require.NoError(t, err)
	require.NoError(t, store.CreateWebhookSubscription(context.Background(), sub))

	delivery := entities.NewWebhookDelivery(sub.ID(), "txn_1", "TRANSACTION_COMPLETED", []byte(`{}`))
	require.NoError(t, store.CreateWebhookDelivery(context.Background(), delivery))

	router := newWebhookTestRouter(store)

	req := httptest.NewRequest(http.MethodGet, "/v1/webhooks/"+sub.ID()+"/deliveries", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data []DeliveryResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "txn_1", resp.Data[0].TransactionID)
}
