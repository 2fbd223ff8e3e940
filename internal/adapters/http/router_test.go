package http

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wallethub/ledgercore/internal/application/ports"
	"github.com/wallethub/ledgercore/internal/domain/entities"
	domainerrors "github.com/wallethub/ledgercore/internal/domain/errors"
	"github.com/wallethub/ledgercore/internal/domain/valueobjects"
	"github.com/wallethub/ledgercore/internal/eventbus/inprocbus"
	"github.com/wallethub/ledgercore/internal/ledger"
	"github.com/wallethub/ledgercore/internal/saga"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// routerTestStore is a no-op ports.Store sufficient to exercise the
// router's wiring without a real database.
type routerTestStore struct{}

func (routerTestStore) FindWalletByUser(context.Context, string, valueobjects.Currency) (*entities.Wallet, error) {
	return nil, domainerrors.NotFound("Wallet", "")
}
func (routerTestStore) FindWalletByID(context.Context, string) (*entities.Wallet, error) {
	return nil, domainerrors.NotFound("Wallet", "")
}
func (routerTestStore) CreateWallet(context.Context, *entities.Wallet) error { return nil }
func (routerTestStore) ConditionalIncrementBalance(context.Context, string, valueobjects.Currency, valueobjects.Money, bool) (*entities.Wallet, error) {
	return nil, domainerrors.NotFound("Wallet", "")
}
func (routerTestStore) CreateOperationIfAbsent(context.Context, *entities.WalletOperation) (ports.CreateOperationResult, error) {
	return ports.CreateOperationResult{}, nil
}
func (routerTestStore) FindOperation(context.Context, string) (*entities.WalletOperation, error) {
	return nil, domainerrors.NotFound("WalletOperation", "")
}
func (routerTestStore) ListOperationsByWallet(context.Context, string, int) ([]*entities.WalletOperation, error) {
	return nil, nil
}
func (routerTestStore) FindTransaction(context.Context, string) (*entities.Transaction, error) {
	return nil, domainerrors.NotFound("Transaction", "")
}
func (routerTestStore) CreateTransaction(context.Context, *entities.Transaction) error { return nil }
func (routerTestStore) UpdateTransactionIfStatusIn(context.Context, *entities.Transaction, []entities.TransactionStatus) error {
	return nil
}
func (routerTestStore) ListTransactionsByUser(context.Context, string, ports.TransactionFilter) ([]*entities.Transaction, int, error) {
	return nil, 0, nil
}
func (routerTestStore) CreateWebhookSubscription(context.Context, *entities.WebhookSubscription) error {
	return nil
}
func (routerTestStore) FindWebhookSubscription(context.Context, string) (*entities.WebhookSubscription, error) {
	return nil, domainerrors.NotFound("WebhookSubscription", "")
}
func (routerTestStore) FindWebhookSubscriptionByURL(context.Context, string, string) (*entities.WebhookSubscription, error) {
	return nil, domainerrors.NotFound("WebhookSubscription", "")
}
func (routerTestStore) ListWebhookSubscriptions(context.Context, string) ([]*entities.WebhookSubscription, error) {
	return nil, nil
}
func (routerTestStore) ListActiveWebhookSubscriptionsForEvent(context.Context, string) ([]*entities.WebhookSubscription, error) {
	return nil, nil
}
func (routerTestStore) UpdateWebhookSubscription(context.Context, *entities.WebhookSubscription) error {
	return nil
}
func (routerTestStore) DeleteWebhookSubscription(context.Context, string) error { return nil }
func (routerTestStore) CreateWebhookDelivery(context.Context, *entities.WebhookDelivery) error {
	return nil
}
func (routerTestStore) UpdateWebhookDelivery(context.Context, *entities.WebhookDelivery) error {
	return nil
}
func (routerTestStore) ListWebhookDeliveries(context.Context, string, int) ([]*entities.WebhookDelivery, error) {
	return nil, nil
}

func testRouterConfig() RouterConfig {
	store := routerTestStore{}
	bus := inprocbus.New()
	l := ledger.New(store, bus)
	orchestrator := saga.New(l, store, bus)

	return RouterConfig{
		Logger:       slog.Default(),
		Version:      "test",
		BuildTime:    "unknown",
		Environment:  "development",
		Ledger:       l,
		Orchestrator: orchestrator,
		Store:        store,
	}
}

func TestNewRouter_NotNil(t *testing.T) {
	router := NewRouter(testRouterConfig())
	require.NotNil(t, router)
}

func TestNewRouter_HealthEndpoints(t *testing.T) {
	router := NewRouter(testRouterConfig())

	endpoints := []string{"/health", "/live", "/ready"}
	for _, endpoint := range endpoints {
		t.Run(endpoint, func(t *testing.T) {
			req := httptest.NewRequest("GET", endpoint, nil)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusOK, w.Code)
		})
	}
}

func TestNewRouter_MetricsEndpoint(t *testing.T) {
	router := NewRouter(testRouterConfig())

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_")
}

func TestNewRouter_404Handler(t *testing.T) {
	router := NewRouter(testRouterConfig())

	req := httptest.NewRequest("GET", "/nonexistent/path", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "route not found")
}

func TestNewRouter_RequestID(t *testing.T) {
	router := NewRouter(testRouterConfig())

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestNewRouter_WalletRoutesRegistered(t *testing.T) {
	router := NewRouter(testRouterConfig())

	req := httptest.NewRequest("GET", "/v1/wallets/u1/balance", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.NotEqual(t, http.StatusNotFound, w.Code)
}

func TestNewRouter_TransactionRoutesRegistered(t *testing.T) {
	router := NewRouter(testRouterConfig())

	req := httptest.NewRequest("GET", "/v1/transactions/txn_nonexistent", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.NotEqual(t, http.StatusNotFound, w.Code)
}

func TestNewRouter_WebhookRoutesRegistered(t *testing.T) {
	router := NewRouter(testRouterConfig())

	req := httptest.NewRequest("GET", "/v1/webhooks?userId=u1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestNewRouter_SimulationRoutesRegistered(t *testing.T) {
	router := NewRouter(testRouterConfig())

	req := httptest.NewRequest("GET", "/v1/admin/simulation", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestNewRouter_ProductionMode(t *testing.T) {
	cfg := testRouterConfig()
	cfg.Environment = "production"

	router := NewRouter(cfg)
	require.NotNil(t, router)
}
