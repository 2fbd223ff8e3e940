// Package http - Router configuration for the thin API surface.
//
// Router собирает handlers в единую точку входа. Out of scope per the
// engine's spec: auth, CORS, rate limiting, OpenAPI generation — this
// surface exposes exactly the external interfaces the engine defines,
// nothing more.
package http

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wallethub/ledgercore/internal/adapters/http/handlers"
	"github.com/wallethub/ledgercore/internal/adapters/http/middleware"
	"github.com/wallethub/ledgercore/internal/application/ports"
	"github.com/wallethub/ledgercore/internal/ledger"
	"github.com/wallethub/ledgercore/internal/saga"
)

// RouterConfig собирает зависимости, нужные для построения роутера.
type RouterConfig struct {
	Logger      *slog.Logger
	Pool        *pgxpool.Pool
	Version     string
	BuildTime   string
	Environment string

	Ledger       *ledger.Ledger
	Orchestrator *saga.Orchestrator
	Store        ports.Store
}

// NewRouter builds the gin.Engine exposing the engine's external
// interfaces (spec §6): wallet deposit/balance/history, transaction
// initiate/get/list, webhook CRUD, and simulation admin, plus health
// checks and a Prometheus /metrics endpoint.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	handlers.SetupValidator()

	router := gin.New()
	router.Use(middleware.Recovery(middleware.DefaultRecoveryConfig()))
	router.Use(middleware.RequestID())
	router.Use(middleware.Logging(middleware.DefaultLoggingConfig()))

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	health := handlers.NewHealthHandler(cfg.Pool, cfg.Version, cfg.BuildTime)
	health.RegisterRoutes(router)

	v1 := router.Group("/v1")

	walletHandler := handlers.NewWalletHandler(cfg.Ledger, cfg.Store)
	walletHandler.RegisterRoutes(v1)

	transactionHandler := handlers.NewTransactionHandler(cfg.Orchestrator, cfg.Store)
	transactionHandler.RegisterRoutes(v1)

	webhookHandler := handlers.NewWebhookHandler(cfg.Store)
	webhookHandler.RegisterRoutes(v1)

	simulationHandler := handlers.NewSimulationHandler()
	simulationHandler.RegisterRoutes(v1)

	router.NoRoute(func(c *gin.Context) {
		c.JSON(404, gin.H{"error": "route not found"})
	})

	return router
}
