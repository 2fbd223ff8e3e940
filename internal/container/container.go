// Package container - Dependency Injection container for the application.
//
// Container управляет жизненным циклом всех зависимостей:
// - Создание (eager, по порядку в Initialize)
// - Доступ (getters)
// - Закрытие (cleanup)
//
// Pattern: Composition Root
// - Все зависимости собираются в одном месте
// - Легко тестировать
// - Легко заменять реализации
package container

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/wallethub/ledgercore/internal/adapters/http"
	"github.com/wallethub/ledgercore/internal/application/ports"
	"github.com/wallethub/ledgercore/internal/config"
	"github.com/wallethub/ledgercore/internal/eventbus/inprocbus"
	"github.com/wallethub/ledgercore/internal/eventbus/natsbus"
	"github.com/wallethub/ledgercore/internal/ledger"
	"github.com/wallethub/ledgercore/internal/ledger/postgres"
	"github.com/wallethub/ledgercore/internal/notification"
	"github.com/wallethub/ledgercore/internal/pkg/logger"
	"github.com/wallethub/ledgercore/internal/queue/redisqueue"
	"github.com/wallethub/ledgercore/internal/saga"
	"github.com/wallethub/ledgercore/internal/simulation"
	"github.com/wallethub/ledgercore/internal/webhook"
)

// Container is the application's composition root. It owns the lifetime of
// every infrastructure dependency and the domain services built on top of
// them, and wires them into the thin HTTP surface.
type Container struct {
	config *config.Config
	logger *slog.Logger

	pool        *pgxpool.Pool
	redisClient *redis.Client

	bus   ports.Bus
	queue ports.Queue
	store ports.Store

	ledger       *ledger.Ledger
	orchestrator *saga.Orchestrator

	webhookDispatcher      *webhook.Dispatcher
	notificationDispatcher *notification.Dispatcher

	httpServer *http.Server
}

// New creates a new container bound to cfg. Call Initialize to wire it up.
func New(cfg *config.Config) *Container {
	return &Container{config: cfg}
}

// Initialize wires every dependency in order: logger, database, event bus,
// job queue, domain services, background dispatchers, HTTP server.
func (c *Container) Initialize(ctx context.Context) error {
	c.logger = c.initLogger()
	c.logger.Info("initializing application container")

	if err := c.initDatabase(ctx); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.logger.Info("database connected")

	if err := c.initEventBus(ctx); err != nil {
		return fmt.Errorf("failed to initialize event bus: %w", err)
	}
	c.logger.Info("event bus connected")

	if err := c.initQueue(); err != nil {
		return fmt.Errorf("failed to initialize job queue: %w", err)
	}
	c.logger.Info("job queue connected")

	c.initSimulation()
	c.initDomainServices()
	c.logger.Info("domain services initialized")

	if err := c.initDispatchers(); err != nil {
		return fmt.Errorf("failed to initialize dispatchers: %w", err)
	}
	c.logger.Info("webhook and notification dispatchers started")

	if err := c.orchestrator.Start(ctx); err != nil {
		return fmt.Errorf("failed to start saga orchestrator: %w", err)
	}

	c.initHTTPServer()
	c.logger.Info("http server initialized")

	c.logger.Info("container initialization complete")
	return nil
}

func (c *Container) initLogger() *slog.Logger {
	log := logger.New(&logger.Config{
		Level:     c.config.Log.Level,
		Format:    c.config.Log.Format,
		Output:    os.Stdout,
		AddSource: c.config.App.Debug,
	})
	slog.SetDefault(log)
	return log
}

func (c *Container) initDatabase(ctx context.Context) error {
	poolConfig, err := pgxpool.ParseConfig(c.config.Database.DSN())
	if err != nil {
		return fmt.Errorf("failed to parse database url: %w", err)
	}

	poolConfig.MaxConns = c.config.Database.MaxConnections
	poolConfig.MinConns = c.config.Database.MinConnections
	poolConfig.MaxConnLifetime = c.config.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = c.config.Database.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	c.pool = pool
	c.store = postgres.New(pool)
	return nil
}

func (c *Container) initEventBus(ctx context.Context) error {
	if c.config.EventBus.URL == "" || c.config.App.Environment == "development" {
		c.bus = inprocbus.New()
		return c.bus.Connect(ctx)
	}

	bus := natsbus.New(c.config.EventBus.URL)
	if err := bus.Connect(ctx); err != nil {
		return err
	}
	c.bus = bus
	return nil
}

func (c *Container) initQueue() error {
	c.redisClient = redis.NewClient(&redis.Options{
		Addr:     c.config.Queue.Addr,
		Password: c.config.Queue.Password,
		DB:       c.config.Queue.DB,
		PoolSize: c.config.Queue.PoolSize,
	})

	if c.config.Queue.PollInterval > 0 {
		c.queue = redisqueue.NewWithPollInterval(c.redisClient, c.config.Queue.PollInterval)
	} else {
		c.queue = redisqueue.New(c.redisClient)
	}
	return nil
}

func (c *Container) initSimulation() {
	simulation.Set(simulation.Config{
		Enabled:     c.config.Simulation.Enabled,
		FailureRate: c.config.Simulation.FailureRate,
	})
}

func (c *Container) initDomainServices() {
	c.ledger = ledger.New(c.store, c.bus)
	c.orchestrator = saga.New(c.ledger, c.store, c.bus)
}

func (c *Container) initDispatchers() error {
	webhookCfg := webhook.Config{
		HTTPTimeout:         c.config.Webhook.HTTPTimeout,
		MaxAttempts:         c.config.Webhook.MaxAttempts,
		AutoDeactivateAfter: c.config.Webhook.AutoDeactivateAfter,
		BaseRetryBackoff:    c.config.Webhook.BaseRetryBackoff,
	}
	c.webhookDispatcher = webhook.New(c.store, c.queue, webhookCfg)
	if err := c.webhookDispatcher.Start(c.bus); err != nil {
		return fmt.Errorf("webhook dispatcher: %w", err)
	}
	go c.webhookDispatcher.StartWorker(context.Background(), 4)

	c.notificationDispatcher = notification.New(c.queue)
	if err := c.notificationDispatcher.Start(c.bus); err != nil {
		return fmt.Errorf("notification dispatcher: %w", err)
	}
	go c.notificationDispatcher.StartWorker(context.Background(), 4)

	return nil
}

func (c *Container) initHTTPServer() {
	routerConfig := http.RouterConfig{
		Logger:      c.logger,
		Pool:        c.pool,
		Version:     c.config.App.Version,
		BuildTime:   c.config.App.BuildTime,
		Environment: c.config.App.Environment,

		Ledger:       c.ledger,
		Orchestrator: c.orchestrator,
		Store:        c.store,
	}
	router := http.NewRouter(routerConfig)

	serverConfig := &http.ServerConfig{
		Host:            c.config.Server.Host,
		Port:            fmt.Sprintf("%d", c.config.Server.Port),
		ReadTimeout:     c.config.Server.ReadTimeout,
		WriteTimeout:    c.config.Server.WriteTimeout,
		IdleTimeout:     c.config.Server.IdleTimeout,
		ShutdownTimeout: c.config.Server.ShutdownTimeout,
		Logger:          c.logger,
	}

	c.httpServer = http.NewServer(serverConfig, router)
}

// Config returns the loaded configuration.
func (c *Container) Config() *config.Config {
	return c.config
}

// Logger returns the process logger.
func (c *Container) Logger() *slog.Logger {
	return c.logger
}

// Pool returns the Postgres connection pool.
func (c *Container) Pool() *pgxpool.Pool {
	return c.pool
}

// Store returns the ledger store.
func (c *Container) Store() ports.Store {
	return c.store
}

// Ledger returns the wallet ledger.
func (c *Container) Ledger() *ledger.Ledger {
	return c.ledger
}

// Orchestrator returns the saga orchestrator.
func (c *Container) Orchestrator() *saga.Orchestrator {
	return c.orchestrator
}

// HTTPServer returns the HTTP server.
func (c *Container) HTTPServer() *http.Server {
	return c.httpServer
}

// Shutdown gracefully tears down every dependency in reverse order.
func (c *Container) Shutdown(ctx context.Context) error {
	c.logger.Info("shutting down container")

	var errs []error

	if c.httpServer != nil {
		if err := c.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http server shutdown: %w", err))
		}
	}

	if c.queue != nil {
		if err := c.queue.Close(); err != nil {
			errs = append(errs, fmt.Errorf("queue close: %w", err))
		}
	}

	if c.bus != nil {
		if err := c.bus.Close(); err != nil {
			errs = append(errs, fmt.Errorf("event bus close: %w", err))
		}
	}

	if c.pool != nil {
		done := make(chan struct{})
		go func() {
			c.pool.Close()
			close(done)
		}()

		select {
		case <-done:
			c.logger.Info("database connection closed")
		case <-ctx.Done():
			c.logger.Warn("database close timeout")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	c.logger.Info("container shutdown complete")
	return nil
}

// Run starts the HTTP server and blocks until it stops.
func (c *Container) Run() error {
	c.logger.Info("starting ledgercore api server",
		slog.String("version", c.config.App.Version),
		slog.String("environment", c.config.App.Environment),
		slog.String("address", c.config.Server.Address()),
	)

	return c.httpServer.Run()
}
