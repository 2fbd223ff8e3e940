// Package config loads application configuration from files and the
// environment.
//
// Priority (highest to lowest):
// 1. Environment variables
// 2. Config file
// 3. Default values
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ============================================
// Main Configuration
// ============================================

// Config is the root application configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	EventBus   EventBusConfig   `mapstructure:"event_bus"`
	Queue      QueueConfig      `mapstructure:"queue"`
	Webhook    WebhookConfig    `mapstructure:"webhook"`
	Simulation SimulationConfig `mapstructure:"simulation"`
	Log        LogConfig        `mapstructure:"log"`
}

// ============================================
// App Configuration
// ============================================

// AppConfig holds process-level identity fields.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"` // development, staging, production
	Debug       bool   `mapstructure:"debug"`
	BuildTime   string `mapstructure:"build_time"`
	GitCommit   string `mapstructure:"git_commit"`
}

func (c *AppConfig) IsDevelopment() bool { return c.Environment == "development" }
func (c *AppConfig) IsProduction() bool  { return c.Environment == "production" }

// ============================================
// Server Configuration
// ============================================

// ServerConfig configures the thin cmd/api HTTP surface.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ============================================
// Database Configuration
// ============================================

// DatabaseConfig configures the pgx connection pool backing the ledger store.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConnections  int32         `mapstructure:"max_connections"`
	MinConnections  int32         `mapstructure:"min_connections"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

// ============================================
// Event Bus Configuration
// ============================================

// EventBusConfig configures the NATS-backed domain event bus.
type EventBusConfig struct {
	URL               string        `mapstructure:"url"`
	MaxReconnects     int           `mapstructure:"max_reconnects"`
	ReconnectWait     time.Duration `mapstructure:"reconnect_wait"`
	ReconnectMaxDelay time.Duration `mapstructure:"reconnect_max_delay"`
}

// ============================================
// Queue Configuration
// ============================================

// QueueConfig configures the Redis-backed durable job queue.
type QueueConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxRetention int           `mapstructure:"max_retention"`
}

// ============================================
// Webhook Configuration
// ============================================

// WebhookConfig configures outbound webhook delivery.
type WebhookConfig struct {
	HTTPTimeout          time.Duration `mapstructure:"http_timeout"`
	MaxAttempts          int           `mapstructure:"max_attempts"`
	AutoDeactivateAfter  int           `mapstructure:"auto_deactivate_after"`
	BaseRetryBackoff     time.Duration `mapstructure:"base_retry_backoff"`
}

// ============================================
// Simulation Configuration
// ============================================

// SimulationConfig seeds the process-local failure-simulation hook at
// startup; operators can still override it live via the hook's own Set.
type SimulationConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	FailureRate float64 `mapstructure:"failure_rate"`
}

// ============================================
// Log Configuration
// ============================================

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
	Output string `mapstructure:"output"` // stdout, stderr, file
}

// ============================================
// Configuration Loading
// ============================================

// Load reads configuration from a file plus the environment.
//
// configPath is the directory holding the config file; configName is its
// base name without extension. Whatever file is found under that name is
// parsed as YAML.
func Load(configPath, configName string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/ledgercore")

	v.SetEnvPrefix("WALLETHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration from the environment only.
func LoadFromEnv() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("WALLETHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "LedgerCore")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.debug", true)

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "30s")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.database", "ledgercore")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_connections", 5)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	v.SetDefault("event_bus.url", "nats://localhost:4222")
	v.SetDefault("event_bus.max_reconnects", 3)
	v.SetDefault("event_bus.reconnect_wait", "100ms")
	v.SetDefault("event_bus.reconnect_max_delay", "3s")

	v.SetDefault("queue.addr", "localhost:6379")
	v.SetDefault("queue.password", "")
	v.SetDefault("queue.db", 0)
	v.SetDefault("queue.pool_size", 10)
	v.SetDefault("queue.poll_interval", "500ms")
	v.SetDefault("queue.max_retention", 1000)

	v.SetDefault("webhook.http_timeout", "10s")
	v.SetDefault("webhook.max_attempts", 5)
	v.SetDefault("webhook.auto_deactivate_after", 10)
	v.SetDefault("webhook.base_retry_backoff", "30s")

	v.SetDefault("simulation.enabled", false)
	v.SetDefault("simulation.failure_rate", 0.0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")
}

func bindEnvVars(v *viper.Viper) {
	_ = v.BindEnv("database.host", "WALLETHUB_DATABASE_HOST", "DB_HOST")
	_ = v.BindEnv("database.port", "WALLETHUB_DATABASE_PORT", "DB_PORT")
	_ = v.BindEnv("database.user", "WALLETHUB_DATABASE_USER", "DB_USER")
	_ = v.BindEnv("database.password", "WALLETHUB_DATABASE_PASSWORD", "DB_PASSWORD")
	_ = v.BindEnv("database.database", "WALLETHUB_DATABASE_DATABASE", "DB_NAME")

	_ = v.BindEnv("event_bus.url", "WALLETHUB_EVENT_BUS_URL", "NATS_URL")
	_ = v.BindEnv("queue.addr", "WALLETHUB_QUEUE_ADDR", "REDIS_ADDR")

	_ = v.BindEnv("server.port", "WALLETHUB_SERVER_PORT", "PORT")
	_ = v.BindEnv("app.environment", "WALLETHUB_APP_ENVIRONMENT", "ENVIRONMENT", "ENV")
}

// ============================================
// Configuration Validation
// ============================================

// Validate rejects configurations that would fail fast at startup anyway.
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.EventBus.URL == "" {
		return fmt.Errorf("event bus url is required")
	}
	if c.Simulation.FailureRate < 0 || c.Simulation.FailureRate > 1 {
		return fmt.Errorf("simulation failure rate must be between 0 and 1")
	}
	return nil
}

// ============================================
// Development Helpers
// ============================================

// Development returns a configuration suitable for local development.
func Development() *Config {
	return &Config{
		App: AppConfig{
			Name:        "LedgerCore",
			Version:     "dev",
			Environment: "development",
			Debug:       true,
		},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			User:            "postgres",
			Password:        "postgres",
			Database:        "ledgercore",
			SSLMode:         "disable",
			MaxConnections:  10,
			MinConnections:  2,
			MaxConnLifetime: time.Hour,
			MaxConnIdleTime: 30 * time.Minute,
		},
		EventBus: EventBusConfig{
			URL:               "nats://localhost:4222",
			MaxReconnects:     3,
			ReconnectWait:     100 * time.Millisecond,
			ReconnectMaxDelay: 3 * time.Second,
		},
		Queue: QueueConfig{
			Addr:         "localhost:6379",
			PoolSize:     10,
			PollInterval: 500 * time.Millisecond,
			MaxRetention: 1000,
		},
		Webhook: WebhookConfig{
			HTTPTimeout:         10 * time.Second,
			MaxAttempts:         5,
			AutoDeactivateAfter: 10,
			BaseRetryBackoff:    30 * time.Second,
		},
		Simulation: SimulationConfig{
			Enabled:     false,
			FailureRate: 0,
		},
		Log: LogConfig{
			Level:  "debug",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Test returns a configuration suitable for automated tests.
func Test() *Config {
	cfg := Development()
	cfg.App.Environment = "test"
	cfg.Database.Database = "ledgercore_test"
	cfg.Log.Level = "error"
	return cfg
}
