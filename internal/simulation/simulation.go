// Package simulation holds the process-local chaos-testing hook the saga
// orchestrator's credit step consults (spec §4.5, §8). It exists purely to
// let tests and admin tooling force CREDIT_FAILED without touching real
// balances.
package simulation

import (
	"math/rand"
	"sync/atomic"
)

// FailureType labels why a simulated credit failure was injected, carried
// into the CREDIT_FAILED event payload for observability in tests.
type FailureType string

const (
	FailureTypeNone    FailureType = ""
	FailureTypeTimeout FailureType = "TIMEOUT"
	FailureTypeDown    FailureType = "SERVICE_DOWN"
)

// Config is the current simulation state. Zero value disables simulation.
type Config struct {
	Enabled            bool
	FailureRate        float64
	FailTransactionIDs map[string]struct{}
	FailureType        FailureType
}

var current atomic.Pointer[Config]

func init() {
	current.Store(&Config{})
}

// Get returns the active configuration.
func Get() Config {
	cfg := current.Load()
	if cfg == nil {
		return Config{}
	}
	return *cfg
}

// Set replaces the active configuration wholesale.
func Set(cfg Config) {
	current.Store(&cfg)
}

// Reset disables simulation entirely.
func Reset() {
	current.Store(&Config{})
}

// ShouldFailCredit reports whether the credit step for transactionID should
// short-circuit to CREDIT_FAILED: either the id is explicitly marked, or a
// random roll falls under the configured failure rate.
func ShouldFailCredit(transactionID string) (bool, FailureType) {
	cfg := Get()
	if !cfg.Enabled {
		return false, FailureTypeNone
	}
	if _, marked := cfg.FailTransactionIDs[transactionID]; marked {
		return true, cfg.FailureType
	}
	if cfg.FailureRate > 0 && rand.Float64() < cfg.FailureRate {
		return true, cfg.FailureType
	}
	return false, FailureTypeNone
}
