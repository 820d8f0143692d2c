// Package config resolves the engine's runtime configuration from CLI
// flags with environment-variable fallback, the same layering the command
// layer uses for every other setting.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/cuemby/scheduler/pkg/log"
	"github.com/cuemby/scheduler/pkg/orchestrator"
)

// Config holds everything the scheduler binary needs to construct an
// orchestrator.Engine and run it, either once or on an interval.
type Config struct {
	LogLevel  log.Level
	LogJSON   bool
	TableName string
	AWSRegion string

	AccountConcurrency  int
	ResourceConcurrency int

	// TickIntervalSeconds governs the `serve` subcommand's loop cadence; unused by
	// the one-shot `run` subcommand.
	TickIntervalSeconds int

	// InvocationBudgetSeconds bounds a single invocation; every suspension
	// point inside the engine derives its deadline from this.
	InvocationBudgetSeconds int

	MetricsAddr string
}

// Default returns the baseline configuration before flags/env are applied.
func Default() Config {
	return Config{
		LogLevel:                log.InfoLevel,
		TableName:               "scheduler",
		AccountConcurrency:      orchestrator.DefaultAccountConcurrency,
		ResourceConcurrency:     orchestrator.DefaultResourceConcurrency,
		TickIntervalSeconds:     300,
		InvocationBudgetSeconds: 240,
		MetricsAddr:             "127.0.0.1:9090",
	}
}

// ApplyEnv overrides cfg fields from SCHEDULER_* environment variables where
// present, letting flags take precedence when also explicitly set by the
// caller (the cmd layer applies flags after this).
func ApplyEnv(cfg Config) Config {
	if v := os.Getenv("SCHEDULER_LOG_LEVEL"); v != "" {
		cfg.LogLevel = log.Level(v)
	}
	if v := os.Getenv("SCHEDULER_LOG_JSON"); v != "" {
		cfg.LogJSON = v == "true" || v == "1"
	}
	if v := os.Getenv("SCHEDULER_TABLE_NAME"); v != "" {
		cfg.TableName = v
	}
	if v := os.Getenv("SCHEDULER_AWS_REGION"); v != "" {
		cfg.AWSRegion = v
	}
	if v := os.Getenv("SCHEDULER_ACCOUNT_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.AccountConcurrency = n
		}
	}
	if v := os.Getenv("SCHEDULER_RESOURCE_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ResourceConcurrency = n
		}
	}
	if v := os.Getenv("SCHEDULER_TICK_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.TickIntervalSeconds = n
		}
	}
	if v := os.Getenv("SCHEDULER_INVOCATION_BUDGET_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.InvocationBudgetSeconds = n
		}
	}
	if v := os.Getenv("SCHEDULER_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	return cfg
}

// Validate checks for configuration that would make the engine unusable.
func (c Config) Validate() error {
	if c.TableName == "" {
		return fmt.Errorf("table name must not be empty")
	}
	if c.AccountConcurrency <= 0 || c.ResourceConcurrency <= 0 {
		return fmt.Errorf("concurrency bounds must be positive")
	}
	if c.InvocationBudgetSeconds <= 0 {
		return fmt.Errorf("invocation budget must be positive")
	}
	return nil
}
