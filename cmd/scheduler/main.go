package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/cuemby/scheduler/pkg/audit"
	schedulerconfig "github.com/cuemby/scheduler/pkg/config"
	"github.com/cuemby/scheduler/pkg/credentials"
	"github.com/cuemby/scheduler/pkg/drivers"
	"github.com/cuemby/scheduler/pkg/log"
	"github.com/cuemby/scheduler/pkg/metrics"
	"github.com/cuemby/scheduler/pkg/orchestrator"
	"github.com/cuemby/scheduler/pkg/store"
	"github.com/cuemby/scheduler/pkg/types"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "scheduler",
	Short:   "Cloud cost-optimization resource scheduler",
	Long:    `scheduler evaluates tenant time windows and starts or stops cloud resources to cut idle spend, restoring prior capacity on the way back up.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("scheduler version %s\nCommit: %s\n", Version, Commit))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("table-name", "", "DynamoDB table name (overrides SCHEDULER_TABLE_NAME)")
	rootCmd.PersistentFlags().String("aws-region", "", "AWS region the store's DynamoDB table lives in")
	rootCmd.PersistentFlags().Int("account-concurrency", 0, "Max accounts processed concurrently per schedule")
	rootCmd.PersistentFlags().Int("resource-concurrency", 0, "Max resources processed concurrently per account")
	rootCmd.PersistentFlags().Int("invocation-budget-seconds", 0, "Deadline bound for a single invocation")
	rootCmd.PersistentFlags().String("metrics-addr", "", "Bind address for the metrics/health HTTP server")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
}

func initLogging() {
	cfg := schedulerconfig.ApplyEnv(schedulerconfig.Default())
	if rootCmd.PersistentFlags().Changed("log-level") {
		logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
		cfg.LogLevel = log.Level(logLevel)
	}
	if rootCmd.PersistentFlags().Changed("log-json") {
		cfg.LogJSON, _ = rootCmd.PersistentFlags().GetBool("log-json")
	}
	log.Init(log.Config{
		Level:      cfg.LogLevel,
		JSONOutput: cfg.LogJSON,
	})
}

// loadConfig layers flags over SCHEDULER_* environment variables over the
// package defaults, then validates the result.
func loadConfig(cmd *cobra.Command) (schedulerconfig.Config, error) {
	cfg := schedulerconfig.ApplyEnv(schedulerconfig.Default())

	if v, _ := cmd.Flags().GetString("table-name"); v != "" {
		cfg.TableName = v
	}
	if v, _ := cmd.Flags().GetString("aws-region"); v != "" {
		cfg.AWSRegion = v
	}
	if v, _ := cmd.Flags().GetInt("account-concurrency"); v != 0 {
		cfg.AccountConcurrency = v
	}
	if v, _ := cmd.Flags().GetInt("resource-concurrency"); v != 0 {
		cfg.ResourceConcurrency = v
	}
	if v, _ := cmd.Flags().GetInt("invocation-budget-seconds"); v != 0 {
		cfg.InvocationBudgetSeconds = v
	}
	if v, _ := cmd.Flags().GetString("metrics-addr"); v != "" {
		cfg.MetricsAddr = v
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// buildEngine wires a store, credential broker, driver set and audit writer
// into a ready-to-run orchestrator.Engine. The returned closer must be
// called on shutdown to drain the audit writer and release the store.
func buildEngine(ctx context.Context, cfg schedulerconfig.Config) (*orchestrator.Engine, func(), error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	storeLogger := log.WithComponent("store")
	st := store.NewDynamoStore(dynamodb.NewFromConfig(awsCfg), cfg.TableName, storeLogger)

	broker := credentials.NewBroker(log.WithComponent("credentials"))

	auditWriter := audit.NewWriter(st, log.WithComponent("audit"))

	driverSet := drivers.NewDriverSet(func(ctx context.Context, tenantID, scheduleID, resourceARN string) (*types.PerResourceResult, error) {
		return st.QueryLastSuccessfulStop(ctx, tenantID, scheduleID, resourceARN, store.DefaultHorizon)
	})

	engine := orchestrator.NewEngine(st, broker, driverSet, auditWriter)
	engine.Logger = log.WithComponent("orchestrator")
	engine.AccountConcurrency = cfg.AccountConcurrency
	engine.ResourceConcurrency = cfg.ResourceConcurrency

	closer := func() {
		auditWriter.Stop()
		if err := st.Close(); err != nil {
			log.Errorf("failed to close store: %v", err)
		}
	}
	return engine, closer, nil
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health", metrics.HealthHandler())
	mux.Handle("/ready", metrics.ReadyHandler())
	mux.Handle("/live", metrics.LivenessHandler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Errorf("metrics server error: %v", err)
		}
	}()
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a single scheduler invocation and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		scheduleID, _ := cmd.Flags().GetString("schedule-id")
		scheduleName, _ := cmd.Flags().GetString("schedule-name")
		tenantID, _ := cmd.Flags().GetString("tenant-id")
		force, _ := cmd.Flags().GetBool("force")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.InvocationBudgetSeconds)*time.Second)
		defer cancel()

		engine, closer, err := buildEngine(ctx, cfg)
		if err != nil {
			return err
		}
		defer closer()

		metrics.SetVersion(Version)
		metrics.RegisterComponent("store", true, "ready")

		result, err := engine.Invoke(ctx, types.InvocationPayload{
			ScheduleID:   scheduleID,
			ScheduleName: scheduleName,
			TenantID:     tenantID,
			TriggeredBy:  types.TriggeredBySystem,
			Force:        force,
			DryRun:       dryRun,
		})
		if err != nil {
			return fmt.Errorf("invocation failed: %w", err)
		}

		fmt.Printf("execution %s (%s mode): success=%v schedules=%d started=%d stopped=%d failed=%d duration=%dms\n",
			result.ExecutionID, result.Mode, result.Success, result.SchedulesProcessed,
			result.ResourcesStarted, result.ResourcesStopped, result.ResourcesFailed, result.DurationMS)
		for _, w := range result.Warnings {
			fmt.Printf("  warning: %s\n", w)
		}
		for _, e := range result.Errors {
			fmt.Printf("  error: %s\n", e)
		}
		if !result.Success {
			os.Exit(1)
		}
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler as a long-lived daemon, ticking on an interval",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		ctx := context.Background()
		engine, closer, err := buildEngine(ctx, cfg)
		if err != nil {
			return err
		}
		defer closer()

		metrics.SetVersion(Version)
		metrics.RegisterComponent("store", true, "ready")
		serveMetrics(cfg.MetricsAddr)
		log.Info(fmt.Sprintf("metrics and health endpoints listening on %s", cfg.MetricsAddr))

		logger := log.WithComponent("serve")
		stopCh := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			tick(ctx, engine, cfg, logger, stopCh)
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		logger.Info().Msg("shutting down")
		close(stopCh)
		wg.Wait()
		return nil
	},
}

// tick runs one full-mode invocation per TickIntervalSeconds until stopCh
// closes. A slow invocation never overlaps with the next tick: the ticker
// fires on a fixed schedule but a run already in flight finishes before the
// next one starts, since this loop blocks on Invoke before re-arming.
func tick(ctx context.Context, engine *orchestrator.Engine, cfg schedulerconfig.Config, logger zerolog.Logger, stopCh chan struct{}) {
	ticker := time.NewTicker(time.Duration(cfg.TickIntervalSeconds) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			invokeCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.InvocationBudgetSeconds)*time.Second)
			result, err := engine.Invoke(invokeCtx, types.InvocationPayload{TriggeredBy: types.TriggeredBySystem})
			cancel()
			if err != nil {
				logger.Error().Err(err).Msg("invocation failed")
				continue
			}
			logger.Info().
				Str("execution_id", result.ExecutionID).
				Bool("success", result.Success).
				Int("schedules", result.SchedulesProcessed).
				Int("started", result.ResourcesStarted).
				Int("stopped", result.ResourcesStopped).
				Int("failed", result.ResourcesFailed).
				Msg("invocation complete")
		case <-stopCh:
			return
		}
	}
}

func init() {
	runCmd.Flags().String("schedule-id", "", "Run only this schedule (partial mode)")
	runCmd.Flags().String("schedule-name", "", "Run only the schedule with this name (partial mode)")
	runCmd.Flags().String("tenant-id", "", "Tenant ID (defaults to the store's default tenant)")
	runCmd.Flags().Bool("force", false, "Bypass the time window and always start resources")
	runCmd.Flags().Bool("dry-run", false, "Evaluate and report without starting/stopping resources or persisting an execution record")
}
