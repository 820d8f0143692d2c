/*
Package log provides structured logging for the scheduler using zerolog.

The log package wraps zerolog to provide JSON-structured logging with
component-specific child loggers, configurable log levels, and helper
functions for common logging patterns. All logs include timestamps and
support filtering by severity level for production debugging.

# Architecture

The logging system provides structured JSON logging with minimal overhead:

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - Zerolog instance                         │          │
	│  │  - Initialized via log.Init()               │          │
	│  │  - Thread-safe for concurrent use           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Configuration                     │          │
	│  │  - Level: debug/info/warn/error             │          │
	│  │  - Format: JSON or console (human)          │          │
	│  │  - Output: stdout, file, or custom writer   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Component Loggers                   │          │
	│  │  - WithComponent("orchestrator")            │          │
	│  │  - WithExecutionID("exec-abc123")           │          │
	│  │  - WithTenant("tenant-xyz")                 │          │
	│  │  - WithSchedule("sched-def456")             │          │
	│  │  - WithAccount("111122223333")              │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            Log Output                       │          │
	│  │                                              │          │
	│  │  JSON Format:                               │          │
	│  │  {"level":"info","component":"drivers",     │          │
	│  │   "execution_id":"exec-abc123",             │          │
	│  │   "time":"...","message":"..."}             │          │
	│  │                                              │          │
	│  │  Console Format (human-readable):           │          │
	│  │  10:30:00 INF resource stopped component=   │          │
	│  │    drivers family=vm                        │          │
	│  └──────────────────────────────────────────────┘          │
	│                                                            │
	└────────────────────────────────────────────────────────────┘

# Design Goals

  - Structured (JSON) by default, human-readable console mode for local runs
  - Correlation fields (execution, tenant, schedule, account) threaded through
    every invocation so a single execution's logs can be isolated in any
    log aggregator
  - Accessible from all scheduler packages via a single global instance
  - Zero-allocation-friendly event building (zerolog's design)

# Configuration

Config controls the global logger:

	type Config struct {
		Level      Level  // debug, info, warn, error
		JSONOutput bool   // true for JSON, false for console format
	}

Init installs the global logger; it is called once at process startup,
typically from a cobra PersistentPreRun or OnInitialize hook:

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})

# Component Loggers

WithComponent returns a child logger tagged with a "component" field, used
to scope logs to a package or subsystem (e.g. "orchestrator", "drivers",
"store", "credentials", "audit"). The correlation helpers each add one
field to a derived logger and are meant to be chained from a component
logger:

	logger := log.WithComponent("orchestrator").
		With().Str("execution_id", executionID).Logger()

WithExecutionID, WithTenant, WithSchedule, and WithAccount exist as
convenience wrappers over the same With().Str(...).Logger() pattern for
the four correlation IDs this domain threads through an invocation.

# Package-Level Helpers

Info, Debug, Warn, and Error log against the global logger directly, for
call sites that don't need a derived logger. Errorf takes a format string
and an error, formatting the error into the message while still attaching
it as structured error context:

	log.Errorf("failed to close store: %v", err)

Fatal logs at fatal level and terminates the process; it is reserved for
unrecoverable startup failures (bad configuration, unreachable store at
boot), never for per-invocation errors, which should propagate through
InvocationResult.Errors instead.

# Usage by Other Packages

  - cmd/scheduler: installs the global logger from CLI flags
  - pkg/orchestrator: WithComponent("orchestrator"), WithSchedule per
    schedule, WithAccount per account (handed to drivers in Metadata.Logger)
  - pkg/drivers: does not log; outcomes are reported as audit entries and
    metrics
  - pkg/store: WithComponent("store") for DynamoDB operation logs
  - pkg/credentials: WithComponent("credentials") for AssumeRole attempts
  - pkg/audit: WithComponent("audit") for write-queue drops

# Log Rotation

This package does not include built-in log rotation. When logging to a
file, pair it with an external rotator (logrotate) or rely on the
orchestrating platform's log capture (ECS/Fargate task logs, journald).
*/
package log
