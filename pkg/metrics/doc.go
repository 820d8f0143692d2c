/*
Package metrics provides Prometheus metrics collection and exposition for
the scheduler, plus the process-level health and readiness surface served
alongside them.

The metrics package defines and registers every metric the scheduler emits
using the Prometheus client library, giving observability into invocation
outcomes, per-resource driver actions, credential assumption, store
operation latency, and audit write-queue health.

# Architecture

	┌──────────────────── METRICS SYSTEM ───────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │         Orchestrator Metrics                │          │
	│  │  Invocations, schedules processed,          │          │
	│  │  accounts skipped, invocation duration      │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Driver Metrics                      │          │
	│  │  Resource actions by family/action/status,  │          │
	│  │  per-family call duration                   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │   Credential / Store / Audit Metrics        │          │
	│  │  STS assume duration & failures, store op   │          │
	│  │  duration & fallback reads, audit writes &  │          │
	│  │  drops                                      │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │      Prometheus Registry + /metrics          │          │
	│  └──────────────────────────────────────────────┘          │
	│                                                            │
	└────────────────────────────────────────────────────────────┘

# Design Goals

  - One counter/histogram per concern, labeled rather than duplicated
    (e.g. a single ResourceActionsTotal vector labeled by family/action/
    status instead of five per-family counters)
  - Every metric carries the "scheduler_" prefix
  - Accessible from any scheduler package via the package-level vars
  - Near-zero overhead: metrics are updated inline with driver/store calls,
    not sampled out-of-band

# Orchestrator Metrics

scheduler_invocations_total{mode, status}:
  - Counter. Total engine invocations by mode (full/partial) and outcome
    (success/failed).

scheduler_invocation_duration_seconds{mode}:
  - Histogram. Wall-clock duration of an engine invocation.

scheduler_schedules_processed_total:
  - Counter. Total schedules evaluated across all invocations.

scheduler_accounts_skipped_total:
  - Counter. (schedule, account) pairs skipped due to credential failure.

# Driver Metrics

scheduler_resource_actions_total{family, action, status}:
  - Counter. Per-resource actions (start/stop/skip) by family and outcome.

scheduler_driver_call_duration_seconds{family}:
  - Histogram. Time for a driver to process one resource.

# Credential Broker Metrics

scheduler_credential_assume_duration_seconds:
  - Histogram. Time to assume a role via STS.

scheduler_credential_assume_failures_total:
  - Counter. Failed AssumeRole calls.

# Store Metrics

scheduler_store_operation_duration_seconds{operation}:
  - Histogram. Time for a DynamoDB store adapter operation.

scheduler_store_fallback_reads_total{entity}:
  - Counter. Reads that fell back to the by-type index view after the
    by-status index query errored or came back empty.

# Audit Writer Metrics

scheduler_audit_entries_written_total:
  - Counter. Audit entries successfully persisted.

scheduler_audit_entries_dropped_total:
  - Counter. Audit entries dropped because the write queue was full, or
    because the store failed to persist them.

# Usage

	import "github.com/cuemby/scheduler/pkg/metrics"

	timer := metrics.NewTimer()
	// ... do work ...
	timer.ObserveDurationVec(metrics.DriverCallDuration, "vm")

	metrics.ResourceActionsTotal.WithLabelValues("vm", "stop", "success").Inc()

Handler returns the promhttp handler to mount at "/metrics":

	mux.Handle("/metrics", metrics.Handler())

# Health and Readiness

Alongside the Prometheus series, this package also tracks process-level
component health via RegisterComponent/UpdateComponent and exposes it
through HealthHandler ("/health"), ReadyHandler ("/ready"), and
LivenessHandler ("/live"). GetReadiness treats "store" as the scheduler's
sole critical component: the serve daemon registers it once its DynamoDB
store is constructed, and readiness reports not_ready until that
registration happens.

# Usage by Other Packages

  - cmd/scheduler: mounts Handler/HealthHandler/ReadyHandler/LivenessHandler,
    calls SetVersion and RegisterComponent("store", ...)
  - pkg/orchestrator: InvocationsTotal, InvocationDuration, SchedulesProcessed,
    AccountsSkippedTotal
  - pkg/drivers: ResourceActionsTotal, DriverCallDuration
  - pkg/credentials: CredentialAssumeDuration, CredentialAssumeFailures
  - pkg/store: StoreOperationDuration, StoreFallbackReads, AuditEntriesWritten
    (incremented inside AppendAudit, the single point every audit entry
    passes through whether written by pkg/audit's queue or any other caller),
    and AuditEntriesDropped when AppendAudit fails to persist an entry
  - pkg/audit: AuditEntriesDropped (the write-queue's own drop counter)

# Alerting Guidance

High Action Failure Rate:
  - Alert: rate(scheduler_resource_actions_total{status="failed"}[15m]) > 0

Credential Assumption Failing:
  - Alert: rate(scheduler_credential_assume_failures_total[15m]) > 0
  - Action: check the account's trust policy and external ID

Audit Entries Being Dropped:
  - Alert: rate(scheduler_audit_entries_dropped_total[5m]) > 0
  - Action: check store latency; the audit queue drains no faster than
    the store can accept writes

Store Not Ready:
  - Alert: scheduler /ready returns not_ready for more than a few minutes
    after process start
  - Action: check DynamoDB connectivity and table name configuration
*/
package metrics
