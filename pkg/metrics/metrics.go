package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Orchestrator metrics
	InvocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_invocations_total",
			Help: "Total number of engine invocations by mode and outcome",
		},
		[]string{"mode", "status"},
	)

	InvocationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scheduler_invocation_duration_seconds",
			Help:    "Wall-clock duration of an engine invocation",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	SchedulesProcessed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scheduler_schedules_processed_total",
			Help: "Total number of schedules evaluated across all invocations",
		},
	)

	AccountsSkippedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scheduler_accounts_skipped_total",
			Help: "Total number of (schedule, account) pairs skipped due to credential failure",
		},
	)

	// Driver metrics
	ResourceActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_resource_actions_total",
			Help: "Total number of per-resource actions by family, action and status",
		},
		[]string{"family", "action", "status"},
	)

	DriverCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scheduler_driver_call_duration_seconds",
			Help:    "Time taken for a driver to process one resource",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"family"},
	)

	// Credential broker metrics
	CredentialAssumeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scheduler_credential_assume_duration_seconds",
			Help:    "Time taken to assume a role via STS",
			Buckets: prometheus.DefBuckets,
		},
	)

	CredentialAssumeFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scheduler_credential_assume_failures_total",
			Help: "Total number of failed AssumeRole calls",
		},
	)

	// Store metrics
	StoreOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scheduler_store_operation_duration_seconds",
			Help:    "Time taken for a store adapter operation",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	StoreFallbackReads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_store_fallback_reads_total",
			Help: "Total number of reads that fell back to the secondary index view",
		},
		[]string{"entity"},
	)

	// Audit writer metrics
	AuditEntriesWritten = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scheduler_audit_entries_written_total",
			Help: "Total number of audit entries successfully persisted",
		},
	)

	AuditEntriesDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scheduler_audit_entries_dropped_total",
			Help: "Total number of audit entries dropped because the write queue was full or the store failed to persist them",
		},
	)
)

func init() {
	prometheus.MustRegister(InvocationsTotal)
	prometheus.MustRegister(InvocationDuration)
	prometheus.MustRegister(SchedulesProcessed)
	prometheus.MustRegister(AccountsSkippedTotal)
	prometheus.MustRegister(ResourceActionsTotal)
	prometheus.MustRegister(DriverCallDuration)
	prometheus.MustRegister(CredentialAssumeDuration)
	prometheus.MustRegister(CredentialAssumeFailures)
	prometheus.MustRegister(StoreOperationDuration)
	prometheus.MustRegister(StoreFallbackReads)
	prometheus.MustRegister(AuditEntriesWritten)
	prometheus.MustRegister(AuditEntriesDropped)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
