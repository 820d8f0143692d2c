// Package store abstracts the single-table key-value store the engine
// reads schedules and accounts from and writes execution records and audit
// entries to.
package store

import (
	"context"
	"time"

	"github.com/cuemby/scheduler/pkg/types"
)

// ExecutionUpdate is the merge-update payload for update_execution_record.
type ExecutionUpdate struct {
	EndTime          time.Time
	DurationMS       int64
	Status           types.ExecutionStatus
	Started          int
	Stopped          int
	Failed           int
	ErrorMessage     string
	ScheduleMetadata map[types.Family][]types.PerResourceResult
}

// Store is the read/write facade the orchestrator depends on; the ecs
// driver reaches QueryLastSuccessfulStop through a function the command
// layer wires into it. Every operation takes a context so the invocation's
// overall deadline can bound it.
type Store interface {
	// ListActiveSchedules returns all schedules with active=true for the
	// tenant. Queries the by-status index first; if that view errors or
	// returns nothing, falls back to the by-type index with an in-memory
	// active==true filter. Both paths must yield the same set.
	ListActiveSchedules(ctx context.Context, tenantID string) ([]types.Schedule, error)

	// GetSchedule returns the schedule or nil. It reads the schedule by its
	// primary key, so inactive schedules are found as well as active ones;
	// a partial-scan trigger may target an inactive schedule.
	GetSchedule(ctx context.Context, tenantID, scheduleID string) (*types.Schedule, error)

	// ListActiveAccounts returns all active accounts for the tenant, with
	// the same primary/fallback index behavior as ListActiveSchedules.
	ListActiveAccounts(ctx context.Context, tenantID string) ([]types.Account, error)

	// WriteExecutionRecord inserts a new record. Must not overwrite an
	// existing record with the same ExecutionID.
	WriteExecutionRecord(ctx context.Context, record types.ExecutionRecord) error

	// UpdateExecutionRecord merge-updates end_time, duration, status,
	// counts, error and schedule_metadata onto an existing record.
	UpdateExecutionRecord(ctx context.Context, tenantID, scheduleID, executionID string, update ExecutionUpdate) error

	// AppendAudit is a fire-and-forget insert: failure is logged by the
	// caller, never returned as a fatal error.
	AppendAudit(ctx context.Context, entry types.AuditEntry) error

	// QueryLastSuccessfulStop scans the horizon most recent execution
	// records for scheduleID newest-first and returns the first
	// PerResourceResult with arn==resourceARN, action==stop, status==success.
	QueryLastSuccessfulStop(ctx context.Context, tenantID, scheduleID, resourceARN string, horizon int) (*types.PerResourceResult, error)

	Close() error
}

// Store-wide defaults: the tenant used when an invocation names none, the
// write-time TTLs of execution records and audit entries, and the
// execution-history horizon. The pk/sk layout itself is built by the key
// helpers in dynamodb.go.
const (
	DefaultTenant = "default"

	execTTLDays  = 30
	auditTTLDays = 90

	// DefaultHorizon is the number of most recent execution records scanned
	// by QueryLastSuccessfulStop when the caller does not override it.
	DefaultHorizon = 10
)

func executionTTL(start time.Time) time.Time {
	return start.AddDate(0, 0, execTTLDays)
}

func auditTTL(ts time.Time) time.Time {
	return ts.AddDate(0, 0, auditTTLDays)
}
