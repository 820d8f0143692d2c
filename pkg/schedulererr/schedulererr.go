// Package schedulererr defines the error taxonomy the engine's components
// use to signal failure categories to the orchestrator, so it can decide
// per-resource failure, per-account skip, or a fatal run abort.
package schedulererr

import "errors"

// Sentinel errors identifying the taxonomy's categories. Wrap these with
// fmt.Errorf("...: %w", ErrX) and unwrap with errors.Is.
var (
	// ErrConfig marks a malformed schedule (invalid timezone, empty days).
	// The schedule is skipped and audited at severity=high; never retried.
	ErrConfig = errors.New("schedulererr: config error")

	// ErrStore marks a store read/write failure. Reads fall back to a
	// secondary index view; execution-record inserts are fatal for the run;
	// audit writes and status reads are logged and swallowed.
	ErrStore = errors.New("schedulererr: store error")

	// ErrAccountUnreachable marks a failed credential assumption. The
	// (schedule, account) pair is skipped; other accounts continue.
	ErrAccountUnreachable = errors.New("schedulererr: account unreachable")

	// ErrResourceNotFound marks a described resource that does not exist.
	// Never aborts the schedule; becomes a failed PerResourceResult.
	ErrResourceNotFound = errors.New("schedulererr: resource not found")

	// ErrProvider marks a cloud API rejection of a mutating call. Handled
	// the same way as ErrResourceNotFound.
	ErrProvider = errors.New("schedulererr: provider error")

	// ErrCancelled marks an invocation whose budget/context expired.
	ErrCancelled = errors.New("schedulererr: cancelled")

	// ErrDeadline marks a per-call timeout derived from the invocation budget.
	ErrDeadline = errors.New("schedulererr: deadline exceeded")
)
