// Package orchestrator implements the top-level engine: it chooses full vs
// partial mode, fans out over (schedule x account x resource), calls
// drivers, aggregates results, and writes the execution record and audit
// log for each schedule it processes.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/cuemby/scheduler/pkg/credentials"
	"github.com/cuemby/scheduler/pkg/drivers"
	"github.com/cuemby/scheduler/pkg/log"
	"github.com/cuemby/scheduler/pkg/metrics"
	"github.com/cuemby/scheduler/pkg/schedulererr"
	"github.com/cuemby/scheduler/pkg/store"
	"github.com/cuemby/scheduler/pkg/timewindow"
	"github.com/cuemby/scheduler/pkg/types"
)

// Recommended concurrency bounds, per the account/resource fan-out model.
const (
	DefaultAccountConcurrency  = 8
	DefaultResourceConcurrency = 16
)

// CredentialSource is the subset of credentials.Broker the engine depends
// on, narrowed so tests can substitute a fake broker.
type CredentialSource interface {
	AssumeRole(ctx context.Context, desc credentials.AccountDescriptor) (types.AccountCredentials, error)
}

// Engine is the orchestrator. One Engine instance is safe for concurrent
// invocations; it holds no mutable state across Invoke calls.
type Engine struct {
	Store   store.Store
	Broker  CredentialSource
	Drivers map[types.Family]drivers.Driver
	Audit   drivers.AuditSink
	Logger  zerolog.Logger

	AccountConcurrency  int
	ResourceConcurrency int
}

// NewEngine wires the orchestrator's collaborators with the recommended
// concurrency bounds.
func NewEngine(st store.Store, broker CredentialSource, driverSet map[types.Family]drivers.Driver, audit drivers.AuditSink) *Engine {
	return &Engine{
		Store:               st,
		Broker:              broker,
		Drivers:             driverSet,
		Audit:               audit,
		Logger:              log.WithComponent("orchestrator"),
		AccountConcurrency:  DefaultAccountConcurrency,
		ResourceConcurrency: DefaultResourceConcurrency,
	}
}

// Invoke runs one engine tick: full mode over every active schedule, or
// partial mode over the single schedule named by payload.
func (e *Engine) Invoke(ctx context.Context, payload types.InvocationPayload) (types.InvocationResult, error) {
	timer := metrics.NewTimer()
	start := time.Now().UTC()

	tenantID := payload.TenantID
	if tenantID == "" {
		tenantID = store.DefaultTenant
	}
	triggeredBy := payload.TriggeredBy
	if triggeredBy == "" {
		triggeredBy = types.TriggeredBySystem
	}

	mode := types.ModeFull
	if payload.ScheduleID != "" || payload.ScheduleName != "" {
		mode = types.ModePartial
	}

	result := types.InvocationResult{
		ExecutionID: uuid.New().String(),
		Mode:        mode,
		Success:     true,
	}

	var schedules []types.Schedule
	var accounts []types.Account

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if mode == types.ModeFull {
			schedules, err = e.Store.ListActiveSchedules(gctx, tenantID)
		} else {
			schedules, err = e.resolvePartialSchedule(gctx, tenantID, payload)
		}
		return err
	})
	g.Go(func() error {
		var err error
		accounts, err = e.Store.ListActiveAccounts(gctx, tenantID)
		return err
	})
	if err := g.Wait(); err != nil {
		result.Success = false
		result.Errors = append(result.Errors, err.Error())
		metrics.InvocationsTotal.WithLabelValues(string(mode), string(types.StatusFailed)).Inc()
		timer.ObserveDurationVec(metrics.InvocationDuration, string(mode))
		result.DurationMS = time.Since(start).Milliseconds()
		return result, err
	}

	accountsByID := make(map[string]types.Account, len(accounts))
	for _, a := range accounts {
		accountsByID[a.AccountID] = a
	}

	for _, sched := range schedules {
		if err := ctx.Err(); err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("schedule %s: invocation budget exhausted before processing: %v", sched.ID, err))
			continue
		}
		e.processSchedule(ctx, tenantID, result.ExecutionID, sched, accountsByID, triggeredBy, payload, &result)
	}

	result.DurationMS = time.Since(start).Milliseconds()
	status := types.StatusSuccess
	if !result.Success {
		status = types.StatusFailed
	}
	metrics.InvocationsTotal.WithLabelValues(string(mode), string(status)).Inc()
	timer.ObserveDurationVec(metrics.InvocationDuration, string(mode))
	return result, nil
}

func (e *Engine) resolvePartialSchedule(ctx context.Context, tenantID string, payload types.InvocationPayload) ([]types.Schedule, error) {
	if payload.ScheduleID != "" {
		sched, err := e.Store.GetSchedule(ctx, tenantID, payload.ScheduleID)
		if err != nil {
			return nil, err
		}
		if sched == nil {
			return nil, nil
		}
		return []types.Schedule{*sched}, nil
	}

	// No schedule_id: resolve by name against the active-schedules view. A
	// schedule_name pointing at an inactive schedule cannot be resolved this
	// way since list_active_schedules only covers active=true; callers that
	// need to target an inactive schedule should supply schedule_id.
	candidates, err := e.Store.ListActiveSchedules(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	for _, sched := range candidates {
		if sched.Name == payload.ScheduleName {
			return []types.Schedule{sched}, nil
		}
	}
	return nil, nil
}

func (e *Engine) processSchedule(ctx context.Context, tenantID, executionID string, sched types.Schedule,
	accountsByID map[string]types.Account, triggeredBy types.TriggeredBy, payload types.InvocationPayload, result *types.InvocationResult) {

	logger := log.WithSchedule(sched.ID)

	action, skipSchedule := e.resolveAction(sched, payload, logger)
	if skipSchedule {
		return
	}

	startTime := time.Now().UTC()
	record := types.ExecutionRecord{
		ExecutionID: executionID,
		ScheduleID:  sched.ID,
		TenantID:    tenantID,
		Status:      types.StatusPending,
		TriggeredBy: triggeredBy,
		StartTime:   startTime,
		TTL:         startTime.AddDate(0, 0, 30),
	}

	if !payload.DryRun {
		record.Status = types.StatusRunning
		if err := e.Store.WriteExecutionRecord(ctx, record); err != nil {
			result.Success = false
			result.Errors = append(result.Errors, fmt.Sprintf("schedule %s: %v", sched.ID, err))
			e.Logger.Error().Err(err).Str("schedule_id", sched.ID).Msg("execution record insert failed, abandoning schedule")
			return
		}
	}

	if payload.Force {
		e.recordAudit(types.AuditEntry{
			EventType:  "scheduler.force_override",
			Action:     action,
			Status:     types.ResultSuccess,
			Severity:   types.SeverityMedium,
			Details:    "force=true bypassed time-window evaluation",
			ResourceID: sched.ID,
		})
	}

	byAccount := groupByAccount(sched.Resources)

	var mu sync.Mutex
	metadata := make(map[types.Family][]types.PerResourceResult)
	var started, stopped, failed int

	sem := semaphore.NewWeighted(int64(e.accountConcurrency()))
	var wg sync.WaitGroup

	for accountID, refs := range byAccount {
		accountID, refs := accountID, refs
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)

			results := e.processAccount(ctx, tenantID, executionID, sched, action, accountID, refs, accountsByID, payload)

			mu.Lock()
			defer mu.Unlock()
			for _, r := range results {
				metadata[r.Family] = append(metadata[r.Family], r)
				switch {
				case r.Status == types.ResultFailed:
					failed++
				case r.Action == types.ActionStart:
					started++
				case r.Action == types.ActionStop:
					stopped++
				}
			}
		}()
	}
	wg.Wait()

	status := classify(failed, countAll(metadata))

	result.SchedulesProcessed++
	metrics.SchedulesProcessed.Inc()
	result.ResourcesStarted += started
	result.ResourcesStopped += stopped
	result.ResourcesFailed += failed

	if payload.DryRun {
		return
	}

	update := store.ExecutionUpdate{
		EndTime:          time.Now().UTC(),
		DurationMS:       time.Since(startTime).Milliseconds(),
		Status:           status,
		Started:          started,
		Stopped:          stopped,
		Failed:           failed,
		ScheduleMetadata: metadata,
	}
	if status == types.StatusFailed {
		update.ErrorMessage = fmt.Sprintf("%d of %d resources failed", failed, countAll(metadata))
	}
	if err := e.Store.UpdateExecutionRecord(ctx, tenantID, sched.ID, executionID, update); err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("schedule %s: execution record left running, update failed: %v", sched.ID, err))
		e.Logger.Error().Err(err).Str("schedule_id", sched.ID).Msg("execution record update failed")
	}
	if status == types.StatusFailed {
		result.Success = false
	}
}

// resolveAction decides the single action applied to every resource of this
// schedule for this tick. force=true bypasses the window check entirely and
// always resolves to start; an invalid schedule configuration causes the
// whole schedule to be skipped and audited at severity=high.
func (e *Engine) resolveAction(sched types.Schedule, payload types.InvocationPayload, logger zerolog.Logger) (types.Action, bool) {
	if payload.Force {
		return types.ActionStart, false
	}

	inWindow, err := timewindow.Evaluate(timewindow.Args{
		Start: sched.StartHHMMSS,
		End:   sched.EndHHMMSS,
		TZ:    sched.Timezone,
		Days:  sched.ActiveDays,
		Now:   time.Now().UTC(),
	})
	if err != nil {
		logger.Error().Err(err).Msg("schedule configuration invalid, skipping")
		e.recordAudit(types.AuditEntry{
			EventType:  "scheduler.config_error",
			Status:     types.ResultFailed,
			Severity:   types.SeverityHigh,
			Details:    fmt.Errorf("%w: %v", schedulererr.ErrConfig, err).Error(),
			ResourceID: sched.ID,
		})
		return "", true
	}
	if inWindow {
		return types.ActionStart, false
	}
	return types.ActionStop, false
}

func (e *Engine) processAccount(ctx context.Context, tenantID, executionID string, sched types.Schedule, action types.Action,
	accountID string, refs []types.ResourceRef, accountsByID map[string]types.Account, payload types.InvocationPayload) []types.PerResourceResult {

	acct, ok := accountsByID[accountID]
	if !ok {
		e.recordAudit(types.AuditEntry{
			EventType:  "scheduler.account.unreachable",
			Action:     action,
			Status:     types.ResultFailed,
			Severity:   types.SeverityHigh,
			Details:    fmt.Sprintf("account %s inactive or unknown", accountID),
			AccountID:  accountID,
			ResourceID: sched.ID,
		})
		return failAll(refs, action, fmt.Errorf("account %s: %w", accountID, schedulererr.ErrAccountUnreachable))
	}

	region := ""
	if len(acct.Regions) > 0 {
		region = acct.Regions[0]
	}
	creds, err := e.Broker.AssumeRole(ctx, credentials.AccountDescriptor{
		AccountID:  acct.AccountID,
		RoleARN:    acct.RoleARN,
		ExternalID: acct.ExternalID,
		Region:     region,
	})
	if err != nil {
		metrics.AccountsSkippedTotal.Inc()
		e.recordAudit(types.AuditEntry{
			EventType:  "scheduler.account.unreachable",
			Action:     action,
			Status:     types.ResultFailed,
			Severity:   types.SeverityHigh,
			Details:    err.Error(),
			AccountID:  accountID,
			ResourceID: sched.ID,
		})
		return failAll(refs, action, err)
	}

	results := make([]types.PerResourceResult, 0, len(refs))
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := semaphore.NewWeighted(int64(e.resourceConcurrency()))

	for _, ref := range refs {
		ref := ref
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)

			if ctx.Err() != nil {
				res := deadlineResult(ref, action, ctx.Err())
				mu.Lock()
				results = append(results, res)
				mu.Unlock()
				return
			}

			driver := e.Drivers[ref.Type]
			if driver == nil {
				mu.Lock()
				results = append(results, types.PerResourceResult{
					ARN: ref.ARN, ResourceID: ref.ID, Family: ref.Type, Action: action,
					Status: types.ResultFailed, Error: fmt.Sprintf("%v: no driver for family %s", schedulererr.ErrConfig, ref.Type),
				})
				mu.Unlock()
				return
			}

			rc := creds
			if ref.Region != "" {
				rc.Region = ref.Region
			}

			var lastState *types.LastState
			if action == types.ActionStart && ref.Type != types.FamilyECS {
				if prior, qerr := e.Store.QueryLastSuccessfulStop(ctx, tenantID, sched.ID, ref.ARN, store.DefaultHorizon); qerr == nil && prior != nil {
					lastState = prior.LastState
				}
			}

			meta := drivers.Metadata{
				ExecutionID: executionID,
				TenantID:    tenantID,
				DryRun:      payload.DryRun,
				Audit:       e.Audit,
				Logger:      log.WithAccount(accountID),
			}
			res := driver.Process(ctx, ref, sched, action, rc, meta, lastState)

			mu.Lock()
			results = append(results, res)
			mu.Unlock()
		}()
	}
	wg.Wait()
	return results
}

func (e *Engine) recordAudit(entry types.AuditEntry) {
	if e.Audit == nil {
		return
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	e.Audit.Record(entry)
}

func (e *Engine) accountConcurrency() int {
	if e.AccountConcurrency <= 0 {
		return DefaultAccountConcurrency
	}
	return e.AccountConcurrency
}

func (e *Engine) resourceConcurrency() int {
	if e.ResourceConcurrency <= 0 {
		return DefaultResourceConcurrency
	}
	return e.ResourceConcurrency
}

func groupByAccount(refs []types.ResourceRef) map[string][]types.ResourceRef {
	out := make(map[string][]types.ResourceRef)
	for _, r := range refs {
		out[r.AccountID] = append(out[r.AccountID], r)
	}
	return out
}

func failAll(refs []types.ResourceRef, action types.Action, err error) []types.PerResourceResult {
	out := make([]types.PerResourceResult, 0, len(refs))
	for _, ref := range refs {
		out = append(out, types.PerResourceResult{
			ARN: ref.ARN, ResourceID: ref.ID, Family: ref.Type, Action: action,
			Status: types.ResultFailed, Error: err.Error(),
		})
	}
	return out
}

func deadlineResult(ref types.ResourceRef, action types.Action, err error) types.PerResourceResult {
	msg := schedulererr.ErrDeadline.Error()
	if errors.Is(err, context.Canceled) {
		msg = schedulererr.ErrCancelled.Error()
	}
	return types.PerResourceResult{
		ARN: ref.ARN, ResourceID: ref.ID, Family: ref.Type, Action: action,
		Status: types.ResultFailed, Error: msg,
	}
}

func countAll(metadata map[types.Family][]types.PerResourceResult) int {
	n := 0
	for _, v := range metadata {
		n += len(v)
	}
	return n
}

// classify implements the terminal-classification rule: failed_count ==
// total_count > 0 -> failed; 0 < failed_count < total_count -> partial;
// else success. A run over zero resources is success.
func classify(failedCount, totalCount int) types.ExecutionStatus {
	if totalCount > 0 && failedCount == totalCount {
		return types.StatusFailed
	}
	if failedCount > 0 && failedCount < totalCount {
		return types.StatusPartial
	}
	return types.StatusSuccess
}

