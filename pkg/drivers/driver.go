// Package drivers implements the five resource-family drivers: virtual
// machine, relational/document database, container service, and
// auto-scaling group. Every driver shares the same contract so the
// orchestrator can dispatch to any of them identically.
package drivers

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/scheduler/pkg/metrics"
	"github.com/cuemby/scheduler/pkg/types"
)

// AuditSink is the fire-and-forget audit write contract a driver depends
// on. pkg/audit.Writer implements it.
type AuditSink interface {
	Record(entry types.AuditEntry)
}

// Metadata carries per-invocation context a driver needs beyond the
// resource and schedule themselves.
type Metadata struct {
	ExecutionID string
	TenantID    string
	DryRun      bool
	Audit       AuditSink
	Logger      zerolog.Logger
}

// Driver is the single contract every resource family implements.
//
//	process(resource, schedule, action, creds, metadata, last_state?) -> PerResourceResult
type Driver interface {
	Family() types.Family
	Process(ctx context.Context, ref types.ResourceRef, sched types.Schedule, action types.Action,
		creds types.AccountCredentials, metadata Metadata, lastState *types.LastState) types.PerResourceResult
}

// awsConfig builds an aws.Config bound to a caller's already-assumed,
// short-lived credentials and region. Every driver opens its family
// client from one of these per call; nothing is cached across resources
// or invocations, matching the broker's own no-caching contract.
func awsConfig(creds types.AccountCredentials) aws.Config {
	return aws.Config{
		Region: creds.Region,
		Credentials: credentials.NewStaticCredentialsProvider(
			creds.AccessKeyID, creds.SecretAccessKey, creds.SessionToken,
		),
	}
}

func recordAudit(meta Metadata, family types.Family, action types.Action, resourceID string,
	status types.ResultStatus, severity types.Severity, details, accountID, region string) {
	if meta.Audit == nil {
		return
	}
	eventType := fmt.Sprintf("scheduler.%s.%s", family, action)
	if status == types.ResultFailed {
		eventType = fmt.Sprintf("scheduler.%s.error", family)
	}
	meta.Audit.Record(types.AuditEntry{
		ID:           uuid.New().String(),
		Timestamp:    time.Now().UTC(),
		EventType:    eventType,
		Action:       action,
		ResourceType: family,
		ResourceID:   resourceID,
		Status:       status,
		Severity:     severity,
		Details:      details,
		AccountID:    accountID,
		Region:       region,
	})
}

func observeDriverCall(family types.Family) func() {
	timer := metrics.NewTimer()
	return func() { timer.ObserveDurationVec(metrics.DriverCallDuration, string(family)) }
}

func recordActionMetric(family types.Family, action types.Action, status types.ResultStatus) {
	metrics.ResourceActionsTotal.WithLabelValues(string(family), string(action), string(status)).Inc()
}

// NewDriverSet constructs the production driver for every resource family,
// keyed by Family for the orchestrator's dispatch table. queryLastStop is
// wired into the ecs driver, which resolves its own start target from
// execution history rather than from a last_state the orchestrator passes in.
func NewDriverSet(queryLastStop func(ctx context.Context, tenantID, scheduleID, resourceARN string) (*types.PerResourceResult, error)) map[types.Family]Driver {
	return map[types.Family]Driver{
		types.FamilyVM:    NewVMDriver(),
		types.FamilyRDS:   NewRDSDriver(),
		types.FamilyDocDB: NewDocDBDriver(),
		types.FamilyECS:   NewECSDriver(queryLastStop),
		types.FamilyASG:   NewASGDriver(),
	}
}

func failResult(ref types.ResourceRef, action types.Action, err error) types.PerResourceResult {
	return types.PerResourceResult{
		ARN:        ref.ARN,
		ResourceID: ref.ID,
		Family:     ref.Type,
		Action:     action,
		Status:     types.ResultFailed,
		Error:      err.Error(),
	}
}
